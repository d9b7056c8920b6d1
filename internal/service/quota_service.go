package service

import (
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/qs3c/mirror_server/config"
	"github.com/qs3c/mirror_server/internal/model"
	"github.com/qs3c/mirror_server/internal/model/dto"
	"github.com/qs3c/mirror_server/internal/repository"
)

var ErrQuotaExceeded = errors.New("本月反思次数已用完")

// QuotaExceededError 携带当前套餐的用量
type QuotaExceededError struct {
	Tier  string
	Limit int
	Used  int
}

func (e *QuotaExceededError) Error() string {
	return fmt.Sprintf("monthly reflection limit reached: %d/%d on %s", e.Used, e.Limit, e.Tier)
}

func (e *QuotaExceededError) Is(target error) bool {
	return target == ErrQuotaExceeded
}

// Allowance 是否还能生成以及剩余次数，-1 表示不限
func Allowance(limit, used int, unlimited bool) (bool, int) {
	if unlimited || limit < 0 {
		return true, -1
	}
	remaining := limit - used
	if remaining < 0 {
		remaining = 0
	}
	return used < limit, remaining
}

type QuotaService struct {
	userRepo  *repository.UserRepository
	usageRepo *repository.UsageRepository
	cfg       *config.Config
	log       *zap.Logger
	now       func() time.Time
}

func NewQuotaService(userRepo *repository.UserRepository, usageRepo *repository.UsageRepository, cfg *config.Config, log *zap.Logger) *QuotaService {
	return &QuotaService{
		userRepo:  userRepo,
		usageRepo: usageRepo,
		cfg:       cfg,
		log:       log,
		now:       time.Now,
	}
}

// Limit 用户本月上限，-1 表示不限
func (s *QuotaService) Limit(user *model.User) int {
	if user.Unlimited() {
		return -1
	}
	return s.cfg.Tier(user.SubscriptionTier).MonthlyReflections
}

// EnsureMonth 进入新月份时清零本月计数，返回最新的用户
func (s *QuotaService) EnsureMonth(user *model.User) (*model.User, error) {
	month := model.MonthKey(s.now())
	if user.CurrentMonthYear == month {
		return user, nil
	}

	rolled, err := s.userRepo.RollMonth(user.ID, month)
	if err != nil {
		return nil, fmt.Errorf("roll month: %w", err)
	}
	if rolled {
		s.log.Debug("monthly counter reset", zap.Int64("user_id", user.ID), zap.String("month", month))
	}
	return s.userRepo.GetByID(user.ID)
}

// Reserve 占用一次本月额度，返回占用所在的月份，失败时用它退还
func (s *QuotaService) Reserve(user *model.User) (string, error) {
	// 第二次尝试覆盖跨月瞬间的竞争
	for attempt := 0; attempt < 2; attempt++ {
		current, err := s.EnsureMonth(user)
		if err != nil {
			return "", err
		}

		month := current.CurrentMonthYear
		limit := s.Limit(current)
		ok, err := s.userRepo.ReserveReflection(current.ID, month, limit)
		if err != nil {
			return "", fmt.Errorf("reserve reflection: %w", err)
		}
		if ok {
			return month, nil
		}

		fresh, err := s.userRepo.GetByID(current.ID)
		if err != nil {
			return "", err
		}
		if fresh.CurrentMonthYear == month {
			return "", &QuotaExceededError{
				Tier:  fresh.SubscriptionTier,
				Limit: limit,
				Used:  fresh.ReflectionCountThisMonth,
			}
		}
		user = fresh
	}
	return "", &QuotaExceededError{Tier: user.SubscriptionTier, Limit: s.Limit(user), Used: user.ReflectionCountThisMonth}
}

// Refund 归还 Reserve 占用的额度
func (s *QuotaService) Refund(userID int64, month string) error {
	return s.userRepo.ReleaseReflection(userID, month)
}

// RecordUsage 写入月度用量统计，失败只记日志
func (s *QuotaService) RecordUsage(userID int64, month string, delta repository.UsageDelta) {
	if err := s.usageRepo.Record(userID, month, delta); err != nil {
		s.log.Warn("failed to record usage", zap.Int64("user_id", userID), zap.String("month", month), zap.Error(err))
	}
}

// QuotaFor 根据用户当前数据构建配额信息
func (s *QuotaService) QuotaFor(user *model.User) *dto.QuotaInfo {
	limit := s.Limit(user)
	used := user.ReflectionCountThisMonth
	if user.CurrentMonthYear != model.MonthKey(s.now()) {
		used = 0
	}
	ok, remaining := Allowance(limit, used, user.Unlimited())

	return &dto.QuotaInfo{
		Tier:       user.SubscriptionTier,
		MonthYear:  model.MonthKey(s.now()),
		Limit:      limit,
		Used:       used,
		Remaining:  remaining,
		CanReflect: ok,
		Unlimited:  limit < 0,
		ResetAt:    nextMonth(s.now()).Format(time.RFC3339),
	}
}

// GetQuotaInfo 获取用户本月配额
func (s *QuotaService) GetQuotaInfo(userID int64) (*dto.QuotaInfo, error) {
	user, err := s.userRepo.GetByID(userID)
	if err != nil {
		return nil, err
	}
	user, err = s.EnsureMonth(user)
	if err != nil {
		return nil, err
	}
	return s.QuotaFor(user), nil
}

// History 最近几个月的用量
func (s *QuotaService) History(userID int64, months int) ([]*dto.UsageHistoryItem, error) {
	if months <= 0 || months > 36 {
		months = 12
	}
	rows, err := s.usageRepo.ListByUser(userID, months)
	if err != nil {
		return nil, err
	}

	items := make([]*dto.UsageHistoryItem, len(rows))
	for i, row := range rows {
		items[i] = &dto.UsageHistoryItem{
			MonthYear:          row.MonthYear,
			ReflectionsCreated: row.ReflectionsCreated,
			EvolutionReports:   row.EvolutionReports,
			InputTokens:        row.InputTokens,
			OutputTokens:       row.OutputTokens,
		}
	}
	return items, nil
}

// nextMonth 下个月第一天零点（UTC）
func nextMonth(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month()+1, 1, 0, 0, 0, 0, time.UTC)
}
