package service

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/qs3c/mirror_server/config"
	"github.com/qs3c/mirror_server/internal/model"
	"github.com/qs3c/mirror_server/internal/model/dto"
	"github.com/qs3c/mirror_server/internal/repository"
)

var (
	ErrDreamNotFound     = errors.New("梦想不存在")
	ErrDreamLimitReached = errors.New("进行中的梦想数量已达上限")
	ErrDreamNotActive    = errors.New("只有进行中的梦想可以修改状态")
	ErrInvalidTargetDate = errors.New("目标日期格式应为 YYYY-MM-DD")
	ErrInvalidDreamState = errors.New("无效的梦想状态")
)

const dateLayout = "2006-01-02"

// DreamLimitError 携带套餐允许的进行中梦想数量
type DreamLimitError struct {
	Tier  string
	Limit int
}

func (e *DreamLimitError) Error() string {
	return fmt.Sprintf("active dream limit reached: %d on %s", e.Limit, e.Tier)
}

func (e *DreamLimitError) Is(target error) bool {
	return target == ErrDreamLimitReached
}

type DreamService struct {
	dreamRepo *repository.DreamRepository
	userRepo  *repository.UserRepository
	cfg       *config.Config
}

func NewDreamService(dreamRepo *repository.DreamRepository, userRepo *repository.UserRepository, cfg *config.Config) *DreamService {
	return &DreamService{
		dreamRepo: dreamRepo,
		userRepo:  userRepo,
		cfg:       cfg,
	}
}

// Create 创建梦想，受套餐的进行中数量限制
func (s *DreamService) Create(userID int64, req *dto.CreateDreamRequest) (*dto.DreamInfo, error) {
	user, err := loadUser(s.userRepo, userID)
	if err != nil {
		return nil, err
	}

	limit := s.cfg.Tier(user.SubscriptionTier).MaxActiveDreams
	if !user.Unlimited() && limit >= 0 {
		active, err := s.dreamRepo.CountActive(userID)
		if err != nil {
			return nil, err
		}
		if active >= int64(limit) {
			return nil, &DreamLimitError{Tier: user.SubscriptionTier, Limit: limit}
		}
	}

	target, err := parseDate(req.TargetDate)
	if err != nil {
		return nil, err
	}

	priority := req.Priority
	if priority == 0 {
		priority = 5
	}

	dream := &model.Dream{
		UserID:      userID,
		Title:       strings.TrimSpace(req.Title),
		Description: strings.TrimSpace(req.Description),
		TargetDate:  target,
		Category:    strings.TrimSpace(req.Category),
		Priority:    priority,
		Status:      model.DreamActive,
	}
	if dream.Title == "" {
		return nil, fmt.Errorf("%w: title", ErrMissingField)
	}
	if err := s.dreamRepo.Create(dream); err != nil {
		return nil, err
	}
	return buildDreamInfo(dream, time.Now()), nil
}

// List 列出梦想，status 为空表示全部
func (s *DreamService) List(userID int64, status string) ([]*dto.DreamInfo, error) {
	if status != "" && !validDreamStatus(status) {
		return nil, ErrInvalidDreamState
	}
	dreams, err := s.dreamRepo.ListByUser(userID, status)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	items := make([]*dto.DreamInfo, len(dreams))
	for i, d := range dreams {
		items[i] = buildDreamInfo(d, now)
	}
	return items, nil
}

// Get 获取梦想详情
func (s *DreamService) Get(userID, dreamID int64) (*dto.DreamInfo, error) {
	dream, err := s.Owned(userID, dreamID)
	if err != nil {
		return nil, err
	}
	return buildDreamInfo(dream, time.Now()), nil
}

// Owned 获取属于该用户的梦想
func (s *DreamService) Owned(userID, dreamID int64) (*model.Dream, error) {
	return ownedDream(s.dreamRepo, userID, dreamID)
}

// Update 修改梦想基本信息
func (s *DreamService) Update(userID, dreamID int64, req *dto.UpdateDreamRequest) (*dto.DreamInfo, error) {
	dream, err := s.Owned(userID, dreamID)
	if err != nil {
		return nil, err
	}

	if req.Title != nil {
		title := strings.TrimSpace(*req.Title)
		if title == "" {
			return nil, fmt.Errorf("%w: title", ErrMissingField)
		}
		dream.Title = title
	}
	if req.Description != nil {
		dream.Description = strings.TrimSpace(*req.Description)
	}
	if req.TargetDate != nil {
		target, err := parseDate(*req.TargetDate)
		if err != nil {
			return nil, err
		}
		dream.TargetDate = target
	}
	if req.Category != nil {
		dream.Category = strings.TrimSpace(*req.Category)
	}
	if req.Priority != nil {
		dream.Priority = *req.Priority
	}

	if err := s.dreamRepo.Update(dream); err != nil {
		return nil, err
	}
	return buildDreamInfo(dream, time.Now()), nil
}

// UpdateStatus 状态只能从 active 迁到终态
func (s *DreamService) UpdateStatus(userID, dreamID int64, status string) (*dto.DreamInfo, error) {
	dream, err := s.Owned(userID, dreamID)
	if err != nil {
		return nil, err
	}
	if dream.Status != model.DreamActive {
		return nil, ErrDreamNotActive
	}

	now := time.Now()
	switch status {
	case model.DreamAchieved:
		dream.AchievedAt = &now
	case model.DreamArchived:
		dream.ArchivedAt = &now
	case model.DreamReleased:
		dream.ReleasedAt = &now
	default:
		return nil, ErrInvalidDreamState
	}
	dream.Status = status

	if err := s.dreamRepo.Update(dream); err != nil {
		return nil, err
	}
	return buildDreamInfo(dream, now), nil
}

// Delete 删除梦想，关联的反思保留
func (s *DreamService) Delete(userID, dreamID int64) error {
	if _, err := s.Owned(userID, dreamID); err != nil {
		return err
	}
	return s.dreamRepo.Delete(dreamID)
}

func ownedDream(repo *repository.DreamRepository, userID, dreamID int64) (*model.Dream, error) {
	dream, err := repo.GetByID(dreamID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrDreamNotFound
		}
		return nil, err
	}
	if dream.UserID != userID {
		return nil, ErrDreamNotFound
	}
	return dream, nil
}

func validDreamStatus(status string) bool {
	switch status {
	case model.DreamActive, model.DreamAchieved, model.DreamArchived, model.DreamReleased:
		return true
	}
	return false
}

// parseDate 空字符串表示不设置
func parseDate(value string) (*time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, nil
	}
	t, err := time.ParseInLocation(dateLayout, value, time.UTC)
	if err != nil {
		return nil, ErrInvalidTargetDate
	}
	return &t, nil
}

func buildDreamInfo(d *model.Dream, now time.Time) *dto.DreamInfo {
	info := &dto.DreamInfo{
		ID:              d.ID,
		Title:           d.Title,
		Description:     d.Description,
		Category:        d.Category,
		Priority:        d.Priority,
		Status:          d.Status,
		ReflectionCount: d.ReflectionCount,
		AchievedAt:      formatTimePtr(d.AchievedAt),
		ArchivedAt:      formatTimePtr(d.ArchivedAt),
		ReleasedAt:      formatTimePtr(d.ReleasedAt),
		CreatedAt:       formatTime(d.CreatedAt),
		UpdatedAt:       formatTime(d.UpdatedAt),
	}

	if d.TargetDate != nil {
		info.TargetDate = d.TargetDate.Format(dateLayout)
		if d.Status == model.DreamActive {
			today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
			days := int(math.Ceil(d.TargetDate.Sub(today).Hours() / 24))
			info.DaysLeft = &days
		}
	}
	return info
}
