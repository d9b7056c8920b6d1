package service

import (
	"errors"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/qs3c/mirror_server/config"
	"github.com/qs3c/mirror_server/internal/model"
	"github.com/qs3c/mirror_server/internal/model/dto"
	"github.com/qs3c/mirror_server/internal/repository"
)

var ErrUserNotFound = errors.New("用户不存在")

type UserService struct {
	userRepo *repository.UserRepository
	quota    *QuotaService
	cfg      *config.Config
}

func NewUserService(userRepo *repository.UserRepository, quota *QuotaService, cfg *config.Config) *UserService {
	return &UserService{
		userRepo: userRepo,
		quota:    quota,
		cfg:      cfg,
	}
}

// GetProfile 获取用户详情，附带本月配额
func (s *UserService) GetProfile(userID int64) (*dto.UserInfo, error) {
	user, err := loadUser(s.userRepo, userID)
	if err != nil {
		return nil, err
	}
	user, err = s.quota.EnsureMonth(user)
	if err != nil {
		return nil, err
	}
	return buildUserInfo(user, s.quota.QuotaFor(user)), nil
}

// UpdateProfile 更新用户信息
func (s *UserService) UpdateProfile(userID int64, req *dto.UpdateProfileRequest) (*dto.UserInfo, error) {
	user, err := loadUser(s.userRepo, userID)
	if err != nil {
		return nil, err
	}

	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name != "" && name != user.Name {
			if err := s.userRepo.UpdateFields(userID, map[string]interface{}{"name": name}); err != nil {
				return nil, err
			}
			user.Name = name
		}
	}

	return buildUserInfo(user, s.quota.QuotaFor(user)), nil
}

// GetUsage 本月配额
func (s *UserService) GetUsage(userID int64) (*dto.QuotaInfo, error) {
	if _, err := loadUser(s.userRepo, userID); err != nil {
		return nil, err
	}
	return s.quota.GetQuotaInfo(userID)
}

// UsageHistory 月度用量
func (s *UserService) UsageHistory(userID int64, months int) ([]*dto.UsageHistoryItem, error) {
	return s.quota.History(userID, months)
}

// Plans 套餐列表
func (s *UserService) Plans() []*dto.PlanInfo {
	tiers := []string{model.TierFree, model.TierEssential, model.TierPremium}
	plans := make([]*dto.PlanInfo, len(tiers))
	for i, name := range tiers {
		tier := s.cfg.Tier(name)
		plans[i] = &dto.PlanInfo{
			Tier:                name,
			MonthlyReflections:  tier.MonthlyReflections,
			EvolutionThreshold:  tier.EvolutionThreshold,
			EvolutionSampleSize: tier.EvolutionSampleSize,
			MaxActiveDreams:     tier.MaxActiveDreams,
			MonthlyPriceCents:   tier.MonthlyPriceCents,
			YearlyPriceCents:    tier.YearlyPriceCents,
		}
	}
	return plans
}

func loadUser(repo *repository.UserRepository, userID int64) (*model.User, error) {
	user, err := repo.GetByID(userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return user, nil
}

func buildUserInfo(user *model.User, usage *dto.QuotaInfo) *dto.UserInfo {
	return &dto.UserInfo{
		ID:                    user.ID,
		Email:                 user.Email,
		Name:                  user.Name,
		SubscriptionTier:      user.SubscriptionTier,
		SubscriptionStatus:    user.SubscriptionStatus,
		SubscriptionPeriod:    user.SubscriptionPeriod,
		SubscriptionExpiresAt: formatTimePtr(user.SubscriptionExpiresAt),
		TotalReflections:      user.TotalReflections,
		IsCreator:             user.IsCreator,
		IsAdmin:               user.IsAdmin,
		EmailVerified:         user.EmailVerified,
		HasPassword:           user.PasswordHash != nil,
		Usage:                 usage,
		CreatedAt:             formatTime(user.CreatedAt),
	}
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(time.RFC3339)
}

func formatTimePtr(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format(time.RFC3339)
}

// normalizePage 页码从 1 开始，每页最多 100 条
func normalizePage(page, pageSize int) (int, int) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}
	return page, pageSize
}

// excerpt 按字符截断
func excerpt(s string, n int) string {
	r := []rune(strings.TrimSpace(s))
	if len(r) <= n {
		return string(r)
	}
	return strings.TrimSpace(string(r[:n])) + "…"
}
