package model

import (
	"time"
)

// 订阅套餐
const (
	TierFree      = "free"
	TierEssential = "essential"
	TierPremium   = "premium"
)

// 订阅状态
const (
	SubscriptionActive   = "active"
	SubscriptionPastDue  = "past_due"
	SubscriptionCanceled = "canceled"
	SubscriptionExpired  = "expired"
)

// 计费周期
const (
	PeriodMonthly = "monthly"
	PeriodYearly  = "yearly"
)

// ValidTier 是否为已知套餐
func ValidTier(tier string) bool {
	switch tier {
	case TierFree, TierEssential, TierPremium:
		return true
	}
	return false
}

// ValidPeriod 是否为已知计费周期
func ValidPeriod(period string) bool {
	return period == PeriodMonthly || period == PeriodYearly
}

type User struct {
	ID                       int64      `gorm:"primaryKey" json:"id"`
	Email                    string     `gorm:"size:255;uniqueIndex;not null" json:"email"`
	PasswordHash             *string    `gorm:"size:255" json:"-"`
	Name                     string     `gorm:"size:100" json:"name"`
	GithubID                 *string    `gorm:"column:github_id;size:50;uniqueIndex" json:"-"`
	SubscriptionTier         string     `gorm:"size:20;default:free;index" json:"subscription_tier"`
	SubscriptionStatus       string     `gorm:"size:20;default:active" json:"subscription_status"`
	SubscriptionPeriod       string     `gorm:"size:20" json:"subscription_period,omitempty"`
	SubscriptionExpiresAt    *time.Time `gorm:"index" json:"subscription_expires_at,omitempty"`
	StripeCustomerID         *string    `gorm:"size:100;uniqueIndex" json:"-"`
	StripeSubscriptionID     *string    `gorm:"size:100;index" json:"-"`
	ReflectionCountThisMonth int        `gorm:"default:0" json:"reflection_count_this_month"`
	TotalReflections         int        `gorm:"default:0" json:"total_reflections"`
	CurrentMonthYear         string     `gorm:"size:7" json:"current_month_year"`
	IsCreator                bool       `gorm:"default:false" json:"is_creator"`
	IsAdmin                  bool       `gorm:"default:false" json:"is_admin"`
	EmailVerified            bool       `gorm:"default:false" json:"email_verified"`
	LastSignInAt             *time.Time `json:"last_sign_in_at,omitempty"`
	CreatedAt                time.Time  `json:"created_at"`
	UpdatedAt                time.Time  `json:"updated_at"`
}

func (User) TableName() string {
	return "users"
}

// Unlimited 创作者和管理员不受配额限制
func (u *User) Unlimited() bool {
	return u.IsCreator || u.IsAdmin
}

// MonthKey 返回 "YYYY-MM" 形式的月份标记
func MonthKey(t time.Time) string {
	return t.UTC().Format("2006-01")
}
