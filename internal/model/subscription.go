package model

import (
	"time"
)

// 订阅来源
const (
	SourceStripe = "stripe"
	SourceGift   = "gift"
)

// Subscription 每次套餐生效的记录
type Subscription struct {
	ID        int64      `gorm:"primaryKey" json:"id"`
	UserID    int64      `gorm:"not null;index" json:"user_id"`
	Tier      string     `gorm:"size:20;not null" json:"tier"`
	Period    string     `gorm:"size:20" json:"period,omitempty"`
	Source    string     `gorm:"size:20;not null" json:"source"` // stripe, gift
	Reference string     `gorm:"size:100" json:"reference,omitempty"`
	StartedAt time.Time  `gorm:"not null" json:"started_at"`
	ExpiresAt *time.Time `gorm:"index" json:"expires_at,omitempty"`
	Status    string     `gorm:"size:20;default:active;index" json:"status"` // active, canceled, expired
	CreatedAt time.Time  `json:"created_at"`
}

func (Subscription) TableName() string {
	return "subscriptions"
}

// AllModels 需要迁移的模型
func AllModels() []interface{} {
	return []interface{}{
		&User{},
		&Dream{},
		&Reflection{},
		&EvolutionReport{},
		&SubscriptionGift{},
		&Receipt{},
		&UsageTracking{},
		&Subscription{},
	}
}
