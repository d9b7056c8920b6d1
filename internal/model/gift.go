package model

import (
	"time"
)

type SubscriptionGift struct {
	ID               int64      `gorm:"primaryKey" json:"id"`
	Code             string     `gorm:"size:20;uniqueIndex;not null" json:"code"`
	GiverUserID      *int64     `gorm:"index" json:"giver_user_id,omitempty"`
	GiverName        string     `gorm:"size:100" json:"giver_name"`
	GiverEmail       string     `gorm:"size:255" json:"giver_email"`
	RecipientName    string     `gorm:"size:100" json:"recipient_name"`
	RecipientEmail   string     `gorm:"size:255;not null" json:"recipient_email"`
	Tier             string     `gorm:"size:20;not null" json:"tier"`
	DurationMonths   int        `gorm:"not null" json:"duration_months"`
	PersonalMessage  string     `gorm:"type:text" json:"personal_message,omitempty"`
	PaymentReference string     `gorm:"size:100;index" json:"-"`
	IsRedeemed       bool       `gorm:"default:false;index" json:"is_redeemed"`
	RedeemedBy       *int64     `json:"redeemed_by,omitempty"`
	RedeemedAt       *time.Time `json:"redeemed_at,omitempty"`
	ExpiresAt        time.Time  `gorm:"index" json:"expires_at"`
	CreatedAt        time.Time  `json:"created_at"`
}

func (SubscriptionGift) TableName() string {
	return "subscription_gifts"
}
