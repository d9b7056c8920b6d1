package model

import (
	"time"
)

type Receipt struct {
	ID              int64     `gorm:"primaryKey" json:"id"`
	ReceiptNumber   string    `gorm:"size:40;uniqueIndex;not null" json:"receipt_number"`
	UserID          *int64    `gorm:"index" json:"user_id,omitempty"`
	CustomerName    string    `gorm:"size:100" json:"customer_name"`
	CustomerEmail   string    `gorm:"size:255" json:"customer_email"`
	AmountCents     int64     `json:"amount_cents"`
	Currency        string    `gorm:"size:3" json:"currency"`
	PaymentMethod   string    `gorm:"size:50" json:"payment_method"`
	Description     string    `gorm:"size:255" json:"description"`
	Tier            string    `gorm:"size:20" json:"tier,omitempty"`
	BillingPeriod   string    `gorm:"size:20" json:"billing_period,omitempty"`
	StripeInvoiceID *string   `gorm:"size:100;uniqueIndex" json:"-"`
	ArchiveKey      string    `gorm:"size:500" json:"-"`
	IssuedAt        time.Time `gorm:"index" json:"issued_at"`
	CreatedAt       time.Time `json:"created_at"`
}

func (Receipt) TableName() string {
	return "receipts"
}
