// Package payment 对接支付服务商，业务层只看到这里的类型
package payment

import (
	"context"
	"errors"
	"time"
)

// 支付事件类型
const (
	EventCheckoutCompleted   = "checkout.session.completed"
	EventSubscriptionUpdated = "customer.subscription.updated"
	EventSubscriptionDeleted = "customer.subscription.deleted"
	EventInvoicePaid         = "invoice.payment_succeeded"
	EventInvoiceFailed       = "invoice.payment_failed"
)

// 结账模式
const (
	ModeSubscription = "subscription"
	ModePayment      = "payment"
)

var (
	ErrNotConfigured    = errors.New("payment provider not configured")
	ErrInvalidSignature = errors.New("invalid webhook signature")
	ErrInvalidPayload   = errors.New("invalid webhook payload")
)

// CheckoutParams 创建结账会话的参数
type CheckoutParams struct {
	Mode          string
	CustomerID    string
	CustomerEmail string
	PriceID       string
	Quantity      int64
	SuccessURL    string
	CancelURL     string
	ReferenceID   string
	Metadata      map[string]string
}

// CheckoutSession 结账会话
type CheckoutSession struct {
	ID  string
	URL string
}

// Event 经过签名校验并展开的 webhook 事件
type Event struct {
	ID   string
	Type string

	CustomerID     string
	CustomerEmail  string
	CustomerName   string
	SubscriptionID string
	Metadata       map[string]string

	// checkout.session.completed
	SessionID string
	Mode      string

	// customer.subscription.*
	Status            string
	PriceID           string
	Interval          string // month, year
	CurrentPeriodEnd  *time.Time
	CancelAtPeriodEnd bool

	// invoice.*
	InvoiceID     string
	AmountCents   int64
	Currency      string
	Description   string
	PaymentMethod string
	BillingReason string
}

// Provider 支付服务商
type Provider interface {
	EnsureCustomer(ctx context.Context, email, name string, userID int64) (string, error)
	CreateCheckoutSession(ctx context.Context, params *CheckoutParams) (*CheckoutSession, error)
	CreatePortalSession(ctx context.Context, customerID, returnURL string) (string, error)
	ParseWebhook(payload []byte, signature string) (*Event, error)
}
