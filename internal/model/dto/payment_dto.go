package dto

// CheckoutRequest 订阅结账
type CheckoutRequest struct {
	Tier   string `json:"tier" binding:"required,oneof=essential premium"`
	Period string `json:"period" binding:"required,oneof=monthly yearly"`
}

// CheckoutResponse 结账会话
type CheckoutResponse struct {
	SessionID string `json:"session_id"`
	URL       string `json:"url"`
}

// PortalResponse 账单管理页
type PortalResponse struct {
	URL string `json:"url"`
}

// ReceiptInfo 收据
type ReceiptInfo struct {
	ID            int64  `json:"id"`
	ReceiptNumber string `json:"receipt_number"`
	CustomerName  string `json:"customer_name"`
	CustomerEmail string `json:"customer_email"`
	AmountCents   int64  `json:"amount_cents"`
	Amount        string `json:"amount"`
	Currency      string `json:"currency"`
	PaymentMethod string `json:"payment_method"`
	Description   string `json:"description"`
	Tier          string `json:"tier,omitempty"`
	BillingPeriod string `json:"billing_period,omitempty"`
	ArchiveURL    string `json:"archive_url,omitempty"`
	IssuedAt      string `json:"issued_at"`
}
