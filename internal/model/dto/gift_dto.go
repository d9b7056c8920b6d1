package dto

// CreateGiftRequest 赠送订阅
type CreateGiftRequest struct {
	RecipientName   string `json:"recipient_name" binding:"required,max=100"`
	RecipientEmail  string `json:"recipient_email" binding:"required,email,max=255"`
	Tier            string `json:"tier" binding:"required,oneof=essential premium"`
	DurationMonths  int    `json:"duration_months" binding:"required,min=1,max=24"`
	PersonalMessage string `json:"personal_message,omitempty" binding:"omitempty,max=500"`
	GiverName       string `json:"giver_name,omitempty" binding:"omitempty,max=100"`
	GiverEmail      string `json:"giver_email,omitempty" binding:"omitempty,email,max=255"`
}

// RedeemGiftRequest 兑换礼物码
type RedeemGiftRequest struct {
	Code string `json:"code" binding:"required,max=20"`
}

// GiftInfo 礼物信息，兑换前公开查看
type GiftInfo struct {
	Code            string `json:"code"`
	GiverName       string `json:"giver_name"`
	RecipientName   string `json:"recipient_name"`
	RecipientEmail  string `json:"recipient_email,omitempty"`
	Tier            string `json:"tier"`
	DurationMonths  int    `json:"duration_months"`
	PersonalMessage string `json:"personal_message,omitempty"`
	IsRedeemed      bool   `json:"is_redeemed"`
	RedeemedAt      string `json:"redeemed_at,omitempty"`
	ExpiresAt       string `json:"expires_at"`
	CreatedAt       string `json:"created_at"`
}

// RedeemGiftResponse 兑换结果
type RedeemGiftResponse struct {
	Tier      string    `json:"tier"`
	ExpiresAt string    `json:"expires_at"`
	User      *UserInfo `json:"user"`
}
