package dto

// UserInfo 用户信息（返回给前端）
type UserInfo struct {
	ID                    int64      `json:"id"`
	Email                 string     `json:"email"`
	Name                  string     `json:"name"`
	SubscriptionTier      string     `json:"subscription_tier"`
	SubscriptionStatus    string     `json:"subscription_status"`
	SubscriptionPeriod    string     `json:"subscription_period,omitempty"`
	SubscriptionExpiresAt string     `json:"subscription_expires_at,omitempty"`
	TotalReflections      int        `json:"total_reflections"`
	IsCreator             bool       `json:"is_creator,omitempty"`
	IsAdmin               bool       `json:"is_admin,omitempty"`
	EmailVerified         bool       `json:"email_verified"`
	HasPassword           bool       `json:"has_password"`
	Usage                 *QuotaInfo `json:"usage,omitempty"`
	CreatedAt             string     `json:"created_at,omitempty"`
}

// QuotaInfo 本月配额，-1 表示不限
type QuotaInfo struct {
	Tier       string `json:"tier"`
	MonthYear  string `json:"month_year"`
	Limit      int    `json:"limit"`
	Used       int    `json:"used"`
	Remaining  int    `json:"remaining"`
	CanReflect bool   `json:"can_reflect"`
	Unlimited  bool   `json:"unlimited"`
	ResetAt    string `json:"reset_at"`
}

// UsageHistoryItem 月度用量
type UsageHistoryItem struct {
	MonthYear          string `json:"month_year"`
	ReflectionsCreated int    `json:"reflections_created"`
	EvolutionReports   int    `json:"evolution_reports"`
	InputTokens        int64  `json:"input_tokens"`
	OutputTokens       int64  `json:"output_tokens"`
}

// UpdateProfileRequest 更新用户信息请求
type UpdateProfileRequest struct {
	Name *string `json:"name,omitempty" binding:"omitempty,min=1,max=100"`
}

// PlanInfo 套餐说明
type PlanInfo struct {
	Tier                string `json:"tier"`
	MonthlyReflections  int    `json:"monthly_reflections"`
	EvolutionThreshold  int    `json:"evolution_threshold"`
	EvolutionSampleSize int    `json:"evolution_sample_size"`
	MaxActiveDreams     int    `json:"max_active_dreams"`
	MonthlyPriceCents   int64  `json:"monthly_price_cents"`
	YearlyPriceCents    int64  `json:"yearly_price_cents"`
}
