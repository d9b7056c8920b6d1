package dto

// CreateEvolutionRequest 生成进化报告，dream_id 为空时覆盖全部反思
type CreateEvolutionRequest struct {
	DreamID *int64 `json:"dream_id,omitempty"`
}

// EligibilityInfo 是否达到生成门槛
type EligibilityInfo struct {
	Eligible bool   `json:"eligible"`
	Have     int    `json:"have"`
	Need     int    `json:"need"`
	Tier     string `json:"tier"`
	DreamID  *int64 `json:"dream_id,omitempty"`
}

// EvolutionListItem 列表项
type EvolutionListItem struct {
	ID              int64  `json:"id"`
	DreamID         *int64 `json:"dream_id,omitempty"`
	Excerpt         string `json:"excerpt"`
	ReflectionCount int    `json:"reflection_count"`
	PeriodStart     string `json:"period_start"`
	PeriodEnd       string `json:"period_end"`
	Strategy        string `json:"strategy"`
	IsPremium       bool   `json:"is_premium"`
	CreatedAt       string `json:"created_at"`
}

// EvolutionDetail 报告详情
type EvolutionDetail struct {
	EvolutionListItem
	Analysis      string  `json:"analysis"`
	AnalysisHTML  string  `json:"analysis_html"`
	ReflectionIDs []int64 `json:"reflection_ids"`
}
