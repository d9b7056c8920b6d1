package dto

// CreateReflectionRequest 生成反思请求
type CreateReflectionRequest struct {
	Dream        string `json:"dream" binding:"required,max=4000"`
	Plan         string `json:"plan" binding:"required,max=4000"`
	Relationship string `json:"relationship" binding:"required,max=4000"`
	Offering     string `json:"offering" binding:"required,max=4000"`
	Tone         string `json:"tone,omitempty"`
	IsPremium    bool   `json:"is_premium,omitempty"`
	DreamID      *int64 `json:"dream_id,omitempty"`
	Title        string `json:"title,omitempty" binding:"omitempty,max=200"`
}

// CreateReflectionResponse 生成结果和最新配额
type CreateReflectionResponse struct {
	Reflection *ReflectionDetail `json:"reflection"`
	Usage      *QuotaInfo        `json:"usage"`
}

// ReflectionListQuery 列表筛选
type ReflectionListQuery struct {
	Page      int    `form:"page"`
	PageSize  int    `form:"page_size"`
	DreamID   *int64 `form:"dream_id"`
	Tone      string `form:"tone"`
	IsPremium *bool  `form:"is_premium"`
	Search    string `form:"search"`
}

// ReflectionListItem 列表项
type ReflectionListItem struct {
	ID                int64    `json:"id"`
	DreamID           *int64   `json:"dream_id,omitempty"`
	Title             string   `json:"title"`
	Excerpt           string   `json:"excerpt"`
	Tone              string   `json:"tone"`
	IsPremium         bool     `json:"is_premium"`
	Tags              []string `json:"tags"`
	WordCount         int      `json:"word_count"`
	EstimatedReadTime int      `json:"estimated_read_time"`
	ViewCount         int      `json:"view_count"`
	Rating            *int     `json:"rating,omitempty"`
	CreatedAt         string   `json:"created_at"`
}

// ReflectionDetail 详情
type ReflectionDetail struct {
	ID                int64    `json:"id"`
	DreamID           *int64   `json:"dream_id,omitempty"`
	Title             string   `json:"title"`
	Dream             string   `json:"dream"`
	Plan              string   `json:"plan"`
	Relationship      string   `json:"relationship"`
	Offering          string   `json:"offering"`
	AIResponse        string   `json:"ai_response"`
	Tone              string   `json:"tone"`
	IsPremium         bool     `json:"is_premium"`
	Tags              []string `json:"tags"`
	WordCount         int      `json:"word_count"`
	EstimatedReadTime int      `json:"estimated_read_time"`
	ViewCount         int      `json:"view_count"`
	Rating            *int     `json:"rating,omitempty"`
	UserFeedback      *string  `json:"user_feedback,omitempty"`
	CreatedAt         string   `json:"created_at"`
	UpdatedAt         string   `json:"updated_at"`
}

// UpdateReflectionRequest 只允许修改标题和标签
type UpdateReflectionRequest struct {
	Title *string  `json:"title,omitempty" binding:"omitempty,max=200"`
	Tags  []string `json:"tags,omitempty" binding:"omitempty,max=10,dive,max=30"`
}

// RateReflectionRequest 评分
type RateReflectionRequest struct {
	Rating   int     `json:"rating" binding:"required,min=1,max=10"`
	Feedback *string `json:"feedback,omitempty" binding:"omitempty,max=2000"`
}
