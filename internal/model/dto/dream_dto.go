package dto

// CreateDreamRequest 创建梦想
type CreateDreamRequest struct {
	Title       string `json:"title" binding:"required,max=200"`
	Description string `json:"description,omitempty" binding:"omitempty,max=5000"`
	TargetDate  string `json:"target_date,omitempty" binding:"omitempty,datetime=2006-01-02"`
	Category    string `json:"category,omitempty" binding:"omitempty,max=50"`
	Priority    int    `json:"priority,omitempty" binding:"omitempty,min=1,max=10"`
}

// UpdateDreamRequest 更新梦想，空字符串的 target_date 表示清除
type UpdateDreamRequest struct {
	Title       *string `json:"title,omitempty" binding:"omitempty,min=1,max=200"`
	Description *string `json:"description,omitempty" binding:"omitempty,max=5000"`
	TargetDate  *string `json:"target_date,omitempty"`
	Category    *string `json:"category,omitempty" binding:"omitempty,max=50"`
	Priority    *int    `json:"priority,omitempty" binding:"omitempty,min=1,max=10"`
}

// UpdateDreamStatusRequest 状态只能从 active 迁出
type UpdateDreamStatusRequest struct {
	Status string `json:"status" binding:"required,oneof=achieved archived released"`
}

// DreamInfo 梦想信息
type DreamInfo struct {
	ID              int64  `json:"id"`
	Title           string `json:"title"`
	Description     string `json:"description"`
	TargetDate      string `json:"target_date,omitempty"`
	DaysLeft        *int   `json:"days_left,omitempty"`
	Category        string `json:"category,omitempty"`
	Priority        int    `json:"priority"`
	Status          string `json:"status"`
	ReflectionCount int    `json:"reflection_count"`
	AchievedAt      string `json:"achieved_at,omitempty"`
	ArchivedAt      string `json:"archived_at,omitempty"`
	ReleasedAt      string `json:"released_at,omitempty"`
	CreatedAt       string `json:"created_at"`
	UpdatedAt       string `json:"updated_at"`
}
