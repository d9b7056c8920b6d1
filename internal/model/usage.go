package model

import (
	"time"
)

// UsageTracking 按月统计的用量
type UsageTracking struct {
	ID                 int64     `gorm:"primaryKey" json:"id"`
	UserID             int64     `gorm:"not null;uniqueIndex:idx_usage_user_month" json:"user_id"`
	MonthYear          string    `gorm:"size:7;not null;uniqueIndex:idx_usage_user_month" json:"month_year"`
	ReflectionsCreated int       `gorm:"default:0" json:"reflections_created"`
	EvolutionReports   int       `gorm:"default:0" json:"evolution_reports"`
	InputTokens        int64     `gorm:"default:0" json:"input_tokens"`
	OutputTokens       int64     `gorm:"default:0" json:"output_tokens"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}

func (UsageTracking) TableName() string {
	return "usage_tracking"
}
