package model

import (
	"time"

	"gorm.io/datatypes"
)

type EvolutionReport struct {
	ID              int64                      `gorm:"primaryKey" json:"id"`
	UserID          int64                      `gorm:"not null;index" json:"user_id"`
	DreamID         *int64                     `gorm:"index" json:"dream_id,omitempty"`
	Analysis        string                     `gorm:"type:text" json:"analysis"`
	AnalysisHTML    string                     `gorm:"type:text" json:"analysis_html"`
	ReflectionIDs   datatypes.JSONSlice[int64] `json:"reflection_ids"`
	ReflectionCount int                        `json:"reflection_count"`
	PeriodStart     time.Time                  `json:"period_start"`
	PeriodEnd       time.Time                  `json:"period_end"`
	Strategy        string                     `gorm:"size:20" json:"strategy"`
	IsPremium       bool                       `gorm:"default:false" json:"is_premium"`
	InputTokens     int                        `json:"-"`
	OutputTokens    int                        `json:"-"`
	CreatedAt       time.Time                  `gorm:"index" json:"created_at"`
}

func (EvolutionReport) TableName() string {
	return "evolution_reports"
}
