package model

import (
	"time"
)

// 梦想状态
const (
	DreamActive   = "active"
	DreamAchieved = "achieved"
	DreamArchived = "archived"
	DreamReleased = "released"
)

type Dream struct {
	ID              int64      `gorm:"primaryKey" json:"id"`
	UserID          int64      `gorm:"not null;index" json:"user_id"`
	Title           string     `gorm:"size:200;not null" json:"title"`
	Description     string     `gorm:"type:text" json:"description"`
	TargetDate      *time.Time `json:"target_date,omitempty"`
	Category        string     `gorm:"size:50" json:"category,omitempty"`
	Priority        int        `gorm:"default:5" json:"priority"`
	Status          string     `gorm:"size:20;default:active;index" json:"status"`
	ReflectionCount int        `gorm:"default:0" json:"reflection_count"`
	AchievedAt      *time.Time `json:"achieved_at,omitempty"`
	ArchivedAt      *time.Time `json:"archived_at,omitempty"`
	ReleasedAt      *time.Time `json:"released_at,omitempty"`
	CreatedAt       time.Time  `gorm:"index" json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

func (Dream) TableName() string {
	return "dreams"
}
