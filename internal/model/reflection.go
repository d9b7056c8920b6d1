package model

import (
	"time"
)

// 语气
const (
	ToneGentle  = "gentle"
	ToneIntense = "intense"
	ToneFusion  = "fusion"
)

// NormalizeTone 无效或缺省时回落到 fusion
func NormalizeTone(tone string) string {
	switch tone {
	case ToneGentle, ToneIntense, ToneFusion:
		return tone
	}
	return ToneFusion
}

type Reflection struct {
	ID                int64       `gorm:"primaryKey" json:"id"`
	UserID            int64       `gorm:"not null;index" json:"user_id"`
	DreamID           *int64      `gorm:"index" json:"dream_id,omitempty"`
	Dream             string      `gorm:"type:text;not null" json:"dream"`
	Plan              string      `gorm:"type:text;not null" json:"plan"`
	Relationship      string      `gorm:"type:text;not null" json:"relationship"`
	Offering          string      `gorm:"type:text;not null" json:"offering"`
	AIResponse        string      `gorm:"type:text" json:"ai_response"`
	Tone              string      `gorm:"size:20;default:fusion" json:"tone"`
	IsPremium         bool        `gorm:"default:false" json:"is_premium"`
	Title             string      `gorm:"size:200" json:"title"`
	Tags              StringArray `gorm:"type:json" json:"tags"`
	WordCount         int         `json:"word_count"`
	EstimatedReadTime int         `json:"estimated_read_time"`
	ViewCount         int         `gorm:"default:0" json:"view_count"`
	Rating            *int        `json:"rating,omitempty"`
	UserFeedback      *string     `gorm:"type:text" json:"user_feedback,omitempty"`
	InputTokens       int         `json:"-"`
	OutputTokens      int         `json:"-"`
	ModelName         string      `gorm:"size:100" json:"-"`
	CreatedAt         time.Time   `gorm:"index" json:"created_at"`
	UpdatedAt         time.Time   `json:"updated_at"`
}

func (Reflection) TableName() string {
	return "reflections"
}
