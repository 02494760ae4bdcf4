package models

import (
	"time"

	"gorm.io/gorm"
)

// Entry is a time-tracking record in the local ledger. EndedAt is NULL
// while the activity is running.
type Entry struct {
	ID        uint           `gorm:"primaryKey" json:"id"`
	Category  string         `gorm:"not null;index" json:"category"`
	Activity  string         `gorm:"not null" json:"activity"`
	StartedAt time.Time      `gorm:"column:started_at;not null;index" json:"start"`
	EndedAt   *time.Time     `gorm:"column:ended_at;index" json:"end"`
	CreatedAt time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

type DaySummary struct {
	Day          string  `json:"day"` // YYYY-MM-DD
	TotalSeconds int64   `json:"total_seconds"`
	TotalHours   float64 `json:"total_hours"`
	EntryCount   int     `json:"entry_count"`
	Open         bool    `json:"open"`
}

type ReportPeriod struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
	Type  string    `json:"type"` // "day", "week", "month"
}

type Report struct {
	Period       ReportPeriod `json:"period"`
	Days         []DaySummary `json:"days"`
	TotalSeconds int64        `json:"total_seconds"`
	TotalMinutes float64      `json:"total_minutes"`
	TotalHours   float64      `json:"total_hours"`
	GeneratedAt  time.Time    `json:"generated_at"`
}
