package models

import "time"

// Setting keys read by the matching engine on every invocation.
const (
	SettingTimeWindowMinutes     = "payment_time_window_minutes"
	SettingNameSimilarityPercent = "name_similarity_threshold"
)

// Setting is a live-tunable key/value row. The engine never caches
// these across invocations so admin changes apply without a restart.
type Setting struct {
	Key   string `gorm:"primaryKey"`
	Value string

	CreatedAt time.Time
	UpdatedAt time.Time
}
