package model

import "time"

// Setting is one durable key-value row. Values are JSON-encoded so the store
// stays schema-free for region, grace period, preferences, timers and the
// shown-notification ring.
type Setting struct {
	Key       string    `gorm:"primaryKey;size:128"`
	Value     string    `gorm:"not null"`
	UpdatedAt time.Time `gorm:"not null"`
}

// AutomationEvent is an append-only log row describing one automation
// decision, exposed read-only through the API.
type AutomationEvent struct {
	ID        int64     `gorm:"autoIncrement;primaryKey" json:"id"`
	Kind      string    `gorm:"size:64;not null;index" json:"kind"`
	OutletID  string    `gorm:"size:64" json:"outletId,omitempty"`
	Detail    string    `gorm:"size:512" json:"detail"`
	CreatedAt time.Time `gorm:"not null;index" json:"createdAt"`
}
