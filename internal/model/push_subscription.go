package model

import "time"

// PushSubscription holds the information for a browser push subscription.
// Every subscription receives all enabled alert categories; filtering happens
// per category in the deduplicator, not per subscription.
type PushSubscription struct {
	Endpoint  string    `gorm:"primaryKey"`
	P256DH    string    `gorm:"column:p256dh;not null"`
	Auth      string    `gorm:"not null"`
	CreatedAt time.Time `gorm:"not null"`
}
