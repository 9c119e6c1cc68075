package models

import "time"

// EventTypeView is the only event type this service writes. The table may
// carry other event types written by neighbouring services; every query here
// filters on it.
const EventTypeView = "view"

// ViewEvent is one recorded page-view attempt. Rows are append-only: nothing
// in normal operation ever updates or deletes them (the retention sweeper is
// an administrative exception).
type ViewEvent struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	PropertyID *uint     `gorm:"index:idx_view_events_prop_time" json:"property_id"`
	Slug       *string   `gorm:"size:255;index" json:"slug"`
	EventType  string    `gorm:"size:32;not null;default:'view';index" json:"event_type"`
	Payload    string    `gorm:"type:text" json:"payload"` // JSON blob of auxiliary context, audit only
	IP         *string   `gorm:"size:45" json:"ip"`
	UserAgent  *string   `gorm:"size:512" json:"user_agent"`
	Referrer   *string   `gorm:"size:512" json:"referrer"`
	SessionID  *string   `gorm:"size:191;index" json:"session_id"`
	DedupeKey  *string   `gorm:"size:191;index" json:"dedupe_key"`
	CreatedAt  time.Time `gorm:"index:idx_view_events_prop_time" json:"created_at"`
}

func (ViewEvent) TableName() string {
	return "view_events"
}

// ViewDedupClaim is an atomic insert-if-absent guard against the
// check-then-insert race: two concurrent requests carrying the same resolved
// identity inside the same window bucket cannot both claim the row, so at
// most one of them inserts a ViewEvent.
type ViewDedupClaim struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	PropertyID  uint      `gorm:"not null;uniqueIndex:idx_dedup_claim" json:"property_id"`
	Identity    string    `gorm:"size:191;not null;uniqueIndex:idx_dedup_claim" json:"identity"`
	BucketStart time.Time `gorm:"not null;uniqueIndex:idx_dedup_claim" json:"bucket_start"`
	CreatedAt   time.Time `json:"created_at"`
}

func (ViewDedupClaim) TableName() string {
	return "view_dedup_claims"
}
