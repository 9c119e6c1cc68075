// Package views implements the view-event ingestion and deduplication engine:
// identity resolution, the recent-view check, the event writer, and read-only
// aggregation over the append-only event store.
package views

import (
	"time"

	"gorm.io/gorm"
)

const (
	// DefaultWindow suppresses repeat views from the same identity for one
	// minute unless the caller asks for a larger window.
	DefaultWindow = time.Minute
	// MaxWindow caps caller-supplied windows at one week.
	MaxWindow = 7 * 24 * time.Hour

	queryTimeout = 3 * time.Second
	writeTimeout = 5 * time.Second
)

// Engine owns all reads and writes against the view-event store. All
// cross-request coordination happens through the database; the engine itself
// holds no mutable state.
type Engine struct {
	db     *gorm.DB
	window time.Duration
	now    func() time.Time
}

// NewEngine creates an engine bound to the given database handle.
// defaultWindow <= 0 falls back to DefaultWindow.
func NewEngine(db *gorm.DB, defaultWindow time.Duration) *Engine {
	if defaultWindow <= 0 {
		defaultWindow = DefaultWindow
	}
	return &Engine{
		db:     db,
		window: defaultWindow,
		now:    time.Now,
	}
}

// windowFor converts a caller-supplied minutes value into an effective dedup
// window, clamped to [1 minute, MaxWindow]. Zero means the configured default.
func (e *Engine) windowFor(minutes int) time.Duration {
	if minutes <= 0 {
		return e.window
	}
	w := time.Duration(minutes) * time.Minute
	if w > MaxWindow {
		return MaxWindow
	}
	return w
}
