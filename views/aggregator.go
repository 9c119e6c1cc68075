package views

import (
	"context"

	"github.com/HousDev/viewtrack/models"
)

// Totals pairs the raw event count with the distinct-identity count.
// unique_views counts DISTINCT COALESCE(session_id, dedupe_key); rows with
// neither identity are raw-only, so unique_views <= total_views always holds.
type Totals struct {
	TotalViews  int64 `json:"total_views"`
	UniqueViews int64 `json:"unique_views"`
}

// RankedView is one row of a top/bottom ranking, grouped by property and slug.
type RankedView struct {
	PropertyID uint    `json:"property_id"`
	Slug       *string `json:"slug"`
	Views      int64   `json:"views"`
}

const uniqueCountExpr = "COUNT(DISTINCT COALESCE(session_id, dedupe_key))"

// Aggregation is fail-closed: reporting has no safe default to fabricate, so
// store errors propagate to the caller.

// TotalViews returns global counts across all properties, including events
// not scoped to any property.
func (e *Engine) TotalViews(ctx context.Context) (Totals, error) {
	qctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	var t totalsRow
	err := e.db.WithContext(qctx).Model(&models.ViewEvent{}).
		Select("COUNT(*) AS total_views, " + uniqueCountExpr + " AS unique_views").
		Where("event_type = ?", models.EventTypeView).
		Scan(&t).Error
	return Totals(t), err
}

// PropertyViews returns the counts scoped to one property.
func (e *Engine) PropertyViews(ctx context.Context, propertyID uint) (Totals, error) {
	qctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	var t totalsRow
	err := e.db.WithContext(qctx).Model(&models.ViewEvent{}).
		Select("COUNT(*) AS total_views, " + uniqueCountExpr + " AS unique_views").
		Where("event_type = ? AND property_id = ?", models.EventTypeView, propertyID).
		Scan(&t).Error
	return Totals(t), err
}

// PropertyUniqueViews returns only the distinct-identity count for one property.
func (e *Engine) PropertyUniqueViews(ctx context.Context, propertyID uint) (int64, error) {
	t, err := e.PropertyViews(ctx, propertyID)
	return t.UniqueViews, err
}

// TopViews returns up to limit properties ordered by descending view count.
// unique switches the counting mode from raw rows to distinct identities.
func (e *Engine) TopViews(ctx context.Context, limit int, unique bool) ([]RankedView, error) {
	return e.ranked(ctx, limit, unique, "views DESC, property_id ASC")
}

// BottomViews is TopViews in ascending order. The tie-break mirrors TopViews
// so that on a small dataset the two lists are exact reverses.
func (e *Engine) BottomViews(ctx context.Context, limit int, unique bool) ([]RankedView, error) {
	return e.ranked(ctx, limit, unique, "views ASC, property_id DESC")
}

func (e *Engine) ranked(ctx context.Context, limit int, unique bool, order string) ([]RankedView, error) {
	limit = clampLimit(limit)

	countExpr := "COUNT(*)"
	if unique {
		countExpr = uniqueCountExpr
	}

	qctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	rows := []RankedView{}
	err := e.db.WithContext(qctx).Model(&models.ViewEvent{}).
		Select("property_id, slug, " + countExpr + " AS views").
		Where("event_type = ? AND property_id IS NOT NULL", models.EventTypeView).
		Group("property_id, slug").
		Order(order).
		Limit(limit).
		Scan(&rows).Error
	return rows, err
}

func clampLimit(n int) int {
	if n < 1 {
		return 1
	}
	if n > 100 {
		return 100
	}
	return n
}

// totalsRow exists so the aliased SELECT scans cleanly.
type totalsRow struct {
	TotalViews  int64
	UniqueViews int64
}
