package views

import (
	"context"

	"github.com/HousDev/viewtrack/models"
	"github.com/HousDev/viewtrack/utils"
)

// RecentlyViewed reports whether a matching view already exists for the
// property inside the window.
//
// Fail-open: a store error is logged and treated as "no duplicate found" so
// that analytics trouble never blocks page rendering. The trade is a possible
// overcount while the store is unhealthy.
func (e *Engine) RecentlyViewed(ctx context.Context, propertyID uint, res Resolved, minutes int) bool {
	if res.Identity.Kind == IdentityNone {
		return false
	}

	cutoff := e.now().Add(-e.windowFor(minutes))

	qctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	q := e.db.WithContext(qctx).Model(&models.ViewEvent{}).
		Where("event_type = ?", models.EventTypeView).
		Where("property_id = ?", propertyID).
		Where("created_at >= ?", cutoff)

	switch {
	case res.SessionID != "" && res.DedupeKey != "":
		q = q.Where("session_id = ? OR dedupe_key = ?", res.SessionID, res.DedupeKey)
	case res.SessionID != "":
		q = q.Where("session_id = ?", res.SessionID)
	case res.DedupeKey != "":
		// matches rows written by other clients that supplied the same key
		q = q.Where("dedupe_key = ?", res.DedupeKey)
	default:
		// Network fallback: only rows that themselves lack a session/dedupe
		// identity are comparable to an anonymous request.
		q = q.Where("session_id IS NULL AND dedupe_key IS NULL AND ip = ? AND user_agent = ?", res.IP, res.UserAgent)
	}

	var n int64
	if err := q.Count(&n).Error; err != nil {
		if utils.Sugar != nil {
			utils.Sugar.Warnf("recent-view check failed, proceeding without dedup: property=%d err=%v", propertyID, err)
		}
		return false
	}
	return n > 0
}
