package views

import (
	"context"
	"encoding/json"

	"gorm.io/gorm/clause"

	"github.com/HousDev/viewtrack/models"
	"github.com/HousDev/viewtrack/utils"
)

// RecordInput is a fully normalized ingestion request: the HTTP layer has
// already derived the client IP and pulled headers apart.
type RecordInput struct {
	PropertyID    *uint
	Slug          string
	SessionID     string
	DedupeKey     string
	Source        string
	Path          string
	Referrer      string
	IP            string
	UserAgent     string
	WindowMinutes int
}

// RecordResult reports what happened to one ingestion request.
type RecordResult struct {
	Inserted bool
	Deduped  bool
	EventID  uint
	Totals   *Totals
}

// Record persists one view event unless a matching event already exists
// inside the dedup window.
//
// Two layers of protection: the rolling-window query (handles arbitrary
// windows), then an atomic claim on (property, identity, bucket) that closes
// the race between two concurrent identical requests passing the query
// before either insert lands.
func (e *Engine) Record(ctx context.Context, in RecordInput) (RecordResult, error) {
	res := ResolveIdentity(in.SessionID, in.DedupeKey, in.IP, in.UserAgent)

	if in.PropertyID != nil {
		if e.RecentlyViewed(ctx, *in.PropertyID, res, in.WindowMinutes) {
			return RecordResult{Deduped: true}, nil
		}
		if res.Identity.Kind != IdentityNone && !e.claim(ctx, *in.PropertyID, res.Identity, in.WindowMinutes) {
			return RecordResult{Deduped: true}, nil
		}
	}

	now := e.now()
	ev := models.ViewEvent{
		PropertyID: in.PropertyID,
		Slug:       optional(in.Slug),
		EventType:  models.EventTypeView,
		Payload:    encodePayload(in),
		IP:         optional(res.IP),
		UserAgent:  optional(res.UserAgent),
		Referrer:   optional(in.Referrer),
		SessionID:  optional(res.SessionID),
		DedupeKey:  optional(res.DedupeKey),
		CreatedAt:  now,
	}

	// The page render already happened; a client that walks away must not
	// abort the write. Detach from the caller's cancellation but keep our
	// own timeout.
	wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), writeTimeout)
	defer cancel()

	if err := e.db.WithContext(wctx).Create(&ev).Error; err != nil {
		return RecordResult{}, err
	}

	out := RecordResult{Inserted: true, EventID: ev.ID}
	if in.PropertyID != nil {
		if totals, err := e.PropertyViews(ctx, *in.PropertyID); err == nil {
			out.Totals = &totals
		}
	}
	return out, nil
}

// claim takes the atomic insert-if-absent guard. Returns false only when a
// concurrent request already holds the same (property, identity, bucket) row.
// Claim-table errors fail open, matching the checker's policy.
func (e *Engine) claim(ctx context.Context, propertyID uint, id Identity, minutes int) bool {
	window := e.windowFor(minutes)
	now := e.now()
	row := models.ViewDedupClaim{
		PropertyID:  propertyID,
		Identity:    id.Key(),
		BucketStart: now.Truncate(window),
		CreatedAt:   now,
	}

	wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), writeTimeout)
	defer cancel()

	tx := e.db.WithContext(wctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "property_id"}, {Name: "identity"}, {Name: "bucket_start"},
		},
		DoNothing: true,
	}).Create(&row)

	if tx.Error != nil {
		if utils.Sugar != nil {
			utils.Sugar.Warnf("dedup claim failed, proceeding without guard: property=%d err=%v", propertyID, tx.Error)
		}
		return true
	}
	return tx.RowsAffected > 0
}

// encodePayload keeps the original dedupe inputs and request context as an
// opaque audit blob. Never consulted by the dedup logic.
func encodePayload(in RecordInput) string {
	payload := map[string]string{}
	if in.Path != "" {
		payload["path"] = in.Path
	}
	if in.Source != "" {
		payload["source"] = in.Source
	}
	if in.Referrer != "" {
		payload["referrer"] = in.Referrer
	}
	if in.DedupeKey != "" {
		payload["dedupe_key"] = in.DedupeKey
	}
	if len(payload) == 0 {
		return ""
	}
	b, err := json.Marshal(payload)
	if err != nil {
		return ""
	}
	return string(b)
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// Retention deletes dedup claims whose bucket can no longer influence any
// window, and, when keepDays > 0, view events older than the retention
// horizon. Row deletion is administrative and lives outside the normal
// append-only lifecycle.
func (e *Engine) Retention(ctx context.Context, keepDays int) error {
	claimCutoff := e.now().Add(-2 * MaxWindow)
	if err := e.db.WithContext(ctx).
		Where("bucket_start < ?", claimCutoff).
		Delete(&models.ViewDedupClaim{}).Error; err != nil {
		return err
	}
	if keepDays > 0 {
		eventCutoff := e.now().AddDate(0, 0, -keepDays)
		if err := e.db.WithContext(ctx).
			Where("event_type = ? AND created_at < ?", models.EventTypeView, eventCutoff).
			Delete(&models.ViewEvent{}).Error; err != nil {
			return err
		}
	}
	return nil
}
