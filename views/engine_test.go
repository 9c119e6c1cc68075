package views

import (
	"context"
	"testing"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/HousDev/viewtrack/models"
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("get sql.DB: %v", err)
	}
	// single connection keeps the whole test on one in-memory database
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(&models.ViewEvent{}, &models.ViewDedupClaim{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return NewEngine(db, DefaultWindow)
}

func propertyRef(id uint) *uint { return &id }

func TestRecordIdempotentWithinWindow(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	in := RecordInput{PropertyID: propertyRef(42), SessionID: "s1", Slug: "sea-view-villa"}

	first, err := e.Record(ctx, in)
	if err != nil {
		t.Fatalf("first record: %v", err)
	}
	if !first.Inserted || first.Deduped {
		t.Fatalf("first record should insert, got %+v", first)
	}

	second, err := e.Record(ctx, in)
	if err != nil {
		t.Fatalf("second record: %v", err)
	}
	if second.Inserted || !second.Deduped {
		t.Fatalf("second record should dedupe, got %+v", second)
	}

	totals, err := e.TotalViews(ctx)
	if err != nil {
		t.Fatalf("totals: %v", err)
	}
	if totals.TotalViews != 1 || totals.UniqueViews != 1 {
		t.Fatalf("want 1/1 after duplicate record, got %+v", totals)
	}
}

func TestRecordWindowBoundary(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	t0 := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	e.now = func() time.Time { return t0 }

	in := RecordInput{PropertyID: propertyRef(7), SessionID: "s1", WindowMinutes: 5}

	if res, err := e.Record(ctx, in); err != nil || !res.Inserted {
		t.Fatalf("initial record failed: %+v err=%v", res, err)
	}

	// just inside the window: suppressed
	e.now = func() time.Time { return t0.Add(5*time.Minute - time.Second) }
	if res, err := e.Record(ctx, in); err != nil || !res.Deduped {
		t.Fatalf("record inside window should dedupe: %+v err=%v", res, err)
	}

	// just past the window: counted again
	e.now = func() time.Time { return t0.Add(5*time.Minute + time.Second) }
	if res, err := e.Record(ctx, in); err != nil || !res.Inserted {
		t.Fatalf("record past window should insert: %+v err=%v", res, err)
	}

	totals, err := e.PropertyViews(ctx, 7)
	if err != nil {
		t.Fatalf("property totals: %v", err)
	}
	if totals.TotalViews != 2 || totals.UniqueViews != 1 {
		t.Fatalf("want total=2 unique=1, got %+v", totals)
	}
}

func TestRecordNetworkFallback(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	anon := RecordInput{PropertyID: propertyRef(9), IP: "203.0.113.7", UserAgent: "Mozilla/5.0"}

	if res, _ := e.Record(ctx, anon); !res.Inserted {
		t.Fatalf("first anonymous view should insert, got %+v", res)
	}
	if res, _ := e.Record(ctx, anon); !res.Deduped {
		t.Fatalf("same ip+ua inside window should dedupe, got %+v", res)
	}

	// a different browser on the same NAT IP is a different visitor
	otherUA := anon
	otherUA.UserAgent = "Mozilla/5.0 (Windows NT 10.0)"
	if res, _ := e.Record(ctx, otherUA); !res.Inserted {
		t.Fatalf("different user agent should count, got %+v", res)
	}

	otherIP := anon
	otherIP.IP = "203.0.113.8"
	if res, _ := e.Record(ctx, otherIP); !res.Inserted {
		t.Fatalf("different ip should count, got %+v", res)
	}
}

func TestNetworkFallbackDoesNotMatchIdentifiedRows(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	// identified view from the shared office IP
	identified := RecordInput{PropertyID: propertyRef(3), SessionID: "s1", IP: "198.51.100.1", UserAgent: "ua"}
	if res, _ := e.Record(ctx, identified); !res.Inserted {
		t.Fatalf("identified view should insert, got %+v", res)
	}

	// an anonymous colleague on the same IP and browser still counts
	anon := RecordInput{PropertyID: propertyRef(3), IP: "198.51.100.1", UserAgent: "ua"}
	if res, _ := e.Record(ctx, anon); !res.Inserted {
		t.Fatalf("anonymous view must not match identified rows, got %+v", res)
	}
}

func TestRecordWithoutPropertySkipsDedup(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	in := RecordInput{SessionID: "s1", Path: "/search"}
	for i := 0; i < 2; i++ {
		res, err := e.Record(ctx, in)
		if err != nil {
			t.Fatalf("record %d: %v", i, err)
		}
		if !res.Inserted || res.Deduped {
			t.Fatalf("generic events are never deduped, got %+v", res)
		}
	}

	totals, err := e.TotalViews(ctx)
	if err != nil {
		t.Fatalf("totals: %v", err)
	}
	if totals.TotalViews != 2 {
		t.Fatalf("want 2 generic events counted, got %+v", totals)
	}
}

func TestRecordWithoutIdentityAlwaysCounts(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	in := RecordInput{PropertyID: propertyRef(5)}
	for i := 0; i < 3; i++ {
		res, err := e.Record(ctx, in)
		if err != nil {
			t.Fatalf("record %d: %v", i, err)
		}
		if !res.Inserted {
			t.Fatalf("identity-less events cannot be deduped, got %+v", res)
		}
	}
}

func TestClaimGuardsConcurrentDuplicates(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	// both requests passed the rolling-window check; only one may claim
	id := Identity{Kind: IdentitySession, Token: "s1"}
	if !e.claim(ctx, 42, id, 1) {
		t.Fatal("first claim should succeed")
	}
	if e.claim(ctx, 42, id, 1) {
		t.Fatal("second claim in the same bucket must be rejected")
	}

	// a different identity in the same bucket is unaffected
	if !e.claim(ctx, 42, Identity{Kind: IdentitySession, Token: "s2"}, 1) {
		t.Fatal("unrelated identity should claim freely")
	}
}

func TestCheckerFailsOpenOnStoreError(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	if err := e.db.Migrator().DropTable(&models.ViewEvent{}); err != nil {
		t.Fatalf("drop table: %v", err)
	}

	res := ResolveIdentity("s1", "", "", "")
	if e.RecentlyViewed(ctx, 42, res, 1) {
		t.Fatal("store errors must read as no duplicate found")
	}
}

func TestRecordProceedsWhenClaimTableBroken(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	if err := e.db.Migrator().DropTable(&models.ViewDedupClaim{}); err != nil {
		t.Fatalf("drop claim table: %v", err)
	}

	res, err := e.Record(ctx, RecordInput{PropertyID: propertyRef(1), SessionID: "s1"})
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	if !res.Inserted {
		t.Fatalf("claim failure must not block the write, got %+v", res)
	}
}

func TestRecordSurvivesCallerCancellation(t *testing.T) {
	e := newTestEngine(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel() // client walked away before the write

	res, err := e.Record(ctx, RecordInput{PropertyID: propertyRef(8), SessionID: "s1"})
	if err != nil {
		t.Fatalf("record under cancelled context: %v", err)
	}
	if !res.Inserted {
		t.Fatalf("write should complete despite cancellation, got %+v", res)
	}
}

func TestRetentionSweep(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	t0 := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	e.now = func() time.Time { return t0.AddDate(0, 0, -40) }
	if _, err := e.Record(ctx, RecordInput{PropertyID: propertyRef(1), SessionID: "old"}); err != nil {
		t.Fatalf("seed old event: %v", err)
	}

	e.now = func() time.Time { return t0 }
	if _, err := e.Record(ctx, RecordInput{PropertyID: propertyRef(1), SessionID: "new"}); err != nil {
		t.Fatalf("seed fresh event: %v", err)
	}

	if err := e.Retention(ctx, 30); err != nil {
		t.Fatalf("retention: %v", err)
	}

	totals, err := e.TotalViews(ctx)
	if err != nil {
		t.Fatalf("totals: %v", err)
	}
	if totals.TotalViews != 1 {
		t.Fatalf("want 1 event after sweep, got %+v", totals)
	}

	var claims int64
	if err := e.db.Model(&models.ViewDedupClaim{}).Count(&claims).Error; err != nil {
		t.Fatalf("count claims: %v", err)
	}
	if claims != 1 {
		t.Fatalf("want 1 claim after sweep, got %d", claims)
	}
}
