package views

import (
	"context"
	"time"

	"github.com/HousDev/viewtrack/utils"
)

// StartRetentionSweeper launches a background goroutine that periodically
// drops expired dedup claims and, when keepDays > 0, view events past the
// retention horizon. Best-effort: failures are logged and retried on the
// next tick.
func StartRetentionSweeper(e *Engine, interval time.Duration, keepDays int) {
	if interval <= 0 {
		interval = time.Hour
	}
	go func() {
		for {
			// Sleep first to avoid racing immediately at startup
			time.Sleep(interval)

			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			err := e.Retention(ctx, keepDays)
			cancel()
			if err != nil && utils.Sugar != nil {
				utils.Sugar.Warnf("retention sweep failed: %v", err)
			}
		}
	}()
}
