package memory

import (
	"context"
	"log"
	"time"
)

// StartSweeper runs the bulk expiry sweep on a fixed interval, independent
// of the per-request expiry applied by Merge. It covers identities with no
// recent traffic. onSwept, when set, receives the removed count per pass.
func StartSweeper(ctx context.Context, store Store, interval, retention time.Duration, onSwept func(removed int)) {
	if interval <= 0 {
		interval = 24 * time.Hour
	}
	if retention <= 0 {
		retention = RetentionWindow
	}
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				removed, err := store.SweepExpired(ctx, time.Now().UTC().Add(-retention))
				if err != nil {
					log.Printf("[memory] retention sweep failed: %v", err)
					continue
				}
				if removed > 0 {
					log.Printf("[memory] retention sweep removed %d expired insights", removed)
				}
				if onSwept != nil {
					onSwept(removed)
				}
			}
		}
	}()
}
