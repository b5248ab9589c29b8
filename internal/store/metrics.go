package store

import (
	"context"
	"log"
	"time"

	"github.com/jw6ventures/roomwatch/internal/metrics"
)

// slowOperation is the latency above which a reward or occupancy query is
// logged.
var slowOperation = 500 * time.Millisecond

func observeDB(ctx context.Context, operation string) func() {
	start := time.Now()
	return func() {
		metrics.ObserveDBLatency(ctx, operation, start)
		if elapsed := time.Since(start); elapsed > slowOperation {
			log.Printf("[WARN] slow database operation %s took %s", operation, elapsed.Round(time.Millisecond))
		}
	}
}
