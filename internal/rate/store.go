package rate

import (
	"context"
	"time"
)

// Store persists fixed-window counters.
type Store interface {
	// Incr opens a window when none is live for key at now, then increments it. It
	// returns the post-increment count and the window end.
	Incr(ctx context.Context, key string, window time.Duration, now time.Time) (int, time.Time, error)
	// Delete drops the given records.
	Delete(ctx context.Context, keys ...string) error
	// Sweep drops every record whose window ended at or before now and reports how many
	// were removed.
	Sweep(ctx context.Context, now time.Time) (int, error)
}
