package rate

import (
	"context"
	"time"

	"github.com/MrEthical07/goGateway/internal/background"
)

// Config holds limiter tuning parameters.
type Config struct {
	Policies      Policies
	SweepInterval time.Duration
	// Now overrides the clock; nil means time.Now.
	Now func() time.Time
}

// Decision is the outcome of one check.
type Decision struct {
	Allowed   bool
	Count     int
	Limit     int
	Remaining int
	ResetAt   time.Time
}

// RetryAfter is how long a rejected caller should wait, rounded up to whole seconds so it
// can go straight into a Retry-After header. Allowed decisions return zero.
func (d Decision) RetryAfter(now time.Time) time.Duration {
	if d.Allowed {
		return 0
	}
	wait := d.ResetAt.Sub(now)
	if wait <= 0 {
		return 0
	}
	secs := (wait + time.Second - 1) / time.Second
	return secs * time.Second
}

// Limiter enforces per-(identifier, operation) fixed windows.
type Limiter struct {
	store   Store
	config  Config
	now     func() time.Time
	sweeper *background.Task
}

// New creates a [Limiter]. A nil store falls back to a fresh [MemoryStore].
func New(store Store, cfg Config) *Limiter {
	if store == nil {
		store = NewMemoryStore()
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Limiter{
		store:  store,
		config: cfg,
		now:    now,
	}
}

// Check describes the fixed-window admission decision for identifier under op's
// policy. Rejected checks still count, so hammering a closed window keeps it closed
// until it rolls over. An operation with no ceiling is always allowed.
//
// Check may return an error when op is unknown or the backing store fails; callers
// decide whether a store failure fails open.
// Check does not mutate shared global state and can be used concurrently when the
// store is concurrently safe.
func (l *Limiter) Check(ctx context.Context, identifier string, op Operation) (Decision, error) {
	if l == nil {
		return Decision{Allowed: true}, nil
	}
	policy, ok := l.config.Policies.Get(op)
	if !ok {
		return Decision{}, ErrUnknownOperation
	}
	if policy.MaxRequests <= 0 || policy.Window <= 0 {
		return Decision{Allowed: true}, nil
	}

	count, resetAt, err := l.store.Incr(ctx, Key(identifier, op), policy.Window, l.now())
	if err != nil {
		return Decision{}, err
	}

	remaining := policy.MaxRequests - count
	if remaining < 0 {
		remaining = 0
	}

	return Decision{
		Allowed:   count <= policy.MaxRequests,
		Count:     count,
		Limit:     policy.MaxRequests,
		Remaining: remaining,
		ResetAt:   resetAt,
	}, nil
}

// Reset clears identifier's records for the given operations, or for every operation
// when none are given.
func (l *Limiter) Reset(ctx context.Context, identifier string, ops ...Operation) error {
	if l == nil {
		return nil
	}
	if len(ops) == 0 {
		ops = Operations()
	}
	keys := make([]string, 0, len(ops))
	for _, op := range ops {
		if !op.Valid() {
			return ErrUnknownOperation
		}
		keys = append(keys, Key(identifier, op))
	}
	return l.store.Delete(ctx, keys...)
}

// Sweep drops elapsed windows.
func (l *Limiter) Sweep(ctx context.Context) (int, error) {
	if l == nil {
		return 0, nil
	}
	return l.store.Sweep(ctx, l.now())
}

// StartSweeper runs Sweep every SweepInterval until Close. Calling it twice is a no-op.
func (l *Limiter) StartSweeper() {
	if l == nil || l.sweeper != nil {
		return
	}
	l.sweeper = background.Every(l.config.SweepInterval, func(ctx context.Context) {
		_, _ = l.Sweep(ctx)
	})
}

// Close stops the sweeper.
func (l *Limiter) Close() {
	if l == nil {
		return
	}
	l.sweeper.Stop()
}

// Now exposes the limiter clock so callers compute Retry-After against the same time base.
func (l *Limiter) Now() time.Time {
	if l == nil {
		return time.Now()
	}
	return l.now()
}

// Key builds the record key for identifier and op.
func Key(identifier string, op Operation) string {
	return identifier + ":" + op.String()
}
