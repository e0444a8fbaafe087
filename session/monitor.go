package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/MrEthical07/goGateway/internal/background"
	"github.com/MrEthical07/goGateway/storage"
)

// ErrNoSession is returned by operations that need an active session.
var ErrNoSession = errors.New("no active session")

// Config holds monitor timings.
type Config struct {
	Timeout          time.Duration
	CheckInterval    time.Duration
	AutoSaveInterval time.Duration
	DraftRetention   time.Duration
	// Activities that extend the session. Empty means DefaultActivities.
	Activities []Activity
	Keyspace   storage.Keyspace
	// Now overrides the clock; nil means time.Now.
	Now func() time.Time
}

// DefaultConfig returns the stock timings.
func DefaultConfig() Config {
	return Config{
		Timeout:          30 * time.Minute,
		CheckInterval:    time.Minute,
		AutoSaveInterval: 30 * time.Second,
		DraftRetention:   7 * 24 * time.Hour,
		Activities:       DefaultActivities(),
	}
}

// Monitor owns the active session, the draft list and the auto-save registration.
type Monitor struct {
	store  storage.Store
	config Config
	now    func() time.Time
	tracks map[Activity]struct{}

	mu        sync.Mutex
	current   *Session
	listeners []func(Session)
	watcher   *background.Task
	autosave  *background.Task

	// draftsMu serializes read-modify-write cycles on the persisted draft list.
	draftsMu sync.Mutex
}

// NewMonitor creates a Monitor persisting through store. A nil store keeps state in memory.
func NewMonitor(store storage.Store, cfg Config) *Monitor {
	def := DefaultConfig()
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.CheckInterval <= 0 {
		cfg.CheckInterval = def.CheckInterval
	}
	if cfg.AutoSaveInterval <= 0 {
		cfg.AutoSaveInterval = def.AutoSaveInterval
	}
	if cfg.DraftRetention <= 0 {
		cfg.DraftRetention = def.DraftRetention
	}
	if len(cfg.Activities) == 0 {
		cfg.Activities = def.Activities
	}
	if store == nil {
		store = storage.NewMemoryStore()
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	tracks := make(map[Activity]struct{}, len(cfg.Activities))
	for _, a := range cfg.Activities {
		tracks[a] = struct{}{}
	}

	return &Monitor{
		store:  store,
		config: cfg,
		now:    now,
		tracks: tracks,
	}
}

// Start replaces any active session with a fresh one for userID.
func (m *Monitor) Start(ctx context.Context, userID string) (Session, error) {
	now := m.now()
	sess := Session{
		ID:           uuid.NewString(),
		UserID:       userID,
		StartedAt:    now,
		LastActivity: now,
		ExpiresAt:    now.Add(m.config.Timeout),
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if err := storage.SetJSON(ctx, m.store, m.key(storage.KeySession), sess); err != nil {
		return Session{}, err
	}
	m.current = &sess
	return sess.clone(), nil
}

// Restore loads the persisted session. An expired one is destroyed and reported as absent
// without notifying OnExpired subscribers.
func (m *Monitor) Restore(ctx context.Context) (Session, bool, error) {
	var sess Session
	ok, err := storage.GetJSON(ctx, m.store, m.key(storage.KeySession), &sess)
	if err != nil || !ok {
		return Session{}, false, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if sess.Expired(m.now()) {
		m.current = nil
		return Session{}, false, m.store.Delete(ctx, m.key(storage.KeySession))
	}
	m.current = &sess
	return sess.clone(), true, nil
}

// Current returns the active session.
func (m *Monitor) Current() (Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current == nil {
		return Session{}, false
	}
	return m.current.clone(), true
}

// Tracks reports whether activity extends the session.
func (m *Monitor) Tracks(activity Activity) bool {
	_, ok := m.tracks[activity]
	return ok
}

// Touch records activity. Untracked activities and sessions already past their deadline
// are left alone; the latter are reaped by Check. It reports whether the deadline moved.
func (m *Monitor) Touch(ctx context.Context, activity Activity) (bool, error) {
	if !m.Tracks(activity) {
		return false, nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	if m.current == nil || m.current.Expired(now) {
		return false, nil
	}

	next := *m.current
	next.LastActivity = now
	next.ExpiresAt = now.Add(m.config.Timeout)
	if err := storage.SetJSON(ctx, m.store, m.key(storage.KeySession), next); err != nil {
		return false, err
	}
	m.current = &next
	return true, nil
}

// SetData stores a value in the active session's data bag.
func (m *Monitor) SetData(ctx context.Context, key string, value any) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current == nil {
		return ErrNoSession
	}
	next := m.current.clone()
	if next.Data == nil {
		next.Data = map[string]any{}
	}
	next.Data[key] = value
	if err := storage.SetJSON(ctx, m.store, m.key(storage.KeySession), next); err != nil {
		return err
	}
	m.current = &next
	return nil
}

// OnExpired subscribes fn to idle expiry. Subscribers run on the checking goroutine after
// the session is destroyed.
func (m *Monitor) OnExpired(fn func(Session)) {
	if fn == nil {
		return
	}
	m.mu.Lock()
	m.listeners = append(m.listeners, fn)
	m.mu.Unlock()
}

// Check destroys the active session if its deadline has passed and notifies subscribers.
func (m *Monitor) Check(ctx context.Context) (bool, error) {
	m.mu.Lock()
	if m.current == nil || !m.current.Expired(m.now()) {
		m.mu.Unlock()
		return false, nil
	}
	expired := m.current.clone()
	m.current = nil
	listeners := append(make([]func(Session), 0, len(m.listeners)), m.listeners...)
	err := m.store.Delete(ctx, m.key(storage.KeySession))
	m.mu.Unlock()

	for _, fn := range listeners {
		fn(expired)
	}
	return true, err
}

// Destroy ends the active session. It is idempotent.
func (m *Monitor) Destroy(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.current = nil
	return m.store.Delete(ctx, m.key(storage.KeySession))
}

// Watch runs Check every CheckInterval until Close. Calling it again is a no-op.
func (m *Monitor) Watch() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.watcher != nil {
		return
	}
	m.watcher = background.Every(m.config.CheckInterval, func(ctx context.Context) {
		_, _ = m.Check(ctx)
	})
}

// StartAutoSave invokes fn every interval (AutoSaveInterval when non-positive) until
// StopAutoSave. A previous registration is stopped first.
func (m *Monitor) StartAutoSave(interval time.Duration, fn func(context.Context)) {
	if interval <= 0 {
		interval = m.config.AutoSaveInterval
	}

	m.mu.Lock()
	prev := m.autosave
	m.autosave = background.Every(interval, fn)
	m.mu.Unlock()

	prev.Stop()
}

// StopAutoSave cancels the active auto-save registration, if any.
func (m *Monitor) StopAutoSave() {
	m.mu.Lock()
	prev := m.autosave
	m.autosave = nil
	m.mu.Unlock()

	prev.Stop()
}

// AutoSaveActive reports whether a callback is registered.
func (m *Monitor) AutoSaveActive() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.autosave != nil
}

// Close stops the watcher and auto-save. Persisted state is kept.
func (m *Monitor) Close() {
	m.mu.Lock()
	watcher, autosave := m.watcher, m.autosave
	m.watcher, m.autosave = nil, nil
	m.mu.Unlock()

	watcher.Stop()
	autosave.Stop()
}

// Config returns the effective configuration.
func (m *Monitor) Config() Config {
	return m.config
}

func (m *Monitor) key(name string) string {
	return m.config.Keyspace.Key(name)
}
