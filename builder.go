package goGateway

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	internalevents "github.com/MrEthical07/goGateway/internal/events"
	internalmetrics "github.com/MrEthical07/goGateway/internal/metrics"
	"github.com/MrEthical07/goGateway/internal/queue"
	"github.com/MrEthical07/goGateway/internal/rate"
	"github.com/MrEthical07/goGateway/session"
	"github.com/MrEthical07/goGateway/storage"
)

// RateLimitStore persists rate-limit windows. Use [NewRedisRateLimitStore] to share
// windows across processes.
type RateLimitStore = rate.Store

// NewRedisRateLimitStore returns a Redis-backed window store.
func NewRedisRateLimitStore(client redis.UniversalClient) RateLimitStore {
	return rate.NewRedisStore(client)
}

// Builder assembles a [Gateway]. A Builder is single-use.
type Builder struct {
	config Config
	client HTTPDoer
	store  storage.Store
	redis  redis.UniversalClient

	rateStore     rate.Store
	authenticator Authenticator
	logger        *zap.Logger
	eventSink     EventSink
	activities    []session.Activity
	now           func() time.Time

	built bool
}

// New returns a Builder seeded with [DefaultConfig].
func New() *Builder {
	return &Builder{
		config: DefaultConfig(),
	}
}

// WithConfig replaces the whole configuration.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithTransport sets the HTTP client. The default is a plain *http.Client; per-request
// deadlines come from Config.API.Timeout.
func (b *Builder) WithTransport(client HTTPDoer) *Builder {
	b.client = client
	return b
}

// WithStorage sets where credentials, sessions, drafts and offline operations persist.
func (b *Builder) WithStorage(store storage.Store) *Builder {
	b.store = store
	return b
}

// WithRedis backs both persisted state and rate-limit windows with Redis, unless
// WithStorage or WithRateLimitStore set them explicitly.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithRateLimitStore overrides where rate-limit windows live.
func (b *Builder) WithRateLimitStore(store RateLimitStore) *Builder {
	b.rateStore = store
	return b
}

// WithAuthenticator replaces the default [HTTPAuthenticator].
func (b *Builder) WithAuthenticator(a Authenticator) *Builder {
	b.authenticator = a
	return b
}

// WithLogger sets the logger. The default discards everything.
func (b *Builder) WithLogger(logger *zap.Logger) *Builder {
	b.logger = logger
	return b
}

// WithEventSink sets the sink events are delivered to when Config.Events.Enabled.
func (b *Builder) WithEventSink(sink EventSink) *Builder {
	b.eventSink = sink
	return b
}

// WithSessionActivities overrides which interactions extend the idle timeout.
func (b *Builder) WithSessionActivities(activities ...session.Activity) *Builder {
	b.activities = activities
	return b
}

// WithClock overrides time.Now for token expiry, rate-limit windows and sessions.
func (b *Builder) WithClock(now func() time.Time) *Builder {
	b.now = now
	return b
}

// Build validates the configuration, restores persisted state and starts the background
// tasks. Stop them with [Gateway.Close].
func (b *Builder) Build() (*Gateway, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	now := b.now
	if now == nil {
		now = time.Now
	}

	client := b.client
	if client == nil {
		client = &http.Client{}
	}

	// -------- STORAGE --------
	store := b.store
	if store == nil {
		if b.redis != nil {
			store = storage.NewRedisStore(b.redis)
		} else {
			store = storage.NewMemoryStore()
		}
	}
	keys := storage.Keyspace(cfg.Storage.KeyPrefix)

	rateStore := b.rateStore
	if rateStore == nil {
		if b.redis != nil {
			rateStore = rate.NewRedisStore(b.redis)
		} else {
			rateStore = rate.NewMemoryStore()
		}
	}

	// -------- OBSERVABILITY --------
	metrics := internalmetrics.New(internalmetrics.Config{
		Enabled:       cfg.Metrics.Enabled,
		EnableLatency: cfg.Metrics.EnableLatencyHistograms,
	})
	sink := b.eventSink
	if sink == nil {
		sink = NoOpSink{}
	}
	dispatcher := internalevents.NewDispatcher(internalevents.Config{
		Enabled:    cfg.Events.Enabled,
		BufferSize: cfg.Events.BufferSize,
		DropIfFull: cfg.Events.DropIfFull,
	}, sink)
	obs := newObserver(b.logger, metrics, dispatcher, now)
	for _, w := range cfg.Lint().BySeverity(LintWarn) {
		obs.logger.Warn("config lint", zap.String("code", w.Code), zap.Stringer("severity", w.Severity), zap.String("detail", w.Message))
	}

	// -------- COMPONENTS --------
	limiter := rate.New(rateStore, rate.Config{
		Policies:      cfg.RateLimit.Policies,
		SweepInterval: cfg.RateLimit.SweepInterval,
		Now:           now,
	})

	sessions := session.NewMonitor(store, session.Config{
		Timeout:          cfg.Session.Timeout,
		CheckInterval:    cfg.Session.CheckInterval,
		AutoSaveInterval: cfg.Session.AutoSaveInterval,
		DraftRetention:   cfg.Session.DraftRetention,
		Activities:       b.activities,
		Keyspace:         keys,
		Now:              now,
	})

	authenticator := b.authenticator
	if authenticator == nil {
		authenticator = NewHTTPAuthenticator(client, cfg.API, cfg.Auth)
	}

	auth := newAuthManager(authManagerDeps{
		cfg:      cfg,
		auth:     authenticator,
		tokens:   newTokenStore(store, keys),
		client:   client,
		sessions: sessions,
		limiter:  limiter,
		obs:      obs,
	})

	var q *queue.Queue[*Response]
	if !cfg.Queue.Disabled {
		q = queue.New[*Response](queue.Config{
			MaxQueueSize: cfg.Queue.MaxQueueSize,
			Concurrency:  cfg.Queue.Concurrency,
		})
	}

	g := &Gateway{
		cfg:      cfg,
		client:   client,
		auth:     auth,
		limiter:  limiter,
		queue:    q,
		sessions: sessions,
		store:    store,
		keys:     keys,
		obs:      obs,
	}
	sessions.OnExpired(g.onSessionExpired)

	// -------- RESTORE --------
	ctx, cancel := context.WithTimeout(context.Background(), cfg.API.Timeout)
	defer cancel()
	if err := auth.restore(ctx); err != nil {
		obs.logger.Warn("credential restore failed", zap.Error(err))
	}
	_, live, err := sessions.Restore(ctx)
	if err != nil {
		obs.logger.Warn("session restore failed", zap.Error(err))
	}
	// credentials outlived their idle session while the process was down
	if user, ok := auth.CurrentUser(); ok && !live && err == nil {
		if cfg.Session.LogoutOnExpiry {
			if lerr := auth.Logout(ctx); lerr != nil {
				obs.logger.Warn("logout of idle credentials failed", zap.Error(lerr))
			}
		} else if _, serr := sessions.Start(ctx, user.Name); serr != nil {
			obs.logger.Warn("session start failed", zap.Error(serr))
		}
	}

	// -------- BACKGROUND TASKS --------
	limiter.StartSweeper()
	sessions.Watch()
	g.tasks = append(g.tasks, auth.StartBackgroundRefresh())

	b.built = true
	return g, nil
}

func (g *Gateway) onSessionExpired(s session.Session) {
	ctx := context.Background()
	g.obs.logger.Info("session expired", zap.String("user", s.UserID), zap.String("session", s.ID))
	g.obs.emit(ctx, EventSessionExpired, Event{UserID: s.UserID, SessionID: s.ID}, nil)

	if !g.cfg.Session.LogoutOnExpiry {
		return
	}
	if err := g.auth.Logout(ctx); err != nil {
		g.obs.logger.Warn("logout after session expiry failed", zap.Error(err))
	}
}
