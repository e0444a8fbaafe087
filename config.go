package goGateway

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/MrEthical07/goGateway/internal/rate"
)

// Config is the full gateway configuration. Start from [DefaultConfig] and override.
type Config struct {
	API       APIConfig
	Auth      AuthConfig
	Session   SessionConfig
	RateLimit RateLimitConfig
	Queue     QueueConfig
	Features  FeaturesConfig
	Storage   StorageConfig
	Metrics   MetricsConfig
	Events    EventsConfig
}

/*
====================================
API CONFIG
====================================
*/

// APIConfig describes the backend the gateway talks to.
type APIConfig struct {
	BaseURL string
	Timeout time.Duration
	// RetryAttempts bounds offline replays of one operation. The request path itself
	// never retries beyond the single 401 recovery.
	RetryAttempts int
	UserAgent     string
}

/*
====================================
AUTH CONFIG
====================================
*/

// AuthConfig controls the token lifecycle.
type AuthConfig struct {
	// AccessTTL and RefreshTTL are used by authenticators that issue tokens themselves.
	AccessTTL  time.Duration
	RefreshTTL time.Duration

	RefreshCheckInterval time.Duration
	RefreshThreshold     time.Duration

	LoginEndpoint   string
	RefreshEndpoint string
}

/*
====================================
SESSION CONFIG
====================================
*/

// SessionConfig controls the idle-timeout monitor and drafts.
type SessionConfig struct {
	Timeout          time.Duration
	CheckInterval    time.Duration
	AutoSaveInterval time.Duration
	DraftRetention   time.Duration
	// LogoutOnExpiry clears credentials when the idle timeout fires.
	LogoutOnExpiry bool
}

/*
====================================
RATE LIMIT CONFIG
====================================
*/

// RateLimitConfig holds the per-operation policy table.
type RateLimitConfig struct {
	Policies      RateLimitPolicies
	SweepInterval time.Duration
}

/*
====================================
QUEUE CONFIG
====================================
*/

// QueueConfig bounds in-flight and pending requests. Disabled sends requests directly.
type QueueConfig struct {
	Disabled     bool
	MaxQueueSize int
	Concurrency  int
}

/*
====================================
FEATURES CONFIG
====================================
*/

// FeaturesConfig toggles optional behavior.
type FeaturesConfig struct {
	OfflineMode   bool
	Notifications bool
}

/*
====================================
STORAGE CONFIG
====================================
*/

// StorageConfig namespaces persisted keys.
type StorageConfig struct {
	KeyPrefix string
}

/*
====================================
METRICS CONFIG
====================================
*/

// MetricsConfig toggles counters and the latency histogram.
type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

/*
====================================
EVENTS CONFIG
====================================
*/

// EventsConfig controls async event delivery.
type EventsConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

/*
====================================
DEFAULT CONFIG
====================================
*/

// DefaultConfig returns the documented defaults.
func DefaultConfig() Config {
	return Config{
		API: APIConfig{
			BaseURL:       "http://localhost:3000/api",
			Timeout:       30 * time.Second,
			RetryAttempts: 3,
			UserAgent:     "goGateway",
		},
		Auth: AuthConfig{
			AccessTTL:            60 * time.Minute,
			RefreshTTL:           7 * 24 * time.Hour,
			RefreshCheckInterval: 5 * time.Minute,
			RefreshThreshold:     10 * time.Minute,
			LoginEndpoint:        "auth/login",
			RefreshEndpoint:      "auth/refresh",
		},
		Session: SessionConfig{
			Timeout:          30 * time.Minute,
			CheckInterval:    60 * time.Second,
			AutoSaveInterval: 30 * time.Second,
			DraftRetention:   7 * 24 * time.Hour,
			LogoutOnExpiry:   true,
		},
		RateLimit: RateLimitConfig{
			Policies:      rate.DefaultPolicies(),
			SweepInterval: 60 * time.Second,
		},
		Queue: QueueConfig{
			MaxQueueSize: 100,
			Concurrency:  6,
		},
		Features: FeaturesConfig{
			OfflineMode:   false,
			Notifications: true,
		},
		Storage: StorageConfig{
			KeyPrefix: "scm",
		},
		Events: EventsConfig{
			BufferSize: 256,
			DropIfFull: true,
		},
	}
}

func cloneConfig(cfg Config) Config {
	// every field is a value type; the policy table is an array
	return cfg
}

/*
====================================
VALIDATION
====================================
*/

// Validate reports the first invalid field.
func (c *Config) Validate() error {
	// API
	if strings.TrimSpace(c.API.BaseURL) == "" {
		return errors.New("API BaseURL must be set")
	}
	u, err := url.Parse(c.API.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return errors.New("API BaseURL must be an absolute URL")
	}
	if c.API.Timeout <= 0 {
		return errors.New("API Timeout must be > 0")
	}
	if c.API.RetryAttempts < 0 {
		return errors.New("API RetryAttempts must be >= 0")
	}

	// Auth
	if c.Auth.AccessTTL <= 0 {
		return errors.New("Auth AccessTTL must be > 0")
	}
	if c.Auth.RefreshTTL < c.Auth.AccessTTL {
		return errors.New("Auth RefreshTTL must be >= AccessTTL")
	}
	if c.Auth.RefreshCheckInterval < 0 {
		return errors.New("Auth RefreshCheckInterval must be >= 0")
	}
	if c.Auth.RefreshThreshold < 0 {
		return errors.New("Auth RefreshThreshold must be >= 0")
	}
	if c.Auth.LoginEndpoint == "" || c.Auth.RefreshEndpoint == "" {
		return errors.New("Auth LoginEndpoint and RefreshEndpoint must be set")
	}

	// Session
	if c.Session.Timeout <= 0 {
		return errors.New("Session Timeout must be > 0")
	}
	if c.Session.CheckInterval < 0 || c.Session.AutoSaveInterval < 0 {
		return errors.New("Session intervals must be >= 0")
	}
	if c.Session.DraftRetention <= 0 {
		return errors.New("Session DraftRetention must be > 0")
	}

	// Rate limit
	for _, op := range rate.Operations() {
		p, _ := c.RateLimit.Policies.Get(op)
		if p.Window < 0 || p.MaxRequests < 0 {
			return fmt.Errorf("RateLimit %s policy must be >= 0", op)
		}
		if (p.Window == 0) != (p.MaxRequests == 0) {
			return fmt.Errorf("RateLimit %s policy needs both Window and MaxRequests, or neither", op)
		}
	}
	if c.RateLimit.SweepInterval < 0 {
		return errors.New("RateLimit SweepInterval must be >= 0")
	}

	// Queue
	if !c.Queue.Disabled {
		if c.Queue.Concurrency <= 0 {
			return errors.New("Queue Concurrency must be > 0")
		}
		if c.Queue.MaxQueueSize < 0 {
			return errors.New("Queue MaxQueueSize must be >= 0")
		}
	}

	// Events
	if c.Events.Enabled && c.Events.BufferSize <= 0 {
		return errors.New("Events BufferSize must be > 0 when enabled")
	}

	if c.Metrics.EnableLatencyHistograms && !c.Metrics.Enabled {
		return errors.New("Metrics EnableLatencyHistograms requires Enabled")
	}

	return nil
}
