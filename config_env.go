package goGateway

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/MrEthical07/goGateway/internal/rate"
	"github.com/spf13/viper"
)

const envPrefix = "GATEWAY_"

// envConfig mirrors the flat GATEWAY_* variables.
type envConfig struct {
	APIBaseURL           string        `mapstructure:"GATEWAY_API_BASE_URL"`
	RequestTimeout       time.Duration `mapstructure:"GATEWAY_REQUEST_TIMEOUT"`
	RetryAttempts        int           `mapstructure:"GATEWAY_RETRY_ATTEMPTS"`
	UserAgent            string        `mapstructure:"GATEWAY_USER_AGENT"`
	AccessTokenTTL       time.Duration `mapstructure:"GATEWAY_ACCESS_TOKEN_TTL"`
	RefreshTokenTTL      time.Duration `mapstructure:"GATEWAY_REFRESH_TOKEN_TTL"`
	RefreshCheckInterval time.Duration `mapstructure:"GATEWAY_REFRESH_CHECK_INTERVAL"`
	RefreshThreshold     time.Duration `mapstructure:"GATEWAY_REFRESH_THRESHOLD"`
	LoginEndpoint        string        `mapstructure:"GATEWAY_LOGIN_ENDPOINT"`
	RefreshEndpoint      string        `mapstructure:"GATEWAY_REFRESH_ENDPOINT"`
	SessionTimeout       time.Duration `mapstructure:"GATEWAY_SESSION_TIMEOUT"`
	SessionCheckInterval time.Duration `mapstructure:"GATEWAY_SESSION_CHECK_INTERVAL"`
	AutoSaveInterval     time.Duration `mapstructure:"GATEWAY_AUTOSAVE_INTERVAL"`
	DraftRetention       time.Duration `mapstructure:"GATEWAY_DRAFT_RETENTION"`
	LogoutOnExpiry       bool          `mapstructure:"GATEWAY_SESSION_LOGOUT_ON_EXPIRY"`
	SweepInterval        time.Duration `mapstructure:"GATEWAY_RATE_LIMIT_SWEEP_INTERVAL"`
	QueueDisabled        bool          `mapstructure:"GATEWAY_QUEUE_DISABLED"`
	QueueSize            int           `mapstructure:"GATEWAY_QUEUE_SIZE"`
	QueueConcurrency     int           `mapstructure:"GATEWAY_QUEUE_CONCURRENCY"`
	OfflineMode          bool          `mapstructure:"GATEWAY_FEATURE_OFFLINE_MODE"`
	Notifications        bool          `mapstructure:"GATEWAY_FEATURE_NOTIFICATIONS"`
	StoragePrefix        string        `mapstructure:"GATEWAY_STORAGE_PREFIX"`
	MetricsEnabled       bool          `mapstructure:"GATEWAY_METRICS_ENABLED"`
	MetricsLatency       bool          `mapstructure:"GATEWAY_METRICS_LATENCY"`
	EventsEnabled        bool          `mapstructure:"GATEWAY_EVENTS_ENABLED"`
	EventsBufferSize     int           `mapstructure:"GATEWAY_EVENTS_BUFFER_SIZE"`
	EventsDropIfFull     bool          `mapstructure:"GATEWAY_EVENTS_DROP_IF_FULL"`
}

// LoadConfigFromEnv reads GATEWAY_* variables, with an optional .env file in the
// working directory, on top of [DefaultConfig].
func LoadConfigFromEnv() (Config, error) {
	return loadConfig(".env", false)
}

// LoadConfig is LoadConfigFromEnv with an explicit env file, which must exist.
func LoadConfig(path string) (Config, error) {
	if path == "" {
		return LoadConfigFromEnv()
	}
	return loadConfig(path, true)
}

func loadConfig(path string, required bool) (Config, error) {
	v := viper.New()

	v.SetConfigFile(path)
	v.SetConfigType("env")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		missing := errors.As(err, &notFound) || errors.Is(err, fs.ErrNotExist)
		if required || !missing {
			return Config{}, fmt.Errorf("config: read %s: %w", path, err)
		}
	}

	v.AutomaticEnv()

	def := DefaultConfig()
	setEnvDefaults(v, def)

	var env envConfig
	if err := v.Unmarshal(&env); err != nil {
		return Config{}, fmt.Errorf("config: %w", err)
	}

	cfg := def
	cfg.API = APIConfig{
		BaseURL:       env.APIBaseURL,
		Timeout:       env.RequestTimeout,
		RetryAttempts: env.RetryAttempts,
		UserAgent:     env.UserAgent,
	}
	cfg.Auth = AuthConfig{
		AccessTTL:            env.AccessTokenTTL,
		RefreshTTL:           env.RefreshTokenTTL,
		RefreshCheckInterval: env.RefreshCheckInterval,
		RefreshThreshold:     env.RefreshThreshold,
		LoginEndpoint:        env.LoginEndpoint,
		RefreshEndpoint:      env.RefreshEndpoint,
	}
	cfg.Session = SessionConfig{
		Timeout:          env.SessionTimeout,
		CheckInterval:    env.SessionCheckInterval,
		AutoSaveInterval: env.AutoSaveInterval,
		DraftRetention:   env.DraftRetention,
		LogoutOnExpiry:   env.LogoutOnExpiry,
	}
	cfg.RateLimit.SweepInterval = env.SweepInterval
	for _, op := range rate.Operations() {
		window, max := rateLimitKeys(op)
		cfg.RateLimit.Policies.Set(op, rate.Policy{
			Window:      v.GetDuration(window),
			MaxRequests: v.GetInt(max),
		})
	}
	cfg.Queue = QueueConfig{
		Disabled:     env.QueueDisabled,
		MaxQueueSize: env.QueueSize,
		Concurrency:  env.QueueConcurrency,
	}
	cfg.Features = FeaturesConfig{
		OfflineMode:   env.OfflineMode,
		Notifications: env.Notifications,
	}
	cfg.Storage.KeyPrefix = env.StoragePrefix
	cfg.Metrics = MetricsConfig{
		Enabled:                 env.MetricsEnabled,
		EnableLatencyHistograms: env.MetricsLatency,
	}
	cfg.Events = EventsConfig{
		Enabled:    env.EventsEnabled,
		BufferSize: env.EventsBufferSize,
		DropIfFull: env.EventsDropIfFull,
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

func setEnvDefaults(v *viper.Viper, def Config) {
	v.SetDefault(envPrefix+"API_BASE_URL", def.API.BaseURL)
	v.SetDefault(envPrefix+"REQUEST_TIMEOUT", def.API.Timeout)
	v.SetDefault(envPrefix+"RETRY_ATTEMPTS", def.API.RetryAttempts)
	v.SetDefault(envPrefix+"USER_AGENT", def.API.UserAgent)
	v.SetDefault(envPrefix+"ACCESS_TOKEN_TTL", def.Auth.AccessTTL)
	v.SetDefault(envPrefix+"REFRESH_TOKEN_TTL", def.Auth.RefreshTTL)
	v.SetDefault(envPrefix+"REFRESH_CHECK_INTERVAL", def.Auth.RefreshCheckInterval)
	v.SetDefault(envPrefix+"REFRESH_THRESHOLD", def.Auth.RefreshThreshold)
	v.SetDefault(envPrefix+"LOGIN_ENDPOINT", def.Auth.LoginEndpoint)
	v.SetDefault(envPrefix+"REFRESH_ENDPOINT", def.Auth.RefreshEndpoint)
	v.SetDefault(envPrefix+"SESSION_TIMEOUT", def.Session.Timeout)
	v.SetDefault(envPrefix+"SESSION_CHECK_INTERVAL", def.Session.CheckInterval)
	v.SetDefault(envPrefix+"AUTOSAVE_INTERVAL", def.Session.AutoSaveInterval)
	v.SetDefault(envPrefix+"DRAFT_RETENTION", def.Session.DraftRetention)
	v.SetDefault(envPrefix+"SESSION_LOGOUT_ON_EXPIRY", def.Session.LogoutOnExpiry)
	v.SetDefault(envPrefix+"RATE_LIMIT_SWEEP_INTERVAL", def.RateLimit.SweepInterval)
	v.SetDefault(envPrefix+"QUEUE_DISABLED", def.Queue.Disabled)
	v.SetDefault(envPrefix+"QUEUE_SIZE", def.Queue.MaxQueueSize)
	v.SetDefault(envPrefix+"QUEUE_CONCURRENCY", def.Queue.Concurrency)
	v.SetDefault(envPrefix+"FEATURE_OFFLINE_MODE", def.Features.OfflineMode)
	v.SetDefault(envPrefix+"FEATURE_NOTIFICATIONS", def.Features.Notifications)
	v.SetDefault(envPrefix+"STORAGE_PREFIX", def.Storage.KeyPrefix)
	v.SetDefault(envPrefix+"METRICS_ENABLED", def.Metrics.Enabled)
	v.SetDefault(envPrefix+"METRICS_LATENCY", def.Metrics.EnableLatencyHistograms)
	v.SetDefault(envPrefix+"EVENTS_ENABLED", def.Events.Enabled)
	v.SetDefault(envPrefix+"EVENTS_BUFFER_SIZE", def.Events.BufferSize)
	v.SetDefault(envPrefix+"EVENTS_DROP_IF_FULL", def.Events.DropIfFull)

	for _, op := range rate.Operations() {
		p, _ := def.RateLimit.Policies.Get(op)
		window, max := rateLimitKeys(op)
		v.SetDefault(window, p.Window)
		v.SetDefault(max, p.MaxRequests)
	}
}

// rateLimitKeys returns GATEWAY_RATE_LIMIT_<OP>_WINDOW and _MAX.
func rateLimitKeys(op rate.Operation) (string, string) {
	base := envPrefix + "RATE_LIMIT_" + strings.ToUpper(op.String())
	return base + "_WINDOW", base + "_MAX"
}
