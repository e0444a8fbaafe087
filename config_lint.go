package goGateway

import (
	"fmt"
	"net"
	"net/url"
	"strings"
	"time"

	"github.com/MrEthical07/goGateway/internal/rate"
)

// LintSeverity ranks a lint finding.
type LintSeverity uint8

const (
	LintInfo LintSeverity = iota
	LintWarn
	LintHigh
)

func (s LintSeverity) String() string {
	switch s {
	case LintInfo:
		return "INFO"
	case LintWarn:
		return "WARN"
	case LintHigh:
		return "HIGH"
	default:
		return "UNKNOWN"
	}
}

// LintWarning is one finding. Code is stable; Message is for humans.
type LintWarning struct {
	Code     string
	Severity LintSeverity
	Message  string
}

// LintResult holds every finding for one config.
type LintResult []LintWarning

// Codes lists the finding codes in order.
func (r LintResult) Codes() []string {
	out := make([]string, len(r))
	for i, w := range r {
		out[i] = w.Code
	}
	return out
}

// BySeverity keeps findings at or above min.
func (r LintResult) BySeverity(min LintSeverity) LintResult {
	var out LintResult
	for _, w := range r {
		if w.Severity >= min {
			out = append(out, w)
		}
	}
	return out
}

// AsError returns an error naming every finding at or above min, or nil.
func (r LintResult) AsError(min LintSeverity) error {
	hits := r.BySeverity(min)
	if len(hits) == 0 {
		return nil
	}
	parts := make([]string, len(hits))
	for i, w := range hits {
		parts[i] = fmt.Sprintf("%s (%s): %s", w.Code, w.Severity, w.Message)
	}
	return fmt.Errorf("config lint: %s", strings.Join(parts, "; "))
}

// Lint reports settings that are valid but likely mistakes. It complements
// Validate, which rejects settings that cannot work at all.
func (c *Config) Lint() LintResult {
	var ws LintResult
	add := func(code string, sev LintSeverity, format string, args ...any) {
		ws = append(ws, LintWarning{Code: code, Severity: sev, Message: fmt.Sprintf(format, args...)})
	}

	if u, err := url.Parse(c.API.BaseURL); err == nil && u.Scheme == "http" && !isLoopback(u.Hostname()) {
		add("base_url_plaintext", LintWarn, "tokens are sent over plain http to %s", u.Host)
	}
	if c.API.Timeout > time.Minute {
		add("timeout_long", LintInfo, "request timeout %s holds a queue slot that long", c.API.Timeout)
	}

	if c.Auth.RefreshThreshold >= c.Auth.AccessTTL {
		add("refresh_threshold_exceeds_ttl", LintHigh,
			"refresh threshold %s is not below access TTL %s; every check refreshes", c.Auth.RefreshThreshold, c.Auth.AccessTTL)
	}
	switch {
	case c.Auth.RefreshCheckInterval == 0:
		add("background_refresh_disabled", LintInfo, "tokens refresh only on 401")
	case c.Auth.RefreshCheckInterval > c.Auth.RefreshThreshold:
		add("refresh_check_slower_than_threshold", LintWarn,
			"check interval %s can skip the %s refresh window", c.Auth.RefreshCheckInterval, c.Auth.RefreshThreshold)
	}

	if c.Session.CheckInterval > c.Session.Timeout {
		add("session_check_slower_than_timeout", LintWarn,
			"idle sessions may outlive the %s timeout by up to %s", c.Session.Timeout, c.Session.CheckInterval)
	}

	limited := false
	for _, op := range rate.Operations() {
		if p, _ := c.RateLimit.Policies.Get(op); p.MaxRequests > 0 {
			limited = true
			break
		}
	}
	if !limited {
		add("rate_limits_disabled", LintWarn, "no operation has a rate limit")
	}

	switch {
	case c.Queue.Disabled:
		add("queue_disabled", LintInfo, "requests are sent without a concurrency bound")
	case c.Queue.MaxQueueSize > 0 && c.Queue.Concurrency > c.Queue.MaxQueueSize:
		// capacity counts waiting and active requests together
		add("queue_concurrency_exceeds_size", LintWarn,
			"concurrency %d is capped at max queue size %d", c.Queue.Concurrency, c.Queue.MaxQueueSize)
	}

	if c.Features.OfflineMode && c.API.RetryAttempts == 0 {
		add("offline_without_retries", LintHigh, "offline operations are dropped on their first failed replay")
	}

	if c.Events.Enabled && !c.Events.DropIfFull {
		add("events_block_when_full", LintWarn, "a slow event sink stalls requests once %d events are buffered", c.Events.BufferSize)
	}
	if !c.Metrics.Enabled {
		add("metrics_disabled", LintInfo, "snapshots and exporters report nothing")
	}

	return ws
}

func isLoopback(host string) bool {
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
