// Command gateway-loadtest drives a gateway against an in-process devserver and
// reports latency percentiles and how requests were turned away.
package main

import (
	"context"
	"crypto/rand"
	"errors"
	"flag"
	"fmt"
	"net/http/httptest"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	goGateway "github.com/MrEthical07/goGateway"
	"github.com/MrEthical07/goGateway/devserver"
	"github.com/MrEthical07/goGateway/jwt"
)

const (
	loadUser     = "loadtest"
	loadPassword = "loadtest-password"
)

func main() {
	var (
		requests         = flag.Int("requests", 5000, "requests per phase (read + write)")
		concurrency      = flag.Int("concurrency", 128, "number of concurrent callers")
		queueSize        = flag.Int("queue-size", 100, "gateway queue capacity (waiting + active)")
		queueConcurrency = flag.Int("queue-concurrency", 10, "requests the gateway runs at once")
		latency          = flag.Duration("latency", 2*time.Millisecond, "latency added by the devserver")
		rateLimit        = flag.Int("rate-limit", 0, "api requests allowed per minute; 0 disables rate limiting")
		revokeEvery      = flag.Int("revoke-every", 1000, "revoke the access token every n reads to force a refresh; 0 disables")
		redisAddr        = flag.String("redis-addr", "", "redis address; if empty, REDIS_ADDR env or miniredis is used")
		verbose          = flag.Bool("verbose", false, "log gateway activity")
	)
	flag.Parse()

	if *requests <= 0 || *concurrency <= 0 || *queueSize <= 0 || *queueConcurrency <= 0 {
		fmt.Fprintln(os.Stderr, "requests, concurrency, queue-size and queue-concurrency must be > 0")
		os.Exit(2)
	}

	logger := zap.NewNop()
	if *verbose {
		l, err := zap.NewDevelopment()
		if err != nil {
			fmt.Fprintf(os.Stderr, "logger: %v\n", err)
			os.Exit(1)
		}
		logger = l
	}
	defer func() { _ = logger.Sync() }()

	client, cleanup, err := redisClient(*redisAddr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "redis: %v\n", err)
		os.Exit(1)
	}
	defer cleanup()

	srv, ts, err := startBackend(*latency, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "devserver: %v\n", err)
		os.Exit(1)
	}
	defer ts.Close()

	cfg := goGateway.DefaultConfig()
	cfg.API.BaseURL = ts.URL
	cfg.Queue.MaxQueueSize = *queueSize
	cfg.Queue.Concurrency = *queueConcurrency
	cfg.Storage.KeyPrefix = "loadtest"
	cfg.Metrics.Enabled = true
	cfg.Metrics.EnableLatencyHistograms = true
	if *rateLimit > 0 {
		cfg.RateLimit.Policies.Set(goGateway.OpAPI, goGateway.RateLimitPolicy{Window: time.Minute, MaxRequests: *rateLimit})
	}

	gw, err := goGateway.New().
		WithConfig(cfg).
		WithTransport(ts.Client()).
		WithRedis(client).
		WithLogger(logger).
		Build()
	if err != nil {
		fmt.Fprintf(os.Stderr, "gateway build: %v\n", err)
		os.Exit(1)
	}
	defer gw.Close()

	ctx := context.Background()
	// a stale window from an earlier run against the same redis would skew the results
	if err := gw.ResetRateLimit(ctx, loadUser); err != nil {
		fmt.Fprintf(os.Stderr, "reset rate limit: %v\n", err)
		os.Exit(1)
	}
	if _, err := gw.Login(ctx, goGateway.Credentials{Username: loadUser, Password: loadPassword}); err != nil {
		fmt.Fprintf(os.Stderr, "login: %v\n", err)
		os.Exit(1)
	}

	reads := runPhase(*requests, *concurrency, func(i int) error {
		if *revokeEvery > 0 && i > 0 && i%*revokeEvery == 0 {
			if tok, ok := gw.Auth().Token(); ok {
				srv.RevokeToken(tok.AccessToken)
			}
		}
		_, err := gw.Get(ctx, "/records", goGateway.RequestOptions{RateLimit: *rateLimit > 0})
		return err
	})
	writes := runPhase(*requests, *concurrency, func(i int) error {
		_, err := gw.Post(ctx, "/records", map[string]string{
			"title":  fmt.Sprintf("load record %d", i),
			"status": "draft",
		}, goGateway.RequestOptions{RateLimit: *rateLimit > 0, Operation: goGateway.OpCreate})
		return err
	})

	fmt.Println("---- results ----")
	printStats("read", reads)
	printStats("write", writes)

	snap := gw.MetricsSnapshot()
	st := srv.Stats()
	fmt.Printf("refresh: success=%d failure=%d shared=%d unauthorized_retry=%d\n",
		snap.Counters[goGateway.MetricRefreshSuccess],
		snap.Counters[goGateway.MetricRefreshFailure],
		snap.Counters[goGateway.MetricRefreshShared],
		snap.Counters[goGateway.MetricUnauthorizedRetry],
	)
	fmt.Printf("backend: logins=%d refreshes=%d requests=%d rejected=%d\n",
		st.Logins, st.Refreshes, st.Requests, st.Rejected)
}

func redisClient(addr string) (redis.UniversalClient, func(), error) {
	if addr == "" {
		addr = os.Getenv("REDIS_ADDR")
	}
	if addr != "" {
		client := redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{addr}})
		fmt.Printf("using redis at %s\n", addr)
		return client, func() { _ = client.Close() }, nil
	}

	mr, err := miniredis.Run()
	if err != nil {
		return nil, nil, err
	}
	client := redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{mr.Addr()}})
	fmt.Printf("using miniredis at %s\n", mr.Addr())
	return client, func() {
		_ = client.Close()
		mr.Close()
	}, nil
}

func startBackend(latency time.Duration, logger *zap.Logger) (*devserver.Server, *httptest.Server, error) {
	secret := make([]byte, 32)
	if _, err := rand.Read(secret); err != nil {
		return nil, nil, err
	}
	tokens, err := jwt.NewManager(jwt.Config{
		AccessTTL:     15 * time.Minute,
		RefreshTTL:    24 * time.Hour,
		SigningMethod: jwt.MethodHS256,
		PrivateKey:    secret,
	})
	if err != nil {
		return nil, nil, err
	}
	srv, err := devserver.New(devserver.Config{
		Tokens:  tokens,
		Logger:  logger.Named("devserver"),
		Latency: latency,
	})
	if err != nil {
		return nil, nil, err
	}
	if err := srv.AddUser(loadUser, loadPassword, devserver.RoleEditor); err != nil {
		return nil, nil, err
	}
	return srv, httptest.NewServer(srv), nil
}

type phaseStats struct {
	total       time.Duration
	ops         int
	failures    int64
	rateLimited int64
	queueFull   int64
	p50         time.Duration
	p95         time.Duration
	p99         time.Duration
	opsPerS     float64
}

func runPhase(ops, concurrency int, call func(i int) error) phaseStats {
	var (
		wg          sync.WaitGroup
		cursor      int64
		failures    int64
		rateLimited int64
		queueFull   int64
		latencies   = make([]time.Duration, 0, ops)
		mu          sync.Mutex
	)

	start := time.Now()
	for w := 0; w < concurrency; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				i := int(atomic.AddInt64(&cursor, 1)) - 1
				if i >= ops {
					return
				}
				t0 := time.Now()
				err := call(i)
				d := time.Since(t0)
				switch {
				case err == nil:
				case errors.Is(err, goGateway.ErrRateLimited):
					atomic.AddInt64(&rateLimited, 1)
				case errors.Is(err, goGateway.ErrQueueFull):
					atomic.AddInt64(&queueFull, 1)
				default:
					atomic.AddInt64(&failures, 1)
				}
				mu.Lock()
				latencies = append(latencies, d)
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	s := computeStats(time.Since(start), latencies)
	s.failures = failures
	s.rateLimited = rateLimited
	s.queueFull = queueFull
	return s
}

func computeStats(total time.Duration, samples []time.Duration) phaseStats {
	if len(samples) == 0 {
		return phaseStats{total: total}
	}
	sort.Slice(samples, func(i, j int) bool { return samples[i] < samples[j] })
	return phaseStats{
		total:   total,
		ops:     len(samples),
		p50:     percentile(samples, 50),
		p95:     percentile(samples, 95),
		p99:     percentile(samples, 99),
		opsPerS: float64(len(samples)) / total.Seconds(),
	}
}

func percentile(samples []time.Duration, p int) time.Duration {
	if len(samples) == 0 {
		return 0
	}
	if p <= 0 {
		return samples[0]
	}
	if p >= 100 {
		return samples[len(samples)-1]
	}
	idx := (len(samples) - 1) * p / 100
	return samples[idx]
}

func printStats(name string, s phaseStats) {
	fmt.Printf("%s: ops=%d failures=%d rate_limited=%d queue_full=%d total=%s ops/sec=%.0f p50=%s p95=%s p99=%s\n",
		name,
		s.ops,
		s.failures,
		s.rateLimited,
		s.queueFull,
		s.total.Round(time.Millisecond),
		s.opsPerS,
		s.p50.Round(time.Microsecond),
		s.p95.Round(time.Microsecond),
		s.p99.Round(time.Microsecond),
	)
}
