package goGateway

import (
	"context"
	"testing"
	"time"
)

func BenchmarkGatewayGet(b *testing.B) {
	env := newTestEnv(b)
	env.login(b)
	ctx := context.Background()

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := env.gw.Get(ctx, "/records", RequestOptions{}); err != nil {
			b.Fatalf("get failed: %v", err)
		}
	}
}

func BenchmarkGatewayGetRateLimited(b *testing.B) {
	env := newTestEnv(b, withConfig(func(c *Config) {
		c.RateLimit.Policies.Set(OpAPI, RateLimitPolicy{Window: time.Hour, MaxRequests: 1 << 30})
	}))
	env.login(b)
	ctx := context.Background()

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := env.gw.Get(ctx, "/records", RequestOptions{RateLimit: true}); err != nil {
			b.Fatalf("get failed: %v", err)
		}
	}
}

func BenchmarkRefresh(b *testing.B) {
	env := newTestEnv(b)
	env.login(b)
	ctx := context.Background()

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := env.gw.Auth().Refresh(ctx); err != nil {
			b.Fatalf("refresh failed: %v", err)
		}
	}
}

func BenchmarkLogin(b *testing.B) {
	env := newTestEnv(b)
	ctx := context.Background()

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		env.login(b)
		if err := env.gw.Logout(ctx); err != nil {
			b.Fatalf("logout failed: %v", err)
		}
	}
}
