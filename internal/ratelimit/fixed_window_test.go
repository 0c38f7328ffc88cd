package ratelimit

import (
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
)

func TestLimiterBlocksPastQuota(t *testing.T) {
	redis := miniredis.RunT(t)
	limiter, err := New(redis.Addr(), "", "test:ratelimit", 2, time.Second)
	if err != nil {
		t.Fatalf("new limiter: %v", err)
	}
	if !limiter.Allow("ip-1") {
		t.Fatalf("first request should pass")
	}
	if !limiter.Allow("ip-1") {
		t.Fatalf("second request should pass")
	}
	if limiter.Allow("ip-1") {
		t.Fatalf("third request should be blocked")
	}
}

func TestLimiterKeysAreIndependent(t *testing.T) {
	redis := miniredis.RunT(t)
	limiter, err := New(redis.Addr(), "", "test:ratelimit", 1, time.Second)
	if err != nil {
		t.Fatalf("new limiter: %v", err)
	}
	if !limiter.Allow("ip-1") {
		t.Fatalf("ip-1 should pass")
	}
	if !limiter.Allow("ip-2") {
		t.Fatalf("ip-2 has its own quota")
	}
}

func TestLimiterFailsClosed(t *testing.T) {
	redis := miniredis.RunT(t)
	limiter, err := New(redis.Addr(), "", "test:ratelimit", 1, time.Second)
	if err != nil {
		t.Fatalf("new limiter: %v", err)
	}
	redis.Close()
	if limiter.Allow("ip-1") {
		t.Fatalf("limiter should fail closed on redis errors")
	}
}

func TestLimiterRequiresRedisAddr(t *testing.T) {
	limiter, err := New("", "", "test:ratelimit", 1, time.Second)
	if err == nil || limiter != nil {
		t.Fatalf("expected constructor error for empty redis addr")
	}
}
