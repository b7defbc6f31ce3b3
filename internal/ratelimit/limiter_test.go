// SPDX-License-Identifier: MIT

package ratelimit

import (
	"context"
	"testing"
	"time"

	"golang.org/x/time/rate"
)

func TestLimiterGlobalBurst(t *testing.T) {
	l := New(Config{
		GlobalRate:      10,
		GlobalBurst:     20,
		PerHostRate:     100,
		PerHostBurst:    200,
		CleanupInterval: time.Minute,
	})

	allowed := 0
	for i := 0; i < 25; i++ {
		if l.Allow("videoA") {
			allowed++
		}
	}
	if allowed < 19 || allowed > 21 {
		t.Errorf("expected ~20 requests to pass with burst=20, got %d", allowed)
	}
}

func TestLimiterPerHostIsolated(t *testing.T) {
	l := New(Config{
		GlobalRate:      1000,
		GlobalBurst:     1000,
		PerHostRate:     5,
		PerHostBurst:    10,
		CleanupInterval: time.Minute,
	})

	allowedA := 0
	for i := 0; i < 20; i++ {
		if l.Allow("hostA") {
			allowedA++
		}
	}
	if allowedA < 9 || allowedA > 11 {
		t.Errorf("expected ~10 requests for hostA with burst=10, got %d", allowedA)
	}

	// A different host gets its own bucket and is unaffected by hostA's burst.
	allowedB := 0
	for i := 0; i < 20; i++ {
		if l.Allow("hostB") {
			allowedB++
		}
	}
	if allowedB < 9 || allowedB > 11 {
		t.Errorf("expected ~10 requests for hostB, got %d", allowedB)
	}
}

func TestLimiterCleanupResetsHostBuckets(t *testing.T) {
	l := New(Config{
		GlobalRate:      1000,
		GlobalBurst:     1000,
		PerHostRate:     10,
		PerHostBurst:    20,
		CleanupInterval: 50 * time.Millisecond,
	})

	for i := 0; i < 5; i++ {
		l.Allow("hostA")
		l.Allow("hostB")
	}

	l.mu.RLock()
	before := len(l.perHost)
	l.mu.RUnlock()
	if before != 2 {
		t.Fatalf("expected 2 host buckets before cleanup, got %d", before)
	}

	time.Sleep(75 * time.Millisecond)
	l.Allow("hostC")

	l.mu.RLock()
	after := len(l.perHost)
	l.mu.RUnlock()
	if after != 1 {
		t.Errorf("expected 1 host bucket after cleanup (only hostC), got %d", after)
	}
}

func TestLimiterWaitRespectsContextCancellation(t *testing.T) {
	l := New(Config{
		GlobalRate:      rate.Limit(0.001),
		GlobalBurst:     1,
		PerHostRate:     rate.Limit(0.001),
		PerHostBurst:    1,
		CleanupInterval: time.Minute,
	})

	// Exhaust the single global/host token.
	if !l.Allow("hostA") {
		t.Fatal("expected first request to consume the burst token")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	if err := l.Wait(ctx, "hostA"); err == nil {
		t.Error("expected Wait to fail once the context deadline is exceeded")
	}
}

func TestDefaultConfigIsLow(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.GlobalRate > 5 {
		t.Errorf("DefaultConfig GlobalRate = %v, want a polite low default", cfg.GlobalRate)
	}
}
