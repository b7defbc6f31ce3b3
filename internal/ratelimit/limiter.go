// SPDX-License-Identifier: MIT

// Package ratelimit throttles outbound requests made by the fetch phase.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"golang.org/x/time/rate"
)

var rateLimitExceeded = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "stitcher",
		Name:      "ratelimit_exceeded_total",
		Help:      "Total outbound fetch requests rejected by the rate limiter",
	},
	[]string{"scope"},
)

// Config holds outbound rate limiting configuration.
type Config struct {
	// GlobalRate bounds total outbound requests per second across all hosts.
	GlobalRate  rate.Limit
	GlobalBurst int

	// PerHostRate bounds requests per second to any single source host,
	// so one slow or rate-sensitive upstream cannot starve the others.
	PerHostRate  rate.Limit
	PerHostBurst int

	CleanupInterval time.Duration
}

// DefaultConfig returns the documented-low default: maxDownloadWorkers
// defaults around 3 because the remote source is rate-sensitive.
func DefaultConfig() Config {
	return Config{
		GlobalRate:      3,
		GlobalBurst:     6,
		PerHostRate:     2,
		PerHostBurst:    4,
		CleanupInterval: 5 * time.Minute,
	}
}

// Limiter gates outbound fetch requests globally and per source host.
type Limiter struct {
	config Config

	global *rate.Limiter

	mu          sync.RWMutex
	perHost     map[string]*rate.Limiter
	lastCleanup time.Time
}

// New creates an outbound limiter from the given config.
func New(config Config) *Limiter {
	return &Limiter{
		config:      config,
		global:      rate.NewLimiter(config.GlobalRate, config.GlobalBurst),
		perHost:     make(map[string]*rate.Limiter),
		lastCleanup: time.Now(),
	}
}

// Allow reports whether a request to host is permitted right now.
func (l *Limiter) Allow(host string) bool {
	l.maybeCleanup()
	if !l.global.Allow() {
		rateLimitExceeded.WithLabelValues("global").Inc()
		return false
	}

	hostLimiter := l.getHostLimiter(host)
	if !hostLimiter.Allow() {
		rateLimitExceeded.WithLabelValues("per_host").Inc()
		return false
	}

	return true
}

// Wait blocks until a request to host is permitted or ctx is done.
func (l *Limiter) Wait(ctx context.Context, host string) error {
	if err := l.global.Wait(ctx); err != nil {
		return err
	}
	return l.getHostLimiter(host).Wait(ctx)
}

func (l *Limiter) getHostLimiter(host string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	limiter, exists := l.perHost[host]
	if !exists {
		limiter = rate.NewLimiter(l.config.PerHostRate, l.config.PerHostBurst)
		l.perHost[host] = limiter
	}
	return limiter
}

func (l *Limiter) maybeCleanup() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if time.Since(l.lastCleanup) < l.config.CleanupInterval {
		return
	}
	l.perHost = make(map[string]*rate.Limiter)
	l.lastCleanup = time.Now()
}
