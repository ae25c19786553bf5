// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package memory

import (
	"context"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/holomush/gatekeeper/internal/auth"
)

// DefaultCleanupInterval is how often elapsed windows are dropped.
const DefaultCleanupInterval = time.Minute

// CounterConfig configures a CounterStore.
type CounterConfig struct {
	// CleanupInterval defaults to DefaultCleanupInterval if zero or negative.
	CleanupInterval time.Duration
}

// counterWindow is one fixed window for a key.
type counterWindow struct {
	count   int
	resetAt time.Time
}

// CounterStore counts attempts in fixed windows. It is safe for concurrent
// use. A background goroutine drops elapsed windows; call Close to stop it.
type CounterStore struct {
	mu      sync.Mutex
	windows map[string]*counterWindow
	now     func() time.Time

	stopChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	// nil if no registry was provided
	keysGauge prometheus.Gauge
}

// NewCounterStore creates a counter store. reg may be nil.
func NewCounterStore(cfg CounterConfig, reg prometheus.Registerer) *CounterStore {
	return newCounterStore(cfg, reg, time.Now)
}

func newCounterStore(cfg CounterConfig, reg prometheus.Registerer, now func() time.Time) *CounterStore {
	interval := cfg.CleanupInterval
	if interval <= 0 {
		interval = DefaultCleanupInterval
	}

	s := &CounterStore{
		windows:  make(map[string]*counterWindow),
		now:      now,
		stopChan: make(chan struct{}),
	}

	if reg != nil {
		s.keysGauge = prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "gatekeeper_ratelimit_tracked_keys",
			Help: "Current number of rate limit keys with an open window",
		})
		reg.MustRegister(s.keysGauge)
	}

	s.wg.Add(1)
	go s.cleanupLoop(interval)

	return s
}

// IncrementAndCheck counts one attempt for key. The first attempt after a
// window elapses opens a new window of the given length.
func (s *CounterStore) IncrementAndCheck(ctx context.Context, key string, window time.Duration, maxAttempts int) (auth.Decision, error) {
	if err := ctx.Err(); err != nil {
		return auth.Decision{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	w, ok := s.windows[key]
	if !ok || !now.Before(w.resetAt) {
		w = &counterWindow{resetAt: now.Add(window)}
		s.windows[key] = w
		if !ok && s.keysGauge != nil {
			s.keysGauge.Set(float64(len(s.windows)))
		}
	}
	w.count++

	return auth.Decision{
		Allowed:   w.count <= maxAttempts,
		Limit:     maxAttempts,
		Remaining: max(maxAttempts-w.count, 0),
		ResetAt:   w.resetAt,
	}, nil
}

// Len returns the number of tracked keys.
func (s *CounterStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.windows)
}

// Cleanup drops windows that have elapsed.
func (s *CounterStore) Cleanup() {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	for key, w := range s.windows {
		if !now.Before(w.resetAt) {
			delete(s.windows, key)
		}
	}

	if s.keysGauge != nil {
		s.keysGauge.Set(float64(len(s.windows)))
	}
}

func (s *CounterStore) cleanupLoop(interval time.Duration) {
	defer s.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopChan:
			return
		case <-ticker.C:
			s.Cleanup()
		}
	}
}

// Close stops the cleanup goroutine and waits for it to exit. It is safe to
// call more than once.
func (s *CounterStore) Close() {
	s.stopOnce.Do(func() { close(s.stopChan) })
	s.wg.Wait()
}

var _ auth.CounterStore = (*CounterStore)(nil)
