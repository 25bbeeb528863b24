package logstream

import (
	"context"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/codeready-toolchain/incidentbot/pkg/config"
)

// ConnectionInfo is a supervisor-level snapshot of one managed target,
// returned by ListConnections.
type ConnectionInfo struct {
	Target    config.MonitoringTarget
	Alive     bool
	Connected bool
	State     State
}

// Stats summarizes the supervisor's fleet at a point in time.
type Stats struct {
	Total       int
	Connected   int
	Quarantined int
}

type managedSubscription struct {
	target     config.MonitoringTarget
	sub        *Subscription
	cancel     context.CancelFunc
	done       chan struct{}
	retryTimes []time.Time
}

// Supervisor keeps one Subscription alive per monitoring target, restarting
// it on demand and quarantining targets that restart too often.
type Supervisor struct {
	mu               sync.RWMutex
	subs             map[config.MonitoringTarget]*managedSubscription
	quarantineUntil  map[config.MonitoringTarget]time.Time
	newOptions       func(config.MonitoringTarget) Options
	maxRetryAttempts int
	stopWait         time.Duration
}

// NewSupervisor builds a Supervisor. newOptions is called once per target
// to build the Options a Subscription should run with (base URL, token,
// level, dialer) so callers can vary them per target if needed.
func NewSupervisor(maxRetryAttempts int, newOptions func(config.MonitoringTarget) Options) *Supervisor {
	if maxRetryAttempts <= 0 {
		maxRetryAttempts = 10
	}
	return &Supervisor{
		subs:             make(map[config.MonitoringTarget]*managedSubscription),
		quarantineUntil:  make(map[config.MonitoringTarget]time.Time),
		newOptions:       newOptions,
		maxRetryAttempts: maxRetryAttempts,
		stopWait:         5 * time.Second,
	}
}

// Start begins supervising target if it isn't already running. Idempotent.
func (s *Supervisor) Start(ctx context.Context, target config.MonitoringTarget) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.subs[target]; exists {
		return
	}
	if until, quarantined := s.quarantineUntil[target]; quarantined && time.Now().Before(until) {
		slog.Warn("refusing to start quarantined log subscription", "target", target, "until", until)
		return
	}

	s.startLocked(ctx, target)
}

func (s *Supervisor) startLocked(ctx context.Context, target config.MonitoringTarget) {
	subCtx, cancel := context.WithCancel(ctx)
	sub := New(target, s.newOptions(target))
	managed := &managedSubscription{
		target: target,
		sub:    sub,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	s.subs[target] = managed

	go func() {
		defer close(managed.done)
		sub.Run(subCtx)
	}()
}

// Stop halts the subscription for target, waiting up to a 5s ceiling for
// its goroutine to exit before returning. Idempotent.
func (s *Supervisor) Stop(target config.MonitoringTarget) {
	s.mu.Lock()
	managed, exists := s.subs[target]
	if exists {
		delete(s.subs, target)
	}
	s.mu.Unlock()

	if !exists {
		return
	}

	managed.sub.Stop()
	managed.cancel()

	select {
	case <-managed.done:
	case <-time.After(s.stopWait):
		slog.Warn("log subscription did not stop within ceiling", "target", target)
	}
}

// Restart stops and restarts target's subscription, recording the attempt
// against its restart-storm counter. If the target has restarted
// max_retry_attempts times within the past hour, it is quarantined for a
// jittered backoff window instead of being restarted immediately.
func (s *Supervisor) Restart(ctx context.Context, target config.MonitoringTarget) {
	s.Stop(target)

	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	managed := s.subs[target]
	var retryTimes []time.Time
	if managed != nil {
		retryTimes = managed.retryTimes
	}

	cutoff := now.Add(-1 * time.Hour)
	fresh := retryTimes[:0]
	for _, t := range retryTimes {
		if t.After(cutoff) {
			fresh = append(fresh, t)
		}
	}
	fresh = append(fresh, now)

	if len(fresh) > s.maxRetryAttempts {
		quarantineFor := jitteredQuarantine()
		s.quarantineUntil[target] = now.Add(quarantineFor)
		slog.Warn("quarantining log subscription after restart storm",
			"target", target, "attempts", len(fresh), "for", quarantineFor)
		return
	}

	s.startLocked(ctx, target)
	s.subs[target].retryTimes = fresh
}

// jitteredQuarantine returns a quarantine window of 5-10 minutes with
// randomization, distinct from the deterministic per-connection backoff.
func jitteredQuarantine() time.Duration {
	base := 5 * time.Minute
	jitter := time.Duration(rand.Int64N(int64(5 * time.Minute)))
	return base + jitter
}

// ListConnections returns a snapshot of every currently managed target.
func (s *Supervisor) ListConnections() []ConnectionInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()

	infos := make([]ConnectionInfo, 0, len(s.subs))
	for target, managed := range s.subs {
		state := managed.sub.Snapshot()
		infos = append(infos, ConnectionInfo{
			Target:    target,
			Alive:     true,
			Connected: state.Status == config.SubscriptionConnected,
			State:     state,
		})
	}
	return infos
}

// Stats summarizes the fleet: total managed, currently connected, and
// currently quarantined targets.
func (s *Supervisor) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := Stats{Total: len(s.subs)}
	now := time.Now()
	for _, managed := range s.subs {
		if managed.sub.Snapshot().Status == config.SubscriptionConnected {
			stats.Connected++
		}
	}
	for _, until := range s.quarantineUntil {
		if now.Before(until) {
			stats.Quarantined++
		}
	}
	return stats
}

// Events returns the merged event channel for target, or nil if it isn't
// currently managed.
func (s *Supervisor) Events(target config.MonitoringTarget) <-chan LogEvent {
	s.mu.RLock()
	defer s.mu.RUnlock()
	managed, exists := s.subs[target]
	if !exists {
		return nil
	}
	return managed.sub.Events()
}

// StopAll stops every managed subscription, waiting up to the stop
// ceiling for each.
func (s *Supervisor) StopAll() {
	s.mu.RLock()
	targets := make([]config.MonitoringTarget, 0, len(s.subs))
	for target := range s.subs {
		targets = append(targets, target)
	}
	s.mu.RUnlock()

	for _, target := range targets {
		s.Stop(target)
	}
}
