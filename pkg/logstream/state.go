package logstream

import (
	"sync"
	"time"

	"github.com/codeready-toolchain/incidentbot/pkg/config"
)

// State is a point-in-time snapshot of a subscription's state machine,
// safe to copy and publish to callers without exposing the subscription's
// internal locking.
type State struct {
	Status             config.SubscriptionStatus
	LastHeartbeat      time.Time
	ConnectionAttempts int
	BackoffMS          int64
	LastError          string
	Dropped            int64
}

// stateHolder guards the live State behind a mutex; Subscription embeds
// one instead of exposing State fields directly so Snapshot is always a
// consistent copy.
type stateHolder struct {
	mu    sync.RWMutex
	state State
}

func newStateHolder() *stateHolder {
	return &stateHolder{state: State{Status: config.SubscriptionDisconnected}}
}

func (h *stateHolder) Snapshot() State {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.state
}

func (h *stateHolder) setStatus(status config.SubscriptionStatus) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.state.Status = status
}

func (h *stateHolder) onConnected() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.state.Status = config.SubscriptionConnected
	h.state.ConnectionAttempts = 0
	h.state.BackoffMS = 5000
	h.state.LastHeartbeat = time.Now()
	h.state.LastError = ""
}

func (h *stateHolder) onHeartbeat() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.state.LastHeartbeat = time.Now()
}

func (h *stateHolder) onError(err error, backoff time.Duration) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.state.Status = config.SubscriptionError
	h.state.ConnectionAttempts++
	h.state.BackoffMS = backoff.Milliseconds()
	if err != nil {
		h.state.LastError = err.Error()
	}
}

func (h *stateHolder) incDropped() int64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.state.Dropped++
	return h.state.Dropped
}
