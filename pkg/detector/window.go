package detector

import (
	"sync"

	"github.com/codeready-toolchain/incidentbot/pkg/logstream"
)

// defaultWindowSize is W, the number of most-recent events retained per
// service. Events beyond the bound evict the oldest.
const defaultWindowSize = 20

// serviceWindow holds the bounded sliding window for one service_id,
// guarded by its own mutex so one busy service never blocks another's
// ingestion.
type serviceWindow struct {
	mu     sync.Mutex
	size   int
	events []logstream.LogEvent
}

func newServiceWindow(size int) *serviceWindow {
	if size <= 0 {
		size = defaultWindowSize
	}
	return &serviceWindow{size: size, events: make([]logstream.LogEvent, 0, size)}
}

// push appends evt, evicting the oldest entry if the window is full, and
// returns a snapshot copy of the window after the append. The copy lets
// callers run pattern matching and LLM-lane gating without holding the
// window's lock.
func (w *serviceWindow) push(evt logstream.LogEvent) []logstream.LogEvent {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.events = append(w.events, evt)
	if len(w.events) > w.size {
		w.events = w.events[len(w.events)-w.size:]
	}

	snapshot := make([]logstream.LogEvent, len(w.events))
	copy(snapshot, w.events)
	return snapshot
}

func (w *serviceWindow) snapshot() []logstream.LogEvent {
	w.mu.Lock()
	defer w.mu.Unlock()
	snapshot := make([]logstream.LogEvent, len(w.events))
	copy(snapshot, w.events)
	return snapshot
}
