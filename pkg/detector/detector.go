package detector

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/codeready-toolchain/incidentbot/ent/incident"
	"github.com/codeready-toolchain/incidentbot/pkg/broker"
	"github.com/codeready-toolchain/incidentbot/pkg/config"
	"github.com/codeready-toolchain/incidentbot/pkg/incidents"
	"github.com/codeready-toolchain/incidentbot/pkg/logstream"
)

// llmLaneWindow is the tumbling window the LLM lane batches events over.
const llmLaneWindow = 5 * time.Second

// llmTriggerScore is the severity_score threshold (config.LogLevel.Score())
// that, together with "pattern lane did not already reach critical", gates
// the LLM lane.
const llmTriggerScore = 4

// Detector consumes normalized log events per service, runs the pattern
// and LLM detection lanes, fingerprints and deduplicates candidates via
// the incident store, and publishes accepted candidates to the broker.
type Detector struct {
	store      *incidents.Store
	pub        *broker.Broker
	classifier Classifier
	windowSize int
	llmWindow  time.Duration

	mu      sync.Mutex
	windows map[string]*serviceWindow
	pending map[string]bool // services with an LLM-lane trigger armed for this tumbling period

	sf singleflight.Group
}

// Option configures a Detector at construction time.
type Option func(*Detector)

// WithLLMWindow overrides the LLM lane's tumbling window duration
// (default 5s).
func WithLLMWindow(d time.Duration) Option {
	return func(det *Detector) { det.llmWindow = d }
}

// WithWindowSize overrides the per-service sliding window size W
// (default 20).
func WithWindowSize(n int) Option {
	return func(det *Detector) { det.windowSize = n }
}

// New builds a Detector. classifier may be nil, in which case the LLM
// lane is never invoked and every candidate comes from the pattern lane.
func New(store *incidents.Store, pub *broker.Broker, classifier Classifier, opts ...Option) *Detector {
	d := &Detector{
		store:      store,
		pub:        pub,
		classifier: classifier,
		windowSize: defaultWindowSize,
		llmWindow:  llmLaneWindow,
		windows:    make(map[string]*serviceWindow),
		pending:    make(map[string]bool),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

func (d *Detector) windowFor(serviceID string) *serviceWindow {
	d.mu.Lock()
	defer d.mu.Unlock()
	w, ok := d.windows[serviceID]
	if !ok {
		w = newServiceWindow(d.windowSize)
		d.windows[serviceID] = w
	}
	return w
}

// Ingest consumes one normalized log event: it updates the service's
// sliding window, runs the pattern lane synchronously, and arms the LLM
// lane's tumbling-window trigger when the gating condition is met. The
// per-service window lock is never held across the store/broker calls
// below; only the snapshot copy is retained past the lock.
func (d *Detector) Ingest(ctx context.Context, evt logstream.LogEvent) {
	window := d.windowFor(evt.ServiceID).push(evt)

	match := classifyPattern(window, evt)
	if match.matched {
		d.emit(ctx, evt, window, Judgment{
			Severity:          match.severity,
			RecommendedAction: recommendedActionForRule(match.rule),
			Confidence:        0,
			Reasoning:         "pattern match",
		}, sampleLines(window))
	}

	if d.classifier == nil {
		return
	}
	if match.severity == config.SeverityCritical {
		// Pattern lane already reached the ceiling; the LLM lane adds
		// nothing further for this event.
		return
	}
	if !llmLaneTriggered(window) {
		return
	}
	d.armLLMLane(ctx, evt.ServiceID)
}

// llmLaneTriggered reports whether the window contains at least one event
// whose severity_score >= llmTriggerScore.
func llmLaneTriggered(window []logstream.LogEvent) bool {
	for _, e := range window {
		if e.Level.Score() >= llmTriggerScore {
			return true
		}
	}
	return false
}

// armLLMLane schedules a single LLM-lane call for serviceID at most once
// per llmLaneWindow tumbling period; a second trigger while one is already
// scheduled or in flight is coalesced via singleflight.
func (d *Detector) armLLMLane(ctx context.Context, serviceID string) {
	d.mu.Lock()
	if d.pending[serviceID] {
		d.mu.Unlock()
		return
	}
	d.pending[serviceID] = true
	d.mu.Unlock()

	go func() {
		timer := time.NewTimer(d.llmWindow)
		defer timer.Stop()
		select {
		case <-ctx.Done():
		case <-timer.C:
			d.runLLMLane(ctx, serviceID)
		}
		d.mu.Lock()
		delete(d.pending, serviceID)
		d.mu.Unlock()
	}()
}

func (d *Detector) runLLMLane(ctx context.Context, serviceID string) {
	window := d.windowFor(serviceID).snapshot()
	if len(window) == 0 {
		return
	}

	result, err, _ := d.sf.Do(serviceID, func() (any, error) {
		return d.classifier.Classify(ctx, serviceID, window)
	})

	latest := window[len(window)-1]
	if err != nil {
		slog.Warn("llm lane classification failed, falling back to pattern match",
			"service", serviceID, "error", err)
		match := classifyPattern(window, latest)
		if !match.matched {
			return
		}
		d.emit(ctx, latest, window, Judgment{
			Severity:          match.severity,
			RecommendedAction: recommendedActionForRule(match.rule),
			Confidence:        0.5,
			Reasoning:         "pattern match",
		}, sampleLines(window))
		return
	}

	judgment := result.(Judgment)
	d.emit(ctx, latest, window, judgment, sampleLines(window))
}

// emit fingerprints the candidate, upserts it into the incident store,
// and publishes incident_detected unless the upsert was skipped because
// the most recent row for this fingerprint is already terminal.
func (d *Detector) emit(ctx context.Context, evt logstream.LogEvent, window []logstream.LogEvent, j Judgment, samples []string) {
	fp := fingerprint(evt.Message, evt.Level, evt.ServiceID)

	input := incidents.UpsertInput{
		Project:           evt.Project,
		Environment:       evt.EnvironmentID,
		Service:           evt.ServiceID,
		Fingerprint:       fp,
		Severity:          incident.Severity(j.Severity),
		Confidence:        j.Confidence,
		RootCause:         j.RootCause,
		RecommendedAction: incident.RecommendedAction(j.RecommendedAction),
		SampleLogLines:    samples,
	}
	if input.RootCause == "" && j.Reasoning != "" {
		input.RootCause = j.Reasoning
	}

	inc, outcome, err := d.store.Upsert(ctx, input)
	if err != nil {
		slog.Error("incident upsert failed", "service", evt.ServiceID, "fingerprint", fp, "error", err)
		return
	}

	switch outcome {
	case incidents.OutcomeCreated, incidents.OutcomeUpdated:
		d.pub.Publish(broker.TopicIncidentsNew, inc)
		d.pub.Publish(broker.TopicDashboardIncidents, inc)
	case incidents.OutcomeSkipped:
		// Already in a terminal/ignored state; nothing to publish.
	}
}

// sampleLines takes up to the last 5 messages in the window as masked
// representative lines for the incident record.
func sampleLines(window []logstream.LogEvent) []string {
	n := len(window)
	if n > 5 {
		n = 5
	}
	lines := make([]string, 0, n)
	for _, e := range window[len(window)-n:] {
		lines = append(lines, e.Message)
	}
	return lines
}
