package notifier

import (
	"context"
	"log/slog"
	"time"

	goslack "github.com/slack-go/slack"

	"github.com/codeready-toolchain/incidentbot/ent"
	"github.com/codeready-toolchain/incidentbot/pkg/broker"
	"github.com/codeready-toolchain/incidentbot/pkg/incidents"
)

// ServiceConfig holds the parameters needed to construct a Service.
type ServiceConfig struct {
	Token        string
	Channel      string
	DashboardURL string
}

// AlertedInput contains the data needed to post a new-incident notification.
type AlertedInput struct {
	AlertInput
}

// ResolvedInput contains the data needed to post a terminal incident update.
type ResolvedInput struct {
	IncidentID  string
	Status      string // resolved, ignored, auto_remediated, failed
	Summary     string
	Fingerprint string
	ThreadTS    string // cached from the alert notification, if known
}

// Service handles Slack notification delivery for incidents.
// Nil-safe: all methods are no-ops when the service is nil, so callers can
// construct it unconditionally and skip a feature-flag check at every call
// site.
type Service struct {
	client       *Client
	dashboardURL string
	logger       *slog.Logger
}

// NewService creates a new Slack notification service.
// Returns nil if Token or Channel is empty, so chat notifications become a
// silent no-op rather than a startup failure when Slack is unconfigured.
func NewService(cfg ServiceConfig) *Service {
	if cfg.Token == "" || cfg.Channel == "" {
		return nil
	}
	return &Service{
		client:       NewClient(cfg.Token, cfg.Channel),
		dashboardURL: cfg.DashboardURL,
		logger:       slog.Default().With("component", "notifier"),
	}
}

// NewServiceWithClient creates a Service backed by a pre-built Client.
// Useful for testing against a mock Slack API server.
func NewServiceWithClient(client *Client, dashboardURL string) *Service {
	return &Service{
		client:       client,
		dashboardURL: dashboardURL,
		logger:       slog.Default().With("component", "notifier"),
	}
}

// NotifyIncidentDetected posts a new-incident alert with interactive
// buttons. If a prior message with the same fingerprint exists in the
// channel (e.g. a flapping incident reopened within the same day), the new
// alert threads onto it instead of creating a new top-level message.
// Returns the resolved thread timestamp for reuse by the resolution
// notification. Fail-open: errors are logged, never returned — a Slack
// outage must never block the detection pipeline.
func (s *Service) NotifyIncidentDetected(ctx context.Context, input AlertedInput) string {
	if s == nil {
		return ""
	}

	threadTS, err := s.client.FindMessageByFingerprint(ctx, input.Fingerprint)
	if err != nil {
		s.logger.Warn("failed to find Slack thread for fingerprint",
			"incident_id", input.IncidentID,
			"fingerprint", input.Fingerprint,
			"error", err)
	}

	blocks := BuildAlertMessage(input.AlertInput, s.dashboardURL)
	if err := s.client.PostMessage(ctx, blocks, threadTS, 5*time.Second); err != nil {
		s.logger.Error("failed to send Slack alert",
			"incident_id", input.IncidentID, "error", err)
	}

	return threadTS
}

// NotifyIncidentResolved posts a terminal status update, threaded onto the
// original alert when a thread timestamp is known or can be recovered by
// fingerprint. Fail-open: errors are logged, never returned.
func (s *Service) NotifyIncidentResolved(ctx context.Context, input ResolvedInput) {
	if s == nil {
		return
	}

	threadTS := input.ThreadTS
	if threadTS == "" && input.Fingerprint != "" {
		var err error
		threadTS, err = s.client.FindMessageByFingerprint(ctx, input.Fingerprint)
		if err != nil {
			s.logger.Warn("failed to find Slack thread for fingerprint",
				"incident_id", input.IncidentID,
				"fingerprint", input.Fingerprint,
				"error", err)
		}
	}

	blocks := BuildResolutionMessage(ResolutionInput{
		IncidentID: input.IncidentID,
		Status:     input.Status,
		Summary:    input.Summary,
	})
	if err := s.client.PostMessage(ctx, blocks, threadTS, 10*time.Second); err != nil {
		s.logger.Error("failed to send Slack resolution update",
			"incident_id", input.IncidentID, "status", input.Status, "error", err)
	}
}

// PostReply posts a plain-text threaded reply, used by the conversation
// manager for intent acknowledgements and LLM free-text answers.
// Fail-open: errors are logged, never returned.
func (s *Service) PostReply(ctx context.Context, threadTS, text string) {
	if s == nil {
		return
	}
	if err := s.client.PostMessage(ctx, BuildTextMessage(text), threadTS, 10*time.Second); err != nil {
		s.logger.Error("failed to send Slack conversation reply", "thread_ts", threadTS, "error", err)
	}
}

// Run subscribes to broker.TopicIncidentsNew and posts a new-incident alert
// for every message, persisting the resulting Slack thread timestamp back
// onto the incident row so the remediation coordinator's resolution update
// and the conversation manager's start_chat lookup can both thread onto it.
// Nil-safe like every other method on Service: a nil receiver drains the
// subscription without posting anything, so main can start this goroutine
// unconditionally regardless of whether Slack is configured.
func (s *Service) Run(ctx context.Context, pub *broker.Broker, store *incidents.Store) {
	sub := pub.Subscribe(ctx, broker.TopicIncidentsNew)
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-sub:
			if !ok {
				return
			}
			inc, ok := msg.(*ent.Incident)
			if !ok {
				continue
			}
			go s.notifyAndPersist(ctx, store, inc)
		}
	}
}

func (s *Service) notifyAndPersist(ctx context.Context, store *incidents.Store, inc *ent.Incident) {
	if s == nil {
		return
	}

	rootCause := ""
	if inc.RootCause != nil {
		rootCause = *inc.RootCause
	}

	threadTS := s.NotifyIncidentDetected(ctx, AlertedInput{AlertInput: AlertInput{
		IncidentID:        inc.ID,
		ServiceName:       inc.Service,
		Environment:       inc.Environment,
		Severity:          string(inc.Severity),
		Confidence:        inc.Confidence,
		RootCause:         rootCause,
		RecommendedAction: string(inc.RecommendedAction),
		DetectedAt:        inc.DetectedAt.Format(time.RFC3339),
		Fingerprint:       inc.Fingerprint,
	}})

	if err := store.SetChatThreadTS(ctx, inc.ID, threadTS); err != nil {
		s.logger.Error("persist chat thread ts", "incident_id", inc.ID, "error", err)
	}
}

// PostBlocks posts an arbitrary set of pre-built blocks as a threaded
// reply, used by the /interactive handler to post the confirm_auto_fix
// button row after the refine step. Unlike PostReply/NotifyIncidentDetected
// this returns its error instead of swallowing it: the caller needs to know
// whether the confirmation actually reached the channel before logging its
// own outcome.
func (s *Service) PostBlocks(ctx context.Context, threadTS string, blocks []goslack.Block) error {
	if s == nil {
		return nil
	}
	return s.client.PostMessage(ctx, blocks, threadTS, 10*time.Second)
}
