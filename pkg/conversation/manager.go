// Package conversation owns per-thread chat sessions: it persists every
// user/assistant/system turn, answers read-only questions by calling the
// platform client directly, and turns mutating commands into remediation
// requests with initiator=user.
package conversation

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/codeready-toolchain/incidentbot/ent"
	"github.com/codeready-toolchain/incidentbot/ent/conversationsession"
	"github.com/codeready-toolchain/incidentbot/ent/remediationaction"
	"github.com/codeready-toolchain/incidentbot/pkg/broker"
	"github.com/codeready-toolchain/incidentbot/pkg/config"
	"github.com/codeready-toolchain/incidentbot/pkg/notifier"
	"github.com/codeready-toolchain/incidentbot/pkg/platform"
	"github.com/codeready-toolchain/incidentbot/pkg/remediation"
)

const historyLimit = 20

// SessionOpened is published on broker.TopicConversationsEvents whenever a
// new ConversationSession is created, for any dashboard or audit consumer
// that wants a live feed of chat activity without polling the table.
type SessionOpened struct {
	SessionID   string
	IncidentID  string // empty if the session has no incident anchor yet
	ThreadTS    string
	Participant string
}

// Manager owns chat-thread session lifecycle and intent dispatch.
type Manager struct {
	client      *ent.Client
	platform    *platform.Client
	notify      *notifier.Service
	pub         *broker.Broker
	replier     Replier
	idleTimeout time.Duration
	logger      *slog.Logger
}

// New wires a Manager's dependencies. replier may be nil, in which case
// free-text input outside the fixed grammar gets a static fallback reply
// instead of an LLM call.
func New(client *ent.Client, platformClient *platform.Client, notify *notifier.Service, pub *broker.Broker, replier Replier, idleTimeout time.Duration) *Manager {
	if idleTimeout <= 0 {
		idleTimeout = 60 * time.Minute
	}
	return &Manager{
		client:      client,
		platform:    platformClient,
		notify:      notify,
		pub:         pub,
		replier:     replier,
		idleTimeout: idleTimeout,
		logger:      slog.Default().With("component", "conversation"),
	}
}

// Open finds or creates the session anchored to threadTS and, on first
// use, appends a system message marking the session's start. incidentID
// may be empty: a start_chat click always carries one, but a slash
// command with no incident token opens an unanchored session, left to
// rely on a later incident-bearing intent or a plain error reply from a
// handler that needs one.
func (m *Manager) Open(ctx context.Context, incidentID, participantID, threadTS string) (*ent.ConversationSession, error) {
	session, created, err := findOrCreateSession(ctx, m.client, incidentID, participantID, threadTS)
	if err != nil {
		return nil, err
	}
	if created {
		if _, err := appendMessage(ctx, m.client, session.ID, config.RoleSystem, "Chat session started", ""); err != nil {
			m.logger.Warn("append session-start message", "session_id", session.ID, "error", err)
		}
		m.pub.Publish(broker.TopicConversationsEvents, SessionOpened{
			SessionID:   session.ID,
			IncidentID:  incidentID,
			ThreadTS:    threadTS,
			Participant: participantID,
		})
	}
	return session, nil
}

// HandleMessage appends the inbound text as a user message, classifies it,
// and dispatches to the matching handler. The session must already be
// open (via Open) and active.
func (m *Manager) HandleMessage(ctx context.Context, threadTS, userID, text string) error {
	session, err := m.client.ConversationSession.Query().
		Where(conversationsession.ChatThreadTSEQ(threadTS), conversationsession.ActiveEQ(true)).
		Only(ctx)
	if err != nil {
		return fmt.Errorf("load active session for thread %s: %w", threadTS, err)
	}

	if _, err := appendMessage(ctx, m.client, session.ID, config.RoleUser, text, userID); err != nil {
		return err
	}

	intent := ParseIntent(text)
	switch {
	case intent.Kind == IntentResolve:
		return m.handleResolve(ctx, session)
	case intent.Kind == IntentHelp:
		return m.reply(ctx, session, threadTS, helpText)
	case intent.IsReadOnly():
		return m.handleReadOnly(ctx, session, threadTS, intent)
	case intent.IsMutating():
		return m.handleMutating(ctx, session, threadTS, userID, intent)
	default:
		return m.handleFreeText(ctx, session, threadTS)
	}
}

const helpText = "Commands: status, logs, deployments, restart, redeploy, stop, " +
	"scale memory <mb>, scale replicas <n>, rollback, resolve, help."

const noIncidentText = "This conversation isn't linked to an incident yet. " +
	"Start it from an incident's start_chat button, or run the slash command " +
	"as \"/incidentbot <incident_id> <command>\"."

func (m *Manager) handleResolve(ctx context.Context, session *ent.ConversationSession) error {
	if err := closeSession(ctx, m.client, session.ID); err != nil {
		return err
	}
	if _, err := appendMessage(ctx, m.client, session.ID, config.RoleSystem, "Session resolved", ""); err != nil {
		m.logger.Warn("append resolve message", "session_id", session.ID, "error", err)
	}
	m.notify.PostReply(ctx, session.ChatThreadTS, "Session closed.")
	return nil
}

func (m *Manager) handleReadOnly(ctx context.Context, session *ent.ConversationSession, threadTS string, intent Intent) error {
	if session.IncidentID == nil {
		return m.reply(ctx, session, threadTS, noIncidentText)
	}
	inc, err := m.client.Incident.Get(ctx, *session.IncidentID)
	if err != nil {
		return fmt.Errorf("load incident %s: %w", *session.IncidentID, err)
	}

	var text string
	switch intent.Kind {
	case IntentStatus:
		text, err = m.describeStatus(ctx, inc)
	case IntentLogs:
		text, err = m.describeLogs(ctx, inc)
	case IntentDeployments:
		text, err = m.describeDeployments(ctx, inc)
	}
	if err != nil {
		text = fmt.Sprintf("Couldn't reach the platform: %v", err)
	}
	return m.reply(ctx, session, threadTS, text)
}

func (m *Manager) describeStatus(ctx context.Context, inc *ent.Incident) (string, error) {
	svc, err := m.platform.GetService(ctx, inc.Service)
	if err != nil {
		return "", err
	}
	for _, instance := range svc.Instances {
		if instance.EnvironmentID != inc.Environment {
			continue
		}
		status := "no deployment"
		if instance.LatestDeployment != nil {
			status = instance.LatestDeployment.Status
		}
		return fmt.Sprintf("*%s* in %s: %d replica(s), latest deployment %s", svc.Name, inc.Environment, instance.NumReplicas, status), nil
	}
	return fmt.Sprintf("No instance of %s found in %s", svc.Name, inc.Environment), nil
}

func (m *Manager) describeLogs(ctx context.Context, inc *ent.Incident) (string, error) {
	deploymentID, err := m.platform.LatestDeploymentID(ctx, inc.Service, inc.Environment)
	if err != nil {
		return "", err
	}
	lines, err := m.platform.GetLogs(ctx, deploymentID, 20)
	if err != nil {
		return "", err
	}
	if len(lines) == 0 {
		return "No recent log lines.", nil
	}
	var b strings.Builder
	b.WriteString("Recent logs:\n")
	for _, line := range lines {
		fmt.Fprintf(&b, "`%s` %s\n", line.Severity, line.Message)
	}
	return b.String(), nil
}

func (m *Manager) describeDeployments(ctx context.Context, inc *ent.Incident) (string, error) {
	deployments, err := m.platform.ListDeployments(ctx, inc.Service, inc.Environment)
	if err != nil {
		return "", err
	}
	if len(deployments) == 0 {
		return "No deployments found.", nil
	}
	var b strings.Builder
	b.WriteString("Recent deployments:\n")
	for _, d := range deployments {
		fmt.Fprintf(&b, "`%s` %s (%s)\n", d.ID, d.Status, d.CreatedAt.Format(time.RFC3339))
	}
	return b.String(), nil
}

var mutatingActionType = map[IntentKind]remediationaction.ActionType{
	IntentRestart:       remediationaction.ActionTypeRestart,
	IntentRedeploy:      remediationaction.ActionTypeDiagnostic,
	IntentStop:          remediationaction.ActionTypeStop,
	IntentScaleMemory:   remediationaction.ActionTypeScaleMemory,
	IntentScaleReplicas: remediationaction.ActionTypeScaleReplicas,
	IntentRollback:      remediationaction.ActionTypeRollback,
}

func (m *Manager) handleMutating(ctx context.Context, session *ent.ConversationSession, threadTS, userID string, intent Intent) error {
	if session.IncidentID == nil {
		return m.reply(ctx, session, threadTS, noIncidentText)
	}
	actionType := mutatingActionType[intent.Kind]
	m.pub.Publish(broker.TopicRemediationActions, remediation.AutoFixRequested{
		IncidentID:  *session.IncidentID,
		Initiator:   config.InitiatorUser,
		InitiatedBy: userID,
		ActionType:  actionType,
		Parameters:  intent.Parameters,
	})
	return m.reply(ctx, session, threadTS, fmt.Sprintf("Got it -- %s is in progress.", string(intent.Kind)))
}

func (m *Manager) handleFreeText(ctx context.Context, session *ent.ConversationSession, threadTS string) error {
	if m.replier == nil {
		return m.reply(ctx, session, threadTS, "I didn't recognize that command. "+helpText)
	}
	turns, err := history(ctx, m.client, session.ID, historyLimit)
	if err != nil {
		return err
	}
	text, err := m.replier.Reply(ctx, turns)
	if err != nil {
		m.logger.Warn("llm reply failed", "session_id", session.ID, "error", err)
		text = "I'm having trouble answering that right now. " + helpText
	}
	return m.reply(ctx, session, threadTS, text)
}

func (m *Manager) reply(ctx context.Context, session *ent.ConversationSession, threadTS, text string) error {
	if _, err := appendMessage(ctx, m.client, session.ID, config.RoleAssistant, text, ""); err != nil {
		return err
	}
	m.notify.PostReply(ctx, threadTS, text)
	return nil
}

// CloseIdleSessions closes every active session whose last message is
// older than the manager's idle timeout.
func (m *Manager) CloseIdleSessions(ctx context.Context) error {
	cutoff := time.Now().Add(-m.idleTimeout)
	idle, err := m.client.ConversationSession.Query().
		Where(
			conversationsession.ActiveEQ(true),
			conversationsession.LastMessageAtLT(cutoff),
		).
		All(ctx)
	if err != nil {
		return fmt.Errorf("query idle sessions: %w", err)
	}
	for _, session := range idle {
		if err := closeSession(ctx, m.client, session.ID); err != nil {
			m.logger.Error("close idle session", "session_id", session.ID, "error", err)
			continue
		}
	}
	return nil
}

// Run periodically sweeps idle sessions until ctx is cancelled.
func (m *Manager) Run(ctx context.Context) {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := m.CloseIdleSessions(ctx); err != nil {
				m.logger.Error("idle session sweep", "error", err)
			}
		}
	}
}
