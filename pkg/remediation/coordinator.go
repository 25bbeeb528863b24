// Package remediation dispatches auto-fix requests -- policy-gated
// automated triggers from the detector or explicit user requests from the
// conversation manager -- to the hosting platform, tracking each attempt
// as a RemediationAction row and driving the owning incident through its
// awaiting_action/auto_remediated/failed transitions.
package remediation

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/codeready-toolchain/incidentbot/ent"
	"github.com/codeready-toolchain/incidentbot/ent/incident"
	"github.com/codeready-toolchain/incidentbot/ent/remediationaction"
	"github.com/codeready-toolchain/incidentbot/pkg/broker"
	"github.com/codeready-toolchain/incidentbot/pkg/config"
	"github.com/codeready-toolchain/incidentbot/pkg/incidents"
	"github.com/codeready-toolchain/incidentbot/pkg/notifier"
	"github.com/codeready-toolchain/incidentbot/pkg/platform"
)

// AutoFixRequested is published on broker.TopicRemediationActions by
// whatever decided a remediation attempt should happen: the detector for
// policy-gated automated triggers, the conversation manager for an
// operator's explicit "restart" or "scale memory 512" instruction, or the
// Slack interactive handler for a confirm_auto_fix button click.
type AutoFixRequested struct {
	IncidentID  string
	Initiator   config.InitiatorType
	InitiatedBy string // Slack user ID when Initiator == user; empty for automated
	// ActionType overrides the action derived from the incident's
	// recommended_action. Set by the conversation manager when a user
	// issues an explicit command ("restart", "scale memory 512"); left
	// empty for policy-gated automated triggers and for confirm_auto_fix,
	// both of which should carry out the detector's own recommendation.
	ActionType remediationaction.ActionType
	Parameters map[string]interface{}
}

// Coordinator is the sole writer of RemediationAction rows and the sole
// driver of incident status transitions past awaiting_action.
type Coordinator struct {
	client         *ent.Client
	incidents      *incidents.Store
	policies       *PolicyStore
	platform       *platform.Client
	notify         *notifier.Service
	pub            *broker.Broker
	staleThreshold time.Duration
	logger         *slog.Logger
}

// NewCoordinator wires the coordinator's dependencies. staleThreshold
// governs Reconcile's definition of a stuck in-flight action; pass 0 to
// accept the 10-minute default.
func NewCoordinator(client *ent.Client, store *incidents.Store, policies *PolicyStore, platformClient *platform.Client, notify *notifier.Service, pub *broker.Broker, staleThreshold time.Duration) *Coordinator {
	if staleThreshold <= 0 {
		staleThreshold = 10 * time.Minute
	}
	return &Coordinator{
		client:         client,
		incidents:      store,
		policies:       policies,
		platform:       platformClient,
		notify:         notify,
		pub:            pub,
		staleThreshold: staleThreshold,
		logger:         slog.Default().With("component", "remediation"),
	}
}

// Run subscribes to broker.TopicRemediationActions (explicit requests from
// the conversation manager and the Slack interactive handler) and
// broker.TopicIncidentsNew (every freshly detected/reopened incident,
// auto-fix-requested with initiator=automated so the policy gate in
// handle decides whether anything actually happens), handling each in its
// own goroutine until ctx is cancelled.
func (c *Coordinator) Run(ctx context.Context) {
	requests := c.pub.Subscribe(ctx, broker.TopicRemediationActions)
	newIncidents := c.pub.Subscribe(ctx, broker.TopicIncidentsNew)
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-requests:
			if !ok {
				return
			}
			req, ok := msg.(AutoFixRequested)
			if !ok {
				continue
			}
			go c.handle(ctx, req)
		case msg, ok := <-newIncidents:
			if !ok {
				return
			}
			inc, ok := msg.(*ent.Incident)
			if !ok {
				continue
			}
			go c.handle(ctx, AutoFixRequested{IncidentID: inc.ID, Initiator: config.InitiatorAutomated})
		}
	}
}

// handle implements the full auto-fix contract: load and terminal-check
// the incident, gate automated requests on service policy, claim a
// RemediationAction, dispatch it to the platform, and resolve the
// incident's status from the outcome.
func (c *Coordinator) handle(ctx context.Context, req AutoFixRequested) {
	inc, err := c.incidents.Get(ctx, req.IncidentID)
	if err != nil {
		c.logger.Error("load incident for auto-fix request", "incident_id", req.IncidentID, "error", err)
		return
	}
	if config.IncidentStatus(inc.Status).IsTerminal() {
		c.logger.Info("ignoring auto-fix request for terminal incident", "incident_id", inc.ID, "status", inc.Status)
		return
	}

	if req.Initiator == config.InitiatorAutomated {
		policy, err := c.policies.Get(ctx, inc.Project, inc.Environment, inc.Service)
		if err != nil {
			c.logger.Error("load service policy", "incident_id", inc.ID, "error", err)
			return
		}
		if !policy.AutoRemediationEnabled || inc.Confidence < policy.ConfidenceThreshold {
			c.logger.Info("automated remediation not authorized by policy",
				"incident_id", inc.ID, "enabled", policy.AutoRemediationEnabled,
				"confidence", inc.Confidence, "threshold", policy.ConfidenceThreshold)
			return
		}
	}

	actionType := req.ActionType
	if actionType == "" {
		actionType = mapRecommendedAction(inc.RecommendedAction)
	}
	action, err := claimAction(ctx, c.client, inc.ID, actionType, req.Initiator, req.InitiatedBy, req.Parameters)
	if err != nil {
		if errors.Is(err, ErrActionInProgress) {
			c.logger.Info("auto-fix request dropped: action already in flight", "incident_id", inc.ID)
			return
		}
		c.logger.Error("claim remediation action", "incident_id", inc.ID, "error", err)
		return
	}

	if _, err := c.incidents.RequestAutoFix(ctx, inc.ID); err != nil {
		c.logger.Warn("transition incident to awaiting_action", "incident_id", inc.ID, "error", err)
	}
	if _, err := markInProgress(ctx, c.client, action.ID); err != nil {
		c.logger.Error("mark action in_progress", "action_id", action.ID, "error", err)
		return
	}

	message, dispatchErr := dispatch(ctx, c.platform, inc, action)
	if dispatchErr != nil {
		c.finishFailed(ctx, inc, action, dispatchErr.Error())
		return
	}
	c.finishSucceeded(ctx, inc, action, message)
}

func (c *Coordinator) finishSucceeded(ctx context.Context, inc *ent.Incident, action *ent.RemediationAction, message string) {
	if err := markSucceeded(ctx, c.client, action.ID, message); err != nil {
		c.logger.Error("mark action succeeded", "action_id", action.ID, "error", err)
	}
	if _, err := c.incidents.MarkAutoRemediated(ctx, inc.ID); err != nil {
		c.logger.Error("mark incident auto_remediated", "incident_id", inc.ID, "error", err)
	}
	threadTS := ""
	if inc.ChatThreadTS != nil {
		threadTS = *inc.ChatThreadTS
	}
	c.notify.NotifyIncidentResolved(ctx, notifier.ResolvedInput{
		IncidentID:  inc.ID,
		Status:      string(config.IncidentStatusAutoRemediated),
		Summary:     message,
		Fingerprint: inc.Fingerprint,
		ThreadTS:    threadTS,
	})
}

func (c *Coordinator) finishFailed(ctx context.Context, inc *ent.Incident, action *ent.RemediationAction, message string) {
	c.logger.Warn("remediation action failed", "incident_id", inc.ID, "action_id", action.ID, "error", message)
	if err := markFailed(ctx, c.client, action.ID, message); err != nil {
		c.logger.Error("mark action failed", "action_id", action.ID, "error", err)
	}
	if _, err := c.incidents.MarkFailed(ctx, inc.ID); err != nil {
		c.logger.Error("mark incident failed", "incident_id", inc.ID, "error", err)
	}
	threadTS := ""
	if inc.ChatThreadTS != nil {
		threadTS = *inc.ChatThreadTS
	}
	c.notify.NotifyIncidentResolved(ctx, notifier.ResolvedInput{
		IncidentID:  inc.ID,
		Status:      string(config.IncidentStatusFailed),
		Summary:     message,
		Fingerprint: inc.Fingerprint,
		ThreadTS:    threadTS,
	})
}

// Reconcile re-evaluates remediation actions left in_progress or pending
// past staleThreshold -- the signature of a process restart mid-dispatch.
// An incident some other path already resolved to a terminal status
// closes the stale action out without touching the platform again;
// otherwise the action is re-dispatched, relying on the underlying
// mutations (restart, scale, rollback, stop) being safe to repeat.
func (c *Coordinator) Reconcile(ctx context.Context) error {
	cutoff := time.Now().Add(-c.staleThreshold)
	stale, err := c.client.RemediationAction.Query().
		Where(
			remediationaction.StatusIn(remediationaction.StatusPending, remediationaction.StatusInProgress),
			remediationaction.CreatedAtLT(cutoff),
		).
		All(ctx)
	if err != nil {
		return err
	}

	for _, action := range stale {
		inc, err := c.client.Incident.Query().Where(incident.IDEQ(action.IncidentID)).Only(ctx)
		if err != nil {
			c.logger.Error("reconcile: load incident", "action_id", action.ID, "incident_id", action.IncidentID, "error", err)
			continue
		}
		if config.IncidentStatus(inc.Status).IsTerminal() {
			// Incident already resolved by some other path; the stale
			// action is moot. Close it out without re-dispatching.
			_ = markSucceeded(ctx, c.client, action.ID, "reconciled: incident already terminal")
			continue
		}

		message, dispatchErr := dispatch(ctx, c.platform, inc, action)
		if dispatchErr != nil {
			c.finishFailed(ctx, inc, action, dispatchErr.Error())
			continue
		}
		c.finishSucceeded(ctx, inc, action, message)
	}
	return nil
}
