// Package incidents wraps the generated ent client with the durable,
// deduplicating incident upsert contract and the restricted set of
// status transitions the rest of the pipeline is allowed to drive.
package incidents

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/codeready-toolchain/incidentbot/ent"
	"github.com/codeready-toolchain/incidentbot/ent/incident"
)

// UpsertOutcome reports which of the three upsert contract branches fired.
type UpsertOutcome string

const (
	OutcomeCreated UpsertOutcome = "created"
	OutcomeUpdated UpsertOutcome = "updated"
	OutcomeSkipped UpsertOutcome = "skipped"
)

var terminalStatuses = []incident.Status{
	incident.StatusAutoRemediated,
	incident.StatusManualResolved,
	incident.StatusIgnored,
}

func isTerminal(s incident.Status) bool {
	for _, t := range terminalStatuses {
		if s == t {
			return true
		}
	}
	return false
}

// UpsertInput carries the mutable fields a detection cycle produces for a
// given (service, fingerprint) pair.
type UpsertInput struct {
	Project           string
	Environment       string
	Service           string
	Fingerprint       string
	Severity          incident.Severity
	Confidence        float64
	RootCause         string
	RecommendedAction incident.RecommendedAction
	SampleLogLines    []string
}

// Store is the durable incident store.
type Store struct {
	client *ent.Client
}

// NewStore wraps an ent client.
func NewStore(client *ent.Client) *Store {
	return &Store{client: client}
}

// Upsert implements the contract in full: insert on no existing row,
// update-in-place (reopening a failed incident) on an open row, or a
// no-op :skipped on a terminal row. The attempt is retried once if the
// initial insert loses a race to a concurrent insert for the same
// (service, fingerprint) pair.
func (s *Store) Upsert(ctx context.Context, in UpsertInput) (*ent.Incident, UpsertOutcome, error) {
	result, outcome, err := s.upsertOnce(ctx, in)
	if err != nil && ent.IsConstraintError(err) {
		return s.upsertOnce(ctx, in)
	}
	return result, outcome, err
}

func (s *Store) upsertOnce(ctx context.Context, in UpsertInput) (*ent.Incident, UpsertOutcome, error) {
	tx, err := s.client.Tx(ctx)
	if err != nil {
		return nil, "", fmt.Errorf("begin incident upsert transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	existing, err := tx.Incident.Query().
		Where(
			incident.ServiceEQ(in.Service),
			incident.FingerprintEQ(in.Fingerprint),
		).
		Order(ent.Desc(incident.FieldDetectedAt)).
		Limit(1).
		ForUpdate().
		First(ctx)

	switch {
	case ent.IsNotFound(err):
		created, err := tx.Incident.Create().
			SetID(uuid.NewString()).
			SetProject(in.Project).
			SetEnvironment(in.Environment).
			SetService(in.Service).
			SetFingerprint(in.Fingerprint).
			SetSeverity(in.Severity).
			SetStatus(incident.StatusDetected).
			SetConfidence(in.Confidence).
			SetNillableRootCause(nonEmptyPtr(in.RootCause)).
			SetRecommendedAction(in.RecommendedAction).
			SetSampleLogLines(in.SampleLogLines).
			Save(ctx)
		if err != nil {
			return nil, "", fmt.Errorf("create incident: %w", err)
		}
		if err := tx.Commit(); err != nil {
			return nil, "", fmt.Errorf("commit incident create: %w", err)
		}
		return created, OutcomeCreated, nil

	case err != nil:
		return nil, "", fmt.Errorf("query existing incident: %w", err)
	}

	if isTerminal(existing.Status) {
		return existing, OutcomeSkipped, nil
	}

	update := existing.Update().
		SetSeverity(in.Severity).
		SetConfidence(in.Confidence).
		SetNillableRootCause(nonEmptyPtr(in.RootCause)).
		SetRecommendedAction(in.RecommendedAction).
		SetSampleLogLines(in.SampleLogLines)
	if existing.Status == incident.StatusFailed {
		update = update.SetStatus(incident.StatusDetected)
	}

	updated, err := update.Save(ctx)
	if err != nil {
		return nil, "", fmt.Errorf("update incident: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, "", fmt.Errorf("commit incident update: %w", err)
	}
	return updated, OutcomeUpdated, nil
}

func nonEmptyPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

var (
	// ErrInvalidTransition is returned when a caller requests a status
	// transition not on the allowed graph in the design's transition
	// diagram.
	ErrInvalidTransition = errors.New("invalid incident status transition")
)

// RequestAutoFix moves a detected incident to awaiting_action, whether the
// trigger was a user clicking Auto-fix or an automatic policy hit.
func (s *Store) RequestAutoFix(ctx context.Context, incidentID string) (*ent.Incident, error) {
	return s.transition(ctx, incidentID, []incident.Status{incident.StatusDetected}, incident.StatusAwaitingAction, nil)
}

// MarkAutoRemediated moves an awaiting_action incident to auto_remediated
// once its remediation action has succeeded.
func (s *Store) MarkAutoRemediated(ctx context.Context, incidentID string) (*ent.Incident, error) {
	now := time.Now()
	return s.transition(ctx, incidentID, []incident.Status{incident.StatusAwaitingAction}, incident.StatusAutoRemediated, &now)
}

// MarkFailed moves an awaiting_action incident to failed after its
// remediation action fails; a later signal reopens it via Upsert.
func (s *Store) MarkFailed(ctx context.Context, incidentID string) (*ent.Incident, error) {
	return s.transition(ctx, incidentID, []incident.Status{incident.StatusAwaitingAction}, incident.StatusFailed, nil)
}

// Ignore moves a detected incident to ignored at the user's request.
func (s *Store) Ignore(ctx context.Context, incidentID string) (*ent.Incident, error) {
	now := time.Now()
	return s.transition(ctx, incidentID, []incident.Status{incident.StatusDetected}, incident.StatusIgnored, &now)
}

// Resolve moves any non-terminal incident to manual_resolved at the
// user's request.
func (s *Store) Resolve(ctx context.Context, incidentID string) (*ent.Incident, error) {
	now := time.Now()
	allowed := []incident.Status{
		incident.StatusDetected, incident.StatusAwaitingAction, incident.StatusFailed,
	}
	return s.transition(ctx, incidentID, allowed, incident.StatusManualResolved, &now)
}

func (s *Store) transition(ctx context.Context, incidentID string, from []incident.Status, to incident.Status, resolvedAt *time.Time) (*ent.Incident, error) {
	tx, err := s.client.Tx(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin status transition transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	current, err := tx.Incident.Query().
		Where(incident.IDEQ(incidentID)).
		ForUpdate().
		Only(ctx)
	if err != nil {
		return nil, fmt.Errorf("query incident %s: %w", incidentID, err)
	}

	allowed := false
	for _, f := range from {
		if current.Status == f {
			allowed = true
			break
		}
	}
	if !allowed {
		return nil, fmt.Errorf("%w: incident %s is %s, need one of %v to reach %s",
			ErrInvalidTransition, incidentID, current.Status, from, to)
	}

	update := current.Update().SetStatus(to)
	if resolvedAt != nil {
		update = update.SetResolvedAt(*resolvedAt)
	}
	updated, err := update.Save(ctx)
	if err != nil {
		return nil, fmt.Errorf("apply status transition: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit status transition: %w", err)
	}
	return updated, nil
}

// Get fetches a single incident by id.
func (s *Store) Get(ctx context.Context, incidentID string) (*ent.Incident, error) {
	return s.client.Incident.Get(ctx, incidentID)
}

// SetChatThreadTS records the Slack thread timestamp the alert notification
// for incidentID was posted to, so later resolution updates and start_chat
// sessions can thread onto the same message. A no-op on an empty threadTS,
// since NotifyIncidentDetected returns "" when the Slack post itself failed.
func (s *Store) SetChatThreadTS(ctx context.Context, incidentID, threadTS string) error {
	if threadTS == "" {
		return nil
	}
	_, err := s.client.Incident.UpdateOneID(incidentID).SetChatThreadTS(threadTS).Save(ctx)
	if err != nil {
		return fmt.Errorf("set chat thread ts for incident %s: %w", incidentID, err)
	}
	return nil
}
