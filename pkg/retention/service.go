// Package retention runs the daily jittered sweep that prunes resolved
// incidents (and, by cascade, their remediation actions and conversation
// sessions) plus stale connection-metric samples.
package retention

import (
	"context"
	"log/slog"
	"math/rand"
	"time"

	"github.com/codeready-toolchain/incidentbot/ent"
	"github.com/codeready-toolchain/incidentbot/ent/connectionmetric"
	"github.com/codeready-toolchain/incidentbot/ent/incident"
	"github.com/codeready-toolchain/incidentbot/pkg/config"
)

// Service periodically enforces the retention policy:
//   - Deletes terminal incidents past their retention window (cascades to
//     their remediation actions and conversation sessions)
//   - Deletes connection-metric samples past their own, shorter window
//
// All operations are idempotent and safe to run from multiple replicas.
type Service struct {
	client *ent.Client
	config config.RetentionConfig
	logger *slog.Logger

	cancel context.CancelFunc
	done   chan struct{}
}

// NewService constructs a retention Service.
func NewService(client *ent.Client, cfg config.RetentionConfig) *Service {
	return &Service{
		client: client,
		config: cfg,
		logger: slog.Default().With("component", "retention"),
	}
}

// Start launches the background sweep loop.
func (s *Service) Start(ctx context.Context) {
	if s.cancel != nil {
		return
	}
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})

	go s.run(ctx)

	s.logger.Info("retention sweep started",
		"incident_retention_days", s.config.IncidentRetentionDays,
		"metric_retention", s.config.MetricRetention,
		"interval", s.config.SweepInterval)
}

// Stop signals the sweep loop to exit and waits for it to finish.
func (s *Service) Stop() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	<-s.done
	s.logger.Info("retention sweep stopped")
}

func (s *Service) run(ctx context.Context) {
	defer close(s.done)

	s.sweep(ctx)

	for {
		wait := jitter(s.config.SweepInterval, s.config.SweepJitter)
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
			s.sweep(ctx)
		}
	}
}

// jitter returns interval plus a uniformly random offset in [-spread, +spread].
func jitter(interval, spread time.Duration) time.Duration {
	if spread <= 0 {
		return interval
	}
	offset := time.Duration(rand.Int63n(int64(2*spread))) - spread
	return interval + offset
}

func (s *Service) sweep(ctx context.Context) {
	s.deleteOldIncidents(ctx)
	s.deleteOldMetrics(ctx)
}

func (s *Service) deleteOldIncidents(ctx context.Context) {
	cutoff := time.Now().AddDate(0, 0, -s.config.IncidentRetentionDays)
	count, err := s.client.Incident.Delete().
		Where(
			incident.ResolvedAtNotNil(),
			incident.ResolvedAtLT(cutoff),
		).
		Exec(ctx)
	if err != nil {
		s.logger.Error("retention: incident sweep failed", "error", err)
		return
	}
	if count > 0 {
		s.logger.Info("retention: deleted resolved incidents", "count", count)
	}
}

func (s *Service) deleteOldMetrics(ctx context.Context) {
	cutoff := time.Now().Add(-s.config.MetricRetention)
	count, err := s.client.ConnectionMetric.Delete().
		Where(connectionmetric.SampledAtLT(cutoff)).
		Exec(ctx)
	if err != nil {
		s.logger.Error("retention: connection metric sweep failed", "error", err)
		return
	}
	if count > 0 {
		s.logger.Info("retention: deleted connection metric samples", "count", count)
	}
}
