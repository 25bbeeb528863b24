// incidentbot watches a fleet of services on a hosting platform, detects
// incidents from their live logs, and drives remediation and Slack chat
// through a single HTTP surface.
package main

import (
	"context"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/codeready-toolchain/incidentbot/pkg/api"
	"github.com/codeready-toolchain/incidentbot/pkg/broker"
	"github.com/codeready-toolchain/incidentbot/pkg/config"
	"github.com/codeready-toolchain/incidentbot/pkg/conversation"
	"github.com/codeready-toolchain/incidentbot/pkg/database"
	"github.com/codeready-toolchain/incidentbot/pkg/detector"
	"github.com/codeready-toolchain/incidentbot/pkg/incidents"
	"github.com/codeready-toolchain/incidentbot/pkg/llm"
	"github.com/codeready-toolchain/incidentbot/pkg/logstream"
	"github.com/codeready-toolchain/incidentbot/pkg/masking"
	"github.com/codeready-toolchain/incidentbot/pkg/notifier"
	"github.com/codeready-toolchain/incidentbot/pkg/platform"
	"github.com/codeready-toolchain/incidentbot/pkg/remediation"
	"github.com/codeready-toolchain/incidentbot/pkg/retention"
	"github.com/codeready-toolchain/incidentbot/pkg/telemetry"
)

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func main() {
	envFile := flag.String("env-file", getEnv("ENV_FILE", ".env"), "path to a .env file to load")
	httpAddr := flag.String("http-addr", getEnv("HTTP_ADDR", ":8080"), "address the HTTP server listens on")
	flag.Parse()

	cfg, err := config.Load(*envFile)
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger := slog.Default().With("component", "main")
	logger.Info("starting incidentbot", "environment", cfg.Environment, "http_addr", *httpAddr)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dbConfig, err := database.LoadConfigFromEnv()
	if err != nil {
		logger.Error("failed to load database config", "error", err)
		os.Exit(1)
	}
	dbClient, err := database.NewClient(ctx, dbConfig)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logger.Error("error closing database client", "error", err)
		}
	}()
	logger.Info("connected to database")

	entClient := dbClient.Client

	masker := masking.NewService(nil)

	var llmClient *llm.Client
	if cfg.LLM.Resolve() != "" {
		llmClient, err = llm.New(cfg.LLM, masker)
		if err != nil {
			logger.Error("failed to construct LLM client", "error", err)
			os.Exit(1)
		}
	}
	var classifier detector.Classifier
	var replier conversation.Replier
	var refiner detector.Classifier
	if llmClient != nil {
		classifier = llmClient
		replier = llmClient
		refiner = llmClient
	}

	platformClient := platform.NewClient(
		cfg.Platform.APIBaseURL,
		cfg.Platform.APIToken,
		cfg.Performance.RateLimitPerSecond,
		cfg.Performance.RateLimitPerHour,
	)

	pub := broker.New()
	store := incidents.NewStore(entClient)
	det := detector.New(store, pub, classifier)

	supervisor := logstream.NewSupervisor(cfg.Performance.MaxRetryAttempts, func(target config.MonitoringTarget) logstream.Options {
		return logstream.Options{
			WSBaseURL:         cfg.Platform.ResolvedWSBaseURL(),
			Token:             cfg.Platform.APIToken,
			ConnectionTimeout: cfg.Performance.ConnectionTimeout,
			HeartbeatInterval: cfg.Performance.HeartbeatInterval,
			HeartbeatTimeout:  cfg.Performance.HeartbeatTimeout,
		}
	})

	targets := cfg.Platform.Targets()
	logger.Info("starting log subscriptions", "targets", len(targets))
	for _, target := range targets {
		supervisor.Start(ctx, target)
		go pumpEvents(ctx, det, pub, supervisor.Events(target))
	}
	go publishConnectionState(ctx, supervisor, pub)

	var notify *notifier.Service
	if cfg.Chat.Enabled() {
		notify = notifier.NewService(notifier.ServiceConfig{
			Token:        cfg.Chat.BotToken,
			Channel:      cfg.Chat.ChannelID,
			DashboardURL: cfg.DashboardURL,
		})
	}

	go notify.Run(ctx, pub, store)

	policies := remediation.NewPolicyStore(entClient)
	coordinator := remediation.NewCoordinator(entClient, store, policies, platformClient, notify, pub, 0)
	go coordinator.Run(ctx)

	convManager := conversation.New(entClient, platformClient, notify, pub, replier, cfg.Performance.ConversationIdleTimeout)
	go convManager.Run(ctx)

	retentionSvc := retention.NewService(entClient, cfg.Retention)
	retentionSvc.Start(ctx)
	defer retentionSvc.Stop()

	collector := telemetry.NewCollector(entClient, supervisor)

	server := api.NewServer(api.Config{
		Client:        entClient,
		Incidents:     store,
		Conversation:  convManager,
		Platform:      platformClient,
		Notify:        notify,
		Broker:        pub,
		Collector:     collector,
		Refiner:       refiner,
		SigningSecret: cfg.Chat.SigningSecret,
		DashboardURL:  cfg.DashboardURL,
	})

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server listening", "addr", *httpAddr)
		if err := server.Start(*httpAddr); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-errCh:
		logger.Error("http server failed", "error", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("error shutting down http server", "error", err)
	}
	supervisor.StopAll()
}

// publishConnectionState broadcasts each project's log-subscription fleet
// state on its railway:connections topic every 15s, for any dashboard that
// wants live connection health without polling /health.
func publishConnectionState(ctx context.Context, supervisor *logstream.Supervisor, pub *broker.Broker) {
	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			byProject := make(map[string][]logstream.ConnectionInfo)
			for _, info := range supervisor.ListConnections() {
				byProject[info.Target.Project] = append(byProject[info.Target.Project], info)
			}
			for project, infos := range byProject {
				pub.Publish(broker.RailwayConnectionsTopic(project), infos)
			}
		}
	}
}

// pumpEvents feeds a target's WebSocket log stream into the detector and,
// for any dashboard that wants a live tail, broadcasts the same events on
// the per-service railway:logs topic.
func pumpEvents(ctx context.Context, det *detector.Detector, pub *broker.Broker, events <-chan logstream.LogEvent) {
	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-events:
			if !ok {
				return
			}
			det.Ingest(ctx, evt)
			pub.Publish(broker.RailwayLogsTopic(evt.ServiceID), evt)
		}
	}
}
