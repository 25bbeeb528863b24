// Package api provides the HTTP surface: a health endpoint and the two
// Slack webhooks (interactive block actions, slash commands) that feed
// user intent into the conversation manager and remediation coordinator.
package api

import (
	"context"
	"log/slog"
	"net"
	"net/http"

	echo "github.com/labstack/echo/v5"
	"github.com/labstack/echo/v5/middleware"

	"github.com/codeready-toolchain/incidentbot/ent"
	"github.com/codeready-toolchain/incidentbot/pkg/broker"
	"github.com/codeready-toolchain/incidentbot/pkg/conversation"
	"github.com/codeready-toolchain/incidentbot/pkg/detector"
	"github.com/codeready-toolchain/incidentbot/pkg/incidents"
	"github.com/codeready-toolchain/incidentbot/pkg/notifier"
	"github.com/codeready-toolchain/incidentbot/pkg/platform"
	"github.com/codeready-toolchain/incidentbot/pkg/telemetry"
)

// Server is the HTTP API server: one /health endpoint plus the two Slack
// webhooks that drive the conversation manager and remediation coordinator.
type Server struct {
	echo       *echo.Echo
	httpServer *http.Server

	client         *ent.Client
	incidents      *incidents.Store
	conversation   *conversation.Manager
	platform       *platform.Client
	notify         *notifier.Service
	pub            *broker.Broker
	collector      *telemetry.Collector
	refiner        detector.Classifier // optional; nil disables the refined auto_fix recommendation step
	signingSecret  string
	dashboardURL   string
	logger         *slog.Logger
}

// Config bundles the dependencies NewServer wires into routes. SigningSecret
// must be non-empty in any deployment that also sets a bot token; an empty
// secret is accepted here only because config.Validate already refuses to
// start the process in that combination.
type Config struct {
	Client        *ent.Client
	Incidents     *incidents.Store
	Conversation  *conversation.Manager
	Platform      *platform.Client
	Notify        *notifier.Service
	Broker        *broker.Broker
	Collector     *telemetry.Collector
	Refiner       detector.Classifier
	SigningSecret string
	DashboardURL  string
}

// NewServer builds the Echo app and registers all routes.
func NewServer(cfg Config) *Server {
	e := echo.New()

	s := &Server{
		echo:          e,
		client:        cfg.Client,
		incidents:     cfg.Incidents,
		conversation:  cfg.Conversation,
		platform:      cfg.Platform,
		notify:        cfg.Notify,
		pub:           cfg.Broker,
		collector:     cfg.Collector,
		refiner:       cfg.Refiner,
		signingSecret: cfg.SigningSecret,
		dashboardURL:  cfg.DashboardURL,
		logger:        slog.Default().With("component", "api"),
	}

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.echo.Use(middleware.BodyLimit(1024 * 1024))

	s.echo.GET("/health", s.healthHandler)

	webhooks := s.echo.Group("")
	webhooks.Use(s.verifySlackSignature())
	webhooks.POST("/interactive", s.interactiveHandler)
	webhooks.POST("/slash", s.slashHandler)
}

// Start starts the HTTP server on addr (blocking).
func (s *Server) Start(addr string) error {
	s.httpServer = &http.Server{Addr: addr, Handler: s.echo}
	return s.httpServer.ListenAndServe()
}

// StartWithListener starts the HTTP server on a pre-created listener,
// used by tests to bind a random OS-assigned port.
func (s *Server) StartWithListener(ln net.Listener) error {
	s.httpServer = &http.Server{Handler: s.echo}
	return s.httpServer.Serve(ln)
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}
