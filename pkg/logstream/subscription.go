// Package logstream owns the per-target WebSocket log subscription state
// machine (C2) and the supervisor that keeps a fleet of them alive (C3).
package logstream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"net/url"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"

	"github.com/codeready-toolchain/incidentbot/pkg/config"
)

// Dialer abstracts the WebSocket handshake so tests can point a
// Subscription at an httptest server instead of a real platform endpoint.
type Dialer func(ctx context.Context, url string) (*websocket.Conn, error)

// DefaultDialer dials with the coder/websocket client, exactly as the
// platform's GraphQL-over-WebSocket endpoint expects.
func DefaultDialer(ctx context.Context, wsURL string) (*websocket.Conn, error) {
	conn, _, err := websocket.Dial(ctx, wsURL, &websocket.DialOptions{})
	return conn, err
}

// Options configures one Subscription.
type Options struct {
	WSBaseURL          string
	Token              string
	Level              config.LogLevel
	ConnectionTimeout  time.Duration
	HeartbeatInterval  time.Duration
	HeartbeatTimeout   time.Duration
	Dialer             Dialer
	EventBufferSize    int
}

func (o Options) withDefaults() Options {
	if o.ConnectionTimeout == 0 {
		o.ConnectionTimeout = 30 * time.Second
	}
	if o.HeartbeatInterval == 0 {
		o.HeartbeatInterval = 30 * time.Second
	}
	if o.HeartbeatTimeout == 0 {
		o.HeartbeatTimeout = 45 * time.Second
	}
	if o.Dialer == nil {
		o.Dialer = DefaultDialer
	}
	if o.EventBufferSize == 0 {
		o.EventBufferSize = 1000
	}
	return o
}

// Subscription is the single-goroutine-owned state machine for one
// (project, environment, service) target.
type Subscription struct {
	target  config.MonitoringTarget
	opts    Options
	state   *stateHolder
	events  chan LogEvent
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// New constructs a Subscription. Call Run to start the state machine and
// Stop to tear it down gracefully.
func New(target config.MonitoringTarget, opts Options) *Subscription {
	opts = opts.withDefaults()
	return &Subscription{
		target: target,
		opts:   opts,
		state:  newStateHolder(),
		events: make(chan LogEvent, opts.EventBufferSize),
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}
}

// Events returns the bounded outbound channel of normalized log events.
func (s *Subscription) Events() <-chan LogEvent { return s.events }

// Snapshot returns the current state machine snapshot.
func (s *Subscription) Snapshot() State { return s.state.Snapshot() }

// Stop requests a graceful shutdown: a complete frame is sent and the
// state machine transitions to Disconnected without scheduling a
// reconnect backoff. Run returns once the in-flight connection, if any,
// has exited.
func (s *Subscription) Stop() {
	select {
	case <-s.stopCh:
	default:
		close(s.stopCh)
	}
	<-s.doneCh
}

// Run drives the state machine until ctx is cancelled or Stop is called.
// It reconnects on error with backoff_ms = min(5000*2^(attempts-1), 60000),
// resetting attempts to zero on every successful connection-ack.
func (s *Subscription) Run(ctx context.Context) {
	defer close(s.doneCh)

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			s.state.setStatus(config.SubscriptionDisconnected)
			return
		default:
		}

		s.state.setStatus(config.SubscriptionConnecting)
		err := s.connectAndServe(ctx)
		if err == nil {
			// connectAndServe only returns nil on graceful Stop/ctx-cancel.
			return
		}

		attempts := s.state.Snapshot().ConnectionAttempts + 1
		backoff := nextBackoff(attempts)
		s.state.onError(err, backoff)
		slog.Warn("log subscription disconnected, reconnecting",
			"project", s.target.Project, "environment", s.target.Environment,
			"service", s.target.Service, "error", err, "backoff_ms", backoff.Milliseconds())

		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			s.state.setStatus(config.SubscriptionDisconnected)
			return
		case <-time.After(backoff):
		}
	}
}

// nextBackoff implements backoff_ms = min(5000*2^(attempts-1), 60000).
func nextBackoff(attempts int) time.Duration {
	ms := 5000 * math.Pow(2, float64(attempts-1))
	if ms > 60000 {
		ms = 60000
	}
	return time.Duration(ms) * time.Millisecond
}

// connectAndServe performs one connection attempt's full lifecycle:
// handshake, frame loop, heartbeat monitoring. It returns nil only when
// the caller asked for a graceful stop; any other return is an error
// that should trigger reconnect-with-backoff.
func (s *Subscription) connectAndServe(ctx context.Context) error {
	connCtx, cancel := context.WithTimeout(ctx, s.opts.ConnectionTimeout)
	wsURL := s.buildWSURL()
	conn, err := s.opts.Dialer(connCtx, wsURL)
	cancel()
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.CloseNow() //nolint:errcheck

	if err := s.handshake(ctx, conn); err != nil {
		return err
	}

	s.state.onConnected()

	subID := uuid.NewString()
	if err := s.subscribe(ctx, conn, subID); err != nil {
		return err
	}

	return s.frameLoop(ctx, conn)
}

func (s *Subscription) buildWSURL() string {
	q := url.Values{}
	q.Set("token", s.opts.Token)
	return s.opts.WSBaseURL + "?" + q.Encode()
}

func (s *Subscription) handshake(ctx context.Context, conn *websocket.Conn) error {
	handshakeCtx, cancel := context.WithTimeout(ctx, s.opts.ConnectionTimeout)
	defer cancel()

	if err := writeFrame(handshakeCtx, conn, frame{Type: frameConnectionInit}); err != nil {
		return fmt.Errorf("send connection_init: %w", err)
	}

	f, err := readFrame(handshakeCtx, conn)
	if err != nil {
		return fmt.Errorf("await connection_ack: %w", err)
	}
	if f.Type != frameConnectionAck {
		return fmt.Errorf("expected connection_ack, got %s", f.Type)
	}
	return nil
}

func (s *Subscription) subscribe(ctx context.Context, conn *websocket.Conn, subID string) error {
	payload, err := json.Marshal(subscribePayload{Query: buildQuery(s.target, s.opts.Level)})
	if err != nil {
		return fmt.Errorf("marshal subscribe payload: %w", err)
	}
	writeCtx, cancel := context.WithTimeout(ctx, s.opts.ConnectionTimeout)
	defer cancel()
	return writeFrame(writeCtx, conn, frame{Type: frameSubscribe, ID: subID, Payload: payload})
}

// frameLoop reads frames until the connection errors, a complete/error
// frame arrives, the heartbeat deadline lapses, or a stop is requested.
func (s *Subscription) frameLoop(ctx context.Context, conn *websocket.Conn) error {
	type readResult struct {
		f   frame
		err error
	}
	reads := make(chan readResult, 1)
	go func() {
		for {
			f, err := readFrame(ctx, conn)
			reads <- readResult{f, err}
			if err != nil {
				return
			}
		}
	}()

	heartbeatTimer := time.NewTimer(s.opts.HeartbeatTimeout)
	defer heartbeatTimer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case <-s.stopCh:
			completeCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			_ = writeFrame(completeCtx, conn, frame{Type: frameComplete})
			cancel()
			s.state.setStatus(config.SubscriptionDisconnected)
			return nil

		case <-heartbeatTimer.C:
			return errors.New("heartbeat timeout: no frame received in time")

		case r := <-reads:
			if r.err != nil {
				return fmt.Errorf("read frame: %w", r.err)
			}
			if !heartbeatTimer.Stop() {
				select {
				case <-heartbeatTimer.C:
				default:
				}
			}
			heartbeatTimer.Reset(s.opts.HeartbeatTimeout)
			s.state.onHeartbeat()

			switch r.f.Type {
			case framePing:
				pongCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
				_ = writeFrame(pongCtx, conn, frame{Type: framePong})
				cancel()
			case frameNext, frameData:
				for _, evt := range parseNextFrame(s.target, r.f.Payload) {
					s.pushEvent(evt)
				}
			case frameError:
				return fmt.Errorf("subscription error frame: %s", string(r.f.Payload))
			case frameComplete:
				// Transport stays open per design; nothing further to do
				// until the peer sends more frames or closes the socket.
			}
		}
	}
}

// pushEvent delivers evt on the bounded outbound channel, dropping the
// oldest buffered event instead of blocking when the channel is full.
func (s *Subscription) pushEvent(evt LogEvent) {
	select {
	case s.events <- evt:
		return
	default:
	}
	select {
	case <-s.events:
	default:
	}
	select {
	case s.events <- evt:
	default:
		s.state.incDropped()
	}
}

func writeFrame(ctx context.Context, conn *websocket.Conn, f frame) error {
	data, err := json.Marshal(f)
	if err != nil {
		return err
	}
	return conn.Write(ctx, websocket.MessageText, data)
}

func readFrame(ctx context.Context, conn *websocket.Conn) (frame, error) {
	_, data, err := conn.Read(ctx)
	if err != nil {
		return frame{}, err
	}
	var f frame
	if err := json.Unmarshal(data, &f); err != nil {
		return frame{}, fmt.Errorf("decode frame: %w", err)
	}
	return f, nil
}
