package logstream

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codeready-toolchain/incidentbot/pkg/config"
)

func echoAckServer(t *testing.T) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{InsecureSkipVerify: true})
		if err != nil {
			return
		}
		defer conn.Close(websocket.StatusNormalClosure, "")

		ctx := r.Context()
		if _, _, err := conn.Read(ctx); err != nil { // connection_init
			return
		}
		ackData := []byte(`{"type":"connection_ack"}`)
		if err := conn.Write(ctx, websocket.MessageText, ackData); err != nil {
			return
		}
		if _, _, err := conn.Read(ctx); err != nil { // subscribe
			return
		}
		<-ctx.Done()
	}))
}

func TestSupervisor_StartIsIdempotentAndListsConnection(t *testing.T) {
	server := echoAckServer(t)
	defer server.Close()

	target := config.MonitoringTarget{Project: "p", Environment: "production", Service: "checkout-api"}
	sup := NewSupervisor(10, func(config.MonitoringTarget) Options {
		return Options{WSBaseURL: wsURL(server), ConnectionTimeout: 2 * time.Second, HeartbeatTimeout: 5 * time.Second}
	})

	ctx := context.Background()
	sup.Start(ctx, target)
	sup.Start(ctx, target) // idempotent, must not start a second goroutine

	require.Eventually(t, func() bool {
		infos := sup.ListConnections()
		return len(infos) == 1 && infos[0].Connected
	}, 3*time.Second, 20*time.Millisecond)

	stats := sup.Stats()
	assert.Equal(t, 1, stats.Total)
	assert.Equal(t, 1, stats.Connected)

	sup.StopAll()
	assert.Empty(t, sup.ListConnections())
}

func TestSupervisor_StopThenStartAgainReconnects(t *testing.T) {
	server := echoAckServer(t)
	defer server.Close()

	target := config.MonitoringTarget{Project: "p", Environment: "production", Service: "checkout-api"}
	sup := NewSupervisor(10, func(config.MonitoringTarget) Options {
		return Options{WSBaseURL: wsURL(server), ConnectionTimeout: 2 * time.Second, HeartbeatTimeout: 5 * time.Second}
	})

	ctx := context.Background()
	sup.Start(ctx, target)
	require.Eventually(t, func() bool { return len(sup.ListConnections()) == 1 }, 3*time.Second, 20*time.Millisecond)

	sup.Stop(target)
	assert.Empty(t, sup.ListConnections())

	sup.Start(ctx, target)
	require.Eventually(t, func() bool { return len(sup.ListConnections()) == 1 }, 3*time.Second, 20*time.Millisecond)
	sup.StopAll()
}

func TestSupervisor_RestartStormQuarantinesTarget(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{InsecureSkipVerify: true})
		if err != nil {
			return
		}
		conn.Close(websocket.StatusInternalError, "boom")
	}))
	defer server.Close()

	target := config.MonitoringTarget{Project: "p", Environment: "production", Service: "checkout-api"}
	sup := NewSupervisor(2, func(config.MonitoringTarget) Options {
		return Options{WSBaseURL: wsURL(server), ConnectionTimeout: 500 * time.Millisecond, HeartbeatTimeout: 2 * time.Second}
	})

	ctx := context.Background()
	sup.Start(ctx, target)
	time.Sleep(100 * time.Millisecond)
	sup.Restart(ctx, target)
	sup.Restart(ctx, target)
	sup.Restart(ctx, target)

	assert.Contains(t, sup.quarantineUntil, target)
	sup.StopAll()
}
