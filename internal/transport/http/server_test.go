package http

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/xiaot623/gogo/fitsync/internal/adapter/marketplace"
	"github.com/xiaot623/gogo/fitsync/internal/metrics"
	"github.com/xiaot623/gogo/fitsync/internal/poll"
	"github.com/xiaot623/gogo/fitsync/internal/service"
	"github.com/xiaot623/gogo/fitsync/tests/helpers"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	backend := marketplace.NewMockClient()
	m := metrics.New()
	session := service.NewSessionStore(backend, helpers.NewTestSQLiteStore(t), nil, nil)
	if err := session.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}
	thread := service.NewThreadSync(backend, session, m, nil)
	engine := service.NewEngine(
		session,
		service.NewConversationIndex(backend, session, nil),
		thread,
		service.NewSendCoordinator(backend, session, thread, m, nil),
		poll.NewScheduler(nil, m),
		service.EngineOptions{ConversationInterval: time.Hour, ThreadInterval: time.Hour},
		nil,
	)
	t.Cleanup(engine.Close)

	server := httptest.NewServer(NewBridgeServer(engine, m.Registry, nil))
	t.Cleanup(server.Close)
	return server
}

func TestBridgeServesHealthAndMetrics(t *testing.T) {
	server := newTestServer(t)

	resp, err := http.Get(server.URL + "/health")
	if err != nil {
		t.Fatalf("GET /health: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	resp, err = http.Get(server.URL + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics: %v", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read metrics: %v", err)
	}
	if !strings.Contains(string(body), "go_goroutines") {
		t.Fatalf("metrics output missing go collector")
	}
}

func TestBridgeRoutesSessionEndpoints(t *testing.T) {
	server := newTestServer(t)

	resp, err := http.Post(server.URL+"/v1/screens/conversations", "application/json", nil)
	if err != nil {
		t.Fatalf("POST /v1/screens/conversations: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.StatusCode)
	}

	resp, err = http.Get(server.URL + "/v1/session")
	if err != nil {
		t.Fatalf("GET /v1/session: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
}
