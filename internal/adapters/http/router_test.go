package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/dkeye/voicestream/internal/app"
	"github.com/dkeye/voicestream/internal/app/orch"
	"github.com/dkeye/voicestream/internal/config"
	"github.com/dkeye/voicestream/internal/core"
	"github.com/dkeye/voicestream/internal/domain"
	"github.com/gin-gonic/gin"
)

type nopHandle struct{}

func (nopHandle) Subscribe(domain.ConnectionID, core.MediaConnection) error { return nil }
func (nopHandle) Unsubscribe(domain.ConnectionID)                           {}
func (nopHandle) Stop()                                                     {}

type nopEngine struct{}

func (nopEngine) NewConnection(context.Context, domain.ConnectionID) (core.MediaConnection, error) {
	return nil, nil
}

func testConfig() *config.Config {
	return &config.Config{
		Mode:       "test",
		Port:       8080,
		StaticPath: "./web",
		Secret:     "test-secret",
		PingPeriod: 54 * time.Second,
		PongWait:   60 * time.Second,
	}
}

func newTestOrch() *orch.Orchestrator {
	conns := app.NewRegistry()
	return &orch.Orchestrator{
		Conns:    conns,
		Streams:  app.NewStreamRegistry(),
		Notifier: app.NewNotifier(conns, nil),
	}
}

func do(t *testing.T, r http.Handler, method, path string, header map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	for k, v := range header {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestHealth(t *testing.T) {
	gin.SetMode(gin.TestMode)
	o := newTestOrch()
	o.Engine = nopEngine{}
	o.Conns.Attach(nil)
	if _, err := o.Streams.CreateStream("s1", nopHandle{}); err != nil {
		t.Fatal(err)
	}
	r := SetupRouter(context.Background(), testConfig(), o)

	w := do(t, r, http.MethodGet, "/health", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var got HealthResponse
	if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
		t.Fatal(err)
	}
	want := HealthResponse{Status: "healthy", WebRTCAvailable: true, ActiveStreams: 1, ConnectedClients: 1}
	if got != want {
		t.Errorf("health = %+v, want %+v", got, want)
	}
}

func TestHealth_DegradedWithoutEngine(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := SetupRouter(context.Background(), testConfig(), newTestOrch())

	var got HealthResponse
	_ = json.Unmarshal(do(t, r, http.MethodGet, "/health", nil).Body.Bytes(), &got)
	if got.Status != "degraded" || got.WebRTCAvailable {
		t.Errorf("health = %+v", got)
	}
}

func TestStreamsListing(t *testing.T) {
	gin.SetMode(gin.TestMode)
	o := newTestOrch()
	id, _ := o.Streams.CreateStream("s1", nopHandle{})
	_, _ = o.Streams.JoinStream(id, "r1")
	r := SetupRouter(context.Background(), testConfig(), o)

	w := do(t, r, http.MethodGet, "/api/streams", nil)
	var body struct {
		Streams []domain.StreamInfo `json:"streams"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if len(body.Streams) != 1 || body.Streams[0].ID != id || body.Streams[0].Receivers != 1 {
		t.Errorf("streams = %+v", body.Streams)
	}
}

func TestOriginFilter(t *testing.T) {
	gin.SetMode(gin.TestMode)
	cfg := testConfig()
	cfg.AllowedOrigins = []string{"http://allowed.example"}
	r := SetupRouter(context.Background(), cfg, newTestOrch())

	if w := do(t, r, http.MethodGet, "/health", map[string]string{"Origin": "http://evil.example"}); w.Code != http.StatusForbidden {
		t.Errorf("foreign origin status = %d", w.Code)
	}
	w := do(t, r, http.MethodGet, "/health", map[string]string{"Origin": "http://allowed.example"})
	if w.Code != http.StatusOK || w.Header().Get("Access-Control-Allow-Origin") != "http://allowed.example" {
		t.Errorf("allowed origin status=%d headers=%v", w.Code, w.Header())
	}
	if w := do(t, r, http.MethodOptions, "/health", map[string]string{"Origin": "http://allowed.example"}); w.Code != http.StatusNoContent {
		t.Errorf("preflight status = %d", w.Code)
	}
	if w := do(t, r, http.MethodGet, "/health", nil); w.Code != http.StatusOK {
		t.Errorf("same-origin status = %d", w.Code)
	}
}

func TestClientTokenCookie(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := SetupRouter(context.Background(), testConfig(), newTestOrch())

	w := do(t, r, http.MethodGet, "/health", nil)
	if len(w.Result().Cookies()) == 0 {
		t.Error("session cookie not set")
	}
}
