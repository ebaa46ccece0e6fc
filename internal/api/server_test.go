package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nerrad567/novacloud-core/internal/automation"
	"github.com/nerrad567/novacloud-core/internal/device"
	"github.com/nerrad567/novacloud-core/internal/infrastructure/config"
	"github.com/nerrad567/novacloud-core/internal/infrastructure/logging"
	"github.com/nerrad567/novacloud-core/internal/trigger"
)

// ─── Mocks ──────────────────────────────────────────────────────────────

type mockExecutions struct {
	records   map[string]*automation.ExecutionRecord
	lastLimit int
	err       error
}

func (m *mockExecutions) GetExecution(_ context.Context, id string) (*automation.ExecutionRecord, error) {
	if m.err != nil {
		return nil, m.err
	}
	rec, ok := m.records[id]
	if !ok {
		return nil, automation.ErrExecutionNotFound
	}
	return rec, nil
}

func (m *mockExecutions) ListExecutions(_ context.Context, strategyID string, limit int) ([]automation.ExecutionRecord, error) {
	m.lastLimit = limit
	if m.err != nil {
		return nil, m.err
	}
	out := []automation.ExecutionRecord{}
	for _, rec := range m.records {
		if rec.StrategyID == strategyID {
			out = append(out, *rec)
		}
	}
	return out, nil
}

type mockIngestor struct {
	mu       sync.Mutex
	samples  []trigger.Sample
	statuses map[string]device.Status
	err      error
	// fire stands in for the strategy firings a sample triggers.
	fire func()
}

func (m *mockIngestor) IngestSample(_ context.Context, s trigger.Sample) (*device.Reading, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fire != nil {
		m.fire()
	}
	if m.err != nil {
		return nil, m.err
	}
	if s.SensorID != "s-1" {
		return nil, fmt.Errorf("%w: %s", device.ErrSensorNotFound, s.SensorID)
	}
	m.samples = append(m.samples, s)
	return &device.Reading{ID: int64(len(m.samples)), SensorID: s.SensorID, Value: s.Value, RecordedAt: s.Timestamp}, nil
}

func (m *mockIngestor) IngestStatus(_ context.Context, deviceID string, status device.Status, _ time.Time) (device.StatusChange, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := device.ValidateStatus(status); err != nil {
		return device.StatusChange{}, err
	}
	old, ok := m.statuses[deviceID]
	if !ok {
		return device.StatusChange{}, device.ErrDeviceNotFound
	}
	m.statuses[deviceID] = status
	return device.StatusChange{DeviceID: deviceID, Old: old, New: status}, nil
}

type mockChecker struct{ err error }

func (m mockChecker) HealthCheck(context.Context) error { return m.err }

// ─── Helpers ────────────────────────────────────────────────────────────

type testEnv struct {
	srv        *Server
	handler    http.Handler
	executions *mockExecutions
	ingest     *mockIngestor
}

func newTestServer(t *testing.T, health map[string]HealthChecker) *testEnv {
	t.Helper()

	log := logging.New(config.LoggingConfig{Level: "error", Format: "text", Output: "stdout"}, "test")
	wsCfg := config.WebSocketConfig{Path: "/api/v1/ws", MaxMessageSize: 8192, PingInterval: 30, PongTimeout: 10}

	started := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	executions := &mockExecutions{records: map[string]*automation.ExecutionRecord{
		"ex-1": {ID: "ex-1", StrategyID: "st-1", StrategyName: "Vent on heat", Status: automation.StatusSuccess, CreatedAt: started},
		"ex-2": {ID: "ex-2", StrategyID: "st-gone", StrategyName: automation.DeletedStrategyName, Status: automation.StatusFailed, CreatedAt: started},
	}}
	ingest := &mockIngestor{statuses: map[string]device.Status{"d-1": device.StatusOffline}}

	hub := NewHub(wsCfg, log)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go hub.Run(ctx)

	srv, err := New(Deps{
		Config:     config.APIConfig{Host: "127.0.0.1"},
		WS:         wsCfg,
		Logger:     log,
		Executions: executions,
		Ingest:     ingest,
		Metrics: http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			fmt.Fprintln(w, "novacloud_engine_firings_total 0")
		}),
		Health:  health,
		Hub:     hub,
		Version: "test",
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return &testEnv{srv: srv, handler: srv.buildRouter(), executions: executions, ingest: ingest}
}

func (e *testEnv) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decoding body %q: %v", rec.Body.String(), err)
	}
	return out
}

// ─── Construction ───────────────────────────────────────────────────────

func TestNew_RequiresDeps(t *testing.T) {
	log := logging.New(config.LoggingConfig{Level: "error"}, "test")
	tests := []struct {
		name string
		deps Deps
	}{
		{"no logger", Deps{Executions: &mockExecutions{}, Ingest: &mockIngestor{}}},
		{"no executions", Deps{Logger: log, Ingest: &mockIngestor{}}},
		{"no ingestor", Deps{Logger: log, Executions: &mockExecutions{}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := New(tt.deps); err == nil {
				t.Error("New() should fail")
			}
		})
	}
}

// ─── Health ─────────────────────────────────────────────────────────────

func TestHandleHealth(t *testing.T) {
	env := newTestServer(t, map[string]HealthChecker{"database": mockChecker{}})
	rec := env.do(t, http.MethodGet, "/api/v1/health", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	body := decodeBody(t, rec)
	if body["status"] != "ok" || body["version"] != "test" {
		t.Errorf("body = %v", body)
	}
	if rec.Header().Get("X-Request-ID") == "" {
		t.Error("X-Request-ID header missing")
	}
}

func TestHandleHealth_Degraded(t *testing.T) {
	env := newTestServer(t, map[string]HealthChecker{
		"database": mockChecker{},
		"mqtt":     mockChecker{err: errors.New("mqtt not connected")},
	})
	rec := env.do(t, http.MethodGet, "/api/v1/health", "")
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}
	components := decodeBody(t, rec)["components"].(map[string]any)
	if components["database"] != "ok" || components["mqtt"] != "mqtt not connected" {
		t.Errorf("components = %v", components)
	}
}

func TestHandleSystemAndMetrics(t *testing.T) {
	env := newTestServer(t, nil)

	rec := env.do(t, http.MethodGet, "/api/v1/system", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("system status = %d", rec.Code)
	}
	var info SystemInfo
	if err := json.Unmarshal(rec.Body.Bytes(), &info); err != nil {
		t.Fatalf("decoding system info: %v", err)
	}
	if info.Version != "test" || info.Runtime.Goroutines == 0 {
		t.Errorf("info = %+v", info)
	}

	rec = env.do(t, http.MethodGet, "/metrics", "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "novacloud_engine_firings_total") {
		t.Errorf("metrics = %d %q", rec.Code, rec.Body.String())
	}
}

// ─── Executions ─────────────────────────────────────────────────────────

func TestHandleGetExecution(t *testing.T) {
	env := newTestServer(t, nil)

	tests := []struct {
		name string
		path string
		want int
	}{
		{"found", "/api/v1/executions/ex-1", http.StatusOK},
		{"deleted strategy", "/api/v1/executions/ex-2", http.StatusOK},
		{"missing", "/api/v1/executions/ex-9", http.StatusNotFound},
		{"too long", "/api/v1/executions/" + strings.Repeat("x", maxQueryParamLen+1), http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(t, http.MethodGet, tt.path, "")
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d (%s)", rec.Code, tt.want, rec.Body.String())
			}
		})
	}

	body := decodeBody(t, env.do(t, http.MethodGet, "/api/v1/executions/ex-2", ""))
	if body["strategy_name"] != automation.DeletedStrategyName {
		t.Errorf("strategy_name = %v", body["strategy_name"])
	}
}

func TestHandleGetExecution_StoreError(t *testing.T) {
	env := newTestServer(t, nil)
	env.executions.err = errors.New("database is locked")

	rec := env.do(t, http.MethodGet, "/api/v1/executions/ex-1", "")
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", rec.Code)
	}
	if strings.Contains(rec.Body.String(), "locked") {
		t.Error("internal error detail leaked to the client")
	}
}

func TestHandleListExecutions(t *testing.T) {
	env := newTestServer(t, nil)

	rec := env.do(t, http.MethodGet, "/api/v1/strategies/st-1/executions?limit=5", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if body := decodeBody(t, rec); body["count"] != float64(1) {
		t.Errorf("count = %v, want 1", body["count"])
	}
	if env.executions.lastLimit != 5 {
		t.Errorf("limit = %d, want 5", env.executions.lastLimit)
	}

	// Without a limit the repository default applies.
	env.do(t, http.MethodGet, "/api/v1/strategies/st-1/executions", "")
	if env.executions.lastLimit != 0 {
		t.Errorf("limit = %d, want 0", env.executions.lastLimit)
	}

	for _, bad := range []string{"0", "-3", "ten"} {
		rec := env.do(t, http.MethodGet, "/api/v1/strategies/st-1/executions?limit="+bad, "")
		if rec.Code != http.StatusBadRequest {
			t.Errorf("limit=%s status = %d, want 400", bad, rec.Code)
		}
	}
}

// ─── Ingestion ──────────────────────────────────────────────────────────

func TestHandleTelemetry(t *testing.T) {
	env := newTestServer(t, nil)

	tests := []struct {
		name string
		body string
		want int
	}{
		{"accepted", `{"sensor_id":"s-1","value":27.5,"timestamp":"2026-03-14T09:30:00Z"}`, http.StatusAccepted},
		{"bad json", `{"sensor_id":`, http.StatusBadRequest},
		{"no value", `{"sensor_id":"s-1"}`, http.StatusBadRequest},
		{"unknown sensor", `{"sensor_id":"s-9","value":1}`, http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(t, http.MethodPost, "/api/v1/telemetry", tt.body)
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d (%s)", rec.Code, tt.want, rec.Body.String())
			}
		})
	}

	if len(env.ingest.samples) != 1 {
		t.Fatalf("samples = %d, want 1", len(env.ingest.samples))
	}
	got := env.ingest.samples[0]
	if got.Value != 27.5 || !got.Timestamp.Equal(time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)) {
		t.Errorf("sample = %+v", got)
	}
}

func TestHandleTelemetry_RespondsAfterFirings(t *testing.T) {
	env := newTestServer(t, nil)
	var fired atomic.Bool
	env.ingest.fire = func() {
		time.Sleep(20 * time.Millisecond)
		fired.Store(true)
	}

	rec := env.do(t, http.MethodPost, "/api/v1/telemetry", `{"sensor_id":"s-1","value":31.2}`)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202", rec.Code)
	}
	if !fired.Load() {
		t.Error("response written before strategy firings finished")
	}
}

func TestHandleTelemetry_InvalidPayload(t *testing.T) {
	env := newTestServer(t, nil)
	env.ingest.err = fmt.Errorf("%w: sensor s-1 belongs to d-1", trigger.ErrInvalidPayload)

	rec := env.do(t, http.MethodPost, "/api/v1/telemetry", `{"sensor_id":"s-1","device_id":"d-2","value":1}`)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Errorf("status = %d, want 422", rec.Code)
	}
	if decodeBody(t, rec)["code"] != ErrCodeValidation {
		t.Errorf("code = %v", rec.Body.String())
	}
}

func TestHandleDeviceStatus(t *testing.T) {
	env := newTestServer(t, nil)

	rec := env.do(t, http.MethodPost, "/api/v1/devices/d-1/status", `{"status":"online"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d (%s)", rec.Code, rec.Body.String())
	}
	body := decodeBody(t, rec)
	if body["old_status"] != "offline" || body["new_status"] != "online" || body["changed"] != true {
		t.Errorf("body = %v", body)
	}

	tests := []struct {
		name string
		path string
		body string
		want int
	}{
		{"unknown device", "/api/v1/devices/d-9/status", `{"status":"online"}`, http.StatusNotFound},
		{"invalid status", "/api/v1/devices/d-1/status", `{"status":"melting"}`, http.StatusUnprocessableEntity},
		{"bad json", "/api/v1/devices/d-1/status", `nope`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if rec := env.do(t, http.MethodPost, tt.path, tt.body); rec.Code != tt.want {
				t.Errorf("status = %d, want %d", rec.Code, tt.want)
			}
		})
	}
}

// ─── Middleware ─────────────────────────────────────────────────────────

func TestCORS(t *testing.T) {
	env := newTestServer(t, nil)
	env.srv.cfg.CORS.AllowedOrigins = []string{"https://console.novacloud.example"}
	handler := env.srv.buildRouter()

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/health", nil)
	req.Header.Set("Origin", "https://console.novacloud.example")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusNoContent || rec.Header().Get("Access-Control-Allow-Origin") == "" {
		t.Errorf("preflight = %d %v", rec.Code, rec.Header())
	}

	req = httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
	req.Header.Set("Origin", "https://evil.example")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Header().Get("Access-Control-Allow-Origin") != "" {
		t.Error("disallowed origin received CORS headers")
	}
}

func TestBodySizeLimit(t *testing.T) {
	env := newTestServer(t, nil)
	big := `{"sensor_id":"s-1","value":"` + strings.Repeat("x", maxRequestBodySize) + `"}`
	if rec := env.do(t, http.MethodPost, "/api/v1/telemetry", big); rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

// ─── WebSocket ──────────────────────────────────────────────────────────

func TestWebSocket_SubscribeAndBroadcast(t *testing.T) {
	env := newTestServer(t, nil)
	ts := httptest.NewServer(env.handler)
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/v1/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	defer conn.Close()
	//nolint:errcheck // test deadline
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	sub := WSMessage{Type: WSTypeSubscribe, ID: "1", Payload: WSSubscribePayload{Channels: []string{"strategy.executed"}}}
	if err := conn.WriteJSON(sub); err != nil {
		t.Fatalf("WriteJSON() error = %v", err)
	}
	var resp WSMessage
	if err := conn.ReadJSON(&resp); err != nil {
		t.Fatalf("reading subscribe response: %v", err)
	}
	if resp.Type != WSTypeResponse || resp.ID != "1" {
		t.Fatalf("response = %+v", resp)
	}

	// Unsubscribed channels are not delivered.
	env.srv.hub.Broadcast("device.status", map[string]any{"device_id": "d-1"})
	env.srv.hub.Broadcast("strategy.executed", map[string]any{"id": "ex-1", "status": "success"})

	var event WSMessage
	if err := conn.ReadJSON(&event); err != nil {
		t.Fatalf("reading event: %v", err)
	}
	if event.Type != WSTypeEvent || event.EventType != "strategy.executed" {
		t.Errorf("event = %+v", event)
	}
	if payload, _ := event.Payload.(map[string]any); payload["id"] != "ex-1" {
		t.Errorf("payload = %v", event.Payload)
	}
	if env.srv.hub.ClientCount() != 1 {
		t.Errorf("clients = %d, want 1", env.srv.hub.ClientCount())
	}
}

func TestWebSocket_Ping(t *testing.T) {
	env := newTestServer(t, nil)
	ts := httptest.NewServer(env.handler)
	defer ts.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http")+"/api/v1/ws", nil)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	defer conn.Close()
	//nolint:errcheck // test deadline
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	if err := conn.WriteJSON(WSMessage{Type: WSTypePing, ID: "p"}); err != nil {
		t.Fatalf("WriteJSON() error = %v", err)
	}
	var pong WSMessage
	if err := conn.ReadJSON(&pong); err != nil || pong.Type != WSTypePong {
		t.Errorf("pong = %+v, err = %v", pong, err)
	}

	if err := conn.WriteJSON(WSMessage{Type: "dance"}); err != nil {
		t.Fatalf("WriteJSON() error = %v", err)
	}
	var bad WSMessage
	if err := conn.ReadJSON(&bad); err != nil || bad.Type != WSTypeError {
		t.Errorf("error frame = %+v, err = %v", bad, err)
	}
}

func TestHub_BroadcastWithoutClients(t *testing.T) {
	hub := NewHub(config.WebSocketConfig{}, logging.New(config.LoggingConfig{Level: "error"}, "test"))
	hub.Broadcast("strategy.executed", map[string]any{"id": "ex-1"})
	if hub.ClientCount() != 0 {
		t.Error("hub should have no clients")
	}
}
