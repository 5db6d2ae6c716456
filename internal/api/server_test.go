package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/dooshek/murmur/internal/audio"
	"github.com/dooshek/murmur/internal/session"
	"github.com/dooshek/murmur/internal/stats"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeController struct {
	mu       sync.Mutex
	state    session.State
	startErr error
	updates  chan session.Snapshot
}

func newFakeController() *fakeController {
	return &fakeController{updates: make(chan session.Snapshot, 4)}
}

func (f *fakeController) Start() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.startErr != nil {
		return f.startErr
	}
	f.state = session.Listening
	return nil
}

func (f *fakeController) Stop() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.state = session.Idle
	return nil
}

func (f *fakeController) Toggle() (session.State, error) {
	if f.Snapshot().State == session.Listening {
		return session.Idle, f.Stop()
	}
	err := f.Start()
	return f.Snapshot().State, err
}

func (f *fakeController) Snapshot() session.Snapshot {
	f.mu.Lock()
	defer f.mu.Unlock()
	return session.Snapshot{State: f.state, Status: "Ready to Listen", DB: audio.SilenceDB}
}

func (f *fakeController) Subscribe() (<-chan session.Snapshot, func()) {
	return f.updates, func() {}
}

type fakeStats struct{}

func (fakeStats) GetStats() stats.Stats { return stats.Stats{Sessions: 2, Alerts: 1} }

func do(t *testing.T, h http.Handler, method, path string) (int, map[string]interface{}) {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(method, path, nil))
	var body map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("%s %s: invalid JSON %q: %v", method, path, rec.Body.String(), err)
	}
	return rec.Code, body
}

func TestSessionRoutes(t *testing.T) {
	ctrl := newFakeController()
	h := NewServer(ctrl, fakeStats{}, nil).Routes()

	if code, body := do(t, h, http.MethodGet, "/healthz"); code != http.StatusOK || body["status"] != "ok" {
		t.Errorf("healthz = %d %v", code, body)
	}
	if code, body := do(t, h, http.MethodGet, "/api/session"); code != http.StatusOK || body["state"] != "idle" {
		t.Errorf("session = %d %v", code, body)
	}
	if code, body := do(t, h, http.MethodPost, "/api/session/start"); code != http.StatusOK || body["state"] != "listening" {
		t.Errorf("start = %d %v", code, body)
	}
	if code, body := do(t, h, http.MethodPost, "/api/session/toggle"); code != http.StatusOK || body["state"] != "idle" {
		t.Errorf("toggle = %d %v", code, body)
	}
	if code, body := do(t, h, http.MethodPost, "/api/session/stop"); code != http.StatusOK || body["state"] != "idle" {
		t.Errorf("stop = %d %v", code, body)
	}
	if code, body := do(t, h, http.MethodGet, "/api/stats"); code != http.StatusOK || body["sessions"] != float64(2) {
		t.Errorf("stats = %d %v", code, body)
	}
}

func TestStartFailureStatus(t *testing.T) {
	tests := []struct {
		err  error
		code int
		kind string
	}{
		{fmt.Errorf("start session: %w", audio.ErrPermissionDenied), http.StatusForbidden, "permission_denied"},
		{fmt.Errorf("start session: %w", audio.ErrResource), http.StatusServiceUnavailable, "resource"},
		{fmt.Errorf("boom"), http.StatusInternalServerError, "unknown"},
	}

	for _, tt := range tests {
		ctrl := newFakeController()
		ctrl.startErr = tt.err
		h := NewServer(ctrl, nil, nil).Routes()

		code, body := do(t, h, http.MethodPost, "/api/session/start")
		if code != tt.code || body["kind"] != tt.kind {
			t.Errorf("start with %v = %d %v, want %d %s", tt.err, code, body, tt.code, tt.kind)
		}
	}
}

func TestStatsDisabled(t *testing.T) {
	h := NewServer(newFakeController(), nil, nil).Routes()
	if code, _ := do(t, h, http.MethodGet, "/api/stats"); code != http.StatusNotFound {
		t.Errorf("stats code = %d, want 404", code)
	}
}

func TestMetricsRoute(t *testing.T) {
	metrics := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, "murmur_sessions_active 0\n")
	})
	h := NewServer(newFakeController(), nil, metrics).Routes()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "murmur_sessions_active") {
		t.Errorf("metrics = %d %q", rec.Code, rec.Body.String())
	}
}

func TestStreamSendsSnapshots(t *testing.T) {
	ctrl := newFakeController()
	s := NewServer(ctrl, nil, nil)
	srv := httptest.NewServer(s.Routes())
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Watch(ctx)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/session/stream"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))

	var msg WSMessage
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read initial: %v", err)
	}
	if msg.Type != MsgSnapshot || msg.Payload.State != session.Idle {
		t.Errorf("initial message = %+v", msg)
	}

	ctrl.updates <- session.Snapshot{State: session.Listening, Status: "Listening...", Risk: 0.3}
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read update: %v", err)
	}
	if msg.Payload.Status != "Listening..." || msg.Payload.Risk != 0.3 {
		t.Errorf("update = %+v", msg.Payload)
	}
}

func TestCheckLocalOrigin(t *testing.T) {
	tests := map[string]bool{
		"":                      true,
		"http://localhost:3000": true,
		"http://127.0.0.1:8765": true,
		"https://evil.example":  false,
		"::not a url":           false,
	}
	for origin, want := range tests {
		r := httptest.NewRequest(http.MethodGet, "/api/session/stream", nil)
		if origin != "" {
			r.Header.Set("Origin", origin)
		}
		if got := checkLocalOrigin(r); got != want {
			t.Errorf("checkLocalOrigin(%q) = %v, want %v", origin, got, want)
		}
	}
}
