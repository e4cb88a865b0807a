package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/crypto/bcrypt"

	"fleet-core/internal/supervisor"
	"fleet-core/internal/worker"
)

type stubFleet struct {
	started    int
	createErr  error
	stopped    []string
	stopAllN   int
	workers    []worker.Status
	summary    supervisor.Summary
	stopErr    error
	symbolErr  error
	lastConfig worker.Config
}

func (f *stubFleet) CreateWorkers(count int, cfg worker.Config) (int, error) {
	if f.createErr != nil {
		return 0, f.createErr
	}
	f.started += count
	f.lastConfig = cfg
	return count, nil
}

func (f *stubFleet) StopWorker(id, reason string) error {
	if f.stopErr != nil {
		return f.stopErr
	}
	f.stopped = append(f.stopped, id)
	return nil
}

func (f *stubFleet) StopAllWorkers(reason string) int { return f.stopAllN }

func (f *stubFleet) StopSymbol(symbol string) error { return f.symbolErr }

func (f *stubFleet) ListWorkers() []worker.Status { return f.workers }

func (f *stubFleet) GetSummary(ctx context.Context) supervisor.Summary { return f.summary }

const testSecret = "test-secret"

var errUnknown = errors.New("unknown worker")

func timeNowPlusHour() time.Time { return time.Now().Add(time.Hour) }

func newTestServer(t *testing.T, fleet *stubFleet) *Server {
	t.Helper()
	gin.SetMode(gin.TestMode)
	hash, err := bcrypt.GenerateFromPassword([]byte("hunter2"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("bcrypt: %v", err)
	}
	return NewServer(fleet, nil, testSecret, string(hash))
}

func bearer(t *testing.T) string {
	t.Helper()
	token, err := generateToken(testSecret, timeNowPlusHour())
	if err != nil {
		t.Fatalf("token: %v", err)
	}
	return "Bearer " + token
}

func TestHealthIsPublic(t *testing.T) {
	s := newTestServer(t, &stubFleet{})
	w := httptest.NewRecorder()
	s.Router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("health = %d, want 200", w.Code)
	}
}

func TestLoginFlow(t *testing.T) {
	s := newTestServer(t, &stubFleet{})

	// Wrong password.
	w := httptest.NewRecorder()
	body := bytes.NewBufferString(`{"password":"wrong"}`)
	s.Router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/auth/login", body))
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("wrong password = %d, want 401", w.Code)
	}

	// Correct password yields a token that passes the middleware.
	w = httptest.NewRecorder()
	body = bytes.NewBufferString(`{"password":"hunter2"}`)
	s.Router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/auth/login", body))
	if w.Code != http.StatusOK {
		t.Fatalf("login = %d, want 200: %s", w.Code, w.Body.String())
	}
	var resp struct {
		Token string `json:"token"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil || resp.Token == "" {
		t.Fatalf("bad login response: %s", w.Body.String())
	}

	w = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/workers", nil)
	req.Header.Set("Authorization", "Bearer "+resp.Token)
	s.Router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("authorized list = %d, want 200", w.Code)
	}
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	s := newTestServer(t, &stubFleet{})

	paths := []struct {
		method string
		path   string
	}{
		{http.MethodGet, "/api/workers"},
		{http.MethodPost, "/api/workers"},
		{http.MethodPost, "/api/workers/stop-all"},
		{http.MethodGet, "/api/summary"},
		{http.MethodGet, "/api/trades"},
		{http.MethodDelete, "/api/workers/x"},
		{http.MethodDelete, "/api/symbols/BTCUSDC"},
	}
	for _, p := range paths {
		w := httptest.NewRecorder()
		s.Router.ServeHTTP(w, httptest.NewRequest(p.method, p.path, nil))
		if w.Code != http.StatusUnauthorized {
			t.Fatalf("%s %s without token = %d, want 401", p.method, p.path, w.Code)
		}
	}

	// Garbage token must also be rejected.
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/workers", nil)
	req.Header.Set("Authorization", "Bearer not-a-token")
	s.Router.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("garbage token = %d, want 401", w.Code)
	}
}

func TestCreateWorkers(t *testing.T) {
	fleet := &stubFleet{}
	s := newTestServer(t, fleet)

	payload := `{"count":3,"config":{"leverage":10,"percent":5,"strategy":{"kind":"dynamic_volume"}}}`
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/workers", bytes.NewBufferString(payload))
	req.Header.Set("Authorization", bearer(t))
	s.Router.ServeHTTP(w, req)

	if w.Code != http.StatusCreated {
		t.Fatalf("create = %d, want 201: %s", w.Code, w.Body.String())
	}
	if fleet.started != 3 {
		t.Fatalf("started = %d, want 3", fleet.started)
	}
	if fleet.lastConfig.Leverage != 10 || fleet.lastConfig.Strategy.Kind != worker.DynamicVolume {
		t.Fatalf("config not forwarded: %+v", fleet.lastConfig)
	}
}

func TestStopWorkerNotFound(t *testing.T) {
	fleet := &stubFleet{stopErr: errUnknown}
	s := newTestServer(t, fleet)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodDelete, "/api/workers/ghost", nil)
	req.Header.Set("Authorization", bearer(t))
	s.Router.ServeHTTP(w, req)
	if w.Code != http.StatusNotFound {
		t.Fatalf("stop unknown = %d, want 404", w.Code)
	}
}
