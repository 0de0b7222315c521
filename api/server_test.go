package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hedgegrid/config"
	"hedgegrid/market"
	"hedgegrid/trader"
)

func newTestServer(t *testing.T) (*Server, *trader.Strategy) {
	t.Helper()
	t.Setenv("ADMIN_PASSWORD", "test-password")
	t.Setenv("JWT_SECRET", "test-secret")
	config.Init()

	cfg := config.DefaultStrategyConfig()
	cfg.Symbol = "TEST"
	venue := trader.NewPaperVenue("TEST", 100000)
	s, err := trader.NewStrategy(cfg, venue, nil)
	require.NoError(t, err)

	return NewServer(s, nil, 0), s
}

func doJSON(t *testing.T, srv *Server, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	srv.router.ServeHTTP(w, req)
	return w
}

func login(t *testing.T, srv *Server) string {
	t.Helper()
	w := doJSON(t, srv, http.MethodPost, "/api/login", "", map[string]string{"password": "test-password"})
	require.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.Token)
	return resp.Token
}

func TestHealthIsPublic(t *testing.T) {
	srv, _ := newTestServer(t)
	w := doJSON(t, srv, http.MethodGet, "/api/health", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestLoginRejectsWrongPassword(t *testing.T) {
	srv, _ := newTestServer(t)
	w := doJSON(t, srv, http.MethodPost, "/api/login", "", map[string]string{"password": "nope"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	srv, _ := newTestServer(t)

	w := doJSON(t, srv, http.MethodGet, "/api/status", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = doJSON(t, srv, http.MethodGet, "/api/status", "not-a-token", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	token := login(t, srv)
	w = doJSON(t, srv, http.MethodGet, "/api/status", token, nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestThrottleEndpoint(t *testing.T) {
	srv, s := newTestServer(t)
	token := login(t, srv)

	w := doJSON(t, srv, http.MethodPost, "/api/throttle", token, map[string]float64{"value": 0.25})
	require.Equal(t, http.StatusOK, w.Code)
	v, _ := s.Ops().Throttle().Float64()
	assert.InDelta(t, 0.25, v, 1e-9)

	w = doJSON(t, srv, http.MethodPost, "/api/throttle", token, map[string]float64{"value": 1.5})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestPauseAndResumeEndpoints(t *testing.T) {
	srv, s := newTestServer(t)
	token := login(t, srv)

	w := doJSON(t, srv, http.MethodPost, "/api/pause", token, map[string]string{"reason": "maintenance"})
	require.Equal(t, http.StatusOK, w.Code)
	paused, reason := s.Ops().Paused()
	assert.True(t, paused)
	assert.Equal(t, "maintenance", reason)

	w = doJSON(t, srv, http.MethodPost, "/api/resume", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	paused, _ = s.Ops().Paused()
	assert.False(t, paused)
}

func TestFlattenEndpoint(t *testing.T) {
	srv, s := newTestServer(t)
	token := login(t, srv)

	w := doJSON(t, srv, http.MethodPost, "/api/flatten", token, map[string]string{"side": "ALL"})
	require.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		Status trader.FlattenStatus `json:"status"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, trader.FlattenStarted, resp.Status)

	w = doJSON(t, srv, http.MethodPost, "/api/flatten", token, map[string]string{"side": "sideways"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// The status endpoint reflects what the pipeline publishes.
	b, err := market.NewBar(time.Now(), 100, 101, 99, 100, 1)
	require.NoError(t, err)
	require.NoError(t, s.OnBar(context.Background(), b))
	w = doJSON(t, srv, http.MethodGet, "/api/ladders", token, nil)
	assert.Equal(t, http.StatusOK, w.Code)
}
