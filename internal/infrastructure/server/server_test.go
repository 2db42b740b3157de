package server

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/taskmaster/scheduler/internal/adapters/blob"
	"github.com/taskmaster/scheduler/internal/application/services"
	"github.com/taskmaster/scheduler/internal/infrastructure/config"
	"github.com/taskmaster/scheduler/internal/infrastructure/logger"
	"github.com/taskmaster/scheduler/internal/ports"
)

func testConfig() *config.Config {
	return &config.Config{
		App:     config.AppConfig{Name: "scheduler", Version: "test"},
		Server:  config.ServerConfig{Port: 8080, BodyLimit: "1M"},
		Metrics: config.MetricsConfig{Enabled: true},
		Blob: config.BlobConfig{
			Token:   "token",
			Prefix:  "scheduler-data",
			Backend: config.BackendMemory,
			Access:  "public",
			Keep:    1,
		},
		Auth: config.AuthConfig{Issuer: "scheduler", ExpiresIn: time.Minute},
	}
}

func newTestServer(t *testing.T, cfg *config.Config, gw ports.BlobGateway) *Server {
	t.Helper()
	log := logger.NewNop()
	reg := prometheus.NewRegistry()

	srv, err := New(cfg, Deps{
		Gateway:  gw,
		Datasets: services.NewDatasetService(gw, cfg.Blob, log, nil),
		Tokens:   services.NewTokenService(cfg.Auth),
		Registry: reg,
	}, log)
	require.NoError(t, err)
	return srv
}

func serve(srv *Server, method, path, body string, header http.Header) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	for k, v := range header {
		req.Header[k] = v
	}
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	return rec
}

type failingPing struct {
	*blob.MemoryGateway
}

func (failingPing) Ping(context.Context) error { return errors.New("unreachable") }

func TestHealthAndReady(t *testing.T) {
	srv := newTestServer(t, testConfig(), blob.NewMemoryGateway())

	assert.Equal(t, http.StatusOK, serve(srv, http.MethodGet, "/health", "", nil).Code)
	assert.Equal(t, http.StatusOK, serve(srv, http.MethodGet, "/ready", "", nil).Code)

	rec := serve(srv, http.MethodGet, "/health/detailed", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"backend":"memory"`)
}

func TestReady_GatewayDown(t *testing.T) {
	srv := newTestServer(t, testConfig(), failingPing{blob.NewMemoryGateway()})

	rec := serve(srv, http.MethodGet, "/ready", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "blob_backend_not_ready")
}

func TestDetailedHealth_ReportsMissingToken(t *testing.T) {
	cfg := testConfig()
	cfg.Blob.Token = ""
	srv := newTestServer(t, cfg, blob.NewMemoryGateway())

	rec := serve(srv, http.MethodGet, "/health/detailed", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), `"token_configured":false`)
}

func TestBlobRoutesMounted(t *testing.T) {
	srv := newTestServer(t, testConfig(), blob.NewMemoryGateway())

	rec := serve(srv, http.MethodPost, "/api/blob", `{"tasks":[],"events":[]}`, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = serve(srv, http.MethodGet, "/api/blob", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"tasks":[],"events":[]}`, rec.Body.String())
}

func TestBodyLimit(t *testing.T) {
	cfg := testConfig()
	cfg.Server.BodyLimit = "1K"
	srv := newTestServer(t, cfg, blob.NewMemoryGateway())

	big := `{"tasks":[{"id":"` + strings.Repeat("x", 4096) + `"}],"events":[]}`
	rec := serve(srv, http.MethodPost, "/api/blob", big, nil)
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	srv := newTestServer(t, testConfig(), blob.NewMemoryGateway())
	serve(srv, http.MethodGet, "/api/blob", "", nil)

	rec := serve(srv, http.MethodGet, "/metrics", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `http_requests_total{method="GET",path="/api/blob",status="200"} 1`)
}

func TestAuth(t *testing.T) {
	cfg := testConfig()
	cfg.Auth.Secret = "s3cret"
	srv := newTestServer(t, cfg, blob.NewMemoryGateway())

	rec := serve(srv, http.MethodGet, "/api/blob", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.JSONEq(t, `{"error":"Missing authorization header"}`, rec.Body.String())

	rec = serve(srv, http.MethodGet, "/api/blob", "", http.Header{"Authorization": {"Bearer nope"}})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	token, err := services.NewTokenService(cfg.Auth).Issue("test")
	require.NoError(t, err)
	rec = serve(srv, http.MethodGet, "/api/blob", "", http.Header{"Authorization": {"Bearer " + token}})
	assert.Equal(t, http.StatusOK, rec.Code)

	// health stays public
	assert.Equal(t, http.StatusOK, serve(srv, http.MethodGet, "/health", "", nil).Code)
}

func TestRequestLogCarriesRequestID(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	log := &logger.Logger{SugaredLogger: zap.New(core).Sugar()}
	cfg := testConfig()
	gw := blob.NewMemoryGateway()

	srv, err := New(cfg, Deps{
		Gateway:  gw,
		Datasets: services.NewDatasetService(gw, cfg.Blob, log, nil),
		Tokens:   services.NewTokenService(cfg.Auth),
		Registry: prometheus.NewRegistry(),
	}, log)
	require.NoError(t, err)

	rec := serve(srv, http.MethodGet, "/health", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	id := rec.Header().Get(echo.HeaderXRequestID)
	require.NotEmpty(t, id)

	entries := logs.FilterMessage("HTTP request").All()
	require.Len(t, entries, 1)
	assert.Equal(t, id, entries[0].ContextMap()["request_id"])
	assert.Equal(t, "/health", entries[0].ContextMap()["uri"])
}
