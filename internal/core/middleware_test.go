package core

import (
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"planguard/internal/config"
	"planguard/internal/types"
)

func newTestServer(t *testing.T, opsSecret string) *Server {
	t.Helper()
	cfg := &config.Config{
		Environment: "local",
		TenantID:    "acme-prod",
		Ops:         config.OpsConfig{Secret: config.SecretString(opsSecret)},
		Build:       config.BuildInfo{Version: "test"},
	}
	s, err := NewServer(cfg, slog.Default())
	require.NoError(t, err)
	return s
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

// =============================================================================
// Request ID
// =============================================================================

func TestRequestIDMiddleware_GeneratesWhenAbsent(t *testing.T) {
	var captured string
	h := RequestIDMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured = types.GetRequestID(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	assert.NotEmpty(t, captured)
	assert.Equal(t, captured, w.Header().Get("X-Request-Id"))
}

func TestRequestIDMiddleware_HonorsInbound(t *testing.T) {
	var captured string
	h := RequestIDMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured = types.GetRequestID(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	req.Header.Set("X-Request-Id", "req_inbound")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	assert.Equal(t, "req_inbound", captured)
	assert.Equal(t, "req_inbound", w.Header().Get("X-Request-Id"))
}

// =============================================================================
// Recoverer
// =============================================================================

func TestRecoverer_CatchesPanic(t *testing.T) {
	s := newTestServer(t, "")
	h := s.Recoverer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("something broke")
	}))

	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	w := httptest.NewRecorder()

	require.NotPanics(t, func() { h.ServeHTTP(w, req) })

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), string(types.ErrCodeInternalUnexpected))
	assert.NotContains(t, w.Body.String(), "something broke", "panic values must not leak to clients")
}

func TestRecoverer_PassesThroughNormally(t *testing.T) {
	s := newTestServer(t, "")
	h := s.Recoverer(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
}

// =============================================================================
// Ops Secret
// =============================================================================

func TestOpsSecretMiddleware_ValidSecret(t *testing.T) {
	s := newTestServer(t, "sh-secret")
	h := s.OpsSecretMiddleware(okHandler())

	req := httptest.NewRequest(http.MethodPost, "/v1/plan/acme-prod/refresh", nil)
	req.Header.Set(OpsSecretHeader, "sh-secret")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestOpsSecretMiddleware_MissingHeader(t *testing.T) {
	s := newTestServer(t, "sh-secret")
	h := s.OpsSecretMiddleware(okHandler())

	req := httptest.NewRequest(http.MethodPost, "/v1/plan/acme-prod/refresh", nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), string(types.ErrCodeAuthSecretMissing))
}

func TestOpsSecretMiddleware_WrongSecret(t *testing.T) {
	s := newTestServer(t, "sh-secret")
	h := s.OpsSecretMiddleware(okHandler())

	req := httptest.NewRequest(http.MethodPost, "/v1/plan/acme-prod/refresh", nil)
	req.Header.Set(OpsSecretHeader, "wrong")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestOpsSecretMiddleware_DisabledWithoutSecret(t *testing.T) {
	s := newTestServer(t, "")
	h := s.OpsSecretMiddleware(okHandler())

	// Even a caller presenting an empty header must not get through when no
	// secret is configured.
	req := httptest.NewRequest(http.MethodPost, "/v1/plan/acme-prod/refresh", nil)
	req.Header.Set(OpsSecretHeader, "")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	assert.Equal(t, http.StatusForbidden, w.Code)
}

// =============================================================================
// Response Capture
// =============================================================================

func TestResponseCapture_RecordsExplicitStatus(t *testing.T) {
	w := httptest.NewRecorder()
	rc := &responseCapture{ResponseWriter: w, statusCode: http.StatusOK}

	rc.WriteHeader(http.StatusTeapot)
	rc.WriteHeader(http.StatusOK) // second call must not overwrite

	assert.Equal(t, http.StatusTeapot, rc.statusCode)
}

func TestResponseCapture_DefaultsTo200OnWrite(t *testing.T) {
	w := httptest.NewRecorder()
	rc := &responseCapture{ResponseWriter: w}

	_, err := rc.Write([]byte("body"))
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, rc.statusCode)
}
