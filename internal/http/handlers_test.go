package http

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dropDatabas3/keymint/internal/cache"
	"github.com/dropDatabas3/keymint/internal/keystore"
	"github.com/dropDatabas3/keymint/internal/metrics"
	"github.com/dropDatabas3/keymint/internal/registry"
	memstore "github.com/dropDatabas3/keymint/internal/store/adapters/memory"
)

func newTestAPI(t *testing.T) http.Handler {
	t.Helper()
	c := cache.NewMemory("", time.Minute)
	t.Cleanup(func() { c.Close() })
	svc := keystore.New(memstore.New(), c, registry.NewMemory())

	reg := prometheus.NewRegistry()
	metrics.Register(reg)
	return NewRouter(NewHandlers(svc), nil, reg)
}

func postJSON(t *testing.T, h http.Handler, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	b, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(b))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func TestProvisionSignVerifyFlow(t *testing.T) {
	api := newTestAPI(t)

	rr := postJSON(t, api, "/v1/namespaces", map[string]any{
		"id":                   "wallet-1",
		"algorithm":            "HS256",
		"token_ttl_secs":       300,
		"clock_tolerance_secs": 30,
	})
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())

	rr = postJSON(t, api, "/v1/tokens", map[string]any{
		"namespace": "wallet-1",
		"claims":    map[string]any{"sub": "user-42"},
	})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	var signed struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &signed))
	require.NotEmpty(t, signed.Token)

	rr = postJSON(t, api, "/v1/verify", map[string]any{"token": signed.Token})
	require.Equal(t, http.StatusOK, rr.Code)

	var verified struct {
		Valid  bool           `json:"valid"`
		Claims map[string]any `json:"claims"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &verified))
	assert.True(t, verified.Valid)
	assert.Equal(t, "user-42", verified.Claims["sub"])
}

func TestProvisionUnsupportedAlgorithm(t *testing.T) {
	api := newTestAPI(t)

	rr := postJSON(t, api, "/v1/namespaces", map[string]any{
		"id": "ns1", "algorithm": "XYZ256", "token_ttl_secs": 300,
	})
	assert.Equal(t, http.StatusUnprocessableEntity, rr.Code)
	assert.Contains(t, rr.Body.String(), "unsupported_algorithm")
}

func TestSignUnknownNamespace(t *testing.T) {
	api := newTestAPI(t)

	rr := postJSON(t, api, "/v1/tokens", map[string]any{
		"namespace": "nope", "claims": map[string]any{},
	})
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestVerifyGarbageToken(t *testing.T) {
	api := newTestAPI(t)

	rr := postJSON(t, api, "/v1/verify", map[string]any{"token": "no-es-un-jwt"})
	require.Equal(t, http.StatusOK, rr.Code)

	var out struct {
		Valid bool   `json:"valid"`
		Error string `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &out))
	assert.False(t, out.Valid)
	assert.NotEmpty(t, out.Error)
}

func TestHealthAndRequestID(t *testing.T) {
	api := newTestAPI(t)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rr := httptest.NewRecorder()
	api.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.NotEmpty(t, rr.Header().Get("X-Request-ID"))
}
