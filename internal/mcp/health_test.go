package mcp

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func getHealth(t *testing.T, h http.Handler) (int, HealthResponse) {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	var resp HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	return rec.Code, resp
}

func TestHealthHandler(t *testing.T) {
	t.Run("no mirror", func(t *testing.T) {
		code, resp := getHealth(t, NewHealthHandler(twoSources(), nil))
		assert.Equal(t, http.StatusOK, code)
		assert.Equal(t, "healthy", resp.Status)
		assert.Equal(t, "disabled", resp.Qdrant)
		assert.Equal(t, 2, resp.Sources)
		assert.NotEmpty(t, resp.Timestamp)
	})

	t.Run("mirror connected", func(t *testing.T) {
		code, resp := getHealth(t, NewHealthHandler(twoSources(), &mockMirror{}))
		assert.Equal(t, http.StatusOK, code)
		assert.Equal(t, "connected", resp.Qdrant)
	})

	t.Run("mirror down", func(t *testing.T) {
		code, resp := getHealth(t, NewHealthHandler(&mockCatalog{}, &mockMirror{err: errors.New("dial tcp: refused")}))
		assert.Equal(t, http.StatusServiceUnavailable, code)
		assert.Equal(t, "unhealthy", resp.Status)
		assert.Equal(t, "disconnected", resp.Qdrant)
		assert.Zero(t, resp.Sources)
	})
}

func TestLandingHandler(t *testing.T) {
	h := NewLandingHandler(twoSources())

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "2 ingested job postings")
	assert.Contains(t, rec.Body.String(), "http://example.com/mcp")

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/missing", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
