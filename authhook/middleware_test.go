package authhook_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcpkit/mcp-server/authhook"
	"github.com/mcpkit/mcp-server/mcp"
)

func TestMiddlewareRejectsMissingCredential(t *testing.T) {
	v := authhook.NewAPIKeyValidator(map[string]string{"k": "svc"})
	mw := authhook.Middleware(v, authhook.HeaderAPIKey)

	called := false
	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { called = true }))

	req := httptest.NewRequest(http.MethodPost, "/", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.False(t, called)

	var body mcp.Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.NotNil(t, body.Error)
	assert.Equal(t, mcp.ErrorCodeAuthOrMedia, body.Error.Code)
}

func TestMiddlewareAcceptsValidAPIKeyAndAttachesClaims(t *testing.T) {
	v := authhook.NewAPIKeyValidator(map[string]string{"k": "svc-a"})
	mw := authhook.Middleware(v, authhook.HeaderAPIKey)

	var seenSubject string
	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, ok := authhook.ClaimsFromContext(r.Context())
		require.True(t, ok)
		seenSubject = claims.Subject
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodPost, "/", nil)
	req.Header.Set("X-API-Key", "k")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "svc-a", seenSubject)
}

func TestMiddlewareBearerExtractsToken(t *testing.T) {
	v := authhook.NewAPIKeyValidator(map[string]string{"tok123": "svc-b"})
	mw := authhook.Middleware(v, authhook.HeaderBearer)

	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodPost, "/", nil)
	req.Header.Set("Authorization", "Bearer tok123")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}
