package authhook

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/mcpkit/mcp-server/mcp"
)

const (
	headerAuthorization = "Authorization"
	headerAPIKey        = "X-API-Key"
	bearerPrefix        = "Bearer "
)

// Middleware builds a net/http middleware that extracts a credential per
// headerType, validates it with v, and either rejects the request with
// a -32001 JSON-RPC error envelope or calls next with Claims attached to
// the request's context — grounded on minimcp's authMiddleware,
// generalized from a fixed APIKeyValidator to the Validator interface so
// a bearer-JWT hook and an API-key hook share one call site.
func Middleware(v Validator, headerType HeaderType) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			credential := extractCredential(r, headerType)

			claims, err := v.Validate(r.Context(), credential)
			if err != nil {
				writeUnauthorized(w)
				return
			}

			r = r.WithContext(WithClaims(r.Context(), claims))
			next.ServeHTTP(w, r)
		})
	}
}

// writeUnauthorized rejects the request with the -32001 code spec.md §7
// reserves for authentication/media boundary errors, wrapped in the same
// JSON-RPC envelope every other transport error uses.
func writeUnauthorized(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(mcp.Response{
		JSONRPC: mcp.JSONRPCVersion,
		Error: &mcp.ErrorResponse{
			Code:    mcp.ErrorCodeAuthOrMedia,
			Message: "unauthorized",
		},
	})
}

func extractCredential(r *http.Request, headerType HeaderType) string {
	switch headerType {
	case HeaderAPIKey:
		return r.Header.Get(headerAPIKey)
	case HeaderBearer:
		fallthrough
	default:
		auth := r.Header.Get(headerAuthorization)
		if strings.HasPrefix(auth, bearerPrefix) {
			return strings.TrimPrefix(auth, bearerPrefix)
		}
		return ""
	}
}
