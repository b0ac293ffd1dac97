package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	"netsentry/core"
	"netsentry/database"
	"netsentry/logger"
	"netsentry/models"
)

var (
	engine       *core.Engine
	store        *database.Store
	identity     core.IdentityProvider
	authRequired bool
)

// Configure wires the shared dependencies into the handlers package. It must
// be called once before any route is registered.
func Configure(e *core.Engine, s *database.Store, id core.IdentityProvider, requireAuth bool) {
	engine = e
	store = s
	identity = id
	authRequired = requireAuth
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Error("Error encoding JSON response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, models.ErrorResponse{Message: message})
}

// bearerToken extracts the token from the Authorization header or, for
// endpoints that cannot set headers (the websocket stream), the token query
// parameter.
func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if strings.HasPrefix(header, "Bearer ") {
		return strings.TrimPrefix(header, "Bearer ")
	}
	return r.URL.Query().Get("token")
}

// requireAuth gates a handler behind token auth when credentials are
// configured. With auth disabled every request passes through.
func requireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if authRequired {
			token := bearerToken(r)
			if token == "" || identity.UserIDForToken(token) == "" {
				logger.Warn("Rejected unauthenticated request: %s %s", r.Method, r.URL.Path)
				writeError(w, http.StatusUnauthorized, "Unauthorized: invalid or missing token")
				return
			}
		}
		next(w, r)
	}
}
