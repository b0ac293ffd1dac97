package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"netsentry/api/router/handlers"
	"netsentry/core"
	"netsentry/database"
	"netsentry/logger"
)

// NewRouter creates and configures the API router. All registered paths are
// relative to the /api base path.
func NewRouter(engine *core.Engine, store *database.Store, identity core.IdentityProvider, requireAuth bool) http.Handler {
	handlers.Configure(engine, store, identity, requireAuth)

	router := chi.NewRouter()

	handlers.RegisterHealthRoutes(router)
	handlers.RegisterAuthRoutes(router)
	handlers.RegisterCaptureRoutes(router)
	handlers.RegisterSecurityLogRoutes(router)
	handlers.RegisterEventRoutes(router)
	handlers.RegisterStreamRoutes(router)

	router.NotFound(func(w http.ResponseWriter, r *http.Request) {
		logger.Error("API: Unhandled route: %s %s", r.Method, r.URL.Path)
		http.NotFound(w, r)
	})

	return router
}
