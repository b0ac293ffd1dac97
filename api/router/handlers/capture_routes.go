package handlers

import (
	"github.com/go-chi/chi/v5"
)

func RegisterCaptureRoutes(r chi.Router) {
	r.Post("/capture/start", requireAuth(startCaptureHandler))
	r.Post("/capture/stop", requireAuth(stopCaptureHandler))
	r.Post("/capture/reset", requireAuth(resetCaptureHandler))
	r.Get("/capture/status", captureStatusHandler)
	r.Get("/capture/sessions/{sessionID}", getCaptureSessionHandler)
}
