package handlers

import (
	"github.com/go-chi/chi/v5"
)

func RegisterSecurityLogRoutes(r chi.Router) {
	r.Get("/security-logs", getSecurityLogsHandler)
	r.Get("/security-logs/domains", getDistinctDomainsHandler)
}
