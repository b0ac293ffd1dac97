package handlers

import (
	"github.com/go-chi/chi/v5"
)

func RegisterAuthRoutes(r chi.Router) {
	r.Post("/auth/login", loginHandler)
}
