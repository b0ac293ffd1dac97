package handlers

import (
	"github.com/go-chi/chi/v5"
)

func RegisterStreamRoutes(r chi.Router) {
	r.Get("/stream", streamHandler)
}
