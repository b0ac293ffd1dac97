package handlers

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"netsentry/core"
	"netsentry/logger"
	"netsentry/models"
)

// ingestEventHandler accepts one raw URL observation and runs it through the
// normalization pipeline. Re-posting an event id is harmless; the stored
// event is returned either way.
func ingestEventHandler(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, 1<<20))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Failed to read request body: "+err.Error())
		return
	}
	defer r.Body.Close()

	event, err := engine.IngestJSON(payload)
	if err != nil {
		var validationErr *core.ValidationError
		if errors.As(err, &validationErr) {
			writeError(w, http.StatusBadRequest, validationErr.Error())
			return
		}
		logger.Error("ingestEventHandler: Error ingesting event: %v", err)
		writeError(w, http.StatusInternalServerError, "Internal server error while storing event")
		return
	}

	writeJSON(w, http.StatusCreated, event)
}

// getEventsHandler lists observed URL events, newest first.
func getEventsHandler(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	filters := models.ObservedUrlFilters{
		SuspiciousOnly: query.Get("suspicious_only") == "true",
	}
	if v := query.Get("session_id"); v != "" {
		sessionID, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid session_id")
			return
		}
		filters.SessionID = sessionID
	}
	if v := query.Get("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil || limit < 0 {
			writeError(w, http.StatusBadRequest, "Invalid limit")
			return
		}
		filters.Limit = limit
	}

	events, err := store.GetObservedUrlEvents(filters)
	if err != nil {
		logger.Error("getEventsHandler: Error querying events: %v", err)
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	if events == nil {
		events = []models.ObservedUrlEvent{}
	}
	writeJSON(w, http.StatusOK, events)
}
