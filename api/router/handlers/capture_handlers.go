package handlers

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"netsentry/core"
	"netsentry/logger"
	"netsentry/models"
)

// startCaptureHandler begins a new capture session for the current user.
// Settings in the body are optional; missing fields fall back to defaults.
func startCaptureHandler(w http.ResponseWriter, r *http.Request) {
	var settings models.CaptureSettings
	if r.Body != nil {
		if err := json.NewDecoder(r.Body).Decode(&settings); err != nil && err != io.EOF {
			logger.Error("startCaptureHandler: Error decoding request body: %v", err)
			writeError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
			return
		}
		defer r.Body.Close()
	}

	session, err := engine.Start(settings)
	if err != nil {
		if errors.Is(err, core.ErrSessionConflict) {
			writeError(w, http.StatusConflict, "A capture session is already running")
			return
		}
		logger.Error("startCaptureHandler: Error starting session: %v", err)
		writeError(w, http.StatusInternalServerError, "Internal server error while starting capture")
		return
	}

	logger.Info("Capture session %d started via API", session.ID)
	writeJSON(w, http.StatusCreated, session)
}

// stopCaptureHandler terminates the running session and materializes its
// security log report. Stopping an already-terminal session is reported as a
// conflict, not a server error.
func stopCaptureHandler(w http.ResponseWriter, r *http.Request) {
	session, err := engine.Stop(models.SessionStatusCompleted)
	if err != nil {
		if errors.Is(err, core.ErrNotRunning) {
			writeError(w, http.StatusConflict, "No capture session is running")
			return
		}
		logger.Error("stopCaptureHandler: Error stopping session: %v", err)
		writeError(w, http.StatusInternalServerError, "Internal server error while stopping capture; retry the stop")
		return
	}

	logger.Info("Capture session %d stopped via API", session.ID)
	writeJSON(w, http.StatusOK, session)
}

// resetCaptureHandler clears the local counters and clock display. Persisted
// sessions and logs are untouched.
func resetCaptureHandler(w http.ResponseWriter, r *http.Request) {
	if err := engine.Reset(); err != nil {
		if errors.Is(err, core.ErrSessionConflict) {
			writeError(w, http.StatusConflict, "Cannot reset while a capture session is running")
			return
		}
		logger.Error("resetCaptureHandler: Error resetting engine: %v", err)
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	writeJSON(w, http.StatusOK, models.StatusResponse{Status: "reset"})
}

func captureStatusHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, engine.Snapshot())
}

func getCaptureSessionHandler(w http.ResponseWriter, r *http.Request) {
	sessionIDStr := chi.URLParam(r, "sessionID")
	sessionID, err := strconv.ParseInt(sessionIDStr, 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid session ID")
		return
	}

	session, err := store.GetCaptureSessionByID(sessionID)
	if err != nil {
		if strings.Contains(err.Error(), "not found") || errors.Is(err, sql.ErrNoRows) {
			writeError(w, http.StatusNotFound, fmt.Sprintf("Capture session with ID %d not found", sessionID))
			return
		}
		logger.Error("getCaptureSessionHandler: Error querying session ID %d: %v", sessionID, err)
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	writeJSON(w, http.StatusOK, session)
}
