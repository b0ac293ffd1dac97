package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"netsentry/core"
	"netsentry/logger"
)

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResponse struct {
	UserID string `json:"user_id"`
	Token  string `json:"token"`
}

// loginHandler exchanges a credential pair for a bearer token. Login is
// rejected outright when no password is configured.
func loginHandler(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.Error("loginHandler: Error decoding request body: %v", err)
		writeError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}
	defer r.Body.Close()

	req.Username = strings.TrimSpace(req.Username)
	if req.Username == "" {
		writeError(w, http.StatusBadRequest, "Username is required")
		return
	}

	id, err := identity.Authenticate(req.Username, req.Password)
	if err != nil {
		if errors.Is(err, core.ErrBadCredentials) {
			writeError(w, http.StatusUnauthorized, "Invalid username or password")
			return
		}
		logger.Error("loginHandler: Error authenticating user '%s': %v", req.Username, err)
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	writeJSON(w, http.StatusOK, loginResponse{UserID: id.UserID, Token: id.Token})
}
