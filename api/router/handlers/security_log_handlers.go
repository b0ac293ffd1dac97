package handlers

import (
	"net/http"
	"strconv"

	"netsentry/logger"
	"netsentry/models"
)

type securityLogsResponse struct {
	Logs  []models.SecurityLogEntry `json:"logs"`
	Total int64                     `json:"total"`
}

// getSecurityLogsHandler lists security log entries, newest first. Filters
// come from query parameters; invalid numeric values are rejected.
func getSecurityLogsHandler(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	filters := models.SecurityLogFilters{
		FilterThreatLevel: query.Get("threat_level"),
		FilterSearchText:  query.Get("search"),
		SummariesOnly:     query.Get("summaries_only") == "true",
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

	logs, total, err := store.GetSecurityLogEntries(filters)
	if err != nil {
		logger.Error("getSecurityLogsHandler: Error querying security logs: %v", err)
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	if logs == nil {
		logs = []models.SecurityLogEntry{}
	}

	writeJSON(w, http.StatusOK, securityLogsResponse{Logs: logs, Total: total})
}

// getDistinctDomainsHandler returns the sorted set of hostnames seen by a
// session, or across all sessions when session_id is absent.
func getDistinctDomainsHandler(w http.ResponseWriter, r *http.Request) {
	var sessionID int64
	if v := r.URL.Query().Get("session_id"); v != "" {
		parsed, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid session_id")
			return
		}
		sessionID = parsed
	}

	domains, err := store.DistinctDomainsFromEvents(sessionID)
	if err != nil {
		logger.Error("getDistinctDomainsHandler: Error querying domains: %v", err)
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	if domains == nil {
		domains = []string{}
	}
	writeJSON(w, http.StatusOK, map[string][]string{"domains": domains})
}
