package database

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"netsentry/logger"
	"netsentry/models"
)

// AppendSummaryLog writes the one summary entry for a completed session.
// Threat level is high when any high or critical observation was counted,
// low otherwise; action is blocked when any threat counter is non-zero.
// The write is idempotent per session id: a retried stop returns the entry
// written by the first attempt.
func (s *Store) AppendSummaryLog(session *models.CaptureSession, stats models.CaptureStats) (*models.SecurityLogEntry, error) {
	threatLevel := models.ThreatLevelLow
	if stats.HighCount+stats.CriticalCount > 0 {
		threatLevel = models.ThreatLevelHigh
	}
	action := models.ActionAllowed
	if stats.CriticalCount+stats.HighCount+stats.MediumCount > 0 {
		action = models.ActionBlocked
	}

	statsJSON, err := json.Marshal(stats)
	if err != nil {
		return nil, fmt.Errorf("marshalling capture stats for session %d: %w", session.ID, err)
	}

	timestamp := time.Now().UTC()
	result, err := s.db.Exec(`
		INSERT OR IGNORE INTO security_logs
			(timestamp, threat_level, action, source, is_summary, session_id, capture_stats)
		VALUES (?, ?, ?, ?, TRUE, ?, ?)
	`, timestamp.Format(time.RFC3339Nano), threatLevel, action,
		session.Settings.InterfaceName, session.ID, string(statsJSON))
	if err != nil {
		return nil, fmt.Errorf("executing append summary log statement for session %d: %w", session.ID, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("getting rows affected for summary log: %w", err)
	}
	if affected == 0 {
		// A previous stop attempt already wrote the summary.
		logger.Debug("AppendSummaryLog: summary for session %d already exists", session.ID)
		return s.getSummaryLogForSession(session.ID)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("getting last insert ID for summary log: %w", err)
	}
	return &models.SecurityLogEntry{
		ID:           id,
		Timestamp:    timestamp,
		ThreatLevel:  threatLevel,
		Action:       action,
		Source:       session.Settings.InterfaceName,
		IsSummary:    true,
		SessionID:    models.NullInt64(session.ID),
		CaptureStats: &stats,
	}, nil
}

// AppendDetailLog writes one detail entry for a suspicious observation.
// Non-suspicious events produce no entry and return nil. Duplicate writes
// for the same event are deduplicated by event_uid.
func (s *Store) AppendDetailLog(event *models.ObservedUrlEvent, details *models.ThreatDetails) (*models.SecurityLogEntry, error) {
	if !event.Suspicious {
		return nil, nil
	}

	threatLevel := event.ThreatLevel
	if threatLevel == "" {
		threatLevel = models.ThreatLevelHigh
	}

	source := event.SourceIP
	if source == "" {
		source = models.DefaultSourceIP
	}

	if details == nil {
		details = &models.ThreatDetails{
			Type:           "Suspicious URL",
			Description:    "This URL shows characteristics of a potential threat",
			Recommendation: "Block access and scan affected devices for malware",
			DetectedAt:     event.ObservedAt,
			IPAddress:      source,
			Method:         "GET",
		}
	} else {
		// Classifier verdicts describe the URL, not the observation; fill in
		// the per-event fields here. Copy first, the caller may reuse details.
		filled := *details
		if filled.IPAddress == "" {
			filled.IPAddress = source
		}
		if filled.DetectedAt.IsZero() {
			filled.DetectedAt = event.ObservedAt
		}
		details = &filled
	}
	detailsJSON, err := json.Marshal(details)
	if err != nil {
		return nil, fmt.Errorf("marshalling threat details for event '%s': %w", event.EventUID, err)
	}

	timestamp := event.ObservedAt
	if timestamp.IsZero() {
		timestamp = time.Now().UTC()
	}

	result, err := s.db.Exec(`
		INSERT OR IGNORE INTO security_logs
			(timestamp, url, threat_level, action, source, is_summary, session_id, event_uid, threat_details)
		VALUES (?, ?, ?, ?, ?, FALSE, ?, ?, ?)
	`, timestamp.UTC().Format(time.RFC3339Nano), event.URL, threatLevel, models.ActionBlocked,
		source, models.NullInt64(event.SessionID), event.EventUID, string(detailsJSON))
	if err != nil {
		return nil, fmt.Errorf("executing append detail log statement for event '%s': %w", event.EventUID, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("getting rows affected for detail log: %w", err)
	}
	if affected == 0 {
		logger.Debug("AppendDetailLog: detail for event '%s' already exists", event.EventUID)
		return s.getDetailLogForEvent(event.EventUID)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("getting last insert ID for detail log: %w", err)
	}
	return &models.SecurityLogEntry{
		ID:            id,
		Timestamp:     timestamp,
		URL:           models.NullString(event.URL),
		ThreatLevel:   threatLevel,
		Action:        models.ActionBlocked,
		Source:        source,
		SessionID:     models.NullInt64(event.SessionID),
		EventUID:      models.NullString(event.EventUID),
		ThreatDetails: details,
	}, nil
}

// GetSecurityLogEntries retrieves filtered security log entries, newest-first
// by timestamp. Search matches case-insensitively against the URL, the
// source, and the threat detail description. A non-positive limit returns all.
func (s *Store) GetSecurityLogEntries(filters models.SecurityLogFilters) ([]models.SecurityLogEntry, int64, error) {
	var totalRecords int64

	whereClauses := []string{}
	args := []interface{}{}

	if filters.FilterThreatLevel != "" {
		whereClauses = append(whereClauses, "threat_level = ?")
		args = append(args, strings.ToLower(filters.FilterThreatLevel))
	}
	if filters.SummariesOnly {
		whereClauses = append(whereClauses, "is_summary = TRUE")
	}
	if filters.SessionID != 0 {
		whereClauses = append(whereClauses, "session_id = ?")
		args = append(args, filters.SessionID)
	}
	if filters.FilterSearchText != "" {
		// Only the detail description is searchable, not the whole details
		// blob: the stock recommendation text would otherwise match every
		// placeholder entry.
		searchClause := `(
			LOWER(COALESCE(url, '')) LIKE LOWER(?) OR
			LOWER(COALESCE(source, '')) LIKE LOWER(?) OR
			LOWER(COALESCE(json_extract(threat_details, '$.description'), '')) LIKE LOWER(?)
		)`
		whereClauses = append(whereClauses, searchClause)
		searchPattern := "%" + filters.FilterSearchText + "%"
		args = append(args, searchPattern, searchPattern, searchPattern)
	}

	finalWhereClause := ""
	if len(whereClauses) > 0 {
		finalWhereClause = "WHERE " + strings.Join(whereClauses, " AND ")
	}

	countQuery := fmt.Sprintf("SELECT COUNT(id) FROM security_logs %s", finalWhereClause)
	if err := s.db.QueryRow(countQuery, args...).Scan(&totalRecords); err != nil {
		logger.Error("GetSecurityLogEntries: error counting records: %v", err)
		return nil, 0, err
	}
	if totalRecords == 0 {
		return nil, 0, nil
	}

	query := fmt.Sprintf(`SELECT id, timestamp, url, threat_level, action, source, is_summary, session_id, event_uid, capture_stats, threat_details
		FROM security_logs %s
		ORDER BY timestamp DESC, id DESC`, finalWhereClause)
	if filters.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filters.Limit)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		logger.Error("GetSecurityLogEntries: error querying records: %v. Query: %s", err, query)
		return nil, 0, err
	}
	defer rows.Close()

	var entries []models.SecurityLogEntry
	for rows.Next() {
		entry, err := scanSecurityLogEntry(rows.Scan)
		if err != nil {
			logger.Error("GetSecurityLogEntries: error scanning row: %v", err)
			continue
		}
		entries = append(entries, *entry)
	}
	return entries, totalRecords, rows.Err()
}

func (s *Store) getSummaryLogForSession(sessionID int64) (*models.SecurityLogEntry, error) {
	row := s.db.QueryRow(`
		SELECT id, timestamp, url, threat_level, action, source, is_summary, session_id, event_uid, capture_stats, threat_details
		FROM security_logs
		WHERE session_id = ? AND is_summary = TRUE
	`, sessionID)
	entry, err := scanSecurityLogEntry(row.Scan)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("summary log for session %d not found", sessionID)
		}
		return nil, fmt.Errorf("querying summary log for session %d: %w", sessionID, err)
	}
	return entry, nil
}

func (s *Store) getDetailLogForEvent(eventUID string) (*models.SecurityLogEntry, error) {
	row := s.db.QueryRow(`
		SELECT id, timestamp, url, threat_level, action, source, is_summary, session_id, event_uid, capture_stats, threat_details
		FROM security_logs
		WHERE event_uid = ?
	`, eventUID)
	entry, err := scanSecurityLogEntry(row.Scan)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("detail log for event '%s' not found", eventUID)
		}
		return nil, fmt.Errorf("querying detail log for event '%s': %w", eventUID, err)
	}
	return entry, nil
}

func scanSecurityLogEntry(scan func(dest ...interface{}) error) (*models.SecurityLogEntry, error) {
	var entry models.SecurityLogEntry
	var timestampStr string
	var source sql.NullString
	var statsJSON, detailsJSON sql.NullString

	if err := scan(&entry.ID, &timestampStr, &entry.URL, &entry.ThreatLevel, &entry.Action,
		&source, &entry.IsSummary, &entry.SessionID, &entry.EventUID, &statsJSON, &detailsJSON); err != nil {
		return nil, err
	}
	entry.Source = source.String

	parsedTime, _ := time.Parse(time.RFC3339, timestampStr)
	entry.Timestamp = parsedTime

	if statsJSON.Valid && statsJSON.String != "" {
		var stats models.CaptureStats
		if err := json.Unmarshal([]byte(statsJSON.String), &stats); err != nil {
			logger.Error("scanSecurityLogEntry: unparseable capture_stats for log %d: %v", entry.ID, err)
		} else {
			entry.CaptureStats = &stats
		}
	}
	if detailsJSON.Valid && detailsJSON.String != "" {
		var details models.ThreatDetails
		if err := json.Unmarshal([]byte(detailsJSON.String), &details); err != nil {
			logger.Error("scanSecurityLogEntry: unparseable threat_details for log %d: %v", entry.ID, err)
		} else {
			entry.ThreatDetails = &details
		}
	}
	return &entry, nil
}
