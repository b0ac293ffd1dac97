package database

import (
	"fmt"
	"net/url"
	"sort"
	"strings"
	"time"

	"netsentry/logger"
	"netsentry/models"
)

// InsertObservedUrlEvent appends one raw event record. Re-inserting an event
// with the same event_uid is a no-op; the returned bool reports whether a new
// row was written.
func (s *Store) InsertObservedUrlEvent(event *models.ObservedUrlEvent) (int64, bool, error) {
	stmt, err := s.db.Prepare(`
		INSERT OR IGNORE INTO observed_url_events
			(event_uid, session_id, url, protocol, suspicious, threat_level, source_ip, observed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return 0, false, fmt.Errorf("preparing insert observed URL event statement: %w", err)
	}
	defer stmt.Close()

	result, err := stmt.Exec(
		event.EventUID, models.NullInt64(event.SessionID), event.URL, event.Protocol,
		event.Suspicious, models.NullString(event.ThreatLevel), models.NullString(event.SourceIP),
		event.ObservedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return 0, false, fmt.Errorf("executing insert observed URL event statement for '%s': %w", event.URL, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return 0, false, fmt.Errorf("getting rows affected for observed URL event: %w", err)
	}
	if affected == 0 {
		logger.Debug("InsertObservedUrlEvent: duplicate event_uid '%s' ignored", event.EventUID)
		return 0, false, nil
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, true, fmt.Errorf("getting last insert ID for observed URL event: %w", err)
	}
	return id, true, nil
}

// GetObservedUrlEvents retrieves events newest-first, optionally scoped to a
// session and/or suspicious observations.
func (s *Store) GetObservedUrlEvents(filters models.ObservedUrlFilters) ([]models.ObservedUrlEvent, error) {
	whereClauses := []string{}
	args := []interface{}{}

	if filters.SessionID != 0 {
		whereClauses = append(whereClauses, "session_id = ?")
		args = append(args, filters.SessionID)
	}
	if filters.SuspiciousOnly {
		whereClauses = append(whereClauses, "suspicious = TRUE")
	}

	query := `SELECT id, event_uid, session_id, url, protocol, suspicious, threat_level, source_ip, observed_at
	          FROM observed_url_events`
	if len(whereClauses) > 0 {
		query += " WHERE " + strings.Join(whereClauses, " AND ")
	}
	query += " ORDER BY observed_at DESC, id DESC"
	if filters.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filters.Limit)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying observed URL events: %w", err)
	}
	defer rows.Close()

	var events []models.ObservedUrlEvent
	for rows.Next() {
		event, err := scanObservedUrlEvent(rows.Scan)
		if err != nil {
			logger.Error("GetObservedUrlEvents: error scanning row: %v", err)
			continue
		}
		events = append(events, *event)
	}
	return events, rows.Err()
}

// GetEventsForSession returns every event recorded for a session in arrival
// order, for report generation.
func (s *Store) GetEventsForSession(sessionID int64) ([]models.ObservedUrlEvent, error) {
	rows, err := s.db.Query(`
		SELECT id, event_uid, session_id, url, protocol, suspicious, threat_level, source_ip, observed_at
		FROM observed_url_events
		WHERE session_id = ?
		ORDER BY id ASC
	`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("querying events for session %d: %w", sessionID, err)
	}
	defer rows.Close()

	var events []models.ObservedUrlEvent
	for rows.Next() {
		event, err := scanObservedUrlEvent(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scanning event row for session %d: %w", sessionID, err)
		}
		events = append(events, *event)
	}
	return events, rows.Err()
}

func scanObservedUrlEvent(scan func(dest ...interface{}) error) (*models.ObservedUrlEvent, error) {
	var event models.ObservedUrlEvent
	var sessionID *int64
	var observedAtStr string
	var threatLevel, sourceIP *string

	if err := scan(&event.ID, &event.EventUID, &sessionID, &event.URL, &event.Protocol,
		&event.Suspicious, &threatLevel, &sourceIP, &observedAtStr); err != nil {
		return nil, err
	}
	if sessionID != nil {
		event.SessionID = *sessionID
	}
	if threatLevel != nil {
		event.ThreatLevel = *threatLevel
	}
	if sourceIP != nil {
		event.SourceIP = *sourceIP
	}
	parsedTime, _ := time.Parse(time.RFC3339, observedAtStr)
	event.ObservedAt = parsedTime
	return &event, nil
}

// DistinctDomainsFromEvents retrieves the sorted set of distinct hostnames
// seen across observed URL events, optionally restricted to one session.
func (s *Store) DistinctDomainsFromEvents(sessionID int64) ([]string, error) {
	query := `SELECT DISTINCT url FROM observed_url_events WHERE url IS NOT NULL AND url != ''`
	args := []interface{}{}
	if sessionID != 0 {
		query += " AND session_id = ?"
		args = append(args, sessionID)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		logger.Error("DistinctDomainsFromEvents: error querying distinct URLs: %v", err)
		return nil, fmt.Errorf("querying distinct URLs failed: %w", err)
	}
	defer rows.Close()

	domainMap := make(map[string]struct{})
	for rows.Next() {
		var rawURL string
		if err := rows.Scan(&rawURL); err != nil {
			logger.Error("DistinctDomainsFromEvents: error scanning raw URL: %v", err)
			continue
		}
		if u, err := url.Parse(rawURL); err == nil && u.Hostname() != "" {
			domainMap[u.Hostname()] = struct{}{}
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating distinct URL rows: %w", err)
	}

	domains := make([]string, 0, len(domainMap))
	for domain := range domainMap {
		domains = append(domains, domain)
	}
	sort.Strings(domains)
	return domains, nil
}
