package database

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"netsentry/logger"
	"netsentry/models"
)

// ErrOwnerHasRunningSession is returned when creating a session would violate
// the one-running-session-per-owner constraint.
var ErrOwnerHasRunningSession = fmt.Errorf("owner already has a running capture session")

// CreateCaptureSession inserts a new session with status=running and returns
// its store-assigned id. The partial unique index on (owner_id) WHERE
// status='running' is the authoritative conflict check.
func (s *Store) CreateCaptureSession(session *models.CaptureSession) (int64, error) {
	settingsJSON, err := json.Marshal(session.Settings)
	if err != nil {
		return 0, fmt.Errorf("marshalling capture settings: %w", err)
	}

	stmt, err := s.db.Prepare(`
		INSERT INTO capture_sessions (owner_id, status, started_at, settings)
		VALUES (?, ?, ?, ?)
	`)
	if err != nil {
		return 0, fmt.Errorf("preparing create capture session statement: %w", err)
	}
	defer stmt.Close()

	result, err := stmt.Exec(session.OwnerID, models.SessionStatusRunning, session.StartedAt.UTC().Format(time.RFC3339Nano), string(settingsJSON))
	if err != nil {
		if isUniqueConstraintErr(err) {
			logger.Info("CreateCaptureSession: owner '%s' already has a running session", session.OwnerID)
			return 0, ErrOwnerHasRunningSession
		}
		return 0, fmt.Errorf("executing create capture session statement for owner '%s': %w", session.OwnerID, err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("getting last insert ID for capture session: %w", err)
	}
	return id, nil
}

// FinishCaptureSession transitions a running session to a terminal status and
// stamps ended_at. It affects zero rows when the session is already terminal
// or unknown, which callers treat as the benign stop race.
func (s *Store) FinishCaptureSession(sessionID int64, status string, endedAt time.Time) (bool, error) {
	if status != models.SessionStatusCompleted && status != models.SessionStatusFailed {
		return false, fmt.Errorf("invalid terminal status '%s' for session %d", status, sessionID)
	}

	result, err := s.db.Exec(`
		UPDATE capture_sessions
		SET status = ?, ended_at = ?
		WHERE id = ? AND status = ?
	`, status, endedAt.UTC().Format(time.RFC3339Nano), sessionID, models.SessionStatusRunning)
	if err != nil {
		return false, fmt.Errorf("executing finish capture session statement for session %d: %w", sessionID, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("getting rows affected for finish capture session %d: %w", sessionID, err)
	}
	return affected > 0, nil
}

// GetRunningSessionForOwner returns the owner's running session, or nil when
// there is none.
func (s *Store) GetRunningSessionForOwner(ownerID string) (*models.CaptureSession, error) {
	row := s.db.QueryRow(`
		SELECT id, owner_id, status, started_at, ended_at, settings
		FROM capture_sessions
		WHERE owner_id = ? AND status = ?
		ORDER BY started_at DESC
		LIMIT 1
	`, ownerID, models.SessionStatusRunning)

	session, err := scanCaptureSession(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("querying running session for owner '%s': %w", ownerID, err)
	}
	return session, nil
}

// GetCaptureSessionByID retrieves one session by its store id.
func (s *Store) GetCaptureSessionByID(sessionID int64) (*models.CaptureSession, error) {
	row := s.db.QueryRow(`
		SELECT id, owner_id, status, started_at, ended_at, settings
		FROM capture_sessions
		WHERE id = ?
	`, sessionID)

	session, err := scanCaptureSession(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("capture session with ID %d not found", sessionID)
		}
		return nil, fmt.Errorf("querying capture session %d: %w", sessionID, err)
	}
	return session, nil
}

func scanCaptureSession(row *sql.Row) (*models.CaptureSession, error) {
	var session models.CaptureSession
	var startedAtStr string
	var endedAtStr sql.NullString
	var settingsJSON string

	if err := row.Scan(&session.ID, &session.OwnerID, &session.Status, &startedAtStr, &endedAtStr, &settingsJSON); err != nil {
		return nil, err
	}

	parsedStart, err := time.Parse(time.RFC3339, startedAtStr)
	if err != nil {
		logger.Error("scanCaptureSession: unparseable started_at '%s' for session %d: %v", startedAtStr, session.ID, err)
	}
	session.StartedAt = parsedStart

	if endedAtStr.Valid {
		parsedEnd, err := time.Parse(time.RFC3339, endedAtStr.String)
		if err != nil {
			logger.Error("scanCaptureSession: unparseable ended_at '%s' for session %d: %v", endedAtStr.String, session.ID, err)
		} else {
			session.EndedAt = sql.NullTime{Time: parsedEnd, Valid: true}
		}
	}

	if err := json.Unmarshal([]byte(settingsJSON), &session.Settings); err != nil {
		logger.Error("scanCaptureSession: unparseable settings for session %d: %v", session.ID, err)
	}
	return &session, nil
}
