package models

import (
	"database/sql"
	"time"
)

// Capture session lifecycle states. Completed and Failed are terminal; a new
// session gets a fresh id.
const (
	SessionStatusRunning   = "running"
	SessionStatusCompleted = "completed"
	SessionStatusFailed    = "failed"
)

// AnonymousOwnerID is recorded when no authenticated user started the session.
const AnonymousOwnerID = "anonymous"

// CaptureSettings is the immutable configuration snapshot taken when a
// session starts.
type CaptureSettings struct {
	InterfaceName  string `json:"interface" example:"eth0"`
	ProtocolFilter string `json:"filter,omitempty" example:"http"`
	DeepInspection bool   `json:"deep_inspection"`
}

// CaptureSession is one bounded monitoring window. Rows are never deleted;
// status and ended_at are the only fields mutated after creation, and only by
// the session engine.
type CaptureSession struct {
	ID        int64           `json:"id" readOnly:"true"`
	OwnerID   string          `json:"owner_id" example:"anonymous"`
	Status    string          `json:"status" enum:"running,completed,failed"`
	StartedAt time.Time       `json:"started_at" readOnly:"true"`
	EndedAt   sql.NullTime    `json:"ended_at,omitempty"`
	Settings  CaptureSettings `json:"settings"`
}

// Terminal reports whether the session has reached a final state.
func (s *CaptureSession) Terminal() bool {
	return s.Status == SessionStatusCompleted || s.Status == SessionStatusFailed
}
