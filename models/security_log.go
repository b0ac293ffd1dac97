package models

import (
	"database/sql"
	"time"
)

// Threat levels for security log entries. The live feed only distinguishes
// suspicious/safe, so high and safe dominate; critical and medium appear when
// a classifier supplies them explicitly.
const (
	ThreatLevelCritical = "critical"
	ThreatLevelHigh     = "high"
	ThreatLevelMedium   = "medium"
	ThreatLevelLow      = "low"
	ThreatLevelSafe     = "safe"
)

// Actions taken for a logged observation.
const (
	ActionBlocked = "blocked"
	ActionAllowed = "allowed"
	ActionWarned  = "warned"
)

// CaptureStats is the aggregate block carried only by summary entries.
type CaptureStats struct {
	PacketsCaptured        int64 `json:"packets_captured"`
	CaptureDurationSeconds int64 `json:"capture_duration_seconds"`
	UrlsDetected           int64 `json:"urls_detected"`
	CriticalCount          int64 `json:"critical_count"`
	HighCount              int64 `json:"high_count"`
	MediumCount            int64 `json:"medium_count"`
}

// ThreatDetails is the per-URL detail block carried only by detail entries
// for suspicious observations.
type ThreatDetails struct {
	Type           string    `json:"type" example:"Suspicious URL"`
	Description    string    `json:"description"`
	Recommendation string    `json:"recommendation"`
	DetectedAt     time.Time `json:"detected_at"`
	IPAddress      string    `json:"ip_address"`
	Method         string    `json:"method" example:"GET"`
}

// SecurityLogEntry is one append-only audit record: either a per-session
// summary (IsSummary, CaptureStats set, no URL detail) or a per-event detail
// (URL set, optional ThreatDetails, no CaptureStats).
type SecurityLogEntry struct {
	ID            int64          `json:"id" readOnly:"true"`
	Timestamp     time.Time      `json:"timestamp" readOnly:"true"`
	URL           sql.NullString `json:"url,omitempty"`
	ThreatLevel   string         `json:"threat_level" enum:"critical,high,medium,low,safe"`
	Action        string         `json:"action" enum:"blocked,allowed,warned"`
	Source        string         `json:"source,omitempty" example:"192.168.1.5"`
	IsSummary     bool           `json:"is_summary"`
	SessionID     sql.NullInt64  `json:"session_id,omitempty"`
	EventUID      sql.NullString `json:"event_uid,omitempty"`
	CaptureStats  *CaptureStats  `json:"capture_stats,omitempty"`
	ThreatDetails *ThreatDetails `json:"threat_details,omitempty"`
}
