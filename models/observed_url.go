package models

import "time"

// Wire protocols recorded for an observed URL.
const (
	ProtocolHTTP  = "HTTP"
	ProtocolHTTPS = "HTTPS"
)

// DefaultSourceIP is recorded when the feed did not report a source address.
const DefaultSourceIP = "192.168.1.1"

// ObservedUrlEvent is a single URL sighting delivered by the live feed.
// Events are append-only; EventUID is unique so re-delivery of the same
// event is a no-op.
type ObservedUrlEvent struct {
	ID          int64     `json:"id" readOnly:"true"`
	EventUID    string    `json:"event_uid" example:"9f3c1a6e-0b2d-4f7a-8c55-1d2e3f4a5b6c"`
	SessionID   int64     `json:"session_id,omitempty"`
	URL         string    `json:"url" example:"http://malware-example.net/download"`
	Protocol    string    `json:"protocol" enum:"HTTP,HTTPS"`
	Suspicious  bool      `json:"suspicious"`
	ThreatLevel string    `json:"threat_level,omitempty" enum:"critical,high,medium,low,safe"`
	SourceIP    string    `json:"source_ip,omitempty" example:"192.168.1.5"`
	ObservedAt  time.Time `json:"observed_at"`
}
