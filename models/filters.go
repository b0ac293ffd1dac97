package models

// SecurityLogFilters defines parameters for filtering security log queries.
// Results are always newest-first by timestamp.
type SecurityLogFilters struct {
	FilterThreatLevel string `json:"threat_level,omitempty"`
	FilterSearchText  string `json:"search,omitempty"`
	SummariesOnly     bool   `json:"summaries_only,omitempty"`
	SessionID         int64  `json:"session_id,omitempty"`
	Limit             int    `json:"limit,omitempty"` // <= 0 means no limit
}

// ObservedUrlFilters defines parameters for filtering observed URL queries.
type ObservedUrlFilters struct {
	SessionID      int64 `json:"session_id,omitempty"`
	SuspiciousOnly bool  `json:"suspicious_only,omitempty"`
	Limit          int   `json:"limit,omitempty"` // <= 0 means no limit
}
