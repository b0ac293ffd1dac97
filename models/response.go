package models

// ErrorResponse is a generic error response structure for API
type ErrorResponse struct {
	Message string `json:"message" example:"Error message describing the issue"`
}

// StatusResponse is the simple ack returned by lifecycle endpoints.
type StatusResponse struct {
	Status    string `json:"status" example:"started"`
	SessionID int64  `json:"session_id,omitempty"`
	Message   string `json:"message,omitempty"`
}
