// Package models defines the core data structures for SleepyStorybook.
//
// It includes story drafts, quality scores, final stories, session context and
// the JSON envelope used by the HTTP API. These types are shared across modules.
package models

// Envelope status values.
const (
	StatusOK    = "ok"
	StatusError = "error"
)

// APIResponse is the envelope every JSON endpoint returns.
type APIResponse struct {
	Status  string      `json:"status"`
	Message string      `json:"message,omitempty"`
	Result  interface{} `json:"result,omitempty"`
}

// Success wraps result in an "ok" envelope.
func Success(result interface{}) APIResponse {
	return APIResponse{Status: StatusOK, Result: result}
}

// SuccessWithMessage wraps result in an "ok" envelope carrying a human-readable note.
func SuccessWithMessage(message string, result interface{}) APIResponse {
	return APIResponse{Status: StatusOK, Message: message, Result: result}
}

// Error builds an "error" envelope.
func Error(message string) APIResponse {
	return APIResponse{Status: StatusError, Message: message}
}
