package api

import (
	"errors"
	"fmt"
	"net/http"

	"example.com/syncengine/internal/value"
)

// CodeVersionConflict is the structured code the authority uses to reject an
// action whose expected_version is stale.
const CodeVersionConflict = "version_conflict"

// ErrorBody is the normalized error payload shared by every endpoint.
type ErrorBody struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]value.Value `json:"details,omitempty"`
}

// APIError is a structured rejection from the authority. It carries the HTTP
// status plus the decoded error body so callers can branch on Code.
type APIError struct {
	Status  int
	Code    string
	Message string
	Details map[string]value.Value
}

// Error implements error.
func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("authority rejected request (%d %s): %s", e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("authority returned status %d", e.Status)
}

// Conflict reports whether the rejection is an optimistic-concurrency
// version mismatch.
func (e *APIError) Conflict() bool {
	return e.Code == CodeVersionConflict || e.Status == http.StatusConflict
}

// Transient reports whether the status indicates a retryable condition.
func (e *APIError) Transient() bool {
	return e.Status == http.StatusTooManyRequests || e.Status >= 500
}

// IsConflict reports whether err is (or wraps) a version-conflict rejection.
func IsConflict(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Conflict()
}

// IsRejected reports whether err is a terminal (non-retryable) rejection.
func IsRejected(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && !apiErr.Transient()
}
