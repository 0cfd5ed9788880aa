package integration

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// ---------------------------------------------------------------------------
// Sentinel Errors
// ---------------------------------------------------------------------------

var (
	// Platform errors
	ErrPlatformNotConfigured   = errors.New("integration: platform not configured")
	ErrPlatformUnavailable     = errors.New("integration: platform temporarily unavailable")
	ErrPlatformRequestFailed   = errors.New("integration: platform request failed")
	ErrPlatformInvalidResponse = errors.New("integration: invalid platform response")

	// Run errors
	ErrRunAlreadyFinalized = errors.New("integration: run already finalized")
	ErrRunInvalidStatus    = errors.New("integration: invalid run status")
	ErrRunInvalidTask      = errors.New("integration: invalid task name")
	ErrRunNotFound         = errors.New("integration: run not found")
	ErrUnknownTask         = errors.New("integration: unknown task")

	// Staging errors
	ErrStagingFieldNotAllowed = errors.New("integration: filter field not allowed")
	ErrStagingInvalidEntity   = errors.New("integration: invalid staging entity")

	// Mapping errors
	ErrMappingInvalidCode = errors.New("integration: invalid attribute code")
)

// alreadyAttachedMessages are the destination messages that mean the target
// state already holds.
var alreadyAttachedMessages = []string{
	"The product is already attached.",
	"The company is already attached.",
	"The item is already attached.",
}

// ---------------------------------------------------------------------------
// HTTPError
// ---------------------------------------------------------------------------

// HTTPError is returned by destination clients for 4xx and 5xx responses.
// Body holds the decoded JSON body when the response carried one, otherwise
// the raw text.
type HTTPError struct {
	StatusCode int
	Method     string
	Resource   string
	Body       any
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("%s %s: status %d: %s", e.Method, e.Resource, e.StatusCode, e.BodyString())
}

// Unwrap lets callers match the HTTPError against ErrPlatformRequestFailed.
func (e *HTTPError) Unwrap() error {
	return ErrPlatformRequestFailed
}

// BodyString returns the body serialized as JSON.
func (e *HTTPError) BodyString() string {
	if s, ok := e.Body.(string); ok {
		b, _ := json.Marshal(s)
		return string(b)
	}
	b, err := json.Marshal(e.Body)
	if err != nil {
		return fmt.Sprintf("%v", e.Body)
	}
	return string(b)
}

// Message returns the "message" field of a JSON error body, if any.
func (e *HTTPError) Message() string {
	if m, ok := e.Body.(map[string]any); ok {
		if msg, ok := m["message"].(string); ok {
			return msg
		}
	}
	return ""
}

// IsClientError reports a 4xx status.
func (e *HTTPError) IsClientError() bool {
	return e.StatusCode >= 400 && e.StatusCode < 500
}

// ---------------------------------------------------------------------------
// Error Taxonomy
// ---------------------------------------------------------------------------

// ErrorKind classifies an apply failure.
type ErrorKind string

const (
	ErrorKindValidation ErrorKind = "validation"
	ErrorKindConflict   ErrorKind = "conflict"
	ErrorKindClient     ErrorKind = "client"
	ErrorKindTransient  ErrorKind = "transient"
)

// ValidationError is raised before any destination call when required fields are missing.
type ValidationError struct {
	Missing []string
}

func (e *ValidationError) Error() string {
	b, _ := json.Marshal(e.Missing)
	return "Missing required fields: " + string(b)
}

// ConflictError means the destination already holds the requested state.
type ConflictError struct {
	Cause *HTTPError
}

func (e *ConflictError) Error() string { return e.Cause.BodyString() }
func (e *ConflictError) Unwrap() error { return e.Cause }

// ClientError is any other 4xx rejection.
type ClientError struct {
	Cause *HTTPError
}

func (e *ClientError) Error() string { return e.Cause.BodyString() }
func (e *ClientError) Unwrap() error { return e.Cause }

// TransientError covers network failures, 5xx and unparseable responses.
type TransientError struct {
	Cause error
}

func (e *TransientError) Error() string { return e.Cause.Error() }
func (e *TransientError) Unwrap() error { return e.Cause }

// RunConflictError is returned when a run for the task is already processing.
type RunConflictError struct {
	Task        string
	Description string
	Running     int64
}

func (e *RunConflictError) Error() string {
	return fmt.Sprintf("Warning: There are %d %s process running. Please check the log.", e.Running, e.Description)
}

// Classify maps an error from a destination call onto the error taxonomy.
// Errors that are already classified are returned unchanged.
func Classify(err error) error {
	if err == nil {
		return nil
	}
	var (
		valErr       *ValidationError
		conflictErr  *ConflictError
		clientErr    *ClientError
		transientErr *TransientError
	)
	if errors.As(err, &valErr) || errors.As(err, &conflictErr) ||
		errors.As(err, &clientErr) || errors.As(err, &transientErr) {
		return err
	}

	var httpErr *HTTPError
	if errors.As(err, &httpErr) && httpErr.IsClientError() {
		if httpErr.StatusCode == http.StatusBadRequest && IsAlreadyAttached(httpErr.Message()) {
			return &ConflictError{Cause: httpErr}
		}
		return &ClientError{Cause: httpErr}
	}
	return &TransientError{Cause: err}
}

// KindOf returns the taxonomy kind of a classified error.
func KindOf(err error) ErrorKind {
	var (
		valErr      *ValidationError
		conflictErr *ConflictError
		clientErr   *ClientError
	)
	switch {
	case errors.As(err, &valErr):
		return ErrorKindValidation
	case errors.As(err, &conflictErr):
		return ErrorKindConflict
	case errors.As(err, &clientErr):
		return ErrorKindClient
	}
	return ErrorKindTransient
}

// IsAlreadyAttached reports whether a destination message means the link
// or entity already exists.
func IsAlreadyAttached(message string) bool {
	message = strings.TrimSpace(message)
	for _, m := range alreadyAttachedMessages {
		if message == m {
			return true
		}
	}
	return false
}
