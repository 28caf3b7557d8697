package gateway

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"
)

var (
	// ErrSessionExpired is returned for HTTP 401 on authenticated endpoints.
	// It is not a domain error; the OnUnauthorized hook has already run.
	ErrSessionExpired = errors.New("gateway: session expired")

	// ErrAudioNotReady means the recording is not available yet. Callers render a
	// disabled affordance rather than an error.
	ErrAudioNotReady = errors.New("gateway: audio not ready")
)

// APIError is a non-2xx response other than a session expiry.
type APIError struct {
	Status  int
	Method  string
	Path    string
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("gateway: %s %s: %d %s", e.Method, e.Path, e.Status, e.Message)
}

// UserMessage is the text shown to operators: the server's message, or a generic fallback.
func (e *APIError) UserMessage() string {
	if strings.TrimSpace(e.Message) != "" {
		return e.Message
	}
	return genericMessage(e.Status)
}

func genericMessage(status int) string {
	switch {
	case status == http.StatusNotFound:
		return "The requested item no longer exists."
	case status == http.StatusConflict:
		return "This change conflicts with the current state. Refresh and try again."
	case status >= 500:
		return "The server had a problem. Please try again shortly."
	default:
		return "Request failed. Please try again."
	}
}

// IsNotFound reports whether err is an APIError with status 404.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == http.StatusNotFound
}

// ValidationError is raised before any request is sent.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for f, msg := range e.Fields {
		parts = append(parts, f+": "+msg)
	}
	return "gateway: invalid input: " + strings.Join(parts, "; ")
}

func newValidationError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return &ValidationError{Fields: map[string]string{"input": err.Error()}}
	}
	out := &ValidationError{Fields: make(map[string]string, len(verrs))}
	for _, fe := range verrs {
		out.Fields[fe.Field()] = validationMessage(fe)
	}
	return out
}

func validationMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "email":
		return "must be a valid email"
	case "e164":
		return "must be a phone number in +E.164 format"
	case "min":
		return "must be at least " + fe.Param() + " characters"
	case "max":
		return "must be at most " + fe.Param() + " characters"
	case "gte", "lte":
		return "is out of range"
	case "dive":
		return "contains an invalid item"
	default:
		return "is invalid"
	}
}
