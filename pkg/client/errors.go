package client

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Sentinel errors matched by the typed errors below through errors.Is.
var (
	ErrConfiguration = errors.New("configuration error")
	ErrSecurity      = errors.New("security error")
	ErrTransport     = errors.New("transport error")
	ErrDecode        = errors.New("decode error")
)

// ConfigurationError reports malformed or missing call parameters.
// It is always returned before any network I/O.
type ConfigurationError struct {
	Op     string
	Field  string
	Reason string
	Err    error
}

func (e *ConfigurationError) Error() string {
	msg := "invalid request"
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Field != "" {
		msg += ": " + e.Field
	}
	if e.Reason != "" {
		msg += " " + e.Reason
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

func (e *ConfigurationError) Is(target error) bool { return target == ErrConfiguration }

// SecurityError wraps a failure of the credential injector.
type SecurityError struct {
	Op  string
	Err error
}

func (e *SecurityError) Error() string {
	if e.Op != "" {
		return fmt.Sprintf("%s: credential injection failed: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("credential injection failed: %v", e.Err)
}

func (e *SecurityError) Unwrap() error { return e.Err }

func (e *SecurityError) Is(target error) bool { return target == ErrSecurity }

// TransportError reports a failed network call or a non-2xx status.
// StatusCode is zero when no response was received.
type TransportError struct {
	Method     string
	URL        string
	StatusCode int
	Body       []byte
	Err        error
}

func (e *TransportError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("%s %s: %v", e.Method, e.URL, e.Err)
	}
	if msg := e.APIMessage(); msg != "" {
		return fmt.Sprintf("%s %s: unexpected status %d: %s", e.Method, e.URL, e.StatusCode, msg)
	}
	return fmt.Sprintf("%s %s: unexpected status %d", e.Method, e.URL, e.StatusCode)
}

func (e *TransportError) Unwrap() error { return e.Err }

func (e *TransportError) Is(target error) bool { return target == ErrTransport }

// APIMessage returns the service's {"error": "..."} message, if any.
func (e *TransportError) APIMessage() string {
	if len(e.Body) == 0 {
		return ""
	}
	var payload struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(e.Body, &payload); err != nil {
		return ""
	}
	if payload.Error != "" {
		return payload.Error
	}
	return payload.Message
}

// DecodeError reports a response body that does not fit the declared shape.
type DecodeError struct {
	Format ResponseFormat
	Err    error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode %s response: %v", e.Format, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

func (e *DecodeError) Is(target error) bool { return target == ErrDecode }

// errorClass labels an error for metrics.
func errorClass(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrConfiguration):
		return "configuration"
	case errors.Is(err, ErrSecurity):
		return "security"
	case errors.Is(err, ErrDecode):
		return "decode"
	default:
		return "transport"
	}
}
