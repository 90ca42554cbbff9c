package client

import (
	"net/http"
	"strings"
	"time"
)

// ContentType is the encoding of a request body.
type ContentType string

const (
	ContentTypeJSON       ContentType = "application/json"
	ContentTypeJSONAPI    ContentType = "application/vnd.api+json"
	ContentTypeFormData   ContentType = "multipart/form-data"
	ContentTypeURLEncoded ContentType = "application/x-www-form-urlencoded"
	ContentTypeText       ContentType = "text/plain"
)

// ResponseFormat selects how a response body is decoded.
type ResponseFormat string

const (
	FormatJSON   ResponseFormat = "json"
	FormatText   ResponseFormat = "text"
	FormatBlob   ResponseFormat = "blob"
	FormatStream ResponseFormat = "stream"
)

// RequestParams is the transport-level part of a request that callers may
// override per call. The zero value of every field means "not set".
type RequestParams struct {
	Header  http.Header
	BaseURL string
	Timeout time.Duration
	Secure  *bool
	Type    ContentType
	Format  ResponseFormat
}

// FullRequestParams describes one logical call before merging.
type FullRequestParams struct {
	RequestParams

	// Operation names the endpoint for logs and metrics. Optional.
	Operation string
	Path      string
	Method    string
	Query     map[string]any
	Body      any
}

// RequestOption overrides transport parameters for a single call.
type RequestOption func(*RequestParams)

// WithRequestHeader sets a header for a single call.
func WithRequestHeader(key, value string) RequestOption {
	return func(p *RequestParams) {
		if p.Header == nil {
			p.Header = make(http.Header)
		}
		p.Header.Set(key, value)
	}
}

// WithRequestBaseURL sends a single call to a different base address.
func WithRequestBaseURL(baseURL string) RequestOption {
	return func(p *RequestParams) {
		p.BaseURL = baseURL
	}
}

// WithRequestTimeout bounds a single call. The call's context still applies.
func WithRequestTimeout(d time.Duration) RequestOption {
	return func(p *RequestParams) {
		p.Timeout = d
	}
}

// WithRequestSecure forces the secure flag for a single call.
func WithRequestSecure(secure bool) RequestOption {
	return func(p *RequestParams) {
		p.Secure = &secure
	}
}

// WithRequestFormat overrides the response decoding for a single call.
func WithRequestFormat(format ResponseFormat) RequestOption {
	return func(p *RequestParams) {
		p.Format = format
	}
}

// WithRequestContentType overrides the body encoding for a single call.
func WithRequestContentType(ct ContentType) RequestOption {
	return func(p *RequestParams) {
		p.Type = ct
	}
}

var allowedMethods = map[string]bool{
	http.MethodGet:     true,
	http.MethodHead:    true,
	http.MethodPost:    true,
	http.MethodPut:     true,
	http.MethodPatch:   true,
	http.MethodDelete:  true,
	http.MethodOptions: true,
}

// validate checks the descriptor before any I/O.
func (p *FullRequestParams) validate() error {
	if p.Path == "" {
		return &ConfigurationError{Op: p.Operation, Field: "path", Reason: "must not be empty"}
	}
	if !strings.HasPrefix(p.Path, "/") {
		return &ConfigurationError{Op: p.Operation, Field: "path", Reason: "must start with /"}
	}
	method := strings.ToUpper(p.Method)
	if method == "" {
		method = http.MethodGet
	}
	if !allowedMethods[method] {
		return &ConfigurationError{Op: p.Operation, Field: "method", Reason: "unsupported method " + p.Method}
	}
	if p.Body != nil && (method == http.MethodGet || method == http.MethodHead) {
		return &ConfigurationError{Op: p.Operation, Field: "body", Reason: "not allowed on " + method}
	}
	p.Method = method
	return nil
}

func boolPtr(b bool) *bool {
	return &b
}
