package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"reflect"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/oapi-codegen/runtime"
)

// RequestIDHeader is set on every request that does not already carry one.
const RequestIDHeader = "X-Request-ID"

const maxErrorBody = 1 << 20

var errHeaderTimeout = fmt.Errorf("timed out waiting for response headers: %w", context.DeadlineExceeded)

// RequestEvent describes one finished call.
type RequestEvent struct {
	Operation  string
	Method     string
	Path       string
	StatusCode int
	Duration   time.Duration
	Err        error
}

// ErrorClass labels Err as configuration, security, transport or decode.
// It is empty for successful calls.
func (e RequestEvent) ErrorClass() string {
	return errorClass(e.Err)
}

// Observer is notified after every call. Implementations must be safe for
// concurrent use.
type Observer interface {
	ObserveRequest(RequestEvent)
}

// Response is a raw response. Body holds the payload for every format except
// FormatStream, where Stream must be read and closed by the caller.
type Response struct {
	URL        string
	StatusCode int
	Header     http.Header
	Format     ResponseFormat
	Body       []byte
	Stream     io.ReadCloser
}

// TypedResponse is a response decoded into T.
type TypedResponse[T any] struct {
	*Response
	Data T
}

// HTTPClient turns request descriptors into HTTP calls. It holds the client
// defaults and the current credential; everything else is built per call.
type HTTPClient struct {
	opts *options

	mu           sync.RWMutex
	securityData any
}

// NewHTTPClient creates a client with the given options.
func NewHTTPClient(opts ...Option) *HTTPClient {
	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}
	return &HTTPClient{
		opts:         o,
		securityData: o.securityData,
	}
}

// SetSecurityData replaces the credential handed to the injector. Calls whose
// injector runs after the update see the new value.
func (c *HTTPClient) SetSecurityData(data any) {
	c.mu.Lock()
	c.securityData = data
	c.mu.Unlock()
}

// SecurityData returns the current credential.
func (c *HTTPClient) SecurityData() any {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.securityData
}

// BaseURL returns the default base address.
func (c *HTTPClient) BaseURL() string {
	return c.opts.defaults.BaseURL
}

// Request issues one call and returns the raw response.
func (c *HTTPClient) Request(ctx context.Context, p FullRequestParams, opts ...RequestOption) (*Response, error) {
	return c.do(ctx, p, opts, nil)
}

// Do issues one call and decodes the response into T.
func Do[T any](ctx context.Context, c *HTTPClient, p FullRequestParams, opts ...RequestOption) (*TypedResponse[T], error) {
	out := &TypedResponse[T]{}
	resp, err := c.do(ctx, p, opts, &out.Data)
	if err != nil {
		return nil, err
	}
	out.Response = resp
	return out, nil
}

// RequestStream issues one call and hands back the open response body.
// The call's timeout covers the wait for response headers; after that the
// body stays open until ctx ends or the caller closes Response.Stream.
func (c *HTTPClient) RequestStream(ctx context.Context, p FullRequestParams, opts ...RequestOption) (resp *Response, err error) {
	start := time.Now()
	status := 0
	defer func() { c.observe(p, status, start, err) }()

	p.Format = FormatStream
	prepared, err := c.prepare(ctx, &p, opts, true)
	if err != nil {
		return nil, err
	}

	httpResp, err := c.opts.httpClient.Do(prepared.req)
	if err != nil {
		err = withCause(prepared.req.Context(), err)
		prepared.cancel()
		return nil, &TransportError{Method: p.Method, URL: prepared.req.URL.String(), Err: err}
	}
	if !prepared.headersArrived() {
		// The header deadline fired as the response came in.
		prepared.cancel()
		httpResp.Body.Close()
		return nil, &TransportError{Method: p.Method, URL: prepared.req.URL.String(), Err: errHeaderTimeout}
	}
	status = httpResp.StatusCode
	if httpResp.StatusCode < 200 || httpResp.StatusCode >= 300 {
		defer prepared.cancel()
		defer httpResp.Body.Close()
		body, _ := io.ReadAll(io.LimitReader(httpResp.Body, maxErrorBody))
		return nil, &TransportError{
			Method:     p.Method,
			URL:        prepared.req.URL.String(),
			StatusCode: httpResp.StatusCode,
			Body:       body,
		}
	}

	return &Response{
		URL:        prepared.req.URL.String(),
		StatusCode: httpResp.StatusCode,
		Header:     httpResp.Header,
		Format:     FormatStream,
		Stream:     &cancelOnClose{ReadCloser: httpResp.Body, cancel: prepared.cancel},
	}, nil
}

// do runs a call, sending it again while the retry policy allows.
func (c *HTTPClient) do(ctx context.Context, p FullRequestParams, opts []RequestOption, out any) (*Response, error) {
	// Normalise the method before the retry policy looks at it. A rejected
	// descriptor fails again in doOnce, which records the call.
	if err := p.validate(); err != nil {
		return c.doOnce(ctx, p, opts, out)
	}
	policy := c.opts.retry
	for attempt := 0; ; attempt++ {
		resp, err := c.doOnce(ctx, p, opts, out)
		if policy == nil || !policy.ShouldRetry(p.Method, attempt+1, err) {
			return resp, err
		}

		wait := policy.CalculateBackoff(attempt)
		c.opts.logger.Debug().
			Err(err).
			Str("operation", p.Operation).
			Int("attempt", attempt+1).
			Dur("backoff", wait).
			Msg("retrying call")

		timer := time.NewTimer(wait)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return nil, err
		}
	}
}

// doOnce runs every stage of a call: resolve security, merge, encode,
// dispatch and decode into out when out is not nil.
func (c *HTTPClient) doOnce(ctx context.Context, p FullRequestParams, opts []RequestOption, out any) (resp *Response, err error) {
	start := time.Now()
	status := 0
	defer func() { c.observe(p, status, start, err) }()

	prepared, err := c.prepare(ctx, &p, opts, false)
	if err != nil {
		return nil, err
	}
	defer prepared.cancel()

	httpResp, err := c.opts.httpClient.Do(prepared.req)
	if err != nil {
		return nil, &TransportError{Method: p.Method, URL: prepared.req.URL.String(), Err: err}
	}
	defer httpResp.Body.Close()
	status = httpResp.StatusCode

	if httpResp.StatusCode < 200 || httpResp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(httpResp.Body, maxErrorBody))
		return nil, &TransportError{
			Method:     p.Method,
			URL:        prepared.req.URL.String(),
			StatusCode: httpResp.StatusCode,
			Body:       body,
		}
	}

	body, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, &TransportError{
			Method:     p.Method,
			URL:        prepared.req.URL.String(),
			StatusCode: httpResp.StatusCode,
			Err:        fmt.Errorf("read body: %w", err),
		}
	}

	format := prepared.params.Format
	if format == "" {
		format = FormatJSON
	}
	resp = &Response{
		URL:        prepared.req.URL.String(),
		StatusCode: httpResp.StatusCode,
		Header:     httpResp.Header,
		Format:     format,
		Body:       body,
	}
	if out != nil {
		if err := decodeBody(format, body, out); err != nil {
			return nil, err
		}
	}
	return resp, nil
}

type preparedRequest struct {
	req    *http.Request
	params RequestParams
	cancel context.CancelFunc
	// stopTimer disarms the header deadline of a stream. It reports false
	// once the deadline has fired.
	stopTimer func() bool
}

func (p *preparedRequest) headersArrived() bool {
	return p.stopTimer == nil || p.stopTimer()
}

// prepare validates the descriptor, resolves security, merges parameters and
// encodes the body. It performs no network I/O but may wait on the rate
// limiter. For a stream the timeout only bounds the wait for response
// headers; otherwise it bounds the whole call.
func (c *HTTPClient) prepare(ctx context.Context, p *FullRequestParams, opts []RequestOption, stream bool) (*preparedRequest, error) {
	if err := p.validate(); err != nil {
		return nil, err
	}

	var override RequestParams
	for _, opt := range opts {
		opt(&override)
	}

	base := p.RequestParams
	effective := c.mergeRequestParams(p.Method, base, &override)
	if effective.Secure != nil && *effective.Secure && c.opts.injector != nil {
		secured, err := c.opts.injector.Inject(withRequestPath(ctx, p.Path), c.SecurityData())
		if err != nil {
			c.opts.logger.Warn().
				Err(err).
				Str("operation", p.Operation).
				Str("path", p.Path).
				Msg("credential injection failed")
			return nil, &SecurityError{Op: p.Operation, Err: err}
		}
		if secured != nil {
			base = layerParams(*secured, base)
			effective = c.mergeRequestParams(p.Method, base, &override)
		}
	}

	target, err := buildURL(effective.BaseURL, p.Path, p.Query)
	if err != nil {
		return nil, &ConfigurationError{Op: p.Operation, Field: "url", Err: err}
	}

	payload, err := encodeBody(p.Body, effective.Type)
	if err != nil {
		return nil, &ConfigurationError{Op: p.Operation, Field: "body", Err: err}
	}

	cancel := context.CancelFunc(func() {})
	var stopTimer func() bool
	switch {
	case effective.Timeout <= 0:
	case stream:
		var cancelCause context.CancelCauseFunc
		ctx, cancelCause = context.WithCancelCause(ctx)
		timer := time.AfterFunc(effective.Timeout, func() { cancelCause(errHeaderTimeout) })
		stopTimer = timer.Stop
		cancel = func() {
			timer.Stop()
			cancelCause(context.Canceled)
		}
	default:
		ctx, cancel = context.WithTimeout(ctx, effective.Timeout)
	}

	var bodyReader io.Reader
	if payload != nil {
		bodyReader = payload.reader
	}
	req, err := http.NewRequestWithContext(ctx, p.Method, target, bodyReader)
	if err != nil {
		cancel()
		return nil, &ConfigurationError{Op: p.Operation, Field: "request", Err: err}
	}
	req.Header = mergeHeaders(effective.Header)
	if req.Header == nil {
		req.Header = make(http.Header)
	}
	if payload != nil {
		req.Header.Set("Content-Type", payload.contentType)
	}
	if req.Header.Get(RequestIDHeader) == "" {
		req.Header.Set(RequestIDHeader, uuid.NewString())
	}

	if c.opts.limiter != nil {
		if err := c.opts.limiter.Wait(ctx); err != nil {
			err = withCause(ctx, err)
			cancel()
			return nil, &TransportError{Method: p.Method, URL: target, Err: err}
		}
	}

	return &preparedRequest{req: req, params: effective, cancel: cancel, stopTimer: stopTimer}, nil
}

// withCause adds the reason ctx was cancelled to err when err does not
// already carry it.
func withCause(ctx context.Context, err error) error {
	if cause := context.Cause(ctx); cause != nil && !errors.Is(err, cause) {
		return fmt.Errorf("%w: %w", cause, err)
	}
	return err
}

func (c *HTTPClient) observe(p FullRequestParams, status int, start time.Time, err error) {
	d := time.Since(start)
	event := c.opts.logger.Debug()
	if err != nil {
		event = event.Err(err)
	}
	event.
		Str("operation", p.Operation).
		Str("method", p.Method).
		Str("path", p.Path).
		Int("status", status).
		Dur("duration", d).
		Msg("request finished")

	if c.opts.observer != nil {
		c.opts.observer.ObserveRequest(RequestEvent{
			Operation:  p.Operation,
			Method:     p.Method,
			Path:       p.Path,
			StatusCode: status,
			Duration:   d,
			Err:        err,
		})
	}
}

// buildURL joins base and path and appends the encoded query.
func buildURL(base, path string, query map[string]any) (string, error) {
	if base == "" {
		base = DefaultBaseURL
	}
	u, err := url.Parse(strings.TrimSuffix(base, "/") + path)
	if err != nil {
		return "", err
	}
	if u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("base URL %q must be absolute", base)
	}
	raw, err := encodeQuery(query)
	if err != nil {
		return "", err
	}
	u.RawQuery = raw
	return u.String(), nil
}

// encodeQuery renders query parameters in form style with exploded arrays.
// Nil values are skipped; keys are sorted for a stable URL.
func encodeQuery(query map[string]any) (string, error) {
	if len(query) == 0 {
		return "", nil
	}
	keys := make([]string, 0, len(query))
	for k := range query {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		v, ok := deref(query[k])
		if !ok {
			continue
		}
		styled, err := runtime.StyleParamWithLocation("form", true, k, runtime.ParamLocationQuery, v)
		if err != nil {
			return "", fmt.Errorf("query parameter %q: %w", k, err)
		}
		if styled != "" {
			parts = append(parts, styled)
		}
	}
	return strings.Join(parts, "&"), nil
}

// deref follows pointers and reports false for nil values.
func deref(v any) (any, bool) {
	if v == nil {
		return nil, false
	}
	rv := reflect.ValueOf(v)
	for rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return nil, false
		}
		rv = rv.Elem()
	}
	return rv.Interface(), true
}

// decodeBody stores body into out according to format.
func decodeBody(format ResponseFormat, body []byte, out any) error {
	switch format {
	case FormatText, FormatBlob:
		switch o := out.(type) {
		case *string:
			*o = string(body)
			return nil
		case *[]byte:
			*o = append([]byte(nil), body...)
			return nil
		case *json.RawMessage:
			*o = append(json.RawMessage(nil), body...)
			return nil
		}
		return &DecodeError{Format: format, Err: fmt.Errorf("cannot store %s response in %T", format, out)}
	case FormatStream:
		return &DecodeError{Format: format, Err: errors.New("stream responses must be read with RequestStream")}
	}

	if len(bytes.TrimSpace(body)) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return &DecodeError{Format: FormatJSON, Err: err}
	}
	return nil
}

// cancelOnClose releases the call's timeout when the stream is closed.
type cancelOnClose struct {
	io.ReadCloser
	cancel context.CancelFunc
	once   sync.Once
}

func (c *cancelOnClose) Close() error {
	err := c.ReadCloser.Close()
	c.once.Do(c.cancel)
	return err
}
