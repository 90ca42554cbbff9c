package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

type recordingObserver struct {
	mu     sync.Mutex
	events []RequestEvent
}

func (o *recordingObserver) ObserveRequest(e RequestEvent) {
	o.mu.Lock()
	o.events = append(o.events, e)
	o.mu.Unlock()
}

func (o *recordingObserver) last() RequestEvent {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.events[len(o.events)-1]
}

func TestRequest_BuildsURLAndQuery(t *testing.T) {
	rt := &recordingTransport{body: `{}`}
	c := newRecordingClient(rt)

	_, err := c.Request(context.Background(), FullRequestParams{
		Path:   "/api/v1/prompt/stream",
		Method: "get",
		Query: map[string]any{
			"prompt": "hello world",
			"tags":   []string{"a", "b"},
			"skip":   nil,
			"limit":  intPtr(5),
		},
	})
	require.NoError(t, err)

	req := rt.last()
	assert.Equal(t, http.MethodGet, req.Method)
	assert.Equal(t, "miri.test", req.URL.Host)
	assert.Equal(t, "/api/v1/prompt/stream", req.URL.Path)
	assert.Equal(t, "limit=5&prompt=hello+world&tags=a&tags=b", req.URL.RawQuery)
}

func intPtr(i int) *int { return &i }

func TestRequest_EmptyQuery(t *testing.T) {
	rt := &recordingTransport{body: `{}`}
	c := newRecordingClient(rt)

	_, err := c.Request(context.Background(), FullRequestParams{Path: "/api/admin/v1/sessions/abc", Method: http.MethodGet})
	require.NoError(t, err)

	assert.Equal(t, "/api/admin/v1/sessions/abc", rt.last().URL.Path)
	assert.Empty(t, rt.last().URL.RawQuery)
}

func TestRequest_RequestID(t *testing.T) {
	rt := &recordingTransport{body: `{}`}
	c := newRecordingClient(rt)

	_, err := c.Request(context.Background(), FullRequestParams{Path: "/x", Method: http.MethodGet})
	require.NoError(t, err)
	assert.NotEmpty(t, rt.last().Header.Get(RequestIDHeader))

	_, err = c.Request(context.Background(), FullRequestParams{Path: "/x", Method: http.MethodGet},
		WithRequestHeader(RequestIDHeader, "req-1"))
	require.NoError(t, err)
	assert.Equal(t, "req-1", rt.last().Header.Get(RequestIDHeader))
}

func TestRequest_ContentTypeFromPayload(t *testing.T) {
	rt := &recordingTransport{body: `{}`}
	c := newRecordingClient(rt, WithHeader("Content-Type", "text/plain"))

	_, err := c.Request(context.Background(), FullRequestParams{
		RequestParams: RequestParams{Type: ContentTypeFormData},
		Path:          "/upload",
		Method:        http.MethodPost,
		Body:          map[string]any{"a": 1},
	})
	require.NoError(t, err)

	assert.Contains(t, rt.last().Header.Get("Content-Type"), "multipart/form-data; boundary=")
}

func TestRequest_ConfigurationErrors(t *testing.T) {
	tests := []struct {
		name  string
		p     FullRequestParams
		opts  []RequestOption
		field string
	}{
		{"empty path", FullRequestParams{Method: http.MethodGet}, nil, "path"},
		{"relative path", FullRequestParams{Path: "x", Method: http.MethodGet}, nil, "path"},
		{"bad method", FullRequestParams{Path: "/x", Method: "BREW"}, nil, "method"},
		{"body on get", FullRequestParams{Path: "/x", Method: http.MethodGet, Body: "x"}, nil, "body"},
		{"relative base", FullRequestParams{Path: "/x", Method: http.MethodGet}, []RequestOption{WithRequestBaseURL("miri.test")}, "url"},
		{"unencodable body", FullRequestParams{Path: "/x", Method: http.MethodPost, Body: 42, RequestParams: RequestParams{Type: ContentTypeFormData}}, nil, "body"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rt := &recordingTransport{body: `{}`}
			c := newRecordingClient(rt)

			_, err := c.Request(context.Background(), tt.p, tt.opts...)

			var cfgErr *ConfigurationError
			require.ErrorAs(t, err, &cfgErr)
			assert.Equal(t, tt.field, cfgErr.Field)
			assert.True(t, errors.Is(err, ErrConfiguration))
			assert.Equal(t, 0, rt.calls())
		})
	}
}

func TestDo_DecodesJSON(t *testing.T) {
	rt := &recordingTransport{body: `{"response":"echo: hi"}`}
	c := newRecordingClient(rt)

	resp, err := Do[PromptResponse](context.Background(), c, FullRequestParams{Path: "/x", Method: http.MethodPost, Body: PromptRequest{Prompt: "hi"}})
	require.NoError(t, err)

	assert.Equal(t, "echo: hi", resp.Data.Response)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, FormatJSON, resp.Format)
	assert.Equal(t, "application/json", rt.last().Header.Get("Content-Type"))
}

func TestDo_EmptyBody(t *testing.T) {
	rt := &recordingTransport{body: "  "}
	c := newRecordingClient(rt)

	resp, err := Do[*StatusResponse](context.Background(), c, FullRequestParams{Path: "/x", Method: http.MethodDelete})
	require.NoError(t, err)
	assert.Nil(t, resp.Data)
}

func TestDo_DecodeError(t *testing.T) {
	rt := &recordingTransport{body: `{"response":`}
	c := newRecordingClient(rt)

	_, err := Do[PromptResponse](context.Background(), c, FullRequestParams{Path: "/x", Method: http.MethodGet})

	var decErr *DecodeError
	require.ErrorAs(t, err, &decErr)
	assert.Equal(t, FormatJSON, decErr.Format)
	assert.Equal(t, "decode", errorClass(err))
}

func TestDo_TextAndBlob(t *testing.T) {
	rt := &recordingTransport{body: "plain body", header: http.Header{"Content-Type": {"text/plain"}}}
	c := newRecordingClient(rt)
	p := FullRequestParams{Path: "/x", Method: http.MethodGet}

	text, err := Do[string](context.Background(), c, p, WithRequestFormat(FormatText))
	require.NoError(t, err)
	assert.Equal(t, "plain body", text.Data)

	blob, err := Do[[]byte](context.Background(), c, p, WithRequestFormat(FormatBlob))
	require.NoError(t, err)
	assert.Equal(t, []byte("plain body"), blob.Data)

	_, err = Do[PromptResponse](context.Background(), c, p, WithRequestFormat(FormatText))
	assert.True(t, errors.Is(err, ErrDecode))
}

func TestRequest_NonSuccessStatus(t *testing.T) {
	rt := &recordingTransport{status: http.StatusNotFound, body: `{"error":"session not found"}`}
	obs := &recordingObserver{}
	c := newRecordingClient(rt, WithObserver(obs))

	_, err := c.Request(context.Background(), FullRequestParams{
		Operation: "AdminV1SessionsDetail",
		Path:      "/api/admin/v1/sessions/nope",
		Method:    http.MethodGet,
	})

	var tErr *TransportError
	require.ErrorAs(t, err, &tErr)
	assert.Equal(t, http.StatusNotFound, tErr.StatusCode)
	assert.Equal(t, "session not found", tErr.APIMessage())
	assert.Contains(t, tErr.Error(), "unexpected status 404: session not found")
	assert.True(t, errors.Is(err, ErrTransport))

	ev := obs.last()
	assert.Equal(t, "AdminV1SessionsDetail", ev.Operation)
	assert.Equal(t, http.StatusNotFound, ev.StatusCode)
	assert.Equal(t, "transport", ev.ErrorClass())
}

func TestRequest_ObserverOnSuccess(t *testing.T) {
	rt := &recordingTransport{body: `{}`}
	obs := &recordingObserver{}
	c := newRecordingClient(rt, WithObserver(obs))

	_, err := c.Request(context.Background(), FullRequestParams{Operation: "Op", Path: "/x", Method: "post"})
	require.NoError(t, err)

	ev := obs.last()
	assert.Equal(t, "Op", ev.Operation)
	assert.Equal(t, http.MethodPost, ev.Method)
	assert.Equal(t, http.StatusOK, ev.StatusCode)
	assert.NoError(t, ev.Err)
	assert.Empty(t, ev.ErrorClass())
}

func TestRequest_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	c := NewHTTPClient(WithBaseURL(srv.URL))

	_, err := c.Request(context.Background(), FullRequestParams{Path: "/slow", Method: http.MethodGet},
		WithRequestTimeout(50*time.Millisecond))

	var tErr *TransportError
	require.ErrorAs(t, err, &tErr)
	assert.Zero(t, tErr.StatusCode)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestRequest_RateLimit(t *testing.T) {
	rt := &recordingTransport{body: `{}`}
	c := newRecordingClient(rt, WithRateLimit(rate.Every(time.Hour), 1))
	p := FullRequestParams{Operation: "Op", Path: "/x", Method: http.MethodGet}

	_, err := c.Request(context.Background(), p)
	require.NoError(t, err)

	// The bucket is empty and refills long after the call's deadline.
	_, err = c.Request(context.Background(), p, WithRequestTimeout(50*time.Millisecond))
	var tErr *TransportError
	require.ErrorAs(t, err, &tErr)
	assert.ErrorIs(t, err, ErrTransport)
	assert.Zero(t, tErr.StatusCode)
	assert.Equal(t, 1, rt.calls())
}

func TestRequest_RateLimitDisabled(t *testing.T) {
	rt := &recordingTransport{body: `{}`}
	c := newRecordingClient(rt, WithRateLimit(rate.Every(time.Hour), 1), WithRateLimit(0, 0))

	for i := 0; i < 3; i++ {
		_, err := c.Request(context.Background(), FullRequestParams{Path: "/x", Method: http.MethodGet})
		require.NoError(t, err)
	}
	assert.Equal(t, 3, rt.calls())
}

func TestRequestStream_ReturnsOpenBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		_, _ = io.WriteString(w, "data: one\n\n")
	}))
	defer srv.Close()

	c := NewHTTPClient(WithBaseURL(srv.URL))
	resp, err := c.RequestStream(context.Background(), FullRequestParams{Path: "/s", Method: http.MethodGet})
	require.NoError(t, err)
	defer resp.Stream.Close()

	assert.Equal(t, FormatStream, resp.Format)
	data, err := io.ReadAll(resp.Stream)
	require.NoError(t, err)
	assert.Equal(t, "data: one\n\n", string(data))
}

func TestRequestStream_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = io.WriteString(w, `{"error":"prompt is required"}`)
	}))
	defer srv.Close()

	c := NewHTTPClient(WithBaseURL(srv.URL))
	_, err := c.RequestStream(context.Background(), FullRequestParams{Path: "/s", Method: http.MethodGet})

	var tErr *TransportError
	require.ErrorAs(t, err, &tErr)
	assert.Equal(t, "prompt is required", tErr.APIMessage())
}

func TestDefaultOptions_TimeoutLivesInContext(t *testing.T) {
	o := defaultOptions()
	assert.Zero(t, o.httpClient.Timeout)
	assert.Equal(t, DefaultTimeout, o.defaults.Timeout)
}

func TestRequestStream_OutlivesCallTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		flusher := w.(http.Flusher)
		for i := 0; i < 5; i++ {
			fmt.Fprintf(w, "event:message\ndata:%d\n\n", i)
			flusher.Flush()
			time.Sleep(30 * time.Millisecond)
		}
	}))
	defer srv.Close()

	c := NewHTTPClient(WithBaseURL(srv.URL), WithTimeout(50*time.Millisecond))
	resp, err := c.RequestStream(context.Background(), FullRequestParams{Path: "/s", Method: http.MethodGet})
	require.NoError(t, err)

	got, err := newPromptStream(resp.Stream, http.MethodGet, resp.URL).Collect()
	require.NoError(t, err)
	assert.Equal(t, "01234", got)
}

func TestRequestStream_HeaderTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	c := NewHTTPClient(WithBaseURL(srv.URL), WithTimeout(50*time.Millisecond))
	_, err := c.RequestStream(context.Background(), FullRequestParams{Path: "/s", Method: http.MethodGet})

	var tErr *TransportError
	require.ErrorAs(t, err, &tErr)
	assert.Zero(t, tErr.StatusCode)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Contains(t, err.Error(), "response headers")
}

func TestRequestStream_TransportErrorKeepsCause(t *testing.T) {
	refused := errors.New("connection refused")
	c := NewHTTPClient(
		WithBaseURL("http://miri.test"),
		WithHTTPClient(&http.Client{Transport: roundTripFunc(func(*http.Request) (*http.Response, error) {
			return nil, refused
		})}),
	)

	_, err := c.RequestStream(context.Background(), FullRequestParams{Path: "/s", Method: http.MethodGet})
	require.ErrorIs(t, err, refused)
	assert.NotErrorIs(t, err, context.Canceled)
	assert.NotErrorIs(t, err, context.DeadlineExceeded)
}

func TestBuildURL(t *testing.T) {
	got, err := buildURL("http://miri.test/", "/api/v1/prompt", nil)
	require.NoError(t, err)
	assert.Equal(t, "http://miri.test/api/v1/prompt", got)

	got, err = buildURL("", "/x", map[string]any{"b": true, "a": 1})
	require.NoError(t, err)
	assert.Equal(t, DefaultBaseURL+"/x?a=1&b=true", got)
}

func TestErrorClass(t *testing.T) {
	assert.Equal(t, "", errorClass(nil))
	assert.Equal(t, "configuration", errorClass(&ConfigurationError{}))
	assert.Equal(t, "security", errorClass(&SecurityError{Err: errors.New("x")}))
	assert.Equal(t, "decode", errorClass(&DecodeError{Err: errors.New("x")}))
	assert.Equal(t, "transport", errorClass(&TransportError{Err: errors.New("x")}))
	assert.Equal(t, "transport", errorClass(context.Canceled))
}
