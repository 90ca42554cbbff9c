package client

import (
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

const (
	// DefaultBaseURL is used when no base address is configured.
	DefaultBaseURL = "http://localhost:8080"
	// DefaultTimeout bounds a call, or the wait for a stream's response
	// headers, when no timeout is configured.
	DefaultTimeout = 30 * time.Second
)

// Option configures the client.
type Option func(*options)

type options struct {
	httpClient    *http.Client
	defaults      RequestParams
	methodHeaders map[string]http.Header
	injector      CredentialInjector
	securityData  any
	logger        zerolog.Logger
	observer      Observer
	limiter       *rate.Limiter
	retry         *RetryPolicy
}

func defaultOptions() *options {
	return &options{
		// Calls are bounded through their context; a transport timeout would
		// also cut off prompt streams.
		httpClient: &http.Client{},
		defaults: RequestParams{
			BaseURL: DefaultBaseURL,
			Timeout: DefaultTimeout,
			Header:  http.Header{"Accept": []string{"application/json, text/plain, */*"}},
		},
		methodHeaders: make(map[string]http.Header),
		logger:        zerolog.Nop(),
	}
}

// WithBaseURL sets the default base address.
func WithBaseURL(baseURL string) Option {
	return func(o *options) {
		if baseURL != "" {
			o.defaults.BaseURL = strings.TrimSuffix(baseURL, "/")
		}
	}
}

// WithHTTPClient allows providing a custom HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(o *options) {
		if client != nil {
			o.httpClient = client
		}
	}
}

// WithTimeout sets the default call timeout. Streams only use it for the
// wait on response headers. Zero disables it.
func WithTimeout(d time.Duration) Option {
	return func(o *options) {
		o.defaults.Timeout = d
	}
}

// WithHeader adds a header to all requests.
func WithHeader(key, value string) Option {
	return func(o *options) {
		if o.defaults.Header == nil {
			o.defaults.Header = make(http.Header)
		}
		o.defaults.Header.Set(key, value)
	}
}

// WithUserAgent sets the User-Agent header of all requests.
func WithUserAgent(ua string) Option {
	return WithHeader("User-Agent", ua)
}

// WithMethodHeader adds a header to all requests sent with method.
// Method headers sit beneath every other header source.
func WithMethodHeader(method, key, value string) Option {
	return func(o *options) {
		m := strings.ToUpper(method)
		if o.methodHeaders[m] == nil {
			o.methodHeaders[m] = make(http.Header)
		}
		o.methodHeaders[m].Set(key, value)
	}
}

// WithSecure sets the default secure flag for calls that do not set one.
func WithSecure(secure bool) Option {
	return func(o *options) {
		o.defaults.Secure = &secure
	}
}

// WithFormat sets the default response format.
func WithFormat(format ResponseFormat) Option {
	return func(o *options) {
		o.defaults.Format = format
	}
}

// WithInjector installs the credential injector used by secured calls.
func WithInjector(injector CredentialInjector) Option {
	return func(o *options) {
		o.injector = injector
	}
}

// WithSecurityData sets the initial credential handed to the injector.
func WithSecurityData(data any) Option {
	return func(o *options) {
		o.securityData = data
	}
}

// WithServerKey authenticates /api/v1 and /ws calls with the server key.
// It can be combined with WithAdminAuth.
func WithServerKey(key string) Option {
	return func(o *options) {
		creds, _ := o.securityData.(Credentials)
		creds.ServerKey = key
		o.securityData = creds
		o.injector = ServiceInjector{}
	}
}

// WithAdminAuth authenticates /api/admin/v1 calls with basic auth.
func WithAdminAuth(user, pass string) Option {
	return func(o *options) {
		creds, _ := o.securityData.(Credentials)
		creds.Admin = BasicCredentials{User: user, Pass: pass}
		o.securityData = creds
		o.injector = ServiceInjector{}
	}
}

// WithLogger sets the logger used for request tracing.
func WithLogger(logger zerolog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithObserver registers an observer notified after every call.
func WithObserver(observer Observer) Option {
	return func(o *options) {
		o.observer = observer
	}
}

// WithRateLimit spaces calls to at most r per second with bursts of burst.
// Calls wait for a token once they are fully built; a call whose deadline
// would pass first fails with a TransportError.
func WithRateLimit(r rate.Limit, burst int) Option {
	return func(o *options) {
		if r <= 0 {
			o.limiter = nil
			return
		}
		if burst < 1 {
			burst = 1
		}
		o.limiter = rate.NewLimiter(r, burst)
	}
}

// WithRetry retries idempotent calls under policy. A nil policy disables
// retries.
func WithRetry(policy *RetryPolicy) Option {
	return func(o *options) {
		o.retry = policy
	}
}
