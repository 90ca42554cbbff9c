package client

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/oauth2"
)

// CredentialInjector contributes authentication parameters to secured calls.
// It receives the credential currently held by the client, which may be nil.
// Implementations may block, for example to refresh a token; an error aborts
// the call before any network I/O.
type CredentialInjector interface {
	Inject(ctx context.Context, credential any) (*RequestParams, error)
}

// InjectorFunc adapts a function to CredentialInjector.
type InjectorFunc func(ctx context.Context, credential any) (*RequestParams, error)

// Inject calls f.
func (f InjectorFunc) Inject(ctx context.Context, credential any) (*RequestParams, error) {
	return f(ctx, credential)
}

// ErrUnexpectedCredential is returned when an injector receives a credential
// of a type it does not understand.
var ErrUnexpectedCredential = errors.New("unexpected credential type")

type requestPathKey struct{}

// RequestPathFromContext returns the path of the call an injector is serving.
func RequestPathFromContext(ctx context.Context) string {
	p, _ := ctx.Value(requestPathKey{}).(string)
	return p
}

func withRequestPath(ctx context.Context, path string) context.Context {
	return context.WithValue(ctx, requestPathKey{}, path)
}

func headerParams(key, value string) *RequestParams {
	h := make(http.Header)
	h.Set(key, value)
	return &RequestParams{Header: h}
}

// ServerKeyHeader carries the shared key of the public API.
const ServerKeyHeader = "X-Server-Key"

// ServerKeyInjector sends a string credential as the server key header.
type ServerKeyInjector struct{}

func (ServerKeyInjector) Inject(_ context.Context, credential any) (*RequestParams, error) {
	switch v := credential.(type) {
	case nil:
		return nil, nil
	case string:
		if v == "" {
			return nil, nil
		}
		return headerParams(ServerKeyHeader, v), nil
	}
	return nil, fmt.Errorf("%w: %T", ErrUnexpectedCredential, credential)
}

// BasicCredentials are the admin user and password.
type BasicCredentials struct {
	User string
	Pass string
}

// BasicAuthInjector sends BasicCredentials as HTTP basic authentication.
type BasicAuthInjector struct{}

func (BasicAuthInjector) Inject(_ context.Context, credential any) (*RequestParams, error) {
	var creds BasicCredentials
	switch v := credential.(type) {
	case nil:
		return nil, nil
	case BasicCredentials:
		creds = v
	case *BasicCredentials:
		if v == nil {
			return nil, nil
		}
		creds = *v
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnexpectedCredential, credential)
	}
	if creds.User == "" {
		return nil, nil
	}
	return headerParams("Authorization", basicAuth(creds.User, creds.Pass)), nil
}

func basicAuth(user, pass string) string {
	return "Basic " + base64.StdEncoding.EncodeToString([]byte(user+":"+pass))
}

// BearerInjector sends a string credential as a bearer token.
type BearerInjector struct{}

func (BearerInjector) Inject(_ context.Context, credential any) (*RequestParams, error) {
	switch v := credential.(type) {
	case nil:
		return nil, nil
	case string:
		if v == "" {
			return nil, nil
		}
		return headerParams("Authorization", "Bearer "+v), nil
	}
	return nil, fmt.Errorf("%w: %T", ErrUnexpectedCredential, credential)
}

// Credentials hold both secrets the agent service uses: the server key for
// /api/v1 and /ws, and the admin account for /api/admin/v1.
type Credentials struct {
	ServerKey string
	Admin     BasicCredentials
}

// ServiceInjector picks the scheme from the request path: basic auth for
// admin routes, the server key everywhere else.
type ServiceInjector struct{}

func (ServiceInjector) Inject(ctx context.Context, credential any) (*RequestParams, error) {
	var creds Credentials
	switch v := credential.(type) {
	case nil:
		return nil, nil
	case Credentials:
		creds = v
	case *Credentials:
		if v == nil {
			return nil, nil
		}
		creds = *v
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnexpectedCredential, credential)
	}
	if strings.HasPrefix(RequestPathFromContext(ctx), adminPrefix) {
		return BasicAuthInjector{}.Inject(ctx, creds.Admin)
	}
	return ServerKeyInjector{}.Inject(ctx, creds.ServerKey)
}

// TokenClaims are the claims minted by JWTInjector.
type TokenClaims struct {
	UserID string `json:"user_id"`
	Role   string `json:"role"`
	jwt.RegisteredClaims
}

// JWTInjector signs a short-lived HS256 token for every secured call.
// A string credential replaces Subject for that call.
type JWTInjector struct {
	Secret  []byte
	Subject string
	Role    string
	TTL     time.Duration

	now func() time.Time
}

func (j *JWTInjector) Inject(_ context.Context, credential any) (*RequestParams, error) {
	if len(j.Secret) == 0 {
		return nil, errors.New("jwt injector: empty secret")
	}
	subject := j.Subject
	switch v := credential.(type) {
	case nil:
	case string:
		if v != "" {
			subject = v
		}
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnexpectedCredential, credential)
	}

	now := time.Now
	if j.now != nil {
		now = j.now
	}
	ttl := j.TTL
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	issued := now()
	claims := TokenClaims{
		UserID: subject,
		Role:   j.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(issued),
			ExpiresAt: jwt.NewNumericDate(issued.Add(ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(j.Secret)
	if err != nil {
		return nil, fmt.Errorf("sign token: %w", err)
	}
	return headerParams("Authorization", "Bearer "+signed), nil
}

// TokenSourceInjector authenticates with tokens from an oauth2.TokenSource.
// An oauth2.TokenSource credential takes precedence over Source; the source
// may block while it fetches or refreshes a token.
type TokenSourceInjector struct {
	Source oauth2.TokenSource
}

func (t TokenSourceInjector) Inject(ctx context.Context, credential any) (*RequestParams, error) {
	src := t.Source
	switch v := credential.(type) {
	case nil:
	case oauth2.TokenSource:
		src = v
	case *oauth2.Token:
		src = oauth2.StaticTokenSource(v)
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnexpectedCredential, credential)
	}
	if src == nil {
		return nil, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	tok, err := src.Token()
	if err != nil {
		return nil, fmt.Errorf("fetch token: %w", err)
	}
	p := &RequestParams{Header: make(http.Header)}
	tok.SetAuthHeader(&http.Request{Header: p.Header})
	return p, nil
}
