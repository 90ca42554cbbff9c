package testserver

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

type contextKey string

const (
	UserContextKey contextKey = "user"
)

// AuthConfig holds the credentials the stub service accepts. Empty values
// disable the corresponding scheme.
type AuthConfig struct {
	ServerKey string
	AdminUser string
	AdminPass string
	JWTSecret string
}

// Claims represents JWT claims
type Claims struct {
	UserID string `json:"user_id"`
	Role   string `json:"role"`
	jwt.RegisteredClaims
}

func (cfg *AuthConfig) open() bool {
	return cfg.ServerKey == "" && cfg.AdminUser == "" && cfg.JWTSecret == ""
}

// ServerKeyAuth guards /api/v1 and /ws: X-Server-Key or a bearer JWT.
func ServerKeyAuth(cfg *AuthConfig) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if cfg.open() {
				next.ServeHTTP(w, r)
				return
			}

			if key := r.Header.Get("X-Server-Key"); key != "" {
				if cfg.ServerKey != "" && secureEqual(key, cfg.ServerKey) {
					next.ServeHTTP(w, r)
					return
				}
				respondError(w, http.StatusUnauthorized, "invalid server key")
				return
			}

			claims, status, msg := cfg.bearer(r)
			if claims == nil {
				respondError(w, status, msg)
				return
			}
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), UserContextKey, claims)))
		})
	}
}

// AdminAuth guards /api/admin/v1: HTTP basic or a bearer JWT with the admin
// role.
func AdminAuth(cfg *AuthConfig) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if cfg.open() {
				next.ServeHTTP(w, r)
				return
			}

			if user, pass, ok := r.BasicAuth(); ok {
				if cfg.AdminUser != "" && secureEqual(user, cfg.AdminUser) && secureEqual(pass, cfg.AdminPass) {
					next.ServeHTTP(w, r)
					return
				}
				w.Header().Set("WWW-Authenticate", `Basic realm="miri admin"`)
				respondError(w, http.StatusUnauthorized, "invalid admin credentials")
				return
			}

			claims, status, msg := cfg.bearer(r)
			if claims == nil {
				w.Header().Set("WWW-Authenticate", `Basic realm="miri admin"`)
				respondError(w, status, msg)
				return
			}
			if claims.Role != "admin" {
				respondError(w, http.StatusForbidden, "admin role required")
				return
			}
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), UserContextKey, claims)))
		})
	}
}

func (cfg *AuthConfig) bearer(r *http.Request) (*Claims, int, string) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return nil, http.StatusUnauthorized, "authorization required"
	}

	tokenString := strings.TrimPrefix(authHeader, "Bearer ")
	if tokenString == authHeader || cfg.JWTSecret == "" {
		return nil, http.StatusUnauthorized, "invalid authorization header format"
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		return []byte(cfg.JWTSecret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || !token.Valid {
		return nil, http.StatusUnauthorized, "invalid token"
	}
	return claims, 0, ""
}

// GetUser retrieves user claims from context
func GetUser(ctx context.Context) *Claims {
	claims, ok := ctx.Value(UserContextKey).(*Claims)
	if !ok {
		return nil
	}
	return claims
}

func secureEqual(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
