package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Auth modes understood by the CLI.
const (
	AuthKey    = "key"
	AuthBasic  = "basic"
	AuthJWT    = "jwt"
	AuthOAuth2 = "oauth2"
)

type Config struct {
	Server   ServerConfig
	Auth     AuthConfig
	Metrics  MetricsConfig
	LogLevel string
	Output   string
}

type ServerConfig struct {
	URL       string
	Key       string
	AdminUser string
	AdminPass string
	Timeout   time.Duration
	// RateLimit caps calls per second; zero disables it.
	RateLimit float64
	Burst     int
	// Retries is how many times failed GET calls are sent again.
	Retries int
}

type AuthConfig struct {
	// Mode selects how /api/v1 calls authenticate. Admin calls always use
	// basic auth when AdminUser is set, except in jwt and oauth2 modes.
	Mode       string
	JWTSecret  string
	JWTSubject string
	JWTRole    string
	JWTTTL     time.Duration
	OAuth2     OAuth2Config
}

// OAuth2Config holds client-credentials settings.
type OAuth2Config struct {
	ClientID     string
	ClientSecret string
	TokenURL     string
	Scopes       []string
}

type MetricsConfig struct {
	Enabled bool
	Addr    string
}

// Load reads configuration from file and MIRI_* environment variables.
// An empty path searches ., ./config and $HOME/.miri for config.yaml; a
// missing file is not an error.
func Load(path string) (*Config, error) {
	v := viper.New()
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("$HOME/.miri")
	}

	setDefaults(v)

	v.SetEnvPrefix("MIRI")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.url", "http://localhost:8080")
	v.SetDefault("server.key", "")
	v.SetDefault("server.adminuser", "")
	v.SetDefault("server.adminpass", "")
	v.SetDefault("server.timeout", 60*time.Second)
	v.SetDefault("server.ratelimit", 0.0)
	v.SetDefault("server.burst", 1)
	v.SetDefault("server.retries", 0)

	// Auth defaults
	v.SetDefault("auth.mode", AuthKey)
	v.SetDefault("auth.jwtsecret", "")
	v.SetDefault("auth.jwtsubject", "miri-cli")
	v.SetDefault("auth.jwtrole", "admin")
	v.SetDefault("auth.jwtttl", 5*time.Minute)
	v.SetDefault("auth.oauth2.clientid", "")
	v.SetDefault("auth.oauth2.clientsecret", "")
	v.SetDefault("auth.oauth2.tokenurl", "")
	v.SetDefault("auth.oauth2.scopes", []string{})

	// Metrics defaults
	v.SetDefault("metrics.enabled", false)
	v.SetDefault("metrics.addr", ":9090")

	// Output defaults
	v.SetDefault("loglevel", "warn")
	v.SetDefault("output", "text")
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	u, err := url.Parse(c.Server.URL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("server.url %q is not an absolute URL", c.Server.URL)
	}
	if c.Server.Timeout < 0 {
		return errors.New("server.timeout must not be negative")
	}
	if c.Server.RateLimit < 0 {
		return errors.New("server.ratelimit must not be negative")
	}
	if c.Server.Retries < 0 {
		return errors.New("server.retries must not be negative")
	}

	switch c.Auth.Mode {
	case AuthKey, AuthBasic:
	case AuthJWT:
		if c.Auth.JWTSecret == "" {
			return errors.New("auth.jwtsecret is required in jwt mode")
		}
	case AuthOAuth2:
		if c.Auth.OAuth2.TokenURL == "" || c.Auth.OAuth2.ClientID == "" {
			return errors.New("auth.oauth2.tokenurl and auth.oauth2.clientid are required in oauth2 mode")
		}
	default:
		return fmt.Errorf("auth.mode %q is not one of key, basic, jwt, oauth2", c.Auth.Mode)
	}

	switch c.Output {
	case "text", "json", "yaml":
	default:
		return fmt.Errorf("output %q is not one of text, json, yaml", c.Output)
	}

	if c.Metrics.Enabled && c.Metrics.Addr == "" {
		return errors.New("metrics.addr is required when metrics are enabled")
	}
	return nil
}
