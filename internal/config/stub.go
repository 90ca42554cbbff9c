package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// StubConfig configures the standalone stub service.
type StubConfig struct {
	Addr         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration

	Key       string
	AdminUser string
	AdminPass string
	JWTSecret string

	RateLimit float64
	Burst     int

	LogLevel string
}

// LoadStub reads MIRI_STUB_* environment variables and, when path is set,
// a config file. Keys live under the stub section of the file.
func LoadStub(path string) (*StubConfig, error) {
	v := viper.New()

	v.SetDefault("stub.addr", ":8080")
	v.SetDefault("stub.readtimeout", 15*time.Second)
	// Zero leaves SSE streams unbounded.
	v.SetDefault("stub.writetimeout", 0)
	v.SetDefault("stub.idletimeout", 60*time.Second)
	v.SetDefault("stub.key", "")
	v.SetDefault("stub.adminuser", "")
	v.SetDefault("stub.adminpass", "")
	v.SetDefault("stub.jwtsecret", "")
	v.SetDefault("stub.ratelimit", 0.0)
	v.SetDefault("stub.burst", 10)
	v.SetDefault("stub.loglevel", "info")

	v.SetEnvPrefix("MIRI")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var wrapper struct{ Stub StubConfig }
	if err := v.Unmarshal(&wrapper); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	return &wrapper.Stub, nil
}

func (c *StubConfig) Validate() error {
	if c.Addr == "" {
		return errors.New("stub.addr is required")
	}
	if c.RateLimit < 0 {
		return errors.New("stub.ratelimit must not be negative")
	}
	if c.AdminUser != "" && c.AdminPass == "" {
		return errors.New("stub.adminpass is required with stub.adminuser")
	}
	return nil
}
