package main

import (
	"context"
	"fmt"

	"golang.org/x/oauth2/clientcredentials"
	"golang.org/x/time/rate"

	"github.com/maumercado/miri-go/internal/config"
	"github.com/maumercado/miri-go/internal/logger"
	"github.com/maumercado/miri-go/pkg/client"
)

// clientOptions translates the loaded configuration into SDK options.
func clientOptions(ctx context.Context, cfg *config.Config) ([]client.Option, error) {
	opts := []client.Option{
		client.WithTimeout(cfg.Server.Timeout),
		client.WithUserAgent("miri-cli/" + version),
		client.WithLogger(logger.WithComponent("client")),
	}
	if cfg.Server.Retries > 0 {
		policy := client.DefaultRetryPolicy()
		policy.MaxAttempts = cfg.Server.Retries + 1
		opts = append(opts, client.WithRetry(policy))
	}
	if cfg.Server.RateLimit > 0 {
		opts = append(opts, client.WithRateLimit(rate.Limit(cfg.Server.RateLimit), cfg.Server.Burst))
	}

	switch cfg.Auth.Mode {
	case config.AuthKey:
		opts = append(opts, client.WithServerKey(cfg.Server.Key))
		if cfg.Server.AdminUser != "" {
			opts = append(opts, client.WithAdminAuth(cfg.Server.AdminUser, cfg.Server.AdminPass))
		}

	case config.AuthBasic:
		opts = append(opts,
			client.WithInjector(client.BasicAuthInjector{}),
			client.WithSecurityData(client.BasicCredentials{
				User: cfg.Server.AdminUser,
				Pass: cfg.Server.AdminPass,
			}),
		)

	case config.AuthJWT:
		opts = append(opts, client.WithInjector(&client.JWTInjector{
			Secret:  []byte(cfg.Auth.JWTSecret),
			Subject: cfg.Auth.JWTSubject,
			Role:    cfg.Auth.JWTRole,
			TTL:     cfg.Auth.JWTTTL,
		}))

	case config.AuthOAuth2:
		cc := clientcredentials.Config{
			ClientID:     cfg.Auth.OAuth2.ClientID,
			ClientSecret: cfg.Auth.OAuth2.ClientSecret,
			TokenURL:     cfg.Auth.OAuth2.TokenURL,
			Scopes:       cfg.Auth.OAuth2.Scopes,
		}
		opts = append(opts, client.WithInjector(client.TokenSourceInjector{Source: cc.TokenSource(ctx)}))

	default:
		return nil, fmt.Errorf("unknown auth mode %q", cfg.Auth.Mode)
	}

	return opts, nil
}
