// Command miri-stub serves the in-process stand-in for the Miri agent
// service on a real port, for trying the CLI and SDK without an agent.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/time/rate"

	"github.com/maumercado/miri-go/internal/config"
	"github.com/maumercado/miri-go/internal/logger"
	"github.com/maumercado/miri-go/internal/testserver"
)

func main() {
	cfgFile := flag.String("config", "", "config file with a stub section")
	flag.Parse()

	// Load configuration
	cfg, err := config.LoadStub(*cfgFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid config: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	logger.Init(logger.ServiceStub, cfg.LogLevel, os.Getenv("ENV") != "production")

	log := logger.Get()
	log.Info().Msg("Starting stub agent service...")

	var opts []testserver.Option
	if cfg.RateLimit > 0 {
		opts = append(opts, testserver.WithRateLimit(rate.Limit(cfg.RateLimit), cfg.Burst))
	}
	stub := testserver.New(testserver.AuthConfig{
		ServerKey: cfg.Key,
		AdminUser: cfg.AdminUser,
		AdminPass: cfg.AdminPass,
		JWTSecret: cfg.JWTSecret,
	}, opts...)

	httpServer := &http.Server{
		Addr:         cfg.Addr,
		Handler:      stub,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	// Start HTTP server
	go func() {
		log.Info().
			Str("addr", httpServer.Addr).
			Bool("open", cfg.Key == "" && cfg.AdminUser == "" && cfg.JWTSecret == "").
			Msg("HTTP server listening")

		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("HTTP server error")
		}
	}()

	// Wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	// Hijacked WebSocket connections are not closed by Shutdown.
	stub.Close()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown error")
	}

	log.Info().Msg("Server stopped")
}
