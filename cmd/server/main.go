// Package main is the entry point for the F1 telemetry service HTTP server.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/f1replay/telemetry-service/internal/cache"
	"github.com/f1replay/telemetry-service/internal/config"
	"github.com/f1replay/telemetry-service/internal/database"
	"github.com/f1replay/telemetry-service/internal/handlers"
	"github.com/f1replay/telemetry-service/internal/logging"
	"github.com/f1replay/telemetry-service/internal/provider"
	"github.com/f1replay/telemetry-service/internal/server"
)

const shutdownTimeout = 15 * time.Second

var cfgFile string

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	v := config.NewViper()

	cmd := &cobra.Command{
		Use:     "telemetry-service",
		Short:   "Race replay telemetry API",
		Version: handlers.Version,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return initConfig(cmd, v)
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), v)
		},
		SilenceUsage: true,
	}

	flags := cmd.Flags()
	flags.StringVar(&cfgFile, "config", "", "config file (yaml, json or toml)")
	flags.String(config.KeyPort, "3000", "HTTP listen port")
	flags.String(config.KeyAllowOrigins, "*", "comma separated CORS origins")
	flags.Int64(config.KeyRateLimit, 100, "requests per minute allowed per client IP")
	flags.String(config.KeyDataServiceURL, "http://localhost:8000", "base URL of the session data service")
	flags.String(config.KeySessionType, "R", "session identifier requested from the data service")
	flags.Duration(config.KeyLoadTimeout, 120*time.Second, "time limit for loading one session")
	flags.Uint64(config.KeyMaxRetries, 3, "retries for transient data service failures")
	flags.Duration(config.KeyRetryInterval, 500*time.Millisecond, "initial retry backoff")
	flags.String(config.KeyCacheBackend, "disk", "upstream response cache: disk, postgres or none")
	flags.String(config.KeyCacheDir, "./cache", "directory of the disk cache")
	flags.Duration(config.KeyTelemetryTimeout, 10*time.Second, "time limit for fetching one lap's telemetry")
	flags.Uint64(config.KeyTelemetryRetries, 1, "retries for transient lap telemetry failures")
	flags.Float64(config.KeySampleRateHz, 2.0, "replay telemetry sample rate in Hz")
	flags.Duration(config.KeyBuildTimeout, 90*time.Second, "time limit for building one chunk or overview")
	flags.String(config.KeyLogLevel, "info", "log level")
	flags.String(config.KeyLogFormat, "json", "log format: json or console")

	return cmd
}

// initConfig reads the optional config file and binds flags so that
// explicitly set flags win over the environment and the file.
func initConfig(cmd *cobra.Command, v *viper.Viper) error {
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var bindErr error
	cmd.Flags().VisitAll(func(f *pflag.Flag) {
		if f.Name == "config" || !f.Changed {
			return
		}
		if err := v.BindPFlag(f.Name, f); err != nil {
			bindErr = errors.Join(bindErr, err)
		}
	})
	return bindErr
}

func run(ctx context.Context, v *viper.Viper) error {
	cfg, err := config.Load(v)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	logger, err := logging.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Only the postgres cache needs a database
	var db *database.DB
	if cfg.Cache.Backend == cache.BackendPostgres {
		db, err = database.New(ctx, &cfg.Database)
		if err != nil {
			logger.Error("failed to connect to database", zap.Error(err))
			return err
		}
		defer db.Close()
		logger.Info("successfully connected to database")
	}

	store, err := cache.New(ctx, cache.Config{Backend: cfg.Cache.Backend, Dir: cfg.Cache.Dir}, db)
	if err != nil {
		logger.Error("failed to initialise cache", zap.Error(err))
		return err
	}

	p := provider.NewHTTPProvider(provider.Options{
		BaseURL:          cfg.Provider.BaseURL,
		SessionType:      cfg.Provider.SessionType,
		LoadTimeout:      cfg.Provider.LoadTimeout,
		MaxRetries:       cfg.Provider.MaxRetries,
		RetryInterval:    cfg.Provider.RetryInterval,
		TelemetryTimeout: cfg.Provider.TelemetryTimeout,
		TelemetryRetries: cfg.Provider.TelemetryRetries,
		Cache:            store,
		Logger:           logger.Named("provider"),
	})

	router := server.New(&server.Dependencies{
		Config:   cfg,
		Provider: p,
		Cache:    store,
		Logger:   logger,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting server",
			zap.String("port", cfg.Server.Port),
			zap.String("data_service", cfg.Provider.BaseURL),
			zap.String("cache", cfg.Cache.Backend),
			zap.Float64("sample_rate_hz", cfg.Telemetry.SampleRateHz))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			logger.Error("server failed", zap.Error(err))
			return err
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}
	logger.Info("server stopped")
	return nil
}
