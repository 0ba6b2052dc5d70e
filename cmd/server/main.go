// Copyright 2026 The SessionTrack Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sessiontrack/sessiontrack/internal/audit"
	"github.com/sessiontrack/sessiontrack/internal/config"
	"github.com/sessiontrack/sessiontrack/internal/cryptobox"
	"github.com/sessiontrack/sessiontrack/internal/netinfo"
	"github.com/sessiontrack/sessiontrack/internal/observability/logger"
	"github.com/sessiontrack/sessiontrack/internal/observability/metrics"
	"github.com/sessiontrack/sessiontrack/internal/observability/tracing"
	"github.com/sessiontrack/sessiontrack/internal/session"
	"github.com/sessiontrack/sessiontrack/internal/store/memory"
	"github.com/sessiontrack/sessiontrack/internal/store/postgres"
	redisstore "github.com/sessiontrack/sessiontrack/internal/store/redis"
	transportHTTP "github.com/sessiontrack/sessiontrack/internal/transport/http"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger.InitLogger(logger.Config{
		Level:       cfg.Observability.LogLevel,
		Format:      cfg.Observability.LogFormat,
		ServiceName: cfg.Observability.ServiceName,
	})
	slog.Info("starting sessiontrack")

	ctx := context.Background()

	if len(os.Args) > 1 && os.Args[1] == "migrate" {
		if err := runMigrate(ctx, cfg); err != nil {
			fmt.Fprintf(os.Stderr, "Migration failed: %v\n", err)
			os.Exit(1)
		}
		os.Exit(0)
	}

	tracer, err := tracing.New(ctx, tracing.Config{
		Enabled:        cfg.Observability.OTELEnabled,
		ServiceName:    cfg.Observability.ServiceName,
		ServiceVersion: cfg.Observability.ServiceVersion,
		SamplingRate:   1.0,
	})
	if err != nil {
		slog.Error("failed to initialize tracer", logger.Error(err))
	} else {
		defer tracer.Shutdown(ctx)
	}

	_, err = metrics.New(ctx, metrics.Config{
		Enabled: cfg.Observability.OTELEnabled,
	}, cfg.Observability.ServiceName)
	if err != nil {
		slog.Error("failed to initialize meter", logger.Error(err))
	}

	store, closeStore, err := buildStore(ctx, cfg)
	if err != nil {
		slog.Error("failed to initialize session store", logger.Error(err), logger.Backend(cfg.Store.Backend))
		os.Exit(1)
	}
	defer closeStore()
	slog.Info("session store ready", logger.Backend(cfg.Store.Backend))

	codec, err := buildCodec(cfg)
	if err != nil {
		slog.Error("failed to initialize field encryption", logger.Error(err))
		os.Exit(1)
	}

	sessionService := session.NewService(
		store,
		codec,
		netinfo.NewSystemProvider(),
		session.SystemClock(),
		audit.NewSlogLogger(),
		cfg.Session.IdleThreshold,
	)

	handler := transportHTTP.NewHandler(sessionService)
	router := transportHTTP.NewRouter(handler)

	addr := fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port)
	server := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Sweeper lifecycle is bound to this context
	sweepCtx, stopSweeper := context.WithCancel(ctx)
	defer stopSweeper()
	sweeper := session.NewSweeper(sessionService, cfg.Session.SweepInterval, cfg.Store.Timeout)
	go sweeper.Run(sweepCtx)

	go func() {
		slog.Info("starting http server", logger.Component("server"), logger.Operation("listen"))
		slog.Info(fmt.Sprintf("listening on %s", addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", logger.Error(err))
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down server")
	stopSweeper()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("forced shutdown", logger.Error(err))
	}

	slog.Info("server stopped")
}

// buildStore selects the session store backend from configuration.
func buildStore(ctx context.Context, cfg *config.Config) (session.Store, func(), error) {
	switch cfg.Store.Backend {
	case config.BackendPostgres:
		db, err := postgres.New(ctx, postgres.Config{
			Host:         cfg.Database.Host,
			Port:         cfg.Database.Port,
			User:         cfg.Database.User,
			Password:     cfg.Database.Password,
			Database:     cfg.Database.Database,
			SSLMode:      cfg.Database.SSLMode,
			MaxOpenConns: cfg.Database.MaxOpenConns,
			MaxIdleConns: cfg.Database.MaxIdleConns,
		})
		if err != nil {
			return nil, nil, err
		}
		return postgres.NewSessionStore(db), db.Close, nil

	case config.BackendRedis:
		store, err := redisstore.NewSessionStore(ctx, redisstore.Config{
			Addr:     cfg.Redis.Addr,
			Username: cfg.Redis.Username,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err != nil {
			return nil, nil, err
		}
		return store, func() { _ = store.Close() }, nil

	default:
		return memory.New(), func() {}, nil
	}
}

// buildCodec initializes field encryption, or a passthrough when the
// deployment runs unencrypted.
func buildCodec(cfg *config.Config) (session.Codec, error) {
	if !cfg.Crypto.Enabled {
		slog.Info("field encryption disabled")
		return session.PlainCodec{}, nil
	}
	box, err := cryptobox.Open(cfg.Crypto.KeyPath, cfg.Crypto.KeyBits)
	if err != nil {
		return nil, err
	}
	return session.NewFieldCodec(box), nil
}

func runMigrate(ctx context.Context, cfg *config.Config) error {
	if cfg.Store.Backend != config.BackendPostgres {
		return fmt.Errorf("migrate applies to the postgres backend only")
	}
	db, err := postgres.New(ctx, postgres.Config{
		Host:         cfg.Database.Host,
		Port:         cfg.Database.Port,
		User:         cfg.Database.User,
		Password:     cfg.Database.Password,
		Database:     cfg.Database.Database,
		SSLMode:      cfg.Database.SSLMode,
		MaxOpenConns: cfg.Database.MaxOpenConns,
		MaxIdleConns: cfg.Database.MaxIdleConns,
	})
	if err != nil {
		return err
	}
	defer db.Close()

	if err := db.Migrate(ctx, postgres.InitialSchema); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	slog.Info("schema applied")
	return nil
}
