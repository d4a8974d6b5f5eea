package main

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/MrEthical07/authgate"
	"github.com/MrEthical07/authgate/audit/kafkasink"
	"github.com/MrEthical07/authgate/credentials"
	"github.com/MrEthical07/authgate/httpapi"
	"github.com/MrEthical07/authgate/internal/config"
	"github.com/MrEthical07/authgate/internal/database"
	prom "github.com/MrEthical07/authgate/metrics/export/prometheus"
	"github.com/MrEthical07/authgate/middleware"
	"github.com/MrEthical07/authgate/refresh"
	"github.com/redis/go-redis/v9"
)

// app owns every long-lived resource of the server.
type app struct {
	cfg     *config.Config
	logger  *slog.Logger
	engine  *authgate.Engine
	handler http.Handler
	closers []func() error
}

func newApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (a *app, err error) {
	a = &app{cfg: cfg, logger: logger}
	defer func() {
		if err != nil {
			a.close()
		}
	}()

	var db *sql.DB
	if cfg.NeedsDatabase() {
		db, err = database.Open(ctx, cfg.DatabaseURL, database.Options{MaxOpenConns: 20, MaxIdleConns: 5, ConnMaxLifetime: 30 * time.Minute})
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, db.Close)
		if err = database.Migrate(ctx, db); err != nil {
			return nil, err
		}
		logger.Info("database ready")
	}

	var rdb redis.UniversalClient
	if cfg.NeedsRedis() {
		rdb = redis.NewUniversalClient(&redis.UniversalOptions{
			Addrs:    []string{cfg.RedisAddr},
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		a.closers = append(a.closers, rdb.Close)
		if err = rdb.Ping(ctx).Err(); err != nil {
			return nil, err
		}
		logger.Info("redis ready", slog.String("addr", cfg.RedisAddr))
	}

	engineCfg := cfg.EngineConfig()
	b := authgate.New().
		WithConfig(engineCfg).
		WithLogger(logger)
	if rdb != nil {
		b = b.WithRedis(rdb)
	}

	switch cfg.CredentialBackend {
	case config.BackendPostgres:
		b = b.WithCredentialStore(credentials.NewPostgresStore(db))
	default:
		logger.Warn("using in-memory credential store; accounts are lost on restart")
		b = b.WithCredentialStore(credentials.NewMemoryStore())
	}

	if cfg.LedgerBackend == config.BackendPostgres {
		b = b.WithLedger(refresh.NewPostgresStore(db, refresh.StoreConfig{
			TTL:            engineCfg.Refresh.TTL,
			SweepBatchSize: engineCfg.Refresh.SweepBatchSize,
		}))
	}

	if cfg.AuditEnabled {
		sinks := authgate.MultiSink{authgate.NewSlogSink(logger)}
		if brokers := cfg.KafkaBrokersList(); len(brokers) > 0 {
			ks, kerr := kafkasink.New(kafkasink.Config{Brokers: brokers, Topic: cfg.AuditKafkaTopic, Logger: logger})
			if kerr != nil {
				return nil, kerr
			}
			a.closers = append(a.closers, ks.Close)
			sinks = append(sinks, ks)
		}
		b = b.WithAuditSink(sinks)
	}

	a.engine, err = b.Build()
	if err != nil {
		return nil, err
	}
	// The engine flushes audit events before backends close.
	a.closers = append([]func() error{func() error { a.engine.Close(); return nil }}, a.closers...)

	metricsHandler, err := prom.Handler(a.engine)
	if err != nil {
		return nil, err
	}

	a.handler = httpapi.NewServer(a.engine, httpapi.Options{
		Logger: logger,
		Mount: func(mux *http.ServeMux) {
			mux.Handle("GET /metrics", metricsHandler)
			mux.HandleFunc("GET /api/moderator/whoami", whoami)
			mux.HandleFunc("GET /api/admin/whoami", whoami)
		},
	})
	return a, nil
}

// whoami is a demo route guarded by the role policy.
func whoami(w http.ResponseWriter, r *http.Request) {
	id, ok := authgate.IdentityFromContext(r.Context())
	if !ok {
		middleware.WriteMessage(w, http.StatusUnauthorized, "Authentication required")
		return
	}
	middleware.WriteJSON(w, http.StatusOK, map[string]any{
		"id":    id.SubjectID,
		"login": id.User.Login,
		"role":  id.Role,
	})
}

// Run serves until ctx is cancelled, then shuts down.
func (a *app) Run(ctx context.Context) error {
	defer a.close()

	srv := &http.Server{
		Addr:              a.cfg.HTTPAddr,
		Handler:           a.handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	sweepCtx, stopSweep := context.WithCancel(ctx)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		a.engine.NewSweeper().Run(sweepCtx)
	}()

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()
	a.logger.Info("server started", slog.String("addr", a.cfg.HTTPAddr))

	var serveErr error
	select {
	case <-ctx.Done():
		a.logger.Info("shutdown requested")
	case serveErr = <-errCh:
		a.logger.Error("server failed", slog.Any("error", serveErr))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("server shutdown failed", slog.Any("error", err))
		if serveErr == nil {
			serveErr = err
		}
	}

	stopSweep()
	wg.Wait()
	a.logger.Info("server stopped")
	return serveErr
}

func (a *app) close() {
	for _, c := range a.closers {
		if err := c(); err != nil {
			a.logger.Warn("close failed", slog.Any("error", err))
		}
	}
	a.closers = nil
}
