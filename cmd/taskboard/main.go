package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"taskboard/internal/auth"
	"taskboard/internal/server"
	"taskboard/internal/service"
	db "taskboard/repository/db"
	inmemory "taskboard/repository/inmemory"

	"github.com/sirupsen/logrus"
)

const shutdownTimeout = 30 * time.Second

// store is everything the server needs from a storage backend.
type store interface {
	auth.UserRepository
	auth.RevocationRepository
	service.TaskRepository
	server.HealthChecker
}

type httpServer interface {
	Start() error
	Shutdown(ctx context.Context) error
}

type storeOpener func(ctx context.Context, cfg *server.Config, log *logrus.Entry) (store, func(), error)

func main() {
	cfg, err := server.LoadConfig(os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(2)
	}

	log := setupLogger(cfg.Env, os.Stdout)
	log.WithField("env", cfg.Env).Info("starting taskboard")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	code := run(ctx, cfg, log, openStore)
	stop()
	os.Exit(code)
}

// run wires the service and blocks until it stops. The store is closed on
// every return path.
func run(ctx context.Context, cfg *server.Config, log *logrus.Entry, open storeOpener) int {
	st, closeStore, err := open(ctx, cfg, log)
	if err != nil {
		log.WithError(err).Error("storage initialisation failed")
		return 1
	}
	defer closeStore()

	authn, err := auth.New(st, st, auth.Config{
		Secret:     []byte(cfg.JWTSecret),
		TokenTTL:   cfg.TokenTTL,
		BcryptCost: cfg.BcryptCost,
	}, log)
	if err != nil {
		log.WithError(err).Error("authenticator initialisation failed")
		return 1
	}
	tasks := service.NewTaskService(st, st, log)

	api := server.NewTaskAPI(authn, tasks, st, cfg, log)
	if api == nil {
		log.Error("failed to initialise API")
		return 1
	}

	if err := serve(ctx, api, log); err != nil {
		log.WithError(err).Error("server stopped with error")
		return 1
	}
	log.Info("taskboard stopped")
	return 0
}

func setupLogger(env string, out io.Writer) *logrus.Entry {
	log := logrus.New()
	log.SetOutput(out)

	switch env {
	case server.EnvLocal:
		log.SetFormatter(&logrus.TextFormatter{
			ForceColors:   true,
			FullTimestamp: true,
		})
		log.SetLevel(logrus.DebugLevel)
	case server.EnvDev:
		log.SetFormatter(&logrus.TextFormatter{
			DisableColors: true,
			FullTimestamp: true,
		})
		log.SetLevel(logrus.InfoLevel)
	default:
		log.SetFormatter(&logrus.JSONFormatter{})
		log.SetLevel(logrus.WarnLevel)
	}

	return logrus.NewEntry(log)
}

// openStore runs migrations and connects to PostgreSQL, or hands back the
// in-memory store when configured for it.
func openStore(ctx context.Context, cfg *server.Config, log *logrus.Entry) (store, func(), error) {
	if cfg.Storage == server.StorageMemory {
		log.Warn("using in-memory storage, data is lost on restart")
		return inmemory.NewStorage(), func() {}, nil
	}

	dsn := cfg.DSN()
	if err := db.Migration(dsn, cfg.MigratePath); err != nil {
		return nil, nil, fmt.Errorf("apply migrations: %w", err)
	}
	log.Info("migrations applied")

	pg, err := db.NewStorage(ctx, dsn, log)
	if err != nil {
		return nil, nil, err
	}
	return pg, pg.Close, nil
}

// serve runs the server until ctx is cancelled, then drains it.
func serve(ctx context.Context, api httpServer, log *logrus.Entry) error {
	serverErr := make(chan error, 1)
	go func() {
		serverErr <- api.Start()
	}()

	select {
	case err := <-serverErr:
		return err
	case <-ctx.Done():
		log.Info("shutdown signal received, draining connections")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := api.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown: %w", err)
	}
	return <-serverErr
}
