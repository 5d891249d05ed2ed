package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/joho/godotenv"
)

func main() {
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := run(ctx, os.Args[1:], os.LookupEnv)
	stop()

	if err != nil {
		slog.Error("authd exited", "error", err)
		os.Exit(1)
	}
}

// run starts the service and blocks until ctx is done or the listener
// fails. Deferred cleanup always runs before it returns.
func run(ctx context.Context, args []string, lookup func(string) (string, bool)) error {
	flags := flag.NewFlagSet("authd", flag.ContinueOnError)
	configPath := flags.String("config", "", "path to a TOML config file")
	if err := flags.Parse(args); err != nil {
		return err
	}

	cfg, err := LoadConfig(*configPath, lookup)
	if err != nil {
		return err
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: parseLevel(cfg.LogLevel)}))

	if cfg.SentryDSN != "" {
		if err := sentry.Init(sentry.ClientOptions{
			Dsn:              cfg.SentryDSN,
			Environment:      cfg.Environment,
			AttachStacktrace: true,
		}); err != nil {
			logger.Warn("sentry init failed", "error", err)
		}
		defer sentry.Flush(2 * time.Second)
	}

	svc, err := newService(ctx, cfg, logger)
	if err != nil {
		logger.Error("service init failed", "error", err)
		return err
	}
	defer svc.close()

	if err := svc.seedAdmin(ctx, cfg.Admin); err != nil {
		logger.Error("admin seed failed", "error", err)
		return err
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("authd listening", "addr", cfg.Addr)
		errCh <- svc.srv.Serve(cfg.Addr)
	}()

	var serveErr error
	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case serveErr = <-errCh:
		if serveErr != nil {
			logger.Error("server stopped", "error", serveErr)
		}
	}

	if err := svc.app.ShutdownWithTimeout(10 * time.Second); err != nil {
		logger.Error("shutdown failed", "error", err)
	}
	return serveErr
}

func parseLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
