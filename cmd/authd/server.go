package main

import (
	"context"
	"database/sql"
	"io/fs"
	"log/slog"

	"github.com/getsentry/sentry-go"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/recover"
	goerrors "github.com/goliatone/go-errors"
	persistence "github.com/goliatone/go-persistence-bun"
	"github.com/goliatone/go-router"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
	"github.com/uptrace/bun/schema"

	_ "github.com/jackc/pgx/v5/stdlib"

	auth "github.com/gridtokenx/go-auth"
	"github.com/gridtokenx/go-auth/activitysink"
	"github.com/gridtokenx/go-auth/middleware/bearer"
)

const migrationsDir = "data/sql/migrations"

func init() {
	persistence.RegisterModel((*auth.Account)(nil))
}

// service holds the process scoped objects.
type service struct {
	srv      router.Server[*fiber.App]
	app      *fiber.App
	db       *persistence.Client
	sink     *activitysink.KafkaSink
	sessions *auth.SessionManager
	store    auth.AccountStore
	logger   auth.Logger
}

func openSQL(cfg DatabaseConfig) (*sql.DB, schema.Dialect, error) {
	switch cfg.Driver {
	case "postgres":
		sqldb, err := sql.Open("pgx", cfg.DSN)
		if err != nil {
			return nil, nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to open postgres")
		}
		return sqldb, pgdialect.New(), nil
	default:
		sqldb, err := sql.Open(sqliteshim.ShimName, cfg.DSN)
		if err != nil {
			return nil, nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to open sqlite")
		}
		sqldb.SetMaxOpenConns(1)
		return sqldb, sqlitedialect.New(), nil
	}
}

// openPersistence connects to the database and applies the embedded
// migrations for its dialect.
func openPersistence(ctx context.Context, cfg DatabaseConfig, logger *slog.Logger) (*persistence.Client, error) {
	sqldb, dialect, err := openSQL(cfg)
	if err != nil {
		return nil, err
	}

	var opts []persistence.ClientOption
	if cfg.GetDebug() {
		opts = append(opts, persistence.WithBundebug())
	}

	client, err := persistence.New(cfg, sqldb, dialect, opts...)
	if err != nil {
		_ = sqldb.Close()
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "database unreachable")
	}
	client.SetLogger(persistenceLogger{logger: logger.With("component", "persistence")})

	migrationsFS, err := fs.Sub(auth.GetMigrationsFS(), migrationsDir)
	if err != nil {
		_ = client.Close()
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to load migrations")
	}

	client.RegisterDialectMigrations(
		migrationsFS,
		persistence.WithDialectSourceLabel(migrationsDir),
		persistence.WithValidationTargets("postgres", "sqlite"),
	)

	if err := client.ValidateDialects(ctx); err != nil {
		_ = client.Close()
		return nil, err
	}

	if err := client.Migrate(ctx); err != nil {
		_ = client.Close()
		return nil, err
	}

	return client, nil
}

func newService(ctx context.Context, cfg *Config, slogger *slog.Logger) (*service, error) {
	logger := auth.NewSlogLogger(slogger)

	client, err := openPersistence(ctx, cfg.Database, slogger)
	if err != nil {
		return nil, err
	}

	store := auth.NewAccountsRepository(client.DB())
	tokens := auth.NewTokenServiceFromConfig(cfg.Auth, auth.WithTokenLogger(logger))
	ledger := auth.NewRevocationLedgerFromConfig(cfg.Auth)

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics, err := auth.NewMetrics(registry, ledger)
	if err != nil {
		_ = client.Close()
		return nil, err
	}

	sessionOpts := []auth.SessionOption{
		auth.WithSessionLogger(logger),
		auth.WithMetrics(metrics),
		auth.WithLockoutPolicy(auth.LockoutPolicy{MaxAttempts: cfg.Auth.GetMaxFailedLoginAttempts()}),
	}

	var sink *activitysink.KafkaSink
	if len(cfg.Kafka.Brokers) > 0 {
		sink = activitysink.NewKafkaSink(activitysink.NewKafkaWriter(cfg.Kafka.Brokers, cfg.Kafka.Topic))
		sessionOpts = append(sessionOpts, auth.WithActivitySink(sink))
	}

	sessions := auth.NewSessionManager(store, tokens, ledger, sessionOpts...)
	authenticator := auth.NewRequestAuthenticator(tokens, ledger, store, auth.WithAuthenticatorLogger(logger))

	controller := auth.NewAuthController(sessions, ledger,
		auth.WithControllerLogger(logger),
		auth.WithLoginLimiter(auth.NewLoginLimiter(cfg.LoginRate.Interval, cfg.LoginRate.Burst)),
		auth.WithErrorReporter(reportError),
		auth.WithReadinessCheck(client.Ping),
	)

	srv := router.NewFiberAdapter(func(a *fiber.App) *fiber.App {
		app := router.DefaultFiberOptions(fiber.New(fiber.Config{
			AppName:               "authd",
			DisableStartupMessage: true,
		}))
		app.Use(recover.New())
		return app
	})

	r := srv.Router()
	r.Use(bearer.New(bearer.Config{Authenticator: authenticator}))

	auth.RegisterRoutes(r, controller, auth.Guards{
		Identity: bearer.RequireIdentity(),
		Admin:    bearer.RequireRole(auth.RoleAdmin),
	})

	app := srv.WrappedRouter()
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(registry, promhttp.HandlerOpts{})))

	return &service{
		srv:      srv,
		app:      app,
		db:       client,
		sink:     sink,
		sessions: sessions,
		store:    store,
		logger:   logger,
	}, nil
}

// seedAdmin registers the configured admin account and grants it ADMIN.
// An existing account is left untouched.
func (s *service) seedAdmin(ctx context.Context, admin AdminConfig) error {
	if admin.Username == "" {
		return nil
	}

	if _, err := s.store.FindByUsername(ctx, admin.Username); err == nil {
		return nil
	} else if !auth.IsAccountNotFound(err) {
		return err
	}

	account, err := s.sessions.Register(ctx, auth.Registration{
		Username: admin.Username,
		Email:    admin.Email,
		Password: admin.Password,
	})
	if err != nil {
		return err
	}

	account.Roles = []auth.Role{auth.RoleAdmin, auth.RoleUser}
	if err := s.store.Save(ctx, account); err != nil {
		return err
	}
	s.logger.Info("admin account seeded", "account_id", account.ID)
	return nil
}

func (s *service) close() {
	if s.sink != nil {
		if err := s.sink.Close(); err != nil {
			s.logger.Warn("activity sink close error", "error", err)
		}
	}
	if err := s.db.Close(); err != nil {
		s.logger.Warn("database close error", "error", err)
	}
}

func reportError(ctx context.Context, err error) {
	hub := sentry.GetHubFromContext(ctx)
	if hub == nil {
		hub = sentry.CurrentHub()
	}
	hub.CaptureException(err)
}

// persistenceLogger routes persistence client logs to slog. The client
// passes key value pairs after the message.
type persistenceLogger struct {
	logger *slog.Logger
}

func (p persistenceLogger) Debug(format string, args ...any) { p.logger.Debug(format, args...) }
func (p persistenceLogger) Info(format string, args ...any)  { p.logger.Info(format, args...) }
func (p persistenceLogger) Warn(format string, args ...any)  { p.logger.Warn(format, args...) }
func (p persistenceLogger) Error(format string, args ...any) { p.logger.Error(format, args...) }
func (p persistenceLogger) Fatal(format string, args ...any) { p.logger.Error(format, args...) }
