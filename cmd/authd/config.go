package main

import (
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	goerrors "github.com/goliatone/go-errors"

	auth "github.com/gridtokenx/go-auth"
)

const (
	envPrefix          = "AUTH_"
	defaultPingTimeout = 5 * time.Second
)

// Config is the service configuration. Values come from the defaults, then
// an optional TOML file, then AUTH_* environment variables.
type Config struct {
	Addr        string         `toml:"addr"`
	Environment string         `toml:"environment"`
	LogLevel    string         `toml:"log_level"`
	SentryDSN   string         `toml:"sentry_dsn"`
	Auth        auth.Options   `toml:"auth"`
	Database    DatabaseConfig `toml:"database"`
	Kafka       KafkaConfig    `toml:"kafka"`
	LoginRate   RateConfig     `toml:"login_rate"`
	Admin       AdminConfig    `toml:"admin"`
}

// DatabaseConfig also serves as the persistence client configuration.
type DatabaseConfig struct {
	Driver      string        `toml:"driver"`
	DSN         string        `toml:"dsn"`
	Debug       bool          `toml:"debug"`
	PingTimeout time.Duration `toml:"ping_timeout"`
}

func (d DatabaseConfig) GetDebug() bool {
	return d.Debug
}

func (d DatabaseConfig) GetDriver() string {
	return d.Driver
}

func (d DatabaseConfig) GetServer() string {
	return d.DSN
}

func (d DatabaseConfig) GetPingTimeout() time.Duration {
	if d.PingTimeout <= 0 {
		return defaultPingTimeout
	}
	return d.PingTimeout
}

func (d DatabaseConfig) GetOtelIdentifier() string {
	return ""
}

type KafkaConfig struct {
	Brokers []string `toml:"brokers"`
	Topic   string   `toml:"topic"`
}

type RateConfig struct {
	Interval time.Duration `toml:"interval"`
	Burst    int           `toml:"burst"`
}

// AdminConfig seeds an ADMIN account on startup when Username is set.
type AdminConfig struct {
	Username string `toml:"username"`
	Email    string `toml:"email"`
	Password string `toml:"password"`
}

func defaultConfig() *Config {
	return &Config{
		Addr:        ":8080",
		Environment: "development",
		LogLevel:    "info",
		Auth:        auth.DefaultOptions(""),
		Database: DatabaseConfig{
			Driver:      "sqlite",
			DSN:         "file:auth.db?cache=shared",
			PingTimeout: defaultPingTimeout,
		},
		Kafka: KafkaConfig{
			Topic: "auth.activity",
		},
		LoginRate: RateConfig{
			Interval: time.Second,
			Burst:    10,
		},
	}
}

// LoadConfig builds the configuration. path may be empty. lookup reads the
// environment, os.LookupEnv in production.
func LoadConfig(path string, lookup func(string) (string, bool)) (*Config, error) {
	cfg := defaultConfig()

	if path != "" {
		if _, err := toml.DecodeFile(path, cfg); err != nil {
			return nil, goerrors.Wrap(err, goerrors.CategoryBadInput, "failed to decode config file").
				WithMetadata(map[string]any{"path": path})
		}
	}

	if lookup != nil {
		if err := cfg.applyEnv(lookup); err != nil {
			return nil, err
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryValidation, "invalid configuration")
	}
	return cfg, nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	str := func(name string, dst *string) {
		if v, ok := lookup(envPrefix + name); ok {
			*dst = v
		}
	}
	var errs []string
	dur := func(name string, dst *time.Duration) {
		if v, ok := lookup(envPrefix + name); ok {
			d, err := time.ParseDuration(v)
			if err != nil {
				errs = append(errs, envPrefix+name)
				return
			}
			*dst = d
		}
	}
	num := func(name string, dst *int) {
		if v, ok := lookup(envPrefix + name); ok {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, envPrefix+name)
				return
			}
			*dst = n
		}
	}

	str("ADDR", &c.Addr)
	str("ENV", &c.Environment)
	str("LOG_LEVEL", &c.LogLevel)
	str("SENTRY_DSN", &c.SentryDSN)

	str("SIGNING_KEY", &c.Auth.SigningKey)
	str("ISSUER", &c.Auth.Issuer)
	dur("ACCESS_TOKEN_TTL", &c.Auth.AccessTokenTTL)
	dur("REFRESH_TOKEN_TTL", &c.Auth.RefreshTokenTTL)
	num("LEDGER_CAPACITY", &c.Auth.LedgerCapacity)
	dur("LEDGER_RETENTION", &c.Auth.LedgerRetention)
	num("MAX_FAILED_LOGINS", &c.Auth.MaxFailedLoginAttempts)

	str("DB_DRIVER", &c.Database.Driver)
	str("DB_DSN", &c.Database.DSN)
	dur("DB_PING_TIMEOUT", &c.Database.PingTimeout)

	if v, ok := lookup(envPrefix + "KAFKA_BROKERS"); ok {
		c.Kafka.Brokers = splitList(v)
	}
	str("KAFKA_TOPIC", &c.Kafka.Topic)

	dur("LOGIN_RATE_INTERVAL", &c.LoginRate.Interval)
	num("LOGIN_RATE_BURST", &c.LoginRate.Burst)

	str("ADMIN_USERNAME", &c.Admin.Username)
	str("ADMIN_EMAIL", &c.Admin.Email)
	str("ADMIN_PASSWORD", &c.Admin.Password)

	if len(errs) > 0 {
		return goerrors.New("malformed environment values", goerrors.CategoryBadInput).
			WithMetadata(map[string]any{"variables": errs})
	}
	return nil
}

func (c *Config) Validate() error {
	if err := validation.ValidateStruct(c,
		validation.Field(&c.Addr, validation.Required),
		validation.Field(&c.LogLevel, validation.In("debug", "info", "warn", "error")),
	); err != nil {
		return err
	}
	if err := validation.ValidateStruct(&c.Auth,
		validation.Field(&c.Auth.SigningKey, validation.Required, validation.Length(32, 0)),
		validation.Field(&c.Auth.LedgerCapacity, validation.Min(0)),
		validation.Field(&c.Auth.MaxFailedLoginAttempts, validation.Min(0)),
	); err != nil {
		return err
	}
	if err := validation.ValidateStruct(&c.Database,
		validation.Field(&c.Database.Driver, validation.Required, validation.In("sqlite", "postgres")),
		validation.Field(&c.Database.DSN, validation.Required),
	); err != nil {
		return err
	}
	if err := validation.ValidateStruct(&c.LoginRate,
		validation.Field(&c.LoginRate.Interval, validation.Required),
		validation.Field(&c.LoginRate.Burst, validation.Required, validation.Min(1)),
	); err != nil {
		return err
	}
	if len(c.Kafka.Brokers) > 0 {
		if err := validation.ValidateStruct(&c.Kafka,
			validation.Field(&c.Kafka.Topic, validation.Required),
		); err != nil {
			return err
		}
	}
	if c.Admin.Username != "" {
		return validation.ValidateStruct(&c.Admin,
			validation.Field(&c.Admin.Email, validation.Required, is.Email),
			validation.Field(&c.Admin.Password, validation.Required, validation.By(func(value interface{}) error {
				return auth.ValidatePasswordStrength(value.(string))
			})),
		)
	}
	return nil
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
