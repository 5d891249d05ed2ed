package auth

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"
)

// Logger is the logging surface used across the package. Arguments after
// msg are key/value pairs.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// AccountStore is the persistence port for accounts. Lookups that find
// nothing return ErrAccountNotFound.
type AccountStore interface {
	FindByUsername(ctx context.Context, username string) (*Account, error)
	FindByEmail(ctx context.Context, email string) (*Account, error)
	FindByID(ctx context.Context, id uuid.UUID) (*Account, error)
	Create(ctx context.Context, account *Account) (*Account, error)
	Save(ctx context.Context, account *Account) error
}

// Identity is the authenticated principal attached to a request.
type Identity struct {
	AccountID uuid.UUID `json:"id"`
	Username  string    `json:"username"`
	Roles     []Role    `json:"roles"`
}

// HasRole reports whether the identity holds role.
func (i *Identity) HasRole(role Role) bool {
	if i == nil {
		return false
	}
	return hasRole(i.Roles, role)
}

// HasPrivilege reports whether any of the identity roles is at least role.
func (i *Identity) HasPrivilege(role Role) bool {
	if i == nil {
		return false
	}
	for _, r := range i.Roles {
		if r.HasPrivilege(role) {
			return true
		}
	}
	return false
}

// Config holds auth options
type Config interface {
	GetSigningKey() string
	GetIssuer() string
	GetAccessTokenTTL() time.Duration
	GetRefreshTokenTTL() time.Duration
	GetLedgerCapacity() int
	GetLedgerRetention() time.Duration
	GetMaxFailedLoginAttempts() int
}

type slogLogger struct {
	l *slog.Logger
}

// NewSlogLogger adapts a slog.Logger. A nil logger uses a text handler on stderr.
func NewSlogLogger(l *slog.Logger) Logger {
	if l == nil {
		l = slog.New(slog.NewTextHandler(os.Stderr, nil))
	}
	return slogLogger{l: l.With("component", "auth")}
}

func (s slogLogger) Debug(msg string, args ...any) { s.l.Debug(msg, args...) }
func (s slogLogger) Info(msg string, args ...any)  { s.l.Info(msg, args...) }
func (s slogLogger) Warn(msg string, args ...any)  { s.l.Warn(msg, args...) }
func (s slogLogger) Error(msg string, args ...any) { s.l.Error(msg, args...) }

var defLogger = NewSlogLogger(nil)

func normalizeLogger(l Logger) Logger {
	if l == nil {
		return defLogger
	}
	return l
}

// tokenPrefix keeps token values out of logs.
func tokenPrefix(token string) string {
	const n = 10
	if len(token) <= n {
		return token
	}
	return token[:n] + "..."
}
