package auth

import (
	"context"
	"time"
)

// ActivityEventType enumerates supported activity categories.
type ActivityEventType string

const (
	ActivityEventLoginSuccess      ActivityEventType = "auth.login.success"
	ActivityEventLoginFailure      ActivityEventType = "auth.login.failure"
	ActivityEventAccountLocked     ActivityEventType = "auth.account.locked"
	ActivityEventLogout            ActivityEventType = "auth.logout"
	ActivityEventTokenRefresh      ActivityEventType = "auth.token.refresh"
	ActivityEventLockoutReset      ActivityEventType = "auth.lockout.reset"
	ActivityEventAccountLock       ActivityEventType = "auth.account.lock"
	ActivityEventAccountRegistered ActivityEventType = "auth.account.registered"
)

// ActorRef identifies who triggered an event.
type ActorRef struct {
	ID   string `json:"id,omitempty"`
	Type string `json:"type"`
}

const (
	ActorTypeAccount = "account"
	ActorTypeSystem  = "system"
	ActorTypeUnknown = "unknown"
)

// ActivityEvent captures audit-friendly information about an action.
type ActivityEvent struct {
	EventType  ActivityEventType `json:"event_type"`
	Actor      ActorRef          `json:"actor"`
	AccountID  string            `json:"account_id,omitempty"`
	Username   string            `json:"username,omitempty"`
	Metadata   map[string]any    `json:"metadata,omitempty"`
	OccurredAt time.Time         `json:"occurred_at"`
}

// ActivitySink consumes activity events for auditing/telemetry purposes.
type ActivitySink interface {
	Record(ctx context.Context, event ActivityEvent) error
}

// ActivitySinkFunc adapts a function to the ActivitySink interface.
type ActivitySinkFunc func(ctx context.Context, event ActivityEvent) error

// Record implements ActivitySink.
func (f ActivitySinkFunc) Record(ctx context.Context, event ActivityEvent) error {
	if f == nil {
		return nil
	}
	return f(ctx, event)
}

type noopActivitySink struct{}

func (noopActivitySink) Record(context.Context, ActivityEvent) error {
	return nil
}

func normalizeActivitySink(s ActivitySink) ActivitySink {
	if s == nil {
		return noopActivitySink{}
	}
	return s
}

func accountActor(a *Account) ActorRef {
	if a == nil {
		return ActorRef{Type: ActorTypeUnknown}
	}
	return ActorRef{ID: a.ID.String(), Type: ActorTypeAccount}
}
