package auth

import (
	"context"
	"hash/fnv"
	"strings"
	"sync"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
)

// TokenTypeBearer is the token type reported with every session.
const TokenTypeBearer = "Bearer"

// Session is the result of a login or a refresh.
type Session struct {
	AccessToken  string          `json:"accessToken"`
	RefreshToken string          `json:"refreshToken"`
	TokenType    string          `json:"tokenType"`
	ExpiresAt    time.Time       `json:"expiresAt"`
	ExpiresIn    int64           `json:"expiresIn"`
	Account      AccountSnapshot `json:"user"`
}

// Registration holds the data needed to open an account.
type Registration struct {
	Username  string
	Email     string
	Password  string
	FirstName string
	LastName  string
}

// SessionManager runs login, logout, refresh and the account lifecycle
// operations around them.
type SessionManager struct {
	store    AccountStore
	tokens   *TokenService
	ledger   *RevocationLedger
	policy   LockoutPolicy
	hashCost int
	locks    *keyedMutex
	now      func() time.Time
	logger   Logger
	sink     ActivitySink
	metrics  *Metrics
}

type SessionOption func(*SessionManager)

func WithSessionLogger(logger Logger) SessionOption {
	return func(m *SessionManager) {
		m.logger = normalizeLogger(logger)
	}
}

func WithActivitySink(sink ActivitySink) SessionOption {
	return func(m *SessionManager) {
		m.sink = normalizeActivitySink(sink)
	}
}

func WithMetrics(metrics *Metrics) SessionOption {
	return func(m *SessionManager) {
		m.metrics = metrics
	}
}

func WithLockoutPolicy(policy LockoutPolicy) SessionOption {
	return func(m *SessionManager) {
		m.policy = policy
	}
}

func WithSessionClock(now func() time.Time) SessionOption {
	return func(m *SessionManager) {
		if now != nil {
			m.now = now
		}
	}
}

// WithPasswordHashCost sets the bcrypt cost for new hashes and for the
// rehash check done on login.
func WithPasswordHashCost(cost int) SessionOption {
	return func(m *SessionManager) {
		if cost > 0 {
			m.hashCost = cost
		}
	}
}

// NewSessionManager creates a SessionManager
func NewSessionManager(store AccountStore, tokens *TokenService, ledger *RevocationLedger, opts ...SessionOption) *SessionManager {
	m := &SessionManager{
		store:    store,
		tokens:   tokens,
		ledger:   ledger,
		policy:   DefaultLockoutPolicy(),
		hashCost: PasswordHashCost,
		locks:    newKeyedMutex(64),
		now:      time.Now,
		logger:   defLogger,
		sink:     noopActivitySink{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(m)
		}
	}
	return m
}

// Login checks the credentials of username and opens a session. Failed
// attempts are counted and persisted even though the call fails.
func (m *SessionManager) Login(ctx context.Context, username, password string) (*Session, error) {
	unlock := m.locks.lock(username)
	defer unlock()

	account, err := m.store.FindByUsername(ctx, username)
	if err != nil {
		if IsAccountNotFound(err) {
			m.logger.Debug("login unknown account", "username", username)
			m.metrics.loginAttempt(LoginOutcomeInvalid)
			m.emit(ctx, ActivityEventLoginFailure, ActorRef{Type: ActorTypeUnknown}, nil, map[string]any{
				"username": username,
				"reason":   "account_not_found",
			})
			return nil, ErrAccountNotFound
		}
		m.metrics.loginAttempt(LoginOutcomeError)
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to load account")
	}

	if !account.CanLogin() {
		m.logger.Info("login blocked, account inactive", "account_id", account.ID, "locked", account.Locked)
		if account.Locked {
			m.metrics.loginAttempt(LoginOutcomeLocked)
		} else {
			m.metrics.loginAttempt(LoginOutcomeInactive)
		}
		m.emit(ctx, ActivityEventLoginFailure, accountActor(account), account, map[string]any{
			"reason": "account_inactive",
			"locked": account.Locked,
		})
		return nil, ErrAccountInactive
	}

	if !PasswordMatches(password, account.PasswordHash) {
		return nil, m.failLogin(ctx, account)
	}

	now := m.now()
	account.ApplyLockout(m.policy.RegisterSuccess(account.LockoutState()))
	account.LastLoginAt = &now
	account.UpdatedAt = now

	if NeedsRehashWithCost(account.PasswordHash, m.hashCost) {
		if hash, err := HashPasswordWithCost(password, m.hashCost); err == nil {
			account.PasswordHash = hash
		} else {
			m.logger.Warn("password rehash failed", "account_id", account.ID, "error", err)
		}
	}

	if err := m.store.Save(ctx, account); err != nil {
		m.metrics.loginAttempt(LoginOutcomeError)
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to persist login")
	}

	session, err := m.openSession(account)
	if err != nil {
		m.metrics.loginAttempt(LoginOutcomeError)
		return nil, err
	}

	m.metrics.loginAttempt(LoginOutcomeSuccess)
	m.emit(ctx, ActivityEventLoginSuccess, accountActor(account), account, nil)
	m.logger.Info("login succeeded", "account_id", account.ID)

	return session, nil
}

func (m *SessionManager) failLogin(ctx context.Context, account *Account) error {
	next, justLocked := m.policy.RegisterFailure(account.LockoutState())
	account.ApplyLockout(next)
	account.UpdatedAt = m.now()

	if err := m.store.Save(ctx, account); err != nil {
		m.metrics.loginAttempt(LoginOutcomeError)
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to persist failed login")
	}

	m.emit(ctx, ActivityEventLoginFailure, accountActor(account), account, map[string]any{
		"reason":          "invalid_credentials",
		"failed_attempts": next.FailedAttempts,
	})

	if justLocked {
		m.logger.Warn("account locked after failed logins", "account_id", account.ID, "failed_attempts", next.FailedAttempts)
		m.metrics.loginAttempt(LoginOutcomeLocked)
		m.metrics.lockout()
		m.emit(ctx, ActivityEventAccountLocked, ActorRef{Type: ActorTypeSystem}, account, map[string]any{
			"failed_attempts": next.FailedAttempts,
		})
		return ErrTooManyFailures
	}

	m.logger.Debug("login invalid credentials", "account_id", account.ID, "failed_attempts", next.FailedAttempts)
	m.metrics.loginAttempt(LoginOutcomeInvalid)
	return ErrInvalidCredentials
}

func (m *SessionManager) openSession(account *Account) (*Session, error) {
	access, expiresAt, err := m.tokens.IssueAccess(account)
	if err != nil {
		return nil, err
	}
	refresh, _, err := m.tokens.IssueRefresh(account)
	if err != nil {
		return nil, err
	}
	return m.newSession(account, access, refresh, expiresAt), nil
}

func (m *SessionManager) newSession(account *Account, access, refresh string, expiresAt time.Time) *Session {
	return &Session{
		AccessToken:  access,
		RefreshToken: refresh,
		TokenType:    TokenTypeBearer,
		ExpiresAt:    expiresAt,
		ExpiresIn:    int64(m.tokens.AccessTokenTTL() / time.Second),
		Account:      account.Snapshot(),
	}
}

// Logout revokes token until its natural expiry. Tokens that are already
// invalid are ignored.
func (m *SessionManager) Logout(ctx context.Context, token string) {
	claims, err := m.tokens.DecodeUnexpired(token)
	if err != nil {
		m.logger.Debug("logout ignored stale token", "token", tokenPrefix(token), "error", err)
		return
	}

	m.ledger.Revoke(token, claims.Expiry())
	m.metrics.revocation()

	m.emit(ctx, ActivityEventLogout, ActorRef{ID: claims.UID, Type: ActorTypeAccount}, nil, map[string]any{
		"username": claims.Subject,
		"kind":     string(claims.Kind),
	})
	m.logger.Info("token revoked", "username", claims.Subject, "token", tokenPrefix(token))
}

// Refresh issues a new access token for a refresh token. The refresh token
// itself is returned unchanged.
func (m *SessionManager) Refresh(ctx context.Context, refreshToken string) (*Session, error) {
	claims, err := m.tokens.DecodeKind(refreshToken, TokenKindRefresh)
	if err != nil {
		return nil, err
	}

	if m.ledger.IsRevoked(refreshToken) {
		return nil, ErrInvalidToken
	}

	account, err := m.store.FindByUsername(ctx, claims.Subject)
	if err != nil {
		if IsAccountNotFound(err) {
			return nil, ErrAccountNotFound
		}
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to load account")
	}

	if !account.CanLogin() {
		return nil, ErrAccountInactive
	}

	access, expiresAt, err := m.tokens.IssueAccess(account)
	if err != nil {
		return nil, err
	}

	m.emit(ctx, ActivityEventTokenRefresh, accountActor(account), account, nil)

	return m.newSession(account, access, refreshToken, expiresAt), nil
}

// ResetLockout clears the failure counter and the lock of an account.
func (m *SessionManager) ResetLockout(ctx context.Context, accountID uuid.UUID) (*Account, error) {
	return m.updateAccount(ctx, accountID, ActivityEventLockoutReset, func(a *Account) {
		a.ApplyLockout(m.policy.Reset(a.LockoutState()))
	})
}

// LockAccount locks an account until ResetLockout is called.
func (m *SessionManager) LockAccount(ctx context.Context, accountID uuid.UUID) (*Account, error) {
	return m.updateAccount(ctx, accountID, ActivityEventAccountLock, func(a *Account) {
		a.Locked = true
	})
}

func (m *SessionManager) updateAccount(ctx context.Context, id uuid.UUID, event ActivityEventType, mutate func(*Account)) (*Account, error) {
	account, err := m.findByID(ctx, id)
	if err != nil {
		return nil, err
	}

	unlock := m.locks.lock(account.Username)
	defer unlock()

	// reload under the lock, a login may have written in between
	if account, err = m.findByID(ctx, id); err != nil {
		return nil, err
	}

	mutate(account)
	account.UpdatedAt = m.now()

	if err := m.store.Save(ctx, account); err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to update account")
	}

	m.emit(ctx, event, actorFromContext(ctx), account, nil)
	m.logger.Info("account updated", "event", string(event), "account_id", account.ID)
	return account, nil
}

func (m *SessionManager) findByID(ctx context.Context, id uuid.UUID) (*Account, error) {
	account, err := m.store.FindByID(ctx, id)
	if err != nil {
		if IsAccountNotFound(err) {
			return nil, ErrAccountNotFound
		}
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to load account")
	}
	return account, nil
}

// Register opens a new account with the USER role.
func (m *SessionManager) Register(ctx context.Context, reg Registration) (*Account, error) {
	reg.Username = strings.TrimSpace(reg.Username)
	reg.Email = strings.TrimSpace(reg.Email)

	if err := ValidatePasswordStrength(reg.Password); err != nil {
		return nil, err
	}

	unlock := m.locks.lock(reg.Username)
	defer unlock()

	if err := m.ensureFree(ctx, m.store.FindByUsername, reg.Username, ErrUsernameTaken); err != nil {
		return nil, err
	}
	if err := m.ensureFree(ctx, m.store.FindByEmail, reg.Email, ErrEmailTaken); err != nil {
		return nil, err
	}

	hash, err := HashPasswordWithCost(reg.Password, m.hashCost)
	if err != nil {
		return nil, err
	}

	now := m.now()
	account, err := m.store.Create(ctx, &Account{
		ID:           uuid.New(),
		Username:     reg.Username,
		Email:        reg.Email,
		FirstName:    reg.FirstName,
		LastName:     reg.LastName,
		PasswordHash: hash,
		Roles:        []Role{RoleUser},
		Active:       true,
		Enabled:      true,
		CreatedAt:    now,
		UpdatedAt:    now,
	})
	if err != nil {
		return nil, err
	}

	m.emit(ctx, ActivityEventAccountRegistered, accountActor(account), account, nil)
	m.logger.Info("account registered", "account_id", account.ID)
	return account, nil
}

func (m *SessionManager) ensureFree(ctx context.Context, find func(context.Context, string) (*Account, error), value string, taken error) error {
	_, err := find(ctx, value)
	switch {
	case err == nil:
		return taken
	case IsAccountNotFound(err):
		return nil
	default:
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to check account uniqueness")
	}
}

func (m *SessionManager) emit(ctx context.Context, eventType ActivityEventType, actor ActorRef, account *Account, metadata map[string]any) {
	event := ActivityEvent{
		EventType:  eventType,
		Actor:      actor,
		Metadata:   metadata,
		OccurredAt: m.now(),
	}
	if account != nil {
		event.AccountID = account.ID.String()
		event.Username = account.Username
	}
	if event.Metadata == nil {
		event.Metadata = map[string]any{}
	}

	if err := m.sink.Record(ctx, event); err != nil {
		m.logger.Warn("activity sink record error", "event", string(eventType), "error", err)
	}
}

func actorFromContext(ctx context.Context) ActorRef {
	if identity, ok := IdentityFromContext(ctx); ok {
		return ActorRef{ID: identity.AccountID.String(), Type: ActorTypeAccount}
	}
	return ActorRef{Type: ActorTypeSystem}
}

// keyedMutex serializes work per key over a fixed set of stripes.
type keyedMutex struct {
	stripes []sync.Mutex
}

func newKeyedMutex(n int) *keyedMutex {
	return &keyedMutex{stripes: make([]sync.Mutex, n)}
}

func (k *keyedMutex) lock(key string) func() {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	mu := &k.stripes[h.Sum32()%uint32(len(k.stripes))]
	mu.Lock()
	return mu.Unlock
}
