package auth_test

import (
	"context"
	"database/sql"
	"io/fs"
	"sync"
	"testing"
	"time"

	persistence "github.com/goliatone/go-persistence-bun"
	"github.com/google/uuid"
	"github.com/gridtokenx/go-auth"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
	"golang.org/x/crypto/bcrypt"
)

var testSigningKey = []byte("0123456789abcdef0123456789abcdef")

const testIssuer = "auth-test"

// MockAccountStore implements auth.AccountStore
type MockAccountStore struct {
	mock.Mock
}

func (m *MockAccountStore) FindByUsername(ctx context.Context, username string) (*auth.Account, error) {
	args := m.Called(ctx, username)
	account, _ := args.Get(0).(*auth.Account)
	return account, args.Error(1)
}

func (m *MockAccountStore) FindByEmail(ctx context.Context, email string) (*auth.Account, error) {
	args := m.Called(ctx, email)
	account, _ := args.Get(0).(*auth.Account)
	return account, args.Error(1)
}

func (m *MockAccountStore) FindByID(ctx context.Context, id uuid.UUID) (*auth.Account, error) {
	args := m.Called(ctx, id)
	account, _ := args.Get(0).(*auth.Account)
	return account, args.Error(1)
}

func (m *MockAccountStore) Create(ctx context.Context, account *auth.Account) (*auth.Account, error) {
	args := m.Called(ctx, account)
	created, _ := args.Get(0).(*auth.Account)
	return created, args.Error(1)
}

func (m *MockAccountStore) Save(ctx context.Context, account *auth.Account) error {
	args := m.Called(ctx, account)
	return args.Error(0)
}

// recordingSink collects activity events.
type recordingSink struct {
	mu     sync.Mutex
	events []auth.ActivityEvent
}

func (s *recordingSink) Record(_ context.Context, event auth.ActivityEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	return nil
}

func (s *recordingSink) types() []auth.ActivityEventType {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]auth.ActivityEventType, len(s.events))
	for i, e := range s.events {
		out[i] = e.EventType
	}
	return out
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock(start time.Time) *fakeClock {
	return &fakeClock{now: start}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

var epoch = time.Date(2024, time.March, 1, 12, 0, 0, 0, time.UTC)

func newTestAccount(t *testing.T, username, password string, roles ...auth.Role) *auth.Account {
	t.Helper()
	hash, err := auth.HashPasswordWithCost(password, bcrypt.MinCost)
	require.NoError(t, err)
	if len(roles) == 0 {
		roles = []auth.Role{auth.RoleUser}
	}
	return &auth.Account{
		ID:           uuid.New(),
		Username:     username,
		Email:        username + "@example.com",
		PasswordHash: hash,
		Roles:        roles,
		Active:       true,
		Enabled:      true,
	}
}

func newTestTokenService(clock *fakeClock, opts ...auth.TokenServiceOption) *auth.TokenService {
	base := []auth.TokenServiceOption{auth.WithTokenClock(clock.Now)}
	return auth.NewTokenService(testSigningKey, testIssuer, append(base, opts...)...)
}

func newTestLedger(clock *fakeClock, opts ...auth.LedgerOption) *auth.RevocationLedger {
	base := []auth.LedgerOption{auth.WithLedgerClock(clock.Now)}
	return auth.NewRevocationLedger(append(base, opts...)...)
}

// testStack wires the core components around one store and one clock.
type testStack struct {
	clock    *fakeClock
	store    auth.AccountStore
	tokens   *auth.TokenService
	ledger   *auth.RevocationLedger
	sessions *auth.SessionManager
	authn    *auth.RequestAuthenticator
	sink     *recordingSink
}

func newTestStack(t *testing.T, store auth.AccountStore, opts ...auth.SessionOption) *testStack {
	t.Helper()
	clock := newFakeClock(epoch)
	tokens := newTestTokenService(clock)
	ledger := newTestLedger(clock)
	sink := &recordingSink{}

	base := []auth.SessionOption{
		auth.WithSessionClock(clock.Now),
		auth.WithPasswordHashCost(bcrypt.MinCost),
		auth.WithActivitySink(sink),
	}

	return &testStack{
		clock:    clock,
		store:    store,
		tokens:   tokens,
		ledger:   ledger,
		sessions: auth.NewSessionManager(store, tokens, ledger, append(base, opts...)...),
		authn:    auth.NewRequestAuthenticator(tokens, ledger, store),
		sink:     sink,
	}
}

// testDBConfig configures the persistence client for in-memory sqlite.
type testDBConfig struct{}

func (testDBConfig) GetDebug() bool                { return false }
func (testDBConfig) GetDriver() string             { return "sqlite" }
func (testDBConfig) GetServer() string             { return ":memory:" }
func (testDBConfig) GetPingTimeout() time.Duration { return time.Second }
func (testDBConfig) GetOtelIdentifier() string     { return "" }

func setupPersistence(t *testing.T) *persistence.Client {
	t.Helper()

	sqldb, err := sql.Open(sqliteshim.ShimName, ":memory:")
	require.NoError(t, err)
	sqldb.SetMaxOpenConns(1)

	client, err := persistence.New(testDBConfig{}, sqldb, sqlitedialect.New())
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = client.Close()
	})

	migrations, err := fs.Sub(auth.GetMigrationsFS(), "data/sql/migrations")
	require.NoError(t, err)

	client.RegisterDialectMigrations(migrations,
		persistence.WithDialectSourceLabel("data/sql/migrations"),
		persistence.WithValidationTargets("postgres", "sqlite"),
	)
	require.NoError(t, client.ValidateDialects(context.Background()))
	require.NoError(t, client.Migrate(context.Background()))
	return client
}

func setupAccountsDB(t *testing.T) (*bun.DB, auth.AccountStore) {
	t.Helper()
	db := setupPersistence(t).DB()
	return db, auth.NewAccountsRepository(db)
}

func seedAccount(t *testing.T, store auth.AccountStore, account *auth.Account) *auth.Account {
	t.Helper()
	created, err := store.Create(context.Background(), account)
	require.NoError(t, err)
	return created
}
