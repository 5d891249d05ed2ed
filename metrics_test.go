package auth_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/gridtokenx/go-auth"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestMetricsRecordSessionActivity(t *testing.T) {
	_, store := setupAccountsDB(t)
	clock := newFakeClock(epoch)
	ledger := newTestLedger(clock)

	reg := prometheus.NewRegistry()
	metrics, err := auth.NewMetrics(reg, ledger)
	require.NoError(t, err)

	stack := newTestStack(t, store)
	// the stack builds its own ledger, share ours for the gauge
	sessions := auth.NewSessionManager(store, stack.tokens, ledger,
		auth.WithSessionClock(stack.clock.Now),
		auth.WithPasswordHashCost(bcrypt.MinCost),
		auth.WithMetrics(metrics),
	)
	ctx := context.Background()

	seedAccount(t, store, newTestAccount(t, "alice", alicePassword))

	for i := 0; i < 5; i++ {
		_, _ = sessions.Login(ctx, "alice", "wrong")
	}
	_, _ = sessions.Login(ctx, "alice", alicePassword)
	_, _ = sessions.Login(ctx, "ghost", alicePassword)

	seedAccount(t, store, newTestAccount(t, "bob", alicePassword))
	session, err := sessions.Login(ctx, "bob", alicePassword)
	require.NoError(t, err)
	sessions.Logout(ctx, session.AccessToken)

	expected := `
# HELP auth_login_attempts_total Login attempts by outcome.
# TYPE auth_login_attempts_total counter
auth_login_attempts_total{outcome="invalid_credentials"} 5
auth_login_attempts_total{outcome="locked"} 2
auth_login_attempts_total{outcome="success"} 1
# HELP auth_lockouts_total Accounts locked by repeated login failures.
# TYPE auth_lockouts_total counter
auth_lockouts_total 1
# HELP auth_revocations_total Tokens revoked at logout.
# TYPE auth_revocations_total counter
auth_revocations_total 1
# HELP auth_revocation_ledger_entries Entries held by the revocation ledger.
# TYPE auth_revocation_ledger_entries gauge
auth_revocation_ledger_entries 1
`
	assert.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected),
		"auth_login_attempts_total",
		"auth_lockouts_total",
		"auth_revocations_total",
		"auth_revocation_ledger_entries",
	))
}

func TestMetricsWithoutRegistry(t *testing.T) {
	metrics, err := auth.NewMetrics(nil, nil)
	require.NoError(t, err)
	require.NotNil(t, metrics)

	_, store := setupAccountsDB(t)
	stack := newTestStack(t, store, auth.WithMetrics(nil))
	seedAccount(t, store, newTestAccount(t, "alice", alicePassword))

	_, err = stack.sessions.Login(context.Background(), "alice", alicePassword)
	assert.NoError(t, err)
}

func TestMetricsDuplicateRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	_, err := auth.NewMetrics(reg, nil)
	require.NoError(t, err)

	_, err = auth.NewMetrics(reg, nil)
	assert.Error(t, err)
}

func TestLoginLimiter(t *testing.T) {
	clock := newFakeClock(epoch)
	limiter := auth.NewLoginLimiter(time.Second, 2, auth.WithLimiterClock(clock.Now))

	assert.True(t, limiter.Allow("10.0.0.1"))
	assert.True(t, limiter.Allow("10.0.0.1"))
	assert.False(t, limiter.Allow("10.0.0.1"))
	assert.True(t, limiter.Allow("10.0.0.2"), "clients have their own bucket")

	clock.Advance(time.Second)
	assert.True(t, limiter.Allow("10.0.0.1"))
	assert.False(t, limiter.Allow("10.0.0.1"))
}

func TestLoginLimiterBoundsTrackedClients(t *testing.T) {
	clock := newFakeClock(epoch)
	limiter := auth.NewLoginLimiter(time.Hour, 1,
		auth.WithLimiterClock(clock.Now),
		auth.WithLimiterMaxKeys(2),
	)

	assert.True(t, limiter.Allow("a"))
	assert.False(t, limiter.Allow("a"))

	clock.Advance(time.Millisecond)
	assert.True(t, limiter.Allow("b"))
	clock.Advance(time.Millisecond)
	assert.True(t, limiter.Allow("c"))

	// "a" was the least recently seen client and has been forgotten
	clock.Advance(time.Millisecond)
	assert.True(t, limiter.Allow("a"))
}

func TestOptionsDefaults(t *testing.T) {
	var empty auth.Options
	assert.Equal(t, auth.DefaultIssuer, empty.GetIssuer())
	assert.Equal(t, auth.DefaultAccessTokenTTL, empty.GetAccessTokenTTL())
	assert.Equal(t, auth.DefaultRefreshTokenTTL, empty.GetRefreshTokenTTL())
	assert.Equal(t, auth.DefaultLedgerCapacity, empty.GetLedgerCapacity())
	assert.Equal(t, auth.DefaultLedgerRetention, empty.GetLedgerRetention())
	assert.Equal(t, auth.MaxFailedLoginAttempts, empty.GetMaxFailedLoginAttempts())

	opts := auth.DefaultOptions(string(testSigningKey))
	assert.Equal(t, string(testSigningKey), opts.GetSigningKey())
	assert.Equal(t, 15*time.Minute, opts.GetAccessTokenTTL())
	assert.Equal(t, 7*24*time.Hour, opts.GetRefreshTokenTTL())
}

func TestBuildFromOptions(t *testing.T) {
	opts := auth.DefaultOptions(string(testSigningKey))
	opts.AccessTokenTTL = 5 * time.Minute
	opts.LedgerCapacity = 32

	clock := newFakeClock(epoch)
	tokens := auth.NewTokenServiceFromConfig(opts, auth.WithTokenClock(clock.Now))
	assert.Equal(t, 5*time.Minute, tokens.AccessTokenTTL())
	assert.Equal(t, auth.DefaultRefreshTokenTTL, tokens.RefreshTokenTTL())

	ledger := auth.NewRevocationLedgerFromConfig(opts)
	assert.GreaterOrEqual(t, ledger.Capacity(), 32)

	account := newTestAccount(t, "alice", alicePassword)
	token, expiresAt, err := tokens.IssueAccess(account)
	require.NoError(t, err)
	assert.Equal(t, epoch.Add(5*time.Minute), expiresAt)

	claims, err := tokens.Decode(token)
	require.NoError(t, err)
	assert.Equal(t, auth.DefaultIssuer, claims.Issuer)
}
