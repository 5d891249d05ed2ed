package auth_test

import (
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/gridtokenx/go-auth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenService_IssueDecodeRoundTrip(t *testing.T) {
	clock := newFakeClock(epoch.Add(750 * time.Millisecond))
	ts := newTestTokenService(clock)
	id := uuid.New()

	token, err := ts.Issue(id, "alice", []auth.Role{auth.RoleUser, auth.RoleAdmin}, auth.TokenKindAccess, 15*time.Minute)
	require.NoError(t, err)

	claims, err := ts.Decode(token)
	require.NoError(t, err)

	assert.Equal(t, "alice", claims.Username())
	assert.Equal(t, id.String(), claims.UID)
	assert.Equal(t, []string{"USER", "ADMIN"}, claims.Roles)
	assert.Equal(t, auth.TokenKindAccess, claims.Kind)
	assert.Equal(t, testIssuer, claims.Issuer)
	assert.NotEmpty(t, claims.ID)
	assert.True(t, claims.Issued().Equal(epoch), "iat is truncated to seconds")
	assert.True(t, claims.Expiry().Equal(epoch.Add(15*time.Minute)))

	accountID, err := claims.AccountID()
	require.NoError(t, err)
	assert.Equal(t, id, accountID)
}

func TestTokenService_RefreshTokensCarryNoRoles(t *testing.T) {
	ts := newTestTokenService(newFakeClock(epoch))

	token, err := ts.Issue(uuid.New(), "alice", []auth.Role{auth.RoleAdmin}, auth.TokenKindRefresh, time.Hour)
	require.NoError(t, err)

	claims, err := ts.Decode(token)
	require.NoError(t, err)
	assert.Equal(t, auth.TokenKindRefresh, claims.Kind)
	assert.Empty(t, claims.Roles)
}

func TestTokenService_IssueIsUniqueWithinASecond(t *testing.T) {
	ts := newTestTokenService(newFakeClock(epoch))
	id := uuid.New()

	first, err := ts.Issue(id, "alice", nil, auth.TokenKindAccess, time.Minute)
	require.NoError(t, err)
	second, err := ts.Issue(id, "alice", nil, auth.TokenKindAccess, time.Minute)
	require.NoError(t, err)

	assert.NotEqual(t, first, second)
}

func TestTokenService_IssueRejectsBadInput(t *testing.T) {
	ts := newTestTokenService(newFakeClock(epoch))

	_, err := ts.Issue(uuid.New(), "alice", nil, auth.TokenKind("session"), time.Minute)
	assert.Error(t, err)

	_, err = ts.Issue(uuid.New(), "alice", nil, auth.TokenKindAccess, 0)
	assert.Error(t, err)

	_, err = ts.Issue(uuid.New(), "", nil, auth.TokenKindAccess, time.Minute)
	assert.Error(t, err)
}

func TestTokenService_ExpiryBoundary(t *testing.T) {
	clock := newFakeClock(epoch)
	ts := newTestTokenService(clock)

	token, err := ts.Issue(uuid.New(), "alice", nil, auth.TokenKindAccess, time.Minute)
	require.NoError(t, err)

	tests := []struct {
		name  string
		at    time.Time
		valid bool
	}{
		{name: "at issue", at: epoch, valid: true},
		{name: "one second before exp", at: epoch.Add(59 * time.Second), valid: true},
		{name: "one nanosecond before exp", at: epoch.Add(time.Minute - time.Nanosecond), valid: true},
		{name: "exactly at exp", at: epoch.Add(time.Minute), valid: false},
		{name: "after exp", at: epoch.Add(2 * time.Minute), valid: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clock.Set(tt.at)
			assert.Equal(t, tt.valid, ts.IsValid(token))

			// expiry never affects decoding
			_, err := ts.Decode(token)
			assert.NoError(t, err)
		})
	}
}

func TestTokenService_DecodeRejectsForeignTokens(t *testing.T) {
	clock := newFakeClock(epoch)
	ts := newTestTokenService(clock)
	id := uuid.New()

	valid, err := ts.Issue(id, "alice", nil, auth.TokenKindAccess, time.Minute)
	require.NoError(t, err)
	other, err := ts.Issue(id, "bob", nil, auth.TokenKindAccess, time.Minute)
	require.NoError(t, err)

	validParts := strings.Split(valid, ".")
	otherParts := strings.Split(other, ".")
	swappedSignature := validParts[0] + "." + otherParts[1] + "." + validParts[2]

	otherKey, err := auth.NewTokenService([]byte("another-key-another-key-another!!"), testIssuer).
		Issue(id, "alice", nil, auth.TokenKindAccess, time.Minute)
	require.NoError(t, err)

	otherIssuer, err := auth.NewTokenService(testSigningKey, "someone-else").
		Issue(id, "alice", nil, auth.TokenKindAccess, time.Minute)
	require.NoError(t, err)

	claims := &auth.Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "alice",
			Issuer:    testIssuer,
			IssuedAt:  jwt.NewNumericDate(epoch),
			ExpiresAt: jwt.NewNumericDate(epoch.Add(time.Minute)),
		},
		UID:  id.String(),
		Kind: auth.TokenKindAccess,
	}
	hs512, err := jwt.NewWithClaims(jwt.SigningMethodHS512, claims).SignedString(testSigningKey)
	require.NoError(t, err)
	none, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	missingKind, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":    "alice",
		"iss":    testIssuer,
		"userId": id.String(),
		"iat":    epoch.Unix(),
		"exp":    epoch.Add(time.Minute).Unix(),
	}).SignedString(testSigningKey)
	require.NoError(t, err)

	tests := []struct {
		name  string
		token string
	}{
		{name: "empty", token: ""},
		{name: "garbage", token: "not-a-token"},
		{name: "payload swapped", token: swappedSignature},
		{name: "different key", token: otherKey},
		{name: "different issuer", token: otherIssuer},
		{name: "HS512", token: hs512},
		{name: "alg none", token: none},
		{name: "missing type claim", token: missingKind},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ts.Decode(tt.token)
			assert.Equal(t, auth.ErrTokenMalformed, err)
			assert.False(t, ts.IsValid(tt.token))
		})
	}
}

func TestTokenService_IsValidForSubject(t *testing.T) {
	clock := newFakeClock(epoch)
	ts := newTestTokenService(clock)

	token, err := ts.Issue(uuid.New(), "alice", nil, auth.TokenKindAccess, time.Minute)
	require.NoError(t, err)

	assert.True(t, ts.IsValidForSubject(token, "alice"))
	assert.False(t, ts.IsValidForSubject(token, "bob"))

	clock.Advance(time.Minute)
	assert.False(t, ts.IsValidForSubject(token, "alice"))
}

func TestTokenService_DecodeUnexpired(t *testing.T) {
	clock := newFakeClock(epoch)
	ts := newTestTokenService(clock)

	refresh, _, err := ts.IssueRefresh(newTestAccount(t, "alice", "Passw0rd!"))
	require.NoError(t, err)

	claims, err := ts.DecodeUnexpired(refresh)
	require.NoError(t, err)
	assert.Equal(t, auth.TokenKindRefresh, claims.Kind)

	_, err = ts.DecodeUnexpired("junk")
	assert.Equal(t, auth.ErrTokenMalformed, err)

	clock.Advance(auth.DefaultRefreshTokenTTL)
	_, err = ts.DecodeUnexpired(refresh)
	assert.Equal(t, auth.ErrInvalidToken, err)
}

func TestTokenService_DecodeKind(t *testing.T) {
	clock := newFakeClock(epoch)
	ts := newTestTokenService(clock)
	account := newTestAccount(t, "alice", "Passw0rd!")

	access, _, err := ts.IssueAccess(account)
	require.NoError(t, err)
	refresh, _, err := ts.IssueRefresh(account)
	require.NoError(t, err)

	claims, err := ts.DecodeKind(refresh, auth.TokenKindRefresh)
	require.NoError(t, err)
	assert.Equal(t, "alice", claims.Subject)

	_, err = ts.DecodeKind(access, auth.TokenKindRefresh)
	assert.Equal(t, auth.ErrWrongTokenKind, err)

	_, err = ts.DecodeKind(refresh, auth.TokenKindAccess)
	assert.Equal(t, auth.ErrWrongTokenKind, err)

	_, err = ts.DecodeKind("junk", auth.TokenKindRefresh)
	assert.Equal(t, auth.ErrTokenMalformed, err)

	clock.Advance(auth.DefaultRefreshTokenTTL)
	_, err = ts.DecodeKind(refresh, auth.TokenKindRefresh)
	assert.Equal(t, auth.ErrInvalidToken, err)
}

func TestTokenService_ConfiguredLifetimes(t *testing.T) {
	clock := newFakeClock(epoch)
	ts := newTestTokenService(clock,
		auth.WithAccessTokenTTL(5*time.Minute),
		auth.WithRefreshTokenTTL(time.Hour),
	)
	account := newTestAccount(t, "alice", "Passw0rd!")

	_, accessExp, err := ts.IssueAccess(account)
	require.NoError(t, err)
	_, refreshExp, err := ts.IssueRefresh(account)
	require.NoError(t, err)

	assert.Equal(t, epoch.Add(5*time.Minute), accessExp)
	assert.Equal(t, epoch.Add(time.Hour), refreshExp)
	assert.Equal(t, 5*time.Minute, ts.AccessTokenTTL())
}
