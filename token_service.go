package auth

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
)

// TokenService issues and decodes HS256 bearer tokens.
type TokenService struct {
	signingKey []byte
	issuer     string
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
	logger     Logger
	parser     *jwt.Parser
}

type TokenServiceOption func(*TokenService)

func WithTokenClock(now func() time.Time) TokenServiceOption {
	return func(ts *TokenService) {
		if now != nil {
			ts.now = now
		}
	}
}

func WithTokenLogger(logger Logger) TokenServiceOption {
	return func(ts *TokenService) {
		ts.logger = normalizeLogger(logger)
	}
}

func WithAccessTokenTTL(ttl time.Duration) TokenServiceOption {
	return func(ts *TokenService) {
		if ttl > 0 {
			ts.accessTTL = ttl
		}
	}
}

func WithRefreshTokenTTL(ttl time.Duration) TokenServiceOption {
	return func(ts *TokenService) {
		if ttl > 0 {
			ts.refreshTTL = ttl
		}
	}
}

// NewTokenService creates a new TokenService instance
func NewTokenService(signingKey []byte, issuer string, opts ...TokenServiceOption) *TokenService {
	key := make([]byte, len(signingKey))
	copy(key, signingKey)

	ts := &TokenService{
		signingKey: key,
		issuer:     issuer,
		accessTTL:  DefaultAccessTokenTTL,
		refreshTTL: DefaultRefreshTokenTTL,
		now:        time.Now,
		logger:     defLogger,
		// expiry is checked against the injected clock, not by the parser
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
			jwt.WithoutClaimsValidation(),
		),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(ts)
		}
	}
	return ts
}

func (ts *TokenService) AccessTokenTTL() time.Duration  { return ts.accessTTL }
func (ts *TokenService) RefreshTokenTTL() time.Duration { return ts.refreshTTL }

// Issue signs a token for the account. Roles are only embedded in access
// tokens.
func (ts *TokenService) Issue(accountID uuid.UUID, username string, roles []Role, kind TokenKind, lifetime time.Duration) (string, error) {
	token, _, err := ts.issue(accountID, username, roles, kind, lifetime)
	return token, err
}

// IssueAccess issues an access token with the configured lifetime and
// returns its expiry.
func (ts *TokenService) IssueAccess(account *Account) (string, time.Time, error) {
	if account == nil {
		return "", time.Time{}, goerrors.New("account must not be nil", goerrors.CategoryInternal)
	}
	return ts.issue(account.ID, account.Username, account.Roles, TokenKindAccess, ts.accessTTL)
}

// IssueRefresh issues a refresh token with the configured lifetime.
func (ts *TokenService) IssueRefresh(account *Account) (string, time.Time, error) {
	if account == nil {
		return "", time.Time{}, goerrors.New("account must not be nil", goerrors.CategoryInternal)
	}
	return ts.issue(account.ID, account.Username, nil, TokenKindRefresh, ts.refreshTTL)
}

func (ts *TokenService) issue(accountID uuid.UUID, username string, roles []Role, kind TokenKind, lifetime time.Duration) (string, time.Time, error) {
	if !kind.IsValid() {
		return "", time.Time{}, goerrors.New("unknown token kind", goerrors.CategoryInternal).
			WithMetadata(map[string]any{"kind": string(kind)})
	}
	if username == "" {
		return "", time.Time{}, goerrors.New("token subject must not be empty", goerrors.CategoryInternal)
	}
	if lifetime <= 0 {
		return "", time.Time{}, goerrors.New("token lifetime must be positive", goerrors.CategoryInternal)
	}

	issuedAt := ts.now().Truncate(time.Second)
	expiresAt := issuedAt.Add(lifetime)

	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    ts.issuer,
			Subject:   username,
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
		UID:  accountID.String(),
		Kind: kind,
	}
	if kind == TokenKindAccess {
		claims.Roles = roleNames(roles)
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(ts.signingKey)
	if err != nil {
		return "", time.Time{}, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to sign JWT")
	}

	return signed, expiresAt, nil
}

// Decode verifies signature, algorithm, structure and issuer. Expiry is not
// checked. Every failure is ErrTokenMalformed.
func (ts *TokenService) Decode(token string) (*Claims, error) {
	if token == "" {
		return nil, ErrTokenMalformed
	}

	claims := &Claims{}
	parsed, err := ts.parser.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return ts.signingKey, nil
	})
	if err != nil {
		ts.logger.Debug("token decode failed", "token", tokenPrefix(token), "error", err)
		return nil, ErrTokenMalformed
	}

	if !parsed.Valid || !claims.wellFormed(ts.issuer) {
		ts.logger.Debug("token claims rejected", "token", tokenPrefix(token))
		return nil, ErrTokenMalformed
	}

	return claims, nil
}

// DecodeUnexpired decodes token and requires it to be unexpired on the
// service clock. Any kind is accepted.
func (ts *TokenService) DecodeUnexpired(token string) (*Claims, error) {
	claims, err := ts.Decode(token)
	if err != nil {
		return nil, err
	}
	if claims.ExpiredAt(ts.now()) {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// IsValid reports whether token decodes and has not expired.
func (ts *TokenService) IsValid(token string) bool {
	_, err := ts.DecodeUnexpired(token)
	return err == nil
}

// IsValidForSubject reports whether token is valid and was issued to username.
func (ts *TokenService) IsValidForSubject(token, username string) bool {
	claims, err := ts.Decode(token)
	if err != nil {
		return false
	}
	return claims.Subject == username && !claims.ExpiredAt(ts.now())
}

// DecodeKind decodes token and requires it to be unexpired and of kind.
func (ts *TokenService) DecodeKind(token string, kind TokenKind) (*Claims, error) {
	claims, err := ts.DecodeUnexpired(token)
	if err != nil {
		return nil, err
	}
	if claims.Kind != kind {
		return nil, ErrWrongTokenKind
	}
	return claims, nil
}
