package auth

import (
	"context"
	"strings"
)

const bearerPrefix = "Bearer "

// RequestAuthenticator turns a bearer token into an Identity. It never
// returns errors, a request it can not authenticate is anonymous.
type RequestAuthenticator struct {
	tokens *TokenService
	ledger *RevocationLedger
	store  AccountStore
	logger Logger
}

type AuthenticatorOption func(*RequestAuthenticator)

func WithAuthenticatorLogger(logger Logger) AuthenticatorOption {
	return func(a *RequestAuthenticator) {
		a.logger = normalizeLogger(logger)
	}
}

// NewRequestAuthenticator creates a RequestAuthenticator
func NewRequestAuthenticator(tokens *TokenService, ledger *RevocationLedger, store AccountStore, opts ...AuthenticatorOption) *RequestAuthenticator {
	a := &RequestAuthenticator{
		tokens: tokens,
		ledger: ledger,
		store:  store,
		logger: defLogger,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(a)
		}
	}
	return a
}

// Authenticate resolves the identity behind token. Roles come from the
// account record, not from the token.
func (a *RequestAuthenticator) Authenticate(ctx context.Context, token string) (*Identity, bool) {
	if token == "" {
		return nil, false
	}

	claims, err := a.tokens.Decode(token)
	if err != nil {
		a.logger.Debug("authenticate rejected token", "token", tokenPrefix(token), "error", err)
		return nil, false
	}

	if a.ledger.IsRevoked(token) {
		a.logger.Debug("authenticate revoked token", "token", tokenPrefix(token))
		return nil, false
	}

	if claims.Kind != TokenKindAccess {
		a.logger.Debug("authenticate rejected token kind", "kind", string(claims.Kind))
		return nil, false
	}

	account, err := a.store.FindByUsername(ctx, claims.Subject)
	if err != nil {
		if !IsAccountNotFound(err) {
			a.logger.Error("authenticate account lookup failed", "username", claims.Subject, "error", err)
		}
		return nil, false
	}

	if !a.tokens.IsValidForSubject(token, account.Username) {
		return nil, false
	}

	return &Identity{
		AccountID: account.ID,
		Username:  account.Username,
		Roles:     cloneRoles(account.Roles),
	}, true
}

// AuthenticateHeader authenticates the value of an Authorization header.
func (a *RequestAuthenticator) AuthenticateHeader(ctx context.Context, header string) (*Identity, bool) {
	token, ok := ExtractBearerToken(header)
	if !ok {
		return nil, false
	}
	return a.Authenticate(ctx, token)
}

// ExtractBearerToken returns the token of a "Bearer <token>" header value.
func ExtractBearerToken(header string) (string, bool) {
	if !strings.HasPrefix(header, bearerPrefix) {
		return "", false
	}
	token := strings.TrimSpace(header[len(bearerPrefix):])
	return token, token != ""
}
