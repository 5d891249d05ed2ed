package bearer

import (
	"context"
	"errors"
	"strings"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-router"

	auth "github.com/gridtokenx/go-auth"
)

var (
	defaultTokenLookup = "header:" + router.HeaderAuthorization
	// ErrTokenMissing is reported by extractors that found nothing.
	ErrTokenMissing = errors.New("missing or malformed bearer token")
)

// DefaultContextKey is the router Locals key holding the identity.
const DefaultContextKey = "identity"

// Authenticator resolves a raw token into an identity.
// *auth.RequestAuthenticator implements it.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (*auth.Identity, bool)
}

// IdentityListener is invoked after a request has been authenticated.
type IdentityListener func(ctx router.Context, identity *auth.Identity)

type Config struct {
	// Filter skips the middleware when it returns true.
	Filter        func(router.Context) bool
	Authenticator Authenticator
	ContextKey    string
	// TokenLookup is a comma separated list of header:<name>,
	// query:<name> or cookie:<name> sources, tried in order.
	TokenLookup string
	AuthScheme  string
	Listeners   []IdentityListener
}

// ErrorHandler renders a rejected request.
type ErrorHandler func(ctx router.Context, err *goerrors.Error) error

// New returns a middleware that attaches the identity of the request when
// its token authenticates. It never rejects a request, use RequireIdentity
// or RequireRole for that. An identity already attached is kept.
func New(config ...Config) router.MiddlewareFunc {
	cfg := GetDefaultConfig(config...)
	extractors := GetExtractors(cfg.TokenLookup, cfg.AuthScheme)

	return func(next router.HandlerFunc) router.HandlerFunc {
		return func(ctx router.Context) error {
			if cfg.Filter != nil && cfg.Filter(ctx) {
				return next(ctx)
			}

			if _, ok := ctx.Locals(cfg.ContextKey).(*auth.Identity); ok {
				return next(ctx)
			}
			if identity, ok := auth.IdentityFromContext(ctx.Context()); ok {
				ctx.Locals(cfg.ContextKey, identity)
				return next(ctx)
			}

			token, err := ExtractRawToken(ctx, extractors)
			if err != nil {
				return next(ctx)
			}

			identity, ok := cfg.Authenticator.Authenticate(ctx.Context(), token)
			if !ok {
				return next(ctx)
			}

			ctx.Locals(cfg.ContextKey, identity)
			ctx.SetContext(auth.WithIdentity(ctx.Context(), identity))

			for _, listener := range cfg.Listeners {
				if listener != nil {
					listener(ctx, identity)
				}
			}

			return next(ctx)
		}
	}
}

func GetDefaultConfig(config ...Config) (cfg Config) {
	if len(config) > 0 {
		cfg = config[0]
	}

	if cfg.Authenticator == nil {
		panic("AUTH: bearer middleware configuration: Authenticator is required.")
	}

	if cfg.ContextKey == "" {
		cfg.ContextKey = DefaultContextKey
	}

	if cfg.TokenLookup == "" {
		cfg.TokenLookup = defaultTokenLookup
	}

	if cfg.AuthScheme == "" {
		cfg.AuthScheme = "Bearer"
	}

	return cfg
}

// IdentityFromLocals returns the identity stored by New.
func IdentityFromLocals(ctx router.Context, key ...string) (*auth.Identity, bool) {
	k := DefaultContextKey
	if len(key) > 0 && key[0] != "" {
		k = key[0]
	}
	identity, ok := ctx.Locals(k).(*auth.Identity)
	return identity, ok && identity != nil
}

func ExtractRawToken(ctx router.Context, extractors []Extractor) (string, error) {
	for _, extractor := range extractors {
		raw, err := extractor(ctx)
		if raw != "" && err == nil {
			return raw, nil
		}
	}
	return "", ErrTokenMissing
}

type Extractor func(ctx router.Context) (string, error)

// GetExtractors parses a lookup such as "header:Authorization,cookie:jwt".
func GetExtractors(tokenLookup string, authScheme string) []Extractor {
	extractors := make([]Extractor, 0)

	for _, rootPart := range strings.Split(tokenLookup, ",") {
		parts := strings.SplitN(strings.TrimSpace(rootPart), ":", 2)
		if len(parts) != 2 {
			continue
		}
		source, name := strings.TrimSpace(parts[0]), strings.TrimSpace(parts[1])

		switch source {
		case "header":
			extractors = append(extractors, fromHeader(name, authScheme))
		case "query":
			extractors = append(extractors, fromQuery(name))
		case "cookie":
			extractors = append(extractors, fromCookie(name))
		}
	}

	return extractors
}

func fromHeader(header, authScheme string) Extractor {
	authScheme = strings.TrimSpace(authScheme)
	return func(ctx router.Context) (string, error) {
		a := ctx.GetString(header, "")
		l := len(authScheme)
		if len(a) > l+1 && strings.EqualFold(a[:l], authScheme) && a[l] == ' ' {
			if token := strings.TrimSpace(a[l:]); token != "" {
				return token, nil
			}
		}
		return "", ErrTokenMissing
	}
}

func fromQuery(param string) Extractor {
	return func(ctx router.Context) (string, error) {
		if token := ctx.Query(param, ""); token != "" {
			return token, nil
		}
		return "", ErrTokenMissing
	}
}

func fromCookie(name string) Extractor {
	return func(ctx router.Context) (string, error) {
		if token := ctx.Cookies(name); token != "" {
			return token, nil
		}
		return "", ErrTokenMissing
	}
}
