package bearer

import (
	"net/http"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-router"

	auth "github.com/gridtokenx/go-auth"
)

// RequireIdentity rejects requests without an authenticated identity.
func RequireIdentity(handler ...ErrorHandler) router.MiddlewareFunc {
	onError := errorHandler(handler...)
	return func(next router.HandlerFunc) router.HandlerFunc {
		return func(ctx router.Context) error {
			if _, ok := identity(ctx); !ok {
				return onError(ctx, auth.ErrUnauthenticated)
			}
			return next(ctx)
		}
	}
}

// RequireRole rejects requests whose identity holds none of roles.
func RequireRole(roles ...auth.Role) router.MiddlewareFunc {
	return RequireRoleWith(nil, roles...)
}

// RequireRoleWith is RequireRole with a custom error handler.
func RequireRoleWith(handler ErrorHandler, roles ...auth.Role) router.MiddlewareFunc {
	onError := errorHandler(handler)
	return func(next router.HandlerFunc) router.HandlerFunc {
		return func(ctx router.Context) error {
			id, ok := identity(ctx)
			if !ok {
				return onError(ctx, auth.ErrUnauthenticated)
			}
			for _, role := range roles {
				if id.HasRole(role) {
					return next(ctx)
				}
			}
			return onError(ctx, auth.ErrInsufficientRole)
		}
	}
}

func identity(ctx router.Context) (*auth.Identity, bool) {
	if id, ok := IdentityFromLocals(ctx); ok {
		return id, true
	}
	return auth.IdentityFromContext(ctx.Context())
}

func errorHandler(handler ...ErrorHandler) ErrorHandler {
	if len(handler) > 0 && handler[0] != nil {
		return handler[0]
	}
	return defaultErrorHandler
}

func defaultErrorHandler(ctx router.Context, err *goerrors.Error) error {
	status := err.Code
	if status == 0 {
		status = http.StatusUnauthorized
	}
	return ctx.JSON(status, map[string]any{
		"success": false,
		"error": map[string]any{
			"code":    err.TextCode,
			"message": err.Message,
		},
	})
}
