package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-router"
	"github.com/google/uuid"
)

// AuthController exposes the session lifecycle over HTTP.
type AuthController struct {
	sessions      *SessionManager
	ledger        *RevocationLedger
	limiter       *LoginLimiter
	logger        Logger
	errorReporter func(ctx context.Context, err error)
	readiness     func(ctx context.Context) error
	now           func() time.Time
}

type ControllerOption func(*AuthController)

func WithControllerLogger(logger Logger) ControllerOption {
	return func(a *AuthController) {
		a.logger = normalizeLogger(logger)
	}
}

// WithLoginLimiter throttles the login and register routes.
func WithLoginLimiter(limiter *LoginLimiter) ControllerOption {
	return func(a *AuthController) {
		a.limiter = limiter
	}
}

// WithErrorReporter receives every unexpected error before it is turned
// into a generic 500.
func WithErrorReporter(report func(ctx context.Context, err error)) ControllerOption {
	return func(a *AuthController) {
		a.errorReporter = report
	}
}

// WithReadinessCheck is run by the /health/ready route, a database ping
// in production. Without it the service reports ready as soon as it serves.
func WithReadinessCheck(check func(ctx context.Context) error) ControllerOption {
	return func(a *AuthController) {
		a.readiness = check
	}
}

// NewAuthController creates an AuthController
func NewAuthController(sessions *SessionManager, ledger *RevocationLedger, opts ...ControllerOption) *AuthController {
	a := &AuthController{
		sessions: sessions,
		ledger:   ledger,
		logger:   defLogger,
		now:      time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(a)
		}
	}
	return a
}

// RouteRegistrar captures the router methods used by the controller.
type RouteRegistrar interface {
	Get(path string, handler router.HandlerFunc, mw ...router.MiddlewareFunc) router.RouteInfo
	Post(path string, handler router.HandlerFunc, mw ...router.MiddlewareFunc) router.RouteInfo
	Delete(path string, handler router.HandlerFunc, mw ...router.MiddlewareFunc) router.RouteInfo
}

// Guards are the gates mounted in front of protected routes. Routes whose
// guard is nil are not registered.
type Guards struct {
	Identity router.MiddlewareFunc
	Admin    router.MiddlewareFunc
}

// RegisterRoutes mounts the auth, admin and health routes on r. The
// identity middleware must already run in front of r.
func RegisterRoutes(r RouteRegistrar, ctrl *AuthController, guards Guards) {
	var throttle []router.MiddlewareFunc
	if ctrl.limiter != nil {
		throttle = append(throttle, ctrl.limiter.Handler())
	}

	r.Post("/api/auth/login", ctrl.Login, throttle...)
	r.Post("/api/auth/register", ctrl.Register, throttle...)
	r.Post("/api/auth/logout", ctrl.Logout)
	r.Post("/api/auth/refresh", ctrl.Refresh)
	r.Get("/api/auth/health", ctrl.Health)

	r.Get("/health/live", ctrl.Live)
	r.Get("/health/ready", ctrl.Ready)

	if guards.Identity != nil {
		r.Get("/api/auth/me", ctrl.Me, guards.Identity)
	} else {
		ctrl.logger.Warn("identity guard missing, /api/auth/me not registered")
	}

	if guards.Admin == nil {
		ctrl.logger.Warn("admin guard missing, admin routes not registered")
		return
	}

	r.Post("/api/admin/accounts/:id/unlock", ctrl.UnlockAccount, guards.Admin)
	r.Post("/api/admin/accounts/:id/lock", ctrl.LockAccount, guards.Admin)
	r.Delete("/api/admin/revocations", ctrl.ClearRevocations, guards.Admin)
	r.Get("/api/admin/revocations/stats", ctrl.RevocationStats, guards.Admin)
}

// LoginRequest is the login payload
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (r LoginRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Username, validation.Required, validation.Length(1, 100)),
		validation.Field(&r.Password, validation.Required, validation.Length(1, 200)),
	)
}

// RefreshRequest is the refresh payload
type RefreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

func (r RefreshRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.RefreshToken, validation.Required),
	)
}

// LogoutRequest optionally carries the refresh token to revoke with the
// access token.
type LogoutRequest struct {
	RefreshToken string `json:"refreshToken"`
}

// RegisterRequest is the registration payload
type RegisterRequest struct {
	Username  string `json:"username"`
	Email     string `json:"email"`
	Password  string `json:"password"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
}

func (r RegisterRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Username, validation.Required, validation.Length(3, 50)),
		validation.Field(&r.Email, validation.Required, validation.Length(6, 100), is.Email),
		validation.Field(&r.Password, validation.Required, validation.Length(MinPasswordLength, 100)),
		validation.Field(&r.FirstName, validation.Length(0, 100)),
		validation.Field(&r.LastName, validation.Length(0, 100)),
	)
}

type validatable interface {
	Validate() error
}

func (a *AuthController) Login(ctx router.Context) error {
	var req LoginRequest
	if err := a.bind(ctx, &req); err != nil {
		return a.fail(ctx, err)
	}

	session, err := a.sessions.Login(ctx.Context(), strings.TrimSpace(req.Username), req.Password)
	if err != nil {
		return a.fail(ctx, err)
	}

	return ctx.JSON(http.StatusOK, session)
}

func (a *AuthController) Register(ctx router.Context) error {
	var req RegisterRequest
	if err := a.bind(ctx, &req); err != nil {
		return a.fail(ctx, err)
	}

	account, err := a.sessions.Register(ctx.Context(), Registration{
		Username:  req.Username,
		Email:     req.Email,
		Password:  req.Password,
		FirstName: req.FirstName,
		LastName:  req.LastName,
	})
	if err != nil {
		return a.fail(ctx, err)
	}

	return ctx.JSON(http.StatusCreated, account.Snapshot())
}

func (a *AuthController) Logout(ctx router.Context) error {
	token, ok := ExtractBearerToken(ctx.GetString(router.HeaderAuthorization, ""))
	if !ok {
		return a.fail(ctx, goerrors.New("bearer token required", goerrors.CategoryBadInput).
			WithTextCode(TextCodeValidation).
			WithCode(goerrors.CodeBadRequest))
	}

	a.sessions.Logout(ctx.Context(), token)

	// the refresh token is optional, an empty or unreadable body is fine
	var req LogoutRequest
	if err := ctx.Bind(&req); err == nil && req.RefreshToken != "" {
		a.sessions.Logout(ctx.Context(), req.RefreshToken)
	}

	return ctx.JSON(http.StatusOK, map[string]any{"success": true, "message": "logged out"})
}

func (a *AuthController) Refresh(ctx router.Context) error {
	var req RefreshRequest
	if err := a.bind(ctx, &req); err != nil {
		return a.fail(ctx, err)
	}

	session, err := a.sessions.Refresh(ctx.Context(), req.RefreshToken)
	if err != nil {
		return a.fail(ctx, err)
	}

	return ctx.JSON(http.StatusOK, session)
}

func (a *AuthController) Health(ctx router.Context) error {
	return ctx.JSON(http.StatusOK, map[string]any{
		"status":    "UP",
		"service":   "auth",
		"timestamp": a.now().UTC(),
	})
}

// Live reports the process is serving requests.
func (a *AuthController) Live(ctx router.Context) error {
	return ctx.JSON(http.StatusOK, map[string]any{"status": "UP"})
}

// Ready reports whether dependencies answer. A failing check yields 503.
func (a *AuthController) Ready(ctx router.Context) error {
	if a.readiness != nil {
		if err := a.readiness(ctx.Context()); err != nil {
			a.logger.Warn("readiness check failed", "error", err)
			return ctx.JSON(http.StatusServiceUnavailable, map[string]any{
				"status": "DOWN",
				"checks": map[string]any{"database": "DOWN"},
			})
		}
	}
	return ctx.JSON(http.StatusOK, map[string]any{
		"status": "UP",
		"checks": map[string]any{"database": "UP"},
	})
}

func (a *AuthController) Me(ctx router.Context) error {
	identity, ok := IdentityFromContext(ctx.Context())
	if !ok {
		return a.fail(ctx, ErrUnauthenticated)
	}
	return ctx.JSON(http.StatusOK, identity)
}

func (a *AuthController) UnlockAccount(ctx router.Context) error {
	return a.adminUpdate(ctx, a.sessions.ResetLockout)
}

func (a *AuthController) LockAccount(ctx router.Context) error {
	return a.adminUpdate(ctx, a.sessions.LockAccount)
}

func (a *AuthController) adminUpdate(ctx router.Context, update func(context.Context, uuid.UUID) (*Account, error)) error {
	id, err := uuid.Parse(ctx.Param("id"))
	if err != nil {
		return a.fail(ctx, goerrors.New("invalid account id", goerrors.CategoryBadInput).
			WithTextCode(TextCodeValidation).
			WithCode(goerrors.CodeBadRequest))
	}

	account, err := update(ctx.Context(), id)
	if err != nil {
		if IsAccountNotFound(err) {
			return writeError(ctx, ErrAccountNotFound)
		}
		return a.fail(ctx, err)
	}

	return ctx.JSON(http.StatusOK, map[string]any{
		"account":         account.Snapshot(),
		"locked":          account.Locked,
		"failed_attempts": account.FailedLoginAttempts,
	})
}

func (a *AuthController) ClearRevocations(ctx router.Context) error {
	a.ledger.Clear()
	a.logger.Warn("revocation ledger cleared", "actor", actorFromContext(ctx.Context()).ID)
	return ctx.JSON(http.StatusOK, map[string]any{"success": true})
}

func (a *AuthController) RevocationStats(ctx router.Context) error {
	return ctx.JSON(http.StatusOK, a.ledger.Stats())
}

func (a *AuthController) bind(ctx router.Context, payload validatable) error {
	if err := ctx.Bind(payload); err != nil {
		return goerrors.New("malformed request body", goerrors.CategoryBadInput).
			WithTextCode(TextCodeValidation).
			WithCode(goerrors.CodeBadRequest)
	}

	if err := payload.Validate(); err != nil {
		fields := map[string]any{}
		var verrs validation.Errors
		if errors.As(err, &verrs) {
			for field, ferr := range verrs {
				fields[field] = ferr.Error()
			}
		}
		return goerrors.New("invalid request payload", goerrors.CategoryValidation).
			WithTextCode(TextCodeValidation).
			WithCode(goerrors.CodeBadRequest).
			WithMetadata(map[string]any{"fields": fields})
	}
	return nil
}

func (a *AuthController) fail(ctx router.Context, err error) error {
	public := PublicError(err)
	if public.TextCode == TextCodeInternal {
		a.logger.Error("request failed", "error", err)
		if a.errorReporter != nil {
			a.errorReporter(ctx.Context(), err)
		}
	}
	return writeError(ctx, public)
}

type errorBody struct {
	Success bool         `json:"success"`
	Error   errorPayload `json:"error"`
}

type errorPayload struct {
	Code     string         `json:"code"`
	Message  string         `json:"message"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

func writeError(ctx router.Context, err *goerrors.Error) error {
	status := err.Code
	if status < 400 || status > 599 {
		status = http.StatusInternalServerError
	}
	return ctx.JSON(status, errorBody{
		Error: errorPayload{
			Code:     err.TextCode,
			Message:  err.Message,
			Metadata: err.Metadata,
		},
	})
}
