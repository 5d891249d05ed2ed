package auth

import (
	"errors"
	"net/http"

	goerrors "github.com/goliatone/go-errors"
)

const (
	TextCodeAccountNotFound    = "ACCOUNT_NOT_FOUND"
	TextCodeAccountInactive    = "ACCOUNT_INACTIVE"
	TextCodeInvalidCreds       = "INVALID_CREDENTIALS"
	TextCodeTooManyFailures    = "TOO_MANY_FAILURES"
	TextCodeTokenMalformed     = "TOKEN_MALFORMED"
	TextCodeInvalidToken       = "INVALID_TOKEN"
	TextCodeWrongTokenKind     = "WRONG_TOKEN_KIND"
	TextCodeEmptyPassword      = "EMPTY_PASSWORD"
	TextCodeWeakPassword       = "WEAK_PASSWORD"
	TextCodeUsernameTaken      = "USERNAME_TAKEN"
	TextCodeEmailTaken         = "EMAIL_TAKEN"
	TextCodeRateLimited        = "RATE_LIMITED"
	TextCodeUnauthenticated    = "UNAUTHENTICATED"
	TextCodeInsufficientRole   = "INSUFFICIENT_ROLE"
	TextCodeInternal           = "INTERNAL_ERROR"
	TextCodeValidation         = "VALIDATION_ERROR"
	publicInvalidCredentialMsg = "invalid credentials"
)

// ErrAccountNotFound is returned when no account matches the identifier.
// It never reaches an external caller as such, see PublicError.
var ErrAccountNotFound = goerrors.New("account not found", goerrors.CategoryNotFound).
	WithTextCode(TextCodeAccountNotFound).
	WithCode(goerrors.CodeNotFound)

// ErrAccountInactive covers disabled, deactivated and locked accounts.
var ErrAccountInactive = goerrors.New("account is inactive or locked", goerrors.CategoryAuth).
	WithTextCode(TextCodeAccountInactive).
	WithCode(goerrors.CodeForbidden)

// ErrInvalidCredentials is returned when the password does not match.
var ErrInvalidCredentials = goerrors.New("the credentials provided are invalid", goerrors.CategoryAuth).
	WithTextCode(TextCodeInvalidCreds).
	WithCode(goerrors.CodeUnauthorized)

// ErrTooManyFailures is returned by the failed attempt that locked the account.
var ErrTooManyFailures = goerrors.New("account locked after too many failed login attempts", goerrors.CategoryAuth).
	WithTextCode(TextCodeTooManyFailures).
	WithCode(goerrors.CodeForbidden)

// ErrTokenMalformed is returned when a token cannot be parsed or its signature is wrong.
var ErrTokenMalformed = goerrors.New("token is malformed", goerrors.CategoryAuth).
	WithTextCode(TextCodeTokenMalformed).
	WithCode(goerrors.CodeUnauthorized)

// ErrInvalidToken is returned for well signed tokens that cannot be used: expired,
// revoked or issued for another subject.
var ErrInvalidToken = goerrors.New("token is invalid", goerrors.CategoryAuth).
	WithTextCode(TextCodeInvalidToken).
	WithCode(goerrors.CodeUnauthorized)

// ErrWrongTokenKind is returned when an access token is used where a refresh
// token is expected and vice versa.
var ErrWrongTokenKind = goerrors.New("token kind is not accepted here", goerrors.CategoryAuth).
	WithTextCode(TextCodeWrongTokenKind).
	WithCode(goerrors.CodeUnauthorized)

// ErrNoEmptyString is returned when hashing an empty password.
var ErrNoEmptyString = goerrors.New("password can not be empty", goerrors.CategoryValidation).
	WithTextCode(TextCodeEmptyPassword).
	WithCode(goerrors.CodeBadRequest)

// ErrMismatchedHashAndPassword is the bcrypt mismatch error.
var ErrMismatchedHashAndPassword = goerrors.New("password does not match hash", goerrors.CategoryAuth).
	WithTextCode(TextCodeInvalidCreds).
	WithCode(goerrors.CodeUnauthorized)

var ErrWeakPassword = goerrors.New("password must have at least 8 characters, one upper case letter, one lower case letter and one digit", goerrors.CategoryValidation).
	WithTextCode(TextCodeWeakPassword).
	WithCode(goerrors.CodeBadRequest)

var ErrUsernameTaken = goerrors.New("username already exists", goerrors.CategoryConflict).
	WithTextCode(TextCodeUsernameTaken).
	WithCode(goerrors.CodeConflict)

var ErrEmailTaken = goerrors.New("email already exists", goerrors.CategoryConflict).
	WithTextCode(TextCodeEmailTaken).
	WithCode(goerrors.CodeConflict)

// ErrRateLimited is returned by the login limiter.
var ErrRateLimited = goerrors.New("too many login requests", goerrors.CategoryRateLimit).
	WithTextCode(TextCodeRateLimited).
	WithCode(http.StatusTooManyRequests)

// ErrUnauthenticated is returned by routes that need an identity.
var ErrUnauthenticated = goerrors.New("authentication required", goerrors.CategoryAuth).
	WithTextCode(TextCodeUnauthenticated).
	WithCode(goerrors.CodeUnauthorized)

// ErrInsufficientRole is returned when the identity lacks the required role.
var ErrInsufficientRole = goerrors.New("insufficient role", goerrors.CategoryAuthz).
	WithTextCode(TextCodeInsufficientRole).
	WithCode(goerrors.CodeForbidden)

// IsAccountNotFound reports whether err is a missing account.
func IsAccountNotFound(err error) bool {
	return hasTextCode(err, TextCodeAccountNotFound)
}

// IsAccountInactive reports whether err means the account may not log in,
// including the attempt that just tripped the lockout.
func IsAccountInactive(err error) bool {
	return hasTextCode(err, TextCodeAccountInactive, TextCodeTooManyFailures)
}

// IsCredentialError reports whether err belongs to the family that is
// reported to callers as "invalid credentials".
func IsCredentialError(err error) bool {
	return hasTextCode(err, TextCodeAccountNotFound, TextCodeInvalidCreds)
}

// IsTokenError reports whether err comes from token decoding or validation.
func IsTokenError(err error) bool {
	return hasTextCode(err, TextCodeTokenMalformed, TextCodeInvalidToken, TextCodeWrongTokenKind)
}

func hasTextCode(err error, codes ...string) bool {
	var richErr *goerrors.Error
	if !errors.As(err, &richErr) || richErr == nil {
		return false
	}
	for _, code := range codes {
		if richErr.TextCode == code {
			return true
		}
	}
	return false
}

// PublicError maps an internal error to the error reported to external
// callers. Unknown accounts and bad passwords collapse into the same
// response so usernames can not be enumerated. Token errors collapse into
// ErrInvalidToken.
func PublicError(err error) *goerrors.Error {
	if err == nil {
		return nil
	}

	switch {
	case IsCredentialError(err):
		return goerrors.New(publicInvalidCredentialMsg, goerrors.CategoryAuth).
			WithTextCode(TextCodeInvalidCreds).
			WithCode(goerrors.CodeUnauthorized)
	case IsAccountInactive(err):
		return ErrAccountInactive
	case IsTokenError(err):
		return ErrInvalidToken
	}

	var richErr *goerrors.Error
	if errors.As(err, &richErr) && richErr.Category != goerrors.CategoryInternal {
		return richErr
	}

	return goerrors.New("an unexpected error occurred", goerrors.CategoryInternal).
		WithTextCode(TextCodeInternal).
		WithCode(goerrors.CodeInternal)
}
