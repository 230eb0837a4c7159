package identity

import (
	"github.com/goliatone/go-errors"
)

// Rich errors for every failure the service can hand back to a caller.
// Code is the HTTP status the boundary maps the error to; TextCode is the
// stable machine-readable identifier clients switch on.
var (
	// ErrInvalidRole is returned when a registration carries a role
	// outside the closed set
	ErrInvalidRole = errors.New("role must be admin or student", errors.CategoryValidation).
			WithCode(errors.CodeBadRequest).
			WithTextCode("INVALID_ROLE")

	// ErrEmailConflict is returned when an email is already registered
	ErrEmailConflict = errors.New("email is already registered", errors.CategoryConflict).
				WithCode(errors.CodeBadRequest).
				WithTextCode("EMAIL_TAKEN")

	// ErrInvalidCredentials covers both unknown emails and password
	// mismatches so callers cannot probe which one failed
	ErrInvalidCredentials = errors.New("invalid email or password", errors.CategoryAuth).
				WithCode(errors.CodeUnauthorized).
				WithTextCode("INVALID_CREDENTIALS")

	// ErrTooManyLoginAttempts is returned once the cooldown window closes
	ErrTooManyLoginAttempts = errors.New("too many login attempts, try again later", errors.CategoryRateLimit).
				WithCode(errors.CodeUnauthorized).
				WithTextCode("TOO_MANY_ATTEMPTS")

	// ErrUnauthenticated is returned by the guard when no usable bearer
	// token accompanies the request
	ErrUnauthenticated = errors.New("authentication required", errors.CategoryAuth).
				WithCode(errors.CodeUnauthorized).
				WithTextCode("UNAUTHENTICATED")

	// ErrTokenExpired is returned when the token's lifetime has elapsed
	ErrTokenExpired = errors.New("token is expired", errors.CategoryAuth).
			WithCode(errors.CodeUnauthorized).
			WithTextCode("TOKEN_EXPIRED")

	// ErrTokenMalformed is returned when the token cannot be parsed or
	// its signature does not match
	ErrTokenMalformed = errors.New("token is malformed", errors.CategoryAuth).
				WithCode(errors.CodeUnauthorized).
				WithTextCode("TOKEN_MALFORMED")

	// ErrForbidden is returned when an authenticated user lacks the role
	// an operation requires
	ErrForbidden = errors.New("insufficient permissions", errors.CategoryAuthz).
			WithCode(errors.CodeForbidden).
			WithTextCode("FORBIDDEN")

	// ErrUserNotFound is returned when the target of an operation does
	// not exist
	ErrUserNotFound = errors.New("user not found", errors.CategoryNotFound).
			WithCode(errors.CodeNotFound).
			WithTextCode("USER_NOT_FOUND")

	// ErrLastAdmin rejects a delete that would leave the system with
	// zero admins
	ErrLastAdmin = errors.New("cannot delete the last remaining admin", errors.CategoryConflict).
			WithCode(errors.CodeBadRequest).
			WithTextCode("LAST_ADMIN")

	// ErrNoEmptyString rejects empty credential material
	ErrNoEmptyString = errors.New("value must not be empty", errors.CategoryValidation).
				WithCode(errors.CodeBadRequest).
				WithTextCode("EMPTY_VALUE")

	// ErrMismatchedHashAndPassword is the internal bcrypt mismatch marker
	ErrMismatchedHashAndPassword = errors.New("password does not match", errors.CategoryAuth).
					WithCode(errors.CodeUnauthorized).
					WithTextCode("PASSWORD_MISMATCH")
)

// IsAuthError reports whether the error maps to a 401 at the boundary
func IsAuthError(err error) bool {
	var rich *errors.Error
	if !errors.As(err, &rich) {
		return false
	}
	return rich.Category == errors.CategoryAuth || rich.Category == errors.CategoryRateLimit
}
