package service

import (
	"fmt"
	"net/http"

	apperrors "github.com/veldtlabs/identity/pkg/errors"
)

// Error constructors shared across the services. Codes are part of the API
// contract; handlers pass them through to clients unchanged.

// errInvalidCredentials is returned for both unknown email and wrong
// password, so responses do not reveal which accounts exist.
func errInvalidCredentials() *apperrors.AppError {
	return apperrors.New("INVALID_CREDENTIALS", "invalid email or password", http.StatusUnauthorized)
}

func errEmailExists(email string) *apperrors.AppError {
	return apperrors.Conflict("EMAIL_EXISTS", fmt.Sprintf("a user with email %s already exists", email))
}

func errUserInactive() *apperrors.AppError {
	return apperrors.New("USER_INACTIVE", "user account is deactivated", http.StatusUnauthorized)
}

func errTokenInvalid() *apperrors.AppError {
	return apperrors.New("TOKEN_INVALID", "invalid refresh token", http.StatusUnauthorized)
}

func errTokenExpired() *apperrors.AppError {
	return apperrors.New("TOKEN_EXPIRED", "refresh token has expired", http.StatusUnauthorized)
}

func errTokenRevoked() *apperrors.AppError {
	return apperrors.New("TOKEN_REVOKED", "refresh token not found or revoked", http.StatusUnauthorized)
}

func errTokenHashMismatch() *apperrors.AppError {
	return apperrors.New("TOKEN_HASH_MISMATCH", "refresh token does not match ledger entry", http.StatusUnauthorized)
}

func errTokenMalformed() *apperrors.AppError {
	return apperrors.New("TOKEN_MALFORMED", "malformed refresh token", http.StatusUnauthorized)
}

func errConfiguration(msg string) *apperrors.AppError {
	return apperrors.New("CONFIGURATION_ERROR", msg, http.StatusInternalServerError)
}

func errRoleInUse(name string, users int) *apperrors.AppError {
	return apperrors.Conflict("ROLE_IN_USE", fmt.Sprintf("role %s is assigned to %d user(s)", name, users))
}

func errPermissionInUse(name string, roles int) *apperrors.AppError {
	return apperrors.Conflict("PERMISSION_IN_USE", fmt.Sprintf("permission %s is referenced by %d role(s)", name, roles))
}
