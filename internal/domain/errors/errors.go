package errors

import (
	"errors"
	"fmt"
)

var (
	ErrValidation         = errors.New("validation failed")
	ErrDuplicateEmail     = errors.New("user already exists")
	ErrUnknownUser        = errors.New("user not found")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrMissingToken       = errors.New("missing token")
	ErrInvalidToken       = errors.New("invalid token")
	ErrForbidden          = errors.New("forbidden")
	ErrNotFound           = errors.New("task not found")
	ErrConflict           = errors.New("task was modified concurrently")
	ErrInternalServer     = errors.New("internal server error")
	ErrBadRequest         = errors.New("malformed request")

	ErrDatabaseConnection    = errors.New("database connection failed")
	ErrGzipCompressionFailed = errors.New("gzip compression failed")
	ErrInvalidGzipRequest    = errors.New("invalid gzip request body")

	ErrConfigFileReadFailed = errors.New("failed to read config file")
	ErrConfigParseFailed    = errors.New("failed to parse config file")
	ErrConfigInvalidFormat  = errors.New("invalid config value")
	ErrConfigMissing        = errors.New("missing required configuration")
)

// Field-level validation errors. Each wraps ErrValidation.
var (
	ErrInvalidUsername    = fmt.Errorf("%w: username must be 3-50 printable characters", ErrValidation)
	ErrInvalidEmail       = fmt.Errorf("%w: invalid email (max 254 characters)", ErrValidation)
	ErrInvalidPassword    = fmt.Errorf("%w: password is required (max 72 bytes)", ErrValidation)
	ErrInvalidTitle       = fmt.Errorf("%w: title is required (max 200 characters)", ErrValidation)
	ErrInvalidDescription = fmt.Errorf("%w: description is too long (max 2000 characters)", ErrValidation)
	ErrInvalidStatus      = fmt.Errorf("%w: status must be pending or completed", ErrValidation)
	ErrInvalidAssignee    = fmt.Errorf("%w: assignee does not exist", ErrValidation)
)
