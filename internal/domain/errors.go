package domain

import (
	"errors"
	"net/http"
)

// Error codes for application errors.
const (
	CodeNotFound      = 1
	CodeAlreadyExists = 2
	CodeValidation    = 3
	CodeInternal      = 4
)

// AppError carries a stable code, a user-facing message and an optional cause.
type AppError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Err     error  `json:"-"`
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

// Unwrap returns the cause for errors.Is and errors.As.
func (e *AppError) Unwrap() error {
	return e.Err
}

// Sentinel errors. Match them with the Is* helpers rather than errors.Is,
// since the helpers compare codes and so also match freshly built errors.
var (
	ErrNotFound      = &AppError{Code: CodeNotFound, Message: "not found"}
	ErrAlreadyExists = &AppError{Code: CodeAlreadyExists, Message: "already exists"}
	ErrValidation    = &AppError{Code: CodeValidation, Message: "validation error"}
	ErrInternal      = &AppError{Code: CodeInternal, Message: "internal error"}
)

// codeStatus maps error codes to HTTP status codes.
var codeStatus = map[int]int{
	CodeNotFound:      http.StatusNotFound,
	CodeAlreadyExists: http.StatusConflict,
	CodeValidation:    http.StatusBadRequest,
	CodeInternal:      http.StatusInternalServerError,
}

// NewAppError creates an AppError.
func NewAppError(code int, message string, err error) *AppError {
	return &AppError{Code: code, Message: message, Err: err}
}

// IsNotFound reports whether err is or wraps an AppError with CodeNotFound.
func IsNotFound(err error) bool { return hasCode(err, CodeNotFound) }

// IsAlreadyExists reports whether err is or wraps an AppError with CodeAlreadyExists.
func IsAlreadyExists(err error) bool { return hasCode(err, CodeAlreadyExists) }

// IsValidation reports whether err is or wraps an AppError with CodeValidation.
func IsValidation(err error) bool { return hasCode(err, CodeValidation) }

// IsInternal reports whether err is or wraps an AppError with CodeInternal.
func IsInternal(err error) bool { return hasCode(err, CodeInternal) }

func hasCode(err error, code int) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code == code
	}
	return false
}

// HTTPStatusCode maps err to an HTTP status. Anything that is not an
// AppError with a known code is a 500.
func HTTPStatusCode(err error) int {
	var appErr *AppError
	if err != nil && errors.As(err, &appErr) {
		if status, ok := codeStatus[appErr.Code]; ok {
			return status
		}
	}
	return http.StatusInternalServerError
}
