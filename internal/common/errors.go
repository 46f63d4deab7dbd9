package common

import (
	"errors"
	"net/http"
)

// Error codes surfaced to clients
const (
	CodeValidation          = "VALIDATION_ERROR"
	CodeUnauthorized        = "UNAUTHORIZED"
	CodeInsufficientCoins   = "INSUFFICIENT_COINS"
	CodeForbidden           = "FORBIDDEN"
	CodeNotFound            = "NOT_FOUND"
	CodeInvalidSignature    = "INVALID_SIGNATURE"
	CodeTransactionNotFound = "TRANSACTION_NOT_FOUND"
	CodeConflict            = "CONFLICT"
	CodeRateLimited         = "RATE_LIMITED"
	CodeInternal            = "INTERNAL_SERVER_ERROR"
)

// AppError is a classified failure. Two AppErrors match under errors.Is when their codes match.
type AppError struct {
	Status  int
	Code    string
	Message string
	Err     error
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *AppError) Unwrap() error { return e.Err }

func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	return ok && t.Code == e.Code
}

// Business logic errors
var (
	ErrValidation          = &AppError{Status: http.StatusBadRequest, Code: CodeValidation, Message: "invalid input"}
	ErrUnauthorized        = &AppError{Status: http.StatusUnauthorized, Code: CodeUnauthorized, Message: "unauthorized"}
	ErrInsufficientCoins   = &AppError{Status: http.StatusPaymentRequired, Code: CodeInsufficientCoins, Message: "Insufficient coins"}
	ErrForbidden           = &AppError{Status: http.StatusForbidden, Code: CodeForbidden, Message: "forbidden"}
	ErrNotFound            = &AppError{Status: http.StatusNotFound, Code: CodeNotFound, Message: "resource not found"}
	ErrInvalidSignature    = &AppError{Status: http.StatusBadRequest, Code: CodeInvalidSignature, Message: "Invalid payment signature"}
	ErrTransactionNotFound = &AppError{Status: http.StatusNotFound, Code: CodeTransactionNotFound, Message: "Payment transaction not found"}
	ErrConflict            = &AppError{Status: http.StatusConflict, Code: CodeConflict, Message: "conflict"}
)

// NewValidationError 400 with a specific message
func NewValidationError(message string) *AppError {
	return &AppError{Status: http.StatusBadRequest, Code: CodeValidation, Message: message}
}

// NewNotFoundError 404 with a specific message
func NewNotFoundError(message string) *AppError {
	return &AppError{Status: http.StatusNotFound, Code: CodeNotFound, Message: message}
}

// NewForbiddenError 403 with a specific message
func NewForbiddenError(message string) *AppError {
	return &AppError{Status: http.StatusForbidden, Code: CodeForbidden, Message: message}
}

// Classify returns the AppError carried by err, or a generic internal error.
func Classify(err error) *AppError {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	return &AppError{Status: http.StatusInternalServerError, Code: CodeInternal, Message: "internal server error", Err: err}
}
