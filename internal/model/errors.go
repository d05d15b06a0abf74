package model

import "net/http"

// Error codes returned in API error bodies.
const (
	CodeValidation      = "VALIDATION_ERROR"
	CodeUnauthorized    = "UNAUTHORIZED"
	CodeNotFound        = "NOT_FOUND"
	CodeConflict        = "CONFLICT"
	CodePayloadTooLarge = "PAYLOAD_TOO_LARGE"
	CodeInternal        = "INTERNAL_ERROR"
)

// InternalErrorMessage is the only message ever shown for unexpected failures.
const InternalErrorMessage = "An unexpected error occurred"

// AppError is an error with a stable code and HTTP status that is safe to
// show to clients.
type AppError struct {
	Code    string
	Message string
	Status  int
}

func (e *AppError) Error() string { return e.Code + ": " + e.Message }

func NewValidationError(msg string) *AppError {
	return &AppError{Code: CodeValidation, Message: msg, Status: http.StatusBadRequest}
}

func NewUnauthorizedError(msg string) *AppError {
	return &AppError{Code: CodeUnauthorized, Message: msg, Status: http.StatusUnauthorized}
}

func NewNotFoundError(msg string) *AppError {
	return &AppError{Code: CodeNotFound, Message: msg, Status: http.StatusNotFound}
}

func NewConflictError(msg string) *AppError {
	return &AppError{Code: CodeConflict, Message: msg, Status: http.StatusConflict}
}

func NewPayloadTooLargeError(msg string) *AppError {
	return &AppError{Code: CodePayloadTooLarge, Message: msg, Status: http.StatusRequestEntityTooLarge}
}
