package services

import (
	"errors"
	"fmt"
	"net/http"
)

// ServiceError is the single error shape the tenure services surface.
// Validation rejections and state conflicts are expected, recoverable
// outcomes; execution failures carry their cause verbatim and are the only
// class that should page an operator.
type ServiceError struct {
	Status  int
	Code    string
	Message string
	Cause   error
}

func (e *ServiceError) Error() string {
	if e.Cause == nil {
		return e.Message
	}
	return fmt.Sprintf("%s: %v", e.Message, e.Cause)
}

func (e *ServiceError) Unwrap() error { return e.Cause }

func newServiceError(status int, code, message string, cause error) *ServiceError {
	return &ServiceError{Status: status, Code: code, Message: message, Cause: cause}
}

func newValidationError(message string, cause error) *ServiceError {
	return newServiceError(http.StatusBadRequest, "TENURE_INVALID_BODY", message, cause)
}

func newStateConflictError(message string, cause error) *ServiceError {
	return newServiceError(http.StatusConflict, "TENURE_STATE_CONFLICT", message, cause)
}

func newNotFoundError(message string, cause error) *ServiceError {
	return newServiceError(http.StatusNotFound, "TENURE_NOT_FOUND", message, cause)
}

func newExecutionError(message string, cause error) *ServiceError {
	return newServiceError(http.StatusInternalServerError, "TENURE_EXECUTION_FAILED", message, cause)
}

// IsRejection reports whether err is an expected user-facing rejection
// (validation, state conflict, not found) rather than an execution failure.
func IsRejection(err error) bool {
	var svcErr *ServiceError
	if !errors.As(err, &svcErr) {
		return false
	}
	return svcErr.Status >= 400 && svcErr.Status < 500
}
