package common

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
)

// AppError carries an HTTP status alongside a user-safe message.
type AppError struct {
	Status  int
	Message string
	Err     error
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *AppError) Unwrap() error { return e.Err }

// NewNotFoundError builds a 404 application error.
func NewNotFoundError(message string) *AppError {
	return &AppError{Status: http.StatusNotFound, Message: message}
}

// NewBadRequestError builds a 400 application error.
func NewBadRequestError(message string) *AppError {
	return &AppError{Status: http.StatusBadRequest, Message: message}
}

// NewConflictError builds a 409 application error.
func NewConflictError(message string) *AppError {
	return &AppError{Status: http.StatusConflict, Message: message}
}

// NewForbiddenError builds a 403 application error.
func NewForbiddenError(message string) *AppError {
	return &AppError{Status: http.StatusForbidden, Message: message}
}

// NewInternalError wraps an unexpected failure as a 500.
func NewInternalError(message string, err error) *AppError {
	return &AppError{Status: http.StatusInternalServerError, Message: message, Err: err}
}

// AppErrorResponse writes an AppError with the standard envelope.
func AppErrorResponse(c *gin.Context, err *AppError) {
	ErrorResponse(c, err.Status, err.Message)
}
