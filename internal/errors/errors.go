package errors

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/ZanzyTHEbar/errbuilder-go"
	"github.com/gin-gonic/gin"
)

// ErrorCategory defines the type of error for proper handling
type ErrorCategory string

const (
	CategoryValidation    ErrorCategory = "validation"
	CategoryConfiguration ErrorCategory = "configuration"
	CategoryDimension     ErrorCategory = "dimension"
	CategoryGeneration    ErrorCategory = "generation"
	CategoryNotFound      ErrorCategory = "not_found"
	CategoryInternal      ErrorCategory = "internal"
)

// AppError wraps errbuilder error with category and transport context
type AppError struct {
	*errbuilder.ErrBuilder
	Category   ErrorCategory `json:"category"`
	HTTPStatus int           `json:"http_status"`
	Timestamp  time.Time     `json:"timestamp"`
}

// Error implements the error interface
func (e *AppError) Error() string {
	return fmt.Sprintf("[%s] %s", e.codeString(), e.ErrBuilder.Msg)
}

func (e *AppError) codeString() string {
	switch e.Category {
	case CategoryValidation:
		return "VALIDATION_ERROR"
	case CategoryConfiguration:
		return "CONFIGURATION_ERROR"
	case CategoryDimension:
		return "UNKNOWN_DIMENSION"
	case CategoryGeneration:
		return "GENERATION_ERROR"
	case CategoryNotFound:
		return "NOT_FOUND"
	}
	return "INTERNAL_ERROR"
}

// MarshalJSON renders the transport payload. The embedded builder's own
// marshaler assumes a non-nil cause, so the payload is built explicitly.
func (e *AppError) MarshalJSON() ([]byte, error) {
	payload := struct {
		Category   ErrorCategory `json:"category"`
		Code       string        `json:"code"`
		Message    string        `json:"message"`
		HTTPStatus int           `json:"http_status"`
		Timestamp  time.Time     `json:"timestamp"`
		Cause      string        `json:"cause,omitempty"`
	}{
		Category:   e.Category,
		Code:       e.codeString(),
		Message:    e.ErrBuilder.Msg,
		HTTPStatus: e.HTTPStatus,
		Timestamp:  e.Timestamp,
	}

	if cause := e.ErrBuilder.Unwrap(); cause != nil {
		payload.Cause = cause.Error()
	}

	return json.Marshal(payload)
}

// Unwrap returns the underlying cause
func (e *AppError) Unwrap() error {
	return e.ErrBuilder.Unwrap()
}

// NewAppError creates an AppError from errbuilder with additional context
func NewAppError(builder *errbuilder.ErrBuilder, category ErrorCategory, httpStatus int) *AppError {
	return &AppError{
		ErrBuilder: builder,
		Category:   category,
		HTTPStatus: httpStatus,
		Timestamp:  time.Now(),
	}
}

// NewValidationError creates a validation error for malformed requests
func NewValidationError(message string, details ...interface{}) *AppError {
	builder := errbuilder.New().
		WithCode(errbuilder.CodeInvalidArgument).
		WithMsg(message)

	if len(details) > 0 {
		errorMap := errbuilder.ErrorMap{}
		errorMap.Set("validation_details", fmt.Errorf("%v", details[0]))
		builder = builder.WithDetails(errbuilder.NewErrDetails(errorMap))
	}

	return NewAppError(builder, CategoryValidation, http.StatusBadRequest)
}

// NewConfigurationError signals an invalid rubric or run configuration.
// Detected eagerly, before any simulation work begins.
func NewConfigurationError(message string, details ...interface{}) *AppError {
	builder := errbuilder.New().
		WithCode(errbuilder.CodeFailedPrecondition).
		WithMsg(message)

	if len(details) > 0 {
		errorMap := errbuilder.ErrorMap{}
		errorMap.Set("config_details", fmt.Errorf("%v", details[0]))
		builder = builder.WithDetails(errbuilder.NewErrDetails(errorMap))
	}

	return NewAppError(builder, CategoryConfiguration, http.StatusBadRequest)
}

// NewUnknownDimensionError signals a score map / rubric mismatch
func NewUnknownDimensionError(name string) *AppError {
	errorMap := errbuilder.ErrorMap{}
	errorMap.Set("dimension", errors.New(name))

	builder := errbuilder.New().
		WithCode(errbuilder.CodeInvalidArgument).
		WithMsg(fmt.Sprintf("unknown rubric dimension %q", name)).
		WithDetails(errbuilder.NewErrDetails(errorMap))

	return NewAppError(builder, CategoryDimension, http.StatusBadRequest)
}

// NewGenerationError signals that a single interaction could not produce a
// complete score vector. Carries the offending participant and interaction
// indexes so callers can localize the fault.
func NewGenerationError(participant, interaction int, cause error) *AppError {
	errorMap := errbuilder.ErrorMap{}
	errorMap.Set("participant_index", fmt.Errorf("%d", participant))
	errorMap.Set("interaction_index", fmt.Errorf("%d", interaction))

	builder := errbuilder.New().
		WithCode(errbuilder.CodeInternal).
		WithMsg(fmt.Sprintf("score generation failed for participant %d interaction %d", participant, interaction)).
		WithDetails(errbuilder.NewErrDetails(errorMap))

	if cause != nil {
		builder = builder.WithCause(cause)
	}

	return NewAppError(builder, CategoryGeneration, http.StatusInternalServerError)
}

// NewNotFoundError creates a not found error for a missing resource
func NewNotFoundError(resource, id string) *AppError {
	errorMap := errbuilder.ErrorMap{}
	errorMap.Set(resource, errors.New(id))

	builder := errbuilder.New().
		WithCode(errbuilder.CodeNotFound).
		WithMsg(fmt.Sprintf("%s %q not found", resource, id)).
		WithDetails(errbuilder.NewErrDetails(errorMap))

	return NewAppError(builder, CategoryNotFound, http.StatusNotFound)
}

// NewInternalError creates an internal server error
func NewInternalError(message string, cause error) *AppError {
	builder := errbuilder.New().
		WithCode(errbuilder.CodeInternal).
		WithMsg(message)

	if cause != nil {
		builder = builder.WithCause(cause)
	}

	return NewAppError(builder, CategoryInternal, http.StatusInternalServerError)
}

// IsConfigurationError reports whether err is a configuration error
func IsConfigurationError(err error) bool {
	return hasCategory(err, CategoryConfiguration)
}

// IsUnknownDimensionError reports whether err is a dimension mismatch error
func IsUnknownDimensionError(err error) bool {
	return hasCategory(err, CategoryDimension)
}

// IsGenerationError reports whether err is a generation error
func IsGenerationError(err error) bool {
	return hasCategory(err, CategoryGeneration)
}

// IsNotFoundError reports whether err is a not found error
func IsNotFoundError(err error) bool {
	return hasCategory(err, CategoryNotFound)
}

func hasCategory(err error, category ErrorCategory) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Category == category
	}
	return false
}

// ErrorHandler is a Gin middleware that provides centralized error handling
func ErrorHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) > 0 {
			err := c.Errors.Last().Err

			appErr := ToAppError(err)
			LogError(c, appErr)
			c.JSON(appErr.HTTPStatus, appErr)
			return
		}
	}
}

// RecoveryHandler provides panic recovery with structured error responses
func RecoveryHandler() gin.HandlerFunc {
	return gin.RecoveryWithWriter(nil, func(c *gin.Context, err interface{}) {
		appErr := NewInternalError(
			fmt.Sprintf("Panic recovered: %v", err),
			fmt.Errorf("%v", err),
		)

		LogError(c, appErr)
		c.JSON(appErr.HTTPStatus, appErr)
	})
}

// ToAppError converts any error to an AppError
func ToAppError(err error) *AppError {
	if err == nil {
		return nil
	}

	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}

	if ebErr, ok := err.(*errbuilder.ErrBuilder); ok {
		return NewAppError(ebErr, CategoryInternal, http.StatusInternalServerError)
	}

	return NewInternalError("An unexpected error occurred", err)
}

// LogError logs an error with appropriate level and context
func LogError(c *gin.Context, err *AppError) {
	logEntry := slog.With(
		"error_category", err.Category,
		"error_code", err.ErrBuilder.ErrCode(),
		"http_status", err.HTTPStatus,
		"ip", c.ClientIP(),
		"method", c.Request.Method,
		"path", c.Request.URL.Path,
	)

	errorMsg := err.ErrBuilder.Msg

	switch err.Category {
	case CategoryValidation, CategoryDimension, CategoryNotFound:
		logEntry.Warn(errorMsg)
	case CategoryConfiguration:
		logEntry.Warn(errorMsg, "details", err.ErrBuilder.Details.Errors)
	default:
		if cause := err.ErrBuilder.Unwrap(); cause != nil {
			logEntry.Error(errorMsg, "cause", cause)
		} else {
			logEntry.Error(errorMsg)
		}
	}
}

// WrapError wraps an error with additional context
func WrapError(err error, message string, args ...interface{}) error {
	if err == nil {
		return nil
	}

	contextMsg := fmt.Sprintf(message, args...)
	return fmt.Errorf("%s: %w", contextMsg, err)
}
