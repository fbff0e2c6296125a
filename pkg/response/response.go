package response

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/ksred/minimarbles/internal/types"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

// ErrorResponse is the body of every non-2xx JSON response
type ErrorResponse struct {
	Error *Error `json:"error"`
}

// Error represents an error response
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Common error codes
const (
	ErrCodeNotFound          = "NOT_FOUND"
	ErrCodeBadRequest        = "BAD_REQUEST"
	ErrCodeInternalError     = "INTERNAL_ERROR"
	ErrCodeValidationFailed  = "VALIDATION_FAILED"
	ErrCodeInvalidState      = "INVALID_STATE"
	ErrCodeDuplicateResource = "DUPLICATE_RESOURCE"
	ErrCodeRateLimited       = "RATE_LIMITED"
	ErrCodeUnavailable       = "UNAVAILABLE"
)

// Handle processes the error and returns appropriate response
func Handle(c *gin.Context, data interface{}, err error) {
	if err == nil {
		Success(c, data)
		return
	}

	switch {
	case errors.Is(err, types.ErrValidation):
		ValidationFailed(c, err.Error())
	case errors.Is(err, types.ErrNotFound):
		NotFound(c, err.Error())
	case errors.Is(err, gorm.ErrRecordNotFound):
		NotFound(c, "Resource not found")
	case errors.Is(err, types.ErrInvalidState):
		InvalidState(c, err.Error())
	case errors.Is(err, gorm.ErrDuplicatedKey):
		Conflict(c, "Resource already exists")
	default:
		handleError(c, err)
	}
}

// Success sends the resource as the response body, 201 for POST and 200 otherwise
func Success(c *gin.Context, data interface{}) {
	status := http.StatusOK
	if c.Request.Method == http.MethodPost {
		status = http.StatusCreated
	}
	c.JSON(status, data)
}

// OK sends a 200 response regardless of the request method
func OK(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, data)
}

// NotFound sends a 404 response
func NotFound(c *gin.Context, message string) {
	abort(c, http.StatusNotFound, ErrCodeNotFound, message)
}

// BadRequest sends a 400 response
func BadRequest(c *gin.Context, message string) {
	abort(c, http.StatusBadRequest, ErrCodeBadRequest, message)
}

// ValidationFailed sends a 400 response for input rejected by a service
func ValidationFailed(c *gin.Context, message string) {
	abort(c, http.StatusBadRequest, ErrCodeValidationFailed, message)
}

// InvalidState sends a 409 response for an operation the resource's state does not allow
func InvalidState(c *gin.Context, message string) {
	abort(c, http.StatusConflict, ErrCodeInvalidState, message)
}

// Conflict sends a 409 response
func Conflict(c *gin.Context, message string) {
	abort(c, http.StatusConflict, ErrCodeDuplicateResource, message)
}

// TooManyRequests sends a 429 response
func TooManyRequests(c *gin.Context, message string) {
	abort(c, http.StatusTooManyRequests, ErrCodeRateLimited, message)
}

// Unavailable sends a 503 response
func Unavailable(c *gin.Context, message string) {
	abort(c, http.StatusServiceUnavailable, ErrCodeUnavailable, message)
}

// InternalError sends a 500 response
func InternalError(c *gin.Context, message string) {
	abort(c, http.StatusInternalServerError, ErrCodeInternalError, message)
}

func abort(c *gin.Context, status int, code, message string) {
	c.AbortWithStatusJSON(status, ErrorResponse{
		Error: &Error{
			Code:    code,
			Message: message,
		},
	})
}

// handleError logs unexpected errors and hides their detail from the client
func handleError(c *gin.Context, err error) {
	log.Error().
		Err(err).
		Str("method", c.Request.Method).
		Str("path", c.Request.URL.Path).
		Msg("unhandled error")

	InternalError(c, "An unexpected error occurred")
}
