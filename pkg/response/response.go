package response

import (
	"errors"
	"net/http"
	"time"

	"pix-gateway/pkg/apperror"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const requestIDKey = "request_id"

// SuccessResponse wraps every successful payload.
type SuccessResponse struct {
	Data      interface{} `json:"data"`
	RequestID string      `json:"request_id"`
	Timestamp string      `json:"timestamp"`
}

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	ErrorCode string `json:"error_code"`
	Message   string `json:"message"`
	RequestID string `json:"request_id"`
	Timestamp string `json:"timestamp"`
}

// OK sends a 200 response with data.
func OK(c *gin.Context, data interface{}) {
	success(c, http.StatusOK, data)
}

// Created sends a 201 response with data.
func Created(c *gin.Context, data interface{}) {
	success(c, http.StatusCreated, data)
}

// Error maps err to its AppError status and code. Oversized bodies become
// SYS_004; anything else unrecognised is a SYS_000 500 with no detail.
func Error(c *gin.Context, err error) {
	appErr := FromError(err)
	c.JSON(appErr.HTTPStatus, ErrorResponse{
		ErrorCode: appErr.Code,
		Message:   appErr.Message,
		RequestID: requestID(c),
		Timestamp: timestamp(),
	})
}

// FromError returns the AppError carried by err, or the one it maps to.
func FromError(err error) *apperror.AppError {
	var appErr *apperror.AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	var maxErr *http.MaxBytesError
	if errors.As(err, &maxErr) {
		return apperror.ErrPayloadTooLarge()
	}
	return apperror.Wrap("SYS_000", "Internal server error", http.StatusInternalServerError, err)
}

func success(c *gin.Context, status int, data interface{}) {
	c.JSON(status, SuccessResponse{
		Data:      data,
		RequestID: requestID(c),
		Timestamp: timestamp(),
	})
}

// requestID prefers the id set by the RequestID middleware.
func requestID(c *gin.Context) string {
	if id := c.GetString(requestIDKey); id != "" {
		return id
	}
	if c.Request != nil {
		if id := c.GetHeader("X-Request-ID"); id != "" {
			return id
		}
	}
	return uuid.NewString()
}

func timestamp() string {
	return time.Now().UTC().Format(time.RFC3339)
}
