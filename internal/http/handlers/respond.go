package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/geocoder89/fleethub/internal/http/middlewares"
	"github.com/gin-gonic/gin"
)

// APIError is the body of every non-2xx response. Error is the human
// message; Code is stable for clients to branch on.
type APIError struct {
	Error     string      `json:"error"`
	Code      string      `json:"code"`
	RequestID string      `json:"requestId,omitempty"`
	Details   interface{} `json:"details,omitempty"`
}

func RespondError(ctx *gin.Context, status int, code, message string, details interface{}) {
	ctx.JSON(status, APIError{
		Error:     message,
		Code:      code,
		RequestID: middlewares.RequestIDFrom(ctx),
		Details:   details,
	})
}

func RespondBadRequest(ctx *gin.Context, message string, details interface{}) {
	RespondError(ctx, http.StatusBadRequest, "invalid_request", message, details)
}

func RespondUnauthorized(ctx *gin.Context, message string) {
	RespondError(ctx, http.StatusUnauthorized, "unauthorized", message, nil)
}

func RespondNotFound(ctx *gin.Context, message string) {
	RespondError(ctx, http.StatusNotFound, "not_found", message, nil)
}

func RespondConflict(ctx *gin.Context, code, message string) {
	RespondError(ctx, http.StatusConflict, code, message, nil)
}

func RespondTooManyRequests(ctx *gin.Context, retryAfter time.Duration, message string) {
	secs := int(retryAfter.Round(time.Second).Seconds())
	if secs < 1 {
		secs = 1
	}

	ctx.Header("Retry-After", strconv.Itoa(secs))
	RespondError(ctx, http.StatusTooManyRequests, "too_many_attempts", message, nil)
}

// RespondInternal never echoes the cause; callers log it first.
func RespondInternal(ctx *gin.Context) {
	RespondError(ctx, http.StatusInternalServerError, "internal_error", "Internal server error", nil)
}
