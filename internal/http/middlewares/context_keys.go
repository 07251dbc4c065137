package middlewares

import "github.com/gin-gonic/gin"

// CtxRequestID is the gin context key the request id is stored under.
const CtxRequestID = "request_id"

func RequestIDFrom(ctx *gin.Context) string {
	if v, ok := ctx.Get(CtxRequestID); ok {
		if s, ok := v.(string); ok && s != "" {
			return s
		}
	}

	return ctx.GetHeader(requestIDHeader)
}

// abort writes the same error shape the handlers use.
func abort(ctx *gin.Context, status int, code, message string) {
	ctx.AbortWithStatusJSON(status, gin.H{
		"error":     message,
		"code":      code,
		"requestId": RequestIDFrom(ctx),
	})
}
