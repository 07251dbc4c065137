package middlewares

import (
	"net/http"

	"github.com/geocoder89/fleethub/internal/actorctx"
	"github.com/geocoder89/fleethub/internal/domain/user"
	"github.com/gin-gonic/gin"
)

// RequireRole must run after RequireAuth.
func RequireRole(required user.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := actorctx.IdentityFrom(c.Request.Context())

		if !ok {
			abort(c, http.StatusUnauthorized, "unauthorized", "Missing identity context")
			return
		}
		if user.Role(id.Role) != required {
			abort(c, http.StatusForbidden, "forbidden", string(required)+" role required")
			return
		}
		c.Next()
	}
}
