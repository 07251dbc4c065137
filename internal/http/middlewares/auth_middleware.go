package middlewares

import (
	"net/http"
	"strings"

	"github.com/geocoder89/fleethub/internal/actorctx"
	"github.com/geocoder89/fleethub/internal/auth"
	"github.com/gin-gonic/gin"
)

const (
	msgNoToken      = "Unauthorized: No token provided"
	msgInvalidToken = "Invalid or expired token"
)

// Keep this small interface so tests can fake it easily.
type TokenVerifier interface {
	Verify(token string) (*auth.Claims, error)
}

type AuthMiddleware struct {
	jwt TokenVerifier
}

func NewAuthMiddleware(jwt TokenVerifier) *AuthMiddleware {
	return &AuthMiddleware{jwt: jwt}
}

// RequireAuth answers 401 when no bearer token is presented and 403 when one
// is presented but does not verify. Only verified identities reach handlers.
func (m *AuthMiddleware) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		raw, ok := bearerToken(c.GetHeader("Authorization"))
		if !ok {
			abort(c, http.StatusUnauthorized, "unauthorized", msgNoToken)
			return
		}

		claims, err := m.jwt.Verify(raw)
		if err != nil {
			abort(c, http.StatusForbidden, "forbidden", msgInvalidToken)
			return
		}

		ctx := actorctx.WithIdentity(c.Request.Context(), claims.Identity())
		c.Request = c.Request.WithContext(ctx)

		c.Next()
	}
}

func bearerToken(header string) (string, bool) {
	scheme, token, found := strings.Cut(strings.TrimSpace(header), " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}

	token = strings.TrimSpace(token)

	return token, token != ""
}
