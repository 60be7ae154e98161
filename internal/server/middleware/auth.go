package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

const bearerPrefix = "bearer "

// accessTokenParam carries the token on WebSocket upgrades, where browsers cannot set headers.
const accessTokenParam = "access_token"

// TokenValidator validates an access token and returns its subject and role. *security.TokenProvider satisfies it.
type TokenValidator interface {
	ValidateAccess(token string) (userID, role string, err error)
}

// Auth returns middleware that validates the Bearer token and puts the identity on the request context.
// Requests without a valid token are aborted with 401.
func Auth(tokens TokenValidator) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := extractBearer(c.GetHeader("Authorization"))
		if token == "" {
			token = strings.TrimSpace(c.Query(accessTokenParam))
		}
		if token == "" {
			abort(c, http.StatusUnauthorized, "missing_authorization", "missing or invalid authorization")
			return
		}
		userID, role, err := tokens.ValidateAccess(token)
		if err != nil {
			log.Ctx(c.Request.Context()).Debug().Err(err).Msg("auth: token rejected")
			abort(c, http.StatusUnauthorized, "invalid_token", "missing or invalid authorization")
			return
		}
		c.Request = c.Request.WithContext(WithIdentity(c.Request.Context(), userID, role))
		c.Next()
	}
}

// RequireRole aborts with 403 unless the authenticated role is one of roles.
func RequireRole(roles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		role, _ := GetRole(c.Request.Context())
		for _, r := range roles {
			if role == r {
				c.Next()
				return
			}
		}
		abort(c, http.StatusForbidden, "forbidden", "this action requires role "+strings.Join(roles, " or "))
	}
}

// extractBearer returns the token from an Authorization header value, or "" if missing or malformed.
func extractBearer(v string) string {
	v = strings.TrimSpace(v)
	if len(v) < len(bearerPrefix) {
		return ""
	}
	if !strings.EqualFold(v[:len(bearerPrefix)], bearerPrefix) {
		return ""
	}
	return strings.TrimSpace(v[len(bearerPrefix):])
}

func abort(c *gin.Context, status int, code, msg string) {
	c.AbortWithStatusJSON(status, gin.H{"code": code, "msg": msg})
}
