package auth

import (
	"strings"

	"github.com/gin-gonic/gin"

	"schoolrecords/internal/logger"
	"schoolrecords/internal/records"
)

// ClaimsKey is the gin context key holding parsed claims.
const ClaimsKey = "claims"

// Identify reads an optional bearer token and attaches the caller as the
// request actor. Requests without a valid token proceed as the system actor.
func Identify(issuer *Issuer) gin.HandlerFunc {
	return func(c *gin.Context) {
		authz := c.GetHeader("Authorization")
		if authz == "" || !strings.HasPrefix(strings.ToLower(authz), "bearer ") {
			c.Next()
			return
		}
		claims, err := issuer.Parse(strings.TrimSpace(authz[len("bearer "):]))
		if err != nil {
			logger.Debug().Err(err).Str("path", c.Request.URL.Path).Msg("ignoring invalid bearer token")
			c.Next()
			return
		}
		name := claims.DisplayName
		if name == "" {
			name = claims.Username
		}
		c.Set(ClaimsKey, claims)
		c.Request = c.Request.WithContext(records.WithActor(c.Request.Context(), records.Actor{Name: name, Role: claims.Role}))
		c.Next()
	}
}
