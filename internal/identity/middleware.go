package identity

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/jmerrifield20/socialmedia/internal/social"
)

const ctxSessionClaims = "social_session_claims"

// RequireSession returns a Gin middleware that enforces a valid Bearer
// session token.
//
// On success it injects the *SessionClaims into the context; handlers read
// the caller with CallerFromCtx.
func RequireSession(sessions *SessionIssuer) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if !strings.HasPrefix(authHeader, "Bearer ") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "Bearer session token required",
			})
			return
		}

		claims, err := sessions.Verify(strings.TrimPrefix(authHeader, "Bearer "))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "invalid session token: " + err.Error(),
			})
			return
		}

		c.Set(ctxSessionClaims, claims)
		c.Next()
	}
}

// OptionalSession is like RequireSession but never aborts; it skips
// injection when the header is absent or the token fails verification.
func OptionalSession(sessions *SessionIssuer) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if strings.HasPrefix(authHeader, "Bearer ") {
			if claims, err := sessions.Verify(strings.TrimPrefix(authHeader, "Bearer ")); err == nil {
				c.Set(ctxSessionClaims, claims)
			}
		}
		c.Next()
	}
}

// SessionFromCtx returns the claims injected by RequireSession, or nil.
func SessionFromCtx(c *gin.Context) *SessionClaims {
	v, _ := c.Get(ctxSessionClaims)
	claims, _ := v.(*SessionClaims)
	return claims
}

// CallerFromCtx returns the authenticated caller, or "" when the request
// carries no valid session.
func CallerFromCtx(c *gin.Context) social.Identity {
	if claims := SessionFromCtx(c); claims != nil {
		return claims.Caller()
	}
	return ""
}
