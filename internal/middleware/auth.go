// auth.go validates bearer tokens and places the authenticated actor in the
// request context for the authorization and audit layers.
package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/caseflow/caseflow/internal/auth"
	"github.com/caseflow/caseflow/internal/authz"
	"github.com/caseflow/caseflow/internal/db/models"
)

// ActorKey is the gin.Context key under which the authenticated authz.Actor
// is stored.
const ActorKey = "actor"

// UserSource loads users during authentication; implemented by the user
// repository. A (nil, nil) return means the user does not exist.
type UserSource interface {
	GetUserByID(ctx context.Context, id string) (*models.User, error)
}

// AuthMiddleware validates the Authorization bearer token, loads the user it
// names, and stores the resulting actor in the context. Requests without a
// valid token are rejected with 401.
func AuthMiddleware(users UserSource) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := bearerToken(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "Missing or malformed authorization header",
			})
			return
		}

		claims, err := auth.ValidateJWT(token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "Invalid or expired token",
			})
			return
		}

		user, err := users.GetUserByID(c.Request.Context(), claims.UserID)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
				"error": "Failed to load user",
			})
			return
		}
		if user == nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "User not found",
			})
			return
		}

		setActor(c, user)
		c.Next()
	}
}

// RequireRole aborts with 403 unless the actor's role is at least min.
// Must run after AuthMiddleware.
func RequireRole(min auth.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, ok := ActorFromContext(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "Authentication required",
			})
			return
		}
		if !actor.Role.AtLeast(min) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error": "Insufficient role",
			})
			return
		}
		c.Next()
	}
}

// ActorFromContext returns the authenticated actor set by AuthMiddleware.
func ActorFromContext(c *gin.Context) (authz.Actor, bool) {
	v, exists := c.Get(ActorKey)
	if !exists {
		return authz.Actor{}, false
	}
	actor, ok := v.(authz.Actor)
	return actor, ok && actor.Authenticated
}

func setActor(c *gin.Context, user *models.User) {
	c.Set(ActorKey, authz.Actor{
		ID:            user.ID,
		Role:          user.ParsedRole(),
		Authenticated: true,
	})
	c.Set("user", user)
	c.Set("user_id", user.ID)
}

func bearerToken(c *gin.Context) (string, bool) {
	header := c.GetHeader("Authorization")
	if !strings.HasPrefix(header, "Bearer ") {
		return "", false
	}
	token := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	return token, token != ""
}
