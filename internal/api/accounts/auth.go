// Package accounts implements authentication endpoints: password login, token
// refresh, and the current-actor profile.
package accounts

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"golang.org/x/crypto/bcrypt"

	"github.com/caseflow/caseflow/internal/auth"
	"github.com/caseflow/caseflow/internal/config"
	"github.com/caseflow/caseflow/internal/db/repositories"
	"github.com/caseflow/caseflow/internal/middleware"
)

// AuthHandlers handles authentication endpoints
type AuthHandlers struct {
	cfg   *config.Config
	users *repositories.UserRepository
}

// NewAuthHandlers creates a new AuthHandlers instance
func NewAuthHandlers(cfg *config.Config, users *repositories.UserRepository) *AuthHandlers {
	return &AuthHandlers{cfg: cfg, users: users}
}

// LoginRequest is the password login payload
type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

// LoginHandler authenticates by email and password and issues a token pair
// POST /api/v1/auth/login
func (h *AuthHandlers) LoginHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req LoginRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
			return
		}

		user, err := h.users.GetUserByEmail(c.Request.Context(), req.Email)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Login failed"})
			return
		}

		// Same response for unknown email and wrong password
		if user == nil || !user.Active {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid credentials"})
			return
		}
		if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)) != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid credentials"})
			return
		}

		accessToken, err := auth.GenerateJWT(user.ID, user.Email, user.ParsedRole(), h.cfg.Auth.TokenExpiry)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Login failed"})
			return
		}
		refreshToken, err := auth.GenerateJWT(user.ID, user.Email, user.ParsedRole(), h.cfg.Auth.RefreshTokenExpiry)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Login failed"})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"access_token":  accessToken,
			"refresh_token": refreshToken,
			"expires_in":    int(h.cfg.Auth.TokenExpiry.Seconds()),
			"user": gin.H{
				"id":    user.ID,
				"email": user.Email,
				"name":  user.Name,
				"role":  user.Role,
			},
		})
	}
}

// RefreshRequest carries the refresh token
type RefreshRequest struct {
	RefreshToken string `json:"refresh_token" binding:"required"`
}

// RefreshHandler exchanges a valid refresh token for a new access token
// POST /api/v1/auth/refresh
func (h *AuthHandlers) RefreshHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req RefreshRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
			return
		}

		claims, err := auth.ValidateJWT(req.RefreshToken)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid refresh token"})
			return
		}

		// Re-check the account: a deactivated user must not refresh
		user, err := h.users.GetUserByID(c.Request.Context(), claims.UserID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Refresh failed"})
			return
		}
		if user == nil || !user.Active {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid refresh token"})
			return
		}

		accessToken, err := auth.GenerateJWT(user.ID, user.Email, user.ParsedRole(), h.cfg.Auth.TokenExpiry)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Refresh failed"})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"access_token": accessToken,
			"expires_in":   int(h.cfg.Auth.TokenExpiry.Seconds()),
		})
	}
}

// MeHandler returns the authenticated actor's profile
// GET /api/v1/auth/me
func (h *AuthHandlers) MeHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, ok := middleware.ActorFromContext(c)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Authentication required"})
			return
		}

		user, err := h.users.GetUserByID(c.Request.Context(), actor.ID)
		if err != nil || user == nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load profile"})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"id":     user.ID,
			"email":  user.Email,
			"name":   user.Name,
			"role":   user.Role,
			"active": user.Active,
		})
	}
}
