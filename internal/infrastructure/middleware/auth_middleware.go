package middleware

import (
	"net/http"
	"strings"

	"homehub/internal/core/domain"
	"homehub/internal/core/services"

	"github.com/gin-gonic/gin"
)

// StreamTokenCookie is the cookie name browsers carry after login; the
// segment endpoint accepts it so <video> elements work without headers.
const StreamTokenCookie = "homehub_token"

func AuthMiddleware(authService services.AuthService) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "authorization header required"})
			c.Abort()
			return
		}

		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid authorization header format"})
			c.Abort()
			return
		}

		claims, err := authService.ValidateToken(parts[1])
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
			c.Abort()
			return
		}

		// Store user info in context
		c.Set("user_id", claims.UserID)
		c.Set("username", claims.Username)
		c.Set("role", claims.Role)
		c.Next()
	}
}

// RoleMiddleware gates a route group on the caller's role. Must run
// after AuthMiddleware.
func RoleMiddleware(authService services.AuthService, required domain.UserRole) gin.HandlerFunc {
	return func(c *gin.Context) {
		roleVal, exists := c.Get("role")
		if !exists {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
			c.Abort()
			return
		}

		role, ok := roleVal.(domain.UserRole)
		if !ok || authService.CheckRole(role, required) != nil {
			c.JSON(http.StatusForbidden, gin.H{"error": "insufficient permissions"})
			c.Abort()
			return
		}
		c.Next()
	}
}

// StreamAuthMiddleware authenticates segment fetches. Media players
// cannot always attach headers, so the token is accepted in three
// forms, checked in a fixed order: the token query parameter, the
// Authorization bearer header, then the session cookie. All three
// funnel through the same verification routine; any failure is a 401
// regardless of the form used.
func StreamAuthMiddleware(authService services.AuthService) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := extractStreamToken(c)
		if token == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
			c.Abort()
			return
		}

		claims, err := authService.ValidateAnyToken(token)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			c.Abort()
			return
		}

		c.Set("user_id", claims.UserID)
		c.Next()
	}
}

func extractStreamToken(c *gin.Context) string {
	if token := c.Query("token"); token != "" {
		return token
	}

	authHeader := c.GetHeader("Authorization")
	if parts := strings.Split(authHeader, " "); len(parts) == 2 && parts[0] == "Bearer" {
		return parts[1]
	}

	if cookie, err := c.Cookie(StreamTokenCookie); err == nil {
		return cookie
	}
	return ""
}
