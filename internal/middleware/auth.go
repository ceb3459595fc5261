package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/jaidev-km/kiranakart-backend/utils"
)

func AuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.JSON(http.StatusUnauthorized, utils.ErrorResponse("Authorization header is required"))
			c.Abort()
			return
		}

		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			c.JSON(http.StatusUnauthorized, utils.ErrorResponse("Authorization header must be Bearer token"))
			c.Abort()
			return
		}

		tokenString := parts[1]
		claims, err := utils.VerifyToken(tokenString)
		if err != nil {
			// Return 401 Unauthorized for token errors to trigger frontend refresh
			c.JSON(http.StatusUnauthorized, utils.ErrorResponse(err.Error()))
			c.Abort()
			return
		}

		// Store claims in context
		c.Set("userId", claims.UserID)
		c.Set("role", claims.Role)
		c.Next()
	}
}

// OptionalAuth decodes a bearer token when one is present but never aborts
// the request. Checkout serves guests as well as logged-in clients.
func OptionalAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.Next()
			return
		}

		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			c.Next()
			return
		}

		if claims, err := utils.VerifyToken(parts[1]); err == nil {
			c.Set("userId", claims.UserID)
			c.Set("role", claims.Role)
		}
		c.Next()
	}
}

func RoleMiddleware(allowedRoles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		role, exists := c.Get("role")
		if !exists {
			c.JSON(http.StatusUnauthorized, utils.ErrorResponse("Role not found in context"))
			c.Abort()
			return
		}

		userRole := role.(string)
		isAllowed := false
		for _, r := range allowedRoles {
			if strings.EqualFold(userRole, r) {
				isAllowed = true
				break
			}
		}

		if !isAllowed {
			c.JSON(http.StatusForbidden, utils.ErrorResponse("You do not have permission to access this resource"))
			c.Abort()
			return
		}

		c.Next()
	}
}

// ResolveIdentity determines who the order belongs to: the authenticated
// user when present, otherwise the client_id from the request body, otherwise
// a freshly minted guest identity. An explicitly empty client_id is rejected
// rather than silently promoted to a guest.
func ResolveIdentity(c *gin.Context, bodyClientID *string) (string, bool, error) {
	if userID, ok := c.Get("userId"); ok {
		if id, ok := userID.(string); ok && id != "" {
			return id, false, nil
		}
	}

	if bodyClientID != nil {
		id := strings.TrimSpace(*bodyClientID)
		if id == "" {
			return "", false, ErrEmptyClientID
		}
		return id, false, nil
	}

	return "guest_" + uuid.NewString(), true, nil
}
