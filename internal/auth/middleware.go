package auth

import (
	"net/http"
	"slices"
	"strings"

	"github.com/KevinKickass/HaptiKnitConsole/internal/types"
	"github.com/gin-gonic/gin"
)

// Context keys set by AuthMiddleware.
const (
	ContextUsername    = "username"
	ContextRole        = "role"
	ContextPermissions = "permissions"
)

// BearerToken extracts the token from "Bearer <token>".
func BearerToken(header string) (string, bool) {
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || parts[0] != "Bearer" || parts[1] == "" {
		return "", false
	}
	return parts[1], true
}

// AuthMiddleware validates tokens and enforces authentication
func (a *AuthService) AuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized,
				types.NewErrorResponse(types.CodeUnauthorized, "missing authorization header", nil))
			return
		}

		token, ok := BearerToken(authHeader)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized,
				types.NewErrorResponse(types.CodeUnauthorized, "invalid authorization header format", nil))
			return
		}

		claims, err := a.ValidateToken(token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized,
				types.NewErrorResponse(types.CodeUnauthorized, "invalid or expired token", nil))
			return
		}

		c.Set(ContextUsername, claims.Username)
		c.Set(ContextRole, claims.Role)
		c.Set(ContextPermissions, claims.Role.Permissions())
		c.Next()
	}
}

// RequirePermission checks if user has required permission
func RequirePermission(required Permission) gin.HandlerFunc {
	return func(c *gin.Context) {
		perms, exists := c.Get(ContextPermissions)
		if !exists {
			c.AbortWithStatusJSON(http.StatusForbidden,
				types.NewErrorResponse(types.CodeForbidden, "no permissions found", nil))
			return
		}

		if !slices.Contains(perms.([]Permission), required) {
			c.AbortWithStatusJSON(http.StatusForbidden,
				types.NewErrorResponse(types.CodeForbidden, "insufficient permissions",
					gin.H{"required": string(required)}))
			return
		}

		c.Next()
	}
}
