package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/medledger/medledger-api/internal/handler"
	"github.com/medledger/medledger-api/internal/service/auth"
)

// Session context keys and cookie name
const (
	SessionCookie  = "medledger_session"
	ContextAddress = "session_address"
	ContextRole    = "session_role"
)

type AuthMiddleware struct {
	authService *auth.Service
}

func NewAuthMiddleware(authService *auth.Service) *AuthMiddleware {
	return &AuthMiddleware{authService: authService}
}

// Authenticate verifies the session token and puts the wallet identity in
// the request context. The token is read from the session cookie, falling
// back to a Bearer authorization header for non-browser clients.
func (m *AuthMiddleware) Authenticate() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := m.extractToken(c)
		if token == "" {
			c.JSON(http.StatusUnauthorized, handler.NewErrorResponse("missing session token"))
			c.Abort()
			return
		}

		claims, err := m.authService.ValidateToken(c.Request.Context(), token)
		if err != nil {
			c.JSON(http.StatusUnauthorized, handler.NewErrorResponse("invalid session token"))
			c.Abort()
			return
		}

		c.Set(ContextAddress, claims.Address)
		c.Set(ContextRole, claims.Role)
		c.Next()
	}
}

// RequireRole rejects sessions whose role differs from the given one.
func (m *AuthMiddleware) RequireRole(role string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !strings.EqualFold(c.GetString(ContextRole), role) {
			c.JSON(http.StatusForbidden, handler.NewErrorResponse("insufficient role"))
			c.Abort()
			return
		}
		c.Next()
	}
}

func (m *AuthMiddleware) extractToken(c *gin.Context) string {
	if cookie, err := c.Cookie(SessionCookie); err == nil && cookie != "" {
		return cookie
	}

	authHeader := c.GetHeader("Authorization")
	parts := strings.Split(authHeader, " ")
	if len(parts) == 2 && parts[0] == "Bearer" {
		return parts[1]
	}
	return ""
}

// SessionAddress returns the authenticated wallet address.
func SessionAddress(c *gin.Context) string {
	return c.GetString(ContextAddress)
}

// SessionRole returns the authenticated role.
func SessionRole(c *gin.Context) string {
	return c.GetString(ContextRole)
}
