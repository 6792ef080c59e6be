package middleware

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"genflow/internal/pkg/token"
)

// AuthMiddleware authenticates the product layer. Requests carry a
// service JWT; the acting end user travels in the X-User-ID header,
// trusted because only authenticated internal callers reach us.
type AuthMiddleware struct {
	issuer *token.Issuer
}

const (
	ctxUserIDKey  = "user_id"
	ctxServiceKey = "service"
)

func NewAuthMiddleware(issuer *token.Issuer) *AuthMiddleware {
	return &AuthMiddleware{issuer: issuer}
}

func (m *AuthMiddleware) RequireServiceAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		var tokenString string
		authHeader := c.GetHeader("Authorization")
		if authHeader != "" && strings.HasPrefix(authHeader, "Bearer ") {
			tokenString = strings.TrimSpace(authHeader[len("Bearer "):])
		}

		if tokenString == "" {
			c.JSON(http.StatusUnauthorized, gin.H{
				"error": "Service token required",
			})
			c.Abort()
			return
		}

		claims, err := m.issuer.Validate(tokenString)
		if err != nil {
			slog.Warn("service token validation failed", "error", err.Error())
			c.JSON(http.StatusUnauthorized, gin.H{
				"error": "Invalid or expired service token",
			})
			c.Abort()
			return
		}

		c.Set(ctxServiceKey, claims.Service)
		c.Set("jwt_claims", map[string]any{
			"service": claims.Service,
		})
		c.Next()
	}
}

// RequireActingUser resolves the end user a request acts on behalf of.
// Must run after RequireServiceAuth.
func (m *AuthMiddleware) RequireActingUser() gin.HandlerFunc {
	return func(c *gin.Context) {
		userIDStr := c.GetHeader("X-User-ID")
		if userIDStr == "" {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": "X-User-ID header required",
			})
			c.Abort()
			return
		}

		userID, err := uuid.Parse(userIDStr)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": "Invalid X-User-ID format",
			})
			c.Abort()
			return
		}

		c.Set(ctxUserIDKey, userID)
		c.Next()
	}
}

func GetUserID(c *gin.Context) (uuid.UUID, bool) {
	userID, exists := c.Get(ctxUserIDKey)
	if !exists {
		return uuid.Nil, false
	}

	id, ok := userID.(uuid.UUID)
	return id, ok
}

func GetService(c *gin.Context) (string, bool) {
	service, exists := c.Get(ctxServiceKey)
	if !exists {
		return "", false
	}

	name, ok := service.(string)
	return name, ok
}
