package middleware

import (
	"errors"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/imaad666/W-Chhatt/pkg/jwt"
	"github.com/imaad666/W-Chhatt/pkg/response"
)

const (
	UserIDKey     = "user_id"
	UsernameKey   = "username"
	RolesKey      = "roles"
	AuthHeaderKey = "Authorization"
	BearerPrefix  = "Bearer "
)

// TokenValidator validates an access token. *jwt.Manager satisfies it.
type TokenValidator interface {
	ValidateAccessToken(token string) (*jwt.Claims, error)
}

// AuthMiddleware authenticates requests carrying a bearer token.
type AuthMiddleware struct {
	validator TokenValidator
}

// NewAuthMiddleware creates a new auth middleware.
func NewAuthMiddleware(validator TokenValidator) *AuthMiddleware {
	return &AuthMiddleware{validator: validator}
}

// RequireAuth rejects requests without a valid access token and stores the
// caller's identity in the gin context.
func (m *AuthMiddleware) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := BearerToken(c.GetHeader(AuthHeaderKey))
		if !ok {
			response.Unauthorized(c, "missing or malformed authorization header")
			return
		}

		claims, err := m.validator.ValidateAccessToken(token)
		if err != nil {
			switch {
			case errors.Is(err, jwt.ErrExpiredToken):
				response.Unauthorized(c, "token has expired")
			case errors.Is(err, jwt.ErrRevokedToken):
				response.Unauthorized(c, "token has been revoked")
			default:
				response.Unauthorized(c, "invalid token")
			}
			return
		}

		c.Set(UserIDKey, claims.UserID)
		c.Set(UsernameKey, claims.Username)
		c.Set(RolesKey, claims.Roles)

		c.Next()
	}
}

// BearerToken extracts the token from an Authorization header value.
func BearerToken(header string) (string, bool) {
	if !strings.HasPrefix(header, BearerPrefix) {
		return "", false
	}
	token := strings.TrimSpace(strings.TrimPrefix(header, BearerPrefix))
	return token, token != ""
}

// GetUserID extracts user ID from Gin context.
func GetUserID(c *gin.Context) string {
	return c.GetString(UserIDKey)
}

// GetUsername extracts username from Gin context.
func GetUsername(c *gin.Context) string {
	return c.GetString(UsernameKey)
}

// GetRoles extracts roles from Gin context.
func GetRoles(c *gin.Context) []string {
	if roles, ok := c.Get(RolesKey); ok {
		if r, ok := roles.([]string); ok {
			return r
		}
	}
	return nil
}
