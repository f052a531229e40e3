package middleware

import (
	"slices"
	"strings"

	"github.com/boscod/trackwatch/internal/models"
	"github.com/boscod/trackwatch/internal/services"
	"github.com/gofiber/fiber/v3"
)

const (
	// ContextKeyUserID is the key for user ID in context
	ContextKeyUserID = "user_id"
	// ContextKeyUsername is the key for username in context
	ContextKeyUsername = "username"
	// ContextKeyRole is the key for the user role in context
	ContextKeyRole = "role"

	// TokenCookie holds the session token for browser clients.
	TokenCookie = "token"
)

// Authenticate validates the session token of a request, taken from the
// Authorization header or the token cookie, and stores the claims in
// Locals.
func Authenticate(c fiber.Ctx, jwtService *services.JWTService) (*services.JWTClaims, error) {
	var token string
	if authHeader := c.Get("Authorization"); strings.HasPrefix(authHeader, "Bearer ") {
		token = strings.TrimPrefix(authHeader, "Bearer ")
	}
	if token == "" {
		token = c.Cookies(TokenCookie)
	}
	if token == "" {
		return nil, fiber.NewError(fiber.StatusUnauthorized, "Authentication required")
	}

	claims, err := jwtService.ValidateToken(token)
	if err != nil {
		return nil, fiber.NewError(fiber.StatusUnauthorized, "Invalid or expired token")
	}

	c.Locals(ContextKeyUserID, claims.UserID)
	c.Locals(ContextKeyUsername, claims.Username)
	c.Locals(ContextKeyRole, claims.Role)
	return claims, nil
}

// AuthMiddleware creates a middleware that requires a valid session token
func AuthMiddleware(jwtService *services.JWTService) fiber.Handler {
	return func(c fiber.Ctx) error {
		if _, err := Authenticate(c, jwtService); err != nil {
			return err
		}
		return c.Next()
	}
}

// RequireRoles rejects authenticated users whose role is not listed.
// It must run after AuthMiddleware.
func RequireRoles(roles ...models.Role) fiber.Handler {
	return func(c fiber.Ctx) error {
		if !slices.Contains(roles, GetRole(c)) {
			return fiber.NewError(fiber.StatusForbidden, "Insufficient role")
		}
		return c.Next()
	}
}

// GetUserID gets the user ID from context
func GetUserID(c fiber.Ctx) int64 {
	if id, ok := c.Locals(ContextKeyUserID).(int64); ok {
		return id
	}
	return 0
}

// GetUsername gets the username from context
func GetUsername(c fiber.Ctx) string {
	if username, ok := c.Locals(ContextKeyUsername).(string); ok {
		return username
	}
	return ""
}

// GetRole gets the user role from context
func GetRole(c fiber.Ctx) models.Role {
	if role, ok := c.Locals(ContextKeyRole).(models.Role); ok {
		return role
	}
	return ""
}
