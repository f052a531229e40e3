package handlers

import (
	"time"

	"github.com/boscod/trackwatch/internal/middleware"
	"github.com/boscod/trackwatch/internal/services"
	"github.com/gofiber/fiber/v3"
)

type AuthHandler struct {
	authService  *services.AuthService
	userService  *services.UserService
	jwtService   *services.JWTService
	secureCookie bool
}

func NewAuthHandler(authService *services.AuthService, userService *services.UserService, jwtService *services.JWTService, secureCookie bool) *AuthHandler {
	return &AuthHandler{
		authService:  authService,
		userService:  userService,
		jwtService:   jwtService,
		secureCookie: secureCookie,
	}
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// SetupStatus reports whether the first superadmin still has to be created
func (h *AuthHandler) SetupStatus(c fiber.Ctx) error {
	ctx, cancel := requestContext(c)
	defer cancel()

	needed, err := h.userService.NeedsSetup(ctx)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"setup_required": needed})
}

// Setup creates the first superadmin and signs it in
func (h *AuthHandler) Setup(c fiber.Ctx) error {
	var req services.NewUserInput
	if err := bindJSON(c, &req); err != nil {
		return err
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	user, err := h.userService.Setup(ctx, &req)
	if err != nil {
		return err
	}

	token, err := h.authService.GenerateToken(user)
	if err != nil {
		return err
	}
	h.setAuthCookie(c, token)

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"user":  user.ToResponse(),
		"token": token,
	})
}

// Login exchanges credentials for a session token, in the body and as a cookie
func (h *AuthHandler) Login(c fiber.Ctx) error {
	var req loginRequest
	if err := bindJSON(c, &req); err != nil {
		return err
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	user, token, err := h.authService.Login(ctx, req.Username, req.Password)
	if err != nil {
		return err
	}
	h.setAuthCookie(c, token)

	return c.JSON(fiber.Map{
		"user":  user.ToResponse(),
		"token": token,
	})
}

// Logout expires the session cookie. Bearer tokens stay valid until
// they expire.
func (h *AuthHandler) Logout(c fiber.Ctx) error {
	h.sessionCookie(c, "", time.Unix(0, 0))

	return c.JSON(fiber.Map{
		"message": "Logged out successfully",
	})
}

// Me reloads the signed-in user so role changes show up
func (h *AuthHandler) Me(c fiber.Ctx) error {
	ctx, cancel := requestContext(c)
	defer cancel()

	user, err := h.authService.GetUserByID(ctx, middleware.GetUserID(c))
	if err != nil {
		return err
	}

	return c.JSON(fiber.Map{
		"user": user.ToResponse(),
	})
}

func (h *AuthHandler) setAuthCookie(c fiber.Ctx, token string) {
	h.sessionCookie(c, token, time.Now().Add(h.jwtService.GetExpiry()))
}

// sessionCookie is scoped to /api, the only prefix the dashboard calls.
func (h *AuthHandler) sessionCookie(c fiber.Ctx, value string, expires time.Time) {
	c.Cookie(&fiber.Cookie{
		Name:     middleware.TokenCookie,
		Value:    value,
		Path:     "/api",
		Expires:  expires,
		HTTPOnly: true,
		Secure:   h.secureCookie,
		SameSite: fiber.CookieSameSiteStrictMode,
	})
}
