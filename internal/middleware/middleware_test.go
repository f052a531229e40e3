package middleware

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/boscod/trackwatch/internal/models"
	"github.com/boscod/trackwatch/internal/services"
	"github.com/gofiber/fiber/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func tokenFor(t *testing.T, jwt *services.JWTService, role models.Role) string {
	t.Helper()
	token, err := jwt.GenerateToken(&models.User{ID: 42, Username: "alice", Role: role})
	require.NoError(t, err)
	return token
}

func authApp(jwt *services.JWTService) *fiber.App {
	app := fiber.New()
	app.Get("/me", func(c fiber.Ctx) error {
		return c.JSON(fiber.Map{"id": GetUserID(c), "username": GetUsername(c), "role": GetRole(c)})
	}, AuthMiddleware(jwt))
	app.Get("/admin", func(c fiber.Ctx) error {
		return c.SendStatus(fiber.StatusNoContent)
	}, AuthMiddleware(jwt), RequireRoles(models.RoleSuperadmin, models.RoleAdmin))
	return app
}

func TestAuthMiddleware(t *testing.T) {
	jwt := services.NewJWTService("secret", time.Hour)
	app := authApp(jwt)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/me", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer not-a-token")
	resp, err = app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)

	req = httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer "+tokenFor(t, jwt, models.RoleHR))
	resp, err = app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	req = httptest.NewRequest(http.MethodGet, "/me", nil)
	req.AddCookie(&http.Cookie{Name: TokenCookie, Value: tokenFor(t, jwt, models.RoleHR)})
	resp, err = app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode, "cookie sessions")
}

func TestRequireRoles(t *testing.T) {
	jwt := services.NewJWTService("secret", time.Hour)
	app := authApp(jwt)

	for role, want := range map[models.Role]int{
		models.RoleSuperadmin: fiber.StatusNoContent,
		models.RoleAdmin:      fiber.StatusNoContent,
		models.RoleHR:         fiber.StatusForbidden,
		models.RoleEmployee:   fiber.StatusForbidden,
	} {
		req := httptest.NewRequest(http.MethodGet, "/admin", nil)
		req.Header.Set("Authorization", "Bearer "+tokenFor(t, jwt, role))
		resp, err := app.Test(req)
		require.NoError(t, err)
		assert.Equal(t, want, resp.StatusCode, role)
	}
}

func TestGetRealIP(t *testing.T) {
	app := fiber.New()
	app.Get("/", func(c fiber.Ctx) error { return c.SendString(GetRealIP(c)) })

	ip := func(header, value string) string {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		if header != "" {
			req.Header.Set(header, value)
		}
		resp, err := app.Test(req)
		require.NoError(t, err)
		body, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		return string(body)
	}

	assert.Equal(t, "10.0.0.9", ip("X-Real-IP", "10.0.0.9"))
	assert.Equal(t, "203.0.113.7", ip("X-Forwarded-For", "203.0.113.7, 10.0.0.1"))
	assert.NotEmpty(t, ip("", ""))
}

func TestRateLimit(t *testing.T) {
	app := fiber.New()
	app.Post("/login", func(c fiber.Ctx) error { return c.SendStatus(fiber.StatusOK) }, RateLimitMiddleware(2))

	var codes []int
	for range 3 {
		req := httptest.NewRequest(http.MethodPost, "/login", nil)
		req.Header.Set("X-Real-IP", "198.51.100.1")
		resp, err := app.Test(req)
		require.NoError(t, err)
		codes = append(codes, resp.StatusCode)
	}
	assert.Equal(t, []int{fiber.StatusOK, fiber.StatusOK, fiber.StatusTooManyRequests}, codes)

	req := httptest.NewRequest(http.MethodPost, "/login", nil)
	req.Header.Set("X-Real-IP", "198.51.100.2")
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode, "limits are per client")
}

func TestRequestLogger(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	app := fiber.New()
	app.Use(RequestLogger(zap.New(core), time.Second))
	app.Get("/ok", func(c fiber.Ctx) error {
		ctx, cancel := Context(c)
		defer cancel()
		if _, ok := ctx.Deadline(); !ok {
			return fiber.ErrInternalServerError
		}
		return c.SendStatus(fiber.StatusOK)
	})
	app.Get("/missing", func(c fiber.Ctx) error { return fiber.ErrNotFound })

	req := httptest.NewRequest(http.MethodGet, "/ok", nil)
	req.Header.Set(RequestIDHeader, "req-1")
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, "req-1", resp.Header.Get(RequestIDHeader))

	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/missing", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get(RequestIDHeader))

	entries := logs.FilterMessage("request completed").All()
	require.Len(t, entries, 2)
	assert.Equal(t, "req-1", entries[0].ContextMap()["request_id"])
	assert.EqualValues(t, fiber.StatusNotFound, entries[1].ContextMap()["status"])
}

func TestCORSSkipsAgentEndpoints(t *testing.T) {
	app := fiber.New()
	app.Use(CORSMiddleware([]string{"https://dash.example.com"}))
	app.Post("/api/device", func(c fiber.Ctx) error { return c.SendStatus(fiber.StatusOK) })
	app.Get("/api/auth/me", func(c fiber.Ctx) error { return c.SendStatus(fiber.StatusOK) })

	allowOrigin := func(method, path string) string {
		req := httptest.NewRequest(method, path, nil)
		req.Header.Set("Origin", "https://dash.example.com")
		resp, err := app.Test(req)
		require.NoError(t, err)
		return resp.Header.Get(fiber.HeaderAccessControlAllowOrigin)
	}

	assert.Equal(t, "https://dash.example.com", allowOrigin(http.MethodGet, "/api/auth/me"))
	assert.Empty(t, allowOrigin(http.MethodPost, "/api/device"))
}
