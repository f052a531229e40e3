package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/boscod/trackwatch/internal/services"
	"github.com/gofiber/fiber/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorHandler(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		code    int
		message string
	}{
		{"fiber error", fiber.NewError(fiber.StatusTeapot, "short and stout"), fiber.StatusTeapot, "short and stout"},
		{"credentials", services.ErrInvalidCredentials, fiber.StatusUnauthorized, "Invalid username or password"},
		{"validation", fmt.Errorf("%w: domain is required", services.ErrValidation), fiber.StatusBadRequest, "validation failed: domain is required"},
		{"not found", fmt.Errorf("machine: %w", services.ErrNotFound), fiber.StatusNotFound, "machine: not found"},
		{"forbidden", services.ErrForbidden, fiber.StatusForbidden, services.ErrForbidden.Error()},
		{"conflict", services.ErrConflict, fiber.StatusConflict, services.ErrConflict.Error()},
		{"unexpected", errors.New("disk on fire"), fiber.StatusInternalServerError, "internal_error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app := fiber.New(fiber.Config{ErrorHandler: ErrorHandler})
			app.Get("/", func(c fiber.Ctx) error { return tt.err })

			resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/", nil))
			require.NoError(t, err)
			defer resp.Body.Close()
			assert.Equal(t, tt.code, resp.StatusCode)

			var body map[string]string
			require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
			assert.Equal(t, http.StatusText(tt.code), body["error"])
			assert.Equal(t, tt.message, body["message"])
		})
	}
}

func TestPagination(t *testing.T) {
	app := fiber.New()
	app.Get("/", func(c fiber.Ctx) error {
		p := pagination(c, 20, 50)
		return c.JSON(fiber.Map{"offset": p.Offset, "pagination": p.response(41)})
	})

	get := func(query string) map[string]any {
		resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/"+query, nil))
		require.NoError(t, err)
		defer resp.Body.Close()
		var body map[string]any
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
		return body
	}

	body := get("")
	assert.EqualValues(t, 0, body["offset"])
	assert.EqualValues(t, 20, body["pagination"].(map[string]any)["limit"])
	assert.EqualValues(t, 3, body["pagination"].(map[string]any)["total_pages"])

	body = get("?page=3&limit=10")
	assert.EqualValues(t, 20, body["offset"])
	assert.EqualValues(t, 5, body["pagination"].(map[string]any)["total_pages"])

	body = get("?page=-1&limit=500")
	assert.EqualValues(t, 0, body["offset"], "invalid values fall back")
	assert.EqualValues(t, 20, body["pagination"].(map[string]any)["limit"])
}
