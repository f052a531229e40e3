package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/boscod/trackwatch/internal/middleware"
	"github.com/boscod/trackwatch/internal/models"
	"github.com/boscod/trackwatch/internal/services"
	"github.com/gofiber/fiber/v3"
	"go.uber.org/zap"
)

// internalErrorCode is the only message clients see for unexpected
// failures. The underlying error is logged with the request id.
const internalErrorCode = "internal_error"

// ErrorHandler renders errors returned from handlers as
// {"error": <status text>, "message": <detail>}.
func ErrorHandler(c fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	message := internalErrorCode

	var fe *fiber.Error
	switch {
	case errors.As(err, &fe):
		code, message = fe.Code, fe.Message
	case errors.Is(err, services.ErrInvalidCredentials):
		code, message = fiber.StatusUnauthorized, "Invalid username or password"
	case errors.Is(err, services.ErrValidation):
		code, message = fiber.StatusBadRequest, err.Error()
	case errors.Is(err, services.ErrNotFound):
		code, message = fiber.StatusNotFound, err.Error()
	case errors.Is(err, services.ErrForbidden):
		code, message = fiber.StatusForbidden, err.Error()
	case errors.Is(err, services.ErrConflict):
		code, message = fiber.StatusConflict, err.Error()
	}

	if code >= fiber.StatusInternalServerError {
		middleware.Logger(c).Error("request failed", zap.Error(err))
	}

	return c.Status(code).JSON(fiber.Map{
		"error":   http.StatusText(code),
		"message": message,
	})
}

func badRequest(message string) error {
	return fiber.NewError(fiber.StatusBadRequest, message)
}

func bindJSON(c fiber.Ctx, out any) error {
	if err := c.Bind().JSON(out); err != nil {
		return badRequest("Invalid request body")
	}
	return nil
}

func requestContext(c fiber.Ctx) (context.Context, context.CancelFunc) {
	return middleware.Context(c)
}

func paramID(c fiber.Ctx, name string) (int64, error) {
	id, err := strconv.ParseInt(c.Params(name), 10, 64)
	if err != nil || id <= 0 {
		return 0, badRequest("Invalid " + name)
	}
	return id, nil
}

func queryID(c fiber.Ctx, name string) (int64, error) {
	raw := c.Query(name)
	if raw == "" {
		return 0, nil
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id < 0 {
		return 0, badRequest("Invalid " + name)
	}
	return id, nil
}

// queryTime parses a date (YYYY-MM-DD) or timestamp query parameter. An
// absent parameter yields the zero time.
func queryTime(c fiber.Ctx, name string) (time.Time, error) {
	raw := c.Query(name)
	if raw == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.DateOnly, raw); err == nil {
		return t, nil
	}
	t, err := models.ParseAgentTime(raw)
	if err != nil {
		return time.Time{}, badRequest("Invalid " + name)
	}
	return t, nil
}

type page struct {
	Page   int
	Limit  int
	Offset int
}

// pagination reads page and limit query parameters, falling back to
// defaultLimit and capping at maxLimit.
func pagination(c fiber.Ctx, defaultLimit, maxLimit int) page {
	p := page{Page: 1, Limit: defaultLimit}
	if n, err := strconv.Atoi(c.Query("page", "1")); err == nil && n > 0 {
		p.Page = n
	}
	if n, err := strconv.Atoi(c.Query("limit")); err == nil && n > 0 && n <= maxLimit {
		p.Limit = n
	}
	p.Offset = (p.Page - 1) * p.Limit
	return p
}

func (p page) response(total int) fiber.Map {
	totalPages := total / p.Limit
	if total%p.Limit != 0 {
		totalPages++
	}
	return fiber.Map{
		"page":        p.Page,
		"limit":       p.Limit,
		"total":       total,
		"total_pages": totalPages,
	}
}
