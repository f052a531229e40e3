package middleware

import (
	"context"
	"time"

	"github.com/boscod/trackwatch/internal/logctx"
	"github.com/gofiber/fiber/v3"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	RequestIDHeader = "X-Request-ID"

	contextKeyLogger   = "logger"
	contextKeyDeadline = "deadline"
)

// RequestLogger attaches a request id and a child logger to every request
// and logs its completion. Handlers derive their context with Context.
func RequestLogger(logger *zap.Logger, timeout time.Duration) fiber.Handler {
	return func(c fiber.Ctx) error {
		start := time.Now()

		requestID := c.Get(RequestIDHeader)
		if requestID == "" {
			requestID = uuid.NewString()
		}
		c.Set(RequestIDHeader, requestID)

		reqLogger := logger.With(
			zap.String("request_id", requestID),
			zap.String("method", c.Method()),
			zap.String("path", c.Path()))
		c.Locals(contextKeyLogger, reqLogger)
		if timeout > 0 {
			c.Locals(contextKeyDeadline, start.Add(timeout))
		}

		err := c.Next()
		if err != nil {
			// Render now so the logged status is the one the client sees.
			if herr := c.App().ErrorHandler(c, err); herr != nil {
				return herr
			}
		}

		reqLogger.Debug("request completed",
			zap.Int("status", c.Response().StatusCode()),
			zap.Duration("latency", time.Since(start)),
			zap.String("ip", GetRealIP(c)))
		return nil
	}
}

// Logger returns the request logger, or the global logger outside
// RequestLogger.
func Logger(c fiber.Ctx) *zap.Logger {
	if l, ok := c.Locals(contextKeyLogger).(*zap.Logger); ok {
		return l
	}
	return zap.L()
}

// Context returns a context carrying the request logger and bounded by the
// request timeout.
func Context(c fiber.Ctx) (context.Context, context.CancelFunc) {
	ctx := logctx.WithLogger(context.Background(), Logger(c))
	if deadline, ok := c.Locals(contextKeyDeadline).(time.Time); ok {
		return context.WithDeadline(ctx, deadline)
	}
	return context.WithCancel(ctx)
}
