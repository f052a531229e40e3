package middleware

import (
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/cors"
)

// agentPaths are called by monitoring agents, never by a browser.
// /api/permissions is absent: the dashboard uses its update action.
var agentPaths = map[string]bool{
	"/ingest":             true,
	"/api/application":    true,
	"/api/website":        true,
	"/api/device":         true,
	"/api/register_agent": true,
}

// CORSMiddleware allows the dashboard origins to call the session-backed
// API with credentials. Agent endpoints are skipped.
func CORSMiddleware(dashboardOrigins []string) fiber.Handler {
	return cors.New(cors.Config{
		Next: func(c fiber.Ctx) bool {
			return agentPaths[c.Path()]
		},
		AllowOrigins:     dashboardOrigins,
		AllowMethods:     []string{fiber.MethodGet, fiber.MethodPost, fiber.MethodPut, fiber.MethodPatch, fiber.MethodDelete, fiber.MethodOptions},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", RequestIDHeader},
		AllowCredentials: true,
		// Content-Disposition carries the export file name.
		ExposeHeaders: []string{"Content-Disposition", RequestIDHeader},
		MaxAge:        3600,
	})
}
