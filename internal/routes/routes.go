package routes

import (
	"github.com/boscod/trackwatch/internal/handlers"
	"github.com/boscod/trackwatch/internal/middleware"
	"github.com/boscod/trackwatch/internal/models"
	"github.com/boscod/trackwatch/internal/services"
	"github.com/gofiber/fiber/v3"
)

// Services are the dependencies of the HTTP layer.
type Services struct {
	JWT      *services.JWTService
	Auth     *services.AuthService
	Users    *services.UserService
	Ingest   *services.IngestService
	Devices  *services.DeviceService
	Policy   *services.PolicyService
	Catalog  *services.CatalogService
	Settings *services.SettingsService
	Activity *services.ActivityService
	Alerts   *services.AlertService
}

type Options struct {
	SecureCookie bool
	// AuthRateLimit caps login and setup attempts per IP and minute.
	AuthRateLimit int
}

func SetupRoutes(app *fiber.App, svc Services, opts Options) {
	if opts.AuthRateLimit <= 0 {
		opts.AuthRateLimit = 10
	}

	agentHandler := handlers.NewAgentHandler(svc.Ingest, svc.Devices, svc.JWT)
	authHandler := handlers.NewAuthHandler(svc.Auth, svc.Users, svc.JWT, opts.SecureCookie)
	userHandler := handlers.NewUserHandler(svc.Users)
	policyHandler := handlers.NewPolicyHandler(svc.Policy)
	catalogHandler := handlers.NewCatalogHandler(svc.Catalog, svc.Devices)
	deviceHandler := handlers.NewDeviceHandler(svc.Devices, svc.Settings)
	settingsHandler := handlers.NewSettingsHandler(svc.Settings)
	notificationHandler := handlers.NewNotificationHandler(svc.Alerts)
	activityHandler := handlers.NewActivityHandler(svc.Activity)

	health := func(c fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":  "ok",
			"message": "TrackWatch API is running",
		})
	}
	app.Get("/health", health)

	// ==================
	// Agent Routes (no session, machine identity in the body)
	// ==================
	app.Post("/ingest", agentHandler.Ingest)

	api := app.Group("/api")
	api.Get("/health", health)

	api.Post("/application", agentHandler.Application)
	api.Post("/website", agentHandler.Website)
	api.Post("/device", agentHandler.Device)
	api.Post("/permissions", agentHandler.Permissions)
	api.Post("/register_agent", agentHandler.RegisterAgent)

	// ==================
	// Public Auth Routes
	// ==================
	authLimit := middleware.RateLimitMiddleware(opts.AuthRateLimit)
	api.Get("/auth/setup", authHandler.SetupStatus)
	// Route middleware runs before the handler given first.
	api.Post("/auth/setup", authHandler.Setup, authLimit)
	api.Post("/auth/login", authHandler.Login, authLimit)

	// ==================
	// Protected Routes (JWT)
	// ==================
	requireAuth := middleware.AuthMiddleware(svc.JWT)
	api.Post("/auth/logout", authHandler.Logout, requireAuth)
	api.Get("/auth/me", authHandler.Me, requireAuth)

	// Read-only activity views, open to HR as well
	reports := api.Group("/reports",
		requireAuth,
		middleware.RequireRoles(models.RoleSuperadmin, models.RoleAdmin, models.RoleHR))
	reports.Get("/users/:id/timeline", activityHandler.Timeline)
	reports.Get("/users/:id/summary", activityHandler.Summary)
	reports.Get("/screenshots", activityHandler.Screenshots)
	reports.Get("/screenshots/:id", activityHandler.ScreenshotContent)

	// ==================
	// Admin Routes
	// ==================
	admin := api.Group("/admin",
		requireAuth,
		middleware.RequireRoles(models.RoleSuperadmin, models.RoleAdmin))

	admin.Get("/users", userHandler.List)
	admin.Post("/users", userHandler.Create)
	admin.Get("/users/:id", userHandler.Get)
	admin.Put("/users/:id/role", userHandler.SetRole)
	admin.Put("/users/:id/password", userHandler.ResetPassword)
	admin.Delete("/users/:id", userHandler.Delete)

	admin.Get("/rules/:kind", policyHandler.List)
	admin.Post("/rules/:kind", policyHandler.Upsert)
	admin.Post("/rules/:kind/bulk", policyHandler.BulkBlock)
	admin.Get("/rules/:kind/:id", policyHandler.Get)
	admin.Patch("/rules/:kind/:id", policyHandler.SetActive)
	admin.Post("/rules/:kind/:id/toggle", policyHandler.Toggle)
	admin.Delete("/rules/:kind/:id", policyHandler.Delete)

	admin.Get("/machines", catalogHandler.Machines)
	admin.Get("/machines/:id/device-monitoring", deviceHandler.Monitoring)
	admin.Put("/machines/:id/device-monitoring", deviceHandler.SetMonitoring)

	admin.Get("/applications", catalogHandler.Applications)
	admin.Get("/applications/:id", catalogHandler.Application)
	admin.Put("/applications/:id/category", catalogHandler.AssignApplicationCategory)
	admin.Put("/applications/:id/productivity", catalogHandler.SetApplicationProductivity)
	admin.Get("/websites", catalogHandler.Websites)
	admin.Put("/websites/:id/category", catalogHandler.AssignWebsiteCategory)

	admin.Get("/categories/applications", catalogHandler.ApplicationCategories)
	admin.Post("/categories/applications", catalogHandler.CreateApplicationCategory)
	admin.Put("/categories/applications/:id", catalogHandler.UpdateApplicationCategory)
	admin.Get("/categories/websites", catalogHandler.WebsiteCategories)
	admin.Post("/categories/websites", catalogHandler.CreateWebsiteCategory)
	admin.Put("/categories/websites/:id", catalogHandler.UpdateWebsiteCategory)

	admin.Get("/devices", deviceHandler.List)
	admin.Get("/devices/logs", deviceHandler.Logs)
	admin.Post("/devices/permissions", deviceHandler.BulkPermission)
	admin.Post("/devices/delete", deviceHandler.BulkDelete)
	admin.Put("/devices/:id/permission", deviceHandler.SetPermission)

	admin.Get("/settings", settingsHandler.Get)
	admin.Put("/settings", settingsHandler.Update)

	admin.Get("/notifications", notificationHandler.List)
	admin.Get("/notifications/unread-count", notificationHandler.UnreadCount)
	admin.Post("/notifications/read-all", notificationHandler.MarkAllAsRead)
	admin.Post("/notifications/:id/read", notificationHandler.MarkAsRead)

	admin.Get("/export/catalog", catalogHandler.Export)
}
