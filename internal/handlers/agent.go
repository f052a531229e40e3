package handlers

import (
	"github.com/boscod/trackwatch/internal/middleware"
	"github.com/boscod/trackwatch/internal/models"
	"github.com/boscod/trackwatch/internal/services"
	"github.com/gofiber/fiber/v3"
)

// AgentHandler serves the endpoints monitoring agents push to.
type AgentHandler struct {
	ingestService *services.IngestService
	deviceService *services.DeviceService
	jwtService    *services.JWTService
}

func NewAgentHandler(ingestService *services.IngestService, deviceService *services.DeviceService, jwtService *services.JWTService) *AgentHandler {
	return &AgentHandler{
		ingestService: ingestService,
		deviceService: deviceService,
		jwtService:    jwtService,
	}
}

// Ingest handles a batch of activity ticks, screenshots and application
// usage, answering with the current agent settings.
func (h *AgentHandler) Ingest(c fiber.Ctx) error {
	var req services.IngestBatch
	if err := bindJSON(c, &req); err != nil {
		return err
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	settings, err := h.ingestService.Ingest(ctx, &req)
	if err != nil {
		return err
	}

	return c.JSON(fiber.Map{
		"status":                                  "ok",
		"sync_interval_seconds":                   settings.SyncIntervalSeconds,
		"parallel_sync_workers":                   settings.ParallelSyncWorkers,
		"delete_screenshots_after_sync":           settings.DeleteScreenshotsAfterSync,
		"device_monitoring_enabled":               settings.DeviceMonitoringEnabled,
		"screenshots_enabled":                     settings.ScreenshotsEnabled,
		"screenshot_interval_seconds":             settings.ScreenshotIntervalSeconds,
		"website_monitoring_enabled":              settings.WebsiteMonitoringEnabled,
		"website_monitoring_interval_seconds":     settings.WebsiteMonitoringIntervalSeconds,
		"application_monitoring_enabled":          settings.ApplicationMonitoringEnabled,
		"application_monitoring_interval_seconds": settings.ApplicationMonitoringIntervalSeconds,
	})
}

// Application handles report and update_duration calls for applications
func (h *AgentHandler) Application(c fiber.Ctx) error {
	var req services.ApplicationReport
	if err := bindJSON(c, &req); err != nil {
		return err
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	result, err := h.ingestService.HandleApplication(ctx, &req)
	if err != nil {
		return err
	}

	if result.Action == services.ActionUpdateDuration {
		return c.JSON(fiber.Map{"status": "ok", "duration_updated": result.DurationUpdated})
	}
	return c.JSON(fiber.Map{
		"status":         "ok",
		"is_blocked":     result.IsBlocked,
		"application_id": result.CatalogID,
	})
}

// Website handles report and update_duration calls for websites
func (h *AgentHandler) Website(c fiber.Ctx) error {
	var req services.WebsiteReport
	if err := bindJSON(c, &req); err != nil {
		return err
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	result, err := h.ingestService.HandleWebsite(ctx, &req)
	if err != nil {
		return err
	}

	if result.Action == services.ActionUpdateDuration {
		return c.JSON(fiber.Map{"status": "ok", "duration_updated": result.DurationUpdated})
	}
	return c.JSON(fiber.Map{
		"status":     "ok",
		"is_blocked": result.IsBlocked,
		"website_id": result.CatalogID,
	})
}

// Device records a device event. A pending device reports a null
// permission.
func (h *AgentHandler) Device(c fiber.Ctx) error {
	var req services.DeviceReport
	if err := bindJSON(c, &req); err != nil {
		return err
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	result, err := h.deviceService.ReportDevice(ctx, &req)
	if err != nil {
		return err
	}

	return c.JSON(fiber.Map{
		"status":     "ok",
		"device_id":  result.DeviceID,
		"permission": permissionOrNil(result.Permission),
	})
}

func permissionOrNil(p models.Permission) any {
	if p == models.PermissionPending {
		return nil
	}
	return p
}

// Permissions dispatches on the action query parameter: check is open to
// agents, update requires an administrator session.
func (h *AgentHandler) Permissions(c fiber.Ctx) error {
	switch c.Query("action") {
	case "check":
		return h.checkPermission(c)
	case "update":
		return h.updatePermission(c)
	}
	return fiber.ErrMethodNotAllowed
}

func (h *AgentHandler) checkPermission(c fiber.Ctx) error {
	var req services.PermissionCheck
	if err := bindJSON(c, &req); err != nil {
		return err
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	permission, err := h.deviceService.CheckPermission(ctx, &req)
	if err != nil {
		return err
	}

	return c.JSON(fiber.Map{
		"status":     "ok",
		"permission": permission,
	})
}

type permissionUpdateRequest struct {
	DeviceID   int64  `json:"device_id"`
	ActionType string `json:"action_type"`
}

func (h *AgentHandler) updatePermission(c fiber.Ctx) error {
	claims, err := middleware.Authenticate(c, h.jwtService)
	if err != nil {
		return err
	}
	if !claims.Role.IsAdmin() {
		return fiber.NewError(fiber.StatusForbidden, "Forbidden")
	}

	var req permissionUpdateRequest
	if err := bindJSON(c, &req); err != nil {
		return err
	}
	action, err := models.ParsePermissionAction(req.ActionType)
	if err != nil || req.DeviceID <= 0 {
		return badRequest("Invalid request")
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	if _, err := h.deviceService.SetPermission(ctx, req.DeviceID, action, claims.UserID); err != nil {
		return err
	}

	return c.JSON(fiber.Map{
		"status":  "ok",
		"message": "Device " + string(action) + "ed successfully",
	})
}

// RegisterAgent onboards a machine, or updates it when already known
func (h *AgentHandler) RegisterAgent(c fiber.Ctx) error {
	var req services.Registration
	if err := bindJSON(c, &req); err != nil {
		return err
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	result, err := h.ingestService.RegisterAgent(ctx, &req)
	if err != nil {
		return err
	}

	message := "Agent updated successfully"
	if result.Created {
		message = "Agent registered successfully"
	}
	return c.JSON(fiber.Map{
		"status":     "ok",
		"message":    message,
		"machine_id": result.MachineID,
		"id":         result.ID,
	})
}
