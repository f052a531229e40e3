package handlers

import (
	"github.com/boscod/trackwatch/internal/middleware"
	"github.com/boscod/trackwatch/internal/models"
	"github.com/boscod/trackwatch/internal/services"
	"github.com/gofiber/fiber/v3"
)

// DeviceHandler serves device administration
type DeviceHandler struct {
	deviceService   *services.DeviceService
	settingsService *services.SettingsService
}

func NewDeviceHandler(deviceService *services.DeviceService, settingsService *services.SettingsService) *DeviceHandler {
	return &DeviceHandler{
		deviceService:   deviceService,
		settingsService: settingsService,
	}
}

func (h *DeviceHandler) List(c fiber.Ctx) error {
	p := pagination(c, 50, 200)
	filter := services.DeviceFilter{Search: c.Query("search"), Limit: p.Limit, Offset: p.Offset}

	var err error
	if filter.MachineID, err = queryID(c, "machine_id"); err != nil {
		return err
	}
	switch perm := models.Permission(c.Query("permission")); perm {
	case "":
	case models.PermissionPending, models.PermissionAllowed, models.PermissionBlocked:
		filter.Permission = perm
	default:
		return badRequest("Invalid permission")
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	devices, total, err := h.deviceService.ListDevices(ctx, filter)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"devices": devices, "pagination": p.response(total)})
}

type deviceActionRequest struct {
	DeviceIDs []int64 `json:"device_ids"`
	Action    string  `json:"action"`
}

func (r deviceActionRequest) action() (models.PermissionAction, error) {
	action, err := models.ParsePermissionAction(r.Action)
	if err != nil {
		return "", badRequest("action must be allow, block or unblock")
	}
	return action, nil
}

// SetPermission applies allow, block or unblock to one device
func (h *DeviceHandler) SetPermission(c fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}
	var req deviceActionRequest
	if err := bindJSON(c, &req); err != nil {
		return err
	}
	action, err := req.action()
	if err != nil {
		return err
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	device, err := h.deviceService.SetPermission(ctx, id, action, middleware.GetUserID(c))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"device": device})
}

// BulkPermission applies one action to several devices
func (h *DeviceHandler) BulkPermission(c fiber.Ctx) error {
	var req deviceActionRequest
	if err := bindJSON(c, &req); err != nil {
		return err
	}
	action, err := req.action()
	if err != nil {
		return err
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	devices, err := h.deviceService.SetPermissions(ctx, req.DeviceIDs, action, middleware.GetUserID(c))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"success": true, "updated": len(devices)})
}

// BulkDelete removes devices together with their logs
func (h *DeviceHandler) BulkDelete(c fiber.Ctx) error {
	var req deviceActionRequest
	if err := bindJSON(c, &req); err != nil {
		return err
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	n, err := h.deviceService.DeleteDevices(ctx, req.DeviceIDs)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"success": true, "deleted": n})
}

// Logs lists device log rows, optionally for one device_id
func (h *DeviceHandler) Logs(c fiber.Ctx) error {
	deviceID, err := queryID(c, "device_id")
	if err != nil {
		return err
	}
	p := pagination(c, 50, 200)

	ctx, cancel := requestContext(c)
	defer cancel()

	logs, total, err := h.deviceService.ListLogs(ctx, deviceID, p.Limit, p.Offset)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"logs": logs, "pagination": p.response(total)})
}

func (h *DeviceHandler) Monitoring(c fiber.Ctx) error {
	machineID, err := paramID(c, "id")
	if err != nil {
		return err
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	enabled, err := h.settingsService.MachineMonitoring(ctx, machineID)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"machine_id": machineID, "enabled": enabled})
}

type monitoringRequest struct {
	Enabled *bool `json:"enabled"`
}

// SetMonitoring turns device monitoring on or off for one machine
func (h *DeviceHandler) SetMonitoring(c fiber.Ctx) error {
	machineID, err := paramID(c, "id")
	if err != nil {
		return err
	}
	var req monitoringRequest
	if err := bindJSON(c, &req); err != nil {
		return err
	}
	if req.Enabled == nil {
		return badRequest("enabled is required")
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	if err := h.settingsService.SetMachineMonitoring(ctx, machineID, *req.Enabled); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"machine_id": machineID, "enabled": *req.Enabled})
}
