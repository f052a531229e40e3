package handlers

import (
	"strconv"

	"github.com/boscod/trackwatch/internal/services"
	"github.com/gofiber/fiber/v3"
)

type SettingsHandler struct {
	settingsService *services.SettingsService
}

func NewSettingsHandler(settingsService *services.SettingsService) *SettingsHandler {
	return &SettingsHandler{settingsService: settingsService}
}

func (h *SettingsHandler) Get(c fiber.Ctx) error {
	ctx, cancel := requestContext(c)
	defer cancel()

	settings, err := h.settingsService.All(ctx)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"settings": settings})
}

// Update stores the posted key/value pairs. Values may be sent as strings,
// numbers or booleans.
func (h *SettingsHandler) Update(c fiber.Ctx) error {
	var req map[string]any
	if err := bindJSON(c, &req); err != nil {
		return err
	}

	changes := make(map[string]string, len(req))
	for key, value := range req {
		switch v := value.(type) {
		case string:
			changes[key] = v
		case float64:
			if v != float64(int64(v)) {
				return badRequest(key + " must be an integer")
			}
			changes[key] = strconv.FormatInt(int64(v), 10)
		case bool:
			changes[key] = "0"
			if v {
				changes[key] = "1"
			}
		default:
			return badRequest("Invalid value for " + key)
		}
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	settings, err := h.settingsService.Update(ctx, changes)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"settings": settings})
}
