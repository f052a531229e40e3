package handlers

import (
	"net/http"
	"time"

	"github.com/boscod/trackwatch/internal/services"
	"github.com/gofiber/fiber/v3"
)

// ActivityHandler serves the read-only activity views
type ActivityHandler struct {
	activityService *services.ActivityService
}

func NewActivityHandler(activityService *services.ActivityService) *ActivityHandler {
	return &ActivityHandler{activityService: activityService}
}

// Timeline lists the timeline of one user, newest first
func (h *ActivityHandler) Timeline(c fiber.Ctx) error {
	userID, err := paramID(c, "id")
	if err != nil {
		return err
	}
	p := pagination(c, 100, 500)

	filter := services.TimelineFilter{
		UserID:       userID,
		ActivityType: c.Query("type"),
		Limit:        p.Limit,
		Offset:       p.Offset,
	}
	if filter.MachineID, err = queryID(c, "machine_id"); err != nil {
		return err
	}
	if filter.From, err = queryTime(c, "from"); err != nil {
		return err
	}
	if filter.To, err = queryTime(c, "to"); err != nil {
		return err
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	entries, total, err := h.activityService.Timeline(ctx, filter)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"timeline": entries, "pagination": p.response(total)})
}

// Summary totals a user's activity for ?date=YYYY-MM-DD, today by default
func (h *ActivityHandler) Summary(c fiber.Ctx) error {
	userID, err := paramID(c, "id")
	if err != nil {
		return err
	}
	day, err := queryTime(c, "date")
	if err != nil {
		return err
	}
	if day.IsZero() {
		day = time.Now().UTC()
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	summary, err := h.activityService.DailySummary(ctx, userID, day)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"summary": summary})
}

func (h *ActivityHandler) Screenshots(c fiber.Ctx) error {
	userID, err := queryID(c, "user_id")
	if err != nil {
		return err
	}
	from, err := queryTime(c, "from")
	if err != nil {
		return err
	}
	to, err := queryTime(c, "to")
	if err != nil {
		return err
	}
	p := pagination(c, 50, 200)

	ctx, cancel := requestContext(c)
	defer cancel()

	shots, total, err := h.activityService.ListScreenshots(ctx, userID, from, to, p.Limit, p.Offset)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"screenshots": shots, "pagination": p.response(total)})
}

// ScreenshotContent streams the stored image of one screenshot
func (h *ActivityHandler) ScreenshotContent(c fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	_, data, err := h.activityService.Screenshot(ctx, id)
	if err != nil {
		return err
	}

	c.Set(fiber.HeaderContentType, http.DetectContentType(data))
	c.Set(fiber.HeaderCacheControl, "private, max-age=3600")
	return c.Send(data)
}
