package handlers

import (
	"github.com/boscod/trackwatch/internal/middleware"
	"github.com/boscod/trackwatch/internal/models"
	"github.com/boscod/trackwatch/internal/services"
	"github.com/gofiber/fiber/v3"
)

type NotificationHandler struct {
	alertService *services.AlertService
}

func NewNotificationHandler(alertService *services.AlertService) *NotificationHandler {
	return &NotificationHandler{alertService: alertService}
}

// List returns paginated notifications for the current user
func (h *NotificationHandler) List(c fiber.Ctx) error {
	p := pagination(c, 20, 50)

	ctx, cancel := requestContext(c)
	defer cancel()

	notifications, total, err := h.alertService.List(ctx, middleware.GetUserID(c), p.Limit, p.Offset)
	if err != nil {
		return err
	}

	responses := make([]*models.NotificationResponse, len(notifications))
	for i := range notifications {
		responses[i] = notifications[i].ToResponse()
	}

	return c.JSON(fiber.Map{
		"notifications": responses,
		"pagination":    p.response(total),
	})
}

// UnreadCount returns the count of unread notifications
func (h *NotificationHandler) UnreadCount(c fiber.Ctx) error {
	ctx, cancel := requestContext(c)
	defer cancel()

	count, err := h.alertService.UnreadCount(ctx, middleware.GetUserID(c))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"count": count})
}

// MarkAsRead marks a single notification as read
func (h *NotificationHandler) MarkAsRead(c fiber.Ctx) error {
	notificationID, err := paramID(c, "id")
	if err != nil {
		return err
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	if err := h.alertService.MarkAsRead(ctx, notificationID, middleware.GetUserID(c)); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"success": true})
}

// MarkAllAsRead marks all notifications as read for the current user
func (h *NotificationHandler) MarkAllAsRead(c fiber.Ctx) error {
	ctx, cancel := requestContext(c)
	defer cancel()

	if err := h.alertService.MarkAllAsRead(ctx, middleware.GetUserID(c)); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"success": true})
}
