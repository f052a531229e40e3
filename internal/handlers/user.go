package handlers

import (
	"github.com/boscod/trackwatch/internal/middleware"
	"github.com/boscod/trackwatch/internal/models"
	"github.com/boscod/trackwatch/internal/services"
	"github.com/gofiber/fiber/v3"
)

type UserHandler struct {
	userService *services.UserService
}

func NewUserHandler(userService *services.UserService) *UserHandler {
	return &UserHandler{userService: userService}
}

func (h *UserHandler) List(c fiber.Ctx) error {
	ctx, cancel := requestContext(c)
	defer cancel()

	users, err := h.userService.List(ctx)
	if err != nil {
		return err
	}

	responses := make([]*models.UserResponse, len(users))
	for i := range users {
		responses[i] = users[i].ToResponse()
	}
	return c.JSON(fiber.Map{"users": responses})
}

func (h *UserHandler) Create(c fiber.Ctx) error {
	var req services.NewUserInput
	if err := bindJSON(c, &req); err != nil {
		return err
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	user, err := h.userService.Create(ctx, &req)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"user": user.ToResponse()})
}

func (h *UserHandler) Get(c fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	user, err := h.userService.Get(ctx, id)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"user": user.ToResponse()})
}

type roleRequest struct {
	Role string `json:"role"`
}

func (h *UserHandler) SetRole(c fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}
	var req roleRequest
	if err := bindJSON(c, &req); err != nil {
		return err
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	user, err := h.userService.SetRole(ctx, id, req.Role)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"user": user.ToResponse()})
}

type passwordRequest struct {
	Password string `json:"password"`
}

func (h *UserHandler) ResetPassword(c fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}
	var req passwordRequest
	if err := bindJSON(c, &req); err != nil {
		return err
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	if err := h.userService.ResetPassword(ctx, id, req.Password); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"success": true})
}

func (h *UserHandler) Delete(c fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	if err := h.userService.Delete(ctx, id, middleware.GetUserID(c)); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"success": true})
}
