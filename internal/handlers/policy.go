package handlers

import (
	"strconv"

	"github.com/boscod/trackwatch/internal/middleware"
	"github.com/boscod/trackwatch/internal/models"
	"github.com/boscod/trackwatch/internal/services"
	"github.com/gofiber/fiber/v3"
)

// PolicyHandler manages application and website block rules. The :kind
// route parameter selects the rule table.
type PolicyHandler struct {
	policyService *services.PolicyService
}

func NewPolicyHandler(policyService *services.PolicyService) *PolicyHandler {
	return &PolicyHandler{policyService: policyService}
}

func ruleKind(c fiber.Ctx) (services.RuleKind, error) {
	kind, err := services.ParseRuleKind(c.Params("kind"))
	if err != nil {
		return "", fiber.NewError(fiber.StatusNotFound, "Unknown rule kind")
	}
	return kind, nil
}

func (h *PolicyHandler) List(c fiber.Ctx) error {
	kind, err := ruleKind(c)
	if err != nil {
		return err
	}

	var filter services.RuleFilter
	if raw := c.Query("scope"); raw != "" {
		if filter.Scope, err = models.ParseScope(raw); err != nil {
			return badRequest("Invalid scope")
		}
	}
	filter.ActiveOnly, _ = strconv.ParseBool(c.Query("active"))
	if filter.UserID, err = queryID(c, "user_id"); err != nil {
		return err
	}
	if filter.MachineID, err = queryID(c, "machine_id"); err != nil {
		return err
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	rules, err := h.policyService.ListRules(ctx, kind, filter)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"rules": rules})
}

func (h *PolicyHandler) Get(c fiber.Ctx) error {
	kind, err := ruleKind(c)
	if err != nil {
		return err
	}
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	rule, err := h.policyService.GetRule(ctx, kind, id)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"rule": rule})
}

// Upsert creates a rule, or updates the identical rule already present
func (h *PolicyHandler) Upsert(c fiber.Ctx) error {
	kind, err := ruleKind(c)
	if err != nil {
		return err
	}
	var req services.RuleInput
	if err := bindJSON(c, &req); err != nil {
		return err
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	rule, created, err := h.policyService.UpsertRule(ctx, kind, &req, middleware.GetUserID(c))
	if err != nil {
		return err
	}

	status := fiber.StatusOK
	if created {
		status = fiber.StatusCreated
	}
	return c.Status(status).JSON(fiber.Map{"rule": rule, "created": created})
}

func (h *PolicyHandler) BulkBlock(c fiber.Ctx) error {
	kind, err := ruleKind(c)
	if err != nil {
		return err
	}
	var req services.BulkRuleInput
	if err := bindJSON(c, &req); err != nil {
		return err
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	n, err := h.policyService.BulkBlock(ctx, kind, &req, middleware.GetUserID(c))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"success": true, "blocked": n})
}

func (h *PolicyHandler) Toggle(c fiber.Ctx) error {
	kind, err := ruleKind(c)
	if err != nil {
		return err
	}
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	rule, err := h.policyService.ToggleRule(ctx, kind, id)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"rule": rule})
}

type activeRequest struct {
	IsActive *bool `json:"is_active"`
}

func (h *PolicyHandler) SetActive(c fiber.Ctx) error {
	kind, err := ruleKind(c)
	if err != nil {
		return err
	}
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}
	var req activeRequest
	if err := bindJSON(c, &req); err != nil {
		return err
	}
	if req.IsActive == nil {
		return badRequest("is_active is required")
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	rule, err := h.policyService.SetRuleActive(ctx, kind, id, *req.IsActive)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"rule": rule})
}

func (h *PolicyHandler) Delete(c fiber.Ctx) error {
	kind, err := ruleKind(c)
	if err != nil {
		return err
	}
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	if err := h.policyService.DeleteRule(ctx, kind, id); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"success": true})
}
