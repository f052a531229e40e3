package handlers

import (
	"bytes"
	"fmt"
	"time"

	"github.com/boscod/trackwatch/internal/export"
	"github.com/boscod/trackwatch/internal/models"
	"github.com/boscod/trackwatch/internal/services"
	"github.com/gofiber/fiber/v3"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// CatalogHandler serves machines, the application and website catalogs
// and their categories.
type CatalogHandler struct {
	catalogService *services.CatalogService
	deviceService  *services.DeviceService
}

func NewCatalogHandler(catalogService *services.CatalogService, deviceService *services.DeviceService) *CatalogHandler {
	return &CatalogHandler{
		catalogService: catalogService,
		deviceService:  deviceService,
	}
}

func (h *CatalogHandler) Machines(c fiber.Ctx) error {
	ctx, cancel := requestContext(c)
	defer cancel()

	machines, err := h.catalogService.ListMachines(ctx)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"machines": machines})
}

func catalogFilter(c fiber.Ctx, p page) (services.CatalogFilter, error) {
	f := services.CatalogFilter{Search: c.Query("search"), Limit: p.Limit, Offset: p.Offset}

	var err error
	if f.CategoryID, err = queryID(c, "category_id"); err != nil {
		return f, err
	}
	if raw := c.Query("productivity"); raw != "" {
		if f.Productivity, err = models.ParseProductivity(raw); err != nil {
			return f, badRequest("Invalid productivity")
		}
	}
	return f, nil
}

func (h *CatalogHandler) Applications(c fiber.Ctx) error {
	p := pagination(c, 50, 200)
	filter, err := catalogFilter(c, p)
	if err != nil {
		return err
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	apps, total, err := h.catalogService.ListApplications(ctx, filter)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"applications": apps, "pagination": p.response(total)})
}

func (h *CatalogHandler) Application(c fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	app, err := h.catalogService.GetApplication(ctx, id)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"application": app})
}

func (h *CatalogHandler) Websites(c fiber.Ctx) error {
	p := pagination(c, 50, 200)
	filter, err := catalogFilter(c, p)
	if err != nil {
		return err
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	sites, total, err := h.catalogService.ListWebsites(ctx, filter)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"websites": sites, "pagination": p.response(total)})
}

type categoryAssignment struct {
	CategoryID *int64 `json:"category_id"`
}

// AssignApplicationCategory sets the category of an application; a null
// category_id clears it.
func (h *CatalogHandler) AssignApplicationCategory(c fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}
	var req categoryAssignment
	if err := bindJSON(c, &req); err != nil {
		return err
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	app, err := h.catalogService.AssignApplicationCategory(ctx, id, req.CategoryID)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"application": app})
}

type productivityRequest struct {
	Productivity string `json:"productivity"`
}

func (h *CatalogHandler) SetApplicationProductivity(c fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}
	var req productivityRequest
	if err := bindJSON(c, &req); err != nil {
		return err
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	app, err := h.catalogService.SetApplicationProductivity(ctx, id, req.Productivity)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"application": app})
}

func (h *CatalogHandler) AssignWebsiteCategory(c fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}
	var req categoryAssignment
	if err := bindJSON(c, &req); err != nil {
		return err
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	site, err := h.catalogService.AssignWebsiteCategory(ctx, id, req.CategoryID)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"website": site})
}

func (h *CatalogHandler) ApplicationCategories(c fiber.Ctx) error {
	ctx, cancel := requestContext(c)
	defer cancel()

	categories, err := h.catalogService.ListApplicationCategories(ctx)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"categories": categories})
}

func (h *CatalogHandler) CreateApplicationCategory(c fiber.Ctx) error {
	var req services.CategoryInput
	if err := bindJSON(c, &req); err != nil {
		return err
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	category, err := h.catalogService.CreateApplicationCategory(ctx, &req)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"category": category})
}

func (h *CatalogHandler) UpdateApplicationCategory(c fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}
	var req services.CategoryInput
	if err := bindJSON(c, &req); err != nil {
		return err
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	category, err := h.catalogService.UpdateApplicationCategory(ctx, id, &req)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"category": category})
}

func (h *CatalogHandler) WebsiteCategories(c fiber.Ctx) error {
	ctx, cancel := requestContext(c)
	defer cancel()

	categories, err := h.catalogService.ListWebsiteCategories(ctx)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"categories": categories})
}

func (h *CatalogHandler) CreateWebsiteCategory(c fiber.Ctx) error {
	var req services.CategoryInput
	if err := bindJSON(c, &req); err != nil {
		return err
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	category, err := h.catalogService.CreateWebsiteCategory(ctx, &req)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"category": category})
}

func (h *CatalogHandler) UpdateWebsiteCategory(c fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}
	var req services.CategoryInput
	if err := bindJSON(c, &req); err != nil {
		return err
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	category, err := h.catalogService.UpdateWebsiteCategory(ctx, id, &req)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"category": category})
}

// Export downloads the application, website and device catalogs as one
// XLSX workbook.
func (h *CatalogHandler) Export(c fiber.Ctx) error {
	ctx, cancel := requestContext(c)
	defer cancel()

	var data export.Catalog
	var err error
	if data.Applications, _, err = h.catalogService.ListApplications(ctx, services.CatalogFilter{}); err != nil {
		return err
	}
	if data.Websites, _, err = h.catalogService.ListWebsites(ctx, services.CatalogFilter{}); err != nil {
		return err
	}
	if data.Devices, _, err = h.deviceService.ListDevices(ctx, services.DeviceFilter{}); err != nil {
		return err
	}

	var buf bytes.Buffer
	if err := export.WriteCatalog(&buf, data); err != nil {
		return fmt.Errorf("write catalog workbook: %w", err)
	}

	filename := fmt.Sprintf("trackwatch-catalog-%s.xlsx", time.Now().UTC().Format("20060102"))
	c.Set(fiber.HeaderContentType, xlsxContentType)
	c.Set(fiber.HeaderContentDisposition, fmt.Sprintf(`attachment; filename="%s"`, filename))
	return c.Send(buf.Bytes())
}
