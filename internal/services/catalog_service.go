package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/boscod/trackwatch/internal/models"
	"github.com/uptrace/bun"
)

// CatalogFilter narrows catalog listings. Zero values match everything.
type CatalogFilter struct {
	CategoryID   int64
	Search       string
	Productivity models.Productivity
	Limit        int
	Offset       int
}

// CategoryInput is the body of a category create or update.
type CategoryInput struct {
	Name         string  `json:"name"`
	Description  *string `json:"description"`
	Color        string  `json:"color"`
	Productivity string  `json:"productivity"`
}

type CatalogService struct {
	db *bun.DB
}

func NewCatalogService(db *bun.DB) *CatalogService {
	return &CatalogService{db: db}
}

func (s *CatalogService) ListMachines(ctx context.Context) ([]models.Machine, error) {
	var machines []models.Machine
	err := s.db.NewSelect().
		Model(&machines).
		Relation("User").
		Order("m.last_seen DESC", "m.id DESC").
		Scan(ctx)
	return machines, err
}

func (s *CatalogService) ListApplications(ctx context.Context, f CatalogFilter) ([]models.Application, int, error) {
	var apps []models.Application
	query := s.db.NewSelect().
		Model(&apps).
		Relation("Category").
		Order("a.total_usage_seconds DESC", "a.id ASC")

	if f.CategoryID > 0 {
		query = query.Where("a.category_id = ?", f.CategoryID)
	}
	if f.Productivity != "" {
		query = query.Where("a.productivity = ?", f.Productivity)
	}
	if f.Search != "" {
		like := "%" + strings.ToLower(f.Search) + "%"
		query = query.WhereGroup(" AND ", func(q *bun.SelectQuery) *bun.SelectQuery {
			return q.Where("LOWER(a.process_name) LIKE ?", like).
				WhereOr("LOWER(a.name) LIKE ?", like)
		})
	}

	total, err := query.Count(ctx)
	if err != nil {
		return nil, 0, err
	}
	if f.Limit > 0 {
		query = query.Limit(f.Limit).Offset(f.Offset)
	}
	if err := query.Scan(ctx); err != nil {
		return nil, 0, err
	}
	return apps, total, nil
}

func (s *CatalogService) ListWebsites(ctx context.Context, f CatalogFilter) ([]models.Website, int, error) {
	var sites []models.Website
	query := s.db.NewSelect().
		Model(&sites).
		Relation("Category").
		Order("w.total_visits DESC", "w.id ASC")

	if f.CategoryID > 0 {
		query = query.Where("w.category_id = ?", f.CategoryID)
	}
	if f.Search != "" {
		like := "%" + strings.ToLower(f.Search) + "%"
		query = query.WhereGroup(" AND ", func(q *bun.SelectQuery) *bun.SelectQuery {
			return q.Where("LOWER(w.domain) LIKE ?", like).
				WhereOr("LOWER(w.title) LIKE ?", like)
		})
	}

	total, err := query.Count(ctx)
	if err != nil {
		return nil, 0, err
	}
	if f.Limit > 0 {
		query = query.Limit(f.Limit).Offset(f.Offset)
	}
	if err := query.Scan(ctx); err != nil {
		return nil, 0, err
	}
	return sites, total, nil
}

func (s *CatalogService) ListApplicationCategories(ctx context.Context) ([]models.ApplicationCategory, error) {
	var categories []models.ApplicationCategory
	err := s.db.NewSelect().Model(&categories).Order("name ASC").Scan(ctx)
	return categories, err
}

func (s *CatalogService) ListWebsiteCategories(ctx context.Context) ([]models.WebsiteCategory, error) {
	var categories []models.WebsiteCategory
	err := s.db.NewSelect().Model(&categories).Order("name ASC").Scan(ctx)
	return categories, err
}

func (in *CategoryInput) normalize() error {
	in.Name = strings.TrimSpace(in.Name)
	if in.Name == "" {
		return validationError("name is required")
	}
	in.Color = strings.TrimSpace(in.Color)
	if in.Color == "" {
		in.Color = "#6b7280"
	}
	in.Description = optionalString(deref(in.Description))
	return nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// categoryNameTaken reports whether another category of kind already uses
// name.
func categoryNameTaken(ctx context.Context, db bun.IDB, kind RuleKind, name string, exceptID int64) (bool, error) {
	model := any((*models.ApplicationCategory)(nil))
	if kind == RuleWebsite {
		model = (*models.WebsiteCategory)(nil)
	}
	return db.NewSelect().
		Model(model).
		Where("name = ?", name).
		Where("id <> ?", exceptID).
		Exists(ctx)
}

func (s *CatalogService) CreateApplicationCategory(ctx context.Context, in *CategoryInput) (*models.ApplicationCategory, error) {
	if err := in.normalize(); err != nil {
		return nil, err
	}
	productivity, err := models.ParseProductivity(in.Productivity)
	if err != nil {
		return nil, validationError("%s", err.Error())
	}

	taken, err := categoryNameTaken(ctx, s.db, RuleApplication, in.Name, 0)
	if err != nil {
		return nil, err
	}
	if taken {
		return nil, conflict("category %q already exists", in.Name)
	}

	category := &models.ApplicationCategory{
		Name:         in.Name,
		Description:  in.Description,
		Color:        in.Color,
		Productivity: productivity,
	}
	if _, err := s.db.NewInsert().Model(category).Exec(ctx); err != nil {
		return nil, fmt.Errorf("insert category: %w", err)
	}
	return category, nil
}

func (s *CatalogService) UpdateApplicationCategory(ctx context.Context, id int64, in *CategoryInput) (*models.ApplicationCategory, error) {
	if err := in.normalize(); err != nil {
		return nil, err
	}
	productivity, err := models.ParseProductivity(in.Productivity)
	if err != nil {
		return nil, validationError("%s", err.Error())
	}

	category := new(models.ApplicationCategory)
	if err := s.db.NewSelect().Model(category).Where("id = ?", id).Scan(ctx); err != nil {
		return nil, notFoundOr(err, fmt.Sprintf("category %d", id))
	}
	taken, err := categoryNameTaken(ctx, s.db, RuleApplication, in.Name, id)
	if err != nil {
		return nil, err
	}
	if taken {
		return nil, conflict("category %q already exists", in.Name)
	}

	category.Name = in.Name
	category.Description = in.Description
	category.Color = in.Color
	category.Productivity = productivity
	_, err = s.db.NewUpdate().
		Model(category).
		Column("name", "description", "color", "productivity").
		WherePK().
		Exec(ctx)
	if err != nil {
		return nil, fmt.Errorf("update category: %w", err)
	}
	return category, nil
}

func (s *CatalogService) CreateWebsiteCategory(ctx context.Context, in *CategoryInput) (*models.WebsiteCategory, error) {
	if err := in.normalize(); err != nil {
		return nil, err
	}
	taken, err := categoryNameTaken(ctx, s.db, RuleWebsite, in.Name, 0)
	if err != nil {
		return nil, err
	}
	if taken {
		return nil, conflict("category %q already exists", in.Name)
	}

	category := &models.WebsiteCategory{Name: in.Name, Description: in.Description, Color: in.Color}
	if _, err := s.db.NewInsert().Model(category).Exec(ctx); err != nil {
		return nil, fmt.Errorf("insert category: %w", err)
	}
	return category, nil
}

func (s *CatalogService) UpdateWebsiteCategory(ctx context.Context, id int64, in *CategoryInput) (*models.WebsiteCategory, error) {
	if err := in.normalize(); err != nil {
		return nil, err
	}

	category := new(models.WebsiteCategory)
	if err := s.db.NewSelect().Model(category).Where("id = ?", id).Scan(ctx); err != nil {
		return nil, notFoundOr(err, fmt.Sprintf("category %d", id))
	}
	taken, err := categoryNameTaken(ctx, s.db, RuleWebsite, in.Name, id)
	if err != nil {
		return nil, err
	}
	if taken {
		return nil, conflict("category %q already exists", in.Name)
	}

	category.Name = in.Name
	category.Description = in.Description
	category.Color = in.Color
	_, err = s.db.NewUpdate().
		Model(category).
		Column("name", "description", "color").
		WherePK().
		Exec(ctx)
	if err != nil {
		return nil, fmt.Errorf("update category: %w", err)
	}
	return category, nil
}

// AssignApplicationCategory sets or, with a nil categoryID, clears the
// category of an application.
func (s *CatalogService) AssignApplicationCategory(ctx context.Context, appID int64, categoryID *int64) (*models.Application, error) {
	if categoryID != nil {
		exists, err := s.db.NewSelect().Model((*models.ApplicationCategory)(nil)).Where("id = ?", *categoryID).Exists(ctx)
		if err != nil {
			return nil, err
		}
		if !exists {
			return nil, notFound(fmt.Sprintf("category %d", *categoryID))
		}
	}

	app := &models.Application{ID: appID, CategoryID: categoryID}
	res, err := s.db.NewUpdate().
		Model(app).
		Column("category_id", "updated_at").
		WherePK().
		Exec(ctx)
	if err != nil {
		return nil, fmt.Errorf("update application: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, notFound(fmt.Sprintf("application %d", appID))
	}
	return s.GetApplication(ctx, appID)
}

func (s *CatalogService) AssignWebsiteCategory(ctx context.Context, siteID int64, categoryID *int64) (*models.Website, error) {
	if categoryID != nil {
		exists, err := s.db.NewSelect().Model((*models.WebsiteCategory)(nil)).Where("id = ?", *categoryID).Exists(ctx)
		if err != nil {
			return nil, err
		}
		if !exists {
			return nil, notFound(fmt.Sprintf("category %d", *categoryID))
		}
	}

	site := &models.Website{ID: siteID, CategoryID: categoryID}
	res, err := s.db.NewUpdate().
		Model(site).
		Column("category_id", "updated_at").
		WherePK().
		Exec(ctx)
	if err != nil {
		return nil, fmt.Errorf("update website: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, notFound(fmt.Sprintf("website %d", siteID))
	}

	out := new(models.Website)
	err = s.db.NewSelect().Model(out).Relation("Category").Where("w.id = ?", siteID).Scan(ctx)
	if err != nil {
		return nil, notFoundOr(err, fmt.Sprintf("website %d", siteID))
	}
	return out, nil
}

// SetApplicationProductivity overrides the productivity of an application.
func (s *CatalogService) SetApplicationProductivity(ctx context.Context, appID int64, productivity string) (*models.Application, error) {
	p, err := models.ParseProductivity(productivity)
	if err != nil {
		return nil, validationError("%s", err.Error())
	}

	app := &models.Application{ID: appID, Productivity: p}
	res, err := s.db.NewUpdate().
		Model(app).
		Column("productivity", "updated_at").
		WherePK().
		Exec(ctx)
	if err != nil {
		return nil, fmt.Errorf("update application: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, notFound(fmt.Sprintf("application %d", appID))
	}
	return s.GetApplication(ctx, appID)
}

func (s *CatalogService) GetApplication(ctx context.Context, id int64) (*models.Application, error) {
	app := new(models.Application)
	err := s.db.NewSelect().Model(app).Relation("Category").Where("a.id = ?", id).Scan(ctx)
	if err != nil {
		return nil, notFoundOr(err, fmt.Sprintf("application %d", id))
	}
	return app, nil
}
