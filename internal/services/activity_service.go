package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/boscod/trackwatch/internal/models"
	"github.com/boscod/trackwatch/internal/storage"
	"github.com/uptrace/bun"
)

// TimelineFilter selects timeline rows of one user. From and To are
// inclusive bounds on start_time and may be zero.
type TimelineFilter struct {
	UserID       int64
	MachineID    int64
	ActivityType string
	From         time.Time
	To           time.Time
	Limit        int
	Offset       int
}

// DailySummary totals one user's activity for a day.
type DailySummary struct {
	UserID                  int64                 `json:"user_id"`
	Date                    string                `json:"date"`
	ProductiveSeconds       int64                 `json:"productive_seconds"`
	UnproductiveSeconds     int64                 `json:"unproductive_seconds"`
	IdleSeconds             int64                 `json:"idle_seconds"`
	ApplicationSeconds      int64                 `json:"application_seconds"`
	WebsiteSeconds          int64                 `json:"website_seconds"`
	ProductiveTargetSeconds int64                 `json:"productive_target_seconds"`
	TopApplications         []ApplicationUseTotal `json:"top_applications"`
}

// ApplicationUseTotal is the usage of one application within a summary.
type ApplicationUseTotal struct {
	ProcessName string `bun:"process_name" json:"process_name"`
	Seconds     int64  `bun:"seconds" json:"seconds"`
	Sessions    int64  `bun:"sessions" json:"sessions"`
}

type ActivityService struct {
	db    *bun.DB
	store storage.Store
}

func NewActivityService(db *bun.DB, store storage.Store) *ActivityService {
	return &ActivityService{db: db, store: store}
}

func (s *ActivityService) Timeline(ctx context.Context, f TimelineFilter) ([]models.TimelineEntry, int, error) {
	if f.UserID <= 0 {
		return nil, 0, validationError("user_id is required")
	}

	var entries []models.TimelineEntry
	query := s.db.NewSelect().
		Model(&entries).
		Where("user_id = ?", f.UserID).
		Order("start_time DESC", "id DESC")
	if f.MachineID > 0 {
		query = query.Where("machine_id = ?", f.MachineID)
	}
	if f.ActivityType != "" {
		query = query.Where("activity_type = ?", f.ActivityType)
	}
	if !f.From.IsZero() {
		query = query.Where("start_time >= ?", models.NormalizeTime(f.From))
	}
	if !f.To.IsZero() {
		query = query.Where("start_time <= ?", models.NormalizeTime(f.To))
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
	return entries, total, nil
}

// DailySummary totals activity ticks, application sessions and website
// visits that started on day (UTC).
func (s *ActivityService) DailySummary(ctx context.Context, userID int64, day time.Time) (*DailySummary, error) {
	start := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC)
	end := start.Add(24 * time.Hour)

	out := &DailySummary{UserID: userID, Date: start.Format(time.DateOnly)}

	var ticks struct {
		Productive   int64 `bun:"productive"`
		Unproductive int64 `bun:"unproductive"`
		Idle         int64 `bun:"idle"`
	}
	err := s.db.NewSelect().
		Model((*models.Activity)(nil)).
		ColumnExpr("COALESCE(SUM(productive_seconds), 0) AS productive").
		ColumnExpr("COALESCE(SUM(unproductive_seconds), 0) AS unproductive").
		ColumnExpr("COALESCE(SUM(idle_seconds), 0) AS idle").
		Where("user_id = ?", userID).
		Where("start_time >= ? AND start_time < ?", start, end).
		Scan(ctx, &ticks)
	if err != nil {
		return nil, fmt.Errorf("sum activity: %w", err)
	}
	out.ProductiveSeconds = ticks.Productive
	out.UnproductiveSeconds = ticks.Unproductive
	out.IdleSeconds = ticks.Idle

	err = s.db.NewSelect().
		Model((*models.ApplicationUsage)(nil)).
		ColumnExpr("COALESCE(SUM(duration_seconds), 0)").
		Where("user_id = ?", userID).
		Where("session_start >= ? AND session_start < ?", start, end).
		Scan(ctx, &out.ApplicationSeconds)
	if err != nil {
		return nil, fmt.Errorf("sum application usage: %w", err)
	}

	err = s.db.NewSelect().
		Model((*models.WebsiteVisit)(nil)).
		ColumnExpr("COALESCE(SUM(duration_seconds), 0)").
		Where("user_id = ?", userID).
		Where("visit_start >= ? AND visit_start < ?", start, end).
		Scan(ctx, &out.WebsiteSeconds)
	if err != nil {
		return nil, fmt.Errorf("sum website visits: %w", err)
	}

	err = s.db.NewSelect().
		Model((*models.ApplicationUsage)(nil)).
		Column("process_name").
		ColumnExpr("SUM(duration_seconds) AS seconds").
		ColumnExpr("COUNT(*) AS sessions").
		Where("user_id = ?", userID).
		Where("session_start >= ? AND session_start < ?", start, end).
		Group("process_name").
		OrderExpr("seconds DESC").
		Limit(10).
		Scan(ctx, &out.TopApplications)
	if err != nil {
		return nil, fmt.Errorf("top applications: %w", err)
	}

	values, err := loadSettings(ctx, s.db)
	if err != nil {
		return nil, err
	}
	out.ProductiveTargetSeconds = int64(intSetting(values, models.SettingProductiveHoursPerDay))
	return out, nil
}

func (s *ActivityService) ListScreenshots(ctx context.Context, userID int64, from, to time.Time, limit, offset int) ([]models.Screenshot, int, error) {
	var shots []models.Screenshot
	query := s.db.NewSelect().
		Model(&shots).
		Order("taken_at DESC", "id DESC")
	if userID > 0 {
		query = query.Where("user_id = ?", userID)
	}
	if !from.IsZero() {
		query = query.Where("taken_at >= ?", models.NormalizeTime(from))
	}
	if !to.IsZero() {
		query = query.Where("taken_at <= ?", models.NormalizeTime(to))
	}

	total, err := query.Count(ctx)
	if err != nil {
		return nil, 0, err
	}
	if err := query.Limit(limit).Offset(offset).Scan(ctx); err != nil {
		return nil, 0, err
	}
	return shots, total, nil
}

// Screenshot returns the metadata and the decoded image bytes of one
// screenshot.
func (s *ActivityService) Screenshot(ctx context.Context, id int64) (*models.Screenshot, []byte, error) {
	shot := new(models.Screenshot)
	if err := s.db.NewSelect().Model(shot).Where("id = ?", id).Scan(ctx); err != nil {
		return nil, nil, notFoundOr(err, fmt.Sprintf("screenshot %d", id))
	}

	data, err := s.store.Get(ctx, shot.ObjectKey)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil, notFound(fmt.Sprintf("screenshot %d content", id))
	}
	if err != nil {
		return nil, nil, fmt.Errorf("read screenshot %d: %w", id, err)
	}
	return shot, data, nil
}
