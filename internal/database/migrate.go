package database

import (
	"context"
	"fmt"

	"github.com/boscod/trackwatch/config"
	"github.com/boscod/trackwatch/internal/models"
	"github.com/uptrace/bun"
)

var tables = []any{
	(*models.User)(nil),
	(*models.Machine)(nil),
	(*models.ApplicationCategory)(nil),
	(*models.WebsiteCategory)(nil),
	(*models.Application)(nil),
	(*models.Website)(nil),
	(*models.ApplicationBlock)(nil),
	(*models.WebsiteBlock)(nil),
	(*models.ApplicationUsage)(nil),
	(*models.WebsiteVisit)(nil),
	(*models.Activity)(nil),
	(*models.TimelineEntry)(nil),
	(*models.Screenshot)(nil),
	(*models.Device)(nil),
	(*models.DeviceLog)(nil),
	(*models.DeviceMonitoring)(nil),
	(*models.Setting)(nil),
	(*models.Notification)(nil),
}

type index struct {
	model   any
	name    string
	columns []string
}

var indexes = []index{
	{(*models.ApplicationUsage)(nil), "idx_application_usage_session", []string{"user_id", "machine_id", "process_name", "session_start"}},
	{(*models.WebsiteVisit)(nil), "idx_website_visits_session", []string{"user_id", "machine_id", "domain", "visit_start"}},
	{(*models.TimelineEntry)(nil), "idx_activity_timeline_user_start", []string{"user_id", "start_time"}},
	{(*models.TimelineEntry)(nil), "idx_activity_timeline_source", []string{"activity_type", "source_id"}},
	{(*models.Activity)(nil), "idx_activity_user_start", []string{"user_id", "start_time"}},
	{(*models.ApplicationBlock)(nil), "idx_application_blocks_active", []string{"is_active", "scope"}},
	{(*models.WebsiteBlock)(nil), "idx_website_blocks_active", []string{"is_active", "scope"}},
	{(*models.DeviceLog)(nil), "idx_device_logs_device", []string{"device_id", "created_at"}},
	{(*models.Screenshot)(nil), "idx_screenshots_user_taken", []string{"user_id", "taken_at"}},
	{(*models.Notification)(nil), "idx_notifications_user_read", []string{"user_id", "is_read"}},
}

// Migrate creates missing tables and indexes and seeds default settings and
// categories. It is safe to run on every start.
func Migrate(ctx context.Context, db *bun.DB, defaults *config.Defaults) error {
	for _, model := range tables {
		if _, err := db.NewCreateTable().Model(model).IfNotExists().Exec(ctx); err != nil {
			return fmt.Errorf("create table for %T: %w", model, err)
		}
	}

	for _, idx := range indexes {
		_, err := db.NewCreateIndex().
			Model(idx.model).
			Index(idx.name).
			Column(idx.columns...).
			IfNotExists().
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("create index %s: %w", idx.name, err)
		}
	}

	// One device row per machine and vendor/product/serial, whatever name
	// the device reports. Hash-only devices rely on the (machine_id,
	// device_hash) constraint.
	_, err := db.NewCreateIndex().
		Model((*models.Device)(nil)).
		Unique().
		Index("idx_devices_machine_triple").
		Column("machine_id", "vendor_id", "product_id", "serial_number").
		Where("vendor_id IS NOT NULL AND product_id IS NOT NULL AND serial_number IS NOT NULL").
		IfNotExists().
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("create index idx_devices_machine_triple: %w", err)
	}

	if defaults != nil {
		if err := seed(ctx, db, defaults); err != nil {
			return err
		}
	}
	return nil
}

func seed(ctx context.Context, db bun.IDB, defaults *config.Defaults) error {
	if len(defaults.Settings) > 0 {
		settings := make([]models.Setting, 0, len(defaults.Settings))
		for k, v := range defaults.Settings {
			settings = append(settings, models.Setting{Key: k, Value: v})
		}
		_, err := db.NewInsert().Model(&settings).On(`CONFLICT ("key") DO NOTHING`).Returning("NULL").Exec(ctx)
		if err != nil {
			return fmt.Errorf("seed settings: %w", err)
		}
	}

	if len(defaults.ApplicationCategories) > 0 {
		cats := make([]models.ApplicationCategory, 0, len(defaults.ApplicationCategories))
		for _, c := range defaults.ApplicationCategories {
			p, err := models.ParseProductivity(c.Productivity)
			if err != nil {
				return fmt.Errorf("seed category %s: %w", c.Name, err)
			}
			cats = append(cats, models.ApplicationCategory{
				Name:         c.Name,
				Description:  optional(c.Description),
				Color:        colorOrDefault(c.Color),
				Productivity: p,
			})
		}
		_, err := db.NewInsert().Model(&cats).On("CONFLICT (name) DO NOTHING").Returning("NULL").Exec(ctx)
		if err != nil {
			return fmt.Errorf("seed application categories: %w", err)
		}
	}

	if len(defaults.WebsiteCategories) > 0 {
		cats := make([]models.WebsiteCategory, 0, len(defaults.WebsiteCategories))
		for _, c := range defaults.WebsiteCategories {
			cats = append(cats, models.WebsiteCategory{
				Name:        c.Name,
				Description: optional(c.Description),
				Color:       colorOrDefault(c.Color),
			})
		}
		_, err := db.NewInsert().Model(&cats).On("CONFLICT (name) DO NOTHING").Returning("NULL").Exec(ctx)
		if err != nil {
			return fmt.Errorf("seed website categories: %w", err)
		}
	}
	return nil
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func colorOrDefault(c string) string {
	if c == "" {
		return "#95a5a6"
	}
	return c
}
