package services

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/boscod/trackwatch/internal/models"
	"github.com/boscod/trackwatch/internal/policy"
	"github.com/uptrace/bun"
)

// catalogEntry is what an upsert hands back to the caller.
type catalogEntry struct {
	ID         int64
	CategoryID *int64
}

// upsertApplicationSQL inserts a new application or counts one more session
// on the existing row in a single statement. Descriptive fields are only
// filled while empty, and last_seen never moves backwards.
const upsertApplicationSQL = `
INSERT INTO applications AS app (process_name, name, executable_path, productivity,
	total_usage_seconds, total_sessions, first_seen, last_seen, created_at, updated_at)
VALUES (?, ?, ?, ?, 0, 1, ?, ?, ?, ?)
ON CONFLICT (process_name) DO UPDATE SET
	total_sessions = app.total_sessions + 1,
	last_seen = CASE WHEN excluded.last_seen > app.last_seen THEN excluded.last_seen ELSE app.last_seen END,
	name = COALESCE(app.name, excluded.name),
	executable_path = COALESCE(app.executable_path, excluded.executable_path),
	productivity = CASE WHEN app.productivity = 'unknown' THEN excluded.productivity ELSE app.productivity END,
	updated_at = excluded.updated_at
RETURNING id, category_id`

const upsertWebsiteSQL = `
INSERT INTO websites AS site (domain, title, total_visits, total_duration_seconds,
	first_seen, last_seen, created_at, updated_at)
VALUES (?, ?, 1, 0, ?, ?, ?, ?)
ON CONFLICT (domain) DO UPDATE SET
	total_visits = site.total_visits + 1,
	last_seen = CASE WHEN excluded.last_seen > site.last_seen THEN excluded.last_seen ELSE site.last_seen END,
	title = COALESCE(site.title, excluded.title),
	updated_at = excluded.updated_at
RETURNING id, category_id`

type applicationObservation struct {
	ProcessName    string
	Name           *string
	ExecutablePath *string
	Productivity   models.Productivity
	SeenAt         time.Time
}

func upsertApplication(ctx context.Context, db bun.IDB, obs applicationObservation) (catalogEntry, error) {
	productivity := obs.Productivity
	if productivity == "" {
		productivity = models.ProductivityUnknown
	}
	now := time.Now().UTC()

	var id int64
	var categoryID sql.NullInt64
	err := db.NewRaw(upsertApplicationSQL,
		obs.ProcessName, obs.Name, obs.ExecutablePath, productivity,
		obs.SeenAt, obs.SeenAt, now, now,
	).Scan(ctx, &id, &categoryID)
	if err != nil {
		return catalogEntry{}, fmt.Errorf("upsert application %s: %w", obs.ProcessName, err)
	}
	return catalogEntry{ID: id, CategoryID: nullableID(categoryID)}, nil
}

type websiteObservation struct {
	Domain string
	Title  *string
	SeenAt time.Time
}

func upsertWebsite(ctx context.Context, db bun.IDB, obs websiteObservation) (catalogEntry, error) {
	now := time.Now().UTC()

	var id int64
	var categoryID sql.NullInt64
	err := db.NewRaw(upsertWebsiteSQL,
		obs.Domain, obs.Title, obs.SeenAt, obs.SeenAt, now, now,
	).Scan(ctx, &id, &categoryID)
	if err != nil {
		return catalogEntry{}, fmt.Errorf("upsert website %s: %w", obs.Domain, err)
	}
	return catalogEntry{ID: id, CategoryID: nullableID(categoryID)}, nil
}

func nullableID(v sql.NullInt64) *int64 {
	if !v.Valid {
		return nil
	}
	id := v.Int64
	return &id
}

// activeApplicationRules loads the active rules that can apply to actor.
func activeApplicationRules(ctx context.Context, db bun.IDB, actor policy.Actor) ([]policy.Rule, error) {
	var blocks []models.ApplicationBlock
	err := db.NewSelect().
		Model(&blocks).
		Where("is_active = ?", true).
		WhereGroup(" AND ", func(q *bun.SelectQuery) *bun.SelectQuery {
			return q.
				Where("scope = ?", models.ScopeGlobal).
				WhereOr("scope = ? AND user_id = ?", models.ScopeUser, actor.UserID).
				WhereOr("scope = ? AND machine_id = ?", models.ScopeMachine, actor.MachineID)
		}).
		Order("id ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("load application rules: %w", err)
	}
	return policy.FromApplicationBlocks(blocks), nil
}

func activeWebsiteRules(ctx context.Context, db bun.IDB, actor policy.Actor) ([]policy.Rule, error) {
	var blocks []models.WebsiteBlock
	err := db.NewSelect().
		Model(&blocks).
		Where("is_active = ?", true).
		WhereGroup(" AND ", func(q *bun.SelectQuery) *bun.SelectQuery {
			return q.
				Where("scope = ?", models.ScopeGlobal).
				WhereOr("scope = ? AND user_id = ?", models.ScopeUser, actor.UserID).
				WhereOr("scope = ? AND machine_id = ?", models.ScopeMachine, actor.MachineID)
		}).
		Order("id ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("load website rules: %w", err)
	}
	return policy.FromWebsiteBlocks(blocks), nil
}
