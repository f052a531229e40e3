package models

import (
	"context"
	"time"

	"github.com/uptrace/bun"
)

type ApplicationCategory struct {
	bun.BaseModel `bun:"table:application_categories,alias:ac"`

	ID           int64        `bun:"id,pk,autoincrement" json:"id"`
	Name         string       `bun:"name,notnull,unique" json:"name"`
	Description  *string      `bun:"description" json:"description,omitempty"`
	Color        string       `bun:"color,notnull" json:"color"`
	Productivity Productivity `bun:"productivity,notnull" json:"productivity"`
	CreatedAt    time.Time    `bun:"created_at,nullzero,notnull,default:current_timestamp" json:"created_at"`
}

type WebsiteCategory struct {
	bun.BaseModel `bun:"table:website_categories,alias:wc"`

	ID          int64     `bun:"id,pk,autoincrement" json:"id"`
	Name        string    `bun:"name,notnull,unique" json:"name"`
	Description *string   `bun:"description" json:"description,omitempty"`
	Color       string    `bun:"color,notnull" json:"color"`
	CreatedAt   time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp" json:"created_at"`
}

// Application is a catalog entry keyed by process name.
type Application struct {
	bun.BaseModel `bun:"table:applications,alias:a"`

	ID                int64        `bun:"id,pk,autoincrement" json:"id"`
	ProcessName       string       `bun:"process_name,notnull,unique" json:"process_name"`
	Name              *string      `bun:"name" json:"name,omitempty"`
	ExecutablePath    *string      `bun:"executable_path" json:"executable_path,omitempty"`
	CategoryID        *int64       `bun:"category_id" json:"category_id,omitempty"`
	Productivity      Productivity `bun:"productivity,notnull" json:"productivity"`
	TotalUsageSeconds int64        `bun:"total_usage_seconds,notnull,default:0" json:"total_usage_seconds"`
	TotalSessions     int64        `bun:"total_sessions,notnull,default:0" json:"total_sessions"`
	FirstSeen         time.Time    `bun:"first_seen,notnull" json:"first_seen"`
	LastSeen          time.Time    `bun:"last_seen,notnull" json:"last_seen"`
	CreatedAt         time.Time    `bun:"created_at,nullzero,notnull,default:current_timestamp" json:"created_at"`
	UpdatedAt         time.Time    `bun:"updated_at,nullzero,notnull,default:current_timestamp" json:"updated_at"`

	Category *ApplicationCategory `bun:"rel:belongs-to,join:category_id=id" json:"category,omitempty"`
}

var _ bun.BeforeAppendModelHook = (*Application)(nil)

func (a *Application) BeforeAppendModel(ctx context.Context, query bun.Query) error {
	now := time.Now().UTC()
	switch query.(type) {
	case *bun.InsertQuery:
		a.CreatedAt = now
		a.UpdatedAt = now
		if a.Productivity == "" {
			a.Productivity = ProductivityUnknown
		}
	case *bun.UpdateQuery:
		a.UpdatedAt = now
	}
	return nil
}

// Website is a catalog entry keyed by domain.
type Website struct {
	bun.BaseModel `bun:"table:websites,alias:w"`

	ID                   int64     `bun:"id,pk,autoincrement" json:"id"`
	Domain               string    `bun:"domain,notnull,unique" json:"domain"`
	Title                *string   `bun:"title" json:"title,omitempty"`
	CategoryID           *int64    `bun:"category_id" json:"category_id,omitempty"`
	TotalVisits          int64     `bun:"total_visits,notnull,default:0" json:"total_visits"`
	TotalDurationSeconds int64     `bun:"total_duration_seconds,notnull,default:0" json:"total_duration_seconds"`
	FirstSeen            time.Time `bun:"first_seen,notnull" json:"first_seen"`
	LastSeen             time.Time `bun:"last_seen,notnull" json:"last_seen"`
	CreatedAt            time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp" json:"created_at"`
	UpdatedAt            time.Time `bun:"updated_at,nullzero,notnull,default:current_timestamp" json:"updated_at"`

	Category *WebsiteCategory `bun:"rel:belongs-to,join:category_id=id" json:"category,omitempty"`
}

var _ bun.BeforeAppendModelHook = (*Website)(nil)

func (w *Website) BeforeAppendModel(ctx context.Context, query bun.Query) error {
	now := time.Now().UTC()
	switch query.(type) {
	case *bun.InsertQuery:
		w.CreatedAt = now
		w.UpdatedAt = now
	case *bun.UpdateQuery:
		w.UpdatedAt = now
	}
	return nil
}
