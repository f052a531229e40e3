package models

import (
	"context"
	"time"

	"github.com/uptrace/bun"
)

// ApplicationUsage is one application session. DurationSeconds holds the
// last cumulative duration applied to the catalog aggregate.
type ApplicationUsage struct {
	bun.BaseModel `bun:"table:application_usage,alias:au"`

	ID              int64        `bun:"id,pk,autoincrement" json:"id"`
	UserID          int64        `bun:"user_id,notnull" json:"user_id"`
	MachineID       int64        `bun:"machine_id,notnull" json:"machine_id"`
	ApplicationID   int64        `bun:"application_id,notnull" json:"application_id"`
	ProcessName     string       `bun:"process_name,notnull" json:"process_name"`
	ApplicationName *string      `bun:"application_name" json:"application_name,omitempty"`
	WindowTitle     *string      `bun:"window_title" json:"window_title,omitempty"`
	ExecutablePath  *string      `bun:"executable_path" json:"executable_path,omitempty"`
	SessionStart    time.Time    `bun:"session_start,notnull" json:"session_start"`
	SessionEnd      *time.Time   `bun:"session_end" json:"session_end,omitempty"`
	DurationSeconds int64        `bun:"duration_seconds,notnull,default:0" json:"duration_seconds"`
	Productivity    Productivity `bun:"productivity,notnull" json:"productivity"`
	IsBlocked       bool         `bun:"is_blocked,notnull" json:"is_blocked"`
	CreatedAt       time.Time    `bun:"created_at,nullzero,notnull,default:current_timestamp" json:"created_at"`
}

// WebsiteVisit is one visit to a domain. DurationSeconds follows the same
// last-applied convention as ApplicationUsage.
type WebsiteVisit struct {
	bun.BaseModel `bun:"table:website_visits,alias:wv"`

	ID              int64      `bun:"id,pk,autoincrement" json:"id"`
	UserID          int64      `bun:"user_id,notnull" json:"user_id"`
	MachineID       int64      `bun:"machine_id,notnull" json:"machine_id"`
	WebsiteID       int64      `bun:"website_id,notnull" json:"website_id"`
	Domain          string     `bun:"domain,notnull" json:"domain"`
	URL             *string    `bun:"url" json:"url,omitempty"`
	Title           *string    `bun:"title" json:"title,omitempty"`
	Browser         *string    `bun:"browser" json:"browser,omitempty"`
	IsPrivate       bool       `bun:"is_private,notnull" json:"is_private"`
	IsIncognito     bool       `bun:"is_incognito,notnull" json:"is_incognito"`
	VisitStart      time.Time  `bun:"visit_start,notnull" json:"visit_start"`
	VisitEnd        *time.Time `bun:"visit_end" json:"visit_end,omitempty"`
	DurationSeconds int64      `bun:"duration_seconds,notnull,default:0" json:"duration_seconds"`
	IsBlocked       bool       `bun:"is_blocked,notnull" json:"is_blocked"`
	CreatedAt       time.Time  `bun:"created_at,nullzero,notnull,default:current_timestamp" json:"created_at"`
}

// Activity is a generic tick reported through batch ingest.
type Activity struct {
	bun.BaseModel `bun:"table:activity,alias:act"`

	ID                  int64     `bun:"id,pk,autoincrement" json:"id"`
	UserID              int64     `bun:"user_id,notnull" json:"user_id"`
	MachineID           int64     `bun:"machine_id,notnull" json:"machine_id"`
	StartTime           time.Time `bun:"start_time,notnull" json:"start_time"`
	EndTime             time.Time `bun:"end_time,notnull" json:"end_time"`
	ProductiveSeconds   int64     `bun:"productive_seconds,notnull,default:0" json:"productive_seconds"`
	UnproductiveSeconds int64     `bun:"unproductive_seconds,notnull,default:0" json:"unproductive_seconds"`
	IdleSeconds         int64     `bun:"idle_seconds,notnull,default:0" json:"idle_seconds"`
	MouseMoves          int64     `bun:"mouse_moves,notnull,default:0" json:"mouse_moves"`
	KeyPresses          int64     `bun:"key_presses,notnull,default:0" json:"key_presses"`
	CreatedAt           time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp" json:"created_at"`
}

// TimelineEntry is the unified cross-type activity log. SourceID points at
// the ApplicationUsage or WebsiteVisit row the entry mirrors.
type TimelineEntry struct {
	bun.BaseModel `bun:"table:activity_timeline,alias:tl"`

	ID              int64        `bun:"id,pk,autoincrement" json:"id"`
	UserID          int64        `bun:"user_id,notnull" json:"user_id"`
	MachineID       int64        `bun:"machine_id,notnull" json:"machine_id"`
	ActivityType    string       `bun:"activity_type,notnull" json:"activity_type"`
	SourceID        *int64       `bun:"source_id" json:"source_id,omitempty"`
	Title           string       `bun:"title,notnull" json:"title"`
	Detail          *string      `bun:"detail" json:"detail,omitempty"`
	StartTime       time.Time    `bun:"start_time,notnull" json:"start_time"`
	EndTime         *time.Time   `bun:"end_time" json:"end_time,omitempty"`
	DurationSeconds int64        `bun:"duration_seconds,notnull,default:0" json:"duration_seconds"`
	Productivity    Productivity `bun:"productivity,notnull" json:"productivity"`
	CreatedAt       time.Time    `bun:"created_at,nullzero,notnull,default:current_timestamp" json:"created_at"`
}

// Screenshot is the metadata row of a stored screenshot blob.
type Screenshot struct {
	bun.BaseModel `bun:"table:screenshots,alias:sc"`

	ID        int64     `bun:"id,pk,autoincrement" json:"id"`
	UserID    int64     `bun:"user_id,notnull" json:"user_id"`
	MachineID int64     `bun:"machine_id,notnull" json:"machine_id"`
	ObjectKey string    `bun:"object_key,notnull" json:"object_key"`
	SizeKB    int64     `bun:"size_kb,notnull,default:0" json:"size_kb"`
	Encrypted bool      `bun:"encrypted,notnull" json:"encrypted"`
	TakenAt   time.Time `bun:"taken_at,notnull" json:"taken_at"`
	CreatedAt time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp" json:"created_at"`
}

var (
	_ bun.BeforeAppendModelHook = (*ApplicationUsage)(nil)
	_ bun.BeforeAppendModelHook = (*WebsiteVisit)(nil)
	_ bun.BeforeAppendModelHook = (*Activity)(nil)
	_ bun.BeforeAppendModelHook = (*TimelineEntry)(nil)
	_ bun.BeforeAppendModelHook = (*Screenshot)(nil)
)

func (u *ApplicationUsage) BeforeAppendModel(ctx context.Context, query bun.Query) error {
	if _, ok := query.(*bun.InsertQuery); ok {
		u.CreatedAt = time.Now().UTC()
		if u.Productivity == "" {
			u.Productivity = ProductivityUnknown
		}
	}
	return nil
}

func (v *WebsiteVisit) BeforeAppendModel(ctx context.Context, query bun.Query) error {
	if _, ok := query.(*bun.InsertQuery); ok {
		v.CreatedAt = time.Now().UTC()
	}
	return nil
}

func (a *Activity) BeforeAppendModel(ctx context.Context, query bun.Query) error {
	if _, ok := query.(*bun.InsertQuery); ok {
		a.CreatedAt = time.Now().UTC()
	}
	return nil
}

func (t *TimelineEntry) BeforeAppendModel(ctx context.Context, query bun.Query) error {
	if _, ok := query.(*bun.InsertQuery); ok {
		t.CreatedAt = time.Now().UTC()
		if t.Productivity == "" {
			t.Productivity = ProductivityUnknown
		}
	}
	return nil
}

func (s *Screenshot) BeforeAppendModel(ctx context.Context, query bun.Query) error {
	if _, ok := query.(*bun.InsertQuery); ok {
		s.CreatedAt = time.Now().UTC()
	}
	return nil
}
