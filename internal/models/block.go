package models

import (
	"context"
	"time"

	"github.com/uptrace/bun"
)

// ApplicationBlock targets an application by catalog id, by category, or by
// raw process name. UserID is set for user scope, MachineID for machine scope.
type ApplicationBlock struct {
	bun.BaseModel `bun:"table:application_blocks,alias:ab"`

	ID            int64     `bun:"id,pk,autoincrement" json:"id"`
	Scope         Scope     `bun:"scope,notnull" json:"scope"`
	UserID        *int64    `bun:"user_id" json:"user_id,omitempty"`
	MachineID     *int64    `bun:"machine_id" json:"machine_id,omitempty"`
	ApplicationID *int64    `bun:"application_id" json:"application_id,omitempty"`
	CategoryID    *int64    `bun:"category_id" json:"category_id,omitempty"`
	ProcessName   *string   `bun:"process_name" json:"process_name,omitempty"`
	Reason        *string   `bun:"reason" json:"reason,omitempty"`
	IsActive      bool      `bun:"is_active,notnull" json:"is_active"`
	CreatedBy     *int64    `bun:"created_by" json:"created_by,omitempty"`
	CreatedAt     time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp" json:"created_at"`
	UpdatedAt     time.Time `bun:"updated_at,nullzero,notnull,default:current_timestamp" json:"updated_at"`
}

var _ bun.BeforeAppendModelHook = (*ApplicationBlock)(nil)

func (b *ApplicationBlock) BeforeAppendModel(ctx context.Context, query bun.Query) error {
	now := time.Now().UTC()
	switch query.(type) {
	case *bun.InsertQuery:
		b.CreatedAt = now
		b.UpdatedAt = now
	case *bun.UpdateQuery:
		b.UpdatedAt = now
	}
	return nil
}

// WebsiteBlock targets a website by catalog id, by category, or by a domain
// substring pattern.
type WebsiteBlock struct {
	bun.BaseModel `bun:"table:website_blocks,alias:wb"`

	ID            int64     `bun:"id,pk,autoincrement" json:"id"`
	Scope         Scope     `bun:"scope,notnull" json:"scope"`
	UserID        *int64    `bun:"user_id" json:"user_id,omitempty"`
	MachineID     *int64    `bun:"machine_id" json:"machine_id,omitempty"`
	WebsiteID     *int64    `bun:"website_id" json:"website_id,omitempty"`
	CategoryID    *int64    `bun:"category_id" json:"category_id,omitempty"`
	DomainPattern *string   `bun:"domain_pattern" json:"domain_pattern,omitempty"`
	Reason        *string   `bun:"reason" json:"reason,omitempty"`
	IsActive      bool      `bun:"is_active,notnull" json:"is_active"`
	CreatedBy     *int64    `bun:"created_by" json:"created_by,omitempty"`
	CreatedAt     time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp" json:"created_at"`
	UpdatedAt     time.Time `bun:"updated_at,nullzero,notnull,default:current_timestamp" json:"updated_at"`
}

var _ bun.BeforeAppendModelHook = (*WebsiteBlock)(nil)

func (b *WebsiteBlock) BeforeAppendModel(ctx context.Context, query bun.Query) error {
	now := time.Now().UTC()
	switch query.(type) {
	case *bun.InsertQuery:
		b.CreatedAt = now
		b.UpdatedAt = now
	case *bun.UpdateQuery:
		b.UpdatedAt = now
	}
	return nil
}
