package models

import (
	"context"
	"time"

	"github.com/uptrace/bun"
)

// Machine is an agent-bearing endpoint. ExternalID is chosen by the agent
// and is sent on the wire as machine_id.
type Machine struct {
	bun.BaseModel `bun:"table:machines,alias:m"`

	ID          int64     `bun:"id,pk,autoincrement" json:"id"`
	ExternalID  string    `bun:"external_id,notnull,unique" json:"machine_id"`
	UserID      *int64    `bun:"user_id" json:"user_id,omitempty"`
	Hostname    *string   `bun:"hostname" json:"hostname,omitempty"`
	DisplayName *string   `bun:"display_name" json:"display_name,omitempty"`
	Email       *string   `bun:"email" json:"email,omitempty"`
	UPN         *string   `bun:"upn" json:"upn,omitempty"`
	LastSeen    time.Time `bun:"last_seen,notnull" json:"last_seen"`
	CreatedAt   time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp" json:"created_at"`
	UpdatedAt   time.Time `bun:"updated_at,nullzero,notnull,default:current_timestamp" json:"updated_at"`

	User *User `bun:"rel:belongs-to,join:user_id=id" json:"user,omitempty"`
}

var _ bun.BeforeAppendModelHook = (*Machine)(nil)

func (m *Machine) BeforeAppendModel(ctx context.Context, query bun.Query) error {
	now := time.Now().UTC()
	switch query.(type) {
	case *bun.InsertQuery:
		m.CreatedAt = now
		m.UpdatedAt = now
		if m.LastSeen.IsZero() {
			m.LastSeen = NormalizeTime(now)
		}
	case *bun.UpdateQuery:
		m.UpdatedAt = now
	}
	return nil
}
