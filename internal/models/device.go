package models

import (
	"context"
	"encoding/json"
	"time"

	"github.com/uptrace/bun"
)

// Device is a peripheral seen on one machine. The same physical device on
// two machines is two rows.
type Device struct {
	bun.BaseModel `bun:"table:devices,alias:d"`

	ID           int64      `bun:"id,pk,autoincrement" json:"id"`
	MachineID    int64      `bun:"machine_id,notnull,unique:devices_machine_hash" json:"machine_id"`
	DeviceHash   string     `bun:"device_hash,notnull,unique:devices_machine_hash" json:"device_hash"`
	UserID       *int64     `bun:"user_id" json:"user_id,omitempty"`
	VendorID     *string    `bun:"vendor_id" json:"vendor_id,omitempty"`
	ProductID    *string    `bun:"product_id" json:"product_id,omitempty"`
	SerialNumber *string    `bun:"serial_number" json:"serial_number,omitempty"`
	Name         string     `bun:"name,notnull" json:"name"`
	DeviceType   string     `bun:"device_type,notnull" json:"device_type"`
	DevicePath   *string    `bun:"device_path" json:"device_path,omitempty"`
	Permission   Permission `bun:"permission,notnull" json:"permission"`
	FirstSeen    time.Time  `bun:"first_seen,notnull" json:"first_seen"`
	LastSeen     time.Time  `bun:"last_seen,notnull" json:"last_seen"`
	CreatedAt    time.Time  `bun:"created_at,nullzero,notnull,default:current_timestamp" json:"created_at"`
	UpdatedAt    time.Time  `bun:"updated_at,nullzero,notnull,default:current_timestamp" json:"updated_at"`

	Machine *Machine `bun:"rel:belongs-to,join:machine_id=id" json:"machine,omitempty"`
}

var _ bun.BeforeAppendModelHook = (*Device)(nil)

func (d *Device) BeforeAppendModel(ctx context.Context, query bun.Query) error {
	now := time.Now().UTC()
	switch query.(type) {
	case *bun.InsertQuery:
		d.CreatedAt = now
		d.UpdatedAt = now
		if d.Permission == "" {
			d.Permission = PermissionPending
		}
	case *bun.UpdateQuery:
		d.UpdatedAt = now
	}
	return nil
}

// DeviceLogDetails is stored as JSON on every device log row.
type DeviceLogDetails struct {
	DeviceHash     string     `json:"device_hash,omitempty"`
	DevicePath     string     `json:"device_path,omitempty"`
	ReportedAction string     `json:"reported_action,omitempty"`
	Previous       Permission `json:"previous,omitempty"`
	Permission     Permission `json:"permission,omitempty"`
	ActorUserID    *int64     `json:"actor_user_id,omitempty"`
}

type DeviceLog struct {
	bun.BaseModel `bun:"table:device_logs,alias:dl"`

	ID        int64           `bun:"id,pk,autoincrement" json:"id"`
	DeviceID  int64           `bun:"device_id,notnull" json:"device_id"`
	UserID    *int64          `bun:"user_id" json:"user_id,omitempty"`
	MachineID int64           `bun:"machine_id,notnull" json:"machine_id"`
	Action    string          `bun:"action,notnull" json:"action"`
	Details   json.RawMessage `bun:"details,type:text" json:"details"`
	CreatedAt time.Time       `bun:"created_at,notnull" json:"created_at"`
}

// DeviceMonitoring is the per-machine device monitoring flag.
type DeviceMonitoring struct {
	bun.BaseModel `bun:"table:device_monitoring,alias:dm"`

	MachineID int64     `bun:"machine_id,pk" json:"machine_id"`
	IsEnabled bool      `bun:"is_enabled,notnull" json:"is_enabled"`
	UpdatedAt time.Time `bun:"updated_at,nullzero,notnull,default:current_timestamp" json:"updated_at"`
}
