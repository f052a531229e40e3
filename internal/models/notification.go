package models

import (
	"encoding/json"
	"time"

	"github.com/uptrace/bun"
)

// NotificationType names the policy event an alert was raised for.
type NotificationType string

const (
	NotificationTypeApplicationBlocked NotificationType = "application_blocked"
	NotificationTypeWebsiteBlocked     NotificationType = "website_blocked"
	NotificationTypeDeviceBlocked      NotificationType = "device_blocked"
)

// NotificationMetadata points back at the blocked subject and the policy
// event that raised the alert.
type NotificationMetadata struct {
	MachineID string `json:"machine_id,omitempty"`
	Username  string `json:"username,omitempty"`
	Subject   string `json:"subject,omitempty"`
	CatalogID int64  `json:"catalog_id,omitempty"`
	EventID   string `json:"event_id,omitempty"`
}

// Notification is an in-app alert, one row per administrator.
type Notification struct {
	bun.BaseModel `bun:"table:notifications,alias:n"`

	ID        int64            `bun:"id,pk,autoincrement" json:"id"`
	UserID    int64            `bun:"user_id,notnull" json:"user_id"`
	Type      NotificationType `bun:"type,notnull" json:"type"`
	Title     string           `bun:"title,notnull" json:"title"`
	Message   string           `bun:"message,notnull" json:"message"`
	IsRead    bool             `bun:"is_read,notnull" json:"is_read"`
	ReadAt    *time.Time       `bun:"read_at" json:"read_at,omitempty"`
	Metadata  json.RawMessage  `bun:"metadata,type:text" json:"metadata"`
	CreatedAt time.Time        `bun:"created_at,notnull" json:"created_at"`
}

type NotificationResponse struct {
	ID        int64                `json:"id"`
	Type      NotificationType     `json:"type"`
	Title     string               `json:"title"`
	Message   string               `json:"message"`
	IsRead    bool                 `json:"is_read"`
	ReadAt    *time.Time           `json:"read_at,omitempty"`
	Metadata  NotificationMetadata `json:"metadata"`
	CreatedAt time.Time            `json:"created_at"`
}

// ToResponse decodes the stored metadata. Rows with unreadable metadata
// are still listed, with empty metadata.
func (n *Notification) ToResponse() *NotificationResponse {
	resp := &NotificationResponse{
		ID:        n.ID,
		Type:      n.Type,
		Title:     n.Title,
		Message:   n.Message,
		IsRead:    n.IsRead,
		ReadAt:    n.ReadAt,
		CreatedAt: n.CreatedAt.UTC(),
	}
	if len(n.Metadata) > 0 {
		_ = json.Unmarshal(n.Metadata, &resp.Metadata)
	}
	return resp
}
