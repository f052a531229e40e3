package models

import (
	"time"

	"github.com/uptrace/bun"
)

type Setting struct {
	bun.BaseModel `bun:"table:settings,alias:s"`

	Key       string    `bun:"key,pk" json:"key"`
	Value     string    `bun:"value,notnull" json:"value"`
	UpdatedAt time.Time `bun:"updated_at,nullzero,notnull,default:current_timestamp" json:"updated_at"`
}

// Setting keys read by ingestion and the admin settings page.
const (
	SettingSyncInterval                  = "agent_sync_interval_seconds"
	SettingParallelSyncWorkers           = "parallel_sync_workers"
	SettingDeleteScreenshotsAfterSync    = "delete_screenshots_after_sync"
	SettingDeviceMonitoringEnabled       = "device_monitoring_enabled"
	SettingScreenshotsEnabled            = "screenshots_enabled"
	SettingScreenshotInterval            = "screenshot_interval_seconds"
	SettingWebsiteMonitoringEnabled      = "website_monitoring_enabled"
	SettingWebsiteMonitoringInterval     = "website_monitoring_interval_seconds"
	SettingApplicationMonitoringEnabled  = "application_monitoring_enabled"
	SettingApplicationMonitoringInterval = "application_monitoring_interval_seconds"
	SettingProductiveHoursPerDay         = "productive_hours_per_day_seconds"
)
