package services

import (
	"strings"

	"github.com/boscod/trackwatch/internal/models"
)

// Report actions accepted by the application and website endpoints.
const (
	ActionReport         = "report"
	ActionUpdateDuration = "update_duration"
)

// ApplicationReport is the body of POST /api/application. The acting user
// arrives as user_id or username.
type ApplicationReport struct {
	Action          string              `json:"action"`
	MachineID       string              `json:"machine_id"`
	Username        string              `json:"-"`
	ApplicationName string              `json:"application_name"`
	ProcessName     string              `json:"process_name"`
	WindowTitle     string              `json:"window_title"`
	ExecutablePath  string              `json:"executable_path"`
	SessionStart    models.AgentTime    `json:"session_start"`
	SessionEnd      models.AgentTime    `json:"session_end"`
	DurationSeconds int64               `json:"duration_seconds"`
	IsProductive    models.Productivity `json:"is_productive"`
}

func (r *ApplicationReport) UnmarshalJSON(data []byte) error {
	type plain ApplicationReport
	return decodeWithUserAlias(data, (*plain)(r), &r.Username)
}

func (r *ApplicationReport) normalize() {
	r.Action = strings.ToLower(strings.TrimSpace(r.Action))
	if r.Action == "" {
		r.Action = ActionReport
	}
	r.MachineID = strings.TrimSpace(r.MachineID)
	r.Username = strings.TrimSpace(r.Username)
	r.ApplicationName = strings.TrimSpace(r.ApplicationName)
	r.ProcessName = strings.TrimSpace(r.ProcessName)
}

func (r *ApplicationReport) validate() error {
	if r.MachineID == "" {
		return validationError("machine_id is required")
	}
	if r.Username == "" {
		return validationError("user_id or username is required")
	}
	if r.ProcessName == "" {
		return validationError("process_name is required")
	}
	if r.Action == ActionReport && r.ApplicationName == "" {
		return validationError("application_name is required")
	}
	if r.DurationSeconds < 0 {
		return validationError("duration_seconds must not be negative")
	}
	return nil
}

// WebsiteReport is the body of POST /api/website.
type WebsiteReport struct {
	Action          string           `json:"action"`
	MachineID       string           `json:"machine_id"`
	Username        string           `json:"-"`
	Domain          string           `json:"domain"`
	URL             string           `json:"url"`
	Title           string           `json:"title"`
	Browser         string           `json:"browser"`
	IsPrivate       models.FlexBool  `json:"is_private"`
	IsIncognito     models.FlexBool  `json:"is_incognito"`
	VisitStart      models.AgentTime `json:"visit_start"`
	VisitEnd        models.AgentTime `json:"visit_end"`
	DurationSeconds int64            `json:"duration_seconds"`
}

func (r *WebsiteReport) UnmarshalJSON(data []byte) error {
	type plain WebsiteReport
	return decodeWithUserAlias(data, (*plain)(r), &r.Username)
}

func (r *WebsiteReport) normalize() {
	r.Action = strings.ToLower(strings.TrimSpace(r.Action))
	if r.Action == "" {
		r.Action = ActionReport
	}
	r.MachineID = strings.TrimSpace(r.MachineID)
	r.Username = strings.TrimSpace(r.Username)
	r.Domain = strings.TrimSpace(r.Domain)
}

func (r *WebsiteReport) validate() error {
	if r.MachineID == "" {
		return validationError("machine_id is required")
	}
	if r.Username == "" {
		return validationError("user_id or username is required")
	}
	if r.Domain == "" {
		return validationError("domain is required")
	}
	if r.DurationSeconds < 0 {
		return validationError("duration_seconds must not be negative")
	}
	return nil
}

// ActivityTick is one generic activity sample in a batch.
type ActivityTick struct {
	StartTime           models.AgentTime `json:"start_time"`
	EndTime             models.AgentTime `json:"end_time"`
	ProductiveSeconds   int64            `json:"productive_seconds"`
	UnproductiveSeconds int64            `json:"unproductive_seconds"`
	IdleSeconds         int64            `json:"idle_seconds"`
	MouseMoves          int64            `json:"mouse_moves"`
	KeyPresses          int64            `json:"key_presses"`
}

// ScreenshotUpload carries one base64 encoded screenshot.
type ScreenshotUpload struct {
	TakenAt    models.AgentTime `json:"taken_at"`
	Filename   string           `json:"filename"`
	DataBase64 string           `json:"data_base64"`
}

// ApplicationUsageItem is one application entry in a batch.
type ApplicationUsageItem struct {
	ApplicationName string              `json:"application_name"`
	ProcessName     string              `json:"process_name"`
	WindowTitle     string              `json:"window_title"`
	ExecutablePath  string              `json:"executable_path"`
	SessionStart    models.AgentTime    `json:"session_start"`
	SessionEnd      models.AgentTime    `json:"session_end"`
	DurationSeconds int64               `json:"duration_seconds"`
	IsProductive    models.Productivity `json:"is_productive"`
}

// IngestBatch is the body of POST /ingest.
type IngestBatch struct {
	MachineID        string                 `json:"machine_id"`
	Username         string                 `json:"-"`
	Hostname         string                 `json:"hostname"`
	Activity         []ActivityTick         `json:"activity"`
	Screenshots      []ScreenshotUpload     `json:"screenshots"`
	ApplicationUsage []ApplicationUsageItem `json:"application_usage"`
}

func (b *IngestBatch) UnmarshalJSON(data []byte) error {
	type plain IngestBatch
	return decodeWithUserAlias(data, (*plain)(b), &b.Username)
}

func (b *IngestBatch) validate() error {
	b.MachineID = strings.TrimSpace(b.MachineID)
	b.Username = strings.TrimSpace(b.Username)
	if b.MachineID == "" || b.Username == "" {
		return validationError("username and machine_id are required")
	}
	for i, item := range b.ApplicationUsage {
		if strings.TrimSpace(item.ProcessName) == "" {
			return validationError("application_usage[%d].process_name is required", i)
		}
		if item.DurationSeconds < 0 {
			return validationError("application_usage[%d].duration_seconds must not be negative", i)
		}
	}
	return nil
}

// Registration is the body of POST /api/register_agent.
type Registration struct {
	MachineID   string `json:"machine_id"`
	Hostname    string `json:"hostname"`
	DisplayName string `json:"display_name"`
	Email       string `json:"email"`
	UPN         string `json:"upn"`
	Username    string `json:"username"`
}

func (r *Registration) normalize() {
	r.MachineID = strings.TrimSpace(r.MachineID)
	r.Username = strings.TrimSpace(r.Username)
}

// AgentSettings are the operating parameters returned from every batch
// ingest so agents can adapt without a restart.
type AgentSettings struct {
	SyncIntervalSeconds                  int  `json:"sync_interval_seconds"`
	ParallelSyncWorkers                  int  `json:"parallel_sync_workers"`
	DeleteScreenshotsAfterSync           bool `json:"delete_screenshots_after_sync"`
	DeviceMonitoringEnabled              bool `json:"device_monitoring_enabled"`
	ScreenshotsEnabled                   bool `json:"screenshots_enabled"`
	ScreenshotIntervalSeconds            int  `json:"screenshot_interval_seconds"`
	WebsiteMonitoringEnabled             bool `json:"website_monitoring_enabled"`
	WebsiteMonitoringIntervalSeconds     int  `json:"website_monitoring_interval_seconds"`
	ApplicationMonitoringEnabled         bool `json:"application_monitoring_enabled"`
	ApplicationMonitoringIntervalSeconds int  `json:"application_monitoring_interval_seconds"`
}
