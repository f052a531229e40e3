package services

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/boscod/trackwatch/internal/models"
	"github.com/uptrace/bun"
)

// MinSyncIntervalSeconds is the lowest agent sync interval an admin can set.
const MinSyncIntervalSeconds = 15

// settingDefaults apply when a key is missing from the settings table.
var settingDefaults = map[string]string{
	models.SettingSyncInterval:                  "60",
	models.SettingParallelSyncWorkers:           "1",
	models.SettingDeleteScreenshotsAfterSync:    "1",
	models.SettingDeviceMonitoringEnabled:       "0",
	models.SettingScreenshotsEnabled:            "1",
	models.SettingScreenshotInterval:            "300",
	models.SettingWebsiteMonitoringEnabled:      "1",
	models.SettingWebsiteMonitoringInterval:     "5",
	models.SettingApplicationMonitoringEnabled:  "1",
	models.SettingApplicationMonitoringInterval: "2",
	models.SettingProductiveHoursPerDay:         "28800",
}

var boolSettings = map[string]bool{
	models.SettingDeleteScreenshotsAfterSync:   true,
	models.SettingDeviceMonitoringEnabled:      true,
	models.SettingScreenshotsEnabled:           true,
	models.SettingWebsiteMonitoringEnabled:     true,
	models.SettingApplicationMonitoringEnabled: true,
}

type SettingsService struct {
	db bun.IDB
}

func NewSettingsService(db bun.IDB) *SettingsService {
	return &SettingsService{db: db}
}

// All returns every setting with defaults filled in for missing keys.
func (s *SettingsService) All(ctx context.Context) (map[string]string, error) {
	return loadSettings(ctx, s.db)
}

func loadSettings(ctx context.Context, db bun.IDB) (map[string]string, error) {
	var rows []models.Setting
	if err := db.NewSelect().Model(&rows).Scan(ctx); err != nil {
		return nil, fmt.Errorf("load settings: %w", err)
	}
	values := make(map[string]string, len(settingDefaults)+len(rows))
	for k, v := range settingDefaults {
		values[k] = v
	}
	for _, row := range rows {
		values[row.Key] = row.Value
	}
	return values, nil
}

// Update validates and stores the given settings. Unknown keys are rejected.
func (s *SettingsService) Update(ctx context.Context, changes map[string]string) (map[string]string, error) {
	if len(changes) == 0 {
		return nil, validationError("no settings given")
	}

	rows := make([]models.Setting, 0, len(changes))
	now := time.Now().UTC()
	for key, value := range changes {
		value = strings.TrimSpace(value)
		if err := validateSetting(key, value); err != nil {
			return nil, err
		}
		if boolSettings[key] {
			value = boolString(parseBoolSetting(value))
		}
		rows = append(rows, models.Setting{Key: key, Value: value, UpdatedAt: now})
	}

	_, err := s.db.NewInsert().
		Model(&rows).
		On(`CONFLICT ("key") DO UPDATE`).
		Set("value = EXCLUDED.value").
		Set("updated_at = EXCLUDED.updated_at").
		Returning("NULL").
		Exec(ctx)
	if err != nil {
		return nil, fmt.Errorf("save settings: %w", err)
	}
	return s.All(ctx)
}

func validateSetting(key, value string) error {
	if _, ok := settingDefaults[key]; !ok {
		return validationError("unknown setting %q", key)
	}
	if boolSettings[key] {
		switch strings.ToLower(value) {
		case "0", "1", "true", "false":
			return nil
		}
		return validationError("%s must be a boolean", key)
	}

	n, err := strconv.Atoi(value)
	if err != nil || n < 0 {
		return validationError("%s must be a non-negative integer", key)
	}
	switch key {
	case models.SettingSyncInterval:
		if n < MinSyncIntervalSeconds {
			return validationError("%s must be at least %d", key, MinSyncIntervalSeconds)
		}
	case models.SettingParallelSyncWorkers, models.SettingScreenshotInterval,
		models.SettingWebsiteMonitoringInterval, models.SettingApplicationMonitoringInterval:
		if n < 1 {
			return validationError("%s must be at least 1", key)
		}
	}
	return nil
}

// AgentSettings builds the operating parameters returned to an agent.
// Device monitoring is on only when it is enabled globally and for the
// machine; the machine flag row is created disabled on first contact.
func (s *SettingsService) AgentSettings(ctx context.Context, db bun.IDB, machineID int64) (*AgentSettings, error) {
	values, err := loadSettings(ctx, db)
	if err != nil {
		return nil, err
	}

	out := &AgentSettings{
		SyncIntervalSeconds:                  intSetting(values, models.SettingSyncInterval),
		ParallelSyncWorkers:                  intSetting(values, models.SettingParallelSyncWorkers),
		DeleteScreenshotsAfterSync:           boolSetting(values, models.SettingDeleteScreenshotsAfterSync),
		ScreenshotsEnabled:                   boolSetting(values, models.SettingScreenshotsEnabled),
		ScreenshotIntervalSeconds:            intSetting(values, models.SettingScreenshotInterval),
		WebsiteMonitoringEnabled:             boolSetting(values, models.SettingWebsiteMonitoringEnabled),
		WebsiteMonitoringIntervalSeconds:     intSetting(values, models.SettingWebsiteMonitoringInterval),
		ApplicationMonitoringEnabled:         boolSetting(values, models.SettingApplicationMonitoringEnabled),
		ApplicationMonitoringIntervalSeconds: intSetting(values, models.SettingApplicationMonitoringInterval),
	}

	if boolSetting(values, models.SettingDeviceMonitoringEnabled) {
		enabled, err := ensureMachineMonitoring(ctx, db, machineID)
		if err != nil {
			return nil, err
		}
		out.DeviceMonitoringEnabled = enabled
	}
	return out, nil
}

// MachineMonitoring reports the per-machine device monitoring flag.
func (s *SettingsService) MachineMonitoring(ctx context.Context, machineID int64) (bool, error) {
	return machineMonitoringEnabled(ctx, s.db, machineID)
}

// SetMachineMonitoring turns device monitoring on or off for one machine.
func (s *SettingsService) SetMachineMonitoring(ctx context.Context, machineID int64, enabled bool) error {
	exists, err := s.db.NewSelect().Model((*models.Machine)(nil)).Where("id = ?", machineID).Exists(ctx)
	if err != nil {
		return fmt.Errorf("load machine: %w", err)
	}
	if !exists {
		return notFound(fmt.Sprintf("machine %d", machineID))
	}

	_, err = s.db.NewInsert().
		Model(&models.DeviceMonitoring{MachineID: machineID, IsEnabled: enabled, UpdatedAt: time.Now().UTC()}).
		On("CONFLICT (machine_id) DO UPDATE").
		Set("is_enabled = EXCLUDED.is_enabled").
		Set("updated_at = EXCLUDED.updated_at").
		Returning("NULL").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("save device monitoring: %w", err)
	}
	return nil
}

func machineMonitoringEnabled(ctx context.Context, db bun.IDB, machineID int64) (bool, error) {
	var flags []models.DeviceMonitoring
	err := db.NewSelect().Model(&flags).Where("machine_id = ?", machineID).Limit(1).Scan(ctx)
	if err != nil {
		return false, fmt.Errorf("load device monitoring: %w", err)
	}
	return len(flags) > 0 && flags[0].IsEnabled, nil
}

func ensureMachineMonitoring(ctx context.Context, db bun.IDB, machineID int64) (bool, error) {
	_, err := db.NewInsert().
		Model(&models.DeviceMonitoring{MachineID: machineID, IsEnabled: false, UpdatedAt: time.Now().UTC()}).
		On("CONFLICT (machine_id) DO NOTHING").
		Returning("NULL").
		Exec(ctx)
	if err != nil {
		return false, fmt.Errorf("create device monitoring: %w", err)
	}
	return machineMonitoringEnabled(ctx, db, machineID)
}

func intSetting(values map[string]string, key string) int {
	if n, err := strconv.Atoi(values[key]); err == nil {
		return n
	}
	n, _ := strconv.Atoi(settingDefaults[key])
	return n
}

func boolSetting(values map[string]string, key string) bool {
	return parseBoolSetting(values[key])
}

func parseBoolSetting(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes", "on":
		return true
	}
	return false
}

func boolString(b bool) string {
	if b {
		return "1"
	}
	return "0"
}
