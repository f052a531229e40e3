package services

import (
	"context"
	"testing"

	"github.com/boscod/trackwatch/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSettingsDefaults(t *testing.T) {
	f := newFixture(t)

	values, err := f.settings.All(context.Background())
	require.NoError(t, err)
	for key := range settingDefaults {
		assert.Contains(t, values, key)
	}
	assert.Equal(t, "60", values[models.SettingSyncInterval])
}

func TestSettingsUpdate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	values, err := f.settings.Update(ctx, map[string]string{
		models.SettingSyncInterval:        "120",
		models.SettingScreenshotsEnabled:  "false",
		models.SettingParallelSyncWorkers: " 4 ",
	})
	require.NoError(t, err)
	assert.Equal(t, "120", values[models.SettingSyncInterval])
	assert.Equal(t, "0", values[models.SettingScreenshotsEnabled])
	assert.Equal(t, "4", values[models.SettingParallelSyncWorkers])

	tests := map[string]map[string]string{
		"empty":          {},
		"unknown key":    {"colour": "blue"},
		"too fast":       {models.SettingSyncInterval: "5"},
		"not a number":   {models.SettingScreenshotInterval: "soon"},
		"zero workers":   {models.SettingParallelSyncWorkers: "0"},
		"not a bool":     {models.SettingScreenshotsEnabled: "maybe"},
		"negative value": {models.SettingProductiveHoursPerDay: "-1"},
	}
	for name, changes := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := f.settings.Update(ctx, changes)
			assert.ErrorIs(t, err, ErrValidation)
		})
	}

	values, err = f.settings.All(ctx)
	require.NoError(t, err)
	assert.Equal(t, "120", values[models.SettingSyncInterval], "rejected updates leave values untouched")
}

func TestAgentDeviceMonitoringNeedsBothFlags(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	machineID := f.machine(t, "M1")

	out, err := f.settings.AgentSettings(ctx, f.db, machineID)
	require.NoError(t, err)
	assert.False(t, out.DeviceMonitoringEnabled)

	_, err = f.settings.Update(ctx, map[string]string{models.SettingDeviceMonitoringEnabled: "1"})
	require.NoError(t, err)

	out, err = f.settings.AgentSettings(ctx, f.db, machineID)
	require.NoError(t, err)
	assert.False(t, out.DeviceMonitoringEnabled, "machine flag starts disabled")

	enabled, err := f.settings.MachineMonitoring(ctx, machineID)
	require.NoError(t, err)
	assert.False(t, enabled)

	require.NoError(t, f.settings.SetMachineMonitoring(ctx, machineID, true))
	out, err = f.settings.AgentSettings(ctx, f.db, machineID)
	require.NoError(t, err)
	assert.True(t, out.DeviceMonitoringEnabled)

	assert.ErrorIs(t, f.settings.SetMachineMonitoring(ctx, 4242, true), ErrNotFound)
}
