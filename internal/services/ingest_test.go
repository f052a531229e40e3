package services

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"testing"
	"time"

	"github.com/boscod/trackwatch/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func slackReport(username string) *ApplicationReport {
	return &ApplicationReport{
		Action:          ActionReport,
		MachineID:       "M1",
		Username:        username,
		ApplicationName: "Slack",
		ProcessName:     "slack.exe",
		SessionStart:    models.AgentTime{Time: time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)},
	}
}

func durationUpdate(username string, seconds int64) *ApplicationReport {
	return &ApplicationReport{
		Action:          ActionUpdateDuration,
		MachineID:       "M1",
		Username:        username,
		ProcessName:     "slack.exe",
		DurationSeconds: seconds,
		SessionEnd:      models.AgentTime{Time: time.Date(2024, 5, 1, 9, 30, 0, 0, time.UTC)},
	}
}

func TestApplicationReportDecodesUserAlias(t *testing.T) {
	var byID ApplicationReport
	require.NoError(t, json.Unmarshal([]byte(`{"machine_id":"M1","user_id":"alice","process_name":"a.exe"}`), &byID))
	assert.Equal(t, "alice", byID.Username)

	var byName ApplicationReport
	require.NoError(t, json.Unmarshal([]byte(`{"machine_id":"M1","username":"bob","process_name":"a.exe"}`), &byName))
	assert.Equal(t, "bob", byName.Username)
}

func TestReportApplicationFirstSession(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.machine(t, "M1")

	res, err := f.ingest.HandleApplication(ctx, slackReport("alice"))
	require.NoError(t, err)
	assert.False(t, res.IsBlocked)
	assert.NotZero(t, res.CatalogID)

	user, err := userByName(ctx, f.db, "alice")
	require.NoError(t, err)
	assert.Equal(t, models.RoleEmployee, user.Role)
	assert.True(t, user.AutoCreated)

	app := f.application(t, "slack.exe")
	assert.Equal(t, res.CatalogID, app.ID)
	assert.EqualValues(t, 1, app.TotalSessions)
	assert.EqualValues(t, 0, app.TotalUsageSeconds)
	assert.Equal(t, models.ProductivityUnknown, app.Productivity)

	rows := f.usage(t, "slack.exe")
	require.Len(t, rows, 1)
	assert.EqualValues(t, 0, rows[0].DurationSeconds)
	assert.False(t, rows[0].IsBlocked)
	assert.Empty(t, f.events.kinds())
}

func TestReportApplicationCountsSessions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.machine(t, "M1")

	_, err := f.ingest.HandleApplication(ctx, slackReport("alice"))
	require.NoError(t, err)
	_, err = f.ingest.HandleApplication(ctx, slackReport("alice"))
	require.NoError(t, err)

	var apps []models.Application
	require.NoError(t, f.db.NewSelect().Model(&apps).Scan(ctx))
	require.Len(t, apps, 1)
	assert.EqualValues(t, 2, apps[0].TotalSessions)
	assert.Len(t, f.usage(t, "slack.exe"), 2)
}

func TestReportApplicationValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	tests := map[string]*ApplicationReport{
		"missing machine":   {ProcessName: "a.exe", ApplicationName: "A", Username: "alice"},
		"missing user":      {MachineID: "M1", ProcessName: "a.exe", ApplicationName: "A"},
		"missing process":   {MachineID: "M1", Username: "alice", ApplicationName: "A"},
		"missing name":      {MachineID: "M1", Username: "alice", ProcessName: "a.exe"},
		"negative duration": {Action: ActionUpdateDuration, MachineID: "M1", Username: "alice", ProcessName: "a.exe", DurationSeconds: -1},
		"unknown action":    {Action: "explode", MachineID: "M1", Username: "alice", ProcessName: "a.exe"},
	}
	for name, req := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := f.ingest.HandleApplication(ctx, req)
			assert.ErrorIs(t, err, ErrValidation)
		})
	}
}

func TestReportFromUnknownMachine(t *testing.T) {
	f := newFixture(t)

	_, err := f.ingest.HandleApplication(context.Background(), slackReport("alice"))
	assert.ErrorIs(t, err, ErrNotFound)

	exists, err := f.db.NewSelect().Model((*models.User)(nil)).Where("username = ?", "alice").Exists(context.Background())
	require.NoError(t, err)
	assert.False(t, exists, "failed report must not leave a user behind")
}

func TestUpdateDurationWithoutSessionIsNoop(t *testing.T) {
	f := newFixture(t)
	f.machine(t, "M1")

	res, err := f.ingest.HandleApplication(context.Background(), durationUpdate("alice", 42))
	require.NoError(t, err)
	assert.EqualValues(t, 42, res.DurationUpdated)
	assert.Empty(t, f.usage(t, "slack.exe"))
}

func TestUpdateDurationAppliesDelta(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.machine(t, "M1")

	_, err := f.ingest.HandleApplication(ctx, slackReport("alice"))
	require.NoError(t, err)

	for _, seconds := range []int64{60, 90, 30} {
		_, err := f.ingest.HandleApplication(ctx, durationUpdate("alice", seconds))
		require.NoError(t, err)
	}

	rows := f.usage(t, "slack.exe")
	require.Len(t, rows, 1)
	assert.EqualValues(t, 90, rows[0].DurationSeconds)
	require.NotNil(t, rows[0].SessionEnd)

	app := f.application(t, "slack.exe")
	assert.EqualValues(t, 90, app.TotalUsageSeconds, "stale lower value must not shrink the total")

	var entries []models.TimelineEntry
	require.NoError(t, f.db.NewSelect().Model(&entries).Where("activity_type = ?", models.TimelineApplication).Scan(ctx))
	require.Len(t, entries, 1)
	assert.EqualValues(t, 90, entries[0].DurationSeconds)
}

func TestGlobalRuleBlocksApplication(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.machine(t, "M1")

	rule, created, err := f.policies.UpsertRule(ctx, RuleApplication, &RuleInput{
		Scope:   string(models.ScopeGlobal),
		Pattern: "slack.exe",
	}, 0)
	require.NoError(t, err)
	assert.True(t, created)

	res, err := f.ingest.HandleApplication(ctx, slackReport("alice"))
	require.NoError(t, err)
	assert.True(t, res.IsBlocked)
	assert.Equal(t, []string{EventApplicationBlocked}, f.events.kinds())
	assert.Equal(t, rule.ID, f.events.events[0].RuleID)

	_, err = f.policies.SetRuleActive(ctx, RuleApplication, rule.ID, false)
	require.NoError(t, err)

	res, err = f.ingest.HandleApplication(ctx, slackReport("alice"))
	require.NoError(t, err)
	assert.False(t, res.IsBlocked)
	assert.Len(t, f.events.kinds(), 1)
}

func TestUserScopedRuleOnlyBlocksThatUser(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.machine(t, "M1")
	alice := f.user(t, "alice", models.RoleEmployee)
	f.user(t, "bob", models.RoleEmployee)

	_, _, err := f.policies.UpsertRule(ctx, RuleApplication, &RuleInput{
		Scope:   string(models.ScopeUser),
		UserID:  &alice.ID,
		Pattern: "slack.exe",
	}, 0)
	require.NoError(t, err)

	res, err := f.ingest.HandleApplication(ctx, slackReport("alice"))
	require.NoError(t, err)
	assert.True(t, res.IsBlocked)

	res, err = f.ingest.HandleApplication(ctx, slackReport("bob"))
	require.NoError(t, err)
	assert.False(t, res.IsBlocked)
}

func TestWebsitePatternRule(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.machine(t, "M1")

	_, _, err := f.policies.UpsertRule(ctx, RuleWebsite, &RuleInput{
		Scope:   string(models.ScopeGlobal),
		Pattern: "facebook",
	}, 0)
	require.NoError(t, err)

	visit := func(domain string) *ReportResult {
		res, err := f.ingest.HandleWebsite(ctx, &WebsiteReport{
			MachineID: "M1",
			Username:  "alice",
			Domain:    domain,
			URL:       "https://" + domain + "/",
		})
		require.NoError(t, err)
		return res
	}

	assert.True(t, visit("www.facebook.com").IsBlocked)
	assert.False(t, visit("example.org").IsBlocked)
	assert.Equal(t, []string{EventWebsiteBlocked}, f.events.kinds())

	site := new(models.Website)
	require.NoError(t, f.db.NewSelect().Model(site).Where("domain = ?", "www.facebook.com").Scan(ctx))
	assert.EqualValues(t, 1, site.TotalVisits)
}

func TestWebsiteDurationUpdate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.machine(t, "M1")

	_, err := f.ingest.HandleWebsite(ctx, &WebsiteReport{MachineID: "M1", Username: "alice", Domain: "example.org"})
	require.NoError(t, err)
	res, err := f.ingest.HandleWebsite(ctx, &WebsiteReport{
		Action:          ActionUpdateDuration,
		MachineID:       "M1",
		Username:        "alice",
		Domain:          "example.org",
		DurationSeconds: 25,
	})
	require.NoError(t, err)
	assert.EqualValues(t, 25, res.DurationUpdated)

	site := new(models.Website)
	require.NoError(t, f.db.NewSelect().Model(site).Where("domain = ?", "example.org").Scan(ctx))
	assert.EqualValues(t, 25, site.TotalDurationSeconds)
}

func TestIngestBatch(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	taken := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	image := []byte("\xff\xd8\xff\xe0fake-jpeg")
	settings, err := f.ingest.Ingest(ctx, &IngestBatch{
		MachineID: "M9",
		Username:  "carol",
		Hostname:  "carol-laptop",
		Activity: []ActivityTick{{
			StartTime:         models.AgentTime{Time: taken},
			EndTime:           models.AgentTime{Time: taken.Add(time.Minute)},
			ProductiveSeconds: 30,
			IdleSeconds:       30,
		}},
		Screenshots: []ScreenshotUpload{{
			TakenAt:    models.AgentTime{Time: taken},
			Filename:   "shot.jpg",
			DataBase64: base64.StdEncoding.EncodeToString(image),
		}},
		ApplicationUsage: []ApplicationUsageItem{{
			ApplicationName: "Code",
			ProcessName:     "code.exe",
			SessionStart:    models.AgentTime{Time: taken},
			SessionEnd:      models.AgentTime{Time: taken.Add(2 * time.Minute)},
			DurationSeconds: 120,
			IsProductive:    models.ProductivityProductive,
		}},
	})
	require.NoError(t, err)
	assert.Equal(t, 60, settings.SyncIntervalSeconds)
	assert.True(t, settings.ScreenshotsEnabled)
	assert.False(t, settings.DeviceMonitoringEnabled)

	machine, err := findMachine(ctx, f.db, "M9")
	require.NoError(t, err)
	require.NotNil(t, machine.Hostname)
	assert.Equal(t, "carol-laptop", *machine.Hostname)

	app := f.application(t, "code.exe")
	assert.EqualValues(t, 120, app.TotalUsageSeconds)
	assert.Equal(t, models.ProductivityProductive, app.Productivity)

	shots, total, err := f.activity.ListScreenshots(ctx, 0, time.Time{}, time.Time{}, 10, 0)
	require.NoError(t, err)
	require.Equal(t, 1, total)
	_, data, err := f.activity.Screenshot(ctx, shots[0].ID)
	require.NoError(t, err)
	assert.Equal(t, image, data)

	idle, err := f.db.NewSelect().Model((*models.TimelineEntry)(nil)).Where("activity_type = ?", models.TimelineIdle).Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, idle)
}

func TestIngestRejectsBadScreenshot(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.ingest.Ingest(ctx, &IngestBatch{
		MachineID:   "M9",
		Username:    "carol",
		Screenshots: []ScreenshotUpload{{DataBase64: "not base64!"}},
	})
	assert.ErrorIs(t, err, ErrValidation)

	_, err = findMachine(ctx, f.db, "M9")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRegisterAgent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, err := f.ingest.RegisterAgent(ctx, &Registration{MachineID: "M2", Hostname: "host-a", Username: "dave"})
	require.NoError(t, err)
	assert.True(t, first.Created)

	second, err := f.ingest.RegisterAgent(ctx, &Registration{MachineID: "M2", DisplayName: "Dave's PC"})
	require.NoError(t, err)
	assert.False(t, second.Created)
	assert.Equal(t, first.ID, second.ID)

	machine, err := findMachine(ctx, f.db, "M2")
	require.NoError(t, err)
	require.NotNil(t, machine.Hostname)
	assert.Equal(t, "host-a", *machine.Hostname, "omitted fields keep their value")
	require.NotNil(t, machine.DisplayName)
	assert.Equal(t, "Dave's PC", *machine.DisplayName)
	assert.NotNil(t, machine.UserID)

	_, err = f.ingest.RegisterAgent(ctx, &Registration{})
	assert.ErrorIs(t, err, ErrValidation)
}
