package services

import (
	"context"
	"testing"
	"time"

	"github.com/boscod/trackwatch/internal/models"
	"github.com/boscod/trackwatch/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTimelineAndDailySummary(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.machine(t, "M1")

	_, err := f.ingest.HandleApplication(ctx, slackReport("alice"))
	require.NoError(t, err)
	_, err = f.ingest.HandleApplication(ctx, durationUpdate("alice", 600))
	require.NoError(t, err)
	_, err = f.ingest.HandleWebsite(ctx, &WebsiteReport{
		MachineID:  "M1",
		Username:   "alice",
		Domain:     "example.org",
		VisitStart: models.AgentTime{Time: time.Date(2024, 5, 1, 11, 0, 0, 0, time.UTC)},
	})
	require.NoError(t, err)

	alice, err := userByName(ctx, f.db, "alice")
	require.NoError(t, err)

	entries, total, err := f.activity.Timeline(ctx, TimelineFilter{UserID: alice.ID})
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	require.Len(t, entries, 2)
	assert.Equal(t, models.TimelineWebsite, entries[0].ActivityType, "newest first")

	_, total, err = f.activity.Timeline(ctx, TimelineFilter{UserID: alice.ID, ActivityType: models.TimelineApplication})
	require.NoError(t, err)
	assert.Equal(t, 1, total)

	_, total, err = f.activity.Timeline(ctx, TimelineFilter{
		UserID: alice.ID,
		From:   time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	assert.Equal(t, 1, total)

	_, _, err = f.activity.Timeline(ctx, TimelineFilter{})
	assert.ErrorIs(t, err, ErrValidation)

	summary, err := f.activity.DailySummary(ctx, alice.ID, time.Date(2024, 5, 1, 15, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, "2024-05-01", summary.Date)
	assert.EqualValues(t, 600, summary.ApplicationSeconds)
	assert.EqualValues(t, 28800, summary.ProductiveTargetSeconds)
	require.Len(t, summary.TopApplications, 1)
	assert.Equal(t, "slack.exe", summary.TopApplications[0].ProcessName)

	empty, err := f.activity.DailySummary(ctx, alice.ID, time.Date(2024, 5, 2, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Zero(t, empty.ApplicationSeconds)
	assert.Empty(t, empty.TopApplications)
}

func TestScreenshotMissingBlob(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	machineID := f.machine(t, "M1")

	shot := &models.Screenshot{UserID: 1, MachineID: machineID, ObjectKey: "M1/2024/05/01/gone.jpg", TakenAt: time.Now().UTC()}
	_, err := f.db.NewInsert().Model(shot).Exec(ctx)
	require.NoError(t, err)

	_, _, err = f.activity.Screenshot(ctx, shot.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	_, _, err = f.activity.Screenshot(ctx, 4242)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestEncryptedScreenshots(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	sealed := storage.NewEncrypted(f.store, NewCryptoService("at-rest"))
	ingest := NewIngestService(f.db, f.settings, sealed, true, nil)
	_, err := ingest.Ingest(ctx, &IngestBatch{
		MachineID:   "M1",
		Username:    "alice",
		Screenshots: []ScreenshotUpload{{DataBase64: "aGVsbG8="}},
	})
	require.NoError(t, err)

	activity := NewActivityService(f.db, sealed)
	shots, _, err := activity.ListScreenshots(ctx, 0, time.Time{}, time.Time{}, 10, 0)
	require.NoError(t, err)
	require.Len(t, shots, 1)
	assert.True(t, shots[0].Encrypted)

	_, data, err := activity.Screenshot(ctx, shots[0].ID)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))

	raw, err := f.store.Get(ctx, shots[0].ObjectKey)
	require.NoError(t, err)
	assert.NotEqual(t, "hello", string(raw))
}
