package services

import (
	"context"
	"sync"
	"testing"

	"github.com/boscod/trackwatch/internal/models"
	"github.com/boscod/trackwatch/internal/storage"
	"github.com/boscod/trackwatch/internal/testutil"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
)

func ptr[T any](v T) *T { return &v }

// recordingPublisher keeps every published event.
type recordingPublisher struct {
	mu     sync.Mutex
	events []PolicyEvent
}

func (p *recordingPublisher) Publish(_ context.Context, e PolicyEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return nil
}

func (p *recordingPublisher) kinds() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.Kind)
	}
	return out
}

type fixture struct {
	db       *bun.DB
	store    storage.Store
	events   *recordingPublisher
	settings *SettingsService
	ingest   *IngestService
	devices  *DeviceService
	policies *PolicyService
	users    *UserService
	catalog  *CatalogService
	activity *ActivityService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	db := testutil.NewDB(t)
	store, err := storage.NewLocal(t.TempDir())
	require.NoError(t, err)

	events := &recordingPublisher{}
	settings := NewSettingsService(db)
	return &fixture{
		db:       db,
		store:    store,
		events:   events,
		settings: settings,
		ingest:   NewIngestService(db, settings, store, false, events),
		devices:  NewDeviceService(db, events),
		policies: NewPolicyService(db),
		users:    NewUserService(db),
		catalog:  NewCatalogService(db),
		activity: NewActivityService(db, store),
	}
}

// machine registers a machine the way an agent would before reporting.
func (f *fixture) machine(t *testing.T, externalID string) int64 {
	t.Helper()
	id, err := upsertMachine(context.Background(), f.db, machineUpsert{ExternalID: externalID})
	require.NoError(t, err)
	return id
}

func (f *fixture) user(t *testing.T, username string, role models.Role) *models.User {
	t.Helper()
	user, err := f.users.Create(context.Background(), &NewUserInput{
		Username: username,
		Password: "correct-horse-battery",
		Role:     string(role),
	})
	require.NoError(t, err)
	return user
}

func (f *fixture) application(t *testing.T, processName string) *models.Application {
	t.Helper()
	app := new(models.Application)
	require.NoError(t, f.db.NewSelect().Model(app).Where("process_name = ?", processName).Scan(context.Background()))
	return app
}

func (f *fixture) usage(t *testing.T, processName string) []models.ApplicationUsage {
	t.Helper()
	var rows []models.ApplicationUsage
	require.NoError(t, f.db.NewSelect().
		Model(&rows).
		Where("process_name = ?", processName).
		Order("id ASC").
		Scan(context.Background()))
	return rows
}
