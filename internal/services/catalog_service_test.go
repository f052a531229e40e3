package services

import (
	"context"
	"testing"

	"github.com/boscod/trackwatch/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestListApplicationsFilters(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for _, obs := range []applicationObservation{
		{ProcessName: "code.exe", Name: ptr("Visual Studio Code"), Productivity: models.ProductivityProductive},
		{ProcessName: "steam.exe", Name: ptr("Steam"), Productivity: models.ProductivityUnproductive},
		{ProcessName: "notepad.exe"},
	} {
		_, err := upsertApplication(ctx, f.db, obs)
		require.NoError(t, err)
	}

	apps, total, err := f.catalog.ListApplications(ctx, CatalogFilter{})
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	assert.Len(t, apps, 3)

	apps, total, err = f.catalog.ListApplications(ctx, CatalogFilter{Search: "STUDIO"})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	assert.Equal(t, "code.exe", apps[0].ProcessName)

	_, total, err = f.catalog.ListApplications(ctx, CatalogFilter{Productivity: models.ProductivityUnknown})
	require.NoError(t, err)
	assert.Equal(t, 1, total)

	apps, total, err = f.catalog.ListApplications(ctx, CatalogFilter{Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	assert.Len(t, apps, 2)
}

func TestUpsertApplicationKeepsAdminProductivity(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	entry, err := upsertApplication(ctx, f.db, applicationObservation{ProcessName: "chrome.exe"})
	require.NoError(t, err)
	_, err = f.catalog.SetApplicationProductivity(ctx, entry.ID, "unproductive")
	require.NoError(t, err)

	_, err = upsertApplication(ctx, f.db, applicationObservation{ProcessName: "chrome.exe", Productivity: models.ProductivityProductive})
	require.NoError(t, err)

	app, err := f.catalog.GetApplication(ctx, entry.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ProductivityUnproductive, app.Productivity)
	assert.EqualValues(t, 2, app.TotalSessions)

	_, err = f.catalog.SetApplicationProductivity(ctx, entry.ID, "sometimes")
	assert.ErrorIs(t, err, ErrValidation)
	_, err = f.catalog.SetApplicationProductivity(ctx, 4242, "productive")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCategories(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	seeded, err := f.catalog.ListApplicationCategories(ctx)
	require.NoError(t, err)
	assert.NotEmpty(t, seeded)

	games, err := f.catalog.CreateApplicationCategory(ctx, &CategoryInput{Name: " Games ", Productivity: "unproductive"})
	require.NoError(t, err)
	assert.Equal(t, "Games", games.Name)
	assert.Equal(t, "#6b7280", games.Color)

	_, err = f.catalog.CreateApplicationCategory(ctx, &CategoryInput{Name: "Games", Productivity: "unproductive"})
	assert.ErrorIs(t, err, ErrConflict)
	_, err = f.catalog.CreateApplicationCategory(ctx, &CategoryInput{Name: "  "})
	assert.ErrorIs(t, err, ErrValidation)

	renamed, err := f.catalog.UpdateApplicationCategory(ctx, games.ID, &CategoryInput{Name: "Gaming", Color: "#ff0000", Productivity: "unproductive"})
	require.NoError(t, err)
	assert.Equal(t, "Gaming", renamed.Name)
	_, err = f.catalog.UpdateApplicationCategory(ctx, 4242, &CategoryInput{Name: "X", Productivity: "unknown"})
	assert.ErrorIs(t, err, ErrNotFound)

	news, err := f.catalog.CreateWebsiteCategory(ctx, &CategoryInput{Name: "Newsfeeds"})
	require.NoError(t, err)
	entry, err := upsertWebsite(ctx, f.db, websiteObservation{Domain: "news.example.com"})
	require.NoError(t, err)

	site, err := f.catalog.AssignWebsiteCategory(ctx, entry.ID, &news.ID)
	require.NoError(t, err)
	require.NotNil(t, site.Category)
	assert.Equal(t, "Newsfeeds", site.Category.Name)

	site, err = f.catalog.AssignWebsiteCategory(ctx, entry.ID, nil)
	require.NoError(t, err)
	assert.Nil(t, site.CategoryID)

	_, err = f.catalog.AssignWebsiteCategory(ctx, entry.ID, ptr(int64(4242)))
	assert.ErrorIs(t, err, ErrNotFound)
}
