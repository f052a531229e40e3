package services

import (
	"context"
	"testing"

	"github.com/boscod/trackwatch/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRuleKind(t *testing.T) {
	for in, want := range map[string]RuleKind{
		"application":  RuleApplication,
		"Applications": RuleApplication,
		"website":      RuleWebsite,
		" websites ":   RuleWebsite,
	} {
		got, err := ParseRuleKind(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := ParseRuleKind("devices")
	assert.ErrorIs(t, err, ErrValidation)
}

func TestUpsertRuleIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, created, err := f.policies.UpsertRule(ctx, RuleApplication, &RuleInput{
		Scope:   "global",
		Pattern: "steam.exe",
		Reason:  "games",
	}, 0)
	require.NoError(t, err)
	assert.True(t, created)
	assert.True(t, first.IsActive)

	second, created, err := f.policies.UpsertRule(ctx, RuleApplication, &RuleInput{
		Scope:    "global",
		Pattern:  "steam.exe",
		IsActive: ptr(false),
	}, 0)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.ID, second.ID)
	assert.False(t, second.IsActive)

	rules, err := f.policies.ListRules(ctx, RuleApplication, RuleFilter{})
	require.NoError(t, err)
	assert.Len(t, rules, 1)
}

func TestUpsertRuleValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	tests := map[string]struct {
		in   RuleInput
		want error
	}{
		"no target":           {RuleInput{Scope: "global"}, ErrValidation},
		"two targets":         {RuleInput{Scope: "global", Pattern: "a", TargetID: ptr(int64(1))}, ErrValidation},
		"bad scope":           {RuleInput{Scope: "planet", Pattern: "a"}, ErrValidation},
		"user scope no user":  {RuleInput{Scope: "user", Pattern: "a"}, ErrValidation},
		"machine scope no id": {RuleInput{Scope: "machine", Pattern: "a"}, ErrValidation},
		"unknown user":        {RuleInput{Scope: "user", UserID: ptr(int64(999)), Pattern: "a"}, ErrNotFound},
		"unknown application": {RuleInput{Scope: "global", TargetID: ptr(int64(999))}, ErrNotFound},
		"unknown category":    {RuleInput{Scope: "global", CategoryID: ptr(int64(999))}, ErrNotFound},
	}
	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			_, _, err := f.policies.UpsertRule(ctx, RuleApplication, &tt.in, 0)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestBulkBlock(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	machineID := f.machine(t, "M1")

	var ids []int64
	for _, name := range []string{"a.exe", "b.exe"} {
		entry, err := upsertApplication(ctx, f.db, applicationObservation{ProcessName: name})
		require.NoError(t, err)
		ids = append(ids, entry.ID)
	}

	in := &BulkRuleInput{Scope: "machine", MachineID: &machineID, TargetIDs: append(ids, ids[0])}
	created, err := f.policies.BulkBlock(ctx, RuleApplication, in, 0)
	require.NoError(t, err)
	assert.Equal(t, 2, created)

	rules, err := f.policies.ListRules(ctx, RuleApplication, RuleFilter{MachineID: machineID})
	require.NoError(t, err)
	require.Len(t, rules, 2)
	_, err = f.policies.SetRuleActive(ctx, RuleApplication, rules[0].ID, false)
	require.NoError(t, err)

	created, err = f.policies.BulkBlock(ctx, RuleApplication, in, 0)
	require.NoError(t, err)
	assert.Zero(t, created)

	active, err := f.policies.ListRules(ctx, RuleApplication, RuleFilter{ActiveOnly: true})
	require.NoError(t, err)
	assert.Len(t, active, 2, "bulk block reactivates identical rules")

	_, err = f.policies.BulkBlock(ctx, RuleApplication, &BulkRuleInput{Scope: "global"}, 0)
	assert.ErrorIs(t, err, ErrValidation)
}

func TestToggleAndDeleteRule(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	rule, _, err := f.policies.UpsertRule(ctx, RuleWebsite, &RuleInput{Scope: "global", Pattern: "reddit"}, 0)
	require.NoError(t, err)

	toggled, err := f.policies.ToggleRule(ctx, RuleWebsite, rule.ID)
	require.NoError(t, err)
	assert.False(t, toggled.IsActive)

	toggled, err = f.policies.ToggleRule(ctx, RuleWebsite, rule.ID)
	require.NoError(t, err)
	assert.True(t, toggled.IsActive)

	_, err = f.policies.GetRule(ctx, RuleApplication, rule.ID)
	assert.ErrorIs(t, err, ErrNotFound, "kinds live in separate tables")

	require.NoError(t, f.policies.DeleteRule(ctx, RuleWebsite, rule.ID))
	assert.ErrorIs(t, f.policies.DeleteRule(ctx, RuleWebsite, rule.ID), ErrNotFound)
	_, err = f.policies.ToggleRule(ctx, RuleWebsite, rule.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCategoryRuleBlocksMembers(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.machine(t, "M1")

	category, err := f.catalog.CreateApplicationCategory(ctx, &CategoryInput{Name: "Games", Productivity: "unproductive"})
	require.NoError(t, err)
	entry, err := upsertApplication(ctx, f.db, applicationObservation{ProcessName: "steam.exe"})
	require.NoError(t, err)
	_, err = f.catalog.AssignApplicationCategory(ctx, entry.ID, &category.ID)
	require.NoError(t, err)

	_, _, err = f.policies.UpsertRule(ctx, RuleApplication, &RuleInput{Scope: "global", CategoryID: &category.ID}, 0)
	require.NoError(t, err)

	res, err := f.ingest.HandleApplication(ctx, &ApplicationReport{
		MachineID:       "M1",
		Username:        "alice",
		ApplicationName: "Steam",
		ProcessName:     "steam.exe",
	})
	require.NoError(t, err)
	assert.True(t, res.IsBlocked)

	rules, err := f.policies.ListRules(ctx, RuleApplication, RuleFilter{Scope: models.ScopeGlobal})
	require.NoError(t, err)
	require.Len(t, rules, 1)
	assert.Equal(t, &category.ID, rules[0].CategoryID)
}
