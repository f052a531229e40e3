package services

import (
	"context"
	"testing"

	"github.com/boscod/trackwatch/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetupOnlyOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	needed, err := f.users.NeedsSetup(ctx)
	require.NoError(t, err)
	assert.True(t, needed)

	root, err := f.users.Setup(ctx, &NewUserInput{Username: "root", Password: "correct-horse-battery"})
	require.NoError(t, err)
	assert.Equal(t, models.RoleSuperadmin, root.Role)

	needed, err = f.users.NeedsSetup(ctx)
	require.NoError(t, err)
	assert.False(t, needed)

	_, err = f.users.Setup(ctx, &NewUserInput{Username: "root2", Password: "correct-horse-battery"})
	assert.ErrorIs(t, err, ErrConflict)
}

func TestCreateUserValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.user(t, "alice", models.RoleHR)

	tests := map[string]struct {
		in   NewUserInput
		want error
	}{
		"short username": {NewUserInput{Username: "al", Password: "correct-horse-battery"}, ErrValidation},
		"short password": {NewUserInput{Username: "bob", Password: "x"}, ErrValidation},
		"bad role":       {NewUserInput{Username: "bob", Password: "correct-horse-battery", Role: "god"}, ErrValidation},
		"taken":          {NewUserInput{Username: "ALICE", Password: "correct-horse-battery"}, ErrConflict},
	}
	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := f.users.Create(ctx, &tt.in)
			assert.ErrorIs(t, err, tt.want)
		})
	}

	bob, err := f.users.Create(ctx, &NewUserInput{Username: "bob", Password: "correct-horse-battery"})
	require.NoError(t, err)
	assert.Equal(t, models.RoleEmployee, bob.Role)
}

func TestLastSuperadminIsProtected(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	root := f.user(t, "root", models.RoleSuperadmin)
	admin := f.user(t, "admin", models.RoleAdmin)

	err := f.users.Delete(ctx, root.ID, admin.ID)
	assert.ErrorIs(t, err, ErrConflict)

	_, err = f.users.SetRole(ctx, root.ID, string(models.RoleAdmin))
	assert.ErrorIs(t, err, ErrConflict)

	err = f.users.Delete(ctx, root.ID, root.ID)
	assert.ErrorIs(t, err, ErrForbidden)

	_, err = f.users.Get(ctx, root.ID)
	require.NoError(t, err)
}

func TestDeleteSuperadminKeepsActivity(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.machine(t, "M1")
	first := f.user(t, "root", models.RoleSuperadmin)
	second := f.user(t, "root2", models.RoleSuperadmin)

	_, err := f.ingest.HandleApplication(ctx, slackReport("root2"))
	require.NoError(t, err)

	require.NoError(t, f.users.Delete(ctx, second.ID, first.ID))

	_, err = f.users.Get(ctx, second.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Len(t, f.usage(t, "slack.exe"), 1)

	assert.ErrorIs(t, f.users.Delete(ctx, second.ID, first.ID), ErrNotFound)
}

func TestResetPasswordEnablesLogin(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.machine(t, "M1")

	_, err := f.ingest.HandleApplication(ctx, slackReport("alice"))
	require.NoError(t, err)
	alice, err := userByName(ctx, f.db, "alice")
	require.NoError(t, err)

	assert.ErrorIs(t, f.users.ResetPassword(ctx, alice.ID, "short"), ErrValidation)
	require.NoError(t, f.users.ResetPassword(ctx, alice.ID, "a-much-better-secret"))

	updated, err := f.users.Get(ctx, alice.ID)
	require.NoError(t, err)
	assert.True(t, CheckPassword("a-much-better-secret", updated.PasswordHash))
	assert.False(t, updated.AutoCreated)

	assert.ErrorIs(t, f.users.ResetPassword(ctx, 4242, "a-much-better-secret"), ErrNotFound)
}

func TestSetRole(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.user(t, "root", models.RoleSuperadmin)
	bob := f.user(t, "bob", models.RoleEmployee)

	updated, err := f.users.SetRole(ctx, bob.ID, "hr")
	require.NoError(t, err)
	assert.Equal(t, models.RoleHR, updated.Role)

	_, err = f.users.SetRole(ctx, bob.ID, "owner")
	assert.ErrorIs(t, err, ErrValidation)
	_, err = f.users.SetRole(ctx, 4242, "hr")
	assert.ErrorIs(t, err, ErrNotFound)
}
