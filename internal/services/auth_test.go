package services

import (
	"context"
	"testing"
	"time"

	"github.com/boscod/trackwatch/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogin(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	jwtService := NewJWTService("test-secret", time.Hour)
	auth := NewAuthService(f.db, jwtService)
	f.user(t, "alice", models.RoleHR)

	user, token, err := auth.Login(ctx, "Alice", "correct-horse-battery")
	require.NoError(t, err)
	require.NotNil(t, user.LastLoginAt)

	claims, err := jwtService.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, user.ID, claims.UserID)
	assert.Equal(t, models.RoleHR, claims.Role)

	_, _, err = auth.Login(ctx, "alice", "wrong-password")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	_, _, err = auth.Login(ctx, "nobody", "correct-horse-battery")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	_, _, err = auth.Login(ctx, "", "")
	assert.ErrorIs(t, err, ErrValidation)
}

func TestLoginRejectsDeactivatedUser(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	auth := NewAuthService(f.db, NewJWTService("test-secret", time.Hour))
	alice := f.user(t, "alice", models.RoleAdmin)

	_, err := f.db.NewUpdate().
		Model((*models.User)(nil)).
		Set("is_active = ?", false).
		Where("id = ?", alice.ID).
		Exec(ctx)
	require.NoError(t, err)

	_, _, err = auth.Login(ctx, "alice", "correct-horse-battery")
	assert.ErrorIs(t, err, ErrForbidden)
}

func TestTokenFromOtherSecretIsRejected(t *testing.T) {
	user := &models.User{ID: 7, Username: "alice", Role: models.RoleAdmin}
	token, err := NewJWTService("one", time.Hour).GenerateToken(user)
	require.NoError(t, err)

	_, err = NewJWTService("two", time.Hour).ValidateToken(token)
	assert.Error(t, err)

	expired, err := NewJWTService("one", -time.Minute).GenerateToken(user)
	require.NoError(t, err)
	_, err = NewJWTService("one", time.Hour).ValidateToken(expired)
	assert.Error(t, err)
}

func TestCryptoRoundTrip(t *testing.T) {
	c := NewCryptoService("secret")

	sealed, err := c.EncryptBytes([]byte("screenshot"))
	require.NoError(t, err)
	assert.NotContains(t, string(sealed), "screenshot")

	plain, err := c.DecryptBytes(sealed)
	require.NoError(t, err)
	assert.Equal(t, "screenshot", string(plain))

	_, err = NewCryptoService("other").DecryptBytes(sealed)
	assert.Error(t, err)
	_, err = c.DecryptBytes([]byte("x"))
	assert.Error(t, err)

	again, err := c.EncryptBytes([]byte("screenshot"))
	require.NoError(t, err)
	assert.NotEqual(t, sealed, again, "nonces are random")
}
