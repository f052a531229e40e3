package services

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/boscod/trackwatch/internal/models"
	"github.com/uptrace/bun"
	"golang.org/x/crypto/bcrypt"
)

// decodeWithUserAlias decodes data into v and resolves the acting username
// from either the user_id or the username key, preferring user_id.
func decodeWithUserAlias(data []byte, v any, username *string) error {
	if err := json.Unmarshal(data, v); err != nil {
		return err
	}
	var alias struct {
		UserID   json.RawMessage `json:"user_id"`
		Username json.RawMessage `json:"username"`
	}
	if err := json.Unmarshal(data, &alias); err != nil {
		return err
	}
	*username = firstNonEmpty(rawString(alias.UserID), rawString(alias.Username))
	return nil
}

func rawString(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return strings.TrimSpace(s)
	}
	return strings.TrimSpace(string(raw))
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// optionalString trims s and returns nil when nothing is left.
func optionalString(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}

func findMachine(ctx context.Context, db bun.IDB, externalID string) (*models.Machine, error) {
	machine := new(models.Machine)
	err := db.NewSelect().
		Model(machine).
		Where("external_id = ?", externalID).
		Scan(ctx)
	if err != nil {
		return nil, notFoundOr(err, "machine "+externalID)
	}
	return machine, nil
}

// ensureUser returns the user named username, creating it as an employee
// with an unusable random password when it does not exist yet.
func ensureUser(ctx context.Context, db bun.IDB, username string) (*models.User, error) {
	user, err := userByName(ctx, db, username)
	if err == nil {
		return user, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("load user %s: %w", username, err)
	}

	hash, err := randomPasswordHash()
	if err != nil {
		return nil, err
	}
	_, err = db.NewInsert().
		Model(&models.User{
			Username:     username,
			PasswordHash: hash,
			Role:         models.RoleEmployee,
			IsActive:     true,
			AutoCreated:  true,
		}).
		On("CONFLICT (username) DO NOTHING").
		Returning("NULL").
		Exec(ctx)
	if err != nil {
		return nil, fmt.Errorf("create user %s: %w", username, err)
	}

	user, err = userByName(ctx, db, username)
	if err != nil {
		return nil, fmt.Errorf("load user %s: %w", username, err)
	}
	return user, nil
}

func userByName(ctx context.Context, db bun.IDB, username string) (*models.User, error) {
	user := new(models.User)
	err := db.NewSelect().Model(user).Where("username = ?", username).Scan(ctx)
	return user, err
}

func randomPasswordHash() (string, error) {
	buf := make([]byte, 12)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(hex.EncodeToString(buf)), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// machineUpsert carries the fields written on registration and ingest.
// Nil fields keep the stored value.
type machineUpsert struct {
	ExternalID  string
	UserID      *int64
	Hostname    *string
	DisplayName *string
	Email       *string
	UPN         *string
	SeenAt      time.Time
}

const upsertMachineSQL = `
INSERT INTO machines AS m (external_id, user_id, hostname, display_name, email, upn, last_seen, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (external_id) DO UPDATE SET
	user_id = COALESCE(excluded.user_id, m.user_id),
	hostname = COALESCE(excluded.hostname, m.hostname),
	display_name = COALESCE(excluded.display_name, m.display_name),
	email = COALESCE(excluded.email, m.email),
	upn = COALESCE(excluded.upn, m.upn),
	last_seen = excluded.last_seen,
	updated_at = excluded.updated_at
RETURNING id`

func upsertMachine(ctx context.Context, db bun.IDB, in machineUpsert) (int64, error) {
	now := time.Now().UTC()
	seen := in.SeenAt
	if seen.IsZero() {
		seen = models.NormalizeTime(now)
	}

	var id int64
	err := db.NewRaw(upsertMachineSQL,
		in.ExternalID, in.UserID, in.Hostname, in.DisplayName, in.Email, in.UPN,
		seen, now, now,
	).Scan(ctx, &id)
	if err != nil {
		return 0, fmt.Errorf("upsert machine %s: %w", in.ExternalID, err)
	}
	return id, nil
}
