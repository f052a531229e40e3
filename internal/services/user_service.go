package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/boscod/trackwatch/internal/logctx"
	"github.com/boscod/trackwatch/internal/models"
	"github.com/uptrace/bun"
	"go.uber.org/zap"
)

// NewUserInput is the body of a user create or first-superadmin setup.
type NewUserInput struct {
	Username string  `json:"username"`
	Password string  `json:"password"`
	Email    *string `json:"email"`
	FullName *string `json:"full_name"`
	Role     string  `json:"role"`
}

func (in *NewUserInput) normalize() error {
	in.Username = strings.TrimSpace(in.Username)
	if len(in.Username) < 3 || len(in.Username) > 64 {
		return validationError("username must be between 3 and 64 characters")
	}
	in.Email = optionalString(deref(in.Email))
	in.FullName = optionalString(deref(in.FullName))
	return nil
}

type UserService struct {
	db *bun.DB
}

func NewUserService(db *bun.DB) *UserService {
	return &UserService{db: db}
}

// NeedsSetup reports whether no superadmin exists yet.
func (s *UserService) NeedsSetup(ctx context.Context) (bool, error) {
	n, err := countSuperadmins(ctx, s.db)
	return n == 0, err
}

// Setup creates the first superadmin. It fails with ErrConflict once any
// superadmin exists.
func (s *UserService) Setup(ctx context.Context, in *NewUserInput) (*models.User, error) {
	in.Role = string(models.RoleSuperadmin)

	var user *models.User
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		n, err := countSuperadmins(ctx, tx)
		if err != nil {
			return err
		}
		if n > 0 {
			return conflict("setup already completed")
		}
		user, err = createUser(ctx, tx, in)
		return err
	})
	if err != nil {
		return nil, err
	}
	logctx.Info(ctx, "initial superadmin created", zap.String("username", user.Username))
	return user, nil
}

func (s *UserService) Create(ctx context.Context, in *NewUserInput) (*models.User, error) {
	return createUser(ctx, s.db, in)
}

func createUser(ctx context.Context, db bun.IDB, in *NewUserInput) (*models.User, error) {
	if err := in.normalize(); err != nil {
		return nil, err
	}
	role, err := models.ParseRole(in.Role)
	if in.Role == "" {
		role, err = models.RoleEmployee, nil
	}
	if err != nil {
		return nil, validationError("%s", err.Error())
	}
	hash, err := HashPassword(in.Password)
	if err != nil {
		return nil, err
	}

	taken, err := db.NewSelect().
		Model((*models.User)(nil)).
		Where("LOWER(username) = LOWER(?)", in.Username).
		Exists(ctx)
	if err != nil {
		return nil, fmt.Errorf("load user: %w", err)
	}
	if taken {
		return nil, conflict("username %q already taken", in.Username)
	}

	user := &models.User{
		Username:     in.Username,
		Email:        in.Email,
		FullName:     in.FullName,
		PasswordHash: hash,
		Role:         role,
		IsActive:     true,
	}
	if _, err := db.NewInsert().Model(user).Exec(ctx); err != nil {
		return nil, fmt.Errorf("insert user: %w", err)
	}
	return user, nil
}

func (s *UserService) List(ctx context.Context) ([]models.User, error) {
	var users []models.User
	err := s.db.NewSelect().Model(&users).Order("username ASC").Scan(ctx)
	return users, err
}

func (s *UserService) Get(ctx context.Context, id int64) (*models.User, error) {
	user := new(models.User)
	if err := s.db.NewSelect().Model(user).Where("id = ?", id).Scan(ctx); err != nil {
		return nil, notFoundOr(err, fmt.Sprintf("user %d", id))
	}
	return user, nil
}

// SetRole changes the role of a user. The last active superadmin cannot be
// demoted.
func (s *UserService) SetRole(ctx context.Context, id int64, role string) (*models.User, error) {
	r, err := models.ParseRole(role)
	if err != nil {
		return nil, validationError("%s", err.Error())
	}

	var user *models.User
	err = s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		user = new(models.User)
		if err := tx.NewSelect().Model(user).Where("id = ?", id).Scan(ctx); err != nil {
			return notFoundOr(err, fmt.Sprintf("user %d", id))
		}
		if user.Role == models.RoleSuperadmin && r != models.RoleSuperadmin {
			if err := guardLastSuperadmin(ctx, tx); err != nil {
				return err
			}
		}
		user.Role = r
		_, err := tx.NewUpdate().Model(user).Column("role", "updated_at").WherePK().Exec(ctx)
		return err
	})
	if err != nil {
		return nil, err
	}
	return user, nil
}

// ResetPassword sets a new password. It also turns an auto-created user
// into one that can log in.
func (s *UserService) ResetPassword(ctx context.Context, id int64, password string) error {
	hash, err := HashPassword(password)
	if err != nil {
		return err
	}
	res, err := s.db.NewUpdate().
		Model(&models.User{ID: id, PasswordHash: hash, AutoCreated: false}).
		Column("password_hash", "auto_created", "updated_at").
		WherePK().
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("update user: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return notFound(fmt.Sprintf("user %d", id))
	}
	return nil
}

// Delete removes a user account. Activity, usage, machines and devices that
// reference the user are left in place. The last superadmin cannot be
// deleted, and nobody can delete themselves.
func (s *UserService) Delete(ctx context.Context, id, actorID int64) error {
	if id == actorID {
		return fmt.Errorf("%w: you cannot delete your own account", ErrForbidden)
	}

	return s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		user := new(models.User)
		if err := tx.NewSelect().Model(user).Where("id = ?", id).Scan(ctx); err != nil {
			return notFoundOr(err, fmt.Sprintf("user %d", id))
		}
		if user.Role == models.RoleSuperadmin {
			if err := guardLastSuperadmin(ctx, tx); err != nil {
				return err
			}
		}

		if _, err := tx.NewDelete().Model(user).WherePK().Exec(ctx); err != nil {
			return fmt.Errorf("delete user: %w", err)
		}
		logctx.Info(ctx, "user deleted",
			zap.Int64("user_id", id),
			zap.String("username", user.Username),
			zap.Int64("actor_id", actorID))
		return nil
	})
}

func countSuperadmins(ctx context.Context, db bun.IDB) (int, error) {
	n, err := db.NewSelect().
		Model((*models.User)(nil)).
		Where("role = ?", models.RoleSuperadmin).
		Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("count superadmins: %w", err)
	}
	return n, nil
}

// guardLastSuperadmin fails when removing one superadmin would leave none.
func guardLastSuperadmin(ctx context.Context, db bun.IDB) error {
	n, err := countSuperadmins(ctx, db)
	if err != nil {
		return err
	}
	if n <= 1 {
		return conflict("cannot remove the last superadmin")
	}
	return nil
}
