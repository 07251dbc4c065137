package db

import (
	"context"
	"errors"
	"log/slog"

	"github.com/geocoder89/fleethub/internal/domain/user"
	"github.com/geocoder89/fleethub/internal/security"
)

type AdminStore interface {
	GetByEmail(ctx context.Context, email string) (user.User, error)
	Create(ctx context.Context, in user.NewUser) (user.User, error)
}

type AdminSeed struct {
	Email    string
	Password string
	Name     string
}

// EnsureAdminUser creates the bootstrap admin account once. It is a no-op
// when the seed is not configured or the email is already on file.
func EnsureAdminUser(ctx context.Context, store AdminStore, seed AdminSeed, log *slog.Logger) error {
	if seed.Email == "" || seed.Password == "" {
		return nil
	}

	// check if the user exists
	_, err := store.GetByEmail(ctx, seed.Email)

	if err == nil {
		return nil
	}

	if !errors.Is(err, user.ErrNotFound) {
		return err
	}

	hash, err := security.HashPassword(seed.Password)

	if err != nil {
		return err
	}

	name := seed.Name
	if name == "" {
		name = "Fleet Admin"
	}

	u, err := store.Create(ctx, user.NewUser{
		Name:         name,
		Email:        seed.Email,
		PasswordHash: hash,
		Role:         user.RoleAdmin,
	})

	// lost a race with another instance seeding the same account
	if errors.Is(err, user.ErrEmailTaken) {
		return nil
	}

	if err != nil {
		return err
	}

	log.Info("admin user seeded", "user_id", u.ID, "email", u.Email)

	return nil
}
