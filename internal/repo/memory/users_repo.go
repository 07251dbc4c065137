package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/geocoder89/fleethub/internal/domain/user"
	"github.com/geocoder89/fleethub/internal/utils"
	"github.com/google/uuid"
)

// UsersRepo keeps users in process memory. Check-and-insert runs under a
// single lock so concurrent signups cannot produce duplicate emails.
type UsersRepo struct {
	mu      sync.RWMutex
	items   map[string]user.User // id -> user
	byEmail map[string]string    // email -> id
}

func NewUsersRepo() *UsersRepo {
	return &UsersRepo{
		items:   make(map[string]user.User),
		byEmail: make(map[string]string),
	}
}

func (r *UsersRepo) Create(_ context.Context, in user.NewUser) (user.User, error) {
	email := user.NormalizeEmail(in.Email)

	role := in.Role
	if role == "" {
		role = user.RoleUser
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, taken := r.byEmail[email]; taken {
		return user.User{}, user.ErrEmailTaken
	}

	now := time.Now().UTC()
	u := user.User{
		ID:           uuid.NewString(),
		Name:         in.Name,
		Email:        email,
		PasswordHash: in.PasswordHash,
		Role:         role,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	r.items[u.ID] = u
	r.byEmail[email] = u.ID

	return u, nil
}

func (r *UsersRepo) GetByEmail(_ context.Context, email string) (user.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.byEmail[user.NormalizeEmail(email)]
	if !ok {
		return user.User{}, user.ErrNotFound
	}

	return r.items[id], nil
}

func (r *UsersRepo) GetByID(_ context.Context, id string) (user.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	u, ok := r.items[id]
	if !ok {
		return user.User{}, user.ErrNotFound
	}

	return u, nil
}

// UpdateProfile merges the non-nil fields of patch. Moving to an email held by
// another account returns ErrEmailTaken; keeping your own email is allowed.
func (r *UsersRepo) UpdateProfile(_ context.Context, id string, patch user.ProfilePatch) (user.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.items[id]
	if !ok {
		return user.User{}, user.ErrNotFound
	}

	if patch.IsEmpty() {
		return u, nil
	}

	if patch.Email != nil {
		email := user.NormalizeEmail(*patch.Email)

		if owner, taken := r.byEmail[email]; taken && owner != id {
			return user.User{}, user.ErrEmailTaken
		}

		delete(r.byEmail, u.Email)
		r.byEmail[email] = id
		u.Email = email
	}

	if patch.Name != nil {
		u.Name = *patch.Name
	}

	if patch.PasswordHash != nil {
		u.PasswordHash = *patch.PasswordHash
	}

	u.UpdatedAt = time.Now().UTC()
	r.items[id] = u

	return u, nil
}

// ListCursor mirrors the Postgres keyset order: created_at DESC, id DESC.
func (r *UsersRepo) ListCursor(
	_ context.Context,
	role *user.Role,
	limit int,
	after utils.UserCursor,
) ([]user.User, *string, bool, error) {
	r.mu.RLock()
	out := make([]user.User, 0, len(r.items))
	for _, u := range r.items {
		if role != nil && u.Role != *role {
			continue
		}
		if !olderThan(u, after) {
			continue
		}
		out = append(out, u)
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})

	if len(out) <= limit {
		return out, nil, false, nil
	}

	out = out[:limit]
	last := out[len(out)-1]

	cur, err := utils.EncodeUserCursor(last.CreatedAt, last.ID)
	if err != nil {
		return nil, nil, false, err
	}

	return out, &cur, true, nil
}

func olderThan(u user.User, c utils.UserCursor) bool {
	if u.CreatedAt.Equal(c.CreatedAt) {
		return u.ID < c.ID
	}
	return u.CreatedAt.Before(c.CreatedAt)
}
