package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/geocoder89/fleethub/internal/domain/user"
	"github.com/geocoder89/fleethub/internal/observability"
	"github.com/geocoder89/fleethub/internal/utils"
	"github.com/google/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// PgxPool is the slice of *pgxpool.Pool the repos use; pgxmock satisfies it too.
type PgxPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

const userColumns = `id, name, email, password_hash, role, created_at, updated_at`

type UsersRepo struct {
	pool PgxPool
	prom *observability.Prom
}

func NewUsersRepo(pool PgxPool, prom *observability.Prom) *UsersRepo {
	return &UsersRepo{pool: pool, prom: prom}
}

func (r *UsersRepo) observe(op string, fn func() error) error {
	if r.prom != nil {
		return r.prom.ObserveDB(op, fn)
	}
	return fn()
}

// Create relies on the users_email_key unique index for the email check, so
// two racing signups cannot both succeed.
func (r *UsersRepo) Create(ctx context.Context, in user.NewUser) (user.User, error) {
	now := time.Now().UTC()

	role := in.Role
	if role == "" {
		role = user.RoleUser
	}

	u := user.User{
		ID:           uuid.NewString(),
		Name:         in.Name,
		Email:        user.NormalizeEmail(in.Email),
		PasswordHash: in.PasswordHash,
		Role:         role,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	err := r.observe("users.create", func() error {
		_, e := r.pool.Exec(ctx,
			`INSERT INTO users (id, name, email, password_hash, role, created_at, updated_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7)`,
			u.ID, u.Name, u.Email, u.PasswordHash, string(u.Role), u.CreatedAt, u.UpdatedAt,
		)
		return e
	})

	if err != nil {
		if isUniqueViolation(err) {
			return user.User{}, user.ErrEmailTaken
		}
		return user.User{}, err
	}

	return u, nil
}

func (r *UsersRepo) GetByEmail(ctx context.Context, email string) (user.User, error) {
	var u user.User

	err := r.observe("users.get_by_email", func() error {
		return scanUser(r.pool.QueryRow(ctx,
			`SELECT `+userColumns+` FROM users WHERE email = $1`,
			user.NormalizeEmail(email),
		), &u)
	})

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return user.User{}, user.ErrNotFound
		}
		return user.User{}, err
	}

	return u, nil
}

func (r *UsersRepo) GetByID(ctx context.Context, id string) (user.User, error) {
	var u user.User

	err := r.observe("users.get_by_id", func() error {
		return scanUser(r.pool.QueryRow(ctx,
			`SELECT `+userColumns+` FROM users WHERE id = $1`,
			id,
		), &u)
	})

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return user.User{}, user.ErrNotFound
		}
		return user.User{}, err
	}

	return u, nil
}

// UpdateProfile merges the non-nil fields of patch. Role is never touched here.
// An email already held by another account fails users_email_key and comes
// back as ErrEmailTaken.
func (r *UsersRepo) UpdateProfile(ctx context.Context, id string, patch user.ProfilePatch) (user.User, error) {
	if patch.IsEmpty() {
		return r.GetByID(ctx, id)
	}

	var email *string
	if patch.Email != nil {
		normalized := user.NormalizeEmail(*patch.Email)
		email = &normalized
	}

	var u user.User

	err := r.observe("users.update_profile", func() error {
		return scanUser(r.pool.QueryRow(ctx,
			`UPDATE users
			SET name = COALESCE($2, name),
				email = COALESCE($3, email),
				password_hash = COALESCE($4, password_hash),
				updated_at = NOW()
			WHERE id = $1
			RETURNING `+userColumns,
			id, patch.Name, email, patch.PasswordHash,
		), &u)
	})

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return user.User{}, user.ErrNotFound
		}
		if isUniqueViolation(err) {
			return user.User{}, user.ErrEmailTaken
		}
		return user.User{}, err
	}

	return u, nil
}

// ListCursor pages users newest first, keyset on (created_at, id).
func (r *UsersRepo) ListCursor(
	ctx context.Context,
	role *user.Role,
	limit int,
	after utils.UserCursor,
) (items []user.User, nextCursor *string, hasMore bool, err error) {
	var (
		conds   []string
		args    []any
		argsPos = 1
	)

	if role != nil {
		conds = append(conds, fmt.Sprintf("role = $%d", argsPos))
		args = append(args, string(*role))
		argsPos++
	}

	// DESC keyset: fetch rows "older" than cursor
	conds = append(conds, fmt.Sprintf("(created_at, id) < ($%d, $%d)", argsPos, argsPos+1))
	args = append(args, after.CreatedAt, after.ID)
	argsPos += 2

	q := `SELECT ` + userColumns + ` FROM users WHERE ` + strings.Join(conds, " AND ") +
		fmt.Sprintf(" ORDER BY created_at DESC, id DESC LIMIT $%d", argsPos)
	args = append(args, limit+1)

	var rows pgx.Rows

	err = r.observe("users.list_cursor", func() error {
		var qerr error
		rows, qerr = r.pool.Query(ctx, q, args...)
		return qerr
	})
	if err != nil {
		return nil, nil, false, err
	}
	defer rows.Close()

	out := make([]user.User, 0, limit)

	for rows.Next() {
		var u user.User
		if err := scanUser(rows, &u); err != nil {
			return nil, nil, false, err
		}
		out = append(out, u)
	}

	if err := rows.Err(); err != nil {
		return nil, nil, false, err
	}

	return pageOf(out, limit)
}

// pageOf trims the extra limit+1 row and builds the next cursor.
func pageOf(out []user.User, limit int) ([]user.User, *string, bool, error) {
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

func scanUser(row pgx.Row, u *user.User) error {
	var role string

	err := row.Scan(
		&u.ID,
		&u.Name,
		&u.Email,
		&u.PasswordHash,
		&role,
		&u.CreatedAt,
		&u.UpdatedAt,
	)
	if err != nil {
		return err
	}

	u.Role = user.Role(role)
	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation
}
