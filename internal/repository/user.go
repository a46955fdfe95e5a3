package repository

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/fruitsmith-checkout/internal/domain/user"
)

const (
	getUserByIDSQL = `SELECT id, name, email, role FROM users WHERE id = $1`

	upsertUserSQL = `INSERT INTO users (id, name, email, role)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			email = EXCLUDED.email,
			role = EXCLUDED.role`
)

var (
	_ user.Repository = (*UserRepository)(nil)
	_ user.Writer     = (*UserRepository)(nil)
)

// UserRepository implements user.Repository backed by PostgreSQL.
type UserRepository struct {
	pool *pgxpool.Pool
}

// NewUserRepository returns a UserRepository that uses the given pool.
func NewUserRepository(pool *pgxpool.Pool) *UserRepository {
	return &UserRepository{pool: pool}
}

// GetByID returns a user by id.
func (r *UserRepository) GetByID(ctx context.Context, id string) (*user.User, error) {
	rows, err := r.pool.Query(ctx, getUserByIDSQL, id)
	if err != nil {
		return nil, fmt.Errorf("getting user %q: %w", id, err)
	}
	u, err := pgx.CollectExactlyOneRow(rows, pgx.RowToStructByPos[user.User])
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, user.ErrNotFound
		}
		return nil, fmt.Errorf("getting user %q: %w", id, err)
	}
	return &u, nil
}

// Upsert stores users in a single transaction.
func (r *UserRepository) Upsert(ctx context.Context, users []user.User) error {
	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		for _, u := range users {
			role := u.Role
			if role == "" {
				role = "user"
			}
			if _, err := tx.Exec(ctx, upsertUserSQL, u.ID, u.Name, u.Email, role); err != nil {
				return fmt.Errorf("upserting user %q: %w", u.ID, err)
			}
		}
		return nil
	})
}
