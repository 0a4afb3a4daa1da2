package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/blue-carbon-registry/apiserver/types"
	"github.com/lib/pq"
)

const uniqueViolation = "23505"

// UserRepository handles persistence for user accounts.
type UserRepository struct {
	db *sql.DB
}

func NewUserRepository(db *sql.DB) *UserRepository {
	return &UserRepository{db: db}
}

const userColumns = `id, name, email, role, status, COALESCE(wallet, ''), COALESCE(password_hash, ''), created_at, updated_at`

func scanUser(row *sql.Row) (types.User, error) {
	var user types.User
	err := row.Scan(
		&user.ID,
		&user.Name,
		&user.Email,
		&user.Role,
		&user.Status,
		&user.Wallet,
		&user.PasswordHash,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.User{}, ErrNotFound
		}
		return types.User{}, err
	}
	return user, nil
}

func (r *UserRepository) GetByID(ctx context.Context, id int) (types.User, error) {
	const query = `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	return scanUser(r.db.QueryRowContext(ctx, query, id))
}

func (r *UserRepository) GetByEmail(ctx context.Context, email string) (types.User, error) {
	const query = `SELECT ` + userColumns + ` FROM users WHERE email = $1`
	return scanUser(r.db.QueryRowContext(ctx, query, email))
}

// GetByWallet looks up the account linked to the given wallet address.
// Addresses are stored checksummed but compared case-insensitively.
func (r *UserRepository) GetByWallet(ctx context.Context, wallet string) (types.User, error) {
	const query = `SELECT ` + userColumns + ` FROM users WHERE LOWER(wallet) = LOWER($1)`
	return scanUser(r.db.QueryRowContext(ctx, query, wallet))
}

func (r *UserRepository) Create(ctx context.Context, user types.User) (types.User, error) {
	now := time.Now()
	user.CreatedAt = now
	user.UpdatedAt = now

	const query = `
		INSERT INTO users (name, email, role, status, password_hash, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id`
	if err := r.db.QueryRowContext(
		ctx,
		query,
		user.Name,
		user.Email,
		user.Role,
		user.Status,
		user.PasswordHash,
		user.CreatedAt,
		user.UpdatedAt,
	).Scan(&user.ID); err != nil {
		return types.User{}, mapConstraint(err)
	}
	return user, nil
}

// LinkWallet records a proven wallet address on the account.
func (r *UserRepository) LinkWallet(ctx context.Context, id int, wallet string) (types.User, error) {
	const query = `
		UPDATE users
		SET wallet = $1, updated_at = $2
		WHERE id = $3
		RETURNING ` + userColumns
	user, err := scanUser(r.db.QueryRowContext(ctx, query, wallet, time.Now(), id))
	if err != nil {
		return types.User{}, mapConstraint(err)
	}
	return user, nil
}

// ListPendingWithWallet returns pending signup requests that have a linked
// wallet, oldest first. Requests without a wallet cannot be approved yet and
// are excluded.
func (r *UserRepository) ListPendingWithWallet(ctx context.Context) ([]types.User, error) {
	const query = `
		SELECT ` + userColumns + `
		FROM users
		WHERE status = 'pending' AND wallet IS NOT NULL
		ORDER BY created_at`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []types.User
	for rows.Next() {
		var user types.User
		if err := rows.Scan(
			&user.ID,
			&user.Name,
			&user.Email,
			&user.Role,
			&user.Status,
			&user.Wallet,
			&user.PasswordHash,
			&user.CreatedAt,
			&user.UpdatedAt,
		); err != nil {
			return nil, err
		}
		users = append(users, user)
	}
	return users, rows.Err()
}

// SetStatusFromPending atomically moves the account out of the pending
// state. The WHERE clause is the guard against concurrent transitions: the
// second of two racing updates affects zero rows and gets ErrNotPending.
func (r *UserRepository) SetStatusFromPending(ctx context.Context, id int, status types.Status) (types.User, error) {
	const query = `
		UPDATE users
		SET status = $1, updated_at = $2
		WHERE id = $3 AND status = 'pending'
		RETURNING ` + userColumns
	user, err := scanUser(r.db.QueryRowContext(ctx, query, status, time.Now(), id))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			// Distinguish a missing row from a row that already left
			// pending.
			if _, getErr := r.GetByID(ctx, id); getErr == nil {
				return types.User{}, ErrNotPending
			}
			return types.User{}, ErrNotFound
		}
		return types.User{}, err
	}
	return user, nil
}

func (r *UserRepository) Delete(ctx context.Context, id int) error {
	const query = `DELETE FROM users WHERE id = $1`
	result, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func mapConstraint(err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
		return ErrConflict
	}
	return err
}
