// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package postgres implements account.UserStore on PostgreSQL.
package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/holomush/accountd/internal/account"
)

// poolIface is the subset of *pgxpool.Pool used by Store.
// pgxmock.PgxPoolIface satisfies it in unit tests.
type poolIface interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}

const selectUser = `
	SELECT u.id, u.name, u.email, u.password_hash, u.is_verified, u.active,
	       u.verification_token_hash, u.verification_expires_at,
	       u.reset_token_hash, u.reset_expires_at,
	       u.password_changed_at, u.created_at, u.updated_at,
	       s.receive_notifications
	FROM users u
	LEFT JOIN user_settings s ON s.user_id = u.id`

// Store implements account.UserStore using PostgreSQL.
type Store struct {
	pool poolIface
}

// NewStore creates a Store. pool is usually a *pgxpool.Pool.
func NewStore(pool poolIface) *Store {
	return &Store{pool: pool}
}

var _ account.UserStore = (*Store)(nil)

// FindByEmail retrieves a user by normalized email.
func (s *Store) FindByEmail(ctx context.Context, email string) (*account.User, error) {
	row := s.pool.QueryRow(ctx, selectUser+` WHERE u.email = $1`, account.NormalizeEmail(email))
	return s.scanOne(row, "email", email)
}

// FindByVerificationToken retrieves a user by verification token digest.
func (s *Store) FindByVerificationToken(ctx context.Context, tokenHash string) (*account.User, error) {
	row := s.pool.QueryRow(ctx, selectUser+` WHERE u.verification_token_hash = $1`, tokenHash)
	return s.scanOne(row, "lookup", "verification token")
}

// FindByResetToken retrieves a user by reset token digest.
func (s *Store) FindByResetToken(ctx context.Context, tokenHash string) (*account.User, error) {
	row := s.pool.QueryRow(ctx, selectUser+` WHERE u.reset_token_hash = $1`, tokenHash)
	return s.scanOne(row, "lookup", "reset token")
}

// FindByID retrieves a user by ID.
func (s *Store) FindByID(ctx context.Context, id ulid.ULID) (*account.User, error) {
	row := s.pool.QueryRow(ctx, selectUser+` WHERE u.id = $1`, id.String())
	return s.scanOne(row, "id", id.String())
}

// List returns every user ordered by creation time.
func (s *Store) List(ctx context.Context) ([]*account.User, error) {
	rows, err := s.pool.Query(ctx, selectUser+` ORDER BY u.created_at, u.id`)
	if err != nil {
		return nil, oops.With("operation", "list users").Wrap(err)
	}
	defer rows.Close()

	var users []*account.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, oops.With("operation", "scan user row").Wrap(err)
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, oops.With("operation", "iterate users").Wrap(err)
	}
	return users, nil
}

// Insert stores a new user and its settings in one transaction.
func (s *Store) Insert(ctx context.Context, user *account.User) (*account.User, error) {
	u := user.Clone()
	u.Email = account.NormalizeEmail(u.Email)

	err := s.inTx(ctx, func(tx pgx.Tx) error {
		vHash, vExp := tokenColumns(u.Verification)
		rHash, rExp := tokenColumns(u.Reset)
		_, err := tx.Exec(ctx, `
			INSERT INTO users (
				id, name, email, password_hash, is_verified, active,
				verification_token_hash, verification_expires_at,
				reset_token_hash, reset_expires_at,
				password_changed_at, created_at, updated_at
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		`,
			u.ID.String(), u.Name, u.Email, u.PasswordHash, u.IsVerified, u.Active,
			vHash, vExp, rHash, rExp,
			u.PasswordChangedAt, u.CreatedAt, u.UpdatedAt,
		)
		if err != nil {
			if isUniqueViolation(err) {
				return oops.With("email", u.Email).Wrap(account.ErrEmailTaken)
			}
			return oops.With("operation", "insert user").With("id", u.ID.String()).Wrap(err)
		}
		return upsertSettings(ctx, tx, u)
	})
	if err != nil {
		return nil, err
	}
	return u, nil
}

// Save replaces the stored state of an existing user. A nil Settings removes
// the settings row.
func (s *Store) Save(ctx context.Context, user *account.User) (*account.User, error) {
	u := user.Clone()
	u.Email = account.NormalizeEmail(u.Email)

	err := s.inTx(ctx, func(tx pgx.Tx) error {
		vHash, vExp := tokenColumns(u.Verification)
		rHash, rExp := tokenColumns(u.Reset)
		tag, err := tx.Exec(ctx, `
			UPDATE users SET
				name = $2,
				email = $3,
				password_hash = $4,
				is_verified = $5,
				active = $6,
				verification_token_hash = $7,
				verification_expires_at = $8,
				reset_token_hash = $9,
				reset_expires_at = $10,
				password_changed_at = $11,
				updated_at = $12
			WHERE id = $1
		`,
			u.ID.String(), u.Name, u.Email, u.PasswordHash, u.IsVerified, u.Active,
			vHash, vExp, rHash, rExp,
			u.PasswordChangedAt, u.UpdatedAt,
		)
		if err != nil {
			if isUniqueViolation(err) {
				return oops.With("email", u.Email).Wrap(account.ErrEmailTaken)
			}
			return oops.With("operation", "update user").With("id", u.ID.String()).Wrap(err)
		}
		if tag.RowsAffected() == 0 {
			return oops.With("id", u.ID.String()).Wrap(account.ErrNotFound)
		}
		if u.Settings == nil {
			if _, err := tx.Exec(ctx, `DELETE FROM user_settings WHERE user_id = $1`, u.ID.String()); err != nil {
				return oops.With("operation", "delete settings").With("id", u.ID.String()).Wrap(err)
			}
			return nil
		}
		return upsertSettings(ctx, tx, u)
	})
	if err != nil {
		return nil, err
	}
	return u, nil
}

// DeleteByID removes a user. The settings row goes with it via ON DELETE CASCADE.
func (s *Store) DeleteByID(ctx context.Context, id ulid.ULID) (*account.User, error) {
	var deleted *account.User
	err := s.inTx(ctx, func(tx pgx.Tx) error {
		u, err := scanUser(tx.QueryRow(ctx, selectUser+` WHERE u.id = $1 FOR UPDATE OF u`, id.String()))
		if errors.Is(err, pgx.ErrNoRows) {
			return oops.With("id", id.String()).Wrap(account.ErrNotFound)
		}
		if err != nil {
			return oops.With("operation", "select user for delete").With("id", id.String()).Wrap(err)
		}
		if _, err := tx.Exec(ctx, `DELETE FROM users WHERE id = $1`, id.String()); err != nil {
			return oops.With("operation", "delete user").With("id", id.String()).Wrap(err)
		}
		deleted = u
		return nil
	})
	if err != nil {
		return nil, err
	}
	return deleted, nil
}

// inTx runs fn in a transaction, committing on success and rolling back otherwise.
func (s *Store) inTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return oops.With("operation", "begin transaction").Wrap(err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback(ctx) //nolint:errcheck // the fn error takes precedence
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return oops.With("operation", "commit transaction").Wrap(err)
	}
	return nil
}

func (s *Store) scanOne(row pgx.Row, key, value string) (*account.User, error) {
	u, err := scanUser(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.With(key, value).Wrap(account.ErrNotFound)
	}
	if err != nil {
		return nil, oops.With("operation", "find user").With(key, value).Wrap(err)
	}
	return u, nil
}

func upsertSettings(ctx context.Context, tx pgx.Tx, u *account.User) error {
	if u.Settings == nil {
		return nil
	}
	_, err := tx.Exec(ctx, `
		INSERT INTO user_settings (user_id, receive_notifications)
		VALUES ($1, $2)
		ON CONFLICT (user_id) DO UPDATE SET receive_notifications = EXCLUDED.receive_notifications
	`, u.ID.String(), u.Settings.ReceiveNotifications)
	if err != nil {
		return oops.With("operation", "upsert settings").With("id", u.ID.String()).Wrap(err)
	}
	return nil
}

func scanUser(row pgx.Row) (*account.User, error) {
	var (
		u                    account.User
		idStr                string
		vHash, rHash         *string
		vExp, rExp           *time.Time
		receiveNotifications *bool
	)
	err := row.Scan(
		&idStr, &u.Name, &u.Email, &u.PasswordHash, &u.IsVerified, &u.Active,
		&vHash, &vExp, &rHash, &rExp,
		&u.PasswordChangedAt, &u.CreatedAt, &u.UpdatedAt,
		&receiveNotifications,
	)
	if err != nil {
		return nil, err //nolint:wrapcheck // callers wrap with lookup context
	}

	id, err := ulid.Parse(idStr)
	if err != nil {
		return nil, oops.With("id", idStr).Errorf("corrupt user id: %w", err)
	}
	u.ID = id
	u.Verification = tokenFromColumns(vHash, vExp)
	u.Reset = tokenFromColumns(rHash, rExp)
	if receiveNotifications != nil {
		u.Settings = &account.Settings{ReceiveNotifications: *receiveNotifications}
	}
	return &u, nil
}

func tokenColumns(t *account.OneTimeToken) (*string, *time.Time) {
	if t == nil {
		return nil, nil
	}
	hash, exp := t.Hash, t.ExpiresAt
	return &hash, &exp
}

func tokenFromColumns(hash *string, exp *time.Time) *account.OneTimeToken {
	if hash == nil || exp == nil {
		return nil
	}
	return &account.OneTimeToken{Hash: *hash, ExpiresAt: *exp}
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation
}
