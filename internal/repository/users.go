package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/mmeshcher/ticketing-settlement/internal/model"
)

// CreateUser создаёт нового пользователя. Непустой referrerLogin связывает его с существующим реферером.
func (r *PostgresRepository) CreateUser(ctx context.Context, login string, passwordHash []byte, referrerLogin string) (int64, error) {
	var referrerID *int64
	if referrerLogin != "" {
		var id int64
		err := r.pool.QueryRow(ctx, `SELECT id FROM users WHERE login = $1`, referrerLogin).Scan(&id)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return 0, fmt.Errorf("%w: %s", ErrReferrerNotFound, referrerLogin)
			}
			return 0, fmt.Errorf("find referrer: %w", err)
		}
		referrerID = &id
	}

	var id int64
	err := r.pool.QueryRow(ctx,
		`INSERT INTO users (login, password_hash, referrer_id) VALUES ($1, $2, $3) RETURNING id`,
		login, passwordHash, referrerID,
	).Scan(&id)
	if err != nil {
		if isUniqueViolation(err) {
			return 0, fmt.Errorf("%w: %s", ErrUserExists, login)
		}
		return 0, fmt.Errorf("create user: %w", err)
	}
	return id, nil
}

// GetUserByLogin возвращает пользователя по логину.
func (r *PostgresRepository) GetUserByLogin(ctx context.Context, login string) (*model.User, error) {
	var u model.User
	err := r.pool.QueryRow(ctx,
		`SELECT id, login, password_hash, referrer_id, created_at FROM users WHERE login = $1`,
		login,
	).Scan(&u.ID, &u.Login, &u.PasswordHash, &u.ReferrerID, &u.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("get user: %w", err)
	}

	return &u, nil
}
