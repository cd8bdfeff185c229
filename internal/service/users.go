package service

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"

	"github.com/mmeshcher/ticketing-settlement/internal/apperrors"
	"github.com/mmeshcher/ticketing-settlement/internal/repository"
)

// ErrInvalidCredentials возвращается, если логин и пароль не совпадают.
var ErrInvalidCredentials = errors.New("invalid credentials")

// RegisterUser создаёт пользователя, при необходимости с реферером по логину.
func (s *Service) RegisterUser(ctx context.Context, login, password, referrer string) (int64, error) {
	const op = "register user"

	if login == "" || password == "" {
		return 0, apperrors.Validation(op, "login and password are required", nil)
	}
	if referrer == login {
		return 0, apperrors.Validation(op, "a user cannot refer themselves", nil)
	}

	hashed, err := hashPassword(password)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	id, err := s.repo.CreateUser(ctx, login, hashed, referrer)
	switch {
	case err == nil:
		return id, nil
	case errors.Is(err, repository.ErrUserExists):
		return 0, apperrors.E(apperrors.KindConflict, op, "login already taken", err)
	case errors.Is(err, repository.ErrReferrerNotFound):
		return 0, apperrors.Validation(op, "unknown referrer", err)
	default:
		return 0, fmt.Errorf("%s: %w", op, err)
	}
}

// AuthenticateUser проверяет учётные данные и возвращает идентификатор пользователя.
func (s *Service) AuthenticateUser(ctx context.Context, login, password string) (int64, error) {
	const op = "authenticate user"

	u, err := s.repo.GetUserByLogin(ctx, login)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return 0, apperrors.E(apperrors.KindUnauthorized, op, "", ErrInvalidCredentials)
		}
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	if err := bcrypt.CompareHashAndPassword(u.PasswordHash, []byte(password)); err != nil {
		return 0, apperrors.E(apperrors.KindUnauthorized, op, "", ErrInvalidCredentials)
	}

	return u.ID, nil
}

func hashPassword(password string) ([]byte, error) {
	return bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
}
