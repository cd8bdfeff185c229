package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/mmeshcher/ticketing-settlement/internal/apperrors"
	"github.com/mmeshcher/ticketing-settlement/internal/model"
	"github.com/mmeshcher/ticketing-settlement/internal/repository"
)

const defaultRedeemReason = "Points Redemption"

// GetBalance возвращает текущий бонусный баланс пользователя.
func (s *Service) GetBalance(ctx context.Context, userID int64) (model.RewardBalance, error) {
	b, err := s.repo.GetBalance(ctx, userID)
	if err != nil {
		return model.RewardBalance{}, fmt.Errorf("get balance: %w", err)
	}
	return b, nil
}

// GetRewardEntries возвращает журнал бонусов пользователя, начиная с новых записей.
func (s *Service) GetRewardEntries(ctx context.Context, userID int64) ([]model.RewardEntry, error) {
	entries, err := s.repo.GetRewardEntries(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("get reward entries: %w", err)
	}
	return entries, nil
}

// RedeemPoints списывает баллы с баланса пользователя.
func (s *Service) RedeemPoints(ctx context.Context, userID, points int64, reason string) error {
	const op = "redeem points"

	if points <= 0 {
		return apperrors.Validation(op, "points must be positive", nil)
	}
	if reason == "" {
		reason = defaultRedeemReason
	}

	err := s.repo.RedeemPoints(ctx, userID, points, reason)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, repository.ErrInsufficientBalance):
		return apperrors.E(apperrors.KindInsufficientFunds, op, "not enough points", err)
	case errors.Is(err, repository.ErrUserNotFound):
		return apperrors.NotFound(op, "user not found", err)
	default:
		return fmt.Errorf("%s: %w", op, err)
	}
}

// GetIssuedTicket ищет билет по коду прохода.
func (s *Service) GetIssuedTicket(ctx context.Context, code string) (*model.IssuedTicket, error) {
	t, err := s.repo.GetIssuedTicket(ctx, code)
	if err != nil {
		if errors.Is(err, repository.ErrTicketNotFound) {
			return nil, apperrors.NotFound("get issued ticket", "ticket not found", err)
		}
		return nil, fmt.Errorf("get issued ticket: %w", err)
	}
	return t, nil
}

// ListIssuedTickets возвращает билеты, выпущенные по заказу указанного покупателя.
func (s *Service) ListIssuedTickets(ctx context.Context, userID int64, orderID string) ([]model.IssuedTicket, error) {
	const op = "list issued tickets"

	if uuid.Validate(orderID) != nil {
		return nil, apperrors.NotFound(op, "order not found", nil)
	}

	order, err := s.repo.GetOrder(ctx, orderID)
	if err != nil {
		if errors.Is(err, repository.ErrOrderNotFound) {
			return nil, apperrors.NotFound(op, "order not found", err)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if order.UserID != userID {
		return nil, apperrors.E(apperrors.KindForbidden, op, "order belongs to another buyer", nil)
	}

	tickets, err := s.repo.ListIssuedTickets(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return tickets, nil
}
