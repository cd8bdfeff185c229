package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/mmeshcher/ticketing-settlement/internal/apperrors"
	"github.com/mmeshcher/ticketing-settlement/internal/model"
	"github.com/mmeshcher/ticketing-settlement/internal/repository"
	"github.com/mmeshcher/ticketing-settlement/internal/validation"
)

// CreateEvent публикует мероприятие с настройками билетов.
func (s *Service) CreateEvent(ctx context.Context, in model.NewEvent) (*model.Event, error) {
	const op = "create event"

	if err := validation.Struct(in); err != nil {
		return nil, apperrors.Validation(op, err.Error(), err)
	}

	e, err := s.repo.CreateEvent(ctx, in)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return e, nil
}

// GetEvent возвращает действующее мероприятие с остатками билетов.
func (s *Service) GetEvent(ctx context.Context, id string) (*model.Event, error) {
	const op = "get event"

	if uuid.Validate(id) != nil {
		return nil, apperrors.NotFound(op, "event not found", nil)
	}

	e, err := s.repo.GetEvent(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrEventNotFound) {
			return nil, apperrors.NotFound(op, "event not found", err)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if e.Deleted() {
		return nil, apperrors.NotFound(op, "event not found", repository.ErrEventNotFound)
	}
	return e, nil
}

// DeleteEvent снимает мероприятие. Это может сделать только организатор.
func (s *Service) DeleteEvent(ctx context.Context, id string, organizerID int64) error {
	const op = "delete event"

	if uuid.Validate(id) != nil {
		return apperrors.NotFound(op, "event not found", nil)
	}

	err := s.repo.DeleteEvent(ctx, id, organizerID)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, repository.ErrEventNotFound):
		return apperrors.NotFound(op, "event not found", err)
	case errors.Is(err, repository.ErrNotEventOrganizer):
		return apperrors.E(apperrors.KindForbidden, op, "only the organizer can delete the event", err)
	default:
		return fmt.Errorf("%s: %w", op, err)
	}
}
