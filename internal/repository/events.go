package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/mmeshcher/ticketing-settlement/internal/model"
)

// CreateEvent сохраняет мероприятие вместе с запасом билетов по типам.
func (r *PostgresRepository) CreateEvent(ctx context.Context, in model.NewEvent) (*model.Event, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	e := &model.Event{
		ID:                uuid.NewString(),
		OrganizerID:       in.OrganizerID,
		Title:             in.Title,
		StartsAt:          in.StartsAt,
		RefundPolicy:      in.RefundPolicy,
		RefundWindowHours: in.RefundWindowHours,
	}

	err = tx.QueryRow(ctx,
		`INSERT INTO events (id, organizer_id, title, starts_at, refund_policy, refund_window_hours)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING created_at`,
		e.ID, e.OrganizerID, e.Title, e.StartsAt, e.RefundPolicy, e.RefundWindowHours,
	).Scan(&e.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("insert event: %w", err)
	}

	for _, tt := range in.TicketTypes {
		t := model.TicketType{
			ID:             uuid.NewString(),
			EventID:        e.ID,
			Name:           tt.Name,
			Price:          tt.Price,
			RemainingStock: tt.Stock,
		}
		_, err := tx.Exec(ctx,
			`INSERT INTO ticket_types (id, event_id, name, price, remaining_stock) VALUES ($1, $2, $3, $4, $5)`,
			t.ID, t.EventID, t.Name, t.Price, t.RemainingStock,
		)
		if err != nil {
			return nil, fmt.Errorf("insert ticket type %q: %w", tt.Name, err)
		}
		e.TicketTypes = append(e.TicketTypes, t)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}

	return e, nil
}

// GetEvent возвращает мероприятие с типами билетов. У удалённых мероприятий заполнен DeletedAt.
func (r *PostgresRepository) GetEvent(ctx context.Context, id string) (*model.Event, error) {
	var e model.Event
	err := r.pool.QueryRow(ctx,
		`SELECT id, organizer_id, title, starts_at, refund_policy, refund_window_hours,
		        sold_tickets, settled_tickets, deleted_at, created_at
		 FROM events
		 WHERE id = $1`,
		id,
	).Scan(&e.ID, &e.OrganizerID, &e.Title, &e.StartsAt, &e.RefundPolicy, &e.RefundWindowHours,
		&e.SoldTickets, &e.SettledTickets, &e.DeletedAt, &e.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrEventNotFound
		}
		return nil, fmt.Errorf("get event: %w", err)
	}

	rows, err := r.pool.Query(ctx,
		`SELECT id, event_id, name, price, remaining_stock, sold_count
		 FROM ticket_types
		 WHERE event_id = $1
		 ORDER BY name`,
		id,
	)
	if err != nil {
		return nil, fmt.Errorf("select ticket types: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var t model.TicketType
		if err := rows.Scan(&t.ID, &t.EventID, &t.Name, &t.Price, &t.RemainingStock, &t.SoldCount); err != nil {
			return nil, fmt.Errorf("scan ticket type: %w", err)
		}
		e.TicketTypes = append(e.TicketTypes, t)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return &e, nil
}

// DeleteEvent помечает мероприятие удалённым по запросу организатора.
func (r *PostgresRepository) DeleteEvent(ctx context.Context, id string, organizerID int64) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE events SET deleted_at = now() WHERE id = $1 AND organizer_id = $2 AND deleted_at IS NULL`,
		id, organizerID,
	)
	if err != nil {
		return fmt.Errorf("delete event: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}

	var owner int64
	err = r.pool.QueryRow(ctx,
		`SELECT organizer_id FROM events WHERE id = $1 AND deleted_at IS NULL`,
		id,
	).Scan(&owner)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrEventNotFound
		}
		return fmt.Errorf("select event owner: %w", err)
	}

	return ErrNotEventOrganizer
}
