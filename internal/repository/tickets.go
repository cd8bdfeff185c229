package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/mmeshcher/ticketing-settlement/internal/model"
)

// GetIssuedTicket возвращает билет по коду.
func (r *PostgresRepository) GetIssuedTicket(ctx context.Context, code string) (*model.IssuedTicket, error) {
	var t model.IssuedTicket
	err := r.pool.QueryRow(ctx,
		`SELECT code, order_id, ticket_type_id, user_id, issued_at FROM issued_tickets WHERE code = $1`,
		code,
	).Scan(&t.Code, &t.OrderID, &t.TicketTypeID, &t.UserID, &t.IssuedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrTicketNotFound
		}
		return nil, fmt.Errorf("get issued ticket: %w", err)
	}
	return &t, nil
}

// ListIssuedTickets возвращает билеты, выпущенные по заказу.
func (r *PostgresRepository) ListIssuedTickets(ctx context.Context, orderID string) ([]model.IssuedTicket, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT code, order_id, ticket_type_id, user_id, issued_at
		 FROM issued_tickets
		 WHERE order_id = $1
		 ORDER BY issued_at, code`,
		orderID,
	)
	if err != nil {
		return nil, fmt.Errorf("select issued tickets: %w", err)
	}
	defer rows.Close()

	var res []model.IssuedTicket
	for rows.Next() {
		var t model.IssuedTicket
		if err := rows.Scan(&t.Code, &t.OrderID, &t.TicketTypeID, &t.UserID, &t.IssuedAt); err != nil {
			return nil, fmt.Errorf("scan issued ticket: %w", err)
		}
		res = append(res, t)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}
