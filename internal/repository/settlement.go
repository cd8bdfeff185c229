package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/lithammer/shortuuid/v3"

	"github.com/mmeshcher/ticketing-settlement/internal/model"
)

// TransitionOrderStatus переводит ожидающий заказ в конечный статус.
// Возвращает false и не меняет заказ, если он уже не ожидает оплаты.
func (r *PostgresRepository) TransitionOrderStatus(ctx context.Context, orderID string, to model.PaymentStatus) (bool, error) {
	if !model.PaymentStatusPending.CanTransitionTo(to) {
		return false, fmt.Errorf("invalid transition to %q", to)
	}

	tag, err := r.pool.Exec(ctx,
		`UPDATE orders SET payment_status = $2, updated_at = now() WHERE id = $1 AND payment_status = $3`,
		orderID, string(to), string(model.PaymentStatusPending),
	)
	if err != nil {
		return false, fmt.Errorf("transition order status: %w", err)
	}

	return tag.RowsAffected() == 1, nil
}

// ClaimTicketIssue выставляет tickets_updated у подтверждённого заказа и в той же транзакции
// выпускает по билету на каждое место. Возвращает число выпущенных билетов или ноль,
// если это уже было сделано.
func (r *PostgresRepository) ClaimTicketIssue(ctx context.Context, orderID string) (int, error) {
	var issued int
	err := r.withRetry(ctx, func() error {
		n, err := r.claimTicketIssue(ctx, orderID)
		issued = n
		return err
	})
	return issued, err
}

func (r *PostgresRepository) claimTicketIssue(ctx context.Context, orderID string) (int, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	var userID int64
	err = tx.QueryRow(ctx,
		`UPDATE orders SET tickets_updated = TRUE, updated_at = now()
		 WHERE id = $1 AND tickets_updated = FALSE AND payment_status = $2
		 RETURNING user_id`,
		orderID, string(model.PaymentStatusConfirmed),
	).Scan(&userID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, nil
		}
		return 0, fmt.Errorf("claim ticket issue: %w", err)
	}

	rows, err := tx.Query(ctx, `SELECT ticket_type_id, quantity FROM order_items WHERE order_id = $1`, orderID)
	if err != nil {
		return 0, fmt.Errorf("select order items: %w", err)
	}

	type seat struct {
		ticketTypeID string
		quantity     int64
	}
	var seats []seat
	for rows.Next() {
		var s seat
		if err := rows.Scan(&s.ticketTypeID, &s.quantity); err != nil {
			rows.Close()
			return 0, fmt.Errorf("scan order item: %w", err)
		}
		seats = append(seats, s)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, fmt.Errorf("rows error: %w", err)
	}

	batch := &pgx.Batch{}
	for _, s := range seats {
		for i := int64(0); i < s.quantity; i++ {
			batch.Queue(
				`INSERT INTO issued_tickets (code, order_id, ticket_type_id, user_id) VALUES ($1, $2, $3, $4)`,
				shortuuid.New(), orderID, s.ticketTypeID, userID,
			)
		}
	}

	if batch.Len() > 0 {
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return 0, fmt.Errorf("issue tickets: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit tx: %w", err)
	}

	return batch.Len(), nil
}

// ClaimSoldCounter выставляет sold_ticket_updated у подтверждённого заказа и добавляет его места
// в счётчик мероприятия. Возвращает false, если это уже было сделано.
func (r *PostgresRepository) ClaimSoldCounter(ctx context.Context, orderID string) (bool, error) {
	var claimed bool
	err := r.withRetry(ctx, func() error {
		ok, err := r.claimSoldCounter(ctx, orderID)
		claimed = ok
		return err
	})
	return claimed, err
}

func (r *PostgresRepository) claimSoldCounter(ctx context.Context, orderID string) (bool, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return false, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	var eventID string
	err = tx.QueryRow(ctx,
		`UPDATE orders SET sold_ticket_updated = TRUE, updated_at = now()
		 WHERE id = $1 AND sold_ticket_updated = FALSE AND payment_status = $2
		 RETURNING event_id`,
		orderID, string(model.PaymentStatusConfirmed),
	).Scan(&eventID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("claim sold counter: %w", err)
	}

	_, err = tx.Exec(ctx,
		`UPDATE events
		 SET settled_tickets = settled_tickets + (SELECT COALESCE(SUM(quantity), 0) FROM order_items WHERE order_id = $1)
		 WHERE id = $2`,
		orderID, eventID,
	)
	if err != nil {
		return false, fmt.Errorf("update settled tickets: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return false, fmt.Errorf("commit tx: %w", err)
	}

	return true, nil
}

// CreditPurchaseReward начисляет бонус за покупку, если он ещё не был начислен.
func (r *PostgresRepository) CreditPurchaseReward(ctx context.Context, orderID string) (bool, error) {
	var credited bool
	err := r.withRetry(ctx, func() error {
		tx, err := r.pool.Begin(ctx)
		if err != nil {
			return fmt.Errorf("begin tx: %w", err)
		}
		defer tx.Rollback(ctx)

		var (
			userID int64
			total  int64
		)
		err = tx.QueryRow(ctx, `SELECT user_id, total_amount FROM orders WHERE id = $1`, orderID).Scan(&userID, &total)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrOrderNotFound
			}
			return fmt.Errorf("select order: %w", err)
		}

		ok, err := creditPurchaseReward(ctx, tx, orderID, userID, total)
		if err != nil {
			return err
		}

		if err := tx.Commit(ctx); err != nil {
			return fmt.Errorf("commit tx: %w", err)
		}
		credited = ok
		return nil
	})
	return credited, err
}

// VoidOrderRewards аннулирует начисления по неоплаченному или отклонённому заказу.
// Возвращает false, если аннулировать нечего или заказ не в таком статусе.
func (r *PostgresRepository) VoidOrderRewards(ctx context.Context, orderID string) (bool, error) {
	var voided bool
	err := r.withRetry(ctx, func() error {
		tx, err := r.pool.Begin(ctx)
		if err != nil {
			return fmt.Errorf("begin tx: %w", err)
		}
		defer tx.Rollback(ctx)

		var (
			userID int64
			status string
		)
		err = tx.QueryRow(ctx, `SELECT user_id, payment_status FROM orders WHERE id = $1`, orderID).Scan(&userID, &status)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrOrderNotFound
			}
			return fmt.Errorf("select order: %w", err)
		}
		switch model.PaymentStatus(status) {
		case model.PaymentStatusFailed, model.PaymentStatusDenied:
		default:
			return nil
		}

		ok, err := voidOrderRewards(ctx, tx, orderID, userID)
		if err != nil {
			return err
		}

		if err := tx.Commit(ctx); err != nil {
			return fmt.Errorf("commit tx: %w", err)
		}
		voided = ok
		return nil
	})
	return voided, err
}
