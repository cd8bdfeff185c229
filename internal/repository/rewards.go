package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/samber/lo"

	"github.com/mmeshcher/ticketing-settlement/internal/model"
)

// creditPurchaseReward начисляет бонус за покупку по заказу внутри tx.
// Строка покупателя блокируется, чтобы два его заказа не получили бонус за первую покупку.
// Заказ получает либо бонус, либо обычные баллы, и только один раз.
func creditPurchaseReward(ctx context.Context, tx pgx.Tx, orderID string, userID, totalAmount int64) (bool, error) {
	var referrerID *int64
	err := tx.QueryRow(ctx, `SELECT referrer_id FROM users WHERE id = $1 FOR UPDATE`, userID).Scan(&referrerID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, ErrUserNotFound
		}
		return false, fmt.Errorf("lock user for update: %w", err)
	}

	var alreadyCredited bool
	err = tx.QueryRow(ctx,
		`SELECT EXISTS (
		     SELECT 1 FROM reward_entries
		     WHERE user_id = $1 AND order_id = $2 AND reason IN ($3, $4)
		 )`,
		userID, orderID, model.RewardReasonFirstPurchase, model.RewardReasonPurchase,
	).Scan(&alreadyCredited)
	if err != nil {
		return false, fmt.Errorf("check reward entry: %w", err)
	}
	if alreadyCredited {
		return false, nil
	}

	var firstPurchase bool
	err = tx.QueryRow(ctx,
		`SELECT NOT EXISTS (
		            SELECT 1 FROM reward_entries WHERE user_id = $1 AND reason = $2 AND status <> $5
		        )
		    AND NOT EXISTS (
		            SELECT 1 FROM orders WHERE user_id = $1 AND payment_status = $3 AND id <> $4
		        )`,
		userID, model.RewardReasonFirstPurchase, string(model.PaymentStatusConfirmed), orderID, string(model.RewardVoided),
	).Scan(&firstPurchase)
	if err != nil {
		return false, fmt.Errorf("check first purchase: %w", err)
	}

	if firstPurchase {
		if _, err := insertCredit(ctx, tx, userID, orderID, model.FirstPurchaseBonus, model.RewardReasonFirstPurchase); err != nil {
			return false, err
		}
		if referrerID != nil {
			if _, err := insertCredit(ctx, tx, *referrerID, orderID, model.FirstPurchaseBonus, model.RewardReasonReferral); err != nil {
				return false, err
			}
		}
		return true, nil
	}

	points := model.PurchasePoints(totalAmount)
	if points == 0 {
		return false, nil
	}
	return insertCredit(ctx, tx, userID, orderID, points, model.RewardReasonPurchase)
}

// voidOrderRewards аннулирует начисления по заказу, который уже не будет оплачен,
// включая начисление рефереру. Если заказ получил бонус за первую покупку, бонус
// переходит к самому раннему живому заказу покупателя вместо его обычных баллов.
func voidOrderRewards(ctx context.Context, tx pgx.Tx, orderID string, userID int64) (bool, error) {
	var referrerID *int64
	err := tx.QueryRow(ctx, `SELECT referrer_id FROM users WHERE id = $1 FOR UPDATE`, userID).Scan(&referrerID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, ErrUserNotFound
		}
		return false, fmt.Errorf("lock user for update: %w", err)
	}

	rows, err := tx.Query(ctx,
		`UPDATE reward_entries SET status = $3
		 WHERE order_id = $1 AND direction = $2 AND status = $4
		 RETURNING reason`,
		orderID, string(model.RewardCredit), string(model.RewardVoided), string(model.RewardAvailable),
	)
	if err != nil {
		return false, fmt.Errorf("void reward entries: %w", err)
	}
	reasons, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return false, fmt.Errorf("void reward entries: %w", err)
	}
	if len(reasons) == 0 {
		return false, nil
	}
	if !lo.Contains(reasons, model.RewardReasonFirstPurchase) {
		return true, nil
	}

	var nextID string
	err = tx.QueryRow(ctx,
		`SELECT id FROM orders
		 WHERE user_id = $1 AND id <> $2 AND payment_status IN ($3, $4)
		 ORDER BY created_at, id
		 LIMIT 1`,
		userID, orderID, string(model.PaymentStatusPending), string(model.PaymentStatusConfirmed),
	).Scan(&nextID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return true, nil
		}
		return false, fmt.Errorf("select next order: %w", err)
	}

	_, err = tx.Exec(ctx,
		`UPDATE reward_entries SET status = $4
		 WHERE user_id = $1 AND order_id = $2 AND reason = $3 AND status = $5`,
		userID, nextID, model.RewardReasonPurchase, string(model.RewardVoided), string(model.RewardAvailable),
	)
	if err != nil {
		return false, fmt.Errorf("void purchase points: %w", err)
	}
	if _, err := insertCredit(ctx, tx, userID, nextID, model.FirstPurchaseBonus, model.RewardReasonFirstPurchase); err != nil {
		return false, err
	}
	if referrerID != nil {
		if _, err := insertCredit(ctx, tx, *referrerID, nextID, model.FirstPurchaseBonus, model.RewardReasonReferral); err != nil {
			return false, err
		}
	}

	return true, nil
}

func insertCredit(ctx context.Context, tx pgx.Tx, userID int64, orderID string, points int64, reason string) (bool, error) {
	tag, err := tx.Exec(ctx,
		`INSERT INTO reward_entries (user_id, order_id, points, direction, reason, status)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (user_id, order_id, reason) DO NOTHING`,
		userID, orderID, points, string(model.RewardCredit), reason, string(model.RewardAvailable),
	)
	if err != nil {
		return false, fmt.Errorf("insert reward entry: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

type balanceQuerier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func queryBalance(ctx context.Context, q balanceQuerier, userID int64) (model.RewardBalance, error) {
	var b model.RewardBalance
	err := q.QueryRow(ctx,
		`SELECT COALESCE(SUM(points) FILTER (WHERE direction = $2), 0),
		        COALESCE(SUM(points) FILTER (WHERE direction = $3), 0)
		 FROM reward_entries
		 WHERE user_id = $1 AND status = $4`,
		userID, string(model.RewardCredit), string(model.RewardDebit), string(model.RewardAvailable),
	).Scan(&b.Credited, &b.Debited)
	if err != nil {
		return b, fmt.Errorf("sum reward entries: %w", err)
	}

	b.Current = b.Credited - b.Debited
	if b.Current < 0 {
		b.Current = 0
	}
	return b, nil
}

// GetBalance возвращает бонусный баланс пользователя.
func (r *PostgresRepository) GetBalance(ctx context.Context, userID int64) (model.RewardBalance, error) {
	return queryBalance(ctx, r.pool, userID)
}

// RedeemPoints создаёт запись о списании. Блокировка строки пользователя упорядочивает списания.
func (r *PostgresRepository) RedeemPoints(ctx context.Context, userID, points int64, reason string) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	var dummy int
	err = tx.QueryRow(ctx, `SELECT 1 FROM users WHERE id = $1 FOR UPDATE`, userID).Scan(&dummy)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrUserNotFound
		}
		return fmt.Errorf("lock user for update: %w", err)
	}

	balance, err := queryBalance(ctx, tx, userID)
	if err != nil {
		return err
	}
	if points > balance.Current {
		return ErrInsufficientBalance
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO reward_entries (user_id, points, direction, reason, status) VALUES ($1, $2, $3, $4, $5)`,
		userID, points, string(model.RewardDebit), reason, string(model.RewardAvailable),
	)
	if err != nil {
		return fmt.Errorf("insert debit entry: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}

	return nil
}

// GetRewardEntries возвращает журнал бонусов пользователя, начиная с новых записей.
func (r *PostgresRepository) GetRewardEntries(ctx context.Context, userID int64) ([]model.RewardEntry, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, user_id, order_id, points, direction, reason, status, created_at
		 FROM reward_entries
		 WHERE user_id = $1
		 ORDER BY created_at DESC, id DESC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("select reward entries: %w", err)
	}
	defer rows.Close()

	var res []model.RewardEntry
	for rows.Next() {
		var (
			e         model.RewardEntry
			direction string
			status    string
		)
		if err := rows.Scan(&e.ID, &e.UserID, &e.OrderID, &e.Points, &direction, &e.Reason, &status, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan reward entry: %w", err)
		}
		e.Direction = model.RewardDirection(direction)
		e.Status = model.RewardStatus(status)
		res = append(res, e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}
