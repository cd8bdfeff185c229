package repository

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/mmeshcher/ticketing-settlement/internal/model"
)

const orderColumns = `o.id, o.event_id, o.user_id, o.total_amount, o.payment_method, o.transaction_id,
	COALESCE(o.gateway_transaction_id, ''), o.payment_status, o.tickets_updated, o.sold_ticket_updated,
	o.buyer_name, o.buyer_email, o.buyer_phone, o.buyer_address, o.created_at, o.updated_at`

func scanOrder(row pgx.Row, extra ...any) (*model.Order, error) {
	var (
		o      model.Order
		method string
		status string
	)
	dest := []any{
		&o.ID, &o.EventID, &o.UserID, &o.TotalAmount, &method, &o.TransactionID,
		&o.GatewayTransactionID, &status, &o.TicketsUpdated, &o.SoldTicketUpdated,
		&o.Buyer.Name, &o.Buyer.Email, &o.Buyer.Phone, &o.Buyer.Address, &o.CreatedAt, &o.UpdatedAt,
	}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return nil, err
	}
	o.PaymentMethod = model.PaymentMethod(method)
	o.PaymentStatus = model.PaymentStatus(status)
	return &o, nil
}

// CreateOrder резервирует билеты и сохраняет ожидающий заказ в одной транзакции.
// Остатки и счётчики проданных билетов меняются только здесь, при расчёте они не трогаются.
// Бонус за покупку начисляется в той же транзакции.
func (r *PostgresRepository) CreateOrder(ctx context.Context, in model.NewOrder) (*model.Order, error) {
	var created *model.Order
	err := r.withRetry(ctx, func() error {
		o, err := r.createOrder(ctx, in)
		if err != nil {
			return err
		}
		created = o
		return nil
	})
	return created, err
}

func (r *PostgresRepository) createOrder(ctx context.Context, in model.NewOrder) (*model.Order, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	// Блокировка строки мероприятия упорядочивает заказы на него и защищает от параллельного удаления.
	var deletedAt *time.Time
	err = tx.QueryRow(ctx, `SELECT deleted_at FROM events WHERE id = $1 FOR UPDATE`, in.EventID).Scan(&deletedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ErrEventNotFound, in.EventID)
		}
		return nil, fmt.Errorf("lock event: %w", err)
	}
	if deletedAt != nil {
		return nil, fmt.Errorf("%w: %s is deleted", ErrEventNotFound, in.EventID)
	}

	// Строки билетов блокируются всегда в порядке id.
	requested := append([]model.OrderItemRequest(nil), in.Items...)
	sort.Slice(requested, func(i, j int) bool { return requested[i].TicketTypeID < requested[j].TicketTypeID })

	o := &model.Order{
		ID:            uuid.NewString(),
		EventID:       in.EventID,
		UserID:        in.UserID,
		PaymentMethod: in.PaymentMethod,
		TransactionID: uuid.NewString(),
		PaymentStatus: model.PaymentStatusPending,
		Buyer:         in.Buyer,
	}

	for _, it := range requested {
		item, err := decrementStock(ctx, tx, in.EventID, it)
		if err != nil {
			return nil, err
		}
		o.Items = append(o.Items, item)
		o.TotalAmount += item.Subtotal
	}

	_, err = tx.Exec(ctx,
		`UPDATE events SET sold_tickets = sold_tickets + $2 WHERE id = $1`,
		in.EventID, o.TicketCount(),
	)
	if err != nil {
		return nil, fmt.Errorf("update event sold tickets: %w", err)
	}

	err = tx.QueryRow(ctx,
		`INSERT INTO orders (id, event_id, user_id, total_amount, payment_method, transaction_id, payment_status,
		                     buyer_name, buyer_email, buyer_phone, buyer_address)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		 RETURNING created_at, updated_at`,
		o.ID, o.EventID, o.UserID, o.TotalAmount, string(o.PaymentMethod), o.TransactionID, string(o.PaymentStatus),
		o.Buyer.Name, o.Buyer.Email, o.Buyer.Phone, o.Buyer.Address,
	).Scan(&o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("insert order: %w", err)
	}

	for _, it := range o.Items {
		_, err := tx.Exec(ctx,
			`INSERT INTO order_items (order_id, ticket_type_id, ticket_type_name, quantity, unit_price, subtotal)
			 VALUES ($1, $2, $3, $4, $5, $6)`,
			o.ID, it.TicketTypeID, it.TicketTypeName, it.Quantity, it.UnitPrice, it.Subtotal,
		)
		if err != nil {
			return nil, fmt.Errorf("insert order item: %w", err)
		}
	}

	if _, err := creditPurchaseReward(ctx, tx, o.ID, o.UserID, o.TotalAmount); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}

	return o, nil
}

func decrementStock(ctx context.Context, tx pgx.Tx, eventID string, it model.OrderItemRequest) (model.LineItem, error) {
	item := model.LineItem{TicketTypeID: it.TicketTypeID, Quantity: it.Quantity}

	err := tx.QueryRow(ctx,
		`UPDATE ticket_types
		 SET remaining_stock = remaining_stock - $1, sold_count = sold_count + $1
		 WHERE id = $2 AND event_id = $3 AND remaining_stock >= $1
		 RETURNING name, price`,
		it.Quantity, it.TicketTypeID, eventID,
	).Scan(&item.TicketTypeName, &item.UnitPrice)
	if err == nil {
		item.Subtotal = item.UnitPrice * item.Quantity
		return item, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return item, fmt.Errorf("decrement stock: %w", err)
	}

	var (
		name      string
		remaining int64
	)
	err = tx.QueryRow(ctx,
		`SELECT name, remaining_stock FROM ticket_types WHERE id = $1 AND event_id = $2`,
		it.TicketTypeID, eventID,
	).Scan(&name, &remaining)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return item, fmt.Errorf("%w: %s", ErrTicketTypeNotFound, it.TicketTypeID)
		}
		return item, fmt.Errorf("select ticket type: %w", err)
	}

	return item, fmt.Errorf("%w: %s has %d left, %d requested", ErrInsufficientStock, name, remaining, it.Quantity)
}

// AttachGatewayTransaction сохраняет идентификатор транзакции, назначенный платёжным шлюзом.
func (r *PostgresRepository) AttachGatewayTransaction(ctx context.Context, orderID, gatewayTransactionID string) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE orders SET gateway_transaction_id = $2, updated_at = now() WHERE id = $1`,
		orderID, gatewayTransactionID,
	)
	if err != nil {
		return fmt.Errorf("attach gateway transaction: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrOrderNotFound
	}
	return nil
}

// GetOrder возвращает заказ со строками.
func (r *PostgresRepository) GetOrder(ctx context.Context, id string) (*model.Order, error) {
	o, err := scanOrder(r.pool.QueryRow(ctx,
		`SELECT `+orderColumns+` FROM orders o WHERE o.id = $1`,
		id,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrOrderNotFound
		}
		return nil, fmt.Errorf("get order: %w", err)
	}

	if o.Items, err = r.orderItems(ctx, o.ID); err != nil {
		return nil, err
	}
	return o, nil
}

// FindOrderByTransaction возвращает заказ, основной или шлюзовой идентификатор которого совпадает с одним из ids.
func (r *PostgresRepository) FindOrderByTransaction(ctx context.Context, ids []string) (*model.Order, error) {
	if len(ids) == 0 {
		return nil, ErrOrderNotFound
	}

	o, err := scanOrder(r.pool.QueryRow(ctx,
		`SELECT `+orderColumns+`
		 FROM orders o
		 WHERE o.transaction_id = ANY($1) OR o.gateway_transaction_id = ANY($1)
		 LIMIT 1`,
		ids,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrOrderNotFound
		}
		return nil, fmt.Errorf("find order by transaction: %w", err)
	}

	if o.Items, err = r.orderItems(ctx, o.ID); err != nil {
		return nil, err
	}
	return o, nil
}

func (r *PostgresRepository) orderItems(ctx context.Context, orderID string) ([]model.LineItem, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT ticket_type_id, ticket_type_name, quantity, unit_price, subtotal
		 FROM order_items
		 WHERE order_id = $1
		 ORDER BY ticket_type_name`,
		orderID,
	)
	if err != nil {
		return nil, fmt.Errorf("select order items: %w", err)
	}
	defer rows.Close()

	var items []model.LineItem
	for rows.Next() {
		var it model.LineItem
		if err := rows.Scan(&it.TicketTypeID, &it.TicketTypeName, &it.Quantity, &it.UnitPrice, &it.Subtotal); err != nil {
			return nil, fmt.Errorf("scan order item: %w", err)
		}
		items = append(items, it)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return items, nil
}

// GetOrdersByUser возвращает заказы пользователя, начиная с новых, с данными мероприятия и условиями возврата.
func (r *PostgresRepository) GetOrdersByUser(ctx context.Context, userID int64) ([]model.UserOrder, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+orderColumns+`, e.title, e.starts_at, e.refund_policy, e.refund_window_hours
		 FROM orders o
		 JOIN events e ON e.id = o.event_id
		 WHERE o.user_id = $1
		 ORDER BY o.created_at DESC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("select orders: %w", err)
	}
	defer rows.Close()

	var (
		orders []model.UserOrder
		index  = make(map[string]int)
	)
	for rows.Next() {
		var uo model.UserOrder
		o, err := scanOrder(rows, &uo.EventTitle, &uo.EventStartsAt, &uo.RefundPolicy, &uo.RefundWindowHours)
		if err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		uo.Order = *o
		index[o.ID] = len(orders)
		orders = append(orders, uo)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	rows.Close()

	if len(orders) == 0 {
		return orders, nil
	}

	itemRows, err := r.pool.Query(ctx,
		`SELECT i.order_id, i.ticket_type_id, i.ticket_type_name, i.quantity, i.unit_price, i.subtotal
		 FROM order_items i
		 JOIN orders o ON o.id = i.order_id
		 WHERE o.user_id = $1
		 ORDER BY i.ticket_type_name`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("select order items: %w", err)
	}
	defer itemRows.Close()

	for itemRows.Next() {
		var (
			orderID string
			it      model.LineItem
		)
		if err := itemRows.Scan(&orderID, &it.TicketTypeID, &it.TicketTypeName, &it.Quantity, &it.UnitPrice, &it.Subtotal); err != nil {
			return nil, fmt.Errorf("scan order item: %w", err)
		}
		if i, ok := index[orderID]; ok {
			orders[i].Items = append(orders[i].Items, it)
		}
	}
	if err := itemRows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return orders, nil
}

// GetPendingGatewayOrders возвращает ожидающие оплаты через шлюз заказы, созданные раньше olderThan.
func (r *PostgresRepository) GetPendingGatewayOrders(ctx context.Context, olderThan time.Time, limit int) ([]model.Order, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+orderColumns+`
		 FROM orders o
		 WHERE o.payment_status = $1
		   AND o.gateway_transaction_id IS NOT NULL
		   AND o.created_at < $2
		 ORDER BY o.created_at
		 LIMIT $3`,
		string(model.PaymentStatusPending), olderThan, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("select pending orders: %w", err)
	}
	defer rows.Close()

	var res []model.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		res = append(res, *o)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}
