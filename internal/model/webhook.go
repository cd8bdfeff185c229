package model

import "time"

// WebhookPayload описывает уведомление шлюза о платеже.
// TransID назначает шлюз, ExternalID повторяет основной идентификатор транзакции.
type WebhookPayload struct {
	TransID          string
	ExternalID       string
	Status           string
	Amount           int64
	Medium           string
	FinancialTransID string
}

// TransactionIDs возвращает непустые идентификаторы из уведомления.
func (p WebhookPayload) TransactionIDs() []string {
	ids := make([]string, 0, 2)
	if p.TransID != "" {
		ids = append(ids, p.TransID)
	}
	if p.ExternalID != "" && p.ExternalID != p.TransID {
		ids = append(ids, p.ExternalID)
	}
	return ids
}

// ReconcileOutcome описывает результат сверки.
type ReconcileOutcome string

const (
	OutcomeApplied   ReconcileOutcome = "applied"
	OutcomeDuplicate ReconcileOutcome = "duplicate"
	OutcomeIgnored   ReconcileOutcome = "ignored"
	OutcomePending   ReconcileOutcome = "pending"
)

// ReconcileResult возвращается при обработке вебхука.
type ReconcileResult struct {
	OrderID string
	Status  PaymentStatus
	Outcome ReconcileOutcome
}

// OrderEventType описывает тип события жизненного цикла заказа.
type OrderEventType string

const (
	OrderEventCreated   OrderEventType = "order.created"
	OrderEventConfirmed OrderEventType = "order.confirmed"
	OrderEventFailed    OrderEventType = "order.failed"
)

// OrderEvent публикуется для внешних потребителей, например рассыльщика писем.
type OrderEvent struct {
	Type          OrderEventType `json:"type"`
	OrderID       string         `json:"order_id"`
	EventID       string         `json:"event_id"`
	UserID        int64          `json:"user_id"`
	BuyerEmail    string         `json:"buyer_email,omitempty"`
	TotalAmount   int64          `json:"total_amount"`
	PaymentStatus PaymentStatus  `json:"payment_status"`
	OccurredAt    time.Time      `json:"occurred_at"`
}

// NewOrderEvent создаёт событие со снимком заказа.
func NewOrderEvent(t OrderEventType, o *Order, at time.Time) OrderEvent {
	return OrderEvent{
		Type:          t,
		OrderID:       o.ID,
		EventID:       o.EventID,
		UserID:        o.UserID,
		BuyerEmail:    o.Buyer.Email,
		TotalAmount:   o.TotalAmount,
		PaymentStatus: o.PaymentStatus,
		OccurredAt:    at,
	}
}
