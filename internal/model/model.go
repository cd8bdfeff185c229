// Package model содержит доменные сущности сервиса расчётов по билетам.
package model

import "time"

// User представляет зарегистрированного покупателя или организатора.
type User struct {
	ID           int64
	Login        string
	PasswordHash []byte
	ReferrerID   *int64
	CreatedAt    time.Time
}

// Event описывает опубликованное мероприятие вместе со сводными счётчиками.
type Event struct {
	ID                string
	OrganizerID       int64
	Title             string
	StartsAt          time.Time
	RefundPolicy      string
	RefundWindowHours int
	SoldTickets       int64
	SettledTickets    int64
	DeletedAt         *time.Time
	CreatedAt         time.Time
	TicketTypes       []TicketType
}

// Deleted сообщает, снято ли мероприятие организатором.
func (e Event) Deleted() bool {
	return e.DeletedAt != nil
}

// Refundable сообщает, можно ли в указанный момент вернуть заказ на мероприятие.
func (e Event) Refundable(now time.Time) bool {
	if e.RefundWindowHours <= 0 {
		return false
	}
	deadline := e.StartsAt.Add(-time.Duration(e.RefundWindowHours) * time.Hour)
	return now.Before(deadline)
}

// TicketType описывает запас билетов одного типа на мероприятие.
type TicketType struct {
	ID             string
	EventID        string
	Name           string
	Price          int64
	RemainingStock int64
	SoldCount      int64
}

// PaymentMethod описывает способ оплаты заказа.
type PaymentMethod string

const (
	PaymentMethodCash        PaymentMethod = "cash"
	PaymentMethodMobileMoney PaymentMethod = "mobile_money"
	PaymentMethodCard        PaymentMethod = "card"
)

// RequiresGateway сообщает, проходит ли оплата этим способом через платёжный шлюз.
func (m PaymentMethod) RequiresGateway() bool {
	return m != PaymentMethodCash
}

// LineItem описывает строку заказа с одним типом билетов.
type LineItem struct {
	TicketTypeID   string
	TicketTypeName string
	Quantity       int64
	UnitPrice      int64
	Subtotal       int64
}

// Buyer содержит данные участника, указанные при оформлении.
type Buyer struct {
	Name    string `validate:"omitempty,max=200"`
	Email   string `validate:"omitempty,email"`
	Phone   string `validate:"omitempty,msisdn"`
	Address string `validate:"omitempty,max=500"`
}

// Order описывает покупку билетов и состояние её расчёта.
type Order struct {
	ID                   string
	EventID              string
	UserID               int64
	Items                []LineItem
	TotalAmount          int64
	PaymentMethod        PaymentMethod
	TransactionID        string
	GatewayTransactionID string
	PaymentStatus        PaymentStatus
	TicketsUpdated       bool
	SoldTicketUpdated    bool
	Buyer                Buyer
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

// TicketCount возвращает число мест, купленных в заказе.
func (o Order) TicketCount() int64 {
	var n int64
	for _, it := range o.Items {
		n += it.Quantity
	}
	return n
}

// NeedsGateway сообщает, должен ли покупатель завершить оплату через шлюз.
func (o Order) NeedsGateway() bool {
	return o.PaymentMethod.RequiresGateway() && o.TotalAmount > 0
}

// NewOrder описывает проверенные входные данные для создания заказа.
type NewOrder struct {
	EventID       string             `validate:"required,uuid"`
	UserID        int64              `validate:"required,gt=0"`
	Items         []OrderItemRequest `validate:"required,min=1,dive"`
	PaymentMethod PaymentMethod      `validate:"required,oneof=cash mobile_money card"`
	Buyer         Buyer
}

// OrderItemRequest описывает запрошенное количество билетов одного типа.
type OrderItemRequest struct {
	TicketTypeID string `validate:"required,uuid"`
	Quantity     int64  `validate:"required,gt=0,lte=100"`
}

// CreatedOrder возвращается при создании заказа.
type CreatedOrder struct {
	Order       *Order
	PaymentLink string
}

// UserOrder описывает заказ с данными мероприятия для истории покупателя.
type UserOrder struct {
	Order
	EventTitle        string
	EventStartsAt     time.Time
	RefundPolicy      string
	RefundWindowHours int
}

// IssuedTicket описывает один билет, выпущенный по подтверждённому заказу.
type IssuedTicket struct {
	Code         string
	OrderID      string
	TicketTypeID string
	UserID       int64
	IssuedAt     time.Time
}

// NewEvent описывает входные данные для публикации мероприятия.
type NewEvent struct {
	OrganizerID       int64           `validate:"required,gt=0"`
	Title             string          `validate:"required,max=200"`
	StartsAt          time.Time       `validate:"required"`
	RefundPolicy      string          `validate:"max=2000"`
	RefundWindowHours int             `validate:"gte=0"`
	TicketTypes       []NewTicketType `validate:"required,min=1,unique=Name,dive"`
}

// NewTicketType задаёт начальный запас билетов одного типа.
type NewTicketType struct {
	Name  string `validate:"required,max=100"`
	Price int64  `validate:"gte=0"`
	Stock int64  `validate:"gte=0"`
}
