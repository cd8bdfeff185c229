// Package service содержит бизнес-логику расчётов по заказам билетов.
package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/mmeshcher/ticketing-settlement/internal/gateway"
	"github.com/mmeshcher/ticketing-settlement/internal/model"
)

// Repository определяет контракт хранилища, используемого сервисом.
type Repository interface {
	Close() error
	CreateUser(ctx context.Context, login string, passwordHash []byte, referrerLogin string) (int64, error)
	GetUserByLogin(ctx context.Context, login string) (*model.User, error)

	CreateEvent(ctx context.Context, in model.NewEvent) (*model.Event, error)
	GetEvent(ctx context.Context, id string) (*model.Event, error)
	DeleteEvent(ctx context.Context, id string, organizerID int64) error

	CreateOrder(ctx context.Context, in model.NewOrder) (*model.Order, error)
	AttachGatewayTransaction(ctx context.Context, orderID, gatewayTransactionID string) error
	GetOrder(ctx context.Context, id string) (*model.Order, error)
	FindOrderByTransaction(ctx context.Context, ids []string) (*model.Order, error)
	GetOrdersByUser(ctx context.Context, userID int64) ([]model.UserOrder, error)
	GetPendingGatewayOrders(ctx context.Context, olderThan time.Time, limit int) ([]model.Order, error)

	TransitionOrderStatus(ctx context.Context, orderID string, to model.PaymentStatus) (bool, error)
	CreditPurchaseReward(ctx context.Context, orderID string) (bool, error)
	VoidOrderRewards(ctx context.Context, orderID string) (bool, error)
	ClaimTicketIssue(ctx context.Context, orderID string) (int, error)
	ClaimSoldCounter(ctx context.Context, orderID string) (bool, error)

	GetBalance(ctx context.Context, userID int64) (model.RewardBalance, error)
	RedeemPoints(ctx context.Context, userID, points int64, reason string) error
	GetRewardEntries(ctx context.Context, userID int64) ([]model.RewardEntry, error)
	GetIssuedTicket(ctx context.Context, code string) (*model.IssuedTicket, error)
	ListIssuedTickets(ctx context.Context, orderID string) ([]model.IssuedTicket, error)
}

// PaymentGateway определяет API внешнего платёжного шлюза.
type PaymentGateway interface {
	InitiatePayment(ctx context.Context, req gateway.PaymentRequest) (*gateway.PaymentLink, error)
	PaymentStatus(ctx context.Context, transID string) (*gateway.Transaction, error)
}

// Publisher доставляет события жизненного цикла заказов.
type Publisher interface {
	PublishOrderEvent(ctx context.Context, evt model.OrderEvent) error
}

// Deduper отсекает повторные доставки вебхуков и упорядочивает их обработку по заказу.
type Deduper interface {
	Seen(ctx context.Context, key string) (bool, error)
	MarkSettled(ctx context.Context, key string) error
	Acquire(ctx context.Context, orderID string) (release func(), ok bool, err error)
}

// Options содержит необязательные зависимости сервиса.
type Options struct {
	// Gateway равен nil, если шлюз не настроен. Тогда оплата через шлюз отклоняется.
	Gateway   PaymentGateway
	Publisher Publisher
	Deduper   Deduper
	Logger    *zap.Logger

	RedirectURL          string
	VerifyWebhooks       bool
	PendingCheckInterval time.Duration
	PendingMinAge        time.Duration
}

// Service реализует бизнес-логику расчётов.
type Service struct {
	repo      Repository
	gateway   PaymentGateway
	publisher Publisher
	dedup     Deduper
	logger    *zap.Logger

	redirectURL    string
	verifyWebhooks bool
	checkInterval  time.Duration
	minPendingAge  time.Duration
	now            func() time.Time
}

// NewService создаёт сервис. Отсутствующие зависимости заменяются пустыми реализациями.
func NewService(repo Repository, opts Options) *Service {
	s := &Service{
		repo:           repo,
		gateway:        opts.Gateway,
		publisher:      opts.Publisher,
		dedup:          opts.Deduper,
		logger:         opts.Logger,
		redirectURL:    opts.RedirectURL,
		verifyWebhooks: opts.VerifyWebhooks,
		checkInterval:  opts.PendingCheckInterval,
		minPendingAge:  opts.PendingMinAge,
		now:            time.Now,
	}

	if s.publisher == nil {
		s.publisher = noopPublisher{}
	}
	if s.dedup == nil {
		s.dedup = noopDeduper{}
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	if s.checkInterval <= 0 {
		s.checkInterval = time.Minute
	}
	if s.minPendingAge <= 0 {
		s.minPendingAge = 5 * time.Minute
	}

	return s
}

// Close освобождает ресурсы сервиса.
func (s *Service) Close() error {
	if s.repo != nil {
		return s.repo.Close()
	}
	return nil
}

// publish отправляет событие заказа. Ошибки только логируются.
func (s *Service) publish(ctx context.Context, t model.OrderEventType, o *model.Order) {
	evt := model.NewOrderEvent(t, o, s.now())
	if err := s.publisher.PublishOrderEvent(context.WithoutCancel(ctx), evt); err != nil {
		s.logger.Warn("publish order event",
			zap.String("type", string(t)),
			zap.String("order_id", o.ID),
			zap.Error(err),
		)
	}
}

type noopPublisher struct{}

func (noopPublisher) PublishOrderEvent(context.Context, model.OrderEvent) error { return nil }

type noopDeduper struct{}

func (noopDeduper) Seen(context.Context, string) (bool, error) { return false, nil }

func (noopDeduper) MarkSettled(context.Context, string) error { return nil }

func (noopDeduper) Acquire(context.Context, string) (func(), bool, error) {
	return func() {}, true, nil
}
