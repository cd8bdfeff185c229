package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/mmeshcher/ticketing-settlement/internal/apperrors"
	"github.com/mmeshcher/ticketing-settlement/internal/gateway"
	"github.com/mmeshcher/ticketing-settlement/internal/metrics"
	"github.com/mmeshcher/ticketing-settlement/internal/model"
	"github.com/mmeshcher/ticketing-settlement/internal/repository"
	"github.com/mmeshcher/ticketing-settlement/internal/validation"
)

// CreateOrder резервирует билеты, сохраняет ожидающий заказ и при оплате через шлюз
// инициирует платёж после сохранения заказа.
//
// Если инициировать платёж не удалось, заказ помечается неоплаченным и вместе с ним
// возвращается ошибка шлюза. Зарезервированные билеты не возвращаются.
func (s *Service) CreateOrder(ctx context.Context, in model.NewOrder) (*model.CreatedOrder, error) {
	const op = "create order"

	if err := validation.Struct(in); err != nil {
		return nil, apperrors.Validation(op, err.Error(), err)
	}
	if in.PaymentMethod.RequiresGateway() && s.gateway == nil {
		return nil, apperrors.Validation(op, fmt.Sprintf("payment method %s is not available", in.PaymentMethod), nil)
	}
	in.Items = mergeItems(in.Items)

	order, err := s.repo.CreateOrder(ctx, in)
	if err != nil {
		return nil, orderError(op, err)
	}

	metrics.OrdersCreated.WithLabelValues(string(order.PaymentMethod)).Inc()
	s.logger.Info("order created",
		zap.String("order_id", order.ID),
		zap.String("event_id", order.EventID),
		zap.Int64("total", order.TotalAmount),
		zap.String("payment_method", string(order.PaymentMethod)),
	)
	s.publish(ctx, model.OrderEventCreated, order)

	if !order.NeedsGateway() {
		return &model.CreatedOrder{Order: order}, nil
	}

	// Откат идёт в обратном порядке: сначала заказ помечается неоплаченным, затем аннулируются бонусы.
	var undo compensations
	undo.add("void order rewards", func(ctx context.Context) error {
		_, err := s.repo.VoidOrderRewards(ctx, order.ID)
		return err
	})
	undo.add("mark order failed", func(ctx context.Context) error {
		_, err := s.repo.TransitionOrderStatus(ctx, order.ID, model.PaymentStatusFailed)
		return err
	})

	link, err := s.gateway.InitiatePayment(ctx, gateway.PaymentRequest{
		Amount:      order.TotalAmount,
		Email:       order.Buyer.Email,
		UserID:      strconv.FormatInt(order.UserID, 10),
		ExternalID:  order.TransactionID,
		RedirectURL: s.redirectURL,
		Message:     "Tickets order " + order.ID,
	})
	if err != nil {
		s.logger.Error("payment initiation failed", zap.String("order_id", order.ID), zap.Error(err))
		if cerr := undo.run(ctx); cerr != nil {
			s.logger.Error("compensation failed", zap.String("order_id", order.ID), zap.Error(cerr))
		}
		order.PaymentStatus = model.PaymentStatusFailed
		s.publish(ctx, model.OrderEventFailed, order)
		return &model.CreatedOrder{Order: order}, apperrors.Gateway(op, "payment initiation failed", err)
	}

	// Вебхук повторяет и основной идентификатор, поэтому потерянный id шлюза не критичен.
	if err := s.repo.AttachGatewayTransaction(ctx, order.ID, link.TransID); err != nil {
		s.logger.Warn("store gateway transaction id",
			zap.String("order_id", order.ID),
			zap.String("gateway_transaction_id", link.TransID),
			zap.Error(err),
		)
	}
	order.GatewayTransactionID = link.TransID

	return &model.CreatedOrder{Order: order, PaymentLink: link.Link}, nil
}

func orderError(op string, err error) error {
	switch {
	case errors.Is(err, repository.ErrEventNotFound):
		return apperrors.NotFound(op, "event not found", err)
	case errors.Is(err, repository.ErrTicketTypeNotFound):
		return apperrors.Validation(op, "unknown ticket type", err)
	case errors.Is(err, repository.ErrInsufficientStock):
		return apperrors.Validation(op, err.Error(), err)
	case errors.Is(err, repository.ErrUserNotFound):
		return apperrors.E(apperrors.KindUnauthorized, op, "unknown buyer", err)
	default:
		return fmt.Errorf("%s: %w", op, err)
	}
}

// mergeItems объединяет повторяющиеся типы билетов в одну строку, сохраняя порядок.
func mergeItems(items []model.OrderItemRequest) []model.OrderItemRequest {
	ids := lo.Uniq(lo.Map(items, func(it model.OrderItemRequest, _ int) string {
		return it.TicketTypeID
	}))

	return lo.Map(ids, func(id string, _ int) model.OrderItemRequest {
		same := lo.Filter(items, func(it model.OrderItemRequest, _ int) bool {
			return it.TicketTypeID == id
		})
		return model.OrderItemRequest{
			TicketTypeID: id,
			Quantity: lo.SumBy(same, func(it model.OrderItemRequest) int64 {
				return it.Quantity
			}),
		}
	})
}

// GetOrdersByUser возвращает заказы покупателя с данными мероприятия и условиями возврата.
func (s *Service) GetOrdersByUser(ctx context.Context, userID int64) ([]model.UserOrder, error) {
	orders, err := s.repo.GetOrdersByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("get orders by user: %w", err)
	}
	return orders, nil
}
