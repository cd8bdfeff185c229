package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/mmeshcher/ticketing-settlement/internal/apperrors"
	"github.com/mmeshcher/ticketing-settlement/internal/metrics"
	"github.com/mmeshcher/ticketing-settlement/internal/model"
	"github.com/mmeshcher/ticketing-settlement/internal/repository"
)

const settleTimeout = 30 * time.Second

// ReconcileWebhook применяет уведомление шлюза к соответствующему заказу.
//
// Повторные доставки подтверждаются без повторной обработки. Ошибку клиента вызывают
// только некорректные или не найденные уведомления. Если побочный эффект не выполнен после
// сохранения статуса, возвращается ошибка согласованности, и шлюз повторит доставку.
func (s *Service) ReconcileWebhook(ctx context.Context, p model.WebhookPayload) (*model.ReconcileResult, error) {
	const op = "reconcile webhook"

	ids := p.TransactionIDs()
	if len(ids) == 0 {
		metrics.Webhooks.WithLabelValues("invalid").Inc()
		return nil, apperrors.Validation(op, "missing transaction identifier", nil)
	}

	status := model.NormalizeGatewayStatus(p.Status)

	if s.verifyWebhooks {
		order, err := s.findOrder(ctx, op, ids)
		if err != nil {
			metrics.Webhooks.WithLabelValues(webhookErrorOutcome(err)).Inc()
			return nil, err
		}

		// Доверяем только записи о платеже из самого шлюза.
		if s.gateway == nil || order.GatewayTransactionID == "" {
			s.logger.Info("webhook status not verifiable, leaving order untouched",
				zap.String("order_id", order.ID),
				zap.String("status", string(status)),
			)
			metrics.Webhooks.WithLabelValues(string(model.OutcomePending)).Inc()
			return &model.ReconcileResult{OrderID: order.ID, Status: order.PaymentStatus, Outcome: model.OutcomePending}, nil
		}

		tx, err := s.gateway.PaymentStatus(ctx, order.GatewayTransactionID)
		if err != nil {
			metrics.Webhooks.WithLabelValues("error").Inc()
			return nil, apperrors.Gateway(op, "verify payment status", err)
		}
		status = model.NormalizeGatewayStatus(tx.Status)
	}

	res, err := s.reconcile(ctx, ids, status)
	if err != nil {
		metrics.Webhooks.WithLabelValues(webhookErrorOutcome(err)).Inc()
		return res, err
	}

	metrics.Webhooks.WithLabelValues(string(res.Outcome)).Inc()
	return res, nil
}

func (s *Service) reconcile(ctx context.Context, ids []string, status model.PaymentStatus) (*model.ReconcileResult, error) {
	const op = "reconcile webhook"

	key := strings.Join(ids, ",") + ":" + string(status)
	log := s.logger.With(zap.Strings("transaction_ids", ids), zap.String("status", string(status)))

	if status != model.PaymentStatusPending {
		seen, err := s.dedup.Seen(ctx, key)
		if err != nil {
			log.Warn("webhook dedup lookup failed", zap.Error(err))
		}
		if seen {
			return &model.ReconcileResult{Status: status, Outcome: model.OutcomeDuplicate}, nil
		}
	}

	order, err := s.findOrder(ctx, op, ids)
	if err != nil {
		return nil, err
	}

	res := &model.ReconcileResult{OrderID: order.ID, Status: order.PaymentStatus}
	log = log.With(zap.String("order_id", order.ID))

	if status == model.PaymentStatusPending {
		res.Outcome = model.OutcomePending
		return res, nil
	}

	release, ok, err := s.dedup.Acquire(ctx, order.ID)
	if err != nil {
		log.Warn("webhook lock unavailable, relying on database claims", zap.Error(err))
	} else if !ok {
		res.Outcome = model.OutcomeDuplicate
		return res, nil
	} else {
		defer release()
	}

	transitioned := false
	if order.PaymentStatus == model.PaymentStatusPending {
		moved, err := s.repo.TransitionOrderStatus(ctx, order.ID, status)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		if moved {
			order.PaymentStatus = status
			transitioned = true
		} else {
			fresh, err := s.repo.GetOrder(ctx, order.ID)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", op, err)
			}
			order = fresh
		}
	}
	res.Status = order.PaymentStatus

	if order.PaymentStatus != status {
		log.Info("ignoring webhook for settled order", zap.String("current_status", string(order.PaymentStatus)))
		res.Outcome = model.OutcomeIgnored
		return res, nil
	}

	applied, err := s.settle(ctx, order)
	if err != nil {
		log.Error("order settlement incomplete", zap.Error(err))
		return res, apperrors.Consistency(op, "settlement incomplete", err)
	}

	res.Outcome = model.OutcomeDuplicate
	if transitioned || applied {
		res.Outcome = model.OutcomeApplied
		log.Info("order settled")
		evt := model.OrderEventFailed
		if status == model.PaymentStatusConfirmed {
			evt = model.OrderEventConfirmed
		}
		s.publish(ctx, evt, order)
	}

	if err := s.dedup.MarkSettled(ctx, key); err != nil {
		log.Warn("webhook dedup marker not stored", zap.Error(err))
	}

	return res, nil
}

func (s *Service) findOrder(ctx context.Context, op string, ids []string) (*model.Order, error) {
	order, err := s.repo.FindOrderByTransaction(ctx, ids)
	if err != nil {
		if errors.Is(err, repository.ErrOrderNotFound) {
			return nil, apperrors.NotFound(op, "no order matches the transaction", err)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return order, nil
}

func webhookErrorOutcome(err error) string {
	if apperrors.Is(err, apperrors.KindNotFound) {
		return "not_found"
	}
	return "error"
}

type settlementStep struct {
	name  string
	apply func(ctx context.Context, orderID string) (bool, error)
}

// settle выполняет побочные эффекты конечного статуса заказа. Подтверждённый заказ получает
// бонус, билеты и учёт мест, а неоплаченный или отклонённый теряет баллы, начисленные при создании.
// Каждый шаг захватывается атомарно и отдельно, поэтому ошибка шага не мешает остальным
// и не откатывает статус. Повторная доставка доделывает только то, что ещё не сделано.
func (s *Service) settle(ctx context.Context, order *model.Order) (bool, error) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), settleTimeout)
	defer cancel()

	var steps []settlementStep
	switch order.PaymentStatus {
	case model.PaymentStatusConfirmed:
		steps = []settlementStep{
			{name: "reward", apply: s.repo.CreditPurchaseReward},
			{name: "tickets", apply: func(ctx context.Context, orderID string) (bool, error) {
				n, err := s.repo.ClaimTicketIssue(ctx, orderID)
				return n > 0, err
			}},
			{name: "sold_counter", apply: s.repo.ClaimSoldCounter},
		}
	case model.PaymentStatusFailed, model.PaymentStatusDenied:
		steps = []settlementStep{
			{name: "void_reward", apply: s.repo.VoidOrderRewards},
		}
	}

	var (
		applied bool
		errs    []error
	)
	for _, step := range steps {
		ok, err := step.apply(ctx, order.ID)
		if err != nil {
			metrics.SideEffectFailures.WithLabelValues(step.name).Inc()
			s.logger.Error("settlement step failed",
				zap.String("order_id", order.ID),
				zap.String("step", step.name),
				zap.Error(err),
			)
			errs = append(errs, fmt.Errorf("%s: %w", step.name, err))
			continue
		}
		applied = applied || ok
	}

	return applied, errors.Join(errs...)
}
