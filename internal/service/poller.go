package service

import (
	"context"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/mmeshcher/ticketing-settlement/internal/gateway"
	"github.com/mmeshcher/ticketing-settlement/internal/model"
)

const pendingBatchSize = 100

// RunPendingReconciliation периодически запрашивает у шлюза статус заказов, которые остались
// ожидающими, на случай если вебхук так и не пришёл. Блокируется до отмены ctx.
func (s *Service) RunPendingReconciliation(ctx context.Context) error {
	if s.gateway == nil {
		<-ctx.Done()
		return nil
	}

	ticker := time.NewTicker(s.checkInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			s.processPendingBatch(ctx)
		}
	}
}

func (s *Service) processPendingBatch(ctx context.Context) int {
	orders, err := s.repo.GetPendingGatewayOrders(ctx, s.now().Add(-s.minPendingAge), pendingBatchSize)
	if err != nil {
		s.logger.Warn("load pending orders", zap.Error(err))
		return 0
	}

	settled := 0
	for _, o := range orders {
		if ctx.Err() != nil {
			return settled
		}

		ref := o.GatewayTransactionID
		if ref == "" {
			ref = o.TransactionID
		}

		tx, err := s.gateway.PaymentStatus(ctx, ref)
		if err != nil {
			var se *gateway.StatusError
			if errors.As(err, &se) && se.StatusCode == http.StatusTooManyRequests {
				s.logger.Info("gateway rate limit reached, postponing pending check")
				return settled
			}
			s.logger.Warn("query payment status", zap.String("order_id", o.ID), zap.Error(err))
			continue
		}

		status := model.NormalizeGatewayStatus(tx.Status)
		if status == model.PaymentStatusPending {
			continue
		}

		ids := make([]string, 0, 2)
		if o.GatewayTransactionID != "" {
			ids = append(ids, o.GatewayTransactionID)
		}
		ids = append(ids, o.TransactionID)

		res, err := s.reconcile(ctx, ids, status)
		if err != nil {
			s.logger.Warn("reconcile pending order", zap.String("order_id", o.ID), zap.Error(err))
			continue
		}
		if res.Outcome == model.OutcomeApplied {
			settled++
		}
	}

	return settled
}
