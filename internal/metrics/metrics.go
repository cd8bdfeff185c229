// Package metrics содержит метрики Prometheus сервиса расчётов.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// OrdersCreated считает сохранённые заказы по способу оплаты.
	OrdersCreated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "settlement",
			Name:      "orders_created_total",
			Help:      "The total number of created orders",
		},
		[]string{"payment_method"},
	)

	// Webhooks считает обработанные уведомления шлюза по результату.
	Webhooks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "settlement",
			Name:      "webhooks_total",
			Help:      "The total number of payment notifications by outcome",
		},
		[]string{"outcome"},
	)

	// SideEffectFailures считает шаги расчёта, не выполненные после сохранения статуса.
	SideEffectFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "settlement",
			Name:      "side_effect_failures_total",
			Help:      "The total number of failed settlement side effects",
		},
		[]string{"step"},
	)

	// GatewayRequestDuration измеряет задержку ответов платёжного шлюза (квантили 0.5, 0.9 и 0.99)
	GatewayRequestDuration = promauto.NewSummaryVec(
		prometheus.SummaryOpts{
			Namespace:  "settlement",
			Name:       "gateway_request_duration_seconds",
			Help:       "The time spent waiting for the payment gateway",
			Objectives: map[float64]float64{0.5: 0.05, 0.9: 0.01, 0.99: 0.001},
		},
		[]string{"operation", "result"},
	)
)
