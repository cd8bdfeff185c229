package model

import "strings"

// PaymentStatus описывает статус оплаты заказа.
type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = "pending"
	PaymentStatusConfirmed PaymentStatus = "confirmed"
	PaymentStatusFailed    PaymentStatus = "failed"
	PaymentStatusDenied    PaymentStatus = "denied"
)

var paymentTransitions = map[PaymentStatus][]PaymentStatus{
	PaymentStatusPending: {PaymentStatusConfirmed, PaymentStatusFailed, PaymentStatusDenied},
}

// Terminal сообщает, что дальнейшие переходы невозможны.
func (s PaymentStatus) Terminal() bool {
	return s == PaymentStatusConfirmed || s == PaymentStatusFailed || s == PaymentStatusDenied
}

// CanTransitionTo сообщает, может ли заказ перейти из s в next.
func (s PaymentStatus) CanTransitionTo(next PaymentStatus) bool {
	for _, allowed := range paymentTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// NormalizeGatewayStatus переводит статусы шлюза в статусы оплаты.
// Неизвестные значения считаются ожидающими.
func NormalizeGatewayStatus(raw string) PaymentStatus {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "successful", "success":
		return PaymentStatusConfirmed
	case "failed", "expired":
		return PaymentStatusFailed
	case "denied":
		return PaymentStatusDenied
	default:
		return PaymentStatusPending
	}
}
