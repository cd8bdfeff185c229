package model

import "time"

// Причина начисления вместе с пользователем и заказом служит ключом идемпотентности.
const (
	RewardReasonFirstPurchase = "First Purchase Bonus"
	RewardReasonPurchase      = "Ticket Purchase"
	RewardReasonReferral      = "Referral Bonus"
)

// FirstPurchaseBonus начисляется покупателю за первый заказ и его рефереру.
const FirstPurchaseBonus int64 = 100

// PurchasePoints возвращает баллы за сумму заказа: один балл за каждую полную сотню.
func PurchasePoints(totalAmount int64) int64 {
	if totalAmount <= 0 {
		return 0
	}
	return totalAmount / 100
}

// RewardDirection показывает, пополняет запись баланс или уменьшает его.
type RewardDirection string

const (
	RewardCredit RewardDirection = "credit"
	RewardDebit  RewardDirection = "debit"
)

// RewardStatus описывает доступность записи журнала.
type RewardStatus string

const (
	RewardAvailable RewardStatus = "available"
	RewardUsed      RewardStatus = "used"
	RewardVoided    RewardStatus = "voided"
)

// RewardEntry описывает одну запись журнала бонусов.
type RewardEntry struct {
	ID        int64
	UserID    int64
	OrderID   *string
	Points    int64
	Direction RewardDirection
	Reason    string
	Status    RewardStatus
	CreatedAt time.Time
}

// RewardBalance содержит вычисленный баланс баллов пользователя.
type RewardBalance struct {
	Current  int64 `json:"current"`
	Credited int64 `json:"credited"`
	Debited  int64 `json:"debited"`
}
