package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/mmeshcher/ticketing-settlement/internal/model"
)

type orderItemRequest struct {
	TicketTypeID string `json:"ticket_type_id"`
	Quantity     int64  `json:"quantity"`
}

type buyerRequest struct {
	Name    string `json:"name"`
	Email   string `json:"email"`
	Phone   string `json:"phone"`
	Address string `json:"address"`
}

type createOrderRequest struct {
	EventID       string             `json:"event_id"`
	Items         []orderItemRequest `json:"items"`
	PaymentMethod string             `json:"payment_method"`
	Buyer         buyerRequest       `json:"buyer"`
}

type lineItemResponse struct {
	TicketTypeID   string `json:"ticket_type_id"`
	TicketTypeName string `json:"ticket_type_name"`
	Quantity       int64  `json:"quantity"`
	UnitPrice      int64  `json:"unit_price"`
	Subtotal       int64  `json:"subtotal"`
}

type orderResponse struct {
	ID                   string             `json:"id"`
	EventID              string             `json:"event_id"`
	UserID               int64              `json:"user_id"`
	Items                []lineItemResponse `json:"items"`
	TotalAmount          int64              `json:"total_amount"`
	PaymentMethod        string             `json:"payment_method"`
	PaymentStatus        string             `json:"payment_status"`
	TransactionID        string             `json:"transaction_id"`
	GatewayTransactionID string             `json:"gateway_transaction_id,omitempty"`
	CreatedAt            string             `json:"created_at"`
}

type createOrderResponse struct {
	Order       orderResponse `json:"order"`
	PaymentLink string        `json:"payment_link,omitempty"`
}

func newOrderResponse(o *model.Order) orderResponse {
	items := make([]lineItemResponse, 0, len(o.Items))
	for _, it := range o.Items {
		items = append(items, lineItemResponse{
			TicketTypeID:   it.TicketTypeID,
			TicketTypeName: it.TicketTypeName,
			Quantity:       it.Quantity,
			UnitPrice:      it.UnitPrice,
			Subtotal:       it.Subtotal,
		})
	}

	return orderResponse{
		ID:                   o.ID,
		EventID:              o.EventID,
		UserID:               o.UserID,
		Items:                items,
		TotalAmount:          o.TotalAmount,
		PaymentMethod:        string(o.PaymentMethod),
		PaymentStatus:        string(o.PaymentStatus),
		TransactionID:        o.TransactionID,
		GatewayTransactionID: o.GatewayTransactionID,
		CreatedAt:            o.CreatedAt.Format(time.RFC3339),
	}
}

// CreateOrder оформляет заказ текущего пользователя.
func (h *Handler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}

	var req createOrderRequest
	if err := decodeJSON(r, &req); err != nil {
		h.badRequest(w, err.Error())
		return
	}

	in := model.NewOrder{
		EventID:       req.EventID,
		UserID:        userID,
		PaymentMethod: model.PaymentMethod(req.PaymentMethod),
		Buyer: model.Buyer{
			Name:    req.Buyer.Name,
			Email:   req.Buyer.Email,
			Phone:   req.Buyer.Phone,
			Address: req.Buyer.Address,
		},
	}
	for _, it := range req.Items {
		in.Items = append(in.Items, model.OrderItemRequest{TicketTypeID: it.TicketTypeID, Quantity: it.Quantity})
	}

	created, err := h.service.CreateOrder(r.Context(), in)
	if err != nil {
		if created != nil && created.Order != nil {
			h.writeErrorWithOrder(w, r, err, newOrderResponse(created.Order))
			return
		}
		h.writeError(w, r, err)
		return
	}

	h.writeJSON(w, http.StatusCreated, createOrderResponse{
		Order:       newOrderResponse(created.Order),
		PaymentLink: created.PaymentLink,
	})
}

type webhookRequest struct {
	TransID          string `json:"transId"`
	ExternalID       string `json:"externalId"`
	Status           string `json:"status"`
	Amount           int64  `json:"amount"`
	Medium           string `json:"medium"`
	FinancialTransID string `json:"financialTransId"`
}

type webhookResponse struct {
	OrderID string `json:"order_id,omitempty"`
	Status  string `json:"status"`
	Outcome string `json:"outcome"`
}

// PaymentWebhook принимает уведомления о платежах от шлюза.
// На всё, кроме некорректного или не найденного уведомления, отвечаем 200.
func (h *Handler) PaymentWebhook(w http.ResponseWriter, r *http.Request) {
	var req webhookRequest
	if err := decodeJSON(r, &req); err != nil {
		h.badRequest(w, err.Error())
		return
	}

	res, err := h.service.ReconcileWebhook(r.Context(), model.WebhookPayload{
		TransID:          req.TransID,
		ExternalID:       req.ExternalID,
		Status:           req.Status,
		Amount:           req.Amount,
		Medium:           req.Medium,
		FinancialTransID: req.FinancialTransID,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	h.writeJSON(w, http.StatusOK, webhookResponse{
		OrderID: res.OrderID,
		Status:  string(res.Status),
		Outcome: string(res.Outcome),
	})
}

type userOrderResponse struct {
	orderResponse
	EventTitle        string `json:"event_title"`
	EventStartsAt     string `json:"event_starts_at"`
	RefundPolicy      string `json:"refund_policy,omitempty"`
	RefundWindowHours int    `json:"refund_window_hours"`
	Refundable        bool   `json:"refundable"`
}

// GetUserOrders возвращает заказы пользователя. Просматривать можно только свои заказы.
func (h *Handler) GetUserOrders(w http.ResponseWriter, r *http.Request) {
	currentID, ok := h.userID(w, r)
	if !ok {
		return
	}

	userID, err := strconv.ParseInt(chi.URLParam(r, "userID"), 10, 64)
	if err != nil || userID <= 0 {
		h.badRequest(w, "invalid user id")
		return
	}
	if userID != currentID {
		http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
		return
	}

	orders, err := h.service.GetOrdersByUser(r.Context(), userID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	if len(orders) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	now := h.now()
	resp := make([]userOrderResponse, 0, len(orders))
	for _, o := range orders {
		event := model.Event{StartsAt: o.EventStartsAt, RefundWindowHours: o.RefundWindowHours}
		resp = append(resp, userOrderResponse{
			orderResponse:     newOrderResponse(&o.Order),
			EventTitle:        o.EventTitle,
			EventStartsAt:     o.EventStartsAt.Format(time.RFC3339),
			RefundPolicy:      o.RefundPolicy,
			RefundWindowHours: o.RefundWindowHours,
			Refundable:        o.PaymentStatus == model.PaymentStatusConfirmed && event.Refundable(now),
		})
	}

	h.writeJSON(w, http.StatusOK, resp)
}

type issuedTicketResponse struct {
	Code         string `json:"code"`
	OrderID      string `json:"order_id"`
	TicketTypeID string `json:"ticket_type_id"`
	IssuedAt     string `json:"issued_at"`
}

// GetOrderTickets возвращает билеты, выпущенные по заказу текущего пользователя.
func (h *Handler) GetOrderTickets(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}

	tickets, err := h.service.ListIssuedTickets(r.Context(), userID, chi.URLParam(r, "orderID"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	if len(tickets) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	resp := make([]issuedTicketResponse, 0, len(tickets))
	for _, t := range tickets {
		resp = append(resp, issuedTicketResponse{
			Code:         t.Code,
			OrderID:      t.OrderID,
			TicketTypeID: t.TicketTypeID,
			IssuedAt:     t.IssuedAt.Format(time.RFC3339),
		})
	}

	h.writeJSON(w, http.StatusOK, resp)
}
