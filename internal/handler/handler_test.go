package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/mmeshcher/ticketing-settlement/internal/apperrors"
	"github.com/mmeshcher/ticketing-settlement/internal/middleware"
	"github.com/mmeshcher/ticketing-settlement/internal/model"
)

const testEventID = "6f1c2a8e-3b4d-4c5e-8f90-112233445566"

type stubService struct {
	registerUserID int64
	registerErr    error

	authUserID int64
	authErr    error

	createdOrder *model.CreatedOrder
	createErr    error
	lastOrder    model.NewOrder

	reconcileRes *model.ReconcileResult
	reconcileErr error

	ordersResp []model.UserOrder
	ordersErr  error

	balance   model.RewardBalance
	entries   []model.RewardEntry
	redeemErr error

	event      *model.Event
	eventErr   error
	deleteErr  error
	lastEvent  model.NewEvent
	ticket     *model.IssuedTicket
	ticketErr  error
	ticketList []model.IssuedTicket
	listErr    error
	listUserID int64
}

func (s *stubService) RegisterUser(ctx context.Context, login, password, referrer string) (int64, error) {
	return s.registerUserID, s.registerErr
}

func (s *stubService) AuthenticateUser(ctx context.Context, login, password string) (int64, error) {
	return s.authUserID, s.authErr
}

func (s *stubService) CreateOrder(ctx context.Context, in model.NewOrder) (*model.CreatedOrder, error) {
	s.lastOrder = in
	return s.createdOrder, s.createErr
}

func (s *stubService) ReconcileWebhook(ctx context.Context, p model.WebhookPayload) (*model.ReconcileResult, error) {
	return s.reconcileRes, s.reconcileErr
}

func (s *stubService) GetOrdersByUser(ctx context.Context, userID int64) ([]model.UserOrder, error) {
	return s.ordersResp, s.ordersErr
}

func (s *stubService) GetBalance(ctx context.Context, userID int64) (model.RewardBalance, error) {
	return s.balance, nil
}

func (s *stubService) GetRewardEntries(ctx context.Context, userID int64) ([]model.RewardEntry, error) {
	return s.entries, nil
}

func (s *stubService) RedeemPoints(ctx context.Context, userID, points int64, reason string) error {
	return s.redeemErr
}

func (s *stubService) CreateEvent(ctx context.Context, in model.NewEvent) (*model.Event, error) {
	s.lastEvent = in
	return s.event, s.eventErr
}

func (s *stubService) GetEvent(ctx context.Context, id string) (*model.Event, error) {
	return s.event, s.eventErr
}

func (s *stubService) DeleteEvent(ctx context.Context, id string, organizerID int64) error {
	return s.deleteErr
}

func (s *stubService) GetIssuedTicket(ctx context.Context, code string) (*model.IssuedTicket, error) {
	return s.ticket, s.ticketErr
}

func (s *stubService) ListIssuedTickets(ctx context.Context, userID int64, orderID string) ([]model.IssuedTicket, error) {
	s.listUserID = userID
	return s.ticketList, s.listErr
}

func newTestHandler(t *testing.T, svc Service) *Handler {
	t.Helper()

	auth := middleware.NewAuthMiddleware("test-secret")
	h := NewHandler(svc, zap.NewNop(), auth, false)
	h.now = func() time.Time { return time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC) }
	return h
}

func serve(t *testing.T, h *Handler, method, path string, body any, userID int64) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if s, ok := body.(string); ok {
			buf.WriteString(s)
		} else if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}

	req := httptest.NewRequest(method, path, &buf)
	if userID != 0 {
		token := h.authMiddleware.SetAuthCookie(httptest.NewRecorder(), userID)
		req.Header.Set("Authorization", "Bearer "+token)
	}

	rec := httptest.NewRecorder()
	h.SetupRouter().ServeHTTP(rec, req)
	return rec
}

func sampleOrder() *model.Order {
	return &model.Order{
		ID:            "order-1",
		EventID:       testEventID,
		UserID:        1,
		TotalAmount:   2000,
		PaymentMethod: model.PaymentMethodMobileMoney,
		PaymentStatus: model.PaymentStatusPending,
		TransactionID: "tx-1",
		Items:         []model.LineItem{{TicketTypeID: "t1", TicketTypeName: "VIP", Quantity: 2, UnitPrice: 1000, Subtotal: 2000}},
	}
}

func orderBody() createOrderRequest {
	return createOrderRequest{
		EventID:       testEventID,
		Items:         []orderItemRequest{{TicketTypeID: "t1", Quantity: 2}},
		PaymentMethod: "mobile_money",
		Buyer:         buyerRequest{Email: "buyer@example.com"},
	}
}

func TestRegister_Success(t *testing.T) {
	h := newTestHandler(t, &stubService{registerUserID: 42})

	rec := serve(t, h, http.MethodPost, "/users/register", credentialsRequest{Login: "user", Password: "pass"}, 0)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	if len(rec.Result().Cookies()) == 0 {
		t.Fatalf("auth cookie not set")
	}

	var resp tokenResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.UserID != 42 || resp.Token == "" {
		t.Fatalf("unexpected response: %+v", resp)
	}
}

func TestRegister_Conflict(t *testing.T) {
	h := newTestHandler(t, &stubService{registerErr: apperrors.E(apperrors.KindConflict, "register user", "login already taken", nil)})

	rec := serve(t, h, http.MethodPost, "/users/register", credentialsRequest{Login: "user", Password: "pass"}, 0)

	if rec.Code != http.StatusConflict {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusConflict)
	}
}

func TestLogin(t *testing.T) {
	tests := []struct {
		name string
		body any
		err  error
		want int
	}{
		{name: "ok", body: credentialsRequest{Login: "user", Password: "pass"}, want: http.StatusOK},
		{name: "bad credentials", body: credentialsRequest{Login: "user", Password: "pass"}, err: apperrors.E(apperrors.KindUnauthorized, "authenticate user", "", nil), want: http.StatusUnauthorized},
		{name: "empty password", body: credentialsRequest{Login: "user"}, want: http.StatusBadRequest},
		{name: "broken json", body: "{", want: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newTestHandler(t, &stubService{authUserID: 1, authErr: tt.err})

			rec := serve(t, h, http.MethodPost, "/users/login", tt.body, 0)

			if rec.Code != tt.want {
				t.Fatalf("status = %d, want %d", rec.Code, tt.want)
			}
		})
	}
}

func TestCreateOrder_Created(t *testing.T) {
	svc := &stubService{createdOrder: &model.CreatedOrder{Order: sampleOrder(), PaymentLink: "https://pay.example/x"}}
	h := newTestHandler(t, svc)

	rec := serve(t, h, http.MethodPost, "/orders", orderBody(), 1)

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want %d: %s", rec.Code, http.StatusCreated, rec.Body.String())
	}

	var resp createOrderResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.PaymentLink != "https://pay.example/x" || resp.Order.ID != "order-1" {
		t.Fatalf("unexpected response: %+v", resp)
	}
	if svc.lastOrder.UserID != 1 || svc.lastOrder.PaymentMethod != model.PaymentMethodMobileMoney {
		t.Fatalf("buyer must come from the token: %+v", svc.lastOrder)
	}
}

func TestCreateOrder_Errors(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{name: "validation", err: apperrors.Validation("create order", "insufficient stock", nil), want: http.StatusBadRequest},
		{name: "event not found", err: apperrors.NotFound("create order", "event not found", nil), want: http.StatusNotFound},
		{name: "internal", err: errors.New("db down"), want: http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newTestHandler(t, &stubService{createErr: tt.err})

			rec := serve(t, h, http.MethodPost, "/orders", orderBody(), 1)

			if rec.Code != tt.want {
				t.Fatalf("status = %d, want %d", rec.Code, tt.want)
			}
		})
	}
}

func TestCreateOrder_GatewayErrorHidesDetail(t *testing.T) {
	failed := sampleOrder()
	failed.PaymentStatus = model.PaymentStatusFailed
	svc := &stubService{
		createdOrder: &model.CreatedOrder{Order: failed},
		createErr:    apperrors.Gateway("create order", "payment initiation failed", errors.New("apikey rejected")),
	}
	h := newTestHandler(t, svc)

	rec := serve(t, h, http.MethodPost, "/orders", orderBody(), 1)

	if rec.Code != http.StatusBadGateway {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusBadGateway)
	}
	body := rec.Body.String()
	if strings.Contains(body, "apikey") {
		t.Fatalf("gateway detail leaked: %s", body)
	}
	if !strings.Contains(body, `"payment_status":"failed"`) {
		t.Fatalf("failed order missing from body: %s", body)
	}
}

func TestCreateOrder_GatewayErrorDetailOutsideProduction(t *testing.T) {
	svc := &stubService{createErr: apperrors.Gateway("create order", "payment initiation failed", errors.New("apikey rejected"))}
	h := NewHandler(svc, zap.NewNop(), middleware.NewAuthMiddleware("test-secret"), true)

	rec := serve(t, h, http.MethodPost, "/orders", orderBody(), 1)

	if !strings.Contains(rec.Body.String(), "apikey rejected") {
		t.Fatalf("expected gateway detail, got %s", rec.Body.String())
	}
}

func TestCreateOrder_RequiresAuth(t *testing.T) {
	h := newTestHandler(t, &stubService{})

	rec := serve(t, h, http.MethodPost, "/orders", orderBody(), 0)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusUnauthorized)
	}
}

func TestPaymentWebhook(t *testing.T) {
	tests := []struct {
		name string
		body any
		res  *model.ReconcileResult
		err  error
		want int
	}{
		{
			name: "applied",
			body: webhookRequest{TransID: "gw-1", Status: "SUCCESSFUL"},
			res:  &model.ReconcileResult{OrderID: "order-1", Status: model.PaymentStatusConfirmed, Outcome: model.OutcomeApplied},
			want: http.StatusOK,
		},
		{
			name: "duplicate",
			body: webhookRequest{TransID: "gw-1", Status: "SUCCESSFUL"},
			res:  &model.ReconcileResult{OrderID: "order-1", Status: model.PaymentStatusConfirmed, Outcome: model.OutcomeDuplicate},
			want: http.StatusOK,
		},
		{
			name: "missing ids",
			body: webhookRequest{Status: "SUCCESSFUL"},
			err:  apperrors.Validation("reconcile webhook", "missing transaction identifier", nil),
			want: http.StatusBadRequest,
		},
		{
			name: "unknown transaction",
			body: webhookRequest{TransID: "nope", Status: "SUCCESSFUL"},
			err:  apperrors.NotFound("reconcile webhook", "no order matches the transaction", nil),
			want: http.StatusNotFound,
		},
		{
			name: "partial settlement",
			body: webhookRequest{TransID: "gw-1", Status: "SUCCESSFUL"},
			err:  apperrors.Consistency("reconcile webhook", "settlement incomplete", errors.New("tickets")),
			want: http.StatusInternalServerError,
		},
		{
			name: "malformed",
			body: "not json",
			want: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newTestHandler(t, &stubService{reconcileRes: tt.res, reconcileErr: tt.err})

			rec := serve(t, h, http.MethodPost, "/payments/webhook", tt.body, 0)

			if rec.Code != tt.want {
				t.Fatalf("status = %d, want %d: %s", rec.Code, tt.want, rec.Body.String())
			}
		})
	}
}

func TestGetUserOrders(t *testing.T) {
	confirmed := *sampleOrder()
	confirmed.PaymentStatus = model.PaymentStatusConfirmed
	svc := &stubService{
		ordersResp: []model.UserOrder{{
			Order:             confirmed,
			EventTitle:        "Jazz Night",
			EventStartsAt:     time.Date(2026, 6, 1, 20, 0, 0, 0, time.UTC),
			RefundWindowHours: 48,
		}},
	}
	h := newTestHandler(t, svc)

	rec := serve(t, h, http.MethodGet, "/orders/user/1", nil, 1)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Fatalf("content-type = %q, want application/json", ct)
	}

	var resp []map[string]any
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp) != 1 || resp[0]["event_title"] != "Jazz Night" || resp[0]["refundable"] != true {
		t.Fatalf("unexpected response: %v", resp)
	}
}

func TestGetUserOrders_Access(t *testing.T) {
	h := newTestHandler(t, &stubService{ordersResp: []model.UserOrder{}})

	if rec := serve(t, h, http.MethodGet, "/orders/user/2", nil, 1); rec.Code != http.StatusForbidden {
		t.Fatalf("other user: status = %d, want %d", rec.Code, http.StatusForbidden)
	}
	if rec := serve(t, h, http.MethodGet, "/orders/user/1", nil, 1); rec.Code != http.StatusNoContent {
		t.Fatalf("empty history: status = %d, want %d", rec.Code, http.StatusNoContent)
	}
	if rec := serve(t, h, http.MethodGet, "/orders/user/1", nil, 0); rec.Code != http.StatusUnauthorized {
		t.Fatalf("anonymous: status = %d, want %d", rec.Code, http.StatusUnauthorized)
	}
}

func TestRewards(t *testing.T) {
	orderID := "order-1"
	svc := &stubService{
		balance: model.RewardBalance{Current: 120, Credited: 150, Debited: 30},
		entries: []model.RewardEntry{{OrderID: &orderID, Points: 100, Direction: model.RewardCredit, Reason: model.RewardReasonFirstPurchase}},
	}
	h := newTestHandler(t, svc)

	rec := serve(t, h, http.MethodGet, "/users/rewards/balance", nil, 1)
	if rec.Code != http.StatusOK {
		t.Fatalf("balance: status = %d", rec.Code)
	}
	var b model.RewardBalance
	if err := json.NewDecoder(rec.Body).Decode(&b); err != nil || b.Current != 120 {
		t.Fatalf("balance = %+v, %v", b, err)
	}

	if rec := serve(t, h, http.MethodGet, "/users/rewards", nil, 1); rec.Code != http.StatusOK {
		t.Fatalf("entries: status = %d", rec.Code)
	}

	svc.redeemErr = apperrors.E(apperrors.KindInsufficientFunds, "redeem points", "not enough points", nil)
	if rec := serve(t, h, http.MethodPost, "/users/rewards/redeem", redeemRequest{Points: 500}, 1); rec.Code != http.StatusPaymentRequired {
		t.Fatalf("redeem: status = %d, want %d", rec.Code, http.StatusPaymentRequired)
	}
}

func TestEvents(t *testing.T) {
	svc := &stubService{event: &model.Event{ID: testEventID, OrganizerID: 1, Title: "Jazz Night"}}
	h := newTestHandler(t, svc)

	body := createEventRequest{
		Title:       "Jazz Night",
		StartsAt:    time.Date(2026, 6, 1, 20, 0, 0, 0, time.UTC),
		TicketTypes: []ticketTypeRequest{{Name: "VIP", Price: 1000, Stock: 5}},
	}
	rec := serve(t, h, http.MethodPost, "/events", body, 1)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create: status = %d, want %d", rec.Code, http.StatusCreated)
	}
	if svc.lastEvent.OrganizerID != 1 || len(svc.lastEvent.TicketTypes) != 1 {
		t.Fatalf("unexpected event input: %+v", svc.lastEvent)
	}

	if rec := serve(t, h, http.MethodGet, "/events/"+testEventID, nil, 0); rec.Code != http.StatusOK {
		t.Fatalf("get: status = %d, want %d", rec.Code, http.StatusOK)
	}

	svc.deleteErr = apperrors.E(apperrors.KindForbidden, "delete event", "only the organizer can delete the event", nil)
	if rec := serve(t, h, http.MethodDelete, "/events/"+testEventID, nil, 2); rec.Code != http.StatusForbidden {
		t.Fatalf("delete: status = %d, want %d", rec.Code, http.StatusForbidden)
	}
	if rec := serve(t, h, http.MethodDelete, "/events/"+testEventID, nil, 0); rec.Code != http.StatusUnauthorized {
		t.Fatalf("anonymous delete: status = %d, want %d", rec.Code, http.StatusUnauthorized)
	}
}

func TestGetTicketQR(t *testing.T) {
	svc := &stubService{ticket: &model.IssuedTicket{Code: "Xk3vB9qLmZ", OrderID: "order-1"}}
	h := newTestHandler(t, svc)

	rec := serve(t, h, http.MethodGet, "/tickets/Xk3vB9qLmZ/qr", nil, 0)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "image/png" {
		t.Fatalf("content-type = %q, want image/png", ct)
	}
	if !bytes.HasPrefix(rec.Body.Bytes(), []byte("\x89PNG")) {
		t.Fatalf("body is not a PNG image")
	}

	svc.ticketErr = apperrors.NotFound("get issued ticket", "ticket not found", nil)
	if rec := serve(t, h, http.MethodGet, "/tickets/nope/qr", nil, 0); rec.Code != http.StatusNotFound {
		t.Fatalf("unknown code: status = %d, want %d", rec.Code, http.StatusNotFound)
	}
}

func TestGetOrderTickets(t *testing.T) {
	tests := []struct {
		name       string
		svc        *stubService
		wantStatus int
	}{
		{
			name:       "issued",
			svc:        &stubService{ticketList: []model.IssuedTicket{{Code: "a", OrderID: "order-1", UserID: 1}}},
			wantStatus: http.StatusOK,
		},
		{
			name:       "not issued yet",
			svc:        &stubService{},
			wantStatus: http.StatusNoContent,
		},
		{
			name:       "unknown order",
			svc:        &stubService{listErr: apperrors.NotFound("list issued tickets", "order not found", nil)},
			wantStatus: http.StatusNotFound,
		},
		{
			name:       "other buyer",
			svc:        &stubService{listErr: apperrors.E(apperrors.KindForbidden, "list issued tickets", "order belongs to another buyer", nil)},
			wantStatus: http.StatusForbidden,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newTestHandler(t, tt.svc)

			rec := serve(t, h, http.MethodGet, "/orders/order-1/tickets", nil, 1)
			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if tt.svc.listUserID != 1 {
				t.Fatalf("tickets listed for user %d, want 1", tt.svc.listUserID)
			}
		})
	}
}

func TestMetricsEndpoint(t *testing.T) {
	h := newTestHandler(t, &stubService{})

	if rec := serve(t, h, http.MethodGet, "/metrics", nil, 0); rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
}
