// Package handler содержит HTTP-обработчики API сервиса расчётов.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/mmeshcher/ticketing-settlement/internal/apperrors"
	"github.com/mmeshcher/ticketing-settlement/internal/middleware"
	"github.com/mmeshcher/ticketing-settlement/internal/model"
)

const maxBodyBytes = 1 << 20

// Service определяет контракт бизнес-логики, используемой HTTP-обработчиками.
type Service interface {
	RegisterUser(ctx context.Context, login, password, referrer string) (int64, error)
	AuthenticateUser(ctx context.Context, login, password string) (int64, error)

	CreateOrder(ctx context.Context, in model.NewOrder) (*model.CreatedOrder, error)
	ReconcileWebhook(ctx context.Context, p model.WebhookPayload) (*model.ReconcileResult, error)
	GetOrdersByUser(ctx context.Context, userID int64) ([]model.UserOrder, error)

	GetBalance(ctx context.Context, userID int64) (model.RewardBalance, error)
	GetRewardEntries(ctx context.Context, userID int64) ([]model.RewardEntry, error)
	RedeemPoints(ctx context.Context, userID, points int64, reason string) error

	CreateEvent(ctx context.Context, in model.NewEvent) (*model.Event, error)
	GetEvent(ctx context.Context, id string) (*model.Event, error)
	DeleteEvent(ctx context.Context, id string, organizerID int64) error

	GetIssuedTicket(ctx context.Context, code string) (*model.IssuedTicket, error)
	ListIssuedTickets(ctx context.Context, userID int64, orderID string) ([]model.IssuedTicket, error)
}

// Handler реализует HTTP-обработчики API сервиса расчётов.
type Handler struct {
	service        Service
	logger         *zap.Logger
	authMiddleware *middleware.AuthMiddleware
	exposeErrors   bool
	now            func() time.Time
}

// NewHandler создаёт обработчик. При exposeErrors подробности ошибок шлюза передаются клиенту.
func NewHandler(s Service, logger *zap.Logger, auth *middleware.AuthMiddleware, exposeErrors bool) *Handler {
	return &Handler{
		service:        s,
		logger:         logger,
		authMiddleware: auth,
		exposeErrors:   exposeErrors,
		now:            time.Now,
	}
}

type errorResponse struct {
	Error string `json:"error"`
	Order any    `json:"order,omitempty"`
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Warn("encode response", zap.Error(err))
	}
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	h.writeErrorWithOrder(w, r, err, nil)
}

func (h *Handler) writeErrorWithOrder(w http.ResponseWriter, r *http.Request, err error, order any) {
	status := apperrors.HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error("request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.String("kind", apperrors.KindOf(err).String()),
			zap.Error(err),
		)
	}

	h.writeJSON(w, status, errorResponse{
		Error: apperrors.PublicMessage(err, h.exposeErrors),
		Order: order,
	})
}

func (h *Handler) badRequest(w http.ResponseWriter, msg string) {
	h.writeJSON(w, http.StatusBadRequest, errorResponse{Error: msg})
}

func decodeJSON(r *http.Request, v any) error {
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is empty")
		}
		return err
	}
	return nil
}

func (h *Handler) userID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
	}
	return id, ok
}

type credentialsRequest struct {
	Login    string `json:"login"`
	Password string `json:"password"`
	Referrer string `json:"referrer,omitempty"`
}

type tokenResponse struct {
	UserID int64  `json:"user_id"`
	Token  string `json:"token"`
}

// Register обрабатывает регистрацию нового пользователя и выполняет вход.
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := decodeJSON(r, &req); err != nil {
		h.badRequest(w, err.Error())
		return
	}

	userID, err := h.service.RegisterUser(r.Context(), req.Login, req.Password, req.Referrer)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	token := h.authMiddleware.SetAuthCookie(w, userID)
	h.writeJSON(w, http.StatusOK, tokenResponse{UserID: userID, Token: token})
}

// Login выполняет аутентификацию пользователя и выдаёт токен.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := decodeJSON(r, &req); err != nil {
		h.badRequest(w, err.Error())
		return
	}

	if req.Login == "" || req.Password == "" {
		h.badRequest(w, "login and password are required")
		return
	}

	userID, err := h.service.AuthenticateUser(r.Context(), req.Login, req.Password)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	token := h.authMiddleware.SetAuthCookie(w, userID)
	h.writeJSON(w, http.StatusOK, tokenResponse{UserID: userID, Token: token})
}

// GetBalance возвращает бонусный баланс текущего пользователя.
func (h *Handler) GetBalance(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}

	balance, err := h.service.GetBalance(r.Context(), userID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	h.writeJSON(w, http.StatusOK, balance)
}

type rewardEntryResponse struct {
	OrderID   *string `json:"order_id,omitempty"`
	Points    int64   `json:"points"`
	Direction string  `json:"direction"`
	Reason    string  `json:"reason"`
	Status    string  `json:"status"`
	CreatedAt string  `json:"created_at"`
}

// GetRewardEntries возвращает журнал бонусов текущего пользователя.
func (h *Handler) GetRewardEntries(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}

	entries, err := h.service.GetRewardEntries(r.Context(), userID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	if len(entries) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	resp := make([]rewardEntryResponse, 0, len(entries))
	for _, e := range entries {
		resp = append(resp, rewardEntryResponse{
			OrderID:   e.OrderID,
			Points:    e.Points,
			Direction: string(e.Direction),
			Reason:    e.Reason,
			Status:    string(e.Status),
			CreatedAt: e.CreatedAt.Format(time.RFC3339),
		})
	}

	h.writeJSON(w, http.StatusOK, resp)
}

type redeemRequest struct {
	Points int64  `json:"points"`
	Reason string `json:"reason,omitempty"`
}

// RedeemPoints списывает бонусные баллы текущего пользователя.
func (h *Handler) RedeemPoints(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}

	var req redeemRequest
	if err := decodeJSON(r, &req); err != nil {
		h.badRequest(w, err.Error())
		return
	}

	if err := h.service.RedeemPoints(r.Context(), userID, req.Points, req.Reason); err != nil {
		h.writeError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusOK)
}
