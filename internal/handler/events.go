package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	qrcode "github.com/skip2/go-qrcode"

	"github.com/mmeshcher/ticketing-settlement/internal/model"
)

const qrSize = 256

type ticketTypeRequest struct {
	Name  string `json:"name"`
	Price int64  `json:"price"`
	Stock int64  `json:"stock"`
}

type createEventRequest struct {
	Title             string              `json:"title"`
	StartsAt          time.Time           `json:"starts_at"`
	RefundPolicy      string              `json:"refund_policy"`
	RefundWindowHours int                 `json:"refund_window_hours"`
	TicketTypes       []ticketTypeRequest `json:"ticket_types"`
}

type ticketTypeResponse struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	Price          int64  `json:"price"`
	RemainingStock int64  `json:"remaining_stock"`
	SoldCount      int64  `json:"sold_count"`
}

type eventResponse struct {
	ID                string               `json:"id"`
	OrganizerID       int64                `json:"organizer_id"`
	Title             string               `json:"title"`
	StartsAt          string               `json:"starts_at"`
	RefundPolicy      string               `json:"refund_policy,omitempty"`
	RefundWindowHours int                  `json:"refund_window_hours"`
	SoldTickets       int64                `json:"sold_tickets"`
	SettledTickets    int64                `json:"settled_tickets"`
	TicketTypes       []ticketTypeResponse `json:"ticket_types"`
}

func newEventResponse(e *model.Event) eventResponse {
	types := make([]ticketTypeResponse, 0, len(e.TicketTypes))
	for _, tt := range e.TicketTypes {
		types = append(types, ticketTypeResponse{
			ID:             tt.ID,
			Name:           tt.Name,
			Price:          tt.Price,
			RemainingStock: tt.RemainingStock,
			SoldCount:      tt.SoldCount,
		})
	}

	return eventResponse{
		ID:                e.ID,
		OrganizerID:       e.OrganizerID,
		Title:             e.Title,
		StartsAt:          e.StartsAt.Format(time.RFC3339),
		RefundPolicy:      e.RefundPolicy,
		RefundWindowHours: e.RefundWindowHours,
		SoldTickets:       e.SoldTickets,
		SettledTickets:    e.SettledTickets,
		TicketTypes:       types,
	}
}

// CreateEvent публикует мероприятие, организованное текущим пользователем.
func (h *Handler) CreateEvent(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}

	var req createEventRequest
	if err := decodeJSON(r, &req); err != nil {
		h.badRequest(w, err.Error())
		return
	}

	in := model.NewEvent{
		OrganizerID:       userID,
		Title:             req.Title,
		StartsAt:          req.StartsAt,
		RefundPolicy:      req.RefundPolicy,
		RefundWindowHours: req.RefundWindowHours,
	}
	for _, tt := range req.TicketTypes {
		in.TicketTypes = append(in.TicketTypes, model.NewTicketType{Name: tt.Name, Price: tt.Price, Stock: tt.Stock})
	}

	e, err := h.service.CreateEvent(r.Context(), in)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	h.writeJSON(w, http.StatusCreated, newEventResponse(e))
}

// GetEvent возвращает мероприятие вместе с остатками билетов.
func (h *Handler) GetEvent(w http.ResponseWriter, r *http.Request) {
	e, err := h.service.GetEvent(r.Context(), chi.URLParam(r, "eventID"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	h.writeJSON(w, http.StatusOK, newEventResponse(e))
}

// DeleteEvent снимает мероприятие текущего пользователя с продажи.
func (h *Handler) DeleteEvent(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}

	if err := h.service.DeleteEvent(r.Context(), chi.URLParam(r, "eventID"), userID); err != nil {
		h.writeError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// GetTicketQR отдаёт код прохода выпущенного билета в виде QR-кода PNG.
func (h *Handler) GetTicketQR(w http.ResponseWriter, r *http.Request) {
	t, err := h.service.GetIssuedTicket(r.Context(), chi.URLParam(r, "code"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	png, err := qrcode.Encode(t.Code, qrcode.Medium, qrSize)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "private, max-age=3600")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(png)
}
