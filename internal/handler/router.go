package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	custommiddleware "github.com/mmeshcher/ticketing-settlement/internal/middleware"
)

// SetupRouter настраивает HTTP-маршруты и middleware сервиса расчётов.
func (h *Handler) SetupRouter() *chi.Mux {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)
	r.Use(custommiddleware.GzipMiddleware)
	r.Use(custommiddleware.Logger(h.logger))

	r.Handle("/metrics", promhttp.Handler())

	r.Post("/payments/webhook", h.PaymentWebhook)
	r.Get("/events/{eventID}", h.GetEvent)
	r.Get("/tickets/{code}/qr", h.GetTicketQR)

	r.Route("/users", func(r chi.Router) {
		r.Post("/register", h.Register)
		r.Post("/login", h.Login)

		r.Group(func(r chi.Router) {
			r.Use(h.authMiddleware.Middleware)

			r.Get("/rewards", h.GetRewardEntries)
			r.Get("/rewards/balance", h.GetBalance)
			r.Post("/rewards/redeem", h.RedeemPoints)
		})
	})

	r.Group(func(r chi.Router) {
		r.Use(h.authMiddleware.Middleware)

		r.Post("/orders", h.CreateOrder)
		r.Get("/orders/user/{userID}", h.GetUserOrders)
		r.Get("/orders/{orderID}/tickets", h.GetOrderTickets)

		r.Post("/events", h.CreateEvent)
		r.Delete("/events/{eventID}", h.DeleteEvent)
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
	})

	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
	})

	return r
}
