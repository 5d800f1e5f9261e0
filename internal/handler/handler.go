// Package handler exposes the checkout engine as a JSON API over chi.
package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"

	"github.com/mmynk/salonwise/internal/apperr"
	"github.com/mmynk/salonwise/internal/auth"
	"github.com/mmynk/salonwise/internal/ledger"
	"github.com/mmynk/salonwise/internal/middleware"
	"github.com/mmynk/salonwise/internal/service"
)

// maxBodyBytes bounds every request body.
const maxBodyBytes = 1 << 20

// Handler serves the HTTP API.
type Handler struct {
	bookings   *service.BookingService
	checkout   *service.CheckoutService
	wallets    *ledger.Ledger
	reconciler *ledger.Reconciler
}

func New(bookings *service.BookingService, checkout *service.CheckoutService, wallets *ledger.Ledger, reconciler *ledger.Reconciler) *Handler {
	return &Handler{
		bookings:   bookings,
		checkout:   checkout,
		wallets:    wallets,
		reconciler: reconciler,
	}
}

// Router builds the full route tree. gatherer backs /metrics and may be nil.
func (h *Handler) Router(jwtManager *auth.JWTManager, gatherer prometheus.Gatherer) http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)
	r.Use(middleware.OptionalAuth(jwtManager))
	r.Use(middleware.RequestLogger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/v1", func(r chi.Router) {
		r.Post("/quote", h.quote)
		r.Post("/allocations", h.startAllocation)
		r.Post("/allocations/edit", h.editAllocation)

		r.Route("/bookings", func(r chi.Router) {
			r.Post("/", h.createBooking)
			r.Get("/ref/{reference}", h.getBookingByReference)
			r.Get("/{id}", h.getBooking)
			r.Patch("/{id}/status", h.updateStatus)
			r.Patch("/{id}/notes", h.updateNotes)
		})

		r.Route("/me", func(r chi.Router) {
			r.Get("/bookings", h.myBookings)
			r.Get("/wallet", h.myWallet)
			r.Get("/wallet/transactions", h.myWalletTransactions)
		})

		r.Post("/wallets/{customerID}/credits", h.creditWallet)
		r.Post("/wallet-transactions/{id}/reverse", h.reverseTransaction)

		r.Route("/reconciliation", func(r chi.Router) {
			r.Get("/", h.listPendingDebits)
			r.Post("/run", h.runReconciliation)
			r.Post("/{id}/resolve", h.resolvePendingDebit)
		})
	})

	return r
}

type errorBody struct {
	Kind      apperr.Kind      `json:"kind"`
	Message   string           `json:"message"`
	Detail    string           `json:"detail,omitempty"`
	Shortfall *decimal.Decimal `json:"shortfall,omitempty"`
}

func newErrorBody(err error) errorBody {
	kind := apperr.KindOf(err)
	body := errorBody{Kind: kind, Message: apperr.UserMessage(kind), Detail: err.Error()}

	var appErr *apperr.Error
	if errors.As(err, &appErr) && appErr.Shortfall.IsPositive() {
		shortfall := appErr.Shortfall
		body.Shortfall = &shortfall
	}
	if kind == "" {
		body.Kind = "internal"
		body.Detail = ""
	}
	return body
}

// statusFor maps an error kind to its HTTP status.
func statusFor(kind apperr.Kind) int {
	switch kind {
	case apperr.InsufficientFunds, apperr.MismatchedTotal, apperr.ExceedsWalletBalance:
		return http.StatusUnprocessableEntity
	case apperr.UnauthenticatedPaymentMode, apperr.Unauthenticated:
		return http.StatusUnauthorized
	case apperr.NotFound, apperr.AccountNotFound:
		return http.StatusNotFound
	case apperr.InvalidTransition:
		return http.StatusConflict
	case apperr.PersistenceFailed:
		return http.StatusServiceUnavailable
	}
	if apperr.IsValidation(kind) {
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, err error) {
	body := newErrorBody(err)
	writeJSON(w, statusFor(body.Kind), map[string]errorBody{"error": body})
}

// decode reads a JSON body into v. Malformed bodies are InvalidInput.
func decode(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return apperr.Wrap(apperr.InvalidInput, err, "malformed request body")
	}
	return nil
}
