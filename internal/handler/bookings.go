package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/mmynk/salonwise/internal/middleware"
	"github.com/mmynk/salonwise/internal/models"
	"github.com/mmynk/salonwise/internal/service"
)

type bookingResponse struct {
	Booking     *models.Booking           `json:"booking"`
	Transaction *models.WalletTransaction `json:"transaction,omitempty"`
	Warning     *errorBody                `json:"warning,omitempty"`
}

func (h *Handler) createBooking(w http.ResponseWriter, r *http.Request) {
	var req service.CreateBookingRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	req.Identity = middleware.IdentityFromContext(r.Context())

	result, err := h.bookings.CreateBooking(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}

	resp := bookingResponse{Booking: result.Booking, Transaction: result.Transaction}
	if result.Warning != nil {
		warning := newErrorBody(result.Warning)
		resp.Warning = &warning
	}
	writeJSON(w, http.StatusCreated, resp)
}

func (h *Handler) getBooking(w http.ResponseWriter, r *http.Request) {
	booking, err := h.bookings.GetBooking(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, booking)
}

func (h *Handler) getBookingByReference(w http.ResponseWriter, r *http.Request) {
	booking, err := h.bookings.GetBookingByReference(r.Context(), chi.URLParam(r, "reference"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, booking)
}

func (h *Handler) updateStatus(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Status models.BookingStatus `json:"status"`
	}
	if err := decode(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	booking, err := h.bookings.UpdateStatus(r.Context(), chi.URLParam(r, "id"), req.Status)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, booking)
}

func (h *Handler) updateNotes(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Notes string `json:"notes"`
	}
	if err := decode(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	booking, err := h.bookings.UpdateNotes(r.Context(), chi.URLParam(r, "id"), req.Notes)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, booking)
}

func (h *Handler) myBookings(w http.ResponseWriter, r *http.Request) {
	bookings, err := h.bookings.ListCustomerBookings(r.Context(), middleware.IdentityFromContext(r.Context()))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"bookings": bookings})
}
