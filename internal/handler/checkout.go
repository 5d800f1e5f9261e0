package handler

import (
	"net/http"

	"github.com/mmynk/salonwise/internal/middleware"
	"github.com/mmynk/salonwise/internal/models"
	"github.com/mmynk/salonwise/internal/service"
)

func (h *Handler) quote(w http.ResponseWriter, r *http.Request) {
	var req service.QuoteRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	breakdown, err := h.checkout.Quote(req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, breakdown)
}

type allocationRequest struct {
	service.QuoteRequest
	Mode models.PaymentMode `json:"mode"`
}

func (h *Handler) startAllocation(w http.ResponseWriter, r *http.Request) {
	var req allocationRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	id := middleware.IdentityFromContext(r.Context())
	resp, err := h.checkout.StartAllocation(r.Context(), id, req.QuoteRequest, req.Mode)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) editAllocation(w http.ResponseWriter, r *http.Request) {
	var req service.EditAllocationRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	id := middleware.IdentityFromContext(r.Context())
	state, err := h.checkout.EditAllocation(r.Context(), id, req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, state)
}
