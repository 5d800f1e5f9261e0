package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/mmynk/salonwise/internal/models"
)

func (h *Handler) listPendingDebits(w http.ResponseWriter, r *http.Request) {
	status := models.PendingDebitStatus(r.URL.Query().Get("status"))
	debits, err := h.reconciler.List(r.Context(), status)
	if err != nil {
		writeError(w, err)
		return
	}
	if debits == nil {
		debits = []*models.PendingDebit{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"pending_debits": debits})
}

func (h *Handler) runReconciliation(w http.ResponseWriter, r *http.Request) {
	result, err := h.reconciler.RunOnce(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *Handler) resolvePendingDebit(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Note string `json:"note"`
	}
	if err := decode(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	p, err := h.reconciler.Resolve(r.Context(), chi.URLParam(r, "id"), req.Note)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}
