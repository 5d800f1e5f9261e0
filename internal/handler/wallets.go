package handler

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/mmynk/salonwise/internal/apperr"
	"github.com/mmynk/salonwise/internal/ledger"
	"github.com/mmynk/salonwise/internal/middleware"
)

func (h *Handler) myWallet(w http.ResponseWriter, r *http.Request) {
	account, err := h.checkout.Wallet(r.Context(), middleware.IdentityFromContext(r.Context()))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, account)
}

func (h *Handler) myWalletTransactions(w http.ResponseWriter, r *http.Request) {
	txs, err := h.checkout.WalletHistory(r.Context(), middleware.IdentityFromContext(r.Context()))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"transactions": txs})
}

type creditRequest struct {
	Amount         decimal.Decimal `json:"amount"`
	Reference      string          `json:"reference"`
	IdempotencyKey string          `json:"idempotency_key"`
}

// creditWallet tops up a customer's wallet. Repeating an idempotency key
// returns the original transaction.
func (h *Handler) creditWallet(w http.ResponseWriter, r *http.Request) {
	var req creditRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	reference := strings.TrimSpace(req.Reference)
	if reference == "" {
		writeError(w, apperr.New(apperr.InvalidInput, "reference is required"))
		return
	}

	var opts []ledger.MutationOption
	if req.IdempotencyKey != "" {
		opts = append(opts, ledger.IdempotencyKey(req.IdempotencyKey))
	}

	tx, err := h.wallets.Credit(r.Context(), chi.URLParam(r, "customerID"), req.Amount, reference, opts...)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, tx)
}

func (h *Handler) reverseTransaction(w http.ResponseWriter, r *http.Request) {
	tx, err := h.wallets.Reverse(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, tx)
}
