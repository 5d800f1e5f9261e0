package service

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/mmynk/salonwise/internal/apperr"
	"github.com/mmynk/salonwise/internal/calculator"
	"github.com/mmynk/salonwise/internal/ledger"
	"github.com/mmynk/salonwise/internal/models"
)

// CheckoutService backs the interactive part of checkout: live quotes and the
// wallet/cash split the customer edits before submitting.
type CheckoutService struct {
	wallets *ledger.Ledger
}

func NewCheckoutService(wallets *ledger.Ledger) *CheckoutService {
	return &CheckoutService{wallets: wallets}
}

// QuoteRequest is a cart snapshot to price.
type QuoteRequest struct {
	Items     []models.LineItem      `json:"items"`
	Modifiers models.ChargeModifiers `json:"modifiers"`
}

// Quote prices a cart without touching any state.
func (s *CheckoutService) Quote(req QuoteRequest) (models.PriceBreakdown, error) {
	if len(req.Items) == 0 {
		return models.PriceBreakdown{}, apperr.New(apperr.EmptyCart, "cart is empty")
	}
	return calculator.Compute(req.Items, req.Modifiers)
}

// AllocationResponse is the payment split proposed for a quote.
// State is set for Mixed payments and is what the client edits.
type AllocationResponse struct {
	Breakdown     models.PriceBreakdown       `json:"breakdown"`
	WalletBalance decimal.Decimal             `json:"wallet_balance"`
	Allocation    models.PaymentAllocation    `json:"allocation"`
	State         *calculator.AllocationState `json:"state,omitempty"`
}

// StartAllocation prices the cart and proposes the allocation for mode against
// the caller's live wallet balance.
func (s *CheckoutService) StartAllocation(ctx context.Context, id models.Identity, req QuoteRequest, mode models.PaymentMode) (*AllocationResponse, error) {
	breakdown, err := s.Quote(req)
	if err != nil {
		return nil, err
	}
	if mode == "" {
		return nil, apperr.New(apperr.MissingPaymentMethod, "payment method is required")
	}
	if !mode.Valid() {
		return nil, apperr.New(apperr.InvalidInput, "unknown payment mode %q", mode)
	}
	if mode.UsesWallet() && !id.IsAuthenticated {
		return nil, apperr.New(apperr.UnauthenticatedPaymentMode, "%s payment requires a signed-in customer", mode)
	}

	balance, err := s.balance(ctx, id)
	if err != nil {
		return nil, err
	}

	resp := &AllocationResponse{Breakdown: breakdown, WalletBalance: balance}
	if mode == models.PaymentMixed {
		state := calculator.NewAllocationState(breakdown.GrandTotal, balance)
		resp.State = &state
		resp.Allocation = state.Allocation()
		return resp, nil
	}

	resp.Allocation, err = calculator.Allocate(breakdown.GrandTotal, mode, balance)
	if err != nil {
		return nil, err
	}
	return resp, nil
}

// AllocationField names the amount the customer edited.
type AllocationField string

const (
	FieldWallet AllocationField = "wallet"
	FieldCash   AllocationField = "cash"
)

// EditAllocationRequest is one edit of a Mixed split.
type EditAllocationRequest struct {
	GrandTotal decimal.Decimal `json:"grand_total"`
	Field      AllocationField `json:"field"`
	Value      decimal.Decimal `json:"value"`
}

// EditAllocation applies one edit against the caller's live balance. The result
// always sums to the grand total and never exceeds the balance.
func (s *CheckoutService) EditAllocation(ctx context.Context, id models.Identity, req EditAllocationRequest) (*calculator.AllocationState, error) {
	if !id.IsAuthenticated {
		return nil, apperr.New(apperr.UnauthenticatedPaymentMode, "mixed payment requires a signed-in customer")
	}
	if req.GrandTotal.IsNegative() {
		return nil, apperr.New(apperr.InvalidInput, "grand total cannot be negative")
	}

	balance, err := s.balance(ctx, id)
	if err != nil {
		return nil, err
	}

	state := calculator.NewAllocationState(req.GrandTotal, balance)
	switch req.Field {
	case FieldWallet:
		state = state.OnWalletEdited(req.Value)
	case FieldCash:
		state = state.OnCashEdited(req.Value)
	default:
		return nil, apperr.New(apperr.InvalidInput, "field must be %q or %q", FieldWallet, FieldCash)
	}
	return &state, nil
}

// Wallet returns the signed-in customer's account.
func (s *CheckoutService) Wallet(ctx context.Context, id models.Identity) (*models.WalletAccount, error) {
	if !id.IsAuthenticated {
		return nil, apperr.New(apperr.Unauthenticated, "sign in to see your wallet")
	}
	return s.wallets.Account(ctx, id.CustomerID)
}

// WalletHistory returns the signed-in customer's wallet transactions in order.
func (s *CheckoutService) WalletHistory(ctx context.Context, id models.Identity) ([]*models.WalletTransaction, error) {
	if !id.IsAuthenticated {
		return nil, apperr.New(apperr.Unauthenticated, "sign in to see your wallet")
	}
	txs, err := s.wallets.History(ctx, id.CustomerID)
	if err != nil {
		return nil, err
	}
	if txs == nil {
		txs = []*models.WalletTransaction{}
	}
	return txs, nil
}

func (s *CheckoutService) balance(ctx context.Context, id models.Identity) (decimal.Decimal, error) {
	if !id.IsAuthenticated {
		return decimal.Zero, nil
	}
	account, err := s.wallets.Account(ctx, id.CustomerID)
	if err != nil {
		return decimal.Zero, err
	}
	return account.Balance, nil
}
