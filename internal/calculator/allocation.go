package calculator

import (
	"github.com/shopspring/decimal"

	"github.com/mmynk/salonwise/internal/apperr"
	"github.com/mmynk/salonwise/internal/models"
)

// Epsilon is the tolerance when comparing an allocation's sum with the grand total.
var Epsilon = decimal.New(1, -2)

// Allocate produces the allocation for a payment mode.
// Cash puts everything on cash. Wallet puts everything on the wallet and fails with
// InsufficientFunds if the balance cannot cover it. Mixed returns the default split:
// as much as the wallet can cover, cash for the rest.
func Allocate(grandTotal decimal.Decimal, mode models.PaymentMode, walletBalance decimal.Decimal) (models.PaymentAllocation, error) {
	if grandTotal.IsNegative() {
		return models.PaymentAllocation{}, apperr.New(apperr.InvalidInput, "grand total cannot be negative")
	}
	if walletBalance.IsNegative() {
		return models.PaymentAllocation{}, apperr.New(apperr.InvalidInput, "wallet balance cannot be negative")
	}

	switch mode {
	case models.PaymentCash:
		return models.PaymentAllocation{Mode: mode, Wallet: decimal.Zero, Cash: grandTotal}, nil
	case models.PaymentWallet:
		if walletBalance.LessThan(grandTotal) {
			return models.PaymentAllocation{}, apperr.Insufficient(grandTotal.Sub(walletBalance))
		}
		return models.PaymentAllocation{Mode: mode, Wallet: grandTotal, Cash: decimal.Zero}, nil
	case models.PaymentMixed:
		return NewAllocationState(grandTotal, walletBalance).Allocation(), nil
	case "":
		return models.PaymentAllocation{}, apperr.New(apperr.MissingPaymentMethod, "payment method is required")
	default:
		return models.PaymentAllocation{}, apperr.New(apperr.InvalidInput, "unknown payment mode %q", mode)
	}
}

// AllocationState is the working (wallet, cash) pair of a Mixed payment while the
// user edits it. Each transition returns a new state in which
// Wallet + Cash == GrandTotal and Wallet <= WalletBalance.
//
// Wallet capacity is the hard ceiling; cash absorbs whatever the wallet cannot cover.
type AllocationState struct {
	GrandTotal    decimal.Decimal `json:"grand_total"`
	WalletBalance decimal.Decimal `json:"wallet_balance"`
	Wallet        decimal.Decimal `json:"wallet"`
	Cash          decimal.Decimal `json:"cash"`
}

// NewAllocationState enters Mixed mode with the default split.
func NewAllocationState(grandTotal, walletBalance decimal.Decimal) AllocationState {
	grandTotal = nonNegative(grandTotal)
	walletBalance = nonNegative(walletBalance)
	wallet := decimal.Min(walletBalance, grandTotal)
	return AllocationState{
		GrandTotal:    grandTotal,
		WalletBalance: walletBalance,
		Wallet:        wallet,
		Cash:          grandTotal.Sub(wallet),
	}
}

// OnWalletEdited applies a user edit of the wallet amount.
func (s AllocationState) OnWalletEdited(w decimal.Decimal) AllocationState {
	w = decimal.Min(nonNegative(w), s.WalletBalance, s.GrandTotal)
	s.Wallet = w
	s.Cash = s.GrandTotal.Sub(w)
	return s
}

// OnCashEdited applies a user edit of the cash amount. When the wallet cannot
// cover the remainder, cash is raised back so the pair still sums to the total.
func (s AllocationState) OnCashEdited(c decimal.Decimal) AllocationState {
	c = decimal.Min(nonNegative(c), s.GrandTotal)
	s.Wallet = decimal.Min(s.GrandTotal.Sub(c), s.WalletBalance)
	s.Cash = s.GrandTotal.Sub(s.Wallet)
	return s
}

// Allocation returns the state as a Mixed PaymentAllocation.
func (s AllocationState) Allocation() models.PaymentAllocation {
	return models.PaymentAllocation{Mode: models.PaymentMixed, Wallet: s.Wallet, Cash: s.Cash}
}

// Validate re-checks an allocation at submission time against the authoritative
// grand total and wallet balance.
func Validate(alloc models.PaymentAllocation, grandTotal, walletBalance decimal.Decimal) error {
	if alloc.Wallet.IsNegative() || alloc.Cash.IsNegative() {
		return apperr.New(apperr.InvalidInput, "payment amounts cannot be negative")
	}

	switch alloc.Mode {
	case models.PaymentCash:
		if alloc.Wallet.IsPositive() {
			return apperr.New(apperr.InvalidInput, "cash payment cannot draw on the wallet")
		}
	case models.PaymentWallet:
		if walletBalance.LessThan(grandTotal) {
			return apperr.Insufficient(grandTotal.Sub(walletBalance))
		}
		if alloc.Cash.IsPositive() {
			return apperr.New(apperr.InvalidInput, "wallet payment cannot include cash")
		}
	case models.PaymentMixed:
	case "":
		return apperr.New(apperr.MissingPaymentMethod, "payment method is required")
	default:
		return apperr.New(apperr.InvalidInput, "unknown payment mode %q", alloc.Mode)
	}

	if alloc.Total().Sub(grandTotal).Abs().GreaterThan(Epsilon) {
		return apperr.New(apperr.MismatchedTotal, "wallet %s + cash %s does not equal total %s",
			alloc.Wallet.StringFixed(2), alloc.Cash.StringFixed(2), grandTotal.StringFixed(2))
	}
	if alloc.Wallet.GreaterThan(walletBalance) {
		return apperr.New(apperr.ExceedsWalletBalance, "wallet amount %s exceeds balance %s",
			alloc.Wallet.StringFixed(2), walletBalance.StringFixed(2))
	}
	return nil
}

func nonNegative(d decimal.Decimal) decimal.Decimal {
	if d.IsNegative() {
		return decimal.Zero
	}
	return d
}
