package models

import "github.com/shopspring/decimal"

// ItemKind distinguishes the two line item variants.
type ItemKind string

const (
	ItemService ItemKind = "service"
	ItemProduct ItemKind = "product"
)

// LineItem represents one entry in a cart snapshot.
// Prices come from the catalog and are trusted as authoritative at selection time.
type LineItem struct {
	// ID is the catalog identifier of the service or product.
	ID string `json:"id"`

	// Kind is either ItemService or ItemProduct.
	Kind ItemKind `json:"kind"`

	// Name is the display name at selection time.
	Name string `json:"name"`

	// UnitPrice is the catalog price of one unit. Must be >= 0.
	UnitPrice decimal.Decimal `json:"unit_price"`

	// Quantity applies to products only. Zero means the default of 1.
	Quantity int `json:"quantity,omitempty"`

	// DurationMinutes applies to services only.
	DurationMinutes int `json:"duration_minutes,omitempty"`
}

// EffectiveQuantity returns the quantity used for pricing.
// Services always count once; products default to 1.
func (li LineItem) EffectiveQuantity() int {
	if li.Kind != ItemProduct || li.Quantity == 0 {
		return 1
	}
	return li.Quantity
}

// DiscountKind selects how Discount.Amount is interpreted.
type DiscountKind string

const (
	DiscountFixed      DiscountKind = "fixed"
	DiscountPercentage DiscountKind = "percentage"
)

// Discount is either a fixed currency amount or a percentage of the pre-discount subtotal.
type Discount struct {
	Amount decimal.Decimal `json:"amount"`
	Kind   DiscountKind    `json:"kind"`
}

// AssigneeTip is a tip directed at one assigned staff member.
type AssigneeTip struct {
	AssigneeID string          `json:"assignee_id"`
	Amount     decimal.Decimal `json:"amount"`
}

// ChargeModifiers are the cart-level adjustments applied on top of line items.
type ChargeModifiers struct {
	ServiceCharges  decimal.Decimal `json:"service_charges"`
	Discount        Discount        `json:"discount"`
	TaxRatePercent  decimal.Decimal `json:"tax_rate_percent"`
	ServiceTip      decimal.Decimal `json:"service_tip"`
	PerAssigneeTips []AssigneeTip   `json:"per_assignee_tips,omitempty"`
}

// PriceBreakdown is derived from a cart and its modifiers.
// It is never persisted on its own, only as part of the booking that produced it.
//
// Invariant: GrandTotal == SubtotalAfterDiscount + TaxAmount + TipsTotal, GrandTotal >= 0.
type PriceBreakdown struct {
	ServicesTotal          decimal.Decimal `json:"services_total"`
	ProductsTotal          decimal.Decimal `json:"products_total"`
	ServiceCharges         decimal.Decimal `json:"service_charges"`
	SubtotalBeforeDiscount decimal.Decimal `json:"subtotal_before_discount"`
	DiscountAmount         decimal.Decimal `json:"discount_amount"`
	SubtotalAfterDiscount  decimal.Decimal `json:"subtotal_after_discount"`
	TaxAmount              decimal.Decimal `json:"tax_amount"`
	TipsTotal              decimal.Decimal `json:"tips_total"`
	GrandTotal             decimal.Decimal `json:"grand_total"`

	// TotalDurationMinutes is the sum of service durations, used for scheduling.
	TotalDurationMinutes int `json:"total_duration_minutes"`
}
