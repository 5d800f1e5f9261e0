// Package calculator holds the pure money logic of checkout: turning a cart into a
// price breakdown and splitting a grand total across payment instruments.
// Nothing in this package performs I/O.
package calculator

import (
	"github.com/shopspring/decimal"

	"github.com/mmynk/salonwise/internal/apperr"
	"github.com/mmynk/salonwise/internal/models"
)

var hundred = decimal.NewFromInt(100)

// Compute prices a cart snapshot.
//
// Algorithm:
//   - services_total = Σ service price; products_total = Σ unit price × quantity
//   - subtotal_before = services_total + products_total + service charges
//   - discount: percentage of subtotal_before, or a fixed amount clamped to subtotal_before
//   - tax = subtotal_after × rate / 100 (tax applies after discount; tips are not taxed)
//   - grand_total = subtotal_after + tax + tips
//
// Intermediates keep full precision. The returned breakdown is rounded half-up to
// cents once, at the end, so that its lines add up exactly.
func Compute(items []models.LineItem, mods models.ChargeModifiers) (models.PriceBreakdown, error) {
	if err := validateModifiers(mods); err != nil {
		return models.PriceBreakdown{}, err
	}

	servicesTotal := decimal.Zero
	productsTotal := decimal.Zero
	duration := 0

	for i, item := range items {
		if item.UnitPrice.IsNegative() {
			return models.PriceBreakdown{}, apperr.New(apperr.InvalidInput,
				"item %d (%s): unit price cannot be negative", i+1, item.Name)
		}

		switch item.Kind {
		case models.ItemService:
			if item.DurationMinutes < 0 {
				return models.PriceBreakdown{}, apperr.New(apperr.InvalidInput,
					"item %d (%s): duration cannot be negative", i+1, item.Name)
			}
			servicesTotal = servicesTotal.Add(item.UnitPrice)
			duration += item.DurationMinutes
		case models.ItemProduct:
			if item.Quantity < 0 {
				return models.PriceBreakdown{}, apperr.New(apperr.InvalidInput,
					"item %d (%s): quantity cannot be negative", i+1, item.Name)
			}
			qty := decimal.NewFromInt(int64(item.EffectiveQuantity()))
			productsTotal = productsTotal.Add(item.UnitPrice.Mul(qty))
		default:
			return models.PriceBreakdown{}, apperr.New(apperr.InvalidInput,
				"item %d (%s): unknown item kind %q", i+1, item.Name, item.Kind)
		}
	}

	subtotalBefore := servicesTotal.Add(productsTotal).Add(mods.ServiceCharges)
	discount := discountAmount(subtotalBefore, mods.Discount)
	subtotalAfter := subtotalBefore.Sub(discount)
	tax := subtotalAfter.Mul(mods.TaxRatePercent).Div(hundred)
	tips := tipsTotal(mods)

	// Round once. The after-discount subtotal is derived from the rounded
	// lines so a printed receipt always adds up.
	roundedBefore := subtotalBefore.Round(2)
	roundedDiscount := decimal.Min(discount.Round(2), roundedBefore)
	roundedAfter := roundedBefore.Sub(roundedDiscount)
	roundedTax := tax.Round(2)
	roundedTips := tips.Round(2)

	return models.PriceBreakdown{
		ServicesTotal:          servicesTotal.Round(2),
		ProductsTotal:          productsTotal.Round(2),
		ServiceCharges:         mods.ServiceCharges.Round(2),
		SubtotalBeforeDiscount: roundedBefore,
		DiscountAmount:         roundedDiscount,
		SubtotalAfterDiscount:  roundedAfter,
		TaxAmount:              roundedTax,
		TipsTotal:              roundedTips,
		GrandTotal:             roundedAfter.Add(roundedTax).Add(roundedTips),
		TotalDurationMinutes:   duration,
	}, nil
}

// discountAmount never exceeds subtotal, so the discounted subtotal is never negative.
func discountAmount(subtotal decimal.Decimal, d models.Discount) decimal.Decimal {
	if d.Amount.IsZero() {
		return decimal.Zero
	}
	switch d.Kind {
	case models.DiscountPercentage:
		return subtotal.Mul(d.Amount).Div(hundred)
	default:
		return decimal.Min(d.Amount, subtotal)
	}
}

func tipsTotal(mods models.ChargeModifiers) decimal.Decimal {
	total := mods.ServiceTip
	for _, tip := range mods.PerAssigneeTips {
		total = total.Add(tip.Amount)
	}
	return total
}

func validateModifiers(mods models.ChargeModifiers) error {
	if mods.ServiceCharges.IsNegative() {
		return apperr.New(apperr.InvalidInput, "service charges cannot be negative")
	}
	if mods.ServiceTip.IsNegative() {
		return apperr.New(apperr.InvalidInput, "service tip cannot be negative")
	}
	for _, tip := range mods.PerAssigneeTips {
		if tip.Amount.IsNegative() {
			return apperr.New(apperr.InvalidInput, "tip for %s cannot be negative", tip.AssigneeID)
		}
	}
	if mods.TaxRatePercent.IsNegative() || mods.TaxRatePercent.GreaterThan(hundred) {
		return apperr.New(apperr.InvalidInput, "tax rate must be between 0 and 100")
	}

	d := mods.Discount
	if d.Amount.IsNegative() {
		return apperr.New(apperr.InvalidInput, "discount cannot be negative")
	}
	switch d.Kind {
	case models.DiscountFixed:
	case models.DiscountPercentage:
		if d.Amount.GreaterThan(hundred) {
			return apperr.New(apperr.InvalidInput, "percentage discount cannot exceed 100")
		}
	case "":
		if !d.Amount.IsZero() {
			return apperr.New(apperr.InvalidInput, "discount kind is required")
		}
	default:
		return apperr.New(apperr.InvalidInput, "unknown discount kind %q", d.Kind)
	}
	return nil
}
