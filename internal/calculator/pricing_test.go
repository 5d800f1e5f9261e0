package calculator

import (
	"errors"
	"math/rand"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/mmynk/salonwise/internal/apperr"
	"github.com/mmynk/salonwise/internal/models"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func service(name, price string, minutes int) models.LineItem {
	return models.LineItem{ID: name, Kind: models.ItemService, Name: name, UnitPrice: d(price), DurationMinutes: minutes}
}

func product(name, price string, qty int) models.LineItem {
	return models.LineItem{ID: name, Kind: models.ItemProduct, Name: name, UnitPrice: d(price), Quantity: qty}
}

func TestCompute(t *testing.T) {
	tests := []struct {
		name         string
		items        []models.LineItem
		mods         models.ChargeModifiers
		wantErr      bool
		validateFunc func(t *testing.T, b models.PriceBreakdown)
	}{
		{
			name: "services with 5% tax",
			items: []models.LineItem{
				service("Haircut", "100.00", 45),
				service("Blow dry", "50.00", 30),
			},
			mods: models.ChargeModifiers{TaxRatePercent: d("5")},
			validateFunc: func(t *testing.T, b models.PriceBreakdown) {
				// 150 + 5% = 157.50
				if !b.GrandTotal.Equal(d("157.50")) {
					t.Errorf("GrandTotal = %s, want 157.50", b.GrandTotal)
				}
				if !b.TaxAmount.Equal(d("7.50")) {
					t.Errorf("TaxAmount = %s, want 7.50", b.TaxAmount)
				}
				if b.TotalDurationMinutes != 75 {
					t.Errorf("TotalDurationMinutes = %d, want 75", b.TotalDurationMinutes)
				}
			},
		},
		{
			name: "products multiply by quantity and default to one",
			items: []models.LineItem{
				product("Shampoo", "12.50", 2),
				product("Comb", "3.00", 0),
			},
			validateFunc: func(t *testing.T, b models.PriceBreakdown) {
				if !b.ProductsTotal.Equal(d("28.00")) {
					t.Errorf("ProductsTotal = %s, want 28.00", b.ProductsTotal)
				}
				if !b.GrandTotal.Equal(d("28.00")) {
					t.Errorf("GrandTotal = %s, want 28.00", b.GrandTotal)
				}
			},
		},
		{
			name:  "percentage discount then tax then tips",
			items: []models.LineItem{service("Color", "200.00", 90)},
			mods: models.ChargeModifiers{
				ServiceCharges: d("20.00"),
				Discount:       models.Discount{Amount: d("10"), Kind: models.DiscountPercentage},
				TaxRatePercent: d("10"),
				ServiceTip:     d("5.00"),
				PerAssigneeTips: []models.AssigneeTip{
					{AssigneeID: "staff-1", Amount: d("3.00")},
					{AssigneeID: "staff-2", Amount: d("2.00")},
				},
			},
			validateFunc: func(t *testing.T, b models.PriceBreakdown) {
				// subtotal 220, discount 22, after 198, tax 19.80, tips 10 -> 227.80
				if !b.SubtotalBeforeDiscount.Equal(d("220")) {
					t.Errorf("SubtotalBeforeDiscount = %s, want 220", b.SubtotalBeforeDiscount)
				}
				if !b.DiscountAmount.Equal(d("22")) {
					t.Errorf("DiscountAmount = %s, want 22", b.DiscountAmount)
				}
				if !b.TaxAmount.Equal(d("19.80")) {
					t.Errorf("TaxAmount = %s, want 19.80", b.TaxAmount)
				}
				if !b.TipsTotal.Equal(d("10")) {
					t.Errorf("TipsTotal = %s, want 10", b.TipsTotal)
				}
				if !b.GrandTotal.Equal(d("227.80")) {
					t.Errorf("GrandTotal = %s, want 227.80", b.GrandTotal)
				}
			},
		},
		{
			name:  "fixed discount larger than subtotal clamps to zero",
			items: []models.LineItem{service("Trim", "30.00", 15)},
			mods: models.ChargeModifiers{
				Discount:       models.Discount{Amount: d("50.00"), Kind: models.DiscountFixed},
				TaxRatePercent: d("8"),
				ServiceTip:     d("4.00"),
			},
			validateFunc: func(t *testing.T, b models.PriceBreakdown) {
				if !b.DiscountAmount.Equal(d("30")) {
					t.Errorf("DiscountAmount = %s, want 30", b.DiscountAmount)
				}
				if !b.SubtotalAfterDiscount.IsZero() {
					t.Errorf("SubtotalAfterDiscount = %s, want 0", b.SubtotalAfterDiscount)
				}
				if !b.GrandTotal.Equal(d("4")) {
					t.Errorf("GrandTotal = %s, want 4 (tips only)", b.GrandTotal)
				}
			},
		},
		{
			name:  "rounding is half up on the final lines",
			items: []models.LineItem{service("Wash", "10.10", 10)},
			mods:  models.ChargeModifiers{TaxRatePercent: d("7.5")},
			validateFunc: func(t *testing.T, b models.PriceBreakdown) {
				// 10.10 * 7.5% = 0.7575 -> 0.76
				if !b.TaxAmount.Equal(d("0.76")) {
					t.Errorf("TaxAmount = %s, want 0.76", b.TaxAmount)
				}
				if !b.GrandTotal.Equal(d("10.86")) {
					t.Errorf("GrandTotal = %s, want 10.86", b.GrandTotal)
				}
			},
		},
		{
			name:  "empty cart prices to zero",
			items: nil,
			validateFunc: func(t *testing.T, b models.PriceBreakdown) {
				if !b.GrandTotal.IsZero() {
					t.Errorf("GrandTotal = %s, want 0", b.GrandTotal)
				}
			},
		},
		{
			name:    "negative price rejected",
			items:   []models.LineItem{service("Bad", "-1.00", 10)},
			wantErr: true,
		},
		{
			name:    "negative quantity rejected",
			items:   []models.LineItem{product("Bad", "1.00", -2)},
			wantErr: true,
		},
		{
			name:    "unknown kind rejected",
			items:   []models.LineItem{{Name: "Mystery", UnitPrice: d("1")}},
			wantErr: true,
		},
		{
			name:    "tax above 100 rejected",
			items:   []models.LineItem{service("Cut", "10", 10)},
			mods:    models.ChargeModifiers{TaxRatePercent: d("101")},
			wantErr: true,
		},
		{
			name:    "percentage discount above 100 rejected",
			items:   []models.LineItem{service("Cut", "10", 10)},
			mods:    models.ChargeModifiers{Discount: models.Discount{Amount: d("150"), Kind: models.DiscountPercentage}},
			wantErr: true,
		},
		{
			name:    "negative tip rejected",
			items:   []models.LineItem{service("Cut", "10", 10)},
			mods:    models.ChargeModifiers{PerAssigneeTips: []models.AssigneeTip{{AssigneeID: "s1", Amount: d("-1")}}},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, err := Compute(tt.items, tt.mods)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Compute() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				if !errors.Is(err, apperr.InvalidInput) {
					t.Errorf("Compute() error kind = %q, want %q", apperr.KindOf(err), apperr.InvalidInput)
				}
				return
			}
			assertBreakdownAddsUp(t, b)
			if tt.validateFunc != nil {
				tt.validateFunc(t, b)
			}
		})
	}
}

func TestCompute_Deterministic(t *testing.T) {
	items := []models.LineItem{
		service("Facial", "79.99", 60),
		product("Serum", "24.95", 3),
	}
	mods := models.ChargeModifiers{
		ServiceCharges: d("2.50"),
		Discount:       models.Discount{Amount: d("12.5"), Kind: models.DiscountPercentage},
		TaxRatePercent: d("16"),
		ServiceTip:     d("7.25"),
	}

	first, err := Compute(items, mods)
	if err != nil {
		t.Fatalf("Compute failed: %v", err)
	}
	for i := 0; i < 50; i++ {
		again, err := Compute(items, mods)
		if err != nil {
			t.Fatalf("Compute failed: %v", err)
		}
		if !again.GrandTotal.Equal(first.GrandTotal) || !again.TaxAmount.Equal(first.TaxAmount) ||
			!again.DiscountAmount.Equal(first.DiscountAmount) {
			t.Fatalf("run %d differs: got %+v, want %+v", i, again, first)
		}
	}
}

func TestCompute_FixedDiscountClamp(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 200; i++ {
		price := decimal.New(rng.Int63n(50000), -2)
		extra := decimal.New(rng.Int63n(10000), -2)
		items := []models.LineItem{service("Svc", price.String(), 30)}
		mods := models.ChargeModifiers{
			Discount:       models.Discount{Amount: price.Add(extra), Kind: models.DiscountFixed},
			TaxRatePercent: d("5"),
		}

		b, err := Compute(items, mods)
		if err != nil {
			t.Fatalf("Compute failed: %v", err)
		}
		if !b.DiscountAmount.Equal(b.SubtotalBeforeDiscount) {
			t.Fatalf("discount %s != subtotal %s", b.DiscountAmount, b.SubtotalBeforeDiscount)
		}
		if !b.SubtotalAfterDiscount.IsZero() {
			t.Fatalf("SubtotalAfterDiscount = %s, want 0", b.SubtotalAfterDiscount)
		}
		if b.GrandTotal.IsNegative() {
			t.Fatalf("GrandTotal = %s is negative", b.GrandTotal)
		}
	}
}

func assertBreakdownAddsUp(t *testing.T, b models.PriceBreakdown) {
	t.Helper()
	sum := b.SubtotalAfterDiscount.Add(b.TaxAmount).Add(b.TipsTotal)
	if !sum.Equal(b.GrandTotal) {
		t.Errorf("GrandTotal %s != after %s + tax %s + tips %s", b.GrandTotal, b.SubtotalAfterDiscount, b.TaxAmount, b.TipsTotal)
	}
	if b.GrandTotal.IsNegative() {
		t.Errorf("GrandTotal %s is negative", b.GrandTotal)
	}
	if !b.SubtotalBeforeDiscount.Sub(b.DiscountAmount).Equal(b.SubtotalAfterDiscount) {
		t.Errorf("before %s - discount %s != after %s", b.SubtotalBeforeDiscount, b.DiscountAmount, b.SubtotalAfterDiscount)
	}
}
