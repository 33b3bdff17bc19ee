package offer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openbasket/promo-engine/internal/domain/basket"
	"github.com/openbasket/promo-engine/internal/domain/catalog"
	"github.com/openbasket/promo-engine/internal/domain/money"
)

func TestPercentageBenefit_DiscountsAllAvailableUnits(t *testing.T) {
	// Three units at $10, 10% off, count condition of one, no item cap:
	// every unit gets $1.00 off and is consumed.
	b := newBasket()
	l := addLine(b, "p1", 3, "10.00")
	cond := &CountCondition{Range: allProducts(), Value: 1}
	ben := &PercentageBenefit{Range: allProducts(), Value: d("10")}
	off := siteOffer(1, cond, ben)

	result, err := off.ApplyBenefit(b)
	require.NoError(t, err)

	assert.True(t, result.IsSuccessful())
	assert.True(t, result.Discount().Equal(d("3.00")), "expected 3.00, got %s", result.Discount())
	assert.Equal(t, 3, l.Consumed(off))
}

func TestPercentageBenefit_RoundsEachUnitDown(t *testing.T) {
	// 10% of $9.99 is 0.999; truncated per unit to 0.99, never 1.00.
	b := newBasket()
	addLine(b, "p1", 2, "9.99")
	cond := &CountCondition{Range: allProducts(), Value: 1}
	ben := &PercentageBenefit{Range: allProducts(), Value: d("10")}
	off := siteOffer(1, cond, ben)

	result, err := off.ApplyBenefit(b)
	require.NoError(t, err)
	assert.True(t, result.Discount().Equal(d("1.98")), "expected 1.98, got %s", result.Discount())
}

func TestPercentageBenefit_MaxAffectedItems(t *testing.T) {
	b := newBasket()
	l := addLine(b, "p1", 5, "10.00")
	cond := &CountCondition{Range: allProducts(), Value: 1}
	ben := &PercentageBenefit{Range: allProducts(), Value: d("10"), MaxAffectedItems: 2}
	off := siteOffer(1, cond, ben)

	result, err := off.ApplyBenefit(b)
	require.NoError(t, err)

	assert.True(t, result.Discount().Equal(d("2.00")))
	assert.Equal(t, 2, l.Consumed(off))
}

func TestPercentageBenefit_CheapestUnitsFirst(t *testing.T) {
	b := newBasket()
	cheap := addLine(b, "cheap", 1, "4.00")
	dear := addLine(b, "dear", 1, "10.00")
	cond := &CountCondition{Range: allProducts(), Value: 1}
	ben := &PercentageBenefit{Range: allProducts(), Value: d("50"), MaxAffectedItems: 1}
	off := siteOffer(1, cond, ben)

	result, err := off.ApplyBenefit(b)
	require.NoError(t, err)

	assert.True(t, result.Discount().Equal(d("2.00")), "cheapest unit discounted first")
	assert.Equal(t, 1, cheap.Consumed(off))
	// The condition still consumes its trigger unit; one unit total here.
	assert.Equal(t, 0, dear.Consumed(off))
}

func TestPercentageBenefit_NoRangeIsConfigError(t *testing.T) {
	b := newBasket()
	addLine(b, "p1", 1, "10.00")
	cond := &CountCondition{Range: allProducts(), Value: 1}
	off := siteOffer(1, cond, &PercentageBenefit{Value: d("10")})

	_, err := off.ApplyBenefit(b)
	require.ErrorIs(t, err, ErrMisconfigured)
}

func TestAbsoluteBenefit_CapsAtUnitPrice(t *testing.T) {
	tests := []struct {
		name         string
		value        string
		price        string
		qty          int
		wantDiscount string
	}{
		{"value below price", "2.00", "10.00", 3, "6.00"},
		{"value above price capped", "15.00", "10.00", 2, "20.00"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := newBasket()
			addLine(b, "p1", tt.qty, tt.price)
			cond := &CountCondition{Range: allProducts(), Value: 1}
			ben := &AbsoluteBenefit{Range: allProducts(), Value: d(tt.value)}
			off := siteOffer(1, cond, ben)

			result, err := off.ApplyBenefit(b)
			require.NoError(t, err)
			assert.True(t, result.Discount().Equal(d(tt.wantDiscount)),
				"expected %s, got %s", tt.wantDiscount, result.Discount())
		})
	}
}

func TestMultibuyBenefit_CheapestUnitFree(t *testing.T) {
	// Two units at $5 and $7, buy-two-get-cheapest-free: one application
	// discounts exactly the $5 unit.
	b := newBasket()
	cheap := addLine(b, "p1", 1, "5.00")
	dear := addLine(b, "p2", 1, "7.00")
	cond := &CountCondition{Range: allProducts(), Value: 2}
	ben := &MultibuyBenefit{Range: allProducts()}
	off := siteOffer(1, cond, ben)

	result, err := off.ApplyBenefit(b)
	require.NoError(t, err)

	assert.True(t, result.Discount().Equal(d("5.00")))
	assert.False(t, result.IsFinal())
	assert.Equal(t, 1, cheap.Consumed(off))
	// The condition consumes the second trigger unit too.
	assert.Equal(t, 1, dear.Consumed(off))
}

func TestFixedPriceBenefit(t *testing.T) {
	t.Run("meal deal price", func(t *testing.T) {
		// Three items for $20: items cost 5 + 8 + 12 = 25, discount 5.
		b := newBasket()
		addLine(b, "p1", 1, "5.00")
		addLine(b, "p2", 1, "8.00")
		addLine(b, "p3", 1, "12.00")
		cond := &CountCondition{Range: allProducts(), Value: 3}
		off := siteOffer(1, cond, &FixedPriceBenefit{Value: d("20.00")})

		result, err := off.ApplyBenefit(b)
		require.NoError(t, err)
		assert.True(t, result.Discount().Equal(d("5.00")), "expected 5.00, got %s", result.Discount())

		// Every condition unit is consumed, even undiscounted ones.
		for _, l := range b.AllLines() {
			assert.Equal(t, 1, l.Consumed(off), "line %s", l.ID)
		}
	})

	t.Run("items already cheaper than fixed price", func(t *testing.T) {
		b := newBasket()
		addLine(b, "p1", 2, "3.00")
		cond := &CountCondition{Range: allProducts(), Value: 2}
		off := siteOffer(1, cond, &FixedPriceBenefit{Value: d("10.00")})

		result, err := off.ApplyBenefit(b)
		require.NoError(t, err)
		assert.False(t, result.IsSuccessful())
	})

	t.Run("requires count condition", func(t *testing.T) {
		b := newBasket()
		addLine(b, "p1", 2, "30.00")
		cond := &ValueCondition{Range: allProducts(), Value: d("10.00")}
		off := siteOffer(1, cond, &FixedPriceBenefit{Value: d("20.00")})

		_, err := off.ApplyBenefit(b)
		require.ErrorIs(t, err, ErrMisconfigured)
	})
}

func TestShippingBenefits(t *testing.T) {
	charge := d("10.00")

	tests := []struct {
		name string
		ben  ShippingBenefit
		want string
	}{
		{"percentage", &ShippingPercentageBenefit{Value: d("25")}, "2.50"},
		{"absolute", &ShippingAbsoluteBenefit{Value: d("3.00")}, "3.00"},
		{"absolute capped at charge", &ShippingAbsoluteBenefit{Value: d("99.00")}, "10.00"},
		{"fixed price", &ShippingFixedPriceBenefit{Value: d("4.00")}, "6.00"},
		{"fixed price above charge", &ShippingFixedPriceBenefit{Value: d("15.00")}, "0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.ben.ShippingDiscountAmount(charge)
			assert.True(t, got.Equal(d(tt.want)), "expected %s, got %s", tt.want, got)
		})
	}
}

func TestShippingBenefit_ResultIsFinalAndLeavesLinesAlone(t *testing.T) {
	b := newBasket()
	l := addLine(b, "p1", 2, "10.00")
	cond := &CountCondition{Range: allProducts(), Value: 1}
	off := siteOffer(1, cond, &ShippingPercentageBenefit{Value: d("50")})

	result, err := off.ApplyBenefit(b)
	require.NoError(t, err)

	assert.True(t, result.IsSuccessful())
	assert.True(t, result.IsFinal())
	assert.Equal(t, TargetShipping, result.Affects())
	assert.True(t, result.Discount().IsZero())
	assert.Equal(t, 0, l.Consumed(nil), "shipping benefits never consume lines")
}

func TestPercentageBenefit_TaxInclusiveBasis(t *testing.T) {
	b := newBasket()
	b.TaxInclusive = true
	p := catalog.Product{ID: "p1", Discountable: true, InStock: true}
	l := basket.NewLine("l1", p, 1, money.NewWithTax("USD", d("10.00"), d("2.00")))
	b.AddLine(l)
	cond := &CountCondition{Range: allProducts(), Value: 1}
	ben := &PercentageBenefit{Range: allProducts(), Value: d("10")}
	off := siteOffer(1, cond, ben)

	result, err := off.ApplyBenefit(b)
	require.NoError(t, err)

	// 10% of the tax-inclusive $12.00.
	assert.True(t, result.Discount().Equal(d("1.20")), "expected 1.20, got %s", result.Discount())
	amount, taxInclusive := l.Discount()
	assert.True(t, taxInclusive)
	assert.True(t, amount.Equal(d("1.20")))
}
