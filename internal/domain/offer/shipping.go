package offer

import (
	"github.com/shopspring/decimal"

	"github.com/openbasket/promo-engine/internal/domain/basket"
)

// ShippingBenefit computes the discount on a shipping charge. Shipping
// benefits never touch line consumption; their results are final within a
// pass and the actual amount is resolved at checkout when the charge is
// known.
type ShippingBenefit interface {
	Benefit
	// ShippingDiscountAmount returns the discount for the given charge,
	// capped at the charge itself.
	ShippingDiscountAmount(charge decimal.Decimal) decimal.Decimal
}

// shippingApply is the shared Apply implementation: the condition has been
// checked by the offer, so the benefit just wraps itself in a deferred
// shipping result.
func shippingApply(ben ShippingBenefit) (ApplicationResult, error) {
	return ShippingDiscount{Benefit: ben}, nil
}

// ShippingPercentageBenefit discounts a percentage of the shipping charge.
type ShippingPercentageBenefit struct {
	Value decimal.Decimal
}

func (ben *ShippingPercentageBenefit) Apply(*basket.Basket, Condition, *Offer) (ApplicationResult, error) {
	return shippingApply(ben)
}

func (ben *ShippingPercentageBenefit) ShippingDiscountAmount(charge decimal.Decimal) decimal.Decimal {
	return charge.Mul(ben.Value).Div(hundred).RoundDown(2)
}

// ShippingAbsoluteBenefit discounts a fixed amount off the shipping charge.
type ShippingAbsoluteBenefit struct {
	Value decimal.Decimal
}

func (ben *ShippingAbsoluteBenefit) Apply(*basket.Basket, Condition, *Offer) (ApplicationResult, error) {
	return shippingApply(ben)
}

func (ben *ShippingAbsoluteBenefit) ShippingDiscountAmount(charge decimal.Decimal) decimal.Decimal {
	return decimal.Min(ben.Value, charge)
}

// ShippingFixedPriceBenefit charges a fixed price for shipping regardless of
// the carrier charge.
type ShippingFixedPriceBenefit struct {
	Value decimal.Decimal
}

func (ben *ShippingFixedPriceBenefit) Apply(*basket.Basket, Condition, *Offer) (ApplicationResult, error) {
	return shippingApply(ben)
}

func (ben *ShippingFixedPriceBenefit) ShippingDiscountAmount(charge decimal.Decimal) decimal.Decimal {
	discount := charge.Sub(ben.Value)
	if discount.IsNegative() {
		return decimal.Zero
	}
	return discount
}
