package basket

import (
	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/openbasket/promo-engine/internal/domain/catalog"
	"github.com/openbasket/promo-engine/internal/domain/money"
)

var (
	// ErrMixedTaxBases is returned when a tax-inclusive discount is applied
	// to a line already carrying a tax-exclusive discount, or vice versa.
	// This is a programming-contract violation, not a basket state.
	ErrMixedTaxBases = errors.New("cannot mix tax-inclusive and tax-exclusive discounts on one line")

	// ErrTaxUnknownDiscount is returned when a tax-inclusive discount is
	// applied to a line whose unit tax is not known.
	ErrTaxUnknownDiscount = errors.New("cannot apply tax-inclusive discount: line tax unknown")
)

// Line is a single product entry in a basket, carrying the unit price
// resolved for this pricing pass and the discount/consumption state offers
// accumulate onto it.
type Line struct {
	ID        string
	Product   catalog.Product
	Quantity  int
	UnitPrice money.Price

	discountExclTax decimal.Decimal
	discountInclTax decimal.Decimal
	consumption     consumption
}

// NewLine builds a basket line. The unit price is computed once per pricing
// pass and threaded through, never recomputed mid-pass.
func NewLine(id string, p catalog.Product, quantity int, unitPrice money.Price) *Line {
	return &Line{ID: id, Product: p, Quantity: quantity, UnitPrice: unitPrice}
}

// UnitEffectivePrice returns the per-unit amount offers compare and discount
// against under the given tax policy.
func (l *Line) UnitEffectivePrice(taxInclusive bool) decimal.Decimal {
	return l.UnitPrice.Effective(taxInclusive)
}

// IsEligibleForOffers reports whether the line can take part in offer
// evaluation at all: the product must be discountable and stocked, and the
// line must carry a real price. This is a hard filter.
func (l *Line) IsEligibleForOffers() bool {
	return l.Product.Discountable && l.Product.InStock && l.UnitPrice.Exists()
}

// ApplyDiscount records a discount amount covering qty units on this line.
// A line carries discounts on exactly one tax basis; mixing bases fails with
// ErrMixedTaxBases.
func (l *Line) ApplyDiscount(amount decimal.Decimal, qty int, off Offer, taxInclusive bool) error {
	if taxInclusive {
		if l.discountExclTax.IsPositive() {
			return ErrMixedTaxBases
		}
		if !l.UnitPrice.IsTaxKnown() {
			return ErrTaxUnknownDiscount
		}
		l.discountInclTax = l.discountInclTax.Add(amount)
	} else {
		if l.discountInclTax.IsPositive() {
			return ErrMixedTaxBases
		}
		l.discountExclTax = l.discountExclTax.Add(amount)
	}
	l.Consume(qty, off)
	return nil
}

// Consume marks qty units as used by the given offer (nil marks them used by
// no particular offer, blocking everything).
func (l *Line) Consume(qty int, off Offer) {
	l.consumption.consume(l.Quantity, qty, off)
}

// Consumed returns the units consumed in total (nil) or by one offer.
func (l *Line) Consumed(off Offer) int {
	return l.consumption.consumed(off)
}

// Available returns the units still open to the given offer, honouring the
// exclusivity lock: once an exclusive offer touches the line, other offers
// see only what the overall consumption leaves behind.
func (l *Line) Available(off Offer) int {
	return l.consumption.available(l.Quantity, off)
}

// HasExclusiveConsumption reports whether an exclusive offer has consumed on
// this line.
func (l *Line) HasExclusiveConsumption() bool {
	return l.consumption.exclusiveSeen
}

// Discount returns the accumulated discount and whether it is on the
// tax-inclusive basis.
func (l *Line) Discount() (amount decimal.Decimal, taxInclusive bool) {
	if l.discountInclTax.IsPositive() {
		return l.discountInclTax, true
	}
	return l.discountExclTax, false
}

// TotalExclTax returns quantity times the unit tax-exclusive price, before
// discounts.
func (l *Line) TotalExclTax() decimal.Decimal {
	return l.UnitPrice.ExclTax().Mul(decimal.NewFromInt(int64(l.Quantity)))
}

// TotalExclTaxWithDiscounts returns the line total after tax-exclusive
// discounts, floored at zero.
func (l *Line) TotalExclTaxWithDiscounts() decimal.Decimal {
	total := l.TotalExclTax().Sub(l.discountExclTax)
	if total.IsNegative() {
		return decimal.Zero
	}
	return total
}

// ClearDiscount resets the line's discount accumulators and consumption
// state. Callers must invoke this (via Basket.ResetOfferApplications) before
// re-running the applicator.
func (l *Line) ClearDiscount() {
	l.discountExclTax = decimal.Zero
	l.discountInclTax = decimal.Zero
	l.consumption.clear()
}
