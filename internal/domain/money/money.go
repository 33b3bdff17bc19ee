// Package money provides the immutable price value type used throughout the
// offer engine. A Price either exists (a pricing policy produced it) or it
// does not; tax may be known or unknown, and when known the tax-inclusive
// amount is always derived from the tax-exclusive amount at construction.
package money

import (
	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// ErrTaxUnknown is returned when a tax-inclusive amount is requested from a
// price whose tax has not been determined.
var ErrTaxUnknown = errors.New("tax amount is not known")

// Price is an immutable monetary amount in a single currency. The zero value
// is a non-existent price (no policy produced it).
type Price struct {
	currency string
	exclTax  decimal.Decimal
	tax      decimal.Decimal
	taxKnown bool
	exists   bool
}

// New returns a price with a known tax-exclusive amount and unknown tax.
func New(currency string, exclTax decimal.Decimal) Price {
	return Price{currency: currency, exclTax: exclTax, exists: true}
}

// NewWithTax returns a price with both the tax-exclusive amount and the tax
// amount known. The tax-inclusive amount is derived, never stored separately.
func NewWithTax(currency string, exclTax, tax decimal.Decimal) Price {
	return Price{currency: currency, exclTax: exclTax, tax: tax, taxKnown: true, exists: true}
}

// Exists reports whether a pricing policy produced this price.
func (p Price) Exists() bool { return p.exists }

// Currency returns the ISO currency code of the price.
func (p Price) Currency() string { return p.currency }

// IsTaxKnown reports whether the tax amount has been determined.
func (p Price) IsTaxKnown() bool { return p.taxKnown }

// ExclTax returns the tax-exclusive amount.
func (p Price) ExclTax() decimal.Decimal { return p.exclTax }

// Tax returns the tax amount and whether it is known.
func (p Price) Tax() (decimal.Decimal, bool) { return p.tax, p.taxKnown }

// InclTax returns the tax-inclusive amount. It returns ErrTaxUnknown when the
// tax has not been determined.
func (p Price) InclTax() (decimal.Decimal, error) {
	if !p.taxKnown {
		return decimal.Decimal{}, ErrTaxUnknown
	}
	return p.exclTax.Add(p.tax), nil
}

// Effective returns the amount offers compare and discount against: the
// tax-inclusive amount when the basket prices offers that way and tax is
// known, the tax-exclusive amount otherwise.
func (p Price) Effective(taxInclusive bool) decimal.Decimal {
	if taxInclusive && p.taxKnown {
		return p.exclTax.Add(p.tax)
	}
	return p.exclTax
}
