// Package basket holds the in-memory basket model the offer engine prices:
// lines with per-pass unit prices, per-line discount accumulators, and the
// consumption tracking that stops one unit being discounted twice.
package basket

import (
	"github.com/shopspring/decimal"
)

// Ledger is the per-pass record of applied offers. The concrete type lives in
// the offer package; the basket only needs the aggregate.
type Ledger interface {
	TotalDiscount() decimal.Decimal
}

// Basket is a priced collection of lines plus the voucher codes attached to
// it. It is a transient, single-threaded structure: one pricing pass mutates
// it, and it must be reset before the pass runs again.
type Basket struct {
	ID           string
	Currency     string
	OwnerID      string
	VoucherCodes []string

	// TaxInclusive selects the price basis offers compare and discount
	// against. It is fixed when the basket is built for a pricing pass.
	TaxInclusive bool

	lines        []*Line
	applications Ledger
}

// New returns an empty basket in the given currency.
func New(id, currency, ownerID string) *Basket {
	return &Basket{ID: id, Currency: currency, OwnerID: ownerID}
}

// AddLine appends a line to the basket.
func (b *Basket) AddLine(l *Line) {
	b.lines = append(b.lines, l)
}

// AddVoucherCode attaches a voucher code to the basket. Duplicate codes are
// ignored.
func (b *Basket) AddVoucherCode(code string) {
	for _, c := range b.VoucherCodes {
		if c == code {
			return
		}
	}
	b.VoucherCodes = append(b.VoucherCodes, code)
}

// AllLines returns the basket lines in insertion order.
func (b *Basket) AllLines() []*Line {
	return b.lines
}

// NumItems returns the total unit count across all lines.
func (b *Basket) NumItems() int {
	n := 0
	for _, l := range b.lines {
		n += l.Quantity
	}
	return n
}

// SubtotalExclTax returns the tax-exclusive basket total before discounts.
func (b *Basket) SubtotalExclTax() decimal.Decimal {
	total := decimal.Zero
	for _, l := range b.lines {
		total = total.Add(l.TotalExclTax())
	}
	return total
}

// TotalExclTax returns the tax-exclusive basket total after line discounts.
func (b *Basket) TotalExclTax() decimal.Decimal {
	total := decimal.Zero
	for _, l := range b.lines {
		total = total.Add(l.TotalExclTaxWithDiscounts())
	}
	return total
}

// TotalDiscount returns the aggregate discount recorded by the last pricing
// pass, or zero when no pass has run.
func (b *Basket) TotalDiscount() decimal.Decimal {
	if b.applications == nil {
		return decimal.Zero
	}
	return b.applications.TotalDiscount()
}

// SetOfferApplications stores the ledger produced by a pricing pass,
// replacing any previous one. This is the only mutation point for "what
// offers currently apply".
func (b *Basket) SetOfferApplications(l Ledger) {
	b.applications = l
}

// OfferApplications returns the ledger from the last pricing pass, or nil.
func (b *Basket) OfferApplications() Ledger {
	return b.applications
}

// ResetOfferApplications clears every line's discount and consumption state
// and drops the stored ledger. Running the applicator twice without calling
// this in between double-counts consumption.
func (b *Basket) ResetOfferApplications() {
	for _, l := range b.lines {
		l.ClearDiscount()
	}
	b.applications = nil
}
