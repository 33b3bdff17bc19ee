package offer

import (
	"github.com/shopspring/decimal"
)

// Target identifies which part of an order a result affects.
type Target int

const (
	TargetBasket Target = iota
	TargetShipping
	TargetPostOrder
)

// ApplicationResult is the outcome of one benefit application: a basket
// discount, a shipping discount, or a deferred post-order action. An
// unsuccessful result is normal control flow, not an error.
type ApplicationResult interface {
	// Discount returns the basket discount amount, zero for results that do
	// not discount basket lines directly.
	Discount() decimal.Decimal
	// Affects returns which part of the order the result applies to.
	Affects() Target
	// IsSuccessful reports whether the application did anything.
	IsSuccessful() bool
	// IsFinal reports whether the applicator must stop repeating the offer
	// within this pass. Shipping and post-order results are always final.
	IsFinal() bool
}

// BasketDiscount is a monetary discount already recorded onto basket lines.
type BasketDiscount struct {
	Amount decimal.Decimal
}

// ZeroDiscount is the unsuccessful outcome: the condition did not hold, no
// lines were applicable, or no quantity remained.
var ZeroDiscount = BasketDiscount{Amount: decimal.Zero}

func (r BasketDiscount) Discount() decimal.Decimal { return r.Amount }
func (r BasketDiscount) Affects() Target           { return TargetBasket }
func (r BasketDiscount) IsSuccessful() bool        { return r.Amount.IsPositive() }
func (r BasketDiscount) IsFinal() bool             { return false }

// ShippingDiscount defers the discount computation until the shipping charge
// is known; the carried benefit is applied to the charge at checkout.
type ShippingDiscount struct {
	Benefit ShippingBenefit
}

func (r ShippingDiscount) Discount() decimal.Decimal { return decimal.Zero }
func (r ShippingDiscount) Affects() Target           { return TargetShipping }
func (r ShippingDiscount) IsSuccessful() bool        { return true }
func (r ShippingDiscount) IsFinal() bool             { return true }

// PostOrderAction describes something that happens after order placement,
// like awarding loyalty points.
type PostOrderAction struct {
	Description string
}

func (r PostOrderAction) Discount() decimal.Decimal { return decimal.Zero }
func (r PostOrderAction) Affects() Target           { return TargetPostOrder }
func (r PostOrderAction) IsSuccessful() bool        { return true }
func (r PostOrderAction) IsFinal() bool             { return true }

// Application aggregates the repeated applications of one offer within a
// single pricing pass.
type Application struct {
	Offer     *Offer
	Result    ApplicationResult
	Frequency int
	Discount  decimal.Decimal
}

// VoucherDiscount is one voucher code's total discount, summed across every
// offer attached to that code.
type VoucherDiscount struct {
	Code     string
	Name     string
	Discount decimal.Decimal
}

// Applications is the ledger of offers applied during one pricing pass. It is
// rebuilt wholesale on every pass; there is no removal operation.
type Applications struct {
	order   []int64
	byOffer map[int64]*Application
}

// NewApplications returns an empty ledger.
func NewApplications() *Applications {
	return &Applications{byOffer: make(map[int64]*Application)}
}

// Add folds one application result into the ledger, accumulating frequency
// and discount for repeated applications of the same offer.
func (a *Applications) Add(off *Offer, result ApplicationResult) {
	app, ok := a.byOffer[off.ID]
	if !ok {
		app = &Application{Offer: off, Result: result}
		a.byOffer[off.ID] = app
		a.order = append(a.order, off.ID)
	}
	app.Frequency++
	app.Discount = app.Discount.Add(result.Discount())
}

// All returns every application in first-applied order.
func (a *Applications) All() []*Application {
	apps := make([]*Application, 0, len(a.order))
	for _, id := range a.order {
		apps = append(apps, a.byOffer[id])
	}
	return apps
}

// Len returns the number of distinct offers applied.
func (a *Applications) Len() int { return len(a.order) }

// Get returns the application for one offer id, or nil.
func (a *Applications) Get(offerID int64) *Application {
	return a.byOffer[offerID]
}

// OfferDiscounts returns basket-affecting discounts from non-voucher offers.
func (a *Applications) OfferDiscounts() []*Application {
	var out []*Application
	for _, app := range a.All() {
		if app.Offer.Type != TypeVoucher && app.Result.Affects() == TargetBasket && app.Discount.IsPositive() {
			out = append(out, app)
		}
	}
	return out
}

// VoucherDiscounts returns basket-affecting discounts from voucher offers.
func (a *Applications) VoucherDiscounts() []*Application {
	var out []*Application
	for _, app := range a.All() {
		if app.Offer.Type == TypeVoucher && app.Result.Affects() == TargetBasket && app.Discount.IsPositive() {
			out = append(out, app)
		}
	}
	return out
}

// GroupedVoucherDiscounts sums voucher discounts per voucher code. A voucher
// carrying several offers appears as a single entry.
func (a *Applications) GroupedVoucherDiscounts() []VoucherDiscount {
	var (
		order   []string
		grouped = make(map[string]*VoucherDiscount)
	)
	for _, app := range a.VoucherDiscounts() {
		code := app.Offer.VoucherCode
		vd, ok := grouped[code]
		if !ok {
			vd = &VoucherDiscount{Code: code, Name: app.Offer.VoucherName}
			grouped[code] = vd
			order = append(order, code)
		}
		vd.Discount = vd.Discount.Add(app.Discount)
	}
	out := make([]VoucherDiscount, 0, len(order))
	for _, code := range order {
		out = append(out, *grouped[code])
	}
	return out
}

// ShippingDiscounts returns applications whose result targets the shipping
// charge.
func (a *Applications) ShippingDiscounts() []*Application {
	var out []*Application
	for _, app := range a.All() {
		if app.Result.Affects() == TargetShipping {
			out = append(out, app)
		}
	}
	return out
}

// PostOrderActions returns applications whose result is deferred past order
// placement.
func (a *Applications) PostOrderActions() []*Application {
	var out []*Application
	for _, app := range a.All() {
		if app.Result.Affects() == TargetPostOrder {
			out = append(out, app)
		}
	}
	return out
}

// TotalDiscount returns the summed basket discount across all applications.
// It implements basket.Ledger.
func (a *Applications) TotalDiscount() decimal.Decimal {
	total := decimal.Zero
	for _, app := range a.byOffer {
		total = total.Add(app.Discount)
	}
	return total
}
