package offer

import (
	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/openbasket/promo-engine/internal/domain/basket"
	"github.com/openbasket/promo-engine/internal/domain/catalog"
)

var hundred = decimal.NewFromInt(100)

// Benefit computes a discount for a satisfied condition and records it onto
// basket lines, consuming the units it discounts. Custom benefits plug in by
// implementing this interface.
type Benefit interface {
	// Apply records the discount on the basket. An empty or exhausted basket
	// yields an unsuccessful result; only configuration-class problems are
	// returned as errors.
	Apply(b *basket.Basket, cond Condition, off *Offer) (ApplicationResult, error)
}

// benefitLimit converts a zero-means-unlimited max affected items setting
// into a usable bound.
func benefitLimit(maxAffected int) int {
	if maxAffected <= 0 {
		return maxApplicationsCap
	}
	return maxAffected
}

// PercentageBenefit discounts a percentage of the unit effective price on up
// to MaxAffectedItems units. Cheapest units are discounted first, and each
// per-unit discount is truncated to two decimal places before summation, so
// rounding never favours the customer.
type PercentageBenefit struct {
	Range            *catalog.Range
	Value            decimal.Decimal
	MaxAffectedItems int
}

func (ben *PercentageBenefit) Apply(b *basket.Basket, cond Condition, off *Offer) (ApplicationResult, error) {
	if ben.Range == nil {
		return nil, errors.Wrapf(ErrMisconfigured, "percentage benefit of offer %d has no range", off.ID)
	}

	var (
		affected  []AffectedLine
		discount  = decimal.Zero
		remaining = benefitLimit(ben.MaxAffectedItems)
	)
	for _, pl := range applicableLines(ben.Range, off, b, true) {
		if remaining <= 0 {
			break
		}
		qty := minInt(pl.line.Available(off), remaining)
		if qty <= 0 {
			continue
		}
		perUnit := ben.Value.Mul(pl.price).Div(hundred).RoundDown(2)
		lineDiscount := perUnit.Mul(decimal.NewFromInt(int64(qty)))
		if !lineDiscount.IsPositive() {
			continue
		}
		if err := pl.line.ApplyDiscount(lineDiscount, qty, off, b.TaxInclusive); err != nil {
			return nil, err
		}
		affected = append(affected, AffectedLine{Line: pl.line, Quantity: qty, Discount: lineDiscount})
		discount = discount.Add(lineDiscount)
		remaining -= qty
	}
	if !discount.IsPositive() {
		return ZeroDiscount, nil
	}
	cond.ConsumeItems(off, b, affected)
	return BasketDiscount{Amount: discount}, nil
}

// AbsoluteBenefit discounts a fixed amount per unit, capped at the unit
// effective price so a line never goes below zero.
type AbsoluteBenefit struct {
	Range            *catalog.Range
	Value            decimal.Decimal
	MaxAffectedItems int
}

func (ben *AbsoluteBenefit) Apply(b *basket.Basket, cond Condition, off *Offer) (ApplicationResult, error) {
	if ben.Range == nil {
		return nil, errors.Wrapf(ErrMisconfigured, "absolute benefit of offer %d has no range", off.ID)
	}

	var (
		affected  []AffectedLine
		discount  = decimal.Zero
		remaining = benefitLimit(ben.MaxAffectedItems)
	)
	for _, pl := range applicableLines(ben.Range, off, b, true) {
		if remaining <= 0 {
			break
		}
		qty := minInt(pl.line.Available(off), remaining)
		if qty <= 0 {
			continue
		}
		perUnit := decimal.Min(ben.Value, pl.price)
		lineDiscount := perUnit.Mul(decimal.NewFromInt(int64(qty)))
		if !lineDiscount.IsPositive() {
			continue
		}
		if err := pl.line.ApplyDiscount(lineDiscount, qty, off, b.TaxInclusive); err != nil {
			return nil, err
		}
		affected = append(affected, AffectedLine{Line: pl.line, Quantity: qty, Discount: lineDiscount})
		discount = discount.Add(lineDiscount)
		remaining -= qty
	}
	if !discount.IsPositive() {
		return ZeroDiscount, nil
	}
	cond.ConsumeItems(off, b, affected)
	return BasketDiscount{Amount: discount}, nil
}

// MultibuyBenefit gives the single cheapest applicable unit away for free.
// Repetition for buy-X-get-one-free-repeated scenarios is driven by the
// applicator's outer loop, bounded by the offer's application caps.
type MultibuyBenefit struct {
	Range *catalog.Range
}

func (ben *MultibuyBenefit) Apply(b *basket.Basket, cond Condition, off *Offer) (ApplicationResult, error) {
	if ben.Range == nil {
		return nil, errors.Wrapf(ErrMisconfigured, "multibuy benefit of offer %d has no range", off.ID)
	}

	for _, pl := range applicableLines(ben.Range, off, b, true) {
		if pl.line.Available(off) <= 0 {
			continue
		}
		discount := pl.price
		if !discount.IsPositive() {
			continue
		}
		if err := pl.line.ApplyDiscount(discount, 1, off, b.TaxInclusive); err != nil {
			return nil, err
		}
		cond.ConsumeItems(off, b, []AffectedLine{{Line: pl.line, Quantity: 1, Discount: discount}})
		return BasketDiscount{Amount: discount}, nil
	}
	return ZeroDiscount, nil
}

// FixedPriceBenefit sells the units satisfying a count condition for a fixed
// total price. It always works over the condition's range; any range
// configured on the benefit itself is ignored.
type FixedPriceBenefit struct {
	Value decimal.Decimal
}

func (ben *FixedPriceBenefit) Apply(b *basket.Basket, cond Condition, off *Offer) (ApplicationResult, error) {
	count, ok := cond.(*CountCondition)
	if !ok {
		return nil, errors.Wrapf(ErrMisconfigured, "fixed-price benefit of offer %d requires a count condition", off.ID)
	}

	// Collect the condition's units cheapest-first and total their prices.
	type allocation struct {
		line  *basket.Line
		qty   int
		value decimal.Decimal
	}
	var (
		allocations []allocation
		total       = decimal.Zero
		need        = count.Value
	)
	for _, pl := range applicableLines(count.Range, off, b, true) {
		if need <= 0 {
			break
		}
		qty := minInt(pl.line.Available(off), need)
		if qty <= 0 {
			continue
		}
		value := pl.price.Mul(decimal.NewFromInt(int64(qty)))
		allocations = append(allocations, allocation{line: pl.line, qty: qty, value: value})
		total = total.Add(value)
		need -= qty
	}
	if need > 0 {
		return ZeroDiscount, nil
	}

	discount := total.Sub(ben.Value)
	if !discount.IsPositive() {
		return ZeroDiscount, nil
	}

	// Spread the discount across the collected units, never discounting a
	// line past its own value. Units beyond the discounted ones are still
	// consumed: they belong to the condition.
	remaining := discount
	for _, al := range allocations {
		lineDiscount := decimal.Min(remaining, al.value)
		if err := al.line.ApplyDiscount(lineDiscount, al.qty, off, b.TaxInclusive); err != nil {
			return nil, err
		}
		remaining = remaining.Sub(lineDiscount)
	}
	return BasketDiscount{Amount: discount}, nil
}
