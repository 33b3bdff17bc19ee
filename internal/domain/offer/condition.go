package offer

import (
	"sort"

	"github.com/shopspring/decimal"

	"github.com/openbasket/promo-engine/internal/domain/basket"
	"github.com/openbasket/promo-engine/internal/domain/catalog"
)

// Condition is the predicate gating whether an offer's benefit may fire.
// Custom conditions plug in by implementing this interface; the built-in
// variants are CountCondition, ValueCondition and CoverageCondition.
type Condition interface {
	// IsSatisfied reports whether the basket currently meets the condition,
	// counting only quantity still available to the offer.
	IsSatisfied(off *Offer, b *basket.Basket) bool
	// IsPartiallySatisfied reports whether the basket is on the way to
	// meeting the condition, for upsell messaging.
	IsPartiallySatisfied(off *Offer, b *basket.Basket) bool
	// ConsumeItems marks the units that satisfied the condition as consumed,
	// preferring units the benefit already touched, so one purchase cannot
	// trigger the same offer twice.
	ConsumeItems(off *Offer, b *basket.Basket, affected []AffectedLine)
	// ConditionRange returns the product range the condition is scoped to.
	ConditionRange() *catalog.Range
}

// AffectedLine records one line's share of a benefit application.
type AffectedLine struct {
	Line     *basket.Line
	Quantity int
	Discount decimal.Decimal
}

// pricedLine pairs a line with its unit effective price for ordering.
type pricedLine struct {
	price decimal.Decimal
	line  *basket.Line
}

// applicableLines returns the basket lines eligible for the offer within the
// given range, paired with unit effective prices. Lines whose product is not
// discountable or not stocked are filtered out, not deprioritised. Ordering
// is most-expensive-first by default: conditions prefer satisfying
// thresholds with expensive items. Benefits pass cheapestFirst to discount
// cheap items first instead; the two orderings encode different intents and
// must not be unified.
func applicableLines(rng *catalog.Range, off *Offer, b *basket.Basket, cheapestFirst bool) []pricedLine {
	if rng == nil {
		return nil
	}
	var lines []pricedLine
	for _, l := range b.AllLines() {
		if !l.IsEligibleForOffers() || !rng.Contains(l.Product) {
			continue
		}
		lines = append(lines, pricedLine{price: l.UnitEffectivePrice(b.TaxInclusive), line: l})
	}
	sort.SliceStable(lines, func(i, j int) bool {
		if cheapestFirst {
			return lines[i].price.LessThan(lines[j].price)
		}
		return lines[i].price.GreaterThan(lines[j].price)
	})
	return lines
}

// CountCondition is satisfied when at least Value units within its range are
// available to the offer.
type CountCondition struct {
	Range *catalog.Range
	Value int
}

func (c *CountCondition) ConditionRange() *catalog.Range { return c.Range }

func (c *CountCondition) IsSatisfied(off *Offer, b *basket.Basket) bool {
	return c.availableCount(off, b) >= c.Value
}

func (c *CountCondition) IsPartiallySatisfied(off *Offer, b *basket.Basket) bool {
	n := c.availableCount(off, b)
	return n > 0 && n < c.Value
}

func (c *CountCondition) availableCount(off *Offer, b *basket.Basket) int {
	n := 0
	for _, pl := range applicableLines(c.Range, off, b, false) {
		n += pl.line.Available(off)
		if n >= c.Value {
			break
		}
	}
	return n
}

func (c *CountCondition) ConsumeItems(off *Offer, b *basket.Basket, affected []AffectedLine) {
	toConsume := c.Value
	for _, al := range affected {
		toConsume -= al.Quantity
	}
	if toConsume <= 0 {
		return
	}
	for _, pl := range applicableLines(c.Range, off, b, false) {
		qty := minInt(pl.line.Available(off), toConsume)
		if qty <= 0 {
			continue
		}
		pl.line.Consume(qty, off)
		toConsume -= qty
		if toConsume == 0 {
			return
		}
	}
}

// ValueCondition is satisfied when the summed effective price of available
// units within its range reaches Value.
type ValueCondition struct {
	Range *catalog.Range
	Value decimal.Decimal
}

func (c *ValueCondition) ConditionRange() *catalog.Range { return c.Range }

func (c *ValueCondition) IsSatisfied(off *Offer, b *basket.Basket) bool {
	return c.availableValue(off, b).GreaterThanOrEqual(c.Value)
}

func (c *ValueCondition) IsPartiallySatisfied(off *Offer, b *basket.Basket) bool {
	v := c.availableValue(off, b)
	return v.IsPositive() && v.LessThan(c.Value)
}

func (c *ValueCondition) availableValue(off *Offer, b *basket.Basket) decimal.Decimal {
	total := decimal.Zero
	for _, pl := range applicableLines(c.Range, off, b, false) {
		qty := pl.line.Available(off)
		if qty <= 0 {
			continue
		}
		total = total.Add(pl.price.Mul(decimal.NewFromInt(int64(qty))))
		if total.GreaterThanOrEqual(c.Value) {
			break
		}
	}
	return total
}

func (c *ValueCondition) ConsumeItems(off *Offer, b *basket.Basket, affected []AffectedLine) {
	covered := decimal.Zero
	for _, al := range affected {
		covered = covered.Add(al.Line.UnitEffectivePrice(b.TaxInclusive).Mul(decimal.NewFromInt(int64(al.Quantity))))
	}
	if covered.GreaterThanOrEqual(c.Value) {
		return
	}
	for _, pl := range applicableLines(c.Range, off, b, false) {
		available := pl.line.Available(off)
		if available <= 0 {
			continue
		}
		// Consume one unit at a time until the condition value is covered.
		for i := 0; i < available; i++ {
			pl.line.Consume(1, off)
			covered = covered.Add(pl.price)
			if covered.GreaterThanOrEqual(c.Value) {
				return
			}
		}
	}
}

// CoverageCondition is satisfied when at least Value distinct products within
// its range have quantity available to the offer.
type CoverageCondition struct {
	Range *catalog.Range
	Value int
}

func (c *CoverageCondition) ConditionRange() *catalog.Range { return c.Range }

func (c *CoverageCondition) IsSatisfied(off *Offer, b *basket.Basket) bool {
	return c.coveredProducts(off, b) >= c.Value
}

func (c *CoverageCondition) IsPartiallySatisfied(off *Offer, b *basket.Basket) bool {
	n := c.coveredProducts(off, b)
	return n > 0 && n < c.Value
}

func (c *CoverageCondition) coveredProducts(off *Offer, b *basket.Basket) int {
	seen := make(map[string]struct{})
	for _, pl := range applicableLines(c.Range, off, b, false) {
		if pl.line.Available(off) <= 0 {
			continue
		}
		seen[pl.line.Product.ID] = struct{}{}
		if len(seen) >= c.Value {
			break
		}
	}
	return len(seen)
}

func (c *CoverageCondition) ConsumeItems(off *Offer, b *basket.Basket, affected []AffectedLine) {
	consumed := make(map[string]struct{})
	for _, al := range affected {
		consumed[al.Line.Product.ID] = struct{}{}
	}
	for _, pl := range applicableLines(c.Range, off, b, false) {
		if len(consumed) >= c.Value {
			return
		}
		if _, ok := consumed[pl.line.Product.ID]; ok {
			continue
		}
		if pl.line.Available(off) <= 0 {
			continue
		}
		pl.line.Consume(1, off)
		consumed[pl.line.Product.ID] = struct{}{}
	}
}
