package offer

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/openbasket/promo-engine/internal/domain/basket"
	"github.com/openbasket/promo-engine/internal/domain/catalog"
	"github.com/openbasket/promo-engine/internal/domain/money"
)

func d(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

func allProducts() *catalog.Range {
	return catalog.NewRange(1, "everything", true, nil, nil, nil, nil)
}

func addLine(b *basket.Basket, productID string, qty int, price string) *basket.Line {
	p := catalog.Product{ID: productID, Discountable: true, InStock: true}
	l := basket.NewLine("line-"+productID, p, qty, money.New(b.Currency, d(price)))
	b.AddLine(l)
	return l
}

func newBasket() *basket.Basket {
	return basket.New("b1", "USD", "u1")
}

func siteOffer(id int64, cond Condition, ben Benefit) *Offer {
	return &Offer{ID: id, Name: "test offer", Type: TypeSite, Status: StatusOpen, Condition: cond, Benefit: ben}
}

func TestCountCondition(t *testing.T) {
	tests := []struct {
		name          string
		value         int
		quantities    map[string]int
		wantSatisfied bool
		wantPartial   bool
	}{
		{"met exactly", 3, map[string]int{"p1": 3}, true, false},
		{"met across lines", 3, map[string]int{"p1": 2, "p2": 2}, true, false},
		{"short by one", 3, map[string]int{"p1": 2}, false, true},
		{"empty basket", 1, nil, false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := newBasket()
			for id, qty := range tt.quantities {
				addLine(b, id, qty, "10.00")
			}
			cond := &CountCondition{Range: allProducts(), Value: tt.value}
			off := siteOffer(1, cond, nil)

			assert.Equal(t, tt.wantSatisfied, cond.IsSatisfied(off, b))
			assert.Equal(t, tt.wantPartial, cond.IsPartiallySatisfied(off, b))
		})
	}
}

func TestCountCondition_IgnoresConsumedQuantity(t *testing.T) {
	b := newBasket()
	l := addLine(b, "p1", 3, "10.00")
	cond := &CountCondition{Range: allProducts(), Value: 3}
	off := siteOffer(1, cond, nil)

	l.Consume(1, off)

	assert.False(t, cond.IsSatisfied(off, b), "consumed units no longer count")
	assert.True(t, cond.IsPartiallySatisfied(off, b))
}

func TestCountCondition_IgnoresIneligibleLines(t *testing.T) {
	b := newBasket()
	noStock := catalog.Product{ID: "p1", Discountable: true, InStock: false}
	b.AddLine(basket.NewLine("l1", noStock, 5, money.New("USD", d("10.00"))))
	notDiscountable := catalog.Product{ID: "p2", Discountable: false, InStock: true}
	b.AddLine(basket.NewLine("l2", notDiscountable, 5, money.New("USD", d("10.00"))))

	cond := &CountCondition{Range: allProducts(), Value: 1}
	off := siteOffer(1, cond, nil)

	assert.False(t, cond.IsSatisfied(off, b))
	assert.False(t, cond.IsPartiallySatisfied(off, b))
}

func TestCountCondition_ConsumeItemsPrefersAffected(t *testing.T) {
	b := newBasket()
	cheap := addLine(b, "p1", 2, "5.00")
	dear := addLine(b, "p2", 2, "9.00")
	cond := &CountCondition{Range: allProducts(), Value: 2}
	off := siteOffer(1, cond, nil)

	// One unit already discounted by the benefit; the condition needs one
	// more and takes it from the most expensive line.
	cheap.Consume(1, off)
	cond.ConsumeItems(off, b, []AffectedLine{{Line: cheap, Quantity: 1}})

	assert.Equal(t, 1, cheap.Consumed(off))
	assert.Equal(t, 1, dear.Consumed(off))
}

func TestValueCondition(t *testing.T) {
	tests := []struct {
		name          string
		value         string
		lines         map[string]struct {
			qty   int
			price string
		}
		wantSatisfied bool
		wantPartial   bool
	}{
		{
			name:  "met across units",
			value: "20.00",
			lines: map[string]struct {
				qty   int
				price string
			}{"p1": {2, "10.00"}},
			wantSatisfied: true,
		},
		{
			name:  "short",
			value: "25.00",
			lines: map[string]struct {
				qty   int
				price string
			}{"p1": {2, "10.00"}},
			wantPartial: true,
		},
		{
			name:  "empty basket",
			value: "5.00",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := newBasket()
			for id, spec := range tt.lines {
				addLine(b, id, spec.qty, spec.price)
			}
			cond := &ValueCondition{Range: allProducts(), Value: d(tt.value)}
			off := siteOffer(1, cond, nil)

			assert.Equal(t, tt.wantSatisfied, cond.IsSatisfied(off, b))
			assert.Equal(t, tt.wantPartial, cond.IsPartiallySatisfied(off, b))
		})
	}
}

func TestValueCondition_ConsumeItemsCoversValue(t *testing.T) {
	b := newBasket()
	l := addLine(b, "p1", 5, "10.00")
	cond := &ValueCondition{Range: allProducts(), Value: d("25.00")}
	off := siteOffer(1, cond, nil)

	cond.ConsumeItems(off, b, nil)

	// Three units at $10 are needed to cover $25.
	assert.Equal(t, 3, l.Consumed(off))
}

func TestCoverageCondition(t *testing.T) {
	b := newBasket()
	addLine(b, "p1", 5, "10.00")
	addLine(b, "p2", 1, "4.00")
	cond := &CoverageCondition{Range: allProducts(), Value: 3}
	off := siteOffer(1, cond, nil)

	// Two distinct products, need three: partial only. Unit count is
	// irrelevant.
	assert.False(t, cond.IsSatisfied(off, b))
	assert.True(t, cond.IsPartiallySatisfied(off, b))

	addLine(b, "p3", 1, "2.00")
	assert.True(t, cond.IsSatisfied(off, b))
}

func TestCoverageCondition_ConsumeItemsOnePerProduct(t *testing.T) {
	b := newBasket()
	l1 := addLine(b, "p1", 5, "10.00")
	l2 := addLine(b, "p2", 5, "8.00")
	cond := &CoverageCondition{Range: allProducts(), Value: 2}
	off := siteOffer(1, cond, nil)

	cond.ConsumeItems(off, b, nil)

	assert.Equal(t, 1, l1.Consumed(off))
	assert.Equal(t, 1, l2.Consumed(off))
}

func TestApplicableLines_Ordering(t *testing.T) {
	b := newBasket()
	addLine(b, "cheap", 1, "2.00")
	addLine(b, "dear", 1, "8.00")
	addLine(b, "mid", 1, "5.00")
	off := siteOffer(1, nil, nil)

	expensiveFirst := applicableLines(allProducts(), off, b, false)
	assert.Equal(t, "dear", expensiveFirst[0].line.Product.ID)
	assert.Equal(t, "cheap", expensiveFirst[2].line.Product.ID)

	cheapFirst := applicableLines(allProducts(), off, b, true)
	assert.Equal(t, "cheap", cheapFirst[0].line.Product.ID)
	assert.Equal(t, "dear", cheapFirst[2].line.Product.ID)
}
