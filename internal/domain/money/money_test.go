package money

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func d(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

func TestPrice_ZeroValueDoesNotExist(t *testing.T) {
	var p Price
	assert.False(t, p.Exists())
	assert.False(t, p.IsTaxKnown())
}

func TestPrice_InclTaxDerivedFromExclTax(t *testing.T) {
	p := NewWithTax("USD", d("10.00"), d("2.00"))

	incl, err := p.InclTax()
	require.NoError(t, err)
	assert.True(t, incl.Equal(d("12.00")), "expected 12.00, got %s", incl)
	assert.True(t, p.ExclTax().Equal(d("10.00")))
	assert.Equal(t, "USD", p.Currency())
}

func TestPrice_InclTaxUnknown(t *testing.T) {
	p := New("USD", d("10.00"))

	_, err := p.InclTax()
	require.ErrorIs(t, err, ErrTaxUnknown)
}

func TestPrice_Effective(t *testing.T) {
	tests := []struct {
		name         string
		price        Price
		taxInclusive bool
		want         decimal.Decimal
	}{
		{
			name:         "tax exclusive policy uses excl amount",
			price:        NewWithTax("USD", d("10.00"), d("2.00")),
			taxInclusive: false,
			want:         d("10.00"),
		},
		{
			name:         "tax inclusive policy uses incl amount",
			price:        NewWithTax("USD", d("10.00"), d("2.00")),
			taxInclusive: true,
			want:         d("12.00"),
		},
		{
			name:         "tax inclusive policy falls back when tax unknown",
			price:        New("USD", d("10.00")),
			taxInclusive: true,
			want:         d("10.00"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.price.Effective(tt.taxInclusive)
			assert.True(t, tt.want.Equal(got), "expected %s, got %s", tt.want, got)
		})
	}
}
