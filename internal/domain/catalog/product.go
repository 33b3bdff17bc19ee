package catalog

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// ErrNotFound is returned when a requested product does not exist.
var ErrNotFound = errors.New("product not found")

// Product represents a catalogue item that can be placed in a basket.
type Product struct {
	ID           string
	Name         string
	CategoryID   string
	ClassID      string
	Price        decimal.Decimal
	Discountable bool
	// InStock mirrors the presence of a stockrecord. Lines for products
	// without stock are never eligible for offers.
	InStock bool
}

// Repository defines read operations for the product catalogue.
type Repository interface {
	List(ctx context.Context) ([]Product, error)
	GetByIDs(ctx context.Context, ids []string) ([]Product, error)
}
