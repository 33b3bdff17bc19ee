// Package voucher provides code-bearing wrappers around offers: a voucher
// unlocks one or more voucher-type offers when its code is attached to a
// basket, subject to a usage mode and an active window.
package voucher

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/openbasket/promo-engine/internal/domain/offer"
)

// Usage controls how often a voucher may be redeemed.
type Usage string

const (
	// SingleUse vouchers can be used once, by anyone.
	SingleUse Usage = "single"
	// MultiUse vouchers can be used any number of times, by anyone.
	MultiUse Usage = "multi"
	// OncePerCustomer vouchers can be used once per customer.
	OncePerCustomer Usage = "once_per_customer"
)

// ErrNotFound is returned when a voucher code does not exist.
var ErrNotFound = errors.New("voucher not found")

// Voucher is a redeemable code carrying offers. Counter fields hold persisted
// totals; increments are applied as atomic deltas by the storage layer.
type Voucher struct {
	ID    int64
	Name  string
	Code  string
	Usage Usage

	Start time.Time
	End   time.Time

	NumBasketAdditions int
	NumOrders          int
	TotalDiscount      decimal.Decimal

	Offers []*offer.Offer
}

// UserRedemptions reports whether a user has redeemed a voucher before.
// Implementations load this before the pricing pass; the engine does no I/O.
type UserRedemptions interface {
	HasRedeemed(voucherID int64, userID string) bool
}

// IsActive reports whether the voucher is inside its redeemable window.
func (v *Voucher) IsActive(now time.Time) bool {
	if now.Before(v.Start) {
		return false
	}
	if !v.End.IsZero() && now.After(v.End) {
		return false
	}
	return true
}

// IsAvailableToUser checks the voucher's usage mode against the user. The
// returned reason is a customer-facing message when the voucher cannot be
// used.
func (v *Voucher) IsAvailableToUser(u *offer.User, redemptions UserRedemptions) (bool, string) {
	switch v.Usage {
	case SingleUse:
		if v.NumOrders > 0 {
			return false, "This voucher has already been used"
		}
	case OncePerCustomer:
		if u == nil || !u.Authenticated {
			return false, "This voucher is only available to signed in users"
		}
		if redemptions != nil && redemptions.HasRedeemed(v.ID, u.ID) {
			return false, "You have already used this voucher in a previous order"
		}
	}
	return true, ""
}

// RecordDiscount folds one pricing pass's result into the voucher counters.
// The matching persisted update is an atomic delta.
func (v *Voucher) RecordDiscount(discount decimal.Decimal) {
	v.NumOrders++
	v.TotalDiscount = v.TotalDiscount.Add(discount)
}

// Repository defines persistence operations for vouchers.
type Repository interface {
	FindByCode(ctx context.Context, code string) (*Voucher, error)
	FindByCodes(ctx context.Context, codes []string) ([]*Voucher, error)
	// AddUsageDelta atomically adds to a voucher's counters.
	AddUsageDelta(ctx context.Context, voucherID int64, orders int, discount decimal.Decimal) error
	// IncrementBasketAdditions atomically bumps the attach counter.
	IncrementBasketAdditions(ctx context.Context, voucherID int64) error
}

// applicatorVoucher adapts a Voucher (plus preloaded redemption data) to the
// view the offer applicator needs.
type applicatorVoucher struct {
	v           *Voucher
	redemptions UserRedemptions
}

func (a applicatorVoucher) Code() string            { return a.v.Code }
func (a applicatorVoucher) Name() string            { return a.v.Name }
func (a applicatorVoucher) IsActive(now time.Time) bool { return a.v.IsActive(now) }
func (a applicatorVoucher) IsAvailableTo(u *offer.User) (bool, string) {
	return a.v.IsAvailableToUser(u, a.redemptions)
}
func (a applicatorVoucher) VoucherOffers() []*offer.Offer { return a.v.Offers }

// Source adapts a Repository to the applicator's voucher lookup, threading
// preloaded per-user redemption data through availability checks.
type Source struct {
	Repo        Repository
	Redemptions UserRedemptions
}

var _ offer.Vouchers = (*Source)(nil)

// FindByCodes resolves codes to applicator vouchers. Unknown codes are
// silently dropped.
func (s *Source) FindByCodes(ctx context.Context, codes []string) ([]offer.Voucher, error) {
	found, err := s.Repo.FindByCodes(ctx, codes)
	if err != nil {
		return nil, errors.Wrap(err, "find vouchers")
	}
	out := make([]offer.Voucher, 0, len(found))
	for _, v := range found {
		out = append(out, applicatorVoucher{v: v, redemptions: s.Redemptions})
	}
	return out, nil
}
