// Package offer implements the promotional offer engine: conditions gating
// whether an offer may fire, benefits computing and recording discounts,
// the applicator orchestrating which offers run in what order, and the
// per-pass ledger of what was applied.
package offer

import (
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/openbasket/promo-engine/internal/domain/basket"
)

// Type categorises where an offer comes from.
type Type string

const (
	TypeSite    Type = "site"
	TypeVoucher Type = "voucher"
	TypeUser    Type = "user"
	TypeSession Type = "session"
)

// Status is the lifecycle state of an offer. Offers are suspended rather than
// deleted, and become consumed when an application cap is exhausted.
type Status string

const (
	StatusOpen      Status = "open"
	StatusSuspended Status = "suspended"
	StatusConsumed  Status = "consumed"
)

// maxApplicationsCap bounds the per-offer application loop when no explicit
// cap is configured.
const maxApplicationsCap = 10000

// ErrMisconfigured wraps configuration-class failures: an offer missing its
// condition or benefit, a benefit missing a required range, and the like.
// These surface immediately; they are never absorbed as application failures.
var ErrMisconfigured = errors.New("offer misconfigured")

// User identifies the customer a basket belongs to.
type User struct {
	ID            string
	Authenticated bool
}

// UserUsage reports how many times a user has already had an offer applied on
// past orders. Implementations load this before the pricing pass runs; the
// engine itself performs no I/O.
type UserUsage interface {
	ApplicationsBy(offerID int64, userID string) int
}

// NoUsage is a UserUsage that reports zero past applications for everyone.
type NoUsage struct{}

func (NoUsage) ApplicationsBy(int64, string) int { return 0 }

// Offer pairs a condition with a benefit under a set of application caps.
// Counter fields (NumApplications, TotalDiscount) hold the persisted totals
// loaded at the start of a pass; the pass itself only computes deltas.
type Offer struct {
	ID        int64
	Name      string
	Type      Type
	Status    Status
	Priority  int
	Exclusive bool

	Condition Condition
	Benefit   Benefit

	// Caps. Zero means unconfigured (no cap).
	MaxGlobalApplications int
	MaxUserApplications   int
	MaxBasketApplications int
	MaxDiscount           decimal.Decimal

	NumApplications int
	TotalDiscount   decimal.Decimal

	Start *time.Time
	End   *time.Time

	// VoucherCode and VoucherName are set on voucher-type offers so the
	// ledger can group discounts by code without reaching into the voucher
	// aggregate.
	VoucherCode string
	VoucherName string
}

// OfferID implements basket.Offer.
func (o *Offer) OfferID() int64 { return o.ID }

// IsExclusive implements basket.Offer.
func (o *Offer) IsExclusive() bool { return o.Exclusive }

// IsOpen reports whether the offer is in the open state.
func (o *Offer) IsOpen() bool { return o.Status == StatusOpen || o.Status == "" }

// IsActive reports whether the offer is open and inside its date window.
func (o *Offer) IsActive(now time.Time) bool {
	if !o.IsOpen() {
		return false
	}
	if o.Start != nil && now.Before(*o.Start) {
		return false
	}
	if o.End != nil && now.After(*o.End) {
		return false
	}
	return true
}

// IsAvailable reports whether the applicator should consider this offer at
// all: active and with at least one global application remaining.
func (o *Offer) IsAvailable(now time.Time) bool {
	if !o.IsActive(now) {
		return false
	}
	if o.MaxGlobalApplications > 0 && o.NumApplications >= o.MaxGlobalApplications {
		return false
	}
	if !o.MaxDiscount.IsZero() && o.TotalDiscount.GreaterThanOrEqual(o.MaxDiscount) {
		return false
	}
	return true
}

// MaxApplicationsFor returns how many times the offer may be applied within a
// single pricing pass for this user. Every configured cap is independent and
// the tightest one wins.
func (o *Offer) MaxApplicationsFor(u *User, usage UserUsage) int {
	if !o.MaxDiscount.IsZero() && o.TotalDiscount.GreaterThanOrEqual(o.MaxDiscount) {
		return 0
	}

	limit := maxApplicationsCap
	if o.MaxUserApplications > 0 && u != nil {
		used := 0
		if usage != nil {
			used = usage.ApplicationsBy(o.ID, u.ID)
		}
		limit = minInt(limit, o.MaxUserApplications-used)
	}
	if o.MaxBasketApplications > 0 {
		limit = minInt(limit, o.MaxBasketApplications)
	}
	if o.MaxGlobalApplications > 0 {
		limit = minInt(limit, o.MaxGlobalApplications-o.NumApplications)
	}
	if limit < 0 {
		return 0
	}
	return limit
}

// ApplyBenefit evaluates the condition and, when satisfied, applies the
// benefit to the basket. An unsatisfied condition is a normal outcome and
// yields an unsuccessful result; only configuration errors are returned.
func (o *Offer) ApplyBenefit(b *basket.Basket) (ApplicationResult, error) {
	if o.Condition == nil || o.Benefit == nil {
		return nil, errors.Wrapf(ErrMisconfigured, "offer %d lacks condition or benefit", o.ID)
	}
	if !o.Condition.IsSatisfied(o, b) {
		return ZeroDiscount, nil
	}
	return o.Benefit.Apply(b, o.Condition, o)
}

// RecordApplication folds one pricing pass's applications of this offer into
// its counters and flips the status to consumed when a global cap is
// exhausted. An offer can apply several times within a pass, so the caller
// passes the ledger frequency, not 1. The matching persisted update is an
// atomic delta applied by the storage layer.
func (o *Offer) RecordApplication(applications int, discount decimal.Decimal) {
	o.NumApplications += applications
	o.TotalDiscount = o.TotalDiscount.Add(discount)
	if o.MaxGlobalApplications > 0 && o.NumApplications >= o.MaxGlobalApplications {
		o.Status = StatusConsumed
	}
	if !o.MaxDiscount.IsZero() && o.TotalDiscount.GreaterThanOrEqual(o.MaxDiscount) {
		o.Status = StatusConsumed
	}
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
