package offer

import (
	"context"
	"sort"
	"time"

	"github.com/go-faster/errors"

	"github.com/openbasket/promo-engine/internal/domain/basket"
)

// SiteOffers supplies the site-wide offers active at a point in time.
type SiteOffers interface {
	ActiveSiteOffers(ctx context.Context, now time.Time) ([]*Offer, error)
}

// UserOffers supplies offers granted to a specific user. Optional extension
// point; most deployments have none.
type UserOffers interface {
	OffersForUser(ctx context.Context, u *User, now time.Time) ([]*Offer, error)
}

// SessionOffers supplies offers attached to the current session or request.
// Optional extension point; most deployments have none.
type SessionOffers interface {
	OffersForSession(ctx context.Context, b *basket.Basket) ([]*Offer, error)
}

// Voucher is the view of a voucher the applicator needs: active-window and
// per-user availability checks plus the offers the code unlocks. The
// concrete aggregate lives in the voucher package.
type Voucher interface {
	Code() string
	Name() string
	IsActive(now time.Time) bool
	IsAvailableTo(u *User) (ok bool, reason string)
	VoucherOffers() []*Offer
}

// Vouchers resolves voucher codes attached to a basket. Unknown codes are
// simply absent from the result, not errors.
type Vouchers interface {
	FindByCodes(ctx context.Context, codes []string) ([]Voucher, error)
}

// Applicator orchestrates one pricing pass: it collects candidate offers,
// orders them, applies each repeatedly up to its caps, and stores the
// resulting ledger on the basket.
//
// A pass is synchronous and side-effecting on the in-memory basket. Running
// Apply twice without Basket.ResetOfferApplications in between double-counts
// line consumption; that reset discipline is the caller's contract.
type Applicator struct {
	Site     SiteOffers
	Users    UserOffers
	Sessions SessionOffers
	Vouchers Vouchers
	Usage    UserUsage

	// Now is overridable for tests; defaults to time.Now.
	Now func() time.Time
}

func (a *Applicator) now() time.Time {
	if a.Now != nil {
		return a.Now()
	}
	return time.Now()
}

// NowOrDefault exposes the applicator's clock so collaborating services share
// the same notion of "now" within a pass.
func (a *Applicator) NowOrDefault() time.Time { return a.now() }

// Apply runs a full pricing pass against the basket and returns the ledger it
// stored on the basket.
func (a *Applicator) Apply(ctx context.Context, b *basket.Basket, u *User) (*Applications, error) {
	offers, err := a.collectOffers(ctx, b, u)
	if err != nil {
		return nil, err
	}
	return a.ApplyOffers(b, u, offers)
}

// collectOffers gathers candidates in a fixed order: session, basket
// vouchers, user, site. The later priority sort is stable, so this order is
// the tie-break between offers of equal priority.
func (a *Applicator) collectOffers(ctx context.Context, b *basket.Basket, u *User) ([]*Offer, error) {
	now := a.now()
	var offers []*Offer

	if a.Sessions != nil {
		session, err := a.Sessions.OffersForSession(ctx, b)
		if err != nil {
			return nil, errors.Wrap(err, "collect session offers")
		}
		offers = append(offers, filterAvailable(session, now)...)
	}

	voucherOffers, err := a.basketVoucherOffers(ctx, b, u, now)
	if err != nil {
		return nil, err
	}
	offers = append(offers, voucherOffers...)

	if a.Users != nil && u != nil && u.Authenticated {
		user, err := a.Users.OffersForUser(ctx, u, now)
		if err != nil {
			return nil, errors.Wrap(err, "collect user offers")
		}
		offers = append(offers, filterAvailable(user, now)...)
	}

	if a.Site != nil {
		site, err := a.Site.ActiveSiteOffers(ctx, now)
		if err != nil {
			return nil, errors.Wrap(err, "collect site offers")
		}
		offers = append(offers, filterAvailable(site, now)...)
	}

	return offers, nil
}

// basketVoucherOffers resolves the basket's attached voucher codes to offers,
// keeping only vouchers that are active and available to the user.
func (a *Applicator) basketVoucherOffers(ctx context.Context, b *basket.Basket, u *User, now time.Time) ([]*Offer, error) {
	if a.Vouchers == nil || len(b.VoucherCodes) == 0 {
		return nil, nil
	}
	vouchers, err := a.Vouchers.FindByCodes(ctx, b.VoucherCodes)
	if err != nil {
		return nil, errors.Wrap(err, "resolve basket vouchers")
	}
	var offers []*Offer
	for _, v := range vouchers {
		if !v.IsActive(now) {
			continue
		}
		if ok, _ := v.IsAvailableTo(u); !ok {
			continue
		}
		offers = append(offers, filterAvailable(v.VoucherOffers(), now)...)
	}
	return offers, nil
}

// ApplyOffers applies the given offers in priority order and stores a fresh
// ledger on the basket. Application failures are absorbed; configuration
// errors abort the pass.
func (a *Applicator) ApplyOffers(b *basket.Basket, u *User, offers []*Offer) (*Applications, error) {
	sorted := make([]*Offer, len(offers))
	copy(sorted, offers)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Priority > sorted[j].Priority
	})

	apps := NewApplications()
	for _, off := range sorted {
		applications := 0
		maxApplications := off.MaxApplicationsFor(u, a.Usage)
		for applications < maxApplications {
			result, err := off.ApplyBenefit(b)
			if err != nil {
				return nil, err
			}
			applications++
			if !result.IsSuccessful() {
				break
			}
			apps.Add(off, result)
			if result.IsFinal() {
				break
			}
		}
	}

	b.SetOfferApplications(apps)
	return apps, nil
}

func filterAvailable(offers []*Offer, now time.Time) []*Offer {
	out := offers[:0:0]
	for _, off := range offers {
		if off.IsAvailable(now) {
			out = append(out, off)
		}
	}
	return out
}
