// Package pricing encapsulates one basket pricing pass: resolving products,
// building the in-memory basket, running the offer applicator, and shaping
// the outcome for callers.
package pricing

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/openbasket/promo-engine/internal/domain/basket"
	"github.com/openbasket/promo-engine/internal/domain/catalog"
	"github.com/openbasket/promo-engine/internal/domain/money"
	"github.com/openbasket/promo-engine/internal/domain/offer"
	"github.com/openbasket/promo-engine/internal/domain/voucher"
)

// Sentinel errors for request validation.
var ErrEmptyLines = fmt.Errorf("lines required")

// ProductNotFoundError indicates a requested product does not exist.
type ProductNotFoundError struct {
	ProductID string
}

func (e *ProductNotFoundError) Error() string {
	return fmt.Sprintf("product %s not found", e.ProductID)
}

// InvalidQuantityError indicates a line has a non-positive quantity.
type InvalidQuantityError struct {
	ProductID string
}

func (e *InvalidQuantityError) Error() string {
	return fmt.Sprintf("quantity must be greater than 0 for product %s", e.ProductID)
}

// LineItem is one requested basket entry.
type LineItem struct {
	ProductID string
	Quantity  int
}

// Request holds the input for pricing a basket.
type Request struct {
	Currency      string
	UserID        string
	Authenticated bool
	TaxInclusive  bool
	Lines         []LineItem
	VoucherCodes  []string
}

// LineResult is the priced outcome for one basket line.
type LineResult struct {
	ProductID    string
	Quantity     int
	UnitPrice    decimal.Decimal
	Total        decimal.Decimal
	Discount     decimal.Decimal
	TaxInclusive bool
}

// Upsell is a hint that a partially satisfied offer is within reach.
type Upsell struct {
	OfferName string
}

// Result holds the output of a pricing pass.
type Result struct {
	BasketID     string
	Subtotal     decimal.Decimal
	Total        decimal.Decimal
	Discount     decimal.Decimal
	Lines        []LineResult
	Applications *offer.Applications
	Upsells      []Upsell
}

// OfferUsage persists per-offer counters as atomic deltas; the engine only
// computes what to add.
type OfferUsage interface {
	AddUsageDelta(ctx context.Context, offerID int64, applications int, discount decimal.Decimal) error
}

// UsageLoader snapshots a user's past offer applications before a pass.
// Storage implementations of OfferUsage that also satisfy this interface get
// per-user application caps enforced during pricing.
type UsageLoader interface {
	LoadUserUsage(ctx context.Context, userID string) (offer.UserUsage, error)
}

// RedemptionsLoader snapshots which vouchers a user has already redeemed.
// Voucher repositories that also satisfy this interface get once-per-customer
// vouchers enforced during pricing.
type RedemptionsLoader interface {
	LoadRedemptions(ctx context.Context, userID string, voucherIDs []int64) (voucher.UserRedemptions, error)
}

// UserApplicationsRecorder persists per-user application counts on commit.
// These writes feed the snapshots UsageLoader serves on later passes.
type UserApplicationsRecorder interface {
	AddUserApplications(ctx context.Context, offerID int64, userID string, applications int) error
}

// RedemptionsRecorder marks a voucher redeemed by a user on commit. These
// writes feed the snapshots RedemptionsLoader serves on later passes.
type RedemptionsRecorder interface {
	RecordRedemption(ctx context.Context, voucherID int64, userID string) error
}

// Service runs pricing passes. It owns no mutable state; every call builds a
// fresh basket.
type Service struct {
	products   catalog.Repository
	applicator *offer.Applicator
	site       offer.SiteOffers
	offerUsage OfferUsage
	vouchers   voucher.Repository
}

// NewService creates a pricing Service with the required dependencies.
// offerUsage and vouchers may be nil when usage commits are handled
// elsewhere.
func NewService(
	products catalog.Repository,
	applicator *offer.Applicator,
	site offer.SiteOffers,
	offerUsage OfferUsage,
	vouchers voucher.Repository,
) *Service {
	return &Service{
		products:   products,
		applicator: applicator,
		site:       site,
		offerUsage: offerUsage,
		vouchers:   vouchers,
	}
}

// PriceBasket validates the request, fetches products in one batch, builds a
// basket, applies offers, and returns the priced result.
func (s *Service) PriceBasket(ctx context.Context, req Request) (*Result, error) {
	if len(req.Lines) == 0 {
		return nil, ErrEmptyLines
	}

	ids := make([]string, len(req.Lines))
	for i, item := range req.Lines {
		if item.Quantity <= 0 {
			return nil, &InvalidQuantityError{ProductID: item.ProductID}
		}
		ids[i] = item.ProductID
	}

	fetched, err := s.products.GetByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("get products: %w", err)
	}
	productMap := make(map[string]catalog.Product, len(fetched))
	for _, p := range fetched {
		productMap[p.ID] = p
	}

	b := basket.New(uuid.New().String(), req.Currency, req.UserID)
	b.TaxInclusive = req.TaxInclusive
	for i, item := range req.Lines {
		p, ok := productMap[item.ProductID]
		if !ok {
			return nil, &ProductNotFoundError{ProductID: item.ProductID}
		}
		lineID := fmt.Sprintf("%s-%d", b.ID, i)
		b.AddLine(basket.NewLine(lineID, p, item.Quantity, money.New(req.Currency, p.Price)))
	}
	for _, code := range req.VoucherCodes {
		b.AddVoucherCode(code)
	}

	attached, err := s.attachVouchers(ctx, req.VoucherCodes)
	if err != nil {
		return nil, err
	}

	u := &offer.User{ID: req.UserID, Authenticated: req.Authenticated}
	ap, err := s.passApplicator(ctx, req, attached)
	if err != nil {
		return nil, err
	}
	apps, err := ap.Apply(ctx, b, u)
	if err != nil {
		return nil, fmt.Errorf("apply offers: %w", err)
	}

	upsells, err := s.collectUpsells(ctx, b, u)
	if err != nil {
		return nil, err
	}

	return buildResult(b, apps, upsells), nil
}

// attachVouchers resolves the requested codes once and bumps each recognized
// voucher's basket-addition counter. Unknown codes are not errors; the
// applicator drops them the same way during the pass.
func (s *Service) attachVouchers(ctx context.Context, codes []string) ([]*voucher.Voucher, error) {
	if s.vouchers == nil || len(codes) == 0 {
		return nil, nil
	}
	attached, err := s.vouchers.FindByCodes(ctx, codes)
	if err != nil {
		return nil, fmt.Errorf("resolve voucher codes: %w", err)
	}
	for _, v := range attached {
		if err := s.vouchers.IncrementBasketAdditions(ctx, v.ID); err != nil {
			return nil, fmt.Errorf("record voucher %q attachment: %w", v.Code, err)
		}
	}
	return attached, nil
}

// passApplicator clones the shared applicator and attaches per-user
// snapshots when the wired repositories can provide them, so user-level
// caps and once-per-customer vouchers hold across orders. The snapshots are
// loaded here; the pass itself stays free of I/O.
func (s *Service) passApplicator(ctx context.Context, req Request, attached []*voucher.Voucher) (*offer.Applicator, error) {
	ap := *s.applicator
	if !req.Authenticated {
		return &ap, nil
	}
	if loader, ok := s.offerUsage.(UsageLoader); ok {
		usage, err := loader.LoadUserUsage(ctx, req.UserID)
		if err != nil {
			return nil, fmt.Errorf("load user offer usage: %w", err)
		}
		ap.Usage = usage
	}
	if loader, ok := s.vouchers.(RedemptionsLoader); ok && len(attached) > 0 {
		ids := make([]int64, 0, len(attached))
		for _, v := range attached {
			ids = append(ids, v.ID)
		}
		redemptions, err := loader.LoadRedemptions(ctx, req.UserID, ids)
		if err != nil {
			return nil, fmt.Errorf("load voucher redemptions: %w", err)
		}
		ap.Vouchers = &voucher.Source{Repo: s.vouchers, Redemptions: redemptions}
	}
	return &ap, nil
}

// collectUpsells reports active site offers whose condition is partially
// satisfied by the basket, for "buy one more" messaging.
func (s *Service) collectUpsells(ctx context.Context, b *basket.Basket, u *offer.User) ([]Upsell, error) {
	if s.site == nil {
		return nil, nil
	}
	offers, err := s.site.ActiveSiteOffers(ctx, s.applicator.NowOrDefault())
	if err != nil {
		return nil, fmt.Errorf("collect upsell offers: %w", err)
	}
	var upsells []Upsell
	for _, off := range offers {
		if off.Condition == nil {
			continue
		}
		if off.Condition.IsPartiallySatisfied(off, b) {
			upsells = append(upsells, Upsell{OfferName: off.Name})
		}
	}
	return upsells, nil
}

// CommitUsage persists the counter deltas from a pricing pass after the order
// is placed. Offer counters and voucher counters go through atomic adds; for
// authenticated users the per-user application counts and voucher redemptions
// are recorded too, so later passes see them in their snapshots. The
// surrounding transaction boundary belongs to the caller's storage layer.
func (s *Service) CommitUsage(ctx context.Context, u *offer.User, apps *offer.Applications) error {
	authenticated := u != nil && u.Authenticated
	if s.offerUsage != nil {
		perUser, hasPerUser := s.offerUsage.(UserApplicationsRecorder)
		for _, app := range apps.All() {
			if err := s.offerUsage.AddUsageDelta(ctx, app.Offer.ID, app.Frequency, app.Discount); err != nil {
				return fmt.Errorf("record offer %d usage: %w", app.Offer.ID, err)
			}
			if authenticated && hasPerUser {
				if err := perUser.AddUserApplications(ctx, app.Offer.ID, u.ID, app.Frequency); err != nil {
					return fmt.Errorf("record offer %d usage for user %s: %w", app.Offer.ID, u.ID, err)
				}
			}
			app.Offer.RecordApplication(app.Frequency, app.Discount)
		}
	}
	if s.vouchers != nil {
		redemptions, hasRedemptions := s.vouchers.(RedemptionsRecorder)
		for _, vd := range apps.GroupedVoucherDiscounts() {
			v, err := s.vouchers.FindByCode(ctx, vd.Code)
			if err != nil {
				return fmt.Errorf("find voucher %q: %w", vd.Code, err)
			}
			if err := s.vouchers.AddUsageDelta(ctx, v.ID, 1, vd.Discount); err != nil {
				return fmt.Errorf("record voucher %q usage: %w", vd.Code, err)
			}
			if authenticated && hasRedemptions {
				if err := redemptions.RecordRedemption(ctx, v.ID, u.ID); err != nil {
					return fmt.Errorf("record voucher %q redemption: %w", vd.Code, err)
				}
			}
			v.RecordDiscount(vd.Discount)
		}
	}
	return nil
}

func buildResult(b *basket.Basket, apps *offer.Applications, upsells []Upsell) *Result {
	lines := make([]LineResult, 0, len(b.AllLines()))
	for _, l := range b.AllLines() {
		discount, taxInclusive := l.Discount()
		lines = append(lines, LineResult{
			ProductID:    l.Product.ID,
			Quantity:     l.Quantity,
			UnitPrice:    l.UnitPrice.ExclTax(),
			Total:        l.TotalExclTaxWithDiscounts(),
			Discount:     discount,
			TaxInclusive: taxInclusive,
		})
	}
	return &Result{
		BasketID:     b.ID,
		Subtotal:     b.SubtotalExclTax().Round(2),
		Total:        b.TotalExclTax().Round(2),
		Discount:     apps.TotalDiscount().Round(2),
		Lines:        lines,
		Applications: apps,
		Upsells:      upsells,
	}
}
