package pricing

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openbasket/promo-engine/internal/domain/catalog"
	"github.com/openbasket/promo-engine/internal/domain/offer"
	"github.com/openbasket/promo-engine/internal/domain/voucher"
)

func d(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

type mockProducts struct {
	products map[string]catalog.Product
}

func (m *mockProducts) List(context.Context) ([]catalog.Product, error) {
	var out []catalog.Product
	for _, p := range m.products {
		out = append(out, p)
	}
	return out, nil
}

func (m *mockProducts) GetByIDs(_ context.Context, ids []string) ([]catalog.Product, error) {
	var out []catalog.Product
	for _, id := range ids {
		if p, ok := m.products[id]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

type fixedSiteOffers struct {
	offers []*offer.Offer
}

func (f *fixedSiteOffers) ActiveSiteOffers(context.Context, time.Time) ([]*offer.Offer, error) {
	return f.offers, nil
}

type usageDelta struct {
	offerID      int64
	applications int
	discount     decimal.Decimal
}

type mockOfferUsage struct {
	deltas []usageDelta
}

func (m *mockOfferUsage) AddUsageDelta(_ context.Context, offerID int64, applications int, discount decimal.Decimal) error {
	m.deltas = append(m.deltas, usageDelta{offerID, applications, discount})
	return nil
}

func everything() *catalog.Range {
	return catalog.NewRange(1, "everything", true, nil, nil, nil, nil)
}

func tenPercentOffer(id int64) *offer.Offer {
	return &offer.Offer{
		ID:        id,
		Name:      "10% off",
		Type:      offer.TypeSite,
		Status:    offer.StatusOpen,
		Exclusive: true,
		Condition: &offer.CountCondition{Range: everything(), Value: 1},
		Benefit:   &offer.PercentageBenefit{Range: everything(), Value: d("10")},
	}
}

func newService(products map[string]catalog.Product, offers []*offer.Offer, usage OfferUsage) *Service {
	site := &fixedSiteOffers{offers: offers}
	return NewService(
		&mockProducts{products: products},
		&offer.Applicator{Site: site},
		site,
		usage,
		nil,
	)
}

func TestService_PriceBasket(t *testing.T) {
	products := map[string]catalog.Product{
		"p1": {ID: "p1", Name: "Widget", Price: d("10.00"), Discountable: true, InStock: true},
	}
	svc := newService(products, []*offer.Offer{tenPercentOffer(1)}, nil)

	result, err := svc.PriceBasket(context.Background(), Request{
		Currency: "USD",
		Lines:    []LineItem{{ProductID: "p1", Quantity: 3}},
	})
	require.NoError(t, err)

	assert.True(t, result.Subtotal.Equal(d("30.00")))
	assert.True(t, result.Discount.Equal(d("3.00")))
	assert.True(t, result.Total.Equal(d("27.00")))
	require.Len(t, result.Lines, 1)
	assert.True(t, result.Lines[0].Discount.Equal(d("3.00")))
	require.Equal(t, 1, result.Applications.Len())
	assert.Equal(t, 1, result.Applications.Get(1).Frequency)
}

func TestService_PriceBasketValidation(t *testing.T) {
	products := map[string]catalog.Product{
		"p1": {ID: "p1", Price: d("10.00"), Discountable: true, InStock: true},
	}
	svc := newService(products, nil, nil)

	t.Run("empty lines", func(t *testing.T) {
		_, err := svc.PriceBasket(context.Background(), Request{Currency: "USD"})
		require.ErrorIs(t, err, ErrEmptyLines)
	})

	t.Run("zero quantity", func(t *testing.T) {
		_, err := svc.PriceBasket(context.Background(), Request{
			Currency: "USD",
			Lines:    []LineItem{{ProductID: "p1", Quantity: 0}},
		})
		var iqErr *InvalidQuantityError
		require.ErrorAs(t, err, &iqErr)
		assert.Equal(t, "p1", iqErr.ProductID)
	})

	t.Run("unknown product", func(t *testing.T) {
		_, err := svc.PriceBasket(context.Background(), Request{
			Currency: "USD",
			Lines:    []LineItem{{ProductID: "ghost", Quantity: 1}},
		})
		var nfErr *ProductNotFoundError
		require.ErrorAs(t, err, &nfErr)
		assert.Equal(t, "ghost", nfErr.ProductID)
	})
}

func TestService_Upsells(t *testing.T) {
	products := map[string]catalog.Product{
		"p1": {ID: "p1", Price: d("10.00"), Discountable: true, InStock: true},
	}
	nearMiss := tenPercentOffer(1)
	nearMiss.Name = "Buy 3 save 10%"
	nearMiss.Condition = &offer.CountCondition{Range: everything(), Value: 3}
	svc := newService(products, []*offer.Offer{nearMiss}, nil)

	result, err := svc.PriceBasket(context.Background(), Request{
		Currency: "USD",
		Lines:    []LineItem{{ProductID: "p1", Quantity: 2}},
	})
	require.NoError(t, err)

	assert.True(t, result.Discount.IsZero())
	require.Len(t, result.Upsells, 1)
	assert.Equal(t, "Buy 3 save 10%", result.Upsells[0].OfferName)
}

// usageStore fakes a repository that records deltas and per-user counts and
// serves the per-user snapshot back.
type usageStore struct {
	mockOfferUsage
	applied map[int64]int
}

func (u *usageStore) AddUserApplications(_ context.Context, offerID int64, _ string, applications int) error {
	if u.applied == nil {
		u.applied = make(map[int64]int)
	}
	u.applied[offerID] += applications
	return nil
}

func (u *usageStore) LoadUserUsage(context.Context, string) (offer.UserUsage, error) {
	return snapshotUsage(u.applied), nil
}

type snapshotUsage map[int64]int

func (s snapshotUsage) ApplicationsBy(offerID int64, _ string) int { return s[offerID] }

// mockVoucherRepo is an in-memory voucher store covering the lookup, counter,
// and redemption surfaces the service reaches for.
type mockVoucherRepo struct {
	vouchers  map[string]*voucher.Voucher
	additions map[int64]int
	orders    map[int64]int
	redeemed  map[int64]map[string]bool
}

func newMockVoucherRepo(vs ...*voucher.Voucher) *mockVoucherRepo {
	m := &mockVoucherRepo{
		vouchers:  make(map[string]*voucher.Voucher),
		additions: make(map[int64]int),
		orders:    make(map[int64]int),
		redeemed:  make(map[int64]map[string]bool),
	}
	for _, v := range vs {
		m.vouchers[v.Code] = v
	}
	return m
}

func (m *mockVoucherRepo) FindByCode(_ context.Context, code string) (*voucher.Voucher, error) {
	v, ok := m.vouchers[code]
	if !ok {
		return nil, voucher.ErrNotFound
	}
	return v, nil
}

func (m *mockVoucherRepo) FindByCodes(_ context.Context, codes []string) ([]*voucher.Voucher, error) {
	var out []*voucher.Voucher
	for _, code := range codes {
		if v, ok := m.vouchers[code]; ok {
			out = append(out, v)
		}
	}
	return out, nil
}

func (m *mockVoucherRepo) AddUsageDelta(_ context.Context, voucherID int64, orders int, _ decimal.Decimal) error {
	m.orders[voucherID] += orders
	return nil
}

func (m *mockVoucherRepo) IncrementBasketAdditions(_ context.Context, voucherID int64) error {
	m.additions[voucherID]++
	return nil
}

func (m *mockVoucherRepo) RecordRedemption(_ context.Context, voucherID int64, userID string) error {
	if m.redeemed[voucherID] == nil {
		m.redeemed[voucherID] = make(map[string]bool)
	}
	m.redeemed[voucherID][userID] = true
	return nil
}

func (m *mockVoucherRepo) LoadRedemptions(context.Context, string, []int64) (voucher.UserRedemptions, error) {
	return redemptionSnapshot(m.redeemed), nil
}

type redemptionSnapshot map[int64]map[string]bool

func (s redemptionSnapshot) HasRedeemed(voucherID int64, userID string) bool {
	return s[voucherID][userID]
}

func TestService_UserCapLoadedFromStore(t *testing.T) {
	products := map[string]catalog.Product{
		"p1": {ID: "p1", Price: d("10.00"), Discountable: true, InStock: true},
	}
	capped := tenPercentOffer(1)
	capped.MaxUserApplications = 1

	store := &usageStore{applied: map[int64]int{1: 1}}
	svc := newService(products, []*offer.Offer{capped}, store)

	req := Request{
		Currency: "USD",
		Lines:    []LineItem{{ProductID: "p1", Quantity: 3}},
	}

	// Anonymous baskets skip the snapshot and still get the discount.
	result, err := svc.PriceBasket(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, result.Discount.Equal(d("3.00")))

	// The same user who already exhausted their allowance gets nothing.
	req.UserID = "u1"
	req.Authenticated = true
	result, err = svc.PriceBasket(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, result.Discount.IsZero())
	assert.Equal(t, 0, result.Applications.Len())
}

func TestService_CommitUsage(t *testing.T) {
	products := map[string]catalog.Product{
		"p1": {ID: "p1", Price: d("10.00"), Discountable: true, InStock: true},
	}
	off := tenPercentOffer(1)
	usage := &mockOfferUsage{}
	svc := newService(products, []*offer.Offer{off}, usage)

	result, err := svc.PriceBasket(context.Background(), Request{
		Currency: "USD",
		Lines:    []LineItem{{ProductID: "p1", Quantity: 3}},
	})
	require.NoError(t, err)

	require.NoError(t, svc.CommitUsage(context.Background(), nil, result.Applications))

	require.Len(t, usage.deltas, 1)
	assert.Equal(t, int64(1), usage.deltas[0].offerID)
	assert.Equal(t, 1, usage.deltas[0].applications)
	assert.True(t, usage.deltas[0].discount.Equal(d("3.00")))
	assert.Equal(t, 1, off.NumApplications)
}

func TestService_CommitUsageMultipleApplications(t *testing.T) {
	products := map[string]catalog.Product{
		"p1": {ID: "p1", Price: d("10.00"), Discountable: true, InStock: true},
	}
	off := &offer.Offer{
		ID:                    1,
		Name:                  "Free item, up to three",
		Type:                  offer.TypeSite,
		Status:                offer.StatusOpen,
		Exclusive:             true,
		MaxGlobalApplications: 3,
		Condition:             &offer.CountCondition{Range: everything(), Value: 1},
		Benefit:               &offer.MultibuyBenefit{Range: everything()},
	}
	usage := &mockOfferUsage{}
	svc := newService(products, []*offer.Offer{off}, usage)

	result, err := svc.PriceBasket(context.Background(), Request{
		Currency: "USD",
		Lines:    []LineItem{{ProductID: "p1", Quantity: 3}},
	})
	require.NoError(t, err)
	require.Equal(t, 1, result.Applications.Len())
	assert.Equal(t, 3, result.Applications.Get(1).Frequency)

	require.NoError(t, svc.CommitUsage(context.Background(), nil, result.Applications))

	// In-memory counters must move by the full pass frequency, not by one
	// per ledger entry, so the global cap takes effect in-process too.
	require.Len(t, usage.deltas, 1)
	assert.Equal(t, 3, usage.deltas[0].applications)
	assert.True(t, usage.deltas[0].discount.Equal(d("30.00")))
	assert.Equal(t, 3, off.NumApplications)
	assert.Equal(t, offer.StatusConsumed, off.Status)
}

func TestService_CommitUsageRecordsUserState(t *testing.T) {
	products := map[string]catalog.Product{
		"p1": {ID: "p1", Price: d("10.00"), Discountable: true, InStock: true},
	}
	voucherOffer := tenPercentOffer(7)
	voucherOffer.Type = offer.TypeVoucher
	voucherOffer.VoucherCode = "WELCOME10"
	voucherOffer.VoucherName = "Welcome discount"
	v := &voucher.Voucher{
		ID:     42,
		Name:   "Welcome discount",
		Code:   "WELCOME10",
		Usage:  voucher.OncePerCustomer,
		Offers: []*offer.Offer{voucherOffer},
	}

	repo := newMockVoucherRepo(v)
	store := &usageStore{}
	site := &fixedSiteOffers{}
	svc := NewService(
		&mockProducts{products: products},
		&offer.Applicator{Site: site, Vouchers: &voucher.Source{Repo: repo}},
		site,
		store,
		repo,
	)

	req := Request{
		Currency:      "USD",
		UserID:        "u1",
		Authenticated: true,
		Lines:         []LineItem{{ProductID: "p1", Quantity: 2}},
		VoucherCodes:  []string{"WELCOME10"},
	}

	result, err := svc.PriceBasket(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, result.Discount.Equal(d("2.00")))
	assert.Equal(t, 1, repo.additions[42], "attaching the code bumps the basket counter")

	u := &offer.User{ID: "u1", Authenticated: true}
	require.NoError(t, svc.CommitUsage(context.Background(), u, result.Applications))

	assert.Equal(t, 1, store.applied[7])
	assert.True(t, repo.redeemed[42]["u1"])
	assert.Equal(t, 1, repo.orders[42])
	assert.Equal(t, 1, v.NumOrders)
	assert.True(t, v.TotalDiscount.Equal(d("2.00")))

	// The same user pricing the same basket again finds the voucher spent.
	result, err = svc.PriceBasket(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, result.Discount.IsZero())
	assert.Equal(t, 0, result.Applications.Len())
}
