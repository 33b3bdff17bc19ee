package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openbasket/promo-engine/internal/domain/catalog"
	"github.com/openbasket/promo-engine/internal/domain/offer"
	"github.com/openbasket/promo-engine/internal/domain/pricing"
	"github.com/openbasket/promo-engine/internal/domain/voucher"
)

type stubProducts struct {
	products []catalog.Product
}

func (s *stubProducts) List(context.Context) ([]catalog.Product, error) {
	return s.products, nil
}

func (s *stubProducts) GetByIDs(_ context.Context, ids []string) ([]catalog.Product, error) {
	var out []catalog.Product
	for _, p := range s.products {
		for _, id := range ids {
			if p.ID == id {
				out = append(out, p)
				break
			}
		}
	}
	return out, nil
}

type stubSiteOffers struct {
	offers []*offer.Offer
}

func (s *stubSiteOffers) ActiveSiteOffers(context.Context, time.Time) ([]*offer.Offer, error) {
	return s.offers, nil
}

type stubVouchers struct {
	byCode map[string]*voucher.Voucher
}

func (s *stubVouchers) FindByCode(_ context.Context, code string) (*voucher.Voucher, error) {
	v, ok := s.byCode[strings.ToUpper(code)]
	if !ok {
		return nil, voucher.ErrNotFound
	}
	return v, nil
}

func (s *stubVouchers) FindByCodes(ctx context.Context, codes []string) ([]*voucher.Voucher, error) {
	var out []*voucher.Voucher
	for _, c := range codes {
		if v, err := s.FindByCode(ctx, c); err == nil {
			out = append(out, v)
		}
	}
	return out, nil
}

func (s *stubVouchers) AddUsageDelta(context.Context, int64, int, decimal.Decimal) error {
	return nil
}

func (s *stubVouchers) IncrementBasketAdditions(context.Context, int64) error {
	return nil
}

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func allProducts() *catalog.Range {
	return catalog.NewRange(1, "everything", true, nil, nil, nil, nil)
}

func tenPercentOffer() *offer.Offer {
	rng := allProducts()
	return &offer.Offer{
		ID:        1,
		Name:      "10% off everything",
		Type:      offer.TypeSite,
		Status:    offer.StatusOpen,
		Exclusive: true,
		Condition: &offer.CountCondition{Range: rng, Value: 1},
		Benefit:   &offer.PercentageBenefit{Range: rng, Value: d("10")},
	}
}

func newTestHandler(products *stubProducts, site *stubSiteOffers, vouchers *stubVouchers) *Handler {
	applicator := &offer.Applicator{Site: site}
	svc := pricing.NewService(products, applicator, site, nil, vouchers)
	h := NewHandler(products, svc, site, vouchers)
	h.now = func() time.Time { return time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC) }
	return h
}

func serve(h *Handler, req *http.Request) *httptest.ResponseRecorder {
	mux := http.NewServeMux()
	h.Register(mux)
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)
	return w
}

func TestListProducts(t *testing.T) {
	products := &stubProducts{products: []catalog.Product{
		{ID: "p1", Name: "Waffle", CategoryID: "breakfast", Price: d("10.00"), Discountable: true, InStock: true},
		{ID: "p2", Name: "Coffee", CategoryID: "drinks", Price: d("4.50"), Discountable: true, InStock: true},
	}}
	h := newTestHandler(products, &stubSiteOffers{}, &stubVouchers{})

	w := serve(h, httptest.NewRequest(http.MethodGet, "/api/products", nil))

	require.Equal(t, http.StatusOK, w.Code)
	var resp []productResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	require.Len(t, resp, 2)
	assert.Equal(t, "Waffle", resp[0].Name)
	assert.True(t, resp[0].Price.Equal(d("10.00")))
}

func TestListOffers(t *testing.T) {
	h := newTestHandler(&stubProducts{}, &stubSiteOffers{offers: []*offer.Offer{tenPercentOffer()}}, &stubVouchers{})

	w := serve(h, httptest.NewRequest(http.MethodGet, "/api/offers", nil))

	require.Equal(t, http.StatusOK, w.Code)
	var resp []offerResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	require.Len(t, resp, 1)
	assert.Equal(t, "10% off everything", resp[0].Name)
	assert.Equal(t, "site", resp[0].Type)
	assert.True(t, resp[0].Exclusive)
}

func TestGetVoucher(t *testing.T) {
	vouchers := &stubVouchers{byCode: map[string]*voucher.Voucher{
		"SUMMER10": {
			ID:    1,
			Name:  "Summer sale",
			Code:  "SUMMER10",
			Usage: voucher.MultiUse,
			Start: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
		},
	}}
	h := newTestHandler(&stubProducts{}, &stubSiteOffers{}, vouchers)

	t.Run("found", func(t *testing.T) {
		w := serve(h, httptest.NewRequest(http.MethodGet, "/api/vouchers/SUMMER10", nil))

		require.Equal(t, http.StatusOK, w.Code)
		var resp voucherResponse
		require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
		assert.Equal(t, "SUMMER10", resp.Code)
		assert.True(t, resp.Active)
		assert.True(t, resp.Available)
	})

	t.Run("not found", func(t *testing.T) {
		w := serve(h, httptest.NewRequest(http.MethodGet, "/api/vouchers/NOPE", nil))
		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}

func TestPriceBasket(t *testing.T) {
	products := &stubProducts{products: []catalog.Product{
		{ID: "p1", Name: "Waffle", Price: d("10.00"), Discountable: true, InStock: true},
	}}
	site := &stubSiteOffers{offers: []*offer.Offer{tenPercentOffer()}}
	h := newTestHandler(products, site, &stubVouchers{})

	body := `{"items":[{"productId":"p1","quantity":3}]}`
	w := serve(h, httptest.NewRequest(http.MethodPost, "/api/basket/price", strings.NewReader(body)))

	require.Equal(t, http.StatusOK, w.Code)
	var resp priceResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.True(t, resp.Subtotal.Equal(d("30.00")), "subtotal %s", resp.Subtotal)
	assert.True(t, resp.Discount.Equal(d("3.00")), "discount %s", resp.Discount)
	assert.True(t, resp.Total.Equal(d("27.00")), "total %s", resp.Total)
	require.Len(t, resp.Discounts, 1)
	assert.Equal(t, "10% off everything", resp.Discounts[0].Offer)
	assert.Equal(t, 1, resp.Discounts[0].Frequency)
}

type stubOfferUsage struct {
	applications int
	discount     decimal.Decimal
}

func (s *stubOfferUsage) AddUsageDelta(_ context.Context, _ int64, applications int, discount decimal.Decimal) error {
	s.applications += applications
	s.discount = s.discount.Add(discount)
	return nil
}

func TestCheckout(t *testing.T) {
	products := &stubProducts{products: []catalog.Product{
		{ID: "p1", Name: "Waffle", Price: d("10.00"), Discountable: true, InStock: true},
	}}
	off := tenPercentOffer()
	site := &stubSiteOffers{offers: []*offer.Offer{off}}
	usage := &stubOfferUsage{}
	svc := pricing.NewService(products, &offer.Applicator{Site: site}, site, usage, &stubVouchers{})
	h := NewHandler(products, svc, site, &stubVouchers{})

	body := `{"userId":"u1","items":[{"productId":"p1","quantity":3}]}`
	w := serve(h, httptest.NewRequest(http.MethodPost, "/api/basket/checkout", strings.NewReader(body)))

	require.Equal(t, http.StatusOK, w.Code)
	var resp priceResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.True(t, resp.Total.Equal(d("27.00")), "total %s", resp.Total)

	// Checkout commits the pass: counters move both in storage and in memory.
	assert.Equal(t, 1, usage.applications)
	assert.True(t, usage.discount.Equal(d("3.00")))
	assert.Equal(t, 1, off.NumApplications)
	assert.True(t, off.TotalDiscount.Equal(d("3.00")))
}

func TestPriceBasket_Errors(t *testing.T) {
	products := &stubProducts{products: []catalog.Product{
		{ID: "p1", Name: "Waffle", Price: d("10.00"), Discountable: true, InStock: true},
	}}
	h := newTestHandler(products, &stubSiteOffers{}, &stubVouchers{})

	tests := []struct {
		name string
		body string
		want int
	}{
		{"malformed json", `{`, http.StatusBadRequest},
		{"unknown field", `{"bogus":true}`, http.StatusBadRequest},
		{"empty lines", `{"items":[]}`, http.StatusBadRequest},
		{"zero quantity", `{"items":[{"productId":"p1","quantity":0}]}`, http.StatusBadRequest},
		{"unknown product", `{"items":[{"productId":"ghost","quantity":1}]}`, http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := serve(h, httptest.NewRequest(http.MethodPost, "/api/basket/price", strings.NewReader(tt.body)))
			assert.Equal(t, tt.want, w.Code)
		})
	}
}

func TestPriceBasket_MisconfiguredOffer(t *testing.T) {
	products := &stubProducts{products: []catalog.Product{
		{ID: "p1", Name: "Waffle", Price: d("10.00"), Discountable: true, InStock: true},
	}}
	broken := tenPercentOffer()
	broken.Benefit = &offer.PercentageBenefit{Value: d("10")} // no range
	h := newTestHandler(products, &stubSiteOffers{offers: []*offer.Offer{broken}}, &stubVouchers{})

	body := `{"items":[{"productId":"p1","quantity":1}]}`
	w := serve(h, httptest.NewRequest(http.MethodPost, "/api/basket/price", strings.NewReader(body)))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	var resp errorResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.Equal(t, "offer configuration error", resp.Message)
}
