package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/openbasket/promo-engine/internal/domain/offer"
	"github.com/openbasket/promo-engine/internal/domain/pricing"
)

type priceRequest struct {
	Currency     string             `json:"currency"`
	UserID       string             `json:"userId,omitempty"`
	TaxInclusive bool               `json:"taxInclusive,omitempty"`
	Items        []priceRequestItem `json:"items"`
	CouponCodes  []string           `json:"couponCodes,omitempty"`
}

type priceRequestItem struct {
	ProductID string `json:"productId"`
	Quantity  int    `json:"quantity"`
}

type priceResponse struct {
	BasketID  string                    `json:"basketId"`
	Subtotal  decimal.Decimal           `json:"subtotal"`
	Discount  decimal.Decimal           `json:"discount"`
	Total     decimal.Decimal           `json:"total"`
	Lines     []priceLineResponse       `json:"lines"`
	Discounts []appliedDiscountResponse `json:"discounts"`
	Upsells   []upsellResponse          `json:"upsells,omitempty"`
}

type priceLineResponse struct {
	ProductID string          `json:"productId"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unitPrice"`
	Discount  decimal.Decimal `json:"discount"`
	Total     decimal.Decimal `json:"total"`
}

type appliedDiscountResponse struct {
	Offer       string          `json:"offer"`
	Voucher     string          `json:"voucher,omitempty"`
	Frequency   int             `json:"frequency"`
	Amount      decimal.Decimal `json:"amount"`
	Shipping    bool            `json:"shipping,omitempty"`
	Description string          `json:"description,omitempty"`
}

type upsellResponse struct {
	Offer string `json:"offer"`
}

// decodePriceRequest reads and validates the shared price/checkout body.
// On failure it writes the error response and reports false.
func (h *Handler) decodePriceRequest(w http.ResponseWriter, r *http.Request) (pricing.Request, bool) {
	var req priceRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return pricing.Request{}, false
	}

	items := make([]pricing.LineItem, 0, len(req.Items))
	for _, it := range req.Items {
		items = append(items, pricing.LineItem{ProductID: it.ProductID, Quantity: it.Quantity})
	}
	currency := req.Currency
	if currency == "" {
		currency = "USD"
	}

	return pricing.Request{
		Currency:      currency,
		UserID:        req.UserID,
		Authenticated: req.UserID != "",
		TaxInclusive:  req.TaxInclusive,
		Lines:         items,
		VoucherCodes:  req.CouponCodes,
	}, true
}

// PriceBasket handles POST /api/basket/price: it prices the submitted lines
// with all applicable offers and vouchers and returns the discount breakdown.
func (h *Handler) PriceBasket(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decodePriceRequest(w, r)
	if !ok {
		return
	}

	result, err := h.pricing.PriceBasket(r.Context(), req)
	if err != nil {
		h.writePricingError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, buildPriceResponse(result))
}

// Checkout handles POST /api/basket/checkout: it prices the basket one final
// time and commits offer and voucher usage counters for the placed order.
func (h *Handler) Checkout(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decodePriceRequest(w, r)
	if !ok {
		return
	}

	result, err := h.pricing.PriceBasket(r.Context(), req)
	if err != nil {
		h.writePricingError(w, r, err)
		return
	}

	u := &offer.User{ID: req.UserID, Authenticated: req.Authenticated}
	if err := h.pricing.CommitUsage(r.Context(), u, result.Applications); err != nil {
		zctx.From(r.Context()).Error("Commit usage", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to record order discounts")
		return
	}

	writeJSON(w, http.StatusOK, buildPriceResponse(result))
}

// writePricingError maps domain errors to HTTP status codes. Misconfigured
// offers are server-side faults; everything else the client can fix.
func (h *Handler) writePricingError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		notFound    *pricing.ProductNotFoundError
		badQuantity *pricing.InvalidQuantityError
	)
	switch {
	case errors.Is(err, pricing.ErrEmptyLines):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.As(err, &badQuantity):
		writeError(w, http.StatusBadRequest, badQuantity.Error())
	case errors.As(err, &notFound):
		writeError(w, http.StatusNotFound, notFound.Error())
	case errors.Is(err, offer.ErrMisconfigured):
		zctx.From(r.Context()).Error("Misconfigured offer", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "offer configuration error")
	default:
		zctx.From(r.Context()).Error("Price basket", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to price basket")
	}
}

func buildPriceResponse(result *pricing.Result) priceResponse {
	lines := make([]priceLineResponse, 0, len(result.Lines))
	for _, l := range result.Lines {
		lines = append(lines, priceLineResponse{
			ProductID: l.ProductID,
			Quantity:  l.Quantity,
			UnitPrice: l.UnitPrice,
			Discount:  l.Discount,
			Total:     l.Total,
		})
	}

	discounts := make([]appliedDiscountResponse, 0, result.Applications.Len())
	for _, app := range result.Applications.All() {
		d := appliedDiscountResponse{
			Offer:     app.Offer.Name,
			Voucher:   app.Offer.VoucherCode,
			Frequency: app.Frequency,
			Amount:    app.Discount,
		}
		if _, ok := app.Result.(offer.ShippingDiscount); ok {
			d.Shipping = true
		}
		if action, ok := app.Result.(offer.PostOrderAction); ok {
			d.Description = action.Description
		}
		discounts = append(discounts, d)
	}

	upsells := make([]upsellResponse, 0, len(result.Upsells))
	for _, u := range result.Upsells {
		upsells = append(upsells, upsellResponse{Offer: u.OfferName})
	}

	return priceResponse{
		BasketID:  result.BasketID,
		Subtotal:  result.Subtotal,
		Discount:  result.Discount,
		Total:     result.Total,
		Lines:     lines,
		Discounts: discounts,
		Upsells:   upsells,
	}
}
