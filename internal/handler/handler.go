// Package handler exposes the pricing engine over a small JSON HTTP API.
package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/openbasket/promo-engine/internal/domain/catalog"
	"github.com/openbasket/promo-engine/internal/domain/offer"
	"github.com/openbasket/promo-engine/internal/domain/pricing"
	"github.com/openbasket/promo-engine/internal/domain/voucher"
)

// maxRequestBody caps JSON request bodies at 1 MiB.
const maxRequestBody = 1 << 20

// Handler serves the HTTP API.
type Handler struct {
	products catalog.Repository
	pricing  *pricing.Service
	offers   offer.SiteOffers
	vouchers voucher.Repository
	now      func() time.Time
}

// NewHandler creates a Handler with its dependencies.
func NewHandler(products catalog.Repository, svc *pricing.Service, offers offer.SiteOffers, vouchers voucher.Repository) *Handler {
	return &Handler{
		products: products,
		pricing:  svc,
		offers:   offers,
		vouchers: vouchers,
		now:      time.Now,
	}
}

// Register mounts the API routes on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/products", h.ListProducts)
	mux.HandleFunc("GET /api/offers", h.ListOffers)
	mux.HandleFunc("GET /api/vouchers/{code}", h.GetVoucher)
	mux.HandleFunc("POST /api/basket/price", h.PriceBasket)
	mux.HandleFunc("POST /api/basket/checkout", h.Checkout)
}

type errorResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Code: status, Message: msg})
}

type productResponse struct {
	ID           string          `json:"id"`
	Name         string          `json:"name"`
	Category     string          `json:"category"`
	Price        decimal.Decimal `json:"price"`
	Discountable bool            `json:"discountable"`
	InStock      bool            `json:"inStock"`
}

// ListProducts handles GET /api/products.
func (h *Handler) ListProducts(w http.ResponseWriter, r *http.Request) {
	products, err := h.products.List(r.Context())
	if err != nil {
		zctx.From(r.Context()).Error("List products", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list products")
		return
	}

	resp := make([]productResponse, 0, len(products))
	for _, p := range products {
		resp = append(resp, productResponse{
			ID:           p.ID,
			Name:         p.Name,
			Category:     p.CategoryID,
			Price:        p.Price,
			Discountable: p.Discountable,
			InStock:      p.InStock,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

type offerResponse struct {
	ID        int64  `json:"id"`
	Name      string `json:"name"`
	Type      string `json:"type"`
	Status    string `json:"status"`
	Priority  int    `json:"priority"`
	Exclusive bool   `json:"exclusive"`
}

// ListOffers handles GET /api/offers, returning site offers currently inside
// their active window.
func (h *Handler) ListOffers(w http.ResponseWriter, r *http.Request) {
	offers, err := h.offers.ActiveSiteOffers(r.Context(), h.now())
	if err != nil {
		zctx.From(r.Context()).Error("List offers", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list offers")
		return
	}

	resp := make([]offerResponse, 0, len(offers))
	for _, off := range offers {
		resp = append(resp, offerResponse{
			ID:        off.ID,
			Name:      off.Name,
			Type:      string(off.Type),
			Status:    string(off.Status),
			Priority:  off.Priority,
			Exclusive: off.Exclusive,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

type voucherResponse struct {
	Code      string `json:"code"`
	Name      string `json:"name"`
	Active    bool   `json:"active"`
	Available bool   `json:"available"`
	Reason    string `json:"reason,omitempty"`
}

// GetVoucher handles GET /api/vouchers/{code}. Availability is evaluated for
// an anonymous user; signed-in checks happen during pricing.
func (h *Handler) GetVoucher(w http.ResponseWriter, r *http.Request) {
	code := r.PathValue("code")

	v, err := h.vouchers.FindByCode(r.Context(), code)
	if err != nil {
		if errors.Is(err, voucher.ErrNotFound) {
			writeError(w, http.StatusNotFound, "voucher not found")
			return
		}
		zctx.From(r.Context()).Error("Get voucher", zap.String("code", code), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to fetch voucher")
		return
	}

	available, reason := v.IsAvailableToUser(nil, nil)
	writeJSON(w, http.StatusOK, voucherResponse{
		Code:      v.Code,
		Name:      v.Name,
		Active:    v.IsActive(h.now()),
		Available: available,
		Reason:    reason,
	})
}
