package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/openbasket/promo-engine/internal/domain/voucher"
)

const (
	voucherByCodeSQL = `SELECT id, name, code, usage, start_at, end_at,
		num_basket_additions, num_orders, total_discount
		FROM vouchers WHERE UPPER(code) = UPPER($1)`

	vouchersByCodesSQL = `SELECT id, name, code, usage, start_at, end_at,
		num_basket_additions, num_orders, total_discount
		FROM vouchers WHERE UPPER(code) = ANY($1)`

	voucherOfferIDsSQL = `SELECT voucher_id, offer_id FROM voucher_offers
		WHERE voucher_id = ANY($1) ORDER BY offer_id`

	addVoucherUsageSQL = `UPDATE vouchers SET
		num_orders = num_orders + $2,
		total_discount = total_discount + $3
		WHERE id = $1`

	incrementBasketAdditionsSQL = `UPDATE vouchers
		SET num_basket_additions = num_basket_additions + 1 WHERE id = $1`

	voucherRedemptionsSQL = `SELECT voucher_id FROM voucher_redemptions
		WHERE user_id = $1 AND voucher_id = ANY($2)`

	recordRedemptionSQL = `INSERT INTO voucher_redemptions (voucher_id, user_id)
		VALUES ($1, $2) ON CONFLICT DO NOTHING`
)

var _ voucher.Repository = (*VoucherRepository)(nil)

// VoucherRepository implements voucher.Repository backed by PostgreSQL. It
// hydrates each voucher's offers through the offer repository and stamps them
// with the voucher identity so ledger grouping works.
type VoucherRepository struct {
	pool   *pgxpool.Pool
	offers *OfferRepository
}

// NewVoucherRepository returns a VoucherRepository that uses the given pool.
func NewVoucherRepository(pool *pgxpool.Pool, offers *OfferRepository) *VoucherRepository {
	return &VoucherRepository{pool: pool, offers: offers}
}

// FindByCode looks up a voucher by its code (case-insensitive).
// Returns voucher.ErrNotFound when no matching voucher exists.
func (r *VoucherRepository) FindByCode(ctx context.Context, code string) (*voucher.Voucher, error) {
	rows, err := r.pool.Query(ctx, voucherByCodeSQL, code)
	if err != nil {
		return nil, fmt.Errorf("finding voucher by code %q: %w", code, err)
	}
	v, err := pgx.CollectExactlyOneRow(rows, scanVoucher)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, voucher.ErrNotFound
		}
		return nil, fmt.Errorf("finding voucher by code %q: %w", code, err)
	}
	if err := r.attachOffers(ctx, []*voucher.Voucher{v}); err != nil {
		return nil, err
	}
	return v, nil
}

// FindByCodes resolves several codes at once. Unknown codes are absent from
// the result, not errors.
func (r *VoucherRepository) FindByCodes(ctx context.Context, codes []string) ([]*voucher.Voucher, error) {
	upper := make([]string, len(codes))
	for i, c := range codes {
		upper[i] = strings.ToUpper(c)
	}
	rows, err := r.pool.Query(ctx, vouchersByCodesSQL, upper)
	if err != nil {
		return nil, fmt.Errorf("finding vouchers by codes: %w", err)
	}
	vouchers, err := pgx.CollectRows(rows, scanVoucher)
	if err != nil {
		return nil, fmt.Errorf("finding vouchers by codes: %w", err)
	}
	if err := r.attachOffers(ctx, vouchers); err != nil {
		return nil, err
	}
	return vouchers, nil
}

// AddUsageDelta atomically bumps a voucher's order count and discount total.
func (r *VoucherRepository) AddUsageDelta(ctx context.Context, voucherID int64, orders int, discount decimal.Decimal) error {
	if _, err := r.pool.Exec(ctx, addVoucherUsageSQL, voucherID, orders, discount); err != nil {
		return fmt.Errorf("adding usage delta for voucher %d: %w", voucherID, err)
	}
	return nil
}

// IncrementBasketAdditions atomically bumps the attach counter.
func (r *VoucherRepository) IncrementBasketAdditions(ctx context.Context, voucherID int64) error {
	if _, err := r.pool.Exec(ctx, incrementBasketAdditionsSQL, voucherID); err != nil {
		return fmt.Errorf("incrementing basket additions for voucher %d: %w", voucherID, err)
	}
	return nil
}

// RecordRedemption remembers that a user redeemed a voucher, for
// once-per-customer enforcement.
func (r *VoucherRepository) RecordRedemption(ctx context.Context, voucherID int64, userID string) error {
	if _, err := r.pool.Exec(ctx, recordRedemptionSQL, voucherID, userID); err != nil {
		return fmt.Errorf("recording redemption of voucher %d: %w", voucherID, err)
	}
	return nil
}

// redeemedSet is a preloaded voucher.UserRedemptions snapshot.
type redeemedSet map[int64]struct{}

func (s redeemedSet) HasRedeemed(voucherID int64, _ string) bool {
	_, ok := s[voucherID]
	return ok
}

// LoadRedemptions snapshots which of the given vouchers the user has already
// redeemed, so availability checks during the pass perform no I/O.
func (r *VoucherRepository) LoadRedemptions(ctx context.Context, userID string, voucherIDs []int64) (voucher.UserRedemptions, error) {
	set := make(redeemedSet)
	if userID == "" || len(voucherIDs) == 0 {
		return set, nil
	}
	rows, err := r.pool.Query(ctx, voucherRedemptionsSQL, userID, voucherIDs)
	if err != nil {
		return nil, fmt.Errorf("loading redemptions: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scanning redemption: %w", err)
		}
		set[id] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("loading redemptions: %w", err)
	}
	return set, nil
}

// attachOffers hydrates each voucher's offers and stamps voucher identity
// onto them.
func (r *VoucherRepository) attachOffers(ctx context.Context, vouchers []*voucher.Voucher) error {
	if len(vouchers) == 0 {
		return nil
	}
	ids := make([]int64, len(vouchers))
	byID := make(map[int64]*voucher.Voucher, len(vouchers))
	for i, v := range vouchers {
		ids[i] = v.ID
		byID[v.ID] = v
	}

	rows, err := r.pool.Query(ctx, voucherOfferIDsSQL, ids)
	if err != nil {
		return fmt.Errorf("loading voucher offers: %w", err)
	}
	defer rows.Close()

	var (
		offerIDs   []int64
		offerOwner = make(map[int64]int64)
	)
	for rows.Next() {
		var voucherID, offerID int64
		if err := rows.Scan(&voucherID, &offerID); err != nil {
			return fmt.Errorf("scanning voucher offer: %w", err)
		}
		offerIDs = append(offerIDs, offerID)
		offerOwner[offerID] = voucherID
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("loading voucher offers: %w", err)
	}
	if len(offerIDs) == 0 {
		return nil
	}

	offers, err := r.offers.GetByIDs(ctx, offerIDs)
	if err != nil {
		return err
	}
	for _, off := range offers {
		v := byID[offerOwner[off.ID]]
		if v == nil {
			continue
		}
		off.VoucherCode = v.Code
		off.VoucherName = v.Name
		v.Offers = append(v.Offers, off)
	}
	return nil
}

func scanVoucher(row pgx.CollectableRow) (*voucher.Voucher, error) {
	var (
		v     voucher.Voucher
		usage string
		endAt *time.Time
	)
	err := row.Scan(
		&v.ID, &v.Name, &v.Code, &usage, &v.Start, &endAt,
		&v.NumBasketAdditions, &v.NumOrders, &v.TotalDiscount,
	)
	v.Usage = voucher.Usage(usage)
	if endAt != nil {
		v.End = *endAt
	}
	return &v, err
}
