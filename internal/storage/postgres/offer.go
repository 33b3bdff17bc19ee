package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/openbasket/promo-engine/internal/domain/catalog"
	"github.com/openbasket/promo-engine/internal/domain/offer"
)

const (
	activeSiteOffersSQL = `SELECT id, name, offer_type, status, priority, exclusive,
		condition_type, condition_range_id, condition_value,
		benefit_type, benefit_range_id, benefit_value, benefit_max_affected,
		max_global_applications, max_user_applications, max_basket_applications,
		max_discount, num_applications, total_discount, start_at, end_at
		FROM offers
		WHERE offer_type = 'site' AND status = 'open'
		  AND (start_at IS NULL OR start_at <= $1)
		  AND (end_at IS NULL OR end_at >= $1)
		ORDER BY priority DESC, id`

	offersByIDsSQL = `SELECT id, name, offer_type, status, priority, exclusive,
		condition_type, condition_range_id, condition_value,
		benefit_type, benefit_range_id, benefit_value, benefit_max_affected,
		max_global_applications, max_user_applications, max_basket_applications,
		max_discount, num_applications, total_discount, start_at, end_at
		FROM offers WHERE id = ANY($1)`

	// Usage counters are bumped with atomic deltas; the status flip to
	// consumed happens in the same statement so a racing pass cannot see an
	// exhausted offer as open.
	addOfferUsageSQL = `UPDATE offers SET
		num_applications = num_applications + $2,
		total_discount = total_discount + $3,
		status = CASE
			WHEN max_global_applications > 0 AND num_applications + $2 >= max_global_applications THEN 'consumed'
			WHEN max_discount > 0 AND total_discount + $3 >= max_discount THEN 'consumed'
			ELSE status
		END
		WHERE id = $1`

	addUserApplicationsSQL = `INSERT INTO offer_user_applications (offer_id, user_id, applications)
		VALUES ($1, $2, $3)
		ON CONFLICT (offer_id, user_id) DO UPDATE
		SET applications = offer_user_applications.applications + EXCLUDED.applications`

	userApplicationsSQL = `SELECT offer_id, applications
		FROM offer_user_applications WHERE user_id = $1`

	rangesByIDsSQL         = `SELECT id, name, includes_all FROM ranges WHERE id = ANY($1)`
	rangeProductsByIDsSQL  = `SELECT range_id, product_id, excluded FROM range_products WHERE range_id = ANY($1)`
	rangeCategoriesSQL     = `SELECT range_id, category_id FROM range_categories WHERE range_id = ANY($1)`
	rangeClassesSQL        = `SELECT range_id, class_id FROM range_classes WHERE range_id = ANY($1)`
)

var _ offer.SiteOffers = (*OfferRepository)(nil)

// OfferRepository loads offers, hydrates their conditions and benefits, and
// applies usage counter deltas.
type OfferRepository struct {
	pool *pgxpool.Pool
}

// NewOfferRepository returns an OfferRepository that uses the given pool.
func NewOfferRepository(pool *pgxpool.Pool) *OfferRepository {
	return &OfferRepository{pool: pool}
}

// offerRow is the flat database shape of an offer before hydration.
type offerRow struct {
	id                 int64
	name               string
	offerType          string
	status             string
	priority           int32
	exclusive          bool
	conditionType      string
	conditionRangeID   *int64
	conditionValue     decimal.Decimal
	benefitType        string
	benefitRangeID     *int64
	benefitValue       decimal.Decimal
	benefitMaxAffected int32
	maxGlobal          int32
	maxUser            int32
	maxBasket          int32
	maxDiscount        decimal.Decimal
	numApplications    int32
	totalDiscount      decimal.Decimal
	startAt            *time.Time
	endAt              *time.Time
}

// ActiveSiteOffers returns hydrated site offers active at now, priority
// descending.
func (r *OfferRepository) ActiveSiteOffers(ctx context.Context, now time.Time) ([]*offer.Offer, error) {
	rows, err := r.pool.Query(ctx, activeSiteOffersSQL, now)
	if err != nil {
		return nil, fmt.Errorf("querying site offers: %w", err)
	}
	raw, err := pgx.CollectRows(rows, scanOfferRow)
	if err != nil {
		return nil, fmt.Errorf("querying site offers: %w", err)
	}
	return r.hydrate(ctx, raw)
}

// GetByIDs loads and hydrates the given offers.
func (r *OfferRepository) GetByIDs(ctx context.Context, ids []int64) ([]*offer.Offer, error) {
	rows, err := r.pool.Query(ctx, offersByIDsSQL, ids)
	if err != nil {
		return nil, fmt.Errorf("querying offers by ids: %w", err)
	}
	raw, err := pgx.CollectRows(rows, scanOfferRow)
	if err != nil {
		return nil, fmt.Errorf("querying offers by ids: %w", err)
	}
	return r.hydrate(ctx, raw)
}

// AddUsageDelta atomically folds one pass's applications into the offer
// counters. It implements pricing.OfferUsage.
func (r *OfferRepository) AddUsageDelta(ctx context.Context, offerID int64, applications int, discount decimal.Decimal) error {
	if _, err := r.pool.Exec(ctx, addOfferUsageSQL, offerID, applications, discount); err != nil {
		return fmt.Errorf("adding usage delta for offer %d: %w", offerID, err)
	}
	return nil
}

// AddUserApplications records that a user had an offer applied on a placed
// order.
func (r *OfferRepository) AddUserApplications(ctx context.Context, offerID int64, userID string, applications int) error {
	if _, err := r.pool.Exec(ctx, addUserApplicationsSQL, offerID, userID, applications); err != nil {
		return fmt.Errorf("adding user applications for offer %d: %w", offerID, err)
	}
	return nil
}

// userUsage is a preloaded offer.UserUsage snapshot for one user.
type userUsage struct {
	userID  string
	byOffer map[int64]int
}

func (u *userUsage) ApplicationsBy(offerID int64, userID string) int {
	if userID != u.userID {
		return 0
	}
	return u.byOffer[offerID]
}

// LoadUserUsage snapshots a user's past offer applications so the pricing
// pass itself performs no I/O.
func (r *OfferRepository) LoadUserUsage(ctx context.Context, userID string) (offer.UserUsage, error) {
	if userID == "" {
		return offer.NoUsage{}, nil
	}
	rows, err := r.pool.Query(ctx, userApplicationsSQL, userID)
	if err != nil {
		return nil, fmt.Errorf("loading user applications: %w", err)
	}
	defer rows.Close()

	usage := &userUsage{userID: userID, byOffer: make(map[int64]int)}
	for rows.Next() {
		var (
			offerID      int64
			applications int32
		)
		if err := rows.Scan(&offerID, &applications); err != nil {
			return nil, fmt.Errorf("scanning user applications: %w", err)
		}
		usage.byOffer[offerID] = int(applications)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("loading user applications: %w", err)
	}
	return usage, nil
}

// hydrate resolves range references and builds the polymorphic condition and
// benefit values. Unknown types are configuration errors.
func (r *OfferRepository) hydrate(ctx context.Context, raw []*offerRow) ([]*offer.Offer, error) {
	rangeIDs := make(map[int64]struct{})
	for _, row := range raw {
		if row.conditionRangeID != nil {
			rangeIDs[*row.conditionRangeID] = struct{}{}
		}
		if row.benefitRangeID != nil {
			rangeIDs[*row.benefitRangeID] = struct{}{}
		}
	}
	ranges, err := r.loadRanges(ctx, rangeIDs)
	if err != nil {
		return nil, err
	}

	offers := make([]*offer.Offer, 0, len(raw))
	for _, row := range raw {
		off, err := buildOffer(row, ranges)
		if err != nil {
			return nil, err
		}
		offers = append(offers, off)
	}
	return offers, nil
}

func buildOffer(row *offerRow, ranges map[int64]*catalog.Range) (*offer.Offer, error) {
	cond, err := buildCondition(row, ranges)
	if err != nil {
		return nil, err
	}
	ben, err := buildBenefit(row, ranges)
	if err != nil {
		return nil, err
	}
	return &offer.Offer{
		ID:                    row.id,
		Name:                  row.name,
		Type:                  offer.Type(row.offerType),
		Status:                offer.Status(row.status),
		Priority:              int(row.priority),
		Exclusive:             row.exclusive,
		Condition:             cond,
		Benefit:               ben,
		MaxGlobalApplications: int(row.maxGlobal),
		MaxUserApplications:   int(row.maxUser),
		MaxBasketApplications: int(row.maxBasket),
		MaxDiscount:           row.maxDiscount,
		NumApplications:       int(row.numApplications),
		TotalDiscount:         row.totalDiscount,
		Start:                 row.startAt,
		End:                   row.endAt,
	}, nil
}

func buildCondition(row *offerRow, ranges map[int64]*catalog.Range) (offer.Condition, error) {
	var rng *catalog.Range
	if row.conditionRangeID != nil {
		rng = ranges[*row.conditionRangeID]
	}
	if rng == nil {
		return nil, errors.Wrapf(offer.ErrMisconfigured, "offer %d condition has no range", row.id)
	}
	switch row.conditionType {
	case "count":
		return &offer.CountCondition{Range: rng, Value: int(row.conditionValue.IntPart())}, nil
	case "value":
		return &offer.ValueCondition{Range: rng, Value: row.conditionValue}, nil
	case "coverage":
		return &offer.CoverageCondition{Range: rng, Value: int(row.conditionValue.IntPart())}, nil
	default:
		return nil, errors.Wrapf(offer.ErrMisconfigured, "offer %d has unknown condition type %q", row.id, row.conditionType)
	}
}

func buildBenefit(row *offerRow, ranges map[int64]*catalog.Range) (offer.Benefit, error) {
	var rng *catalog.Range
	if row.benefitRangeID != nil {
		rng = ranges[*row.benefitRangeID]
	}
	switch row.benefitType {
	case "percentage":
		return &offer.PercentageBenefit{Range: rng, Value: row.benefitValue, MaxAffectedItems: int(row.benefitMaxAffected)}, nil
	case "absolute":
		return &offer.AbsoluteBenefit{Range: rng, Value: row.benefitValue, MaxAffectedItems: int(row.benefitMaxAffected)}, nil
	case "multibuy":
		return &offer.MultibuyBenefit{Range: rng}, nil
	case "fixed_price":
		return &offer.FixedPriceBenefit{Value: row.benefitValue}, nil
	case "shipping_percentage":
		return &offer.ShippingPercentageBenefit{Value: row.benefitValue}, nil
	case "shipping_absolute":
		return &offer.ShippingAbsoluteBenefit{Value: row.benefitValue}, nil
	case "shipping_fixed_price":
		return &offer.ShippingFixedPriceBenefit{Value: row.benefitValue}, nil
	default:
		return nil, errors.Wrapf(offer.ErrMisconfigured, "offer %d has unknown benefit type %q", row.id, row.benefitType)
	}
}

func (r *OfferRepository) loadRanges(ctx context.Context, idSet map[int64]struct{}) (map[int64]*catalog.Range, error) {
	if len(idSet) == 0 {
		return nil, nil
	}
	ids := make([]int64, 0, len(idSet))
	for id := range idSet {
		ids = append(ids, id)
	}

	ranges := make(map[int64]*catalog.Range, len(ids))
	rows, err := r.pool.Query(ctx, rangesByIDsSQL, ids)
	if err != nil {
		return nil, fmt.Errorf("loading ranges: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			id          int64
			name        string
			includesAll bool
		)
		if err := rows.Scan(&id, &name, &includesAll); err != nil {
			return nil, fmt.Errorf("scanning range: %w", err)
		}
		ranges[id] = &catalog.Range{ID: id, Name: name, IncludesAll: includesAll}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("loading ranges: %w", err)
	}

	if err := r.loadRangeMembers(ctx, ids, ranges); err != nil {
		return nil, err
	}
	return ranges, nil
}

func (r *OfferRepository) loadRangeMembers(ctx context.Context, ids []int64, ranges map[int64]*catalog.Range) error {
	rows, err := r.pool.Query(ctx, rangeProductsByIDsSQL, ids)
	if err != nil {
		return fmt.Errorf("loading range products: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			rangeID   int64
			productID string
			excluded  bool
		)
		if err := rows.Scan(&rangeID, &productID, &excluded); err != nil {
			return fmt.Errorf("scanning range product: %w", err)
		}
		rng := ranges[rangeID]
		if rng == nil {
			continue
		}
		if excluded {
			if rng.ExcludedIDs == nil {
				rng.ExcludedIDs = make(map[string]struct{})
			}
			rng.ExcludedIDs[productID] = struct{}{}
		} else {
			if rng.ProductIDs == nil {
				rng.ProductIDs = make(map[string]struct{})
			}
			rng.ProductIDs[productID] = struct{}{}
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("loading range products: %w", err)
	}

	catRows, err := r.pool.Query(ctx, rangeCategoriesSQL, ids)
	if err != nil {
		return fmt.Errorf("loading range categories: %w", err)
	}
	defer catRows.Close()
	for catRows.Next() {
		var (
			rangeID    int64
			categoryID string
		)
		if err := catRows.Scan(&rangeID, &categoryID); err != nil {
			return fmt.Errorf("scanning range category: %w", err)
		}
		if rng := ranges[rangeID]; rng != nil {
			if rng.CategoryIDs == nil {
				rng.CategoryIDs = make(map[string]struct{})
			}
			rng.CategoryIDs[categoryID] = struct{}{}
		}
	}
	if err := catRows.Err(); err != nil {
		return fmt.Errorf("loading range categories: %w", err)
	}

	classRows, err := r.pool.Query(ctx, rangeClassesSQL, ids)
	if err != nil {
		return fmt.Errorf("loading range classes: %w", err)
	}
	defer classRows.Close()
	for classRows.Next() {
		var (
			rangeID int64
			classID string
		)
		if err := classRows.Scan(&rangeID, &classID); err != nil {
			return fmt.Errorf("scanning range class: %w", err)
		}
		if rng := ranges[rangeID]; rng != nil {
			if rng.ClassIDs == nil {
				rng.ClassIDs = make(map[string]struct{})
			}
			rng.ClassIDs[classID] = struct{}{}
		}
	}
	if err := classRows.Err(); err != nil {
		return fmt.Errorf("loading range classes: %w", err)
	}
	return nil
}

func scanOfferRow(row pgx.CollectableRow) (*offerRow, error) {
	var o offerRow
	err := row.Scan(
		&o.id, &o.name, &o.offerType, &o.status, &o.priority, &o.exclusive,
		&o.conditionType, &o.conditionRangeID, &o.conditionValue,
		&o.benefitType, &o.benefitRangeID, &o.benefitValue, &o.benefitMaxAffected,
		&o.maxGlobal, &o.maxUser, &o.maxBasket,
		&o.maxDiscount, &o.numApplications, &o.totalDiscount, &o.startAt, &o.endAt,
	)
	return &o, err
}
