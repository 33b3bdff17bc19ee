// Command seed-db loads a demo catalogue and a starter set of offers and
// vouchers, for local development and integration testing.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"log/slog"
	"os"
	"os/signal"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/openbasket/promo-engine/internal/storage/postgres"
)

type productJSON struct {
	ID           string          `json:"id"`
	Name         string          `json:"name"`
	Category     string          `json:"category"`
	Class        string          `json:"class"`
	Price        decimal.Decimal `json:"price"`
	Discountable *bool           `json:"discountable,omitempty"`
	InStock      *bool           `json:"inStock,omitempty"`
}

func main() {
	var (
		databaseURL  string
		productsFile string
	)

	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&productsFile, "products-file", "db/seed/products.json", "path to products JSON file")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, databaseURL, productsFile); err != nil {
		slog.Error("seed failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("seed completed successfully")
}

func run(ctx context.Context, databaseURL, productsFile string) error {
	slog.Info("connecting to database")

	pool, err := postgres.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	slog.Info("running migrations")

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	if err := seedProducts(ctx, pool, productsFile); err != nil {
		return errors.Wrap(err, "seed products")
	}

	if err := seedOffers(ctx, pool); err != nil {
		return errors.Wrap(err, "seed offers")
	}

	return nil
}

func seedProducts(ctx context.Context, pool *pgxpool.Pool, productsFile string) error {
	slog.Info("reading products file", slog.String("path", productsFile))

	data, err := os.ReadFile(productsFile)
	if err != nil {
		return errors.Wrap(err, "read products file")
	}

	var products []productJSON
	if err := json.Unmarshal(data, &products); err != nil {
		return errors.Wrap(err, "parse products JSON")
	}

	slog.Info("upserting products", slog.Int("count", len(products)))

	for _, p := range products {
		discountable := p.Discountable == nil || *p.Discountable
		inStock := p.InStock == nil || *p.InStock

		if _, err := pool.Exec(ctx,
			`INSERT INTO products (id, name, category_id, class_id, price, discountable, in_stock)
			 VALUES ($1, $2, $3, $4, $5, $6, $7)
			 ON CONFLICT (id) DO UPDATE SET
				name = EXCLUDED.name,
				category_id = EXCLUDED.category_id,
				class_id = EXCLUDED.class_id,
				price = EXCLUDED.price,
				discountable = EXCLUDED.discountable,
				in_stock = EXCLUDED.in_stock`,
			p.ID, p.Name, p.Category, p.Class, p.Price, discountable, inStock,
		); err != nil {
			return errors.Wrapf(err, "upsert product %s", p.ID)
		}

		slog.Info("upserted product", slog.String("id", p.ID), slog.String("name", p.Name))
	}

	return nil
}

// seedOffers creates an all-products range, a site-wide percentage offer, and
// a demo voucher carrying a bigger discount.
func seedOffers(ctx context.Context, pool *pgxpool.Pool) error {
	slog.Info("seeding starter offers")

	rangeID, err := ensureRange(ctx, pool, "All products")
	if err != nil {
		return err
	}

	siteOfferID, err := ensureOffer(ctx, pool, offerSeed{
		name:           "10% off everything",
		offerType:      "site",
		conditionType:  "count",
		conditionValue: decimal.NewFromInt(1),
		benefitType:    "percentage",
		benefitValue:   decimal.NewFromInt(10),
		rangeID:        rangeID,
	})
	if err != nil {
		return err
	}
	slog.Info("seeded site offer", slog.Int64("id", siteOfferID))

	voucherOfferID, err := ensureOffer(ctx, pool, offerSeed{
		name:           "Welcome discount",
		offerType:      "voucher",
		conditionType:  "value",
		conditionValue: decimal.NewFromInt(20),
		benefitType:    "percentage",
		benefitValue:   decimal.NewFromInt(25),
		rangeID:        rangeID,
	})
	if err != nil {
		return err
	}

	var voucherID int64
	if err := pool.QueryRow(ctx,
		`INSERT INTO vouchers (name, code, usage) VALUES ($1, $2, 'once_per_customer')
		 ON CONFLICT (code) DO UPDATE SET name = EXCLUDED.name
		 RETURNING id`,
		"Welcome discount", "WELCOME25",
	).Scan(&voucherID); err != nil {
		return errors.Wrap(err, "seed voucher")
	}
	if _, err := pool.Exec(ctx,
		`INSERT INTO voucher_offers (voucher_id, offer_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`,
		voucherID, voucherOfferID,
	); err != nil {
		return errors.Wrap(err, "link voucher offer")
	}

	slog.Info("seeded voucher", slog.String("code", "WELCOME25"))
	return nil
}

type offerSeed struct {
	name           string
	offerType      string
	conditionType  string
	conditionValue decimal.Decimal
	benefitType    string
	benefitValue   decimal.Decimal
	rangeID        int64
}

func ensureRange(ctx context.Context, pool *pgxpool.Pool, name string) (int64, error) {
	var id int64
	err := pool.QueryRow(ctx, `SELECT id FROM ranges WHERE name = $1`, name).Scan(&id)
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return 0, errors.Wrapf(err, "look up range %q", name)
	}
	if err := pool.QueryRow(ctx,
		`INSERT INTO ranges (name, includes_all) VALUES ($1, TRUE) RETURNING id`, name,
	).Scan(&id); err != nil {
		return 0, errors.Wrapf(err, "create range %q", name)
	}
	return id, nil
}

func ensureOffer(ctx context.Context, pool *pgxpool.Pool, seed offerSeed) (int64, error) {
	var id int64
	err := pool.QueryRow(ctx,
		`SELECT id FROM offers WHERE name = $1 AND offer_type = $2`, seed.name, seed.offerType,
	).Scan(&id)
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return 0, errors.Wrapf(err, "look up offer %q", seed.name)
	}
	if err := pool.QueryRow(ctx,
		`INSERT INTO offers (name, offer_type, condition_type, condition_range_id, condition_value,
			benefit_type, benefit_range_id, benefit_value)
		 VALUES ($1, $2, $3, $4, $5, $6, $4, $7)
		 RETURNING id`,
		seed.name, seed.offerType, seed.conditionType, seed.rangeID, seed.conditionValue,
		seed.benefitType, seed.benefitValue,
	).Scan(&id); err != nil {
		return 0, errors.Wrapf(err, "create offer %q", seed.name)
	}
	return id, nil
}
