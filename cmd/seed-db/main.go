package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"

	"github.com/xenking/atelier-billing/internal/domain/auth"
	"github.com/xenking/atelier-billing/internal/domain/discount"
	"github.com/xenking/atelier-billing/internal/domain/product"
	"github.com/xenking/atelier-billing/internal/jsonutil"
	"github.com/xenking/atelier-billing/internal/storage/postgres"
)

type catalogProduct struct {
	product  product.Product
	variants []product.Variant
}

type catalog struct {
	products  []catalogProduct
	discounts []discount.Definition
}

func main() {
	var (
		databaseURL  string
		catalogFile  string
		apiKey       string
		apiKeyPepper string
	)

	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&catalogFile, "catalog-file", "db/seed/catalog.json", "path to catalog JSON file")
	flag.StringVar(&apiKey, "api-key", "", "API key to seed (or BILLING_SEED_API_KEY env)")
	flag.StringVar(&apiKeyPepper, "api-key-pepper", "", "HMAC pepper for API key hashing (or BILLING_API_KEY_PEPPER env)")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}
	if apiKey == "" {
		apiKey = os.Getenv("BILLING_SEED_API_KEY")
	}
	if apiKey == "" {
		slog.Error("API key is required: set --api-key or BILLING_SEED_API_KEY")
		os.Exit(1)
	}
	if apiKeyPepper == "" {
		apiKeyPepper = os.Getenv("BILLING_API_KEY_PEPPER")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, databaseURL, catalogFile, apiKey, apiKeyPepper); err != nil {
		slog.Error("seed failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("seed completed successfully")
}

func run(ctx context.Context, databaseURL, catalogFile, apiKey, pepper string) error {
	slog.Info("reading catalog file", slog.String("path", catalogFile))

	data, err := os.ReadFile(catalogFile)
	if err != nil {
		return errors.Wrap(err, "read catalog file")
	}
	cat, err := parseCatalog(data)
	if err != nil {
		return errors.Wrap(err, "parse catalog")
	}
	for i := range cat.discounts {
		if err := discount.Validate(&cat.discounts[i]); err != nil {
			return errors.Wrapf(err, "discount %s", cat.discounts[i].Code)
		}
	}

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

	if err := seedProducts(ctx, postgres.NewProductRepository(pool), cat.products); err != nil {
		return errors.Wrap(err, "seed products")
	}

	slog.Info("upserting discounts", slog.Int("count", len(cat.discounts)))

	if err := postgres.NewDiscountRepository(pool).UpsertMany(ctx, cat.discounts); err != nil {
		return errors.Wrap(err, "seed discounts")
	}

	if err := seedAPIKey(ctx, postgres.NewAPIKeyRepository(pool), apiKey, pepper); err != nil {
		return errors.Wrap(err, "seed api key")
	}

	return nil
}

func seedProducts(ctx context.Context, repo *postgres.ProductRepository, products []catalogProduct) error {
	slog.Info("upserting products", slog.Int("count", len(products)))

	for _, p := range products {
		if err := repo.Upsert(ctx, p.product, p.variants); err != nil {
			return errors.Wrapf(err, "upsert product %s", p.product.ID)
		}

		slog.Info("upserted product",
			slog.String("id", p.product.ID),
			slog.String("name", p.product.Name),
			slog.Int("variants", len(p.variants)),
		)
	}

	return nil
}

func seedAPIKey(ctx context.Context, repo *postgres.APIKeyRepository, apiKey, pepper string) error {
	slog.Info("seeding default API key")

	info := &auth.APIKeyInfo{
		ID:      "default",
		KeyHash: auth.HashKey([]byte(pepper), apiKey),
		Name:    "Default counter key",
		Scopes:  []string{auth.ScopeBilling, auth.ScopeDiscounts},
	}
	if err := repo.Create(ctx, info); err != nil {
		return errors.Wrap(err, "upsert default API key")
	}

	slog.Info("upserted API key", slog.String("id", info.ID), slog.String("name", info.Name))

	return nil
}

func parseCatalog(data []byte) (catalog, error) {
	var cat catalog
	err := jx.DecodeBytes(data).Obj(func(d *jx.Decoder, key string) error {
		switch key {
		case "products":
			return d.Arr(func(d *jx.Decoder) error {
				p, err := readProduct(d)
				if err != nil {
					return errors.Wrapf(err, "products[%d]", len(cat.products))
				}
				cat.products = append(cat.products, p)
				return nil
			})
		case "discounts":
			return d.Arr(func(d *jx.Decoder) error {
				var def discount.Definition
				if err := def.Decode(d); err != nil {
					return errors.Wrapf(err, "discounts[%d]", len(cat.discounts))
				}
				cat.discounts = append(cat.discounts, def)
				return nil
			})
		default:
			return d.Skip()
		}
	})
	return cat, err
}

func readProduct(d *jx.Decoder) (catalogProduct, error) {
	var p catalogProduct
	err := d.Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "id":
			p.product.ID, err = d.Str()
		case "code":
			p.product.Code, err = d.Str()
		case "name":
			p.product.Name, err = d.Str()
		case "category":
			p.product.Category, err = d.Str()
		case "mrp":
			var mrp decimal.NullDecimal
			if mrp, err = jsonutil.ReadDecimal(d); err == nil && !mrp.Valid {
				err = errors.New("required")
			}
			p.product.MRP = mrp.Decimal
		case "tax_rate":
			p.product.TaxRate, err = jsonutil.ReadDecimal(d)
		case "variants":
			err = d.Arr(func(d *jx.Decoder) error {
				v, err := readVariant(d)
				if err != nil {
					return err
				}
				p.variants = append(p.variants, v)
				return nil
			})
		default:
			return d.Skip()
		}
		if err != nil {
			return errors.Wrap(err, key)
		}
		return nil
	})
	return p, err
}

func readVariant(d *jx.Decoder) (product.Variant, error) {
	var v product.Variant
	err := d.Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "id":
			v.ID, err = d.Str()
		case "colour":
			v.Colour, err = d.Str()
		case "size":
			v.Size, err = d.Str()
		case "stock":
			v.Stock, err = d.Int()
		default:
			return d.Skip()
		}
		return err
	})
	return v, err
}
