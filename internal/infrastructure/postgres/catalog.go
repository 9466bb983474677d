package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/drfirst/go-intake/internal/domain/catalog"
	"github.com/drfirst/go-intake/internal/domain/money"
)

// CatalogRepository loads the product catalog from the products,
// pharmacies and pharmacy_products tables.
type CatalogRepository struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
	tracer trace.Tracer
}

var _ catalog.Repository = (*CatalogRepository)(nil)

// NewCatalogRepository creates a catalog repository
func NewCatalogRepository(pool *pgxpool.Pool, logger *zap.Logger) *CatalogRepository {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CatalogRepository{pool: pool, logger: logger, tracer: otel.Tracer("catalog-repository")}
}

// Load reads all active products and pharmacies.
func (r *CatalogRepository) Load(ctx context.Context) (*catalog.Snapshot, error) {
	ctx, span := r.tracer.Start(ctx, "catalog_load")
	defer span.End()

	products, err := r.products(ctx)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	pharmacies, err := r.pharmacies(ctx)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	links, err := r.links(ctx)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	for i := range pharmacies {
		pharmacies[i].ProductIDs = links[pharmacies[i].ID]
	}

	snap, err := catalog.NewSnapshot(products, pharmacies)
	if err != nil {
		return nil, fmt.Errorf("build catalog: %w", err)
	}
	span.SetAttributes(
		attribute.Int("products", len(products)),
		attribute.Int("pharmacies", len(pharmacies)),
	)
	r.logger.Info("catalog loaded from database",
		zap.Int("products", len(products)),
		zap.Int("pharmacies", len(pharmacies)))
	return snap, nil
}

func (r *CatalogRepository) products(ctx context.Context) ([]catalog.Product, error) {
	query := `
		SELECT id, name, kind, thc_percent, cbd_percent, price_per_gram, price_per_bottle,
		       bottle_size_ml, description
		FROM products
		WHERE active
		ORDER BY id
	`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query products: %w", err)
	}
	defer rows.Close()

	var out []catalog.Product
	for rows.Next() {
		var (
			p              catalog.Product
			kind           string
			perGram, perBt int64
		)
		if err := rows.Scan(&p.ID, &p.Name, &kind, &p.THCPercent, &p.CBDPercent,
			&perGram, &perBt, &p.BottleSizeML, &p.Description); err != nil {
			return nil, fmt.Errorf("scan product: %w", err)
		}
		p.Kind = catalog.Kind(kind)
		p.PricePerGram = money.Amount(perGram)
		p.PricePerBottle = money.Amount(perBt)
		out = append(out, p)
	}
	return out, rows.Err()
}

func (r *CatalogRepository) pharmacies(ctx context.Context) ([]catalog.Pharmacy, error) {
	query := `
		SELECT id, name, street, postal_code, city, phone, rating, delivery_estimate
		FROM pharmacies
		WHERE active
		ORDER BY id
	`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query pharmacies: %w", err)
	}
	defer rows.Close()

	var out []catalog.Pharmacy
	for rows.Next() {
		var ph catalog.Pharmacy
		if err := rows.Scan(&ph.ID, &ph.Name, &ph.Street, &ph.PostalCode, &ph.City,
			&ph.Phone, &ph.Rating, &ph.DeliveryEstimate); err != nil {
			return nil, fmt.Errorf("scan pharmacy: %w", err)
		}
		out = append(out, ph)
	}
	return out, rows.Err()
}

// links returns product IDs per pharmacy, restricted to active rows on both sides.
func (r *CatalogRepository) links(ctx context.Context) (map[string][]string, error) {
	query := `
		SELECT pp.pharmacy_id, pp.product_id
		FROM pharmacy_products pp
		JOIN products p ON p.id = pp.product_id AND p.active
		JOIN pharmacies ph ON ph.id = pp.pharmacy_id AND ph.active
		ORDER BY pp.pharmacy_id, pp.product_id
	`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query pharmacy products: %w", err)
	}
	defer rows.Close()

	out := make(map[string][]string)
	for rows.Next() {
		var pharmacyID, productID string
		if err := rows.Scan(&pharmacyID, &productID); err != nil {
			return nil, fmt.Errorf("scan pharmacy product: %w", err)
		}
		out[pharmacyID] = append(out[pharmacyID], productID)
	}
	return out, rows.Err()
}

// Seed upserts a catalog snapshot, typically the embedded static seed, so a
// fresh database starts with the same products as the static source.
func (r *CatalogRepository) Seed(ctx context.Context, snap *catalog.Snapshot) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	batch := &pgx.Batch{}
	for _, p := range snap.Products() {
		batch.Queue(`
			INSERT INTO products (id, name, kind, thc_percent, cbd_percent, price_per_gram,
			                      price_per_bottle, bottle_size_ml, description)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			ON CONFLICT (id) DO UPDATE
			SET name = $2, kind = $3, thc_percent = $4, cbd_percent = $5, price_per_gram = $6,
			    price_per_bottle = $7, bottle_size_ml = $8, description = $9, active = TRUE
		`, p.ID, p.Name, string(p.Kind), p.THCPercent, p.CBDPercent, p.PricePerGram.Cents(),
			p.PricePerBottle.Cents(), p.BottleSizeML, p.Description)
	}
	for _, ph := range snap.Pharmacies() {
		batch.Queue(`
			INSERT INTO pharmacies (id, name, street, postal_code, city, phone, rating, delivery_estimate)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			ON CONFLICT (id) DO UPDATE
			SET name = $2, street = $3, postal_code = $4, city = $5, phone = $6, rating = $7,
			    delivery_estimate = $8, active = TRUE
		`, ph.ID, ph.Name, ph.Street, ph.PostalCode, ph.City, ph.Phone, ph.Rating, ph.DeliveryEstimate)
		for _, productID := range ph.ProductIDs {
			batch.Queue(`
				INSERT INTO pharmacy_products (pharmacy_id, product_id) VALUES ($1, $2)
				ON CONFLICT DO NOTHING
			`, ph.ID, productID)
		}
	}

	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("seed catalog: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}

	products, pharmacies := snap.Len()
	r.logger.Info("catalog seeded",
		zap.Int("products", products),
		zap.Int("pharmacies", pharmacies))
	return nil
}

// Empty reports whether no products are stored yet.
func (r *CatalogRepository) Empty(ctx context.Context) (bool, error) {
	var exists bool
	if err := r.pool.QueryRow(ctx, "SELECT EXISTS (SELECT 1 FROM products)").Scan(&exists); err != nil {
		return false, fmt.Errorf("check catalog: %w", err)
	}
	return !exists, nil
}
