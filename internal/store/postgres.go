package store

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq"

	"pcdealtracker/internal/catalog"
)

// PostgresStore implements Store on database/sql with the pq driver.
type PostgresStore struct {
	db *sql.DB
}

// OpenPostgres connects to the database and runs the schema migration.
func OpenPostgres(dsn string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	s := &PostgresStore{db: db}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("failed to migrate schema: %w", err)
	}
	return s, nil
}

// Close closes the underlying connection pool.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

func (s *PostgresStore) migrate() error {
	schema := []string{
		`CREATE TABLE IF NOT EXISTS retailers (
			id BIGSERIAL PRIMARY KEY,
			name VARCHAR(100) NOT NULL UNIQUE,
			base_url VARCHAR(255) NOT NULL,
			rate_limit_ms BIGINT NOT NULL DEFAULT 0
		)`,
		`CREATE TABLE IF NOT EXISTS categories (
			id BIGSERIAL PRIMARY KEY,
			name VARCHAR(100) NOT NULL,
			slug VARCHAR(100) NOT NULL UNIQUE
		)`,
		`CREATE TABLE IF NOT EXISTS products (
			id BIGSERIAL PRIMARY KEY,
			canonical_name VARCHAR(255) NOT NULL,
			brand VARCHAR(100),
			model VARCHAR(100),
			category_id BIGINT NOT NULL REFERENCES categories(id),
			best_price DOUBLE PRECISION,
			best_price_retailer_id BIGINT,
			atl_price DOUBLE PRECISION,
			atl_date TIMESTAMPTZ,
			atl_retailer_id BIGINT,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_products_category ON products(category_id)`,
		`CREATE INDEX IF NOT EXISTS idx_products_name ON products(canonical_name)`,
		`CREATE TABLE IF NOT EXISTS listings (
			product_id BIGINT NOT NULL REFERENCES products(id),
			retailer_id BIGINT NOT NULL REFERENCES retailers(id),
			product_url VARCHAR(500) NOT NULL DEFAULT '',
			image_url VARCHAR(500) NOT NULL DEFAULT '',
			current_price DOUBLE PRECISION,
			on_sale BOOLEAN NOT NULL DEFAULT FALSE,
			needs_review BOOLEAN NOT NULL DEFAULT FALSE,
			available BOOLEAN NOT NULL DEFAULT TRUE,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			PRIMARY KEY (product_id, retailer_id)
		)`,
		`CREATE TABLE IF NOT EXISTS price_points (
			id BIGSERIAL PRIMARY KEY,
			product_id BIGINT NOT NULL REFERENCES products(id),
			retailer_id BIGINT NOT NULL REFERENCES retailers(id),
			price DOUBLE PRECISION NOT NULL,
			observed_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_price_points_key ON price_points(product_id, retailer_id, observed_at)`,
		`CREATE TABLE IF NOT EXISTS unmatched_listings (
			id BIGSERIAL PRIMARY KEY,
			retailer_id BIGINT NOT NULL,
			raw_title VARCHAR(500) NOT NULL,
			price DOUBLE PRECISION,
			currency VARCHAR(10),
			product_url VARCHAR(500),
			image_url VARCHAR(500),
			observed_at TIMESTAMPTZ NOT NULL,
			reason VARCHAR(255) NOT NULL,
			queued_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
	}
	for _, stmt := range schema {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

func (s *PostgresStore) UpsertRetailer(r *catalog.Retailer) error {
	query := `
		INSERT INTO retailers (name, base_url, rate_limit_ms)
		VALUES ($1, $2, $3)
		ON CONFLICT (name) DO UPDATE SET base_url = $2, rate_limit_ms = $3
		RETURNING id;
	`
	return s.db.QueryRow(query, r.Name, r.BaseURL, r.RateLimit.Milliseconds()).Scan(&r.ID)
}

func (s *PostgresStore) Retailer(id int64) (*catalog.Retailer, error) {
	query := `SELECT id, name, base_url, rate_limit_ms FROM retailers WHERE id = $1;`
	var r catalog.Retailer
	var rateMs int64
	err := s.db.QueryRow(query, id).Scan(&r.ID, &r.Name, &r.BaseURL, &rateMs)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get retailer: %w", err)
	}
	r.RateLimit = time.Duration(rateMs) * time.Millisecond
	return &r, nil
}

func (s *PostgresStore) Retailers() ([]*catalog.Retailer, error) {
	rows, err := s.db.Query(`SELECT id, name, base_url, rate_limit_ms FROM retailers ORDER BY id;`)
	if err != nil {
		return nil, fmt.Errorf("failed to list retailers: %w", err)
	}
	defer rows.Close()

	var out []*catalog.Retailer
	for rows.Next() {
		var r catalog.Retailer
		var rateMs int64
		if err := rows.Scan(&r.ID, &r.Name, &r.BaseURL, &rateMs); err != nil {
			return nil, err
		}
		r.RateLimit = time.Duration(rateMs) * time.Millisecond
		out = append(out, &r)
	}
	return out, rows.Err()
}

func (s *PostgresStore) UpsertCategory(c *catalog.Category) error {
	query := `
		INSERT INTO categories (name, slug)
		VALUES ($1, $2)
		ON CONFLICT (slug) DO UPDATE SET name = $1
		RETURNING id;
	`
	return s.db.QueryRow(query, c.Name, c.Slug).Scan(&c.ID)
}

func (s *PostgresStore) Categories() ([]*catalog.Category, error) {
	rows, err := s.db.Query(`SELECT id, name, slug FROM categories ORDER BY name;`)
	if err != nil {
		return nil, fmt.Errorf("failed to list categories: %w", err)
	}
	defer rows.Close()

	var out []*catalog.Category
	for rows.Next() {
		var c catalog.Category
		if err := rows.Scan(&c.ID, &c.Name, &c.Slug); err != nil {
			return nil, err
		}
		out = append(out, &c)
	}
	return out, rows.Err()
}

func (s *PostgresStore) CategoryBySlug(slug string) (*catalog.Category, error) {
	var c catalog.Category
	err := s.db.QueryRow(`SELECT id, name, slug FROM categories WHERE slug = $1;`, slug).
		Scan(&c.ID, &c.Name, &c.Slug)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get category: %w", err)
	}
	return &c, nil
}

func (s *PostgresStore) CreateProduct(p *catalog.CanonicalProduct) error {
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now()
	}
	query := `
		INSERT INTO products (canonical_name, brand, model, category_id, created_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id;
	`
	if err := s.db.QueryRow(query, p.CanonicalName, p.Brand, p.Model, p.CategoryID, p.CreatedAt).Scan(&p.ID); err != nil {
		return fmt.Errorf("failed to create product: %w", err)
	}
	return s.saveBindings(p)
}

func (s *PostgresStore) saveBindings(p *catalog.CanonicalProduct) error {
	query := `
		INSERT INTO listings (product_id, retailer_id, product_url, image_url, current_price, on_sale, needs_review, available, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (product_id, retailer_id) DO UPDATE SET
			product_url = $3, image_url = $4, current_price = $5,
			on_sale = $6, needs_review = $7, available = $8, updated_at = $9;
	`
	for _, b := range p.Bindings {
		_, err := s.db.Exec(query, p.ID, b.RetailerID, b.ProductURL, b.ImageURL,
			nullFloat(b.CurrentPrice), b.OnSale, b.NeedsReview, b.Available, b.UpdatedAt)
		if err != nil {
			return fmt.Errorf("failed to save binding: %w", err)
		}
	}
	return nil
}

func (s *PostgresStore) UpdateProduct(p *catalog.CanonicalProduct) error {
	query := `
		UPDATE products SET
			canonical_name = $2, brand = $3, model = $4, category_id = $5,
			best_price = $6, best_price_retailer_id = $7,
			atl_price = $8, atl_date = $9, atl_retailer_id = $10
		WHERE id = $1;
	`
	var atlPrice *float64
	var atlDate *time.Time
	var atlRetailer *int64
	if p.AllTimeLow != nil {
		atlPrice = &p.AllTimeLow.Price
		atlDate = &p.AllTimeLow.Date
		atlRetailer = &p.AllTimeLow.RetailerID
	}
	res, err := s.db.Exec(query, p.ID, p.CanonicalName, p.Brand, p.Model, p.CategoryID,
		nullFloat(p.BestPrice), nullID(p.BestPriceRetailerID), atlPrice, atlDate, atlRetailer)
	if err != nil {
		return fmt.Errorf("failed to update product: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return s.saveBindings(p)
}

const productColumns = `
	p.id, p.canonical_name, COALESCE(p.brand, ''), COALESCE(p.model, ''), p.category_id,
	p.best_price, COALESCE(p.best_price_retailer_id, 0),
	p.atl_price, p.atl_date, p.atl_retailer_id, p.created_at`

func (s *PostgresStore) scanProduct(scanner interface{ Scan(...interface{}) error }) (*catalog.CanonicalProduct, error) {
	var p catalog.CanonicalProduct
	var bestPrice, atlPrice sql.NullFloat64
	var atlDate sql.NullTime
	var atlRetailer sql.NullInt64
	err := scanner.Scan(&p.ID, &p.CanonicalName, &p.Brand, &p.Model, &p.CategoryID,
		&bestPrice, &p.BestPriceRetailerID, &atlPrice, &atlDate, &atlRetailer, &p.CreatedAt)
	if err != nil {
		return nil, err
	}
	if bestPrice.Valid {
		p.BestPrice = &bestPrice.Float64
	}
	if atlPrice.Valid {
		p.AllTimeLow = &catalog.AllTimeLow{
			Price:      atlPrice.Float64,
			Date:       atlDate.Time,
			RetailerID: atlRetailer.Int64,
		}
	}
	p.Bindings = make(map[int64]*catalog.Listing)
	return &p, nil
}

func (s *PostgresStore) loadBindings(products map[int64]*catalog.CanonicalProduct) error {
	if len(products) == 0 {
		return nil
	}
	ids := make([]string, 0, len(products))
	for id := range products {
		ids = append(ids, fmt.Sprintf("%d", id))
	}
	query := fmt.Sprintf(`
		SELECT product_id, retailer_id, product_url, image_url, current_price,
			on_sale, needs_review, available, updated_at
		FROM listings WHERE product_id IN (%s);`, strings.Join(ids, ","))
	rows, err := s.db.Query(query)
	if err != nil {
		return fmt.Errorf("failed to load bindings: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var productID int64
		var b catalog.Listing
		var price sql.NullFloat64
		if err := rows.Scan(&productID, &b.RetailerID, &b.ProductURL, &b.ImageURL,
			&price, &b.OnSale, &b.NeedsReview, &b.Available, &b.UpdatedAt); err != nil {
			return err
		}
		if price.Valid {
			b.CurrentPrice = &price.Float64
		}
		if p, ok := products[productID]; ok {
			p.Bindings[b.RetailerID] = &b
		}
	}
	return rows.Err()
}

func (s *PostgresStore) Product(id int64) (*catalog.CanonicalProduct, error) {
	row := s.db.QueryRow(`SELECT `+productColumns+` FROM products p WHERE p.id = $1;`, id)
	p, err := s.scanProduct(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get product: %w", err)
	}
	if err := s.loadBindings(map[int64]*catalog.CanonicalProduct{p.ID: p}); err != nil {
		return nil, err
	}
	return p, nil
}

func (s *PostgresStore) queryProducts(query string, args ...interface{}) ([]*catalog.CanonicalProduct, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query products: %w", err)
	}
	defer rows.Close()

	var out []*catalog.CanonicalProduct
	byID := make(map[int64]*catalog.CanonicalProduct)
	for rows.Next() {
		p, err := s.scanProduct(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
		byID[p.ID] = p
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if err := s.loadBindings(byID); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *PostgresStore) ProductsByCategory(categoryID int64) ([]*catalog.CanonicalProduct, error) {
	return s.queryProducts(`SELECT `+productColumns+` FROM products p WHERE p.category_id = $1 ORDER BY p.id;`, categoryID)
}

func (s *PostgresStore) ProductsByRetailer(retailerID int64) ([]*catalog.CanonicalProduct, error) {
	return s.queryProducts(`
		SELECT `+productColumns+`
		FROM products p
		JOIN listings l ON l.product_id = p.id
		WHERE l.retailer_id = $1 ORDER BY p.id;`, retailerID)
}

func (s *PostgresStore) ListProducts(f ProductFilter, srt ProductSort, page, pageSize int) (*ProductPage, error) {
	var conds []string
	var args []interface{}
	if f.CategoryID != 0 {
		args = append(args, f.CategoryID)
		conds = append(conds, fmt.Sprintf("p.category_id = $%d", len(args)))
	}
	if f.Search != "" {
		args = append(args, "%"+f.Search+"%")
		conds = append(conds, fmt.Sprintf("p.canonical_name ILIKE $%d", len(args)))
	}
	if f.OnSale {
		conds = append(conds, "EXISTS (SELECT 1 FROM listings l WHERE l.product_id = p.id AND l.available AND l.on_sale)")
	}
	if f.AtAllTimeLow {
		conds = append(conds, "p.best_price IS NOT NULL AND p.atl_price IS NOT NULL AND p.best_price <= p.atl_price")
	}
	where := ""
	if len(conds) > 0 {
		where = " WHERE " + strings.Join(conds, " AND ")
	}

	var total int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM products p`+where, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("failed to count products: %w", err)
	}

	dir := "ASC"
	if srt.Order == "desc" {
		dir = "DESC"
	}
	var order string
	if srt.By == "price" {
		// NULL best prices sort last in either direction.
		order = fmt.Sprintf(" ORDER BY (p.best_price IS NULL), p.best_price %s, p.id ASC", dir)
	} else {
		order = fmt.Sprintf(" ORDER BY LOWER(p.canonical_name) %s, p.id ASC", dir)
	}

	args = append(args, pageSize, (page-1)*pageSize)
	query := fmt.Sprintf(`SELECT %s FROM products p%s%s LIMIT $%d OFFSET $%d;`,
		productColumns, where, order, len(args)-1, len(args))
	products, err := s.queryProducts(query, args...)
	if err != nil {
		return nil, err
	}
	return &ProductPage{Products: products, Total: total}, nil
}

func (s *PostgresStore) AppendPricePoint(pt catalog.PricePoint) error {
	query := `
		INSERT INTO price_points (product_id, retailer_id, price, observed_at)
		VALUES ($1, $2, $3, $4);
	`
	if _, err := s.db.Exec(query, pt.ProductID, pt.RetailerID, pt.Price, pt.ObservedAt); err != nil {
		return fmt.Errorf("failed to append price point: %w", err)
	}
	return nil
}

func (s *PostgresStore) PricePoints(productID, retailerID int64) ([]catalog.PricePoint, error) {
	query := `
		SELECT product_id, retailer_id, price, observed_at
		FROM price_points
		WHERE product_id = $1 AND ($2 = 0 OR retailer_id = $2)
		ORDER BY observed_at ASC, id ASC;
	`
	return s.scanPoints(query, productID, retailerID)
}

func (s *PostgresStore) PricePointsBefore(productID, retailerID int64, before time.Time, limit int) ([]catalog.PricePoint, error) {
	query := `
		SELECT product_id, retailer_id, price, observed_at
		FROM price_points
		WHERE product_id = $1 AND ($2 = 0 OR retailer_id = $2) AND observed_at < $3
		ORDER BY observed_at DESC, id DESC
		LIMIT $4;
	`
	return s.scanPoints(query, productID, retailerID, before, limit)
}

func (s *PostgresStore) scanPoints(query string, args ...interface{}) ([]catalog.PricePoint, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query price points: %w", err)
	}
	defer rows.Close()

	var out []catalog.PricePoint
	for rows.Next() {
		var pt catalog.PricePoint
		if err := rows.Scan(&pt.ProductID, &pt.RetailerID, &pt.Price, &pt.ObservedAt); err != nil {
			return nil, err
		}
		out = append(out, pt)
	}
	return out, rows.Err()
}

func (s *PostgresStore) QueueUnmatched(u catalog.UnmatchedListing) error {
	query := `
		INSERT INTO unmatched_listings (retailer_id, raw_title, price, currency, product_url, image_url, observed_at, reason, queued_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9);
	`
	if u.QueuedAt.IsZero() {
		u.QueuedAt = time.Now()
	}
	_, err := s.db.Exec(query, u.Listing.RetailerID, u.Listing.RawTitle, nullFloat(u.Listing.Price),
		u.Listing.Currency, u.Listing.ProductURL, u.Listing.ImageURL, u.Listing.ObservedAt, u.Reason, u.QueuedAt)
	if err != nil {
		return fmt.Errorf("failed to queue unmatched listing: %w", err)
	}
	return nil
}

func (s *PostgresStore) Unmatched() ([]catalog.UnmatchedListing, error) {
	query := `
		SELECT retailer_id, raw_title, price, currency, product_url, image_url, observed_at, reason, queued_at
		FROM unmatched_listings ORDER BY queued_at ASC;
	`
	rows, err := s.db.Query(query)
	if err != nil {
		return nil, fmt.Errorf("failed to list unmatched listings: %w", err)
	}
	defer rows.Close()

	var out []catalog.UnmatchedListing
	for rows.Next() {
		var u catalog.UnmatchedListing
		var price sql.NullFloat64
		if err := rows.Scan(&u.Listing.RetailerID, &u.Listing.RawTitle, &price, &u.Listing.Currency,
			&u.Listing.ProductURL, &u.Listing.ImageURL, &u.Listing.ObservedAt, &u.Reason, &u.QueuedAt); err != nil {
			return nil, err
		}
		if price.Valid {
			u.Listing.Price = &price.Float64
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

func nullFloat(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}

func nullID(v int64) sql.NullInt64 {
	if v == 0 {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: v, Valid: true}
}

var _ Store = (*PostgresStore)(nil)
