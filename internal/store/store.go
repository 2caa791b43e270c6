package store

import (
	"errors"
	"time"

	"pcdealtracker/internal/catalog"
)

// ErrNotFound is returned when a referenced entity does not exist.
var ErrNotFound = errors.New("store: not found")

// ProductFilter narrows the product listing. Zero values mean "no filter".
type ProductFilter struct {
	CategoryID int64
	Search     string
	// OnSale selects products with at least one available binding flagged
	// on sale.
	OnSale bool
	// AtAllTimeLow selects products whose best available price matches
	// their recorded all-time low.
	AtAllTimeLow bool
}

// ProductSort orders the product listing. By is "name" or "price"; Order is
// "asc" or "desc". Price sorting places products without an available price
// last regardless of direction; ties break by product ID ascending.
type ProductSort struct {
	By    string
	Order string
}

// ProductPage is one page of the filtered product listing. Total counts the
// filtered set, not the whole corpus.
type ProductPage struct {
	Products []*catalog.CanonicalProduct
	Total    int
}

// Store is the persistence boundary. Implementations must return product
// snapshots that are safe to read while writers mutate their own copies, and
// must serialize writes internally; the per-product ordering of the write
// path itself is the ingestor's responsibility.
type Store interface {
	UpsertRetailer(r *catalog.Retailer) error
	Retailer(id int64) (*catalog.Retailer, error)
	Retailers() ([]*catalog.Retailer, error)

	UpsertCategory(c *catalog.Category) error
	Categories() ([]*catalog.Category, error)
	CategoryBySlug(slug string) (*catalog.Category, error)

	// CreateProduct assigns p.ID.
	CreateProduct(p *catalog.CanonicalProduct) error
	Product(id int64) (*catalog.CanonicalProduct, error)
	ProductsByCategory(categoryID int64) ([]*catalog.CanonicalProduct, error)
	ProductsByRetailer(retailerID int64) ([]*catalog.CanonicalProduct, error)
	UpdateProduct(p *catalog.CanonicalProduct) error
	ListProducts(f ProductFilter, s ProductSort, page, pageSize int) (*ProductPage, error)

	// AppendPricePoint stores a point. Compaction decisions live in the
	// ledger; the store appends unconditionally.
	AppendPricePoint(pt catalog.PricePoint) error
	// PricePoints returns points for a product ordered by ObservedAt
	// ascending. retailerID 0 selects all retailers.
	PricePoints(productID, retailerID int64) ([]catalog.PricePoint, error)
	// PricePointsBefore returns up to limit points observed strictly before
	// the given time, newest first.
	PricePointsBefore(productID, retailerID int64, before time.Time, limit int) ([]catalog.PricePoint, error)

	QueueUnmatched(u catalog.UnmatchedListing) error
	Unmatched() ([]catalog.UnmatchedListing, error)
}
