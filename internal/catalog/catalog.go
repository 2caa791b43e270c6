package catalog

import "time"

// Retailer is static reference data describing one tracked shop.
type Retailer struct {
	ID        int64  `json:"id"`
	Name      string `json:"name"`
	BaseURL   string `json:"base_url"`
	RateLimit time.Duration `json:"-"`
}

// Category is the fixed product taxonomy.
type Category struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
	Slug string `json:"slug"`
}

// RawListing is one retailer's untransformed observation of a product.
// It is produced per scrape and consumed by the matcher; only the resulting
// price point outlives it. A nil Price means the product is listed but
// unavailable.
type RawListing struct {
	RetailerID int64     `json:"retailer_id"`
	RawTitle   string    `json:"raw_title"`
	Price      *float64  `json:"price,omitempty"`
	Currency   string    `json:"currency"`
	ProductURL string    `json:"product_url"`
	ImageURL   string    `json:"image_url,omitempty"`
	ObservedAt time.Time `json:"observed_at"`
}

// Listing is the binding between a canonical product and one retailer's
// current listing state.
type Listing struct {
	RetailerID   int64     `json:"retailer_id"`
	ProductURL   string    `json:"product_url"`
	ImageURL     string    `json:"image_url,omitempty"`
	CurrentPrice *float64  `json:"current_price,omitempty"`
	OnSale       bool      `json:"on_sale"`
	NeedsReview  bool      `json:"needs_review"`
	Available    bool      `json:"available"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// AllTimeLow records the lowest price ever observed for a product,
// with its date and source retailer. Ties keep the earliest observation.
type AllTimeLow struct {
	Price      float64   `json:"price"`
	Date       time.Time `json:"date"`
	RetailerID int64     `json:"retailer_id"`
}

// CanonicalProduct is the deduplicated identity representing the same
// physical item across retailers. BestPrice and AllTimeLow are derived
// caches: they are a pure function of the bindings and the price history
// and are only mutated under the product's serialized write path.
type CanonicalProduct struct {
	ID                  int64              `json:"id"`
	CanonicalName       string             `json:"canonical_name"`
	Brand               string             `json:"brand,omitempty"`
	Model               string             `json:"model,omitempty"`
	CategoryID          int64              `json:"category_id"`
	BestPrice           *float64           `json:"best_price,omitempty"`
	BestPriceRetailerID int64              `json:"best_price_retailer_id,omitempty"`
	AllTimeLow          *AllTimeLow        `json:"all_time_low,omitempty"`
	Bindings            map[int64]*Listing `json:"bindings"`
	CreatedAt           time.Time          `json:"created_at"`
}

// Clone returns a deep copy so readers never observe a product mid-update.
func (p *CanonicalProduct) Clone() *CanonicalProduct {
	cp := *p
	if p.BestPrice != nil {
		v := *p.BestPrice
		cp.BestPrice = &v
	}
	if p.AllTimeLow != nil {
		atl := *p.AllTimeLow
		cp.AllTimeLow = &atl
	}
	cp.Bindings = make(map[int64]*Listing, len(p.Bindings))
	for id, b := range p.Bindings {
		lb := *b
		if b.CurrentPrice != nil {
			v := *b.CurrentPrice
			lb.CurrentPrice = &v
		}
		cp.Bindings[id] = &lb
	}
	return &cp
}

// Binding returns the listing binding for a retailer, creating it if absent.
func (p *CanonicalProduct) Binding(retailerID int64) *Listing {
	if p.Bindings == nil {
		p.Bindings = make(map[int64]*Listing)
	}
	b, ok := p.Bindings[retailerID]
	if !ok {
		b = &Listing{RetailerID: retailerID}
		p.Bindings[retailerID] = b
	}
	return b
}

// PricePoint is one immutable historical price observation for a
// (product, retailer) pair. Points are append-only; for a fixed pair they
// are ordered by ObservedAt.
type PricePoint struct {
	ProductID  int64     `json:"product_id"`
	RetailerID int64     `json:"retailer_id"`
	Price      float64   `json:"price"`
	ObservedAt time.Time `json:"observed_at"`
}

// UnmatchedListing is a raw listing the matcher could not place, queued for
// manual triage instead of being dropped.
type UnmatchedListing struct {
	Listing  RawListing `json:"listing"`
	Reason   string     `json:"reason"`
	QueuedAt time.Time  `json:"queued_at"`
}

// DefaultCategories is the taxonomy seeded at startup.
func DefaultCategories() []Category {
	return []Category{
		{Name: "Graphics Cards", Slug: "graphics-cards"},
		{Name: "Processors", Slug: "cpus"},
		{Name: "Memory", Slug: "memory"},
		{Name: "Storage", Slug: "storage"},
		{Name: "Motherboards", Slug: "motherboards"},
		{Name: "Power Supplies", Slug: "power-supplies"},
		{Name: "Cases", Slug: "cases"},
		{Name: "Cooling", Slug: "cooling"},
		{Name: "Monitors", Slug: "monitors"},
		{Name: "Peripherals", Slug: "peripherals"},
	}
}
