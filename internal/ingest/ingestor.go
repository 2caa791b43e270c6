// Package ingest drives the write path: every scraped listing flows through
// Ingest, which matches it to a canonical product, records the price, and
// refreshes the product's derived deal state.
package ingest

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"sync"
	"time"

	"pcdealtracker/internal/catalog"
	"pcdealtracker/internal/deals"
	"pcdealtracker/internal/ledger"
	"pcdealtracker/internal/matcher"
	"pcdealtracker/internal/store"
	"pcdealtracker/logger"
	"pcdealtracker/pkg/errors"
	"pcdealtracker/services/publisher"
)

// Event stream names.
const (
	EventDealFlagged = "deal.flagged"
	EventAllTimeLow  = "deal.all_time_low"
)

// DealEvent is the payload published when a listing is flagged on sale or
// sets a new all-time low.
type DealEvent struct {
	ProductID   int64     `json:"product_id"`
	ProductName string    `json:"product_name"`
	RetailerID  int64     `json:"retailer_id"`
	Price       float64   `json:"price"`
	ObservedAt  time.Time `json:"observed_at"`
}

// Result reports what one ingested listing did.
type Result struct {
	ProductID int64
	Decision  matcher.Decision
	Appended  bool
	OnSale    bool
	NewLow    bool
	Unmatched bool
}

// Ingestor owns the serialized write path for canonical products.
type Ingestor struct {
	store    store.Store
	matcher  *matcher.Matcher
	ledger   *ledger.Ledger
	detector *deals.Detector
	pub      publisher.Publisher
	log      *logger.Logger

	// matchMu serializes candidate scans with product creation so two
	// concurrent listings of the same new item cannot both create it.
	matchMu sync.Mutex

	mu    sync.Mutex
	locks map[int64]*sync.Mutex
}

// New wires an ingestor. pub may be nil when event publishing is disabled.
func New(st store.Store, m *matcher.Matcher, l *ledger.Ledger, d *deals.Detector, pub publisher.Publisher) *Ingestor {
	return &Ingestor{
		store:    st,
		matcher:  m,
		ledger:   l,
		detector: d,
		pub:      pub,
		log:      logger.ForComponent("ingest"),
		locks:    make(map[int64]*sync.Mutex),
	}
}

// productLock returns the mutex serializing writes to one product.
func (i *Ingestor) productLock(id int64) *sync.Mutex {
	i.mu.Lock()
	defer i.mu.Unlock()
	l, ok := i.locks[id]
	if !ok {
		l = &sync.Mutex{}
		i.locks[id] = l
	}
	return l
}

// Ingest processes one raw listing end to end: normalize, match, bind,
// record the price, refresh derived state, publish deal events. Writes to a
// product are serialized per product; listings for different products
// proceed in parallel.
func (i *Ingestor) Ingest(ctx context.Context, raw catalog.RawListing) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if raw.RetailerID == 0 {
		return nil, errors.NewValidation("listing missing retailer")
	}
	if raw.ObservedAt.IsZero() {
		raw.ObservedAt = time.Now().UTC()
	}

	n := matcher.Normalize(raw.RawTitle)
	if n.Category == "" {
		return i.queueUnmatched(raw, "no category signal in title")
	}
	cat, err := i.store.CategoryBySlug(n.Category)
	if err != nil {
		if stderrors.Is(err, store.ErrNotFound) {
			return i.queueUnmatched(raw, "unknown category "+n.Category)
		}
		return nil, errors.NewStorage("resolving category", err)
	}

	decision, productID, err := i.resolveProduct(n, cat.ID)
	if err != nil {
		return nil, err
	}

	lock := i.productLock(productID)
	lock.Lock()
	defer lock.Unlock()

	p, err := i.store.Product(productID)
	if err != nil {
		return nil, errors.NewStorage("loading product", err)
	}

	b := p.Binding(raw.RetailerID)
	b.ProductURL = raw.ProductURL
	if raw.ImageURL != "" {
		b.ImageURL = raw.ImageURL
	}
	b.UpdatedAt = raw.ObservedAt
	if decision.Kind == matcher.ReviewMatch {
		b.NeedsReview = true
	}

	res := &Result{ProductID: productID, Decision: decision}

	if raw.Price == nil {
		b.Available = false
		b.OnSale = false
		i.detector.RecomputeBestPrice(p)
		if err := i.store.UpdateProduct(p); err != nil {
			return nil, errors.NewStorage("updating product", err)
		}
		return res, nil
	}

	price := *raw.Price
	pt := catalog.PricePoint{
		ProductID:  productID,
		RetailerID: raw.RetailerID,
		Price:      price,
		ObservedAt: raw.ObservedAt,
	}

	// The sale signal compares against the baseline as it stood before this
	// observation, so it is computed before the append.
	onSale, err := i.detector.OnSale(productID, raw.RetailerID, price, raw.ObservedAt)
	if err != nil {
		return nil, err
	}
	appended, err := i.ledger.Append(pt)
	if err != nil {
		return nil, err
	}

	wasOnSale := b.OnSale
	b.CurrentPrice = &price
	b.Available = true

	newLow := false
	if appended {
		// A compacted re-observation keeps the existing sale flag: the
		// ledger already holds today's point at this price, so the baseline
		// would be measuring the observation against itself.
		b.OnSale = onSale
		newLow = i.detector.UpdateAllTimeLow(p, pt)
	}
	i.detector.RecomputeBestPrice(p)

	if err := i.store.UpdateProduct(p); err != nil {
		return nil, errors.NewStorage("updating product", err)
	}

	res.Appended = appended
	res.OnSale = b.OnSale
	res.NewLow = newLow

	if b.OnSale && !wasOnSale {
		i.publish(EventDealFlagged, p, pt)
	}
	if newLow {
		i.publish(EventAllTimeLow, p, pt)
	}
	return res, nil
}

// resolveProduct runs the matcher and creates the product for NewProduct
// decisions. The scan and the create happen under one lock so concurrent
// listings of the same unseen item converge on a single product.
func (i *Ingestor) resolveProduct(n matcher.Normalized, categoryID int64) (matcher.Decision, int64, error) {
	i.matchMu.Lock()
	defer i.matchMu.Unlock()

	decision, err := i.matcher.Match(n, categoryID)
	if err != nil {
		return matcher.Decision{}, 0, errors.New(errors.ErrorTypeMatching, "", "matching listing", err)
	}
	if decision.Kind != matcher.NewProduct {
		return decision, decision.Product.ID, nil
	}

	p := &catalog.CanonicalProduct{
		CanonicalName: n.CleanTitle,
		Brand:         n.Brand,
		Model:         n.Model,
		CategoryID:    categoryID,
		CreatedAt:     time.Now().UTC(),
	}
	if err := i.store.CreateProduct(p); err != nil {
		return matcher.Decision{}, 0, errors.NewStorage("creating product", err)
	}
	i.log.Info().
		Int64("product_id", p.ID).
		Str("name", p.CanonicalName).
		Msg("New canonical product")
	decision.Product = p
	return decision, p.ID, nil
}

func (i *Ingestor) queueUnmatched(raw catalog.RawListing, reason string) (*Result, error) {
	u := catalog.UnmatchedListing{Listing: raw, Reason: reason, QueuedAt: time.Now().UTC()}
	if err := i.store.QueueUnmatched(u); err != nil {
		return nil, errors.NewStorage("queueing unmatched listing", err)
	}
	i.log.Debug().
		Str("title", raw.RawTitle).
		Str("reason", reason).
		Msg("Listing queued for review")
	return &Result{Unmatched: true}, nil
}

func (i *Ingestor) publish(event string, p *catalog.CanonicalProduct, pt catalog.PricePoint) {
	if i.pub == nil {
		return
	}
	payload, err := json.Marshal(DealEvent{
		ProductID:   p.ID,
		ProductName: p.CanonicalName,
		RetailerID:  pt.RetailerID,
		Price:       pt.Price,
		ObservedAt:  pt.ObservedAt,
	})
	if err != nil {
		return
	}
	if err := i.pub.Publish(event, payload); err != nil {
		i.log.WithError(err).Warn().Str("event", event).Msg("Event publish failed")
	}
}

// MarkMissing flips bindings to unavailable for every product of a retailer
// whose product did not appear in the latest successful scrape. seen is the
// set of product IDs the scrape produced.
func (i *Ingestor) MarkMissing(retailerID int64, seen map[int64]bool) error {
	products, err := i.store.ProductsByRetailer(retailerID)
	if err != nil {
		return errors.NewStorage("listing retailer products", err)
	}
	for _, snap := range products {
		if seen[snap.ID] {
			continue
		}
		lock := i.productLock(snap.ID)
		lock.Lock()
		p, err := i.store.Product(snap.ID)
		if err != nil {
			lock.Unlock()
			return errors.NewStorage("loading product", err)
		}
		if b, ok := p.Bindings[retailerID]; ok && b.Available {
			b.Available = false
			b.OnSale = false
			i.detector.RecomputeBestPrice(p)
			if err := i.store.UpdateProduct(p); err != nil {
				lock.Unlock()
				return errors.NewStorage("updating product", err)
			}
		}
		lock.Unlock()
	}
	return nil
}
