// Package deals derives the sale and all-time-low signals from the price
// history. All derived state (on_sale flags, best price, all-time low) is a
// pure function of the ledger and can be rebuilt from it.
package deals

import (
	"time"

	"pcdealtracker/internal/catalog"
	"pcdealtracker/internal/store"
	"pcdealtracker/pkg/errors"
)

// Detector evaluates deal signals for canonical products.
type Detector struct {
	store store.Store

	// BaselineWindow is how many prior points form the on-sale baseline.
	BaselineWindow int
	// MinPriorPoints is the minimum history depth before a listing can be
	// flagged on sale. Below this the baseline is too thin to mean anything.
	MinPriorPoints int
}

// New creates a detector with the default baseline of the last 5 recorded
// prices and a 2-point minimum history.
func New(st store.Store) *Detector {
	return &Detector{store: st, BaselineWindow: 5, MinPriorPoints: 2}
}

// OnSale reports whether a price observed at the given time undercuts the
// retailer's own recent baseline: strictly below the minimum of the last
// BaselineWindow recorded prices for the same (product, retailer) pair.
// Products with fewer than MinPriorPoints prior points are never on sale.
func (d *Detector) OnSale(productID, retailerID int64, price float64, observedAt time.Time) (bool, error) {
	prior, err := d.store.PricePointsBefore(productID, retailerID, observedAt, d.BaselineWindow)
	if err != nil {
		return false, errors.NewStorage("reading baseline price points", err)
	}
	return undercutsBaseline(price, prior, d.MinPriorPoints), nil
}

func undercutsBaseline(price float64, prior []catalog.PricePoint, minPoints int) bool {
	if len(prior) < minPoints {
		return false
	}
	baseline := prior[0].Price
	for _, p := range prior[1:] {
		if p.Price < baseline {
			baseline = p.Price
		}
	}
	return price < baseline
}

// UpdateAllTimeLow folds one observation into the product's cached all-time
// low. It returns true only when the observation strictly undercuts an
// existing low; the first observation seeds the cache without counting as a
// new low. An equal price with an earlier observation date moves the
// recorded date back, keeping the earliest occurrence.
func (d *Detector) UpdateAllTimeLow(p *catalog.CanonicalProduct, pt catalog.PricePoint) bool {
	cur := p.AllTimeLow
	switch {
	case cur == nil:
		p.AllTimeLow = &catalog.AllTimeLow{Price: pt.Price, Date: pt.ObservedAt, RetailerID: pt.RetailerID}
		return false
	case pt.Price < cur.Price:
		p.AllTimeLow = &catalog.AllTimeLow{Price: pt.Price, Date: pt.ObservedAt, RetailerID: pt.RetailerID}
		return true
	case pt.Price == cur.Price && pt.ObservedAt.Before(cur.Date):
		cur.Date = pt.ObservedAt
		cur.RetailerID = pt.RetailerID
		return false
	default:
		return false
	}
}

// RecomputeBestPrice refreshes the product's cached best price from its
// bindings: the minimum current price across available listings, ties going
// to the lower retailer ID. Products with no available priced listing get a
// nil best price.
func (d *Detector) RecomputeBestPrice(p *catalog.CanonicalProduct) {
	var best *catalog.Listing
	for _, b := range p.Bindings {
		if !b.Available || b.CurrentPrice == nil {
			continue
		}
		if best == nil || *b.CurrentPrice < *best.CurrentPrice ||
			(*b.CurrentPrice == *best.CurrentPrice && b.RetailerID < best.RetailerID) {
			best = b
		}
	}
	if best == nil {
		p.BestPrice = nil
		p.BestPriceRetailerID = 0
		return
	}
	v := *best.CurrentPrice
	p.BestPrice = &v
	p.BestPriceRetailerID = best.RetailerID
}

// Rebuild recomputes every derived field on the product from the full price
// history: the all-time low, each binding's on-sale flag, and the best
// price. Used to repair caches after manual corrections or migration.
func (d *Detector) Rebuild(p *catalog.CanonicalProduct) error {
	pts, err := d.store.PricePoints(p.ID, 0)
	if err != nil {
		return errors.NewStorage("reading price history", err)
	}

	p.AllTimeLow = nil
	byRetailer := make(map[int64][]catalog.PricePoint)
	for _, pt := range pts {
		d.UpdateAllTimeLow(p, pt)
		byRetailer[pt.RetailerID] = append(byRetailer[pt.RetailerID], pt)
	}

	for id, b := range p.Bindings {
		hist := byRetailer[id]
		if len(hist) == 0 {
			b.OnSale = false
			continue
		}
		latest := hist[len(hist)-1]
		prior := hist[:len(hist)-1]
		if len(prior) > d.BaselineWindow {
			prior = prior[len(prior)-d.BaselineWindow:]
		}
		b.OnSale = undercutsBaseline(latest.Price, prior, d.MinPriorPoints)
	}

	d.RecomputeBestPrice(p)
	return nil
}
