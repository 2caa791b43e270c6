// Package ledger records price observations per (product, retailer) pair.
// The history is append-only and compacted: re-observing an unchanged price
// on the same calendar day is dropped, a changed price is always recorded.
package ledger

import (
	"time"

	"pcdealtracker/internal/catalog"
	"pcdealtracker/internal/store"
	"pcdealtracker/pkg/errors"
)

// sameDayScan bounds how many stored points are inspected when checking for
// a same-day duplicate. A pair rarely accumulates more than a handful of
// points per day, so a small window is enough.
const sameDayScan = 64

// Ledger appends and reads price points for canonical products.
type Ledger struct {
	store store.Store
}

// New creates a ledger over the given store.
func New(st store.Store) *Ledger {
	return &Ledger{store: st}
}

// Append records a price observation. It returns false when the point was
// compacted away: an identical price already recorded for the same
// (product, retailer) pair on the same UTC calendar day. A changed price is
// always appended, even when the pair flips back and forth within a day.
// Out-of-order observations are accepted as-is.
func (l *Ledger) Append(pt catalog.PricePoint) (bool, error) {
	if pt.ProductID == 0 || pt.RetailerID == 0 {
		return false, errors.NewValidation("price point missing product or retailer")
	}
	if pt.Price < 0 {
		return false, errors.NewValidation("price point has negative price")
	}
	if pt.ObservedAt.IsZero() {
		pt.ObservedAt = time.Now().UTC()
	}
	pt.ObservedAt = pt.ObservedAt.UTC()

	dayStart := pt.ObservedAt.Truncate(24 * time.Hour)
	dayEnd := dayStart.Add(24 * time.Hour)

	prior, err := l.store.PricePointsBefore(pt.ProductID, pt.RetailerID, dayEnd, sameDayScan)
	if err != nil {
		return false, errors.NewStorage("reading prior price points", err)
	}
	for _, p := range prior {
		if p.ObservedAt.Before(dayStart) {
			// Points arrive newest first; everything past this is an
			// earlier day.
			break
		}
		if p.Price == pt.Price {
			return false, nil
		}
	}

	if err := l.store.AppendPricePoint(pt); err != nil {
		return false, errors.NewStorage("appending price point", err)
	}
	return true, nil
}

// History returns the recorded points for a product ordered by observation
// time ascending. A zero retailerID returns points across all retailers.
func (l *Ledger) History(productID, retailerID int64) ([]catalog.PricePoint, error) {
	pts, err := l.store.PricePoints(productID, retailerID)
	if err != nil {
		return nil, errors.NewStorage("reading price history", err)
	}
	return pts, nil
}

// HistorySince filters History to points observed within the last given
// number of days. days <= 0 returns the full history.
func (l *Ledger) HistorySince(productID, retailerID int64, days int) ([]catalog.PricePoint, error) {
	pts, err := l.History(productID, retailerID)
	if err != nil {
		return nil, err
	}
	if days <= 0 {
		return pts, nil
	}
	cutoff := time.Now().UTC().AddDate(0, 0, -days)
	for i, p := range pts {
		if !p.ObservedAt.Before(cutoff) {
			return pts[i:], nil
		}
	}
	return pts[:0], nil
}
