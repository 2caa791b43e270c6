package matcher

import (
	"pcdealtracker/internal/catalog"
	"pcdealtracker/internal/store"
)

// Kind tags a match decision.
type Kind int

const (
	// AutoMatch assigns the listing to the best candidate outright.
	AutoMatch Kind = iota
	// ReviewMatch assigns tentatively; the binding is flagged for manual
	// correction but still counts in price stats.
	ReviewMatch
	// NewProduct seeds a new canonical product from the listing.
	NewProduct
)

func (k Kind) String() string {
	switch k {
	case AutoMatch:
		return "auto_match"
	case ReviewMatch:
		return "review_match"
	case NewProduct:
		return "new_product"
	default:
		return "unknown"
	}
}

// Decision is the outcome of matching one listing. Product is nil for
// NewProduct decisions.
type Decision struct {
	Kind    Kind
	Product *catalog.CanonicalProduct
	Score   float64
}

// Options holds the tunable similarity thresholds.
type Options struct {
	AutoThreshold   float64
	ReviewThreshold float64
}

// DefaultOptions returns the default thresholds. They are starting points
// for category-bounded token/edit-distance matching and should be tuned
// against real retailer title variance.
func DefaultOptions() Options {
	return Options{AutoThreshold: 0.85, ReviewThreshold: 0.60}
}

// Matcher maps raw listings onto canonical products.
type Matcher struct {
	store store.Store
	opts  Options
}

// New creates a matcher over the given store.
func New(st store.Store, opts Options) *Matcher {
	if opts.AutoThreshold == 0 {
		opts = DefaultOptions()
	}
	return &Matcher{store: st, opts: opts}
}

// Match scores the normalized listing against every candidate in its
// category and applies the decision policy. Candidate search is bounded by
// category to keep the scan cost proportional to the category size, not the
// whole catalog.
func (m *Matcher) Match(n Normalized, categoryID int64) (Decision, error) {
	candidates, err := m.store.ProductsByCategory(categoryID)
	if err != nil {
		return Decision{}, err
	}

	var best *catalog.CanonicalProduct
	var bestScore float64
	for _, c := range candidates {
		cn := Normalize(c.CanonicalName)
		if c.Model != "" {
			cn.Model = c.Model
		}
		s := Score(n, cn)
		if s > bestScore {
			best, bestScore = c, s
			continue
		}
		// Equal scores prefer the more established product: more retailer
		// bindings, then lower ID for determinism.
		if s == bestScore && best != nil && moreEstablished(c, best) {
			best = c
		}
	}

	switch {
	case best != nil && bestScore >= m.opts.AutoThreshold:
		return Decision{Kind: AutoMatch, Product: best, Score: bestScore}, nil
	case best != nil && bestScore >= m.opts.ReviewThreshold:
		return Decision{Kind: ReviewMatch, Product: best, Score: bestScore}, nil
	default:
		return Decision{Kind: NewProduct, Score: bestScore}, nil
	}
}

func moreEstablished(a, b *catalog.CanonicalProduct) bool {
	if len(a.Bindings) != len(b.Bindings) {
		return len(a.Bindings) > len(b.Bindings)
	}
	return a.ID < b.ID
}
