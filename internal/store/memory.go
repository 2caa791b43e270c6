package store

import (
	"sort"
	"strings"
	"sync"
	"time"

	"pcdealtracker/internal/catalog"
)

// MemoryStore is the in-process Store used by tests and by deployments
// without a DATABASE_URL. Reads hand out deep copies so API readers never
// observe a product mid-update.
type MemoryStore struct {
	mu sync.RWMutex

	retailers  map[int64]*catalog.Retailer
	categories map[int64]*catalog.Category
	products   map[int64]*catalog.CanonicalProduct
	points     map[int64][]catalog.PricePoint
	unmatched  []catalog.UnmatchedListing

	nextRetailerID int64
	nextCategoryID int64
	nextProductID  int64
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		retailers:  make(map[int64]*catalog.Retailer),
		categories: make(map[int64]*catalog.Category),
		products:   make(map[int64]*catalog.CanonicalProduct),
		points:     make(map[int64][]catalog.PricePoint),
	}
}

func (m *MemoryStore) UpsertRetailer(r *catalog.Retailer) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.retailers {
		if existing.Name == r.Name {
			r.ID = existing.ID
			cp := *r
			m.retailers[r.ID] = &cp
			return nil
		}
	}
	if r.ID == 0 {
		m.nextRetailerID++
		r.ID = m.nextRetailerID
	} else if r.ID > m.nextRetailerID {
		m.nextRetailerID = r.ID
	}
	cp := *r
	m.retailers[r.ID] = &cp
	return nil
}

func (m *MemoryStore) Retailer(id int64) (*catalog.Retailer, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.retailers[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *r
	return &cp, nil
}

func (m *MemoryStore) Retailers() ([]*catalog.Retailer, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*catalog.Retailer, 0, len(m.retailers))
	for _, r := range m.retailers {
		cp := *r
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *MemoryStore) UpsertCategory(c *catalog.Category) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.categories {
		if existing.Slug == c.Slug {
			c.ID = existing.ID
			cp := *c
			m.categories[c.ID] = &cp
			return nil
		}
	}
	if c.ID == 0 {
		m.nextCategoryID++
		c.ID = m.nextCategoryID
	} else if c.ID > m.nextCategoryID {
		m.nextCategoryID = c.ID
	}
	cp := *c
	m.categories[c.ID] = &cp
	return nil
}

func (m *MemoryStore) Categories() ([]*catalog.Category, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*catalog.Category, 0, len(m.categories))
	for _, c := range m.categories {
		cp := *c
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m *MemoryStore) CategoryBySlug(slug string) (*catalog.Category, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, c := range m.categories {
		if c.Slug == slug {
			cp := *c
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (m *MemoryStore) CreateProduct(p *catalog.CanonicalProduct) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextProductID++
	p.ID = m.nextProductID
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now()
	}
	m.products[p.ID] = p.Clone()
	return nil
}

func (m *MemoryStore) Product(id int64) (*catalog.CanonicalProduct, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.products[id]
	if !ok {
		return nil, ErrNotFound
	}
	return p.Clone(), nil
}

func (m *MemoryStore) ProductsByCategory(categoryID int64) ([]*catalog.CanonicalProduct, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*catalog.CanonicalProduct
	for _, p := range m.products {
		if p.CategoryID == categoryID {
			out = append(out, p.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *MemoryStore) ProductsByRetailer(retailerID int64) ([]*catalog.CanonicalProduct, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*catalog.CanonicalProduct
	for _, p := range m.products {
		if _, ok := p.Bindings[retailerID]; ok {
			out = append(out, p.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *MemoryStore) UpdateProduct(p *catalog.CanonicalProduct) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.products[p.ID]; !ok {
		return ErrNotFound
	}
	// Swap in a committed snapshot; readers holding the old clone keep a
	// consistent view.
	m.products[p.ID] = p.Clone()
	return nil
}

func (m *MemoryStore) ListProducts(f ProductFilter, s ProductSort, page, pageSize int) (*ProductPage, error) {
	m.mu.RLock()
	var filtered []*catalog.CanonicalProduct
	search := strings.ToLower(f.Search)
	for _, p := range m.products {
		if f.CategoryID != 0 && p.CategoryID != f.CategoryID {
			continue
		}
		if search != "" && !strings.Contains(strings.ToLower(p.CanonicalName), search) {
			continue
		}
		if f.OnSale && !onSaleProduct(p) {
			continue
		}
		if f.AtAllTimeLow && !atAllTimeLow(p) {
			continue
		}
		filtered = append(filtered, p.Clone())
	}
	m.mu.RUnlock()

	SortProducts(filtered, s)

	total := len(filtered)
	start := (page - 1) * pageSize
	if start > total {
		start = total
	}
	end := start + pageSize
	if end > total {
		end = total
	}
	return &ProductPage{Products: filtered[start:end], Total: total}, nil
}

func onSaleProduct(p *catalog.CanonicalProduct) bool {
	for _, b := range p.Bindings {
		if b.Available && b.OnSale {
			return true
		}
	}
	return false
}

func atAllTimeLow(p *catalog.CanonicalProduct) bool {
	return p.AllTimeLow != nil && p.BestPrice != nil && *p.BestPrice <= p.AllTimeLow.Price
}

// SortProducts orders products in place per the ProductSort contract. It is
// shared by the memory store and by tests verifying the SQL ordering.
func SortProducts(products []*catalog.CanonicalProduct, s ProductSort) {
	desc := s.Order == "desc"
	switch s.By {
	case "price":
		sort.SliceStable(products, func(i, j int) bool {
			pi, pj := products[i].BestPrice, products[j].BestPrice
			// Products without an available price sort last in either
			// direction.
			if pi == nil && pj == nil {
				return products[i].ID < products[j].ID
			}
			if pi == nil {
				return false
			}
			if pj == nil {
				return true
			}
			if *pi != *pj {
				if desc {
					return *pi > *pj
				}
				return *pi < *pj
			}
			return products[i].ID < products[j].ID
		})
	default: // name
		sort.SliceStable(products, func(i, j int) bool {
			ni := strings.ToLower(products[i].CanonicalName)
			nj := strings.ToLower(products[j].CanonicalName)
			if ni != nj {
				if desc {
					return ni > nj
				}
				return ni < nj
			}
			return products[i].ID < products[j].ID
		})
	}
}

func (m *MemoryStore) AppendPricePoint(pt catalog.PricePoint) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.products[pt.ProductID]; !ok {
		return ErrNotFound
	}
	if _, ok := m.retailers[pt.RetailerID]; !ok {
		return ErrNotFound
	}
	m.points[pt.ProductID] = append(m.points[pt.ProductID], pt)
	return nil
}

func (m *MemoryStore) PricePoints(productID, retailerID int64) ([]catalog.PricePoint, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []catalog.PricePoint
	for _, pt := range m.points[productID] {
		if retailerID != 0 && pt.RetailerID != retailerID {
			continue
		}
		out = append(out, pt)
	}
	// Ordering for history reads is by observation time, not insertion
	// order; the stable sort keeps insertion order as the final tie-break.
	sort.SliceStable(out, func(i, j int) bool { return out[i].ObservedAt.Before(out[j].ObservedAt) })
	return out, nil
}

func (m *MemoryStore) PricePointsBefore(productID, retailerID int64, before time.Time, limit int) ([]catalog.PricePoint, error) {
	pts, err := m.PricePoints(productID, retailerID)
	if err != nil {
		return nil, err
	}
	var out []catalog.PricePoint
	for i := len(pts) - 1; i >= 0; i-- {
		if !pts[i].ObservedAt.Before(before) {
			continue
		}
		out = append(out, pts[i])
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (m *MemoryStore) QueueUnmatched(u catalog.UnmatchedListing) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.unmatched = append(m.unmatched, u)
	return nil
}

func (m *MemoryStore) Unmatched() ([]catalog.UnmatchedListing, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]catalog.UnmatchedListing, len(m.unmatched))
	copy(out, m.unmatched)
	return out, nil
}

var _ Store = (*MemoryStore)(nil)
