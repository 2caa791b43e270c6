package store

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pcdealtracker/internal/catalog"
)

func seedMemory(t *testing.T) *MemoryStore {
	t.Helper()
	m := NewMemoryStore()
	for _, c := range catalog.DefaultCategories() {
		cat := c
		require.NoError(t, m.UpsertCategory(&cat))
	}
	for _, name := range []string{"PC Case Gear", "Scorptec"} {
		require.NoError(t, m.UpsertRetailer(&catalog.Retailer{Name: name}))
	}
	return m
}

func TestUpsertRetailerDedupesOnName(t *testing.T) {
	m := NewMemoryStore()
	r1 := &catalog.Retailer{Name: "PC Case Gear", BaseURL: "https://old.example.com"}
	require.NoError(t, m.UpsertRetailer(r1))
	r2 := &catalog.Retailer{Name: "PC Case Gear", BaseURL: "https://www.pccasegear.com"}
	require.NoError(t, m.UpsertRetailer(r2))

	assert.Equal(t, r1.ID, r2.ID)
	got, err := m.Retailer(r1.ID)
	require.NoError(t, err)
	assert.Equal(t, "https://www.pccasegear.com", got.BaseURL)

	all, err := m.Retailers()
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestCategoryBySlug(t *testing.T) {
	m := seedMemory(t)

	c, err := m.CategoryBySlug("graphics-cards")
	require.NoError(t, err)
	assert.Equal(t, "Graphics Cards", c.Name)

	_, err = m.CategoryBySlug("toasters")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestProductSnapshotsAreIsolated(t *testing.T) {
	m := seedMemory(t)
	price := 899.99
	p := &catalog.CanonicalProduct{
		CanonicalName: "ASUS ROG Strix RTX 4070",
		CategoryID:    1,
		Bindings: map[int64]*catalog.Listing{
			1: {RetailerID: 1, CurrentPrice: &price, Available: true},
		},
	}
	require.NoError(t, m.CreateProduct(p))
	require.NotZero(t, p.ID)

	snap, err := m.Product(p.ID)
	require.NoError(t, err)

	// Mutating the snapshot does not touch the stored product.
	*snap.Bindings[1].CurrentPrice = 1.0
	snap.CanonicalName = "changed"

	fresh, err := m.Product(p.ID)
	require.NoError(t, err)
	assert.Equal(t, "ASUS ROG Strix RTX 4070", fresh.CanonicalName)
	assert.Equal(t, 899.99, *fresh.Bindings[1].CurrentPrice)
}

func TestUpdateProductUnknownID(t *testing.T) {
	m := seedMemory(t)
	err := m.UpdateProduct(&catalog.CanonicalProduct{ID: 42})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestProductsByRetailer(t *testing.T) {
	m := seedMemory(t)
	p1 := &catalog.CanonicalProduct{
		CanonicalName: "A",
		CategoryID:    1,
		Bindings:      map[int64]*catalog.Listing{1: {RetailerID: 1}},
	}
	p2 := &catalog.CanonicalProduct{
		CanonicalName: "B",
		CategoryID:    1,
		Bindings:      map[int64]*catalog.Listing{2: {RetailerID: 2}},
	}
	require.NoError(t, m.CreateProduct(p1))
	require.NoError(t, m.CreateProduct(p2))

	got, err := m.ProductsByRetailer(1)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, p1.ID, got[0].ID)
}

func addListProduct(t *testing.T, m *MemoryStore, name string, categoryID int64, best *float64) {
	t.Helper()
	p := &catalog.CanonicalProduct{CanonicalName: name, CategoryID: categoryID, BestPrice: best}
	require.NoError(t, m.CreateProduct(p))
}

func fp(v float64) *float64 { return &v }

func TestListProductsFilterAndPaging(t *testing.T) {
	m := seedMemory(t)
	for i := 0; i < 7; i++ {
		addListProduct(t, m, fmt.Sprintf("GPU %d", i), 1, fp(float64(100+i)))
	}
	addListProduct(t, m, "CPU thing", 2, fp(50))

	page, err := m.ListProducts(ProductFilter{CategoryID: 1}, ProductSort{}, 1, 5)
	require.NoError(t, err)
	assert.Equal(t, 7, page.Total)
	assert.Len(t, page.Products, 5)

	page, err = m.ListProducts(ProductFilter{CategoryID: 1}, ProductSort{}, 2, 5)
	require.NoError(t, err)
	assert.Len(t, page.Products, 2)

	// Past the end is an empty page, not an error.
	page, err = m.ListProducts(ProductFilter{CategoryID: 1}, ProductSort{}, 9, 5)
	require.NoError(t, err)
	assert.Empty(t, page.Products)
	assert.Equal(t, 7, page.Total)

	page, err = m.ListProducts(ProductFilter{Search: "cpu"}, ProductSort{}, 1, 10)
	require.NoError(t, err)
	require.Equal(t, 1, page.Total)
	assert.Equal(t, "CPU thing", page.Products[0].CanonicalName)
}

func TestListProductsDealFilters(t *testing.T) {
	m := seedMemory(t)

	sale := &catalog.CanonicalProduct{
		CanonicalName: "On Sale GPU",
		CategoryID:    1,
		BestPrice:     fp(750),
		Bindings: map[int64]*catalog.Listing{
			1: {RetailerID: 1, CurrentPrice: fp(750), Available: true, OnSale: true},
		},
		AllTimeLow: &catalog.AllTimeLow{Price: 700, RetailerID: 1},
	}
	require.NoError(t, m.CreateProduct(sale))

	// Flagged on sale but delisted since; must not count.
	delisted := &catalog.CanonicalProduct{
		CanonicalName: "Delisted GPU",
		CategoryID:    1,
		Bindings: map[int64]*catalog.Listing{
			1: {RetailerID: 1, CurrentPrice: fp(600), Available: false, OnSale: true},
		},
	}
	require.NoError(t, m.CreateProduct(delisted))

	atLow := &catalog.CanonicalProduct{
		CanonicalName: "Record Low CPU",
		CategoryID:    2,
		BestPrice:     fp(299),
		Bindings: map[int64]*catalog.Listing{
			1: {RetailerID: 1, CurrentPrice: fp(299), Available: true},
		},
		AllTimeLow: &catalog.AllTimeLow{Price: 299, RetailerID: 1},
	}
	require.NoError(t, m.CreateProduct(atLow))

	page, err := m.ListProducts(ProductFilter{OnSale: true}, ProductSort{}, 1, 10)
	require.NoError(t, err)
	require.Equal(t, 1, page.Total)
	assert.Equal(t, "On Sale GPU", page.Products[0].CanonicalName)

	page, err = m.ListProducts(ProductFilter{AtAllTimeLow: true}, ProductSort{}, 1, 10)
	require.NoError(t, err)
	require.Equal(t, 1, page.Total)
	assert.Equal(t, "Record Low CPU", page.Products[0].CanonicalName)
}

func TestSortProducts(t *testing.T) {
	products := []*catalog.CanonicalProduct{
		{ID: 1, CanonicalName: "beta", BestPrice: fp(300)},
		{ID: 2, CanonicalName: "Alpha", BestPrice: fp(100)},
		{ID: 3, CanonicalName: "gamma"},
		{ID: 4, CanonicalName: "delta", BestPrice: fp(200)},
	}

	SortProducts(products, ProductSort{By: "name", Order: "asc"})
	assert.Equal(t, []int64{2, 1, 4, 3}, ids(products))

	SortProducts(products, ProductSort{By: "price", Order: "asc"})
	assert.Equal(t, []int64{2, 4, 1, 3}, ids(products))

	// Unpriced products stay last even when descending.
	SortProducts(products, ProductSort{By: "price", Order: "desc"})
	assert.Equal(t, []int64{1, 4, 2, 3}, ids(products))
}

func ids(products []*catalog.CanonicalProduct) []int64 {
	out := make([]int64, len(products))
	for i, p := range products {
		out[i] = p.ID
	}
	return out
}

func TestPricePointsOrderingAndFilter(t *testing.T) {
	m := seedMemory(t)
	p := &catalog.CanonicalProduct{CanonicalName: "X", CategoryID: 1}
	require.NoError(t, m.CreateProduct(p))

	base := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	// Inserted out of order on purpose.
	for _, pt := range []catalog.PricePoint{
		{ProductID: p.ID, RetailerID: 1, Price: 880, ObservedAt: base.AddDate(0, 0, 2)},
		{ProductID: p.ID, RetailerID: 1, Price: 900, ObservedAt: base},
		{ProductID: p.ID, RetailerID: 2, Price: 950, ObservedAt: base.AddDate(0, 0, 1)},
	} {
		require.NoError(t, m.AppendPricePoint(pt))
	}

	all, err := m.PricePoints(p.ID, 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, 900.0, all[0].Price)
	assert.Equal(t, 950.0, all[1].Price)
	assert.Equal(t, 880.0, all[2].Price)

	one, err := m.PricePoints(p.ID, 1)
	require.NoError(t, err)
	assert.Len(t, one, 2)

	recent, err := m.PricePointsBefore(p.ID, 1, base.AddDate(0, 0, 2), 5)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Equal(t, 900.0, recent[0].Price)

	limited, err := m.PricePointsBefore(p.ID, 0, base.AddDate(0, 0, 5), 2)
	require.NoError(t, err)
	require.Len(t, limited, 2)
	assert.Equal(t, 880.0, limited[0].Price)
}

func TestAppendPricePointChecksReferences(t *testing.T) {
	m := seedMemory(t)
	err := m.AppendPricePoint(catalog.PricePoint{ProductID: 99, RetailerID: 1, Price: 10, ObservedAt: time.Now()})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUnmatchedQueue(t *testing.T) {
	m := seedMemory(t)
	require.NoError(t, m.QueueUnmatched(catalog.UnmatchedListing{
		Listing:  catalog.RawListing{RetailerID: 1, RawTitle: "Gift Card $50"},
		Reason:   "no category signal in title",
		QueuedAt: time.Now(),
	}))

	queued, err := m.Unmatched()
	require.NoError(t, err)
	require.Len(t, queued, 1)
	assert.Equal(t, "Gift Card $50", queued[0].Listing.RawTitle)
}
