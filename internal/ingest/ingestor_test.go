package ingest

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pcdealtracker/internal/catalog"
	"pcdealtracker/internal/deals"
	"pcdealtracker/internal/ledger"
	"pcdealtracker/internal/matcher"
	"pcdealtracker/internal/store"
)

type capturePublisher struct {
	mu     sync.Mutex
	events []string
}

func (c *capturePublisher) Publish(event string, payload []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, event)
	return nil
}

func (c *capturePublisher) Close() error { return nil }

func (c *capturePublisher) published() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.events...)
}

func newTestIngestor(t *testing.T) (*Ingestor, *store.MemoryStore, *capturePublisher) {
	t.Helper()
	st := store.NewMemoryStore()
	for _, c := range catalog.DefaultCategories() {
		cat := c
		require.NoError(t, st.UpsertCategory(&cat))
	}
	for _, name := range []string{"PC Case Gear", "Scorptec", "MSY"} {
		require.NoError(t, st.UpsertRetailer(&catalog.Retailer{Name: name}))
	}
	pub := &capturePublisher{}
	ing := New(st, matcher.New(st, matcher.DefaultOptions()), ledger.New(st), deals.New(st), pub)
	return ing, st, pub
}

func listing(retailerID int64, title string, price *float64, at time.Time) catalog.RawListing {
	return catalog.RawListing{
		RetailerID: retailerID,
		RawTitle:   title,
		Price:      price,
		Currency:   "AUD",
		ProductURL: "https://example.com/p",
		ObservedAt: at,
	}
}

func price(v float64) *float64 { return &v }

func TestIngestCreatesNewProduct(t *testing.T) {
	ing, st, _ := newTestIngestor(t)
	day := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)

	res, err := ing.Ingest(context.Background(), listing(1, "ASUS ROG Strix RTX 4070 OC", price(899.99), day))
	require.NoError(t, err)
	assert.Equal(t, matcher.NewProduct, res.Decision.Kind)
	assert.True(t, res.Appended)
	assert.False(t, res.OnSale)

	p, err := st.Product(res.ProductID)
	require.NoError(t, err)
	assert.Equal(t, "ASUS ROG Strix RTX 4070 OC", p.CanonicalName)
	assert.Equal(t, "ASUS", p.Brand)
	assert.Equal(t, "rtx4070", p.Model)

	b := p.Bindings[1]
	require.NotNil(t, b)
	assert.True(t, b.Available)
	assert.Equal(t, 899.99, *b.CurrentPrice)

	require.NotNil(t, p.BestPrice)
	assert.Equal(t, 899.99, *p.BestPrice)
	assert.Equal(t, int64(1), p.BestPriceRetailerID)

	pts, err := st.PricePoints(p.ID, 0)
	require.NoError(t, err)
	assert.Len(t, pts, 1)
}

func TestIngestMergesAcrossRetailers(t *testing.T) {
	ing, st, _ := newTestIngestor(t)
	day := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)

	res1, err := ing.Ingest(context.Background(), listing(1, "ASUS ROG Strix RTX 4070 OC", price(899.99), day))
	require.NoError(t, err)

	// Scorptec words the same card differently and charges more.
	res2, err := ing.Ingest(context.Background(), listing(2, "ROG Strix RTX4070 OC", price(949.99), day))
	require.NoError(t, err)
	assert.Equal(t, matcher.AutoMatch, res2.Decision.Kind)
	assert.Equal(t, res1.ProductID, res2.ProductID)

	p, err := st.Product(res1.ProductID)
	require.NoError(t, err)
	assert.Len(t, p.Bindings, 2)
	assert.Equal(t, 899.99, *p.BestPrice)
	assert.Equal(t, int64(1), p.BestPriceRetailerID)
}

func TestIngestFlagsSaleAndAllTimeLow(t *testing.T) {
	ing, _, pub := newTestIngestor(t)
	day := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)
	title := "ASUS ROG Strix RTX 4070 OC"

	_, err := ing.Ingest(context.Background(), listing(1, title, price(899.99), day))
	require.NoError(t, err)

	// A lower price with only one prior point undercuts the all-time low but
	// the sale baseline is still too thin.
	res, err := ing.Ingest(context.Background(), listing(1, title, price(879.99), day.AddDate(0, 0, 1)))
	require.NoError(t, err)
	assert.False(t, res.OnSale)
	assert.True(t, res.NewLow)

	res, err = ing.Ingest(context.Background(), listing(1, title, price(750), day.AddDate(0, 0, 2)))
	require.NoError(t, err)
	assert.True(t, res.OnSale)
	assert.True(t, res.NewLow)

	events := pub.published()
	assert.Contains(t, events, EventDealFlagged)
	assert.Contains(t, events, EventAllTimeLow)
}

func TestIngestCompactedReingestKeepsSaleFlag(t *testing.T) {
	ing, st, pub := newTestIngestor(t)
	day := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)
	title := "ASUS ROG Strix RTX 4070 OC"

	for i, v := range []float64{899.99, 889.99, 879.99} {
		_, err := ing.Ingest(context.Background(), listing(1, title, price(v), day.AddDate(0, 0, i)))
		require.NoError(t, err)
	}
	saleDay := day.AddDate(0, 0, 3)
	res, err := ing.Ingest(context.Background(), listing(1, title, price(750), saleDay))
	require.NoError(t, err)
	require.True(t, res.OnSale)

	// The next scrape of the same day sees the unchanged sale price; the
	// append compacts away and the flag holds.
	res, err = ing.Ingest(context.Background(), listing(1, title, price(750), saleDay.Add(6*time.Hour)))
	require.NoError(t, err)
	assert.False(t, res.Appended)
	assert.True(t, res.OnSale)

	p, err := st.Product(res.ProductID)
	require.NoError(t, err)
	assert.True(t, p.Bindings[1].OnSale)

	flagged := 0
	for _, e := range pub.published() {
		if e == EventDealFlagged {
			flagged++
		}
	}
	assert.Equal(t, 1, flagged)
}

func TestIngestSamePriceSameDayIsIdempotent(t *testing.T) {
	ing, st, _ := newTestIngestor(t)
	day := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)
	title := "ASUS ROG Strix RTX 4070 OC"

	res1, err := ing.Ingest(context.Background(), listing(1, title, price(899.99), day))
	require.NoError(t, err)
	assert.True(t, res1.Appended)

	res2, err := ing.Ingest(context.Background(), listing(1, title, price(899.99), day.Add(6*time.Hour)))
	require.NoError(t, err)
	assert.Equal(t, res1.ProductID, res2.ProductID)
	assert.False(t, res2.Appended)

	pts, err := st.PricePoints(res1.ProductID, 1)
	require.NoError(t, err)
	assert.Len(t, pts, 1)
}

func TestIngestDelistedPrice(t *testing.T) {
	ing, st, _ := newTestIngestor(t)
	day := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)
	title := "ASUS ROG Strix RTX 4070 OC"

	res1, err := ing.Ingest(context.Background(), listing(1, title, price(899.99), day))
	require.NoError(t, err)
	_, err = ing.Ingest(context.Background(), listing(2, title, price(949.99), day))
	require.NoError(t, err)

	// Retailer 1 delists; the best price falls back to retailer 2.
	res, err := ing.Ingest(context.Background(), listing(1, title, nil, day.AddDate(0, 0, 1)))
	require.NoError(t, err)
	assert.False(t, res.Appended)

	p, err := st.Product(res1.ProductID)
	require.NoError(t, err)
	assert.False(t, p.Bindings[1].Available)
	require.NotNil(t, p.BestPrice)
	assert.Equal(t, 949.99, *p.BestPrice)
	assert.Equal(t, int64(2), p.BestPriceRetailerID)

	// Delisting records no price point.
	pts, err := st.PricePoints(res1.ProductID, 1)
	require.NoError(t, err)
	assert.Len(t, pts, 1)
}

func TestIngestQueuesUnmatchable(t *testing.T) {
	ing, st, _ := newTestIngestor(t)

	res, err := ing.Ingest(context.Background(), listing(1, "Gift Card $50", price(50), time.Now()))
	require.NoError(t, err)
	assert.True(t, res.Unmatched)

	queued, err := st.Unmatched()
	require.NoError(t, err)
	require.Len(t, queued, 1)
	assert.Equal(t, "Gift Card $50", queued[0].Listing.RawTitle)
}

func TestIngestConcurrentRetailersConverge(t *testing.T) {
	ing, st, _ := newTestIngestor(t)
	day := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)
	title := "ASUS ROG Strix RTX 4070 OC"

	var wg sync.WaitGroup
	prices := map[int64]float64{1: 899.99, 2: 949.99, 3: 929.99}
	for rid, pr := range prices {
		wg.Add(1)
		go func(rid int64, pr float64) {
			defer wg.Done()
			_, err := ing.Ingest(context.Background(), listing(rid, title, price(pr), day))
			assert.NoError(t, err)
		}(rid, pr)
	}
	wg.Wait()

	page, err := st.ListProducts(store.ProductFilter{}, store.ProductSort{}, 1, 50)
	require.NoError(t, err)
	require.Equal(t, 1, page.Total)

	p := page.Products[0]
	assert.Len(t, p.Bindings, 3)
	require.NotNil(t, p.BestPrice)
	assert.Equal(t, 899.99, *p.BestPrice)
	assert.Equal(t, int64(1), p.BestPriceRetailerID)
}

func TestMarkMissing(t *testing.T) {
	ing, st, _ := newTestIngestor(t)
	day := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)

	res1, err := ing.Ingest(context.Background(), listing(1, "ASUS ROG Strix RTX 4070 OC", price(899.99), day))
	require.NoError(t, err)
	res2, err := ing.Ingest(context.Background(), listing(1, "AMD Ryzen 7 5800X Processor", price(299), day))
	require.NoError(t, err)

	// The next scrape only sees the CPU; the GPU listing disappeared.
	require.NoError(t, ing.MarkMissing(1, map[int64]bool{res2.ProductID: true}))

	gone, err := st.Product(res1.ProductID)
	require.NoError(t, err)
	assert.False(t, gone.Bindings[1].Available)
	assert.Nil(t, gone.BestPrice)

	kept, err := st.Product(res2.ProductID)
	require.NoError(t, err)
	assert.True(t, kept.Bindings[1].Available)
}
