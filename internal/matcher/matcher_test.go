package matcher

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pcdealtracker/internal/catalog"
	"pcdealtracker/internal/store"
)

func TestNormalize(t *testing.T) {
	n := Normalize("  ASUS ROG Strix   RTX 4070 OC - Free Shipping ")
	assert.Equal(t, "ASUS ROG Strix RTX 4070 OC", n.CleanTitle)
	assert.Equal(t, "ASUS", n.Brand)
	assert.Equal(t, "rtx4070", n.Model)
	assert.Equal(t, "graphics-cards", n.Category)
	assert.Contains(t, n.Tokens, "rtx4070")
	assert.Contains(t, n.Tokens, "strix")
	assert.NotContains(t, n.Tokens, "shipping")
}

func TestNormalizeGluesModelTokens(t *testing.T) {
	spaced := Normalize("Gigabyte RTX 4070 Gaming OC")
	glued := Normalize("Gigabyte RTX4070 Gaming OC")
	assert.Equal(t, spaced.Tokens, glued.Tokens)
	assert.Equal(t, "rtx4070", spaced.Model)
	assert.Equal(t, "rtx4070", glued.Model)
}

func TestExtractModel(t *testing.T) {
	cases := map[string]string{
		"AMD Ryzen 7 5800X Processor":         "ryzen75800x",
		"Intel Core i7-13700K CPU":            "i713700k",
		"Sapphire RX 6700 XT Pulse":           "rx6700xt",
		"MSI RTX 4070 Ti Gaming X":            "rtx4070ti",
		"Samsung 980Pro 1TB NVMe SSD":         "980pro",
		"Corsair Vengeance 32GB DDR5 Memory":  "",
	}
	for title, want := range cases {
		n := Normalize(title)
		assert.Equal(t, want, n.Model, "title %q", title)
	}
}

func TestInferCategory(t *testing.T) {
	cases := map[string]string{
		"ASUS ROG Strix RTX 4070":             "graphics-cards",
		"AMD Ryzen 7 5800X":                   "cpus",
		"Corsair Vengeance 32GB DDR5":         "memory",
		"Samsung 980 Pro 1TB NVMe SSD":        "storage",
		"MSI MAG B650 Tomahawk Motherboard":   "motherboards",
		"Corsair RM850x Power Supply":         "power-supplies",
		"NZXT H510 Flow Mid Tower":            "cases",
		"Noctua NH-D15 CPU Cooler":            "cooling",
		"LG UltraGear 27 Inch Monitor":        "monitors",
		"Logitech G Pro Wireless Mouse":       "peripherals",
		"Gift Card $50":                       "",
	}
	for title, want := range cases {
		n := Normalize(title)
		assert.Equal(t, want, n.Category, "title %q", title)
	}
}

func TestScoreMergesRewordedListings(t *testing.T) {
	existing := Normalize("ASUS ROG Strix RTX 4070")
	incoming := Normalize("ROG Strix RTX4070 OC")
	assert.GreaterOrEqual(t, Score(incoming, existing), 0.85)
}

func TestScoreKeepsDifferentModelsApart(t *testing.T) {
	existing := Normalize("ASUS ROG Strix RTX 4070")
	incoming := Normalize("Gigabyte RTX 4080 Gaming OC")
	assert.Less(t, Score(incoming, existing), 0.60)
}

func TestScoreKeepsBoardPartnersApart(t *testing.T) {
	// Same GPU chip, different physical products.
	existing := Normalize("ASUS ROG Strix RTX 4070")
	incoming := Normalize("MSI RTX 4070 Ventus 2X")
	assert.Less(t, Score(incoming, existing), 0.85)
}

func TestLevenshtein(t *testing.T) {
	assert.Equal(t, 0, levenshtein("rtx4070", "rtx4070"))
	assert.Equal(t, 1, levenshtein("rtx4070", "rtx4080"))
	assert.Equal(t, 2, levenshtein("rtx4070", "rtx4070ti"))
	assert.Equal(t, 7, levenshtein("", "rtx4070"))
}

func seedMatcherStore(t *testing.T) (*store.MemoryStore, int64) {
	t.Helper()
	st := store.NewMemoryStore()
	cat := &catalog.Category{Name: "Graphics Cards", Slug: "graphics-cards"}
	require.NoError(t, st.UpsertCategory(cat))
	return st, cat.ID
}

func TestMatchDecisionPolicy(t *testing.T) {
	st, catID := seedMatcherStore(t)
	m := New(st, DefaultOptions())

	existing := &catalog.CanonicalProduct{
		CanonicalName: "ASUS ROG Strix RTX 4070",
		Model:         "rtx4070",
		CategoryID:    catID,
	}
	require.NoError(t, st.CreateProduct(existing))

	// High-confidence rewording auto-matches.
	d, err := m.Match(Normalize("ROG Strix RTX4070 OC"), catID)
	require.NoError(t, err)
	assert.Equal(t, AutoMatch, d.Kind)
	assert.Equal(t, existing.ID, d.Product.ID)

	// A different model creates a new product.
	d, err = m.Match(Normalize("Gigabyte RTX 4080 Gaming OC"), catID)
	require.NoError(t, err)
	assert.Equal(t, NewProduct, d.Kind)

	// Empty category scans find nothing.
	d, err = m.Match(Normalize("ASUS ROG Strix RTX 4070"), catID+99)
	require.NoError(t, err)
	assert.Equal(t, NewProduct, d.Kind)
}

func TestMatchTieBreakPrefersEstablishedProduct(t *testing.T) {
	st, catID := seedMatcherStore(t)
	m := New(st, DefaultOptions())

	lone := &catalog.CanonicalProduct{
		CanonicalName: "MSI RTX 4070 Ventus 2X",
		Model:         "rtx4070",
		CategoryID:    catID,
	}
	require.NoError(t, st.CreateProduct(lone))

	established := &catalog.CanonicalProduct{
		CanonicalName: "MSI RTX 4070 Ventus 2X",
		Model:         "rtx4070",
		CategoryID:    catID,
		Bindings: map[int64]*catalog.Listing{
			1: {RetailerID: 1, Available: true},
			2: {RetailerID: 2, Available: true},
		},
	}
	require.NoError(t, st.CreateProduct(established))

	d, err := m.Match(Normalize("MSI RTX 4070 Ventus 2X"), catID)
	require.NoError(t, err)
	assert.Equal(t, AutoMatch, d.Kind)
	assert.Equal(t, established.ID, d.Product.ID)
}
