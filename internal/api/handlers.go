package api

import (
	stderrors "errors"
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"pcdealtracker/internal/catalog"
	"pcdealtracker/internal/store"
)

const (
	defaultPageSize = 20
	maxPageSize     = 200
)

type retailerRef struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

type listingView struct {
	Retailer    retailerRef `json:"retailer"`
	Price       *float64    `json:"price"`
	ProductURL  string      `json:"product_url"`
	ImageURL    string      `json:"image_url,omitempty"`
	OnSale      bool        `json:"on_sale"`
	NeedsReview bool        `json:"needs_review"`
	InStock     bool        `json:"in_stock"`
	UpdatedAt   time.Time   `json:"updated_at"`
}

type allTimeLowView struct {
	Price    float64     `json:"price"`
	Date     time.Time   `json:"date"`
	Retailer retailerRef `json:"retailer"`
}

type productView struct {
	ID                int64           `json:"id"`
	Name              string          `json:"name"`
	Brand             string          `json:"brand,omitempty"`
	Model             string          `json:"model,omitempty"`
	CategoryID        int64           `json:"category_id"`
	BestPrice         *float64        `json:"best_price"`
	BestPriceRetailer *retailerRef    `json:"best_price_retailer,omitempty"`
	AllTimeLow        *allTimeLowView `json:"all_time_low,omitempty"`
	Listings          []listingView   `json:"listings"`
}

type productPageView struct {
	Total    int           `json:"total"`
	Products []productView `json:"products"`
}

type historyEntry struct {
	Retailer retailerRef `json:"retailer"`
	Date     time.Time   `json:"date"`
	Price    float64     `json:"price"`
}

func (s *Server) handleCategories(c *gin.Context) {
	cats, err := s.store.Categories()
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, cats)
}

func (s *Server) handleRetailers(c *gin.Context) {
	retailers, err := s.store.Retailers()
	if err != nil {
		s.fail(c, err)
		return
	}
	type view struct {
		ID      int64  `json:"id"`
		Name    string `json:"name"`
		BaseURL string `json:"base_url"`
	}
	out := make([]view, 0, len(retailers))
	for _, r := range retailers {
		out = append(out, view{ID: r.ID, Name: r.Name, BaseURL: r.BaseURL})
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) handleListProducts(c *gin.Context) {
	s.listFiltered(c, store.ProductFilter{})
}

// handleDeals lists products with at least one available on-sale binding.
func (s *Server) handleDeals(c *gin.Context) {
	s.listFiltered(c, store.ProductFilter{OnSale: true})
}

// handleHistoricalLows lists products currently priced at their all-time low.
func (s *Server) handleHistoricalLows(c *gin.Context) {
	s.listFiltered(c, store.ProductFilter{AtAllTimeLow: true})
}

func (s *Server) handleDealStats(c *gin.Context) {
	all, err := s.store.ListProducts(store.ProductFilter{}, store.ProductSort{}, 1, 1)
	if err != nil {
		s.fail(c, err)
		return
	}
	onSale, err := s.store.ListProducts(store.ProductFilter{OnSale: true}, store.ProductSort{}, 1, 1)
	if err != nil {
		s.fail(c, err)
		return
	}
	lows, err := s.store.ListProducts(store.ProductFilter{AtAllTimeLow: true}, store.ProductSort{}, 1, 1)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"total_products":          all.Total,
		"on_sale_products":        onSale.Total,
		"historical_low_products": lows.Total,
	})
}

// listFiltered handles the shared pagination/filter/sort parameters of the
// catalog and deals listings on top of a preset filter.
func (s *Server) listFiltered(c *gin.Context, filter store.ProductFilter) {
	page, err := intQuery(c, "page", 1)
	if err != nil || page < 1 {
		badRequest(c, "page must be a positive integer")
		return
	}
	pageSize, err := intQuery(c, "page_size", defaultPageSize)
	if err != nil || pageSize < 1 || pageSize > maxPageSize {
		badRequest(c, "page_size must be between 1 and 200")
		return
	}

	sortBy := c.DefaultQuery("sort_by", "name")
	if sortBy != "name" && sortBy != "price" {
		badRequest(c, "sort_by must be name or price")
		return
	}
	sortOrder := c.DefaultQuery("sort_order", "asc")
	if sortOrder != "asc" && sortOrder != "desc" {
		badRequest(c, "sort_order must be asc or desc")
		return
	}

	filter.Search = c.Query("search")
	if slug := c.Query("category"); slug != "" {
		cat, err := s.store.CategoryBySlug(slug)
		if err != nil {
			if stderrors.Is(err, store.ErrNotFound) {
				badRequest(c, "unknown category "+slug)
				return
			}
			s.fail(c, err)
			return
		}
		filter.CategoryID = cat.ID
	} else if raw := c.Query("category_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || id < 1 {
			badRequest(c, "category_id must be a positive integer")
			return
		}
		filter.CategoryID = id
	}

	result, err := s.store.ListProducts(filter, store.ProductSort{By: sortBy, Order: sortOrder}, page, pageSize)
	if err != nil {
		s.fail(c, err)
		return
	}

	names, err := s.retailerNames()
	if err != nil {
		s.fail(c, err)
		return
	}
	out := productPageView{Total: result.Total, Products: make([]productView, 0, len(result.Products))}
	for _, p := range result.Products {
		out.Products = append(out.Products, buildProductView(p, names))
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) handleProduct(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id < 1 {
		badRequest(c, "invalid product id")
		return
	}
	p, err := s.store.Product(id)
	if err != nil {
		if stderrors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "product not found"})
			return
		}
		s.fail(c, err)
		return
	}
	names, err := s.retailerNames()
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, buildProductView(p, names))
}

func (s *Server) handlePriceHistory(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id < 1 {
		badRequest(c, "invalid product id")
		return
	}
	if _, err := s.store.Product(id); err != nil {
		if stderrors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "product not found"})
			return
		}
		s.fail(c, err)
		return
	}

	var retailerID int64
	if raw := c.Query("retailer_id"); raw != "" {
		retailerID, err = strconv.ParseInt(raw, 10, 64)
		if err != nil || retailerID < 1 {
			badRequest(c, "retailer_id must be a positive integer")
			return
		}
	}
	days, err := intQuery(c, "days", 0)
	if err != nil || days < 0 {
		badRequest(c, "days must be a non-negative integer")
		return
	}

	pts, err := s.ledger.HistorySince(id, retailerID, days)
	if err != nil {
		s.fail(c, err)
		return
	}
	names, err := s.retailerNames()
	if err != nil {
		s.fail(c, err)
		return
	}
	out := make([]historyEntry, 0, len(pts))
	for _, pt := range pts {
		out = append(out, historyEntry{
			Retailer: retailerRef{ID: pt.RetailerID, Name: names[pt.RetailerID]},
			Date:     pt.ObservedAt,
			Price:    pt.Price,
		})
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) handleStatus(c *gin.Context) {
	if s.states == nil {
		c.JSON(http.StatusOK, gin.H{"retailers": []any{}})
		return
	}
	c.JSON(http.StatusOK, gin.H{"retailers": s.states()})
}

func (s *Server) retailerNames() (map[int64]string, error) {
	retailers, err := s.store.Retailers()
	if err != nil {
		return nil, err
	}
	names := make(map[int64]string, len(retailers))
	for _, r := range retailers {
		names[r.ID] = r.Name
	}
	return names, nil
}

// buildProductView flattens a product snapshot for the API: bindings become
// a listing array sorted cheapest first with unpriced listings last.
func buildProductView(p *catalog.CanonicalProduct, names map[int64]string) productView {
	v := productView{
		ID:         p.ID,
		Name:       p.CanonicalName,
		Brand:      p.Brand,
		Model:      p.Model,
		CategoryID: p.CategoryID,
		BestPrice:  p.BestPrice,
		Listings:   make([]listingView, 0, len(p.Bindings)),
	}
	if p.BestPriceRetailerID != 0 {
		v.BestPriceRetailer = &retailerRef{ID: p.BestPriceRetailerID, Name: names[p.BestPriceRetailerID]}
	}
	if p.AllTimeLow != nil {
		v.AllTimeLow = &allTimeLowView{
			Price:    p.AllTimeLow.Price,
			Date:     p.AllTimeLow.Date,
			Retailer: retailerRef{ID: p.AllTimeLow.RetailerID, Name: names[p.AllTimeLow.RetailerID]},
		}
	}
	for _, b := range p.Bindings {
		v.Listings = append(v.Listings, listingView{
			Retailer:    retailerRef{ID: b.RetailerID, Name: names[b.RetailerID]},
			Price:       b.CurrentPrice,
			ProductURL:  b.ProductURL,
			ImageURL:    b.ImageURL,
			OnSale:      b.OnSale,
			NeedsReview: b.NeedsReview,
			InStock:     b.Available,
			UpdatedAt:   b.UpdatedAt,
		})
	}
	sort.Slice(v.Listings, func(i, j int) bool {
		a, b := v.Listings[i], v.Listings[j]
		switch {
		case a.Price == nil && b.Price == nil:
			return a.Retailer.ID < b.Retailer.ID
		case a.Price == nil:
			return false
		case b.Price == nil:
			return true
		case *a.Price != *b.Price:
			return *a.Price < *b.Price
		default:
			return a.Retailer.ID < b.Retailer.ID
		}
	})
	return v
}

func intQuery(c *gin.Context, name string, def int) (int, error) {
	raw := c.Query(name)
	if raw == "" {
		return def, nil
	}
	return strconv.Atoi(raw)
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, gin.H{"error": msg})
}

func (s *Server) fail(c *gin.Context, err error) {
	s.log.WithError(err).Error().Str("path", c.FullPath()).Msg("Request failed")
	c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
}
