// Package collector scrapes retailer listing pages into raw listings. Each
// retailer is described by a selector configuration rather than a custom
// parser, so adding a shop is data, not code.
package collector

import (
	"context"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/time/rate"

	"pcdealtracker/helpers"
	"pcdealtracker/internal/catalog"
	"pcdealtracker/logger"
	"pcdealtracker/pkg/errors"
)

// Collector produces the raw listings of one retailer.
type Collector interface {
	// Name returns the retailer name the collector scrapes.
	Name() string

	// Collect fetches and parses the retailer's listing pages. Listings
	// without a readable price come back with a nil price, not an error.
	Collect(ctx context.Context, retailer *catalog.Retailer) ([]catalog.RawListing, error)
}

// Selectors locates listing fields inside a retailer's category page.
type Selectors struct {
	// ProductList matches one element per listed product.
	ProductList string
	Title       string
	Price       string
	Link        string
	Image       string
	// Unavailable matches inside a product element when it is out of stock.
	Unavailable string
	// PriceRegex optionally narrows the price element text before parsing,
	// for shops that print strikethrough and sale prices in one element.
	PriceRegex string
}

// Config describes how to scrape one retailer.
type Config struct {
	Name          string
	BaseURL       string
	CategoryPaths []string
	Selectors     Selectors
}

// HTMLCollector is the selector-driven collector used for every retailer.
type HTMLCollector struct {
	cfg        Config
	priceRegex *regexp.Regexp
	limiter    *rate.Limiter
	log        *logger.Logger
}

// New creates a collector that waits at least requestDelay between page
// fetches.
func New(cfg Config, requestDelay time.Duration) *HTMLCollector {
	if requestDelay <= 0 {
		requestDelay = time.Second
	}
	c := &HTMLCollector{
		cfg:     cfg,
		limiter: rate.NewLimiter(rate.Every(requestDelay), 1),
		log:     logger.ForRetailer(cfg.Name),
	}
	if cfg.Selectors.PriceRegex != "" {
		c.priceRegex = regexp.MustCompile(cfg.Selectors.PriceRegex)
	}
	return c
}

func (c *HTMLCollector) Name() string { return c.cfg.Name }

// Collect walks the configured category pages sequentially. A page that
// fails to fetch aborts the whole run so the scheduler can retry it; parse
// problems inside a page only skip the affected product.
func (c *HTMLCollector) Collect(ctx context.Context, retailer *catalog.Retailer) ([]catalog.RawListing, error) {
	var listings []catalog.RawListing
	for _, path := range c.cfg.CategoryPaths {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}
		pageURL := c.cfg.BaseURL + path
		body, err := helpers.FetchPage(ctx, pageURL)
		if err != nil {
			return nil, err
		}
		doc, err := goquery.NewDocumentFromReader(body)
		if err != nil {
			return nil, errors.NewParsing(c.cfg.Name, "parsing listing page", err)
		}
		observedAt := time.Now().UTC()
		doc.Find(c.cfg.Selectors.ProductList).Each(func(_ int, s *goquery.Selection) {
			if l := c.parseProduct(s, retailer.ID, observedAt); l != nil {
				listings = append(listings, *l)
			}
		})
	}
	c.log.Debug().Int("listings", len(listings)).Msg("Collected listings")
	return listings, nil
}

// parseProduct extracts one listing from a product element. Elements without
// a title or link are skipped; a missing or unparseable price becomes a nil
// price so the product is still tracked as unavailable.
func (c *HTMLCollector) parseProduct(s *goquery.Selection, retailerID int64, observedAt time.Time) *catalog.RawListing {
	titleSel := s.Find(c.cfg.Selectors.Title)
	title := strings.TrimSpace(titleSel.Text())
	if t, ok := titleSel.Attr("title"); ok && strings.TrimSpace(t) != "" {
		title = strings.TrimSpace(t)
	}
	if title == "" {
		return nil
	}

	link, ok := s.Find(c.cfg.Selectors.Link).Attr("href")
	if !ok || strings.TrimSpace(link) == "" {
		return nil
	}

	listing := &catalog.RawListing{
		RetailerID: retailerID,
		RawTitle:   title,
		Currency:   "AUD",
		ProductURL: c.resolveURL(strings.TrimSpace(link)),
		ObservedAt: observedAt,
	}

	if c.cfg.Selectors.Image != "" {
		if src, ok := s.Find(c.cfg.Selectors.Image).Attr("src"); ok {
			listing.ImageURL = c.resolveURL(strings.TrimSpace(src))
		}
	}

	if c.cfg.Selectors.Unavailable != "" && s.Find(c.cfg.Selectors.Unavailable).Length() > 0 {
		return listing
	}
	raw := strings.TrimSpace(s.Find(c.cfg.Selectors.Price).First().Text())
	if c.priceRegex != nil {
		raw = c.priceRegex.FindString(raw)
	}
	if raw == "" {
		return listing
	}
	price, err := helpers.ParsePrice(raw)
	if err != nil {
		c.log.Debug().Str("title", title).Str("price", raw).Msg("Unparseable price")
		return listing
	}
	listing.Price = &price
	return listing
}

func (c *HTMLCollector) resolveURL(href string) string {
	if href == "" || strings.HasPrefix(href, "http://") || strings.HasPrefix(href, "https://") {
		return href
	}
	base, err := url.Parse(c.cfg.BaseURL)
	if err != nil {
		return href
	}
	ref, err := url.Parse(href)
	if err != nil {
		return href
	}
	return base.ResolveReference(ref).String()
}
