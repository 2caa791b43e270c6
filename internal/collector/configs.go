package collector

import "time"

// DefaultConfigs returns the scrape configurations for the tracked
// Australian retailers. Selectors follow each shop's listing page markup.
func DefaultConfigs() []Config {
	return []Config{
		{
			Name:    "PC Case Gear",
			BaseURL: "https://www.pccasegear.com",
			CategoryPaths: []string{
				"/category/193/graphics-cards",
				"/category/187/cpus",
				"/category/186/memory",
				"/category/210/ssd-drives",
			},
			Selectors: Selectors{
				ProductList: ".product-container",
				Title:       ".product-title",
				Price:       ".price-box .price",
				Link:        "a.product-image",
				Image:       "a.product-image img",
				Unavailable: ".out-of-stock",
			},
		},
		{
			Name:    "Scorptec",
			BaseURL: "https://www.scorptec.com.au",
			CategoryPaths: []string{
				"/product/graphics-cards",
				"/product/cpu",
				"/product/memory",
				"/product/hard-drives-ssds",
			},
			Selectors: Selectors{
				ProductList: ".product-list-detail",
				Title:       ".detail-product-title a",
				Price:       ".detail-product-price",
				Link:        ".detail-product-title a",
				Image:       ".detail-image img",
				Unavailable: ".stock-out",
			},
		},
		{
			Name:    "MSY",
			BaseURL: "https://www.msy.com.au",
			CategoryPaths: []string{
				"/graphics-cards",
				"/cpu",
				"/memory-ram",
				"/ssd",
			},
			Selectors: Selectors{
				ProductList: ".product-item",
				Title:       ".product-name",
				Price:       ".product-price",
				Link:        ".product-name a",
				Image:       ".product-image img",
			},
		},
		{
			Name:    "Centre Com",
			BaseURL: "https://www.centrecom.com.au",
			CategoryPaths: []string{
				"/graphics-cards",
				"/processors",
				"/memory",
				"/solid-state-drives",
			},
			Selectors: Selectors{
				ProductList: ".product-grid-item",
				Title:       ".product-title",
				Price:       ".saleprice",
				Link:        "a.product-link",
				Image:       ".product-img img",
			},
		},
		{
			Name:    "Computer Alliance",
			BaseURL: "https://www.computeralliance.com.au",
			CategoryPaths: []string{
				"/graphics-cards",
				"/cpus",
				"/memory",
				"/ssds",
			},
			Selectors: Selectors{
				ProductList: ".product",
				Title:       ".product-title a",
				Price:       ".price",
				Link:        ".product-title a",
				Image:       ".product-img img",
				Unavailable: ".sold-out",
			},
		},
		{
			Name:    "Shopping Express",
			BaseURL: "https://www.shoppingexpress.com.au",
			CategoryPaths: []string{
				"/buy/graphics-cards",
				"/buy/cpu-processors",
				"/buy/memory",
				"/buy/ssd",
			},
			Selectors: Selectors{
				ProductList: ".thumbnail.product-item",
				Title:       ".product-title a",
				Price:       ".price",
				Link:        ".product-title a",
				Image:       ".product-img img",
			},
		},
		{
			Name:    "JW Computers",
			BaseURL: "https://www.jw.com.au",
			CategoryPaths: []string{
				"/graphics-cards",
				"/processors",
				"/memory",
				"/storage-ssd",
			},
			Selectors: Selectors{
				ProductList: ".product-item-info",
				Title:       ".product-item-link",
				Price:       ".price",
				Link:        ".product-item-link",
				Image:       ".product-image-photo",
			},
		},
		{
			Name:    "Austin Computers",
			BaseURL: "https://www.austin.net.au",
			CategoryPaths: []string{
				"/video-cards",
				"/cpu",
				"/memory",
				"/ssd",
			},
			Selectors: Selectors{
				ProductList: ".product-layout",
				Title:       ".caption a",
				Price:       ".price-new, .price",
				Link:        ".caption a",
				Image:       ".image img",
				Unavailable: ".out-of-stock",
			},
		},
	}
}

// BuildAll creates one collector per default retailer config.
func BuildAll(requestDelay time.Duration) []Collector {
	configs := DefaultConfigs()
	collectors := make([]Collector, 0, len(configs))
	for _, cfg := range configs {
		collectors = append(collectors, New(cfg, requestDelay))
	}
	return collectors
}
