// Package api exposes the read side over HTTP: category and retailer
// reference data, the merged product catalog, and per-product price history.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"pcdealtracker/internal/ledger"
	"pcdealtracker/internal/scheduler"
	"pcdealtracker/internal/store"
	"pcdealtracker/logger"
	"pcdealtracker/services/cache"
)

// Server serves the query API.
type Server struct {
	store    store.Store
	ledger   *ledger.Ledger
	cache    cache.CacheService
	cacheTTL time.Duration
	states   func() []scheduler.RetailerState
	router   *gin.Engine
	log      *logger.Logger
}

// Option configures optional server collaborators.
type Option func(*Server)

// WithCache enables response caching for the list endpoints.
func WithCache(svc cache.CacheService, ttl time.Duration) Option {
	return func(s *Server) {
		s.cache = svc
		s.cacheTTL = ttl
	}
}

// WithSchedulerStates exposes scrape loop states on the status endpoint.
func WithSchedulerStates(states func() []scheduler.RetailerState) Option {
	return func(s *Server) { s.states = states }
}

// New builds the server and its routes.
func New(st store.Store, lg *ledger.Ledger, opts ...Option) *Server {
	gin.SetMode(gin.ReleaseMode)
	s := &Server{
		store:  st,
		ledger: lg,
		log:    logger.ForComponent("api"),
	}
	for _, opt := range opts {
		opt(s)
	}

	r := gin.New()
	r.Use(gin.Recovery())

	v1 := r.Group("/api/v1")
	v1.GET("/categories", s.handleCategories)
	v1.GET("/retailers", s.handleRetailers)
	v1.GET("/merged-products", s.cached(s.handleListProducts))
	v1.GET("/merged-products/:id", s.handleProduct)
	v1.GET("/merged-products/:id/price-history", s.cached(s.handlePriceHistory))
	v1.GET("/deals", s.cached(s.handleDeals))
	v1.GET("/deals/historical-lows", s.cached(s.handleHistoricalLows))
	v1.GET("/deals/stats", s.handleDealStats)
	v1.GET("/status", s.handleStatus)
	r.GET("/healthz", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })

	s.router = r
	return s
}

// Router exposes the gin engine, mainly for tests.
func (s *Server) Router() *gin.Engine { return s.router }

// Run serves until ctx is cancelled, then shuts down draining in-flight
// requests.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info().Str("addr", addr).Msg("API listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// cached wraps a handler with memcache response caching keyed on the full
// request URI. Only successful JSON responses are cached.
func (s *Server) cached(handler gin.HandlerFunc) gin.HandlerFunc {
	if s.cache == nil {
		return handler
	}
	return func(c *gin.Context) {
		key := "api:" + c.Request.URL.RequestURI()
		if body, err := s.cache.Get(key); err == nil {
			c.Data(http.StatusOK, "application/json; charset=utf-8", body)
			return
		}

		rec := &responseRecorder{ResponseWriter: c.Writer}
		c.Writer = rec
		handler(c)

		if rec.Status() == http.StatusOK && rec.body != nil {
			if err := s.cache.Set(key, rec.body, s.cacheTTL); err != nil {
				s.log.WithError(err).Debug().Str("key", key).Msg("Response cache write failed")
			}
		}
	}
}

// responseRecorder tees the response body so it can be cached after the
// handler ran.
type responseRecorder struct {
	gin.ResponseWriter
	body []byte
}

func (r *responseRecorder) Write(b []byte) (int, error) {
	r.body = append(r.body, b...)
	return r.ResponseWriter.Write(b)
}
