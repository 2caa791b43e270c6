// Package scheduler runs the periodic scrape cycles. Each retailer gets its
// own loop with jittered intervals; a shared semaphore caps how many
// collectors run at once, and persistently failing retailers are backed off
// with a multiplied interval instead of being hammered.
package scheduler

import (
	"context"
	stderrors "errors"
	"math/rand"
	"sync"
	"time"

	"pcdealtracker/internal/catalog"
	"pcdealtracker/internal/collector"
	"pcdealtracker/internal/ingest"
	"pcdealtracker/logger"
	"pcdealtracker/pkg/errors"
)

// Status describes where a retailer's latest cycle stands.
type Status int

const (
	// StatusPending means no cycle has completed yet.
	StatusPending Status = iota
	// StatusRetrying means the current cycle failed at least once and is
	// being retried.
	StatusRetrying
	// StatusSucceeded means the latest cycle completed.
	StatusSucceeded
	// StatusDegraded means the latest cycle exhausted its retries.
	StatusDegraded
)

func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusRetrying:
		return "retrying"
	case StatusSucceeded:
		return "succeeded"
	case StatusDegraded:
		return "degraded"
	default:
		return "unknown"
	}
}

// RetailerState is a point-in-time view of one retailer's scrape loop.
type RetailerState struct {
	Retailer     string    `json:"retailer"`
	Status       string    `json:"status"`
	Attempts     int       `json:"attempts"`
	FailedCycles int       `json:"failed_cycles"`
	LastRun      time.Time `json:"last_run,omitempty"`
	LastSuccess  time.Time `json:"last_success,omitempty"`
	Listings     int       `json:"listings"`
}

// Sink consumes the listings a cycle produces. *ingest.Ingestor implements
// it; tests substitute their own.
type Sink interface {
	Ingest(ctx context.Context, raw catalog.RawListing) (*ingest.Result, error)
	MarkMissing(retailerID int64, seen map[int64]bool) error
}

// Config tunes the scheduler.
type Config struct {
	// Interval is the base gap between scrape cycles per retailer.
	Interval time.Duration
	// Timeout bounds one collector run.
	Timeout time.Duration
	// MaxConcurrent caps simultaneously running collectors.
	MaxConcurrent int
	// RetryMaxAttempts is the per-cycle attempt budget.
	RetryMaxAttempts int
	// RetryBaseDelay is the first retry backoff; it doubles per attempt.
	RetryBaseDelay time.Duration
	// BreakerFailureCycles is how many consecutive failed cycles trip the
	// interval multiplier.
	BreakerFailureCycles int
}

func (c Config) withDefaults() Config {
	if c.Interval <= 0 {
		c.Interval = 6 * time.Hour
	}
	if c.Timeout <= 0 {
		c.Timeout = time.Minute
	}
	if c.MaxConcurrent <= 0 {
		c.MaxConcurrent = 10
	}
	if c.RetryMaxAttempts <= 0 {
		c.RetryMaxAttempts = 3
	}
	if c.RetryBaseDelay <= 0 {
		c.RetryBaseDelay = time.Second
	}
	if c.BreakerFailureCycles <= 0 {
		c.BreakerFailureCycles = 3
	}
	return c
}

// maxIntervalMultiplier caps how far the breaker stretches the interval.
const maxIntervalMultiplier = 8

type job struct {
	retailer  *catalog.Retailer
	collector collector.Collector

	mu           sync.Mutex
	status       Status
	attempts     int
	failedCycles int
	multiplier   int
	lastRun      time.Time
	lastSuccess  time.Time
	listings     int
}

// Scheduler drives one scrape loop per retailer.
type Scheduler struct {
	cfg  Config
	sink Sink
	jobs []*job
	sem  chan struct{}
	log  *logger.Logger
	wg   sync.WaitGroup
}

// New builds a scheduler for the given retailer/collector pairs. The
// retailers slice must be parallel to collectors.
func New(cfg Config, sink Sink, retailers []*catalog.Retailer, collectors []collector.Collector) *Scheduler {
	cfg = cfg.withDefaults()
	s := &Scheduler{
		cfg:  cfg,
		sink: sink,
		sem:  make(chan struct{}, cfg.MaxConcurrent),
		log:  logger.ForComponent("scheduler"),
	}
	for i, c := range collectors {
		s.jobs = append(s.jobs, &job{retailer: retailers[i], collector: c, multiplier: 1})
	}
	return s
}

// Run starts every retailer loop and blocks until ctx is cancelled and all
// in-flight cycles have drained.
func (s *Scheduler) Run(ctx context.Context) {
	s.log.Info().
		Int("retailers", len(s.jobs)).
		Dur("interval", s.cfg.Interval).
		Msg("Scheduler started")
	for _, j := range s.jobs {
		s.wg.Add(1)
		go s.loop(ctx, j)
	}
	s.wg.Wait()
}

func (s *Scheduler) loop(ctx context.Context, j *job) {
	defer s.wg.Done()
	for {
		s.runCycle(ctx, j)
		select {
		case <-ctx.Done():
			return
		case <-time.After(s.nextInterval(j)):
		}
	}
}

// nextInterval is the breaker-adjusted base interval with up to 10% jitter
// so retailer loops drift apart.
func (s *Scheduler) nextInterval(j *job) time.Duration {
	j.mu.Lock()
	mult := j.multiplier
	j.mu.Unlock()
	interval := s.cfg.Interval * time.Duration(mult)
	jitter := time.Duration(rand.Int63n(int64(interval)/10 + 1))
	return interval + jitter
}

// runCycle executes one scrape cycle for a retailer: collect with retries,
// feed the listings through the sink, then mark vanished listings
// unavailable.
func (s *Scheduler) runCycle(ctx context.Context, j *job) {
	select {
	case s.sem <- struct{}{}:
	case <-ctx.Done():
		return
	}
	defer func() { <-s.sem }()

	j.mu.Lock()
	j.lastRun = time.Now().UTC()
	j.attempts = 0
	j.mu.Unlock()

	listings, err := s.collectWithRetry(ctx, j)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		s.cycleFailed(j, err)
		return
	}

	seen := make(map[int64]bool)
	ingestFailed := false
	for _, raw := range listings {
		res, err := s.sink.Ingest(ctx, raw)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			ingestFailed = true
			s.log.WithError(err).Warn().
				Str("retailer", j.retailer.Name).
				Str("title", raw.RawTitle).
				Msg("Listing ingest failed")
			continue
		}
		if !res.Unmatched {
			seen[res.ProductID] = true
		}
	}
	// A failed ingest leaves its product out of seen, so delist marking
	// would misread the failure as the retailer dropping the listing.
	if ingestFailed {
		s.log.Warn().
			Str("retailer", j.retailer.Name).
			Msg("Skipping delist marking after ingest errors")
	} else if err := s.sink.MarkMissing(j.retailer.ID, seen); err != nil {
		s.log.WithError(err).Warn().
			Str("retailer", j.retailer.Name).
			Msg("Marking missing listings failed")
	}

	j.mu.Lock()
	j.status = StatusSucceeded
	j.failedCycles = 0
	j.multiplier = 1
	j.lastSuccess = time.Now().UTC()
	j.listings = len(listings)
	j.mu.Unlock()
	s.log.Info().
		Str("retailer", j.retailer.Name).
		Int("listings", len(listings)).
		Msg("Scrape cycle complete")
}

// collectWithRetry runs the collector with a per-attempt timeout and
// exponential backoff between attempts. Typed non-retryable errors fail the
// cycle immediately.
func (s *Scheduler) collectWithRetry(ctx context.Context, j *job) ([]catalog.RawListing, error) {
	var lastErr error
	delay := s.cfg.RetryBaseDelay
	for attempt := 1; attempt <= s.cfg.RetryMaxAttempts; attempt++ {
		j.mu.Lock()
		j.attempts = attempt
		if attempt > 1 {
			j.status = StatusRetrying
		}
		j.mu.Unlock()

		runCtx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
		listings, err := j.collector.Collect(runCtx, j.retailer)
		cancel()
		if err == nil {
			return listings, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		var te *errors.TrackerError
		if stderrors.As(err, &te) && !te.IsRetryable() && te.Type != errors.ErrorTypeRateLimit {
			break
		}

		if attempt < s.cfg.RetryMaxAttempts {
			s.log.WithError(err).Warn().
				Str("retailer", j.retailer.Name).
				Int("attempt", attempt).
				Msg("Scrape attempt failed, backing off")
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
			delay *= 2
		}
	}
	return nil, lastErr
}

func (s *Scheduler) cycleFailed(j *job, err error) {
	j.mu.Lock()
	j.status = StatusDegraded
	j.failedCycles++
	if j.failedCycles >= s.cfg.BreakerFailureCycles && j.multiplier < maxIntervalMultiplier {
		j.multiplier *= 2
	}
	failed := j.failedCycles
	mult := j.multiplier
	j.mu.Unlock()
	s.log.WithError(err).Error().
		Str("retailer", j.retailer.Name).
		Int("failed_cycles", failed).
		Int("interval_multiplier", mult).
		Msg("Scrape cycle failed")
}

// States reports every retailer loop's current state, sorted by the order
// the collectors were registered.
func (s *Scheduler) States() []RetailerState {
	states := make([]RetailerState, 0, len(s.jobs))
	for _, j := range s.jobs {
		j.mu.Lock()
		states = append(states, RetailerState{
			Retailer:     j.retailer.Name,
			Status:       j.status.String(),
			Attempts:     j.attempts,
			FailedCycles: j.failedCycles,
			LastRun:      j.lastRun,
			LastSuccess:  j.lastSuccess,
			Listings:     j.listings,
		})
		j.mu.Unlock()
	}
	return states
}
