// Package scheduler drains the venue registry through a bounded worker
// pool and funnels every adapter event into a single output stream.
// Every venue pulled from the registry produces at least one event:
// slots when the probe found some, otherwise one NoSlot, including when
// the platform breaker is open or the probe failed.
package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"vitemadose-backend/internal/breaker"
	"vitemadose-backend/internal/model"
	"vitemadose-backend/internal/platforms"
	"vitemadose-backend/internal/registry"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

var tracer = otel.Tracer("scheduler")

const (
	defaultWorkers = 50
	feedBuffer     = 64
)

type Options struct {
	Workers int
	// Bernoulli sampling probability; 1 probes everything
	SampleRate float64
	// deterministic sampling when non-zero
	Seed int64
	// per-platform request ceilings, venues/second
	RateLimits map[model.Platform]rate.Limit
	Breaker    breaker.Options
	// token queue per platform; nil falls back to in-memory queues
	Queues func(platform string) (breaker.Queue, error)
}

func (o Options) withDefaults() Options {
	if o.Workers <= 0 {
		o.Workers = defaultWorkers
	}
	if o.SampleRate <= 0 || o.SampleRate > 1 {
		o.SampleRate = 1
	}
	if o.Queues == nil {
		o.Queues = func(string) (breaker.Queue, error) {
			return breaker.NewMemoryQueue(), nil
		}
	}
	return o
}

// Stats is the per-scan tally, safe for concurrent updates.
type Stats struct {
	mu       sync.Mutex
	ScanID  string
	Probed  map[model.Platform]int
	Blocked map[model.Platform]int
	// départements where at least one probe was blocked
	BlockedDeps map[string]bool
	Skipped     int
	Counters    map[string]int
}

func newStats() *Stats {
	return &Stats{
		ScanID:      uuid.NewString(),
		Probed:      map[model.Platform]int{},
		Blocked:     map[model.Platform]int{},
		BlockedDeps: map[string]bool{},
		Counters:    map[string]int{},
	}
}

func (s *Stats) probed(p model.Platform) {
	s.mu.Lock()
	s.Probed[p]++
	s.mu.Unlock()
}

func (s *Stats) blocked(p model.Platform, departement string) {
	s.mu.Lock()
	s.Blocked[p]++
	s.BlockedDeps[departement] = true
	s.mu.Unlock()
}

func (s *Stats) skipped() {
	s.mu.Lock()
	s.Skipped++
	s.mu.Unlock()
}

func (s *Stats) merge(counters map[string]int) {
	s.mu.Lock()
	for k, v := range counters {
		s.Counters[k] += v
	}
	s.mu.Unlock()
}

// BlockedTotal sums blocked probes across platforms.
func (s *Stats) BlockedTotal() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	total := 0
	for _, n := range s.Blocked {
		total += n
	}
	return total
}

type Scheduler struct {
	set      *platforms.Set
	opts     Options
	breakers map[model.Platform]*breaker.Breaker
	limiters map[model.Platform]*rate.Limiter
}

func New(set *platforms.Set, opts Options) (*Scheduler, error) {
	opts = opts.withDefaults()

	s := &Scheduler{
		set:      set,
		opts:     opts,
		breakers: map[model.Platform]*breaker.Breaker{},
		limiters: map[model.Platform]*rate.Limiter{},
	}
	for _, p := range model.Platforms() {
		queue, err := opts.Queues(string(p))
		if err != nil {
			return nil, err
		}
		b, err := breaker.New(string(p), queue, opts.Breaker)
		if err != nil {
			return nil, err
		}
		s.breakers[p] = b
		if limit, ok := opts.RateLimits[p]; ok && limit > 0 {
			s.limiters[p] = rate.NewLimiter(limit, 1)
		}
	}
	return s, nil
}

// Run probes every venue of the registry and sends the resulting
// events to out. It closes out once the last worker finished, and
// returns the scan tally. A context cancellation stops feeding and
// drains the in-flight probes.
func (s *Scheduler) Run(ctx context.Context, reg *registry.Registry, startDate time.Time, out chan<- model.Event) (*Stats, error) {
	ctx, span := tracer.Start(ctx, "Run")
	defer span.End()

	stats := newStats()
	venues := make(chan *model.Venue, feedBuffer)

	group, ctx := errgroup.WithContext(ctx)

	group.Go(func() error {
		defer close(venues)
		for {
			venue, ok := reg.Next()
			if !ok {
				return nil
			}
			select {
			case venues <- venue:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	})

	for i := 0; i < s.opts.Workers; i++ {
		rng := rand.New(rand.NewSource(s.seed(int64(i))))
		group.Go(func() error {
			for venue := range venues {
				if s.opts.SampleRate < 1 && rng.Float64() >= s.opts.SampleRate {
					stats.skipped()
					continue
				}
				s.probe(ctx, venue, startDate, out, stats)
				if err := ctx.Err(); err != nil {
					return err
				}
			}
			return nil
		})
	}

	err := group.Wait()
	close(out)
	slog.Info("scan finished",
		"scan_id", stats.ScanID,
		"skipped", stats.Skipped,
		"blocked", stats.BlockedTotal())
	return stats, err
}

func (s *Scheduler) seed(worker int64) int64 {
	if s.opts.Seed != 0 {
		return s.opts.Seed + worker
	}
	return time.Now().UnixNano() + worker
}

// probe runs one venue through its adapter under the platform breaker.
// The send into out carries the backpressure: a slow consumer slows
// the workers, never drops events.
func (s *Scheduler) probe(ctx context.Context, venue *model.Venue, startDate time.Time, out chan<- model.Event, stats *Stats) {
	adapter := s.set.For(venue.URL)
	stats.probed(venue.Platform)

	if limiter, ok := s.limiters[venue.Platform]; ok {
		if err := limiter.Wait(ctx); err != nil {
			return
		}
	}

	req := platforms.NewScrapeRequest(venue, startDate)
	emitted := 0
	emit := func(e model.Event) {
		select {
		case out <- e:
			emitted++
		case <-ctx.Done():
		}
	}

	var err error
	if b, ok := s.breakers[venue.Platform]; ok {
		err = b.Exec(ctx,
			func(runCtx context.Context) error {
				return adapter.Fetch(runCtx, req, emit)
			},
			func() {
				// breaker open: acknowledge the venue without any HTTP
				emit(model.NoSlot{Venue: venue})
			},
		)
	} else {
		// unclaimed platform, no breaker to consult
		err = adapter.Fetch(ctx, req, emit)
	}
	if err != nil {
		if errors.Is(err, platforms.ErrBlocked) {
			stats.blocked(venue.Platform, venue.Departement)
		}
		slog.Warn("probe failed",
			"venue", venue.InternalID, "platform", venue.Platform, "err", err)
	}
	if emitted == 0 && ctx.Err() == nil {
		emit(model.NoSlot{Venue: venue})
	}
	stats.merge(req.Counters())
}
