package platforms

import (
	"sync"
	"time"

	"vitemadose-backend/internal/model"
)

// counter keys tracked per probe, surfaced in the end-of-scan stats
const (
	CounterBooking   = "booking"
	CounterMotives   = "motives"
	CounterSlots     = "slots"
	CounterNextSlots = "next-slots"
	CounterTimeout   = "time-out"
	CounterError     = "error"
)

// ScrapeRequest is the probe instruction handed to an adapter: the
// venue snapshot, the scan start date and a mutable counter map used
// for observability.
type ScrapeRequest struct {
	URL       string
	StartDate time.Time
	Venue     *model.Venue

	mu       sync.Mutex
	counters map[string]int
}

func NewScrapeRequest(venue *model.Venue, startDate time.Time) *ScrapeRequest {
	return &ScrapeRequest{
		URL:       venue.URL,
		StartDate: startDate,
		Venue:     venue,
		counters:  map[string]int{},
	}
}

func (r *ScrapeRequest) Count(key string) {
	r.mu.Lock()
	r.counters[key]++
	r.mu.Unlock()
}

func (r *ScrapeRequest) Counter(key string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.counters[key]
}

// Counters returns a copy of the counter map.
func (r *ScrapeRequest) Counters() map[string]int {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]int, len(r.counters))
	for k, v := range r.counters {
		out[k] = v
	}
	return out
}
