// Package platforms defines the adapter contract every booking
// platform implements and the pagination machinery they share.
package platforms

import (
	"context"
	"errors"

	"vitemadose-backend/internal/model"
)

// ErrBlocked is the escalation for an HTTP 403: the adapter aborts the
// current venue and the circuit breaker counts the failure.
var ErrBlocked = errors.New("blocked by platform")

// Emit hands one slot event to the scheduler. It may block when the
// aggregator is slow; adapters must pass their context through.
type Emit func(model.Event)

// Adapter probes venues on one booking platform.
//
// Fetch emits every slot found for the requested venue, or a single
// NoSlot when the scan window is empty. Adapter-local errors (bad
// pages, timeouts) are counted on the request and swallowed; only the
// blocked escalation is returned.
type Adapter interface {
	Platform() model.Platform
	Fetch(ctx context.Context, req *ScrapeRequest, emit Emit) error
}

// Set is the closed dispatch table from venue URL to adapter.
type Set struct {
	adapters map[model.Platform]Adapter
	fallback Adapter
}

func NewSet(adapters ...Adapter) *Set {
	s := &Set{
		adapters: make(map[model.Platform]Adapter, len(adapters)),
		fallback: NoopAdapter{},
	}
	for _, a := range adapters {
		s.adapters[a.Platform()] = a
	}
	return s
}

// For selects the adapter whose platform claims the URL; unmatched
// URLs (and platforms with no registered adapter) get the no-op
// adapter, which acknowledges the venue with a NoSlot.
func (s *Set) For(url string) Adapter {
	platform := model.PlatformForURL(url)
	if a, ok := s.adapters[platform]; ok {
		return a
	}
	return s.fallback
}

// NoopAdapter acknowledges a venue without any HTTP: a venue that no
// adapter claims must still appear in the output as unavailable.
type NoopAdapter struct{}

func (NoopAdapter) Platform() model.Platform { return model.Unknown }

func (NoopAdapter) Fetch(ctx context.Context, req *ScrapeRequest, emit Emit) error {
	emit(model.NoSlot{
		Venue:     req.Venue,
		PhoneOnly: req.Venue.Metadata["phone_number"] != "",
	})
	return nil
}
