package platforms

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"time"

	"vitemadose-backend/lib/timezone"
)

// Page is one window of the availability calendar as returned by a
// platform's slots endpoint.
type Page struct {
	Slots []time.Time
	// earliest later availability reported when the window is empty;
	// nil when the platform has nothing further
	NextSlot *time.Time
}

// PageFunc fetches the window starting at `start`. The window size is
// the platform's own page size.
type PageFunc func(ctx context.Context, start time.Time) (Page, error)

type WalkOptions struct {
	// bounded page size of the platform's slots endpoint, in days
	PageDays int
	// how far past the start date the walk may reach
	HorizonDays int
	// soft wall-clock budget for the whole motive walk
	Budget time.Duration
}

// WalkCalendar walks one motive's availability calendar forward from
// the request's start date. Empty pages follow the platform's
// next-slot cursor when it stays inside the horizon; otherwise the
// walk advances by page size. The walk stops at the horizon, on an
// empty page with no cursor, or once the budget is spent.
//
// Page-level errors end the walk but not the probe: the caller moves
// on to the next motive. Only the blocked escalation propagates.
func WalkCalendar(ctx context.Context, req *ScrapeRequest, opts WalkOptions, fetch PageFunc, found func(time.Time)) error {
	start := req.StartDate
	horizon := req.StartDate.AddDate(0, 0, opts.HorizonDays)
	began := time.Now()

	for start.Before(horizon) {
		if opts.Budget > 0 && time.Since(began) > opts.Budget {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return nil
		}

		page, err := fetch(ctx, start)
		if err != nil {
			if errors.Is(err, ErrBlocked) {
				return err
			}
			if isTimeout(err) {
				req.Count(CounterTimeout)
			} else {
				req.Count(CounterError)
			}
			slog.Debug("calendar page failed",
				"venue", req.Venue.InternalID, "start", start.Format("2006-01-02"), "err", err)
			return nil
		}

		if len(page.Slots) > 0 {
			for _, when := range page.Slots {
				// day-window semantics: anything outside the scan
				// window never reaches the aggregator
				if when.Before(req.StartDate) || !when.Before(horizon) {
					continue
				}
				req.Count(CounterSlots)
				found(when)
			}
			start = start.AddDate(0, 0, opts.PageDays)
			continue
		}

		if page.NextSlot != nil {
			next := timezone.Day(*page.NextSlot)
			if next.After(start) && next.Before(horizon) {
				req.Count(CounterNextSlots)
				start = next
				continue
			}
		}
		return nil
	}
	return nil
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
