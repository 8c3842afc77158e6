package ordoclic

import (
	"time"

	"vitemadose-backend/internal/platforms"
	"vitemadose-backend/lib/timezone"
)

type profileResponse struct {
	EntityID string `json:"entityId"`
	Name     string `json:"name"`
}

type reasonsResponse struct {
	Reasons []rawReason `json:"reasons"`
}

type rawReason struct {
	ID            string `json:"id"`
	Label         string `json:"reasonLabel"`
	CanBookOnline bool   `json:"canBookOnline"`
	InjectionDose int    `json:"vaccineInjectionDose"`
}

type slotsResponse struct {
	Slots             []slot `json:"slots"`
	NextAvailableSlot string `json:"nextAvailableSlotDate"`
}

type slot struct {
	TimeBegin string `json:"timeBegin"`
}

func (r slotsResponse) page() platforms.Page {
	var page platforms.Page
	for _, s := range r.Slots {
		when, err := parseSlotTime(s.TimeBegin)
		if err != nil {
			continue
		}
		page.Slots = append(page.Slots, when)
	}
	if r.NextAvailableSlot != "" {
		if next, err := parseSlotTime(r.NextAvailableSlot); err == nil {
			page.NextSlot = &next
		}
	}
	return page
}

func parseSlotTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339, s)
	if err == nil {
		return t, nil
	}
	return time.ParseInLocation("2006-01-02", s, timezone.Location)
}
