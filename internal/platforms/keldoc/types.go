package keldoc

import (
	"time"

	"vitemadose-backend/internal/platforms"
	"vitemadose-backend/lib/timezone"
)

type cabinetsResponse struct {
	ID       int       `json:"id"`
	Cabinets []cabinet `json:"cabinets"`
}

type cabinet struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

type motiveCategory struct {
	ID      int         `json:"id"`
	Name    string      `json:"name"`
	Motives []rawMotive `json:"specialties"`
}

type rawMotive struct {
	ID        int    `json:"id"`
	Name      string `json:"name"`
	AgendaIds []int  `json:"agenda_ids"`
}

type timetableResponse struct {
	// date keyed, each day a list of slots
	Availabilities map[string][]timetableSlot `json:"availabilities"`
	NextSlot       string                     `json:"next_slot"`
}

type timetableSlot struct {
	StartTime string `json:"start_time"`
}

func (r timetableResponse) page() (platforms.Page, error) {
	var page platforms.Page
	for _, slots := range r.Availabilities {
		for _, s := range slots {
			when, err := parseSlotTime(s.StartTime)
			if err != nil {
				continue
			}
			page.Slots = append(page.Slots, when)
		}
	}
	if r.NextSlot != "" {
		if next, err := parseSlotTime(r.NextSlot); err == nil {
			page.NextSlot = &next
		}
	}
	return page, nil
}

func parseSlotTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339, s)
	if err == nil {
		return t, nil
	}
	if t, err := time.ParseInLocation("2006-01-02T15:04:05", s, timezone.Location); err == nil {
		return t, nil
	}
	return time.ParseInLocation("2006-01-02", s, timezone.Location)
}
