package mapharma

import (
	"time"

	"vitemadose-backend/internal/platforms"
	"vitemadose-backend/lib/timezone"
)

type rawCampaign struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
	Type string `json:"type"`
}

type slotsResponse struct {
	// day keyed, values are wall-clock times like "09:15"
	Dates    map[string][]string `json:"dates"`
	NextDate string              `json:"next_date"`
}

func (r slotsResponse) page() platforms.Page {
	var page platforms.Page
	for day, times := range r.Dates {
		for _, hhmm := range times {
			when, err := time.ParseInLocation("2006-01-02 15:04", day+" "+hhmm, timezone.Location)
			if err != nil {
				continue
			}
			page.Slots = append(page.Slots, when)
		}
	}
	if r.NextDate != "" {
		if next, err := time.ParseInLocation("2006-01-02", r.NextDate, timezone.Location); err == nil {
			page.NextSlot = &next
		}
	}
	return page
}
