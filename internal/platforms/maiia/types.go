package maiia

import (
	"time"

	"vitemadose-backend/internal/platforms"
)

type reasonsResponse struct {
	Items []consultationReason `json:"items"`
	Total int                  `json:"total"`
}

type consultationReason struct {
	Name          string `json:"name"`
	InjectionType string `json:"injectionType"`
}

type availabilitiesResponse struct {
	Availabilities      []availability `json:"availabilities"`
	ClosestAvailability *availability  `json:"closestAvailability"`
}

type availability struct {
	StartDateTime string `json:"startDateTime"`
}

func (r availabilitiesResponse) page() platforms.Page {
	var page platforms.Page
	for _, av := range r.Availabilities {
		when, err := time.Parse(time.RFC3339, av.StartDateTime)
		if err != nil {
			continue
		}
		page.Slots = append(page.Slots, when)
	}
	if r.ClosestAvailability != nil {
		if next, err := time.Parse(time.RFC3339, r.ClosestAvailability.StartDateTime); err == nil {
			page.NextSlot = &next
		}
	}
	return page
}
