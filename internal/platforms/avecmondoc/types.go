package avecmondoc

import (
	"time"

	"vitemadose-backend/internal/platforms"
	"vitemadose-backend/lib/timezone"
)

type nextData struct {
	Props struct {
		PageProps struct {
			Doctor rawDoctor `json:"doctor"`
		} `json:"pageProps"`
	} `json:"props"`
}

type rawDoctor struct {
	ID                  int         `json:"id"`
	ConsultationReasons []rawReason `json:"consultationReasons"`
}

type rawReason struct {
	ID        int    `json:"id"`
	Label     string `json:"libelle"`
	VisioOnly bool   `json:"visioOnly"`
}

type schedulesResponse struct {
	Schedules     []schedule `json:"schedules"`
	NextAvailable string     `json:"nextAvailable"`
}

type schedule struct {
	Start string `json:"start"`
}

func (r schedulesResponse) page() platforms.Page {
	var page platforms.Page
	for _, s := range r.Schedules {
		when, err := parseSlotTime(s.Start)
		if err != nil {
			continue
		}
		page.Slots = append(page.Slots, when)
	}
	if r.NextAvailable != "" {
		if next, err := parseSlotTime(r.NextAvailable); err == nil {
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
