package doctolib

import (
	"encoding/json"
	"time"

	"vitemadose-backend/lib/timezone"
)

type bookingResponse struct {
	Data bookingData `json:"data"`
}

type bookingData struct {
	Profile      profile       `json:"profile"`
	VisitMotives []visitMotive `json:"visit_motives"`
	Agendas      []agenda      `json:"agendas"`
	Places       []place       `json:"places"`
}

type profile struct {
	ID   int    `json:"id"`
	Name string `json:"name_with_title"`
}

type visitMotive struct {
	ID                int    `json:"id"`
	Name              string `json:"name"`
	VaccinationMotive bool   `json:"vaccination_motive"`
	AllowNewPatients  bool   `json:"allow_new_patients"`
	// true on motives reserved to health-care professionals
	ForHealthProfessionals bool `json:"vaccination_motive_for_health_professionals"`
}

type agenda struct {
	ID                       int   `json:"id"`
	PracticeID               int   `json:"practice_id"`
	VisitMotiveIds           []int `json:"visit_motive_ids"`
	BookingDisabled          bool  `json:"booking_disabled"`
	BookingTemporaryDisabled bool  `json:"booking_temporary_disabled"`
}

type place struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	City       string `json:"city"`
	PracticeID int    `json:"practice_ids,omitempty"`
}

type availabilitiesResponse struct {
	Availabilities []availabilityDay `json:"availabilities"`
	NextSlot       string            `json:"next_slot"`
	Total          int               `json:"total"`
}

type availabilityDay struct {
	Date  string            `json:"date"`
	Slots []json.RawMessage `json:"slots"`
}

// slots come in two shapes depending on the endpoint version: a bare
// timestamp string or an object carrying start_date
func (d availabilityDay) times() []time.Time {
	var out []time.Time
	for _, raw := range d.Slots {
		var asString string
		if err := json.Unmarshal(raw, &asString); err == nil {
			if t, err := parseSlotTime(asString); err == nil {
				out = append(out, t)
			}
			continue
		}
		var asObject struct {
			StartDate string `json:"start_date"`
		}
		if err := json.Unmarshal(raw, &asObject); err == nil && asObject.StartDate != "" {
			if t, err := parseSlotTime(asObject.StartDate); err == nil {
				out = append(out, t)
			}
		}
	}
	return out
}

func parseSlotTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339, s)
	if err == nil {
		return t, nil
	}
	return time.ParseInLocation("2006-01-02T15:04:05", s, timezone.Location)
}
