package aggregator

import (
	"regexp"
	"sort"
	"strings"
	"time"

	"vitemadose-backend/internal/model"
)

// Result is the full finalized resource set of one scan.
type Result struct {
	National     *Export
	Departements map[string]*Export
	Rollups      map[string]*DailyRollup
}

// Export is the snapshot shape shared by the national file and the
// per-département files.
type Export struct {
	Version     int       `json:"version"`
	LastUpdated string    `json:"last_updated"`
	Available   []*Center `json:"centres_disponibles"`
	Unavailable []*Center `json:"centres_indisponibles"`
	// historical key name, kept for output compatibility
	DoctolibBlocked bool `json:"doctolib_bloqué,omitempty"`
}

func newExport(lastUpdated string, blocked bool) *Export {
	return &Export{
		Version:         1,
		LastUpdated:     lastUpdated,
		Available:       []*Center{},
		Unavailable:     []*Center{},
		DoctolibBlocked: blocked,
	}
}

func (e *Export) add(center *Center, available bool) {
	if available {
		e.Available = append(e.Available, center)
	} else {
		e.Unavailable = append(e.Unavailable, center)
	}
}

// sort orders available venues by earliest appointment then name;
// venues without a date sort last. Unavailable venues sort by name.
func (e *Export) sort() {
	sort.SliceStable(e.Available, func(i, j int) bool {
		a, b := e.Available[i], e.Available[j]
		switch {
		case a.ProchainRdv == nil && b.ProchainRdv == nil:
			return a.Nom < b.Nom
		case a.ProchainRdv == nil:
			return false
		case b.ProchainRdv == nil:
			return true
		case *a.ProchainRdv != *b.ProchainRdv:
			return *a.ProchainRdv < *b.ProchainRdv
		default:
			return a.Nom < b.Nom
		}
	})
	sort.SliceStable(e.Unavailable, func(i, j int) bool {
		return e.Unavailable[i].Nom < e.Unavailable[j].Nom
	})
}

// Center is one venue entry of a snapshot.
type Center struct {
	Departement          string            `json:"departement"`
	Nom                  string            `json:"nom"`
	URL                  string            `json:"url"`
	Location             *model.Location   `json:"location"`
	Metadata             map[string]string `json:"metadata"`
	ProchainRdv          *string           `json:"prochain_rdv"`
	Plateforme           model.Platform    `json:"plateforme"`
	Type                 model.VenueKind   `json:"type"`
	AppointmentCount     int               `json:"appointment_count"`
	InternalID           string            `json:"internal_id"`
	VaccineType          []string          `json:"vaccine_type"`
	AppointmentSchedules []Schedule        `json:"appointment_schedules"`
	PhoneOnly            bool              `json:"appointment_by_phone_only"`
	Erreur               *string           `json:"erreur"`
}

// Schedule is one horizon-bucket counter of a venue.
type Schedule struct {
	Name  string `json:"name"`
	From  string `json:"from"`
	To    string `json:"to"`
	Total int    `json:"total"`
}

type DailyRollup struct {
	Departement string       `json:"departement"`
	Days        []DailyCount `json:"creneaux_quotidiens"`
}

type DailyCount struct {
	Date   string            `json:"date"`
	Total  int               `json:"total"`
	Venues []VenueDailyCount `json:"creneaux_par_lieu"`
}

type VenueDailyCount struct {
	Lieu string     `json:"lieu"`
	Tags []TagCount `json:"creneaux_par_tag"`
}

type TagCount struct {
	Tag   string `json:"tag"`
	Count int    `json:"creneaux"`
}

func (s *centerState) center() *Center {
	center := &Center{
		Departement:          s.venue.Departement,
		Nom:                  s.displayName,
		URL:                  s.venue.URL,
		Location:             s.venue.Location,
		Metadata:             s.venue.Metadata,
		Plateforme:           s.venue.Platform,
		Type:                 s.venue.Kind,
		AppointmentCount:     s.count,
		InternalID:           s.venue.InternalID,
		VaccineType:          vaccineNames(s.vaccines),
		AppointmentSchedules: []Schedule{},
		PhoneOnly:            s.phoneOnly,
	}
	if s.sawSlot {
		rdv := s.earliest.Format(time.RFC3339)
		center.ProchainRdv = &rdv
	}
	return center
}

func vaccineNames(set map[model.Vaccine]bool) []string {
	names := make([]string, 0, len(set))
	for v := range set {
		names = append(names, string(v))
	}
	sort.Strings(names)
	return names
}

// withSchedules fills the horizon-bucket counters, scan start based.
func (s *centerState) withSchedules(start time.Time) *Center {
	center := s.center()
	for _, bucket := range scheduleBuckets {
		center.AppointmentSchedules = append(center.AppointmentSchedules, Schedule{
			Name:  bucket.name,
			From:  start.Format(time.RFC3339),
			To:    start.AddDate(0, 0, bucket.days).Format(time.RFC3339),
			Total: s.schedules[bucket.name],
		})
	}
	return center
}

// dedupeNames rewrites colliding venue names within one département to
// "{name} - {city}". Two real venues may legitimately share a name;
// the suffix disambiguates them for humans.
func dedupeNames(states []*centerState) {
	byName := map[string][]*centerState{}
	for _, s := range states {
		byName[s.venue.Name] = append(byName[s.venue.Name], s)
	}
	for name, group := range byName {
		if len(group) < 2 {
			continue
		}
		for _, s := range group {
			if city := cityOf(s.venue); city != "" {
				s.displayName = name + " - " + city
			}
		}
	}
}

var postcodeRe = regexp.MustCompile(`^\d{5}$`)

// cityOf prefers the structured location city, falling back to the
// trailing tokens of the postal address.
func cityOf(venue *model.Venue) string {
	if venue.Location != nil && venue.Location.City != "" {
		return venue.Location.City
	}
	address := venue.Metadata["address"]
	if address == "" {
		return ""
	}
	tokens := strings.Fields(address)
	for i := len(tokens) - 1; i >= 0; i-- {
		if postcodeRe.MatchString(tokens[i]) {
			return strings.Join(tokens[i+1:], " ")
		}
	}
	if len(tokens) > 0 {
		return tokens[len(tokens)-1]
	}
	return ""
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
