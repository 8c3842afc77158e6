package model

import "time"

// Platform is one of the booking platforms a venue can live on. The set
// is closed: adding a platform means writing an adapter for it.
type Platform string

const (
	Doctolib   Platform = "Doctolib"
	Keldoc     Platform = "Keldoc"
	Maiia      Platform = "Maiia"
	Mapharma   Platform = "Mapharma"
	Ordoclic   Platform = "Ordoclic"
	Avecmondoc Platform = "AvecMonDoc"
	Unknown    Platform = "Autre"
)

func Platforms() []Platform {
	return []Platform{Doctolib, Keldoc, Maiia, Mapharma, Ordoclic, Avecmondoc}
}

type VenueKind string

const (
	VaccinationCenter   VenueKind = "vaccination-center"
	Drugstore           VenueKind = "drugstore"
	GeneralPractitioner VenueKind = "general-practitioner"
)

type Location struct {
	Longitude float64 `json:"longitude"`
	Latitude  float64 `json:"latitude"`
	City      string  `json:"city"`
	Postcode  string  `json:"cp"`
}

// Venue is the hard identity of a place that administers vaccinations.
// Venues are built once by the registry and never mutated afterwards.
type Venue struct {
	// globally unique, stable across runs: "{platform}{platform id}"
	InternalID  string
	Departement string
	Name        string
	URL         string
	Kind        VenueKind
	Location    *Location
	// free-form: address, phone, business hours
	Metadata map[string]string
	Platform Platform
}

// Event is the sum type flowing from the adapters to the aggregator.
// Exactly two variants exist: Slot and NoSlot.
type Event interface {
	EventVenue() *Venue
}

// Slot is one bookable appointment instance.
type Slot struct {
	Venue *Venue
	When  time.Time
	// may differ from the venue URL when the platform embeds a
	// per-motive deep link
	BookingURL string
	Vaccines   []Vaccine
	// which dose numbers this slot serves, subset of {1,2,3}
	DoseRanks []int
}

func (s Slot) EventVenue() *Venue { return s.Venue }

// NoSlot is the negative acknowledgment emitted at most once per probed
// venue that has zero slots in the scan window.
type NoSlot struct {
	Venue     *Venue
	PhoneOnly bool
}

func (n NoSlot) EventVenue() *Venue { return n.Venue }
