package aggregator

import (
	"testing"
	"time"

	"vitemadose-backend/internal/model"
	"vitemadose-backend/lib/timezone"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

var scanStart = time.Date(2021, 6, 5, 0, 0, 0, 0, time.UTC)

func venue(id, dep, name string) *model.Venue {
	return &model.Venue{
		InternalID:  id,
		Departement: dep,
		Name:        name,
		URL:         "https://partners.doctolib.fr/" + id,
		Kind:        model.VaccinationCenter,
		Platform:    model.Doctolib,
	}
}

func slot(v *model.Venue, when time.Time, vaccine model.Vaccine) model.Slot {
	return model.Slot{
		Venue:      v,
		When:       when,
		BookingURL: v.URL,
		Vaccines:   []model.Vaccine{vaccine},
		DoseRanks:  []int{1},
	}
}

func TestSingleSlot(t *testing.T) {
	a := New(scanStart, Options{})
	v := venue("doctolib1", "75", "Centre de Paris")
	a.Consume(slot(v, time.Date(2021, 6, 6, 6, 30, 0, 0, time.UTC), model.Pfizer))

	result := a.Finalize(nil)
	dep := result.Departements["75"]
	require.Len(t, dep.Available, 1)
	require.Empty(t, dep.Unavailable)

	center := dep.Available[0]
	require.Equal(t, "2021-06-06T06:30:00Z", *center.ProchainRdv)
	require.Equal(t, 1, center.AppointmentCount)
	require.Equal(t, []string{"Pfizer-BioNTech"}, center.VaccineType)
	require.Nil(t, center.Erreur)

	require.Len(t, result.National.Available, 1)
}

func TestNoSlots(t *testing.T) {
	a := New(scanStart, Options{})
	v := venue("doctolib1", "75", "Centre de Paris")
	a.Consume(model.NoSlot{Venue: v})

	result := a.Finalize(nil)
	dep := result.Departements["75"]
	require.Empty(t, dep.Available)
	require.Len(t, dep.Unavailable, 1)
	require.Equal(t, 0, dep.Unavailable[0].AppointmentCount)
	require.Nil(t, dep.Unavailable[0].ProchainRdv)
	require.Zero(t, a.AvailableCount())
}

func TestThreeSlotsTwoVaccines(t *testing.T) {
	a := New(scanStart, Options{})
	v := venue("doctolib1", "75", "Centre de Paris")
	a.Consume(slot(v, time.Date(2021, 6, 6, 6, 30, 0, 0, time.UTC), model.Moderna))
	a.Consume(slot(v, time.Date(2021, 6, 6, 6, 0, 0, 0, time.UTC), model.Pfizer))
	a.Consume(slot(v, time.Date(2021, 6, 6, 6, 35, 0, 0, time.UTC), model.Moderna))

	result := a.Finalize(nil)
	center := result.Departements["75"].Available[0]
	require.Equal(t, "2021-06-06T06:00:00Z", *center.ProchainRdv)
	require.Equal(t, 3, center.AppointmentCount)
	require.Equal(t, []string{"Moderna", "Pfizer-BioNTech"}, center.VaccineType)
}

func TestNoSlotNeverDemotes(t *testing.T) {
	a := New(scanStart, Options{})
	v := venue("doctolib1", "75", "Centre de Paris")
	a.Consume(model.NoSlot{Venue: v})
	a.Consume(slot(v, time.Date(2021, 6, 6, 6, 30, 0, 0, time.UTC), model.Pfizer))
	a.Consume(model.NoSlot{Venue: v})

	result := a.Finalize(nil)
	dep := result.Departements["75"]
	require.Len(t, dep.Available, 1)
	require.Empty(t, dep.Unavailable)
}

func TestDuplicateInternalIDDropped(t *testing.T) {
	a := New(scanStart, Options{})
	first := venue("doctolib1", "75", "Centre A")
	impostor := venue("doctolib1", "75", "Centre B")
	impostor.URL = "https://partners.doctolib.fr/other"

	a.Consume(slot(first, time.Date(2021, 6, 6, 6, 30, 0, 0, time.UTC), model.Pfizer))
	a.Consume(slot(impostor, time.Date(2021, 6, 6, 7, 0, 0, 0, time.UTC), model.Moderna))

	result := a.Finalize(nil)
	center := result.Departements["75"].Available[0]
	require.Equal(t, "Centre A", center.Nom)
	require.Equal(t, 1, center.AppointmentCount)
}

func TestAvailableOrdering(t *testing.T) {
	a := New(scanStart, Options{})
	later := venue("doctolib1", "75", "Centre B")
	sooner := venue("doctolib2", "75", "Centre A")
	tieBreak := venue("doctolib3", "75", "Aardvark")

	a.Consume(slot(later, time.Date(2021, 6, 8, 10, 0, 0, 0, time.UTC), model.Pfizer))
	a.Consume(slot(sooner, time.Date(2021, 6, 6, 6, 0, 0, 0, time.UTC), model.Pfizer))
	a.Consume(slot(tieBreak, time.Date(2021, 6, 8, 10, 0, 0, 0, time.UTC), model.Pfizer))

	result := a.Finalize(nil)
	available := result.Departements["75"].Available
	require.Len(t, available, 3)
	require.Equal(t, "doctolib2", available[0].InternalID)
	// equal prochain_rdv ties break on name
	require.Equal(t, "Aardvark", available[1].Nom)
	require.Equal(t, "Centre B", available[2].Nom)
}

func TestNameDeduplication(t *testing.T) {
	a := New(scanStart, Options{})
	first := venue("doctolib1", "75", "Centre X")
	first.Location = &model.Location{City: "Paris 11e"}
	second := venue("doctolib2", "75", "Centre X")
	second.Metadata = map[string]string{"address": "4 avenue de la République 75012 Paris 12e"}
	third := venue("doctolib3", "69", "Centre X")

	a.Consume(slot(first, time.Date(2021, 6, 6, 6, 0, 0, 0, time.UTC), model.Pfizer))
	a.Consume(slot(second, time.Date(2021, 6, 6, 7, 0, 0, 0, time.UTC), model.Pfizer))
	a.Consume(slot(third, time.Date(2021, 6, 6, 8, 0, 0, 0, time.UTC), model.Pfizer))

	result := a.Finalize(nil)
	available := result.Departements["75"].Available
	require.Equal(t, "Centre X - Paris 11e", available[0].Nom)
	require.Equal(t, "Centre X - Paris 12e", available[1].Nom)
	// no collision in 69: name untouched
	require.Equal(t, "Centre X", result.Departements["69"].Available[0].Nom)
}

func TestDepartementIsolation(t *testing.T) {
	a := New(scanStart, Options{})
	paris := venue("doctolib1", "75", "Centre de Paris")
	lyon := venue("doctolib2", "69", "Centre de Lyon")
	a.Consume(slot(paris, time.Date(2021, 6, 6, 6, 0, 0, 0, time.UTC), model.Pfizer))
	a.Consume(model.NoSlot{Venue: lyon})

	result := a.Finalize(nil)
	require.Len(t, result.Departements["75"].Available, 1)
	require.Empty(t, result.Departements["75"].Unavailable)
	require.Empty(t, result.Departements["69"].Available)
	require.Len(t, result.Departements["69"].Unavailable, 1)
	require.Len(t, result.National.Available, 1)
	require.Len(t, result.National.Unavailable, 1)
}

func TestDailyRollup(t *testing.T) {
	a := New(scanStart, Options{})
	v := venue("doctolib1", "75", "Centre de Paris")

	// two mRNA slots on day one, one AstraZeneca on day two
	a.Consume(slot(v, time.Date(2021, 6, 5, 10, 0, 0, 0, timezone.Location), model.Pfizer))
	a.Consume(slot(v, time.Date(2021, 6, 5, 11, 0, 0, 0, timezone.Location), model.Moderna))
	a.Consume(slot(v, time.Date(2021, 6, 6, 10, 0, 0, 0, timezone.Location), model.AstraZeneca))
	// outside the 8-day window: snapshot only
	a.Consume(slot(v, time.Date(2021, 6, 20, 10, 0, 0, 0, timezone.Location), model.Pfizer))

	result := a.Finalize(nil)
	rollup := result.Rollups["75"]
	require.Equal(t, "75", rollup.Departement)
	require.Len(t, rollup.Days, 8)

	dayOne := rollup.Days[0]
	require.Equal(t, "2021-06-05", dayOne.Date)
	require.Equal(t, 2, dayOne.Total)
	require.Len(t, dayOne.Venues, 1)
	require.Equal(t, "doctolib1", dayOne.Venues[0].Lieu)
	require.Empty(t, cmp.Diff([]TagCount{
		{Tag: TagAll, Count: 2},
		{Tag: TagPreco18_55, Count: 2},
	}, dayOne.Venues[0].Tags))

	dayTwo := rollup.Days[1]
	require.Equal(t, 1, dayTwo.Total)
	require.Empty(t, cmp.Diff([]TagCount{
		{Tag: TagAll, Count: 1},
		{Tag: TagPreco18_55, Count: 0},
	}, dayTwo.Venues[0].Tags))

	// the day total always equals the sum of per-venue "all" counters
	for _, day := range rollup.Days {
		sum := 0
		for _, venueCount := range day.Venues {
			sum += venueCount.Tags[0].Count
		}
		require.Equal(t, day.Total, sum)
	}

	// all four slots made it into the snapshot
	require.Equal(t, 4, result.Departements["75"].Available[0].AppointmentCount)
}

func TestAppointmentSchedules(t *testing.T) {
	a := New(scanStart, Options{})
	v := venue("doctolib1", "75", "Centre de Paris")
	a.Consume(slot(v, scanStart.Add(time.Hour*12), model.Pfizer))
	a.Consume(slot(v, scanStart.AddDate(0, 0, 5), model.Pfizer))
	a.Consume(slot(v, scanStart.AddDate(0, 0, 40), model.Pfizer))

	result := a.Finalize(nil)
	schedules := map[string]int{}
	for _, s := range result.Departements["75"].Available[0].AppointmentSchedules {
		schedules[s.Name] = s.Total
	}
	require.Equal(t, 1, schedules["chronodose"])
	require.Equal(t, 1, schedules["1_days"])
	require.Equal(t, 2, schedules["7_days"])
	require.Equal(t, 2, schedules["28_days"])
	require.Equal(t, 3, schedules["49_days"])
}

func TestBoosterVaccineFilter(t *testing.T) {
	a := New(scanStart, Options{BoosterVaccines: []model.Vaccine{model.Pfizer, model.Moderna}})
	v := venue("doctolib1", "75", "Centre de Paris")

	boosterAZ := model.Slot{
		Venue:     v,
		When:      time.Date(2021, 6, 6, 6, 0, 0, 0, time.UTC),
		Vaccines:  []model.Vaccine{model.AstraZeneca},
		DoseRanks: []int{3},
	}
	boosterPfizer := model.Slot{
		Venue:     v,
		When:      time.Date(2021, 6, 6, 7, 0, 0, 0, time.UTC),
		Vaccines:  []model.Vaccine{model.Pfizer},
		DoseRanks: []int{3},
	}
	a.Consume(boosterAZ)
	a.Consume(boosterPfizer)

	result := a.Finalize(nil)
	center := result.Departements["75"].Available[0]
	require.Equal(t, 1, center.AppointmentCount)
	require.Equal(t, []string{"Pfizer-BioNTech"}, center.VaccineType)
}

func TestBlockedFlag(t *testing.T) {
	a := New(scanStart, Options{})
	a.Consume(model.NoSlot{Venue: venue("doctolib1", "75", "Centre de Paris")})

	result := a.Finalize(map[string]bool{"75": true})
	require.True(t, result.Departements["75"].DoctolibBlocked)
	require.False(t, result.Departements["69"].DoctolibBlocked)
}

func TestCityFromAddress(t *testing.T) {
	v := venue("doctolib1", "75", "Centre")
	v.Metadata = map[string]string{"address": "12 rue de la Paix 75001 Paris"}
	require.Equal(t, "Paris", cityOf(v))

	v.Metadata = map[string]string{"address": "Place du Marché Saint-Denis"}
	require.Equal(t, "Saint-Denis", cityOf(v))

	v.Location = &model.Location{City: "Lille"}
	require.Equal(t, "Lille", cityOf(v))
}
