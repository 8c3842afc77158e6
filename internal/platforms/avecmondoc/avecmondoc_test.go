package avecmondoc

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"vitemadose-backend/internal/model"
	"vitemadose-backend/internal/platforms"

	"github.com/stretchr/testify/require"
)

func testVenue() *model.Venue {
	return &model.Venue{
		InternalID:  "avecmondoc31",
		Departement: "37",
		Name:        "Pharmacie des Halles",
		URL:         "https://patient.avecmondoc.com/fiche/pharmacie-des-halles-tours",
		Platform:    model.Avecmondoc,
	}
}

func bookingPage(t *testing.T) string {
	t.Helper()
	var data nextData
	data.Props.PageProps.Doctor = rawDoctor{
		ID: 31,
		ConsultationReasons: []rawReason{
			{ID: 1, Label: "Vaccination COVID-19 - 1ère injection Pfizer"},
			{ID: 2, Label: "Vaccination COVID-19 - 2ème injection Pfizer"},
			{ID: 3, Label: "Téléconsultation Pfizer", VisioOnly: true},
		},
	}
	payload, err := json.Marshal(data)
	require.NoError(t, err)
	return fmt.Sprintf(
		`<!DOCTYPE html><html><head><title>Pharmacie des Halles</title></head><body><div id="__next"></div><script id="__NEXT_DATA__" type="application/json">%s</script></body></html>`,
		payload,
	)
}

func newTestAdapter(t *testing.T, handler http.Handler) *Adapter {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		handler.ServeHTTP(w, r)
	}))
	t.Cleanup(server.Close)

	a, err := New(Options{BaseURL: server.URL, Timeout: time.Second * 5})
	require.NoError(t, err)
	return a
}

func collect(t *testing.T, a *Adapter, start time.Time) ([]model.Event, error) {
	t.Helper()
	req := platforms.NewScrapeRequest(testVenue(), start)
	var events []model.Event
	err := a.Fetch(context.Background(), req, func(e model.Event) {
		events = append(events, e)
	})
	return events, err
}

func TestFetchSingleSlot(t *testing.T) {
	pageCalls := 0
	mux := http.NewServeMux()
	mux.HandleFunc("/fiche/pharmacie-des-halles-tours", func(w http.ResponseWriter, r *http.Request) {
		pageCalls++
		w.Header().Set("content-type", "text/html")
		fmt.Fprint(w, bookingPage(t))
	})
	mux.HandleFunc("/api/Schedules/available", func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "31", r.URL.Query().Get("doctorId"))
		if r.URL.Query().Get("from") == "2021-06-05" {
			json.NewEncoder(w).Encode(schedulesResponse{
				Schedules: []schedule{{Start: "2021-06-06T08:30:00+02:00"}},
			})
			return
		}
		json.NewEncoder(w).Encode(schedulesResponse{})
	})

	a := newTestAdapter(t, mux)
	start := time.Date(2021, 6, 5, 0, 0, 0, 0, time.UTC)

	events, err := collect(t, a, start)
	require.NoError(t, err)
	require.Len(t, events, 1)

	slot, ok := events[0].(model.Slot)
	require.True(t, ok)
	require.Equal(t, []model.Vaccine{model.Pfizer}, slot.Vaccines)
	require.Equal(t, []int{1}, slot.DoseRanks)
	require.True(t, slot.When.Equal(time.Date(2021, 6, 6, 6, 30, 0, 0, time.UTC)))

	// a second probe must reuse the scraped page
	_, err = collect(t, a, start)
	require.NoError(t, err)
	require.Equal(t, 1, pageCalls)
}

func TestFetchNoSlots(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/fiche/pharmacie-des-halles-tours", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, bookingPage(t))
	})
	mux.HandleFunc("/api/Schedules/available", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(schedulesResponse{})
	})

	a := newTestAdapter(t, mux)
	events, err := collect(t, a, time.Date(2021, 6, 5, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.Len(t, events, 1)
	_, ok := events[0].(model.NoSlot)
	require.True(t, ok)
}

func TestFetchPageWithoutPayload(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><body>rien ici</body></html>`)
	})

	a := newTestAdapter(t, mux)
	events, err := collect(t, a, time.Now())
	require.NoError(t, err)
	require.Len(t, events, 1)
	_, ok := events[0].(model.NoSlot)
	require.True(t, ok)
}

func TestParseBookingPage(t *testing.T) {
	doc, err := parseBookingPage([]byte(bookingPage(t)))
	require.NoError(t, err)
	require.Equal(t, 31, doc.ID)
	// the second dose and the visio-only reason are dropped
	require.Len(t, doc.Reasons, 1)
	require.Equal(t, 1, doc.Reasons[0].ID)
}
