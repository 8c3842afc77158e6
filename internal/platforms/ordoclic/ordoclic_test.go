package ordoclic

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"vitemadose-backend/internal/model"
	"vitemadose-backend/internal/platforms"

	"github.com/stretchr/testify/require"
)

const entityID = "8b1c9a2e-4f3d-4a6b-9c8d-0e1f2a3b4c5d"

func testVenue() *model.Venue {
	return &model.Venue{
		InternalID:  "ordoclic12",
		Departement: "33",
		Name:        "Pharmacie de la Gare",
		URL:         "https://app.ordoclic.fr/app/pharmacie/pharmacie-de-la-gare-bordeaux",
		Platform:    model.Ordoclic,
	}
}

func testReasons() reasonsResponse {
	return reasonsResponse{Reasons: []rawReason{
		{ID: "r1", Label: "Vaccination COVID Janssen", CanBookOnline: true, InjectionDose: 1},
		{ID: "r2", Label: "2ème injection Pfizer", CanBookOnline: true},
		{ID: "r3", Label: "1ère injection Moderna", CanBookOnline: false},
	}}
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

func registerEntity(mux *http.ServeMux) {
	mux.HandleFunc("/v1/public/entities/profile/pharmacie-de-la-gare-bordeaux", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(profileResponse{EntityID: entityID, Name: "Pharmacie de la Gare"})
	})
	mux.HandleFunc("/v1/solar/entities/reasons", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(testReasons())
	})
}

func TestFetchSingleSlot(t *testing.T) {
	mux := http.NewServeMux()
	registerEntity(mux)
	mux.HandleFunc("/v1/solar/slots/availableSlots", func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, entityID, r.URL.Query().Get("entityId"))
		if r.URL.Query().Get("dateStart") == "2021-06-05" {
			json.NewEncoder(w).Encode(slotsResponse{
				Slots: []slot{{TimeBegin: "2021-06-06T06:30:00Z"}},
			})
			return
		}
		json.NewEncoder(w).Encode(slotsResponse{})
	})

	a := newTestAdapter(t, mux)
	events, err := collect(t, a, time.Date(2021, 6, 5, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.Len(t, events, 1)

	slot, ok := events[0].(model.Slot)
	require.True(t, ok)
	require.Equal(t, []model.Vaccine{model.Janssen}, slot.Vaccines)
	require.Equal(t, []int{1}, slot.DoseRanks)
	require.True(t, slot.When.Equal(time.Date(2021, 6, 6, 6, 30, 0, 0, time.UTC)))
}

func TestFetchNextSlotCursor(t *testing.T) {
	var askedStarts []string
	mux := http.NewServeMux()
	registerEntity(mux)
	mux.HandleFunc("/v1/solar/slots/availableSlots", func(w http.ResponseWriter, r *http.Request) {
		start := r.URL.Query().Get("dateStart")
		askedStarts = append(askedStarts, start)
		switch start {
		case "2021-06-05":
			json.NewEncoder(w).Encode(slotsResponse{NextAvailableSlot: "2021-06-25T09:00:00Z"})
		case "2021-06-25":
			json.NewEncoder(w).Encode(slotsResponse{
				Slots: []slot{{TimeBegin: "2021-06-25T09:00:00Z"}},
			})
		default:
			json.NewEncoder(w).Encode(slotsResponse{})
		}
	})

	a := newTestAdapter(t, mux)
	events, err := collect(t, a, time.Date(2021, 6, 5, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)

	require.Equal(t, "2021-06-05", askedStarts[0])
	require.Equal(t, "2021-06-25", askedStarts[1])
	require.Len(t, events, 1)
}

func TestFetchUnknownSlug(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	a := newTestAdapter(t, mux)
	events, err := collect(t, a, time.Now())
	require.NoError(t, err)
	require.Len(t, events, 1)
	_, ok := events[0].(model.NoSlot)
	require.True(t, ok)
}

func TestFilterReasons(t *testing.T) {
	kept := filterReasons(testReasons().Reasons)
	// the second dose and the offline-only reason are dropped
	require.Len(t, kept, 1)
	require.Equal(t, "r1", kept[0].ID)
	require.Equal(t, []int{1}, kept[0].DoseRanks)
}
