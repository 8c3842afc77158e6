package export

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"vitemadose-backend/internal/aggregator"
	"vitemadose-backend/internal/model"

	"github.com/stretchr/testify/require"
)

func testResult(t *testing.T) *aggregator.Result {
	t.Helper()
	a := aggregator.New(time.Date(2021, 6, 5, 0, 0, 0, 0, time.UTC), aggregator.Options{})
	v := &model.Venue{
		InternalID:  "doctolib1",
		Departement: "75",
		Name:        "Centre de Paris",
		URL:         "https://partners.doctolib.fr/centre?pid=1&x=2",
		Kind:        model.VaccinationCenter,
		Platform:    model.Doctolib,
	}
	a.Consume(model.Slot{
		Venue:      v,
		When:       time.Date(2021, 6, 6, 6, 30, 0, 0, time.UTC),
		BookingURL: v.URL,
		Vaccines:   []model.Vaccine{model.Pfizer},
		DoseRanks:  []int{1},
	})
	a.Consume(model.NoSlot{Venue: &model.Venue{
		InternalID:  "keldoc2",
		Departement: "59",
		Name:        "Centre de Lille",
		URL:         "https://vaccination-covid.keldoc.com/c/lille",
		Kind:        model.VaccinationCenter,
		Platform:    model.Keldoc,
	}})
	return a.Finalize(nil)
}

func readJSON(t *testing.T, path string, v any) {
	t.Helper()
	contents, err := os.ReadFile(path)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(contents, v))
}

func TestWriteAll(t *testing.T) {
	dir := t.TempDir()
	w := NewWriter(dir)
	require.NoError(t, w.WriteAll(context.Background(), testResult(t)))

	var national aggregator.Export
	readJSON(t, filepath.Join(dir, "info_centres.json"), &national)
	require.Equal(t, 1, national.Version)
	require.Len(t, national.Available, 1)
	require.Len(t, national.Unavailable, 1)

	var dep75 aggregator.Export
	readJSON(t, filepath.Join(dir, "75.json"), &dep75)
	require.Len(t, dep75.Available, 1)
	require.Equal(t, "2021-06-06T06:30:00Z", *dep75.Available[0].ProchainRdv)

	// every known département gets a snapshot and a rollup, empty or not
	var dep01 aggregator.Export
	readJSON(t, filepath.Join(dir, "01.json"), &dep01)
	require.Empty(t, dep01.Available)

	var rollup aggregator.DailyRollup
	readJSON(t, filepath.Join(dir, "75", "creneaux-quotidiens.json"), &rollup)
	require.Equal(t, "75", rollup.Departement)
	require.Len(t, rollup.Days, 8)
	require.Equal(t, 1, rollup.Days[1].Total)

	// no temp files left behind
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	for _, e := range entries {
		require.NotContains(t, e.Name(), ".tmp")
	}
}

func TestOpenDataProjection(t *testing.T) {
	dir := t.TempDir()
	w := NewWriter(dir)
	require.NoError(t, w.WriteAll(context.Background(), testResult(t)))

	var openData struct {
		Version     int              `json:"version"`
		Disponibles []map[string]any `json:"centres_disponibles"`
	}
	readJSON(t, filepath.Join(dir, "centres_open_data.json"), &openData)
	require.Equal(t, 1, openData.Version)
	require.Len(t, openData.Disponibles, 1)

	center := openData.Disponibles[0]
	require.Equal(t, "Centre de Paris", center["nom"])
	require.Equal(t, "75", center["departement"])
	for _, key := range openDataDroppedKeys {
		require.NotContains(t, center, key)
	}
}

func TestStats(t *testing.T) {
	dir := t.TempDir()
	w := NewWriter(dir)
	require.NoError(t, w.WriteAll(context.Background(), testResult(t)))

	var stats map[string]DepStat
	readJSON(t, filepath.Join(dir, "stats.json"), &stats)
	require.Equal(t, DepStat{Disponibles: 1, Total: 1, Creneaux: 1}, stats["75"])
	require.Equal(t, DepStat{Disponibles: 0, Total: 1, Creneaux: 0}, stats["59"])
	require.Equal(t, DepStat{Disponibles: 1, Total: 2, Creneaux: 1}, stats["tout_departement"])
}

func TestURLsNotEscaped(t *testing.T) {
	dir := t.TempDir()
	w := NewWriter(dir)
	require.NoError(t, w.WriteAll(context.Background(), testResult(t)))

	contents, err := os.ReadFile(filepath.Join(dir, "75.json"))
	require.NoError(t, err)
	require.Contains(t, string(contents), "pid=1&x=2")
}
