// Package export serializes the finalized resources to their stable
// paths. Writes are whole-file rewrites through a temporary sibling
// and a rename, so a reader never observes a partial file.
package export

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"vitemadose-backend/internal/aggregator"

	"go.opentelemetry.io/otel"
)

var tracer = otel.Tracer("export")

const (
	nationalFile = "info_centres.json"
	rollupFile   = "creneaux-quotidiens.json"
	openDataFile = "centres_open_data.json"
	statsFile    = "stats.json"
)

type Writer struct {
	outDir string
}

func NewWriter(outDir string) *Writer {
	return &Writer{outDir: outDir}
}

// WriteAll exports the full resource set of one scan: the national
// snapshot, one snapshot and one rollup per département, the open-data
// projection and the per-département stats.
func (w *Writer) WriteAll(ctx context.Context, result *aggregator.Result) error {
	_, span := tracer.Start(ctx, "WriteAll")
	defer span.End()

	if err := os.MkdirAll(w.outDir, 0o755); err != nil {
		return err
	}

	if err := w.writeJSON(nationalFile, result.National); err != nil {
		return err
	}
	for dep, export := range result.Departements {
		if err := w.writeJSON(dep+".json", export); err != nil {
			return err
		}
	}
	for dep, rollup := range result.Rollups {
		if err := os.MkdirAll(filepath.Join(w.outDir, dep), 0o755); err != nil {
			return err
		}
		if err := w.writeJSON(filepath.Join(dep, rollupFile), rollup); err != nil {
			return err
		}
	}
	if err := w.writeJSON(openDataFile, openData(result.National)); err != nil {
		return err
	}
	return w.writeJSON(statsFile, stats(result))
}

// writeJSON pretty-prints v into <outDir>/<name> atomically.
func (w *Writer) writeJSON(name string, v any) error {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode %s: %w", name, err)
	}

	path := filepath.Join(w.outDir, name)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, buf.Bytes(), 0o644); err != nil {
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return err
	}
	return nil
}

// keys stripped from every venue of the open-data projection
var openDataDroppedKeys = []string{
	"prochain_rdv",
	"internal_id",
	"metadata",
	"location",
	"appointment_count",
	"appointment_schedules",
	"erreur",
	"ville",
	"type",
	"vaccine_type",
	"appointment_by_phone_only",
	"last_scan_with_availabilities",
}

// openData projects the national snapshot down to the fields published
// on the open-data portal.
func openData(national *aggregator.Export) map[string]any {
	return map[string]any{
		"version":               national.Version,
		"last_updated":          national.LastUpdated,
		"centres_disponibles":   project(national.Available),
		"centres_indisponibles": project(national.Unavailable),
	}
}

func project(centers []*aggregator.Center) []map[string]any {
	out := make([]map[string]any, 0, len(centers))
	for _, center := range centers {
		raw, err := json.Marshal(center)
		if err != nil {
			continue
		}
		var m map[string]any
		if err := json.Unmarshal(raw, &m); err != nil {
			continue
		}
		for _, key := range openDataDroppedKeys {
			delete(m, key)
		}
		out = append(out, m)
	}
	return out
}

// DepStat is the per-département line of stats.json.
type DepStat struct {
	Disponibles int `json:"disponibles"`
	Total       int `json:"total"`
	Creneaux    int `json:"creneaux"`
}

func stats(result *aggregator.Result) map[string]DepStat {
	out := map[string]DepStat{}
	var national DepStat
	for dep, export := range result.Departements {
		stat := DepStat{
			Disponibles: len(export.Available),
			Total:       len(export.Available) + len(export.Unavailable),
		}
		for _, center := range export.Available {
			stat.Creneaux += center.AppointmentCount
		}
		out[dep] = stat
		national.Disponibles += stat.Disponibles
		national.Total += stat.Total
		national.Creneaux += stat.Creneaux
	}
	out["tout_departement"] = national
	return out
}
