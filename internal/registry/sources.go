package registry

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
)

// RawVenue is one venue row as delivered by a source, before
// normalization. Snapshot schemas are additive: unknown keys are
// ignored by the JSON decoder.
type RawVenue struct {
	Gid           string            `json:"gid"`
	Nom           string            `json:"nom"`
	URL           string            `json:"rdv_site_web"`
	Insee         string            `json:"com_insee"`
	Postcode      string            `json:"com_cp"`
	Closed        string            `json:"centre_fermeture"`
	Kind          string            `json:"type"`
	City          string            `json:"com_nom"`
	Address       string            `json:"address"`
	Phone         string            `json:"phone_number"`
	Longitude     float64           `json:"long_coor1"`
	Latitude      float64           `json:"lat_coor1"`
	BusinessHours map[string]string `json:"business_hours"`
}

// Source produces a finite sequence of raw venues. Sources are not
// restartable.
type Source interface {
	Name() string
	Next() (RawVenue, bool)
}

type sliceSource struct {
	name string
	rows []RawVenue
	pos  int
}

func (s *sliceSource) Name() string { return s.name }

func (s *sliceSource) Next() (RawVenue, bool) {
	if s.pos >= len(s.rows) {
		return RawVenue{}, false
	}
	row := s.rows[s.pos]
	s.pos++
	return row, true
}

// SliceSource wraps an in-memory list of raw venues, mostly for tests.
func SliceSource(name string, rows []RawVenue) Source {
	return &sliceSource{name: name, rows: rows}
}

// gov open-data CSV column names
const (
	colGid      = "gid"
	colNom      = "nom"
	colURL      = "rdv_site_web"
	colInsee    = "com_insee"
	colPostcode = "com_cp"
	colClosed   = "centre_fermeture"
	colCity     = "com_nom"
	colAddress  = "adr_voie"
	colPhone    = "rdv_tel"
	colLon      = "long_coor1"
	colLat      = "lat_coor1"
)

// LoadCSV reads the government open-data CSV of vaccination centers
// (semicolon-separated, header row names the columns).
func LoadCSV(path string) (Source, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return readCSV(path, f)
}

func readCSV(name string, r io.Reader) (Source, error) {
	reader := csv.NewReader(r)
	reader.Comma = ';'
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("read csv header: %w", err)
	}
	col := map[string]int{}
	for i, h := range header {
		col[h] = i
	}
	field := func(rec []string, name string) string {
		i, ok := col[name]
		if !ok || i >= len(rec) {
			return ""
		}
		return rec[i]
	}

	var rows []RawVenue
	for {
		rec, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read csv row: %w", err)
		}
		lon, _ := strconv.ParseFloat(field(rec, colLon), 64)
		lat, _ := strconv.ParseFloat(field(rec, colLat), 64)
		rows = append(rows, RawVenue{
			Gid:       field(rec, colGid),
			Nom:       field(rec, colNom),
			URL:       field(rec, colURL),
			Insee:     field(rec, colInsee),
			Postcode:  field(rec, colPostcode),
			Closed:    field(rec, colClosed),
			City:      field(rec, colCity),
			Address:   field(rec, colAddress),
			Phone:     field(rec, colPhone),
			Longitude: lon,
			Latitude:  lat,
			Kind:      "vaccination-center",
		})
	}
	return &sliceSource{name: name, rows: rows}, nil
}

// LoadSnapshot reads a per-platform venue snapshot (a JSON array
// produced by the offline center scrapers).
func LoadSnapshot(path string) (Source, error) {
	contents, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var rows []RawVenue
	err = json.Unmarshal(contents, &rows)
	if err != nil {
		return nil, fmt.Errorf("parse snapshot %s: %w", path, err)
	}
	return &sliceSource{name: path, rows: rows}, nil
}

// Blocklist is the operator-curated list of venue URLs suppressed from
// the output despite appearing in the registry.
type Blocklist struct {
	Centers []BlockedCenter `json:"centers_not_displayed"`
}

type BlockedCenter struct {
	URL     string `json:"url"`
	Name    string `json:"name"`
	Issue   string `json:"issue"`
	Details string `json:"details"`
}

func LoadBlocklist(path string) (Blocklist, error) {
	var out Blocklist
	contents, err := os.ReadFile(path)
	if err != nil {
		return out, err
	}
	err = json.Unmarshal(contents, &out)
	return out, err
}

func (b Blocklist) urls() map[string]bool {
	out := make(map[string]bool, len(b.Centers))
	for _, c := range b.Centers {
		out[c.URL] = true
	}
	return out
}

// LoadPostcodeToInsee reads the postcode-to-INSEE table:
// { "<postcode>": { "insee": "<code>" } }
func LoadPostcodeToInsee(path string) (map[string]string, error) {
	contents, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var raw map[string]struct {
		Insee string `json:"insee"`
	}
	err = json.Unmarshal(contents, &raw)
	if err != nil {
		return nil, fmt.Errorf("parse postcode table %s: %w", path, err)
	}
	out := make(map[string]string, len(raw))
	for cp, v := range raw {
		out[cp] = v.Insee
	}
	return out, nil
}
