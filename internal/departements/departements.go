// Package departements holds the canonical list of French département
// codes and the INSEE commune-code mapping rules.
package departements

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"strings"

	_ "embed"
)

//go:embed departements.csv
var rawTable []byte

var (
	names []string
	codes []string
	byCode map[string]string
)

func init() {
	reader := csv.NewReader(bytes.NewReader(rawTable))
	records, err := reader.ReadAll()
	if err != nil {
		panic(err)
	}
	byCode = make(map[string]string, len(records))
	for _, rec := range records[1:] {
		codes = append(codes, rec[0])
		names = append(names, rec[1])
		byCode[rec[0]] = rec[1]
	}
}

// Codes returns every known département code, in table order.
func Codes() []string {
	out := make([]string, len(codes))
	copy(out, codes)
	return out
}

func Name(code string) string {
	return byCode[code]
}

func IsValid(code string) bool {
	_, ok := byCode[code]
	return ok
}

// FromInsee maps a 5-character INSEE commune code to its département.
//
// Rules: Saint-Barthélemy (977xx) and Saint-Martin (978xx) are folded
// into Guadeloupe (971); other overseas codes (97x) keep three chars;
// metropolitan codes keep two. Codes that lost a leading zero in a
// spreadsheet round-trip are re-padded.
func FromInsee(insee string) (string, error) {
	insee = strings.TrimSpace(insee)
	if len(insee) == 4 {
		insee = "0" + insee
	}
	if len(insee) != 5 {
		return "", fmt.Errorf("invalid insee code %q", insee)
	}

	var dep string
	switch {
	case strings.HasPrefix(insee, "977"), strings.HasPrefix(insee, "978"):
		dep = "971"
	case strings.HasPrefix(insee, "97"):
		dep = insee[:3]
	default:
		dep = insee[:2]
	}

	if !IsValid(dep) {
		return "", fmt.Errorf("insee code %q maps to unknown departement %q", insee, dep)
	}
	return dep, nil
}
