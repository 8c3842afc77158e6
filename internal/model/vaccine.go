package model

import (
	"regexp"
	"strings"
)

// Vaccine values are the display names published in the JSON output.
type Vaccine string

const (
	Pfizer      Vaccine = "Pfizer-BioNTech"
	Moderna     Vaccine = "Moderna"
	AstraZeneca Vaccine = "AstraZeneca"
	Janssen     Vaccine = "Janssen"
	ARNm        Vaccine = "ARNm"
)

// alias table for case-insensitive substring matching against motive
// names. Order matters: the first alias that matches wins.
var vaccineAliases = []struct {
	needle  string
	vaccine Vaccine
}{
	{"pfizer", Pfizer},
	{"biontech", Pfizer},
	{"moderna", Moderna},
	{"astrazeneca", AstraZeneca},
	{"astra zeneca", AstraZeneca},
	{"az", AstraZeneca},
	{"janssen", Janssen},
	{"johnson", Janssen},
	{"j&j", Janssen},
	{"arnm", ARNm},
	{"arn", ARNm},
}

var under55Markers = []string{"moins de 55", "- de 55", "– de 55"}

// VaccineFromMotive classifies a visit motive name into a vaccine.
//
// One edge case: a second appointment offered to under-55 patients who
// already received a first AstraZeneca injection is administered with
// an mRNA vaccine, whatever the motive name says.
func VaccineFromMotive(name string) (Vaccine, bool) {
	lower := strings.ToLower(name)

	azMatch := strings.Contains(lower, "astrazeneca") ||
		strings.Contains(lower, "astra zeneca") ||
		strings.Contains(lower, "az")
	if azMatch && strings.Contains(lower, "suite") {
		for _, marker := range under55Markers {
			if strings.Contains(lower, marker) {
				return ARNm, true
			}
		}
	}

	for _, alias := range vaccineAliases {
		if strings.Contains(lower, alias.needle) {
			return alias.vaccine, true
		}
	}
	return "", false
}

var (
	firstDoseRe   = regexp.MustCompile(`(?i)1\s*[eè]?re|premi[eè]re|1\s*er\b`)
	secondDoseRe  = regexp.MustCompile(`(?i)2\s*[eè]me|deuxi[eè]me|seconde|2de`)
	boosterDoseRe = regexp.MustCompile(`(?i)rappel|3\s*[eè]me|troisi[eè]me`)
)

// DoseRanksFromMotive infers which dose numbers a motive serves from
// keywords in its name. An empty result means the motive does not say.
func DoseRanksFromMotive(name string) []int {
	var ranks []int
	if firstDoseRe.MatchString(name) {
		ranks = append(ranks, 1)
	}
	if secondDoseRe.MatchString(name) {
		ranks = append(ranks, 2)
	}
	if boosterDoseRe.MatchString(name) {
		ranks = append(ranks, 3)
	}
	return ranks
}
