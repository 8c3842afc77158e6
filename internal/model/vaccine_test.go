package model

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestVaccineFromMotive(t *testing.T) {
	cases := []struct {
		motive string
		want   Vaccine
		ok     bool
	}{
		{"1ère injection vaccin COVID-19 (Pfizer-BioNTech)", Pfizer, true},
		{"Vaccination COVID - BioNTech", Pfizer, true},
		{"1ère injection Moderna", Moderna, true},
		{"Vaccination AstraZeneca (55 ans et plus)", AstraZeneca, true},
		{"Vaccin Janssen (unidose)", Janssen, true},
		{"Injection vaccin ARNm", ARNm, true},
		{"Consultation de suivi", "", false},
	}
	for _, c := range cases {
		got, ok := VaccineFromMotive(c.motive)
		require.Equal(t, c.ok, ok, c.motive)
		require.Equal(t, c.want, got, c.motive)
	}
}

// an under-55 patient who got a first AstraZeneca dose receives an mRNA
// vaccine for the follow-up, the motive must not be classified as AZ
func TestVaccineFromMotiveUnder55FollowUp(t *testing.T) {
	got, ok := VaccineFromMotive(
		"Vaccination Covid pour les – de 55 ans suite à une 1ère injection d'AstraZeneca",
	)
	require.True(t, ok)
	require.Equal(t, ARNm, got)

	got, ok = VaccineFromMotive(
		"Vaccination pour les moins de 55 ans suite à une première injection AstraZeneca",
	)
	require.True(t, ok)
	require.Equal(t, ARNm, got)
}

func TestDoseRanksFromMotive(t *testing.T) {
	cases := []struct {
		motive string
		want   []int
	}{
		{"1ère injection Pfizer", []int{1}},
		{"Première injection Moderna", []int{1}},
		{"2ème injection Pfizer", []int{2}},
		{"Seconde injection", []int{2}},
		{"Rappel (3ème dose)", []int{3}},
		{"Troisième dose Moderna", []int{3}},
		{"Vaccination COVID", nil},
	}
	for _, c := range cases {
		require.Equal(t, c.want, DoseRanksFromMotive(c.motive), c.motive)
	}
}
