package departements

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTable(t *testing.T) {
	require.Len(t, Codes(), 101)
	require.Equal(t, "Paris", Name("75"))
	require.Equal(t, "Corse-du-Sud", Name("2A"))
	require.Equal(t, "Guadeloupe", Name("971"))
	require.False(t, IsValid("99"))
	require.False(t, IsValid(""))
}

func TestFromInsee(t *testing.T) {
	cases := []struct {
		insee string
		want  string
	}{
		{"75056", "75"},
		{"2A004", "2A"},
		{"2B033", "2B"},
		{"97105", "971"},
		{"97209", "972"},
		{"97302", "973"},
		{"97411", "974"},
		{"97608", "976"},
		// Saint-Barthélemy and Saint-Martin fold into Guadeloupe
		{"97701", "971"},
		{"97801", "971"},
		// leading zero lost by a spreadsheet
		{"1053", "01"},
		{" 69123 ", "69"},
	}
	for _, c := range cases {
		got, err := FromInsee(c.insee)
		require.NoError(t, err, c.insee)
		require.Equal(t, c.want, got, c.insee)
	}
}

func TestFromInseeInvalid(t *testing.T) {
	for _, insee := range []string{"", "123", "99999", "abcde"} {
		_, err := FromInsee(insee)
		require.Error(t, err, insee)
	}
}
