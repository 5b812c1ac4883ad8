package password

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func met(s Strength) []bool {
	out := make([]bool, len(s.Requirements))
	for i, r := range s.Requirements {
		out[i] = r.Met
	}
	return out
}

func TestCheck(t *testing.T) {
	t.Parallel()

	cases := []struct {
		pw    string
		met   []bool
		score int
		label string
	}{
		{"", []bool{false, false, false, false, false}, 0, "very weak"},
		{"abc", []bool{false, false, true, false, false}, 1, "very weak"},
		{"abcdefgh", []bool{true, false, true, false, false}, 2, "weak"},
		{"Abcdefgh", []bool{true, true, true, false, false}, 3, "fair"},
		{"Abcdefg1", []bool{true, true, true, true, false}, 4, "good"},
		{"Abcdef1!", []bool{true, true, true, true, true}, 5, "strong"},
		{"Abcdefg1 ", []bool{true, true, true, true, false}, 4, "good"},
		{"Abcdefg1\t", []bool{true, true, true, true, false}, 4, "good"},
	}
	for _, tc := range cases {
		s := Check(tc.pw)
		require.Equal(t, tc.met, met(s), "password %q", tc.pw)
		require.Equal(t, tc.score, s.Score, "password %q", tc.pw)
		require.Equal(t, tc.label, s.Label, "password %q", tc.pw)
	}
}

func TestRequirementsFlipIndependently(t *testing.T) {
	t.Parallel()

	base := Check("Abcdef1!")
	require.True(t, base.Acceptable())

	// Dropping the digit flips only that requirement.
	s := Check("Abcdefg!")
	require.Equal(t, []bool{true, true, true, false, true}, met(s))
	require.False(t, s.Acceptable())

	// Length counts runes, not bytes.
	s = Check("Ää1!ääää")
	require.True(t, s.Requirements[0].Met)
}
