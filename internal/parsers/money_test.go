package parsers

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAmount(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"1234.56", "1234.56"},
		{"1,234.56", "1234.56"},
		{"$1,234.56", "1234.56"},
		{"B/. 1,234.56", "1234.56"},
		{"B/.1,234.56", "1234.56"},
		{"B/.-50.00", "-50"},
		{"1.234,56 B/.", "1234.56"},
		{"USD 987.65", "987.65"},
		{"1.234,56", "1234.56"},
		{"1234,56", "1234.56"},
		{"1,234", "1234"},
		{"(1,234.56)", "-1234.56"},
		{"-45.10", "-45.10"},
		{"0.00", "0"},
		{"  78.9 ", "78.9"},
		{"1.234.567,89", "1234567.89"},
	}
	for _, tc := range cases {
		got, err := ParseAmount(tc.in)
		require.NoError(t, err, "input %q", tc.in)
		assert.True(t, got.Equal(mustDecimal(t, tc.want)), "input %q: got %s want %s", tc.in, got, tc.want)
	}
}

func TestParseAmountRejectsGarbage(t *testing.T) {
	for _, in := range []string{"", "   ", "N/A", "--", "abc"} {
		_, err := ParseAmount(in)
		assert.Error(t, err, "input %q", in)
	}
}
