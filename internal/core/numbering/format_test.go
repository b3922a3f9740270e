package numbering

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormat(t *testing.T) {
	assert.Equal(t, "EST-001000", Format("EST-", 1000))
	assert.Equal(t, "SQ-000500", Format("SQ-", 500))
	assert.Equal(t, "000001", Format("", 1))
	// never truncated past the pad width
	assert.Equal(t, "INV-1234567", Format("INV-", 1234567))
}

func TestParse_RoundTrip(t *testing.T) {
	for _, tc := range []struct {
		prefix string
		n      int64
	}{
		{"EST-", 1000},
		{"SQ-", 500},
		{"", 42},
		{"A/2024/", 1234567},
		{"00", 7},
	} {
		n, err := Parse(Format(tc.prefix, tc.n), tc.prefix)
		require.NoError(t, err, tc.prefix)
		assert.Equal(t, tc.n, n)
	}
}

func TestParse_Rejects(t *testing.T) {
	cases := map[string]string{
		"wrong prefix":  "SQ-001000",
		"too short":     "EST-1000",
		"non digit":     "EST-00100A",
		"zero":          "EST-000000",
		"empty numeric": "EST-",
	}
	for name, formatted := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Parse(formatted, "EST-")
			assert.Error(t, err)
		})
	}
}

func TestParseKind(t *testing.T) {
	for in, want := range map[string]Kind{
		"quote":        KindQuote,
		"quotes":       KindQuote,
		"Invoice":      KindInvoice,
		"certificates": KindCertificate,
	} {
		got, err := ParseKind(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got)
	}

	_, err := ParseKind("receipt")
	assert.Error(t, err)
}

func TestValidatePrefix(t *testing.T) {
	assert.NoError(t, ValidatePrefix("SQ-"))
	assert.NoError(t, ValidatePrefix(""))
	assert.Error(t, ValidatePrefix("S Q"))
	assert.Error(t, ValidatePrefix("0123456789012345678901234567890123"))
}
