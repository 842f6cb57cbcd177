package moderation

import (
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"
)

func Test_Censor_Masks_Hits(t *testing.T) {
	req := require.New(t)
	censor, err := NewCensor([]string{"badger", "snake"}, '*', slog.Default())
	req.NoError(err)

	tests := []struct {
		name     string
		input    string
		expected string
		hits     int
	}{
		{
			name:     "single hit, spacing preserved",
			input:    "the badger is here",
			expected: "the ****** is here",
			hits:     1,
		},
		{
			name:     "case insensitive",
			input:    "BADGER and SnAkE",
			expected: "****** and *****",
			hits:     2,
		},
		{
			name:     "clean text untouched",
			input:    "nothing to see",
			expected: "nothing to see",
			hits:     0,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, hits := censor.Apply(tt.input)
			require.Equal(t, tt.expected, out)
			require.Equal(t, tt.hits, hits)
		})
	}
}

func Test_Embedded_Dictionary_Loads(t *testing.T) {
	req := require.New(t)
	words, err := LoadEmbedded()
	req.NoError(err)
	req.NotEmpty(words)
	req.Contains(words, "scammer")
	req.NotContains(words, "# one term per line, matched case-insensitively")
}
