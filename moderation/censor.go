// Package moderation rewrites forbidden terms in outbound message
// bodies before they are stored or fanned out.
package moderation

import (
	"log/slog"
	"unicode"

	goahocorasick "github.com/anknown/ahocorasick"
)

// Censor matches a fixed dictionary case-insensitively with an
// Aho-Corasick automaton and masks every hit with the replacement
// rune. Spacing and untouched characters are preserved.
type Censor struct {
	machine     *goahocorasick.Machine
	replacement rune
	log         *slog.Logger
}

func NewCensor(words []string, replacement rune, log *slog.Logger) (*Censor, error) {
	patterns := make([][]rune, len(words))
	for i, word := range words {
		patterns[i] = lowerRunes([]rune(word))
	}
	machine := new(goahocorasick.Machine)
	if err := machine.Build(patterns); err != nil {
		return nil, err
	}
	return &Censor{machine: machine, replacement: replacement, log: log}, nil
}

// Apply masks all dictionary hits in body and returns the cleaned text
// together with the number of masked spans.
func (c *Censor) Apply(body string) (string, int) {
	original := []rune(body)
	spans := c.machine.MultiPatternSearch(lowerRunes(original), false)
	if len(spans) == 0 {
		return body, 0
	}

	for _, span := range spans {
		end := span.Pos + len(span.Word)
		if span.Pos < 0 || end > len(original) {
			continue
		}
		for i := span.Pos; i < end; i++ {
			original[i] = c.replacement
		}
	}
	return string(original), len(spans)
}

func lowerRunes(in []rune) []rune {
	out := make([]rune, len(in))
	for i, r := range in {
		out[i] = unicode.ToLower(r)
	}
	return out
}
