// Package moderation screens relayed text for prohibited terms using an
// Aho-Corasick automaton, so a single pass over the message covers the
// whole term list. Matching is case-insensitive on a lowercased rune
// stream.
package moderation

import (
	"fmt"
	"unicode"

	goahocorasick "github.com/anknown/ahocorasick"
)

// Filter matches relayed text against a fixed set of prohibited terms.
type Filter struct {
	machine *goahocorasick.Machine
}

// NewFilter builds the automaton from the given terms. An empty term list
// yields a filter that matches nothing.
func NewFilter(terms []string) (*Filter, error) {
	if len(terms) == 0 {
		return &Filter{}, nil
	}
	patterns := make([][]rune, 0, len(terms))
	for _, term := range terms {
		if runes := lowerRunes(term); len(runes) > 0 {
			patterns = append(patterns, runes)
		}
	}
	m := new(goahocorasick.Machine)
	if err := m.Build(patterns); err != nil {
		return nil, fmt.Errorf("moderation: build automaton: %w", err)
	}
	return &Filter{machine: m}, nil
}

// Match reports the first prohibited term found in text.
func (f *Filter) Match(text string) (string, bool) {
	if f == nil || f.machine == nil || text == "" {
		return "", false
	}
	hits := f.machine.MultiPatternSearch(lowerRunes(text), true)
	if len(hits) == 0 {
		return "", false
	}
	return string(hits[0].Word), true
}

func lowerRunes(s string) []rune {
	out := make([]rune, 0, len(s))
	for _, r := range s {
		out = append(out, unicode.ToLower(r))
	}
	return out
}
