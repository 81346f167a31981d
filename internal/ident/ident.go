// Package ident owns the display identifier surface the engine treats as an
// external collaborator: the identifier string format, parsing, and the
// allocator that hands out the next identifier for a category/suffix.
package ident

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"gauge-tracking-backend/internal/model"
)

var identRe = regexp.MustCompile(`^([A-Z][A-Z0-9]*)-(\d{4,})(?:-(GO|NOGO))?$`)

// Parsed holds the structured data parsed from a display identifier.
type Parsed struct {
	Category string
	Seq      int
	Suffix   model.GaugeSuffix
}

// Base returns the identifier without its suffix; both halves of a set
// share it.
func (p Parsed) Base() string {
	return fmt.Sprintf("%s-%04d", p.Category, p.Seq)
}

// Parse extracts category, sequence and suffix from an identifier such as
// "TPG-0042-GO".
func Parse(raw string) (Parsed, error) {
	s := strings.TrimSpace(strings.ToUpper(raw))
	m := identRe.FindStringSubmatch(s)
	if m == nil {
		return Parsed{}, fmt.Errorf("unable to parse identifier: %q", raw)
	}
	seq, err := strconv.Atoi(m[2])
	if err != nil {
		return Parsed{}, fmt.Errorf("unable to parse identifier sequence: %q", raw)
	}
	return Parsed{Category: m[1], Seq: seq, Suffix: model.GaugeSuffix(m[3])}, nil
}

// Format renders an identifier from its parts. The sequence is zero-padded
// to four digits; longer sequences keep their width.
func Format(category string, seq int, suffix model.GaugeSuffix) string {
	base := fmt.Sprintf("%s-%04d", strings.ToUpper(category), seq)
	if suffix == "" {
		return base
	}
	return fmt.Sprintf("%s-%s", base, suffix)
}
