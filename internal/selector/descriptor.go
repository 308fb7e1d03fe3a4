package selector

import (
	"regexp"
	"strings"
)

// Candidates is an ordered list of selector descriptors. Earlier entries
// take priority.
type Candidates []string

// TextMode says how a descriptor's text filter is applied.
type TextMode int

const (
	// TextAny applies no text filter.
	TextAny TextMode = iota
	// TextContains keeps elements whose normalised text contains the needle,
	// ignoring case.
	TextContains
	// TextEquals keeps elements whose normalised text equals the needle.
	TextEquals
)

// Descriptor is a parsed candidate: a CSS query plus an optional text filter
// that is evaluated after the query.
type Descriptor struct {
	Raw  string
	CSS  string
	Mode TextMode
	Text string
}

var textPseudo = regexp.MustCompile(`^(.*?):(has-text|text-is)\(\s*(?:"([^"]*)"|'([^']*)')\s*\)\s*$`)

// Parse splits a trailing :has-text("x") or :text-is("x") off raw. A
// descriptor that is only a text filter queries every element.
func Parse(raw string) Descriptor {
	d := Descriptor{Raw: raw, CSS: strings.TrimSpace(raw)}
	m := textPseudo.FindStringSubmatch(d.CSS)
	if m == nil {
		return d
	}
	d.CSS = strings.TrimSpace(m[1])
	if d.CSS == "" {
		d.CSS = "*"
	}
	d.Text = m[3]
	if d.Text == "" {
		d.Text = m[4]
	}
	if m[2] == "text-is" {
		d.Mode = TextEquals
	} else {
		d.Mode = TextContains
	}
	return d
}

// MatchText reports whether text passes the descriptor's text filter.
func (d Descriptor) MatchText(text string) bool {
	switch d.Mode {
	case TextContains:
		return strings.Contains(strings.ToLower(Normalize(text)), strings.ToLower(Normalize(d.Text)))
	case TextEquals:
		return Normalize(text) == Normalize(d.Text)
	default:
		return true
	}
}

// Normalize trims text and collapses internal whitespace runs to one space.
func Normalize(text string) string {
	return strings.Join(strings.Fields(text), " ")
}
