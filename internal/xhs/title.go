// File: internal/xhs/title.go
package xhs

import (
	"strings"

	"github.com/mattn/go-runewidth"
)

// DefaultMaxTitleWidth is the platform's title budget in display units.
const DefaultMaxTitleWidth = 40

var titleWidth = func() *runewidth.Condition {
	c := runewidth.NewCondition()
	c.EastAsianWidth = false
	c.StrictEmojiNeutral = true
	return c
}()

// TitleWidth weighs CJK and other wide glyphs as 2 units and everything
// else as 1.
func TitleWidth(title string) int {
	return titleWidth.StringWidth(title)
}

// ValidateTitle rejects empty titles and titles wider than max units.
func ValidateTitle(title string, max int) error {
	if strings.TrimSpace(title) == "" {
		return invalid("title", "cannot be empty")
	}
	if max <= 0 {
		max = DefaultMaxTitleWidth
	}
	if w := TitleWidth(title); w > max {
		return invalid("title", "width %d exceeds the limit of %d (CJK characters count as 2)", w, max)
	}
	return nil
}
