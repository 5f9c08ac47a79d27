package chat

import (
	"strings"
	"unicode/utf8"
)

const (
	maxTitleLength = 20
	titleEllipsis  = "..."
)

// ShortTitle trims raw and cuts it to 20 characters, adding an ellipsis
// when anything was cut.
func ShortTitle(raw string) string {
	raw = strings.TrimSpace(raw)
	if utf8.RuneCountInString(raw) <= maxTitleLength {
		return raw
	}
	return string([]rune(raw)[:maxTitleLength]) + titleEllipsis
}
