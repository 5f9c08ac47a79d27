package speech

import (
	"regexp"
	"strings"
)

var (
	boldPattern        = regexp.MustCompile(`\*\*(.*?)\*\*`)
	bracketPattern     = regexp.MustCompile(`\[.*?\]`)
	parentheticPattern = regexp.MustCompile(`\(.*?\)`)
	symbolPattern      = regexp.MustCompile(strings.Join([]string{
		`[\x{1F300}-\x{1F9FF}]`,
		`[\x{1F600}-\x{1F64F}]`,
		`[\x{1F680}-\x{1F6FF}]`,
		`[\x{2600}-\x{26FF}]`,
		`[\x{2700}-\x{27BF}]`,
		`[\x{1F1E0}-\x{1F1FF}]`,
		`[\x{1F191}-\x{1F251}]`,
		`\x{1F004}`,
		`\x{1F0CF}`,
		`[\x{1F170}-\x{1F171}]`,
		`[\x{1F17E}-\x{1F17F}]`,
		`\x{1F18E}`,
		`\x{3030}`,
		`\x{2B50}`,
		`\x{2B55}`,
		`[\x{2934}-\x{2935}]`,
		`[\x{2B05}-\x{2B07}]`,
		`[\x{2B1B}-\x{2B1C}]`,
		`\x{3297}`,
		`\x{3299}`,
		`\x{303D}`,
		`\x{00A9}`,
		`\x{00AE}`,
		`\x{2122}`,
		`\x{23F3}`,
		`\x{24C2}`,
		`[\x{23E9}-\x{23EF}]`,
		`[\x{25AA}-\x{25AB}]`,
		`\x{25B6}`,
		`\x{25C0}`,
		`[\x{25FB}-\x{25FE}]`,
		`[\x{0023}-\x{0039}]\x{20E3}`,
	}, "|"))
)

// Clean removes markup, asides and emoji that read badly when spoken
func Clean(text string) string {
	text = boldPattern.ReplaceAllString(text, "$1")
	text = bracketPattern.ReplaceAllString(text, "")
	text = parentheticPattern.ReplaceAllString(text, "")
	text = symbolPattern.ReplaceAllString(text, "")
	return strings.TrimSpace(text)
}
