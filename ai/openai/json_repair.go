package openai

import (
	"regexp"
	"strings"
)

// unquotedKey matches a key whose opening quote was dropped, e.g. `, confidence":`.
var unquotedKey = regexp.MustCompile(`([{,]\s*)([A-Za-z_][A-Za-z0-9_]*)":`)

// trailingComma matches a comma directly before a closing bracket.
var trailingComma = regexp.MustCompile(`,(\s*[}\]])`)

// cleanResponse strips markdown fences and repairs the JSON slips small
// models make most often.
func cleanResponse(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return repairJSON(strings.TrimSpace(s))
}

func repairJSON(s string) string {
	s = unquotedKey.ReplaceAllString(s, `$1"$2":`)
	return trailingComma.ReplaceAllString(s, `$1`)
}
