package classify

import (
	"path"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

// tokenize splits text into lowercased words with surrounding punctuation trimmed.
func tokenize(text string) []string {
	fields := strings.Fields(text)
	words := make([]string, 0, len(fields))
	for _, f := range fields {
		w := strings.ToLower(strings.Trim(f, ".,!?;:'\"-()[]{}/\\"))
		if w != "" {
			words = append(words, w)
		}
	}
	return words
}

// significantWords returns the words of a candidate name longer than three
// characters, in order, without duplicates.
func significantWords(name string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, w := range tokenize(name) {
		if len(w) <= 3 || seen[w] {
			continue
		}
		seen[w] = true
		out = append(out, w)
	}
	return out
}

// normalizeFileName drops the extension and turns separators into spaces.
func normalizeFileName(fileName string) string {
	base := path.Base(strings.ReplaceAll(fileName, "\\", "/"))
	base = strings.TrimSuffix(base, path.Ext(base))
	return strings.Map(func(r rune) rune {
		switch r {
		case '_', '-', '.':
			return ' '
		}
		return r
	}, base)
}

// codePattern matches a candidate code case-insensitively, allowing a single
// space, hyphen or underscore between its letter and digit runs, so that
// "CS101" also matches "cs 101" and "CS-101".
func codePattern(code string) *regexp.Regexp {
	var runs []string
	var cur strings.Builder
	var curDigit bool
	flush := func() {
		if cur.Len() > 0 {
			runs = append(runs, regexp.QuoteMeta(cur.String()))
			cur.Reset()
		}
	}
	for _, r := range code {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) {
			flush()
			continue
		}
		isDigit := unicode.IsDigit(r)
		if cur.Len() > 0 && isDigit != curDigit {
			flush()
		}
		curDigit = isDigit
		cur.WriteRune(r)
	}
	flush()
	if len(runs) == 0 {
		return nil
	}
	return regexp.MustCompile(`(?i)` + strings.Join(runs, `[ _-]?`))
}

// wordPattern matches phrase case-insensitively with any run of whitespace
// between its words.
func wordPattern(phrase string) *regexp.Regexp {
	words := strings.Fields(phrase)
	if len(words) == 0 {
		return nil
	}
	for i, w := range words {
		words[i] = regexp.QuoteMeta(w)
	}
	return regexp.MustCompile(`(?i)` + strings.Join(words, `\s+`))
}

// countWholeWord counts the matches of re in text that are not embedded in a
// longer word.
func countWholeWord(text string, re *regexp.Regexp) int {
	if re == nil {
		return 0
	}
	n := 0
	for _, loc := range re.FindAllStringIndex(text, -1) {
		before, _ := utf8.DecodeLastRuneInString(text[:loc[0]])
		after, _ := utf8.DecodeRuneInString(text[loc[1]:])
		if isWordRune(before) || isWordRune(after) {
			continue
		}
		n++
	}
	return n
}

// isWordRune reports whether r continues a word. utf8.RuneError (empty
// input at either end of the text) does not.
func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r)
}

func containsWholeWord(text, phrase string) bool {
	return countWholeWord(text, wordPattern(phrase)) > 0
}
