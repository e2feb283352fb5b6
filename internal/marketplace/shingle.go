package marketplace

import (
	"strings"
	"unicode"
)

// shingleSize is k for the lexical search's k-shingle similarity.
const shingleSize = 4

// normalizeText prepares a string for shingling: lower-case, map every
// run of non-alphanumerics to a single space, and wrap the result in
// single leading and trailing spaces. Returns "" when the input has no
// alphanumeric content.
func normalizeText(s string) string {
	var b strings.Builder
	b.Grow(len(s) + 2)
	b.WriteByte(' ')
	inSpace := true
	for _, r := range strings.ToLower(s) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
			inSpace = false
			continue
		}
		if !inSpace {
			b.WriteByte(' ')
			inSpace = true
		}
	}
	out := b.String()
	if out == " " {
		return ""
	}
	if !inSpace {
		out += " "
	}
	return out
}

// shingles returns the set of contiguous k-rune substrings of the
// normalized text, right-padded with spaces to k when shorter. An empty
// set means no searchable content.
func shingles(s string, k int) map[string]struct{} {
	norm := normalizeText(s)
	if norm == "" {
		return nil
	}
	runes := []rune(norm)
	for len(runes) < k {
		runes = append(runes, ' ')
	}
	set := make(map[string]struct{}, len(runes)-k+1)
	for i := 0; i+k <= len(runes); i++ {
		set[string(runes[i:i+k])] = struct{}{}
	}
	return set
}

// shingleScore returns the fraction of q's shingles present in d.
// An empty q scores zero against everything.
func shingleScore(q, d map[string]struct{}) float64 {
	if len(q) == 0 {
		return 0
	}
	hits := 0
	for sh := range q {
		if _, ok := d[sh]; ok {
			hits++
		}
	}
	return float64(hits) / float64(len(q))
}
