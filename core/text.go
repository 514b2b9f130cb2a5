package core

import (
	"strings"
	"sync"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// foldChainPool avoids per-call allocations.
// Each borrower gets an NFD → strip combining marks (Mn) → NFC pipeline.
var foldChainPool = sync.Pool{
	New: func() interface{} {
		return transform.Chain(
			norm.NFD,
			runes.Remove(runes.In(unicode.Mn)), // remove combining diacritics
			norm.NFC,
		)
	},
}

// đ/Đ carry no combining mark, so NFD cannot decompose them.
var dStrokeReplacer = strings.NewReplacer("đ", "d", "Đ", "D")

// Fold lowercases `s` and strips Vietnamese diacritics via NFD→remove(Mn)→NFC,
// mapping đ→d. "Nguyễn Văn Ánh" folds to "nguyen van anh". Fold is pure and
// idempotent; empty input yields "".
func Fold(s string) string {
	if s == "" {
		return ""
	}

	// ASCII fast path: already ASCII with no A..Z, nothing to do.
	if isASCIIAndLower(s) {
		return s
	}

	s = dStrokeReplacer.Replace(s)
	s = strings.ToLower(s)

	t := foldChainPool.Get().(transform.Transformer)
	defer func() {
		t.Reset()
		foldChainPool.Put(t)
	}()

	out, _, err := transform.String(t, s)
	if err != nil {
		return strings.ToLower(s)
	}
	return out
}

// Matches reports whether `text` matches the search `query`, ignoring case
// and Vietnamese diacritics on both sides. An empty query matches everything;
// an empty text never matches a non-empty query.
func Matches(text, query string) bool {
	if query == "" {
		return true
	}
	if text == "" {
		return false
	}
	return strings.Contains(Fold(text), Fold(query))
}

// CompareFold compares a and b after folding, for diacritic-insensitive
// ordering. Result is as with strings.Compare.
func CompareFold(a, b string) int {
	return strings.Compare(Fold(a), Fold(b))
}

// isASCIIAndLower reports whether s contains only ASCII bytes and no A..Z.
func isASCIIAndLower(s string) bool {
	for i := 0; i < len(s); i++ {
		b := s[i]
		if b >= 0x80 {
			return false
		}
		if b >= 'A' && b <= 'Z' {
			return false
		}
	}
	return true
}
