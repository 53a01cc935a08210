package views

import (
	"strings"
	"unicode"

	"github.com/antzucaro/matchr"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/rendis/yelptap/internal/model"
)

// fuzzyThreshold is the Jaro-Winkler score a filter word needs against some
// word of a record when it is not a plain substring.
const fuzzyThreshold = 0.88

// normalize removes accents/diacritics and lowercases text for fuzzy matching.
func normalize(s string) string {
	t := transform.Chain(norm.NFD, transform.RemoveFunc(func(r rune) bool {
		return unicode.Is(unicode.Mn, r)
	}), norm.NFC)
	result, _, _ := transform.String(t, strings.ToLower(s))
	return result
}

func haystack(r model.BusinessRecord) string {
	parts := []string{r.Name, r.Website}
	for _, rv := range r.Reviews {
		parts = append(parts, rv.ReviewerName, rv.ReviewerLocation)
	}
	return normalize(strings.Join(parts, " "))
}

// matchWord reports whether w is in hay, either as a substring or as a close
// misspelling of one of its words.
func matchWord(hay string, tokens []string, w string) bool {
	if strings.Contains(hay, w) {
		return true
	}
	if len([]rune(w)) < 4 {
		return false
	}
	for _, t := range tokens {
		if matchr.JaroWinkler(w, t, false) >= fuzzyThreshold {
			return true
		}
	}
	return false
}

// filterRecords keeps records matching every word of query. An empty query
// keeps everything.
func filterRecords(recs []model.BusinessRecord, query string) []model.BusinessRecord {
	words := strings.Fields(normalize(query))
	if len(words) == 0 {
		return recs
	}

	var out []model.BusinessRecord
	for _, r := range recs {
		hay := haystack(r)
		tokens := strings.FieldsFunc(hay, func(c rune) bool {
			return !unicode.IsLetter(c) && !unicode.IsDigit(c)
		})
		match := true
		for _, w := range words {
			if !matchWord(hay, tokens, w) {
				match = false
				break
			}
		}
		if match {
			out = append(out, r)
		}
	}
	return out
}
