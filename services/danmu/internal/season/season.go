// Package season decides whether a search candidate is the requested season of a title.
package season

import (
	"regexp"
	"strconv"
	"strings"

	"golang.org/x/text/width"
)

// Default is the token assumed when a title carries no season marker.
const Default = "一"

var (
	reSeasonMarker = regexp.MustCompile(`第(.*?)季`)
	reLatinSeason  = regexp.MustCompile(`(?i)\bseason\s*(\d+)\b`)
	romanSuffixes  = []string{"", "I", "II", "III", "IV", "V", "VI", "VII", "VIII", "IX"}
)

// Normalize folds full-width characters so "第２季" and "第2季" parse alike.
func Normalize(s string) string {
	return strings.TrimSpace(width.Narrow.String(s))
}

// Requested converts the caller's season number to its token. Empty means the
// first season; non-numeric input is kept as given.
func Requested(seasonNumber string) string {
	seasonNumber = Normalize(seasonNumber)
	if seasonNumber == "" {
		return Default
	}
	if n, err := strconv.Atoi(seasonNumber); err == nil {
		return Numeral(n)
	}
	return seasonNumber
}

// Token extracts the season token of candidate, a title found while searching
// for name. Priority: "第N季" marker, "Season N" marker, digits right after
// name, a Roman suffix I..IX right after name, else Default.
func Token(candidate, name string) string {
	candidate = Normalize(candidate)
	name = Normalize(name)

	if m := reSeasonMarker.FindStringSubmatch(candidate); m != nil {
		return numeralOrRaw(m[1])
	}
	if m := reLatinSeason.FindStringSubmatch(candidate); m != nil {
		return numeralOrRaw(m[1])
	}
	if name == "" {
		return Default
	}
	quoted := regexp.QuoteMeta(name)
	if m := regexp.MustCompile(quoted + `(\d+)`).FindStringSubmatch(candidate); m != nil {
		return numeralOrRaw(m[1])
	}
	if m := regexp.MustCompile(quoted + `([IVX]+)`).FindStringSubmatch(candidate); m != nil {
		for i, r := range romanSuffixes {
			if i > 0 && r == m[1] {
				return Numeral(i)
			}
		}
	}
	return Default
}

// Accept reports whether candidate is the requested season of name: the
// candidate must start with the first word of name and carry the requested
// token (or the request names the title itself).
func Accept(candidate, name, requested string) bool {
	candidate = Normalize(candidate)
	name = Normalize(name)
	base := name
	if i := strings.Index(base, " "); i >= 0 {
		base = base[:i]
	}
	if base == "" || !strings.HasPrefix(candidate, base) {
		return false
	}
	return requested == name || Token(candidate, name) == requested
}

func numeralOrRaw(s string) string {
	if n, err := strconv.Atoi(strings.TrimSpace(s)); err == nil {
		return Numeral(n)
	}
	return s
}
