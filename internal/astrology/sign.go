// Package astrology maps birth dates and free-text profile values to zodiac signs.
package astrology

import (
	"encoding/json"
	"strings"
	"time"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Sign is a zodiac sign, identified by its lowercase English name.
type Sign string

// The twelve signs, in calendar order starting at the spring equinox.
const (
	Aries       Sign = "aries"
	Taurus      Sign = "taurus"
	Gemini      Sign = "gemini"
	Cancer      Sign = "cancer"
	Leo         Sign = "leo"
	Virgo       Sign = "virgo"
	Libra       Sign = "libra"
	Scorpio     Sign = "scorpio"
	Sagittarius Sign = "sagittarius"
	Capricorn   Sign = "capricorn"
	Aquarius    Sign = "aquarius"
	Pisces      Sign = "pisces"
)

// signStart lists the first day of each sign; a date belongs to the last entry
// whose start is not after it. Dates before Jan 20 fall back to Capricorn.
var signStart = []struct {
	month time.Month
	day   int
	sign  Sign
}{
	{time.January, 20, Aquarius},
	{time.February, 19, Pisces},
	{time.March, 21, Aries},
	{time.April, 20, Taurus},
	{time.May, 21, Gemini},
	{time.June, 21, Cancer},
	{time.July, 23, Leo},
	{time.August, 23, Virgo},
	{time.September, 23, Libra},
	{time.October, 23, Scorpio},
	{time.November, 22, Sagittarius},
	{time.December, 22, Capricorn},
}

var french = map[Sign]string{
	Aries:       "bélier",
	Taurus:      "taureau",
	Gemini:      "gémeaux",
	Cancer:      "cancer",
	Leo:         "lion",
	Virgo:       "vierge",
	Libra:       "balance",
	Scorpio:     "scorpion",
	Sagittarius: "sagittaire",
	Capricorn:   "capricorne",
	Aquarius:    "verseau",
	Pisces:      "poissons",
}

// aliases maps every accepted folded spelling to its sign.
var aliases = func() map[string]Sign {
	m := make(map[string]Sign, len(french)*2)
	for sign, fr := range french {
		m[string(sign)] = sign
		m[Normalize(fr)] = sign
	}
	return m
}()

// ForDate returns the sign for a birth date. Only month and day are used.
func ForDate(t time.Time) Sign {
	m, d := t.Month(), t.Day()
	sign := Capricorn
	for _, s := range signStart {
		if m > s.month || (m == s.month && d >= s.day) {
			sign = s.sign
		}
	}
	return sign
}

// All returns the signs in calendar order.
func All() []Sign {
	return []Sign{Aries, Taurus, Gemini, Cancer, Leo, Virgo, Libra, Scorpio, Sagittarius, Capricorn, Aquarius, Pisces}
}

// Title returns the capitalized English name, as horoscope providers expect it.
func (s Sign) Title() string {
	if s == "" {
		return ""
	}
	return strings.ToUpper(string(s[:1])) + string(s[1:])
}

// Name returns the display name of the sign in the given language ("fr" or anything else for English).
func (s Sign) Name(language string) string {
	if strings.HasPrefix(strings.ToLower(language), "fr") {
		if fr, ok := french[s]; ok {
			return fr
		}
	}
	return string(s)
}

// Valid reports whether s is one of the twelve signs.
func (s Sign) Valid() bool {
	_, ok := french[s]
	return ok
}

// Parse resolves a free-text profile value to a sign. It accepts English or
// French names in any case, with or without accents, and JSON objects of the
// form {"sign": "..."}.
func Parse(raw string) (Sign, bool) {
	value := strings.TrimSpace(raw)
	if strings.HasPrefix(value, "{") {
		var obj struct {
			Sign string `json:"sign"`
		}
		if err := json.Unmarshal([]byte(value), &obj); err != nil {
			return "", false
		}
		value = obj.Sign
	}
	sign, ok := aliases[Normalize(value)]
	return sign, ok
}

// Resolve picks the sign for a profile: an explicit sign wins, then the birth date.
func Resolve(explicit string, birthDate *time.Time) (Sign, bool) {
	if sign, ok := Parse(explicit); ok {
		return sign, true
	}
	if birthDate != nil && !birthDate.IsZero() {
		return ForDate(*birthDate), true
	}
	return "", false
}

// Normalize lowercases s, trims it and strips diacritics.
func Normalize(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, s)
	if err != nil {
		folded = s
	}
	return strings.ToLower(strings.TrimSpace(folded))
}
