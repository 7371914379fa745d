package normalize

import (
	"strings"
	"unicode"
)

// Text lower-cases s, turns punctuation into spaces and collapses runs of
// whitespace. The empty string stays empty.
func Text(s string) string {
	if s == "" {
		return ""
	}

	b := strings.Builder{}
	b.Grow(len(s))
	for _, r := range strings.ToLower(s) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		} else {
			b.WriteRune(' ')
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

// Code trims and lower-cases short coded values such as state or postcode
func Code(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// Phone keeps only the digits of a phone number
func Phone(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsDigit(r) {
			return r
		}
		return -1
	}, s)
}

// HasDigit reports whether s contains any decimal digit
func HasDigit(s string) bool {
	return strings.IndexFunc(s, unicode.IsDigit) >= 0
}

// StripLetters removes every letter from s
func StripLetters(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) {
			return -1
		}
		return r
	}, s)
}

// streetAbbreviations expands the street type shorthand common in intake forms
var streetAbbreviations = map[string]string{
	"st":   "street",
	"rd":   "road",
	"ave":  "avenue",
	"av":   "avenue",
	"cres": "crescent",
	"cr":   "crescent",
	"ct":   "court",
	"dr":   "drive",
	"pl":   "place",
	"pde":  "parade",
	"hwy":  "highway",
	"ln":   "lane",
	"tce":  "terrace",
	"cl":   "close",
	"cct":  "circuit",
	"gr":   "grove",
	"bvd":  "boulevard",
	"blvd": "boulevard",
	"sq":   "square",
	"esp":  "esplanade",
	"mt":   "mount",
	"apt":  "apartment",
	"u":    "unit",
}

// Address normalises free text with Text and expands street abbreviations
// token by token
func Address(s string) string {
	tokens := strings.Fields(Text(s))
	for i, tok := range tokens {
		if full, ok := streetAbbreviations[tok]; ok {
			tokens[i] = full
		}
	}
	return strings.Join(tokens, " ")
}
