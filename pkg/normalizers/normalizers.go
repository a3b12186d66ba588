// Package normalizers provides string normalization for names, contacts, relation codes and identifiers.
package normalizers

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Normalizer is a function that normalizes a string value
type Normalizer func(string) string

var registry = make(map[string]Normalizer)

func init() {
	Register("uppercase", Uppercase)
	Register("trim", Trim)
	Register("nphone", NormalizePhone)
	Register("nemail", NormalizeEmail)
	Register("nname", NormalizeName)
	Register("digits_only", DigitsOnly)
	Register("strip_accents", RemoveDiacritics)
	Register("collapse_whitespace", CollapseWhitespace)
}

// Register adds a normalizer to the registry
func Register(name string, fn Normalizer) {
	registry[name] = fn
}

// Get retrieves a normalizer by name
func Get(name string) (Normalizer, bool) {
	fn, ok := registry[name]
	return fn, ok
}

// Apply applies a named normalizer to a value. Unknown names leave the value unchanged.
func Apply(value, normalizer string) string {
	fn, ok := registry[normalizer]
	if !ok {
		return value
	}
	return fn(value)
}

// ApplyChain applies multiple normalizers in sequence
func ApplyChain(value string, normalizers ...string) string {
	result := value
	for _, name := range normalizers {
		result = Apply(result, name)
	}
	return result
}

func Uppercase(s string) string {
	return strings.ToUpper(s)
}

func Trim(s string) string {
	return strings.TrimSpace(s)
}

// NormalizePhone keeps the digits of a phone number, dropping a leading
// country code 55 when the rest is a full national number.
func NormalizePhone(s string) string {
	digits := DigitsOnly(s)
	if len(digits) > 11 && strings.HasPrefix(digits, "55") {
		return digits[2:]
	}
	return digits
}

// NormalizeEmail lowercases and trims an email address
func NormalizeEmail(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// RemoveDiacritics decomposes the string and drops combining marks, so "JOÃO" becomes "JOAO".
func RemoveDiacritics(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}

// CollapseWhitespace trims and replaces runs of whitespace with a single space
func CollapseWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// NormalizeName produces the comparison form of a person's name:
// upper case, no diacritics, no punctuation, single spaces.
func NormalizeName(s string) string {
	s = strings.ToUpper(RemoveDiacritics(s))

	var result strings.Builder
	prevSpace := true
	for _, r := range s {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			result.WriteRune(r)
			prevSpace = false
		case unicode.IsSpace(r) || r == '-' || r == '\'' || r == '.':
			if !prevSpace {
				result.WriteRune(' ')
				prevSpace = true
			}
		}
	}

	return strings.TrimSpace(result.String())
}

// DigitsOnly keeps only digit characters
func DigitsOnly(s string) string {
	var result strings.Builder
	for _, r := range s {
		if unicode.IsDigit(r) {
			result.WriteRune(r)
		}
	}
	return result.String()
}

var particles = map[string]struct{}{
	"DA": {}, "DE": {}, "DO": {}, "DAS": {}, "DOS": {}, "E": {},
	"JUNIOR": {}, "JR": {}, "FILHO": {}, "NETO": {}, "SOBRINHO": {},
}

// Surname returns the last significant token of a normalized name, skipping
// connecting particles and generational suffixes.
func Surname(s string) string {
	tokens := strings.Fields(NormalizeName(s))
	for i := len(tokens) - 1; i > 0; i-- {
		if _, skip := particles[tokens[i]]; !skip {
			return tokens[i]
		}
	}
	return ""
}

// Surnames returns every significant non-first token of a normalized name.
func Surnames(s string) []string {
	tokens := strings.Fields(NormalizeName(s))
	if len(tokens) < 2 {
		return nil
	}
	out := make([]string, 0, len(tokens)-1)
	for _, tok := range tokens[1:] {
		if _, skip := particles[tok]; !skip {
			out = append(out, tok)
		}
	}
	return out
}
