// Package identifier validates and formats the 11-digit national identifier (CPF).
package identifier

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/Ramsey-B/oak/pkg/errors"
)

const Length = 11

// Normalize strips every non-digit character.
func Normalize(s string) string {
	var b strings.Builder
	for _, r := range s {
		if unicode.IsDigit(r) && r < unicode.MaxASCII {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// IsValid reports whether s, after normalization, is a checksum-valid identifier.
func IsValid(s string) bool {
	return validDigits(Normalize(s))
}

// Validate normalizes s and returns it, or an InvalidInputError.
func Validate(s string) (string, error) {
	n := Normalize(s)
	if len(n) != Length {
		return "", errors.NewInvalidInput("identifier", s, "identifier must have %d digits", Length)
	}
	if !validDigits(n) {
		return "", errors.NewInvalidInput("identifier", s, "identifier check digits are invalid")
	}
	return n, nil
}

// Format renders a normalized identifier as 000.000.000-00. Invalid input is returned unchanged.
func Format(s string) string {
	n := Normalize(s)
	if len(n) != Length {
		return s
	}
	return fmt.Sprintf("%s.%s.%s-%s", n[0:3], n[3:6], n[6:9], n[9:11])
}

// CheckDigit computes the mod-11 check digit over the given digits.
func CheckDigit(digits string) int {
	sum := 0
	weight := len(digits) + 1
	for _, r := range digits {
		sum += int(r-'0') * weight
		weight--
	}
	d := (sum * 10) % 11
	if d == 10 {
		return 0
	}
	return d
}

func validDigits(n string) bool {
	if len(n) != Length {
		return false
	}
	if strings.Count(n, n[:1]) == Length {
		return false
	}
	first := CheckDigit(n[:9])
	if first != int(n[9]-'0') {
		return false
	}
	return CheckDigit(n[:10]) == int(n[10]-'0')
}
