// Package merging reconciles person attributes gathered from several sources.
// A populated field is never replaced by an empty one.
package merging

import (
	"time"

	"github.com/Ramsey-B/oak/pkg/models"
	"github.com/Ramsey-B/oak/pkg/normalizers"
)

// PreferNonEmpty returns incoming unless it is the zero value.
func PreferNonEmpty[T comparable](current, incoming T) T {
	var zero T
	if incoming == zero {
		return current
	}
	return incoming
}

// FillEmpty returns current unless it is the zero value.
func FillEmpty[T comparable](current, incoming T) T {
	return PreferNonEmpty(incoming, current)
}

func preferString(current, incoming string) string {
	if normalizers.Trim(incoming) == "" {
		return current
	}
	return incoming
}

func preferTime(current, incoming *time.Time) *time.Time {
	if incoming == nil || incoming.IsZero() {
		return current
	}
	return incoming
}

func preferFloat(current, incoming *float64) *float64 {
	if incoming == nil {
		return current
	}
	return incoming
}

// Person overlays the populated fields of incoming onto current.
func Person(current, incoming models.PersonFields) models.PersonFields {
	return models.PersonFields{
		Identifier: preferString(current.Identifier, incoming.Identifier),
		FullName:   preferString(current.FullName, incoming.FullName),
		BirthDate:  preferTime(current.BirthDate, incoming.BirthDate),
		DeathDate:  preferTime(current.DeathDate, incoming.DeathDate),
		Gender:     PreferNonEmpty(current.Gender, incoming.Gender),
		MotherName: preferString(current.MotherName, incoming.MotherName),
		FatherName: preferString(current.FatherName, incoming.FatherName),
	}
}

// Detail overlays the populated fields of incoming onto current. Email and
// phone lists are unioned.
func Detail(current, incoming models.DetailFields) models.DetailFields {
	return models.DetailFields{
		Emails:           union(current.Emails, incoming.Emails),
		Phones:           union(current.Phones, incoming.Phones),
		Address:          preferString(current.Address, incoming.Address),
		City:             preferString(current.City, incoming.City),
		State:            preferString(current.State, incoming.State),
		PostalCode:       preferString(current.PostalCode, incoming.PostalCode),
		RG:               preferString(current.RG, incoming.RG),
		VoterID:          preferString(current.VoterID, incoming.VoterID),
		Occupation:       preferString(current.Occupation, incoming.Occupation),
		Income:           preferFloat(current.Income, incoming.Income),
		MotherIdentifier: preferString(current.MotherIdentifier, incoming.MotherIdentifier),
	}
}

// Supplement fills only the empty fields of primary from secondary.
func Supplement(primary, secondary models.PersonFields) models.PersonFields {
	return Person(secondary, primary)
}

func union(a, b []string) []string {
	if len(a) == 0 && len(b) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(a)+len(b))
	out := make([]string, 0, len(a)+len(b))
	for _, list := range [][]string{a, b} {
		for _, v := range list {
			if v == "" {
				continue
			}
			if _, ok := seen[v]; ok {
				continue
			}
			seen[v] = struct{}{}
			out = append(out, v)
		}
	}
	return out
}
