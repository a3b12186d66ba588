package models

import (
	"strings"
	"time"
)

// PersonFields are the canonical attributes extracted from a source record.
type PersonFields struct {
	Identifier string     `json:"identifier,omitempty" db:"identifier"`
	FullName   string     `json:"full_name" db:"full_name"`
	BirthDate  *time.Time `json:"birth_date,omitempty" db:"birth_date"`
	DeathDate  *time.Time `json:"death_date,omitempty" db:"death_date"`
	Gender     Gender     `json:"gender,omitempty" db:"gender"`
	MotherName string     `json:"mother_name,omitempty" db:"mother_name"`
	FatherName string     `json:"father_name,omitempty" db:"father_name"`
}

// Person is a durable identity within one family tree.
type Person struct {
	ID           string `json:"id" db:"id"`
	FamilyTreeID string `json:"family_tree_id" db:"family_tree_id"`
	PersonFields
	// Stub is set for persons created from a name only because upstream data was unavailable.
	Stub      bool      `json:"stub" db:"stub"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

type Gender string

const (
	GenderUnknown Gender = ""
	GenderMale    Gender = "M"
	GenderFemale  Gender = "F"
)

// ParseGender accepts the single-letter and spelled-out forms used by the registry.
func ParseGender(s string) Gender {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "M", "MASCULINO", "MALE", "HOMEM":
		return GenderMale
	case "F", "FEMININO", "FEMALE", "MULHER":
		return GenderFemale
	default:
		return GenderUnknown
	}
}

// DetailFields are contact, document and financial attributes of a person.
type DetailFields struct {
	Emails           []string `json:"emails,omitempty"`
	Phones           []string `json:"phones,omitempty"`
	Address          string   `json:"address,omitempty"`
	City             string   `json:"city,omitempty"`
	State            string   `json:"state,omitempty"`
	PostalCode       string   `json:"postal_code,omitempty"`
	RG               string   `json:"rg,omitempty"`
	VoterID          string   `json:"voter_id,omitempty"`
	Occupation       string   `json:"occupation,omitempty"`
	Income           *float64 `json:"income,omitempty"`
	MotherIdentifier string   `json:"mother_identifier,omitempty"`
}

// IsEmpty reports whether no attribute is populated.
func (d DetailFields) IsEmpty() bool {
	return len(d.Emails) == 0 && len(d.Phones) == 0 && d.Address == "" && d.City == "" &&
		d.State == "" && d.PostalCode == "" && d.RG == "" && d.VoterID == "" &&
		d.Occupation == "" && d.Income == nil && d.MotherIdentifier == ""
}

// PersonDetail is the 0..1 detail row attached to a Person.
type PersonDetail struct {
	PersonID  string       `json:"person_id" db:"person_id"`
	Fields    DetailFields `json:"fields"`
	UpdatedAt time.Time    `json:"updated_at" db:"updated_at"`
}

// SameDay reports whether two optional dates fall on the same calendar day.
func SameDay(a, b *time.Time) bool {
	if a == nil || b == nil {
		return false
	}
	ay, am, ad := a.UTC().Date()
	by, bm, bd := b.UTC().Date()
	return ay == by && am == bm && ad == bd
}
