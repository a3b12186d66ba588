package models

import "time"

// PersonRecord is a raw document returned by the lookup service.
type PersonRecord struct {
	Data map[string]any `json:"data"`
}

func NewPersonRecord(data map[string]any) PersonRecord {
	if data == nil {
		data = map[string]any{}
	}
	return PersonRecord{Data: data}
}

type ParentRole string

const (
	ParentRoleMother ParentRole = "mother"
	ParentRoleFather ParentRole = "father"
)

func (r ParentRole) IsValid() bool {
	return r == ParentRoleMother || r == ParentRoleFather
}

// Candidate sources.
const (
	SourceIdentifier   = "identifier"
	SourceFatherSearch = "father_search"
	SourceMotherSearch = "mother_search"
	SourceExpansion    = "relative_expansion"
	SourceReverse      = "identifier_discovery"
	SourceRecord       = "record"
)

// DiscoveryCandidate is a relative or sibling found during aggregation. It is
// resolved into a Person or discarded and never stored directly.
type DiscoveryCandidate struct {
	Identifier   string           `json:"identifier,omitempty"`
	Name         string           `json:"name"`
	RelationCode string           `json:"relation_code,omitempty"`
	Type         RelationshipType `json:"type"`
	Known        bool             `json:"known"`
	Fallback     bool             `json:"fallback,omitempty"`
	BirthDate    *time.Time       `json:"birth_date,omitempty"`
	MotherName   string           `json:"mother_name,omitempty"`
	FatherName   string           `json:"father_name,omitempty"`
	Confidence   int              `json:"confidence"`
	Source       string           `json:"source"`
	Record       *PersonRecord    `json:"-"`
}

// HasIdentifier reports whether the candidate can be looked up directly.
func (c DiscoveryCandidate) HasIdentifier() bool {
	return c.Identifier != ""
}
