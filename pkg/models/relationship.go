package models

import "time"

type RelationshipStatus string

const (
	RelationshipStatusActive        RelationshipStatus = "active"
	RelationshipStatusPendingReview RelationshipStatus = "pending_review"
)

// RelationshipEdge is one direction of a relationship. Edges are always
// written in inverse pairs.
type RelationshipEdge struct {
	ID              string             `json:"id" db:"id"`
	PersonID        string             `json:"person_id" db:"person_id"`
	RelatedPersonID string             `json:"related_person_id" db:"related_person_id"`
	Type            RelationshipType   `json:"type" db:"type"`
	FamilyTreeID    string             `json:"family_tree_id" db:"family_tree_id"`
	Status          RelationshipStatus `json:"status" db:"status"`
	Confidence      int                `json:"confidence" db:"confidence"`
	CreatedAt       time.Time          `json:"created_at" db:"created_at"`
}

// Inverse returns the mirrored edge without an id.
func (e RelationshipEdge) Inverse() RelationshipEdge {
	return RelationshipEdge{
		PersonID:        e.RelatedPersonID,
		RelatedPersonID: e.PersonID,
		Type:            e.Type.Inverse(),
		FamilyTreeID:    e.FamilyTreeID,
		Status:          e.Status,
		Confidence:      e.Confidence,
	}
}

// EdgeKey identifies an edge for in-run deduplication.
type EdgeKey struct {
	PersonID        string
	RelatedPersonID string
	Type            RelationshipType
}

func (e RelationshipEdge) Key() EdgeKey {
	return EdgeKey{PersonID: e.PersonID, RelatedPersonID: e.RelatedPersonID, Type: e.Type}
}
