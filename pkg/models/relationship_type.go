package models

// RelationshipType is the canonical, closed set of edge types. An edge of type
// T from person to related means "related is the T of person".
type RelationshipType string

const (
	RelationshipParent      RelationshipType = "parent"
	RelationshipChild       RelationshipType = "child"
	RelationshipSpouse      RelationshipType = "spouse"
	RelationshipSibling     RelationshipType = "sibling"
	RelationshipGrandparent RelationshipType = "grandparent"
	RelationshipGrandchild  RelationshipType = "grandchild"
	RelationshipUncleAunt   RelationshipType = "uncle_aunt"
	RelationshipNephewNiece RelationshipType = "nephew_niece"
	RelationshipCousin      RelationshipType = "cousin"

	// RelationshipUnknown marks a relation code that could not be resolved. It is never persisted.
	RelationshipUnknown RelationshipType = "unknown"
)

var inverses = map[RelationshipType]RelationshipType{
	RelationshipParent:      RelationshipChild,
	RelationshipChild:       RelationshipParent,
	RelationshipSpouse:      RelationshipSpouse,
	RelationshipSibling:     RelationshipSibling,
	RelationshipGrandparent: RelationshipGrandchild,
	RelationshipGrandchild:  RelationshipGrandparent,
	RelationshipUncleAunt:   RelationshipNephewNiece,
	RelationshipNephewNiece: RelationshipUncleAunt,
	RelationshipCousin:      RelationshipCousin,
}

// RelationshipTypes lists the nine persistable types.
func RelationshipTypes() []RelationshipType {
	return []RelationshipType{
		RelationshipParent,
		RelationshipChild,
		RelationshipSpouse,
		RelationshipSibling,
		RelationshipGrandparent,
		RelationshipGrandchild,
		RelationshipUncleAunt,
		RelationshipNephewNiece,
		RelationshipCousin,
	}
}

func (t RelationshipType) IsValid() bool {
	_, ok := inverses[t]
	return ok
}

// Inverse returns the type of the reverse edge. Unknown stays unknown.
func (t RelationshipType) Inverse() RelationshipType {
	if inv, ok := inverses[t]; ok {
		return inv
	}
	return RelationshipUnknown
}

// GenerationOffset is the generation of the related person relative to the
// person: +1 for a parent, -1 for a child, 0 for same generation.
func (t RelationshipType) GenerationOffset() int {
	switch t {
	case RelationshipParent, RelationshipUncleAunt:
		return 1
	case RelationshipGrandparent:
		return 2
	case RelationshipChild, RelationshipNephewNiece:
		return -1
	case RelationshipGrandchild:
		return -2
	default:
		return 0
	}
}

func (t RelationshipType) String() string {
	return string(t)
}
