package relationships

import "github.com/Ramsey-B/oak/pkg/models"

type composedKey struct {
	first, second models.RelationshipType
}

// composition derives second-degree types: if R1 is <first> of X and R2 is
// <second> of R1, then R2 is <composed> of X. Pairs that are ambiguous (a
// grandparent's child may be a parent or an uncle) are left out.
var composition = map[composedKey]models.RelationshipType{
	{models.RelationshipParent, models.RelationshipParent}:   models.RelationshipGrandparent,
	{models.RelationshipParent, models.RelationshipSibling}:  models.RelationshipUncleAunt,
	{models.RelationshipParent, models.RelationshipChild}:    models.RelationshipSibling,
	{models.RelationshipSibling, models.RelationshipChild}:   models.RelationshipNephewNiece,
	{models.RelationshipSibling, models.RelationshipParent}:  models.RelationshipParent,
	{models.RelationshipSibling, models.RelationshipSibling}: models.RelationshipSibling,
	{models.RelationshipChild, models.RelationshipChild}:     models.RelationshipGrandchild,
	{models.RelationshipSpouse, models.RelationshipChild}:    models.RelationshipChild,
	{models.RelationshipUncleAunt, models.RelationshipChild}: models.RelationshipCousin,
	{models.RelationshipChild, models.RelationshipSibling}:   models.RelationshipChild,
}

// Compose returns the type of R2 relative to X, or false when it cannot be derived.
func Compose(first, second models.RelationshipType) (models.RelationshipType, bool) {
	t, ok := composition[composedKey{first, second}]
	if !ok || t == models.RelationshipUnknown {
		return models.RelationshipUnknown, false
	}
	return t, true
}
