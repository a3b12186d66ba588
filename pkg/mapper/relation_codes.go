package mapper

import (
	"github.com/Ramsey-B/oak/pkg/models"
	"github.com/Ramsey-B/oak/pkg/normalizers"
)

// relationCodes maps registry relation codes, normalized to upper case without
// diacritics, to the canonical type. The code names what the listed relative
// is to the record's subject.
var relationCodes = map[string]models.RelationshipType{
	"MAE":            models.RelationshipParent,
	"PAI":            models.RelationshipParent,
	"GENITOR":        models.RelationshipParent,
	"GENITORA":       models.RelationshipParent,
	"MADRASTA":       models.RelationshipParent,
	"PADRASTO":       models.RelationshipParent,
	"FILHO":          models.RelationshipChild,
	"FILHA":          models.RelationshipChild,
	"FILHO(A)":       models.RelationshipChild,
	"ENTEADO":        models.RelationshipChild,
	"ENTEADA":        models.RelationshipChild,
	"IRMAO":          models.RelationshipSibling,
	"IRMA":           models.RelationshipSibling,
	"IRMAO(A)":       models.RelationshipSibling,
	"MEIO IRMAO":     models.RelationshipSibling,
	"MEIA IRMA":      models.RelationshipSibling,
	"AVO":            models.RelationshipGrandparent,
	"AVO(A)":         models.RelationshipGrandparent,
	"NETO":           models.RelationshipGrandchild,
	"NETA":           models.RelationshipGrandchild,
	"NETO(A)":        models.RelationshipGrandchild,
	"TIO":            models.RelationshipUncleAunt,
	"TIA":            models.RelationshipUncleAunt,
	"TIO(A)":         models.RelationshipUncleAunt,
	"SOBRINHO":       models.RelationshipNephewNiece,
	"SOBRINHA":       models.RelationshipNephewNiece,
	"SOBRINHO(A)":    models.RelationshipNephewNiece,
	"PRIMO":          models.RelationshipCousin,
	"PRIMA":          models.RelationshipCousin,
	"PRIMO(A)":       models.RelationshipCousin,
	"CONJUGE":        models.RelationshipSpouse,
	"ESPOSA":         models.RelationshipSpouse,
	"ESPOSO":         models.RelationshipSpouse,
	"MARIDO":         models.RelationshipSpouse,
	"COMPANHEIRO":    models.RelationshipSpouse,
	"COMPANHEIRA":    models.RelationshipSpouse,
	"COMPANHEIRO(A)": models.RelationshipSpouse,
}

// NormalizeCode puts a relation code into the form used as table key.
func NormalizeCode(code string) string {
	return normalizers.ApplyChain(code, "strip_accents", "uppercase", "collapse_whitespace")
}

// ToRelationType maps a raw relation code to its canonical type. Codes missing
// from the table return RelationshipUnknown and known=false.
func ToRelationType(code string) (models.RelationshipType, bool) {
	t, ok := relationCodes[NormalizeCode(code)]
	if !ok {
		return models.RelationshipUnknown, false
	}
	return t, true
}
