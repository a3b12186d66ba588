// Package relationships resolves relation codes into canonical edge types and
// checks whether a new edge can coexist with the edges already between two persons.
package relationships

import (
	"math"
	"strings"

	"github.com/Ramsey-B/oak/pkg/dates"
	"github.com/Ramsey-B/oak/pkg/mapper"
	"github.com/Ramsey-B/oak/pkg/models"
)

// Context carries what is known about the tree position of the two persons.
// LevelDifference is the related person's generation minus the subject's, when known.
type Context struct {
	LevelDifference *int
}

type Inference struct {
	Forward  models.RelationshipType
	Inverse  models.RelationshipType
	Known    bool
	Fallback bool
}

type Options struct {
	// LegacyCousinFallback resolves unknown codes to cousin instead of reporting them unknown.
	LegacyCousinFallback bool
}

type Inferrer struct {
	opts Options
}

func NewInferrer(opts Options) *Inferrer {
	return &Inferrer{opts: opts}
}

func contains(roots ...string) func(string) bool {
	return func(code string) bool {
		for _, r := range roots {
			if strings.Contains(code, r) {
				return true
			}
		}
		return false
	}
}

func fixed(t models.RelationshipType, roots ...string) func(string, Context) (models.RelationshipType, bool) {
	has := contains(roots...)
	return func(code string, _ Context) (models.RelationshipType, bool) {
		return t, has(code)
	}
}

// patterns are tried in order. Descendant roots come before the bare "AV"
// root so that codes such as "BISNETO" resolve downward.
var patterns = []func(string, Context) (models.RelationshipType, bool){
	fixed(models.RelationshipGrandchild, "BISNET", "TATARANET", "NET"),
	fixed(models.RelationshipNephewNiece, "SOBRINH"),
	fixed(models.RelationshipCousin, "PRIM"),
	fixed(models.RelationshipUncleAunt, "TIO", "TIA"),
	grandparentPattern,
	fixed(models.RelationshipSibling, "IRM"),
	fixed(models.RelationshipChild, "FILH", "ENTEAD"),
	fixed(models.RelationshipParent, "GENITOR", "PADRAST", "MADRAST", "PAI", "MAE"),
	fixed(models.RelationshipSpouse, "CONJUG", "ESPOS", "MARID", "COMPANHEIR", "CONVIVENTE"),
}

// grandparentPattern resolves "AV" roots. Prefixed forms (BISAVO, TATARAVO)
// always mean an ancestor. The bare root also needs a level difference above one.
func grandparentPattern(code string, ctx Context) (models.RelationshipType, bool) {
	if strings.Contains(code, "BISAV") || strings.Contains(code, "TATARAV") {
		return models.RelationshipGrandparent, true
	}
	if strings.Contains(code, "AV") && ctx.LevelDifference != nil && abs(*ctx.LevelDifference) > 1 {
		return models.RelationshipGrandparent, true
	}
	return models.RelationshipUnknown, false
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}

// Infer maps a raw relation code to a forward and inverse type pair. The
// forward type describes the related person relative to the subject.
func (i *Inferrer) Infer(rawCode string, ctx Context) Inference {
	if t, ok := mapper.ToRelationType(rawCode); ok {
		return Inference{Forward: t, Inverse: t.Inverse(), Known: true}
	}

	code := mapper.NormalizeCode(rawCode)
	if code != "" {
		for _, p := range patterns {
			if t, ok := p(code, ctx); ok {
				return Inference{Forward: t, Inverse: t.Inverse(), Known: true}
			}
		}
	}

	if i.opts.LegacyCousinFallback {
		return Inference{
			Forward:  models.RelationshipCousin,
			Inverse:  models.RelationshipCousin,
			Known:    true,
			Fallback: true,
		}
	}
	return Inference{Forward: models.RelationshipUnknown, Inverse: models.RelationshipUnknown}
}

// Inverse returns the inverse canonical type.
func Inverse(t models.RelationshipType) models.RelationshipType {
	return t.Inverse()
}

// ValidateCompatibility reports whether newType can be added between two
// persons that already share existing. ageGap is how many years older the
// related person is; levelGap is the related person's generation minus the subject's.
func ValidateCompatibility(existing []models.RelationshipType, newType models.RelationshipType, ageGap *float64, levelGap *int) bool {
	if !newType.IsValid() {
		return false
	}

	for _, e := range existing {
		if e == newType {
			continue
		}
		if e == models.RelationshipSpouse || newType == models.RelationshipSpouse {
			return false
		}
		if conflicting(e, newType) {
			return false
		}
	}

	if levelGap != nil && !validLevelGap(newType, *levelGap) {
		return false
	}

	if ageGap != nil {
		if !validAgeGap(newType, *ageGap) {
			return false
		}
	}

	return true
}

func conflicting(a, b models.RelationshipType) bool {
	pair := func(x, y models.RelationshipType) bool {
		return (a == x && b == y) || (a == y && b == x)
	}
	return pair(models.RelationshipParent, models.RelationshipChild) ||
		pair(models.RelationshipGrandparent, models.RelationshipGrandchild)
}

// validLevelGap requires same-generation types at gap 0, first-degree
// vertical types at exactly one generation and grandparent types at two or more.
func validLevelGap(t models.RelationshipType, gap int) bool {
	off := t.GenerationOffset()
	if off == 0 {
		return gap == 0
	}
	if sign(off) != sign(gap) {
		return false
	}
	if abs(off) == 1 {
		return abs(gap) == 1
	}
	return abs(gap) >= 2
}

func sign(n int) int {
	switch {
	case n > 0:
		return 1
	case n < 0:
		return -1
	default:
		return 0
	}
}

// validAgeGap applies the date rules to a precomputed gap. Types without a
// rule accept any gap.
func validAgeGap(t models.RelationshipType, gap float64) bool {
	switch t {
	case models.RelationshipParent:
		return gap >= dates.MinParentGap && gap <= dates.MaxParentGap
	case models.RelationshipChild:
		return -gap >= dates.MinParentGap && -gap <= dates.MaxParentGap
	case models.RelationshipGrandparent:
		return gap >= dates.MinGrandparentGap && gap <= dates.MaxGrandparentGap
	case models.RelationshipGrandchild:
		return -gap >= dates.MinGrandparentGap && -gap <= dates.MaxGrandparentGap
	case models.RelationshipSibling:
		return math.Abs(gap) <= dates.MaxSiblingGap
	case models.RelationshipSpouse:
		return math.Abs(gap) <= dates.MaxSpouseGap
	default:
		return true
	}
}
