package relationships

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/Ramsey-B/oak/pkg/models"
)

func intPtr(n int) *int { return &n }

func floatPtr(f float64) *float64 { return &f }

func TestInfer(t *testing.T) {
	inf := NewInferrer(Options{})

	tests := []struct {
		name    string
		code    string
		ctx     Context
		forward models.RelationshipType
		known   bool
	}{
		{name: "table mother", code: "MÃE", forward: models.RelationshipParent, known: true},
		{name: "table spouse", code: "esposa", forward: models.RelationshipSpouse, known: true},
		{name: "great grandchild", code: "BISNETO", forward: models.RelationshipGrandchild, known: true},
		{name: "great grandparent", code: "BISAVÓ", forward: models.RelationshipGrandparent, known: true},
		{name: "av root with level gap", code: "AVOS", ctx: Context{LevelDifference: intPtr(2)}, forward: models.RelationshipGrandparent, known: true},
		{name: "av root without level gap", code: "AVOS", ctx: Context{LevelDifference: intPtr(1)}, forward: models.RelationshipUnknown, known: false},
		{name: "av root unknown level", code: "AVOS", forward: models.RelationshipUnknown, known: false},
		{name: "half sibling pattern", code: "IRMÃO UNILATERAL", forward: models.RelationshipSibling, known: true},
		{name: "second cousin", code: "PRIMO SEGUNDO", forward: models.RelationshipCousin, known: true},
		{name: "partner", code: "CONVIVENTE", forward: models.RelationshipSpouse, known: true},
		{name: "unknown", code: "CUNHADO", forward: models.RelationshipUnknown, known: false},
		{name: "empty", code: "", forward: models.RelationshipUnknown, known: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := inf.Infer(tt.code, tt.ctx)
			assert.Equal(t, tt.forward, got.Forward)
			assert.Equal(t, tt.known, got.Known)
			assert.False(t, got.Fallback)
			if tt.known {
				assert.Equal(t, tt.forward.Inverse(), got.Inverse)
			}
		})
	}
}

func TestInfer_LegacyCousinFallback(t *testing.T) {
	inf := NewInferrer(Options{LegacyCousinFallback: true})

	got := inf.Infer("CUNHADO", Context{})
	assert.Equal(t, models.RelationshipCousin, got.Forward)
	assert.Equal(t, models.RelationshipCousin, got.Inverse)
	assert.True(t, got.Known)
	assert.True(t, got.Fallback)

	got = inf.Infer("PAI", Context{})
	assert.False(t, got.Fallback)
	assert.Equal(t, models.RelationshipParent, got.Forward)
}

func TestInverse_Involutive(t *testing.T) {
	for _, typ := range models.RelationshipTypes() {
		assert.Equal(t, typ, Inverse(Inverse(typ)), typ)
	}
	assert.Len(t, models.RelationshipTypes(), 9)
}

func TestValidateCompatibility(t *testing.T) {
	tests := []struct {
		name     string
		existing []models.RelationshipType
		newType  models.RelationshipType
		ageGap   *float64
		levelGap *int
		want     bool
	}{
		{name: "no existing", newType: models.RelationshipParent, want: true},
		{name: "same type again", existing: []models.RelationshipType{models.RelationshipSibling}, newType: models.RelationshipSibling, want: true},
		{name: "parent and child", existing: []models.RelationshipType{models.RelationshipParent}, newType: models.RelationshipChild, want: false},
		{name: "grandparent and grandchild", existing: []models.RelationshipType{models.RelationshipGrandchild}, newType: models.RelationshipGrandparent, want: false},
		{name: "spouse and sibling", existing: []models.RelationshipType{models.RelationshipSpouse}, newType: models.RelationshipSibling, want: false},
		{name: "sibling then spouse", existing: []models.RelationshipType{models.RelationshipSibling}, newType: models.RelationshipSpouse, want: false},
		{name: "sibling and cousin", existing: []models.RelationshipType{models.RelationshipSibling}, newType: models.RelationshipCousin, want: true},
		{name: "parent one level up", newType: models.RelationshipParent, levelGap: intPtr(1), want: true},
		{name: "parent one level down", newType: models.RelationshipParent, levelGap: intPtr(-1), want: false},
		{name: "sibling across levels", newType: models.RelationshipSibling, levelGap: intPtr(1), want: false},
		{name: "grandparent three levels up", newType: models.RelationshipGrandparent, levelGap: intPtr(3), want: true},
		{name: "grandparent one level up", newType: models.RelationshipGrandparent, levelGap: intPtr(1), want: false},
		{name: "parent plausible age", newType: models.RelationshipParent, ageGap: floatPtr(28), want: true},
		{name: "parent implausible age", newType: models.RelationshipParent, ageGap: floatPtr(5), want: false},
		{name: "child age gap", newType: models.RelationshipChild, ageGap: floatPtr(-30), want: true},
		{name: "sibling age gap", newType: models.RelationshipSibling, ageGap: floatPtr(-26.5), want: false},
		{name: "unknown type", newType: models.RelationshipUnknown, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ValidateCompatibility(tt.existing, tt.newType, tt.ageGap, tt.levelGap))
		})
	}
}

func TestCompose(t *testing.T) {
	tests := []struct {
		first, second models.RelationshipType
		want          models.RelationshipType
		ok            bool
	}{
		{models.RelationshipParent, models.RelationshipParent, models.RelationshipGrandparent, true},
		{models.RelationshipParent, models.RelationshipSibling, models.RelationshipUncleAunt, true},
		{models.RelationshipSibling, models.RelationshipChild, models.RelationshipNephewNiece, true},
		{models.RelationshipUncleAunt, models.RelationshipChild, models.RelationshipCousin, true},
		{models.RelationshipGrandparent, models.RelationshipChild, models.RelationshipUnknown, false},
		{models.RelationshipCousin, models.RelationshipCousin, models.RelationshipUnknown, false},
	}
	for _, tt := range tests {
		t.Run(string(tt.first)+"_"+string(tt.second), func(t *testing.T) {
			got, ok := Compose(tt.first, tt.second)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.ok, ok)
		})
	}
}
