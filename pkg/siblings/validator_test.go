package siblings

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func born(y int) *time.Time {
	t := time.Date(y, time.January, 10, 0, 0, 0, 0, time.UTC)
	return &t
}

func TestScore_FatherMatchAddsFifty(t *testing.T) {
	v := NewValidator()
	known := Person{Identifier: "1", Name: "JOAO"}
	parents := ParentNames{Mother: "MARIA APARECIDA", Father: "JOSE PEREIRA"}

	base := Candidate{Person: Person{Identifier: "2", Name: "PEDRO", MotherName: "ANTONIA"}, FoundByMother: true}
	withFather := base
	withFather.FatherName = "JOSÉ PEREIRA"

	r1 := v.Score(known, base, parents)
	r2 := v.Score(known, withFather, parents)

	assert.LessOrEqual(t, r1.Confidence, 50)
	assert.Equal(t, 50, r2.Confidence-r1.Confidence)
}

func TestScore_FatherBonusClampedAtHundred(t *testing.T) {
	v := NewValidator()
	known := Person{Identifier: "1", Name: "JOAO DA SILVA", BirthDate: born(1980)}
	parents := ParentNames{Mother: "MARIA DA SILVA", Father: "JOSE DA SILVA"}

	base := Candidate{
		Person:        Person{Identifier: "2", Name: "ANA DA SILVA", BirthDate: born(1983), MotherName: "MARIA DA SILVA"},
		FoundByMother: true, FoundByFather: true,
	}
	withFather := base
	withFather.FatherName = "JOSE DA SILVA"

	r1 := v.Score(known, base, parents)
	r2 := v.Score(known, withFather, parents)

	assert.Equal(t, PointsMotherMatch+PointsBothSearches+PointsAgeWithin+PointsSurname, r1.Confidence)
	assert.Equal(t, 100, r2.Confidence)
	assert.Equal(t, 20, r2.Confidence-r1.Confidence)
}

func TestScore(t *testing.T) {
	v := NewValidator()
	known := Person{Identifier: "1", Name: "JOAO DA SILVA", BirthDate: born(1980)}
	parents := ParentNames{Mother: "MARIA DA SILVA", Father: "JOSE DA SILVA"}

	tests := []struct {
		name       string
		candidate  Candidate
		confidence int
		valid      bool
	}{
		{
			name: "full match",
			candidate: Candidate{
				Person:        Person{Identifier: "2", Name: "ANA DA SILVA", BirthDate: born(1983), MotherName: "MARIA DA SILVA", FatherName: "JOSE DA SILVA"},
				FoundByMother: true, FoundByFather: true,
			},
			confidence: 100,
			valid:      true,
		},
		{
			name: "mother only with age and surname",
			candidate: Candidate{
				Person:        Person{Identifier: "3", Name: "ANA DA SILVA", BirthDate: born(1990), MotherName: "MARIA DA SILVA"},
				FoundByMother: true,
			},
			confidence: 60,
			valid:      false,
		},
		{
			name: "father only with age",
			candidate: Candidate{
				Person:        Person{Identifier: "4", Name: "CARLOS SOUZA", BirthDate: born(1985), FatherName: "JOSE DA SILVA"},
				FoundByFather: true,
			},
			confidence: 70,
			valid:      true,
		},
		{
			name: "age gap penalty",
			candidate: Candidate{
				Person:        Person{Identifier: "5", Name: "CARLOS SOUZA", BirthDate: born(1940), MotherName: "OUTRA PESSOA"},
				FoundByMother: true,
			},
			confidence: 0,
			valid:      false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := v.Score(known, tt.candidate, parents)
			assert.Equal(t, tt.confidence, res.Confidence)
			assert.Equal(t, tt.valid, res.IsValid)
			assert.Equal(t, tt.candidate.FoundByMother, res.FoundByMother)
			assert.Equal(t, tt.candidate.FoundByFather, res.FoundByFather)
		})
	}
}

func TestValidateMultiple(t *testing.T) {
	v := NewValidator()
	known := Person{Identifier: "1", Name: "JOAO DA SILVA"}
	parents := ParentNames{Mother: "MARIA DA SILVA", Father: "JOSE DA SILVA"}

	candidates := []Candidate{
		{Person: Person{Identifier: "9", Name: "X SOUZA", FatherName: "JOSE DA SILVA"}, FoundByFather: true},
		{Person: Person{Identifier: "7", Name: "Y SOUZA", FatherName: "JOSE DA SILVA", MotherName: "MARIA DA SILVA"}, FoundByFather: true, FoundByMother: true},
		{Person: Person{Identifier: "3", Name: "Z SOUZA", MotherName: "MARIA DA SILVA"}, FoundByMother: true},
		{Person: Person{Identifier: "2", Name: "W DA SILVA", FatherName: "JOSE DA SILVA", MotherName: "NOPE"}, FoundByFather: true},
		{Person: Person{Identifier: "8", Name: "V SOUZA", FatherName: "JOSE DA SILVA", MotherName: "MARIA DA SILVA"}, FoundByFather: true, FoundByMother: true},
	}

	got := v.ValidateMultiple(known, candidates, parents)
	require.Len(t, got, 2)
	assert.Equal(t, "7", got[0].Candidate.Identifier)
	assert.Equal(t, "8", got[1].Candidate.Identifier)
	for _, r := range got {
		assert.Equal(t, 100, r.Confidence)
	}
}
