// Package siblings scores candidate siblings found through parent-name searches.
package siblings

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/Gobusters/ectolinq"

	"github.com/Ramsey-B/oak/pkg/dates"
	"github.com/Ramsey-B/oak/pkg/matching"
)

const (
	PointsMotherMatch  = 30
	PointsFatherMatch  = 50
	PointsBothSearches = 20
	PointsAgeWithin    = 20
	PointsAgeOutside   = -10
	PointsSurname      = 10

	DefaultThreshold = 70
)

// Person is the subset of person data the scorer needs.
type Person struct {
	Identifier string
	Name       string
	BirthDate  *time.Time
	MotherName string
	FatherName string
}

// Candidate is a possible sibling and the searches that surfaced it.
type Candidate struct {
	Person
	FoundByMother bool
	FoundByFather bool
}

// ParentNames are the subject's known parent names.
type ParentNames struct {
	Mother string
	Father string
}

type Result struct {
	Candidate     Candidate
	IsValid       bool
	Confidence    int
	Reasons       []string
	FoundByMother bool
	FoundByFather bool
}

type Validator struct {
	Threshold     int
	NameThreshold float64
}

func NewValidator() *Validator {
	return &Validator{
		Threshold:     DefaultThreshold,
		NameThreshold: matching.ParentNameThreshold,
	}
}

// Score applies the additive point model and clamps the result to [0,100].
// The father bonus is added before the clamp, so a candidate already at 80
// gains only 20 from a matching father name.
func (v *Validator) Score(known Person, candidate Candidate, parents ParentNames) Result {
	res := Result{
		Candidate:     candidate,
		FoundByMother: candidate.FoundByMother,
		FoundByFather: candidate.FoundByFather,
	}
	points := 0

	if parents.Mother != "" && candidate.MotherName != "" {
		if s := matching.Similarity(parents.Mother, candidate.MotherName); s >= v.NameThreshold {
			points += PointsMotherMatch
			res.Reasons = append(res.Reasons, fmt.Sprintf("mother name matches (%.2f)", s))
		}
	}
	if parents.Father != "" && candidate.FatherName != "" {
		if s := matching.Similarity(parents.Father, candidate.FatherName); s >= v.NameThreshold {
			points += PointsFatherMatch
			res.Reasons = append(res.Reasons, fmt.Sprintf("father name matches (%.2f)", s))
		}
	}
	if candidate.FoundByMother && candidate.FoundByFather {
		points += PointsBothSearches
		res.Reasons = append(res.Reasons, "found by both mother and father searches")
	}

	if known.BirthDate != nil && candidate.BirthDate != nil {
		check := dates.ValidateSibling(known.BirthDate, candidate.BirthDate)
		gap := math.Abs(*check.AgeDifferenceYears)
		if check.IsValid {
			points += PointsAgeWithin
			res.Reasons = append(res.Reasons, fmt.Sprintf("age gap %.1f years", gap))
		} else {
			points += PointsAgeOutside
			res.Reasons = append(res.Reasons, fmt.Sprintf("age gap %.1f years exceeds sibling bound", gap))
		}
	}

	if matching.ShareSurname(known.Name, candidate.Name) {
		points += PointsSurname
		res.Reasons = append(res.Reasons, "shares surname")
	}

	res.Confidence = max(0, min(100, points))
	res.IsValid = res.Confidence >= v.Threshold
	return res
}

// ValidateMultiple scores every candidate and returns the accepted ones by
// descending confidence, ties broken by identifier.
func (v *Validator) ValidateMultiple(known Person, candidates []Candidate, parents ParentNames) []Result {
	scored := ectolinq.Map(candidates, func(c Candidate) Result {
		return v.Score(known, c, parents)
	})
	accepted := ectolinq.Filter(scored, func(r Result) bool {
		return r.IsValid
	})

	sort.SliceStable(accepted, func(i, j int) bool {
		if accepted[i].Confidence != accepted[j].Confidence {
			return accepted[i].Confidence > accepted[j].Confidence
		}
		return accepted[i].Candidate.Identifier < accepted[j].Candidate.Identifier
	})
	return accepted
}
