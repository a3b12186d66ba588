// Package dates checks the plausibility of age gaps between related persons.
package dates

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/Ramsey-B/oak/pkg/models"
)

// Layouts accepted by Parse, in order.
var Layouts = []string{
	"02/01/2006",
	"2006-01-02",
	time.RFC3339,
	"2006-01-02T15:04:05",
}

const (
	MinParentGap      = 15.0
	MaxParentGap      = 60.0
	MaxSiblingGap     = 25.0
	MinGrandparentGap = 35.0
	MaxGrandparentGap = 90.0
	MaxSpouseGap      = 30.0
)

// Result is the outcome of one plausibility check. AgeDifferenceYears is
// signed: positive when the first person is older.
type Result struct {
	IsValid            bool
	AgeDifferenceYears *float64
	Reason             string
}

// Parse reads a date in any of the accepted layouts.
func Parse(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range Layouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized date %q", s)
}

// ParsePtr returns nil for empty or unparseable input.
func ParsePtr(s string) *time.Time {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	t, err := Parse(s)
	if err != nil {
		return nil
	}
	return &t
}

// AgeDifferenceYears returns how many years older a is than b.
func AgeDifferenceYears(a, b time.Time) float64 {
	return b.Sub(a).Hours() / 24 / 365.25
}

func gap(older, younger *time.Time) (float64, bool) {
	if older == nil || younger == nil || older.IsZero() || younger.IsZero() {
		return 0, false
	}
	return AgeDifferenceYears(*older, *younger), true
}

func missing() Result {
	return Result{IsValid: true, Reason: "birth date missing; age gap not checked"}
}

// ValidateParentChild requires the parent to be 15 to 60 years older than the child.
func ValidateParentChild(parent, child *time.Time) Result {
	diff, ok := gap(parent, child)
	if !ok {
		return missing()
	}
	res := Result{AgeDifferenceYears: &diff}
	switch {
	case diff <= 0:
		res.Reason = "parent is not older than child"
	case diff < MinParentGap:
		res.Reason = fmt.Sprintf("parent only %.1f years older than child", diff)
	case diff > MaxParentGap:
		res.Reason = fmt.Sprintf("parent %.1f years older than child", diff)
	default:
		res.IsValid = true
	}
	return res
}

// ValidateSibling requires siblings to be born within 25 years of each other.
func ValidateSibling(a, b *time.Time) Result {
	diff, ok := gap(a, b)
	if !ok {
		return missing()
	}
	res := Result{AgeDifferenceYears: &diff}
	if math.Abs(diff) > MaxSiblingGap {
		res.Reason = fmt.Sprintf("siblings %.1f years apart", math.Abs(diff))
		return res
	}
	res.IsValid = true
	return res
}

// ValidateGrandparent requires the grandparent to be 35 to 90 years older.
func ValidateGrandparent(grandparent, grandchild *time.Time) Result {
	diff, ok := gap(grandparent, grandchild)
	if !ok {
		return missing()
	}
	res := Result{AgeDifferenceYears: &diff}
	switch {
	case diff <= 0:
		res.Reason = "grandparent is not older than grandchild"
	case diff < MinGrandparentGap:
		res.Reason = fmt.Sprintf("grandparent only %.1f years older than grandchild", diff)
	case diff > MaxGrandparentGap:
		res.Reason = fmt.Sprintf("grandparent %.1f years older than grandchild", diff)
	default:
		res.IsValid = true
	}
	return res
}

// ValidateSpouse requires spouses to be born within 30 years of each other.
func ValidateSpouse(a, b *time.Time) Result {
	diff, ok := gap(a, b)
	if !ok {
		return missing()
	}
	res := Result{AgeDifferenceYears: &diff}
	if math.Abs(diff) > MaxSpouseGap {
		res.Reason = fmt.Sprintf("spouses %.1f years apart", math.Abs(diff))
		return res
	}
	res.IsValid = true
	return res
}

// ValidateForType checks the birth date of related against person for an edge
// "related is <t> of person". Types without an age rule always pass.
func ValidateForType(t models.RelationshipType, person, related *time.Time) Result {
	switch t {
	case models.RelationshipParent:
		return ValidateParentChild(related, person)
	case models.RelationshipChild:
		return ValidateParentChild(person, related)
	case models.RelationshipGrandparent:
		return ValidateGrandparent(related, person)
	case models.RelationshipGrandchild:
		return ValidateGrandparent(person, related)
	case models.RelationshipSibling:
		return ValidateSibling(person, related)
	case models.RelationshipSpouse:
		return ValidateSpouse(person, related)
	default:
		return Result{IsValid: true, Reason: fmt.Sprintf("no age rule for %s", t)}
	}
}
