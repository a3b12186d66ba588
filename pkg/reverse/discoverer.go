// Package reverse recovers the identifier of a person known only by name,
// using searches on the person's spouse and children.
package reverse

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/Gobusters/ectolinq"
	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/oak/pkg/lookup"
	"github.com/Ramsey-B/oak/pkg/mapper"
	"github.com/Ramsey-B/oak/pkg/matching"
	"github.com/Ramsey-B/oak/pkg/models"
	"github.com/Ramsey-B/oak/pkg/normalizers"
	"github.com/Ramsey-B/oak/pkg/tracing"
)

type Method string

const (
	MethodSpouseSearch     Method = "spouse_search"
	MethodGrandchildSearch Method = "grandchild_search"
	MethodNameVariant      Method = "name_variant_search"
)

const (
	spouseBase       = 70
	spouseCap        = 90
	grandchildBase   = 60
	grandchildCap    = 80
	variantBase      = 50
	variantCap       = 60
	bonusKnownChild  = 10
	bonusExactName   = 10
	bonusAgreement   = 10
	agreementMinimum = 2
)

// Child is a known child of the target person.
type Child struct {
	Identifier string
	Name       string
}

type Input struct {
	PersonName    string
	SpouseName    string
	BirthDate     *time.Time
	KnownChildren []Child
}

// Match is an identifier recovered for the target person.
type Match struct {
	Identifier string
	Name       string
	Confidence int
	Method     Method
	Evidence   []string
}

// Discoverer runs the discovery strategies. It memoizes results by input and
// is meant to live for one run.
type Discoverer struct {
	lookup    lookup.Lookup
	mapper    *mapper.Mapper
	threshold float64
	logger    ectologger.Logger

	mu    sync.Mutex
	cache map[string][]Match
}

func NewDiscoverer(l lookup.Lookup, m *mapper.Mapper, logger ectologger.Logger) *Discoverer {
	return &Discoverer{
		lookup:    l,
		mapper:    m,
		threshold: matching.ParentNameThreshold,
		logger:    logger,
		cache:     make(map[string][]Match),
	}
}

func cacheKey(in Input) string {
	birth := ""
	if in.BirthDate != nil {
		birth = in.BirthDate.Format("2006-01-02")
	}
	return fmt.Sprintf("%s|%s|%s", normalizers.NormalizeName(in.PersonName), normalizers.NormalizeName(in.SpouseName), birth)
}

// Discover tries the spouse, grandchild and name-variant strategies in order
// and returns matches ranked by confidence.
func (d *Discoverer) Discover(ctx context.Context, in Input) ([]Match, error) {
	ctx, span := tracing.StartSpan(ctx, "reverse.Discoverer.Discover")
	defer span.End()

	if normalizers.NormalizeName(in.PersonName) == "" {
		return nil, nil
	}

	key := cacheKey(in)
	d.mu.Lock()
	if cached, ok := d.cache[key]; ok {
		d.mu.Unlock()
		return cached, nil
	}
	d.mu.Unlock()

	s := &search{Discoverer: d, in: in, matches: map[string]*Match{}}
	if in.SpouseName != "" {
		s.spouseStrategy(ctx)
	}
	if len(s.matches) == 0 && len(in.KnownChildren) > 0 {
		s.grandchildStrategy(ctx)
	}
	if len(s.matches) == 0 && len(s.variants) > 0 {
		s.variantStrategy(ctx)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	results := s.ranked()
	d.logger.WithContext(ctx).WithFields(map[string]any{
		"person":  in.PersonName,
		"matches": len(results),
	}).Debug("Identifier discovery finished")

	d.mu.Lock()
	d.cache[key] = results
	d.mu.Unlock()
	return results, nil
}

// search holds the state of one Discover call.
type search struct {
	*Discoverer
	in       Input
	matches  map[string]*Match
	variants []string
}

func (s *search) find(ctx context.Context, role models.ParentRole, name string) []models.PersonRecord {
	records, err := s.lookup.LookupByParentName(ctx, role, name)
	if err != nil {
		s.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"role": role,
			"name": name,
		}).Debug("Discovery search failed")
		return nil
	}
	return records
}

// knownChildAmong reports whether any record is one of the target's known children.
func (s *search) knownChildAmong(records []models.PersonRecord) bool {
	for _, rec := range records {
		person := s.mapper.ToPerson(rec)
		for _, child := range s.in.KnownChildren {
			if child.Identifier != "" && child.Identifier == person.Identifier {
				return true
			}
			if child.Name != "" && matching.Equal(child.Name, person.FullName) {
				return true
			}
		}
	}
	return false
}

// targetRef finds the target among a record's relatives, optionally requiring
// the given relationship type.
func (s *search) targetRef(rec models.PersonRecord, name string, types ...models.RelationshipType) (mapper.RelativeRef, bool) {
	for _, ref := range s.mapper.ToRelatives(rec) {
		if len(types) > 0 && !ectolinq.Contains(types, ref.Type) {
			continue
		}
		if !matching.AreSimilar(ref.Name, name, s.threshold) {
			continue
		}
		if s.in.BirthDate != nil && ref.BirthDate != nil && !models.SameDay(s.in.BirthDate, ref.BirthDate) {
			continue
		}
		return ref, true
	}
	return mapper.RelativeRef{}, false
}

func (s *search) add(ref mapper.RelativeRef, method Method, confidence int, evidence string) {
	if existing, ok := s.matches[ref.Identifier]; ok {
		existing.Evidence = append(existing.Evidence, evidence)
		if confidence > existing.Confidence {
			existing.Confidence = confidence
		}
		return
	}
	s.matches[ref.Identifier] = &Match{
		Identifier: ref.Identifier,
		Name:       ref.Name,
		Confidence: confidence,
		Method:     method,
		Evidence:   []string{evidence},
	}
}

func (s *search) noteVariant(name string) {
	if name == "" || matching.Equal(name, s.in.PersonName) {
		return
	}
	for _, v := range s.variants {
		if matching.Equal(v, name) {
			return
		}
	}
	s.variants = append(s.variants, name)
}

// spouseStrategy searches the spouse as each parent role. The results are the
// couple's children, whose other parent should be the target.
func (s *search) spouseStrategy(ctx context.Context) {
	for _, role := range []models.ParentRole{models.ParentRoleFather, models.ParentRoleMother} {
		records := s.find(ctx, role, s.in.SpouseName)
		if len(records) == 0 {
			continue
		}
		childBonus := 0
		if s.knownChildAmong(records) {
			childBonus = bonusKnownChild
		}

		for _, rec := range records {
			person := s.mapper.ToPerson(rec)
			otherParent := person.MotherName
			if role == models.ParentRoleMother {
				otherParent = person.FatherName
			}
			if !matching.AreSimilar(otherParent, s.in.PersonName, s.threshold) {
				continue
			}

			ref, ok := s.targetRef(rec, s.in.PersonName, models.RelationshipParent)
			if !ok {
				ref, ok = s.targetRef(rec, s.in.PersonName)
			}
			if !ok || ref.Identifier == "" {
				s.noteVariant(otherParent)
				continue
			}

			confidence := spouseBase + childBonus
			if matching.Equal(ref.Name, s.in.PersonName) {
				confidence += bonusExactName
			}
			s.add(ref, MethodSpouseSearch, min(confidence, spouseCap), fmt.Sprintf("child %s of spouse as %s", person.FullName, role))
		}
	}
}

// grandchildStrategy searches each known child as a parent. The results are
// the target's grandchildren, who list the target as a grandparent.
func (s *search) grandchildStrategy(ctx context.Context) {
	agreement := map[string]int{}
	refs := map[string]mapper.RelativeRef{}

	for _, child := range s.in.KnownChildren {
		if child.Name == "" {
			continue
		}
		for _, role := range []models.ParentRole{models.ParentRoleFather, models.ParentRoleMother} {
			for _, rec := range s.find(ctx, role, child.Name) {
				ref, ok := s.targetRef(rec, s.in.PersonName, models.RelationshipGrandparent)
				if !ok {
					continue
				}
				if ref.Identifier == "" {
					s.noteVariant(ref.Name)
					continue
				}
				agreement[ref.Identifier]++
				if _, seen := refs[ref.Identifier]; !seen {
					refs[ref.Identifier] = ref
				}
			}
		}
	}

	for id, count := range agreement {
		ref := refs[id]
		confidence := grandchildBase
		if count >= agreementMinimum {
			confidence += bonusAgreement
		}
		if matching.Equal(ref.Name, s.in.PersonName) {
			confidence += bonusExactName
		}
		s.add(ref, MethodGrandchildSearch, min(confidence, grandchildCap), fmt.Sprintf("listed by %d grandchildren", count))
	}
}

// variantStrategy re-searches by a spelling of the target's name seen in
// earlier results. The results are the target's children.
func (s *search) variantStrategy(ctx context.Context) {
	for _, variant := range s.variants {
		for _, role := range []models.ParentRole{models.ParentRoleFather, models.ParentRoleMother} {
			records := s.find(ctx, role, variant)
			if len(records) == 0 {
				continue
			}
			confidence := variantBase
			if s.knownChildAmong(records) {
				confidence += bonusKnownChild
			}
			for _, rec := range records {
				ref, ok := s.targetRef(rec, variant, models.RelationshipParent)
				if !ok || ref.Identifier == "" {
					continue
				}
				s.add(ref, MethodNameVariant, min(confidence, variantCap), fmt.Sprintf("variant %q as %s", variant, role))
			}
		}
	}
}

func (s *search) ranked() []Match {
	results := make([]Match, 0, len(s.matches))
	for _, m := range s.matches {
		results = append(results, *m)
	}
	sort.Slice(results, func(i, j int) bool {
		if results[i].Confidence == results[j].Confidence {
			return results[i].Identifier < results[j].Identifier
		}
		return results[i].Confidence > results[j].Confidence
	})
	return results
}
