// Package aggregator builds the most complete view of one person from the
// direct lookup, parent-name searches, relative expansion and identifier
// discovery.
package aggregator

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/oak/pkg/errors"
	"github.com/Ramsey-B/oak/pkg/identifier"
	"github.com/Ramsey-B/oak/pkg/lookup"
	"github.com/Ramsey-B/oak/pkg/mapper"
	"github.com/Ramsey-B/oak/pkg/matching"
	"github.com/Ramsey-B/oak/pkg/merging"
	"github.com/Ramsey-B/oak/pkg/models"
	"github.com/Ramsey-B/oak/pkg/relationships"
	"github.com/Ramsey-B/oak/pkg/reverse"
	"github.com/Ramsey-B/oak/pkg/siblings"
	"github.com/Ramsey-B/oak/pkg/tracing"
)

const (
	DefaultMaxExpansion           = 3
	DefaultMinDiscoveryConfidence = 70

	recordConfidence    = 100
	expansionConfidence = 75
)

// Context is what the caller already knows about the person.
type Context struct {
	Identifier string
	FullName   string
	BirthDate  *time.Time
	MotherName string
	FatherName string
}

type Result struct {
	Person      models.PersonFields         `json:"person"`
	Detail      models.DetailFields         `json:"detail"`
	Record      *models.PersonRecord        `json:"-"`
	Relatives   []models.DiscoveryCandidate `json:"relatives"`
	Siblings    []models.DiscoveryCandidate `json:"siblings"`
	SourcesUsed []string                    `json:"sources_used"`
	DataQuality DataQuality                 `json:"data_quality"`
	Warnings    []string                    `json:"warnings"`
}

// Found reports whether the direct lookup returned the person.
func (r *Result) Found() bool {
	return r.Record != nil
}

type Options struct {
	MaxExpansion           int
	MinDiscoveryConfidence int
}

func DefaultOptions() Options {
	return Options{
		MaxExpansion:           DefaultMaxExpansion,
		MinDiscoveryConfidence: DefaultMinDiscoveryConfidence,
	}
}

type Aggregator struct {
	lookup     lookup.Lookup
	mapper     *mapper.Mapper
	inferrer   *relationships.Inferrer
	siblings   *siblings.Validator
	discoverer *reverse.Discoverer
	opts       Options
	logger     ectologger.Logger
}

func New(l lookup.Lookup, m *mapper.Mapper, inferrer *relationships.Inferrer, opts Options, logger ectologger.Logger) *Aggregator {
	if opts.MaxExpansion < 0 {
		opts.MaxExpansion = 0
	}
	if opts.MinDiscoveryConfidence <= 0 {
		opts.MinDiscoveryConfidence = DefaultMinDiscoveryConfidence
	}
	return &Aggregator{
		lookup:     l,
		mapper:     m,
		inferrer:   inferrer,
		siblings:   siblings.NewValidator(),
		discoverer: reverse.NewDiscoverer(l, m, logger),
		opts:       opts,
		logger:     logger,
	}
}

// ForRun returns an Aggregator sharing this one's collaborators with a fresh
// identifier-discovery memo.
func (a *Aggregator) ForRun() *Aggregator {
	clone := *a
	clone.discoverer = reverse.NewDiscoverer(a.lookup, a.mapper, a.logger)
	return &clone
}

// Mapper exposes the record mapper used by the aggregator.
func (a *Aggregator) Mapper() *mapper.Mapper {
	return a.mapper
}

// aggregation is the mutable state of one Aggregate call.
type aggregation struct {
	res       *Result
	relatives *collector
	siblings  *collector
	sources   map[string]struct{}
}

func (g *aggregation) warn(format string, args ...any) {
	g.res.Warnings = append(g.res.Warnings, fmt.Sprintf(format, args...))
}

func (g *aggregation) used(source string) {
	g.sources[source] = struct{}{}
}

// Aggregate runs every step the known data allows. Source failures become
// warnings; only an invalid primary identifier aborts.
func (a *Aggregator) Aggregate(ctx context.Context, in Context) (*Result, error) {
	ctx, span := tracing.StartSpan(ctx, "aggregator.Aggregator.Aggregate")
	defer span.End()

	subject := ""
	if in.Identifier != "" {
		id, err := identifier.Validate(in.Identifier)
		if err != nil {
			return nil, err
		}
		subject = id
	}

	g := &aggregation{
		res: &Result{
			Person: models.PersonFields{
				Identifier: subject,
				FullName:   in.FullName,
				BirthDate:  in.BirthDate,
				MotherName: in.MotherName,
				FatherName: in.FatherName,
			},
			Warnings: []string{},
		},
		relatives: newCollector(subject),
		siblings:  newCollector(subject),
		sources:   map[string]struct{}{},
	}

	if subject != "" {
		a.direct(ctx, g, subject)
	}
	a.discoverSiblings(ctx, g)
	a.expand(ctx, g)
	a.discoverParents(ctx, g)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	a.finish(g)
	a.logger.WithContext(ctx).WithFields(map[string]any{
		"identifier": g.res.Person.Identifier,
		"relatives":  len(g.res.Relatives),
		"siblings":   len(g.res.Siblings),
		"quality":    g.res.DataQuality.Score,
	}).Debug("Aggregated person")
	return g.res, nil
}

// direct is step (a): the identifier lookup. A not-found result is tolerated.
func (a *Aggregator) direct(ctx context.Context, g *aggregation, id string) {
	rec, err := a.lookup.LookupByIdentifier(ctx, id)
	if err != nil {
		if errors.IsNotFound(err) {
			g.warn("identifier %s not found", id)
		} else {
			g.warn("identifier lookup failed: %s", errors.Message(err))
		}
		return
	}
	g.used(models.SourceIdentifier)
	g.res.Record = &rec

	fields := a.mapper.ToPerson(rec)
	g.res.Person = merging.Person(g.res.Person, fields)
	g.res.Person.Identifier = id
	g.res.Detail = merging.Detail(g.res.Detail, a.mapper.ToPersonDetail(rec))

	for _, ref := range a.mapper.ToRelatives(rec) {
		g.relatives.add(a.candidateFromRef(ref, models.SourceRecord, recordConfidence))
	}
}

func (a *Aggregator) candidateFromRef(ref mapper.RelativeRef, source string, confidence int) models.DiscoveryCandidate {
	inf := a.inferrer.Infer(ref.RelationCode, relationships.Context{})
	return models.DiscoveryCandidate{
		Identifier:   ref.Identifier,
		Name:         ref.Name,
		RelationCode: ref.RelationCode,
		Type:         inf.Forward,
		Known:        inf.Known,
		Fallback:     inf.Fallback,
		BirthDate:    ref.BirthDate,
		Confidence:   confidence,
		Source:       source,
	}
}

type searchHit struct {
	record   models.PersonRecord
	fields   models.PersonFields
	byMother bool
	byFather bool
}

// discoverSiblings is step (b): father search, mother-name reconciliation,
// mother search, then scoring.
func (a *Aggregator) discoverSiblings(ctx context.Context, g *aggregation) {
	person := &g.res.Person
	hits := map[string]*searchHit{}
	var order []string

	collect := func(role models.ParentRole, name string) []models.PersonFields {
		records, err := a.lookup.LookupByParentName(ctx, role, name)
		if err != nil {
			g.warn("%s search failed: %s", role, errors.Message(err))
			return nil
		}
		g.used(sourceForRole(role))

		var found []models.PersonFields
		for _, rec := range records {
			fields := a.mapper.ToPerson(rec)
			if isSubject(*person, fields) {
				continue
			}
			key := candidateKey(fields)
			if key == "" {
				continue
			}
			hit, ok := hits[key]
			if !ok {
				hit = &searchHit{record: rec, fields: fields}
				hits[key] = hit
				order = append(order, key)
			}
			if role == models.ParentRoleMother {
				hit.byMother = true
			} else {
				hit.byFather = true
			}
			found = append(found, fields)
		}
		return found
	}

	if person.FatherName != "" {
		byFather := collect(models.ParentRoleFather, person.FatherName)
		if reconciled := reconcileMother(person.MotherName, byFather); reconciled != "" {
			person.MotherName = reconciled
		}
	}
	if person.MotherName != "" {
		collect(models.ParentRoleMother, person.MotherName)
	}
	if len(hits) == 0 {
		return
	}

	known := siblings.Person{
		Identifier: person.Identifier,
		Name:       person.FullName,
		BirthDate:  person.BirthDate,
		MotherName: person.MotherName,
		FatherName: person.FatherName,
	}
	candidates := make([]siblings.Candidate, 0, len(order))
	for _, key := range order {
		hit := hits[key]
		candidates = append(candidates, siblings.Candidate{
			Person: siblings.Person{
				Identifier: hit.fields.Identifier,
				Name:       hit.fields.FullName,
				BirthDate:  hit.fields.BirthDate,
				MotherName: hit.fields.MotherName,
				FatherName: hit.fields.FatherName,
			},
			FoundByMother: hit.byMother,
			FoundByFather: hit.byFather,
		})
	}

	for _, scored := range a.siblings.ValidateMultiple(known, candidates, siblings.ParentNames{Mother: person.MotherName, Father: person.FatherName}) {
		c := scored.Candidate
		hit := hits[candidateKey(models.PersonFields{Identifier: c.Identifier, FullName: c.Name, BirthDate: c.BirthDate})]
		source := models.SourceMotherSearch
		if scored.FoundByFather {
			source = models.SourceFatherSearch
		}
		record := hit.record
		g.siblings.add(models.DiscoveryCandidate{
			Identifier: hit.fields.Identifier,
			Name:       hit.fields.FullName,
			Type:       models.RelationshipSibling,
			Known:      true,
			BirthDate:  hit.fields.BirthDate,
			MotherName: hit.fields.MotherName,
			FatherName: hit.fields.FatherName,
			Confidence: scored.Confidence,
			Source:     source,
			Record:     &record,
		})
	}
}

func sourceForRole(role models.ParentRole) string {
	if role == models.ParentRoleMother {
		return models.SourceMotherSearch
	}
	return models.SourceFatherSearch
}

// isSubject reports whether a search result is the person being aggregated.
func isSubject(person, other models.PersonFields) bool {
	if person.Identifier != "" && other.Identifier != "" {
		return person.Identifier == other.Identifier
	}
	return matching.Equal(person.FullName, other.FullName) && models.SameDay(person.BirthDate, other.BirthDate)
}

func candidateKey(f models.PersonFields) string {
	if f.Identifier != "" {
		return f.Identifier
	}
	if f.FullName == "" {
		return ""
	}
	birth := ""
	if f.BirthDate != nil {
		birth = f.BirthDate.Format("2006-01-02")
	}
	return "name:" + f.FullName + "|" + birth
}

// reconcileMother picks the mother name most often seen among the father
// search results. When a mother name is already known only similar names count.
func reconcileMother(known string, results []models.PersonFields) string {
	counts := map[string]int{}
	var names []string
	for _, r := range results {
		if r.MotherName == "" {
			continue
		}
		if known != "" && !matching.AreSimilar(known, r.MotherName, matching.ParentNameThreshold) {
			continue
		}
		if counts[r.MotherName] == 0 {
			names = append(names, r.MotherName)
		}
		counts[r.MotherName]++
	}
	if len(names) == 0 {
		return ""
	}
	sort.SliceStable(names, func(i, j int) bool {
		return counts[names[i]] > counts[names[j]]
	})
	return names[0]
}

// expand is step (c): fetch up to MaxExpansion relatives and derive
// second-degree relatives through the composition table.
func (a *Aggregator) expand(ctx context.Context, g *aggregation) {
	expanded := 0
	for _, rel := range g.relatives.list() {
		if expanded >= a.opts.MaxExpansion {
			return
		}
		if !rel.HasIdentifier() || !rel.Known || rel.Fallback {
			continue
		}
		expanded++

		rec, err := a.lookup.LookupByIdentifier(ctx, rel.Identifier)
		if err != nil {
			g.warn("expansion of %s failed: %s", rel.Identifier, errors.Message(err))
			continue
		}
		g.used(models.SourceExpansion)

		fields := a.mapper.ToPerson(rec)
		rel.Record = &rec
		rel.MotherName = merging.PreferNonEmpty(rel.MotherName, fields.MotherName)
		rel.FatherName = merging.PreferNonEmpty(rel.FatherName, fields.FatherName)
		rel.BirthDate = merging.FillEmpty(rel.BirthDate, fields.BirthDate)
		g.relatives.add(rel)

		for _, ref := range a.mapper.ToRelatives(rec) {
			if ref.Identifier != "" && ref.Identifier == g.res.Person.Identifier {
				continue
			}
			second := a.inferrer.Infer(ref.RelationCode, relationships.Context{})
			if !second.Known || second.Fallback {
				continue
			}
			derived, ok := relationships.Compose(rel.Type, second.Forward)
			if !ok {
				continue
			}
			cand := a.candidateFromRef(ref, models.SourceExpansion, expansionConfidence)
			cand.Type, cand.Known, cand.Fallback = derived, true, false
			g.relatives.add(cand)
		}
	}
}

// discoverParents is step (d): recover the identifier of a parent known only by name.
func (a *Aggregator) discoverParents(ctx context.Context, g *aggregation) {
	person := g.res.Person
	parents := []struct {
		name   string
		spouse string
	}{
		{person.FatherName, person.MotherName},
		{person.MotherName, person.FatherName},
	}

	children := []reverse.Child{{Identifier: person.Identifier, Name: person.FullName}}
	for _, sib := range g.siblings.list() {
		children = append(children, reverse.Child{Identifier: sib.Identifier, Name: sib.Name})
	}

	for _, p := range parents {
		if p.name == "" || a.hasParent(g, p.name) {
			continue
		}
		matches, err := a.discoverer.Discover(ctx, reverse.Input{
			PersonName:    p.name,
			SpouseName:    p.spouse,
			KnownChildren: children,
		})
		if err != nil {
			g.warn("identifier discovery for %s failed: %s", p.name, errors.Message(err))
			continue
		}
		if len(matches) == 0 || matches[0].Confidence < a.opts.MinDiscoveryConfidence {
			continue
		}
		best := matches[0]
		g.used(models.SourceReverse)
		g.relatives.add(models.DiscoveryCandidate{
			Identifier: best.Identifier,
			Name:       p.name,
			Type:       models.RelationshipParent,
			Known:      true,
			Confidence: best.Confidence,
			Source:     models.SourceReverse,
		})
	}
}

func (a *Aggregator) hasParent(g *aggregation, name string) bool {
	for _, rel := range g.relatives.list() {
		if rel.Type == models.RelationshipParent && rel.HasIdentifier() && matching.AreSimilar(rel.Name, name, matching.ParentNameThreshold) {
			return true
		}
	}
	return false
}

// finish suppresses siblings already listed as relatives and scores the result.
func (a *Aggregator) finish(g *aggregation) {
	relatives := g.relatives.list()
	var sibs []models.DiscoveryCandidate
	for _, sib := range g.siblings.list() {
		if sib.HasIdentifier() && g.relatives.has(sib.Identifier) {
			rel, _ := g.relatives.get(sib.Identifier)
			for i := range relatives {
				if relatives[i].Identifier == rel.Identifier && relatives[i].Record == nil {
					relatives[i].Record = sib.Record
				}
			}
			continue
		}
		sibs = append(sibs, sib)
	}

	g.res.Relatives = relatives
	g.res.Siblings = sibs
	if g.res.Siblings == nil {
		g.res.Siblings = []models.DiscoveryCandidate{}
	}

	for _, s := range []string{models.SourceIdentifier, models.SourceFatherSearch, models.SourceMotherSearch, models.SourceExpansion, models.SourceReverse} {
		if _, ok := g.sources[s]; ok {
			g.res.SourcesUsed = append(g.res.SourcesUsed, s)
		}
	}
	g.res.DataQuality = Quality(g.res.Person, len(g.res.Relatives), len(g.res.Siblings), len(g.res.SourcesUsed))
}
