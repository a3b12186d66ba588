package importer

import (
	"context"
	"fmt"
	"time"

	"github.com/Ramsey-B/oak/pkg/errors"
	"github.com/Ramsey-B/oak/pkg/matching"
	"github.com/Ramsey-B/oak/pkg/merging"
	"github.com/Ramsey-B/oak/pkg/metrics"
	"github.com/Ramsey-B/oak/pkg/models"
	"github.com/Ramsey-B/oak/pkg/tracing"
)

// resolvePerson returns the tree's Person for fields, merging into an existing
// one when possible. In order it tries the run's own resolutions, the
// identifier, a fuzzy name plus birth-day match when duplicates are merged,
// and finally creation.
func (s *Service) resolvePerson(ctx context.Context, st *runState, fields models.PersonFields, detail models.DetailFields, stub bool) (*models.Person, error) {
	ctx, span := tracing.StartSpan(ctx, "importer.Service.resolvePerson")
	defer span.End()

	if fields.Identifier == "" && fields.FullName == "" {
		return nil, errors.NewInvalidInput("person", "", "person has neither identifier nor name")
	}

	st.resolveMu.Lock()
	defer st.resolveMu.Unlock()

	person, err := s.findOrMerge(ctx, st, fields, stub)
	if err != nil {
		tracing.RecordError(ctx, err)
		return nil, err
	}
	st.remember(person, fields.Identifier, person.Identifier)

	if !detail.IsEmpty() {
		if err := s.deps.People.SaveDetail(ctx, &models.PersonDetail{PersonID: person.ID, Fields: detail}); err != nil {
			st.recordError(label(person.PersonFields), errors.NewPersistence("save person detail", err).Error())
		}
	}

	if s.deps.Graph != nil {
		if err := s.deps.Graph.ProjectPerson(ctx, person); err != nil {
			s.logger.WithContext(ctx).WithError(err).WithField("person_id", person.ID).Warn("Failed to project person into graph")
		}
	}
	return person, nil
}

func (s *Service) findOrMerge(ctx context.Context, st *runState, fields models.PersonFields, stub bool) (*models.Person, error) {
	treeID := st.run.FamilyTreeID

	if existing := st.known(fields.Identifier, fields.FullName); existing != nil {
		return s.mergeInto(ctx, st, existing, fields, stub, false)
	}

	if fields.Identifier != "" {
		existing, err := s.deps.People.FindByIdentifier(ctx, treeID, fields.Identifier)
		switch {
		case err == nil:
			return s.mergeInto(ctx, st, existing, fields, stub, true)
		case !errors.IsNotFound(err):
			return nil, errors.NewPersistence("find person by identifier", err)
		}
	}

	if st.mergeDuplicates && fields.BirthDate != nil && fields.FullName != "" {
		dup, err := s.findDuplicate(ctx, treeID, fields)
		if err != nil {
			return nil, err
		}
		if dup != nil {
			st.duplicateFound()
			s.logger.WithContext(ctx).WithFields(map[string]any{
				"person_id":  dup.ID,
				"identifier": fields.Identifier,
				"name":       fields.FullName,
			}).Info("Merging duplicate person")

			// the stored identifier wins over the incoming one
			incoming := fields
			incoming.Identifier = ""
			return s.mergeInto(ctx, st, dup, incoming, stub, true)
		}
	}

	p, created, err := s.deps.People.FindOrCreate(ctx, &models.Person{
		FamilyTreeID: treeID,
		PersonFields: fields,
		Stub:         stub,
	})
	if err != nil {
		return nil, errors.NewPersistence("create person", err)
	}
	if !created {
		return s.mergeInto(ctx, st, p, fields, stub, true)
	}

	st.created(p.ID)
	metrics.PersonsWritten.WithLabelValues("created").Inc()
	s.deps.Events.PersonWritten(ctx, p, true)
	return p, nil
}

// findDuplicate returns the tree's person whose name is near-identical and who
// was born on the same day.
func (s *Service) findDuplicate(ctx context.Context, treeID string, fields models.PersonFields) (*models.Person, error) {
	candidates, err := s.deps.People.Search(ctx, treeID, fields.FullName)
	if err != nil {
		return nil, errors.NewPersistence("search persons", err)
	}
	for i := range candidates {
		c := candidates[i]
		if !models.SameDay(c.BirthDate, fields.BirthDate) {
			continue
		}
		if matching.AreSimilar(c.FullName, fields.FullName, matching.DuplicateThreshold) {
			return &c, nil
		}
	}
	return nil, nil
}

// mergeInto applies the incoming fields to an existing person and saves it.
// Unless always is set the save is skipped when nothing changed.
func (s *Service) mergeInto(ctx context.Context, st *runState, existing *models.Person, incoming models.PersonFields, stub, always bool) (*models.Person, error) {
	merged := *existing
	merged.PersonFields = merging.Person(existing.PersonFields, incoming)
	if existing.Identifier != "" {
		merged.Identifier = existing.Identifier
	}
	merged.Stub = existing.Stub && stub

	if !always && samePerson(*existing, merged) {
		return existing, nil
	}

	saved, err := s.deps.People.Save(ctx, &merged)
	if err != nil {
		return nil, errors.NewPersistence("save person", err)
	}
	if st.markUpdated(saved.ID) {
		metrics.PersonsWritten.WithLabelValues("updated").Inc()
	}
	s.deps.Events.PersonWritten(ctx, saved, false)
	return saved, nil
}

func samePerson(a, b models.Person) bool {
	fa, fb := a.PersonFields, b.PersonFields
	return a.Stub == b.Stub &&
		fa.Identifier == fb.Identifier &&
		fa.FullName == fb.FullName &&
		fa.Gender == fb.Gender &&
		fa.MotherName == fb.MotherName &&
		fa.FatherName == fb.FatherName &&
		sameDate(fa.BirthDate, fb.BirthDate) &&
		sameDate(fa.DeathDate, fb.DeathDate)
}

func sameDate(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Equal(*b)
}

// resolveCandidate turns a discovered relative into a Person. It reuses the
// record carried by the candidate, then the cached lookup, and falls back to a
// stub built from what the referrer knew.
func (s *Service) resolveCandidate(ctx context.Context, st *runState, cand models.DiscoveryCandidate) (*models.Person, error) {
	known := models.PersonFields{
		Identifier: cand.Identifier,
		FullName:   cand.Name,
		BirthDate:  cand.BirthDate,
		MotherName: cand.MotherName,
		FatherName: cand.FatherName,
	}

	if p := st.known(cand.Identifier, cand.Name); p != nil {
		return p, nil
	}

	record := cand.Record
	if record == nil && cand.HasIdentifier() {
		rec, err := s.deps.Lookup.LookupByIdentifier(ctx, cand.Identifier)
		if err != nil {
			s.logger.WithContext(ctx).WithError(err).WithField("identifier", cand.Identifier).
				Debug("Relative lookup failed, falling back to a stub")
		} else {
			record = &rec
		}
	}

	if record == nil {
		return s.resolvePerson(ctx, st, known, models.DetailFields{}, true)
	}

	m := s.deps.Aggregator.Mapper()
	fields := merging.Supplement(m.ToPerson(*record), known)
	if fields.Identifier == "" {
		fields.Identifier = cand.Identifier
	}
	return s.resolvePerson(ctx, st, fields, m.ToPersonDetail(*record), false)
}

// label names a person in the run's error list.
func label(f models.PersonFields) string {
	switch {
	case f.Identifier != "" && f.FullName != "":
		return fmt.Sprintf("%s (%s)", f.FullName, f.Identifier)
	case f.Identifier != "":
		return f.Identifier
	default:
		return f.FullName
	}
}

func candidateLabel(c models.DiscoveryCandidate) string {
	return label(models.PersonFields{Identifier: c.Identifier, FullName: c.Name})
}
