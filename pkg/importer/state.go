package importer

import (
	"sync"

	"github.com/Ramsey-B/oak/pkg/models"
	"github.com/Ramsey-B/oak/pkg/normalizers"
)

// runState is everything one run accumulates. It is discarded when the run ends.
type runState struct {
	run             *models.ImportRun
	mergeDuplicates bool

	mu        sync.Mutex
	counters  models.Counters
	errors    []models.RunError
	edges     map[models.EdgeKey]struct{}
	persons   map[string]*models.Person
	stubs     map[string]*models.Person
	updated   map[string]struct{}
	personID  string
	finalized bool

	// resolveMu serializes person resolution so concurrent nodes of a batch
	// cannot create the same person twice.
	resolveMu sync.Mutex
}

func newRunState(run *models.ImportRun, mergeDuplicates bool) *runState {
	return &runState{
		run:             run,
		mergeDuplicates: mergeDuplicates,
		errors:          []models.RunError{},
		edges:           make(map[models.EdgeKey]struct{}),
		persons:         make(map[string]*models.Person),
		stubs:           make(map[string]*models.Person),
		updated:         make(map[string]struct{}),
	}
}

func (s *runState) recordError(person, message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errors = append(s.errors, models.RunError{Person: person, Error: message})
}

// created counts a new person. Persons created by the run are never also
// counted as updated.
func (s *runState) created(personID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counters.PersonsCreated++
	s.updated[personID] = struct{}{}
}

// markUpdated counts a person as updated once per run.
func (s *runState) markUpdated(personID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.updated[personID]; ok {
		return false
	}
	s.updated[personID] = struct{}{}
	s.counters.PersonsUpdated++
	return true
}

func (s *runState) duplicateFound() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counters.DuplicatesFound++
}

func (s *runState) relationshipsCreated(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counters.RelationshipsCreated += n
}

// processed counts one visited node and returns the new total.
func (s *runState) processed() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counters.PersonsProcessed++
	return s.counters.PersonsProcessed
}

func (s *runState) setPersonID(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.personID == "" {
		s.personID = id
	}
}

// remember registers a resolved person under the identifiers it was reached by.
func (s *runState) remember(p *models.Person, identifiers ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range identifiers {
		if id != "" {
			s.persons[id] = p
		}
	}
	if p.Identifier == "" {
		if key := normalizers.NormalizeName(p.FullName); key != "" {
			s.stubs[key] = p
		}
	}
}

// known returns the person already resolved in this run for the identifier,
// or for the name when there is no identifier.
func (s *runState) known(identifier, name string) *models.Person {
	s.mu.Lock()
	defer s.mu.Unlock()
	if identifier != "" {
		return s.persons[identifier]
	}
	return s.stubs[normalizers.NormalizeName(name)]
}

// reserveEdge claims both directions of an edge for this run. It reports false
// when either direction was already claimed.
func (s *runState) reserveEdge(edge models.RelationshipEdge) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	forward, inverse := edge.Key(), edge.Inverse().Key()
	if _, ok := s.edges[forward]; ok {
		return false
	}
	if _, ok := s.edges[inverse]; ok {
		return false
	}
	s.edges[forward] = struct{}{}
	s.edges[inverse] = struct{}{}
	return true
}

func (s *runState) snapshot() (models.Counters, []models.RunError) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.counters, append([]models.RunError{}, s.errors...)
}

func (s *runState) summary() models.RunSummary {
	counters, errs := s.snapshot()
	s.mu.Lock()
	personID := s.personID
	s.mu.Unlock()
	return models.RunSummary{
		Status:   models.FinalStatus(counters, len(errs)),
		Counters: counters,
		Errors:   errs,
		PersonID: personID,
	}
}

// markFinalized reports true to the first caller only.
func (s *runState) markFinalized() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.finalized {
		return false
	}
	s.finalized = true
	return true
}

func (s *runState) result(summary models.RunSummary) models.Result {
	return models.ResultFromRun(&models.ImportRun{
		ID:       s.run.ID,
		Status:   summary.Status,
		Counters: summary.Counters,
		Errors:   summary.Errors,
		PersonID: summary.PersonID,
	})
}
