// Package memory provides in-process implementations of the importer stores.
// They back tests and single-shot command runs without a database.
package memory

import (
	"context"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/google/uuid"

	"github.com/Ramsey-B/oak/pkg/models"
	"github.com/Ramsey-B/oak/pkg/normalizers"
)

type PersonRepository struct {
	mu      sync.RWMutex
	persons map[string]*models.Person
	details map[string]models.PersonDetail
}

func NewPersonRepository() *PersonRepository {
	return &PersonRepository{
		persons: make(map[string]*models.Person),
		details: make(map[string]models.PersonDetail),
	}
}

func clonePerson(p *models.Person) *models.Person {
	c := *p
	return &c
}

func (r *PersonRepository) FindByIdentifier(_ context.Context, familyTreeID, identifier string) (*models.Person, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if p := r.byIdentifier(familyTreeID, identifier); p != nil {
		return clonePerson(p), nil
	}
	return nil, httperror.NewHTTPError(http.StatusNotFound, "person not found")
}

func (r *PersonRepository) byIdentifier(familyTreeID, identifier string) *models.Person {
	if identifier == "" {
		return nil
	}
	for _, p := range r.persons {
		if p.FamilyTreeID == familyTreeID && p.Identifier == identifier {
			return p
		}
	}
	return nil
}

func (r *PersonRepository) FindByID(_ context.Context, id string) (*models.Person, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.persons[id]
	if !ok {
		return nil, httperror.NewHTTPError(http.StatusNotFound, "person not found")
	}
	return clonePerson(p), nil
}

// Search matches persons whose normalized name starts with the query's first token.
func (r *PersonRepository) Search(_ context.Context, familyTreeID, nameQuery string) ([]models.Person, error) {
	tokens := strings.Fields(normalizers.NormalizeName(nameQuery))
	if len(tokens) == 0 {
		return []models.Person{}, nil
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	out := []models.Person{}
	for _, p := range r.persons {
		if p.FamilyTreeID != familyTreeID {
			continue
		}
		if strings.HasPrefix(normalizers.NormalizeName(p.FullName), tokens[0]) {
			out = append(out, *p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (r *PersonRepository) FindOrCreate(_ context.Context, person *models.Person) (*models.Person, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if existing := r.byIdentifier(person.FamilyTreeID, person.Identifier); existing != nil {
		return clonePerson(existing), false, nil
	}
	if person.Identifier == "" {
		for _, p := range r.persons {
			if p.FamilyTreeID == person.FamilyTreeID && p.Identifier == "" && p.Stub &&
				normalizers.NormalizeName(p.FullName) == normalizers.NormalizeName(person.FullName) {
				return clonePerson(p), false, nil
			}
		}
	}

	created := clonePerson(person)
	created.ID = uuid.New().String()
	created.CreatedAt = time.Now().UTC()
	created.UpdatedAt = created.CreatedAt
	r.persons[created.ID] = created
	return clonePerson(created), true, nil
}

func (r *PersonRepository) Save(_ context.Context, person *models.Person) (*models.Person, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	existing, ok := r.persons[person.ID]
	if !ok {
		return nil, httperror.NewHTTPError(http.StatusNotFound, "person not found")
	}
	if other := r.byIdentifier(person.FamilyTreeID, person.Identifier); other != nil && other.ID != person.ID {
		return nil, httperror.NewHTTPError(http.StatusConflict, "identifier already used in family tree")
	}

	saved := clonePerson(person)
	saved.CreatedAt = existing.CreatedAt
	saved.UpdatedAt = time.Now().UTC()
	r.persons[saved.ID] = saved
	return clonePerson(saved), nil
}

func (r *PersonRepository) SaveDetail(_ context.Context, detail *models.PersonDetail) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.persons[detail.PersonID]; !ok {
		return httperror.NewHTTPError(http.StatusNotFound, "person not found")
	}
	d := *detail
	d.UpdatedAt = time.Now().UTC()
	r.details[detail.PersonID] = d
	return nil
}

// Detail returns the stored detail of a person.
func (r *PersonRepository) Detail(personID string) (models.PersonDetail, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.details[personID]
	return d, ok
}

// List returns every person of a tree ordered by creation.
func (r *PersonRepository) List(familyTreeID string) []models.Person {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := []models.Person{}
	for _, p := range r.persons {
		if p.FamilyTreeID == familyTreeID {
			out = append(out, *p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}
