package memory

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/google/uuid"

	"github.com/Ramsey-B/oak/pkg/models"
)

type RelationshipRepository struct {
	mu    sync.RWMutex
	edges []models.RelationshipEdge
	keys  map[models.EdgeKey]struct{}
}

func NewRelationshipRepository() *RelationshipRepository {
	return &RelationshipRepository{keys: make(map[models.EdgeKey]struct{})}
}

func (r *RelationshipRepository) CreateBidirectional(_ context.Context, edge models.RelationshipEdge) ([]models.RelationshipEdge, error) {
	if edge.PersonID == "" || edge.RelatedPersonID == "" {
		return nil, httperror.NewHTTPError(http.StatusBadRequest, "relationship requires both persons")
	}
	if edge.PersonID == edge.RelatedPersonID {
		return nil, httperror.NewHTTPError(http.StatusBadRequest, "a person cannot be related to itself")
	}
	if !edge.Type.IsValid() {
		return nil, httperror.NewHTTPError(http.StatusBadRequest, "invalid relationship type")
	}
	if edge.Status == "" {
		edge.Status = models.RelationshipStatusActive
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	inverse := edge.Inverse()
	if _, ok := r.keys[edge.Key()]; ok {
		return nil, httperror.NewHTTPError(http.StatusConflict, "relationship already exists")
	}

	now := time.Now().UTC()
	pair := []models.RelationshipEdge{edge, inverse}
	for i := range pair {
		pair[i].ID = uuid.New().String()
		pair[i].CreatedAt = now
		r.edges = append(r.edges, pair[i])
		r.keys[pair[i].Key()] = struct{}{}
	}
	return pair, nil
}

func (r *RelationshipRepository) FindBetween(_ context.Context, familyTreeID, personID, relatedPersonID string) ([]models.RelationshipEdge, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := []models.RelationshipEdge{}
	for _, e := range r.edges {
		if e.FamilyTreeID == familyTreeID && e.PersonID == personID && e.RelatedPersonID == relatedPersonID {
			out = append(out, e)
		}
	}
	return out, nil
}

// ListByPerson returns the outgoing edges of a person.
func (r *RelationshipRepository) ListByPerson(personID string) []models.RelationshipEdge {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := []models.RelationshipEdge{}
	for _, e := range r.edges {
		if e.PersonID == personID {
			out = append(out, e)
		}
	}
	return out
}

// Count returns the number of stored edges.
func (r *RelationshipRepository) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.edges)
}
