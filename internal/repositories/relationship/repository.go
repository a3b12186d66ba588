package relationship

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"
	"github.com/huandu/go-sqlbuilder"
	"github.com/lib/pq"

	"github.com/Ramsey-B/oak/pkg/database"
	"github.com/Ramsey-B/oak/pkg/models"
	"github.com/Ramsey-B/oak/pkg/tracing"
)

const (
	relationshipsTable = "relationships"

	uniqueViolation = "23505"
)

var relationshipColumns = []string{
	"id",
	"family_tree_id",
	"person_id",
	"related_person_id",
	"type",
	"status",
	"confidence",
	"created_at",
}

// Repository manages relationships persistence. Edges are always written in
// inverse pairs.
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{db: db, logger: logger}
}

// CreateBidirectional writes edge and its inverse in one transaction. It
// fails with 409 when either direction already exists.
func (r *Repository) CreateBidirectional(ctx context.Context, edge models.RelationshipEdge) ([]models.RelationshipEdge, error) {
	ctx, span := tracing.StartSpan(ctx, "relationship.Repository.CreateBidirectional")
	defer span.End()

	if edge.PersonID == "" || edge.RelatedPersonID == "" {
		return nil, httperror.NewHTTPError(http.StatusBadRequest, "relationship requires both persons")
	}
	if edge.PersonID == edge.RelatedPersonID {
		return nil, httperror.NewHTTPError(http.StatusBadRequest, "a person cannot be related to itself")
	}
	if !edge.Type.IsValid() {
		return nil, httperror.NewHTTPErrorf(http.StatusBadRequest, "invalid relationship type %q", edge.Type)
	}
	if edge.Status == "" {
		edge.Status = models.RelationshipStatusActive
	}

	pair := []models.RelationshipEdge{edge, edge.Inverse()}
	err := database.WithTx(ctx, r.db, func(ctx context.Context) error {
		now := time.Now().UTC()
		for i := range pair {
			pair[i].ID = uuid.New().String()
			pair[i].CreatedAt = now
			if err := r.insert(ctx, pair[i]); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		tracing.RecordError(ctx, err)
		return nil, err
	}

	r.logger.WithContext(ctx).WithFields(map[string]any{
		"person_id":         edge.PersonID,
		"related_person_id": edge.RelatedPersonID,
		"type":              edge.Type,
	}).Debugf("Created %s pair", relationshipsTable)
	return pair, nil
}

func (r *Repository) insert(ctx context.Context, edge models.RelationshipEdge) error {
	ib := sqlbuilder.PostgreSQL.NewInsertBuilder()
	ib.InsertInto(relationshipsTable)
	ib.Cols(relationshipColumns...)
	ib.Values(
		edge.ID,
		edge.FamilyTreeID,
		edge.PersonID,
		edge.RelatedPersonID,
		edge.Type,
		edge.Status,
		edge.Confidence,
		edge.CreatedAt,
	)

	query, args := ib.Build()
	if _, err := r.db.Executor(ctx).ExecContext(ctx, query, args...); err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return httperror.NewHTTPError(http.StatusConflict, "relationship already exists")
		}
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"person_id":         edge.PersonID,
			"related_person_id": edge.RelatedPersonID,
		}).Error("Failed to create relationship")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to create relationship")
	}
	return nil
}

// FindBetween returns the edges from personID to relatedPersonID.
func (r *Repository) FindBetween(ctx context.Context, familyTreeID, personID, relatedPersonID string) ([]models.RelationshipEdge, error) {
	ctx, span := tracing.StartSpan(ctx, "relationship.Repository.FindBetween")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(relationshipColumns...)
	sb.From(relationshipsTable)
	sb.Where(
		sb.Equal("family_tree_id", familyTreeID),
		sb.Equal("person_id", personID),
		sb.Equal("related_person_id", relatedPersonID),
	)

	query, args := sb.Build()
	out := []models.RelationshipEdge{}
	if err := r.db.Executor(ctx).SelectContext(ctx, &out, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to find relationships between persons")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to find relationships")
	}
	return out, nil
}

// ListByPerson returns the outgoing edges of a person, oldest first.
func (r *Repository) ListByPerson(ctx context.Context, personID string) ([]models.RelationshipEdge, error) {
	ctx, span := tracing.StartSpan(ctx, "relationship.Repository.ListByPerson")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(relationshipColumns...)
	sb.From(relationshipsTable)
	sb.Where(sb.Equal("person_id", personID))
	sb.OrderBy("created_at").Asc()

	query, args := sb.Build()
	out := []models.RelationshipEdge{}
	if err := r.db.Executor(ctx).SelectContext(ctx, &out, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithField("person_id", personID).Error("Failed to list relationships")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list relationships")
	}
	return out, nil
}
