package importer

import (
	"context"
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectolinq"

	"github.com/Ramsey-B/oak/pkg/dates"
	"github.com/Ramsey-B/oak/pkg/errors"
	"github.com/Ramsey-B/oak/pkg/metrics"
	"github.com/Ramsey-B/oak/pkg/models"
	"github.com/Ramsey-B/oak/pkg/relationships"
)

// link writes the edge "to is the t of from" and its inverse. It reports
// whether the pair was created. A pair already related in this run or in the
// tree, whatever the type, keeps its edges; such pairs and edges rejected by
// the compatibility check are skipped without error.
func (s *Service) link(ctx context.Context, st *runState, from, to *models.Person, t models.RelationshipType, fallback bool, confidence int) (bool, error) {
	if from == nil || to == nil || from.ID == to.ID {
		return false, nil
	}
	if !t.IsValid() {
		return false, errors.NewInvalidInput("relationship_type", string(t), "not a canonical relationship type")
	}

	status := models.RelationshipStatusActive
	if fallback {
		status = models.RelationshipStatusPendingReview
	}
	edge := models.RelationshipEdge{
		PersonID:        from.ID,
		RelatedPersonID: to.ID,
		Type:            t,
		FamilyTreeID:    st.run.FamilyTreeID,
		Status:          status,
		Confidence:      confidence,
	}
	if !st.reserveEdge(edge) {
		return false, nil
	}

	log := s.logger.WithContext(ctx).WithFields(map[string]any{
		"person_id":         from.ID,
		"related_person_id": to.ID,
		"type":              t,
	})

	existing, err := s.deps.Relationships.FindBetween(ctx, st.run.FamilyTreeID, from.ID, to.ID)
	if err != nil {
		return false, errors.NewPersistence("find relationships", err)
	}
	if len(existing) > 0 {
		log.WithField("existing_types", ectolinq.Map(existing, edgeType)).Debug("Pair already related in this tree")
		return false, nil
	}

	var ageGap *float64
	if from.BirthDate != nil && to.BirthDate != nil {
		gap := dates.AgeDifferenceYears(*to.BirthDate, *from.BirthDate)
		ageGap = &gap
	}
	if !relationships.ValidateCompatibility(nil, t, ageGap, nil) {
		log.Debug("Relationship rejected by compatibility check")
		return false, nil
	}

	created, err := s.deps.Relationships.CreateBidirectional(ctx, edge)
	if err != nil {
		if httperror.IsHTTPError(err) && httperror.GetStatusCode(err) == http.StatusConflict {
			return false, nil
		}
		return false, errors.NewPersistence("create relationship", err)
	}

	st.relationshipsCreated(len(created))
	metrics.RelationshipsCreated.WithLabelValues(string(t)).Inc()
	for _, e := range created {
		s.deps.Events.RelationshipCreated(ctx, e)
		if s.deps.Graph != nil {
			if err := s.deps.Graph.ProjectRelationship(ctx, e); err != nil {
				log.WithError(err).Warn("Failed to project relationship into graph")
			}
		}
	}
	log.Debug("Created relationship")
	return true, nil
}

func edgeType(e models.RelationshipEdge) models.RelationshipType {
	return e.Type
}

// attach resolves a discovered relative and links it to subject. Failures are
// recorded on the run and never abort the caller.
func (s *Service) attach(ctx context.Context, st *runState, subject *models.Person, cand models.DiscoveryCandidate) *models.Person {
	if !cand.Known || !cand.Type.IsValid() {
		st.recordError(candidateLabel(cand), "unknown relation code "+quote(cand.RelationCode))
		return nil
	}

	person, err := s.resolveCandidate(ctx, st, cand)
	if err != nil {
		st.recordError(candidateLabel(cand), errors.Message(err))
		return nil
	}
	if _, err := s.link(ctx, st, subject, person, cand.Type, cand.Fallback, cand.Confidence); err != nil {
		st.recordError(candidateLabel(cand), errors.Message(err))
	}
	return person
}

func quote(s string) string {
	return "\"" + s + "\""
}
