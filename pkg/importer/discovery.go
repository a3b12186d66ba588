package importer

import (
	"context"
	"fmt"
	"strings"

	"github.com/Ramsey-B/oak/pkg/aggregator"
	"github.com/Ramsey-B/oak/pkg/identifier"
	"github.com/Ramsey-B/oak/pkg/models"
	"github.com/Ramsey-B/oak/pkg/tracing"
)

// DiscoveryKey identifies discoveries that are considered identical.
func DiscoveryKey(familyTreeID, id string) string {
	return fmt.Sprintf("discovery:%s:%s", familyTreeID, id)
}

// Discover enriches one person and its direct relatives into the family tree.
// A successful discovery of the same person within the discovery window is
// returned as is, marked Skipped, unless Force is set.
func (s *Service) Discover(ctx context.Context, req DiscoveryRequest) (models.Result, error) {
	ctx, span := tracing.StartSpan(ctx, "importer.Service.Discover")
	defer span.End()

	if err := s.validateRequest(req); err != nil {
		return models.Result{}, err
	}
	id, err := identifier.Validate(req.Identifier)
	if err != nil {
		return models.Result{}, err
	}

	key := DiscoveryKey(req.FamilyTreeID, id)
	if !req.Options.Force {
		recent, err := s.deps.Runs.FindRecentSimilar(ctx, key, s.cfg.DiscoveryWindow)
		if err != nil {
			s.logger.WithContext(ctx).WithError(err).Warn("Failed to look up recent discoveries")
		} else if recent != nil {
			s.logger.WithContext(ctx).WithField("run_id", recent.ID).Infof("Discovery of %s ran recently, skipping", id)
			result := models.ResultFromRun(recent)
			result.Skipped = true
			return result, nil
		}
	}

	run, err := s.start(ctx, &models.ImportRun{
		Kind:           models.RunKindDiscovery,
		Key:            key,
		FamilyTreeID:   req.FamilyTreeID,
		ActorID:        req.ActorID,
		SeedIdentifier: id,
	})
	if err != nil {
		tracing.RecordError(ctx, err)
		return models.Result{}, err
	}

	st := newRunState(run, req.Options.MergeDuplicates)
	return s.execute(ctx, st, func(ctx context.Context) error {
		return s.discover(ctx, st, id)
	}), nil
}

func (s *Service) discover(ctx context.Context, st *runState, id string) error {
	res, err := s.deps.Aggregator.ForRun().Aggregate(ctx, aggregator.Context{Identifier: id})
	if err != nil {
		return err
	}
	if !res.Found() {
		return fmt.Errorf("person %s not found: %s", id, strings.Join(res.Warnings, "; "))
	}

	primary, err := s.resolvePerson(ctx, st, res.Person, res.Detail, false)
	if err != nil {
		return err
	}
	st.setPersonID(primary.ID)

	candidates := append(append([]models.DiscoveryCandidate{}, res.Relatives...), res.Siblings...)
	for _, cand := range candidates {
		if err := ctx.Err(); err != nil {
			st.recordError(candidateLabel(cand), err.Error())
			return nil
		}
		s.attach(ctx, st, primary, cand)
	}
	return nil
}
