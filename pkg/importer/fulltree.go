package importer

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/Ramsey-B/oak/pkg/aggregator"
	"github.com/Ramsey-B/oak/pkg/errors"
	"github.com/Ramsey-B/oak/pkg/identifier"
	"github.com/Ramsey-B/oak/pkg/models"
	"github.com/Ramsey-B/oak/pkg/tracing"
)

// ImportKey identifies full-tree imports of the same seed.
func ImportKey(familyTreeID, seed string) string {
	return fmt.Sprintf("full_tree:%s:%s", familyTreeID, seed)
}

// Import crawls the family of the seed breadth-first, bounded by MaxDepth and
// MaxPeople, and persists every person and edge it finds.
func (s *Service) Import(ctx context.Context, req ImportRequest) (models.Result, error) {
	ctx, span := tracing.StartSpan(ctx, "importer.Service.Import")
	defer span.End()

	if err := s.validateRequest(req); err != nil {
		return models.Result{}, err
	}
	seed, err := identifier.Validate(req.SeedIdentifier)
	if err != nil {
		return models.Result{}, err
	}

	run, err := s.start(ctx, &models.ImportRun{
		Kind:           models.RunKindFullTree,
		Key:            ImportKey(req.FamilyTreeID, seed),
		FamilyTreeID:   req.FamilyTreeID,
		ActorID:        req.ActorID,
		SeedIdentifier: seed,
	})
	if err != nil {
		tracing.RecordError(ctx, err)
		return models.Result{}, err
	}

	st := newRunState(run, req.merge())
	return s.execute(ctx, st, func(ctx context.Context) error {
		return s.crawl(ctx, st, seed, req.depth(), req.people())
	}), nil
}

// crawl drains the frontier batch by batch. Exceeding the maximum duration
// stops the crawl with an error recorded; cancellation of ctx fails the run.
func (s *Service) crawl(ctx context.Context, st *runState, seed string, maxDepth, maxPeople int) error {
	runCtx, cancel := ctx, context.CancelFunc(func() {})
	if s.cfg.MaxDuration > 0 {
		runCtx, cancel = context.WithTimeout(ctx, s.cfg.MaxDuration)
	}
	defer cancel()

	f := newFrontier(maxDepth, maxPeople)
	f.seed(seed)
	agg := s.deps.Aggregator.ForRun()
	log := s.logger.WithContext(ctx)

	for batchNo := 1; ; batchNo++ {
		batch := f.next(s.cfg.BatchSize)
		if len(batch) == 0 {
			break
		}
		log.Debugf("Processing batch %d with %d nodes", batchNo, len(batch))

		var g errgroup.Group
		g.SetLimit(s.cfg.Concurrency)
		for _, n := range batch {
			g.Go(func() (err error) {
				defer func() {
					if r := recover(); r != nil {
						err = fmt.Errorf("panic processing %s: %v", n.identifier, r)
					}
				}()
				s.processNode(runCtx, st, agg, f, n)
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return err
		}

		if runCtx.Err() != nil {
			if err := ctx.Err(); err != nil {
				return err
			}
			st.recordError("", fmt.Sprintf("import exceeded maximum duration of %s", s.cfg.MaxDuration))
			break
		}
	}

	s.deferUnvisited(ctx, f)
	log.WithField("processed", f.processedCount()).Debug("Crawl finished")
	return nil
}

// processNode visits one node: aggregate, upsert, link to whoever reached it,
// then offer its relatives and siblings to the frontier.
func (s *Service) processNode(ctx context.Context, st *runState, agg *aggregator.Aggregator, f *frontier, n *node) {
	if ctx.Err() != nil || !f.reserve(n) {
		return
	}
	if count := st.processed(); count%s.cfg.CheckpointEvery == 0 {
		s.checkpoint(ctx, st)
	}

	cand := n.candidate
	res, err := agg.Aggregate(ctx, aggregator.Context{
		Identifier: n.identifier,
		FullName:   cand.Name,
		BirthDate:  cand.BirthDate,
		MotherName: cand.MotherName,
		FatherName: cand.FatherName,
	})
	if err != nil {
		st.recordError(n.identifier, errors.Message(err))
		f.fail(n)
		return
	}
	if !res.Found() && res.Person.FullName == "" {
		st.recordError(n.identifier, fmt.Sprintf("person %s not found", n.identifier))
		f.fail(n)
		return
	}

	person, err := s.resolvePerson(ctx, st, res.Person, res.Detail, !res.Found())
	if err != nil {
		st.recordError(label(res.Person), errors.Message(err))
		f.fail(n)
		return
	}
	if n.level == 0 {
		st.setPersonID(person.ID)
	}

	for _, l := range f.complete(n, person) {
		if _, err := s.link(ctx, st, l.from, person, l.relation, l.fallback, l.confidence); err != nil {
			st.recordError(label(person.PersonFields), errors.Message(err))
		}
	}

	for _, rel := range res.Relatives {
		s.follow(ctx, st, f, person, rel, n.level+1)
	}
	var siblings []*models.Person
	for _, sib := range res.Siblings {
		if p := s.follow(ctx, st, f, person, sib, n.level); p != nil {
			siblings = append(siblings, p)
		}
	}
	s.linkSiblings(ctx, st, siblings)
}

// follow handles one relative of a processed node. Relatives with an
// identifier go through the frontier; the others become persons right away
// when within depth. It returns the relative's person when it already exists.
func (s *Service) follow(ctx context.Context, st *runState, f *frontier, from *models.Person, cand models.DiscoveryCandidate, level int) *models.Person {
	if !cand.Known || !cand.Type.IsValid() {
		st.recordError(candidateLabel(cand), "unknown relation code "+quote(cand.RelationCode))
		return nil
	}

	if !cand.HasIdentifier() {
		if level > f.maxDepth {
			return nil
		}
		return s.attach(ctx, st, from, cand)
	}

	link := pendingLink{from: from, relation: cand.Type, fallback: cand.Fallback, confidence: cand.Confidence}
	outcome, person := f.offer(cand, level, link)
	if outcome != offerDone {
		return nil
	}
	if _, err := s.link(ctx, st, from, person, cand.Type, cand.Fallback, cand.Confidence); err != nil {
		st.recordError(candidateLabel(cand), errors.Message(err))
	}
	return person
}

// linkSiblings connects every pair of already persisted co-siblings.
func (s *Service) linkSiblings(ctx context.Context, st *runState, siblings []*models.Person) {
	for i := 0; i < len(siblings); i++ {
		for j := i + 1; j < len(siblings); j++ {
			if _, err := s.link(ctx, st, siblings[i], siblings[j], models.RelationshipSibling, false, 0); err != nil {
				st.recordError(label(siblings[j].PersonFields), errors.Message(err))
			}
		}
	}
}

// deferUnvisited pushes identifiers left over by an exhausted budget onto the
// warm-up queue, shallowest first.
func (s *Service) deferUnvisited(ctx context.Context, f *frontier) {
	if s.deps.Warmup == nil {
		return
	}
	leftovers := f.leftovers()
	if len(leftovers) == 0 {
		return
	}

	ctx = context.WithoutCancel(ctx)
	for id, level := range leftovers {
		if err := s.deps.Warmup.EnqueuePriority(ctx, id, float64(level)); err != nil {
			s.logger.WithContext(ctx).WithError(err).WithField("identifier", id).Warn("Failed to queue identifier for warm-up")
		}
	}
	s.logger.WithContext(ctx).Infof("Queued %d unvisited identifiers for warm-up", len(leftovers))
}
