package importrun

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"
	"github.com/huandu/go-sqlbuilder"

	"github.com/Ramsey-B/oak/pkg/database"
	"github.com/Ramsey-B/oak/pkg/models"
	"github.com/Ramsey-B/oak/pkg/tracing"
)

const importRunsTable = "import_runs"

var runColumns = []string{
	"id",
	"kind",
	"key",
	"family_tree_id",
	"actor_id",
	"seed_identifier",
	"status",
	"counters",
	"errors",
	"failure_message",
	"person_id",
	"started_at",
	"completed_at",
	"created_at",
}

// row is the stored shape of an import run.
type row struct {
	ID             string                            `db:"id"`
	Kind           models.RunKind                    `db:"kind"`
	Key            string                            `db:"key"`
	FamilyTreeID   string                            `db:"family_tree_id"`
	ActorID        string                            `db:"actor_id"`
	SeedIdentifier string                            `db:"seed_identifier"`
	Status         models.RunStatus                  `db:"status"`
	Counters       database.JSONB[models.Counters]   `db:"counters"`
	Errors         database.JSONB[[]models.RunError] `db:"errors"`
	FailureMessage string                            `db:"failure_message"`
	PersonID       string                            `db:"person_id"`
	StartedAt      *time.Time                        `db:"started_at"`
	CompletedAt    *time.Time                        `db:"completed_at"`
	CreatedAt      time.Time                         `db:"created_at"`
}

func (r row) toModel() *models.ImportRun {
	errs := r.Errors.GetValue()
	if errs == nil {
		errs = []models.RunError{}
	}
	return &models.ImportRun{
		ID:             r.ID,
		Kind:           r.Kind,
		Key:            r.Key,
		FamilyTreeID:   r.FamilyTreeID,
		ActorID:        r.ActorID,
		SeedIdentifier: r.SeedIdentifier,
		Status:         r.Status,
		Counters:       r.Counters.GetValue(),
		Errors:         errs,
		FailureMessage: r.FailureMessage,
		PersonID:       r.PersonID,
		StartedAt:      r.StartedAt,
		CompletedAt:    r.CompletedAt,
		CreatedAt:      r.CreatedAt,
	}
}

func nonNil(errs []models.RunError) []models.RunError {
	if errs == nil {
		return []models.RunError{}
	}
	return errs
}

// Repository manages import_runs persistence. Once a run reaches a terminal
// status it can no longer be updated.
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{db: db, logger: logger}
}

func (r *Repository) CreateRun(ctx context.Context, run *models.ImportRun) (*models.ImportRun, error) {
	ctx, span := tracing.StartSpan(ctx, "importrun.Repository.CreateRun")
	defer span.End()

	id := run.ID
	if id == "" {
		id = uuid.New().String()
	}

	ib := sqlbuilder.PostgreSQL.NewInsertBuilder()
	ib.InsertInto(importRunsTable)
	ib.Cols("id", "kind", "key", "family_tree_id", "actor_id", "seed_identifier", "status", "counters", "errors", "created_at")
	ib.Values(
		id,
		run.Kind,
		run.Key,
		run.FamilyTreeID,
		run.ActorID,
		run.SeedIdentifier,
		models.RunStatusPending,
		database.NewJSONB(models.Counters{}),
		database.NewJSONB([]models.RunError{}),
		sqlbuilder.Raw("NOW()"),
	)
	ib.Returning(runColumns...)

	query, args := ib.Build()
	var out row
	if err := r.db.Executor(ctx).GetContext(ctx, &out, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithField("key", run.Key).Error("Failed to create import run")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to create import run")
	}

	r.logger.WithContext(ctx).WithField("run_id", out.ID).Debugf("Created %s", importRunsTable)
	return out.toModel(), nil
}

// update applies the assignments to a run that is not finalized yet.
func (r *Repository) update(ctx context.Context, id string, assign func(ub *sqlbuilder.UpdateBuilder) []string) error {
	ub := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	ub.Update(importRunsTable)
	ub.Set(assign(ub)...)
	ub.Where(
		ub.Equal("id", id),
		ub.In("status", models.RunStatusPending, models.RunStatusProcessing),
	)

	query, args := ub.Build()
	result, err := r.db.Executor(ctx).ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithField("run_id", id).Error("Failed to update import run")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to update import run")
	}

	rows, _ := result.RowsAffected()
	if rows > 0 {
		return nil
	}
	if _, err := r.Get(ctx, id); err != nil {
		return err
	}
	return httperror.NewHTTPErrorf(http.StatusConflict, "import run %s already finalized", id)
}

func (r *Repository) MarkProcessing(ctx context.Context, id string) error {
	ctx, span := tracing.StartSpan(ctx, "importrun.Repository.MarkProcessing")
	defer span.End()

	return r.update(ctx, id, func(ub *sqlbuilder.UpdateBuilder) []string {
		return []string{
			ub.Assign("status", models.RunStatusProcessing),
			ub.Assign("started_at", time.Now().UTC()),
		}
	})
}

// UpdateProgress checkpoints counters and errors without changing the status.
func (r *Repository) UpdateProgress(ctx context.Context, id string, counters models.Counters, errs []models.RunError) error {
	ctx, span := tracing.StartSpan(ctx, "importrun.Repository.UpdateProgress")
	defer span.End()

	return r.update(ctx, id, func(ub *sqlbuilder.UpdateBuilder) []string {
		return []string{
			ub.Assign("counters", database.NewJSONB(counters)),
			ub.Assign("errors", database.NewJSONB(nonNil(errs))),
		}
	})
}

func (r *Repository) MarkCompleted(ctx context.Context, id string, summary models.RunSummary) error {
	ctx, span := tracing.StartSpan(ctx, "importrun.Repository.MarkCompleted")
	defer span.End()

	return r.update(ctx, id, func(ub *sqlbuilder.UpdateBuilder) []string {
		return []string{
			ub.Assign("status", summary.Status),
			ub.Assign("counters", database.NewJSONB(summary.Counters)),
			ub.Assign("errors", database.NewJSONB(nonNil(summary.Errors))),
			ub.Assign("person_id", summary.PersonID),
			ub.Assign("completed_at", time.Now().UTC()),
		}
	})
}

func (r *Repository) MarkFailed(ctx context.Context, id, message string, summary models.RunSummary) error {
	ctx, span := tracing.StartSpan(ctx, "importrun.Repository.MarkFailed")
	defer span.End()

	return r.update(ctx, id, func(ub *sqlbuilder.UpdateBuilder) []string {
		return []string{
			ub.Assign("status", models.RunStatusFailed),
			ub.Assign("failure_message", message),
			ub.Assign("counters", database.NewJSONB(summary.Counters)),
			ub.Assign("errors", database.NewJSONB(nonNil(summary.Errors))),
			ub.Assign("person_id", summary.PersonID),
			ub.Assign("completed_at", time.Now().UTC()),
		}
	})
}

// FindRecentSimilar returns the latest successful run with key completed
// within the window, or nil.
func (r *Repository) FindRecentSimilar(ctx context.Context, key string, within time.Duration) (*models.ImportRun, error) {
	ctx, span := tracing.StartSpan(ctx, "importrun.Repository.FindRecentSimilar")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(runColumns...)
	sb.From(importRunsTable)
	sb.Where(
		sb.Equal("key", key),
		sb.Equal("status", models.RunStatusSuccess),
		sb.GreaterEqualThan("completed_at", time.Now().UTC().Add(-within)),
	)
	sb.OrderBy("completed_at").Desc()
	sb.Limit(1)

	query, args := sb.Build()
	var out row
	err := r.db.Executor(ctx).GetContext(ctx, &out, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithField("key", key).Error("Failed to find recent import run")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to find recent import run")
	}
	return out.toModel(), nil
}

func (r *Repository) Get(ctx context.Context, id string) (*models.ImportRun, error) {
	ctx, span := tracing.StartSpan(ctx, "importrun.Repository.Get")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(runColumns...)
	sb.From(importRunsTable)
	sb.Where(sb.Equal("id", id))

	query, args := sb.Build()
	var out row
	err := r.db.Executor(ctx).GetContext(ctx, &out, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, httperror.NewHTTPErrorf(http.StatusNotFound, "import run %s does not exist", id)
	}
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithField("run_id", id).Error("Failed to get import run")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get import run")
	}
	return out.toModel(), nil
}
