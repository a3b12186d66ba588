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

type RunRepository struct {
	mu   sync.RWMutex
	runs map[string]*models.ImportRun
	now  func() time.Time
}

func NewRunRepository() *RunRepository {
	return &RunRepository{
		runs: make(map[string]*models.ImportRun),
		now:  func() time.Time { return time.Now().UTC() },
	}
}

func cloneRun(run *models.ImportRun) *models.ImportRun {
	c := *run
	c.Errors = append([]models.RunError(nil), run.Errors...)
	return &c
}

func (r *RunRepository) CreateRun(_ context.Context, run *models.ImportRun) (*models.ImportRun, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	created := cloneRun(run)
	if created.ID == "" {
		created.ID = uuid.New().String()
	}
	created.Status = models.RunStatusPending
	created.CreatedAt = r.now()
	r.runs[created.ID] = created
	return cloneRun(created), nil
}

// update applies fn to an unfinalized run.
func (r *RunRepository) update(id string, fn func(run *models.ImportRun)) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	run, ok := r.runs[id]
	if !ok {
		return httperror.NewHTTPError(http.StatusNotFound, "import run not found")
	}
	if run.Status.IsTerminal() {
		return httperror.NewHTTPError(http.StatusConflict, "import run already finalized")
	}
	fn(run)
	return nil
}

func (r *RunRepository) MarkProcessing(_ context.Context, id string) error {
	return r.update(id, func(run *models.ImportRun) {
		now := r.now()
		run.Status = models.RunStatusProcessing
		run.StartedAt = &now
	})
}

func (r *RunRepository) UpdateProgress(_ context.Context, id string, counters models.Counters, errs []models.RunError) error {
	return r.update(id, func(run *models.ImportRun) {
		run.Counters = counters
		run.Errors = append([]models.RunError(nil), errs...)
	})
}

func (r *RunRepository) MarkCompleted(_ context.Context, id string, summary models.RunSummary) error {
	return r.update(id, func(run *models.ImportRun) {
		now := r.now()
		run.Status = summary.Status
		run.Counters = summary.Counters
		run.Errors = append([]models.RunError(nil), summary.Errors...)
		run.PersonID = summary.PersonID
		run.CompletedAt = &now
	})
}

func (r *RunRepository) MarkFailed(_ context.Context, id, message string, summary models.RunSummary) error {
	return r.update(id, func(run *models.ImportRun) {
		now := r.now()
		run.Status = models.RunStatusFailed
		run.FailureMessage = message
		run.Counters = summary.Counters
		run.Errors = append([]models.RunError(nil), summary.Errors...)
		run.PersonID = summary.PersonID
		run.CompletedAt = &now
	})
}

func (r *RunRepository) FindRecentSimilar(_ context.Context, key string, within time.Duration) (*models.ImportRun, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	cutoff := r.now().Add(-within)
	var latest *models.ImportRun
	for _, run := range r.runs {
		if run.Key != key || run.Status != models.RunStatusSuccess || run.CompletedAt == nil {
			continue
		}
		if run.CompletedAt.Before(cutoff) {
			continue
		}
		if latest == nil || run.CompletedAt.After(*latest.CompletedAt) {
			latest = run
		}
	}
	if latest == nil {
		return nil, nil
	}
	return cloneRun(latest), nil
}

func (r *RunRepository) Get(_ context.Context, id string) (*models.ImportRun, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	run, ok := r.runs[id]
	if !ok {
		return nil, httperror.NewHTTPError(http.StatusNotFound, "import run not found")
	}
	return cloneRun(run), nil
}
