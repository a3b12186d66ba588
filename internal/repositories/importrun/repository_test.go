package importrun

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/oak/internal/repositories/pgtest"
	"github.com/Ramsey-B/oak/pkg/models"
)

func TestRepository_Lifecycle(t *testing.T) {
	repo := NewRepository(pgtest.Open(t), pgtest.Logger())
	ctx := context.Background()
	key := "discovery:" + uuid.New().String()

	run, err := repo.CreateRun(ctx, &models.ImportRun{
		Kind:           models.RunKindDiscovery,
		Key:            key,
		FamilyTreeID:   pgtest.TreeID(),
		SeedIdentifier: "52998224725",
	})
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusPending, run.Status)
	assert.Empty(t, run.Errors)

	require.NoError(t, repo.MarkProcessing(ctx, run.ID))
	require.NoError(t, repo.UpdateProgress(ctx, run.ID, models.Counters{PersonsCreated: 1}, nil))

	recent, err := repo.FindRecentSimilar(ctx, key, time.Hour)
	require.NoError(t, err)
	assert.Nil(t, recent, "an unfinished run is never reused")

	summary := models.RunSummary{
		Status:   models.RunStatusPartial,
		Counters: models.Counters{PersonsCreated: 2, RelationshipsCreated: 2},
		Errors:   []models.RunError{{Person: "FULANO", Error: "unknown relation code"}},
		PersonID: uuid.New().String(),
	}
	require.NoError(t, repo.MarkCompleted(ctx, run.ID, summary))

	stored, err := repo.Get(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusPartial, stored.Status)
	assert.Equal(t, summary.Counters, stored.Counters)
	assert.Equal(t, summary.Errors, stored.Errors)
	assert.NotNil(t, stored.StartedAt)
	assert.NotNil(t, stored.CompletedAt)

	err = repo.MarkFailed(ctx, run.ID, "late", models.RunSummary{})
	assert.Equal(t, http.StatusConflict, httperror.GetStatusCode(err))

	err = repo.MarkProcessing(ctx, uuid.New().String())
	assert.Equal(t, http.StatusNotFound, httperror.GetStatusCode(err))
}

func TestRepository_FindRecentSimilar(t *testing.T) {
	repo := NewRepository(pgtest.Open(t), pgtest.Logger())
	ctx := context.Background()
	key := "full_tree:" + uuid.New().String()

	run, err := repo.CreateRun(ctx, &models.ImportRun{Kind: models.RunKindFullTree, Key: key, FamilyTreeID: pgtest.TreeID()})
	require.NoError(t, err)
	require.NoError(t, repo.MarkProcessing(ctx, run.ID))
	require.NoError(t, repo.MarkCompleted(ctx, run.ID, models.RunSummary{
		Status:   models.RunStatusSuccess,
		Counters: models.Counters{PersonsCreated: 3},
	}))

	recent, err := repo.FindRecentSimilar(ctx, key, time.Hour)
	require.NoError(t, err)
	require.NotNil(t, recent)
	assert.Equal(t, run.ID, recent.ID)
	assert.Equal(t, 3, recent.Counters.PersonsCreated)

	other, err := repo.FindRecentSimilar(ctx, key+":other", time.Hour)
	require.NoError(t, err)
	assert.Nil(t, other)
}
