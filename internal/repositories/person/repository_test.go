package person

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/oak/internal/repositories/pgtest"
	"github.com/Ramsey-B/oak/pkg/models"
)

func date(y int, m time.Month, d int) *time.Time {
	t := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	return &t
}

func TestRepository_FindOrCreate(t *testing.T) {
	repo := NewRepository(pgtest.Open(t), pgtest.Logger())
	ctx := context.Background()
	tree := pgtest.TreeID()

	first, created, err := repo.FindOrCreate(ctx, &models.Person{
		FamilyTreeID: tree,
		PersonFields: models.PersonFields{Identifier: "52998224725", FullName: "JOÃO DA SILVA", BirthDate: date(1980, 1, 1)},
	})
	require.NoError(t, err)
	assert.True(t, created)
	assert.NotEmpty(t, first.ID)

	again, created, err := repo.FindOrCreate(ctx, &models.Person{
		FamilyTreeID: tree,
		PersonFields: models.PersonFields{Identifier: "52998224725", FullName: "JOAO SILVA"},
	})
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.ID, again.ID)
	assert.Equal(t, "JOÃO DA SILVA", again.FullName)

	stub, created, err := repo.FindOrCreate(ctx, &models.Person{
		FamilyTreeID: tree,
		PersonFields: models.PersonFields{FullName: "Maria da Silva"},
		Stub:         true,
	})
	require.NoError(t, err)
	assert.True(t, created)

	sameStub, created, err := repo.FindOrCreate(ctx, &models.Person{
		FamilyTreeID: tree,
		PersonFields: models.PersonFields{FullName: "MARIA  DA SILVA"},
		Stub:         true,
	})
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, stub.ID, sameStub.ID)
}

func TestRepository_SaveAndSearch(t *testing.T) {
	repo := NewRepository(pgtest.Open(t), pgtest.Logger())
	ctx := context.Background()
	tree := pgtest.TreeID()

	p, _, err := repo.FindOrCreate(ctx, &models.Person{
		FamilyTreeID: tree,
		PersonFields: models.PersonFields{Identifier: "11144477735", FullName: "ANA PEREIRA"},
	})
	require.NoError(t, err)

	p.BirthDate = date(1990, 6, 15)
	p.MotherName = "ROSA PEREIRA"
	saved, err := repo.Save(ctx, p)
	require.NoError(t, err)
	assert.Equal(t, "ROSA PEREIRA", saved.MotherName)
	assert.True(t, models.SameDay(p.BirthDate, saved.BirthDate))

	found, err := repo.Search(ctx, tree, "ana maria")
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, p.ID, found[0].ID)

	none, err := repo.Search(ctx, pgtest.TreeID(), "ana")
	require.NoError(t, err)
	assert.Empty(t, none)

	other, _, err := repo.FindOrCreate(ctx, &models.Person{
		FamilyTreeID: tree,
		PersonFields: models.PersonFields{Identifier: "12345678909", FullName: "ANA PEREIRA"},
	})
	require.NoError(t, err)
	other.Identifier = p.Identifier
	_, err = repo.Save(ctx, other)
	require.Error(t, err)
	assert.Equal(t, http.StatusConflict, httperror.GetStatusCode(err))
}

func TestRepository_Detail(t *testing.T) {
	repo := NewRepository(pgtest.Open(t), pgtest.Logger())
	ctx := context.Background()
	tree := pgtest.TreeID()

	p, _, err := repo.FindOrCreate(ctx, &models.Person{
		FamilyTreeID: tree,
		PersonFields: models.PersonFields{Identifier: "98765432100", FullName: "PEDRO ALVES"},
	})
	require.NoError(t, err)

	require.NoError(t, repo.SaveDetail(ctx, &models.PersonDetail{
		PersonID: p.ID,
		Fields:   models.DetailFields{Emails: []string{"pedro@example.com"}, City: "RECIFE"},
	}))
	require.NoError(t, repo.SaveDetail(ctx, &models.PersonDetail{
		PersonID: p.ID,
		Fields:   models.DetailFields{City: "OLINDA"},
	}))

	detail, err := repo.Detail(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, "OLINDA", detail.Fields.City)
	assert.Empty(t, detail.Fields.Emails)

	_, err = repo.FindByIdentifier(ctx, tree, "22233344405")
	assert.Equal(t, http.StatusNotFound, httperror.GetStatusCode(err))
}
