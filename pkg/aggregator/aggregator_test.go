package aggregator

import (
	"context"
	"testing"

	"github.com/Gobusters/ectolinq"
	"github.com/Gobusters/ectologger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/oak/pkg/dates"
	"github.com/Ramsey-B/oak/pkg/errors"
	"github.com/Ramsey-B/oak/pkg/mapper"
	"github.com/Ramsey-B/oak/pkg/models"
	"github.com/Ramsey-B/oak/pkg/relationships"
)

const (
	joaoID    = "52998224725"
	joseID    = "11144477735"
	antonioID = "22233344405"
	anaID     = "33322211169"
	mariaID   = "45678912364"
)

type fakeLookup struct {
	records  map[string]map[string]any
	searches map[string][]map[string]any
}

func (f *fakeLookup) LookupByIdentifier(_ context.Context, id string) (models.PersonRecord, error) {
	data, ok := f.records[id]
	if !ok {
		return models.PersonRecord{}, errors.NewUpstream(404, "CPF não encontrado")
	}
	return models.NewPersonRecord(data), nil
}

func (f *fakeLookup) LookupByParentName(_ context.Context, role models.ParentRole, name string) ([]models.PersonRecord, error) {
	var out []models.PersonRecord
	for _, data := range f.searches[string(role)+":"+name] {
		out = append(out, models.NewPersonRecord(data))
	}
	return out, nil
}

func family() *fakeLookup {
	joao := map[string]any{
		"cpf": joaoID, "nome": "JOAO DA SILVA", "nascimento": "01/01/1980", "sexo": "M",
		"mae": "MARIA DA SILVA", "pai": "JOSE DA SILVA",
		"parentes": []any{map[string]any{"cpf": joseID, "nome": "JOSE DA SILVA", "vinculo": "PAI"}},
	}
	ana := map[string]any{
		"cpf": anaID, "nome": "ANA DA SILVA", "nascimento": "15/06/1983",
		"mae": "MARIA DA SILVA", "pai": "JOSE DA SILVA",
		"parentes": []any{map[string]any{"cpf": mariaID, "nome": "MARIA DA SILVA", "vinculo": "MAE"}},
	}
	pedro := map[string]any{
		"nome": "PEDRO SOUZA", "nascimento": "10/10/2016",
		"mae": "MARIA DA SILVA", "pai": "CARLOS SOUZA",
	}
	return &fakeLookup{
		records: map[string]map[string]any{
			joaoID: joao,
			joseID: {
				"cpf": joseID, "nome": "JOSE DA SILVA", "nascimento": "02/02/1955",
				"parentes": []any{
					map[string]any{"cpf": joaoID, "nome": "JOAO DA SILVA", "vinculo": "FILHO"},
					map[string]any{"cpf": antonioID, "nome": "ANTONIO DA SILVA", "vinculo": "PAI"},
				},
			},
		},
		searches: map[string][]map[string]any{
			"father:JOSE DA SILVA":  {joao, ana},
			"mother:MARIA DA SILVA": {ana, pedro},
		},
	}
}

func newAggregator(l *fakeLookup) *Aggregator {
	logger := ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
	return New(l, mapper.NewDefault(), relationships.NewInferrer(relationships.Options{}), DefaultOptions(), logger)
}

func relativeTypes(res *Result) map[string]models.RelationshipType {
	out := map[string]models.RelationshipType{}
	for _, r := range res.Relatives {
		out[r.Identifier] = r.Type
	}
	return out
}

func TestAggregate_FullPipeline(t *testing.T) {
	res, err := newAggregator(family()).Aggregate(context.Background(), Context{Identifier: "529.982.247-25"})
	require.NoError(t, err)

	assert.True(t, res.Found())
	assert.Equal(t, "JOAO DA SILVA", res.Person.FullName)
	assert.Equal(t, joaoID, res.Person.Identifier)

	assert.Equal(t, map[string]models.RelationshipType{
		joseID:    models.RelationshipParent,
		antonioID: models.RelationshipGrandparent,
		mariaID:   models.RelationshipParent,
	}, relativeTypes(res))

	maria := ectolinq.Find(res.Relatives, func(c models.DiscoveryCandidate) bool { return c.Identifier == mariaID })
	assert.Equal(t, models.SourceReverse, maria.Source)
	assert.Equal(t, 90, maria.Confidence)

	jose := ectolinq.Find(res.Relatives, func(c models.DiscoveryCandidate) bool { return c.Identifier == joseID })
	assert.NotNil(t, jose.Record, "expanded relative keeps its fetched record")

	require.Len(t, res.Siblings, 1)
	assert.Equal(t, anaID, res.Siblings[0].Identifier)
	assert.Equal(t, 100, res.Siblings[0].Confidence)
	assert.Equal(t, models.SourceFatherSearch, res.Siblings[0].Source)

	assert.Equal(t, []string{
		models.SourceIdentifier,
		models.SourceFatherSearch,
		models.SourceMotherSearch,
		models.SourceExpansion,
		models.SourceReverse,
	}, res.SourcesUsed)
	assert.Equal(t, 87, res.DataQuality.Score)
	assert.Equal(t, QualityHigh, res.DataQuality.Level)
	assert.Empty(t, res.Warnings)
}

func TestAggregate_NotFoundTolerated(t *testing.T) {
	l := family()
	delete(l.records, joaoID)

	res, err := newAggregator(l).Aggregate(context.Background(), Context{
		Identifier: joaoID,
		FullName:   "JOAO DA SILVA",
		BirthDate:  dates.ParsePtr("01/01/1980"),
		MotherName: "MARIA DA SILVA",
		FatherName: "JOSE DA SILVA",
	})
	require.NoError(t, err)

	assert.False(t, res.Found())
	require.Len(t, res.Warnings, 1)
	assert.Contains(t, res.Warnings[0], "not found")
	require.Len(t, res.Siblings, 1, "subject excluded from its own siblings")
	assert.Equal(t, anaID, res.Siblings[0].Identifier)
}

func TestAggregate_InvalidIdentifierAborts(t *testing.T) {
	_, err := newAggregator(family()).Aggregate(context.Background(), Context{Identifier: "52998224700"})
	assert.ErrorIs(t, err, errors.ErrInvalidInput)
}

func TestAggregate_UnknownRelationCodeKeptAsUnknown(t *testing.T) {
	l := &fakeLookup{records: map[string]map[string]any{
		joaoID: {
			"cpf": joaoID, "nome": "JOAO DA SILVA",
			"parentes": []any{map[string]any{"cpf": joseID, "nome": "FULANO", "vinculo": "VIZINHO"}},
		},
	}}

	res, err := newAggregator(l).Aggregate(context.Background(), Context{Identifier: joaoID})
	require.NoError(t, err)
	require.Len(t, res.Relatives, 1)
	assert.False(t, res.Relatives[0].Known)
	assert.Equal(t, models.RelationshipUnknown, res.Relatives[0].Type)
}

func TestReconcileMother(t *testing.T) {
	results := []models.PersonFields{
		{MotherName: "MARIA APARECIDA DA SILVA"},
		{MotherName: "MARIA APARECIDA DA SILVA"},
		{MotherName: "MARIA APARECIDA SILVA"},
		{MotherName: "JOANA PEREIRA"},
		{MotherName: "JOANA PEREIRA"},
		{MotherName: "JOANA PEREIRA"},
	}

	tests := []struct {
		name  string
		known string
		want  string
	}{
		{name: "unknown mother picks most frequent", known: "", want: "JOANA PEREIRA"},
		{name: "known mother restricts to similar names", known: "MARIA APARECIDA DA SILVA", want: "MARIA APARECIDA DA SILVA"},
		{name: "no similar name", known: "BEATRIZ LIMA", want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, reconcileMother(tt.known, results))
		})
	}
}

func TestQuality(t *testing.T) {
	full := models.PersonFields{
		Identifier: joaoID,
		FullName:   "JOAO",
		BirthDate:  dates.ParsePtr("01/01/1980"),
		Gender:     models.GenderMale,
		MotherName: "MARIA",
		FatherName: "JOSE",
	}

	tests := []struct {
		name      string
		person    models.PersonFields
		relatives int
		siblings  int
		sources   int
		score     int
		level     QualityLevel
		missing   []string
	}{
		{name: "complete", person: full, relatives: 10, siblings: 3, sources: 2, score: 100, level: QualityHigh, missing: []string{}},
		{name: "fields only", person: full, sources: 1, score: 60, level: QualityMedium, missing: []string{}},
		{name: "name only", person: models.PersonFields{FullName: "JOAO"}, relatives: 1, score: 14, level: QualityLow,
			missing: []string{"identifier", "birth_date", "gender", "mother_name", "father_name"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := Quality(tt.person, tt.relatives, tt.siblings, tt.sources)
			assert.Equal(t, tt.score, q.Score)
			assert.Equal(t, tt.level, q.Level)
			assert.Equal(t, tt.missing, q.MissingFields)
		})
	}
}
