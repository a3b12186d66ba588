package dates

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/oak/pkg/models"
)

func year(y int) *time.Time {
	t := time.Date(y, time.June, 1, 0, 0, 0, 0, time.UTC)
	return &t
}

func TestParse(t *testing.T) {
	tests := []struct {
		input string
		want  time.Time
	}{
		{input: "15/03/1980", want: time.Date(1980, 3, 15, 0, 0, 0, 0, time.UTC)},
		{input: "1980-03-15", want: time.Date(1980, 3, 15, 0, 0, 0, 0, time.UTC)},
		{input: "1980-03-15T00:00:00Z", want: time.Date(1980, 3, 15, 0, 0, 0, 0, time.UTC)},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := Parse(tt.input)
			require.NoError(t, err)
			assert.True(t, tt.want.Equal(got))
		})
	}

	_, err := Parse("SEM INFORMAÇÃO")
	assert.Error(t, err)
	assert.Nil(t, ParsePtr(""))
}

func TestValidateParentChild(t *testing.T) {
	tests := []struct {
		name          string
		parent, child *time.Time
		valid         bool
	}{
		{name: "typical", parent: year(1950), child: year(1980), valid: true},
		{name: "too young", parent: year(1970), child: year(1980), valid: false},
		{name: "too old", parent: year(1900), child: year(1980), valid: false},
		{name: "reversed", parent: year(1990), child: year(1960), valid: false},
		{name: "missing parent", parent: nil, child: year(1980), valid: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := ValidateParentChild(tt.parent, tt.child)
			assert.Equal(t, tt.valid, res.IsValid)
			if !tt.valid {
				assert.NotEmpty(t, res.Reason)
			}
		})
	}
}

func TestValidateMissingDataNeverRejects(t *testing.T) {
	for _, typ := range models.RelationshipTypes() {
		res := ValidateForType(typ, nil, year(1980))
		assert.True(t, res.IsValid, typ)
		assert.NotEmpty(t, res.Reason, typ)
		assert.Nil(t, res.AgeDifferenceYears)
	}
}

func TestValidateForType(t *testing.T) {
	assert.True(t, ValidateForType(models.RelationshipParent, year(1980), year(1950)).IsValid)
	assert.False(t, ValidateForType(models.RelationshipParent, year(1950), year(1980)).IsValid)
	assert.True(t, ValidateForType(models.RelationshipGrandchild, year(1930), year(1990)).IsValid)
	assert.False(t, ValidateForType(models.RelationshipGrandparent, year(1980), year(1960)).IsValid)
	assert.True(t, ValidateForType(models.RelationshipSibling, year(1980), year(1999)).IsValid)
	assert.False(t, ValidateForType(models.RelationshipSibling, year(1950), year(1990)).IsValid)
	assert.False(t, ValidateForType(models.RelationshipSpouse, year(1940), year(1980)).IsValid)
	assert.True(t, ValidateForType(models.RelationshipCousin, year(1900), year(2000)).IsValid)
}
