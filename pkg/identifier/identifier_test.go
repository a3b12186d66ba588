package identifier

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/oak/pkg/errors"
)

func TestIsValid(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  bool
	}{
		{name: "valid plain", input: "52998224725", want: true},
		{name: "valid formatted", input: "111.444.777-35", want: true},
		{name: "all identical", input: "11111111111", want: false},
		{name: "all zeros", input: "000.000.000-00", want: false},
		{name: "bad first check digit", input: "52998224735", want: false},
		{name: "bad second check digit", input: "52998224726", want: false},
		{name: "too short", input: "5299822472", want: false},
		{name: "too long", input: "529982247250", want: false},
		{name: "empty", input: "", want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsValid(tt.input))
		})
	}
}

func TestValidate(t *testing.T) {
	got, err := Validate("529.982.247-25")
	require.NoError(t, err)
	assert.Equal(t, "52998224725", got)

	_, err = Validate("529.982.247-00")
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrInvalidInput)

	_, err = Validate("123")
	assert.ErrorIs(t, err, errors.ErrInvalidInput)
}

func TestCheckDigit(t *testing.T) {
	assert.Equal(t, 2, CheckDigit("529982247"))
	assert.Equal(t, 5, CheckDigit("5299822472"))
}

func TestFormat(t *testing.T) {
	assert.Equal(t, "529.982.247-25", Format("52998224725"))
	assert.Equal(t, "abc", Format("abc"))
}

func TestNormalize(t *testing.T) {
	assert.Equal(t, "11144477735", Normalize(" 111.444.777-35 "))
}
