package portfolio

import (
	"errors"
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidate(t *testing.T) {
	good := Source{ID: "a", Latitude: 41, Longitude: -78, EmissionKgh: 0.4}
	require.NoError(t, Validate([]Source{good}))

	for name, s := range map[string]Source{
		"empty id":      {Latitude: 41, Longitude: -78},
		"nan latitude":  {ID: "b", Latitude: math.NaN(), Longitude: -78},
		"bad longitude": {ID: "b", Latitude: 41, Longitude: 200},
		"negative":      {ID: "b", Latitude: 41, Longitude: -78, EmissionKgh: -1},
	} {
		err := Validate([]Source{s})
		assert.True(t, errors.Is(err, ErrInvalidSource), name)
	}

	err := Validate([]Source{good, good})
	assert.ErrorIs(t, err, ErrInvalidSource)
}

func TestTotalEmissionOrderIndependent(t *testing.T) {
	s := []Source{
		{ID: "a", EmissionKgh: 1e16},
		{ID: "b", EmissionKgh: 1},
		{ID: "c", EmissionKgh: 3e-17},
		{ID: "d", EmissionKgh: 0.1},
		{ID: "e", EmissionKgh: 0.2},
	}
	forward := TotalEmission(s)
	reversed := make([]Source, len(s))
	for i := range s {
		reversed[len(s)-1-i] = s[i]
	}
	assert.Equal(t, forward, TotalEmission(reversed))
	assert.Equal(t, 0.0, TotalEmission(nil))
}

func TestReadCSV(t *testing.T) {
	in := `Well_ID,Longitude,Latitude,mean_ch4_kgh
w1,-78.1,41.2,0.5
w2,-78.2,41.3,1.5
`
	sources, err := ReadCSV(strings.NewReader(in))
	require.NoError(t, err)
	require.Len(t, sources, 2)
	assert.Equal(t, Source{ID: "w1", Latitude: 41.2, Longitude: -78.1, EmissionKgh: 0.5}, sources[0])
	assert.InDelta(t, 2.0, TotalEmission(sources), 1e-12)
}

func TestReadCSVRejectsBadRows(t *testing.T) {
	_, err := ReadCSV(strings.NewReader("latitude,longitude,emission_kgh\n41,-78,-2\n"))
	assert.ErrorIs(t, err, ErrInvalidSource)

	_, err = ReadCSV(strings.NewReader("latitude,longitude,emission_kgh\nabc,-78,2\n"))
	assert.ErrorIs(t, err, ErrInvalidSource)

	_, err = ReadCSV(strings.NewReader("x,y\n1,2\n"))
	assert.ErrorIs(t, err, ErrInvalidSource)
}
