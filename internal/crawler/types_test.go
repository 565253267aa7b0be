package crawler

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseStarRange(t *testing.T) {
	t.Parallel()

	open, err := ParseStarRange(">10000")
	require.NoError(t, err)
	require.Equal(t, StarRange{Min: 10000}, open)
	require.Equal(t, "stars:>10000", open.Qualifier())

	closed, err := ParseStarRange("1000..9999")
	require.NoError(t, err)
	require.Equal(t, StarRange{Min: 1000, Max: 9999}, closed)
	require.Equal(t, "stars:1000..9999", closed.Qualifier())

	prefixed, err := ParseStarRange("stars:1..9")
	require.NoError(t, err)
	require.Equal(t, StarRange{Min: 1, Max: 9}, prefixed)

	_, err = ParseStarRange("10..5")
	require.ErrorContains(t, err, "max below min")
	_, err = ParseStarRange("lots")
	require.ErrorContains(t, err, "want")
	_, err = ParseStarRange(">many")
	require.Error(t, err)
}

func TestParseTimeWindow(t *testing.T) {
	t.Parallel()

	year, err := ParseTimeWindow("2024")
	require.NoError(t, err)
	require.Equal(t, TimeWindow{Year: 2024}, year)
	require.Equal(t, "created:2024-01-01..2024-12-31", year.Qualifier())

	before, err := ParseTimeWindow("<2016")
	require.NoError(t, err)
	require.Equal(t, TimeWindow{Year: 2016, Before: true}, before)
	require.Equal(t, "created:<2016-01-01", before.Qualifier())

	_, err = ParseTimeWindow("1999")
	require.ErrorContains(t, err, "year out of range")
	_, err = ParseTimeWindow("someday")
	require.Error(t, err)

	require.True(t, TimeWindow{}.IsZero())
	require.Empty(t, TimeWindow{}.Qualifier())
}

func TestNewPredicateRendersQuery(t *testing.T) {
	t.Parallel()

	primary := NewPredicate("Go", StarRange{Min: 1000, Max: 9999}, TimeWindow{Year: 2024})
	require.Equal(t, "language:Go stars:1000..9999 created:2024-01-01..2024-12-31", primary.Query)
	require.False(t, primary.Fallback())

	fallback := NewPredicate("Go", StarRange{Min: 10000}, TimeWindow{})
	require.Equal(t, "language:Go stars:>10000", fallback.Query)
	require.True(t, fallback.Fallback())
}
