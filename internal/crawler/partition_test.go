package crawler

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestGridPartitionerGeneratesFullGrid(t *testing.T) {
	t.Parallel()

	part := NewGridPartitioner(
		[]string{"Go", "Python"},
		[]StarRange{{Min: 10000}, {Min: 1000, Max: 9999}},
		[]TimeWindow{{Year: 2024}, {Year: 2016, Before: true}},
	)
	predicates := part.Generate()

	// 2 languages x 2 star ranges x (2 windows + 1 fallback).
	require.Len(t, predicates, 12)

	var primaries, fallbacks int
	for _, p := range predicates {
		if p.Fallback() {
			fallbacks++
		} else {
			primaries++
		}
	}
	require.Equal(t, 8, primaries)
	require.Equal(t, 4, fallbacks)

	require.Equal(t, "language:Go stars:>10000 created:2024-01-01..2024-12-31", predicates[0].Query)
	require.Equal(t, "language:Go stars:>10000 created:<2016-01-01", predicates[1].Query)
	require.Equal(t, "language:Go stars:1000..9999 created:2024-01-01..2024-12-31", predicates[2].Query)

	// Fallbacks come after every primary, in the same language order.
	require.Equal(t, "language:Go stars:>10000", predicates[8].Query)
	require.Equal(t, "language:Go stars:1000..9999", predicates[9].Query)
	require.Equal(t, "language:Python stars:>10000", predicates[10].Query)
	require.Equal(t, "language:Python stars:1000..9999", predicates[11].Query)
}

func TestGridPartitionerQueriesDistinct(t *testing.T) {
	t.Parallel()

	part := NewGridPartitioner(
		[]string{"Go", "Python", "Rust"},
		[]StarRange{{Min: 100, Max: 999}, {Min: 10, Max: 99}},
		[]TimeWindow{{Year: 2023}, {Year: 2022}, {Year: 2021}},
	)
	seen := make(map[string]struct{})
	for _, p := range part.Generate() {
		if _, dup := seen[p.Query]; dup {
			t.Fatalf("duplicate query generated: %s", p.Query)
		}
		seen[p.Query] = struct{}{}
	}
	require.Len(t, seen, 3*2*(3+1))
}

func TestGridPartitionerDeterministic(t *testing.T) {
	t.Parallel()

	part := NewGridPartitioner(
		[]string{"Go"},
		[]StarRange{{Min: 1, Max: 9}},
		[]TimeWindow{{Year: 2020}},
	)
	require.Equal(t, part.Generate(), part.Generate())
}

func TestGridPartitionerWithoutWindows(t *testing.T) {
	t.Parallel()

	part := NewGridPartitioner([]string{"Go"}, []StarRange{{Min: 10}}, nil)
	predicates := part.Generate()
	require.Len(t, predicates, 1)
	require.True(t, predicates[0].Fallback())
	require.Equal(t, "language:Go stars:>10", predicates[0].Query)
}

func TestGridPartitionerCopiesDimensions(t *testing.T) {
	t.Parallel()

	languages := []string{"Go"}
	part := NewGridPartitioner(languages, []StarRange{{Min: 10}}, nil)
	languages[0] = "COBOL"
	require.Equal(t, "Go", part.Generate()[0].Language)
}
