package crawler

// GridPartitioner tiles the search space as language crossed with star range
// crossed with creation window, then appends one fallback per language and
// star range with the window omitted. Fallbacks overlap their primaries on
// purpose; the deduplicator absorbs the overlap, and rows created outside
// every configured window are only reachable through them.
type GridPartitioner struct {
	languages []string
	stars     []StarRange
	created   []TimeWindow
}

// NewGridPartitioner builds a partitioner over the given dimension lists.
func NewGridPartitioner(languages []string, stars []StarRange, created []TimeWindow) *GridPartitioner {
	return &GridPartitioner{
		languages: append([]string(nil), languages...),
		stars:     append([]StarRange(nil), stars...),
		created:   append([]TimeWindow(nil), created...),
	}
}

// Generate returns every predicate in deterministic order: all primaries
// first (language outermost, window innermost), then all fallbacks in the
// same language and star-range order. Generate is pure; two calls on equal
// dimensions yield identical slices.
func (g *GridPartitioner) Generate() []SearchPredicate {
	out := make([]SearchPredicate, 0, len(g.languages)*len(g.stars)*(len(g.created)+1))
	for _, lang := range g.languages {
		for _, sr := range g.stars {
			for _, w := range g.created {
				out = append(out, NewPredicate(lang, sr, w))
			}
		}
	}
	for _, lang := range g.languages {
		for _, sr := range g.stars {
			out = append(out, NewPredicate(lang, sr, TimeWindow{}))
		}
	}
	return out
}
