package crawler

import "sync"

// SeenSet is a run-scoped Deduplicator backed by a plain set. An entire
// batch is checked and marked under one lock, so two workers holding pages
// that share an ID can never both see it as fresh.
type SeenSet struct {
	mu   sync.Mutex
	seen map[string]struct{}
}

// NewSeenSet returns an empty set. One SeenSet serves exactly one run;
// concurrent runs must not share it.
func NewSeenSet() *SeenSet {
	return &SeenSet{seen: make(map[string]struct{})}
}

// MarkAndFilter returns the records whose IDs have not been seen before, in
// their original order, and marks them seen. Records with an empty ID are
// dropped.
func (s *SeenSet) MarkAndFilter(records []Record) []Record {
	if len(records) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	fresh := make([]Record, 0, len(records))
	for _, rec := range records {
		if rec.ID == "" {
			continue
		}
		if _, ok := s.seen[rec.ID]; ok {
			continue
		}
		s.seen[rec.ID] = struct{}{}
		fresh = append(fresh, rec)
	}
	return fresh
}

// Len reports how many distinct IDs have been marked.
func (s *SeenSet) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.seen)
}
