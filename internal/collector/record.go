// File: internal/collector/record.go
package collector

import "time"

// BookmarkRecord is one collected bookmark item.
//
// A record is immutable once appended to the state, except for the two
// enrichment fields (ResolvedLinks, ArticleText) which are populated during
// the post-scroll enrichment pass. During that pass concurrent workers only
// ever touch disjoint fields of disjoint records, so no locking is needed.
type BookmarkRecord struct {
	// ID is the stable dedup key, derived from the permalink's last path
	// segment (the status id).
	ID string

	// Timestamp is nil when the rendered value could not be parsed.
	Timestamp *time.Time

	AuthorName   string
	AuthorHandle string
	Text         string
	Permalink    string

	// ImageRefs are image resource URLs rewritten to their original-quality
	// variant, duplicates within the item suppressed.
	ImageRefs []string

	// RawLinks are outbound link URLs in encounter order across the three
	// link zones (inline text, preview card, quoted item).
	RawLinks []string

	// ArticleRef is the URL of an associated native article, empty for most
	// records. It never appears in RawLinks.
	ArticleRef string

	// ResolvedLinks always has the same length and order as RawLinks; a
	// failed resolution keeps the raw URL in its slot.
	ResolvedLinks []string

	// ArticleText is the article body, present only when ArticleRef is set,
	// article fetching is enabled, and the fetch succeeded.
	ArticleText string
}

// State is the process-wide collection state for one run. It is created once,
// mutated only by the collection loop's single control flow during the scroll
// phase, and handed to the exporter read-only at the end.
type State struct {
	// Records preserves discovery order.
	Records []*BookmarkRecord

	// Iterations counts completed scroll iterations (query + extract cycles).
	Iterations int

	// EmptyScrolls is the current run of consecutive scrolls yielding zero
	// new records.
	EmptyScrolls int

	// Cancelled records whether the scroll phase ended on a cancel request.
	Cancelled bool

	seen map[string]struct{}
}

// NewState returns an empty collection state.
func NewState() *State {
	return &State{seen: make(map[string]struct{})}
}

// Add appends rec unless its id has been seen before. It reports whether the
// record was appended.
func (s *State) Add(rec *BookmarkRecord) bool {
	if _, ok := s.seen[rec.ID]; ok {
		return false
	}
	s.seen[rec.ID] = struct{}{}
	s.Records = append(s.Records, rec)
	return true
}

// Seen reports whether an id is already in the accumulator.
func (s *State) Seen(id string) bool {
	_, ok := s.seen[id]
	return ok
}

// Len returns the number of collected records.
func (s *State) Len() int { return len(s.Records) }
