package main

import (
	"context"
	"slices"
	"sync"
)

type FetchMode int

const (
	// Replace starts a new query lineage at page 1.
	Replace FetchMode = iota
	// Append loads the next page of the current lineage.
	Append
)

func (m FetchMode) String() string {
	if m == Append {
		return "append"
	}
	return "replace"
}

// Ticket identifies one outstanding fetch. Results are applied only while the
// ticket's generation is still current.
type Ticket struct {
	gen   uint64
	mode  FetchMode
	query Query
}

func (t Ticket) Query() Query { return t.query }

type Snapshot struct {
	Query   Query         `json:"query"`
	Items   []ImageRecord `json:"items"`
	Page    int           `json:"page"`
	Total   int           `json:"totalAvailable"`
	HasMore bool          `json:"hasMore"`
	Source  string        `json:"sourceUsed,omitempty"`
	Loading bool          `json:"loading"`
}

// Feed is the pagination/append controller for one client view.
type Feed struct {
	mu         sync.Mutex
	pagination bool

	gen      uint64
	query    Query
	items    []ImageRecord
	page     int
	total    int
	hasMore  bool
	source   string
	inFlight bool
}

func NewFeed(pagination bool) *Feed {
	return &Feed{pagination: pagination}
}

// Begin registers a fetch. Replace always succeeds and supersedes anything
// in flight; Append needs a loaded lineage with more results and no other
// fetch outstanding.
func (f *Feed) Begin(q Query, mode FetchMode) (Ticket, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if mode == Replace {
		f.gen++
		f.query = q.WithPage(1)
		f.inFlight = true
		return Ticket{gen: f.gen, mode: Replace, query: f.query}, nil
	}

	if !f.pagination {
		return Ticket{}, ErrPaginationDisabled
	}
	if f.inFlight {
		return Ticket{}, ErrFetchInProgress
	}
	if f.page == 0 || !f.hasMore {
		return Ticket{}, ErrNoMoreResults
	}
	f.inFlight = true
	return Ticket{gen: f.gen, mode: Append, query: f.query.WithPage(f.page + 1)}, nil
}

// Apply merges page into the accumulated list. A result for a superseded
// lineage is dropped with ErrStaleResult and changes nothing.
func (f *Feed) Apply(t Ticket, page SearchResultPage) (Snapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if t.gen != f.gen || t.query.Key() != f.query.Key() {
		return f.snapshotLocked(), ErrStaleResult
	}
	f.inFlight = false

	if !page.OK {
		if t.mode == Replace || f.page == 0 {
			f.hasMore = false
		}
		return f.snapshotLocked(), nil
	}

	if t.mode == Replace {
		f.items = slices.Clone(page.Items)
	} else {
		f.items = append(f.items, page.Items...)
	}
	f.page = t.query.Page
	f.total = page.TotalAvailable
	f.source = page.SourceUsed
	if f.total > 0 {
		f.hasMore = len(f.items) < f.total && len(page.Items) > 0
	} else {
		f.hasMore = len(page.Items) > 0
	}
	return f.snapshotLocked(), nil
}

// Replace runs a new query through s and applies the first page.
func (f *Feed) Replace(ctx context.Context, s Searcher, q Query) (Snapshot, error) {
	t, err := f.Begin(q, Replace)
	if err != nil {
		return Snapshot{}, err
	}
	return f.Apply(t, s.Search(ctx, t.query))
}

// More loads the next page of the current query.
func (f *Feed) More(ctx context.Context, s Searcher) (Snapshot, error) {
	t, err := f.Begin(Query{}, Append)
	if err != nil {
		return f.Snapshot(), err
	}
	return f.Apply(t, s.Search(ctx, t.query))
}

func (f *Feed) Snapshot() Snapshot {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.snapshotLocked()
}

func (f *Feed) snapshotLocked() Snapshot {
	items := slices.Clone(f.items)
	if items == nil {
		items = []ImageRecord{}
	}
	return Snapshot{
		Query:   f.query.WithPage(max(f.page, 1)),
		Items:   items,
		Page:    f.page,
		Total:   f.total,
		HasMore: f.hasMore,
		Source:  f.source,
		Loading: f.inFlight,
	}
}
