package main

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := NewStore(filepath.Join(t.TempDir(), "cache.db"), discardLogger())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func makeImages(source string, n int) []ImageRecord {
	out := make([]ImageRecord, n)
	for i := range out {
		out[i] = ImageRecord{
			Id:         fmt.Sprintf("%s/%d", source, i),
			DisplayUrl: fmt.Sprintf("https://img.example/%s/%d.jpg", source, i),
			Width:      1920,
			Height:     1080,
			Source:     source,
		}
	}
	return out
}

// stubProvider serves images out of a fixed list, pageSize at a time.
type stubProvider struct {
	mu       sync.Mutex
	name     string
	pageSize int
	images   []ImageRecord
	total    int
	err      error
	block    bool
	panics   bool
	pages    []int
}

func (s *stubProvider) Type() string  { return s.name }
func (s *stubProvider) TTL() int      { return 60 }
func (s *stubProvider) PageSize() int { return s.pageSize }

func (s *stubProvider) Search(ctx context.Context, page int, query Query) ImageSearchResult {
	s.mu.Lock()
	s.pages = append(s.pages, page)
	s.mu.Unlock()
	if s.panics {
		panic("boom")
	}
	if s.block {
		<-ctx.Done()
		return ImageSearchResult{err: ctx.Err()}
	}
	if s.err != nil {
		return ImageSearchResult{err: s.err}
	}
	start := min(len(s.images), (page-1)*s.pageSize)
	end := min(len(s.images), start+s.pageSize)
	total := s.total
	if total == 0 {
		total = len(s.images)
	}
	return ImageSearchResult{total: total, images: s.images[start:end]}
}

func (s *stubProvider) calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pages)
}

// searcherFunc adapts a function to the Searcher interface.
type searcherFunc func(ctx context.Context, q Query) SearchResultPage

func (f searcherFunc) Search(ctx context.Context, q Query) SearchResultPage { return f(ctx, q) }

func okPage(q Query, items []ImageRecord, total int) SearchResultPage {
	return SearchResultPage{OK: true, Items: items, TotalAvailable: total, SourceUsed: "stub", Query: q}
}
