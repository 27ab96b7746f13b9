// Package stub provides an in-memory feed.Source for tests.
package stub

import (
	"context"
	"sort"
	"sync"

	"solana-wallet-analytics/internal/domain"
	"solana-wallet-analytics/internal/feed"
)

// Source serves records per feed kind, filtered to the query window and paged.
type Source struct {
	mu      sync.Mutex
	records map[domain.FeedKind][]domain.RawSwap
	// Err, when set, is returned by every call.
	Err     error
	Queries []feed.Query
}

var _ feed.Source = (*Source)(nil)

// NewSource creates an empty source.
func NewSource() *Source {
	return &Source{records: make(map[domain.FeedKind][]domain.RawSwap)}
}

// Add appends records to a feed.
func (s *Source) Add(kind domain.FeedKind, records ...domain.RawSwap) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[kind] = append(s.records[kind], records...)
}

// FetchTradeWindow implements feed.Source.
func (s *Source) FetchTradeWindow(_ context.Context, q feed.Query) (*feed.Page, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.Queries = append(s.Queries, q)
	if s.Err != nil {
		return nil, s.Err
	}

	var matched []domain.RawSwap
	for _, r := range s.records[q.Kind] {
		if !r.BlockTimestamp.Before(q.Start) && r.BlockTimestamp.Before(q.End) {
			matched = append(matched, r)
		}
	}
	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].BlockTimestamp.Before(matched[j].BlockTimestamp)
	})

	page := &feed.Page{Total: len(matched)}
	if q.Offset < len(matched) {
		end := q.Offset + q.Limit
		if q.Limit <= 0 || end > len(matched) {
			end = len(matched)
		}
		page.Records = append(page.Records, matched[q.Offset:end]...)
	}
	return page, nil
}

// QueryCount returns the number of calls made so far.
func (s *Source) QueryCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.Queries)
}
