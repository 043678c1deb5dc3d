package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
)

// SearchResultPage is one aggregated answer. It is consumed once by a Feed
// (or written to a client) and then discarded.
type SearchResultPage struct {
	OK             bool          `json:"ok"`
	Items          []ImageRecord `json:"items"`
	TotalAvailable int           `json:"totalAvailable"`
	SourceUsed     string        `json:"sourceUsed,omitempty"`
	ErrorReason    string        `json:"errorReason,omitempty"`
	Query          Query         `json:"query"`
}

type Searcher interface {
	Search(ctx context.Context, q Query) SearchResultPage
}

type AggregatorOptions struct {
	MultiSource bool
	Timeout     time.Duration
	PageSize    int
}

// Aggregator asks its providers in fixed priority order and returns the
// first non-empty page. A provider that failed or came back empty is asked
// again from scratch on the next call.
type Aggregator struct {
	apis    []ImageSearcher
	opts    AggregatorOptions
	log     *log.Logger
	metrics *Metrics
}

func NewAggregator(apis []ImageSearcher, opts AggregatorOptions, logger *log.Logger, metrics *Metrics) *Aggregator {
	if opts.PageSize <= 0 {
		opts.PageSize = PageSize
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	return &Aggregator{
		apis:    apis,
		opts:    opts,
		log:     logger.WithPrefix("search"),
		metrics: metrics,
	}
}

// Search never fails: exhaustion is reported as OK=false with no items.
func (agg *Aggregator) Search(ctx context.Context, q Query) SearchResultPage {
	if err := q.Validate(); err != nil {
		agg.log.Warn("rejected query", "err", err)
		return SearchResultPage{Items: []ImageRecord{}, ErrorReason: err.Error(), Query: q}
	}

	for i, api := range agg.apis {
		if i > 0 && !agg.opts.MultiSource {
			break
		}
		if ctx.Err() != nil {
			break
		}
		items, total, err := agg.searchOne(ctx, api, q)
		switch {
		case err == nil:
			agg.metrics.providerCall(api.Type(), "ok")
			agg.metrics.search(api.Type())
			if i > 0 {
				agg.log.Info("answered by fallback provider", "provider", api.Type(), "term", q.Term, "page", q.Page)
			}
			return SearchResultPage{
				OK:             true,
				Items:          items,
				TotalAvailable: total,
				SourceUsed:     api.Type(),
				Query:          q,
			}
		case errors.Is(err, ErrEmptyResult):
			agg.metrics.providerCall(api.Type(), "empty")
			agg.log.Debug("provider returned nothing", "provider", api.Type(), "term", q.Term, "page", q.Page)
		default:
			agg.metrics.providerCall(api.Type(), "unavailable")
			agg.log.Warn("provider failed", "provider", api.Type(), "err", err)
		}
	}

	agg.metrics.search("none")
	agg.log.Warn("search exhausted", "term", q.Term, "category", q.Category, "page", q.Page)
	return SearchResultPage{
		Items:       []ImageRecord{},
		ErrorReason: ErrAllProvidersExhausted.Error(),
		Query:       q,
	}
}

// searchOne maps the client page onto the provider's own page size and
// stitches the slices together.
func (agg *Aggregator) searchOne(ctx context.Context, api ImageSearcher, q Query) ([]ImageRecord, int, error) {
	ctx, cancel := context.WithTimeout(ctx, agg.opts.Timeout)
	defer cancel()

	var (
		items []ImageRecord
		total int
	)
	for _, src := range GetResPages(q.Page, agg.opts.PageSize, api.PageSize()) {
		res, err := agg.callProvider(ctx, api, src.Page, q)
		if err != nil {
			if len(items) > 0 {
				agg.log.Warn("partial page", "provider", api.Type(), "page", src.String(), "err", err)
				break
			}
			return nil, 0, err
		}
		if res.total > total {
			total = res.total
		}
		first := min(len(res.images), src.First)
		last := min(len(res.images), src.Last)
		items = append(items, res.images[first:last]...)
		if last < src.Last {
			// short provider page: nothing further along
			break
		}
	}
	if len(items) == 0 {
		return nil, 0, fmt.Errorf("%s: %w", api.Type(), ErrEmptyResult)
	}
	return items, total, nil
}

func (agg *Aggregator) callProvider(ctx context.Context, api ImageSearcher, page int, q Query) (res ImageSearchResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %s panicked: %v", ErrProviderUnavailable, api.Type(), r)
		}
	}()
	res = api.Search(ctx, page, q)
	if res.err != nil {
		if errors.Is(res.err, ErrProviderUnavailable) {
			return res, res.err
		}
		return res, fmt.Errorf("%w: %s: %v", ErrProviderUnavailable, api.Type(), res.err)
	}
	if ctx.Err() != nil {
		return res, fmt.Errorf("%w: %s: %v", ErrProviderUnavailable, api.Type(), ctx.Err())
	}
	return res, nil
}
