package search

import (
	"context"
	"net/http"
	"net/url"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/sync/errgroup"

	"github.com/fenimore/stuff/internal/domain"
)

// Outcome is the per-item result of an enrichment batch. A non-nil Err
// means the listing comes back exactly as it went in.
type Outcome struct {
	Listing domain.Listing
	Err     error
}

// Enricher fetches listing detail pages with a bounded worker pool and a
// per-host rate limit. Re-enriching simply overwrites ImageURLs and
// Coordinates with whatever the latest fetch found.
type Enricher struct {
	workers int
	client  *http.Client
	limiter *HostLimiter
}

// NewEnricher bounds the pool at workers (minimum 1). A non-nil proxy routes
// the detail fetches through it.
func NewEnricher(workers int, proxy *url.URL) *Enricher {
	if workers < 1 {
		workers = 1
	}
	return &Enricher{
		workers: workers,
		client:  newClient(proxy),
		limiter: NewHostLimiter(2.0, 4),
	}
}

// Enrich fetches every listing's detail page concurrently and returns one
// Outcome per input, in input order; each outcome carries its listing so
// callers can also correlate by URL. A single failed fetch or parse never
// fails the batch, and Enrich does not return until every worker has
// reported.
func (e *Enricher) Enrich(ctx context.Context, listings []domain.Listing) []Outcome {
	out := make([]Outcome, len(listings))

	var g errgroup.Group
	g.SetLimit(e.workers)
	for i, l := range listings {
		i, l := i, l
		g.Go(func() error {
			out[i] = e.enrichOne(ctx, l)
			return nil
		})
	}
	_ = g.Wait()
	return out
}

func (e *Enricher) enrichOne(ctx context.Context, l domain.Listing) Outcome {
	if err := e.limiter.WaitURL(ctx, l.URL); err != nil {
		return Outcome{Listing: l, Err: &FetchError{URL: l.URL, Err: err}}
	}

	res, err := get(ctx, e.client, l.URL)
	if err != nil {
		return Outcome{Listing: l, Err: err}
	}
	defer res.Body.Close()

	doc, err := goquery.NewDocumentFromReader(res.Body)
	if err != nil {
		return Outcome{Listing: l, Err: &ParseError{Field: "document", Reason: err.Error()}}
	}
	ParseDetails(&l, doc)
	return Outcome{Listing: l}
}
