package search

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/fenimore/stuff/internal/domain"
)

const userAgent = "stuff/1.0 (+https://github.com/fenimore/stuff)"

// FetchError is a transport-level failure: connection trouble or an HTTP
// error status. The main search fetch surfaces it so the controller can
// abort only the current poll; enrichment isolates it per item.
type FetchError struct {
	URL string
	Err error
}

func (e *FetchError) Error() string { return fmt.Sprintf("fetch %s: %v", e.URL, e.Err) }
func (e *FetchError) Unwrap() error { return e.Err }

// Search fetches and parses one query's result page.
type Search struct {
	Query  Query
	client *http.Client
}

// New builds a Search with its own HTTP client. A non-nil proxy routes all
// outbound requests through it.
func New(q Query, proxy *url.URL) *Search {
	return &Search{Query: q, client: newClient(proxy)}
}

func newClient(proxy *url.URL) *http.Client {
	tr := &http.Transport{Proxy: http.ProxyFromEnvironment}
	if proxy != nil {
		tr.Proxy = http.ProxyURL(proxy)
	}
	return &http.Client{Timeout: 30 * time.Second, Transport: tr}
}

// Inventory runs the search and returns the listings that parsed plus one
// error per row that did not. A transport failure returns a *FetchError and
// no listings.
func (s *Search) Inventory(ctx context.Context) ([]domain.Listing, []error, error) {
	u, err := s.Query.URL()
	if err != nil {
		return nil, nil, err
	}

	res, err := get(ctx, s.client, u)
	if err != nil {
		return nil, nil, err
	}
	defer res.Body.Close()

	listings, parseErrs := ParseInventory(res.Body, string(s.Query.Region))
	return listings, parseErrs, nil
}

func get(ctx context.Context, client *http.Client, u string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, &FetchError{URL: u, Err: err}
	}
	req.Header.Set("User-Agent", userAgent)

	res, err := client.Do(req)
	if err != nil {
		return nil, &FetchError{URL: u, Err: err}
	}
	if res.StatusCode >= 400 {
		res.Body.Close()
		return nil, &FetchError{URL: u, Err: fmt.Errorf("status %d", res.StatusCode)}
	}
	return res, nil
}
