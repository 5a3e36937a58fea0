package search

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
)

// HTTPProvider adapts a generic JSON web-search endpoint to Provider.
// spec.md §6 deliberately leaves the search API unspecified beyond
// "title/link/snippet + opaque pagination"; this adapter picks the
// simplest concrete shape satisfying that contract — a numeric page
// index and a next_page presence flag — since any real provider's exact
// pagination token format is outside the core's contract and belongs in
// a provider-specific adapter, not this one.
type HTTPProvider struct {
	Endpoint   string
	APIKey     string
	HTTPClient *http.Client
}

type httpSearchResponse struct {
	Results []struct {
		Title   string `json:"title"`
		Link    string `json:"link"`
		Snippet string `json:"snippet"`
	} `json:"results"`
	NextPage string `json:"next_page"`
}

// Search implements Provider. page is a zero-based page counter; the
// first request omits the page parameter, subsequent requests send the
// page number as page. next_page is read only as a presence flag; its
// value is never sent back to the endpoint.
func (p *HTTPProvider) Search(ctx context.Context, query string, page int) ([]Hit, bool, error) {
	client := p.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}

	q := url.Values{}
	q.Set("q", query)
	if page > 0 {
		q.Set("page", strconv.Itoa(page))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.Endpoint+"?"+q.Encode(), nil)
	if err != nil {
		return nil, false, fmt.Errorf("%w: build request: %v", ErrTransientIO, err)
	}
	if p.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.APIKey)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, false, fmt.Errorf("%w: %v", ErrTransientIO, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusTooManyRequests:
		return nil, false, ErrRateLimited
	case http.StatusPaymentRequired, http.StatusForbidden:
		return nil, false, ErrQuotaExhausted
	}
	if resp.StatusCode >= 500 {
		return nil, false, fmt.Errorf("%w: status %d", ErrTransientIO, resp.StatusCode)
	}
	if resp.StatusCode >= 400 {
		return nil, false, fmt.Errorf("search provider: status %d", resp.StatusCode)
	}

	var parsed httpSearchResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, false, fmt.Errorf("%w: decode response: %v", ErrTransientIO, err)
	}

	hits := make([]Hit, 0, len(parsed.Results))
	for _, r := range parsed.Results {
		hits = append(hits, Hit{Title: r.Title, Link: r.Link, Snippet: r.Snippet})
	}
	return hits, parsed.NextPage != "", nil
}
