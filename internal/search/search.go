// Package search implements the Search Client (spec.md §4.D): paginated
// web search with cross-query deduplication, a strict sequential rate
// budget, and typed retry/backoff semantics against a pluggable
// provider.
package search

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/samber/lo"
	"golang.org/x/time/rate"

	"github.com/fergidotcom/reference-refinement-sub003/internal/refstore"
)

// Typed errors surfaced to the Orchestrator (spec.md §4.D, §7).
var (
	ErrRateLimited    = errors.New("search_rate_limited")
	ErrQuotaExhausted = errors.New("search_quota_exhausted")
	ErrTransientIO    = errors.New("search_transient_io")
)

// Hit is one raw result returned by a Provider, before it is turned into
// a refstore.Candidate.
type Hit struct {
	Title   string
	Link    string
	Snippet string
}

// Provider is the external collaborator contract (spec.md §6): "any
// adapter satisfying search(query, n) -> [hit] suffices". A Provider
// performs exactly one page request per call; Client handles pagination.
type Provider interface {
	Search(ctx context.Context, query string, page int) (hits []Hit, hasMore bool, err error)
}

const (
	defaultPerQueryCap = 20
	defaultTimeout     = 10 * time.Second
)

// Client wraps a Provider with the rate, retry, pagination, and
// deduplication discipline spec.md §4.D requires.
type Client struct {
	provider Provider
	limiter  *rate.Limiter

	// PerQueryCap bounds the unique-URL union returned per query.
	PerQueryCap int
	// RequestTimeout bounds a single provider call.
	RequestTimeout time.Duration
	// InterReferenceDelay records the configured inter-reference delay.
	// The Client never sleeps it; the orchestrator sleeps the same
	// configured value from its own Config between references.
	InterReferenceDelay time.Duration
}

// NewClient builds a Client with the given provider and a sequential
// token bucket enforcing at least minIntervalMs between requests (spec.md
// §4.D: "minimum 1000 ms between search requests; never more than one in
// flight").
func NewClient(provider Provider, minIntervalMs int, interRefDelay time.Duration) *Client {
	if minIntervalMs <= 0 {
		minIntervalMs = 1000
	}
	return &Client{
		provider:            provider,
		limiter:             rate.NewLimiter(rate.Every(time.Duration(minIntervalMs)*time.Millisecond), 1),
		PerQueryCap:         defaultPerQueryCap,
		RequestTimeout:      defaultTimeout,
		InterReferenceDelay: interRefDelay,
	}
}

// Search executes query, paginating while the provider reports a further
// page (whether the previous page was full is not checked) and the
// running unique-URL union is below PerQueryCap, retrying transient
// failures with exponential backoff (1s/2s/4s, three attempts).
func (c *Client) Search(ctx context.Context, query string, queryIndex int) ([]refstore.Candidate, error) {
	limit := c.PerQueryCap
	if limit <= 0 {
		limit = defaultPerQueryCap
	}

	var out []refstore.Candidate
	page := 0
	for {
		if err := c.limiter.Wait(ctx); err != nil {
			return out, err
		}

		hits, hasMore, err := c.fetchPageWithRetry(ctx, query, page)
		if err != nil {
			if len(out) > 0 {
				// Partial results from earlier pages are still useful;
				// surface the error but let the caller decide.
				return out, err
			}
			return nil, err
		}

		for i, h := range hits {
			out = append(out, refstore.Candidate{
				URL:              h.Link,
				Title:            h.Title,
				Snippet:          h.Snippet,
				OriginatingQuery: query,
				RankWithinQuery:  i,
				QueryIndex:       queryIndex,
			})
		}
		out = dedupeCandidates(out)

		if !hasMore || len(hits) == 0 || len(out) >= limit {
			break
		}
		page++
	}

	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// fetchPageWithRetry issues one provider call, retrying transient I/O
// failures up to 3 times with exponential backoff (1s/2s/4s per spec.md
// §4.D). Rate-limit and quota errors are not retried here — rate limits
// are expected to clear on the next scheduled call (governed by the
// limiter above this), and quota exhaustion must surface immediately so
// the orchestrator can pause the run.
func (c *Client) fetchPageWithRetry(ctx context.Context, query string, page int) ([]Hit, bool, error) {
	var hits []Hit
	var hasMore bool

	reqCtx, cancel := context.WithTimeout(ctx, c.RequestTimeout)
	defer cancel()

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = time.Second
	policy.Multiplier = 2
	policy.RandomizationFactor = 0
	policy.MaxElapsedTime = 0
	withCtx := backoff.WithContext(backoff.WithMaxRetries(policy, 3), reqCtx)

	err := backoff.Retry(func() error {
		h, more, err := c.provider.Search(reqCtx, query, page)
		if err == nil {
			hits, hasMore = h, more
			return nil
		}
		if errors.Is(err, ErrQuotaExhausted) || errors.Is(err, ErrRateLimited) {
			return backoff.Permanent(err)
		}
		return fmt.Errorf("%w: %v", ErrTransientIO, err)
	}, withCtx)

	return hits, hasMore, err
}

// dedupeCandidates removes candidates whose normalized URL key was seen
// earlier in the slice, keeping first-seen order (spec.md §3, §5:
// "Candidate dedup order is defined by first-seen across the query
// list").
func dedupeCandidates(candidates []refstore.Candidate) []refstore.Candidate {
	return lo.UniqBy(candidates, func(c refstore.Candidate) string {
		return NormalizeURL(c.URL)
	})
}

// NormalizeURL produces the deduplication identity key: lowercase
// scheme+host, strips common tracking params, strips a trailing slash.
func NormalizeURL(raw string) string {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || u.Host == "" {
		return strings.ToLower(strings.TrimSuffix(strings.TrimSpace(raw), "/"))
	}

	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)

	q := u.Query()
	for _, tracking := range []string{"utm_source", "utm_medium", "utm_campaign", "utm_term", "utm_content", "gclid", "fbclid", "ref"} {
		q.Del(tracking)
	}
	u.RawQuery = q.Encode()
	u.Fragment = ""
	u.Path = strings.TrimSuffix(u.Path, "/")

	return u.String()
}
