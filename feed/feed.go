// Package feed fetches and parses RSS/Atom sources into a
// dialect-independent representation.
package feed

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"
	"github.com/rs/zerolog"

	"github.com/caldera-labs/plume/httpclient"
)

const (
	FetchTimeout   = 10 * time.Second
	MaxRedirects   = 3
	MaxBodyBytes   = 10 * 1024 * 1024
	UserAgentValue = "plume-aggregator/1.0 (+https://plume.invalid/bot)"
)

// Entry is a single feed item normalized across RSS/Atom dialects.
type Entry struct {
	GUID        string
	URL         string
	Title       string
	Author      string
	Content     string
	PublishedAt *time.Time
}

// Result is everything the ingestor needs from one feed fetch.
type Result struct {
	FeedTitle string
	SiteURL   string
	Entries   []Entry
}

// Fetcher performs the HTTP GET and RSS/Atom decode for a feed URL.
type Fetcher struct {
	pool   *httpclient.Pool
	parser *gofeed.Parser
	logger zerolog.Logger
}

// NewFetcher builds a Fetcher sharing the given connection pool.
func NewFetcher(pool *httpclient.Pool, logger zerolog.Logger) *Fetcher {
	return &Fetcher{
		pool:   pool,
		parser: gofeed.NewParser(),
		logger: logger.With().Str("component", "feed_fetcher").Logger(),
	}
}

// Fetch retrieves and parses feedURL, following at most MaxRedirects
// manual hops, enforcing the size cap, and rejecting status >= 400.
func (f *Fetcher) Fetch(ctx context.Context, feedURL string) (*Result, error) {
	body, err := f.get(ctx, feedURL)
	if err != nil {
		return nil, err
	}
	defer body.Close()

	parsed, err := f.parser.Parse(body)
	if err != nil {
		return nil, fmt.Errorf("feed: parse %s: %w", feedURL, err)
	}
	if len(parsed.Items) == 0 && parsed.Title == "" {
		return nil, fmt.Errorf("feed: %s decoded with zero entries and no title", feedURL)
	}

	result := &Result{
		FeedTitle: parsed.Title,
		SiteURL:   parsed.Link,
	}
	for _, item := range parsed.Items {
		result.Entries = append(result.Entries, toEntry(item))
	}
	return result, nil
}

func toEntry(item *gofeed.Item) Entry {
	e := Entry{
		GUID:   firstNonEmpty(item.GUID),
		URL:    item.Link,
		Title:  item.Title,
		Author: authorName(item),
	}
	e.Content = preferredContent(item)
	e.PublishedAt = preferredDate(item)
	return e
}

func authorName(item *gofeed.Item) string {
	if item.Author != nil && item.Author.Name != "" {
		return item.Author.Name
	}
	if len(item.Authors) > 0 && item.Authors[0].Name != "" {
		return item.Authors[0].Name
	}
	return ""
}

// preferredContent picks the fuller body over the teaser: gofeed
// normalizes both RSS <description> and Atom <content>/<summary> into
// item.Content and item.Description, so content wins when present.
func preferredContent(item *gofeed.Item) string {
	if item.Content != "" {
		return item.Content
	}
	if item.Description != "" {
		return item.Description
	}
	return ""
}

// preferredDate returns the first valid date among published and
// updated — gofeed already parses these into item.PublishedParsed and
// item.UpdatedParsed. No created date is consulted.
func preferredDate(item *gofeed.Item) *time.Time {
	if item.PublishedParsed != nil {
		return item.PublishedParsed
	}
	if item.UpdatedParsed != nil {
		return item.UpdatedParsed
	}
	return nil
}

func firstNonEmpty(s string) string { return strings.TrimSpace(s) }

// get performs a manual-redirect GET: at most MaxRedirects hops, each
// checked for "safety" (same host, or an http→https upgrade on the
// same host). Unsafe redirects are still followed (never silently
// dropped) but logged for human review.
func (f *Fetcher) get(ctx context.Context, feedURL string) (io.ReadCloser, error) {
	client := f.pool.Client("feed_fetch", FetchTimeout)

	current := feedURL
	for hop := 0; hop <= MaxRedirects; hop++ {
		if err := f.pool.Wait(ctx); err != nil {
			return nil, fmt.Errorf("feed: rate limit wait for %s: %w", current, err)
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, current, nil)
		if err != nil {
			return nil, fmt.Errorf("feed: build request for %s: %w", current, err)
		}
		req.Header.Set("User-Agent", UserAgentValue)

		resp, err := client.Do(req)
		if err != nil {
			return nil, fmt.Errorf("feed: GET %s: %w", current, err)
		}

		switch {
		case resp.StatusCode >= 300 && resp.StatusCode < 400:
			loc := resp.Header.Get("Location")
			resp.Body.Close()
			if loc == "" {
				return nil, fmt.Errorf("feed: redirect from %s with no Location header", current)
			}
			next, err := resolveRedirect(current, loc)
			if err != nil {
				return nil, err
			}
			if resp.StatusCode == http.StatusMovedPermanently {
				f.logger.Info().Str("from", current).Str("to", next).Msg("permanent redirect observed, review feed URL")
			}
			if !isSafeRedirect(current, next) {
				f.logger.Warn().Str("from", current).Str("to", next).Msg("unsafe cross-host redirect followed")
			}
			if hop == MaxRedirects {
				return nil, fmt.Errorf("feed: exceeded %d redirects fetching %s", MaxRedirects, feedURL)
			}
			current = next
			continue
		case resp.StatusCode >= 400:
			resp.Body.Close()
			return nil, fmt.Errorf("feed: %s returned status %d", current, resp.StatusCode)
		default:
			capped, err := httpclient.ReadCapped(resp, MaxBodyBytes)
			resp.Body.Close()
			if err != nil {
				return nil, fmt.Errorf("feed: reading body of %s: %w", current, err)
			}
			return io.NopCloser(strings.NewReader(string(capped))), nil
		}
	}
	return nil, fmt.Errorf("feed: exceeded %d redirects fetching %s", MaxRedirects, feedURL)
}

func resolveRedirect(base, location string) (string, error) {
	baseURL, err := http.NewRequest(http.MethodGet, base, nil)
	if err != nil {
		return "", err
	}
	ref, err := baseURL.URL.Parse(location)
	if err != nil {
		return "", fmt.Errorf("feed: invalid redirect target %q: %w", location, err)
	}
	return ref.String(), nil
}

func isSafeRedirect(from, to string) bool {
	fu, err1 := http.NewRequest(http.MethodGet, from, nil)
	tu, err2 := http.NewRequest(http.MethodGet, to, nil)
	if err1 != nil || err2 != nil {
		return false
	}
	return httpclient.IsSameHostOrUpgrade(fu.URL.Scheme, fu.URL.Hostname(), tu.URL.Scheme, tu.URL.Hostname())
}
