// Package extract pulls the main article text out of a page URL using a
// readability pass, with a curl-impersonate fallback for
// Cloudflare-challenged pages.
package extract

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/url"
	"os/exec"
	"regexp"
	"strings"
	"time"

	"github.com/go-shiori/go-readability"
	"github.com/rs/zerolog"

	"github.com/caldera-labs/plume/cache"
	"github.com/caldera-labs/plume/httpclient"
	"github.com/caldera-labs/plume/sanitize"
)

const (
	FetchTimeout      = 15 * time.Second
	MaxRedirects      = 5
	MaxBodyBytes      = 5 * 1024 * 1024
	CurlImpersonateTO = 35 * time.Second
	minArticleLen     = 100
	maxAppealMatches  = 2
	UserAgentValue    = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36"
)

// Result is the tagged extraction outcome: either a title/content pair
// with OK set, or an Error describing why extraction failed.
type Result struct {
	Title   string
	Content string
	OK      bool
	Error   string
}

var nonArticleClassPatterns = regexp.MustCompile(
	`(?i)class="[^"]*(donation|cookie|newsletter|modal|overlay|popup)[^"]*"[^>]*>.*?</(div|section|aside)>`,
)

var appealPhrases = []*regexp.Regexp{
	regexp.MustCompile(`(?i)please (disable|turn off) (your )?ad.?block`),
	regexp.MustCompile(`(?i)enable javascript to (view|continue)`),
	regexp.MustCompile(`(?i)we value your privacy`),
	regexp.MustCompile(`(?i)support (our|independent) journalism`),
	regexp.MustCompile(`(?i)sign up for our newsletter`),
}

var cloudflareMarkers = []*regexp.Regexp{
	regexp.MustCompile(`(?i)just a moment`),
	regexp.MustCompile(`(?i)checking your browser before accessing`),
	regexp.MustCompile(`(?i)cf-browser-verification`),
	regexp.MustCompile(`(?i)challenge-platform`),
}

// Extractor owns the HTTP client and optional curl-impersonate binary
// used for Cloudflare-challenged pages.
type Extractor struct {
	pool            *httpclient.Pool
	cache           *cache.Cache
	logger          zerolog.Logger
	impersonatePath string // resolved path to a curl-impersonate-like binary, or "" if unavailable
}

// NewExtractor builds an Extractor. impersonateBinary names the
// subprocess to invoke for the Cloudflare fallback (e.g. "curl_chrome124");
// if it cannot be found on PATH the fallback is silently unavailable.
// pageCache is consulted before every fetch and populated after every
// successful extraction; a disabled cache makes both steps no-ops.
func NewExtractor(pool *httpclient.Pool, pageCache *cache.Cache, logger zerolog.Logger, impersonateBinary string) *Extractor {
	path, _ := exec.LookPath(impersonateBinary)
	return &Extractor{
		pool:            pool,
		cache:           pageCache,
		logger:          logger.With().Str("component", "extractor").Logger(),
		impersonatePath: path,
	}
}

// Extract fetches pageURL and returns its main article text, sanitized
// (without truncation). A Cloudflare challenge triggers the
// curl-impersonate fallback when available. A cache hit for pageURL
// skips the network fetch and readability pass entirely.
func (e *Extractor) Extract(ctx context.Context, pageURL string) Result {
	if e.cache != nil {
		if content, hit := e.cache.GetFullContent(ctx, pageCacheKey(pageURL)); hit {
			return Result{Content: content, OK: true}
		}
	}

	result := e.extractUncached(ctx, pageURL)
	if result.OK && e.cache != nil {
		e.cache.SetFullContent(ctx, pageCacheKey(pageURL), result.Content)
	}
	return result
}

func pageCacheKey(pageURL string) string { return "url:" + pageURL }

func (e *Extractor) extractUncached(ctx context.Context, pageURL string) Result {
	body, contentType, status, err := e.fetch(ctx, pageURL)
	if err != nil {
		return Result{Error: err.Error()}
	}

	if isCloudflareChallenge(status, body) {
		if e.impersonatePath == "" {
			return Result{Error: "cloudflare challenge detected and no impersonate binary available"}
		}
		fallbackBody, err := e.runImpersonate(ctx, pageURL)
		if err != nil {
			return Result{Error: fmt.Sprintf("cloudflare fallback failed: %v", err)}
		}
		if isJSChallenge(fallbackBody) {
			return Result{Error: "cloudflare js challenge persisted after impersonate fallback"}
		}
		body = fallbackBody
	} else if status >= 400 {
		return Result{Error: fmt.Sprintf("extract: %s returned status %d", pageURL, status)}
	}

	if !strings.Contains(strings.ToLower(contentType), "html") && contentType != "" {
		return Result{Error: fmt.Sprintf("extract: unsupported content-type %q", contentType)}
	}

	stripped := stripNonArticleNoise(body)

	parsed, err := url.Parse(pageURL)
	if err != nil {
		return Result{Error: fmt.Sprintf("extract: invalid page URL: %v", err)}
	}
	article, err := readability.FromReader(strings.NewReader(stripped), parsed)
	if err != nil {
		return Result{Error: fmt.Sprintf("extract: readability failed: %v", err)}
	}

	content := sanitize.Sanitize(article.Content, false)
	plain := sanitize.ExtractText(content)
	if len(plain) < minArticleLen {
		return Result{Error: "extract: extracted article too short"}
	}
	if countAppealMatches(plain) >= maxAppealMatches {
		return Result{Error: "extract: extracted content looks like an appeal/paywall page"}
	}

	return Result{Title: article.Title, Content: content, OK: true}
}

func (e *Extractor) fetch(ctx context.Context, pageURL string) (body string, contentType string, status int, err error) {
	client := e.pool.Client("full_content_extract", FetchTimeout)

	current := pageURL
	for hop := 0; hop <= MaxRedirects; hop++ {
		if werr := e.pool.Wait(ctx); werr != nil {
			return "", "", 0, fmt.Errorf("extract: rate limit wait for %s: %w", current, werr)
		}
		req, rerr := http.NewRequestWithContext(ctx, http.MethodGet, current, nil)
		if rerr != nil {
			return "", "", 0, fmt.Errorf("extract: build request for %s: %w", current, rerr)
		}
		req.Header.Set("User-Agent", UserAgentValue)
		req.Header.Set("Accept", "text/html,application/xhtml+xml")

		resp, derr := client.Do(req)
		if derr != nil {
			return "", "", 0, fmt.Errorf("extract: GET %s: %w", current, derr)
		}

		if resp.StatusCode >= 300 && resp.StatusCode < 400 {
			loc := resp.Header.Get("Location")
			resp.Body.Close()
			if loc == "" || hop == MaxRedirects {
				return "", "", resp.StatusCode, fmt.Errorf("extract: unresolved redirect from %s", current)
			}
			next, rerr := resolveRedirect(current, loc)
			if rerr != nil {
				return "", "", 0, rerr
			}
			current = next
			continue
		}

		ct := resp.Header.Get("Content-Type")
		raw, rerr := httpclient.ReadCapped(resp, MaxBodyBytes)
		resp.Body.Close()
		if rerr != nil {
			return "", "", resp.StatusCode, fmt.Errorf("extract: reading body of %s: %w", current, rerr)
		}
		return string(raw), ct, resp.StatusCode, nil
	}
	return "", "", 0, fmt.Errorf("extract: exceeded %d redirects fetching %s", MaxRedirects, pageURL)
}

func resolveRedirect(base, location string) (string, error) {
	baseURL, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("extract: invalid base URL %q: %w", base, err)
	}
	ref, err := baseURL.Parse(location)
	if err != nil {
		return "", fmt.Errorf("extract: invalid redirect target %q: %w", location, err)
	}
	return ref.String(), nil
}

func stripNonArticleNoise(html string) string {
	return nonArticleClassPatterns.ReplaceAllString(html, "")
}

func countAppealMatches(text string) int {
	n := 0
	for _, re := range appealPhrases {
		if re.MatchString(text) {
			n++
		}
	}
	return n
}

// isCloudflareChallenge reports a 403/503, or a 200 whose body carries
// a "just a moment"-style challenge marker.
func isCloudflareChallenge(status int, body string) bool {
	if status == 403 || status == 503 {
		return true
	}
	if status != 200 {
		return false
	}
	return isJSChallenge(body)
}

func isJSChallenge(body string) bool {
	lower := strings.ToLower(body)
	for _, re := range cloudflareMarkers {
		if re.MatchString(lower) {
			return true
		}
	}
	return false
}

// runImpersonate shells out to a TLS-fingerprint-impersonating curl-like
// binary as a fallback when the normal fetch hits a Cloudflare challenge.
func (e *Extractor) runImpersonate(ctx context.Context, pageURL string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, CurlImpersonateTO)
	defer cancel()

	cmd := exec.CommandContext(ctx, e.impersonatePath, "-sL", "--max-time", "30", pageURL)
	var out bytes.Buffer
	cmd.Stdout = &out
	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("impersonate subprocess: %w", err)
	}
	return out.String(), nil
}
