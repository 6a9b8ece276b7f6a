// Package search implements the web search provider behind the search tool.
//
// DuckDuckGo is queried through its lite HTML interface, which needs no API
// key. Replies are scraped into querytool.Item values in page order.
package search

import (
	"context"
	"fmt"
	"html"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/stellarlinkco/ghosthunter/internal/querytool"
)

const (
	DefaultEndpoint = "https://lite.duckduckgo.com/lite/"
	providerName    = "duckduckgo"
	userAgent       = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
	maxErrorBody    = 512
)

// sharedLimiter keeps every DuckDuckGo instance in the process at one query
// per second.
var sharedLimiter = rate.NewLimiter(rate.Every(time.Second), 1)

// DuckDuckGo searches lite.duckduckgo.com.
type DuckDuckGo struct {
	endpoint string
	client   *http.Client
	limiter  *rate.Limiter
	log      *slog.Logger
}

// Option configures a DuckDuckGo provider.
type Option func(*DuckDuckGo)

// WithEndpoint overrides the lite endpoint URL.
func WithEndpoint(endpoint string) Option {
	return func(d *DuckDuckGo) { d.endpoint = endpoint }
}

// WithHTTPClient overrides the HTTP client, e.g. to change the timeout.
func WithHTTPClient(c *http.Client) Option {
	return func(d *DuckDuckGo) { d.client = c }
}

// WithLimiter replaces the process-wide rate limiter.
func WithLimiter(l *rate.Limiter) Option {
	return func(d *DuckDuckGo) { d.limiter = l }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(d *DuckDuckGo) { d.log = l }
}

// NewDuckDuckGo creates a DuckDuckGo provider with a 15 second timeout.
func NewDuckDuckGo(opts ...Option) *DuckDuckGo {
	d := &DuckDuckGo{
		endpoint: DefaultEndpoint,
		client:   &http.Client{Timeout: 15 * time.Second},
		limiter:  sharedLimiter,
		log:      slog.Default(),
	}
	for _, opt := range opts {
		opt(d)
	}
	d.log = d.log.With("component", "search")
	return d
}

// Search posts the query to the lite endpoint and scrapes the result table.
func (d *DuckDuckGo) Search(ctx context.Context, p querytool.SearchParams) ([]querytool.Item, error) {
	if strings.TrimSpace(p.Query) == "" {
		return nil, &querytool.InputError{Message: "query is empty"}
	}
	if err := d.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	form := url.Values{}
	form.Set("q", p.Query)
	if p.Region != "" {
		form.Set("kl", p.Region)
	}
	form.Set("kp", safeSearchParam(p.SafeSearch))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, &querytool.StatusError{
			Provider:   providerName,
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(string(body)),
		}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read duckduckgo response: %w", err)
	}

	items, err := parseResults(string(body), p.MaxResults)
	if err != nil {
		return nil, err
	}
	d.log.Debug("parsed results", "query", p.Query, "count", len(items))
	return items, nil
}

// safeSearchParam maps the level onto DuckDuckGo's kp parameter.
func safeSearchParam(s querytool.SafeSearch) string {
	switch s {
	case querytool.SafeSearchStrict:
		return "1"
	case querytool.SafeSearchOff:
		return "-2"
	default:
		return "-1"
	}
}

var (
	// <a rel="nofollow" href="URL" class='result-link'>TITLE</a>, attributes in either order.
	reLinkHrefFirst  = regexp.MustCompile(`<a[^>]*href=['"]([^'"]+)['"][^>]*class=['"]result-link['"][^>]*>(.*?)</a>`)
	reLinkClassFirst = regexp.MustCompile(`<a[^>]*class=['"]result-link['"][^>]*href=['"]([^'"]+)['"][^>]*>(.*?)</a>`)
	reSnippet        = regexp.MustCompile(`(?s)<td[^>]*class=['"]result-snippet['"][^>]*>(.*?)</td>`)
	reTags           = regexp.MustCompile(`<[^>]+>`)
	reSpaces         = regexp.MustCompile(`\s+`)
	reNoResults      = regexp.MustCompile(`(?i)no\s+results`)
)

// parseResults extracts up to max results from a lite results page. A page
// that has neither results nor the "no results" notice is reported as a
// protocol change.
func parseResults(page string, max int) ([]querytool.Item, error) {
	matches := reLinkHrefFirst.FindAllStringSubmatch(page, -1)
	if len(matches) == 0 {
		matches = reLinkClassFirst.FindAllStringSubmatch(page, -1)
	}
	if len(matches) == 0 {
		if reNoResults.MatchString(page) {
			return nil, nil
		}
		return nil, &querytool.ProtocolError{Provider: providerName, Detail: "no result links or no-results notice in page"}
	}

	snippets := reSnippet.FindAllStringSubmatch(page, -1)
	items := make([]querytool.Item, 0, len(matches))
	for i, m := range matches {
		link := resolveLink(strings.TrimSpace(m[1]))
		title := cleanHTML(m[2])
		if link == "" || title == "" {
			continue
		}
		snippet := ""
		if i < len(snippets) {
			snippet = cleanHTML(snippets[i][1])
		}
		items = append(items, querytool.Item{Title: title, Description: snippet, SourceURL: link})
		if max > 0 && len(items) >= max {
			break
		}
	}
	return items, nil
}

// resolveLink unwraps DuckDuckGo redirect links (//duckduckgo.com/l/?uddg=...).
func resolveLink(raw string) string {
	raw = html.UnescapeString(raw)
	if strings.HasPrefix(raw, "//") {
		raw = "https:" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	if strings.HasSuffix(u.Host, "duckduckgo.com") && strings.HasPrefix(u.Path, "/l/") {
		if target := u.Query().Get("uddg"); target != "" {
			return target
		}
	}
	return raw
}

// cleanHTML strips tags, decodes entities and collapses whitespace.
func cleanHTML(s string) string {
	s = reTags.ReplaceAllString(s, "")
	s = html.UnescapeString(s)
	s = reSpaces.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}
