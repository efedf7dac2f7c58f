// Package websearch discovers supplementary discussion threads through
// DuckDuckGo's HTML endpoint. It is strictly best-effort: every failure
// collapses to zero results so a broken search engine can never fail a
// pipeline run.
package websearch

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"time"

	"github.com/PuerkitoBio/goquery"

	"threadlens/ports"
)

const defaultEndpoint = "https://html.duckduckgo.com/html/"

// DuckDuckGo implements the WebSearcher port by scraping the HTML results
// page. extractID maps a result URL to a source thread id ("" when the URL
// is not a thread link); the caller supplies the content source's parser.
type DuckDuckGo struct {
	httpClient *http.Client
	endpoint   string
	userAgent  string
	extractID  func(url string) string
}

// NewDuckDuckGo creates a web searcher.
func NewDuckDuckGo(extractID func(string) string) *DuckDuckGo {
	return &DuckDuckGo{
		httpClient: &http.Client{Timeout: 20 * time.Second},
		endpoint:   defaultEndpoint,
		userAgent:  "Mozilla/5.0 (compatible; threadlens/1.0)",
		extractID:  extractID,
	}
}

// NewDuckDuckGoWithEndpoint creates a searcher against a custom endpoint.
// Used by tests with httptest servers.
func NewDuckDuckGoWithEndpoint(endpoint string, extractID func(string) string) *DuckDuckGo {
	d := NewDuckDuckGo(extractID)
	d.endpoint = endpoint
	return d
}

var _ ports.WebSearcher = (*DuckDuckGo)(nil)

// SearchThreadIDs runs each query variant as a broad site-restricted pass
// and, when subreddits are known, per-subreddit targeted passes. Collection
// stops at maxTotal unique ids so total discovery work stays bounded.
func (d *DuckDuckGo) SearchThreadIDs(ctx context.Context, queries []string, subreddits []string, maxResults, maxTotal int) []string {
	seen := make(map[string]bool)
	var ids []string

	add := func(found []string) {
		for _, id := range found {
			if len(ids) >= maxTotal {
				return
			}
			if !seen[id] {
				seen[id] = true
				ids = append(ids, id)
			}
		}
	}

	for _, query := range queries {
		if len(ids) >= maxTotal {
			break
		}
		add(d.searchIDs(ctx, query+" site:reddit.com", maxResults))

		if len(subreddits) > 0 {
			perSub := maxResults / len(subreddits)
			if perSub < 5 {
				perSub = 5
			}
			for _, sub := range subreddits {
				if len(ids) >= maxTotal {
					break
				}
				add(d.searchIDs(ctx, fmt.Sprintf("%s site:reddit.com/r/%s", query, sub), perSub))
			}
		}
	}
	return ids
}

// searchIDs runs one query and returns the thread ids found on the results
// page. Any error returns an empty slice.
func (d *DuckDuckGo) searchIDs(ctx context.Context, query string, maxResults int) []string {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, d.endpoint+"?q="+url.QueryEscape(query), nil)
	if err != nil {
		return nil
	}
	req.Header.Set("User-Agent", d.userAgent)

	resp, err := d.httpClient.Do(req)
	if err != nil {
		log.Printf("[WebSearch] Query failed, treating as zero results: %v", err)
		return nil
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		log.Printf("[WebSearch] Unexpected status %d for query %q", resp.StatusCode, query)
		return nil
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		log.Printf("[WebSearch] Failed to parse results page: %v", err)
		return nil
	}

	var ids []string
	doc.Find("a.result__a").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		if len(ids) >= maxResults {
			return false
		}
		href, ok := sel.Attr("href")
		if !ok {
			return true
		}
		if id := d.extractID(resolveRedirect(href)); id != "" {
			ids = append(ids, id)
		}
		return true
	})
	return ids
}

// resolveRedirect unwraps DuckDuckGo's /l/?uddg= redirect links to the
// underlying destination URL.
func resolveRedirect(href string) string {
	u, err := url.Parse(href)
	if err != nil {
		return href
	}
	if dest := u.Query().Get("uddg"); dest != "" {
		if unescaped, err := url.QueryUnescape(dest); err == nil {
			return unescaped
		}
	}
	return href
}
