// Package reddit implements the content-source port against Reddit's JSON
// API. With client credentials configured it authenticates via the app-only
// OAuth flow; without them it falls back to the public .json endpoints.
package reddit

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"threadlens/models"
	"threadlens/ports"
)

const (
	publicBaseURL = "https://www.reddit.com"
	oauthBaseURL  = "https://oauth.reddit.com"
	tokenURL      = "https://www.reddit.com/api/v1/access_token"
)

var (
	threadURLPattern = regexp.MustCompile(`reddit\.com/r/\w+/comments/(\w+)`)
	shortURLPattern  = regexp.MustCompile(`redd\.it/(\w+)`)
)

// ParseThreadURL extracts a thread id from a full or short Reddit URL.
// Returns "" when the URL is not a recognizable thread link.
func ParseThreadURL(rawURL string) string {
	if m := threadURLPattern.FindStringSubmatch(rawURL); m != nil {
		return m[1]
	}
	if m := shortURLPattern.FindStringSubmatch(rawURL); m != nil {
		return m[1]
	}
	return ""
}

// Client talks to the Reddit API and maps responses onto the domain model.
type Client struct {
	httpClient   *http.Client
	userAgent    string
	clientID     string
	clientSecret string

	// Overridable for tests.
	baseURL  string
	tokenURL string

	mu          sync.Mutex
	token       string
	tokenExpiry time.Time
}

// NewClient creates a Reddit client. clientID and clientSecret may be empty,
// in which case the public JSON endpoints are used unauthenticated.
func NewClient(clientID, clientSecret, userAgent string) *Client {
	return &Client{
		httpClient:   &http.Client{Timeout: 30 * time.Second},
		userAgent:    userAgent,
		clientID:     clientID,
		clientSecret: clientSecret,
		baseURL:      publicBaseURL,
		tokenURL:     tokenURL,
	}
}

// NewClientWithBaseURL creates an unauthenticated client against a custom
// base URL. Used by tests with httptest servers.
func NewClientWithBaseURL(baseURL, userAgent string) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		userAgent:  userAgent,
		baseURL:    baseURL,
		tokenURL:   baseURL + "/api/v1/access_token",
	}
}

var _ ports.ContentSource = (*Client)(nil)

// Listing envelope shapes for Reddit's JSON API.
type listing struct {
	Data struct {
		Children []struct {
			Kind string          `json:"kind"`
			Data json.RawMessage `json:"data"`
		} `json:"children"`
	} `json:"data"`
}

type submissionData struct {
	ID          string  `json:"id"`
	Title       string  `json:"title"`
	Subreddit   string  `json:"subreddit"`
	Score       int     `json:"score"`
	NumComments int     `json:"num_comments"`
	URL         string  `json:"url"`
	Permalink   string  `json:"permalink"`
	Selftext    string  `json:"selftext"`
	CreatedUTC  float64 `json:"created_utc"`
	Author      string  `json:"author"`
}

type commentData struct {
	ID         string          `json:"id"`
	Author     string          `json:"author"`
	Body       string          `json:"body"`
	Score      int             `json:"score"`
	CreatedUTC float64         `json:"created_utc"`
	Permalink  string          `json:"permalink"`
	Replies    json.RawMessage `json:"replies"` // listing or "" for leaves
}

// SearchThreads finds threads matching the query. When opts.Subreddits is
// non-empty the search is restricted to those subreddits.
func (c *Client) SearchThreads(ctx context.Context, query string, opts ports.SearchOptions) ([]models.Thread, error) {
	path := "/search.json"
	if len(opts.Subreddits) > 0 {
		path = "/r/" + strings.Join(opts.Subreddits, "+") + "/search.json"
	}

	q := url.Values{}
	q.Set("q", query)
	q.Set("sort", defaultStr(opts.Sort, "relevance"))
	q.Set("t", defaultStr(opts.TimeFilter, "all"))
	q.Set("limit", strconv.Itoa(opts.MaxThreads))
	q.Set("raw_json", "1")
	if len(opts.Subreddits) > 0 {
		q.Set("restrict_sr", "1")
	}

	var result listing
	if err := c.getJSON(ctx, path, q, &result); err != nil {
		return nil, err
	}

	var threads []models.Thread
	for _, child := range result.Data.Children {
		if child.Kind != "t3" {
			continue
		}
		var sub submissionData
		if err := json.Unmarshal(child.Data, &sub); err != nil {
			continue
		}
		threads = append(threads, threadFromSubmission(sub))
	}
	return threads, nil
}

// FetchThread resolves one thread by id.
func (c *Client) FetchThread(ctx context.Context, threadID string) (*models.Thread, error) {
	pages, err := c.fetchCommentPages(ctx, threadID, 1)
	if err != nil {
		return nil, err
	}
	if len(pages) == 0 || len(pages[0].Data.Children) == 0 {
		return nil, fmt.Errorf("thread %s not found", threadID)
	}
	var sub submissionData
	if err := json.Unmarshal(pages[0].Data.Children[0].Data, &sub); err != nil {
		return nil, fmt.Errorf("failed to decode thread %s: %w", threadID, err)
	}
	t := threadFromSubmission(sub)
	return &t, nil
}

// FetchComments returns up to maxComments flattened comments for a thread.
// Collapsed "more" stubs are skipped rather than expanded, matching a single
// cheap fetch per thread. Removed/deleted items are included with the
// Removed flag set so the selection engine can drop them without counting
// them against caps.
func (c *Client) FetchComments(ctx context.Context, threadID string, maxComments int) ([]models.Comment, error) {
	pages, err := c.fetchCommentPages(ctx, threadID, maxComments)
	if err != nil {
		return nil, err
	}
	if len(pages) < 2 {
		return nil, nil
	}

	var comments []models.Comment
	c.walkComments(pages[1], threadID, 0, maxComments, &comments)
	return comments, nil
}

func (c *Client) walkComments(l listing, threadID string, depth, max int, out *[]models.Comment) {
	for _, child := range l.Data.Children {
		if len(*out) >= max {
			return
		}
		if child.Kind != "t1" {
			continue // "more" stubs and anything unexpected
		}
		var cd commentData
		if err := json.Unmarshal(child.Data, &cd); err != nil {
			continue
		}

		author := cd.Author
		if author == "" {
			author = "[deleted]"
		}
		*out = append(*out, models.Comment{
			ID:         cd.ID,
			ThreadID:   threadID,
			Author:     author,
			Body:       cd.Body,
			Score:      cd.Score,
			CreatedUTC: cd.CreatedUTC,
			Depth:      depth,
			Permalink:  "https://reddit.com" + cd.Permalink,
			Removed:    cd.Body == "[removed]" || cd.Body == "[deleted]" || cd.Body == "",
		})

		// Replies is "" for leaves, a listing otherwise.
		if len(cd.Replies) > 2 {
			var replies listing
			if err := json.Unmarshal(cd.Replies, &replies); err == nil {
				c.walkComments(replies, threadID, depth+1, max, out)
			}
		}
	}
}

func (c *Client) fetchCommentPages(ctx context.Context, threadID string, limit int) ([]listing, error) {
	q := url.Values{}
	q.Set("limit", strconv.Itoa(limit))
	q.Set("raw_json", "1")

	var pages []listing
	if err := c.getJSON(ctx, "/comments/"+threadID+".json", q, &pages); err != nil {
		return nil, err
	}
	return pages, nil
}

// SubredditExists checks whether a subreddit resolves on the platform.
func (c *Client) SubredditExists(ctx context.Context, name string) (bool, error) {
	var about struct {
		Kind string `json:"kind"`
	}
	err := c.getJSON(ctx, "/r/"+url.PathEscape(name)+"/about.json", url.Values{"raw_json": {"1"}}, &about)
	if err != nil {
		if isNotFound(err) {
			return false, nil
		}
		return false, err
	}
	return about.Kind == "t5", nil
}

type httpStatusError struct {
	status int
	body   string
}

func (e *httpStatusError) Error() string {
	return fmt.Sprintf("reddit API error (status %d): %s", e.status, e.body)
}

func isNotFound(err error) bool {
	se, ok := err.(*httpStatusError)
	return ok && (se.status == http.StatusNotFound || se.status == http.StatusForbidden)
}

func (c *Client) getJSON(ctx context.Context, path string, query url.Values, result interface{}) error {
	base := c.baseURL
	if c.clientID != "" && c.clientSecret != "" && c.baseURL == publicBaseURL {
		if err := c.ensureToken(ctx); err != nil {
			log.Printf("[Reddit] OAuth token fetch failed, using public endpoints: %v", err)
		} else {
			base = oauthBaseURL
			path = strings.TrimSuffix(path, ".json")
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, base+path+"?"+query.Encode(), nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)

	c.mu.Lock()
	if c.token != "" && base == oauthBaseURL {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	c.mu.Unlock()

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("reddit request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read reddit response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return &httpStatusError{status: resp.StatusCode, body: truncateBody(body)}
	}
	if err := json.Unmarshal(body, result); err != nil {
		return fmt.Errorf("failed to decode reddit response: %w", err)
	}
	return nil
}

func (c *Client) ensureToken(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.token != "" && time.Now().Before(c.tokenExpiry) {
		return nil
	}

	form := url.Values{"grant_type": {"client_credentials"}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.SetBasicAuth(c.clientID, c.clientSecret)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		return &httpStatusError{status: resp.StatusCode, body: truncateBody(body)}
	}

	var tok struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
	}
	if err := json.Unmarshal(body, &tok); err != nil {
		return err
	}
	c.token = tok.AccessToken
	c.tokenExpiry = time.Now().Add(time.Duration(tok.ExpiresIn-60) * time.Second)
	return nil
}

func threadFromSubmission(sub submissionData) models.Thread {
	author := sub.Author
	if author == "" {
		author = "[deleted]"
	}
	selftext := sub.Selftext
	if len(selftext) > 500 {
		selftext = selftext[:500]
	}
	return models.Thread{
		ID:          sub.ID,
		Title:       sub.Title,
		Subreddit:   sub.Subreddit,
		Score:       sub.Score,
		NumComments: sub.NumComments,
		URL:         sub.URL,
		Permalink:   "https://reddit.com" + sub.Permalink,
		Selftext:    selftext,
		CreatedUTC:  sub.CreatedUTC,
		Author:      author,
	}
}

func defaultStr(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

func truncateBody(body []byte) string {
	const max = 300
	if len(body) > max {
		return string(body[:max]) + "..."
	}
	return string(body)
}
