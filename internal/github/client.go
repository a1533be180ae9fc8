package github

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const apiBase = "https://api.github.com"

// Client is a minimal wrapper around GitHub's REST API v3, covering just the
// endpoints the ingestion and verification services require.
type Client struct {
	http  *http.Client
	token string
}

// NewClient returns a ready-to-use GitHub API client.
// token may be an empty string, but you will be subject to very low rate-limits.
func NewClient(token string) *Client {
	return &Client{
		http: &http.Client{
			Timeout: 10 * time.Second,
		},
		token: token,
	}
}

// Label is an issue label.
type Label struct {
	Name string `json:"name"`
}

// User is a GitHub account reference.
type User struct {
	Login string `json:"login"`
	ID    int64  `json:"id"`
}

// License is a repository license reference.
type License struct {
	Name string `json:"name"`
}

// Repository captures the repo fields issue ingestion needs.
type Repository struct {
	ID              int64    `json:"id"`
	Name            string   `json:"name"`
	FullName        string   `json:"full_name"`
	Owner           User     `json:"owner"`
	Description     string   `json:"description"`
	HTMLURL         string   `json:"html_url"`
	Language        string   `json:"language"`
	StargazersCount int      `json:"stargazers_count"`
	ForksCount      int      `json:"forks_count"`
	OpenIssuesCount int      `json:"open_issues_count"`
	Topics          []string `json:"topics"`
	License         *License `json:"license"`
}

// Issue captures the issue fields we care about. PullRequest is non-nil when
// the "issue" is actually a PR (the two share the issues API).
type Issue struct {
	ID          int64   `json:"id"`
	Number      int     `json:"number"`
	Title       string  `json:"title"`
	Body        string  `json:"body"`
	State       string  `json:"state"`
	HTMLURL     string  `json:"html_url"`
	CreatedAt   string  `json:"created_at"`
	UpdatedAt   string  `json:"updated_at"`
	Comments    int     `json:"comments"`
	Labels      []Label `json:"labels"`
	Assignees   []User  `json:"assignees"`
	User        User    `json:"user"`
	PullRequest *struct {
		URL string `json:"url"`
	} `json:"pull_request"`
}

// PullRequest captures the PR fields verification needs.
type PullRequest struct {
	Number    int    `json:"number"`
	State     string `json:"state"`
	Merged    bool   `json:"merged"`
	MergedAt  string `json:"merged_at"`
	Additions int    `json:"additions"`
	Deletions int    `json:"deletions"`
	User      User   `json:"user"`
	HTMLURL   string `json:"html_url"`
}

// RateLimit reports remaining API quota.
type RateLimit struct {
	Resources struct {
		Core struct {
			Limit     int `json:"limit"`
			Remaining int `json:"remaining"`
		} `json:"core"`
		Search struct {
			Limit     int `json:"limit"`
			Remaining int `json:"remaining"`
		} `json:"search"`
	} `json:"resources"`
}

// SearchRepositories finds repositories for a language with at least
// minStars stars, ordered by stars descending.
func (c *Client) SearchRepositories(ctx context.Context, language string, minStars, perPage, page int) ([]Repository, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, apiBase+"/search/repositories", nil)
	if err != nil {
		return nil, err
	}

	q := req.URL.Query()
	q.Set("q", fmt.Sprintf("language:%s stars:>=%d", language, minStars))
	q.Set("sort", "stars")
	q.Set("order", "desc")
	if perPage > 0 {
		q.Set("per_page", strconv.Itoa(perPage))
	}
	if page > 0 {
		q.Set("page", strconv.Itoa(page))
	}
	req.URL.RawQuery = q.Encode()

	c.addHeaders(req)

	var result struct {
		Items []Repository `json:"items"`
	}
	if err := c.do(req, &result); err != nil {
		return nil, err
	}
	return result.Items, nil
}

// ListRepoIssues fetches a repo's issues updated since the given time,
// most recently updated first.
//
//	owner – repository owner (e.g., "torvalds")
//	repo  – repository name  (e.g., "linux")
//	state – "open" | "closed" | "all"
func (c *Client) ListRepoIssues(ctx context.Context, owner, repo, state string, since time.Time, perPage int) ([]Issue, error) {
	u := fmt.Sprintf("%s/repos/%s/%s/issues", apiBase, url.PathEscape(owner), url.PathEscape(repo))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}

	q := req.URL.Query()
	if state != "" {
		q.Set("state", state)
	}
	if !since.IsZero() {
		q.Set("since", since.UTC().Format(time.RFC3339))
	}
	q.Set("sort", "updated")
	q.Set("direction", "desc")
	if perPage > 0 {
		q.Set("per_page", strconv.Itoa(perPage))
	}
	req.URL.RawQuery = q.Encode()

	c.addHeaders(req)

	var issues []Issue
	if err := c.do(req, &issues); err != nil {
		return nil, err
	}
	return issues, nil
}

// GetIssue retrieves a single issue by number.
func (c *Client) GetIssue(ctx context.Context, owner, repo string, number int) (Issue, error) {
	u := fmt.Sprintf("%s/repos/%s/%s/issues/%d", apiBase, url.PathEscape(owner), url.PathEscape(repo), number)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return Issue{}, err
	}

	c.addHeaders(req)

	var issue Issue
	if err := c.do(req, &issue); err != nil {
		return Issue{}, err
	}
	return issue, nil
}

// GetPullRequest retrieves a single pull request by number.
func (c *Client) GetPullRequest(ctx context.Context, owner, repo string, number int) (PullRequest, error) {
	u := fmt.Sprintf("%s/repos/%s/%s/pulls/%d", apiBase, url.PathEscape(owner), url.PathEscape(repo), number)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return PullRequest{}, err
	}

	c.addHeaders(req)

	var pr PullRequest
	if err := c.do(req, &pr); err != nil {
		return PullRequest{}, err
	}
	return pr, nil
}

// GetRateLimit reports the caller's remaining API quota.
func (c *Client) GetRateLimit(ctx context.Context) (RateLimit, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, apiBase+"/rate_limit", nil)
	if err != nil {
		return RateLimit{}, err
	}

	c.addHeaders(req)

	var rl RateLimit
	if err := c.do(req, &rl); err != nil {
		return RateLimit{}, err
	}
	return rl, nil
}

// ParsePullURL splits "https://github.com/owner/repo/pull/123" into its
// parts. ok is false for anything else.
func ParsePullURL(prURL string) (owner, repo string, number int, ok bool) {
	trimmed := strings.TrimPrefix(prURL, "https://github.com/")
	if trimmed == prURL {
		return "", "", 0, false
	}
	parts := strings.Split(trimmed, "/")
	if len(parts) < 4 || parts[2] != "pull" {
		return "", "", 0, false
	}
	number, err := strconv.Atoi(parts[3])
	if err != nil {
		return "", "", 0, false
	}
	return parts[0], parts[1], number, true
}

// ---- internals -------------------------------------------------------------

func (c *Client) addHeaders(req *http.Request) {
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("User-Agent", "opensource-issues-finder")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
}

func (c *Client) do(req *http.Request, out interface{}) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("github: %s %s returned %s", req.Method, req.URL.Path, resp.Status)
	}

	return json.NewDecoder(resp.Body).Decode(out)
}
