package scrape

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/gofri/go-github-ratelimit/github_ratelimit"
	"github.com/google/go-github/v81/github"
)

// GitHubFetcher reads the README of a GitHub repository through the API
// instead of scraping the rendered page.
type GitHubFetcher struct {
	client *github.Client
}

// NewGitHubFetcher creates a fetcher with rate limit handling.
// A non-empty token authenticates requests for the higher API quota.
func NewGitHubFetcher(token string) (*GitHubFetcher, error) {
	// Waits out primary and secondary rate limits instead of failing the request
	rateLimiter, err := github_ratelimit.NewRateLimitWaiterClient(nil)
	if err != nil {
		return nil, fmt.Errorf("create rate limiter: %w", err)
	}
	return NewGitHubFetcherWithClient(rateLimiter, token), nil
}

// NewGitHubFetcherWithClient uses httpClient for API calls.
func NewGitHubFetcherWithClient(httpClient *http.Client, token string) *GitHubFetcher {
	client := github.NewClient(httpClient)
	if token != "" {
		client = client.WithAuthToken(token)
	}
	return &GitHubFetcher{client: client}
}

// WithBaseURL points the fetcher at another API endpoint, such as GitHub Enterprise.
func (f *GitHubFetcher) WithBaseURL(baseURL string) (*GitHubFetcher, error) {
	u, err := url.Parse(strings.TrimSuffix(baseURL, "/") + "/")
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	f.client.BaseURL = u
	return f, nil
}

// Fetch returns the README of the repository named by rawURL as plain text.
func (f *GitHubFetcher) Fetch(ctx context.Context, rawURL string) (*Page, error) {
	owner, repo, ok := ParseRepoURL(rawURL)
	if !ok {
		return nil, fmt.Errorf("%w: %s: not a repository url", ErrFetchFailure, rawURL)
	}

	readme, _, err := f.client.Repositories.GetReadme(ctx, owner, repo, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: get readme: %v", ErrFetchFailure, rawURL, err)
	}

	content, err := readme.GetContent()
	if err != nil {
		return nil, fmt.Errorf("%w: %s: decode readme: %v", ErrFetchFailure, rawURL, err)
	}

	text, err := MarkdownText([]byte(content))
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrFetchFailure, rawURL, err)
	}

	return &Page{URL: rawURL, Text: text, ContentType: "text/markdown"}, nil
}

// ParseRepoURL extracts owner and repository from a bare repository URL,
// https://github.com/<owner>/<repo> with an optional trailing slash or .git.
// Deeper paths such as blob or tree links are not repositories.
func ParseRepoURL(rawURL string) (owner, repo string, ok bool) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", "", false
	}
	host := strings.ToLower(u.Hostname())
	if host != "github.com" && host != "www.github.com" {
		return "", "", false
	}
	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	if len(parts) != 2 || parts[0] == "" {
		return "", "", false
	}
	repo = strings.TrimSuffix(parts[1], ".git")
	if repo == "" {
		return "", "", false
	}
	return parts[0], repo, true
}
