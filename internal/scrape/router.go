package scrape

import "context"

// Router sends GitHub repository URLs to the GitHub fetcher and everything else over HTTP.
type Router struct {
	github Fetcher
	http   Fetcher
}

// NewRouter creates a router. A nil github fetcher sends every URL over HTTP.
func NewRouter(github, http Fetcher) *Router {
	return &Router{github: github, http: http}
}

// Fetch dispatches url to the matching fetcher.
func (r *Router) Fetch(ctx context.Context, url string) (*Page, error) {
	if r.github != nil {
		if _, _, ok := ParseRepoURL(url); ok {
			return r.github.Fetch(ctx, url)
		}
	}
	return r.http.Fetch(ctx, url)
}
