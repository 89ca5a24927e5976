// Package duckduckgo implements the fallback search provider by scraping the
// DuckDuckGo HTML endpoint. It is deliberately simple: one request, no
// retries; the client calls it only after the primary engine is exhausted.
package duckduckgo

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	errorskg "github.com/jarvas-assistant/jarvas/errors"
	"github.com/jarvas-assistant/jarvas/search"
)

const defaultEndpoint = "https://html.duckduckgo.com/html/"

// Provider scrapes DuckDuckGo's HTML results page.
type Provider struct {
	endpoint   string
	httpClient *http.Client
}

// Option configures a Provider.
type Option func(*Provider)

// WithEndpoint overrides the HTML endpoint; used by tests.
func WithEndpoint(endpoint string) Option {
	return func(p *Provider) {
		if endpoint != "" {
			p.endpoint = endpoint
		}
	}
}

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(p *Provider) {
		if client != nil {
			p.httpClient = client
		}
	}
}

// New creates the fallback provider.
func New(opts ...Option) *Provider {
	p := &Provider{
		endpoint:   defaultEndpoint,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *Provider) Name() string {
	return "duckduckgo"
}

func (p *Provider) Search(ctx context.Context, query string, maxResults int) ([]search.Result, error) {
	form := url.Values{}
	form.Set("q", query)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("duckduckgo: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("User-Agent", "Mozilla/5.0 (X11; Linux x86_64) jarvas/1.0")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("duckduckgo: request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, fmt.Errorf("duckduckgo: %w", errorskg.ErrRateLimited)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("duckduckgo: unexpected status %d", resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, &search.DecodeError{
			ContentType: resp.Header.Get("Content-Type"),
			Preview:     "",
			Err:         err,
		}
	}

	var results []search.Result
	doc.Find(".result").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		link := sel.Find(".result__title a").First()
		href, ok := link.Attr("href")
		if !ok {
			return true
		}
		results = append(results, search.Result{
			Title:   strings.TrimSpace(link.Text()),
			URL:     resolveRedirect(href),
			Snippet: strings.TrimSpace(sel.Find(".result__snippet").Text()),
			Engine:  p.Name(),
		})
		return maxResults <= 0 || len(results) < maxResults
	})
	return results, nil
}

// resolveRedirect unwraps DuckDuckGo's /l/?uddg=<target> redirect links.
func resolveRedirect(href string) string {
	u, err := url.Parse(href)
	if err != nil {
		return href
	}
	if target := u.Query().Get("uddg"); target != "" {
		return target
	}
	if u.Scheme == "" {
		return "https:" + href
	}
	return href
}
