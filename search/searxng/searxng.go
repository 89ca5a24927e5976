// Package searxng implements the primary search provider against a SearXNG
// instance's JSON API.
package searxng

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	errorskg "github.com/jarvas-assistant/jarvas/errors"
	"github.com/jarvas-assistant/jarvas/search"
)

// Provider queries a SearXNG instance.
type Provider struct {
	baseURL    string
	language   string
	safeSearch int
	httpClient *http.Client
}

// Option configures a Provider.
type Option func(*Provider)

// WithLanguage sets the result language (default pt-PT).
func WithLanguage(lang string) Option {
	return func(p *Provider) {
		if lang != "" {
			p.language = lang
		}
	}
}

// WithSafeSearch sets the safesearch level (0-2).
func WithSafeSearch(level int) Option {
	return func(p *Provider) {
		p.safeSearch = level
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

// New creates a provider for the SearXNG instance at baseURL.
func New(baseURL string, opts ...Option) *Provider {
	p := &Provider{
		baseURL:    strings.TrimRight(baseURL, "/"),
		language:   "pt-PT",
		safeSearch: 1,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *Provider) Name() string {
	return "searxng"
}

type response struct {
	Results []struct {
		Title   string `json:"title"`
		URL     string `json:"url"`
		Content string `json:"content"`
		Engine  string `json:"engine"`
	} `json:"results"`
}

func (p *Provider) Search(ctx context.Context, query string, maxResults int) ([]search.Result, error) {
	params := url.Values{}
	params.Set("q", query)
	params.Set("format", "json")
	params.Set("language", p.language)
	params.Set("safesearch", fmt.Sprintf("%d", p.safeSearch))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/search?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("searxng: build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("searxng: request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, fmt.Errorf("searxng: %w", errorskg.ErrRateLimited)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("searxng: unexpected status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("searxng: read body: %w", err)
	}

	var decoded response
	if err := json.Unmarshal(body, &decoded); err != nil {
		return nil, &search.DecodeError{
			ContentType: resp.Header.Get("Content-Type"),
			Preview:     search.BodyPreview(body),
			Err:         err,
		}
	}

	results := make([]search.Result, 0, len(decoded.Results))
	for _, r := range decoded.Results {
		if r.URL == "" {
			continue
		}
		engine := r.Engine
		if engine == "" {
			engine = p.Name()
		}
		results = append(results, search.Result{
			Title:   r.Title,
			URL:     r.URL,
			Snippet: r.Content,
			Engine:  engine,
		})
		if maxResults > 0 && len(results) >= maxResults {
			break
		}
	}
	return results, nil
}
