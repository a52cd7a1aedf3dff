package backend

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/codemusic/roverseer-gateway/core"
	readability "github.com/go-shiori/go-readability"
)

// HTTPSearchAdapter implements WebSearcher and ScholarlySearcher against a
// remote search service, cleaning each result's snippet with
// go-shiori/go-readability so pipeline and research-workflow steps never
// have to deal with raw HTML fragments (original_source/tools/search.py
// did the equivalent cleanup with a bespoke HTML stripper).
type HTTPSearchAdapter struct {
	id         string
	baseURL    string
	scholarly  bool
	client     *http.Client
}

func NewHTTPSearchAdapter(id, baseURL string, scholarly bool, timeout time.Duration) *HTTPSearchAdapter {
	return &HTTPSearchAdapter{id: id, baseURL: baseURL, scholarly: scholarly, client: &http.Client{Timeout: timeout}}
}

func (a *HTTPSearchAdapter) ID() string { return a.id }

func (a *HTTPSearchAdapter) Capability() Capability {
	if a.scholarly {
		return CapSearchScholarly
	}
	return CapSearchWeb
}

type searchResultWire struct {
	Title   string  `json:"title"`
	URI     string  `json:"uri"`
	Snippet string  `json:"snippet"`
	Score   float64 `json:"score"`
}

func (a *HTTPSearchAdapter) SearchWeb(ctx context.Context, query string, maxResults int, region, safesearch string) ([]SearchResult, error) {
	q := url.Values{}
	q.Set("q", query)
	q.Set("max_results", strconv.Itoa(maxResults))
	if region != "" {
		q.Set("region", region)
	}
	if safesearch != "" {
		q.Set("safesearch", safesearch)
	}
	return a.search(ctx, "/search", q)
}

func (a *HTTPSearchAdapter) SearchScholarly(ctx context.Context, query string, maxResults int) ([]SearchResult, error) {
	q := url.Values{}
	q.Set("q", query)
	q.Set("max_results", strconv.Itoa(maxResults))
	return a.search(ctx, "/search/scholarly", q)
}

func (a *HTTPSearchAdapter) search(ctx context.Context, path string, q url.Values) ([]SearchResult, error) {
	if q.Get("q") == "" {
		return nil, core.New("backend.search.search", core.KindInputEmpty, "empty query")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.baseURL+path+"?"+q.Encode(), nil)
	if err != nil {
		return nil, core.Wrap("backend.search.search", core.KindInternal, "building request", err)
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, classifyHTTPTransportError("backend.search", a.id, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 500:
		return nil, core.New("backend.search.search", core.KindBackendUnavailable, fmt.Sprintf("%s: status %d", a.id, resp.StatusCode))
	case resp.StatusCode >= 400:
		return nil, core.New("backend.search.search", core.KindBackendRejected, fmt.Sprintf("%s: status %d", a.id, resp.StatusCode))
	}

	var wire []searchResultWire
	if err := json.NewDecoder(resp.Body).Decode(&wire); err != nil {
		return nil, core.Wrap("backend.search.search", core.KindBackendProtocol, a.id+": undecodable response", err)
	}

	results := make([]SearchResult, 0, len(wire))
	for _, w := range wire {
		results = append(results, SearchResult{
			Title:   w.Title,
			URI:     w.URI,
			Snippet: cleanSnippet(w.Snippet),
			Score:   w.Score,
		})
	}
	return results, nil
}

// cleanSnippet strips HTML markup a search backend may embed in its
// snippet field, falling back to the raw snippet when it isn't HTML at
// all (when readability.FromReader fails or extracts no text).
func cleanSnippet(snippet string) string {
	if snippet == "" {
		return ""
	}
	article, err := readability.FromReader(strings.NewReader(snippet), nil)
	if err != nil || article.TextContent == "" {
		return snippet
	}
	return article.TextContent
}
