// Copyright 2026 © The AIXI Authors
// SPDX-License-Identifier: Apache-2.0

package tools

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/net/html"

	"github.com/jllopis/aixi/pkg/resilience"
	"github.com/jllopis/aixi/pkg/telemetry"
)

const webSearchDocs = `
WEB SEARCH SUBENVIRONMENT

This subenvironment provides web search capabilities using DuckDuckGo.

INPUT FORMAT (JSON):
{
    "query": "search terms",
    "max_results": 5,  // optional, default 5, max 10
    "simple": false    // optional, use simplified output format
}

FEATURES:
- Searches using DuckDuckGo Instant Answer API
- Returns abstracts, definitions, related topics and direct answers
- Configurable number of results (1-10)
- Simple mode keeps only titles and content

EXAMPLES:
{"query": "artificial intelligence definition"}
{"query": "Go programming tutorial", "max_results": 3}
{"query": "AIXI algorithm Marcus Hutter", "simple": true}

NOTES:
- Specific queries may return no results
- Network failures are reported as errors; repeated failures pause searching briefly
`

// WebSearch queries the DuckDuckGo Instant Answer API.
type WebSearch struct {
	baseURL string
	client  *http.Client
	breaker *resilience.CircuitBreaker
	metrics *telemetry.RunMetrics
}

// WebSearchOption configures a WebSearch.
type WebSearchOption func(*WebSearch)

// WithSearchMetrics reports breaker transitions to m.
func WithSearchMetrics(m *telemetry.RunMetrics) WebSearchOption {
	return func(w *WebSearch) { w.metrics = m }
}

// WithSearchBreaker overrides the default breaker settings.
func WithSearchBreaker(cfg resilience.CircuitBreakerConfig) WebSearchOption {
	return func(w *WebSearch) { w.breaker = w.newBreaker(cfg) }
}

// NewWebSearch returns a search tool against baseURL with a per-request timeout.
func NewWebSearch(baseURL string, timeout time.Duration, opts ...WebSearchOption) *WebSearch {
	if baseURL == "" {
		baseURL = "https://api.duckduckgo.com/"
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	w := &WebSearch{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.breaker == nil {
		w.breaker = w.newBreaker(resilience.CircuitBreakerConfig{FailureThreshold: 5, Timeout: 30 * time.Second})
	}
	return w
}

func (w *WebSearch) newBreaker(cfg resilience.CircuitBreakerConfig) *resilience.CircuitBreaker {
	cfg.Name = w.Name()
	cfg.OnStateChange = func(name string, _, to resilience.CircuitBreakerState) {
		w.metrics.RecordCircuitBreakerState(context.Background(), name, to.Gauge())
	}
	return resilience.NewCircuitBreaker(cfg)
}

func (w *WebSearch) Name() string { return "web_search" }

func (w *WebSearch) Description() string { return "Web search using DuckDuckGo API" }

func (w *WebSearch) Docs() string { return webSearchDocs }

type searchInput struct {
	Query      string `json:"query"`
	MaxResults *int   `json:"max_results"`
	Simple     bool   `json:"simple"`
}

func (w *WebSearch) Invoke(ctx context.Context, payload json.RawMessage) Result {
	var in searchInput
	if res, ok := decodePayload(w.Name(), payload, &in); !ok {
		return res
	}
	query := strings.TrimSpace(in.Query)
	if query == "" {
		return InvalidInput(w.Name(), "'query' field is required and cannot be empty")
	}
	limit := 5
	if in.MaxResults != nil {
		limit = *in.MaxResults
		if limit < 1 || limit > 10 {
			return InvalidInput(w.Name(), "'max_results' must be an integer between 1 and 10")
		}
	}
	if in.Simple {
		limit = 3
	}

	var answer *instantAnswer
	err := w.breaker.Call(ctx, func(ctx context.Context) error {
		var err error
		answer, err = w.fetch(ctx, query)
		return err
	})
	if err != nil {
		return w.failure(query, err)
	}

	hits := answer.hits(limit)
	if len(hits) == 0 {
		return Successf("Search completed for '%s' but no results found. Try a different query.", query)
	}
	return Success(formatHits(query, hits, in.Simple))
}

func (w *WebSearch) failure(query string, err error) Result {
	var netErr net.Error
	switch {
	case stderrors.Is(err, resilience.ErrCircuitOpen):
		return Failure(w.Name(), "web search temporarily unavailable", err)
	case stderrors.As(err, &netErr) && netErr.Timeout(), stderrors.Is(err, context.DeadlineExceeded):
		return Failure(w.Name(), fmt.Sprintf("Search request timed out for query '%s'", query), err)
	case stderrors.Is(err, errBadResponse):
		return Failure(w.Name(), fmt.Sprintf("Invalid response format from search API for query '%s'", query), err)
	default:
		return Failure(w.Name(), fmt.Sprintf("Network error during search for '%s': %v", query, err), err)
	}
}

var errBadResponse = stderrors.New("invalid search response")

type relatedTopic struct {
	Text     string         `json:"Text"`
	Result   string         `json:"Result"`
	FirstURL string         `json:"FirstURL"`
	Name     string         `json:"Name"`
	Topics   []relatedTopic `json:"Topics"`
}

type instantAnswer struct {
	Abstract         string         `json:"Abstract"`
	AbstractText     string         `json:"AbstractText"`
	AbstractSource   string         `json:"AbstractSource"`
	AbstractURL      string         `json:"AbstractURL"`
	Definition       string         `json:"Definition"`
	DefinitionSource string         `json:"DefinitionSource"`
	DefinitionURL    string         `json:"DefinitionURL"`
	Answer           string         `json:"Answer"`
	AnswerType       string         `json:"AnswerType"`
	RelatedTopics    []relatedTopic `json:"RelatedTopics"`
}

type searchHit struct {
	kind    string
	title   string
	content string
	source  string
	url     string
}

func (w *WebSearch) fetch(ctx context.Context, query string) (*instantAnswer, error) {
	params := url.Values{}
	params.Set("q", query)
	params.Set("format", "json")
	params.Set("no_html", "1")
	params.Set("skip_disambig", "1")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, w.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", "LLM-AIXI")

	resp, err := w.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("search API returned status %d", resp.StatusCode)
	}

	var answer instantAnswer
	if err := json.NewDecoder(resp.Body).Decode(&answer); err != nil {
		return nil, fmt.Errorf("%w: %v", errBadResponse, err)
	}
	return &answer, nil
}

// hits lists results in display order: abstract, definition, related topics, answer.
func (a *instantAnswer) hits(limit int) []searchHit {
	var hits []searchHit
	if a.Abstract != "" {
		hits = append(hits, searchHit{
			kind:    "Abstract",
			title:   orDefault(a.AbstractText, "Summary"),
			content: stripHTML(a.Abstract),
			source:  orDefault(a.AbstractSource, "DuckDuckGo"),
			url:     a.AbstractURL,
		})
	}
	if a.Definition != "" {
		hits = append(hits, searchHit{
			kind:    "Definition",
			title:   "Definition",
			content: stripHTML(a.Definition),
			source:  orDefault(a.DefinitionSource, "DuckDuckGo"),
			url:     a.DefinitionURL,
		})
	}

	topics := flattenTopics(a.RelatedTopics)
	if len(topics) > limit {
		topics = topics[:limit]
	}
	for _, t := range topics {
		text := t.Text
		if text == "" {
			text = stripHTML(t.Result)
		}
		if text == "" {
			continue
		}
		title := "Related"
		if before, _, found := strings.Cut(text, " - "); found {
			title = before
		}
		hits = append(hits, searchHit{
			kind:    "Related Topic",
			title:   title,
			content: text,
			source:  "DuckDuckGo",
			url:     t.FirstURL,
		})
	}

	if a.Answer != "" {
		hits = append(hits, searchHit{
			kind:    "Answer",
			title:   orDefault(a.AnswerType, "Answer"),
			content: stripHTML(a.Answer),
			source:  "DuckDuckGo",
		})
	}
	if len(hits) > limit {
		hits = hits[:limit]
	}
	return hits
}

// flattenTopics expands topic groups into their member topics.
func flattenTopics(topics []relatedTopic) []relatedTopic {
	var out []relatedTopic
	for _, t := range topics {
		if len(t.Topics) > 0 {
			out = append(out, flattenTopics(t.Topics)...)
			continue
		}
		out = append(out, t)
	}
	return out
}

func formatHits(query string, hits []searchHit, simple bool) string {
	var b strings.Builder
	fmt.Fprintf(&b, "SUCCESS: Search results for '%s':\n", query)
	for i, h := range hits {
		fmt.Fprintf(&b, "\n%d. [%s] %s\n", i+1, h.kind, h.title)
		fmt.Fprintf(&b, "   Content: %s\n", h.content)
		if simple {
			continue
		}
		if h.url != "" {
			fmt.Fprintf(&b, "   URL: %s\n", h.url)
		}
		fmt.Fprintf(&b, "   Source: %s\n", h.source)
	}
	return strings.TrimRight(b.String(), "\n")
}

// stripHTML returns the text content of an HTML fragment.
func stripHTML(s string) string {
	if !strings.ContainsAny(s, "<&") {
		return strings.TrimSpace(s)
	}
	doc, err := html.Parse(strings.NewReader(s))
	if err != nil {
		return strings.TrimSpace(s)
	}
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return strings.Join(strings.Fields(b.String()), " ")
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
