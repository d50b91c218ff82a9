// Copyright 2026 © The AIXI Authors
// SPDX-License-Identifier: Apache-2.0

package tools

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jllopis/aixi/pkg/resilience"
)

const instantAnswerJSON = `{
  "Abstract": "AIXI is a theoretical mathematical formalism for artificial general intelligence.",
  "AbstractText": "AIXI",
  "AbstractSource": "Wikipedia",
  "AbstractURL": "https://en.wikipedia.org/wiki/AIXI",
  "RelatedTopics": [
    {"Text": "Marcus Hutter - German computer scientist", "FirstURL": "https://duckduckgo.com/Marcus_Hutter"},
    {"Name": "See also", "Topics": [
      {"Result": "<a href=\"https://duckduckgo.com/Solomonoff\">Solomonoff induction</a> - a theory of prediction", "FirstURL": "https://duckduckgo.com/Solomonoff"}
    ]}
  ]
}`

func TestWebSearchFormatsResults(t *testing.T) {
	var gotQuery, gotUA string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		gotUA = r.Header.Get("User-Agent")
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(instantAnswerJSON))
	}))
	defer srv.Close()

	ws := NewWebSearch(srv.URL+"/", time.Second)
	res := invoke(t, ws, `{"query": "AIXI"}`)
	if res.Failed() {
		t.Fatalf("unexpected failure: %s", res.Output)
	}

	for _, want := range []string{"q=AIXI", "format=json", "no_html=1", "skip_disambig=1"} {
		if !strings.Contains(gotQuery, want) {
			t.Errorf("query %q missing %q", gotQuery, want)
		}
	}
	if gotUA != "LLM-AIXI" {
		t.Errorf("unexpected user agent %q", gotUA)
	}

	for _, want := range []string{
		"SUCCESS: Search results for 'AIXI':",
		"1. [Abstract] AIXI",
		"   URL: https://en.wikipedia.org/wiki/AIXI",
		"   Source: Wikipedia",
		"2. [Related Topic] Marcus Hutter",
		"3. [Related Topic] Solomonoff induction",
		"   Content: Solomonoff induction - a theory of prediction",
	} {
		if !strings.Contains(res.Output, want) {
			t.Errorf("output missing %q:\n%s", want, res.Output)
		}
	}
}

func TestWebSearchSimpleMode(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(instantAnswerJSON))
	}))
	defer srv.Close()

	ws := NewWebSearch(srv.URL+"/", time.Second)
	res := invoke(t, ws, `{"query": "AIXI", "simple": true}`)
	if strings.Contains(res.Output, "URL:") || strings.Contains(res.Output, "Source:") {
		t.Errorf("simple mode should keep titles and content only:\n%s", res.Output)
	}
	if !strings.Contains(res.Output, "Content: AIXI is a theoretical") {
		t.Errorf("simple mode lost content:\n%s", res.Output)
	}
}

func TestWebSearchNoResults(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"RelatedTopics": []}`))
	}))
	defer srv.Close()

	res := invoke(t, NewWebSearch(srv.URL+"/", time.Second), `{"query": "zzqx"}`)
	want := "SUCCESS: Search completed for 'zzqx' but no results found. Try a different query."
	if res.Output != want {
		t.Errorf("got %q, want %q", res.Output, want)
	}
}

func TestWebSearchValidation(t *testing.T) {
	ws := NewWebSearch("http://127.0.0.1:0/", time.Second)

	tests := map[string]string{
		`{"query": " "}`:                    "ERROR: 'query' field is required and cannot be empty",
		`{"query": "x", "max_results": 0}`:  "ERROR: 'max_results' must be an integer between 1 and 10",
		`{"query": "x", "max_results": 11}`: "ERROR: 'max_results' must be an integer between 1 and 10",
	}
	for payload, want := range tests {
		if got := ws.Invoke(context.Background(), json.RawMessage(payload)).Output; got != want {
			t.Errorf("payload %s: got %q, want %q", payload, got, want)
		}
	}
}

func TestWebSearchBadResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html>`))
	}))
	defer srv.Close()

	res := invoke(t, NewWebSearch(srv.URL+"/", time.Second), `{"query": "x"}`)
	if res.Output != "ERROR: Invalid response format from search API for query 'x'" {
		t.Errorf("unexpected output %q", res.Output)
	}
}

func TestWebSearchTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer srv.Close()

	res := invoke(t, NewWebSearch(srv.URL+"/", 50*time.Millisecond), `{"query": "slow"}`)
	if res.Output != "ERROR: Search request timed out for query 'slow'" {
		t.Errorf("unexpected output %q", res.Output)
	}
}

func TestWebSearchCircuitBreakerOpens(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	ws := NewWebSearch(srv.URL+"/", time.Second,
		WithSearchBreaker(resilience.CircuitBreakerConfig{FailureThreshold: 2, Timeout: time.Minute}))

	for i := 0; i < 2; i++ {
		res := invoke(t, ws, `{"query": "x"}`)
		if !strings.HasPrefix(res.Output, "ERROR: Network error during search for 'x'") {
			t.Fatalf("call %d: unexpected output %q", i, res.Output)
		}
	}

	res := invoke(t, ws, `{"query": "x"}`)
	if res.Output != "ERROR: web search temporarily unavailable" {
		t.Fatalf("expected short-circuit, got %q", res.Output)
	}
	if calls.Load() != 2 {
		t.Errorf("breaker should not reach the server, got %d calls", calls.Load())
	}
}

func TestStripHTML(t *testing.T) {
	got := stripHTML(`<a href="x">Go</a> &amp; <b>yaegi</b>`)
	if got != "Go & yaegi" {
		t.Errorf("unexpected %q", got)
	}
	if stripHTML("plain text") != "plain text" {
		t.Errorf("plain text should pass through")
	}
}
