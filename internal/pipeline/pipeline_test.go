package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bimmerbailey/triage/internal/breaker"
	"github.com/bimmerbailey/triage/internal/config"
	"github.com/bimmerbailey/triage/internal/report"
)

const cannedAnswer = `## Executive Summary
The database went away.

## Sequence of Events
1. pool exhausted

## Root Cause
Category: infrastructure
Confidence: 0.8
Connection pool exhausted in pool.go:88.

## Recommendations
1. Raise the pool size
`

// llmStub is an OpenRouter-style endpoint. statuses are returned in order
// for the first calls; later calls succeed.
type llmStub struct {
	mu       sync.Mutex
	statuses []int
	calls    int
	bodies   []string
	block    bool
}

func (s *llmStub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Messages []struct {
			Content string `json:"content"`
		} `json:"messages"`
	}
	_ = json.NewDecoder(r.Body).Decode(&body)

	s.mu.Lock()
	n := s.calls
	s.calls++
	if len(body.Messages) > 1 {
		s.bodies = append(s.bodies, body.Messages[1].Content)
	}
	block := s.block
	status := http.StatusOK
	if n < len(s.statuses) {
		status = s.statuses[n]
	} else if len(s.statuses) > 0 && s.statuses[len(s.statuses)-1] >= 500 {
		status = s.statuses[len(s.statuses)-1]
	}
	s.mu.Unlock()

	if block {
		<-r.Context().Done()
		return
	}
	if status != http.StatusOK {
		http.Error(w, fmt.Sprintf(`{"error":{"message":"status %d"}}`, status), status)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"model": "stub-model",
		"choices": []map[string]interface{}{
			{"message": map[string]string{"role": "assistant", "content": cannedAnswer}},
		},
		"usage": map[string]int{"prompt_tokens": 100, "total_tokens": 150},
	})
}

func (s *llmStub) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func newTestPipeline(t *testing.T, stub *llmStub, mutate func(*config.Config)) (*Pipeline, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(stub)
	t.Cleanup(srv.Close)

	cfg := config.Default()
	cfg.LLM.Provider = "openrouter"
	cfg.LLM.OpenRouter.BaseURL = srv.URL
	cfg.LLM.OpenRouter.APIKey = "sk-test"
	cfg.LLM.OpenRouter.Model = "stub-model"
	cfg.Pipeline.RetryBaseDelay = time.Millisecond
	if mutate != nil {
		mutate(&cfg)
	}
	return New(cfg, breaker.NewRegistry(), WithHTTPClient(srv.Client()), WithLogger(testLogger())), srv
}

func writeLog(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "app.log")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func providerBreaker(p *Pipeline) *breaker.Breaker {
	return p.Breakers().Get(breaker.Key("openrouter"), breaker.Config{})
}

func TestAnalyzeNoMatchingEntries(t *testing.T) {
	tests := []struct {
		name     string
		content  string
		minLevel string
	}{
		{"empty file", "", ""},
		{"only info below error", strings.Repeat("2024-01-20T10:30:45Z INFO all good\n", 5), "error"},
		{"only orphan frames", "    at a.b(c.go:1)\n    at d.e(f.go:2)\n", "info"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stub := &llmStub{}
			p, _ := newTestPipeline(t, stub, nil)
			_, err := p.Analyze(context.Background(), Request{FilePath: writeLog(t, tt.content), MinLevel: tt.minLevel})
			if report.KindOf(err) != report.KindNoMatchingEntries {
				t.Fatalf("kind = %v, want no_matching_entries (err %v)", report.KindOf(err), err)
			}
			if stub.Calls() != 0 {
				t.Errorf("provider called %d times", stub.Calls())
			}
		})
	}
}

func TestAnalyzeSingleError(t *testing.T) {
	stub := &llmStub{}
	p, _ := newTestPipeline(t, stub, nil)

	rep, err := p.Analyze(context.Background(), Request{
		FilePath: writeLog(t, "2024-01-20T10:30:45.123Z ERROR [main] Database connection failed\n"),
		MinLevel: "error",
	})
	if err != nil {
		t.Fatalf("Analyze() error = %v", err)
	}
	if rep.Strategy != "single" || rep.Chunks != 1 {
		t.Errorf("strategy = %s chunks = %d, want single/1", rep.Strategy, rep.Chunks)
	}
	if rep.Context.PriorityEntries != 1 {
		t.Errorf("PriorityEntries = %d, want 1", rep.Context.PriorityEntries)
	}
	if rep.RunID == "" || rep.Provider != "openrouter" || rep.Model != "stub-model" {
		t.Errorf("report header = %q %q %q", rep.RunID, rep.Provider, rep.Model)
	}
	if rep.RootCause.Category != "infrastructure" || rep.RootCause.File != "pool.go" || rep.RootCause.Line != 88 {
		t.Errorf("RootCause = %+v", rep.RootCause)
	}
	if len(rep.RelatedErrors) != 1 || rep.RelatedErrors[0].Message != "Database connection failed" {
		t.Errorf("RelatedErrors = %+v", rep.RelatedErrors)
	}
	if rep.Analytics == nil || len(rep.Analytics.TopErrors) != 1 {
		t.Errorf("Analytics = %+v", rep.Analytics)
	}
	if stub.Calls() != 1 {
		t.Errorf("provider calls = %d, want 1", stub.Calls())
	}
	if providerBreaker(p).State() != breaker.StateClosed {
		t.Errorf("breaker state = %v, want closed", providerBreaker(p).State())
	}
}

func TestAnalyzeLargeInputIsChunked(t *testing.T) {
	levels := []string{"INFO", "WARN", "ERROR", "DEBUG"}
	var sb strings.Builder
	for i := 0; i < 50000; i++ {
		fmt.Fprintf(&sb, "2024-01-20T10:%02d:%02dZ %s worker %d processed job %d\n",
			(i/60)%60, i%60, levels[i%len(levels)], i%17, i)
	}

	stub := &llmStub{}
	p, _ := newTestPipeline(t, stub, func(c *config.Config) {
		c.Pipeline.MaxLines = 50000
	})

	rep, err := p.Analyze(context.Background(), Request{FilePath: writeLog(t, sb.String())})
	if err != nil {
		t.Fatalf("Analyze() error = %v", err)
	}
	if rep.Strategy != "chunked" {
		t.Fatalf("strategy = %s, want chunked", rep.Strategy)
	}
	if rep.Chunks < 2 || stub.Calls() != rep.Chunks {
		t.Fatalf("chunks = %d, provider calls = %d", rep.Chunks, stub.Calls())
	}
	if rep.Context.EstimatedTokens > rep.Chunks*config.DefaultMaxTokensPerChunk {
		t.Errorf("estimated tokens %d exceed %d chunks of budget", rep.Context.EstimatedTokens, rep.Chunks)
	}
	for _, want := range []string{"Chunk 1:", "Chunk 2:"} {
		if !strings.Contains(rep.SequenceOfEvents, want) {
			t.Errorf("SequenceOfEvents missing %q", want)
		}
	}
	if len(rep.Recommendations) != 1 {
		t.Errorf("Recommendations = %q, want one deduplicated entry", rep.Recommendations)
	}
	if rep.Context.InputLines != 50000 || rep.Context.FilteredEntries != 37500 {
		t.Errorf("context = %+v", rep.Context)
	}
}

func TestAnalyzeRetriesMaskRateLimits(t *testing.T) {
	stub := &llmStub{statuses: []int{429, 429, 429}}
	p, _ := newTestPipeline(t, stub, nil)

	if _, err := p.Analyze(context.Background(), Request{FilePath: writeLog(t, "ERROR Database connection failed\n")}); err != nil {
		t.Fatalf("Analyze() error = %v", err)
	}
	if stub.Calls() != 4 {
		t.Errorf("provider calls = %d, want 4", stub.Calls())
	}
	if f, _ := providerBreaker(p).Counts(); f != 0 {
		t.Errorf("breaker failures = %d, want 0", f)
	}
}

func TestAnalyzeServerErrorsTripBreaker(t *testing.T) {
	stub := &llmStub{statuses: []int{500}}
	p, _ := newTestPipeline(t, stub, nil)
	path := writeLog(t, "ERROR Database connection failed\n")

	for i := 1; i <= 3; i++ {
		_, err := p.Analyze(context.Background(), Request{FilePath: path})
		if report.KindOf(err) != report.KindProviderServer {
			t.Fatalf("call %d: kind = %v, want provider_server", i, report.KindOf(err))
		}
		if stub.Calls() != 4*i {
			t.Errorf("call %d: provider calls = %d, want %d", i, stub.Calls(), 4*i)
		}
	}
	if providerBreaker(p).State() != breaker.StateOpen {
		t.Fatalf("breaker state = %v, want open", providerBreaker(p).State())
	}

	_, err := p.Analyze(context.Background(), Request{FilePath: path})
	if report.KindOf(err) != report.KindCircuitOpen {
		t.Errorf("kind = %v, want circuit_open", report.KindOf(err))
	}
	if stub.Calls() != 12 {
		t.Errorf("provider invoked while open: calls = %d", stub.Calls())
	}
}

func TestAnalyzeTimeout(t *testing.T) {
	stub := &llmStub{block: true}
	p, _ := newTestPipeline(t, stub, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	_, err := p.Analyze(ctx, Request{FilePath: writeLog(t, "ERROR Database connection failed\n")})
	if report.KindOf(err) != report.KindTimeout {
		t.Fatalf("kind = %v, want timeout (err %v)", report.KindOf(err), err)
	}
	if f, _ := providerBreaker(p).Counts(); f != 0 {
		t.Errorf("breaker counted a cancelled call: failures = %d", f)
	}
}

func TestAnalyzeInvalidInput(t *testing.T) {
	path := writeLog(t, "ERROR boom\n")
	tests := []struct {
		name string
		req  Request
		want report.ErrorKind
	}{
		{"missing path", Request{}, report.KindInvalidInput},
		{"bad level", Request{FilePath: path, MinLevel: "loud"}, report.KindInvalidInput},
		{"bad mode", Request{FilePath: path, Mode: "extreme"}, report.KindInvalidInput},
		{"unknown provider", Request{FilePath: path, Provider: "mystery"}, report.KindInvalidInput},
		{"directory", Request{FilePath: filepath.Dir(path)}, report.KindInvalidInput},
		{"missing file", Request{FilePath: filepath.Join(t.TempDir(), "nope.log")}, report.KindIoError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stub := &llmStub{}
			p, _ := newTestPipeline(t, stub, nil)
			_, err := p.Analyze(context.Background(), tt.req)
			if got := report.KindOf(err); got != tt.want {
				t.Errorf("kind = %v, want %v (err %v)", got, tt.want, err)
			}
			if stub.Calls() != 0 {
				t.Errorf("provider called %d times", stub.Calls())
			}
		})
	}
}

func TestAnalyzeMissingAPIKey(t *testing.T) {
	t.Setenv("OPENROUTER_API_KEY", "")
	p, _ := newTestPipeline(t, &llmStub{}, func(c *config.Config) {
		c.LLM.OpenRouter.APIKey = ""
	})
	_, err := p.Analyze(context.Background(), Request{FilePath: writeLog(t, "ERROR boom\n")})
	if report.KindOf(err) != report.KindProviderAuth {
		t.Errorf("kind = %v, want provider_auth", report.KindOf(err))
	}
}

func TestAnalyzeStreamingAndRedaction(t *testing.T) {
	stub := &llmStub{}
	p, _ := newTestPipeline(t, stub, func(c *config.Config) {
		c.Pipeline.StreamingThreshold = 16
		c.Redaction.Enabled = true
	})

	content := "2024-01-20T10:30:45Z ERROR login failed for alice@example.com from 10.1.2.3\n" +
		"2024-01-20T10:30:46Z INFO retrying\n"
	rep, err := p.Analyze(context.Background(), Request{
		FilePath: writeLog(t, content),
		Window:   time.Minute,
	})
	if err != nil {
		t.Fatalf("Analyze() error = %v", err)
	}
	if rep.Context.RedactedValues < 2 {
		t.Errorf("RedactedValues = %d, want at least 2", rep.Context.RedactedValues)
	}
	if rep.Context.Encoding != "utf-8" || rep.Context.InputLines != 2 {
		t.Errorf("context = %+v", rep.Context)
	}
	for _, body := range stub.bodies {
		if strings.Contains(body, "alice@example.com") || strings.Contains(body, "10.1.2.3") {
			t.Errorf("secret sent to provider:\n%s", body)
		}
	}
	if len(rep.Analytics.TimeWindows) != 1 {
		t.Errorf("TimeWindows = %d, want 1", len(rep.Analytics.TimeWindows))
	}
}

func TestResolveLevel(t *testing.T) {
	tests := []struct {
		requested, def string
		want           config.LogLevel
		wantErr        bool
	}{
		{"", "", config.LevelInfo, false},
		{"", "warn", config.LevelWarn, false},
		{"ERR", "info", config.LevelError, false},
		{"summary", "", config.LevelNone, true},
		{"shouting", "", config.LevelNone, true},
	}
	for _, tt := range tests {
		got, err := resolveLevel(tt.requested, tt.def)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Errorf("resolveLevel(%q, %q) = %v, %v", tt.requested, tt.def, got, err)
		}
	}
}

func TestAnalyzeUnknownRedactionPattern(t *testing.T) {
	stub := &llmStub{}
	p, _ := newTestPipeline(t, stub, func(c *config.Config) {
		c.Redaction.Enabled = true
		c.Redaction.Patterns = []string{"ipv4", "ssn"}
	})

	_, err := p.Analyze(context.Background(), Request{FilePath: writeLog(t, "ERROR boom\n")})
	if report.KindOf(err) != report.KindInvalidInput {
		t.Errorf("kind = %v, want invalid_input (err: %v)", report.KindOf(err), err)
	}
	if len(stub.bodies) != 0 {
		t.Errorf("provider called %d times for invalid config", len(stub.bodies))
	}
}
