package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/bimmerbailey/triage/internal/report"
)

func TestNewRecord(t *testing.T) {
	now := time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)
	rep := &report.AnalysisReport{
		RunID:      "run-1",
		FilePath:   "/var/log/app.log",
		Provider:   "openrouter",
		Model:      "stub-model",
		Confidence: 0.8,
		CreatedAt:  now,
		DurationMS: 1500,
	}

	tests := []struct {
		name      string
		rep       *report.AnalysisReport
		err       error
		status    string
		kind      string
		provider  string
		hasReport bool
	}{
		{
			name:      "success",
			rep:       rep,
			status:    StatusOK,
			provider:  "openrouter",
			hasReport: true,
		},
		{
			name:     "classified failure",
			err:      &report.AnalysisError{Kind: report.KindCircuitOpen, Provider: "ollama", Err: errors.New("breaker open")},
			status:   StatusFailed,
			kind:     "circuit_open",
			provider: "ollama",
		},
		{
			name:   "wrapped failure",
			err:    fmt.Errorf("run: %w", report.Errorf(report.KindTimeout, "deadline")),
			status: StatusFailed,
			kind:   "timeout",
		},
		{
			name:   "unclassified failure",
			err:    errors.New("boom"),
			status: StatusFailed,
			kind:   "internal",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, err := NewRecord("/var/log/app.log", tt.rep, tt.err, now)
			if err != nil {
				t.Fatalf("NewRecord() error = %v", err)
			}
			if rec.Status != tt.status || rec.ErrorKind != tt.kind || rec.Provider != tt.provider {
				t.Errorf("NewRecord() = status %q kind %q provider %q, want %q %q %q",
					rec.Status, rec.ErrorKind, rec.Provider, tt.status, tt.kind, tt.provider)
			}
			if rec.RunID == "" || rec.FilePath != "/var/log/app.log" || !rec.CreatedAt.Equal(now) {
				t.Errorf("unexpected identity fields: %+v", rec)
			}
			if tt.hasReport {
				var decoded report.AnalysisReport
				if err := json.Unmarshal(rec.Report, &decoded); err != nil {
					t.Fatalf("stored report is not JSON: %v", err)
				}
				if decoded.RunID != "run-1" || rec.DurationMS != 1500 {
					t.Errorf("unexpected stored report: %+v", decoded)
				}
			} else if rec.Report != nil {
				t.Errorf("failed run should not store a report")
			}
		})
	}
}

func TestNewRecordBoundsErrorText(t *testing.T) {
	long := report.Errorf(report.KindProviderServer, "%s", strings.Repeat("x", 5000))
	rec, err := NewRecord("app.log", nil, long, time.Now())
	if err != nil {
		t.Fatalf("NewRecord() error = %v", err)
	}
	if n := len([]rune(rec.ErrorText)); n > 1000 {
		t.Errorf("error text has %d runes, want at most 1000", n)
	}
}

// TestPostgresRoundTrip runs against a real database when TRIAGE_TEST_DSN is set.
func TestPostgresRoundTrip(t *testing.T) {
	dsn := os.Getenv("TRIAGE_TEST_DSN")
	if dsn == "" {
		t.Skip("TRIAGE_TEST_DSN not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	p, err := New(ctx, dsn)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer p.Close()

	rep := &report.AnalysisReport{RunID: fmt.Sprintf("test-%d", time.Now().UnixNano()), FilePath: "app.log", CreatedAt: time.Now().UTC()}
	if err := p.Save(ctx, rep.FilePath, rep, nil); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if err := p.Save(ctx, "missing.log", nil, report.Errorf(report.KindIoError, "no such file")); err != nil {
		t.Fatalf("Save() failure error = %v", err)
	}

	recs, err := p.Recent(ctx, 10)
	if err != nil {
		t.Fatalf("Recent() error = %v", err)
	}
	found := false
	for _, r := range recs {
		if r.RunID == rep.RunID {
			found = true
		}
	}
	if !found {
		t.Errorf("saved run %s not returned by Recent", rep.RunID)
	}
}
