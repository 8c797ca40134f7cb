package metrics

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNew_RegistersMetrics(t *testing.T) {
	r := New()

	families, err := r.Gatherer().Gather()
	if err != nil {
		t.Fatalf("failed to gather metrics: %v", err)
	}

	names := make(map[string]bool, len(families))
	for _, f := range families {
		names[f.GetName()] = true
	}
	for _, want := range []string{
		"newtoken_tokens_minted_total",
		"newtoken_failures_total",
		"newtoken_last_success_timestamp_seconds",
		"newtoken_token_expiry_timestamp_seconds",
		"newtoken_run_duration_seconds",
	} {
		if !names[want] {
			t.Errorf("expected %s to be registered", want)
		}
	}
}

func TestNew_IndependentRegistries(t *testing.T) {
	a, b := New(), New()
	a.TokensMinted.Inc()

	if got := testutil.ToFloat64(b.TokensMinted); got != 0 {
		t.Errorf("expected second recorder unaffected, got %v", got)
	}
}

func TestMinted(t *testing.T) {
	r := New()
	now := time.Unix(1714564800, 0)
	exp := now.Add(30 * time.Minute)

	r.Minted(now, exp)

	if got := testutil.ToFloat64(r.TokensMinted); got != 1 {
		t.Errorf("tokens minted = %v, want 1", got)
	}
	if got := testutil.ToFloat64(r.LastSuccess); got != 1714564800 {
		t.Errorf("last success = %v", got)
	}
	if got := testutil.ToFloat64(r.TokenExpiry); got != 1714566600 {
		t.Errorf("token expiry = %v", got)
	}
}

func TestFailed(t *testing.T) {
	r := New()
	r.Failed(ReasonSigning)

	if got := testutil.ToFloat64(r.Failures.WithLabelValues(ReasonSigning)); got != 1 {
		t.Errorf("signing failures = %v, want 1", got)
	}
	if got := testutil.ToFloat64(r.Failures.WithLabelValues(ReasonOutput)); got != 0 {
		t.Errorf("output failures = %v, want 0", got)
	}
}

func TestWriteTextfile(t *testing.T) {
	r := New()
	r.Minted(time.Unix(1714564800, 0), time.Unix(1714566600, 0))
	r.ObserveRun(250 * time.Millisecond)

	path := filepath.Join(t.TempDir(), "newtoken.prom")
	if err := r.WriteTextfile(path); err != nil {
		t.Fatalf("WriteTextfile: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	text := string(data)
	for _, want := range []string{
		"newtoken_tokens_minted_total 1",
		`newtoken_failures_total{reason="output"} 0`,
		`newtoken_failures_total{reason="signing"} 0`,
		"newtoken_run_duration_seconds 0.25",
		"# TYPE newtoken_token_expiry_timestamp_seconds gauge",
	} {
		if !strings.Contains(text, want) {
			t.Errorf("textfile missing %q:\n%s", want, text)
		}
	}
}

func TestWriteTextfile_BadDirectory(t *testing.T) {
	r := New()
	if err := r.WriteTextfile(filepath.Join(t.TempDir(), "missing", "x.prom")); err == nil {
		t.Error("expected error writing into a missing directory")
	}
}
