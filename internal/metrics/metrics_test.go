package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestSanitizeLanguage(t *testing.T) {
	testCases := []struct {
		name     string
		input    string
		expected string
	}{
		{"plain", "Go", "Go"},
		{"padded", "  Rust ", "Rust"},
		{"symbols kept", "C++", "C++"},
		{"empty string", "", "unknown"},
		{"whitespace only", "   ", "unknown"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := SanitizeLanguage(tc.input); got != tc.expected {
				t.Errorf("SanitizeLanguage(%q) = %q; want %q", tc.input, got, tc.expected)
			}
		})
	}
}

func TestInit(t *testing.T) {
	// Call Init multiple times to test idempotency.
	Init()
	Init()

	if pagesTotal == nil || recordsTotal == nil ||
		httpRequestsTotal == nil || httpRequestDuration == nil {
		t.Fatal("Init() did not initialize metrics collectors")
	}

	ObservePage("Go", 0)
	if val := testutil.ToFloat64(pagesTotal.WithLabelValues("Go")); val < 1 {
		t.Errorf("Expected pagesTotal for Go to be >= 1, got %f", val)
	}
}

func TestObserveRecordsIgnoresNonPositive(t *testing.T) {
	Init()
	before := testutil.ToFloat64(recordsTotal.WithLabelValues("unique"))
	ObserveRecords("unique", 0)
	ObserveRecords("unique", -3)
	after := testutil.ToFloat64(recordsTotal.WithLabelValues("unique"))
	if before != after {
		t.Errorf("Expected recordsTotal unchanged, got %f -> %f", before, after)
	}
}
