package logging

import (
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestNewDevelopmentLogger(t *testing.T) {
	t.Parallel()

	logger, err := New(true, "starcrawler", "dev")
	if err != nil {
		t.Fatalf("New(true) error = %v", err)
	}
	if logger == nil {
		t.Fatal("expected logger to be non-nil")
	}
	defer logger.Sync() //nolint:errcheck // best-effort flush
	logger.Info("development logger ready")
}

func TestNewProductionLogger(t *testing.T) {
	t.Parallel()

	logger, err := New(false, "starcrawler", "1.0.0")
	if err != nil {
		t.Fatalf("New(false) error = %v", err)
	}
	if logger == nil {
		t.Fatal("expected logger to be non-nil")
	}
	defer logger.Sync() //nolint:errcheck // best-effort flush
	logger.Info("production logger ready")
}

func TestWithServiceMetadata(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zapcore.InfoLevel)
	logger := withServiceMetadata(zap.New(core), "starcrawler", "1.2.3")
	logger.Info("hello")

	entries := logs.All()
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	fields := entries[0].ContextMap()
	if fields["service"] != "starcrawler" {
		t.Fatalf("expected service field, got %v", fields)
	}
	if fields["version"] != "1.2.3" {
		t.Fatalf("expected version field, got %v", fields)
	}
}

func TestWithServiceMetadataSkipsEmptyService(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zapcore.InfoLevel)
	logger := withServiceMetadata(zap.New(core), "", "1.2.3")
	logger.Info("hello")

	if fields := logs.All()[0].ContextMap(); len(fields) != 0 {
		t.Fatalf("expected no metadata fields, got %v", fields)
	}
}
