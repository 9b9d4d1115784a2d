package monitoring

import (
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestSetLogger(t *testing.T) {
	original := L()
	defer SetLogger(original)

	core, logs := observer.New(zap.InfoLevel)
	SetLogger(zap.New(core))

	Logf("test message: %s", "value")

	if logs.Len() != 1 {
		t.Fatalf("expected 1 log entry, got %d", logs.Len())
	}
	if got := logs.All()[0].Message; got != "test message: value" {
		t.Errorf("message = %q", got)
	}

	// nil installs a no-op logger
	SetLogger(nil)
	Logf("dropped")
	if logs.Len() != 1 {
		t.Errorf("no-op logger should not write, got %d entries", logs.Len())
	}
}

func TestSetDebug(t *testing.T) {
	defer SetDebug(false)

	SetDebug(false)
	if DebugEnabled() {
		t.Error("debug should be disabled")
	}

	SetDebug(true)
	if !DebugEnabled() {
		t.Error("debug should be enabled")
	}
}

func TestNamed(t *testing.T) {
	original := L()
	defer SetLogger(original)

	core, logs := observer.New(zap.DebugLevel)
	SetLogger(zap.New(core))

	Named("listener").Info("started")

	entries := logs.All()
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	if entries[0].LoggerName != "listener" {
		t.Errorf("logger name = %q, want listener", entries[0].LoggerName)
	}
}
