package shared

import (
	"bytes"
	"strings"
	"testing"

	"github.com/charmbracelet/log"
)

func TestNewLogger(t *testing.T) {
	t.Run("writes to the provided writer", func(t *testing.T) {
		var buf bytes.Buffer
		logger := NewLogger(&buf)

		logger.Info("hello")

		if !strings.Contains(buf.String(), "hello") {
			t.Errorf("expected log output to contain message, got %q", buf.String())
		}
	})

	t.Run("nil writer defaults to stderr", func(t *testing.T) {
		logger := NewLogger(nil)
		if logger == nil {
			t.Fatal("expected logger")
		}
	})
}

func TestWithLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&buf)
	child := WithLogger(logger, "component", "test")

	child.Info("tagged")

	out := buf.String()
	if !strings.Contains(out, "component") || !strings.Contains(out, "test") {
		t.Errorf("expected key-value pair in output, got %q", out)
	}
}

func TestSetLogLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&buf)

	SetLogLevel(logger, log.ErrorLevel)
	logger.Info("suppressed")

	if strings.Contains(buf.String(), "suppressed") {
		t.Errorf("expected info message to be suppressed, got %q", buf.String())
	}
}

func TestGenerateID(t *testing.T) {
	a := GenerateID()
	b := GenerateID()

	if a == "" || b == "" {
		t.Fatal("expected non-empty ids")
	}
	if a == b {
		t.Error("expected unique ids")
	}
	if len(a) != 36 {
		t.Errorf("expected uuid string length 36, got %d", len(a))
	}
}
