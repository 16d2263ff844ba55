package log

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/sirupsen/logrus"
)

func TestNewLoggerWritesJSONAtLevel(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger, err := NewLoggerTo(&buf, "WARN")
	if err != nil {
		t.Fatalf("NewLoggerTo returned error: %v", err)
	}

	if logger.GetLevel() != logrus.WarnLevel {
		t.Fatalf("expected warn level, got %s", logger.GetLevel())
	}

	logger.Info("hidden")
	logger.WithField("stage", "title").Warn("visible")

	var entry map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &entry); err != nil {
		t.Fatalf("expected a single JSON entry, got %q: %v", buf.String(), err)
	}

	if entry["msg"] != "visible" || entry["stage"] != "title" {
		t.Fatalf("unexpected entry %v", entry)
	}
}

func TestNewLoggerRejectsUnknownLevel(t *testing.T) {
	t.Parallel()

	if _, err := NewLogger("chatty"); err == nil {
		t.Fatalf("expected error for unknown level")
	}
}

func TestInitSentryWithoutDSNIsNoop(t *testing.T) {
	t.Parallel()

	hub, flush, err := InitSentry(Discard(), SentrySettings{})
	if err != nil {
		t.Fatalf("InitSentry returned error: %v", err)
	}
	if hub != nil {
		t.Fatalf("expected nil hub without DSN")
	}
	flush()
}
