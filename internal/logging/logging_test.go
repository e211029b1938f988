package logging

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
)

func TestNewJSON(t *testing.T) {
	var buf bytes.Buffer
	logger, err := NewWithOutput(&buf, "debug", "json")
	if err != nil {
		t.Fatal(err)
	}
	logger.WithField("resource_id", "r1").Debug("job polled")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("output %q is not JSON: %v", buf.String(), err)
	}
	if entry["resource_id"] != "r1" || entry["msg"] != "job polled" || entry["level"] != "debug" {
		t.Fatalf("entry = %v", entry)
	}
}

func TestNewText(t *testing.T) {
	var buf bytes.Buffer
	logger, err := NewWithOutput(&buf, "warn", "text")
	if err != nil {
		t.Fatal(err)
	}
	if logger.GetLevel() != logrus.WarnLevel {
		t.Fatalf("level = %v", logger.GetLevel())
	}
	logger.Info("hidden")
	logger.Warn("shown")
	if strings.Contains(buf.String(), "hidden") || !strings.Contains(buf.String(), "shown") {
		t.Fatalf("output = %q", buf.String())
	}
}

func TestNewRejectsBadSettings(t *testing.T) {
	if _, err := New("loud", "json"); err == nil {
		t.Fatal("New() accepted an unknown level")
	}
	if _, err := New("info", "xml"); err == nil {
		t.Fatal("New() accepted an unknown format")
	}
}
