package logger

import (
	"bytes"
	"encoding/json"
	"os"
	"testing"

	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
)

func TestInitLevel(t *testing.T) {
	tests := []struct {
		level string
		want  logrus.Level
	}{
		{"debug", logrus.DebugLevel},
		{"INFO", logrus.InfoLevel},
		{"warn", logrus.WarnLevel},
		{"error", logrus.ErrorLevel},
		{"verbose", logrus.InfoLevel},
	}

	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			Init(tt.level, "json")
			if got := defaultLogger.GetLevel(); got != tt.want {
				t.Errorf("Init(%q) level = %v, want %v", tt.level, got, tt.want)
			}
		})
	}
}

func TestWithFieldsJSON(t *testing.T) {
	var buf bytes.Buffer
	defaultLogger.SetOutput(&buf)
	t.Cleanup(func() { defaultLogger.SetOutput(os.Stderr) })
	Init("info", "json")

	WithFields(Fields{"signature": "abc"}).Info("classified")

	var entry map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("output is not JSON: %v (%q)", err, buf.String())
	}
	if entry["signature"] != "abc" {
		t.Errorf("signature field = %v, want abc", entry["signature"])
	}
	if entry["msg"] != "classified" {
		t.Errorf("msg = %v, want classified", entry["msg"])
	}
}

func TestAddHook(t *testing.T) {
	Init("info", "json")
	defaultLogger.SetOutput(&bytes.Buffer{})
	t.Cleanup(func() {
		defaultLogger.SetOutput(os.Stderr)
		defaultLogger.ReplaceHooks(make(logrus.LevelHooks))
	})

	hook := new(logtest.Hook)
	AddHook(hook)
	Warn("slot %d skipped", 7)
	Debug("not captured")

	entries := hook.AllEntries()
	if len(entries) != 1 {
		t.Fatalf("captured %d entries, want 1", len(entries))
	}
	if entries[0].Message != "slot 7 skipped" || entries[0].Level != logrus.WarnLevel {
		t.Errorf("entry = %q at %v, want warn %q", entries[0].Message, entries[0].Level, "slot 7 skipped")
	}
}
