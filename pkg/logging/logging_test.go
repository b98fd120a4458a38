package logging_test

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/kirill555101/paperclip/pkg/logging"
)

func TestConfigFinalize(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		cfg := &logging.Config{}
		if err := cfg.Finalize(nil); err != nil {
			t.Fatalf("Finalize() failed: %v", err)
		}
		if cfg.Level != logging.LevelInfo || cfg.Format != logging.FormatText || cfg.Output != logging.OutputStdout {
			t.Errorf("defaults = %+v", cfg)
		}
	})

	t.Run("env overrides", func(t *testing.T) {
		t.Setenv("TEST_LOG_LEVEL", "debug")
		t.Setenv("TEST_LOG_OUTPUT", "stderr")

		cfg := &logging.Config{Format: logging.FormatJSON}
		if err := cfg.Finalize(&logging.Env{Level: "TEST_LOG_LEVEL", Output: "TEST_LOG_OUTPUT"}); err != nil {
			t.Fatalf("Finalize() failed: %v", err)
		}
		if cfg.Level != logging.LevelDebug || cfg.Output != logging.OutputStderr || cfg.Format != logging.FormatJSON {
			t.Errorf("got %+v", cfg)
		}
	})

	tests := []struct {
		name string
		cfg  logging.Config
	}{
		{"bad level", logging.Config{Level: "loud"}},
		{"bad format", logging.Config{Format: "xml"}},
		{"bad output", logging.Config{Output: "syslog"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.cfg.Finalize(nil); err == nil {
				t.Error("Finalize() should fail")
			}
		})
	}
}

func TestMerge(t *testing.T) {
	base := logging.Config{Level: logging.LevelInfo, Format: logging.FormatText}
	base.Merge(&logging.Config{Format: logging.FormatJSON})

	if base.Level != logging.LevelInfo || base.Format != logging.FormatJSON {
		t.Errorf("Merge() = %+v", base)
	}
}

func TestNewWithWriter(t *testing.T) {
	var buf bytes.Buffer
	logger := logging.NewWithWriter(&logging.Config{Level: logging.LevelWarn, Format: logging.FormatJSON}, &buf)

	logger.Info("hidden")
	logger.Warn("shown", "key", "avatars/1/thumb/a.gif")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("got %d lines, want 1: %q", len(lines), buf.String())
	}

	var entry map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &entry); err != nil {
		t.Fatalf("not JSON: %v", err)
	}
	if entry["msg"] != "shown" || entry["key"] != "avatars/1/thumb/a.gif" {
		t.Errorf("entry = %v", entry)
	}
}
