package logger

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap"

	"twitchbot/pkg/config"
)

func TestModuleTagsEntries(t *testing.T) {
	var buf bytes.Buffer
	log, err := New(&Config{Level: LevelInfo, Console: &buf})
	if err != nil {
		t.Fatalf("new logger: %v", err)
	}

	log.Module("dispatcher").Info("hello", zap.String("channel", "#foo"))
	_ = log.Sync()

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("expected JSON line, got %q: %v", buf.String(), err)
	}
	if entry[ModuleKey] != "dispatcher" {
		t.Fatalf("expected module dispatcher, got %v", entry[ModuleKey])
	}
	if entry["channel"] != "#foo" {
		t.Fatalf("expected channel field, got %v", entry["channel"])
	}
}

func TestLevelFiltersEntries(t *testing.T) {
	var buf bytes.Buffer
	log, err := New(&Config{Level: LevelWarn, Console: &buf})
	if err != nil {
		t.Fatalf("new logger: %v", err)
	}

	log.Info("dropped")
	log.Warn("kept")
	_ = log.Sync()

	out := buf.String()
	if strings.Contains(out, "dropped") {
		t.Fatalf("info entry should be filtered: %s", out)
	}
	if !strings.Contains(out, "kept") {
		t.Fatalf("warn entry missing: %s", out)
	}
}

func TestDualOutputWritesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "bot.log")
	var buf bytes.Buffer
	log, err := New(&Config{Level: LevelInfo, OutputPath: path, MaxSize: 1, Console: &buf})
	if err != nil {
		t.Fatalf("new logger: %v", err)
	}

	log.Info("to both sinks")
	_ = log.Sync()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if !strings.Contains(string(data), "to both sinks") {
		t.Fatalf("file sink missing entry: %s", data)
	}
	if !strings.Contains(buf.String(), "to both sinks") {
		t.Fatalf("console sink missing entry: %s", buf.String())
	}
}

func TestNewRejectsUnknownLevel(t *testing.T) {
	if _, err := New(&Config{Level: "loud"}); err == nil {
		t.Fatalf("expected error for unknown level")
	}
}

func TestFromConfigKeepsDefaultsForZeroValues(t *testing.T) {
	cfg := FromConfig(config.LoggerConfig{Level: "debug"})
	if cfg.Level != LevelDebug {
		t.Fatalf("expected debug level, got %s", cfg.Level)
	}
	if cfg.MaxSize != 100 || cfg.MaxBackups != 3 || cfg.MaxAge != 7 {
		t.Fatalf("expected rotation defaults, got %+v", cfg)
	}
	if cfg.OutputPath != "" {
		t.Fatalf("expected empty output path to stay console only, got %q", cfg.OutputPath)
	}
}
