package main

import (
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/kardianos/service"

	"twitchbot/pkg/config"
)

func withConfigPath(t *testing.T, path string) {
	t.Helper()
	original := configPath
	t.Cleanup(func() { configPath = original })
	configPath = path
}

func TestServiceConfig_DefaultArguments(t *testing.T) {
	withConfigPath(t, "")
	t.Setenv(config.ConfigPathEnv, "")

	got := serviceConfig().Arguments
	want := []string{"service", "run"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("arguments mismatch (-want +got):\n%s", diff)
	}
}

func TestServiceConfig_IncludesConfigFlag(t *testing.T) {
	configFile := filepath.Join(t.TempDir(), "bot.yaml")
	withConfigPath(t, configFile)
	t.Setenv(config.ConfigPathEnv, "")

	got := serviceConfig().Arguments
	want := []string{"-c", configFile, "service", "run"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("arguments mismatch (-want +got):\n%s", diff)
	}
}

func TestServiceConfig_UsesConfigPathEnv(t *testing.T) {
	withConfigPath(t, "")
	configFile := filepath.Join(t.TempDir(), "env.yaml")
	t.Setenv(config.ConfigPathEnv, configFile)

	got := serviceConfig().Arguments
	want := []string{"-c", configFile, "service", "run"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("arguments mismatch (-want +got):\n%s", diff)
	}
}

func TestStatusString(t *testing.T) {
	cases := map[service.Status]string{
		service.StatusRunning: "Running",
		service.StatusStopped: "Stopped",
		service.StatusUnknown: "Unknown",
	}
	for status, want := range cases {
		if got := statusString(status); got != want {
			t.Fatalf("statusString(%v) = %q, want %q", status, got, want)
		}
	}
}
