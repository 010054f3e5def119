package config

import (
	"log/slog"
	"testing"
)

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"DEBUG", slog.LevelDebug},
		{"debug", slog.LevelDebug},
		{"INFO", slog.LevelInfo},
		{"WARN", slog.LevelWarn},
		{"WARNING", slog.LevelWarn},
		{"ERROR", slog.LevelError},
		{"bogus", slog.LevelInfo},
		{"", slog.LevelInfo},
	}

	for _, tt := range tests {
		if got := parseLogLevel(tt.in); got != tt.want {
			t.Errorf("parseLogLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestValidate(t *testing.T) {
	t.Run("all required set", func(t *testing.T) {
		cfg := Config{DiscordToken: "tok", PostgresURL: "postgres://localhost/slopbot"}
		if err := cfg.Validate(); err != nil {
			t.Errorf("Validate() = %v, want nil", err)
		}
	})

	t.Run("missing discord token", func(t *testing.T) {
		cfg := Config{PostgresURL: "postgres://localhost/slopbot"}
		if err := cfg.Validate(); err == nil {
			t.Error("Validate() = nil, want error for missing DISCORD_TOKEN")
		}
	})

	t.Run("missing postgres url", func(t *testing.T) {
		cfg := Config{DiscordToken: "tok"}
		if err := cfg.Validate(); err == nil {
			t.Error("Validate() = nil, want error for missing POSTGRES_URL")
		}
	})
}
