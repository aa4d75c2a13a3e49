package config

import (
	"os"
	"testing"
	"time"
)

func TestLoader_ParseEnvironment(t *testing.T) {

	t.Run("applies defaults when variables are missing", func(t *testing.T) {
		unset := []string{
			"STUDY_HTTP_PORT",
			"STUDY_SQLITE_DSN",
			"STUDY_SESSION_TTL",
			"STUDY_INVITE_TTL",
			"STUDY_CHAT_PAGE_SIZE",
		}
		for _, key := range unset {
			if err := os.Unsetenv(key); err != nil {
				t.Fatalf("failed to unset %s: %v", key, err)
			}
		}

		cfg, err := Load()
		if err != nil {
			t.Fatalf("Load returned error: %v", err)
		}

		if cfg.HTTPPort != 8080 {
			t.Fatalf("expected default HTTP port 8080, got %d", cfg.HTTPPort)
		}
		if cfg.SQLiteDSN != "file:study.db?_foreign_keys=on" {
			t.Fatalf("unexpected default DSN: %q", cfg.SQLiteDSN)
		}
		if cfg.SessionTTL != 24*time.Hour {
			t.Fatalf("unexpected default session TTL: %s", cfg.SessionTTL)
		}
		if cfg.InviteTTL != 24*time.Hour {
			t.Fatalf("unexpected default invite TTL: %s", cfg.InviteTTL)
		}
		if cfg.ChatPageSize != 30 {
			t.Fatalf("unexpected default chat page size: %d", cfg.ChatPageSize)
		}
	})

	t.Run("parses duration and numeric fields", func(t *testing.T) {
		t.Setenv("STUDY_HTTP_PORT", "9090")
		t.Setenv("STUDY_SQLITE_DSN", "file:/tmp/study.db")
		t.Setenv("STUDY_SESSION_TTL", "12h")
		t.Setenv("STUDY_INVITE_TTL", "48h")
		t.Setenv("STUDY_CHAT_PAGE_SIZE", "50")

		cfg, err := Load()
		if err != nil {
			t.Fatalf("Load returned error: %v", err)
		}

		if cfg.HTTPPort != 9090 {
			t.Fatalf("expected HTTP port 9090, got %d", cfg.HTTPPort)
		}
		if cfg.SQLiteDSN != "file:/tmp/study.db" {
			t.Fatalf("unexpected DSN: %q", cfg.SQLiteDSN)
		}
		if cfg.SessionTTL != 12*time.Hour {
			t.Fatalf("expected session TTL 12h, got %s", cfg.SessionTTL)
		}
		if cfg.InviteTTL != 48*time.Hour {
			t.Fatalf("expected invite TTL 48h, got %s", cfg.InviteTTL)
		}
		if cfg.ChatPageSize != 50 {
			t.Fatalf("expected chat page size 50, got %d", cfg.ChatPageSize)
		}
	})

	t.Run("errors on malformed values", func(t *testing.T) {
		t.Setenv("STUDY_HTTP_PORT", "not-a-port")
		t.Setenv("STUDY_SESSION_TTL", "yesterday")

		_, err := Load()
		if err == nil {
			t.Fatal("expected error for malformed values")
		}
	})
}
