package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config captures environment driven configuration values for the study
// scheduler service.
type Config struct {
	HTTPPort     int
	SQLiteDSN    string
	SessionTTL   time.Duration
	InviteTTL    time.Duration
	ChatPageSize int
}

// Load parses configuration values from the current process environment.
// A .env file in the working directory is folded in first when present;
// real environment variables win over file entries.
func Load() (Config, error) {
	_ = godotenv.Load()

	cfg := Config{
		HTTPPort:     8080,
		SQLiteDSN:    "file:study.db?_foreign_keys=on",
		SessionTTL:   24 * time.Hour,
		InviteTTL:    24 * time.Hour,
		ChatPageSize: 30,
	}

	invalid := make([]string, 0, 2)

	if portValue := strings.TrimSpace(os.Getenv("STUDY_HTTP_PORT")); portValue != "" {
		port, err := strconv.Atoi(portValue)
		if err != nil || port <= 0 {
			invalid = append(invalid, "STUDY_HTTP_PORT")
		} else {
			cfg.HTTPPort = port
		}
	}

	if dsn := strings.TrimSpace(os.Getenv("STUDY_SQLITE_DSN")); dsn != "" {
		cfg.SQLiteDSN = dsn
	}

	if ttlValue := strings.TrimSpace(os.Getenv("STUDY_SESSION_TTL")); ttlValue != "" {
		ttl, err := time.ParseDuration(ttlValue)
		if err != nil || ttl <= 0 {
			invalid = append(invalid, "STUDY_SESSION_TTL")
		} else {
			cfg.SessionTTL = ttl
		}
	}

	if ttlValue := strings.TrimSpace(os.Getenv("STUDY_INVITE_TTL")); ttlValue != "" {
		ttl, err := time.ParseDuration(ttlValue)
		if err != nil || ttl <= 0 {
			invalid = append(invalid, "STUDY_INVITE_TTL")
		} else {
			cfg.InviteTTL = ttl
		}
	}

	if sizeValue := strings.TrimSpace(os.Getenv("STUDY_CHAT_PAGE_SIZE")); sizeValue != "" {
		size, err := strconv.Atoi(sizeValue)
		if err != nil || size <= 0 {
			invalid = append(invalid, "STUDY_CHAT_PAGE_SIZE")
		} else {
			cfg.ChatPageSize = size
		}
	}

	if len(invalid) > 0 {
		return Config{}, fmt.Errorf("invalid environment variable values: %s", strings.Join(invalid, ", "))
	}

	return cfg, nil
}
