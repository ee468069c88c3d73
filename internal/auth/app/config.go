package app

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/hyperfoil/horreum-auth/internal/auth/domain"
	"github.com/hyperfoil/horreum-auth/internal/auth/service"
)

type Config struct {
	DatabaseFile string // Optional: path to SQLite database file (default: ./horreum-auth.db)

	ActiveDays       int    // Optional: default validity window for new keys in days (default: 30)
	ArchiveGraceDays int    // Optional: days past expiration before keys leave listings (default: 7)
	NotifyOffsets    []int  // Optional: days-to-expiration marks for notifications (default: 7,2,1,0,-1)
	SweepSchedule    string // Optional: cron expression for the expiry sweep (default: @daily)
	TeamSuffix       string // Optional: suffix stripped from team names when deriving roles (default: -team)

	BootstrapUser string // Optional: username created with the manager role on first start
	BootstrapTeam string // Optional: team the bootstrap user is added to

	Env                 string        // Environment (dev, staging, prod) (default: dev)
	LogLevel            string        // Log level (debug, info, warn, error) (default: info)
	LogFormat           string        // Log format (json, text) (default: json)
	Port                int           // HTTP server port (default: 8080)
	ShutdownGracePeriod time.Duration // Graceful shutdown timeout (default: 10s)
}

func LoadConfig() Config {
	return Config{
		DatabaseFile: getEnvOrDefault("HORREUM_DATABASE_FILE", "horreum-auth.db"),

		ActiveDays:       getEnvIntOrDefault("HORREUM_ACTIVE_DAYS", domain.DefaultActiveDays),
		ArchiveGraceDays: getEnvIntOrDefault("HORREUM_ARCHIVE_GRACE_DAYS", domain.ArchiveAfterDays),
		NotifyOffsets:    getEnvIntsOrDefault("HORREUM_NOTIFY_OFFSETS", service.DefaultNotifyOffsets),
		SweepSchedule:    getEnvOrDefault("HORREUM_SWEEP_SCHEDULE", "@daily"),
		TeamSuffix:       getEnvOrDefault("HORREUM_TEAM_SUFFIX", "-team"),

		BootstrapUser: os.Getenv("HORREUM_BOOTSTRAP_USER"),
		BootstrapTeam: os.Getenv("HORREUM_BOOTSTRAP_TEAM"),

		Env:                 getEnvOrDefault("ENV", "dev"),
		LogLevel:            getEnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:           getEnvOrDefault("LOG_FORMAT", "json"),
		Port:                getEnvIntOrDefault("PORT", 8080),
		ShutdownGracePeriod: getEnvDurationOrDefault("SHUTDOWN_GRACE_PERIOD", 10*time.Second),
	}
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	if intValue, err := strconv.Atoi(value); err == nil {
		return intValue
	}

	return defaultValue
}

// getEnvIntsOrDefault parses a comma-separated integer list. Any malformed
// entry discards the whole value in favor of the default.
func getEnvIntsOrDefault(key string, defaultValue []int) []int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	parts := strings.Split(value, ",")
	out := make([]int, 0, len(parts))
	for _, p := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return defaultValue
		}
		out = append(out, n)
	}
	return out
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	if duration, err := time.ParseDuration(value); err == nil {
		return duration
	}

	return defaultValue
}
