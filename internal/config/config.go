package config

import (
	"os"
	"strconv"
	"time"
)

// Config carries all runtime configuration, read from the environment
// with defaults matching the reference deployment.
type Config struct {
	ListenAddr   string
	DatabasePath string
	JWTSecret    string

	Image          string
	PortRangeStart int
	PortRangeEnd   int
	ReadyTimeout   time.Duration

	SweepInterval  time.Duration
	MaxInstanceAge time.Duration
}

func Load() Config {
	return Config{
		ListenAddr:     getenv("REDISLOFT_LISTEN_ADDR", ":3000"),
		DatabasePath:   getenv("REDISLOFT_DB_PATH", "redisloft.db"),
		JWTSecret:      getenv("REDISLOFT_JWT_SECRET", ""),
		Image:          getenv("REDISLOFT_IMAGE", "redis:7-alpine"),
		PortRangeStart: getint("REDISLOFT_PORT_START", 7000),
		PortRangeEnd:   getint("REDISLOFT_PORT_END", 7012),
		ReadyTimeout:   getduration("REDISLOFT_READY_TIMEOUT", 15*time.Second),
		SweepInterval:  getduration("REDISLOFT_SWEEP_INTERVAL", 30*time.Minute),
		MaxInstanceAge: getduration("REDISLOFT_MAX_AGE", 24*time.Hour),
	}
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getint(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getduration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
