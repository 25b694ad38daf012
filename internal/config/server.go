package config

import (
	"fmt"
	"os"
	"strings"
	"time"
)

// Server contains runtime settings for the reference collection endpoint.
type Server struct {
	Addr             string
	DatabaseURL      string
	MetricsNamespace string
	ShutdownTimeout  time.Duration
}

// LoadServer reads environment variables and applies defaults.
// The listen port follows PORT when GTODO_ADDR is unset.
func LoadServer() (Server, error) {
	addr := envOrDefault("GTODO_ADDR", "")
	if addr == "" {
		addr = "0.0.0.0:" + envOrDefault("PORT", "5000")
	}
	cfg := Server{
		Addr:             addr,
		DatabaseURL:      strings.TrimSpace(os.Getenv("DATABASE_URL")),
		MetricsNamespace: envOrDefault("GTODO_METRICS_NAMESPACE", "gtodo"),
		ShutdownTimeout:  10 * time.Second,
	}
	var err error
	cfg.ShutdownTimeout, err = durationFromEnv("GTODO_SHUTDOWN_TIMEOUT", cfg.ShutdownTimeout)
	if err != nil {
		return Server{}, err
	}
	if cfg.ShutdownTimeout <= 0 {
		return Server{}, fmt.Errorf("GTODO_SHUTDOWN_TIMEOUT must be positive")
	}
	return cfg, nil
}
