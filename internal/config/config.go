// Package config loads cfcal's configuration from environment variables.
// Command-line flags override what is loaded here.
package config

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// Config holds the application configuration.
type Config struct {
	// Server
	Port int    // CFCAL_PORT (default: 8095)
	Host string // CFCAL_HOST (default: 0.0.0.0)

	// Conversion
	UnitsPath string // CFCAL_UNITS_PATH, else UDUNITS_PATH (empty: embedded table)
	Calendar  string // CFCAL_CALENDAR (default: standard)

	// Security
	AuthToken string   // CFCAL_AUTH_TOKEN (optional, requires Bearer token when set)
	RateLimit int      // CFCAL_RATE_LIMIT requests per minute per client (default: 120, 0 disables)
	RateAllow []string // CFCAL_RATE_ALLOW comma-separated IPs/CIDRs exempt from limiting

	// Logging
	LogDir    string // CFCAL_LOG_DIR (optional, rotated log file)
	LogFormat string // CFCAL_LOG_FORMAT text|json (default: text)
	AccessLog bool   // CFCAL_ACCESS_LOG (default: false)

	// Batch inbox
	WatchDir     string // CFCAL_WATCH_DIR (optional)
	OutputDir    string // CFCAL_OUTPUT_DIR (optional, results archive)
	HistoryLimit int    // CFCAL_HISTORY_LIMIT (default: 20)

	// TLS
	EnableTLS    bool     // CFCAL_ENABLE_TLS (default: false, self-signed)
	TLSDir       string   // CFCAL_TLS_DIR (default: ~/.config/cfcal/tls)
	TLSHostnames []string // CFCAL_TLS_HOSTNAMES comma-separated extra names
}

// Load reads configuration from environment variables with defaults.
func Load() *Config {
	return &Config{
		Port:         envInt("CFCAL_PORT", 8095),
		Host:         envStr("CFCAL_HOST", "0.0.0.0"),
		UnitsPath:    envStr("CFCAL_UNITS_PATH", os.Getenv("UDUNITS_PATH")),
		Calendar:     envStr("CFCAL_CALENDAR", "standard"),
		AuthToken:    envStr("CFCAL_AUTH_TOKEN", ""),
		RateLimit:    envInt("CFCAL_RATE_LIMIT", 120),
		RateAllow:    envList("CFCAL_RATE_ALLOW"),
		LogDir:       envStr("CFCAL_LOG_DIR", ""),
		LogFormat:    strings.ToLower(envStr("CFCAL_LOG_FORMAT", "text")),
		AccessLog:    envBool("CFCAL_ACCESS_LOG", false),
		WatchDir:     envStr("CFCAL_WATCH_DIR", ""),
		OutputDir:    envStr("CFCAL_OUTPUT_DIR", ""),
		HistoryLimit: envInt("CFCAL_HISTORY_LIMIT", 20),
		EnableTLS:    envBool("CFCAL_ENABLE_TLS", false),
		TLSDir:       envStr("CFCAL_TLS_DIR", defaultTLSDir()),
		TLSHostnames: envList("CFCAL_TLS_HOSTNAMES"),
	}
}

// Validate reports the first setting that cannot work.
func (c *Config) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("port %d out of range", c.Port)
	}
	if c.RateLimit < 0 {
		return fmt.Errorf("rate limit %d is negative", c.RateLimit)
	}
	if c.LogFormat != "text" && c.LogFormat != "json" {
		return fmt.Errorf("log format %q, want text or json", c.LogFormat)
	}
	if c.EnableTLS && c.TLSDir == "" {
		return fmt.Errorf("TLS enabled but no certificate directory")
	}
	return nil
}

// ListenAddr returns the formatted listen address.
func (c *Config) ListenAddr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

func defaultTLSDir() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "cfcal", "tls")
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func envList(key string) []string {
	var out []string
	for _, s := range strings.Split(os.Getenv(key), ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
