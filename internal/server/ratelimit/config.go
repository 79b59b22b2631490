package ratelimit

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds rate limiting configuration.
type Config struct {
	Enabled bool
	Default Rule // applies to requests no rule matches; Path and Method are ignored
	Rules   []Rule

	// Buckets idle for IdleTTL are dropped every CleanupInterval
	IdleTTL         time.Duration
	CleanupInterval time.Duration

	Allowlist map[string]bool // never limited
	Denylist  map[string]bool // always refused
}

// DefaultConfig returns an enabled limiter with DefaultRules
func DefaultConfig() *Config {
	return &Config{
		Enabled:         true,
		Default:         Rule{Limit: 1000, Window: time.Minute},
		Rules:           DefaultRules(),
		IdleTTL:         time.Hour,
		CleanupInterval: 5 * time.Minute,
		Allowlist:       map[string]bool{},
		Denylist:        map[string]bool{},
	}
}

// LoadConfig reads RATE_LIMIT_* environment variables over DefaultConfig.
// A malformed value is an error rather than silently ignored.
func LoadConfig() (*Config, error) {
	cfg := DefaultConfig()
	var err error

	if cfg.Enabled, err = envBool("RATE_LIMIT_ENABLED", cfg.Enabled); err != nil {
		return nil, err
	}
	if !cfg.Enabled {
		return &Config{}, nil
	}
	if cfg.Default.Limit, err = envInt("RATE_LIMIT_DEFAULT_LIMIT", cfg.Default.Limit); err != nil {
		return nil, err
	}
	if cfg.Default.Window, err = envDuration("RATE_LIMIT_DEFAULT_WINDOW", cfg.Default.Window); err != nil {
		return nil, err
	}
	if cfg.CleanupInterval, err = envDuration("RATE_LIMIT_CLEANUP_INTERVAL", cfg.CleanupInterval); err != nil {
		return nil, err
	}
	if cfg.IdleTTL, err = envDuration("RATE_LIMIT_IDLE_TTL", cfg.IdleTTL); err != nil {
		return nil, err
	}
	cfg.Allowlist = parseIPList(os.Getenv("RATE_LIMIT_ALLOWLIST"))
	cfg.Denylist = parseIPList(os.Getenv("RATE_LIMIT_DENYLIST"))
	return cfg, nil
}

func envInt(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %v", key, err)
	}
	return n, nil
}

func envBool(key string, def bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("invalid %s: %v", key, err)
	}
	return b, nil
}

func envDuration(key string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %v", key, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("invalid %s: must be positive", key)
	}
	return d, nil
}

// parseIPList parses a comma-separated list of client addresses
func parseIPList(list string) map[string]bool {
	out := map[string]bool{}
	for _, ip := range strings.Split(list, ",") {
		if ip = strings.TrimSpace(ip); ip != "" {
			out[ip] = true
		}
	}
	return out
}
