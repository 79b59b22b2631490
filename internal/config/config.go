// Package config provides configuration loading and validation for the
// staffing core server and CLI.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"
	_ "time/tzdata"
)

// Defaults applied by LoadServerConfig
const (
	DefaultPort              = 8080
	DefaultFrontendURL       = "http://localhost:5173"
	DefaultFileStorageDir    = "./data/files"
	DefaultTokenExpiryDays   = 7
	DefaultTokenMaxDays      = 30
	DefaultLockTimeout       = 5 * time.Second
	DefaultMaxUploadBytes    = 10 << 20
	DefaultReportTimezone    = "UTC"
	DefaultNotificationsFrom = "onboarding@localhost"
)

// ServerConfig is the runtime configuration of the staffing core. It can be
// read from the environment (LoadServerConfig) or from a JSON file
// (LoadConfig) whose values act as defaults for the environment.
type ServerConfig struct {
	// Storage
	DatabaseURL    string `json:"database_url,omitempty"`
	LockTimeout    string `json:"lock_timeout,omitempty"` // Go duration, e.g. "5s"
	FileStorageDir string `json:"file_storage_dir,omitempty"`
	MaxUploadBytes int64  `json:"max_upload_bytes,omitempty"`
	TokenStoreDir  string `json:"token_store_dir,omitempty"` // empty keeps tokens in memory

	// HTTP
	Port          int    `json:"port,omitempty"`
	FrontendURL   string `json:"frontend_url,omitempty"`
	PublicBaseURL string `json:"public_base_url,omitempty"`

	// Document links
	TokenDefaultDays     int  `json:"document_token_default_days,omitempty"`
	TokenMaxDays         int  `json:"document_token_max_days,omitempty"`
	TokenInvalidateOnUse bool `json:"document_token_invalidate_on_use,omitempty"`

	// Time tracking and reporting
	RequireActiveAccount *bool  `json:"timetrack_require_active_account,omitempty"`
	ReportTimezone       string `json:"report_timezone,omitempty"`

	// Notifications
	ResendAPIKey string `json:"resend_api_key,omitempty"`
	SMTPHost     string `json:"smtp_host,omitempty"`
	SMTPPort     string `json:"smtp_port,omitempty"`
	SMTPUser     string `json:"smtp_user,omitempty"`
	SMTPPass     string `json:"smtp_pass,omitempty"`
	MailFrom     string `json:"mail_from,omitempty"`
	LoginURL     string `json:"login_url,omitempty"`
	CompanyName  string `json:"company_name,omitempty"`
}

// Defaults returns the built-in configuration values
func Defaults() ServerConfig {
	return ServerConfig{
		LockTimeout:      DefaultLockTimeout.String(),
		FileStorageDir:   DefaultFileStorageDir,
		MaxUploadBytes:   DefaultMaxUploadBytes,
		Port:             DefaultPort,
		FrontendURL:      DefaultFrontendURL,
		TokenDefaultDays: DefaultTokenExpiryDays,
		TokenMaxDays:     DefaultTokenMaxDays,
		ReportTimezone:   DefaultReportTimezone,
		SMTPPort:         "587",
		MailFrom:         DefaultNotificationsFrom,
	}
}

// LoadServerConfig reads the configuration from environment variables.
// Only DATABASE_URL is required.
func LoadServerConfig() (*ServerConfig, error) {
	return LoadServerConfigWithFile("")
}

// LoadServerConfigWithFile reads the environment and fills unset values from
// the JSON file at path (when not empty), then from Defaults.
func LoadServerConfigWithFile(path string) (*ServerConfig, error) {
	cfg, err := fromEnv()
	if err != nil {
		return nil, err
	}

	merged := *cfg
	if path != "" {
		file, err := LoadConfig(path)
		if err != nil {
			return nil, err
		}
		merged = merged.MergeWithDefaults(*file)
		if !cfg.TokenInvalidateOnUse && file.TokenInvalidateOnUse {
			merged.TokenInvalidateOnUse = true
		}
	}
	merged = merged.MergeWithDefaults(Defaults())
	if merged.PublicBaseURL == "" {
		merged.PublicBaseURL = fmt.Sprintf("http://localhost:%d", merged.Port)
	}

	if merged.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required but not set")
	}
	if err := merged.Validate(); err != nil {
		return nil, err
	}
	return &merged, nil
}

func fromEnv() (*ServerConfig, error) {
	cfg := &ServerConfig{
		DatabaseURL:    os.Getenv("DATABASE_URL"),
		LockTimeout:    os.Getenv("LOCK_TIMEOUT"),
		FileStorageDir: os.Getenv("FILE_STORAGE_DIR"),
		TokenStoreDir:  os.Getenv("TOKEN_STORE_DIR"),
		FrontendURL:    os.Getenv("FRONTEND_URL"),
		PublicBaseURL:  os.Getenv("PUBLIC_BASE_URL"),
		ReportTimezone: os.Getenv("REPORT_TIMEZONE"),
		ResendAPIKey:   os.Getenv("RESEND_API_KEY"),
		SMTPHost:       os.Getenv("SMTP_HOST"),
		SMTPPort:       os.Getenv("SMTP_PORT"),
		SMTPUser:       os.Getenv("SMTP_USER"),
		SMTPPass:       os.Getenv("SMTP_PASS"),
		MailFrom:       os.Getenv("MAIL_FROM"),
		LoginURL:       os.Getenv("LOGIN_URL"),
		CompanyName:    os.Getenv("COMPANY_NAME"),
	}

	var err error
	if cfg.Port, err = getEnvInt("PORT", 0); err != nil {
		return nil, err
	}
	if cfg.MaxUploadBytes, err = getEnvInt64("MAX_UPLOAD_BYTES", 0); err != nil {
		return nil, err
	}
	if cfg.TokenDefaultDays, err = getEnvInt("DOCUMENT_TOKEN_DEFAULT_DAYS", 0); err != nil {
		return nil, err
	}
	if cfg.TokenMaxDays, err = getEnvInt("DOCUMENT_TOKEN_MAX_DAYS", 0); err != nil {
		return nil, err
	}
	if cfg.TokenInvalidateOnUse, err = getEnvBool("DOCUMENT_TOKEN_INVALIDATE_ON_USE", false); err != nil {
		return nil, err
	}
	if v := os.Getenv("TIMETRACK_REQUIRE_ACTIVE_ACCOUNT"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return nil, fmt.Errorf("invalid TIMETRACK_REQUIRE_ACTIVE_ACCOUNT: %v", err)
		}
		cfg.RequireActiveAccount = &b
	}
	return cfg, nil
}

// RequiresActiveAccount reports whether starting a timer needs an active
// linked account. On unless explicitly disabled.
func (c *ServerConfig) RequiresActiveAccount() bool {
	return c.RequireActiveAccount == nil || *c.RequireActiveAccount
}

// LoadConfig loads configuration from a JSON file.
// Returns an error if the file cannot be read or parsed.
func LoadConfig(path string) (*ServerConfig, error) {
	if path == "" {
		return nil, fmt.Errorf("config path is empty")
	}

	if !filepath.IsAbs(path) {
		cwd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("failed to get current directory: %w", err)
		}
		path = filepath.Join(cwd, path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var cfg ServerConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	return &cfg, nil
}

// Validate checks that the configuration has valid values. Zero values are
// accepted where a default applies.
func (c *ServerConfig) Validate() error {
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("config error: 'port' out of range: %d", c.Port)
	}
	if c.MaxUploadBytes < 0 {
		return fmt.Errorf("config error: 'max_upload_bytes' must be non-negative")
	}
	if c.TokenDefaultDays < 0 || c.TokenMaxDays < 0 {
		return fmt.Errorf("config error: document token days must be non-negative")
	}
	if c.TokenMaxDays > 0 && c.TokenDefaultDays > c.TokenMaxDays {
		return fmt.Errorf("config error: 'document_token_default_days' (%d) exceeds 'document_token_max_days' (%d)",
			c.TokenDefaultDays, c.TokenMaxDays)
	}
	if _, err := c.LockTimeoutDuration(); err != nil {
		return err
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	return nil
}

// LockTimeoutDuration parses LockTimeout, falling back to DefaultLockTimeout
func (c *ServerConfig) LockTimeoutDuration() (time.Duration, error) {
	if c.LockTimeout == "" {
		return DefaultLockTimeout, nil
	}
	d, err := time.ParseDuration(c.LockTimeout)
	if err != nil {
		return 0, fmt.Errorf("config error: invalid lock timeout %q: %w", c.LockTimeout, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("config error: lock timeout must be positive, got %s", d)
	}
	return d, nil
}

// Location resolves the reporting timezone
func (c *ServerConfig) Location() (*time.Location, error) {
	if c.ReportTimezone == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(c.ReportTimezone)
	if err != nil {
		return nil, fmt.Errorf("config error: unknown report timezone %q: %w", c.ReportTimezone, err)
	}
	return loc, nil
}

// MergeWithDefaults returns a new ServerConfig with empty fields filled from
// defaults. A config file loaded with LoadConfig is merged this way under
// the values taken from the environment.
func (c *ServerConfig) MergeWithDefaults(defaults ServerConfig) ServerConfig {
	result := *c

	str := func(dst *string, def string) {
		if *dst == "" {
			*dst = def
		}
	}
	str(&result.DatabaseURL, defaults.DatabaseURL)
	str(&result.LockTimeout, defaults.LockTimeout)
	str(&result.FileStorageDir, defaults.FileStorageDir)
	str(&result.TokenStoreDir, defaults.TokenStoreDir)
	str(&result.FrontendURL, defaults.FrontendURL)
	str(&result.PublicBaseURL, defaults.PublicBaseURL)
	str(&result.ReportTimezone, defaults.ReportTimezone)
	str(&result.ResendAPIKey, defaults.ResendAPIKey)
	str(&result.SMTPHost, defaults.SMTPHost)
	str(&result.SMTPPort, defaults.SMTPPort)
	str(&result.SMTPUser, defaults.SMTPUser)
	str(&result.SMTPPass, defaults.SMTPPass)
	str(&result.MailFrom, defaults.MailFrom)
	str(&result.LoginURL, defaults.LoginURL)
	str(&result.CompanyName, defaults.CompanyName)

	if result.RequireActiveAccount == nil {
		result.RequireActiveAccount = defaults.RequireActiveAccount
	}
	if result.Port == 0 {
		result.Port = defaults.Port
	}
	if result.MaxUploadBytes == 0 {
		result.MaxUploadBytes = defaults.MaxUploadBytes
	}
	if result.TokenDefaultDays == 0 {
		result.TokenDefaultDays = defaults.TokenDefaultDays
	}
	if result.TokenMaxDays == 0 {
		result.TokenMaxDays = defaults.TokenMaxDays
	}

	// TokenInvalidateOnUse: cannot distinguish unset from false, so we don't merge

	return result
}

func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %v", key, err)
	}
	return n, nil
}

func getEnvInt64(key string, defaultValue int64) (int64, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	n, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %v", key, err)
	}
	return n, nil
}

func getEnvBool(key string, defaultValue bool) (bool, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		return false, fmt.Errorf("invalid %s: %v", key, err)
	}
	return b, nil
}
