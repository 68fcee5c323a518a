package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	DriverRaw      = "raw"
	DriverChromedp = "chromedp"

	BackendFile   = "file"
	BackendSQLite = "sqlite"
)

// Config holds all tabmark settings. Values come from defaults, then the
// optional YAML file named by TABMARK_CONFIG, then the environment.
type Config struct {
	// CDP connection settings
	CDPAddress    string `yaml:"cdp_address"`
	CDPPort       int    `yaml:"cdp_port"`
	CDPDriver     string `yaml:"cdp_driver"`
	EvalTimeoutMS int    `yaml:"eval_timeout_ms"`

	// Control API and logging
	BindAddr string `yaml:"bind_addr"`
	LogLevel string `yaml:"log_level"`
	LogFile  string `yaml:"log_file"`

	// Delivery
	DownloadDir     string `yaml:"download_dir"`
	DownloadGraceMS int    `yaml:"download_grace_ms"`

	// Credential storage
	StorageBackend string `yaml:"storage_backend"`
	StorageDir     string `yaml:"storage_dir"`
	SQLitePath     string `yaml:"sqlite_path"`

	// Organizer endpoint
	LLMBaseURL    string `yaml:"llm_base_url"`
	LLMModel      string `yaml:"llm_model"`
	LLMMaxTokens  int    `yaml:"llm_max_tokens"`
	LLMVersion    string `yaml:"llm_version"`
	HTTPTimeoutMS int    `yaml:"http_timeout_ms"`

	// OAuth provider
	OAuthAuthURL   string `yaml:"oauth_auth_url"`
	OAuthTokenURL  string `yaml:"oauth_token_url"`
	OAuthClientID  string `yaml:"oauth_client_id"`
	OAuthScope     string `yaml:"oauth_scope"`
	OAuthTimeoutMS int    `yaml:"oauth_timeout_ms"`
}

func defaults() Config {
	return Config{
		CDPAddress:      "127.0.0.1",
		CDPPort:         9220,
		CDPDriver:       DriverRaw,
		EvalTimeoutMS:   5000,
		BindAddr:        "127.0.0.1:8188",
		LogLevel:        "info",
		LogFile:         "logs/tabmark.log",
		DownloadDir:     "./exports",
		DownloadGraceMS: 10000,
		StorageBackend:  BackendFile,
		StorageDir:      "./data",
		SQLitePath:      "./data/tabmark.db",
		LLMBaseURL:      "https://api.anthropic.com",
		LLMModel:        "claude-haiku-4-5-20250929",
		LLMMaxTokens:    8192,
		LLMVersion:      "2023-06-01",
		HTTPTimeoutMS:   120000,
		OAuthAuthURL:    "https://console.anthropic.com/oauth/authorize",
		OAuthTokenURL:   "https://console.anthropic.com/oauth/token",
		OAuthScope:      "user:profile",
		OAuthTimeoutMS:  300000,
	}
}

// Load reads configuration from the optional YAML file, environment
// variables and an optional .env file.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Debug("failed to load .env file", "error", err)
	}

	cfg := defaults()
	if path := os.Getenv("TABMARK_CONFIG"); path != "" {
		if err := loadFile(path, &cfg); err != nil {
			return nil, err
		}
	}

	cfg.CDPAddress = getEnvOrDefault("CHROMIUM_CDP_ADDRESS", cfg.CDPAddress)
	cfg.CDPPort = getEnvIntOrDefault("CHROMIUM_CDP_PORT", cfg.CDPPort)
	cfg.CDPDriver = strings.ToLower(getEnvOrDefault("TABMARK_CDP_DRIVER", cfg.CDPDriver))
	cfg.EvalTimeoutMS = getEnvIntOrDefault("TABMARK_EVAL_TIMEOUT_MS", cfg.EvalTimeoutMS)
	cfg.BindAddr = getEnvOrDefault("TABMARK_BIND_ADDR", cfg.BindAddr)
	cfg.LogLevel = strings.ToLower(getEnvOrDefault("TABMARK_LOG_LEVEL", cfg.LogLevel))
	cfg.LogFile = getEnvOrDefault("TABMARK_LOG_FILE", cfg.LogFile)
	cfg.DownloadDir = getEnvOrDefault("TABMARK_DOWNLOAD_DIR", cfg.DownloadDir)
	cfg.DownloadGraceMS = getEnvIntOrDefault("TABMARK_DOWNLOAD_GRACE_MS", cfg.DownloadGraceMS)
	cfg.StorageBackend = strings.ToLower(getEnvOrDefault("TABMARK_STORAGE_BACKEND", cfg.StorageBackend))
	cfg.StorageDir = getEnvOrDefault("TABMARK_STORAGE_DIR", cfg.StorageDir)
	cfg.SQLitePath = getEnvOrDefault("TABMARK_SQLITE_PATH", cfg.SQLitePath)
	cfg.LLMBaseURL = getEnvOrDefault("TABMARK_LLM_BASE_URL", cfg.LLMBaseURL)
	cfg.LLMModel = getEnvOrDefault("TABMARK_LLM_MODEL", cfg.LLMModel)
	cfg.LLMMaxTokens = getEnvIntOrDefault("TABMARK_LLM_MAX_TOKENS", cfg.LLMMaxTokens)
	cfg.LLMVersion = getEnvOrDefault("TABMARK_LLM_VERSION", cfg.LLMVersion)
	cfg.HTTPTimeoutMS = getEnvIntOrDefault("TABMARK_HTTP_TIMEOUT_MS", cfg.HTTPTimeoutMS)
	cfg.OAuthAuthURL = getEnvOrDefault("TABMARK_OAUTH_AUTH_URL", cfg.OAuthAuthURL)
	cfg.OAuthTokenURL = getEnvOrDefault("TABMARK_OAUTH_TOKEN_URL", cfg.OAuthTokenURL)
	cfg.OAuthClientID = getEnvOrDefault("TABMARK_OAUTH_CLIENT_ID", cfg.OAuthClientID)
	cfg.OAuthScope = getEnvOrDefault("TABMARK_OAUTH_SCOPE", cfg.OAuthScope)
	cfg.OAuthTimeoutMS = getEnvIntOrDefault("TABMARK_OAUTH_TIMEOUT_MS", cfg.OAuthTimeoutMS)

	if cfg.EvalTimeoutMS < 1000 {
		cfg.EvalTimeoutMS = 1000
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// loadFile overlays the YAML file at path onto cfg. Keys missing from the
// file keep their current values.
func loadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) Validate() error {
	var errs []error
	switch c.CDPDriver {
	case DriverRaw, DriverChromedp:
	default:
		errs = append(errs, fmt.Errorf("cdp_driver must be %q or %q, got %q", DriverRaw, DriverChromedp, c.CDPDriver))
	}
	switch c.StorageBackend {
	case BackendFile, BackendSQLite:
	default:
		errs = append(errs, fmt.Errorf("storage_backend must be %q or %q, got %q", BackendFile, BackendSQLite, c.StorageBackend))
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("log_level %q is not one of debug, info, warn, error", c.LogLevel))
	}
	if c.CDPPort <= 0 || c.CDPPort > 65535 {
		errs = append(errs, fmt.Errorf("cdp_port %d out of range", c.CDPPort))
	}
	if c.LLMMaxTokens <= 0 {
		errs = append(errs, fmt.Errorf("llm_max_tokens must be positive"))
	}
	return errors.Join(errs...)
}

// CDPURL returns the CDP HTTP endpoint.
func (c *Config) CDPURL() string {
	return "http://" + c.CDPAddress + ":" + strconv.Itoa(c.CDPPort)
}

// RedirectURL is the OAuth callback served by the control API.
func (c *Config) RedirectURL() string {
	return "http://" + c.BindAddr + "/oauth/callback"
}

func (c *Config) EvalTimeout() time.Duration   { return ms(c.EvalTimeoutMS) }
func (c *Config) DownloadGrace() time.Duration { return ms(c.DownloadGraceMS) }
func (c *Config) HTTPTimeout() time.Duration   { return ms(c.HTTPTimeoutMS) }
func (c *Config) OAuthTimeout() time.Duration  { return ms(c.OAuthTimeoutMS) }

func ms(v int) time.Duration {
	return time.Duration(v) * time.Millisecond
}

func getEnvOrDefault(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvIntOrDefault(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}
