package internal

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// DefaultAPIURL is used when no backend is configured
const DefaultAPIURL = "http://localhost:8000/api/v1"

// Config holds the CLI configuration
type Config struct {
	APIURL          string `yaml:"api_url"`
	Token           string `yaml:"token,omitempty"`
	SupabaseURL     string `yaml:"supabase_url,omitempty"`
	SupabaseAnonKey string `yaml:"supabase_anon_key,omitempty"`
	LogLevel        string `yaml:"log_level,omitempty"`
	TimeoutSeconds  int    `yaml:"timeout_seconds,omitempty"`
	CacheDir        string `yaml:"cache_dir,omitempty"`
	PrefetchLimit   int    `yaml:"prefetch_limit,omitempty"`
	GeminiAPIKey    string `yaml:"gemini_api_key,omitempty"`
	GeminiModel     string `yaml:"gemini_model,omitempty"`
}

// DefaultConfig returns the built-in defaults
func DefaultConfig() Config {
	return Config{
		APIURL:         DefaultAPIURL,
		LogLevel:       "info",
		TimeoutSeconds: 120,
		PrefetchLimit:  4,
		GeminiModel:    "gemini-1.5-flash",
	}
}

// Timeout returns the HTTP timeout
func (c Config) Timeout() time.Duration {
	if c.TimeoutSeconds <= 0 {
		return 120 * time.Second
	}
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// UseSupabase reports whether Supabase password sign-in is configured
func (c Config) UseSupabase() bool {
	return c.SupabaseURL != "" && c.SupabaseAnonKey != ""
}

// LoadConfig builds the configuration from defaults, the YAML file at path
// (or the detected default location when path is empty), a .env file in
// the working directory and the environment, in that order.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()

	explicit := path != ""
	if paths, err := DetectConfigPaths(); err == nil {
		cfg.CacheDir = paths.CacheDir
		if !explicit {
			path = paths.ConfigFile
		}
	}

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return Config{}, fmt.Errorf("failed to parse config %s: %w", path, err)
			}
		case os.IsNotExist(err) && !explicit:
			// optional
		default:
			return Config{}, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	}

	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		LogWarn("Failed to load .env: %v", err)
	}
	applyEnv(&cfg)

	if cfg.APIURL == "" {
		cfg.APIURL = DefaultAPIURL
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	setString := func(key string, dst *string) {
		if v, ok := os.LookupEnv(key); ok && v != "" {
			*dst = v
		}
	}
	setInt := func(key string, dst *int) {
		if v, ok := os.LookupEnv(key); ok && v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				*dst = n
			} else {
				LogWarn("Ignoring %s=%q: %v", key, v, err)
			}
		}
	}

	setString("CHAT_API_URL", &cfg.APIURL)
	setString("CHAT_API_TOKEN", &cfg.Token)
	setString("SUPABASE_URL", &cfg.SupabaseURL)
	setString("SUPABASE_ANON_KEY", &cfg.SupabaseAnonKey)
	setString("CHAT_LOG_LEVEL", &cfg.LogLevel)
	setString("CHAT_CACHE_DIR", &cfg.CacheDir)
	setString("GEMINI_API_KEY", &cfg.GeminiAPIKey)
	setString("GEMINI_MODEL", &cfg.GeminiModel)
	setInt("CHAT_TIMEOUT_SECONDS", &cfg.TimeoutSeconds)
	setInt("CHAT_PREFETCH_LIMIT", &cfg.PrefetchLimit)
}
