package config

import (
	"encoding/json"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// AppConfig holds environment driven configuration values.
// Sensitive data should never have defaults inside code and must be provided
// via config/config.json or the environment.
type AppConfig struct {
	AppPort       string `json:"AppPort"`
	GinMode       string `json:"GinMode"`
	JWTSecret     string `json:"JWTSecret"`
	SignupEnabled bool   `json:"SignupEnabled"`

	// Database: sqlite (embedded, default) or mysql
	DatabaseDriver string `json:"DatabaseDriver"`
	DatabasePath   string `json:"DatabasePath"`
	DBHost         string `json:"DBHost"`
	DBPort         string `json:"DBPort"`
	DBUser         string `json:"DBUser"`
	DBPassword     string `json:"DBPassword"`
	DBName         string `json:"DBName"`

	// Uploaded images
	UploadDir       string `json:"UploadDir"`
	UploadMaxSizeMB int    `json:"UploadMaxSizeMB"`

	// Autosaved drafts
	DraftTTLMinutes int `json:"DraftTTLMinutes"`

	RateLimitPerMinute int      `json:"RateLimitPerMinute"`
	AllowedOrigins     []string `json:"AllowedOrigins"`

	// Redis for drafts, listing cache and token blacklist
	RedisHost     string `json:"RedisHost"`
	RedisPort     int    `json:"RedisPort"`
	RedisDB       int    `json:"RedisDB"`
	RedisPassword string `json:"RedisPassword"`

	// Logging configuration
	LogLevel      string `json:"LogLevel"`
	LogPath       string `json:"LogPath"`
	LogMaxSizeMB  int    `json:"LogMaxSizeMB"`
	LogMaxBackups int    `json:"LogMaxBackups"`
	LogMaxAgeDays int    `json:"LogMaxAgeDays"`
	LogCompress   bool   `json:"LogCompress"`
}

var cfg AppConfig
var loaded bool

// Load loads the application configuration. It should be called once during boot.
// Precedence: config/config.json -> defaults -> environment variable overrides.
func Load() AppConfig {
	if loaded {
		return cfg
	}

	_ = loadJSONConfig(filepath.Join("config", "config.json"), &cfg)
	applyDefaults(&cfg)
	applyEnvOverrides(&cfg)

	if cfg.JWTSecret == "" {
		if cfg.GinMode == "debug" || cfg.GinMode == "test" {
			cfg.JWTSecret = "insecure-dev-secret"
		} else {
			log.Fatal("JWT_SECRET must be set outside debug mode")
		}
	}

	loaded = true
	return cfg
}

// Get returns the cached configuration, loading it if necessary.
func Get() AppConfig {
	if !loaded {
		return Load()
	}
	return cfg
}

// loadJSONConfig reads a flat JSON file into out if present.
// Returns an error only for invalid JSON.
func loadJSONConfig(path string, out *AppConfig) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil // missing file is fine
	}
	return json.Unmarshal(b, out)
}

func applyDefaults(c *AppConfig) {
	setIfEmpty(&c.AppPort, "8080")
	setIfEmpty(&c.GinMode, "release")
	setIfEmpty(&c.DatabaseDriver, "sqlite")
	setIfEmpty(&c.DatabasePath, "./inkpress.db")
	setIfEmpty(&c.DBPort, "3306")
	setIfEmpty(&c.UploadDir, "./static/uploads")
	if c.UploadMaxSizeMB <= 0 {
		c.UploadMaxSizeMB = 10
	}
	if c.DraftTTLMinutes <= 0 {
		c.DraftTTLMinutes = 24 * 60
	}
	if c.RateLimitPerMinute <= 0 {
		c.RateLimitPerMinute = 30
	}
	if len(c.AllowedOrigins) == 0 {
		c.AllowedOrigins = []string{"*"}
	}
	setIfEmpty(&c.RedisHost, "127.0.0.1")
	if c.RedisPort == 0 {
		c.RedisPort = 6379
	}
	setIfEmpty(&c.LogLevel, "info")
	if c.LogMaxSizeMB == 0 {
		c.LogMaxSizeMB = 100
	}
	if c.LogMaxBackups == 0 {
		c.LogMaxBackups = 3
	}
	if c.LogMaxAgeDays == 0 {
		c.LogMaxAgeDays = 7
	}
}

func applyEnvOverrides(c *AppConfig) {
	overrideString(&c.AppPort, "APP_PORT")
	overrideString(&c.GinMode, "GIN_MODE")
	overrideString(&c.JWTSecret, "JWT_SECRET")
	overrideBool(&c.SignupEnabled, "SIGNUP_ENABLED")
	overrideString(&c.DatabaseDriver, "DB_DRIVER")
	overrideString(&c.DatabasePath, "DB_PATH")
	overrideString(&c.DBHost, "DB_HOST")
	overrideString(&c.DBPort, "DB_PORT")
	overrideString(&c.DBUser, "DB_USER")
	overrideString(&c.DBPassword, "DB_PASSWORD")
	overrideString(&c.DBName, "DB_NAME")
	overrideString(&c.UploadDir, "UPLOAD_DIR")
	overrideInt(&c.UploadMaxSizeMB, "UPLOAD_MAX_SIZE_MB")
	overrideInt(&c.DraftTTLMinutes, "DRAFT_TTL_MINUTES")
	overrideInt(&c.RateLimitPerMinute, "RATE_LIMIT_PER_MINUTE")
	if v := os.Getenv("ALLOWED_ORIGINS"); v != "" {
		parts := strings.Split(v, ",")
		origins := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				origins = append(origins, p)
			}
		}
		if len(origins) > 0 {
			c.AllowedOrigins = origins
		}
	}
	overrideString(&c.RedisHost, "REDIS_HOST")
	overrideInt(&c.RedisPort, "REDIS_PORT")
	overrideInt(&c.RedisDB, "REDIS_DB")
	overrideString(&c.RedisPassword, "REDIS_PASSWORD")
	overrideString(&c.LogLevel, "LOG_LEVEL")
	overrideString(&c.LogPath, "LOG_PATH")
	overrideInt(&c.LogMaxSizeMB, "LOG_MAX_SIZE_MB")
	overrideInt(&c.LogMaxBackups, "LOG_MAX_BACKUPS")
	overrideInt(&c.LogMaxAgeDays, "LOG_MAX_AGE_DAYS")
	overrideBool(&c.LogCompress, "LOG_COMPRESS")
}

func setIfEmpty(dst *string, def string) {
	if *dst == "" {
		*dst = def
	}
}

func overrideString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func overrideInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func overrideBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}
