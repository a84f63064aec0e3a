package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// AppConfig holds environment driven configuration values.
// Sensitive data should never have defaults inside code and must be provided via env files or the environment.
type AppConfig struct {
	AppPort            string
	JWTSecret          string
	RateLimitPerMinute int
	AllowedOrigins     []string
	// Gin framework configuration
	GinMode string
	GinPath string
	// Database: mysql or sqlite
	DBDriver    string
	DatabaseURI string
	DBHost      string
	DBPort      string
	DBUser      string
	DBPassword  string
	DBName      string
	// Redis for caching and captcha answers
	RedisHost     string
	RedisPort     int
	RedisDB       int
	RedisPassword string
	CacheEnabled  bool
	// Logging configuration
	LogLevel      string
	LogPath       string
	LogMaxSizeMB  int
	LogMaxBackups int
	LogMaxAgeDays int
	LogCompress   bool
	// Attachments
	UploadDir          string
	UploadMaxSizeMB    int
	UploadTTLMinutes   int
	MediaDir           string
	JanitorIntervalSec int
	// Captcha: memory or redis store
	CaptchaStore  string
	CaptchaTTLSec int
	// bcrypt hash of the secret tester accounts may use instead of a captcha
	DevSecretHash string
}

var cfg AppConfig
var loaded bool

// Load loads the application configuration. It should be called once during boot.
func Load() AppConfig {
	if loaded {
		return cfg
	}

	// An optional .env file only seeds the environment; real variables win.
	_ = godotenv.Load()

	c, err := LoadFile(filepath.Join("config", "config.json"))
	if err != nil {
		log.Fatalf("load configuration: %v", err)
	}
	if c.JWTSecret == "" {
		log.Fatal("JWT_SECRET must be set in environment variables")
	}

	cfg = c
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

// LoadFile builds a configuration from path, defaults and the environment.
// Precedence: JSON file -> defaults -> environment variable overrides.
// A missing file is not an error.
func LoadFile(path string) (AppConfig, error) {
	var c AppConfig
	if err := readFile(path, &c); err != nil {
		return c, fmt.Errorf("%s: %w", path, err)
	}
	applyDefaults(&c)
	if err := applyEnv(&c); err != nil {
		return c, err
	}
	return c, nil
}

// fileConfig mirrors the grouped layout of config.json.
type fileConfig struct {
	App struct {
		AppPort            string
		JWTSecret          string
		RateLimitPerMinute int
		AllowedOrigins     []string
		GinMode            string
		GinPath            string
	} `json:"app"`
	Database struct {
		Driver      string
		DatabaseURI string
		DBHost      string
		DBPort      string
		DBUser      string
		DBPassword  string
		DBName      string
	} `json:"database"`
	Redis struct {
		RedisHost     string
		RedisPort     int
		RedisDB       int
		RedisPassword string
		CacheEnabled  bool
	} `json:"redis"`
	Log struct {
		Level      string
		Path       string
		MaxSizeMB  int
		MaxBackups int
		MaxAgeDays int
		Compress   bool
	} `json:"log"`
	Uploads struct {
		Dir                string
		MaxSizeMB          int
		TTLMinutes         int
		MediaDir           string
		JanitorIntervalSec int
	} `json:"uploads"`
	Captcha struct {
		Store         string
		TTLSec        int
		DevSecretHash string
	} `json:"captcha"`
}

func readFile(path string, out *AppConfig) error {
	b, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	var f fileConfig
	if err := json.Unmarshal(b, &f); err != nil {
		return err
	}

	*out = AppConfig{
		AppPort:            f.App.AppPort,
		JWTSecret:          f.App.JWTSecret,
		RateLimitPerMinute: f.App.RateLimitPerMinute,
		AllowedOrigins:     f.App.AllowedOrigins,
		GinMode:            f.App.GinMode,
		GinPath:            f.App.GinPath,

		DBDriver:    strings.ToLower(f.Database.Driver),
		DatabaseURI: f.Database.DatabaseURI,
		DBHost:      f.Database.DBHost,
		DBPort:      f.Database.DBPort,
		DBUser:      f.Database.DBUser,
		DBPassword:  f.Database.DBPassword,
		DBName:      f.Database.DBName,

		RedisHost:     f.Redis.RedisHost,
		RedisPort:     f.Redis.RedisPort,
		RedisDB:       f.Redis.RedisDB,
		RedisPassword: f.Redis.RedisPassword,
		CacheEnabled:  f.Redis.CacheEnabled,

		LogLevel:      f.Log.Level,
		LogPath:       f.Log.Path,
		LogMaxSizeMB:  f.Log.MaxSizeMB,
		LogMaxBackups: f.Log.MaxBackups,
		LogMaxAgeDays: f.Log.MaxAgeDays,
		LogCompress:   f.Log.Compress,

		UploadDir:          f.Uploads.Dir,
		UploadMaxSizeMB:    f.Uploads.MaxSizeMB,
		UploadTTLMinutes:   f.Uploads.TTLMinutes,
		MediaDir:           f.Uploads.MediaDir,
		JanitorIntervalSec: f.Uploads.JanitorIntervalSec,

		CaptchaStore:  strings.ToLower(f.Captcha.Store),
		CaptchaTTLSec: f.Captcha.TTLSec,
		DevSecretHash: f.Captcha.DevSecretHash,
	}
	return nil
}

func orString(p *string, def string) {
	if *p == "" {
		*p = def
	}
}

func orInt(p *int, def int) {
	if *p == 0 {
		*p = def
	}
}

// applyDefaults fills zero values. Secrets never get one.
func applyDefaults(c *AppConfig) {
	orString(&c.AppPort, "8080")
	orString(&c.GinMode, "release")
	orString(&c.GinPath, "logs/go_gin.log")
	orInt(&c.RateLimitPerMinute, 60)
	if len(c.AllowedOrigins) == 0 {
		c.AllowedOrigins = []string{"*"}
	}

	orString(&c.DBDriver, "mysql")
	orString(&c.DBHost, "127.0.0.1")
	orString(&c.DBPort, "3306")
	orString(&c.DBUser, "root")
	orString(&c.DBName, "orghub")

	orString(&c.RedisHost, "127.0.0.1")
	orInt(&c.RedisPort, 6379)

	orString(&c.LogLevel, "info")
	orInt(&c.LogMaxSizeMB, 100)
	orInt(&c.LogMaxBackups, 3)
	orInt(&c.LogMaxAgeDays, 7)

	orString(&c.UploadDir, "uploads")
	orInt(&c.UploadMaxSizeMB, 10)
	orInt(&c.UploadTTLMinutes, 60)
	orString(&c.MediaDir, "storage")
	orInt(&c.JanitorIntervalSec, 300)

	orString(&c.CaptchaStore, "memory")
	orInt(&c.CaptchaTTLSec, 600)
}

// applyEnv overrides values with the environment variables that are set and non-empty.
func applyEnv(c *AppConfig) error {
	strs := map[string]*string{
		"APP_PORT":        &c.AppPort,
		"JWT_SECRET":      &c.JWTSecret,
		"GIN_MODE":        &c.GinMode,
		"GIN_PATH":        &c.GinPath,
		"DB_DRIVER":       &c.DBDriver,
		"DATABASE_URI":    &c.DatabaseURI,
		"DB_HOST":         &c.DBHost,
		"DB_PORT":         &c.DBPort,
		"DB_USER":         &c.DBUser,
		"DB_PASSWORD":     &c.DBPassword,
		"DB_NAME":         &c.DBName,
		"REDIS_HOST":      &c.RedisHost,
		"REDIS_PASSWORD":  &c.RedisPassword,
		"LOG_LEVEL":       &c.LogLevel,
		"LOG_PATH":        &c.LogPath,
		"UPLOAD_DIR":      &c.UploadDir,
		"MEDIA_DIR":       &c.MediaDir,
		"CAPTCHA_STORE":   &c.CaptchaStore,
		"DEV_SECRET_HASH": &c.DevSecretHash,
	}
	ints := map[string]*int{
		"RATE_LIMIT_PER_MINUTE": &c.RateLimitPerMinute,
		"REDIS_PORT":            &c.RedisPort,
		"REDIS_DB":              &c.RedisDB,
		"LOG_MAX_SIZE_MB":       &c.LogMaxSizeMB,
		"LOG_MAX_BACKUPS":       &c.LogMaxBackups,
		"LOG_MAX_AGE_DAYS":      &c.LogMaxAgeDays,
		"UPLOAD_MAX_SIZE_MB":    &c.UploadMaxSizeMB,
		"UPLOAD_TTL_MINUTES":    &c.UploadTTLMinutes,
		"JANITOR_INTERVAL_SEC":  &c.JanitorIntervalSec,
		"CAPTCHA_TTL_SEC":       &c.CaptchaTTLSec,
	}
	bools := map[string]*bool{
		"CACHE_ENABLED": &c.CacheEnabled,
		"LOG_COMPRESS":  &c.LogCompress,
	}

	for key, p := range strs {
		if v := os.Getenv(key); v != "" {
			*p = v
		}
	}
	for key, p := range ints {
		v := os.Getenv(key)
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("invalid integer in %s: %w", key, err)
		}
		*p = n
	}
	for key, p := range bools {
		if v := os.Getenv(key); v != "" {
			*p = strings.EqualFold(strings.TrimSpace(v), "true")
		}
	}
	if v := os.Getenv("CORS_ALLOWED_ORIGINS"); v != "" {
		c.AllowedOrigins = splitAndTrim(v)
	}
	c.DBDriver = strings.ToLower(c.DBDriver)
	c.CaptchaStore = strings.ToLower(c.CaptchaStore)
	return nil
}

func splitAndTrim(raw string) []string {
	items := []string{}
	for _, item := range strings.Split(raw, ",") {
		if trimmed := strings.TrimSpace(item); trimmed != "" {
			items = append(items, trimmed)
		}
	}
	return items
}
