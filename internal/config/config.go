package config

import (
	"log/slog"
	"os"
	"strconv"
	"time"
)

const (
	DefaultTargetURL  = "https://eplus.jp/sf/detail/2052790001"
	DefaultLineAPIURL = "https://api.line.me/v2/bot/message/broadcast"
)

type Config struct {
	TargetURL  string
	ConfigFile string
	LogDir     string

	LineToken  string
	LineUserID string
	LineAPIURL string

	PageSettleDelay  time.Duration
	PageLoadTimeout  time.Duration
	BrowserRemoteURL string
	ChromeDataDir    string
	BrowserStealth   bool

	ErrorBackoff time.Duration

	DatabaseURL     string
	StatusAddr      string
	CORSAllowOrigin string

	LogFormat string
	LogLevel  string
}

func Load() *Config {
	return &Config{
		TargetURL:        getEnv("TARGET_URL", DefaultTargetURL),
		ConfigFile:       getEnv("CONFIG_FILE", "config.json"),
		LogDir:           getEnv("LOG_DIR", "logs"),
		LineToken:        os.Getenv("LINE_CHANNEL_ACCESS_TOKEN"),
		LineUserID:       os.Getenv("LINE_USER_ID"),
		LineAPIURL:       getEnv("LINE_API_URL", DefaultLineAPIURL),
		PageSettleDelay:  getDuration("PAGE_SETTLE_DELAY", 5*time.Second),
		PageLoadTimeout:  getDuration("PAGE_LOAD_TIMEOUT", 60*time.Second),
		BrowserRemoteURL: os.Getenv("BROWSER_REMOTE_URL"),
		ChromeDataDir:    getEnv("CHROME_DATA_DIR", "chrome_data"),
		BrowserStealth:   getBool("BROWSER_STEALTH", true),
		ErrorBackoff:     getDuration("ERROR_BACKOFF", 60*time.Second),
		DatabaseURL:      os.Getenv("DATABASE_URL"),
		StatusAddr:       os.Getenv("STATUS_ADDR"),
		CORSAllowOrigin:  getEnv("CORS_ALLOW_ORIGIN", "*"),
		LogFormat:        getEnv("LOG_FORMAT", "json"),
		LogLevel:         getEnv("LOG_LEVEL", "info"),
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		slog.Warn("invalid duration for env var, using default",
			"key", key, "value", v, "default", fallback)
		return fallback
	}
	return d
}

func getBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		slog.Warn("invalid boolean for env var, using default",
			"key", key, "value", v, "default", fallback)
		return fallback
	}
	return b
}
