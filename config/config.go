package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"github.com/quickdl-bot/quickdl/pkg/logger"
)

const (
	DefaultCookieCooldown      = 600 * time.Second
	DefaultProgressInterval    = 5 * time.Second
	DefaultMaxConcurrent       = 3
	DefaultMaxQueuePerChat     = 5
	DefaultMaxVideoMinutes     = 15
	DefaultMaxFileSizeBytes    = 200 * 1024 * 1024
	DefaultMaxRetries          = 3
	DefaultStalledTimeout      = 300 * time.Second
	DefaultCookiesDir          = "./cookies"
	DefaultDownloadDir         = "./tmp"
	DefaultSessionDir          = "./session"
	DefaultRetryBaseDelay      = 2 * time.Second
	DefaultExtractorSocketWait = 30 * time.Second
)

type Config struct {
	AppID    int
	AppHash  string
	BotToken string

	SessionDir  string
	CookiesDir  string
	DownloadDir string

	CookieCooldown         time.Duration
	ProgressInterval       time.Duration
	MaxConcurrentDownloads int
	MaxQueuePerChat        int
	MaxVideoDuration       time.Duration
	MaxFileSizeBytes       int64
	MaxRetries             int
	RetryBaseDelay         time.Duration
	StalledTimeout         time.Duration

	SudoUsers []int64
}

func LoadConfig() *Config {
	for _, envFile := range []string{"config.env", ".env"} {
		if _, err := os.Stat(envFile); err == nil {
			if err := godotenv.Load(envFile); err != nil {
				logger.Warn("Failed to load env file", "file", envFile, "error", err)
			} else {
				logger.Info("Loaded environment", "file", envFile)
			}
			break
		}
	}

	cfg := &Config{
		AppID:    envInt("API_ID", 0),
		AppHash:  os.Getenv("API_HASH"),
		BotToken: os.Getenv("BOT_TOKEN"),

		SessionDir:  envStr("SESSION_DIR", DefaultSessionDir),
		CookiesDir:  envStr("COOKIES_DIR", DefaultCookiesDir),
		DownloadDir: envStr("DOWNLOAD_DIR", DefaultDownloadDir),

		CookieCooldown:         envSeconds("COOKIE_ROTATION_COOLDOWN", DefaultCookieCooldown),
		ProgressInterval:       envSeconds("PROGRESS_UPDATE_INTERVAL", DefaultProgressInterval),
		MaxConcurrentDownloads: envInt("MAX_CONCURRENT_DOWNLOADS", DefaultMaxConcurrent),
		MaxQueuePerChat:        envInt("MAX_QUEUE_PER_CHAT", DefaultMaxQueuePerChat),
		MaxVideoDuration:       time.Duration(envInt("MAX_VIDEO_LENGTH_MINUTES", DefaultMaxVideoMinutes)) * time.Minute,
		MaxFileSizeBytes:       envInt64("MAX_FILE_SIZE_BYTES", DefaultMaxFileSizeBytes),
		MaxRetries:             envInt("MAX_RETRIES", DefaultMaxRetries),
		RetryBaseDelay:         envSeconds("RETRY_BASE_DELAY", DefaultRetryBaseDelay),
		StalledTimeout:         envSeconds("STALLED_DOWNLOAD_TIMEOUT", DefaultStalledTimeout),

		SudoUsers: envInt64List("SUDO_USERS"),
	}

	return cfg
}

// Validate catches configuration mistakes at startup so nothing deeper in
// the orchestration layer has to defend against them.
func (c *Config) Validate() error {
	if c.AppID == 0 || c.AppHash == "" {
		return fmt.Errorf("API_ID and API_HASH are required")
	}
	if c.BotToken == "" {
		return fmt.Errorf("BOT_TOKEN is required")
	}
	if c.MaxConcurrentDownloads <= 0 {
		return fmt.Errorf("MAX_CONCURRENT_DOWNLOADS must be positive, got %d", c.MaxConcurrentDownloads)
	}
	if c.MaxQueuePerChat < 0 {
		return fmt.Errorf("MAX_QUEUE_PER_CHAT must not be negative, got %d", c.MaxQueuePerChat)
	}
	if c.MaxRetries <= 0 {
		return fmt.Errorf("MAX_RETRIES must be positive, got %d", c.MaxRetries)
	}
	if c.MaxFileSizeBytes <= 0 {
		return fmt.Errorf("MAX_FILE_SIZE_BYTES must be positive, got %d", c.MaxFileSizeBytes)
	}
	if c.ProgressInterval <= 0 {
		return fmt.Errorf("PROGRESS_UPDATE_INTERVAL must be positive")
	}
	return nil
}

func (c *Config) IsSudo(userID int64) bool {
	for _, id := range c.SudoUsers {
		if id == userID {
			return true
		}
	}
	return false
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		logger.Warn("Invalid integer in environment", "key", key, "value", v)
		return fallback
	}
	return n
}

func envInt64(key string, fallback int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		logger.Warn("Invalid integer in environment", "key", key, "value", v)
		return fallback
	}
	return n
}

func envSeconds(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		logger.Warn("Invalid duration in environment", "key", key, "value", v)
		return fallback
	}
	return time.Duration(n) * time.Second
}

func envInt64List(key string) []int64 {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	var out []int64
	for _, part := range splitAndTrim(v) {
		n, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			logger.Warn("Skipping invalid id in environment list", "key", key, "value", part)
			continue
		}
		out = append(out, n)
	}
	return out
}

func splitAndTrim(s string) []string {
	var out []string
	start := -1
	for i := 0; i <= len(s); i++ {
		if i == len(s) || s[i] == ',' || s[i] == ' ' {
			if start >= 0 {
				out = append(out, s[start:i])
				start = -1
			}
			continue
		}
		if start < 0 {
			start = i
		}
	}
	return out
}
