package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	DBFile         string
	AdminAddr      string
	APIAddr        string
	BaseURL        string
	UploadsPath    string
	LogLevel       string
	TokenExpiry    time.Duration
	MaxUploadBytes int64

	NotifyWorkers   int
	NotifyQueueSize int

	VAPIDPublicKey  string
	VAPIDPrivateKey string
	VAPIDSubject    string
}

func Load(cliMode bool) (*Config, error) {
	tokenExpiry, err := time.ParseDuration(getEnv("TOKEN_EXPIRY", "24h"))
	if err != nil {
		return nil, fmt.Errorf("TOKEN_EXPIRY: %w", err)
	}
	maxUpload, err := strconv.ParseInt(getEnv("MAX_UPLOAD_BYTES", "10485760"), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("MAX_UPLOAD_BYTES: %w", err)
	}
	workers, err := strconv.Atoi(getEnv("NOTIFY_WORKERS", "2"))
	if err != nil {
		return nil, fmt.Errorf("NOTIFY_WORKERS: %w", err)
	}
	queueSize, err := strconv.Atoi(getEnv("NOTIFY_QUEUE_SIZE", "256"))
	if err != nil {
		return nil, fmt.Errorf("NOTIFY_QUEUE_SIZE: %w", err)
	}

	cfg := &Config{
		DBFile:          getEnv("PARLEY_DB", "parley.db"),
		AdminAddr:       getEnv("ADMIN_ADDR", "localhost:8081"),
		APIAddr:         getEnv("API_ADDR", ":8080"),
		BaseURL:         getEnv("BASE_URL", "http://localhost:8080"),
		UploadsPath:     getEnv("UPLOADS_PATH", "uploads"),
		LogLevel:        getEnv("LOG_LEVEL", "info"),
		TokenExpiry:     tokenExpiry,
		MaxUploadBytes:  maxUpload,
		NotifyWorkers:   workers,
		NotifyQueueSize: queueSize,
		VAPIDPublicKey:  os.Getenv("VAPID_PUBLIC_KEY"),
		VAPIDPrivateKey: os.Getenv("VAPID_PRIVATE_KEY"),
		VAPIDSubject:    getEnv("VAPID_SUBJECT", "mailto:admin@localhost"),
	}

	if err := cfg.Validate(cliMode); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) Validate(cliMode bool) error {
	if strings.TrimSpace(c.AdminAddr) == "" {
		return fmt.Errorf("ADMIN_ADDR must not be empty")
	}

	// The CLI only talks to the admin API.
	if cliMode {
		return nil
	}

	if strings.TrimSpace(c.DBFile) == "" {
		return fmt.Errorf("PARLEY_DB must not be empty")
	}

	if c.TokenExpiry <= 0 {
		return fmt.Errorf("TOKEN_EXPIRY must be greater than 0")
	}

	if c.MaxUploadBytes <= 0 {
		return fmt.Errorf("MAX_UPLOAD_BYTES must be greater than 0")
	}

	if c.NotifyWorkers <= 0 || c.NotifyQueueSize <= 0 {
		return fmt.Errorf("NOTIFY_WORKERS and NOTIFY_QUEUE_SIZE must be greater than 0")
	}

	if (c.VAPIDPublicKey == "") != (c.VAPIDPrivateKey == "") {
		return fmt.Errorf("VAPID_PUBLIC_KEY and VAPID_PRIVATE_KEY must be set together")
	}

	return nil
}

// WebPushEnabled reports whether VAPID keys are configured.
func (c *Config) WebPushEnabled() bool {
	return c.VAPIDPublicKey != "" && c.VAPIDPrivateKey != ""
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}
