package config

import (
	"errors"
	"os"
	"strings"
	"time"
)

type HTTPConfig struct {
	Addr            string
	CORSOrigins     string
	ShutdownTimeout time.Duration
}

type AppConfig struct {
	ServiceName string
	LogLevel    string
	LogEncoding string
	HTTP        HTTPConfig
}

// Load reads the process-wide settings every binary shares. SERVICE_NAME is mandatory.
func Load() (AppConfig, error) {
	return load("")
}

// LoadFor is Load with a fallback service name, for tools that are not deployed as services.
func LoadFor(serviceName string) (AppConfig, error) {
	return load(serviceName)
}

func load(fallbackName string) (AppConfig, error) {
	cfg := AppConfig{
		ServiceName: strings.TrimSpace(os.Getenv("SERVICE_NAME")),
		LogLevel:    strings.TrimSpace(os.Getenv("LOG_LEVEL")),
		LogEncoding: strings.TrimSpace(os.Getenv("LOG_ENCODING")),
		HTTP: HTTPConfig{
			Addr:        strings.TrimSpace(os.Getenv("HTTP_ADDR")),
			CORSOrigins: strings.TrimSpace(os.Getenv("CORS_ALLOWED_ORIGINS")),
		},
	}
	if cfg.ServiceName == "" {
		cfg.ServiceName = fallbackName
	}
	if cfg.ServiceName == "" {
		return AppConfig{}, errors.New("SERVICE_NAME is required")
	}
	if cfg.HTTP.Addr == "" {
		cfg.HTTP.Addr = ":8080"
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if cfg.LogEncoding == "" {
		cfg.LogEncoding = "json"
	}
	cfg.HTTP.ShutdownTimeout = 10 * time.Second
	if v := strings.TrimSpace(os.Getenv("HTTP_SHUTDOWN_TIMEOUT")); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			cfg.HTTP.ShutdownTimeout = d
		}
	}
	return cfg, nil
}
