package config

import (
	"errors"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	defaultHTTPAddr       = ":8080"
	defaultRequestTimeout = 60 * time.Second
)

// Config holds the panel process configuration, loaded from the environment
// with optional .env support.
type Config struct {
	// HostBaseURL is the root of the host server the panel talks to.
	HostBaseURL string
	// HTTPAddr is the panel's own listen address.
	HTTPAddr string
	// MetricsAddr is the Prometheus listen address; empty or "off" disables
	// the metrics server.
	MetricsAddr string
	// SessionCookieSecure marks the session cookie Secure.
	SessionCookieSecure bool
	// RequestTimeout bounds every request to the host.
	RequestTimeout time.Duration
	// DevHostAddr, when set, runs the built-in development host simulator.
	DevHostAddr string
	// DevHostRegion is the region the simulator pins its STS endpoint to.
	DevHostRegion string
}

// LoadOptions controls which settings are mandatory.
type LoadOptions struct {
	RequireHostBaseURL bool
}

// Load reads the configuration for the panel server; the host base URL is
// required.
func Load() (Config, error) {
	return LoadWithOptions(LoadOptions{RequireHostBaseURL: true})
}

// LoadOptionalHost reads the configuration for commands that run without a
// host, such as the simulator.
func LoadOptionalHost() (Config, error) {
	return LoadWithOptions(LoadOptions{RequireHostBaseURL: false})
}

// LoadWithOptions reads the configuration from the environment. A missing
// .env file is fine; an unreadable one is not.
func LoadWithOptions(opts LoadOptions) (Config, error) {
	if err := godotenv.Load(); err != nil {
		var pathErr *os.PathError
		if !errors.As(err, &pathErr) {
			return Config{}, err
		}
	}

	cfg := Config{
		HostBaseURL:         strings.TrimRight(strings.TrimSpace(os.Getenv("HOST_BASE_URL")), "/"),
		HTTPAddr:            getenvDefault("HTTP_ADDR", defaultHTTPAddr),
		MetricsAddr:         os.Getenv("METRICS_ADDR"),
		SessionCookieSecure: getenvBoolDefault("SESSION_COOKIE_SECURE", false),
		RequestTimeout:      defaultRequestTimeout,
		DevHostAddr:         strings.TrimSpace(os.Getenv("DEV_HOST_ADDR")),
		DevHostRegion:       getenvDefault("DEV_HOST_REGION", "us-east-1"),
	}

	if v := os.Getenv("REQUEST_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			cfg.RequestTimeout = d
		}
	}

	if opts.RequireHostBaseURL && cfg.HostBaseURL == "" {
		return cfg, errors.New("HOST_BASE_URL is required")
	}

	return cfg, nil
}

func getenvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvBoolDefault(key string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	switch v {
	case "1":
		return true
	case "0":
		return false
	default:
		return def
	}
}
