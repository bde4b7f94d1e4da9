// Package config handles application configuration loading and management.
package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config holds the application configuration.
type Config struct {
	App     App
	Backend Backend
	Poll    Poll
	UI      UI
	Dir     Dir
	HTTP    HTTP
	Proxy   Proxy
}

// App holds application-wide configuration.
type App struct {
	LogLevel string `env:"YTPANEL_APP_LOG_LEVEL" envDefault:"info"`
}

// Backend holds the download service endpoint configuration.
type Backend struct {
	URL            string        `env:"YTPANEL_BACKEND_URL"             envDefault:"http://localhost:8000"`
	RequestTimeout time.Duration `env:"YTPANEL_BACKEND_REQUEST_TIMEOUT" envDefault:"30s"`
	// FetchTimeout bounds the binary file transfer after a job completes.
	FetchTimeout time.Duration `env:"YTPANEL_BACKEND_FETCH_TIMEOUT" envDefault:"30m"`
	UserAgent    string        `env:"YTPANEL_BACKEND_USER_AGENT"    envDefault:"ytpanel/1.0"`
}

// Poll holds progress polling configuration.
type Poll struct {
	Interval time.Duration `env:"YTPANEL_POLL_INTERVAL" envDefault:"1s"`
}

// UI holds terminal view configuration.
type UI struct {
	NotificationTTL time.Duration `env:"YTPANEL_UI_NOTIFICATION_TTL" envDefault:"5s"`
	Color           bool          `env:"YTPANEL_UI_COLOR"            envDefault:"true"`
}

// Dir holds local directories.
type Dir struct {
	Downloads string `env:"YTPANEL_DIR_DOWNLOADS" envDefault:"./downloads"` // fetched files land here
}

// SetAbsPaths converts all directory paths to absolute paths.
func (c *Dir) SetAbsPaths() error {
	var err error
	if c.Downloads, err = filepath.Abs(c.Downloads); err != nil {
		return fmt.Errorf("downloads: %w", err)
	}

	return nil
}

// HTTP holds the local status server configuration. Empty Addr disables it.
type HTTP struct {
	Addr            string        `env:"YTPANEL_HTTP_ADDR"             envDefault:""`
	HandlerTimeout  time.Duration `env:"YTPANEL_HTTP_HANDLER_TIMEOUT"  envDefault:"5s"`
	ShutdownTimeout time.Duration `env:"YTPANEL_HTTP_SHUTDOWN_TIMEOUT" envDefault:"10s"`
}

// New loads configuration from environment variables.
func New() (*Config, error) {
	cfg := &Config{}

	err := env.Parse(cfg)
	if err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	cfg.Backend.URL = strings.TrimRight(strings.TrimSpace(cfg.Backend.URL), "/")
	if cfg.Backend.URL == "" {
		return nil, fmt.Errorf("backend url is empty")
	}

	if cfg.Poll.Interval <= 0 {
		return nil, fmt.Errorf("poll interval must be positive, got %s", cfg.Poll.Interval)
	}

	err = cfg.Dir.SetAbsPaths()
	if err != nil {
		return nil, fmt.Errorf("set absolute paths: %w", err)
	}

	cfg.Proxy.parseList()

	return cfg, nil
}

// Proxy holds proxy configuration for backend requests.
type Proxy struct {
	// List is a comma-separated list of proxy URLs (http, https or socks5)
	List string `env:"YTPANEL_PROXY_LIST" envDefault:""`
	// HealthCheckInterval is how often to check proxy health
	HealthCheckInterval time.Duration `env:"YTPANEL_PROXY_HEALTH_CHECK_INTERVAL" envDefault:"5m"`
	// FailureBackoff is the initial backoff duration for failed proxies
	FailureBackoff time.Duration `env:"YTPANEL_PROXY_FAILURE_BACKOFF" envDefault:"1m"`
	// MaxFailures is the maximum number of failures before a proxy is temporarily removed
	MaxFailures int `env:"YTPANEL_PROXY_MAX_FAILURES" envDefault:"3"`

	// Proxies is the parsed list of proxy URLs
	Proxies []string `env:"-"`
}

// parseList parses the comma-separated proxy list.
func (p *Proxy) parseList() {
	p.Proxies = nil

	if p.List == "" {
		return
	}

	for proxy := range strings.SplitSeq(p.List, ",") {
		proxy = strings.TrimSpace(proxy)
		if proxy != "" {
			p.Proxies = append(p.Proxies, proxy)
		}
	}
}
