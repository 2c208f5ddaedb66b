// Package config loads the proxy, cache daemon and control configurations.
// Values come from PSE_OFFLINE_* environment variables first and can be
// overridden by command line flags.
package config

import (
	"errors"
	"flag"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// Server holds the offline proxy configuration.
type Server struct {
	ListenAddr     string        `env:"PSE_OFFLINE_LISTEN_ADDR" envDefault:":8080"`
	Origin         string        `env:"PSE_OFFLINE_ORIGIN" envDefault:"http://localhost:3000"`
	APIHost        string        `env:"PSE_OFFLINE_API_HOST" envDefault:"phisix-api3.appspot.com"`
	SyncURL        string        `env:"PSE_OFFLINE_SYNC_URL" envDefault:"https://phisix-api3.appspot.com/stocks.json"`
	SyncTag        string        `env:"PSE_OFFLINE_SYNC_TAG" envDefault:"sync-stock-data"`
	CacheVersion   string        `env:"PSE_OFFLINE_CACHE_VERSION" envDefault:"v1"`
	Precache       []string      `env:"PSE_OFFLINE_PRECACHE" envSeparator:"," envDefault:"/,/manifest.json,https://cdn.jsdelivr.net/npm/chart.js"`
	AutoActivate   bool          `env:"PSE_OFFLINE_AUTO_ACTIVATE" envDefault:"true"`
	DBPath         string        `env:"PSE_OFFLINE_CACHE_DB"`
	CacheSocket    string        `env:"PSE_OFFLINE_CACHE_SOCK"`
	FetchTimeout   time.Duration `env:"PSE_OFFLINE_FETCH_TIMEOUT" envDefault:"0s"`
	MetricsEnabled bool          `env:"PSE_OFFLINE_METRICS" envDefault:"true"`
	LogPath        string        `env:"PSE_OFFLINE_LOG" envDefault:"-"`
}

// StaticCacheName is the partition holding precached and fetched static assets.
func (s Server) StaticCacheName() string { return "pse-dashboard-" + s.CacheVersion }

// APICacheName is the partition holding API responses.
func (s Server) APICacheName() string { return "pse-api-" + s.CacheVersion }

// Validate checks the values that cannot be defaulted.
func (s Server) Validate() error {
	var errs []error
	if u, err := url.Parse(s.Origin); err != nil || u.Scheme == "" || u.Host == "" {
		errs = append(errs, fmt.Errorf("origin %q must be an absolute URL", s.Origin))
	}
	if u, err := url.Parse(s.SyncURL); err != nil || !u.IsAbs() {
		errs = append(errs, fmt.Errorf("sync url %q must be an absolute URL", s.SyncURL))
	}
	if strings.TrimSpace(s.APIHost) == "" {
		errs = append(errs, errors.New("api host is required"))
	}
	if strings.TrimSpace(s.CacheVersion) == "" {
		errs = append(errs, errors.New("cache version is required"))
	}
	if strings.TrimSpace(s.SyncTag) == "" {
		errs = append(errs, errors.New("sync tag is required"))
	}
	return errors.Join(errs...)
}

// ParseServer parses environment and flags into a Server config.
func ParseServer(fs *flag.FlagSet, args []string) (Server, error) {
	var cfg Server
	if err := ParseEnv(&cfg); err != nil {
		return Server{}, err
	}
	if cfg.DBPath == "" {
		cfg.DBPath = DefaultDBPath()
	}
	precache := strings.Join(cfg.Precache, ",")
	fs.StringVar(&cfg.ListenAddr, "listen", cfg.ListenAddr, "Address the proxy listens on")
	fs.StringVar(&cfg.Origin, "origin", cfg.Origin, "Dashboard origin requests are forwarded to")
	fs.StringVar(&cfg.APIHost, "api-host", cfg.APIHost, "Host name served with the network-first API policy")
	fs.StringVar(&cfg.SyncURL, "sync-url", cfg.SyncURL, "Endpoint refreshed by background sync")
	fs.StringVar(&cfg.SyncTag, "sync-tag", cfg.SyncTag, "Background sync tag bound to the sync url")
	fs.StringVar(&cfg.CacheVersion, "cache-version", cfg.CacheVersion, "Suffix of the cache partition names")
	fs.StringVar(&precache, "precache", precache, "Comma separated assets stored at install")
	fs.BoolVar(&cfg.AutoActivate, "auto-activate", cfg.AutoActivate, "Activate right after install instead of waiting for SKIP_WAITING")
	fs.StringVar(&cfg.DBPath, "db", cfg.DBPath, "bbolt cache file, used when no cache socket is set")
	fs.StringVar(&cfg.CacheSocket, "cache-sock", cfg.CacheSocket, "Unix socket of the cache daemon")
	fs.DurationVar(&cfg.FetchTimeout, "fetch-timeout", cfg.FetchTimeout, "Upstream timeout, 0 disables it")
	fs.BoolVar(&cfg.MetricsEnabled, "metrics", cfg.MetricsEnabled, "Serve prometheus metrics on /metrics")
	fs.StringVar(&cfg.LogPath, "log", cfg.LogPath, "Log file path, - for stderr")
	if err := fs.Parse(args); err != nil {
		return Server{}, err
	}
	cfg.Precache = splitList(precache)
	if err := cfg.Validate(); err != nil {
		return Server{}, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// CacheDaemon holds the cache-server configuration.
type CacheDaemon struct {
	Socket string `env:"PSE_OFFLINE_CACHE_SOCK"`
	DBPath string `env:"PSE_OFFLINE_CACHE_DB"`
}

// ParseCacheDaemon parses environment and flags into a CacheDaemon config.
func ParseCacheDaemon(fs *flag.FlagSet, args []string) (CacheDaemon, error) {
	var cfg CacheDaemon
	if err := ParseEnv(&cfg); err != nil {
		return CacheDaemon{}, err
	}
	if cfg.Socket == "" {
		cfg.Socket = DefaultSocketPath()
	}
	if cfg.DBPath == "" {
		cfg.DBPath = DefaultDBPath()
	}
	fs.StringVar(&cfg.Socket, "sock", cfg.Socket, "Unix socket to listen on")
	fs.StringVar(&cfg.DBPath, "db", cfg.DBPath, "bbolt cache file")
	if err := fs.Parse(args); err != nil {
		return CacheDaemon{}, err
	}
	return cfg, nil
}

// Control holds the MCP control server configuration.
type Control struct {
	ProxyURL string `env:"PSE_OFFLINE_PROXY_URL" envDefault:"http://localhost:8080"`
	LogPath  string `env:"PSE_OFFLINE_LOG"`
}

// ParseControl parses environment and flags into a Control config.
func ParseControl(fs *flag.FlagSet, args []string) (Control, error) {
	var cfg Control
	if err := ParseEnv(&cfg); err != nil {
		return Control{}, err
	}
	fs.StringVar(&cfg.ProxyURL, "proxy", cfg.ProxyURL, "Base URL of the running offline proxy")
	fs.StringVar(&cfg.LogPath, "log", cfg.LogPath, "Log file path")
	if err := fs.Parse(args); err != nil {
		return Control{}, err
	}
	if u, err := url.Parse(cfg.ProxyURL); err != nil || u.Scheme == "" || u.Host == "" {
		return Control{}, fmt.Errorf("invalid config: proxy url %q must be absolute", cfg.ProxyURL)
	}
	return cfg, nil
}

// ParseEnv loads configuration from environment variables.
func ParseEnv(target any) error {
	if err := env.Parse(target); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// DefaultSocketPath is the cache daemon socket under the user cache directory.
func DefaultSocketPath() string { return filepath.Join(cacheDir(), "cache.sock") }

// DefaultDBPath is the bbolt file under the user cache directory.
func DefaultDBPath() string { return filepath.Join(cacheDir(), "cache.bbolt") }

func cacheDir() string {
	home, _ := os.UserHomeDir()
	if home == "" {
		home = "."
	}
	return filepath.Join(home, ".cache", "pse-offline")
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
