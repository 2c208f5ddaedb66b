package config

import (
	"flag"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseServerDefaults(t *testing.T) {
	cfg, err := ParseServer(flag.NewFlagSet("server", flag.ContinueOnError), nil)
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.ListenAddr)
	assert.Equal(t, "phisix-api3.appspot.com", cfg.APIHost)
	assert.Equal(t, "sync-stock-data", cfg.SyncTag)
	assert.Equal(t, []string{"/", "/manifest.json", "https://cdn.jsdelivr.net/npm/chart.js"}, cfg.Precache)
	assert.True(t, cfg.AutoActivate)
	assert.Equal(t, time.Duration(0), cfg.FetchTimeout)
	assert.Equal(t, "pse-dashboard-v1", cfg.StaticCacheName())
	assert.Equal(t, "pse-api-v1", cfg.APICacheName())
	assert.NotEmpty(t, cfg.DBPath)
}

func TestParseServerEnvAndFlags(t *testing.T) {
	t.Setenv("PSE_OFFLINE_CACHE_VERSION", "v7")
	t.Setenv("PSE_OFFLINE_PRECACHE", "/a.js, /b.css")
	t.Setenv("PSE_OFFLINE_ORIGIN", "http://dash.local:9000")

	cfg, err := ParseServer(flag.NewFlagSet("server", flag.ContinueOnError),
		[]string{"-listen", "127.0.0.1:9999", "-auto-activate=false"})
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:9999", cfg.ListenAddr)
	assert.Equal(t, "http://dash.local:9000", cfg.Origin)
	assert.False(t, cfg.AutoActivate)
	assert.Equal(t, []string{"/a.js", "/b.css"}, cfg.Precache)
	assert.Equal(t, "pse-dashboard-v7", cfg.StaticCacheName())
}

func TestParseServerRejectsRelativeOrigin(t *testing.T) {
	_, err := ParseServer(flag.NewFlagSet("server", flag.ContinueOnError), []string{"-origin", "/nope"})
	assert.ErrorContains(t, err, "origin")
}

func TestParseControl(t *testing.T) {
	cfg, err := ParseControl(flag.NewFlagSet("control", flag.ContinueOnError), []string{"-proxy", "http://proxy:8080"})
	require.NoError(t, err)
	assert.Equal(t, "http://proxy:8080", cfg.ProxyURL)

	_, err = ParseControl(flag.NewFlagSet("control", flag.ContinueOnError), []string{"-proxy", "proxy"})
	assert.Error(t, err)
}

func TestParseCacheDaemonDefaults(t *testing.T) {
	cfg, err := ParseCacheDaemon(flag.NewFlagSet("cache", flag.ContinueOnError), nil)
	require.NoError(t, err)
	assert.Equal(t, DefaultSocketPath(), cfg.Socket)
	assert.Equal(t, DefaultDBPath(), cfg.DBPath)
}
