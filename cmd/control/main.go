package main

import (
	"flag"
	"os"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/leonardcser/pse-offline/internal/buildinfo"
	"github.com/leonardcser/pse-offline/internal/config"
	"github.com/leonardcser/pse-offline/internal/control"
	"github.com/leonardcser/pse-offline/internal/logger"
	"github.com/leonardcser/pse-offline/internal/tools"
)

func main() {
	cfg, err := config.ParseControl(flag.NewFlagSet("pse-offline-control", flag.ExitOnError), os.Args[1:])
	if err != nil {
		panic(err)
	}
	// Stdout carries the MCP stream, so logs go to a file.
	if err := logger.InitFromEnv(cfg.LogPath, "pse-offline-control"); err != nil {
		panic(err)
	}
	defer logger.Close()

	logger.Infof("Starting PSE offline control for %s", cfg.ProxyURL)
	proxy, err := control.NewClient(cfg.ProxyURL, 30*time.Second)
	if err != nil {
		logger.Errorf("%v", err)
		panic(err)
	}

	s := server.NewMCPServer(
		"PSE Offline Control",
		buildinfo.Version,
		server.WithRecovery(),
		server.WithToolCapabilities(false),
	)

	s.AddTool(mcp.NewTool("dashboard-state",
		mcp.WithDescription(multiline(
			"Reports the offline worker of the PSE dashboard proxy",
			"\nFunctionality:",
			"- Lifecycle state and whether requests are routed through the caches",
			"- Names of the static and API caches",
			"- Connected dashboard pages and pending background syncs",
		)),
	), tools.StateHandler(proxy))

	s.AddTool(mcp.NewTool("dashboard-caches",
		mcp.WithDescription(multiline(
			"Lists every cache of the proxy with its stored responses",
			"\nUsage notes:",
			"- Shows method, URL, status, content type, size and storage time per entry",
			"- Caches from older versions disappear once a new worker activates",
		)),
	), tools.CachesHandler(proxy))

	s.AddTool(mcp.NewTool("dashboard-cache-peek",
		mcp.WithDescription(multiline(
			"Shows one stored response",
			"\nUsage notes:",
			"- HTML pages are converted to markdown, JSON is indented",
			"- Binary bodies such as icons are summarized, not shown",
			"- Use dashboard-caches first to find the cache name and URL",
		)),
		mcp.WithString("cache", mcp.Required(), mcp.Description("Cache name, e.g. pse-api-v1")),
		mcp.WithString("url", mcp.Required(), mcp.Description("Absolute URL of the stored request")),
		mcp.WithString("method", mcp.Description("Request method, defaults to GET")),
	), tools.PeekHandler(proxy))

	s.AddTool(mcp.NewTool("dashboard-refresh",
		mcp.WithDescription(multiline(
			"Requests a background sync of the stock data",
			"\nUsage notes:",
			"- The sync runs asynchronously; failures are logged by the proxy",
			"- Connected pages receive DATA_UPDATED when fresh data is stored",
		)),
	), tools.RefreshHandler(proxy))

	s.AddTool(mcp.NewTool("dashboard-skip-waiting",
		mcp.WithDescription(multiline(
			"Activates an installed worker that is waiting",
			"\nUsage notes:",
			"- Does nothing when the worker is not waiting",
			"- Activation deletes caches of older versions",
		)),
	), tools.SkipWaitingHandler(proxy))

	s.AddTool(mcp.NewTool("dashboard-push",
		mcp.WithDescription(multiline(
			"Delivers a push notification to the connected dashboard pages",
			"\nUsage notes:",
			"- Without a body the default update message is shown",
			"- Fails when no page is connected",
		)),
		mcp.WithString("body", mcp.Description("Notification text")),
		mcp.WithString("url", mcp.Description("Page opened when the notification is clicked, defaults to /")),
	), tools.PushHandler(proxy))
	logger.Infof("Registered dashboard tools")

	logger.Infof("Starting MCP server on stdio")
	if err := server.ServeStdio(s); err != nil {
		logger.Errorf("server error: %v", err)
	}
}

// multiline joins lines with newlines for tool descriptions.
func multiline(lines ...string) string { return strings.Join(lines, "\n") }
