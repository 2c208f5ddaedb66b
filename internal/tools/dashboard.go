package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/leonardcser/pse-offline/internal/cache"
	"github.com/leonardcser/pse-offline/internal/host"
	"github.com/leonardcser/pse-offline/internal/worker"
)

// Proxy is the control surface of a running offline proxy.
type Proxy interface {
	State(ctx context.Context) (*host.StateReport, error)
	Caches(ctx context.Context) ([]host.PartitionReport, error)
	Entry(ctx context.Context, partition, method, rawURL string) (*cache.Entry, error)
	PostMessage(ctx context.Context, msg worker.Message) error
	Push(ctx context.Context, payload []byte) error
}

type handlerFunc = func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error)

// StateHandler returns the MCP tool handler for the "dashboard-state" tool.
func StateHandler(p Proxy) handlerFunc {
	return func(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		report, err := p.State(ctx)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return mcp.NewToolResultText(formatState(report)), nil
	}
}

// CachesHandler returns the MCP tool handler for the "dashboard-caches" tool.
func CachesHandler(p Proxy) handlerFunc {
	return func(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		reports, err := p.Caches(ctx)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return mcp.NewToolResultText(formatCaches(reports)), nil
	}
}

// RefreshHandler returns the MCP tool handler for the "dashboard-refresh" tool.
func RefreshHandler(p Proxy) handlerFunc {
	return func(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		if err := p.PostMessage(ctx, worker.Message{Type: worker.MessageRequestSync}); err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return mcp.NewToolResultText("Background sync requested. Pages receive DATA_UPDATED once the stock data is stored."), nil
	}
}

// SkipWaitingHandler returns the MCP tool handler for the "dashboard-skip-waiting" tool.
func SkipWaitingHandler(p Proxy) handlerFunc {
	return func(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		if err := p.PostMessage(ctx, worker.Message{Type: worker.MessageSkipWaiting}); err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		report, err := p.State(ctx)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return mcp.NewToolResultText("Worker is " + report.State + "."), nil
	}
}

// PushHandler returns the MCP tool handler for the "dashboard-push" tool.
func PushHandler(p Proxy) handlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		payload := map[string]string{}
		if body := strings.TrimSpace(req.GetString("body", "")); body != "" {
			payload["body"] = body
		}
		if u := strings.TrimSpace(req.GetString("url", "")); u != "" {
			payload["url"] = u
		}
		var data []byte
		if len(payload) > 0 {
			data, _ = json.Marshal(payload)
		}
		if err := p.Push(ctx, data); err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return mcp.NewToolResultText("Notification delivered to the connected pages."), nil
	}
}

func formatState(r *host.StateReport) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Worker: %s (controlling: %t)\n", r.State, r.Controlling)
	fmt.Fprintf(&sb, "Caches: %s, %s\n", r.StaticCache, r.APICache)
	if len(r.PendingSyncs) > 0 {
		fmt.Fprintf(&sb, "Pending syncs: %s\n", strings.Join(r.PendingSyncs, ", "))
	}
	if len(r.Clients) == 0 {
		sb.WriteString("No connected pages.")
		return sb.String()
	}
	sb.WriteString("Pages:")
	for _, c := range r.Clients {
		fmt.Fprintf(&sb, "\n- %s controlled=%t since %s", c.ID, c.Controlled, c.ConnectedAt.Format(time.RFC3339))
	}
	return sb.String()
}

// formatCaches renders every partition as a heading followed by its entries.
func formatCaches(reports []host.PartitionReport) string {
	if len(reports) == 0 {
		return "No caches."
	}
	var sb strings.Builder
	for i, r := range reports {
		fmt.Fprintf(&sb, "## %s (%d entries)", r.Name, len(r.Entries))
		for _, e := range r.Entries {
			fmt.Fprintf(&sb, "\n- %s %s -> %d", e.Method, e.URL, e.Status)
			if e.ContentType != "" {
				fmt.Fprintf(&sb, " %s", e.ContentType)
			}
			fmt.Fprintf(&sb, ", %d bytes, stored %s", e.Size, e.StoredAt.Format(time.RFC3339))
		}
		if i < len(reports)-1 {
			sb.WriteString("\n\n")
		}
	}
	return sb.String()
}
