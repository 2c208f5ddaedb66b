package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/JohannesKaufmann/html-to-markdown/v2"
	"github.com/PuerkitoBio/goquery"
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/leonardcser/pse-offline/internal/cache"
)

// MaxPeekSize bounds the body text returned to the caller.
const MaxPeekSize = 64 * 1024

// PeekHandler returns the MCP tool handler for the "dashboard-cache-peek" tool.
func PeekHandler(p Proxy) handlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		if ctx.Err() != nil {
			return mcp.NewToolResultError(ctx.Err().Error()), nil
		}
		partition, err := req.RequireString("cache")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		rawURL, err := req.RequireString("url")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		e, err := p.Entry(ctx, partition, req.GetString("method", ""), rawURL)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		content, err := formatEntry(e)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return mcp.NewToolResultText(content), nil
	}
}

func formatEntry(e *cache.Entry) (string, error) {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s %s -> %d\n", e.Method, e.URL, e.Status)
	fmt.Fprintf(&sb, "Stored: %s\n", e.StoredAt.Format("2006-01-02 15:04:05 MST"))

	ct := strings.ToLower(e.Header.Get("Content-Type"))
	switch {
	case strings.Contains(ct, "text/html"):
		title, text, err := summarizeHTML(e.Body)
		if err != nil {
			return "", err
		}
		if title != "" {
			sb.WriteString("\n# ")
			sb.WriteString(title)
			sb.WriteString("\n")
		}
		sb.WriteString("\n")
		sb.WriteString(trim(text))
	case strings.Contains(ct, "json"):
		var out bytes.Buffer
		if err := json.Indent(&out, e.Body, "", "  "); err != nil {
			out.Reset()
			out.Write(e.Body)
		}
		sb.WriteString("\n")
		sb.WriteString(trim(out.String()))
	case strings.HasPrefix(ct, "text/") || strings.Contains(ct, "javascript"):
		sb.WriteString("\n")
		sb.WriteString(trim(string(e.Body)))
	default:
		fmt.Fprintf(&sb, "\n[%d bytes of %s not shown]", len(e.Body), orUnknown(ct))
	}
	return sb.String(), nil
}

// summarizeHTML returns the page title and a markdown rendering of its visible content.
func summarizeHTML(body []byte) (title, text string, err error) {
	if len(body) == 0 {
		return "", "", errors.New("empty response body")
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return "", "", err
	}
	doc.Find("script, style, noscript, iframe, object, embed, img, video, picture, svg, canvas, audio, source, track").Remove()
	title = strings.TrimSpace(doc.Find("head > title").First().Text())
	doc.Find("head").Remove()

	plain := strings.Join(strings.Fields(doc.Find("body").Text()), " ")
	html, err := doc.Html()
	if err != nil {
		return title, plain, nil
	}
	markdown, err := htmltomarkdown.ConvertString(html)
	if err != nil {
		return title, plain, nil
	}
	return title, strings.TrimSpace(markdown), nil
}

func trim(s string) string {
	if len(s) <= MaxPeekSize {
		return s
	}
	cut := MaxPeekSize
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "... [trimmed]"
}

func orUnknown(ct string) string {
	if ct == "" {
		return "unknown type"
	}
	return ct
}
