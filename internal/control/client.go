// Package control talks to the control endpoints of a running offline proxy.
package control

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/leonardcser/pse-offline/internal/cache"
	"github.com/leonardcser/pse-offline/internal/host"
	"github.com/leonardcser/pse-offline/internal/web"
	"github.com/leonardcser/pse-offline/internal/worker"
)

// ClientID is sent with every message so the proxy logs who asked.
const ClientID = "pse-offline-control"

// ErrNotFound is returned when the proxy has no such cache entry.
var ErrNotFound = errors.New("control: not found")

type Client struct {
	base *url.URL
	http *http.Client
}

func NewClient(proxyURL string, timeout time.Duration) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(proxyURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("proxy url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("proxy url %q must be absolute", proxyURL)
	}
	return &Client{base: u, http: &http.Client{Timeout: timeout}}, nil
}

// State reports the worker lifecycle, connected pages and pending syncs.
func (c *Client) State(ctx context.Context) (*host.StateReport, error) {
	var report host.StateReport
	if err := c.getJSON(ctx, "state", nil, &report); err != nil {
		return nil, err
	}
	return &report, nil
}

// Caches lists every partition with its entries.
func (c *Client) Caches(ctx context.Context) ([]host.PartitionReport, error) {
	var reports []host.PartitionReport
	if err := c.getJSON(ctx, "caches", nil, &reports); err != nil {
		return nil, err
	}
	return reports, nil
}

// Entry returns one stored response including its body.
func (c *Client) Entry(ctx context.Context, partition, method, rawURL string) (*cache.Entry, error) {
	q := url.Values{"partition": {partition}, "url": {rawURL}}
	if method != "" {
		q.Set("method", method)
	}
	var e cache.Entry
	if err := c.getJSON(ctx, "caches/entry", q, &e); err != nil {
		return nil, err
	}
	return &e, nil
}

// PostMessage delivers msg to the worker as if a page had posted it.
func (c *Client) PostMessage(ctx context.Context, msg worker.Message) error {
	b, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return c.post(ctx, "message", "application/json", b)
}

// Push simulates a push delivery with the raw payload.
func (c *Client) Push(ctx context.Context, payload []byte) error {
	return c.post(ctx, "push", "application/json", payload)
}

func (c *Client) endpoint(name string, q url.Values) string {
	u := *c.base
	u.Path = strings.TrimRight(u.Path, "/") + host.ControlPrefix + name
	u.RawQuery = q.Encode()
	return u.String()
}

func (c *Client) getJSON(ctx context.Context, name string, q url.Values, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint(name, q), nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	resp, err := c.do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s: %w", name, err)
	}
	return nil
}

func (c *Client) post(ctx context.Context, name, contentType string, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint(name, nil), bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", contentType)
	resp, err := c.do(req)
	if err != nil {
		return err
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return resp.Body.Close()
}

// do sends req and turns non-2xx answers into errors carrying the proxy's message.
func (c *Client) do(req *http.Request) (*http.Response, error) {
	req.Header.Set("User-Agent", web.UserAgent())
	req.Header.Set(host.HeaderClientID, ClientID)
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return resp, nil
	}
	defer resp.Body.Close()
	var failure struct {
		Error string `json:"error"`
	}
	_ = json.NewDecoder(io.LimitReader(resp.Body, 1<<16)).Decode(&failure)
	if resp.StatusCode == http.StatusNotFound {
		if failure.Error != "" {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, failure.Error)
		}
		return nil, ErrNotFound
	}
	if failure.Error == "" {
		failure.Error = http.StatusText(resp.StatusCode)
	}
	return nil, fmt.Errorf("%s %s: %d %s", req.Method, req.URL.Path, resp.StatusCode, failure.Error)
}
