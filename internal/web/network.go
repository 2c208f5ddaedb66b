package web

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/leonardcser/pse-offline/internal/worker"
)

// MaxResponseSize bounds a single upstream body kept in memory.
const MaxResponseSize = 32 * 1024 * 1024

// Hop-by-hop headers are meaningful for a single connection only.
var hopHeaders = []string{
	"Connection",
	"Keep-Alive",
	"Proxy-Authenticate",
	"Proxy-Authorization",
	"Proxy-Connection",
	"Te",
	"Trailer",
	"Transfer-Encoding",
	"Upgrade",
}

// Network performs live fetches with net/http.
type Network struct {
	client *http.Client
}

var _ worker.Network = (*Network)(nil)

// NewNetwork returns a Network. A zero timeout leaves requests bounded by their context only.
func NewNetwork(timeout time.Duration) *Network {
	return &Network{client: &http.Client{
		Timeout: timeout,
		// Redirects go back to the page so its URL stays right.
		CheckRedirect: func(*http.Request, []*http.Request) error { return http.ErrUseLastResponse },
	}}
}

// Fetch forwards req. Any HTTP status is a successful fetch.
func (n *Network) Fetch(ctx context.Context, req *worker.Request) (*worker.Response, error) {
	var body io.Reader = http.NoBody
	if len(req.Body) > 0 {
		body = bytes.NewReader(req.Body)
	}
	out, err := http.NewRequestWithContext(ctx, req.Method, req.URL.String(), body)
	if err != nil {
		return nil, err
	}
	out.Header = forwardHeader(req.Header)
	// Let the transport negotiate compression so stored bodies are plain.
	out.Header.Del("Accept-Encoding")
	if out.Header.Get("User-Agent") == "" {
		out.Header.Set("User-Agent", UserAgent())
	}

	resp, err := n.client.Do(out)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	b, err := io.ReadAll(io.LimitReader(resp.Body, MaxResponseSize+1))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", req.URL, err)
	}
	if len(b) > MaxResponseSize {
		return nil, fmt.Errorf("%s: response larger than %d bytes", req.URL, MaxResponseSize)
	}
	return &worker.Response{
		Status: resp.StatusCode,
		Header: forwardHeader(resp.Header),
		Body:   b,
	}, nil
}

func forwardHeader(h http.Header) http.Header {
	out := h.Clone()
	if out == nil {
		return http.Header{}
	}
	for _, name := range hopHeaders {
		out.Del(name)
	}
	out.Del("Content-Length")
	return out
}
