package web

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leonardcser/pse-offline/internal/worker"
)

func newUpstream(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = io.WriteString(w, "<html><title>PSE</title></html>")
	})
	mux.HandleFunc("/manifest.json", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/manifest+json")
		_, _ = io.WriteString(w, `{"name":"PSE Dashboard"}`)
	})
	mux.HandleFunc("/old.js", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/new.js", http.StatusMovedPermanently)
	})
	mux.HandleFunc("/new.js", func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, "new")
	})
	mux.HandleFunc("/missing.js", http.NotFound)
	mux.HandleFunc("/echo", func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		w.Header().Set("X-Method", r.Method)
		w.Header().Set("X-User-Agent", r.UserAgent())
		w.Header().Set("X-Saw-Proxy-Auth", r.Header.Get("Proxy-Authorization"))
		w.Header().Set("Connection", "close")
		w.WriteHeader(http.StatusAccepted)
		_, _ = w.Write(b)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestNetwork_Fetch(t *testing.T) {
	srv := newUpstream(t)
	n := NewNetwork(5 * time.Second)

	t.Run("forwards_method_and_body", func(t *testing.T) {
		req, err := worker.NewRequest(srv.URL + "/echo")
		require.NoError(t, err)
		req.Method = http.MethodPost
		req.Body = []byte("symbol=JFC")
		req.Header.Set("Proxy-Authorization", "secret")

		resp, err := n.Fetch(context.Background(), req)
		require.NoError(t, err)
		assert.Equal(t, http.StatusAccepted, resp.Status)
		assert.Equal(t, "symbol=JFC", string(resp.Body))
		assert.Equal(t, http.MethodPost, resp.Header.Get("X-Method"))
		assert.Empty(t, resp.Header.Get("X-Saw-Proxy-Auth"))
		assert.True(t, strings.HasPrefix(resp.Header.Get("X-User-Agent"), "pse-offline/"))
		assert.Empty(t, resp.Header.Get("Connection"))
	})
	t.Run("keeps_browser_user_agent", func(t *testing.T) {
		req, _ := worker.NewRequest(srv.URL + "/echo")
		req.Header.Set("User-Agent", "Mozilla/5.0")
		resp, err := n.Fetch(context.Background(), req)
		require.NoError(t, err)
		assert.Equal(t, "Mozilla/5.0", resp.Header.Get("X-User-Agent"))
	})
	t.Run("error_status_is_a_response", func(t *testing.T) {
		req, _ := worker.NewRequest(srv.URL + "/missing.js")
		resp, err := n.Fetch(context.Background(), req)
		require.NoError(t, err)
		assert.Equal(t, http.StatusNotFound, resp.Status)
	})
	t.Run("redirects_are_not_followed", func(t *testing.T) {
		req, _ := worker.NewRequest(srv.URL + "/old.js")
		resp, err := n.Fetch(context.Background(), req)
		require.NoError(t, err)
		assert.Equal(t, http.StatusMovedPermanently, resp.Status)
		assert.Equal(t, "/new.js", resp.Header.Get("Location"))
	})
	t.Run("unreachable_is_an_error", func(t *testing.T) {
		dead := httptest.NewServer(http.NotFoundHandler())
		dead.Close()
		req, _ := worker.NewRequest(dead.URL + "/")
		_, err := n.Fetch(context.Background(), req)
		assert.Error(t, err)
	})
}

func TestPrecacher(t *testing.T) {
	srv := newUpstream(t)
	p := NewPrecacher(5 * time.Second)

	t.Run("fetches_every_url", func(t *testing.T) {
		entries, err := p.Precache(context.Background(), []string{srv.URL + "/", srv.URL + "/manifest.json"})
		require.NoError(t, err)
		require.Len(t, entries, 2)
		assert.Equal(t, srv.URL+"/", entries[0].URL)
		assert.Equal(t, http.StatusOK, entries[0].Status)
		assert.Contains(t, string(entries[0].Body), "<title>PSE</title>")
		assert.Equal(t, "application/manifest+json", entries[1].Header.Get("Content-Type"))
	})
	t.Run("redirect_keeps_requested_key", func(t *testing.T) {
		entries, err := p.Precache(context.Background(), []string{srv.URL + "/old.js"})
		require.NoError(t, err)
		require.Len(t, entries, 1)
		assert.Equal(t, srv.URL+"/old.js", entries[0].URL)
		assert.Equal(t, "new", string(entries[0].Body))
	})
	t.Run("one_failure_fails_all", func(t *testing.T) {
		entries, err := p.Precache(context.Background(), []string{srv.URL + "/", srv.URL + "/missing.js"})
		assert.ErrorContains(t, err, "missing.js")
		assert.Nil(t, entries)
	})
	t.Run("oversized_body_fails", func(t *testing.T) {
		small := NewPrecacher(5 * time.Second)
		small.maxBody = 8
		entries, err := small.Precache(context.Background(), []string{srv.URL + "/manifest.json"})
		assert.ErrorContains(t, err, "larger than 8 bytes")
		assert.Nil(t, entries)
	})
	t.Run("body_at_limit_is_kept", func(t *testing.T) {
		exact := NewPrecacher(5 * time.Second)
		exact.maxBody = len("new")
		entries, err := exact.Precache(context.Background(), []string{srv.URL + "/new.js"})
		require.NoError(t, err)
		require.Len(t, entries, 1)
		assert.Equal(t, "new", string(entries[0].Body))
	})
	t.Run("cancelled_context", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := p.Precache(ctx, []string{srv.URL + "/"})
		assert.ErrorIs(t, err, context.Canceled)
	})
}
