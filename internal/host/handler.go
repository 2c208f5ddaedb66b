// Package host is the runtime around the worker: it turns HTTP traffic into fetch
// events, exposes the control endpoints pages and operators post to, streams worker
// messages to connected pages and fires registered background syncs.
package host

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/leonardcser/pse-offline/internal/cache"
	"github.com/leonardcser/pse-offline/internal/logger"
	"github.com/leonardcser/pse-offline/internal/metrics"
	"github.com/leonardcser/pse-offline/internal/worker"
)

// ControlPrefix is the path prefix of the endpoints that are never intercepted.
const ControlPrefix = "/__sw/"

// HeaderClientID identifies the page posting to a control endpoint.
const HeaderClientID = "X-Client-ID"

const defaultMaxBody = 10 << 20

// Worker is the part of worker.Worker the host needs.
type Worker interface {
	Dispatcher
	Controlling() bool
	State() worker.State
	CacheNames() (static, api string)
}

type Options struct {
	// Origin resolves origin-form requests.
	Origin *url.URL
	// Metrics is served on /metrics when set.
	Metrics     http.Handler
	MaxBodySize int64
}

// Handler intercepts every request that is not a control endpoint.
type Handler struct {
	w       Worker
	storage cache.Storage
	hub     *Hub
	syncs   *SyncScheduler
	network worker.Network
	opts    Options
	control *http.ServeMux
}

func NewHandler(w Worker, storage cache.Storage, hub *Hub, syncs *SyncScheduler, network worker.Network, opts Options) *Handler {
	if opts.MaxBodySize <= 0 {
		opts.MaxBodySize = defaultMaxBody
	}
	h := &Handler{w: w, storage: storage, hub: hub, syncs: syncs, network: network, opts: opts}
	mux := http.NewServeMux()
	mux.HandleFunc("GET "+ControlPrefix+"events", h.serveEvents)
	mux.HandleFunc("GET "+ControlPrefix+"state", h.serveState)
	mux.HandleFunc("GET "+ControlPrefix+"caches", h.serveCaches)
	mux.HandleFunc("GET "+ControlPrefix+"caches/entry", h.serveEntry)
	mux.HandleFunc("POST "+ControlPrefix+"message", h.serveMessage)
	mux.HandleFunc("POST "+ControlPrefix+"push", h.servePush)
	mux.HandleFunc("POST "+ControlPrefix+"notificationclick", h.serveNotificationClick)
	h.control = mux
	return h
}

func (h *Handler) ServeHTTP(rw http.ResponseWriter, r *http.Request) {
	if !r.URL.IsAbs() {
		if strings.HasPrefix(r.URL.Path, ControlPrefix) {
			h.control.ServeHTTP(rw, r)
			return
		}
		if r.URL.Path == "/metrics" && h.opts.Metrics != nil {
			h.opts.Metrics.ServeHTTP(rw, r)
			return
		}
	}
	h.serveFetch(rw, r)
}

func (h *Handler) serveFetch(rw http.ResponseWriter, r *http.Request) {
	req, err := h.toRequest(r)
	if err != nil {
		http.Error(rw, err.Error(), http.StatusBadRequest)
		return
	}
	if !h.w.Controlling() {
		h.passthrough(rw, r, req)
		return
	}
	resp, err := h.w.Dispatch(r.Context(), worker.FetchEvent{Request: req})
	if err != nil {
		logger.Errorf("fetch %s: %v", req.URL, err)
		http.Error(rw, "fetch failed", http.StatusInternalServerError)
		return
	}
	writeResponse(rw, r, resp)
}

// passthrough serves requests while no worker controls the pages.
func (h *Handler) passthrough(rw http.ResponseWriter, r *http.Request, req *worker.Request) {
	resp, err := h.network.Fetch(r.Context(), req)
	if err != nil {
		metrics.ObserveFetch("passthrough", string(worker.SourceUnavailable))
		logger.Warnf("passthrough %s: %v", req.URL, err)
		http.Error(rw, "upstream unreachable", http.StatusBadGateway)
		return
	}
	metrics.ObserveFetch("passthrough", string(worker.SourceNetwork))
	writeResponse(rw, r, resp)
}

// toRequest keeps the target of absolute-form proxy requests and resolves the
// rest against the dashboard origin.
func (h *Handler) toRequest(r *http.Request) (*worker.Request, error) {
	target := r.URL
	if !target.IsAbs() {
		target = h.opts.Origin.ResolveReference(&url.URL{
			Path:     r.URL.Path,
			RawPath:  r.URL.RawPath,
			RawQuery: r.URL.RawQuery,
		})
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, h.opts.MaxBodySize+1))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if int64(len(body)) > h.opts.MaxBodySize {
		return nil, errors.New("request body too large")
	}
	return &worker.Request{
		Method: r.Method,
		URL:    target,
		Header: r.Header.Clone(),
		Body:   body,
	}, nil
}

func writeResponse(rw http.ResponseWriter, r *http.Request, resp *worker.Response) {
	for name, values := range resp.Header {
		for _, v := range values {
			rw.Header().Add(name, v)
		}
	}
	rw.WriteHeader(resp.Status)
	if r.Method == http.MethodHead {
		return
	}
	if _, err := rw.Write(resp.Body); err != nil {
		logger.Debugf("write response for %s: %v", r.URL, err)
	}
}

func (h *Handler) serveEvents(rw http.ResponseWriter, r *http.Request) {
	flusher, ok := rw.(http.Flusher)
	if !ok {
		http.Error(rw, "streaming unsupported", http.StatusInternalServerError)
		return
	}
	c, disconnect := h.hub.connect(r.URL.Query().Get("client"), h.w.Controlling())
	defer disconnect()

	rw.Header().Set("Content-Type", "text/event-stream")
	rw.Header().Set("Cache-Control", "no-cache")
	rw.Header().Set("Connection", "keep-alive")
	hello, _ := json.Marshal(map[string]any{"id": c.ID, "controlled": c.Controlled})
	fmt.Fprintf(rw, "event: connected\ndata: %s\n\n", hello)
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case msg, open := <-c.messages:
			if !open { // Replaced by a newer connection.
				return
			}
			b, err := json.Marshal(msg)
			if err != nil {
				logger.Errorf("encode message %s: %v", msg.Type, err)
				continue
			}
			fmt.Fprintf(rw, "data: %s\n\n", b)
			flusher.Flush()
		}
	}
}

// StateReport is the body of GET /__sw/state.
type StateReport struct {
	State        string       `json:"state"`
	Controlling  bool         `json:"controlling"`
	StaticCache  string       `json:"static_cache"`
	APICache     string       `json:"api_cache"`
	Clients      []ClientInfo `json:"clients"`
	PendingSyncs []string     `json:"pending_syncs"`
}

func (h *Handler) serveState(rw http.ResponseWriter, _ *http.Request) {
	static, api := h.w.CacheNames()
	writeJSON(rw, http.StatusOK, StateReport{
		State:        h.w.State().String(),
		Controlling:  h.w.Controlling(),
		StaticCache:  static,
		APICache:     api,
		Clients:      h.hub.Clients(),
		PendingSyncs: h.syncs.Pending(),
	})
}

// PartitionReport describes one cache partition.
type PartitionReport struct {
	Name    string            `json:"name"`
	Entries []cache.EntryInfo `json:"entries"`
}

func (h *Handler) serveCaches(rw http.ResponseWriter, _ *http.Request) {
	names, err := h.storage.Names()
	if err != nil {
		writeError(rw, http.StatusInternalServerError, err)
		return
	}
	reports := make([]PartitionReport, 0, len(names))
	for _, name := range names {
		p, err := h.storage.Partition(name)
		if err != nil {
			writeError(rw, http.StatusInternalServerError, err)
			return
		}
		infos, err := p.List()
		if err != nil {
			writeError(rw, http.StatusInternalServerError, err)
			return
		}
		reports = append(reports, PartitionReport{Name: name, Entries: infos})
	}
	writeJSON(rw, http.StatusOK, reports)
}

func (h *Handler) serveEntry(rw http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	name, rawURL := q.Get("partition"), q.Get("url")
	if name == "" || rawURL == "" {
		writeError(rw, http.StatusBadRequest, errors.New("partition and url are required"))
		return
	}
	names, err := h.storage.Names()
	if err != nil {
		writeError(rw, http.StatusInternalServerError, err)
		return
	}
	if !contains(names, name) { // Looking up must not create the partition.
		writeError(rw, http.StatusNotFound, fmt.Errorf("no partition %s", name))
		return
	}
	p, err := h.storage.Partition(name)
	if err != nil {
		writeError(rw, http.StatusInternalServerError, err)
		return
	}
	e, err := p.Match(q.Get("method"), rawURL)
	if errors.Is(err, cache.ErrNotFound) {
		writeError(rw, http.StatusNotFound, err)
		return
	}
	if err != nil {
		writeError(rw, http.StatusInternalServerError, err)
		return
	}
	writeJSON(rw, http.StatusOK, e)
}

func (h *Handler) serveMessage(rw http.ResponseWriter, r *http.Request) {
	var msg worker.Message
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<16)).Decode(&msg); err != nil {
		writeError(rw, http.StatusBadRequest, fmt.Errorf("decode message: %w", err))
		return
	}
	if _, err := h.w.Dispatch(r.Context(), worker.MessageEvent{Data: msg, ClientID: r.Header.Get(HeaderClientID)}); err != nil {
		logger.Errorf("message %s: %v", msg.Type, err)
	}
	rw.WriteHeader(http.StatusAccepted)
}

func (h *Handler) servePush(rw http.ResponseWriter, r *http.Request) {
	data, err := io.ReadAll(io.LimitReader(r.Body, 1<<16))
	if err != nil {
		writeError(rw, http.StatusBadRequest, err)
		return
	}
	if _, err := h.w.Dispatch(r.Context(), worker.PushEvent{Data: data}); err != nil {
		writeError(rw, http.StatusServiceUnavailable, err)
		return
	}
	rw.WriteHeader(http.StatusCreated)
}

func (h *Handler) serveNotificationClick(rw http.ResponseWriter, r *http.Request) {
	var ev worker.NotificationClickEvent
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<16)).Decode(&ev); err != nil {
		writeError(rw, http.StatusBadRequest, fmt.Errorf("decode click: %w", err))
		return
	}
	if _, err := h.w.Dispatch(r.Context(), ev); err != nil {
		writeError(rw, http.StatusServiceUnavailable, err)
		return
	}
	rw.WriteHeader(http.StatusNoContent)
}

func writeJSON(rw http.ResponseWriter, status int, v any) {
	rw.Header().Set("Content-Type", "application/json")
	rw.WriteHeader(status)
	if err := json.NewEncoder(rw).Encode(v); err != nil {
		logger.Debugf("write json: %v", err)
	}
}

func writeError(rw http.ResponseWriter, status int, err error) {
	writeJSON(rw, status, map[string]string{"error": err.Error()})
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
