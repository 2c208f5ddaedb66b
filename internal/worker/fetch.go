package worker

import (
	"context"
	"errors"
	"strings"

	"github.com/leonardcser/pse-offline/internal/cache"
	"github.com/leonardcser/pse-offline/internal/logger"
	"github.com/leonardcser/pse-offline/internal/metrics"
)

// Header set on API responses served from the cache after a network failure.
const HeaderFromCache = "X-From-Cache"

const (
	policyAPI    = "api"
	policyStatic = "static"
)

func (w *Worker) fetch(ctx context.Context, req *Request) (*Response, error) {
	if req == nil || req.URL == nil || !req.URL.IsAbs() {
		metrics.RaiseInvariant("worker", "relative_fetch_url", "Fetch event without an absolute URL.")
		return nil, errors.New("fetch: request needs an absolute url")
	}
	var (
		resp   *Response
		policy string
	)
	if w.isAPIRequest(req) {
		policy, resp = policyAPI, w.networkFirst(ctx, req)
	} else {
		policy, resp = policyStatic, w.cacheFirst(ctx, req)
	}
	metrics.ObserveFetch(policy, string(resp.Source))
	return resp, nil
}

func (w *Worker) isAPIRequest(req *Request) bool {
	return strings.EqualFold(req.URL.Hostname(), w.opts.APIHost)
}

// networkFirst serves API data: live when possible, otherwise the last stored copy.
func (w *Worker) networkFirst(ctx context.Context, req *Request) *Response {
	resp, err := w.deps.Network.Fetch(ctx, req)
	if err == nil {
		resp.Source = SourceNetwork
		w.store(w.api, req, resp)
		return resp
	}
	key := req.URL.String()
	logger.Warnf("network failed for %s, falling back to cache: %v", key, err)

	e, err := w.api.Match(req.Method, key)
	if err == nil {
		stale := fromEntry(e, SourceStale)
		stale.Header.Set(HeaderFromCache, "true")
		return stale
	}
	if !errors.Is(err, cache.ErrNotFound) {
		logger.Errorf("read %s from %s: %v", key, w.api.Name(), err)
	}
	return apiUnavailable()
}

// cacheFirst serves static assets from the cache and only fetches on a miss.
func (w *Worker) cacheFirst(ctx context.Context, req *Request) *Response {
	key := req.URL.String()
	e, err := w.static.Match(req.Method, key)
	if err == nil {
		return fromEntry(e, SourceCache)
	}
	if !errors.Is(err, cache.ErrNotFound) {
		logger.Errorf("read %s from %s: %v", key, w.static.Name(), err)
	}

	resp, err := w.deps.Network.Fetch(ctx, req)
	if err == nil {
		resp.Source = SourceNetwork
		w.store(w.static, req, resp)
		return resp
	}
	logger.Warnf("network failed for %s: %v", key, err)
	if req.IsNavigation() {
		return offlinePage()
	}
	return staticUnavailable()
}

// store keeps a copy of a cacheable response. A failed write never affects the response.
func (w *Worker) store(p cache.Partition, req *Request, resp *Response) {
	if !resp.cacheable(req) {
		return
	}
	if err := p.Put(resp.toEntry(req, w.opts.Now())); err != nil {
		logger.Errorf("store %s in %s: %v", req.URL, p.Name(), err)
	}
}
