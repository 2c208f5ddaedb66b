// Package worker implements the offline caching policies and the event handlers of the
// dashboard intermediary. The host delivers typed events to Worker.Dispatch; every
// side effect goes through the injected storage, network, client and notification
// handles, so the handlers run without a host in tests.
package worker

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/leonardcser/pse-offline/internal/cache"
	"github.com/leonardcser/pse-offline/internal/logger"
	"github.com/leonardcser/pse-offline/internal/metrics"
)

// State is the lifecycle state of the worker.
type State int32

const (
	StateParsed State = iota
	StateInstalling
	StateInstalled // Waiting for activation.
	StateActivating
	StateActivated
	StateRedundant
)

func (s State) String() string {
	switch s {
	case StateParsed:
		return "parsed"
	case StateInstalling:
		return "installing"
	case StateInstalled:
		return "installed"
	case StateActivating:
		return "activating"
	case StateActivated:
		return "activated"
	case StateRedundant:
		return "redundant"
	}
	return "unknown"
}

// Options are the fixed parameters of a worker.
type Options struct {
	// Origin resolves root-relative precache entries.
	Origin *url.URL
	// APIHost selects the network-first policy.
	APIHost     string
	StaticCache string
	APICache    string
	Precache    []string
	SyncTag     string
	SyncURL     string
	// AutoActivate skips the waiting phase right after a successful install.
	AutoActivate bool
	Now          func() time.Time
	NewID        func() string
}

// Deps are the host provided handles.
type Deps struct {
	Storage   cache.Storage
	Network   Network
	Precacher Precacher
	Clients   Clients
	Notifier  Notifier
	Syncs     SyncRegistrar
}

// Worker routes events to their handlers.
type Worker struct {
	opts    Options
	deps    Deps
	static  cache.Partition
	api     cache.Partition
	state   atomic.Int32
	cycleMu sync.Mutex // Serializes install and activate.
}

// New opens both partitions and returns a worker in the parsed state.
func New(opts Options, deps Deps) (*Worker, error) {
	if deps.Storage == nil || deps.Network == nil || deps.Precacher == nil ||
		deps.Clients == nil || deps.Notifier == nil || deps.Syncs == nil {
		return nil, errors.New("worker: all dependencies are required")
	}
	if opts.Origin == nil || !opts.Origin.IsAbs() {
		return nil, errors.New("worker: origin must be an absolute URL")
	}
	if opts.StaticCache == "" || opts.APICache == "" || opts.StaticCache == opts.APICache {
		return nil, fmt.Errorf("worker: need two distinct cache names, got %q and %q", opts.StaticCache, opts.APICache)
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.NewID == nil {
		opts.NewID = uuid.NewString
	}
	static, err := deps.Storage.Partition(opts.StaticCache)
	if err != nil {
		return nil, fmt.Errorf("open static cache: %w", err)
	}
	api, err := deps.Storage.Partition(opts.APICache)
	if err != nil {
		return nil, fmt.Errorf("open api cache: %w", err)
	}
	return &Worker{opts: opts, deps: deps, static: static, api: api}, nil
}

// State returns the current lifecycle state.
func (w *Worker) State() State { return State(w.state.Load()) }

// Controlling reports whether fetch events should be routed through the policies.
func (w *Worker) Controlling() bool { return w.State() == StateActivated }

// CacheNames returns the static and API partition names.
func (w *Worker) CacheNames() (static, api string) { return w.opts.StaticCache, w.opts.APICache }

func (w *Worker) setState(s State) {
	prev := State(w.state.Swap(int32(s)))
	if prev != s {
		logger.Infof("worker state %s -> %s", prev, s)
	}
}

// Dispatch runs the handler of ev. Only fetch events produce a response.
func (w *Worker) Dispatch(ctx context.Context, ev Event) (*Response, error) {
	switch e := ev.(type) {
	case InstallEvent:
		return nil, w.install(ctx)
	case ActivateEvent:
		w.cycleMu.Lock()
		defer w.cycleMu.Unlock()
		return nil, w.activateLocked(ctx)
	case FetchEvent:
		return w.fetch(ctx, e.Request)
	case PushEvent:
		return nil, w.push(ctx, e.Data)
	case NotificationClickEvent:
		return nil, w.notificationClick(ctx, e)
	case SyncEvent:
		w.backgroundSync(ctx, e.Tag)
		return nil, nil
	case MessageEvent:
		w.message(ctx, e)
		return nil, nil
	}
	metrics.RaiseInvariant("worker", "unknown_event", "Dispatched an event without a handler.", "event", fmt.Sprintf("%T", ev))
	return nil, fmt.Errorf("worker: no handler for %T", ev)
}

// install precaches every static asset. Any failure fails the whole install and
// nothing is stored.
func (w *Worker) install(ctx context.Context) error {
	w.cycleMu.Lock()
	defer w.cycleMu.Unlock()

	switch st := w.State(); st {
	case StateParsed, StateRedundant:
	default:
		return fmt.Errorf("install: worker is %s", st)
	}
	w.setState(StateInstalling)

	urls, err := w.precacheURLs()
	if err != nil {
		w.setState(StateRedundant)
		return fmt.Errorf("install: %w", err)
	}
	entries, err := w.deps.Precacher.Precache(ctx, urls)
	if err != nil {
		w.setState(StateRedundant)
		return fmt.Errorf("install: precache: %w", err)
	}
	for _, e := range entries {
		if err := w.static.Put(e); err != nil {
			w.setState(StateRedundant)
			return fmt.Errorf("install: store %s: %w", e.URL, err)
		}
	}
	logger.Infof("precached %d assets into %s", len(entries), w.opts.StaticCache)
	w.setState(StateInstalled)

	if w.opts.AutoActivate {
		return w.activateLocked(ctx)
	}
	return nil
}

// activateLocked deletes stale partitions and claims the clients. Callers hold cycleMu.
func (w *Worker) activateLocked(ctx context.Context) error {
	if st := w.State(); st != StateInstalled {
		return fmt.Errorf("activate: no waiting worker, state is %s", st)
	}
	w.setState(StateActivating)

	if err := w.dropStaleCaches(); err != nil {
		w.setState(StateInstalled)
		return fmt.Errorf("activate: %w", err)
	}
	w.setState(StateActivated)
	if err := w.deps.Clients.Claim(ctx); err != nil {
		logger.Warnf("claim clients: %v", err)
	}
	return nil
}

func (w *Worker) dropStaleCaches() error {
	names, err := w.deps.Storage.Names()
	if err != nil {
		return fmt.Errorf("list caches: %w", err)
	}
	for _, name := range names {
		if name == w.opts.StaticCache || name == w.opts.APICache {
			continue
		}
		if _, err := w.deps.Storage.Drop(name); err != nil {
			return fmt.Errorf("delete cache %s: %w", name, err)
		}
		logger.Infof("deleted old cache %s", name)
	}
	return nil
}

// skipWaiting activates a waiting worker and is a no-op in any other state.
func (w *Worker) skipWaiting(ctx context.Context) error {
	w.cycleMu.Lock()
	defer w.cycleMu.Unlock()
	if st := w.State(); st != StateInstalled {
		logger.Debugf("skip waiting ignored, worker is %s", st)
		return nil
	}
	return w.activateLocked(ctx)
}

func (w *Worker) precacheURLs() ([]string, error) {
	urls := make([]string, 0, len(w.opts.Precache))
	for _, raw := range w.opts.Precache {
		u, err := w.resolve(raw)
		if err != nil {
			return nil, fmt.Errorf("precache url %q: %w", raw, err)
		}
		urls = append(urls, u.String())
	}
	return urls, nil
}

// resolve makes raw absolute against the origin.
func (w *Worker) resolve(raw string) (*url.URL, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return nil, err
	}
	if u.IsAbs() {
		return u, nil
	}
	return w.opts.Origin.ResolveReference(u), nil
}
