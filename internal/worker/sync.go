package worker

import (
	"context"
	"fmt"

	"github.com/leonardcser/pse-offline/internal/logger"
	"github.com/leonardcser/pse-offline/internal/metrics"
)

// backgroundSync refreshes the API data for the fixed tag. Failures are logged and dropped.
func (w *Worker) backgroundSync(ctx context.Context, tag string) {
	if tag != w.opts.SyncTag {
		logger.Debugf("ignoring sync for unknown tag %q", tag)
		return
	}
	if err := w.refresh(ctx); err != nil {
		metrics.ObserveSync("failed")
		logger.Errorf("background sync %s failed: %v", tag, err)
		return
	}
	metrics.ObserveSync("updated")
}

func (w *Worker) refresh(ctx context.Context) error {
	req, err := NewRequest(w.opts.SyncURL)
	if err != nil {
		return fmt.Errorf("sync url: %w", err)
	}
	resp, err := w.deps.Network.Fetch(ctx, req)
	if err != nil {
		return err
	}
	if !resp.cacheable(req) {
		return fmt.Errorf("%s answered %d", req.URL, resp.Status)
	}
	if err := w.api.Put(resp.toEntry(req, w.opts.Now())); err != nil {
		return fmt.Errorf("store %s: %w", req.URL, err)
	}
	msg := Message{Type: MessageDataUpdated, Timestamp: w.opts.Now().UnixMilli()}
	if err := w.deps.Clients.PostAll(ctx, msg); err != nil {
		return fmt.Errorf("notify clients: %w", err)
	}
	return nil
}

// message handles page posted directives. Failures are logged, never returned to the page.
func (w *Worker) message(ctx context.Context, ev MessageEvent) {
	switch ev.Data.Type {
	case MessageSkipWaiting:
		if err := w.skipWaiting(ctx); err != nil {
			logger.Errorf("skip waiting requested by %s: %v", ev.ClientID, err)
		}
	case MessageRequestSync:
		if err := w.deps.Syncs.Register(ctx, w.opts.SyncTag); err != nil {
			logger.Errorf("register sync %s for %s: %v", w.opts.SyncTag, ev.ClientID, err)
		}
	default:
		logger.Warnf("ignoring message %q from %s", ev.Data.Type, ev.ClientID)
	}
}
