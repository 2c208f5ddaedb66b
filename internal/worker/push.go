package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/leonardcser/pse-offline/internal/logger"
	"github.com/leonardcser/pse-offline/internal/metrics"
)

// Notification action identifiers.
const (
	ActionOpen  = "open"
	ActionClose = "close"
)

const (
	notificationTitle     = "PSE Dashboard"
	defaultPushBody       = "May bagong update sa PSE stocks!"
	defaultNotifyURL      = "/"
	notificationIcon      = "/icon-192.png"
	notificationBadge     = "/icon-72.png"
	notificationOpenIcon  = "/icon-open.png"
	notificationCloseIcon = "/icon-close.png"
)

var notificationVibrate = []int{100, 50, 100}

// Notification describes what the host displays.
type Notification struct {
	Tag     string               `json:"tag"`
	Title   string               `json:"title"`
	Body    string               `json:"body"`
	Icon    string               `json:"icon"`
	Badge   string               `json:"badge"`
	Vibrate []int                `json:"vibrate"`
	Data    NotificationData     `json:"data"`
	Actions []NotificationAction `json:"actions"`
}

type NotificationData struct {
	URL string `json:"url"`
}

type NotificationAction struct {
	Action string `json:"action"`
	Title  string `json:"title"`
	Icon   string `json:"icon,omitempty"`
}

type pushPayload struct {
	Body string
	URL  string
}

// parsePush reads the optional body and url string fields. A payload that is not a
// JSON object becomes the body as plain text; an empty payload keeps the defaults.
func parsePush(data []byte) pushPayload {
	p := pushPayload{Body: defaultPushBody, URL: defaultNotifyURL}
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return p
	}
	var fields map[string]any
	if err := json.Unmarshal(data, &fields); err != nil {
		logger.Debugf("push payload is not a json object, using it as text: %v", err)
		p.Body = string(data)
		return p
	}
	if s, ok := fields["body"].(string); ok && s != "" {
		p.Body = s
	}
	if s, ok := fields["url"].(string); ok && s != "" {
		p.URL = s
	}
	return p
}

func (w *Worker) buildNotification(data []byte) Notification {
	p := parsePush(data)
	return Notification{
		Tag:     "pse-" + w.opts.NewID(),
		Title:   notificationTitle,
		Body:    p.Body,
		Icon:    notificationIcon,
		Badge:   notificationBadge,
		Vibrate: append([]int(nil), notificationVibrate...),
		Data:    NotificationData{URL: p.URL},
		Actions: []NotificationAction{
			{Action: ActionOpen, Title: "Buksan ang Dashboard", Icon: notificationOpenIcon},
			{Action: ActionClose, Title: "Isara", Icon: notificationCloseIcon},
		},
	}
}

func (w *Worker) push(ctx context.Context, data []byte) error {
	n := w.buildNotification(data)
	if err := w.deps.Notifier.Show(ctx, n); err != nil {
		metrics.ObservePush("failed")
		return fmt.Errorf("show notification: %w", err)
	}
	metrics.ObservePush("shown")
	return nil
}

func (w *Worker) notificationClick(ctx context.Context, ev NotificationClickEvent) error {
	if err := w.deps.Notifier.Close(ctx, ev.Notification.Tag); err != nil {
		logger.Warnf("close notification %s: %v", ev.Notification.Tag, err)
	}
	if ev.Action == ActionClose {
		return nil
	}
	target := ev.Notification.Data.URL
	if target == "" {
		target = defaultNotifyURL
	}
	if err := w.deps.Clients.OpenWindow(ctx, target); err != nil {
		return fmt.Errorf("open window %s: %w", target, err)
	}
	return nil
}
