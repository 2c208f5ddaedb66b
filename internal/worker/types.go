package worker

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/leonardcser/pse-offline/internal/cache"
)

// Request is an intercepted request. URL is always absolute.
type Request struct {
	Method string
	URL    *url.URL
	Header http.Header
	Body   []byte
}

// NewRequest builds a GET request for rawURL.
func NewRequest(rawURL string) (*Request, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, err
	}
	return &Request{Method: http.MethodGet, URL: u, Header: http.Header{}}, nil
}

// IsNavigation reports whether the request loads a top-level document. Form posts
// count; nested frames do not.
func (r *Request) IsNavigation() bool {
	if dest := r.Header.Get("Sec-Fetch-Dest"); dest != "" {
		return dest == "document"
	}
	if mode := r.Header.Get("Sec-Fetch-Mode"); mode != "" {
		return mode == "navigate"
	}
	// Older clients send neither header; a document load asks for HTML first.
	accept := r.Header.Get("Accept")
	return strings.HasPrefix(accept, "text/html") || strings.Contains(accept, "application/xhtml+xml")
}

// Source tells where a response came from.
type Source string

const (
	SourceNetwork     Source = "network"
	SourceCache       Source = "cache"
	SourceStale       Source = "stale"
	SourceOfflinePage Source = "offline_page"
	SourceUnavailable Source = "unavailable"
)

// Response is what a fetch event answers with.
type Response struct {
	Status int
	Header http.Header
	Body   []byte
	Source Source
}

// cacheable reports whether a network response for req may be stored.
func (r *Response) cacheable(req *Request) bool {
	return req.Method == http.MethodGet && r.Status >= 200 && r.Status < 300
}

func (r *Response) toEntry(req *Request, now time.Time) *cache.Entry {
	return &cache.Entry{
		Method:   req.Method,
		URL:      req.URL.String(),
		Status:   r.Status,
		Header:   r.Header.Clone(),
		Body:     append([]byte(nil), r.Body...),
		StoredAt: now,
	}
}

func fromEntry(e *cache.Entry, source Source) *Response {
	h := e.Header.Clone()
	if h == nil {
		h = http.Header{}
	}
	return &Response{Status: e.Status, Header: h, Body: e.Body, Source: source}
}

// Network performs live fetches. Any HTTP response, whatever its status, is a
// success; err is non-nil only when no response was obtained.
type Network interface {
	Fetch(ctx context.Context, req *Request) (*Response, error)
}

// Precacher fetches every URL or fails as a whole.
type Precacher interface {
	Precache(ctx context.Context, urls []string) ([]*cache.Entry, error)
}

// Message is the payload exchanged with client pages.
type Message struct {
	Type      string `json:"type"`
	Timestamp int64  `json:"timestamp,omitempty"`
	URL       string `json:"url,omitempty"`
	Tag       string `json:"tag,omitempty"`
	// Notification is set on NOTIFICATION messages.
	Notification *Notification `json:"notification,omitempty"`
}

// Message types.
const (
	MessageSkipWaiting        = "SKIP_WAITING"
	MessageRequestSync        = "REQUEST_SYNC"
	MessageDataUpdated        = "DATA_UPDATED"
	MessageNotification       = "NOTIFICATION"
	MessageNotificationClosed = "NOTIFICATION_CLOSED"
	MessageOpenWindow         = "OPEN_WINDOW"
	MessageControllerChange   = "CONTROLLER_CHANGE"
)

// Clients is the set of pages the worker can reach.
type Clients interface {
	// Claim takes control of every connected page.
	Claim(ctx context.Context) error
	// PostAll delivers msg to every connected page.
	PostAll(ctx context.Context, msg Message) error
	// OpenWindow asks the host to open a page at rawURL.
	OpenWindow(ctx context.Context, rawURL string) error
}

// Notifier displays and dismisses notifications.
type Notifier interface {
	Show(ctx context.Context, n Notification) error
	Close(ctx context.Context, tag string) error
}

// SyncRegistrar schedules a one-shot background sync for a tag.
type SyncRegistrar interface {
	Register(ctx context.Context, tag string) error
}
