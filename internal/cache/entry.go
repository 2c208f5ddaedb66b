package cache

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/cespare/xxhash/v2"
)

// Entry is a stored response together with the request identity it answers.
type Entry struct {
	Method   string      `json:"method"`
	URL      string      `json:"url"`
	Status   int         `json:"status"`
	Header   http.Header `json:"header,omitempty"`
	Body     []byte      `json:"body,omitempty"`
	StoredAt time.Time   `json:"stored_at"`
}

// EntryInfo is the body-less description of an Entry.
type EntryInfo struct {
	Method      string    `json:"method"`
	URL         string    `json:"url"`
	Status      int       `json:"status"`
	ContentType string    `json:"content_type,omitempty"`
	Size        int       `json:"size"`
	StoredAt    time.Time `json:"stored_at"`
}

// Info describes e.
func (e *Entry) Info() EntryInfo {
	return EntryInfo{
		Method:      e.Method,
		URL:         e.URL,
		Status:      e.Status,
		ContentType: e.Header.Get("Content-Type"),
		Size:        len(e.Body),
		StoredAt:    e.StoredAt,
	}
}

// Clone returns a deep copy so callers can mutate headers freely.
func (e *Entry) Clone() *Entry {
	c := *e
	c.Header = e.Header.Clone()
	c.Body = append([]byte(nil), e.Body...)
	return &c
}

// Key derives the storage key of a request identity. URLs can be long, so the
// key is a fixed size hash; the full identity lives in the entry and is checked on read.
func Key(method, rawURL string) []byte {
	return fmt.Appendf(nil, "%016x", xxhash.Sum64String(identity(method, rawURL)))
}

func identity(method, rawURL string) string {
	if method == "" {
		method = http.MethodGet
	}
	return strings.ToUpper(method) + " " + rawURL
}

// sameIdentity reports whether e answers method and rawURL.
func (e *Entry) sameIdentity(method, rawURL string) bool {
	return identity(e.Method, e.URL) == identity(method, rawURL)
}
