package web

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gocolly/colly/v2"

	"github.com/leonardcser/pse-offline/internal/cache"
	"github.com/leonardcser/pse-offline/internal/worker"
)

const RequestTimeout = 20 * time.Second

// Precacher downloads the install-time asset list with colly.
type Precacher struct {
	timeout time.Duration
	maxBody int
	now     func() time.Time
}

var _ worker.Precacher = (*Precacher)(nil)

func NewPrecacher(timeout time.Duration) *Precacher {
	if timeout <= 0 {
		timeout = RequestTimeout
	}
	return &Precacher{timeout: timeout, maxBody: MaxResponseSize, now: time.Now}
}

// Precache fetches urls in order and returns one entry per URL. The first
// unreachable URL or non-2xx status fails the whole batch.
func (p *Precacher) Precache(ctx context.Context, urls []string) ([]*cache.Entry, error) {
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	c := colly.NewCollector(
		colly.AllowURLRevisit(),
		colly.Async(false),
		// One extra byte tells a truncated body from one of exactly the limit.
		colly.MaxBodySize(p.maxBody+1),
	)
	c.Context = ctx
	c.SetRequestTimeout(p.timeout)
	c.OnRequest(func(r *colly.Request) {
		r.Headers.Set("User-Agent", UserAgent())
		r.Headers.Set("Accept", "*/*")
	})

	var (
		current   string // Requested URL; redirects must not change the cache key.
		oversized bool
		entries   = make([]*cache.Entry, 0, len(urls))
	)
	c.OnResponse(func(r *colly.Response) {
		if len(r.Body) > p.maxBody {
			oversized = true
			return
		}
		header := http.Header{}
		if r.Headers != nil {
			header = forwardHeader(*r.Headers)
		}
		entries = append(entries, &cache.Entry{
			Method:   http.MethodGet,
			URL:      current,
			Status:   r.StatusCode,
			Header:   header,
			Body:     append([]byte(nil), r.Body...),
			StoredAt: p.now(),
		})
	})

	for _, u := range urls {
		current = u
		if err := c.Visit(u); err != nil {
			return nil, fmt.Errorf("fetch %s: %w", u, err)
		}
		if oversized {
			return nil, fmt.Errorf("fetch %s: response larger than %d bytes", u, p.maxBody)
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
	}
	if len(entries) != len(urls) {
		return nil, fmt.Errorf("precache: got %d responses for %d urls", len(entries), len(urls))
	}
	return entries, nil
}
