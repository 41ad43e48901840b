package scraper

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
)

// fakeFetcher serves canned bodies keyed by page number (listing) or exact URL.
type fakeFetcher struct {
	mu     sync.Mutex
	pages  map[int]string
	urls   map[string]string
	failAt map[int]bool
	calls  []string
}

func (f *fakeFetcher) Fetch(_ context.Context, url string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, url)

	if body, ok := f.urls[url]; ok {
		return []byte(body), nil
	}
	for n, body := range f.pages {
		if strings.HasSuffix(url, fmt.Sprintf("page=%d", n)) {
			if f.failAt[n] {
				return nil, errors.New("connection reset by peer")
			}
			return []byte(body), nil
		}
	}
	for n := range f.failAt {
		if strings.HasSuffix(url, fmt.Sprintf("page=%d", n)) {
			return nil, errors.New("connection reset by peer")
		}
	}
	return nil, fmt.Errorf("HTTP 404: %s", url)
}

func (f *fakeFetcher) fetchCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func listingPage(links ...string) string {
	var b strings.Builder
	b.WriteString("<html><body><ul>")
	for _, l := range links {
		b.WriteString("<li>" + l + "</li>")
	}
	b.WriteString("</ul></body></html>")
	return b.String()
}

func advisoryLink(id, title string) string {
	return fmt.Sprintf(`<a href="/news-events/cybersecurity-advisories/%s">%s</a>`, id, title)
}
