// Package batch queues the URLs handed to a single fetch run.
package batch

import (
	"bufio"
	"fmt"
	"io"
	"net/url"
	"strings"
	"sync"
)

// Queue holds URLs in arrival order and drops duplicates.
type Queue struct {
	mu    sync.Mutex
	queue []string
	seen  map[string]bool
}

// NewQueue creates an empty queue.
func NewQueue() *Queue {
	return &Queue{
		queue: make([]string, 0),
		seen:  make(map[string]bool),
	}
}

// Add queues rawURL unless an equivalent URL was added before. The URL is
// stored as given, trimmed of surrounding whitespace; blank input is ignored.
func (q *Queue) Add(rawURL string) bool {
	rawURL = strings.TrimSpace(rawURL)
	if rawURL == "" {
		return false
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	key := normalizeURL(rawURL)
	if q.seen[key] {
		return false
	}
	q.seen[key] = true
	q.queue = append(q.queue, rawURL)
	return true
}

// Pop removes and returns the next URL.
func (q *Queue) Pop() (string, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.queue) == 0 {
		return "", false
	}
	u := q.queue[0]
	q.queue = q.queue[1:]
	return u, true
}

// Len returns the number of queued URLs.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.queue)
}

// Drain empties the queue and returns its URLs in order.
func (q *Queue) Drain() []string {
	var urls []string
	for {
		u, ok := q.Pop()
		if !ok {
			return urls
		}
		urls = append(urls, u)
	}
}

// ReadLines queues one URL per line from r. Blank lines and lines starting
// with # are skipped. It returns the number of URLs added.
func (q *Queue) ReadLines(r io.Reader) (int, error) {
	added := 0
	sc := bufio.NewScanner(r)
	line := 0
	for sc.Scan() {
		line++
		text := strings.TrimSpace(sc.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		if q.Add(text) {
			added++
		}
	}
	if err := sc.Err(); err != nil {
		return added, fmt.Errorf("failed to read URL list at line %d: %w", line+1, err)
	}
	return added, nil
}

// normalizeURL returns the comparison key for rawURL. Unparseable input is
// compared verbatim so it still reaches the pipeline and gets a proper
// rejection.
func normalizeURL(rawURL string) string {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}

	parsed.Fragment = ""
	parsed.RawFragment = ""
	parsed.Scheme = strings.ToLower(parsed.Scheme)
	parsed.Host = strings.ToLower(parsed.Host)

	if len(parsed.Path) > 1 && strings.HasSuffix(parsed.Path, "/") {
		parsed.Path = strings.TrimSuffix(parsed.Path, "/")
		parsed.RawPath = ""
	}

	return parsed.String()
}
