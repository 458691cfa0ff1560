package crawler

import (
	"net/url"
	"sync"
)

// frontier is the FIFO of pending same-host URLs plus the visited set.
// Pending plus visited never exceeds the budget, so a URL is fetched at most once
// and the crawl never dispatches more than budget pages.
type frontier struct {
	mu      sync.Mutex
	budget  int
	queue   []*url.URL
	queued  map[string]struct{}
	visited map[string]struct{}
}

func newFrontier(budget int) *frontier {
	return &frontier{
		budget:  budget,
		queued:  make(map[string]struct{}),
		visited: make(map[string]struct{}),
	}
}

// push enqueues u unless it is known or the budget is already committed.
func (f *frontier) push(u *url.URL) bool {
	key := u.String()
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.visited[key]; ok {
		return false
	}
	if _, ok := f.queued[key]; ok {
		return false
	}
	if len(f.queue)+len(f.visited) >= f.budget {
		return false
	}
	f.queue = append(f.queue, u)
	f.queued[key] = struct{}{}
	return true
}

// next pops the oldest pending URL and marks it visited.
func (f *frontier) next() (*url.URL, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.queue) == 0 || len(f.visited) >= f.budget {
		return nil, false
	}
	u := f.queue[0]
	f.queue[0] = nil
	f.queue = f.queue[1:]
	key := u.String()
	delete(f.queued, key)
	f.visited[key] = struct{}{}
	return u, true
}

func (f *frontier) pending() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.queue)
}

func (f *frontier) visitedCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.visited)
}
