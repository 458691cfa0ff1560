package worker

import (
	"context"
	"sync"
)

// Cancels tracks the cancel functions of running jobs so the API can stop them.
type Cancels struct {
	mu      sync.Mutex
	running map[string]context.CancelFunc
}

// NewCancels returns an empty registry.
func NewCancels() *Cancels {
	return &Cancels{running: make(map[string]context.CancelFunc)}
}

func (c *Cancels) register(jobID string, cancel context.CancelFunc) {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.running[jobID] = cancel
}

func (c *Cancels) done(jobID string) {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.running, jobID)
}

// Cancel stops a running job and reports whether one was found.
func (c *Cancels) Cancel(jobID string) bool {
	if c == nil {
		return false
	}
	c.mu.Lock()
	cancel, ok := c.running[jobID]
	c.mu.Unlock()
	if ok {
		cancel()
	}
	return ok
}
