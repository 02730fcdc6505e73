package resolver

import (
	"strconv"
	"sync"
)

// Sequence hands out anchors. Implementations must be safe for concurrent use
// and never return the same value twice.
type Sequence interface {
	Next() string
}

// Counter is a Sequence producing prefix1, prefix2, ...
type Counter struct {
	mu     sync.Mutex
	prefix string
	n      int
}

// NewCounter returns a Counter starting at 1.
func NewCounter(prefix string) *Counter {
	return &Counter{prefix: prefix}
}

// Next returns the next anchor.
func (c *Counter) Next() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.n++
	return c.prefix + strconv.Itoa(c.n)
}
