// ABOUTME: Thread-safe TTL window of recently delivered message IDs
// ABOUTME: Lets the mediator drop transport redeliveries before they reach a conversation

package dedupe

import (
	"container/list"
	"sync"
	"time"

	"github.com/2389/pillarclient/internal/message"
)

const (
	minSweepInterval = time.Second
	maxSweepInterval = time.Minute
)

type entry struct {
	seenAt  time.Time
	element *list.Element
}

// Cache remembers delivery keys for a TTL, holding at most maxSize keys.
// The oldest key is evicted first when the cache is full.
type Cache struct {
	mu      sync.Mutex
	seen    map[string]*entry
	order   *list.List // oldest at front
	ttl     time.Duration
	maxSize int
	now     func() time.Time
	done    chan struct{}
	closed  bool
}

// New creates a cache and starts its background sweep.
func New(ttl time.Duration, maxSize int) *Cache {
	c := &Cache{
		seen:    make(map[string]*entry),
		order:   list.New(),
		ttl:     ttl,
		maxSize: maxSize,
		now:     time.Now,
		done:    make(chan struct{}),
	}
	go c.sweepLoop(sweepInterval(ttl))
	return c
}

func sweepInterval(ttl time.Duration) time.Duration {
	return min(max(ttl/2, minSweepInterval), maxSweepInterval)
}

// Key identifies one delivery of msg. Messages without an ID fall back to
// the sender, kind and correlation id, which treats every response a
// pillar sends for the same step as a duplicate.
func Key(msg *message.Message) string {
	if msg.ID != "" {
		return msg.ID
	}
	return msg.CorrelationID + "/" + msg.From + "/" + string(msg.Kind)
}

// Duplicate reports whether msg was seen within the TTL and marks it
// otherwise. Checking and marking happen under one lock.
func (c *Cache) Duplicate(msg *message.Message) bool {
	return c.CheckAndMark(Key(msg))
}

// CheckAndMark reports whether key was seen within the TTL; if not, key
// is recorded.
func (c *Cache) CheckAndMark(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if e, ok := c.seen[key]; ok {
		if now.Sub(e.seenAt) < c.ttl {
			return true
		}
		e.seenAt = now
		c.order.MoveToBack(e.element)
		return false
	}
	if c.maxSize > 0 && len(c.seen) >= c.maxSize {
		c.evictOldest()
	}
	c.seen[key] = &entry{seenAt: now, element: c.order.PushBack(key)}
	return false
}

// Len returns the number of remembered keys, expired ones included until
// the next sweep.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.seen)
}

func (c *Cache) evictOldest() {
	front := c.order.Front()
	if front == nil {
		return
	}
	key, _ := front.Value.(string)
	c.order.Remove(front)
	delete(c.seen, key)
}

func (c *Cache) sweepLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			c.sweep()
		case <-c.done:
			return
		}
	}
}

// sweep drops expired keys. The list is in mark order, so it stops at
// the first key still inside the TTL.
func (c *Cache) sweep() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	for front := c.order.Front(); front != nil; front = c.order.Front() {
		key, _ := front.Value.(string)
		if now.Sub(c.seen[key].seenAt) < c.ttl {
			return
		}
		c.order.Remove(front)
		delete(c.seen, key)
	}
}

// Close stops the background sweep. It is safe to call more than once.
func (c *Cache) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		close(c.done)
		c.closed = true
	}
}
