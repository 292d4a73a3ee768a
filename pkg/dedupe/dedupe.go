// Package dedupe remembers recently seen webhook update ids so platform
// redeliveries are answered once.
package dedupe

import (
	"container/list"
	"sync"
	"time"
)

type entry struct {
	at   time.Time
	elem *list.Element
}

// Cache is a size-bounded TTL set. The oldest key is evicted first.
type Cache struct {
	mu      sync.Mutex
	seen    map[string]*entry
	order   *list.List
	ttl     time.Duration
	maxSize int
	now     func() time.Time
}

func New(ttl time.Duration, maxSize int) *Cache {
	if maxSize <= 0 {
		maxSize = 10_000
	}
	return &Cache{
		seen:    make(map[string]*entry),
		order:   list.New(),
		ttl:     ttl,
		maxSize: maxSize,
		now:     time.Now,
	}
}

// Seen marks key and reports whether it was already marked within the TTL.
func (c *Cache) Seen(key string) bool {
	if key == "" {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	c.expireLocked(now)

	if e, ok := c.seen[key]; ok {
		e.at = now
		c.order.MoveToBack(e.elem)
		return true
	}
	if len(c.seen) >= c.maxSize {
		if front := c.order.Front(); front != nil {
			c.order.Remove(front)
			delete(c.seen, front.Value.(string))
		}
	}
	c.seen[key] = &entry{at: now, elem: c.order.PushBack(key)}
	return false
}

func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.seen)
}

// expireLocked drops expired keys from the front; order is by last mark.
func (c *Cache) expireLocked(now time.Time) {
	for front := c.order.Front(); front != nil; front = c.order.Front() {
		key := front.Value.(string)
		if now.Sub(c.seen[key].at) < c.ttl {
			return
		}
		c.order.Remove(front)
		delete(c.seen, key)
	}
}
