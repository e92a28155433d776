package server

import "sync"

// viewCache holds rendered date-view payloads keyed by owner and date. Every
// successful mutation invalidates the caller's entries unconditionally; there
// is no selective invalidation and invalidating a fresh or absent entry is a
// no-op. This is the system's only cache.
type viewCache struct {
	mu      sync.Mutex
	entries map[string]map[string][]byte
}

func newViewCache() *viewCache {
	return &viewCache{entries: make(map[string]map[string][]byte)}
}

func (c *viewCache) Get(userID, path string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	paths, ok := c.entries[userID]
	if !ok {
		return nil, false
	}
	payload, ok := paths[path]
	return payload, ok
}

func (c *viewCache) Put(userID, path string, payload []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	paths, ok := c.entries[userID]
	if !ok {
		paths = make(map[string][]byte)
		c.entries[userID] = paths
	}
	paths[path] = payload
}

// Invalidate drops every cached view for the user.
func (c *viewCache) Invalidate(userID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, userID)
}
