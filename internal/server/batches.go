package server

import "sync"

// batchCache remembers the responses of recently applied batches so a
// client retrying a batch whose response was lost does not apply it twice.
// The oldest entry is evicted first.
type batchCache struct {
	mu    sync.Mutex
	limit int
	order []string
	resp  map[string][]byte
}

func newBatchCache(limit int) *batchCache {
	return &batchCache{limit: limit, resp: map[string][]byte{}}
}

func (c *batchCache) get(id string) ([]byte, bool) {
	if id == "" {
		return nil, false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	resp, ok := c.resp[id]
	return resp, ok
}

func (c *batchCache) put(id string, resp []byte) {
	if id == "" || c.limit <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.resp[id]; ok {
		return
	}
	if len(c.order) >= c.limit {
		delete(c.resp, c.order[0])
		c.order = c.order[1:]
	}
	c.order = append(c.order, id)
	c.resp[id] = resp
}
