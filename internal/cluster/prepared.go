package cluster

import (
	"sync"
	"time"

	"github.com/nativecql/nativecql/internal/protocol"
)

// gracePeriod is how long a prepared-statement cache entry survives
// after its last live handle disappears before being evicted.
const gracePeriod = 5 * time.Minute

// PreparedHandle is a cached prepared statement: its CQL text, the
// server-assigned id, and its bind-parameter metadata.
type PreparedHandle struct {
	CQL           string
	ID            []byte
	ParamMetadata protocol.ColumnMeta
}

type cacheEntry struct {
	handle *PreparedHandle
	refs   int
	timer  *time.Timer
}

// preparedCache is keyed by exact CQL text, combining reference
// counting with scheduled grace-period eviction.
type preparedCache struct {
	mu      sync.Mutex
	entries map[string]*cacheEntry
}

func newPreparedCache() *preparedCache {
	return &preparedCache{entries: make(map[string]*cacheEntry)}
}

// get returns the cached handle for cql if present and pins it
// (cancels any pending eviction timer).
func (c *preparedCache) get(cql string) (*PreparedHandle, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[cql]
	if !ok {
		return nil, false
	}
	if e.timer != nil {
		e.timer.Stop()
		e.timer = nil
	}
	e.refs++
	return e.handle, true
}

// put stores a freshly prepared handle, pinned once for the caller
// that just prepared it.
func (c *preparedCache) put(handle *PreparedHandle) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.entries[handle.CQL]; ok {
		e.refs++
		return
	}
	c.entries[handle.CQL] = &cacheEntry{handle: handle, refs: 1}
}

// release drops the caller's pin; once no callers hold a reference,
// the entry is retained for gracePeriod then evicted, unless
// re-requested first (get cancels the timer).
func (c *preparedCache) release(cql string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[cql]
	if !ok {
		return
	}
	e.refs--
	if e.refs > 0 {
		return
	}
	e.timer = time.AfterFunc(gracePeriod, func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		if cur, ok := c.entries[cql]; ok && cur.refs <= 0 {
			delete(c.entries, cql)
		}
	})
}

// all returns every live cached handle, used to re-prepare on a newly
// ready primary.
func (c *preparedCache) all() []*PreparedHandle {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*PreparedHandle, 0, len(c.entries))
	for _, e := range c.entries {
		out = append(out, e.handle)
	}
	return out
}
