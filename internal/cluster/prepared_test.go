package cluster

import (
	"testing"
	"time"

	"github.com/nativecql/nativecql/internal/protocol"
)

func TestPreparedCacheGetPutIdentity(t *testing.T) {
	c := newPreparedCache()
	h := &PreparedHandle{CQL: "SELECT 1", ID: []byte{1}}
	c.put(h)

	got, ok := c.get("SELECT 1")
	if !ok {
		t.Fatal("expected cache hit")
	}
	if got != h {
		t.Fatal("expected the same handle pointer back")
	}
}

func TestPreparedCacheMissBeforePut(t *testing.T) {
	c := newPreparedCache()
	if _, ok := c.get("SELECT 1"); ok {
		t.Fatal("expected cache miss on empty cache")
	}
}

func TestPreparedCacheReleaseArmsTimer(t *testing.T) {
	c := newPreparedCache()
	h := &PreparedHandle{CQL: "SELECT 1", ID: []byte{1}}
	c.put(h)
	c.release("SELECT 1")

	c.mu.Lock()
	e := c.entries["SELECT 1"]
	armed := e.timer != nil
	c.mu.Unlock()
	if !armed {
		t.Fatal("expected eviction timer armed once refs drop to zero")
	}

	// re-get before the grace period elapses cancels the timer and
	// keeps the entry alive.
	if _, ok := c.get("SELECT 1"); !ok {
		t.Fatal("expected entry still present before grace period elapses")
	}
	c.mu.Lock()
	e = c.entries["SELECT 1"]
	stillArmed := e.timer != nil
	c.mu.Unlock()
	if stillArmed {
		t.Fatal("expected timer cancelled by re-get")
	}
}

func TestPreparedCacheAllReturnsLiveHandles(t *testing.T) {
	c := newPreparedCache()
	c.put(&PreparedHandle{CQL: "A", ParamMetadata: protocol.ColumnMeta{}})
	c.put(&PreparedHandle{CQL: "B", ParamMetadata: protocol.ColumnMeta{}})
	all := c.all()
	if len(all) != 2 {
		t.Fatalf("got %d handles, want 2", len(all))
	}
}

func TestPreparedCacheEvictsAfterGracePeriodElapsesUnreferenced(t *testing.T) {
	c := newPreparedCache()
	h := &PreparedHandle{CQL: "SELECT 1"}
	c.put(h)
	c.mu.Lock()
	c.entries["SELECT 1"].timer = time.AfterFunc(10*time.Millisecond, func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		if cur, ok := c.entries["SELECT 1"]; ok && cur.refs <= 0 {
			delete(c.entries, "SELECT 1")
		}
	})
	c.entries["SELECT 1"].refs = 0
	c.mu.Unlock()

	time.Sleep(50 * time.Millisecond)
	if _, ok := c.get("SELECT 1"); ok {
		t.Fatal("expected entry evicted after simulated grace period")
	}
}
