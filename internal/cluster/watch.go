package cluster

import (
	"context"
	"time"

	"github.com/nativecql/nativecql/internal/conn"
	"github.com/nativecql/nativecql/internal/frame"
	"github.com/nativecql/nativecql/internal/protocol"
)

// downExpiry is how long a down_since timestamp disqualifies a node
// as a failover candidate.
const downExpiry = 60 * time.Second

var registeredEventTypes = []string{"STATUS_CHANGE", "TOPOLOGY_CHANGE", "SCHEMA_CHANGE"}

// registerWatchers designates one or two current primaries (two if
// more than one primary is configured) as event watchers and sends
// REGISTER to each.
func (co *Coordinator) registerWatchers(ctx context.Context) {
	co.mu.Lock()
	n := 1
	if len(co.primaries) > 1 {
		n = 2
	}
	if n > len(co.primaries) {
		n = len(co.primaries)
	}
	watchers := append([]*Node(nil), co.primaries[:n]...)
	co.watchers = watchers
	co.mu.Unlock()

	body := protocol.EncodeRegister(registeredEventTypes)
	for _, w := range watchers {
		c := w.Conn()
		if c == nil {
			continue
		}
		if _, _, err := c.Call(ctx, frame.OpRegister, body); err != nil {
			co.cfg.Logger.Printf("cluster: register on %s: %v", w.Addr, err)
		}
	}
}

// handleEvent is wired as every connection's OnEvent callback. It
// updates the node table for STATUS_CHANGE/TOPOLOGY_CHANGE, forwards
// SCHEMA_CHANGE and everything else to user listeners, and
// deduplicates by only acting when the observed state would change.
func (co *Coordinator) handleEvent(ev conn.Event) {
	switch e := ev.(type) {
	case conn.StatusChange:
		co.onStatusChange(e)
	case conn.TopologyChange:
		co.onTopologyChange(e)
	}

	co.listenersMu.Lock()
	var listeners []func(conn.Event)
	listeners = append(listeners, co.listeners...)
	co.listenersMu.Unlock()
	for _, l := range listeners {
		l(ev)
	}
}

func (co *Coordinator) onStatusChange(e conn.StatusChange) {
	addr := e.Addr.String()
	n, ok := co.table.get(addr)
	if !ok {
		return
	}
	switch e.Status {
	case "DOWN":
		if n.State() != StateDown {
			n.markDown()
		}
	case "UP":
		if !n.DownSince().IsZero() || n.State() == StateDown {
			n.clearDown()
			co.maybePromote(n)
		}
	}
}

func (co *Coordinator) onTopologyChange(e conn.TopologyChange) {
	addr := e.Addr.String()
	switch e.ChangeType {
	case "NEW_NODE":
		co.table.getOrAdd(addr, "", "")
	case "REMOVED_NODE":
		if n, ok := co.table.get(addr); ok {
			if c := n.Conn(); c != nil {
				c.CloseNow()
			}
		}
		co.table.remove(addr)
	}
}

// maybePromote promotes n to primary if prefer_dc is configured, n is
// in the preferred DC, n isn't already a primary, and some current
// primary is outside the preferred DC.
func (co *Coordinator) maybePromote(n *Node) {
	if co.cfg.PreferDC == "" || n.DataCenter != co.cfg.PreferDC || n.IsPrimary() {
		return
	}

	co.mu.Lock()
	var displacedIdx = -1
	for i, p := range co.primaries {
		if p.DataCenter != co.cfg.PreferDC {
			displacedIdx = i
			break
		}
	}
	if displacedIdx == -1 {
		co.mu.Unlock()
		return
	}
	displaced := co.primaries[displacedIdx]
	co.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), co.cfg.DialTimeout+10*time.Second)
	defer cancel()
	if err := co.connectNode(ctx, n); err != nil {
		co.cfg.Logger.Printf("cluster: promote %s: %v", n.Addr, err)
		return
	}
	n.setPrimary(true)
	displaced.setPrimary(false)

	co.mu.Lock()
	co.primaries[displacedIdx] = n
	co.mu.Unlock()

	if dc := displaced.Conn(); dc != nil {
		go dc.CloseWhenIdle(context.Background())
	}
}

// onNodeClose is wired as every connection's OnClose callback. It
// marks the node down and, if it was a primary and the coordinator
// isn't shutting down, triggers failover.
func (co *Coordinator) onNodeClose(n *Node, _ error) {
	wasPrimary := n.IsPrimary()
	n.markDown()
	if !wasPrimary {
		return
	}
	n.setPrimary(false)
	if co.isClosed() {
		return
	}
	co.pickNewPrimary(n)
}

// pickNewPrimary replaces a failed primary with the first eligible
// candidate: not currently primary, and not down within the last
// downExpiry. If none qualifies, the coordinator stays alive and the
// primary slot is simply left short.
func (co *Coordinator) pickNewPrimary(failed *Node) {
	order := selectPrimaryOrder(co.table.all(), co.cfg.PreferDC)
	co.mu.Lock()
	failedIdx := -1
	for i, p := range co.primaries {
		if p == failed {
			failedIdx = i
			break
		}
	}
	co.mu.Unlock()
	if failedIdx == -1 {
		return
	}

	for _, cand := range order {
		if cand == failed || cand.IsPrimary() {
			continue
		}
		since := cand.DownSince()
		if !since.IsZero() && time.Since(since) < downExpiry {
			continue
		}

		ctx, cancel := context.WithTimeout(context.Background(), co.cfg.DialTimeout+10*time.Second)
		err := co.connectNode(ctx, cand)
		cancel()
		if err != nil {
			co.cfg.Logger.Printf("cluster: failover candidate %s: %v", cand.Addr, err)
			continue
		}
		cand.setPrimary(true)
		co.mu.Lock()
		co.primaries[failedIdx] = cand
		co.mu.Unlock()
		return
	}
	co.cfg.Logger.Printf("cluster: %v", &ClusterError{Reason: "no candidate available to replace failed primary " + failed.Addr})
}
