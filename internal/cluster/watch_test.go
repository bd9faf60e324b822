package cluster

import (
	"net"
	"testing"

	"github.com/nativecql/nativecql/internal/conn"
)

func newTestCoordinator() *Coordinator {
	return &Coordinator{
		cfg:   Config{Logger: discardLogger{}},
		table: newTable(),
		cache: newPreparedCache(),
	}
}

func TestOnStatusChangeMarksDown(t *testing.T) {
	co := newTestCoordinator()
	n := co.table.getOrAdd("10.0.0.1", "dc1", "")
	n.markUp(&conn.Conn{})

	co.onStatusChange(conn.StatusChange{Status: "DOWN", Addr: net.ParseIP("10.0.0.1")})

	if n.State() != StateDown {
		t.Fatalf("state = %v, want down", n.State())
	}
}

func TestOnStatusChangeUpClearsDownSince(t *testing.T) {
	co := newTestCoordinator()
	n := co.table.getOrAdd("10.0.0.1", "dc1", "")
	n.markDown()
	if n.DownSince().IsZero() {
		t.Fatal("expected DownSince to be set after markDown")
	}

	co.onStatusChange(conn.StatusChange{Status: "UP", Addr: net.ParseIP("10.0.0.1")})

	if !n.DownSince().IsZero() {
		t.Fatal("expected DownSince cleared after UP event")
	}
}

func TestOnStatusChangeUnknownAddrIsNoop(t *testing.T) {
	co := newTestCoordinator()
	co.onStatusChange(conn.StatusChange{Status: "DOWN", Addr: net.ParseIP("10.0.0.9")})
}

func TestOnTopologyChangeNewNode(t *testing.T) {
	co := newTestCoordinator()
	co.onTopologyChange(conn.TopologyChange{ChangeType: "NEW_NODE", Addr: net.ParseIP("10.0.0.5")})

	if _, ok := co.table.get("10.0.0.5"); !ok {
		t.Fatal("expected new node to be added to the table")
	}
}

func TestOnTopologyChangeRemovedNodeNoConn(t *testing.T) {
	co := newTestCoordinator()
	co.table.getOrAdd("10.0.0.6", "", "")

	co.onTopologyChange(conn.TopologyChange{ChangeType: "REMOVED_NODE", Addr: net.ParseIP("10.0.0.6")})

	if _, ok := co.table.get("10.0.0.6"); ok {
		t.Fatal("expected removed node to be dropped from the table")
	}
}

func TestMaybePromoteNoOpWithoutPreferDC(t *testing.T) {
	co := newTestCoordinator()
	primary := co.table.getOrAdd("10.0.0.1", "dc1", "")
	primary.markUp(&conn.Conn{})
	primary.setPrimary(true)
	co.primaries = []*Node{primary}

	other := co.table.getOrAdd("10.0.0.2", "dc2", "")
	co.maybePromote(other)

	if other.IsPrimary() {
		t.Fatal("expected no promotion when PreferDC is unset")
	}
	if co.primaries[0] != primary {
		t.Fatal("primaries should be unchanged")
	}
}

func TestMaybePromoteNoOpWhenAlreadyPrimary(t *testing.T) {
	co := newTestCoordinator()
	co.cfg.PreferDC = "dc1"
	primary := co.table.getOrAdd("10.0.0.1", "dc1", "")
	primary.markUp(&conn.Conn{})
	primary.setPrimary(true)
	co.primaries = []*Node{primary}

	co.maybePromote(primary)
}

func TestPickNewPrimaryNoCandidateLeavesSlotAlone(t *testing.T) {
	co := newTestCoordinator()
	failed := co.table.getOrAdd("10.0.0.1", "dc1", "")
	failed.markUp(&conn.Conn{})
	failed.setPrimary(true)
	co.primaries = []*Node{failed}

	co.pickNewPrimary(failed)

	if co.primaries[0] != failed {
		t.Fatal("expected the primary slot to be left as-is when no candidate qualifies")
	}
}

func TestPickNewPrimarySkipsRecentlyDownCandidate(t *testing.T) {
	co := newTestCoordinator()
	failed := co.table.getOrAdd("10.0.0.1", "dc1", "")
	failed.markUp(&conn.Conn{})
	failed.setPrimary(true)
	co.primaries = []*Node{failed}

	recentlyDown := co.table.getOrAdd("10.0.0.2", "dc1", "")
	recentlyDown.markDown()

	co.pickNewPrimary(failed)

	if co.primaries[0] != failed {
		t.Fatal("expected recently-down candidate to be skipped, leaving the slot unchanged")
	}
}

func TestOnNodeCloseNoopWhenCoordinatorClosed(t *testing.T) {
	co := newTestCoordinator()
	failed := co.table.getOrAdd("10.0.0.1", "dc1", "")
	failed.markUp(&conn.Conn{})
	failed.setPrimary(true)
	co.primaries = []*Node{failed}

	candidate := co.table.getOrAdd("10.0.0.2", "dc1", "")
	candidate.markUp(&conn.Conn{})

	co.closed = true
	co.onNodeClose(failed, nil)

	if failed.IsPrimary() {
		t.Fatal("expected the closed node to lose primary status")
	}
	if co.primaries[0] != failed {
		t.Fatal("expected no failover to run once the coordinator is closed")
	}
	if candidate.IsPrimary() {
		t.Fatal("expected no candidate to be promoted once the coordinator is closed")
	}
}

func TestHandleEventForwardsToListeners(t *testing.T) {
	co := newTestCoordinator()
	var got conn.Event
	co.AddEventListener(func(ev conn.Event) { got = ev })

	sc := conn.SchemaChange{ChangeType: "CREATED", Keyspace: "ks", Table: "t"}
	co.handleEvent(sc)

	if got != conn.Event(sc) {
		t.Fatalf("listener did not receive the event: got %+v", got)
	}
}
