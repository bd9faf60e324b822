package cluster

import (
	"context"
	"testing"

	"github.com/nativecql/nativecql/internal/conn"
)

func newReadyNode(addr, dc string) *Node {
	n := newNode(addr, dc, "")
	n.markUp(&conn.Conn{})
	return n
}

func TestNextPrimaryRoundRobin(t *testing.T) {
	co := NewCoordinator(Config{Hosts: []string{"seed"}})
	a := newReadyNode("a", "DC1")
	b := newReadyNode("b", "DC1")
	co.primaries = []*Node{a, b}

	first, err := co.nextPrimary()
	if err != nil {
		t.Fatal(err)
	}
	second, err := co.nextPrimary()
	if err != nil {
		t.Fatal(err)
	}
	if first == second {
		t.Fatal("expected round-robin to alternate between primaries")
	}
	third, err := co.nextPrimary()
	if err != nil {
		t.Fatal(err)
	}
	if third != first {
		t.Fatal("expected round-robin to wrap back to the first primary")
	}
}

func TestNextPrimaryNoPrimariesIsClusterError(t *testing.T) {
	co := NewCoordinator(Config{Hosts: []string{"seed"}})
	_, err := co.nextPrimary()
	if _, ok := err.(*ClusterError); !ok {
		t.Fatalf("got %v, want *ClusterError", err)
	}
}

func TestNextPrimaryFallsBackWhenNoneReady(t *testing.T) {
	co := NewCoordinator(Config{Hosts: []string{"seed"}})
	notReady := newNode("a", "DC1", "")
	co.primaries = []*Node{notReady}

	n, err := co.nextPrimary()
	if err != nil {
		t.Fatal(err)
	}
	if n != notReady {
		t.Fatalf("expected fallback to the only configured primary, got %v", n)
	}
}

func TestNextPrimaryRefusesWhenClosed(t *testing.T) {
	co := NewCoordinator(Config{Hosts: []string{"seed"}})
	co.primaries = []*Node{newReadyNode("a", "DC1")}
	co.closed = true

	_, err := co.nextPrimary()
	if _, ok := err.(*ClusterError); !ok {
		t.Fatalf("got %v, want *ClusterError", err)
	}
}

func TestPrepareRefusesWhenClosed(t *testing.T) {
	co := NewCoordinator(Config{Hosts: []string{"seed"}})
	co.primaries = []*Node{newReadyNode("a", "DC1")}
	co.closed = true

	_, err := co.Prepare(context.Background(), "SELECT * FROM t")
	if _, ok := err.(*ClusterError); !ok {
		t.Fatalf("got %v, want *ClusterError", err)
	}
}
