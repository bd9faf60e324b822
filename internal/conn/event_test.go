package conn

import (
	"net"
	"testing"

	"github.com/nativecql/nativecql/internal/frame"
)

func TestDecodeEventStatusChange(t *testing.T) {
	buf := frame.New()
	buf.PackString("STATUS_CHANGE")
	buf.PackString("UP")
	buf.PackInet([]byte{10, 0, 0, 1}, 9042)

	ev, err := decodeEvent(buf.Bytes())
	if err != nil {
		t.Fatal(err)
	}
	sc, ok := ev.(StatusChange)
	if !ok {
		t.Fatalf("got %T, want StatusChange", ev)
	}
	if sc.Status != "UP" || !sc.Addr.Equal(net.IP{10, 0, 0, 1}) {
		t.Fatalf("got %+v", sc)
	}
}

func TestDecodeEventTopologyChange(t *testing.T) {
	buf := frame.New()
	buf.PackString("TOPOLOGY_CHANGE")
	buf.PackString("NEW_NODE")
	buf.PackInet([]byte{10, 0, 0, 2}, 9042)

	ev, err := decodeEvent(buf.Bytes())
	if err != nil {
		t.Fatal(err)
	}
	tc, ok := ev.(TopologyChange)
	if !ok {
		t.Fatalf("got %T, want TopologyChange", ev)
	}
	if tc.ChangeType != "NEW_NODE" || !tc.Addr.Equal(net.IP{10, 0, 0, 2}) {
		t.Fatalf("got %+v", tc)
	}
}

func TestDecodeEventSchemaChange(t *testing.T) {
	buf := frame.New()
	buf.PackString("SCHEMA_CHANGE")
	buf.PackString("DROPPED")
	buf.PackString("test")
	buf.PackString("users")

	ev, err := decodeEvent(buf.Bytes())
	if err != nil {
		t.Fatal(err)
	}
	sc, ok := ev.(SchemaChange)
	if !ok {
		t.Fatalf("got %T, want SchemaChange", ev)
	}
	if sc.ChangeType != "DROPPED" || sc.Keyspace != "test" || sc.Table != "users" {
		t.Fatalf("got %+v", sc)
	}
}

func TestDecodeEventUnknownName(t *testing.T) {
	buf := frame.New()
	buf.PackString("SOMETHING_ELSE")
	if _, err := decodeEvent(buf.Bytes()); err == nil {
		t.Fatal("expected error for unknown event name")
	}
}
