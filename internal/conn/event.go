package conn

import (
	"fmt"
	"net"

	"github.com/nativecql/nativecql/internal/frame"
)

// Event is the payload of a server-pushed EVENT frame: one of
// TopologyChange, StatusChange, SchemaChange.
type Event interface{ isEvent() }

// TopologyChange reports a node joining or leaving the ring.
type TopologyChange struct {
	ChangeType string // NEW_NODE, REMOVED_NODE
	Addr       net.IP
}

func (TopologyChange) isEvent() {}

// StatusChange reports a node's liveness flipping.
type StatusChange struct {
	Status string // UP, DOWN
	Addr   net.IP
}

func (StatusChange) isEvent() {}

// SchemaChange reports a DDL change, mirroring the RESULT SCHEMA_CHANGE
// body but delivered unsolicited via REGISTER.
type SchemaChange struct {
	ChangeType string
	Keyspace   string
	Table      string
}

func (SchemaChange) isEvent() {}

func decodeEvent(body []byte) (Event, error) {
	buf := frame.Wrap(body)
	name, err := buf.UnpackString()
	if err != nil {
		return nil, fmt.Errorf("conn: event name: %w", err)
	}
	switch name {
	case "TOPOLOGY_CHANGE":
		changeType, err := buf.UnpackString()
		if err != nil {
			return nil, fmt.Errorf("conn: topology_change type: %w", err)
		}
		addr, _, err := buf.UnpackInet()
		if err != nil {
			return nil, fmt.Errorf("conn: topology_change addr: %w", err)
		}
		return TopologyChange{ChangeType: changeType, Addr: net.IP(addr)}, nil

	case "STATUS_CHANGE":
		status, err := buf.UnpackString()
		if err != nil {
			return nil, fmt.Errorf("conn: status_change status: %w", err)
		}
		addr, _, err := buf.UnpackInet()
		if err != nil {
			return nil, fmt.Errorf("conn: status_change addr: %w", err)
		}
		return StatusChange{Status: status, Addr: net.IP(addr)}, nil

	case "SCHEMA_CHANGE":
		changeType, err := buf.UnpackString()
		if err != nil {
			return nil, fmt.Errorf("conn: schema_change type: %w", err)
		}
		keyspace, err := buf.UnpackString()
		if err != nil {
			return nil, fmt.Errorf("conn: schema_change keyspace: %w", err)
		}
		var table string
		if buf.Len() > 0 {
			if table, err = buf.UnpackString(); err != nil {
				return nil, fmt.Errorf("conn: schema_change table: %w", err)
			}
		}
		return SchemaChange{ChangeType: changeType, Keyspace: keyspace, Table: table}, nil

	default:
		return nil, fmt.Errorf("conn: unknown event name %q", name)
	}
}
