package cluster

import (
	"context"
	"fmt"

	"github.com/nativecql/nativecql/internal/conn"
	"github.com/nativecql/nativecql/internal/frame"
	"github.com/nativecql/nativecql/internal/protocol"
)

// queryLocal reads this node's own data-center and rack from
// system.local.
func (co *Coordinator) queryLocal(ctx context.Context, c *conn.Conn) (dc, rack string, err error) {
	res, err := co.rawQuery(ctx, c, "SELECT data_center, rack FROM system.local")
	if err != nil {
		return "", "", err
	}
	if res.Rows == nil || res.Rows.Count() == 0 {
		return "", "", fmt.Errorf("cluster: system.local returned no rows")
	}
	row, err := res.Rows.RowMap(0)
	if err != nil {
		return "", "", err
	}
	dc, _ = row["data_center"].(string)
	rack, _ = row["rack"].(string)
	return dc, rack, nil
}

type peerRecord struct {
	addr, dc, rack string
}

// queryPeers reads the ring's other members from system.peers. The
// "peer" column carries the address in network byte order (4 or 16
// bytes), normalized here to its text form.
func (co *Coordinator) queryPeers(ctx context.Context, c *conn.Conn) ([]peerRecord, error) {
	res, err := co.rawQuery(ctx, c, "SELECT peer, data_center, rack FROM system.peers")
	if err != nil {
		return nil, err
	}
	if res.Rows == nil {
		return nil, nil
	}
	out := make([]peerRecord, 0, res.Rows.Count())
	for i := 0; i < res.Rows.Count(); i++ {
		row, err := res.Rows.RowMap(i)
		if err != nil {
			return nil, err
		}
		var addr string
		switch v := row["peer"].(type) {
		case interface{ String() string }:
			addr = v.String()
		default:
			addr = fmt.Sprintf("%v", v)
		}
		dc, _ := row["data_center"].(string)
		rack, _ := row["rack"].(string)
		out = append(out, peerRecord{addr: addr, dc: dc, rack: rack})
	}
	return out, nil
}

func (co *Coordinator) rawQuery(ctx context.Context, c *conn.Conn, cql string) (*protocol.Result, error) {
	body := protocol.EncodeQuery(cql, co.cfg.ProtoVersion, co.cfg.DefaultConsistency, protocol.QueryOptions{})
	header, respBody, err := c.Call(ctx, frame.OpQuery, body)
	if err != nil {
		return nil, err
	}
	if header.Opcode != frame.OpResult {
		return nil, fmt.Errorf("cluster: unexpected opcode %s in response to %q", header.Opcode, cql)
	}
	return protocol.DecodeResult(respBody, co.cfg.ProtoVersion)
}
