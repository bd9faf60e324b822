package protocol

import (
	"fmt"

	"github.com/nativecql/nativecql/internal/cqltype"
	"github.com/nativecql/nativecql/internal/frame"
)

// Kind discriminates the five RESULT body shapes.
type Kind int32

const (
	KindVoid         Kind = 0x0001
	KindRows         Kind = 0x0002
	KindSetKeyspace  Kind = 0x0003
	KindPrepared     Kind = 0x0004
	KindSchemaChange Kind = 0x0005
)

// SchemaChange is the payload of a KindSchemaChange result.
type SchemaChange struct {
	ChangeType string // CREATED, UPDATED, DROPPED
	Target     string // KEYSPACE, TABLE, TYPE (best-effort; v1 servers omit it)
	Keyspace   string
	Table      string
}

// Prepared is the payload of a KindPrepared result: the server-issued
// statement id, its bind-parameter metadata, and (protocol v2 only)
// the eventual result-set metadata.
type Prepared struct {
	ID             []byte
	ParamMetadata  ColumnMeta
	ResultMetadata *ColumnMeta
}

// Result is a tagged union over the five RESULT kinds. Exactly one of
// the typed fields is meaningful, selected by Kind.
type Result struct {
	Kind Kind

	// KindRows
	Rows *RowSet
	// KindSetKeyspace
	Keyspace string
	// KindPrepared
	Prepared Prepared
	// KindSchemaChange
	SchemaChange SchemaChange
}

// RowSet extends ColumnMeta with the row count and raw per-row,
// per-column byte slices, decoded on demand by RowSlice/RowMap.
type RowSet struct {
	ColumnMeta
	rows [][][]byte
}

// Count returns the number of rows.
func (r *RowSet) Count() int { return len(r.rows) }

// RowSlice decodes row i's columns in column order.
func (r *RowSet) RowSlice(i int) ([]interface{}, error) {
	if i < 0 || i >= len(r.rows) {
		return nil, fmt.Errorf("protocol: row index %d out of range", i)
	}
	raw := r.rows[i]
	out := make([]interface{}, len(raw))
	for j, cell := range raw {
		if cell == nil {
			out[j] = nil
			continue
		}
		v, err := cqltype.Decode(r.Columns[j].Type, cell)
		if err != nil {
			return nil, fmt.Errorf("protocol: row %d column %q: %w", i, r.Columns[j].Name, err)
		}
		out[j] = v
	}
	return out, nil
}

// RowMap decodes row i keyed by column short name.
func (r *RowSet) RowMap(i int) (map[string]interface{}, error) {
	slice, err := r.RowSlice(i)
	if err != nil {
		return nil, err
	}
	out := make(map[string]interface{}, len(slice))
	for j, c := range r.Columns {
		out[c.Name] = slice[j]
	}
	return out, nil
}

// DecodeResult parses a full RESULT message body.
func DecodeResult(body []byte, protoVersion byte) (*Result, error) {
	buf := frame.Wrap(body)
	kindRaw, err := buf.UnpackInt()
	if err != nil {
		return nil, fmt.Errorf("protocol: result kind: %w", err)
	}
	res := &Result{Kind: Kind(kindRaw)}

	switch res.Kind {
	case KindVoid:
		return res, nil

	case KindSetKeyspace:
		ks, err := buf.UnpackString()
		if err != nil {
			return nil, fmt.Errorf("protocol: set_keyspace: %w", err)
		}
		res.Keyspace = ks
		return res, nil

	case KindRows:
		meta, err := FromFrame(buf, protoVersion)
		if err != nil {
			return nil, err
		}
		rowCount, err := buf.UnpackInt()
		if err != nil {
			return nil, fmt.Errorf("protocol: row count: %w", err)
		}
		rows := make([][][]byte, 0, rowCount)
		for i := int32(0); i < rowCount; i++ {
			row := make([][]byte, len(meta.Columns))
			for j := range meta.Columns {
				cell, err := buf.UnpackBytes()
				if err != nil {
					return nil, fmt.Errorf("protocol: row %d cell %d: %w", i, j, err)
				}
				row[j] = cell
			}
			rows = append(rows, row)
		}
		res.Rows = &RowSet{ColumnMeta: meta, rows: rows}
		return res, nil

	case KindPrepared:
		id, err := buf.UnpackShortBytes()
		if err != nil {
			return nil, fmt.Errorf("protocol: prepared id: %w", err)
		}
		paramMeta, err := FromFrame(buf, protoVersion)
		if err != nil {
			return nil, fmt.Errorf("protocol: prepared param metadata: %w", err)
		}
		p := Prepared{ID: id, ParamMetadata: paramMeta}
		if protoVersion >= 2 && buf.Len() > 0 {
			resultMeta, err := FromFrame(buf, protoVersion)
			if err != nil {
				return nil, fmt.Errorf("protocol: prepared result metadata: %w", err)
			}
			p.ResultMetadata = &resultMeta
		}
		res.Prepared = p
		return res, nil

	case KindSchemaChange:
		changeType, err := buf.UnpackString()
		if err != nil {
			return nil, fmt.Errorf("protocol: schema_change type: %w", err)
		}
		sc := SchemaChange{ChangeType: changeType}
		if protoVersion >= 2 && buf.Len() > 0 {
			// v2 servers may prefix a target discriminator
			// (KEYSPACE/TABLE/TYPE); peek by reading it as the
			// keyspace-or-target string and only treating it as a
			// target when a keyspace/table pair still follows.
			first, err := buf.UnpackString()
			if err != nil {
				return nil, fmt.Errorf("protocol: schema_change target: %w", err)
			}
			peek := frame.Wrap(buf.Bytes())
			_, errKs := peek.UnpackString()
			_, errTbl := peek.UnpackString()
			if errKs == nil && errTbl == nil {
				sc.Target = first
				if sc.Keyspace, err = buf.UnpackString(); err != nil {
					return nil, fmt.Errorf("protocol: schema_change keyspace: %w", err)
				}
				if buf.Len() > 0 && sc.Target == "TABLE" {
					if sc.Table, err = buf.UnpackString(); err != nil {
						return nil, fmt.Errorf("protocol: schema_change table: %w", err)
					}
				}
			} else {
				sc.Keyspace = first
				if buf.Len() > 0 {
					if sc.Table, err = buf.UnpackString(); err != nil {
						return nil, fmt.Errorf("protocol: schema_change table: %w", err)
					}
				}
			}
		} else {
			if sc.Keyspace, err = buf.UnpackString(); err != nil {
				return nil, fmt.Errorf("protocol: schema_change keyspace: %w", err)
			}
			if buf.Len() > 0 {
				if sc.Table, err = buf.UnpackString(); err != nil {
					return nil, fmt.Errorf("protocol: schema_change table: %w", err)
				}
			}
		}
		res.SchemaChange = sc
		return res, nil

	default:
		return nil, fmt.Errorf("protocol: unknown result kind %d", res.Kind)
	}
}
