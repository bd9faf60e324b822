// Package protocol decodes the body of a CQL RESULT message: column
// metadata, row payloads, and the four non-rows result kinds.
package protocol

import (
	"fmt"

	"github.com/nativecql/nativecql/internal/cqltype"
	"github.com/nativecql/nativecql/internal/frame"
)

// Column describes one result-set or bind-parameter column.
type Column struct {
	Keyspace string
	Table    string
	Name     string
	Type     cqltype.Type
}

// flag bits in a RESULT/PREPARED metadata block.
const (
	flagGlobalTableSpec uint32 = 0x0001
	flagHasMorePages    uint32 = 0x0002 // v2 only
	flagNoMetadata      uint32 = 0x0004
)

// ColumnMeta is a result set's or prepared statement's column
// metadata: an optional paging state (v2) and the ordered column
// list, addressable by short name, "table.name", or
// "keyspace.table.name".
type ColumnMeta struct {
	PagingState []byte
	Columns     []Column
}

// FromFrame reads column metadata starting at the flags word,
// exactly as it appears in a RESULT/PREPARED body. protoVersion
// distinguishes v1 (no paging_state flag) from v2.
func FromFrame(buf *frame.Buffer, protoVersion byte) (ColumnMeta, error) {
	var meta ColumnMeta

	flagsRaw, err := buf.UnpackInt()
	if err != nil {
		return meta, fmt.Errorf("protocol: column metadata flags: %w", err)
	}
	flags := uint32(flagsRaw)

	count, err := buf.UnpackInt()
	if err != nil {
		return meta, fmt.Errorf("protocol: column count: %w", err)
	}

	if protoVersion >= 2 && flags&flagHasMorePages != 0 {
		ps, err := buf.UnpackBytes()
		if err != nil {
			return meta, fmt.Errorf("protocol: paging_state: %w", err)
		}
		meta.PagingState = ps
	}

	if flags&flagNoMetadata != 0 {
		return meta, nil
	}

	var globalKeyspace, globalTable string
	hasGlobal := flags&flagGlobalTableSpec != 0
	if hasGlobal {
		globalKeyspace, err = buf.UnpackString()
		if err != nil {
			return meta, fmt.Errorf("protocol: global keyspace: %w", err)
		}
		globalTable, err = buf.UnpackString()
		if err != nil {
			return meta, fmt.Errorf("protocol: global table: %w", err)
		}
	}

	meta.Columns = make([]Column, 0, count)
	for i := int32(0); i < count; i++ {
		col := Column{Keyspace: globalKeyspace, Table: globalTable}
		if !hasGlobal {
			if col.Keyspace, err = buf.UnpackString(); err != nil {
				return meta, fmt.Errorf("protocol: column %d keyspace: %w", i, err)
			}
			if col.Table, err = buf.UnpackString(); err != nil {
				return meta, fmt.Errorf("protocol: column %d table: %w", i, err)
			}
		}
		if col.Name, err = buf.UnpackString(); err != nil {
			return meta, fmt.Errorf("protocol: column %d name: %w", i, err)
		}
		if col.Type, err = readType(buf); err != nil {
			return meta, fmt.Errorf("protocol: column %d type: %w", i, err)
		}
		meta.Columns = append(meta.Columns, col)
	}
	return meta, nil
}

func readType(buf *frame.Buffer) (cqltype.Type, error) {
	tagRaw, err := buf.UnpackShort()
	if err != nil {
		return cqltype.Type{}, err
	}
	tag := cqltype.Tag(tagRaw)
	t := cqltype.Type{Tag: tag}
	switch tag {
	case cqltype.TagCustom:
		class, err := buf.UnpackString()
		if err != nil {
			return t, err
		}
		t.Class = class
	case cqltype.TagList, cqltype.TagSet:
		elem, err := readType(buf)
		if err != nil {
			return t, err
		}
		t.Elem = &elem
	case cqltype.TagMap:
		key, err := readType(buf)
		if err != nil {
			return t, err
		}
		val, err := readType(buf)
		if err != nil {
			return t, err
		}
		t.Elem = &key
		t.Value = &val
	}
	return t, nil
}

// FindColumn matches name against a column's short name, "table.name",
// or "keyspace.table.name". Returns -1 if no column matches.
func (m ColumnMeta) FindColumn(name string) int {
	for i, c := range m.Columns {
		if c.Name == name {
			return i
		}
		if c.Table+"."+c.Name == name {
			return i
		}
		if c.Keyspace+"."+c.Table+"."+c.Name == name {
			return i
		}
	}
	return -1
}
