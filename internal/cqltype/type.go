// Package cqltype implements the CQL value codec: encoding and
// decoding of typed column values to and from their wire form, and
// the column type descriptor used to drive that dispatch.
package cqltype

import "fmt"

// Tag is the u16 opcode identifying a column's CQL type on the wire.
type Tag uint16

// Type tags as sent in column specs and PREPARE metadata.
const (
	TagCustom    Tag = 0x0000
	TagASCII     Tag = 0x0001
	TagBigint    Tag = 0x0002
	TagBlob      Tag = 0x0003
	TagBoolean   Tag = 0x0004
	TagCounter   Tag = 0x0005
	TagDecimal   Tag = 0x0006
	TagDouble    Tag = 0x0007
	TagFloat     Tag = 0x0008
	TagInt       Tag = 0x0009
	TagText      Tag = 0x000A
	TagTimestamp Tag = 0x000B
	TagUUID      Tag = 0x000C
	TagVarchar   Tag = 0x000D
	TagVarint    Tag = 0x000E
	TagTimeUUID  Tag = 0x000F
	TagInet      Tag = 0x0010
	TagList      Tag = 0x0020
	TagMap       Tag = 0x0021
	TagSet       Tag = 0x0022
)

func (t Tag) String() string {
	switch t {
	case TagCustom:
		return "custom"
	case TagASCII:
		return "ascii"
	case TagBigint:
		return "bigint"
	case TagBlob:
		return "blob"
	case TagBoolean:
		return "boolean"
	case TagCounter:
		return "counter"
	case TagDecimal:
		return "decimal"
	case TagDouble:
		return "double"
	case TagFloat:
		return "float"
	case TagInt:
		return "int"
	case TagText:
		return "text"
	case TagTimestamp:
		return "timestamp"
	case TagUUID:
		return "uuid"
	case TagVarchar:
		return "varchar"
	case TagVarint:
		return "varint"
	case TagTimeUUID:
		return "timeuuid"
	case TagInet:
		return "inet"
	case TagList:
		return "list"
	case TagMap:
		return "map"
	case TagSet:
		return "set"
	default:
		return fmt.Sprintf("tag(0x%04x)", uint16(t))
	}
}

// Type describes one column's type fully: the tag plus whatever the
// tag requires to interpret a value. LIST/SET carry one Elem; MAP
// carries Elem (key) and Value (value); CUSTOM carries a Class name.
type Type struct {
	Tag   Tag
	Elem  *Type // LIST, SET, MAP key
	Value *Type // MAP value
	Class string
}

// Simple returns a Type with no inner types, for scalar tags.
func Simple(tag Tag) Type { return Type{Tag: tag} }
