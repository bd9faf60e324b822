package protocol

import "github.com/nativecql/nativecql/internal/frame"

// v2 QUERY/EXECUTE flag bits; ignored when encoding for protocol v1.
const (
	flagValues            byte = 0x01
	flagSkipMetadata      byte = 0x02
	flagPageSize          byte = 0x04
	flagWithPagingState   byte = 0x08
	flagWithSerialConsist byte = 0x10
)

// QueryOptions carries the v2-only knobs a QUERY or EXECUTE request
// may set; every field is ignored when encoding for protocol v1.
type QueryOptions struct {
	SkipMetadata      bool
	PageSize          int32
	PagingState       []byte
	SerialConsistency *uint16
}

func (o QueryOptions) flags() byte {
	var f byte
	if o.SkipMetadata {
		f |= flagSkipMetadata
	}
	if o.PageSize > 0 {
		f |= flagPageSize
	}
	if len(o.PagingState) > 0 {
		f |= flagWithPagingState
	}
	if o.SerialConsistency != nil {
		f |= flagWithSerialConsist
	}
	return f
}

func (o QueryOptions) encode(buf *frame.Buffer) {
	buf.PackByte(o.flags())
	if o.PageSize > 0 {
		buf.PackInt(o.PageSize)
	}
	if len(o.PagingState) > 0 {
		buf.PackBytes(o.PagingState)
	}
	if o.SerialConsistency != nil {
		buf.PackShort(*o.SerialConsistency)
	}
}

// EncodeQuery builds a QUERY request body: long_string cql, short
// consistency, and (protocol v2 only) the options block.
func EncodeQuery(cql string, protoVersion byte, consistency uint16, opts QueryOptions) []byte {
	buf := frame.New()
	buf.PackLongString(cql)
	buf.PackShort(consistency)
	if protoVersion >= 2 {
		opts.encode(buf)
	}
	return buf.Bytes()
}

// EncodePrepare builds a PREPARE request body: long_string cql.
func EncodePrepare(cql string) []byte {
	buf := frame.New()
	buf.PackLongString(cql)
	return buf.Bytes()
}

// EncodeExecute builds an EXECUTE request body: short_bytes id, u16
// value count, one bytes field per value, short consistency, and
// (protocol v2 only) the options block. A nil element of values
// encodes as a CQL null.
func EncodeExecute(id []byte, values [][]byte, protoVersion byte, consistency uint16, opts QueryOptions) []byte {
	buf := frame.New()
	buf.PackShortBytes(id)
	buf.PackShort(uint16(len(values)))
	for _, v := range values {
		buf.PackBytes(v)
	}
	buf.PackShort(consistency)
	if protoVersion >= 2 {
		opts.encode(buf)
	}
	return buf.Bytes()
}

// EncodeRegister builds a REGISTER request body: a string_list of
// event type names (TOPOLOGY_CHANGE, STATUS_CHANGE, SCHEMA_CHANGE).
func EncodeRegister(eventTypes []string) []byte {
	buf := frame.New()
	buf.PackStringList(eventTypes)
	return buf.Bytes()
}
