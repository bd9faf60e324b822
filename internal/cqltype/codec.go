package cqltype

import (
	"encoding/binary"
	"fmt"
	"math"
	"math/big"
	"net"
	"time"

	"github.com/google/uuid"
)

// Decimal is the in-memory form of a CQL DECIMAL: an arbitrary
// precision unscaled integer plus a decimal shift (number of digits
// after the point).
type Decimal struct {
	Unscaled *big.Int
	Scale    int32
}

// Encode serializes v as t's wire representation. Encoding of a Go
// nil is not handled here: the framing layer wraps null as a
// negative-length bytes field before the codec is ever consulted.
func Encode(t Type, v interface{}) ([]byte, error) {
	switch t.Tag {
	case TagASCII:
		s, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("cqltype: ascii wants string, got %T", v)
		}
		for i := 0; i < len(s); i++ {
			if s[i] > 0x7F {
				return nil, fmt.Errorf("cqltype: ascii value contains non-ASCII byte at %d", i)
			}
		}
		return []byte(s), nil

	case TagText, TagVarchar:
		s, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("cqltype: text wants string, got %T", v)
		}
		return []byte(s), nil

	case TagBlob, TagCustom:
		b, ok := v.([]byte)
		if !ok {
			return nil, fmt.Errorf("cqltype: blob wants []byte, got %T", v)
		}
		return b, nil

	case TagBoolean:
		b, ok := v.(bool)
		if !ok {
			return nil, fmt.Errorf("cqltype: boolean wants bool, got %T", v)
		}
		if b {
			return []byte{1}, nil
		}
		return []byte{0}, nil

	case TagInt:
		n, err := asInt64(v)
		if err != nil {
			return nil, err
		}
		out := make([]byte, 4)
		binary.BigEndian.PutUint32(out, uint32(int32(n)))
		return out, nil

	case TagBigint, TagCounter:
		n, err := asInt64(v)
		if err != nil {
			return nil, err
		}
		out := make([]byte, 8)
		binary.BigEndian.PutUint64(out, uint64(n))
		return out, nil

	case TagTimestamp:
		ms, err := asMillis(v)
		if err != nil {
			return nil, err
		}
		out := make([]byte, 8)
		binary.BigEndian.PutUint64(out, uint64(ms))
		return out, nil

	case TagFloat:
		f, err := asFloat64(v)
		if err != nil {
			return nil, err
		}
		out := make([]byte, 4)
		binary.BigEndian.PutUint32(out, math.Float32bits(float32(f)))
		return out, nil

	case TagDouble:
		f, err := asFloat64(v)
		if err != nil {
			return nil, err
		}
		out := make([]byte, 8)
		binary.BigEndian.PutUint64(out, math.Float64bits(f))
		return out, nil

	case TagUUID, TagTimeUUID:
		id, err := asUUID(v)
		if err != nil {
			return nil, err
		}
		b := id[:]
		return append([]byte(nil), b...), nil

	case TagInet:
		ip, ok := v.(net.IP)
		if !ok {
			return nil, fmt.Errorf("cqltype: inet wants net.IP, got %T", v)
		}
		if v4 := ip.To4(); v4 != nil {
			return []byte(v4), nil
		}
		if v6 := ip.To16(); v6 != nil {
			return []byte(v6), nil
		}
		return nil, fmt.Errorf("cqltype: invalid IP %v", ip)

	case TagVarint:
		n, ok := v.(*big.Int)
		if !ok {
			i, err := asInt64(v)
			if err != nil {
				return nil, fmt.Errorf("cqltype: varint wants *big.Int or integer, got %T", v)
			}
			n = big.NewInt(i)
		}
		return EncodeVarint(n), nil

	case TagDecimal:
		d, ok := v.(Decimal)
		if !ok {
			return nil, fmt.Errorf("cqltype: decimal wants cqltype.Decimal, got %T", v)
		}
		out := make([]byte, 4)
		binary.BigEndian.PutUint32(out, uint32(d.Scale))
		return append(out, EncodeVarint(d.Unscaled)...), nil

	case TagList, TagSet:
		if t.Elem == nil {
			return nil, fmt.Errorf("cqltype: %s missing element type", t.Tag)
		}
		return encodeCollection(reflectSlice(v), func(elem interface{}) ([]byte, error) {
			return Encode(*t.Elem, elem)
		})

	case TagMap:
		if t.Elem == nil || t.Value == nil {
			return nil, fmt.Errorf("cqltype: map missing key/value type")
		}
		m, ok := v.(map[interface{}]interface{})
		if !ok {
			return nil, fmt.Errorf("cqltype: map wants map[interface{}]interface{}, got %T", v)
		}
		var out []byte
		var tmp [2]byte
		binary.BigEndian.PutUint16(tmp[:], uint16(len(m)))
		out = append(out, tmp[:]...)
		for k, val := range m {
			kb, err := Encode(*t.Elem, k)
			if err != nil {
				return nil, err
			}
			vb, err := Encode(*t.Value, val)
			if err != nil {
				return nil, err
			}
			out = appendShortBytes(out, kb)
			out = appendShortBytes(out, vb)
		}
		return out, nil

	default:
		return nil, fmt.Errorf("cqltype: encode of unknown type tag %s not supported", t.Tag)
	}
}

// Decode deserializes b (the raw column value bytes, never nil - a
// null is handled by the framing layer before Decode is called) as
// t's Go representation.
func Decode(t Type, b []byte) (interface{}, error) {
	switch t.Tag {
	case TagASCII, TagText, TagVarchar:
		return string(b), nil

	case TagBlob:
		return append([]byte(nil), b...), nil

	case TagBoolean:
		if len(b) < 1 {
			return nil, fmt.Errorf("cqltype: boolean needs 1 byte")
		}
		return b[0] != 0, nil

	case TagInt:
		if len(b) != 4 {
			return nil, fmt.Errorf("cqltype: int needs 4 bytes, got %d", len(b))
		}
		return int32(binary.BigEndian.Uint32(b)), nil

	case TagBigint, TagCounter:
		if len(b) != 8 {
			return nil, fmt.Errorf("cqltype: bigint needs 8 bytes, got %d", len(b))
		}
		return int64(binary.BigEndian.Uint64(b)), nil

	case TagTimestamp:
		if len(b) != 8 {
			return nil, fmt.Errorf("cqltype: timestamp needs 8 bytes, got %d", len(b))
		}
		ms := int64(binary.BigEndian.Uint64(b))
		return time.UnixMilli(ms).UTC(), nil

	case TagFloat:
		if len(b) != 4 {
			return nil, fmt.Errorf("cqltype: float needs 4 bytes, got %d", len(b))
		}
		return math.Float32frombits(binary.BigEndian.Uint32(b)), nil

	case TagDouble:
		if len(b) != 8 {
			return nil, fmt.Errorf("cqltype: double needs 8 bytes, got %d", len(b))
		}
		return math.Float64frombits(binary.BigEndian.Uint64(b)), nil

	case TagUUID, TagTimeUUID:
		if len(b) != 16 {
			return nil, fmt.Errorf("cqltype: uuid needs 16 bytes, got %d", len(b))
		}
		id, err := uuid.FromBytes(b)
		if err != nil {
			return nil, err
		}
		return id, nil

	case TagInet:
		if len(b) != 4 && len(b) != 16 {
			return nil, fmt.Errorf("cqltype: inet needs 4 or 16 bytes, got %d", len(b))
		}
		return net.IP(append([]byte(nil), b...)), nil

	case TagVarint:
		return DecodeVarint(b), nil

	case TagDecimal:
		if len(b) < 4 {
			return nil, fmt.Errorf("cqltype: decimal needs at least 4 bytes")
		}
		scale := int32(binary.BigEndian.Uint32(b[:4]))
		return Decimal{Unscaled: DecodeVarint(b[4:]), Scale: scale}, nil

	case TagList, TagSet:
		if t.Elem == nil {
			return nil, fmt.Errorf("cqltype: %s missing element type", t.Tag)
		}
		return decodeCollection(b, func(eb []byte) (interface{}, error) {
			return Decode(*t.Elem, eb)
		})

	case TagMap:
		if t.Elem == nil || t.Value == nil {
			return nil, fmt.Errorf("cqltype: map missing key/value type")
		}
		return decodeMap(b, t)

	default:
		return fmt.Sprintf("%x", b), nil
	}
}

func encodeCollection(elems []interface{}, encodeOne func(interface{}) ([]byte, error)) ([]byte, error) {
	var out []byte
	var tmp [2]byte
	binary.BigEndian.PutUint16(tmp[:], uint16(len(elems)))
	out = append(out, tmp[:]...)
	for _, e := range elems {
		eb, err := encodeOne(e)
		if err != nil {
			return nil, err
		}
		out = appendShortBytes(out, eb)
	}
	return out, nil
}

func decodeCollection(b []byte, decodeOne func([]byte) (interface{}, error)) ([]interface{}, error) {
	buf := b
	if len(buf) < 2 {
		return nil, fmt.Errorf("cqltype: collection needs count prefix")
	}
	count := binary.BigEndian.Uint16(buf[:2])
	buf = buf[2:]
	out := make([]interface{}, 0, count)
	for i := 0; i < int(count); i++ {
		eb, rest, err := takeShortBytes(buf)
		if err != nil {
			return nil, err
		}
		buf = rest
		v, err := decodeOne(eb)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

func decodeMap(b []byte, t Type) (map[interface{}]interface{}, error) {
	if len(b) < 2 {
		return nil, fmt.Errorf("cqltype: map needs count prefix")
	}
	count := binary.BigEndian.Uint16(b[:2])
	buf := b[2:]
	out := make(map[interface{}]interface{}, count)
	for i := 0; i < int(count); i++ {
		kb, rest, err := takeShortBytes(buf)
		if err != nil {
			return nil, err
		}
		buf = rest
		vb, rest2, err := takeShortBytes(buf)
		if err != nil {
			return nil, err
		}
		buf = rest2
		k, err := Decode(*t.Elem, kb)
		if err != nil {
			return nil, err
		}
		v, err := Decode(*t.Value, vb)
		if err != nil {
			return nil, err
		}
		out[k] = v
	}
	return out, nil
}

func appendShortBytes(out []byte, b []byte) []byte {
	var tmp [2]byte
	binary.BigEndian.PutUint16(tmp[:], uint16(len(b)))
	out = append(out, tmp[:]...)
	return append(out, b...)
}

func takeShortBytes(b []byte) (val []byte, rest []byte, err error) {
	if len(b) < 2 {
		return nil, nil, fmt.Errorf("cqltype: short_bytes needs length prefix")
	}
	n := binary.BigEndian.Uint16(b[:2])
	b = b[2:]
	if len(b) < int(n) {
		return nil, nil, fmt.Errorf("cqltype: short_bytes truncated")
	}
	return b[:n], b[n:], nil
}

func reflectSlice(v interface{}) []interface{} {
	if s, ok := v.([]interface{}); ok {
		return s
	}
	return nil
}

func asInt64(v interface{}) (int64, error) {
	switch n := v.(type) {
	case int:
		return int64(n), nil
	case int8:
		return int64(n), nil
	case int16:
		return int64(n), nil
	case int32:
		return int64(n), nil
	case int64:
		return n, nil
	case uint32:
		return int64(n), nil
	default:
		return 0, fmt.Errorf("cqltype: expected an integer, got %T", v)
	}
}

func asFloat64(v interface{}) (float64, error) {
	switch n := v.(type) {
	case float32:
		return float64(n), nil
	case float64:
		return n, nil
	default:
		return 0, fmt.Errorf("cqltype: expected a float, got %T", v)
	}
}

func asMillis(v interface{}) (int64, error) {
	switch t := v.(type) {
	case time.Time:
		return t.UnixMilli(), nil
	case int64:
		return t, nil
	default:
		return 0, fmt.Errorf("cqltype: expected time.Time or int64 milliseconds, got %T", v)
	}
}

func asUUID(v interface{}) (uuid.UUID, error) {
	switch id := v.(type) {
	case uuid.UUID:
		return id, nil
	case string:
		return uuid.Parse(id)
	case [16]byte:
		return uuid.FromBytes(id[:])
	default:
		return uuid.UUID{}, fmt.Errorf("cqltype: expected uuid.UUID, got %T", v)
	}
}
