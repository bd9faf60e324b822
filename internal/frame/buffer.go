// Package frame implements the CQL native protocol's framing layer:
// the scalar pack/unpack primitives and the fixed message envelope.
package frame

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sort"
)

// ErrShortBuffer is returned by an Unpack* call that would read past
// the end of the buffer. The caller must treat this as a protocol
// error fatal to the connection.
var ErrShortBuffer = errors.New("frame: short buffer")

// Buffer is a mutable byte buffer offering monotonic append (Pack) and
// front-consuming decode (Unpack) of the protocol's scalar types. All
// multi-byte integers are big-endian.
type Buffer struct {
	b []byte
}

// New returns an empty Buffer ready for packing.
func New() *Buffer { return &Buffer{} }

// Wrap returns a Buffer that decodes from b without copying it.
func Wrap(b []byte) *Buffer { return &Buffer{b: b} }

// Bytes returns the buffer's current contents.
func (buf *Buffer) Bytes() []byte { return buf.b }

// Len returns the number of unread/unwritten bytes remaining.
func (buf *Buffer) Len() int { return len(buf.b) }

func (buf *Buffer) need(n int) error {
	if len(buf.b) < n {
		return fmt.Errorf("%w: need %d have %d", ErrShortBuffer, n, len(buf.b))
	}
	return nil
}

func (buf *Buffer) take(n int) []byte {
	out := buf.b[:n]
	buf.b = buf.b[n:]
	return out
}

// PackRaw appends b verbatim, with no length prefix.
func (buf *Buffer) PackRaw(b []byte) { buf.b = append(buf.b, b...) }

// PackByte appends a single octet.
func (buf *Buffer) PackByte(v byte) { buf.b = append(buf.b, v) }

// UnpackByte consumes a single octet.
func (buf *Buffer) UnpackByte() (byte, error) {
	if err := buf.need(1); err != nil {
		return 0, err
	}
	return buf.take(1)[0], nil
}

// PackShort appends a u16 big-endian.
func (buf *Buffer) PackShort(v uint16) {
	var tmp [2]byte
	binary.BigEndian.PutUint16(tmp[:], v)
	buf.b = append(buf.b, tmp[:]...)
}

// UnpackShort consumes a u16 big-endian.
func (buf *Buffer) UnpackShort() (uint16, error) {
	if err := buf.need(2); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint16(buf.take(2)), nil
}

// PackInt appends an i32 big-endian.
func (buf *Buffer) PackInt(v int32) {
	var tmp [4]byte
	binary.BigEndian.PutUint32(tmp[:], uint32(v))
	buf.b = append(buf.b, tmp[:]...)
}

// UnpackInt consumes an i32 big-endian.
func (buf *Buffer) UnpackInt() (int32, error) {
	if err := buf.need(4); err != nil {
		return 0, err
	}
	return int32(binary.BigEndian.Uint32(buf.take(4))), nil
}

// PackLong appends an i64 big-endian.
func (buf *Buffer) PackLong(v int64) {
	var tmp [8]byte
	binary.BigEndian.PutUint64(tmp[:], uint64(v))
	buf.b = append(buf.b, tmp[:]...)
}

// UnpackLong consumes an i64 big-endian.
func (buf *Buffer) UnpackLong() (int64, error) {
	if err := buf.need(8); err != nil {
		return 0, err
	}
	return int64(binary.BigEndian.Uint64(buf.take(8))), nil
}

// PackString appends a u16 length prefix followed by UTF-8 bytes.
func (buf *Buffer) PackString(s string) {
	buf.PackShort(uint16(len(s)))
	buf.b = append(buf.b, s...)
}

// UnpackString consumes a u16-length-prefixed string.
func (buf *Buffer) UnpackString() (string, error) {
	n, err := buf.UnpackShort()
	if err != nil {
		return "", err
	}
	if err := buf.need(int(n)); err != nil {
		return "", err
	}
	return string(buf.take(int(n))), nil
}

// PackLongString appends an i32 length prefix followed by UTF-8 bytes.
func (buf *Buffer) PackLongString(s string) {
	buf.PackInt(int32(len(s)))
	buf.b = append(buf.b, s...)
}

// UnpackLongString consumes an i32-length-prefixed string.
func (buf *Buffer) UnpackLongString() (string, error) {
	n, err := buf.UnpackInt()
	if err != nil {
		return "", err
	}
	if n < 0 {
		return "", fmt.Errorf("%w: negative long_string length", ErrShortBuffer)
	}
	if err := buf.need(int(n)); err != nil {
		return "", err
	}
	return string(buf.take(int(n))), nil
}

// PackBytes appends an i32 length prefix followed by raw bytes. A nil
// slice is encoded as a negative-length null marker.
func (buf *Buffer) PackBytes(b []byte) {
	if b == nil {
		buf.PackInt(-1)
		return
	}
	buf.PackInt(int32(len(b)))
	buf.b = append(buf.b, b...)
}

// UnpackBytes consumes an i32-length-prefixed byte field. A negative
// length decodes as a nil slice (CQL null).
func (buf *Buffer) UnpackBytes() ([]byte, error) {
	n, err := buf.UnpackInt()
	if err != nil {
		return nil, err
	}
	if n < 0 {
		return nil, nil
	}
	if err := buf.need(int(n)); err != nil {
		return nil, err
	}
	out := make([]byte, n)
	copy(out, buf.take(int(n)))
	return out, nil
}

// PackShortBytes appends a u16 length prefix followed by raw bytes.
func (buf *Buffer) PackShortBytes(b []byte) {
	buf.PackShort(uint16(len(b)))
	buf.b = append(buf.b, b...)
}

// UnpackShortBytes consumes a u16-length-prefixed byte field.
func (buf *Buffer) UnpackShortBytes() ([]byte, error) {
	n, err := buf.UnpackShort()
	if err != nil {
		return nil, err
	}
	if err := buf.need(int(n)); err != nil {
		return nil, err
	}
	out := make([]byte, n)
	copy(out, buf.take(int(n)))
	return out, nil
}

// PackUUID appends the 16 raw bytes of a UUID.
func (buf *Buffer) PackUUID(b [16]byte) {
	buf.b = append(buf.b, b[:]...)
}

// UnpackUUID consumes 16 raw bytes.
func (buf *Buffer) UnpackUUID() ([16]byte, error) {
	var out [16]byte
	if err := buf.need(16); err != nil {
		return out, err
	}
	copy(out[:], buf.take(16))
	return out, nil
}

// PackStringList appends a u16 count followed by that many Strings.
func (buf *Buffer) PackStringList(list []string) {
	buf.PackShort(uint16(len(list)))
	for _, s := range list {
		buf.PackString(s)
	}
}

// UnpackStringList consumes a u16-count-prefixed list of Strings.
func (buf *Buffer) UnpackStringList() ([]string, error) {
	n, err := buf.UnpackShort()
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, n)
	for i := 0; i < int(n); i++ {
		s, err := buf.UnpackString()
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}

// PackStringMap appends a u16 count followed by (String, String) pairs.
// Keys are sorted lexicographically before writing, aiding
// deterministic tests; decoders must accept any order.
func (buf *Buffer) PackStringMap(m map[string]string) {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	buf.PackShort(uint16(len(keys)))
	for _, k := range keys {
		buf.PackString(k)
		buf.PackString(m[k])
	}
}

// UnpackStringMap consumes a u16-count-prefixed map of (String, String).
func (buf *Buffer) UnpackStringMap() (map[string]string, error) {
	n, err := buf.UnpackShort()
	if err != nil {
		return nil, err
	}
	out := make(map[string]string, n)
	for i := 0; i < int(n); i++ {
		k, err := buf.UnpackString()
		if err != nil {
			return nil, err
		}
		v, err := buf.UnpackString()
		if err != nil {
			return nil, err
		}
		out[k] = v
	}
	return out, nil
}

// PackInet appends a u8 address length followed by the raw address
// bytes and an i32 port. Used by EVENT bodies, which carry a port
// alongside the address.
func (buf *Buffer) PackInet(addr []byte, port int32) {
	buf.PackByte(byte(len(addr)))
	buf.b = append(buf.b, addr...)
	buf.PackInt(port)
}

// UnpackInet consumes an address-length-prefixed address plus port.
func (buf *Buffer) UnpackInet() (addr []byte, port int32, err error) {
	n, err := buf.UnpackByte()
	if err != nil {
		return nil, 0, err
	}
	if err := buf.need(int(n)); err != nil {
		return nil, 0, err
	}
	addr = make([]byte, n)
	copy(addr, buf.take(int(n)))
	port, err = buf.UnpackInt()
	if err != nil {
		return nil, 0, err
	}
	return addr, port, nil
}

// PackInetAddr appends a u8 address length followed by the raw address
// bytes only, no port. INET column values do not go through it: the
// value codec writes them as bare 4- or 16-byte addresses.
func (buf *Buffer) PackInetAddr(addr []byte) {
	buf.PackByte(byte(len(addr)))
	buf.b = append(buf.b, addr...)
}

// UnpackInetAddr consumes an address-length-prefixed address, no port.
func (buf *Buffer) UnpackInetAddr() ([]byte, error) {
	n, err := buf.UnpackByte()
	if err != nil {
		return nil, err
	}
	if err := buf.need(int(n)); err != nil {
		return nil, err
	}
	addr := make([]byte, n)
	copy(addr, buf.take(int(n)))
	return addr, nil
}
