package frame

import "fmt"

// Opcode identifies the kind of message a frame body carries.
type Opcode byte

// Request and response opcodes, shared by both directions per the
// native protocol (a RESULT is never sent by a client, an EXECUTE
// never by a server, but both live in the same numbering space).
const (
	OpError        Opcode = 0x00
	OpStartup      Opcode = 0x01
	OpReady        Opcode = 0x02
	OpAuthenticate Opcode = 0x03
	OpCredentials  Opcode = 0x04 // v1 only
	OpOptions      Opcode = 0x05
	OpSupported    Opcode = 0x06
	OpQuery        Opcode = 0x07
	OpResult       Opcode = 0x08
	OpPrepare      Opcode = 0x09
	OpExecute      Opcode = 0x0A
	OpRegister     Opcode = 0x0B
	OpEvent        Opcode = 0x0C
)

func (o Opcode) String() string {
	switch o {
	case OpError:
		return "ERROR"
	case OpStartup:
		return "STARTUP"
	case OpReady:
		return "READY"
	case OpAuthenticate:
		return "AUTHENTICATE"
	case OpCredentials:
		return "CREDENTIALS"
	case OpOptions:
		return "OPTIONS"
	case OpSupported:
		return "SUPPORTED"
	case OpQuery:
		return "QUERY"
	case OpResult:
		return "RESULT"
	case OpPrepare:
		return "PREPARE"
	case OpExecute:
		return "EXECUTE"
	case OpRegister:
		return "REGISTER"
	case OpEvent:
		return "EVENT"
	default:
		return fmt.Sprintf("OPCODE(0x%02x)", byte(o))
	}
}

// Protocol version numbers this client speaks. The high bit of the
// version byte is set on responses; RequestVersion/ResponseVersionOf
// give the two forms for a given protocol generation.
const (
	ProtoV1 byte = 0x01
	ProtoV2 byte = 0x02

	responseBit byte = 0x80
)

// HeaderSize is the fixed length of the message envelope preceding
// the body: version, flags, stream id, opcode, body length.
const HeaderSize = 8

// Flag bits carried in the header's flags byte.
const (
	FlagCompressed byte = 0x01
	FlagTracing    byte = 0x02
)

// StreamEvent is the reserved stream id EVENT frames use, distinct
// from the 1..127 range user requests allocate.
const StreamEvent int8 = -1

// Header is the fixed 8-byte envelope preceding every frame body.
type Header struct {
	Version  byte
	Flags    byte
	StreamID int8
	Opcode   Opcode
	Length   int32
}

// IsResponse reports whether the version byte's high bit is set.
func (h Header) IsResponse() bool { return h.Version&responseBit != 0 }

// Compressed reports whether the compression flag is set.
func (h Header) Compressed() bool { return h.Flags&FlagCompressed != 0 }

// Tracing reports whether the tracing flag is set (response only).
func (h Header) Tracing() bool { return h.Flags&FlagTracing != 0 }

// ProtocolVersion strips the response bit, returning ProtoV1/ProtoV2.
func (h Header) ProtocolVersion() byte { return h.Version &^ responseBit }

// EncodeHeader appends h's 8-byte envelope (not the body) to buf.
// Length must already reflect the body that will follow.
func EncodeHeader(buf *Buffer, h Header) {
	buf.PackByte(h.Version)
	buf.PackByte(h.Flags)
	buf.PackByte(byte(h.StreamID))
	buf.PackByte(byte(h.Opcode))
	buf.PackInt(h.Length)
}

// DecodeHeader consumes an 8-byte envelope from buf.
func DecodeHeader(buf *Buffer) (Header, error) {
	var h Header
	var err error
	if h.Version, err = buf.UnpackByte(); err != nil {
		return h, err
	}
	if h.Flags, err = buf.UnpackByte(); err != nil {
		return h, err
	}
	sid, err := buf.UnpackByte()
	if err != nil {
		return h, err
	}
	h.StreamID = int8(sid)
	op, err := buf.UnpackByte()
	if err != nil {
		return h, err
	}
	h.Opcode = Opcode(op)
	if h.Length, err = buf.UnpackInt(); err != nil {
		return h, err
	}
	return h, nil
}

// RequestVersion returns the request-direction version byte (high bit
// clear) for the given protocol generation.
func RequestVersion(proto byte) byte { return proto }

// ResponseVersionOf returns the response-direction version byte (high
// bit set) for the given protocol generation.
func ResponseVersionOf(proto byte) byte { return proto | responseBit }
