package conn

import (
	"encoding/binary"
	"fmt"

	"github.com/golang/snappy"
	"github.com/pierrec/lz4/v4"
)

// Compressor negotiates one body-compression algorithm. Name is the
// value sent in STARTUP's COMPRESSION option.
type Compressor interface {
	Name() string
	Compress(body []byte) ([]byte, error)
	Decompress(body []byte) ([]byte, error)
}

// SnappyCompressor is the v1 protocol's negotiated algorithm.
type SnappyCompressor struct{}

func (SnappyCompressor) Name() string { return "snappy" }

func (SnappyCompressor) Compress(body []byte) ([]byte, error) {
	return snappy.Encode(nil, body), nil
}

func (SnappyCompressor) Decompress(body []byte) ([]byte, error) {
	return snappy.Decode(nil, body)
}

// LZ4Compressor is the v2 protocol's negotiated algorithm. The wire
// body is a big-endian u32 uncompressed length followed by the raw
// LZ4 block.
type LZ4Compressor struct{}

func (LZ4Compressor) Name() string { return "lz4" }

func (LZ4Compressor) Compress(body []byte) ([]byte, error) {
	buf := make([]byte, lz4.CompressBlockBound(len(body)))
	var c lz4.Compressor
	n, err := c.CompressBlock(body, buf)
	if err != nil {
		return nil, fmt.Errorf("lz4 compress: %w", err)
	}
	if n == 0 {
		// CompressBlock returns n == 0 when body is incompressible; the
		// block is empty in that case, not a valid zero-length block.
		return nil, fmt.Errorf("lz4 compress: incompressible")
	}
	out := make([]byte, 4+n)
	binary.BigEndian.PutUint32(out, uint32(len(body)))
	copy(out[4:], buf[:n])
	return out, nil
}

func (LZ4Compressor) Decompress(body []byte) ([]byte, error) {
	if len(body) < 4 {
		return nil, fmt.Errorf("lz4 decompress: body too short for length prefix")
	}
	uncompressedLen := binary.BigEndian.Uint32(body)
	out := make([]byte, uncompressedLen)
	n, err := lz4.UncompressBlock(body[4:], out)
	if err != nil {
		return nil, fmt.Errorf("lz4 decompress: %w", err)
	}
	return out[:n], nil
}

// compressorFor returns the algorithm this client negotiates for a
// given CQL protocol version (Snappy for v1, LZ4 for v2), or nil if
// compression is disabled for that version.
func compressorFor(protoVersion byte, enabled bool) Compressor {
	if !enabled {
		return nil
	}
	switch protoVersion {
	case 1:
		return SnappyCompressor{}
	case 2:
		return LZ4Compressor{}
	default:
		return nil
	}
}
