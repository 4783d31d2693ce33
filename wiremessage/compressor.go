package wiremessage

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/golang/snappy"
	"github.com/klauspost/compress/zlib"
)

// CompressorID identifies a negotiated wire compressor, matching the byte
// values the handshake's "compression" field and OP_COMPRESSED both use.
type CompressorID byte

// Supported compressors. "noop" always exists implicitly and is never
// negotiated or wrapped in OP_COMPRESSED.
const (
	CompressorNoop   CompressorID = 0
	CompressorSnappy CompressorID = 1
	CompressorZlib   CompressorID = 2
)

// Compressor compresses and decompresses OP_MSG bodies for the wire.
type Compressor interface {
	ID() CompressorID
	Name() string
	Compress(src []byte) ([]byte, error)
	Decompress(src []byte, uncompressedSize int32) ([]byte, error)
}

type snappyCompressor struct{}

func (snappyCompressor) ID() CompressorID { return CompressorSnappy }
func (snappyCompressor) Name() string     { return "snappy" }

func (snappyCompressor) Compress(src []byte) ([]byte, error) {
	return snappy.Encode(nil, src), nil
}

func (snappyCompressor) Decompress(src []byte, uncompressedSize int32) ([]byte, error) {
	dst := make([]byte, uncompressedSize)
	out, err := snappy.Decode(dst, src)
	if err != nil {
		return nil, fmt.Errorf("snappy decompress: %w", err)
	}
	return out, nil
}

type zlibCompressor struct{ level int }

func (zlibCompressor) ID() CompressorID { return CompressorZlib }
func (zlibCompressor) Name() string     { return "zlib" }

func (z zlibCompressor) Compress(src []byte) ([]byte, error) {
	var buf bytes.Buffer
	level := z.level
	if level == 0 {
		level = zlib.DefaultCompression
	}
	w, err := zlib.NewWriterLevel(&buf, level)
	if err != nil {
		return nil, err
	}
	if _, err := w.Write(src); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (zlibCompressor) Decompress(src []byte, uncompressedSize int32) ([]byte, error) {
	r, err := zlib.NewReader(bytes.NewReader(src))
	if err != nil {
		return nil, err
	}
	defer r.Close()
	dst := make([]byte, uncompressedSize)
	if _, err := io.ReadFull(r, dst); err != nil && err != io.ErrUnexpectedEOF {
		return nil, err
	}
	return dst, nil
}

// NewSnappyCompressor returns the snappy Compressor.
func NewSnappyCompressor() Compressor { return snappyCompressor{} }

// NewZlibCompressor returns the zlib Compressor at the given level (0 picks
// zlib.DefaultCompression).
func NewZlibCompressor(level int) Compressor { return zlibCompressor{level: level} }

// CompressorByName looks up one of the built-in compressors by the name used
// in the "compression" handshake field.
func CompressorByName(name string) (Compressor, bool) {
	switch name {
	case "snappy":
		return NewSnappyCompressor(), true
	case "zlib":
		return NewZlibCompressor(0), true
	default:
		return nil, false
	}
}

// minCompressibleBody is the size floor below which OP_MSG bodies are sent
// uncompressed even when a compressor was negotiated — matching general
// wire-protocol guidance that compressing tiny messages wastes CPU for no
// bandwidth win.
const minCompressibleBody = 100

// CompressMessage wraps an originally-framed message (op-code + body, not
// including the 16-byte header) in OP_COMPRESSED if the body is large enough
// to be worth it; otherwise it returns ok=false and the caller should send
// the original op-code and body unmodified.
func CompressMessage(originalOp OpCode, body []byte, c Compressor) (op OpCode, compressedBody []byte, ok bool, err error) {
	if c == nil || len(body) < minCompressibleBody {
		return originalOp, body, false, nil
	}
	compressed, err := c.Compress(body)
	if err != nil {
		return 0, nil, false, err
	}

	out := make([]byte, 0, 9+len(compressed))
	out = appendUint32(out, uint32(originalOp))
	out = appendUint32(out, uint32(len(body)))
	out = append(out, byte(c.ID()))
	out = append(out, compressed...)
	return OpCompressed, out, true, nil
}

// DecompressMessage unwraps an OP_COMPRESSED body, returning the original
// op-code and the decompressed body. compressors maps a negotiated
// CompressorID to its implementation; an unrecognized id fails closed.
func DecompressMessage(body []byte, compressors map[CompressorID]Compressor) (OpCode, []byte, error) {
	if len(body) < 9 {
		return 0, nil, &MalformedFrameError{Reason: "OP_COMPRESSED body too short"}
	}
	originalOp := OpCode(int32(binary.LittleEndian.Uint32(body[0:4])))
	uncompressedSize := int32(binary.LittleEndian.Uint32(body[4:8]))
	id := CompressorID(body[8])
	payload := body[9:]

	c, ok := compressors[id]
	if !ok {
		return 0, nil, &MalformedFrameError{Reason: fmt.Sprintf("unknown compressor id %d", id)}
	}
	out, err := c.Decompress(payload, uncompressedSize)
	if err != nil {
		return 0, nil, err
	}
	return originalOp, out, nil
}
