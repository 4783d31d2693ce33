package wiremessage

import (
	"encoding/binary"
	"fmt"
	"io"
)

// HeaderLength is the fixed size, in bytes, of every message header.
const HeaderLength = 16

// MaxMessageSize bounds how large a single incoming message is allowed to
// be, guarding against a corrupt or hostile length prefix causing an
// unbounded allocation.
const MaxMessageSize = 48 * 1024 * 1024

// Header is the 16-byte prefix common to every wire message.
type Header struct {
	MessageLength int32
	RequestID     int32
	ResponseTo    int32
	OpCode        OpCode
}

// MalformedFrameError is returned by Decode/ReadMessage when a frame's
// length prefix or op-code cannot be trusted.
type MalformedFrameError struct {
	Reason string
}

func (e *MalformedFrameError) Error() string {
	return fmt.Sprintf("malformed wire frame: %s", e.Reason)
}

// AppendHeader serializes h and appends it to dst.
func AppendHeader(dst []byte, h Header) []byte {
	buf := make([]byte, HeaderLength)
	binary.LittleEndian.PutUint32(buf[0:4], uint32(h.MessageLength))
	binary.LittleEndian.PutUint32(buf[4:8], uint32(h.RequestID))
	binary.LittleEndian.PutUint32(buf[8:12], uint32(h.ResponseTo))
	binary.LittleEndian.PutUint32(buf[12:16], uint32(h.OpCode))
	return append(dst, buf...)
}

// ReadHeader parses a Header from the front of src, returning the remaining
// bytes. It returns a MalformedFrameError if src is too short or the op-code
// is not one this driver understands.
func ReadHeader(src []byte) (Header, []byte, error) {
	if len(src) < HeaderLength {
		return Header{}, src, &MalformedFrameError{Reason: "fewer than 16 bytes available"}
	}
	h := Header{
		MessageLength: int32(binary.LittleEndian.Uint32(src[0:4])),
		RequestID:     int32(binary.LittleEndian.Uint32(src[4:8])),
		ResponseTo:    int32(binary.LittleEndian.Uint32(src[8:12])),
		OpCode:        OpCode(int32(binary.LittleEndian.Uint32(src[12:16]))),
	}
	switch h.OpCode {
	case OpReply, OpQuery, OpCompressed, OpMsg:
	default:
		return Header{}, src, &MalformedFrameError{Reason: fmt.Sprintf("unknown op-code %d", h.OpCode)}
	}
	if h.MessageLength < HeaderLength || h.MessageLength > MaxMessageSize {
		return Header{}, src, &MalformedFrameError{Reason: fmt.Sprintf("implausible message length %d", h.MessageLength)}
	}
	return h, src[HeaderLength:], nil
}

// ReadMessage blocks on r until a complete framed message (header + body)
// has been read, returning the header and the body bytes (everything after
// the header, up to MessageLength).
func ReadMessage(r io.Reader) (Header, []byte, error) {
	hdrBuf := make([]byte, HeaderLength)
	if _, err := io.ReadFull(r, hdrBuf); err != nil {
		return Header{}, nil, err
	}
	h, _, err := ReadHeader(hdrBuf)
	if err != nil {
		return Header{}, nil, err
	}

	bodyLen := int(h.MessageLength) - HeaderLength
	body := make([]byte, bodyLen)
	if bodyLen > 0 {
		if _, err := io.ReadFull(r, body); err != nil {
			return Header{}, nil, err
		}
	}
	return h, body, nil
}

// WriteMessage writes a complete header+body frame to w in one call,
// computing MessageLength from len(body).
func WriteMessage(w io.Writer, requestID, responseTo int32, op OpCode, body []byte) error {
	h := Header{
		MessageLength: int32(HeaderLength + len(body)),
		RequestID:     requestID,
		ResponseTo:    responseTo,
		OpCode:        op,
	}
	buf := AppendHeader(make([]byte, 0, int(h.MessageLength)), h)
	buf = append(buf, body...)
	_, err := w.Write(buf)
	return err
}

// Decode parses a complete in-memory frame (header + body), the
// non-streaming counterpart of ReadMessage used for unit testing the
// round-trip law in isolation from a net.Conn.
func Decode(src []byte) (Header, []byte, error) {
	h, rest, err := ReadHeader(src)
	if err != nil {
		return Header{}, nil, err
	}
	bodyLen := int(h.MessageLength) - HeaderLength
	if bodyLen < 0 || bodyLen > len(rest) {
		return Header{}, nil, &MalformedFrameError{Reason: "body shorter than declared length"}
	}
	return h, rest[:bodyLen], nil
}

// Encode is the in-memory counterpart of WriteMessage.
func Encode(requestID, responseTo int32, op OpCode, body []byte) []byte {
	h := Header{
		MessageLength: int32(HeaderLength + len(body)),
		RequestID:     requestID,
		ResponseTo:    responseTo,
		OpCode:        op,
	}
	buf := AppendHeader(make([]byte, 0, int(h.MessageLength)), h)
	return append(buf, body...)
}
