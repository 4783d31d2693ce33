// Package bsoncore is a small, self-contained BSON document builder and
// reader. It exists only so the core driver packages have something
// concrete to hand to the wire codec — document *content* (schema,
// validation, reflection-based marshaling) is out of scope; this package
// only knows how to assemble and tear down the handful of element types the
// driver itself sends and reads (§9's typed sum, trimmed to what the core
// protocol, handshake, and auth exchanges actually use).
//
// The API shape (append-to-a-byte-slice builders, Type-tagged Value, raw
// Document/Array/Element wrappers over []byte) is adapted from the driver
// ecosystem's own x/bsonx/bsoncore package.
package bsoncore

import (
	"encoding/binary"
	"errors"
	"math"
	"time"
)

// Type is the one-byte BSON element type tag.
type Type byte

// Element type tags used by this driver.
const (
	TypeDouble          Type = 0x01
	TypeString          Type = 0x02
	TypeEmbeddedDocument Type = 0x03
	TypeArray           Type = 0x04
	TypeBinary          Type = 0x05
	TypeObjectID        Type = 0x07
	TypeBoolean         Type = 0x08
	TypeDateTime        Type = 0x09
	TypeNull            Type = 0x0A
	TypeRegex           Type = 0x0B
	TypeInt32           Type = 0x10
	TypeTimestamp       Type = 0x11
	TypeInt64           Type = 0x12
	TypeMinKey          Type = 0xFF
	TypeMaxKey          Type = 0x7F
)

// ErrMissingNull is returned when a document or array does not end with the
// expected null terminator byte.
var ErrMissingNull = errors.New("document or array is missing terminating null byte")

// ErrInsufficientBytes is returned when there are not enough bytes to read a
// complete length-prefixed value.
var ErrInsufficientBytes = errors.New("insufficient bytes to read value")

// Document is a raw, encoded BSON document: a 4-byte little-endian length
// (inclusive of itself and the trailing null), a sequence of elements, and a
// trailing null byte.
type Document []byte

// Array is a raw, encoded BSON array: structurally a Document whose keys are
// the string forms of successive integers ("0", "1", ...).
type Array []byte

// Element is one raw encoded element: a type byte, a null-terminated key,
// and the type's value bytes.
type Element []byte

// Value is a type tag paired with the value's raw encoded bytes (not
// including the type byte or key).
type Value struct {
	Type Type
	Data []byte
}

// ReadLength reads the 4-byte little-endian length prefix at the start of
// src and reports whether there were enough bytes to do so.
func ReadLength(src []byte) (int32, []byte, bool) {
	if len(src) < 4 {
		return 0, src, false
	}
	return int32(binary.LittleEndian.Uint32(src)), src[4:], true
}

func appendLength(dst []byte, l int32) []byte {
	buf := make([]byte, 4)
	binary.LittleEndian.PutUint32(buf, uint32(l))
	return append(dst, buf...)
}

// AppendDocumentStart appends a placeholder length and returns the index of
// that placeholder (to be patched by AppendDocumentEnd) along with the
// updated buffer.
func AppendDocumentStart(dst []byte) (int32, []byte) {
	idx := int32(len(dst))
	return idx, appendLength(dst, 0)
}

// AppendDocumentEnd writes the trailing null byte and backpatches the length
// recorded at idx (as returned by AppendDocumentStart).
func AppendDocumentEnd(dst []byte, idx int32) []byte {
	dst = append(dst, 0x00)
	l := int32(len(dst)) - idx
	binary.LittleEndian.PutUint32(dst[idx:idx+4], uint32(l))
	return dst
}

// BuildDocument is a convenience wrapper: it starts a document, invokes fn to
// append elements, then closes the document.
func BuildDocument(dst []byte, fn func(dst []byte) []byte) []byte {
	idx, dst := AppendDocumentStart(dst)
	dst = fn(dst)
	return AppendDocumentEnd(dst, idx)
}

// DocumentBuilder is an in-progress Document: just the starting buffer and
// the index to patch at Build time.
type DocumentBuilder struct {
	buf []byte
	idx int32
}

// NewDocumentBuilder starts a new, empty document.
func NewDocumentBuilder() *DocumentBuilder {
	b := &DocumentBuilder{}
	b.idx, b.buf = AppendDocumentStart(nil)
	return b
}

// Build finalizes the document and returns its encoded bytes.
func (b *DocumentBuilder) Build() Document {
	return Document(AppendDocumentEnd(b.buf, b.idx))
}

func appendKey(dst []byte, t Type, key string) []byte {
	dst = append(dst, byte(t))
	dst = append(dst, key...)
	return append(dst, 0x00)
}

// AppendDoubleElement appends a Double-typed element.
func AppendDoubleElement(dst []byte, key string, f float64) []byte {
	dst = appendKey(dst, TypeDouble, key)
	buf := make([]byte, 8)
	binary.LittleEndian.PutUint64(buf, math.Float64bits(f))
	return append(dst, buf...)
}

// AppendStringElement appends a UTF-8 String-typed element.
func AppendStringElement(dst []byte, key, val string) []byte {
	dst = appendKey(dst, TypeString, key)
	dst = appendLength(dst, int32(len(val)+1))
	dst = append(dst, val...)
	return append(dst, 0x00)
}

// AppendDocumentElement appends an already-encoded sub-document.
func AppendDocumentElement(dst []byte, key string, doc []byte) []byte {
	dst = appendKey(dst, TypeEmbeddedDocument, key)
	return append(dst, doc...)
}

// AppendArrayElement appends an already-encoded array.
func AppendArrayElement(dst []byte, key string, arr []byte) []byte {
	dst = appendKey(dst, TypeArray, key)
	return append(dst, arr...)
}

// AppendBinaryElement appends a Binary-typed element with the given subtype.
func AppendBinaryElement(dst []byte, key string, subtype byte, data []byte) []byte {
	dst = appendKey(dst, TypeBinary, key)
	dst = appendLength(dst, int32(len(data)))
	dst = append(dst, subtype)
	return append(dst, data...)
}

// AppendObjectIDElement appends a 12-byte ObjectID-typed element.
func AppendObjectIDElement(dst []byte, key string, id [12]byte) []byte {
	dst = appendKey(dst, TypeObjectID, key)
	return append(dst, id[:]...)
}

// AppendBooleanElement appends a Boolean-typed element.
func AppendBooleanElement(dst []byte, key string, b bool) []byte {
	dst = appendKey(dst, TypeBoolean, key)
	if b {
		return append(dst, 0x01)
	}
	return append(dst, 0x00)
}

// AppendDateTimeElement appends a DateTime-typed element (milliseconds since
// the Unix epoch, matching the wire representation).
func AppendDateTimeElement(dst []byte, key string, t time.Time) []byte {
	dst = appendKey(dst, TypeDateTime, key)
	buf := make([]byte, 8)
	binary.LittleEndian.PutUint64(buf, uint64(t.UnixMilli()))
	return append(dst, buf...)
}

// AppendNullElement appends a Null-typed element.
func AppendNullElement(dst []byte, key string) []byte {
	return appendKey(dst, TypeNull, key)
}

// AppendInt32Element appends an Int32-typed element.
func AppendInt32Element(dst []byte, key string, v int32) []byte {
	dst = appendKey(dst, TypeInt32, key)
	buf := make([]byte, 4)
	binary.LittleEndian.PutUint32(buf, uint32(v))
	return append(dst, buf...)
}

// AppendInt64Element appends an Int64-typed element.
func AppendInt64Element(dst []byte, key string, v int64) []byte {
	dst = appendKey(dst, TypeInt64, key)
	buf := make([]byte, 8)
	binary.LittleEndian.PutUint64(buf, uint64(v))
	return append(dst, buf...)
}

// AppendTimestampElement appends a Timestamp-typed element (t = seconds, i =
// ordinal within the second).
func AppendTimestampElement(dst []byte, key string, t, i uint32) []byte {
	dst = appendKey(dst, TypeTimestamp, key)
	buf := make([]byte, 8)
	binary.LittleEndian.PutUint32(buf[0:4], i)
	binary.LittleEndian.PutUint32(buf[4:8], t)
	return append(dst, buf...)
}

// Values returns every value in a, in element order, ignoring the array's
// "0", "1", "2", ... keys. It is a thin convenience used when reading arrays
// of addresses/tags off a reply.
func (a Array) Values() ([]Value, error) {
	doc := Document(a)
	elems, err := doc.Elements()
	if err != nil {
		return nil, err
	}
	vals := make([]Value, 0, len(elems))
	for _, e := range elems {
		v, err := e.ValueErr()
		if err != nil {
			return nil, err
		}
		vals = append(vals, v)
	}
	return vals, nil
}
