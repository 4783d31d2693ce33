package bsoncore

import (
	"encoding/binary"
	"fmt"
	"math"
	"time"
)

// StringValueOK returns the value's string contents if it is a Type string.
func (v Value) StringValueOK() (string, bool) {
	if v.Type != TypeString || len(v.Data) < 4 {
		return "", false
	}
	l, rest, ok := ReadLength(v.Data)
	if !ok || int(l) < 1 || len(rest) < int(l) {
		return "", false
	}
	return string(rest[:l-1]), true
}

// StringValue returns the value's string contents, or "" if it is not a
// string.
func (v Value) StringValue() string {
	s, _ := v.StringValueOK()
	return s
}

// Int32OK returns the value's int32 contents if it is a Type int32.
func (v Value) Int32OK() (int32, bool) {
	if v.Type != TypeInt32 || len(v.Data) < 4 {
		return 0, false
	}
	return int32(binary.LittleEndian.Uint32(v.Data)), true
}

// Int32 returns the value's int32 contents, or 0 if it is not an int32.
func (v Value) Int32() int32 {
	i, _ := v.Int32OK()
	return i
}

// Int64OK returns the value's int64 contents if it is a Type int64.
func (v Value) Int64OK() (int64, bool) {
	if v.Type != TypeInt64 || len(v.Data) < 8 {
		return 0, false
	}
	return int64(binary.LittleEndian.Uint64(v.Data)), true
}

// Int64 returns the value's int64 contents, or 0 if it is not an int64.
func (v Value) Int64() int64 {
	i, _ := v.Int64OK()
	return i
}

// AsInt64 widens Int32 or Int64 or Double values to int64, which is useful
// when reading server replies that may use either representation for the
// same logical field (e.g. setVersion).
func (v Value) AsInt64() (int64, bool) {
	switch v.Type {
	case TypeInt64:
		return v.Int64OK()
	case TypeInt32:
		i, ok := v.Int32OK()
		return int64(i), ok
	case TypeDouble:
		d, ok := v.DoubleOK()
		return int64(d), ok
	default:
		return 0, false
	}
}

// DoubleOK returns the value's float64 contents if it is a Type double.
func (v Value) DoubleOK() (float64, bool) {
	if v.Type != TypeDouble || len(v.Data) < 8 {
		return 0, false
	}
	return math.Float64frombits(binary.LittleEndian.Uint64(v.Data)), true
}

// BooleanOK returns the value's bool contents if it is a Type boolean.
func (v Value) BooleanOK() (bool, bool) {
	if v.Type != TypeBoolean || len(v.Data) < 1 {
		return false, false
	}
	return v.Data[0] != 0x00, true
}

// Boolean returns the value's bool contents, or false if it is not boolean.
func (v Value) Boolean() bool {
	b, _ := v.BooleanOK()
	return b
}

// DocumentOK returns the value's raw document bytes if it is a Type
// embedded document.
func (v Value) DocumentOK() (Document, bool) {
	if v.Type != TypeEmbeddedDocument {
		return nil, false
	}
	return Document(v.Data), true
}

// Document returns the value's raw document bytes, or nil if it is not a
// document.
func (v Value) Document() Document {
	d, _ := v.DocumentOK()
	return d
}

// ArrayOK returns the value's raw array bytes if it is a Type array.
func (v Value) ArrayOK() (Array, bool) {
	if v.Type != TypeArray {
		return nil, false
	}
	return Array(v.Data), true
}

// Array returns the value's raw array bytes, or nil if it is not an array.
func (v Value) Array() Array {
	a, _ := v.ArrayOK()
	return a
}

// BinaryOK returns the binary subtype and payload if the value is a Type
// binary.
func (v Value) BinaryOK() (subtype byte, data []byte, ok bool) {
	if v.Type != TypeBinary || len(v.Data) < 5 {
		return 0, nil, false
	}
	l, rest, ok := ReadLength(v.Data)
	if !ok || len(rest) < 1+int(l) {
		return 0, nil, false
	}
	return rest[0], rest[1 : 1+l], true
}

// DateTimeOK returns the value's time.Time contents if it is a Type
// dateTime. The wire representation is milliseconds since the Unix epoch.
func (v Value) DateTimeOK() (time.Time, bool) {
	if v.Type != TypeDateTime || len(v.Data) < 8 {
		return time.Time{}, false
	}
	ms := int64(binary.LittleEndian.Uint64(v.Data))
	return time.UnixMilli(ms).UTC(), true
}

// TimestampOK returns the value's (seconds, increment) contents if it is a
// Type timestamp, matching the wire layout written by AppendTimestampElement
// (increment first, then seconds).
func (v Value) TimestampOK() (t, i uint32, ok bool) {
	if v.Type != TypeTimestamp || len(v.Data) < 8 {
		return 0, 0, false
	}
	i = binary.LittleEndian.Uint32(v.Data[0:4])
	t = binary.LittleEndian.Uint32(v.Data[4:8])
	return t, i, true
}

// IsNull reports whether the value is the Null type.
func (v Value) IsNull() bool {
	return v.Type == TypeNull
}

// String renders a debug form of the value. It never panics.
func (v Value) String() string {
	switch v.Type {
	case TypeString:
		return fmt.Sprintf("%q", v.StringValue())
	case TypeInt32:
		return fmt.Sprintf("%d", v.Int32())
	case TypeInt64:
		return fmt.Sprintf("%d", v.Int64())
	case TypeDouble:
		d, _ := v.DoubleOK()
		return fmt.Sprintf("%v", d)
	case TypeBoolean:
		return fmt.Sprintf("%v", v.Boolean())
	case TypeNull:
		return "null"
	case TypeEmbeddedDocument:
		return v.Document().String()
	case TypeArray:
		vals, err := v.Array().Values()
		if err != nil {
			return "<malformed array>"
		}
		s := "["
		for i, e := range vals {
			if i > 0 {
				s += ", "
			}
			s += e.String()
		}
		return s + "]"
	default:
		return fmt.Sprintf("<%d bytes of type 0x%02x>", len(v.Data), byte(v.Type))
	}
}
