package bsoncore

import "fmt"

// Validate checks that d is a structurally well-formed document: a length
// prefix matching len(d), a run of elements that parse cleanly, and a
// trailing null byte.
func (d Document) Validate() error {
	length, _, ok := ReadLength(d)
	if !ok {
		return ErrInsufficientBytes
	}
	if int(length) != len(d) {
		return fmt.Errorf("document length mismatch: header says %d, got %d bytes", length, len(d))
	}
	if d[len(d)-1] != 0x00 {
		return ErrMissingNull
	}
	_, err := d.Elements()
	return err
}

// Elements parses and returns every top-level element in d.
func (d Document) Elements() ([]Element, error) {
	if len(d) < 5 {
		return nil, ErrInsufficientBytes
	}
	rem := d[4 : len(d)-1]

	var elems []Element
	for len(rem) > 0 {
		elem, next, ok := readElement(rem)
		if !ok {
			return nil, fmt.Errorf("malformed element at offset %d", len(d)-len(rem)-1)
		}
		elems = append(elems, elem)
		rem = next
	}
	return elems, nil
}

// Lookup returns the value of the first top-level element matching key, or
// ok=false if no such element exists.
func (d Document) Lookup(key string) (Value, bool) {
	elems, err := d.Elements()
	if err != nil {
		return Value{}, false
	}
	for _, e := range elems {
		if e.Key() == key {
			v, err := e.ValueErr()
			if err != nil {
				return Value{}, false
			}
			return v, true
		}
	}
	return Value{}, false
}

// LookupErr is Lookup but returns an error naming the missing key, useful
// when a required reply field is absent.
func (d Document) LookupErr(key string) (Value, error) {
	v, ok := d.Lookup(key)
	if !ok {
		return Value{}, fmt.Errorf("key %q not found in document", key)
	}
	return v, nil
}

// String renders a debug form of the document; it never panics, falling
// back to a placeholder on malformed input.
func (d Document) String() string {
	elems, err := d.Elements()
	if err != nil {
		return "<malformed>"
	}
	s := "{"
	for i, e := range elems {
		if i > 0 {
			s += ", "
		}
		v, _ := e.ValueErr()
		s += fmt.Sprintf("%s: %s", e.Key(), v.String())
	}
	return s + "}"
}

func readElement(src []byte) (Element, []byte, bool) {
	if len(src) < 2 {
		return nil, src, false
	}
	t := Type(src[0])

	keyEnd := 1
	for keyEnd < len(src) && src[keyEnd] != 0x00 {
		keyEnd++
	}
	if keyEnd >= len(src) {
		return nil, src, false
	}
	// keyEnd points at the null terminator of the key.
	valueStart := keyEnd + 1

	valLen, ok := valueLength(t, src[valueStart:])
	if !ok || valueStart+valLen > len(src) {
		return nil, src, false
	}

	total := valueStart + valLen
	return Element(src[:total]), src[total:], true
}

// valueLength computes how many bytes of src (starting right after the key's
// null terminator) the value of type t occupies.
func valueLength(t Type, src []byte) (int, bool) {
	switch t {
	case TypeDouble, TypeDateTime, TypeTimestamp, TypeInt64:
		return 8, len(src) >= 8
	case TypeInt32:
		return 4, len(src) >= 4
	case TypeBoolean:
		return 1, len(src) >= 1
	case TypeNull, TypeMinKey, TypeMaxKey:
		return 0, true
	case TypeObjectID:
		return 12, len(src) >= 12
	case TypeString:
		l, _, ok := ReadLength(src)
		return 4 + int(l), ok && len(src) >= 4+int(l)
	case TypeEmbeddedDocument, TypeArray:
		l, _, ok := ReadLength(src)
		return int(l), ok && len(src) >= int(l)
	case TypeBinary:
		l, _, ok := ReadLength(src)
		return 4 + 1 + int(l), ok && len(src) >= 4+1+int(l)
	case TypeRegex:
		end := 0
		terms := 0
		for end < len(src) && terms < 2 {
			if src[end] == 0x00 {
				terms++
			}
			end++
		}
		return end, terms == 2
	default:
		return 0, false
	}
}
