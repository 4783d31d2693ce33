package bsoncore

import "fmt"

// Key returns the element's key. It panics if e is malformed; callers that
// obtained e from Document.Elements never see a malformed one.
func (e Element) Key() string {
	end := 1
	for end < len(e) && e[end] != 0x00 {
		end++
	}
	return string(e[1:end])
}

// ValueErr returns the element's value.
func (e Element) ValueErr() (Value, error) {
	end := 1
	for end < len(e) && e[end] != 0x00 {
		end++
	}
	if end >= len(e) {
		return Value{}, fmt.Errorf("malformed element: missing key terminator")
	}
	return Value{Type: Type(e[0]), Data: e[end+1:]}, nil
}

// Value is a convenience wrapper around ValueErr that panics on malformed
// input; it should only be used once an Element has already been validated.
func (e Element) Value() Value {
	v, err := e.ValueErr()
	if err != nil {
		panic(err)
	}
	return v
}
