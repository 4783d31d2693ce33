package bsoncore

import (
	"testing"
	"time"
)

func TestDocumentRoundTrip(t *testing.T) {
	now := time.Now().Truncate(time.Millisecond).UTC()

	inner := BuildDocument(nil, func(dst []byte) []byte {
		return AppendInt32Element(dst, "x", 7)
	})

	doc := BuildDocument(nil, func(dst []byte) []byte {
		dst = AppendStringElement(dst, "name", "replset1")
		dst = AppendInt32Element(dst, "setVersion", 3)
		dst = AppendInt64Element(dst, "bignum", 1<<40)
		dst = AppendDoubleElement(dst, "rtt", 12.5)
		dst = AppendBooleanElement(dst, "ok", true)
		dst = AppendBooleanElement(dst, "no", false)
		dst = AppendNullElement(dst, "nothing")
		dst = AppendDateTimeElement(dst, "when", now)
		dst = AppendDocumentElement(dst, "inner", inner)
		dst = AppendBinaryElement(dst, "bin", 0x00, []byte{1, 2, 3})
		return dst
	})

	if err := Document(doc).Validate(); err != nil {
		t.Fatalf("Validate failed: %v", err)
	}

	if v, ok := Document(doc).Lookup("name"); !ok || v.StringValue() != "replset1" {
		t.Errorf("name: got %+v ok=%v", v, ok)
	}
	if v, ok := Document(doc).Lookup("setVersion"); !ok || v.Int32() != 3 {
		t.Errorf("setVersion: got %+v ok=%v", v, ok)
	}
	if v, ok := Document(doc).Lookup("bignum"); !ok || v.Int64() != 1<<40 {
		t.Errorf("bignum: got %+v ok=%v", v, ok)
	}
	if v, ok := Document(doc).Lookup("rtt"); !ok {
		t.Errorf("rtt missing")
	} else if d, _ := v.DoubleOK(); d != 12.5 {
		t.Errorf("rtt: got %v", d)
	}
	if v, ok := Document(doc).Lookup("ok"); !ok || !v.Boolean() {
		t.Errorf("ok: got %+v ok=%v", v, ok)
	}
	if v, ok := Document(doc).Lookup("no"); !ok || v.Boolean() {
		t.Errorf("no: got %+v ok=%v", v, ok)
	}
	if v, ok := Document(doc).Lookup("nothing"); !ok || !v.IsNull() {
		t.Errorf("nothing: got %+v ok=%v", v, ok)
	}
	if v, ok := Document(doc).Lookup("when"); !ok {
		t.Errorf("when missing")
	} else if dt, _ := v.DateTimeOK(); !dt.Equal(now) {
		t.Errorf("when: got %v want %v", dt, now)
	}
	if v, ok := Document(doc).Lookup("inner"); !ok {
		t.Errorf("inner missing")
	} else if iv, ok2 := v.Document().Lookup("x"); !ok2 || iv.Int32() != 7 {
		t.Errorf("inner.x: got %+v ok=%v", iv, ok2)
	}
	if v, ok := Document(doc).Lookup("bin"); !ok {
		t.Errorf("bin missing")
	} else if subtype, data, ok2 := v.BinaryOK(); !ok2 || subtype != 0 || len(data) != 3 {
		t.Errorf("bin: subtype=%v data=%v ok=%v", subtype, data, ok2)
	}

	if _, ok := Document(doc).Lookup("missing"); ok {
		t.Errorf("expected missing key to be absent")
	}
}

func TestValidateRejectsTruncated(t *testing.T) {
	doc := BuildDocument(nil, func(dst []byte) []byte {
		return AppendStringElement(dst, "k", "v")
	})
	truncated := doc[:len(doc)-3]
	if err := Document(truncated).Validate(); err == nil {
		t.Errorf("expected Validate to reject a truncated document")
	}
}

func TestArrayValues(t *testing.T) {
	arr := BuildDocument(nil, func(dst []byte) []byte {
		dst = AppendStringElement(dst, "0", "a")
		dst = AppendStringElement(dst, "1", "b")
		return dst
	})
	vals, err := Array(arr).Values()
	if err != nil {
		t.Fatalf("Values failed: %v", err)
	}
	if len(vals) != 2 || vals[0].StringValue() != "a" || vals[1].StringValue() != "b" {
		t.Errorf("unexpected values: %+v", vals)
	}
}
