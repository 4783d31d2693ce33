package wiremessage

import (
	"bytes"
	"testing"

	"github.com/sealdb/driver/bsoncore"
)

func TestFrameRoundTrip(t *testing.T) {
	body := bsoncore.BuildDocument(nil, func(dst []byte) []byte {
		return bsoncore.AppendInt32Element(dst, "ok", 1)
	})

	encoded := Encode(7, 0, OpMsg, body)
	h, decodedBody, err := Decode(encoded)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if h.RequestID != 7 || h.OpCode != OpMsg {
		t.Fatalf("unexpected header: %+v", h)
	}
	if !bytes.Equal(decodedBody, body) {
		t.Fatalf("body mismatch: got %v want %v", decodedBody, body)
	}
}

func TestReadMessageOverStream(t *testing.T) {
	body := bsoncore.BuildDocument(nil, func(dst []byte) []byte {
		return bsoncore.AppendStringElement(dst, "hello", "world")
	})
	framed := Encode(3, 0, OpMsg, body)

	h, gotBody, err := ReadMessage(bytes.NewReader(framed))
	if err != nil {
		t.Fatalf("ReadMessage failed: %v", err)
	}
	if h.RequestID != 3 {
		t.Fatalf("unexpected request id %d", h.RequestID)
	}
	if !bytes.Equal(gotBody, body) {
		t.Fatalf("body mismatch")
	}
}

func TestDecodeRejectsUnknownOpCode(t *testing.T) {
	body := []byte{}
	framed := Encode(1, 0, OpMsg, body)
	// Corrupt the op-code field.
	framed[12] = 0xFF
	framed[13] = 0xFF
	framed[14] = 0xFF
	framed[15] = 0x7F

	if _, _, err := Decode(framed); err == nil {
		t.Fatal("expected malformed frame error for unknown op-code")
	}
}

func TestDecodeRejectsLengthMismatch(t *testing.T) {
	framed := Encode(1, 0, OpMsg, []byte{0x00, 0x00, 0x00, 0x00})
	truncated := framed[:len(framed)-2]
	if _, _, err := Decode(truncated); err == nil {
		t.Fatal("expected malformed frame error for truncated body")
	}
}

func TestMsgRoundTripWithChecksum(t *testing.T) {
	bodyDoc := bsoncore.BuildDocument(nil, func(dst []byte) []byte {
		return bsoncore.AppendInt32Element(dst, "insert", 1)
	})
	seqDoc := bsoncore.BuildDocument(nil, func(dst []byte) []byte {
		return bsoncore.AppendStringElement(dst, "x", "y")
	})

	m := Msg{
		BodyDoc: bodyDoc,
		Sequences: []DocumentSequence{
			{Identifier: "documents", Documents: []bsoncore.Document{seqDoc}},
		},
	}

	encoded := EncodeMsg(m, true)
	decoded, err := DecodeMsg(encoded)
	if err != nil {
		t.Fatalf("DecodeMsg failed: %v", err)
	}
	if !bytes.Equal(decoded.BodyDoc, bodyDoc) {
		t.Fatalf("body doc mismatch")
	}
	if len(decoded.Sequences) != 1 || decoded.Sequences[0].Identifier != "documents" {
		t.Fatalf("sequence mismatch: %+v", decoded.Sequences)
	}
	if len(decoded.Sequences[0].Documents) != 1 || !bytes.Equal(decoded.Sequences[0].Documents[0], seqDoc) {
		t.Fatalf("sequence documents mismatch")
	}
}

func TestMsgChecksumMismatchFailsClosed(t *testing.T) {
	bodyDoc := bsoncore.BuildDocument(nil, func(dst []byte) []byte {
		return bsoncore.AppendInt32Element(dst, "ok", 1)
	})
	encoded := EncodeMsg(Msg{BodyDoc: bodyDoc}, true)
	encoded[len(encoded)-1] ^= 0xFF // flip a byte in the checksum trailer

	if _, err := DecodeMsg(encoded); err == nil {
		t.Fatal("expected checksum mismatch to be rejected")
	}
}

func TestCompressDecompressRoundTrip(t *testing.T) {
	body := bytes.Repeat([]byte("the quick brown fox jumps over the lazy dog "), 10)

	for _, c := range []Compressor{NewSnappyCompressor(), NewZlibCompressor(0)} {
		op, compressed, ok, err := CompressMessage(OpMsg, body, c)
		if err != nil {
			t.Fatalf("%s: compress failed: %v", c.Name(), err)
		}
		if !ok || op != OpCompressed {
			t.Fatalf("%s: expected compression to apply", c.Name())
		}

		originalOp, decompressed, err := DecompressMessage(compressed, map[CompressorID]Compressor{c.ID(): c})
		if err != nil {
			t.Fatalf("%s: decompress failed: %v", c.Name(), err)
		}
		if originalOp != OpMsg {
			t.Fatalf("%s: unexpected original op-code %v", c.Name(), originalOp)
		}
		if !bytes.Equal(decompressed, body) {
			t.Fatalf("%s: round trip mismatch", c.Name())
		}
	}
}

func TestCompressSkipsSmallBodies(t *testing.T) {
	_, _, ok, err := CompressMessage(OpMsg, []byte("tiny"), NewSnappyCompressor())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Fatal("expected small body to be left uncompressed")
	}
}
