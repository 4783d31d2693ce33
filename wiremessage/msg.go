package wiremessage

import (
	"encoding/binary"
	"hash/crc32"

	"github.com/sealdb/driver/bsoncore"
)

// DocumentSequence is an OP_MSG section kind 1: a named sequence of
// documents, used for bulk write payloads (e.g. the "documents" identifier
// of an insert command) so they don't have to be nested inside the main
// command document.
type DocumentSequence struct {
	Identifier string
	Documents  []bsoncore.Document
}

// Msg is a parsed OP_MSG body.
type Msg struct {
	FlagBits  uint32
	BodyDoc   bsoncore.Document
	Sequences []DocumentSequence
	// Checksum is populated on decode when FlagChecksumPresent is set;
	// EncodeMsg ignores it and computes the checksum itself.
	Checksum uint32
}

// EncodeMsg serializes an OP_MSG body (the section 0 body document plus any
// section 1 document sequences). If withChecksum is true, a trailing CRC-32C
// checksum is appended and FlagChecksumPresent is set in the returned bytes.
func EncodeMsg(m Msg, withChecksum bool) []byte {
	flags := m.FlagBits
	if withChecksum {
		flags |= FlagChecksumPresent
	}

	buf := make([]byte, 0, len(m.BodyDoc)+64)
	buf = appendUint32(buf, flags)

	buf = append(buf, SectionKindBody)
	buf = append(buf, m.BodyDoc...)

	for _, seq := range m.Sequences {
		buf = append(buf, SectionKindDocumentSequence)
		idx := len(buf)
		buf = appendUint32(buf, 0) // placeholder length
		buf = append(buf, seq.Identifier...)
		buf = append(buf, 0x00)
		for _, d := range seq.Documents {
			buf = append(buf, d...)
		}
		seqLen := uint32(len(buf) - idx)
		binary.LittleEndian.PutUint32(buf[idx:idx+4], seqLen)
	}

	if withChecksum {
		sum := crc32.Checksum(buf, crc32.MakeTable(crc32.Castagnoli))
		buf = appendUint32(buf, sum)
	}

	return buf
}

// DecodeMsg parses an OP_MSG body produced by EncodeMsg (or a compliant
// server). It validates the CRC-32C checksum when FlagChecksumPresent is
// set, failing closed on mismatch per §4.1.
func DecodeMsg(body []byte) (Msg, error) {
	if len(body) < 4 {
		return Msg{}, &MalformedFrameError{Reason: "OP_MSG body shorter than flag bits"}
	}
	flags := binary.LittleEndian.Uint32(body[0:4])
	rest := body[4:]

	if flags&FlagChecksumPresent != 0 {
		if len(rest) < 4 {
			return Msg{}, &MalformedFrameError{Reason: "OP_MSG missing checksum trailer"}
		}
		payload := body[:len(body)-4]
		wantSum := binary.LittleEndian.Uint32(body[len(body)-4:])
		gotSum := crc32.Checksum(payload, crc32.MakeTable(crc32.Castagnoli))
		if wantSum != gotSum {
			return Msg{}, &MalformedFrameError{Reason: "OP_MSG checksum mismatch"}
		}
		rest = rest[:len(rest)-4]
	}

	m := Msg{FlagBits: flags}
	for len(rest) > 0 {
		kind := rest[0]
		rest = rest[1:]
		switch kind {
		case SectionKindBody:
			l, _, ok := bsoncore.ReadLength(rest)
			if !ok || int(l) > len(rest) {
				return Msg{}, &MalformedFrameError{Reason: "truncated section 0 body"}
			}
			m.BodyDoc = bsoncore.Document(rest[:l])
			rest = rest[l:]
		case SectionKindDocumentSequence:
			l, _, ok := bsoncore.ReadLength(rest)
			if !ok || int(l) > len(rest) || l < 5 {
				return Msg{}, &MalformedFrameError{Reason: "truncated section 1 sequence"}
			}
			seqBytes := rest[4:l]
			rest = rest[l:]

			nullIdx := indexByte(seqBytes, 0x00)
			if nullIdx < 0 {
				return Msg{}, &MalformedFrameError{Reason: "section 1 identifier missing terminator"}
			}
			identifier := string(seqBytes[:nullIdx])
			docBytes := seqBytes[nullIdx+1:]

			var docs []bsoncore.Document
			for len(docBytes) > 0 {
				dl, _, ok := bsoncore.ReadLength(docBytes)
				if !ok || int(dl) > len(docBytes) {
					return Msg{}, &MalformedFrameError{Reason: "truncated document in section 1"}
				}
				docs = append(docs, bsoncore.Document(docBytes[:dl]))
				docBytes = docBytes[dl:]
			}
			m.Sequences = append(m.Sequences, DocumentSequence{Identifier: identifier, Documents: docs})
		default:
			return Msg{}, &MalformedFrameError{Reason: "unknown OP_MSG section kind"}
		}
	}

	if flags&FlagChecksumPresent != 0 {
		m.Checksum = binary.LittleEndian.Uint32(body[len(body)-4:])
	}
	return m, nil
}

func appendUint32(dst []byte, v uint32) []byte {
	buf := make([]byte, 4)
	binary.LittleEndian.PutUint32(buf, v)
	return append(dst, buf...)
}

func indexByte(b []byte, c byte) int {
	for i, v := range b {
		if v == c {
			return i
		}
	}
	return -1
}
