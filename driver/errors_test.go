package driver

import (
	"testing"

	"github.com/sealdb/driver/bsoncore"
)

func buildReply(fn func(dst []byte) []byte) bsoncore.Document {
	return bsoncore.BuildDocument(nil, fn)
}

func TestExtractErrorSuccess(t *testing.T) {
	reply := buildReply(func(dst []byte) []byte {
		return bsoncore.AppendDoubleElement(dst, "ok", 1)
	})
	if err := extractError(reply); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
}

func TestExtractErrorCommandFailure(t *testing.T) {
	reply := buildReply(func(dst []byte) []byte {
		dst = bsoncore.AppendDoubleElement(dst, "ok", 0)
		dst = bsoncore.AppendStringElement(dst, "errmsg", "not master")
		dst = bsoncore.AppendStringElement(dst, "codeName", "NotMaster")
		dst = bsoncore.AppendInt32Element(dst, "code", 10107)
		return dst
	})
	err := extractError(reply)
	ce, ok := err.(CommandError)
	if !ok {
		t.Fatalf("expected a CommandError, got %T", err)
	}
	if ce.Name != "NotMaster" || ce.Code != 10107 || ce.Message != "not master" {
		t.Fatalf("unexpected CommandError contents: %+v", ce)
	}
}

func TestExtractErrorWriteErrors(t *testing.T) {
	reply := buildReply(func(dst []byte) []byte {
		dst = bsoncore.AppendDoubleElement(dst, "ok", 1)
		writeErrs := bsoncore.BuildDocument(nil, func(arr []byte) []byte {
			we := bsoncore.BuildDocument(nil, func(d []byte) []byte {
				d = bsoncore.AppendInt32Element(d, "index", 0)
				d = bsoncore.AppendInt32Element(d, "code", 11000)
				d = bsoncore.AppendStringElement(d, "errmsg", "duplicate key")
				return d
			})
			return bsoncore.AppendDocumentElement(arr, "0", we)
		})
		return bsoncore.AppendArrayElement(dst, "writeErrors", writeErrs)
	})
	err := extractError(reply)
	wce, ok := err.(WriteCommandError)
	if !ok {
		t.Fatalf("expected a WriteCommandError, got %T", err)
	}
	if len(wce.WriteErrors) != 1 || wce.WriteErrors[0].Code != 11000 {
		t.Fatalf("unexpected write errors: %+v", wce.WriteErrors)
	}
}

func TestCommandErrorHasLabel(t *testing.T) {
	ce := CommandError{Labels: []string{"TransientTransactionError"}}
	if !ce.HasLabel("TransientTransactionError") {
		t.Fatal("expected HasLabel to find the label")
	}
	if ce.HasLabel("RetryableWriteError") {
		t.Fatal("expected HasLabel to miss an absent label")
	}
}
