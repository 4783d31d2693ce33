package operation

import (
	"context"
	"testing"

	"github.com/sealdb/driver/bsoncore"
)

func TestUpdateCommandShape(t *testing.T) {
	filter := bsoncore.BuildDocument(nil, func(d []byte) []byte {
		return bsoncore.AppendStringElement(d, "name", "ada")
	})
	update := bsoncore.BuildDocument(nil, func(d []byte) []byte {
		set := bsoncore.BuildDocument(nil, func(s []byte) []byte {
			return bsoncore.AppendInt32Element(s, "age", 31)
		})
		return bsoncore.AppendDocumentElement(d, "$set", set)
	})
	upd := NewUpdate(UpdateStatement{Filter: filter, Update: update, Upsert: true}).Collection("users")

	cmd, err := upd.command(nil, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	coll, ok := cmd.Lookup("update")
	if !ok || mustString(t, coll) != "users" {
		t.Fatal("expected update:users")
	}
	updates, ok := cmd.Lookup("updates")
	if !ok {
		t.Fatal("expected an updates field")
	}
	arr, ok := updates.ArrayOK()
	if !ok {
		t.Fatal("expected updates to be an array")
	}
	values, err := arr.Values()
	if err != nil || len(values) != 1 {
		t.Fatalf("expected exactly one update statement, err=%v", err)
	}
}

func TestUpdateExecuteRunsRetryableWrite(t *testing.T) {
	conn := &fakeConn{reply: okReply()}
	dep := &fakeDeployment{server: &fakeServer{conn: conn}}

	filter := bsoncore.BuildDocument(nil, func(d []byte) []byte { return d })
	update := bsoncore.BuildDocument(nil, func(d []byte) []byte { return d })
	upd := NewUpdate(UpdateStatement{Filter: filter, Update: update}).
		Collection("users").Database("db").Deployment(dep)

	if err := upd.Execute(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if upd.Result() == nil {
		t.Fatal("expected a result after Execute")
	}
}

func mustString(t *testing.T, v bsoncore.Value) string {
	t.Helper()
	s, ok := v.StringValueOK()
	if !ok {
		t.Fatal("expected a string value")
	}
	return s
}
