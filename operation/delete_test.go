package operation

import (
	"context"
	"testing"

	"github.com/sealdb/driver/bsoncore"
)

func TestDeleteCommandShape(t *testing.T) {
	filter := bsoncore.BuildDocument(nil, func(d []byte) []byte {
		return bsoncore.AppendStringElement(d, "name", "ada")
	})
	del := NewDelete(DeleteStatement{Filter: filter, Limit: 1}).Collection("users")

	cmd, err := del.command(nil, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := cmd.Lookup("delete"); !ok {
		t.Fatal("expected a delete field")
	}
	deletes, ok := cmd.Lookup("deletes")
	if !ok {
		t.Fatal("expected a deletes field")
	}
	arr, ok := deletes.ArrayOK()
	if !ok {
		t.Fatal("expected deletes to be an array")
	}
	values, err := arr.Values()
	if err != nil || len(values) != 1 {
		t.Fatalf("expected exactly one delete statement, err=%v", err)
	}
	stmt, ok := values[0].DocumentOK()
	if !ok {
		t.Fatal("expected the delete statement to be a document")
	}
	limit, ok := stmt.Lookup("limit")
	if !ok {
		t.Fatal("expected a limit field on the delete statement")
	}
	if v, _ := limit.AsInt64(); v != 1 {
		t.Fatalf("expected limit 1, got %d", v)
	}
}

func TestDeleteExecuteRunsCommandOnce(t *testing.T) {
	conn := &fakeConn{reply: okReply()}
	dep := &fakeDeployment{server: &fakeServer{conn: conn}}

	filter := bsoncore.BuildDocument(nil, func(d []byte) []byte { return d })
	del := NewDelete(DeleteStatement{Filter: filter}).Collection("users").Database("db").Deployment(dep)

	if err := del.Execute(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(conn.runs) != 1 {
		t.Fatalf("expected exactly one command run, got %d", len(conn.runs))
	}
}
