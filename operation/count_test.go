package operation

import (
	"context"
	"testing"

	"github.com/sealdb/driver/bsoncore"
)

func countGroupReply(n int64) bsoncore.Document {
	resultDoc := bsoncore.BuildDocument(nil, func(d []byte) []byte {
		d = bsoncore.AppendNullElement(d, "_id")
		return bsoncore.AppendInt64Element(d, "n", n)
	})
	return cursorReply(0, "db.coll", "firstBatch", resultDoc)
}

func TestCountReadsGroupResult(t *testing.T) {
	conn := &fakeConn{reply: countGroupReply(7)}
	dep := &fakeDeployment{server: &fakeServer{conn: conn}}

	filter := bsoncore.BuildDocument(nil, func(d []byte) []byte {
		return bsoncore.AppendStringElement(d, "status", "active")
	})
	c := NewCount(filter).Collection("users").Database("db").Deployment(dep)

	if err := c.Execute(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.Result() != 7 {
		t.Fatalf("expected count 7, got %d", c.Result())
	}
}

func TestCountEmptyResultIsZero(t *testing.T) {
	conn := &fakeConn{reply: cursorReply(0, "db.coll", "firstBatch")}
	dep := &fakeDeployment{server: &fakeServer{conn: conn}}

	c := NewCount(nil).Collection("users").Database("db").Deployment(dep)
	if err := c.Execute(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.Result() != 0 {
		t.Fatalf("expected count 0 for an empty result, got %d", c.Result())
	}
}

func TestCountPipelineIncludesMatchSkipLimitGroup(t *testing.T) {
	filter := bsoncore.BuildDocument(nil, func(d []byte) []byte {
		return bsoncore.AppendStringElement(d, "status", "active")
	})
	c := NewCount(filter).Skip(5).Limit(20)

	values, err := c.pipeline().Values()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(values) != 4 {
		t.Fatalf("expected 4 pipeline stages ($match, $skip, $limit, $group), got %d", len(values))
	}
	first, ok := values[0].DocumentOK()
	if !ok {
		t.Fatal("expected the first stage to be a document")
	}
	if _, ok := first.Lookup("$match"); !ok {
		t.Fatal("expected the first stage to be $match")
	}
}
