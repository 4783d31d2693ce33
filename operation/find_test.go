package operation

import (
	"context"
	"testing"

	"github.com/sealdb/driver/bsoncore"
)

func cursorReply(id int64, ns string, batchKey string, docs ...bsoncore.Document) bsoncore.Document {
	return bsoncore.BuildDocument(nil, func(dst []byte) []byte {
		cursorDoc := bsoncore.BuildDocument(nil, func(d []byte) []byte {
			d = bsoncore.AppendInt64Element(d, "id", id)
			d = bsoncore.AppendStringElement(d, "ns", ns)
			batch := bsoncore.BuildDocument(nil, func(arr []byte) []byte {
				for i, doc := range docs {
					arr = bsoncore.AppendDocumentElement(arr, itoa(i), doc)
				}
				return arr
			})
			d = bsoncore.AppendArrayElement(d, batchKey, batch)
			return d
		})
		dst = bsoncore.AppendDoubleElement(dst, "ok", 1)
		return bsoncore.AppendDocumentElement(dst, "cursor", cursorDoc)
	})
}

func TestFindOpensCursorOverFirstBatch(t *testing.T) {
	doc := bsoncore.BuildDocument(nil, func(d []byte) []byte {
		return bsoncore.AppendInt32Element(d, "x", 1)
	})
	conn := &fakeConn{reply: cursorReply(0, "db.coll", "firstBatch", doc)}
	dep := &fakeDeployment{server: &fakeServer{conn: conn}}

	f := NewFind(nil).Collection("coll").Database("db").Deployment(dep)
	if err := f.Execute(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	cursor := f.Result()
	ok, err := cursor.Next(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ok {
		t.Fatal("expected a document in the first batch")
	}
	if cursor.Current() == nil {
		t.Fatal("expected Current to return the delivered document")
	}
}

func TestFindCommandIncludesFilterAndLimit(t *testing.T) {
	filter := bsoncore.BuildDocument(nil, func(d []byte) []byte {
		return bsoncore.AppendStringElement(d, "name", "ada")
	})
	f := NewFind(filter).Collection("users").Limit(10)

	cmd, err := f.command(nil, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := cmd.Lookup("filter"); !ok {
		t.Fatal("expected a filter field")
	}
	limit, ok := cmd.Lookup("limit")
	if !ok {
		t.Fatal("expected a limit field")
	}
	if v, _ := limit.AsInt64(); v != 10 {
		t.Fatalf("expected limit 10, got %d", v)
	}
}
