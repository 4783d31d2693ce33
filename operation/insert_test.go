package operation

import (
	"context"
	"testing"

	"github.com/sealdb/driver/address"
	"github.com/sealdb/driver/bsoncore"
	"github.com/sealdb/driver/connection"
	"github.com/sealdb/driver/description"
	"github.com/sealdb/driver/driver"
	"github.com/sealdb/driver/wiremessage"
)

// fakeServer hands out the same connection on every checkout; a single
// fakeDeployment always selects it. Grounded on the driver package's own
// fakeConnection/fakeDeployment test fakes (driver/execute_test.go).
type fakeServer struct{ conn connection.Connection }

func (s *fakeServer) Checkout(context.Context) (connection.Connection, error) { return s.conn, nil }
func (s *fakeServer) Checkin(connection.Connection)                          {}

type fakeDeployment struct{ server *fakeServer }

func (d *fakeDeployment) SelectServer(context.Context, description.SelectionIntent) (driver.SelectedServer, error) {
	return d.server, nil
}

type fakeConn struct {
	reply bsoncore.Document
	err   error
	runs  []bsoncore.Document
}

func (c *fakeConn) WriteWireMessage(context.Context, int32, int32, wiremessage.OpCode, []byte, string) error {
	return nil
}
func (c *fakeConn) ReadWireMessage(context.Context) (wiremessage.Header, []byte, error) {
	return wiremessage.Header{}, nil, nil
}
func (c *fakeConn) RunCommand(_ context.Context, _ string, cmd bsoncore.Document) (bsoncore.Document, error) {
	c.runs = append(c.runs, cmd)
	return c.reply, c.err
}
func (c *fakeConn) Close() error                      { return nil }
func (c *fakeConn) Expired() bool                     { return false }
func (c *fakeConn) Alive() bool                       { return true }
func (c *fakeConn) ID() string                        { return "fake" }
func (c *fakeConn) Address() address.Address          { return "a:27017" }
func (c *fakeConn) Description() description.Server   { return description.Server{} }
func (c *fakeConn) SetDescription(description.Server) {}

func okReply() bsoncore.Document {
	return bsoncore.BuildDocument(nil, func(dst []byte) []byte {
		return bsoncore.AppendDoubleElement(dst, "ok", 1)
	})
}

func TestInsertCommandShape(t *testing.T) {
	doc := bsoncore.BuildDocument(nil, func(d []byte) []byte {
		return bsoncore.AppendStringElement(d, "name", "ada")
	})
	ins := NewInsert(doc).Collection("users")

	cmd, err := ins.command(nil, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	coll, ok := cmd.Lookup("insert")
	if !ok {
		t.Fatal("expected an insert field")
	}
	if s, _ := coll.StringValueOK(); s != "users" {
		t.Fatalf("expected insert:users, got %q", s)
	}
	if _, ok := cmd.Lookup("documents"); !ok {
		t.Fatal("expected a documents field")
	}
}

func TestInsertExecuteReturnsReply(t *testing.T) {
	conn := &fakeConn{reply: okReply()}
	dep := &fakeDeployment{server: &fakeServer{conn: conn}}

	doc := bsoncore.BuildDocument(nil, func(d []byte) []byte {
		return bsoncore.AppendInt32Element(d, "x", 1)
	})
	ins := NewInsert(doc).Collection("things").Database("db").Deployment(dep)

	if err := ins.Execute(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ins.Result() == nil {
		t.Fatal("expected a result after Execute")
	}
	if len(conn.runs) != 1 {
		t.Fatalf("expected exactly one command run, got %d", len(conn.runs))
	}
}
