package driver

import (
	"context"
	"errors"
	"testing"

	"github.com/sealdb/driver/address"
	"github.com/sealdb/driver/bsoncore"
	"github.com/sealdb/driver/connection"
	"github.com/sealdb/driver/description"
	"github.com/sealdb/driver/session"
	"github.com/sealdb/driver/wiremessage"
)

// fakeConnection implements connection.Connection with only RunCommand
// exercised; the rest satisfy the interface with no-ops.
type fakeConnection struct {
	reply bsoncore.Document
	err   error
	runs  []bsoncore.Document
}

func (c *fakeConnection) WriteWireMessage(context.Context, int32, int32, wiremessage.OpCode, []byte, string) error {
	return nil
}
func (c *fakeConnection) ReadWireMessage(context.Context) (wiremessage.Header, []byte, error) {
	return wiremessage.Header{}, nil, nil
}
func (c *fakeConnection) RunCommand(_ context.Context, _ string, cmd bsoncore.Document) (bsoncore.Document, error) {
	c.runs = append(c.runs, cmd)
	return c.reply, c.err
}
func (c *fakeConnection) Close() error                     { return nil }
func (c *fakeConnection) Expired() bool                    { return false }
func (c *fakeConnection) Alive() bool                      { return true }
func (c *fakeConnection) ID() string                       { return "fake" }
func (c *fakeConnection) Address() address.Address         { return "a:27017" }
func (c *fakeConnection) Description() description.Server  { return description.Server{} }
func (c *fakeConnection) SetDescription(description.Server) {}

// fakeServer hands out the same connection (real or scripted) every
// Checkout.
type fakeServer struct {
	conn connection.Connection
}

func (s *fakeServer) Checkout(context.Context) (connection.Connection, error) { return s.conn, nil }
func (s *fakeServer) Checkin(connection.Connection)                          {}

type fakeDeployment struct {
	servers []*fakeServer
	idx     int
	err     error
}

func (d *fakeDeployment) SelectServer(context.Context, description.SelectionIntent) (SelectedServer, error) {
	if d.err != nil {
		return nil, d.err
	}
	s := d.servers[d.idx]
	if d.idx < len(d.servers)-1 {
		d.idx++
	}
	return s, nil
}

func okReply() bsoncore.Document {
	return bsoncore.BuildDocument(nil, func(dst []byte) []byte {
		return bsoncore.AppendDoubleElement(dst, "ok", 1)
	})
}

func TestExecutionRunSucceedsFirstTry(t *testing.T) {
	conn := &fakeConnection{reply: okReply()}
	dep := &fakeDeployment{servers: []*fakeServer{{conn: conn}}}

	exec := &Execution{
		Deployment: dep,
		Database:   "test",
		Type:       ReadOperation,
		Build: func(*session.ServerSession, *session.ClusterClock) (bsoncore.Document, error) {
			return bsoncore.BuildDocument(nil, func(dst []byte) []byte {
				return bsoncore.AppendInt32Element(dst, "ping", 1)
			}), nil
		},
	}

	if _, err := exec.Run(context.Background()); err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if len(conn.runs) != 1 {
		t.Fatalf("expected exactly one command to run, got %d", len(conn.runs))
	}
}

func TestExecutionRunRetriesOnceOnRetryableError(t *testing.T) {
	failing := &fakeConnection{err: &fakeNetworkError{disconnected: true}}
	succeeding := &fakeConnection{reply: okReply()}
	dep := &fakeDeployment{servers: []*fakeServer{{conn: failing}, {conn: succeeding}}}

	exec := &Execution{
		Deployment: dep,
		Database:   "test",
		Type:       ReadOperation,
		Build: func(*session.ServerSession, *session.ClusterClock) (bsoncore.Document, error) {
			return bsoncore.BuildDocument(nil, func(dst []byte) []byte {
				return bsoncore.AppendInt32Element(dst, "ping", 1)
			}), nil
		},
	}

	if _, err := exec.Run(context.Background()); err != nil {
		t.Fatalf("expected the retry to succeed, got %v", err)
	}
	if len(succeeding.runs) != 1 {
		t.Fatalf("expected the retry to reach the second server exactly once, got %d", len(succeeding.runs))
	}
}

func TestExecutionRunDoesNotRetryFatalErrors(t *testing.T) {
	conn := &fakeConnection{reply: buildReply(func(dst []byte) []byte {
		dst = bsoncore.AppendDoubleElement(dst, "ok", 0)
		dst = bsoncore.AppendStringElement(dst, "errmsg", "auth failed")
		dst = bsoncore.AppendStringElement(dst, "codeName", "AuthenticationFailed")
		return dst
	})}
	dep := &fakeDeployment{servers: []*fakeServer{{conn: conn}}}

	exec := &Execution{
		Deployment: dep,
		Database:   "test",
		Type:       ReadOperation,
		Build: func(*session.ServerSession, *session.ClusterClock) (bsoncore.Document, error) {
			return okReply(), nil
		},
	}

	if _, err := exec.Run(context.Background()); err == nil {
		t.Fatal("expected a fatal error to surface")
	}
	if len(conn.runs) != 1 {
		t.Fatalf("expected no retry for a fatal error, got %d attempts", len(conn.runs))
	}
}

func TestExecutionRunWriteReusesSameTxnNumberOnRetry(t *testing.T) {
	failing := &fakeConnection{err: &fakeNetworkError{disconnected: true}}
	succeeding := &fakeConnection{reply: okReply()}
	dep := &fakeDeployment{servers: []*fakeServer{{conn: failing}, {conn: succeeding}}}

	pool := session.NewPool(30)
	var sawTxnNumbers []int64

	exec := &Execution{
		Deployment: dep,
		Database:   "test",
		Type:       WriteOperation,
		Sessions:   pool,
		Build: func(sess *session.ServerSession, _ *session.ClusterClock) (bsoncore.Document, error) {
			sawTxnNumbers = append(sawTxnNumbers, sess.TxnNumber())
			return bsoncore.BuildDocument(nil, func(dst []byte) []byte {
				return bsoncore.AppendInt32Element(dst, "insert", 1)
			}), nil
		},
	}

	if _, err := exec.Run(context.Background()); err != nil {
		t.Fatalf("expected the retry to succeed, got %v", err)
	}
	if len(sawTxnNumbers) != 2 || sawTxnNumbers[0] != sawTxnNumbers[1] {
		t.Fatalf("expected both attempts to use the same txnNumber, got %v", sawTxnNumbers)
	}
}

func TestExecutionAdvancesClusterClockFromReply(t *testing.T) {
	reply := buildReply(func(dst []byte) []byte {
		dst = bsoncore.AppendDoubleElement(dst, "ok", 1)
		ct := bsoncore.BuildDocument(nil, func(d []byte) []byte {
			return bsoncore.AppendTimestampElement(d, "clusterTime", 500, 1)
		})
		return bsoncore.AppendDocumentElement(dst, "$clusterTime", ct)
	})
	conn := &fakeConnection{reply: reply}
	dep := &fakeDeployment{servers: []*fakeServer{{conn: conn}}}

	var clock session.ClusterClock
	exec := &Execution{
		Deployment: dep,
		Database:   "test",
		Type:       ReadOperation,
		Clock:      &clock,
		Build: func(*session.ServerSession, *session.ClusterClock) (bsoncore.Document, error) {
			return okReply(), nil
		},
	}

	if _, err := exec.Run(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if clock.GossipDocument() == nil {
		t.Fatal("expected the cluster clock to have observed the reply's $clusterTime")
	}
}

var errSelectServer = errors.New("no server available")

func TestExecutionRunPropagatesSelectServerError(t *testing.T) {
	dep := &fakeDeployment{err: errSelectServer}
	exec := &Execution{
		Deployment: dep,
		Database:   "test",
		Type:       ReadOperation,
		Build: func(*session.ServerSession, *session.ClusterClock) (bsoncore.Document, error) {
			return okReply(), nil
		},
	}
	if _, err := exec.Run(context.Background()); err == nil {
		t.Fatal("expected a server selection error to surface")
	}
}
