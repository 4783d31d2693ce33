// Package operation builds the wire commands §4.13's mongo facade needs
// (insert, find, update, delete, aggregate, countDocuments) and executes
// them through the driver package's retry/resume engine.
//
// Each type follows the teacher's operationgen fluent-builder shape (see
// x/mongo/driver/operation/drop_database.go, list_collections.go): a
// NewX constructor, nil-receiver-safe fluent setters, a private command
// builder, and an Execute/Result pair. Where the teacher wires its builders
// into driver.Operation/driver.Server, these wire into this module's
// driver.Execution and driver.BatchCursor instead.
package operation

import (
	"context"
	"fmt"

	"github.com/sealdb/driver/bsoncore"
	"github.com/sealdb/driver/description"
	"github.com/sealdb/driver/driver"
	"github.com/sealdb/driver/event"
	"github.com/sealdb/driver/session"
)

// addSessionFields appends the lsid and, for a retryable write, the
// txnNumber field to dst, plus the gossiped $clusterTime if clock has
// observed one. Grounded on the teacher's operation.Operation.createLegacyHandshakeWireMessage
// and its per-operation session-embedding helpers, collapsed into one
// shared function since this module's builders don't need per-operation
// codegen duplication.
func addSessionFields(dst []byte, sess *session.ServerSession, clock *session.ClusterClock, includeTxnNumber bool) []byte {
	if sess != nil {
		dst = bsoncore.AppendDocumentElement(dst, "lsid", sess.ID())
		if includeTxnNumber {
			dst = bsoncore.AppendInt64Element(dst, "txnNumber", sess.TxnNumber())
		}
	}
	if clock != nil {
		if gossip := clock.GossipDocument(); gossip != nil {
			dst = bsoncore.AppendDocumentElement(dst, "$clusterTime", gossip)
		}
	}
	return dst
}

// buildDocumentArray renders docs as a BSON array keyed "0", "1", ... .
func buildDocumentArray(docs []bsoncore.Document) bsoncore.Array {
	return bsoncore.Array(bsoncore.BuildDocument(nil, func(dst []byte) []byte {
		for i, doc := range docs {
			dst = bsoncore.AppendDocumentElement(dst, itoa(i), doc)
		}
		return dst
	}))
}

func itoa(i int) string {
	if i == 0 {
		return "0"
	}
	digits := [20]byte{}
	pos := len(digits)
	for i > 0 {
		pos--
		digits[pos] = byte('0' + i%10)
		i /= 10
	}
	return string(digits[pos:])
}

// run is the shared Execute body for every non-cursor-returning operation in
// this package: build an Execution around buildCmd and hand back its raw
// command reply. Grounded on the teacher's driver.Operation{...}.Execute(ctx,
// nil) call at the end of every x/mongo/driver/operation/*.go file.
func run(
	ctx context.Context,
	dep driver.Deployment,
	db string,
	intent description.SelectionIntent,
	opType driver.OperationType,
	sessions *session.Pool,
	clock *session.ClusterClock,
	buildCmd driver.CommandBuilder,
	monitor *event.Registry,
) (bsoncore.Document, error) {
	exec := &driver.Execution{
		Deployment: dep,
		Database:   db,
		Intent:     intent,
		Type:       opType,
		Sessions:   sessions,
		Clock:      clock,
		Build:      buildCmd,
		Monitor:    monitor,
	}
	reply, err := exec.Run(ctx)
	if err != nil {
		return nil, fmt.Errorf("operation: %w", err)
	}
	return reply, nil
}
