package driver

import (
	"context"
	"errors"

	"github.com/sealdb/driver/bsoncore"
	"github.com/sealdb/driver/session"
)

// BatchCursor is a plain (non-resumable) server-side cursor for find,
// aggregate, and listCollections-style replies: §4.9's retry applies to
// each individual command (the initial command and every getMore) but,
// unlike Cursor, there is no resume token and no transparent pipeline
// rebuild on cursor death. Grounded on the teacher's driver.BatchCursor
// (x/mongo/driver/batch_cursor.go), trimmed to this module's needs.
type BatchCursor struct {
	exec *Execution
	ns   string

	cursorID int64
	batch    []bsoncore.Document
	pos      int

	closed bool
}

// NewBatchCursor runs initialCmd through exec and wraps the resulting
// cursor reply.
func NewBatchCursor(ctx context.Context, exec *Execution, initialCmd bsoncore.Document) (*BatchCursor, error) {
	bc := &BatchCursor{exec: exec}
	reply, err := bc.runWithCommand(ctx, initialCmd)
	if err != nil {
		return nil, err
	}
	if err := bc.absorbReply(reply, true); err != nil {
		return nil, err
	}
	return bc, nil
}

func (bc *BatchCursor) runWithCommand(ctx context.Context, cmd bsoncore.Document) (bsoncore.Document, error) {
	prevBuild := bc.exec.Build
	bc.exec.Build = fixedCommand(cmd)
	defer func() { bc.exec.Build = prevBuild }()
	return bc.exec.Run(ctx)
}

func (bc *BatchCursor) absorbReply(reply bsoncore.Document, initial bool) error {
	cursorVal, ok := reply.Lookup("cursor")
	if !ok {
		return errors.New("driver: command reply missing cursor field")
	}
	cursorDoc, ok := cursorVal.DocumentOK()
	if !ok {
		return errors.New("driver: cursor field is not a document")
	}

	if id, ok := cursorDoc.Lookup("id"); ok {
		bc.cursorID, _ = id.AsInt64()
	}
	if ns, ok := cursorDoc.Lookup("ns"); ok {
		bc.ns, _ = ns.StringValueOK()
	}

	batchKey := "nextBatch"
	if initial {
		batchKey = "firstBatch"
	}
	bc.batch = nil
	bc.pos = 0
	bv, ok := cursorDoc.Lookup(batchKey)
	if !ok {
		return nil
	}
	arr, ok := bv.ArrayOK()
	if !ok {
		return nil
	}
	values, err := arr.Values()
	if err != nil {
		return err
	}
	for _, v := range values {
		if doc, ok := v.DocumentOK(); ok {
			bc.batch = append(bc.batch, doc)
		}
	}
	return nil
}

// Next advances to the next document, issuing a getMore when the current
// batch is exhausted. Returns false at end of cursor or on error; check Err
// via the second return value's absence is not applicable here, so callers
// inspect the returned error directly.
func (bc *BatchCursor) Next(ctx context.Context) (bool, error) {
	if bc.closed {
		return false, nil
	}
	if bc.pos < len(bc.batch) {
		bc.pos++
		return true, nil
	}
	if bc.cursorID == 0 {
		return false, nil
	}

	cmd := bsoncore.BuildDocument(nil, func(dst []byte) []byte {
		dst = bsoncore.AppendInt64Element(dst, "getMore", bc.cursorID)
		return bsoncore.AppendStringElement(dst, "collection", bc.ns)
	})
	reply, err := bc.runWithCommand(ctx, cmd)
	if err != nil {
		return false, err
	}
	if err := bc.absorbReply(reply, false); err != nil {
		return false, err
	}
	if bc.pos < len(bc.batch) {
		bc.pos++
		return true, nil
	}
	return false, nil
}

// Current returns the document Next most recently advanced to.
func (bc *BatchCursor) Current() bsoncore.Document {
	if bc.pos == 0 || bc.pos > len(bc.batch) {
		return nil
	}
	return bc.batch[bc.pos-1]
}

// Close kills the server-side cursor, if still open.
func (bc *BatchCursor) Close(ctx context.Context) error {
	if bc.closed {
		return nil
	}
	bc.closed = true
	if bc.cursorID == 0 {
		return nil
	}
	cmd := bsoncore.BuildDocument(nil, func(dst []byte) []byte {
		dst = bsoncore.AppendStringElement(dst, "killCursors", bc.ns)
		ids := bsoncore.BuildDocument(nil, func(arr []byte) []byte {
			return bsoncore.AppendInt64Element(arr, "0", bc.cursorID)
		})
		return bsoncore.AppendArrayElement(dst, "cursors", ids)
	})
	_, err := bc.runWithCommand(ctx, cmd)
	return err
}

// fixedCommand returns a CommandBuilder that ignores the session/clock
// arguments and always returns cmd, used when a cursor's follow-up commands
// (getMore, killCursors) don't vary between an attempt and its retry.
func fixedCommand(cmd bsoncore.Document) CommandBuilder {
	return func(_ *session.ServerSession, _ *session.ClusterClock) (bsoncore.Document, error) {
		return cmd, nil
	}
}
