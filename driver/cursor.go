package driver

import (
	"context"
	"errors"
	"fmt"

	"github.com/sealdb/driver/bsoncore"
)

// ErrMissingResumeToken indicates that a change stream notification from
// the server did not contain a resume token (the "_id" field), which
// means the stream can no longer resume if the cursor later dies.
var ErrMissingResumeToken = errors.New("driver: change stream document is missing its resume token")

// errCursorKilledCodes are command error codes that tell a change stream to
// rebuild its aggregate pipeline and resume rather than surface the error,
// grounded on the teacher's changeStream.Next code list (interrupted,
// capped-position-lost, cursor-killed).
var errCursorKilledCodes = map[int32]bool{
	11601: true, // interrupted
	136:   true, // capped position lost
	237:   true, // cursor killed
}

// Cursor is a resumable change-stream cursor (§4.9): it rebuilds the
// underlying aggregate with resumeAfter/startAfter whenever a resumable
// error or cursor death is seen, and hands the consumer a resume token
// for every batch it delivers, including empty ones.
type Cursor struct {
	exec       *Execution
	collection string
	stages     bsoncore.Array // pipeline stages after $changeStream, fixed across resumes
	batchSize  int32

	cursorID int64
	ns       string

	batch []bsoncore.Document
	pos   int

	resumeToken bsoncore.Document
	startAfter  bool // use startAfter instead of resumeAfter for the next (re)build

	err    error
	closed bool
}

// NewCursor opens a change stream against collection (empty for a
// database- or client-level stream, in which case the aggregate runs
// against the "1" pseudo-collection) using the given pipeline stages,
// which must NOT include the leading $changeStream stage; Cursor prepends
// its own, filled in with resumeAfter/startAfter as it resumes. resumeDoc
// is nil for a fresh stream with no starting point; when non-nil,
// useStartAfter selects startAfter over resumeAfter for this first open;
// every later rebuild uses resumeAfter, matching the teacher's own
// changeStream.replaceOptions precedence (startAfter only governs the very
// first open).
func NewCursor(ctx context.Context, exec *Execution, collection string, stages bsoncore.Array, batchSize int32, resumeDoc bsoncore.Document, useStartAfter bool) (*Cursor, error) {
	c := &Cursor{
		exec:       exec,
		collection: collection,
		stages:     stages,
		batchSize:  batchSize,
	}
	if err := c.open(ctx, resumeDoc, useStartAfter); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Cursor) changeStreamStage(resumeDoc bsoncore.Document) bsoncore.Document {
	return bsoncore.BuildDocument(nil, func(dst []byte) []byte {
		opts := bsoncore.BuildDocument(nil, func(d []byte) []byte {
			if resumeDoc != nil {
				key := "resumeAfter"
				if c.startAfter {
					key = "startAfter"
				}
				d = bsoncore.AppendDocumentElement(d, key, resumeDoc)
			}
			return d
		})
		return bsoncore.AppendDocumentElement(dst, "$changeStream", opts)
	})
}

func (c *Cursor) aggregateCommand(resumeDoc bsoncore.Document) bsoncore.Document {
	target := c.collection
	changeStreamStage := c.changeStreamStage(resumeDoc)

	pipeline := bsoncore.BuildDocument(nil, func(arr []byte) []byte {
		arr = bsoncore.AppendDocumentElement(arr, "0", changeStreamStage)
		if len(c.stages) == 0 {
			return arr
		}
		values, err := c.stages.Values()
		if err != nil {
			return arr
		}
		for i, v := range values {
			if doc, ok := v.DocumentOK(); ok {
				arr = bsoncore.AppendDocumentElement(arr, fmt.Sprintf("%d", i+1), doc)
			}
		}
		return arr
	})

	return bsoncore.BuildDocument(nil, func(dst []byte) []byte {
		if target == "" {
			dst = bsoncore.AppendInt32Element(dst, "aggregate", 1)
		} else {
			dst = bsoncore.AppendStringElement(dst, "aggregate", target)
		}
		dst = bsoncore.AppendArrayElement(dst, "pipeline", pipeline)
		cursorOpts := bsoncore.BuildDocument(nil, func(d []byte) []byte {
			if c.batchSize > 0 {
				d = bsoncore.AppendInt32Element(d, "batchSize", c.batchSize)
			}
			return d
		})
		dst = bsoncore.AppendDocumentElement(dst, "cursor", cursorOpts)
		return dst
	})
}

// open runs the aggregate that (re)starts the stream, using resumeDoc (nil
// for a fresh start) as the resumeAfter/startAfter token.
func (c *Cursor) open(ctx context.Context, resumeDoc bsoncore.Document, useStartAfter bool) error {
	c.startAfter = useStartAfter
	reply, err := c.runWithCommand(ctx, c.aggregateCommand(resumeDoc))
	if err != nil {
		return err
	}
	return c.absorbCursorReply(reply, true)
}

// runWithCommand executes exec's single-retry attempt cycle with cmd fixed
// as the command for every attempt (a change stream's aggregate/getMore
// body doesn't vary between the initial try and its retry, unlike a
// retryable write's txnNumber-bearing command).
func (c *Cursor) runWithCommand(ctx context.Context, cmd bsoncore.Document) (bsoncore.Document, error) {
	prevBuild := c.exec.Build
	c.exec.Build = fixedCommand(cmd)
	defer func() { c.exec.Build = prevBuild }()
	return c.exec.Run(ctx)
}

func (c *Cursor) absorbCursorReply(reply bsoncore.Document, initial bool) error {
	cursorVal, ok := reply.Lookup("cursor")
	if !ok {
		return errors.New("driver: aggregate reply missing cursor field")
	}
	cursorDoc, ok := cursorVal.DocumentOK()
	if !ok {
		return errors.New("driver: cursor field is not a document")
	}

	if id, ok := cursorDoc.Lookup("id"); ok {
		c.cursorID, _ = id.AsInt64()
	}
	if ns, ok := cursorDoc.Lookup("ns"); ok {
		c.ns, _ = ns.StringValueOK()
	}

	batchKey := "nextBatch"
	if initial {
		batchKey = "firstBatch"
	}
	c.batch = nil
	c.pos = 0
	if bv, ok := cursorDoc.Lookup(batchKey); ok {
		if arr, ok := bv.ArrayOK(); ok {
			values, err := arr.Values()
			if err != nil {
				return err
			}
			for _, v := range values {
				if doc, ok := v.DocumentOK(); ok {
					c.batch = append(c.batch, doc)
				}
			}
		}
	}

	// A non-empty batch's last document's _id is the authoritative resume
	// token; an empty batch may still carry one via postBatchResumeToken.
	if len(c.batch) > 0 {
		last := c.batch[len(c.batch)-1]
		idVal, ok := last.Lookup("_id")
		if !ok {
			return ErrMissingResumeToken
		}
		idDoc, ok := idVal.DocumentOK()
		if !ok {
			return ErrMissingResumeToken
		}
		c.resumeToken = idDoc
	} else if pbrt, ok := cursorDoc.Lookup("postBatchResumeToken"); ok {
		if doc, ok := pbrt.DocumentOK(); ok {
			c.resumeToken = doc
		}
	}

	return nil
}

// Next advances to the next change document, fetching more from the
// server (and transparently resuming the stream) as needed. Returns false
// once the context is done or a non-resumable error occurs; check Err.
func (c *Cursor) Next(ctx context.Context) bool {
	if c.closed || c.err != nil {
		return false
	}

	for {
		if c.pos < len(c.batch) {
			c.pos++
			return true
		}

		if err := c.getMore(ctx); err != nil {
			if c.resumable(err) {
				if rerr := c.resume(ctx); rerr != nil {
					c.err = rerr
					return false
				}
				continue
			}
			c.err = err
			return false
		}
		if len(c.batch) == 0 {
			// Nothing new yet; caller can retry Next on the next poll tick.
			return false
		}
	}
}

func (c *Cursor) getMore(ctx context.Context) error {
	cmd := bsoncore.BuildDocument(nil, func(dst []byte) []byte {
		dst = bsoncore.AppendInt64Element(dst, "getMore", c.cursorID)
		dst = bsoncore.AppendStringElement(dst, "collection", c.ns)
		if c.batchSize > 0 {
			dst = bsoncore.AppendInt32Element(dst, "batchSize", c.batchSize)
		}
		return dst
	})
	reply, err := c.runWithCommand(ctx, cmd)
	if err != nil {
		return err
	}
	return c.absorbCursorReply(reply, false)
}

func (c *Cursor) resumable(err error) bool {
	switch Classify(err) {
	case ResumeChangeStream, Retryable:
		return true
	}
	var ce CommandError
	if errors.As(err, &ce) && errCursorKilledCodes[ce.Code] {
		return true
	}
	return false
}

// resume kills the dead server-side cursor (best effort) and reissues the
// aggregate with resumeAfter set to the last known resume token.
func (c *Cursor) resume(ctx context.Context) error {
	if c.resumeToken == nil {
		return ErrMissingResumeToken
	}
	if c.cursorID != 0 {
		_ = c.killCursor(ctx)
	}
	return c.open(ctx, c.resumeToken, false)
}

func (c *Cursor) killCursor(ctx context.Context) error {
	cmd := bsoncore.BuildDocument(nil, func(dst []byte) []byte {
		dst = bsoncore.AppendStringElement(dst, "killCursors", c.ns)
		ids := bsoncore.BuildDocument(nil, func(arr []byte) []byte {
			return bsoncore.AppendInt64Element(arr, "0", c.cursorID)
		})
		return bsoncore.AppendArrayElement(dst, "cursors", ids)
	})
	_, err := c.runWithCommand(ctx, cmd)
	return err
}

// Current returns the change document Next most recently advanced to.
func (c *Cursor) Current() bsoncore.Document {
	if c.pos == 0 || c.pos > len(c.batch) {
		return nil
	}
	return c.batch[c.pos-1]
}

// ResumeToken returns the most recently observed resume token, which is
// updated for every batch, including empty ones carrying a
// postBatchResumeToken, so a consumer can persist it between runs.
func (c *Cursor) ResumeToken() bsoncore.Document {
	return c.resumeToken
}

// Err returns the first non-resumable error Next encountered, if any.
func (c *Cursor) Err() error {
	return c.err
}

// Close kills the server-side cursor, if still open.
func (c *Cursor) Close(ctx context.Context) error {
	if c.closed {
		return nil
	}
	c.closed = true
	if c.cursorID == 0 {
		return nil
	}
	return c.killCursor(ctx)
}
