package mongo

import (
	"context"

	"github.com/sealdb/driver/bsoncore"
	"github.com/sealdb/driver/description"
	"github.com/sealdb/driver/driver"
)

// ChangeStream is a tailing cursor over a $changeStream pipeline: it wraps
// *driver.Cursor, which already owns resume-token tracking and the
// rebuild-on-resumable-error loop (§4.9). This type just gives the facade
// layer the same Next/Current/Close shape as Collection.Find's
// *driver.BatchCursor, rather than leaking the driver package's cursor type
// directly.
type ChangeStream struct {
	cursor *driver.Cursor
}

// Next advances the stream to the next change notification, blocking until
// one arrives, the context is done, or the stream hits a non-resumable
// error. It returns false in all but the first case; call Err to tell a
// clean end-of-stream (never happens on a real tailing cursor, but a test
// fake may close one) apart from a real failure.
func (cs *ChangeStream) Next(ctx context.Context) bool {
	return cs.cursor.Next(ctx)
}

// Current returns the change notification document most recently delivered
// by Next.
func (cs *ChangeStream) Current() bsoncore.Document {
	return cs.cursor.Current()
}

// ResumeToken returns the resume token from the most recently delivered
// batch (even an empty one carrying only a postBatchResumeToken), suitable
// for persisting and passing back in through WatchOptions.ResumeAfter.
func (cs *ChangeStream) ResumeToken() bsoncore.Document {
	return cs.cursor.ResumeToken()
}

// Err returns the first non-resumable error the stream encountered, if any.
func (cs *ChangeStream) Err() error {
	return cs.cursor.Err()
}

// Close kills the underlying cursor on the server if it's still open.
func (cs *ChangeStream) Close(ctx context.Context) error {
	return cs.cursor.Close(ctx)
}

// WatchOptions configures an optional resume point and batch size on Watch.
// ResumeAfter and StartAfter are mutually exclusive; when both are set,
// StartAfter wins (matching the teacher's own changeStream.replaceOptions
// precedence, where startAfter is only consulted for the very first open
// and resumeAfter otherwise).
type WatchOptions struct {
	ResumeAfter bsoncore.Document
	StartAfter  bsoncore.Document
	BatchSize   int32
}

func watch(ctx context.Context, client *Client, database, collection string, pipeline bsoncore.Array, opts WatchOptions) (*ChangeStream, error) {
	ctx, cancel := client.withTimeout(ctx)
	defer cancel()

	exec := &driver.Execution{
		Deployment: client.deployment,
		Database:   database,
		Intent:     description.SelectionIntent{Mode: description.ModePrimaryPreferred},
		Type:       driver.ReadOperation,
		Sessions:   client.sessions,
		Clock:      client.clock,
		Monitor:    client.opts.Monitor,
	}

	resumeDoc := opts.ResumeAfter
	useStartAfter := false
	if opts.StartAfter != nil {
		resumeDoc = opts.StartAfter
		useStartAfter = true
	}

	cursor, err := driver.NewCursor(ctx, exec, collection, pipeline, opts.BatchSize, resumeDoc, useStartAfter)
	if err != nil {
		return nil, err
	}
	return &ChangeStream{cursor: cursor}, nil
}

// Watch opens a change stream over this collection's changes, running
// pipeline (additional $match/$project/... stages; the leading
// $changeStream stage is added internally) as the aggregate body.
func (coll *Collection) Watch(ctx context.Context, pipeline bsoncore.Array, opts WatchOptions) (*ChangeStream, error) {
	return watch(ctx, coll.db.client, coll.db.name, coll.name, pipeline, opts)
}

// Watch opens a database-level change stream: every collection in db, using
// the "1" pseudo-collection target the way a whole-deployment or
// whole-database stream does (§4.13).
func (db *Database) Watch(ctx context.Context, pipeline bsoncore.Array, opts WatchOptions) (*ChangeStream, error) {
	return watch(ctx, db.client, db.name, "", pipeline, opts)
}
