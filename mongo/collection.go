package mongo

import (
	"context"

	"github.com/sealdb/driver/bsoncore"
	"github.com/sealdb/driver/driver"
	"github.com/sealdb/driver/operation"
)

// Collection is an address-only handle onto one collection name within a
// Database; every method below builds and runs exactly one operation.X
// command against it. Arguments and results are bsoncore documents rather
// than arbitrary Go values: this facade deliberately stays on the raw BSON
// layer rather than carrying a reflective codec.
type Collection struct {
	db   *Database
	name string
}

// Name returns the collection's name.
func (coll *Collection) Name() string {
	return coll.name
}

func (coll *Collection) deployment() driver.Deployment {
	return coll.db.client.deployment
}

// InsertOne inserts a single document and returns the raw insert command
// reply (n, writeErrors, and so on).
func (coll *Collection) InsertOne(ctx context.Context, document bsoncore.Document) (bsoncore.Document, error) {
	return coll.InsertMany(ctx, []bsoncore.Document{document})
}

// InsertMany inserts documents with the insert command's default ordered
// semantics (stop on the first write error).
func (coll *Collection) InsertMany(ctx context.Context, documents []bsoncore.Document) (bsoncore.Document, error) {
	client := coll.db.client
	ctx, cancel := client.withTimeout(ctx)
	defer cancel()
	op := operation.NewInsert(documents...).
		Collection(coll.name).
		Database(coll.db.name).
		Deployment(coll.deployment()).
		Sessions(client.sessions).
		ClusterClock(client.clock).
		Monitor(client.opts.Monitor)
	if err := op.Execute(ctx); err != nil {
		return nil, err
	}
	return op.Result(), nil
}

// DeleteOne deletes at most one document matching filter.
func (coll *Collection) DeleteOne(ctx context.Context, filter bsoncore.Document) (bsoncore.Document, error) {
	return coll.delete(ctx, filter, 1)
}

// DeleteMany deletes every document matching filter.
func (coll *Collection) DeleteMany(ctx context.Context, filter bsoncore.Document) (bsoncore.Document, error) {
	return coll.delete(ctx, filter, 0)
}

func (coll *Collection) delete(ctx context.Context, filter bsoncore.Document, limit int32) (bsoncore.Document, error) {
	client := coll.db.client
	ctx, cancel := client.withTimeout(ctx)
	defer cancel()
	op := operation.NewDelete(operation.DeleteStatement{Filter: filter, Limit: limit}).
		Collection(coll.name).
		Database(coll.db.name).
		Deployment(coll.deployment()).
		Sessions(client.sessions).
		ClusterClock(client.clock).
		Monitor(client.opts.Monitor)
	if err := op.Execute(ctx); err != nil {
		return nil, err
	}
	return op.Result(), nil
}

// UpdateOne applies update to at most one document matching filter. update
// is an update document ($set, ...); it is always sent as an embedded
// document, so a pipeline-style (array) update is not supported.
func (coll *Collection) UpdateOne(ctx context.Context, filter, update bsoncore.Document, upsert bool) (bsoncore.Document, error) {
	return coll.updateStatement(ctx, operation.UpdateStatement{Filter: filter, Update: update, Multi: false, Upsert: upsert})
}

// UpdateMany applies update to every document matching filter.
func (coll *Collection) UpdateMany(ctx context.Context, filter, update bsoncore.Document, upsert bool) (bsoncore.Document, error) {
	return coll.updateStatement(ctx, operation.UpdateStatement{Filter: filter, Update: update, Multi: true, Upsert: upsert})
}

func (coll *Collection) updateStatement(ctx context.Context, stmt operation.UpdateStatement) (bsoncore.Document, error) {
	client := coll.db.client
	ctx, cancel := client.withTimeout(ctx)
	defer cancel()
	op := operation.NewUpdate(stmt).
		Collection(coll.name).
		Database(coll.db.name).
		Deployment(coll.deployment()).
		Sessions(client.sessions).
		ClusterClock(client.clock).
		Monitor(client.opts.Monitor)
	if err := op.Execute(ctx); err != nil {
		return nil, err
	}
	return op.Result(), nil
}

// FindOptions configures an optional sort/projection/skip/limit/batchSize
// on Find. The zero value runs an unbounded find with no sort or
// projection.
type FindOptions struct {
	Sort       bsoncore.Document
	Projection bsoncore.Document
	Skip       int64
	Limit      int64
	BatchSize  int32
}

// Find runs a find command over filter and returns a cursor over the
// matching documents.
func (coll *Collection) Find(ctx context.Context, filter bsoncore.Document, opts FindOptions) (*driver.BatchCursor, error) {
	client := coll.db.client
	ctx, cancel := client.withTimeout(ctx)
	defer cancel()
	op := operation.NewFind(filter).
		Collection(coll.name).
		Database(coll.db.name).
		Deployment(coll.deployment()).
		Sessions(client.sessions).
		ClusterClock(client.clock).
		Monitor(client.opts.Monitor)
	if opts.Sort != nil {
		op = op.Sort(opts.Sort)
	}
	if opts.Projection != nil {
		op = op.Projection(opts.Projection)
	}
	if opts.Skip != 0 {
		op = op.Skip(opts.Skip)
	}
	if opts.Limit != 0 {
		op = op.Limit(opts.Limit)
	}
	if opts.BatchSize != 0 {
		op = op.BatchSize(opts.BatchSize)
	}
	if err := op.Execute(ctx); err != nil {
		return nil, err
	}
	return op.Result(), nil
}

// Aggregate runs an aggregate command over the given pipeline stages and
// returns a cursor over the result documents.
func (coll *Collection) Aggregate(ctx context.Context, pipeline bsoncore.Array, batchSize int32) (*driver.BatchCursor, error) {
	client := coll.db.client
	ctx, cancel := client.withTimeout(ctx)
	defer cancel()
	op := operation.NewAggregate(pipeline).
		Collection(coll.name).
		Database(coll.db.name).
		Deployment(coll.deployment()).
		Sessions(client.sessions).
		ClusterClock(client.clock).
		Monitor(client.opts.Monitor)
	if batchSize != 0 {
		op = op.BatchSize(batchSize)
	}
	if err := op.Execute(ctx); err != nil {
		return nil, err
	}
	return op.Result(), nil
}

// CountDocuments returns the number of documents matching filter, run as an
// aggregate pipeline rather than the legacy count command (§4.13).
func (coll *Collection) CountDocuments(ctx context.Context, filter bsoncore.Document) (int64, error) {
	client := coll.db.client
	ctx, cancel := client.withTimeout(ctx)
	defer cancel()
	op := operation.NewCount(filter).
		Collection(coll.name).
		Database(coll.db.name).
		Deployment(coll.deployment()).
		Sessions(client.sessions).
		ClusterClock(client.clock).
		Monitor(client.opts.Monitor)
	if err := op.Execute(ctx); err != nil {
		return 0, err
	}
	return op.Result(), nil
}
