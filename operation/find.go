package operation

import (
	"context"

	"github.com/sealdb/driver/bsoncore"
	"github.com/sealdb/driver/description"
	"github.com/sealdb/driver/driver"
	"github.com/sealdb/driver/event"
	"github.com/sealdb/driver/session"
)

// Find builds and executes a find command (§4.13), yielding a BatchCursor.
type Find struct {
	collection string
	database   string
	filter     bsoncore.Document
	sort       bsoncore.Document
	projection bsoncore.Document
	limit      *int64
	skip       *int64
	batchSize  *int32

	deployment driver.Deployment
	sessions   *session.Pool
	clock      *session.ClusterClock
	monitor    *event.Registry

	result *driver.BatchCursor
}

// NewFind constructs a Find against filter.
func NewFind(filter bsoncore.Document) *Find {
	return &Find{filter: filter}
}

func (f *Find) Collection(collection string) *Find {
	if f == nil {
		f = new(Find)
	}
	f.collection = collection
	return f
}

func (f *Find) Database(database string) *Find {
	if f == nil {
		f = new(Find)
	}
	f.database = database
	return f
}

func (f *Find) Sort(sort bsoncore.Document) *Find {
	if f == nil {
		f = new(Find)
	}
	f.sort = sort
	return f
}

func (f *Find) Projection(projection bsoncore.Document) *Find {
	if f == nil {
		f = new(Find)
	}
	f.projection = projection
	return f
}

func (f *Find) Limit(limit int64) *Find {
	if f == nil {
		f = new(Find)
	}
	f.limit = &limit
	return f
}

func (f *Find) Skip(skip int64) *Find {
	if f == nil {
		f = new(Find)
	}
	f.skip = &skip
	return f
}

func (f *Find) BatchSize(batchSize int32) *Find {
	if f == nil {
		f = new(Find)
	}
	f.batchSize = &batchSize
	return f
}

func (f *Find) Deployment(deployment driver.Deployment) *Find {
	if f == nil {
		f = new(Find)
	}
	f.deployment = deployment
	return f
}

func (f *Find) Sessions(pool *session.Pool) *Find {
	if f == nil {
		f = new(Find)
	}
	f.sessions = pool
	return f
}

func (f *Find) ClusterClock(clock *session.ClusterClock) *Find {
	if f == nil {
		f = new(Find)
	}
	f.clock = clock
	return f
}

func (f *Find) Monitor(monitor *event.Registry) *Find {
	if f == nil {
		f = new(Find)
	}
	f.monitor = monitor
	return f
}

func (f *Find) command(sess *session.ServerSession, clock *session.ClusterClock) (bsoncore.Document, error) {
	return bsoncore.BuildDocument(nil, func(dst []byte) []byte {
		dst = bsoncore.AppendStringElement(dst, "find", f.collection)
		if f.filter != nil {
			dst = bsoncore.AppendDocumentElement(dst, "filter", f.filter)
		}
		if f.sort != nil {
			dst = bsoncore.AppendDocumentElement(dst, "sort", f.sort)
		}
		if f.projection != nil {
			dst = bsoncore.AppendDocumentElement(dst, "projection", f.projection)
		}
		if f.limit != nil {
			dst = bsoncore.AppendInt64Element(dst, "limit", *f.limit)
		}
		if f.skip != nil {
			dst = bsoncore.AppendInt64Element(dst, "skip", *f.skip)
		}
		if f.batchSize != nil {
			dst = bsoncore.AppendInt32Element(dst, "batchSize", *f.batchSize)
		}
		dst = addSessionFields(dst, sess, clock, false)
		return dst
	}), nil
}

// Execute runs the find command and opens a BatchCursor over its reply.
func (f *Find) Execute(ctx context.Context) error {
	exec := &driver.Execution{
		Deployment: f.deployment,
		Database:   f.database,
		Intent:     description.SelectionIntent{Mode: description.ModePrimaryPreferred},
		Type:       driver.ReadOperation,
		Sessions:   f.sessions,
		Clock:      f.clock,
		Monitor:    f.monitor,
	}
	cmd, err := f.command(nil, f.clock)
	if err != nil {
		return err
	}
	cursor, err := driver.NewBatchCursor(ctx, exec, cmd)
	if err != nil {
		return err
	}
	f.result = cursor
	return nil
}

// Result returns the cursor opened by the most recent Execute.
func (f *Find) Result() *driver.BatchCursor {
	return f.result
}
