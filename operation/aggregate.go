package operation

import (
	"context"

	"github.com/sealdb/driver/bsoncore"
	"github.com/sealdb/driver/description"
	"github.com/sealdb/driver/driver"
	"github.com/sealdb/driver/event"
	"github.com/sealdb/driver/session"
)

// Aggregate builds and executes a non-change-stream aggregate command
// (§4.13); a $changeStream pipeline goes through driver.NewCursor instead,
// which tracks resume tokens and transparently rebuilds on resumable
// errors (§4.9).
type Aggregate struct {
	collection string
	database   string
	pipeline   bsoncore.Array
	batchSize  *int32

	deployment driver.Deployment
	sessions   *session.Pool
	clock      *session.ClusterClock
	monitor    *event.Registry

	result *driver.BatchCursor
}

// NewAggregate constructs an Aggregate over the given pipeline stages.
func NewAggregate(pipeline bsoncore.Array) *Aggregate {
	return &Aggregate{pipeline: pipeline}
}

func (a *Aggregate) Collection(collection string) *Aggregate {
	if a == nil {
		a = new(Aggregate)
	}
	a.collection = collection
	return a
}

func (a *Aggregate) Database(database string) *Aggregate {
	if a == nil {
		a = new(Aggregate)
	}
	a.database = database
	return a
}

func (a *Aggregate) BatchSize(batchSize int32) *Aggregate {
	if a == nil {
		a = new(Aggregate)
	}
	a.batchSize = &batchSize
	return a
}

func (a *Aggregate) Deployment(deployment driver.Deployment) *Aggregate {
	if a == nil {
		a = new(Aggregate)
	}
	a.deployment = deployment
	return a
}

func (a *Aggregate) Sessions(pool *session.Pool) *Aggregate {
	if a == nil {
		a = new(Aggregate)
	}
	a.sessions = pool
	return a
}

func (a *Aggregate) ClusterClock(clock *session.ClusterClock) *Aggregate {
	if a == nil {
		a = new(Aggregate)
	}
	a.clock = clock
	return a
}

func (a *Aggregate) Monitor(monitor *event.Registry) *Aggregate {
	if a == nil {
		a = new(Aggregate)
	}
	a.monitor = monitor
	return a
}

func (a *Aggregate) command(sess *session.ServerSession, clock *session.ClusterClock) (bsoncore.Document, error) {
	return bsoncore.BuildDocument(nil, func(dst []byte) []byte {
		target := a.collection
		if target == "" {
			dst = bsoncore.AppendInt32Element(dst, "aggregate", 1)
		} else {
			dst = bsoncore.AppendStringElement(dst, "aggregate", target)
		}
		dst = bsoncore.AppendArrayElement(dst, "pipeline", a.pipeline)
		cursorOpts := bsoncore.BuildDocument(nil, func(d []byte) []byte {
			if a.batchSize != nil {
				d = bsoncore.AppendInt32Element(d, "batchSize", *a.batchSize)
			}
			return d
		})
		dst = bsoncore.AppendDocumentElement(dst, "cursor", cursorOpts)
		dst = addSessionFields(dst, sess, clock, false)
		return dst
	}), nil
}

// Execute runs the aggregate command and opens a BatchCursor over its reply.
func (a *Aggregate) Execute(ctx context.Context) error {
	exec := &driver.Execution{
		Deployment: a.deployment,
		Database:   a.database,
		Intent:     description.SelectionIntent{Mode: description.ModePrimaryPreferred},
		Type:       driver.ReadOperation,
		Sessions:   a.sessions,
		Clock:      a.clock,
		Monitor:    a.monitor,
	}
	cmd, err := a.command(nil, a.clock)
	if err != nil {
		return err
	}
	cursor, err := driver.NewBatchCursor(ctx, exec, cmd)
	if err != nil {
		return err
	}
	a.result = cursor
	return nil
}

// Result returns the cursor opened by the most recent Execute.
func (a *Aggregate) Result() *driver.BatchCursor {
	return a.result
}
