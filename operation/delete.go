package operation

import (
	"context"

	"github.com/sealdb/driver/bsoncore"
	"github.com/sealdb/driver/description"
	"github.com/sealdb/driver/driver"
	"github.com/sealdb/driver/event"
	"github.com/sealdb/driver/session"
)

// DeleteStatement is one entry of a delete command's deletes array.
type DeleteStatement struct {
	Filter bsoncore.Document
	Limit  int32 // 0 = delete all matches, 1 = delete at most one
}

// Delete builds and executes a delete command (§4.13).
type Delete struct {
	collection string
	database   string
	deletes    []DeleteStatement
	ordered    *bool

	deployment driver.Deployment
	sessions   *session.Pool
	clock      *session.ClusterClock
	monitor    *event.Registry

	result bsoncore.Document
}

// NewDelete constructs a Delete with the given delete statements.
func NewDelete(deletes ...DeleteStatement) *Delete {
	return &Delete{deletes: deletes}
}

func (d *Delete) Collection(collection string) *Delete {
	if d == nil {
		d = new(Delete)
	}
	d.collection = collection
	return d
}

func (d *Delete) Database(database string) *Delete {
	if d == nil {
		d = new(Delete)
	}
	d.database = database
	return d
}

func (d *Delete) Ordered(ordered bool) *Delete {
	if d == nil {
		d = new(Delete)
	}
	d.ordered = &ordered
	return d
}

func (d *Delete) Deployment(deployment driver.Deployment) *Delete {
	if d == nil {
		d = new(Delete)
	}
	d.deployment = deployment
	return d
}

func (d *Delete) Sessions(pool *session.Pool) *Delete {
	if d == nil {
		d = new(Delete)
	}
	d.sessions = pool
	return d
}

func (d *Delete) ClusterClock(clock *session.ClusterClock) *Delete {
	if d == nil {
		d = new(Delete)
	}
	d.clock = clock
	return d
}

func (d *Delete) Monitor(monitor *event.Registry) *Delete {
	if d == nil {
		d = new(Delete)
	}
	d.monitor = monitor
	return d
}

func (d *Delete) command(sess *session.ServerSession, clock *session.ClusterClock) (bsoncore.Document, error) {
	deletesArr := bsoncore.BuildDocument(nil, func(dst []byte) []byte {
		for i, del := range d.deletes {
			stmt := bsoncore.BuildDocument(nil, func(sd []byte) []byte {
				sd = bsoncore.AppendDocumentElement(sd, "q", del.Filter)
				return bsoncore.AppendInt32Element(sd, "limit", del.Limit)
			})
			dst = bsoncore.AppendDocumentElement(dst, itoa(i), stmt)
		}
		return dst
	})

	return bsoncore.BuildDocument(nil, func(dst []byte) []byte {
		dst = bsoncore.AppendStringElement(dst, "delete", d.collection)
		dst = bsoncore.AppendArrayElement(dst, "deletes", deletesArr)
		if d.ordered != nil {
			dst = bsoncore.AppendBooleanElement(dst, "ordered", *d.ordered)
		}
		dst = addSessionFields(dst, sess, clock, true)
		return dst
	}), nil
}

// Execute runs the delete command, retrying per §4.9.
func (d *Delete) Execute(ctx context.Context) error {
	reply, err := run(ctx, d.deployment, d.database, description.SelectionIntent{Mode: description.ModePrimary, IsWrite: true}, driver.WriteOperation, d.sessions, d.clock, d.command, d.monitor)
	if err != nil {
		return err
	}
	d.result = reply
	return nil
}

// Result returns the raw command reply from the most recent Execute.
func (d *Delete) Result() bsoncore.Document {
	return d.result
}
