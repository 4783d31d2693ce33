package operation

import (
	"context"

	"github.com/sealdb/driver/bsoncore"
	"github.com/sealdb/driver/description"
	"github.com/sealdb/driver/driver"
	"github.com/sealdb/driver/event"
	"github.com/sealdb/driver/session"
)

// Insert builds and executes an insert command (§4.13), retried per §4.9
// with the session's txnNumber held fixed across the retry.
type Insert struct {
	collection string
	database   string
	documents  []bsoncore.Document
	ordered    *bool

	deployment driver.Deployment
	sessions   *session.Pool
	clock      *session.ClusterClock
	monitor    *event.Registry

	result bsoncore.Document
}

// NewInsert constructs an Insert of the given documents.
func NewInsert(documents ...bsoncore.Document) *Insert {
	return &Insert{documents: documents}
}

func (i *Insert) Collection(collection string) *Insert {
	if i == nil {
		i = new(Insert)
	}
	i.collection = collection
	return i
}

func (i *Insert) Database(database string) *Insert {
	if i == nil {
		i = new(Insert)
	}
	i.database = database
	return i
}

func (i *Insert) Ordered(ordered bool) *Insert {
	if i == nil {
		i = new(Insert)
	}
	i.ordered = &ordered
	return i
}

func (i *Insert) Deployment(deployment driver.Deployment) *Insert {
	if i == nil {
		i = new(Insert)
	}
	i.deployment = deployment
	return i
}

func (i *Insert) Sessions(pool *session.Pool) *Insert {
	if i == nil {
		i = new(Insert)
	}
	i.sessions = pool
	return i
}

func (i *Insert) ClusterClock(clock *session.ClusterClock) *Insert {
	if i == nil {
		i = new(Insert)
	}
	i.clock = clock
	return i
}

func (i *Insert) Monitor(monitor *event.Registry) *Insert {
	if i == nil {
		i = new(Insert)
	}
	i.monitor = monitor
	return i
}

// command builds the insert command document, grounded on the teacher's
// operation.Insert.command (x/mongo/driver/operation/insert.go).
func (i *Insert) command(sess *session.ServerSession, clock *session.ClusterClock) (bsoncore.Document, error) {
	return bsoncore.BuildDocument(nil, func(dst []byte) []byte {
		dst = bsoncore.AppendStringElement(dst, "insert", i.collection)
		dst = bsoncore.AppendArrayElement(dst, "documents", buildDocumentArray(i.documents))
		if i.ordered != nil {
			dst = bsoncore.AppendBooleanElement(dst, "ordered", *i.ordered)
		}
		dst = addSessionFields(dst, sess, clock, true)
		return dst
	}), nil
}

// Execute runs the insert command, retrying per §4.9.
func (i *Insert) Execute(ctx context.Context) error {
	reply, err := run(ctx, i.deployment, i.database, description.SelectionIntent{Mode: description.ModePrimary, IsWrite: true}, driver.WriteOperation, i.sessions, i.clock, i.command, i.monitor)
	if err != nil {
		return err
	}
	i.result = reply
	return nil
}

// Result returns the raw command reply from the most recent Execute.
func (i *Insert) Result() bsoncore.Document {
	return i.result
}
