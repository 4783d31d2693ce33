package operation

import (
	"context"

	"github.com/sealdb/driver/bsoncore"
	"github.com/sealdb/driver/description"
	"github.com/sealdb/driver/driver"
	"github.com/sealdb/driver/event"
	"github.com/sealdb/driver/session"
)

// UpdateStatement is one entry of an update command's updates array.
type UpdateStatement struct {
	Filter bsoncore.Document
	Update bsoncore.Document // an update document; always encoded as an embedded document, never as a pipeline array
	Multi  bool
	Upsert bool
}

// Update builds and executes an update command (§4.13).
type Update struct {
	collection string
	database   string
	updates    []UpdateStatement
	ordered    *bool

	deployment driver.Deployment
	sessions   *session.Pool
	clock      *session.ClusterClock
	monitor    *event.Registry

	result bsoncore.Document
}

// NewUpdate constructs an Update with the given update statements.
func NewUpdate(updates ...UpdateStatement) *Update {
	return &Update{updates: updates}
}

func (u *Update) Collection(collection string) *Update {
	if u == nil {
		u = new(Update)
	}
	u.collection = collection
	return u
}

func (u *Update) Database(database string) *Update {
	if u == nil {
		u = new(Update)
	}
	u.database = database
	return u
}

func (u *Update) Ordered(ordered bool) *Update {
	if u == nil {
		u = new(Update)
	}
	u.ordered = &ordered
	return u
}

func (u *Update) Deployment(deployment driver.Deployment) *Update {
	if u == nil {
		u = new(Update)
	}
	u.deployment = deployment
	return u
}

func (u *Update) Sessions(pool *session.Pool) *Update {
	if u == nil {
		u = new(Update)
	}
	u.sessions = pool
	return u
}

func (u *Update) ClusterClock(clock *session.ClusterClock) *Update {
	if u == nil {
		u = new(Update)
	}
	u.clock = clock
	return u
}

func (u *Update) Monitor(monitor *event.Registry) *Update {
	if u == nil {
		u = new(Update)
	}
	u.monitor = monitor
	return u
}

func (u *Update) command(sess *session.ServerSession, clock *session.ClusterClock) (bsoncore.Document, error) {
	updatesArr := bsoncore.BuildDocument(nil, func(dst []byte) []byte {
		for i, upd := range u.updates {
			stmt := bsoncore.BuildDocument(nil, func(sd []byte) []byte {
				sd = bsoncore.AppendDocumentElement(sd, "q", upd.Filter)
				sd = bsoncore.AppendDocumentElement(sd, "u", upd.Update)
				sd = bsoncore.AppendBooleanElement(sd, "multi", upd.Multi)
				return bsoncore.AppendBooleanElement(sd, "upsert", upd.Upsert)
			})
			dst = bsoncore.AppendDocumentElement(dst, itoa(i), stmt)
		}
		return dst
	})

	return bsoncore.BuildDocument(nil, func(dst []byte) []byte {
		dst = bsoncore.AppendStringElement(dst, "update", u.collection)
		dst = bsoncore.AppendArrayElement(dst, "updates", updatesArr)
		if u.ordered != nil {
			dst = bsoncore.AppendBooleanElement(dst, "ordered", *u.ordered)
		}
		dst = addSessionFields(dst, sess, clock, true)
		return dst
	}), nil
}

// Execute runs the update command, retrying per §4.9.
func (u *Update) Execute(ctx context.Context) error {
	reply, err := run(ctx, u.deployment, u.database, description.SelectionIntent{Mode: description.ModePrimary, IsWrite: true}, driver.WriteOperation, u.sessions, u.clock, u.command, u.monitor)
	if err != nil {
		return err
	}
	u.result = reply
	return nil
}

// Result returns the raw command reply from the most recent Execute.
func (u *Update) Result() bsoncore.Document {
	return u.result
}
