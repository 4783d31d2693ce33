package operation

import (
	"context"

	"github.com/sealdb/driver/bsoncore"
	"github.com/sealdb/driver/description"
	"github.com/sealdb/driver/driver"
	"github.com/sealdb/driver/event"
	"github.com/sealdb/driver/session"
)

// DropDatabase builds and executes a dropDatabase command (§4.13).
type DropDatabase struct {
	database string

	deployment driver.Deployment
	sessions   *session.Pool
	clock      *session.ClusterClock
	monitor    *event.Registry

	result bsoncore.Document
}

// NewDropDatabase constructs a DropDatabase operation.
func NewDropDatabase() *DropDatabase {
	return &DropDatabase{}
}

func (dd *DropDatabase) Database(database string) *DropDatabase {
	if dd == nil {
		dd = new(DropDatabase)
	}
	dd.database = database
	return dd
}

func (dd *DropDatabase) Deployment(deployment driver.Deployment) *DropDatabase {
	if dd == nil {
		dd = new(DropDatabase)
	}
	dd.deployment = deployment
	return dd
}

func (dd *DropDatabase) Sessions(pool *session.Pool) *DropDatabase {
	if dd == nil {
		dd = new(DropDatabase)
	}
	dd.sessions = pool
	return dd
}

func (dd *DropDatabase) ClusterClock(clock *session.ClusterClock) *DropDatabase {
	if dd == nil {
		dd = new(DropDatabase)
	}
	dd.clock = clock
	return dd
}

func (dd *DropDatabase) Monitor(monitor *event.Registry) *DropDatabase {
	if dd == nil {
		dd = new(DropDatabase)
	}
	dd.monitor = monitor
	return dd
}

func (dd *DropDatabase) command(sess *session.ServerSession, clock *session.ClusterClock) (bsoncore.Document, error) {
	return bsoncore.BuildDocument(nil, func(dst []byte) []byte {
		dst = bsoncore.AppendInt32Element(dst, "dropDatabase", 1)
		dst = addSessionFields(dst, sess, clock, false)
		return dst
	}), nil
}

// Execute runs the dropDatabase command, retrying per §4.9.
func (dd *DropDatabase) Execute(ctx context.Context) error {
	reply, err := run(ctx, dd.deployment, dd.database, description.SelectionIntent{Mode: description.ModePrimary, IsWrite: true}, driver.WriteOperation, dd.sessions, dd.clock, dd.command, dd.monitor)
	if err != nil {
		return err
	}
	dd.result = reply
	return nil
}

// Result returns the raw command reply from the most recent Execute.
func (dd *DropDatabase) Result() bsoncore.Document {
	return dd.result
}
