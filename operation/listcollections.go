package operation

import (
	"context"

	"github.com/sealdb/driver/bsoncore"
	"github.com/sealdb/driver/description"
	"github.com/sealdb/driver/driver"
	"github.com/sealdb/driver/event"
	"github.com/sealdb/driver/session"
)

// ListCollections builds and executes a listCollections command (§4.13),
// yielding a BatchCursor over the database's collection metadata.
type ListCollections struct {
	database     string
	filter       bsoncore.Document
	nameOnly     *bool
	authorizedOK *bool
	batchSize    *int32

	deployment driver.Deployment
	sessions   *session.Pool
	clock      *session.ClusterClock
	monitor    *event.Registry

	result *driver.BatchCursor
}

// NewListCollections constructs a ListCollections operation.
func NewListCollections(filter bsoncore.Document) *ListCollections {
	return &ListCollections{filter: filter}
}

func (lc *ListCollections) Database(database string) *ListCollections {
	if lc == nil {
		lc = new(ListCollections)
	}
	lc.database = database
	return lc
}

func (lc *ListCollections) NameOnly(nameOnly bool) *ListCollections {
	if lc == nil {
		lc = new(ListCollections)
	}
	lc.nameOnly = &nameOnly
	return lc
}

func (lc *ListCollections) AuthorizedCollections(authorizedOK bool) *ListCollections {
	if lc == nil {
		lc = new(ListCollections)
	}
	lc.authorizedOK = &authorizedOK
	return lc
}

func (lc *ListCollections) BatchSize(batchSize int32) *ListCollections {
	if lc == nil {
		lc = new(ListCollections)
	}
	lc.batchSize = &batchSize
	return lc
}

func (lc *ListCollections) Deployment(deployment driver.Deployment) *ListCollections {
	if lc == nil {
		lc = new(ListCollections)
	}
	lc.deployment = deployment
	return lc
}

func (lc *ListCollections) Sessions(pool *session.Pool) *ListCollections {
	if lc == nil {
		lc = new(ListCollections)
	}
	lc.sessions = pool
	return lc
}

func (lc *ListCollections) ClusterClock(clock *session.ClusterClock) *ListCollections {
	if lc == nil {
		lc = new(ListCollections)
	}
	lc.clock = clock
	return lc
}

func (lc *ListCollections) Monitor(monitor *event.Registry) *ListCollections {
	if lc == nil {
		lc = new(ListCollections)
	}
	lc.monitor = monitor
	return lc
}

func (lc *ListCollections) command(sess *session.ServerSession, clock *session.ClusterClock) (bsoncore.Document, error) {
	return bsoncore.BuildDocument(nil, func(dst []byte) []byte {
		dst = bsoncore.AppendInt32Element(dst, "listCollections", 1)
		if lc.filter != nil {
			dst = bsoncore.AppendDocumentElement(dst, "filter", lc.filter)
		}
		if lc.nameOnly != nil {
			dst = bsoncore.AppendBooleanElement(dst, "nameOnly", *lc.nameOnly)
		}
		if lc.authorizedOK != nil {
			dst = bsoncore.AppendBooleanElement(dst, "authorizedCollections", *lc.authorizedOK)
		}
		if lc.batchSize != nil {
			cursorDoc := bsoncore.BuildDocument(nil, func(cd []byte) []byte {
				return bsoncore.AppendInt32Element(cd, "batchSize", *lc.batchSize)
			})
			dst = bsoncore.AppendDocumentElement(dst, "cursor", cursorDoc)
		}
		dst = addSessionFields(dst, sess, clock, false)
		return dst
	}), nil
}

// Execute runs the listCollections command and opens a BatchCursor over its
// reply.
func (lc *ListCollections) Execute(ctx context.Context) error {
	exec := &driver.Execution{
		Deployment: lc.deployment,
		Database:   lc.database,
		Intent:     description.SelectionIntent{Mode: description.ModePrimaryPreferred},
		Type:       driver.ReadOperation,
		Sessions:   lc.sessions,
		Clock:      lc.clock,
		Monitor:    lc.monitor,
	}
	cmd, err := lc.command(nil, lc.clock)
	if err != nil {
		return err
	}
	cursor, err := driver.NewBatchCursor(ctx, exec, cmd)
	if err != nil {
		return err
	}
	lc.result = cursor
	return nil
}

// Result returns the cursor opened by the most recent Execute.
func (lc *ListCollections) Result() *driver.BatchCursor {
	return lc.result
}
