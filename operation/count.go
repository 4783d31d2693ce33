package operation

import (
	"context"

	"github.com/sealdb/driver/bsoncore"
	"github.com/sealdb/driver/driver"
	"github.com/sealdb/driver/event"
	"github.com/sealdb/driver/session"
)

// Count builds and executes countDocuments as an aggregate pipeline
// ($match, optional $skip/$limit, $group), grounded on the teacher's
// mongo.Collection.CountDocuments / countDocumentsAggregatePipeline
// (mongo/collection.go, mongo/mongo.go), which implements countDocuments
// the same way rather than the legacy count command.
type Count struct {
	collection string
	database   string
	filter     bsoncore.Document
	skip       *int64
	limit      *int64

	deployment driver.Deployment
	sessions   *session.Pool
	clock      *session.ClusterClock
	monitor    *event.Registry

	result int64
}

// NewCount constructs a Count over filter.
func NewCount(filter bsoncore.Document) *Count {
	return &Count{filter: filter}
}

func (c *Count) Collection(collection string) *Count {
	if c == nil {
		c = new(Count)
	}
	c.collection = collection
	return c
}

func (c *Count) Database(database string) *Count {
	if c == nil {
		c = new(Count)
	}
	c.database = database
	return c
}

func (c *Count) Skip(skip int64) *Count {
	if c == nil {
		c = new(Count)
	}
	c.skip = &skip
	return c
}

func (c *Count) Limit(limit int64) *Count {
	if c == nil {
		c = new(Count)
	}
	c.limit = &limit
	return c
}

func (c *Count) Deployment(deployment driver.Deployment) *Count {
	if c == nil {
		c = new(Count)
	}
	c.deployment = deployment
	return c
}

func (c *Count) Sessions(pool *session.Pool) *Count {
	if c == nil {
		c = new(Count)
	}
	c.sessions = pool
	return c
}

func (c *Count) ClusterClock(clock *session.ClusterClock) *Count {
	if c == nil {
		c = new(Count)
	}
	c.clock = clock
	return c
}

func (c *Count) Monitor(monitor *event.Registry) *Count {
	if c == nil {
		c = new(Count)
	}
	c.monitor = monitor
	return c
}

func (c *Count) pipeline() bsoncore.Array {
	filter := c.filter
	if filter == nil {
		filter = bsoncore.BuildDocument(nil, func(d []byte) []byte { return d })
	}

	stages := []bsoncore.Document{
		bsoncore.BuildDocument(nil, func(d []byte) []byte {
			return bsoncore.AppendDocumentElement(d, "$match", filter)
		}),
	}
	if c.skip != nil {
		stages = append(stages, bsoncore.BuildDocument(nil, func(d []byte) []byte {
			return bsoncore.AppendInt64Element(d, "$skip", *c.skip)
		}))
	}
	if c.limit != nil {
		stages = append(stages, bsoncore.BuildDocument(nil, func(d []byte) []byte {
			return bsoncore.AppendInt64Element(d, "$limit", *c.limit)
		}))
	}
	stages = append(stages, bsoncore.BuildDocument(nil, func(d []byte) []byte {
		group := bsoncore.BuildDocument(nil, func(g []byte) []byte {
			g = bsoncore.AppendNullElement(g, "_id")
			sumN := bsoncore.BuildDocument(nil, func(s []byte) []byte {
				return bsoncore.AppendInt32Element(s, "$sum", 1)
			})
			return bsoncore.AppendDocumentElement(g, "n", sumN)
		})
		return bsoncore.AppendDocumentElement(d, "$group", group)
	}))

	return buildDocumentArray(stages)
}

// Execute runs the countDocuments aggregate and reads the resulting count
// out of the single $group result document ({_id: null, n: <count>}),
// defaulting to 0 when the pipeline matched nothing.
func (c *Count) Execute(ctx context.Context) error {
	agg := NewAggregate(c.pipeline()).
		Collection(c.collection).
		Database(c.database).
		Deployment(c.deployment).
		Sessions(c.sessions).
		ClusterClock(c.clock).
		Monitor(c.monitor)

	if err := agg.Execute(ctx); err != nil {
		return err
	}
	cursor := agg.Result()
	defer cursor.Close(ctx)

	ok, err := cursor.Next(ctx)
	if err != nil {
		return err
	}
	if !ok {
		c.result = 0
		return nil
	}
	doc := cursor.Current()
	n, ok := doc.Lookup("n")
	if !ok {
		c.result = 0
		return nil
	}
	count, _ := n.AsInt64()
	c.result = count
	return nil
}

// Result returns the count from the most recent Execute.
func (c *Count) Result() int64 {
	return c.result
}
