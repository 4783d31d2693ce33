package mongo

import (
	"context"

	"github.com/sealdb/driver/bsoncore"
	"github.com/sealdb/driver/operation"
)

// Database is an address-only handle onto one database name within a
// Client; it performs no I/O of its own.
type Database struct {
	client *Client
	name   string
}

// Name returns the database's name.
func (db *Database) Name() string {
	return db.name
}

// Collection returns a handle onto the named collection within db.
func (db *Database) Collection(name string) *Collection {
	return &Collection{db: db, name: name}
}

// Drop drops the database and everything in it.
func (db *Database) Drop(ctx context.Context) error {
	client := db.client
	ctx, cancel := client.withTimeout(ctx)
	defer cancel()
	op := operation.NewDropDatabase().
		Database(db.name).
		Deployment(client.deployment).
		Sessions(client.sessions).
		ClusterClock(client.clock).
		Monitor(client.opts.Monitor)
	return op.Execute(ctx)
}

// ListCollectionNames returns the names of every collection in db matching
// filter (an empty/nil filter matches all).
func (db *Database) ListCollectionNames(ctx context.Context, filter bsoncore.Document) ([]string, error) {
	client := db.client
	ctx, cancel := client.withTimeout(ctx)
	defer cancel()
	op := operation.NewListCollections(filter).
		Database(db.name).
		NameOnly(true).
		Deployment(client.deployment).
		Sessions(client.sessions).
		ClusterClock(client.clock).
		Monitor(client.opts.Monitor)
	if err := op.Execute(ctx); err != nil {
		return nil, err
	}
	cursor := op.Result()
	defer cursor.Close(ctx)

	var names []string
	for {
		more, err := cursor.Next(ctx)
		if err != nil {
			return nil, err
		}
		if !more {
			break
		}
		val, ok := cursor.Current().Lookup("name")
		if !ok {
			continue
		}
		name, ok := val.StringValueOK()
		if !ok {
			continue
		}
		names = append(names, name)
	}
	return names, nil
}
