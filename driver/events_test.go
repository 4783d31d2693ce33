package driver

import (
	"context"
	"testing"

	"github.com/sealdb/driver/bsoncore"
	"github.com/sealdb/driver/event"
	"github.com/sealdb/driver/session"
)

func TestExecutionPublishesCommandStartedAndSucceeded(t *testing.T) {
	conn := &fakeConnection{reply: okReply()}
	dep := &fakeDeployment{servers: []*fakeServer{{conn: conn}}}
	registry := event.NewRegistry()

	var started, succeeded int
	registry.Subscribe(event.TopicCommand, func(evt interface{}) {
		switch evt.(type) {
		case *event.CommandStartedEvent:
			started++
		case *event.CommandSucceededEvent:
			succeeded++
		}
	})

	exec := &Execution{
		Deployment: dep,
		Database:   "test",
		Type:       ReadOperation,
		Monitor:    registry,
		Build: func(*session.ServerSession, *session.ClusterClock) (bsoncore.Document, error) {
			return bsoncore.BuildDocument(nil, func(dst []byte) []byte {
				return bsoncore.AppendInt32Element(dst, "ping", 1)
			}), nil
		},
	}

	if _, err := exec.Run(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if started != 1 || succeeded != 1 {
		t.Fatalf("expected one started and one succeeded event, got started=%d succeeded=%d", started, succeeded)
	}
}

func TestExecutionPublishesRetryReadOnRetryableFailure(t *testing.T) {
	failing := &fakeConnection{err: &fakeNetworkError{disconnected: true}}
	succeeding := &fakeConnection{reply: okReply()}
	dep := &fakeDeployment{servers: []*fakeServer{{conn: failing}, {conn: succeeding}}}
	registry := event.NewRegistry()

	var retries int
	registry.Subscribe(event.TopicRetry, func(evt interface{}) {
		if _, ok := evt.(*event.RetryReadEvent); ok {
			retries++
		}
	})

	exec := &Execution{
		Deployment: dep,
		Database:   "test",
		Type:       ReadOperation,
		Monitor:    registry,
		Build: func(*session.ServerSession, *session.ClusterClock) (bsoncore.Document, error) {
			return bsoncore.BuildDocument(nil, func(dst []byte) []byte {
				return bsoncore.AppendInt32Element(dst, "ping", 1)
			}), nil
		},
	}

	if _, err := exec.Run(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if retries != 1 {
		t.Fatalf("expected exactly one RetryRead event, got %d", retries)
	}
}
