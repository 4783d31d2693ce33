package driver

import (
	"context"
	"fmt"
	"time"

	"github.com/sealdb/driver/bsoncore"
	"github.com/sealdb/driver/connection"
	"github.com/sealdb/driver/description"
	"github.com/sealdb/driver/event"
	"github.com/sealdb/driver/internal/csot"
	"github.com/sealdb/driver/session"
	"github.com/sealdb/driver/topology"
)

// SelectedServer is the narrow slice of *topology.SelectedServer this
// package needs: somewhere to check a connection out of and back into.
type SelectedServer interface {
	Checkout(ctx context.Context) (connection.Connection, error)
	Checkin(conn connection.Connection)
}

// Deployment selects a server for one operation. A test fake can
// implement it directly; production code uses TopologyDeployment to adapt
// *topology.Topology, whose SelectServer returns the concrete
// *topology.SelectedServer rather than this package's interface.
type Deployment interface {
	SelectServer(ctx context.Context, intent description.SelectionIntent) (SelectedServer, error)
}

// TopologyDeployment adapts a *topology.Topology to Deployment.
type TopologyDeployment struct {
	*topology.Topology
}

func (d TopologyDeployment) SelectServer(ctx context.Context, intent description.SelectionIntent) (SelectedServer, error) {
	return d.Topology.SelectServer(ctx, intent)
}

// OperationType drives the §4.9 retry semantics: a read gets one blind
// retry of the identical command; a write must carry a session and
// txnNumber so the server can deduplicate a replay, and replays with that
// same txnNumber rather than bumping it again.
type OperationType int

const (
	ReadOperation OperationType = iota
	WriteOperation
)

// CommandBuilder builds the wire command for one attempt. sess and clock
// are nil when sessions aren't in play; a write operation's builder is
// expected to embed sess's lsid and txnNumber when sess is non-nil.
type CommandBuilder func(sess *session.ServerSession, clock *session.ClusterClock) (bsoncore.Document, error)

// Execution describes one logical operation to run against a deployment,
// with retry handled per §4.9.
type Execution struct {
	Deployment Deployment
	Database   string
	Intent     description.SelectionIntent
	Type       OperationType
	Sessions   *session.Pool
	Clock      *session.ClusterClock
	Build      CommandBuilder
	Monitor    *event.Registry
}

// Run selects a server, runs the built command, and retries exactly once
// if the failure classifies as Retryable: it re-selects a server for the
// retry (the original may have gone into the Unknown state) and, for a
// write, replays with the identical txnNumber so the server recognizes
// the retry as a duplicate rather than a second logical operation.
func (e *Execution) Run(ctx context.Context) (bsoncore.Document, error) {
	var sess *session.ServerSession
	if e.Type == WriteOperation && e.Sessions != nil {
		sess = e.Sessions.Checkout()
		defer e.Sessions.Checkin(sess)
		sess.NextTxnNumber()
	}

	reply, err := e.attempt(ctx, sess)
	if err == nil {
		return reply, nil
	}

	if Classify(err) != Retryable {
		return nil, err
	}

	// A Client-side operation timeout (§5's per-operation deadline) bounds
	// retries too: once it has expired there is no time left for a second
	// attempt, so don't burn the one allowed retry on a doomed re-select.
	if csot.IsTimeoutContext(ctx) {
		if dl, ok := ctx.Deadline(); ok && !time.Now().Before(dl) {
			return nil, err
		}
	}

	if e.Type == WriteOperation {
		e.Monitor.Publish(event.TopicRetry, &event.RetryWriteEvent{Cause: err})
	} else {
		e.Monitor.Publish(event.TopicRetry, &event.RetryReadEvent{Cause: err})
	}

	reply, retryErr := e.attempt(ctx, sess)
	if retryErr != nil {
		return nil, retryErr
	}
	return reply, nil
}

func (e *Execution) attempt(ctx context.Context, sess *session.ServerSession) (bsoncore.Document, error) {
	srv, err := e.Deployment.SelectServer(ctx, e.Intent)
	if err != nil {
		return nil, fmt.Errorf("driver: select server: %w", err)
	}

	conn, err := srv.Checkout(ctx)
	if err != nil {
		return nil, err
	}
	defer srv.Checkin(conn)

	cmd, err := e.Build(sess, e.Clock)
	if err != nil {
		return nil, fmt.Errorf("driver: build command: %w", err)
	}

	commandName := firstKey(cmd)
	start := time.Now()
	e.Monitor.Publish(event.TopicCommand, &event.CommandStartedEvent{
		ConnectionID: conn.ID(),
		DatabaseName: e.Database,
		CommandName:  commandName,
		Command:      cmd,
	})

	reply, err := conn.RunCommand(ctx, e.Database, cmd)
	if err != nil {
		e.Monitor.Publish(event.TopicCommand, &event.CommandFailedEvent{
			ConnectionID: conn.ID(),
			CommandName:  commandName,
			Duration:     time.Since(start),
			Failure:      err,
		})
		return nil, err
	}

	if e.Clock != nil {
		if ct, ok := reply.Lookup("$clusterTime"); ok {
			if doc, ok := ct.DocumentOK(); ok {
				e.Clock.AdvanceClusterTime(doc)
			}
		}
	}

	if cmdErr := extractError(reply); cmdErr != nil {
		e.Monitor.Publish(event.TopicCommand, &event.CommandFailedEvent{
			ConnectionID: conn.ID(),
			CommandName:  commandName,
			Duration:     time.Since(start),
			Failure:      cmdErr,
		})
		return nil, cmdErr
	}

	e.Monitor.Publish(event.TopicCommand, &event.CommandSucceededEvent{
		ConnectionID: conn.ID(),
		CommandName:  commandName,
		Duration:     time.Since(start),
		Reply:        reply,
	})
	return reply, nil
}

// firstKey returns a command document's top-level command name (its first
// element's key, e.g. "find", "insert"), or "" if cmd is malformed.
func firstKey(cmd bsoncore.Document) string {
	elems, err := cmd.Elements()
	if err != nil || len(elems) == 0 {
		return ""
	}
	return elems[0].Key()
}
