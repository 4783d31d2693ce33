// Package mongo is the thin §4.13 facade over this module's driver/topology
// stack: a Client owns one Topology, one session.Pool, and a ClusterClock;
// Database and Collection are address-only handles that hand every call
// down to the operation package's command builders.
package mongo

import (
	"context"
	"fmt"
	"sync"

	"github.com/sealdb/driver/address"
	"github.com/sealdb/driver/auth"
	"github.com/sealdb/driver/connection"
	"github.com/sealdb/driver/description"
	"github.com/sealdb/driver/driver"
	"github.com/sealdb/driver/internal/csot"
	"github.com/sealdb/driver/options"
	"github.com/sealdb/driver/session"
	"github.com/sealdb/driver/topology"
	"github.com/sealdb/driver/wiremessage"
)

// Client is a handle onto one deployment: one topology, one session pool,
// one cluster clock, and the resolved options it was built from.
type Client struct {
	deployment driver.TopologyDeployment
	sessions   *session.Pool
	clock      *session.ClusterClock
	opts       *options.ClientOptions

	mu        sync.Mutex
	connected bool
}

// Connect builds a Client from opts: it validates the accumulated options,
// resolves a handshaker and an optional authenticator, and starts the
// topology's monitors. The returned Client does not block for a primary;
// the first real operation does that through SelectServer (§4.7).
func Connect(ctx context.Context, opts *options.ClientOptionsBuilder) (*Client, error) {
	if err := opts.Validate(); err != nil {
		return nil, fmt.Errorf("mongo: %w", err)
	}
	resolved := opts.ClientOptions()

	seeds := make([]address.Address, 0, len(resolved.Hosts))
	for _, h := range resolved.Hosts {
		seeds = append(seeds, address.Address(h).Canonicalize())
	}

	compressors := resolveCompressors(resolved.Compressors)

	cred := resolved.Credential()
	var authenticator auth.Authenticator
	if cred != nil {
		var err error
		authenticator, err = auth.CreateAuthenticator(cred)
		if err != nil {
			return nil, fmt.Errorf("mongo: %w", err)
		}
	}
	clock := &session.ClusterClock{}

	// heartbeatOpts dials the monitor's own heartbeat connections, which send
	// and parse hello directly (topology/monitor.go) rather than through a
	// Handshaker; dataConnOpts dials pooled connections actually used to run
	// operations, which do need the handshake (and, through it, auth).
	var heartbeatOpts, dataConnOpts []connection.Option
	if len(compressors) > 0 {
		heartbeatOpts = append(heartbeatOpts, connection.WithCompressors(compressors...))
		dataConnOpts = append(dataConnOpts, connection.WithCompressors(compressors...))
	}
	if resolved.TLSConfig != nil {
		heartbeatOpts = append(heartbeatOpts, connection.WithTLSConfig(resolved.TLSConfig))
		dataConnOpts = append(dataConnOpts, connection.WithTLSConfig(resolved.TLSConfig))
	}
	if resolved.MaxConnIdleTime > 0 {
		dataConnOpts = append(dataConnOpts, connection.WithIdleTimeout(resolved.MaxConnIdleTime))
	}
	dataConnOpts = append(dataConnOpts, connection.WithHandshaker(clientHandshaker(authenticator, clock)))

	topo, err := topology.New(topology.Options{
		Seeds:                  seeds,
		SetName:                resolved.ReplicaSet,
		ServerSelectionTimeout: resolved.ServerSelectionTimeout,
		ConnOptions:            heartbeatOpts,
		PoolOptions: connection.PoolOptions{
			MinPoolSize: resolved.MinPoolSize,
			MaxPoolSize: resolved.MaxPoolSize,
			ConnOptions: dataConnOpts,
			Monitor:     resolved.Monitor,
		},
		Monitor: resolved.Monitor,
	})
	if err != nil {
		return nil, fmt.Errorf("mongo: %w", err)
	}

	c := &Client{
		deployment: driver.TopologyDeployment{Topology: topo},
		sessions:   session.NewPool(topo.Description().LogicalSessionTimeoutMinutes),
		clock:      clock,
		opts:       resolved,
		connected:  true,
	}
	return c, nil
}

// clientHandshaker builds the connection.HandshakerFunc every new
// connection runs once, right after the TLS handshake (if any) and before
// it's handed to a pool: send hello, parse the reply into the connection's
// description, then run the configured authenticator's conversation over
// the same connection if a credential was supplied. Reusing
// topology.HelloCommand/ParseHelloReply keeps the wire version/compression
// facts a data connection negotiates identical to what a heartbeat sees,
// rather than hand-rolling a second hello here.
func clientHandshaker(authenticator auth.Authenticator, clock *session.ClusterClock) connection.HandshakerFunc {
	return func(ctx context.Context, addr address.Address, conn connection.Connection) (description.Server, error) {
		reply, err := conn.RunCommand(ctx, "admin", topology.HelloCommand())
		if err != nil {
			return description.Server{}, fmt.Errorf("mongo: hello handshake: %w", err)
		}
		desc, err := topology.ParseHelloReply(addr, reply)
		if err != nil {
			return description.Server{}, fmt.Errorf("mongo: parse hello reply: %w", err)
		}

		if ct, ok := reply.Lookup("$clusterTime"); ok {
			if doc, ok := ct.DocumentOK(); ok {
				clock.AdvanceClusterTime(doc)
			}
		}

		if authenticator != nil {
			conn.SetDescription(desc)
			if err := authenticator.Auth(ctx, &auth.Config{Conn: conn, ClusterTime: clock.GossipDocument()}); err != nil {
				return description.Server{}, fmt.Errorf("mongo: auth: %w", err)
			}
		}

		return desc, nil
	}
}

// resolveCompressors maps the configured compressor names to
// wiremessage.Compressors, dropping (rather than failing on) any name the
// wiremessage package doesn't recognize, matching the teacher's posture of
// negotiating down to whatever the client and server both support instead
// of refusing to connect over a compressor typo.
func resolveCompressors(names []string) []wiremessage.Compressor {
	compressors := make([]wiremessage.Compressor, 0, len(names))
	for _, name := range names {
		if c, ok := wiremessage.CompressorByName(name); ok {
			compressors = append(compressors, c)
		}
	}
	return compressors
}

// Disconnect ends every pooled (checked-in) server session with a best-effort
// endSessions call, then closes the topology, stopping its monitors and
// every pooled connection.
func (c *Client) Disconnect(ctx context.Context) error {
	c.mu.Lock()
	if !c.connected {
		c.mu.Unlock()
		return fmt.Errorf("mongo: client already disconnected")
	}
	c.connected = false
	c.mu.Unlock()

	srv, err := c.deployment.SelectServer(ctx, description.SelectionIntent{Mode: description.ModePrimaryPreferred})
	if err == nil {
		conn, connErr := srv.Checkout(ctx)
		if connErr == nil {
			_ = c.sessions.EndSessions(ctx, conn)
			srv.Checkin(conn)
		}
	}

	c.deployment.Topology.Close()
	return nil
}

// Database returns a handle onto the named database. It does no I/O.
func (c *Client) Database(name string) *Database {
	return &Database{client: c, name: name}
}

// withTimeout applies the Client's configured Timeout (CSOT) to ctx when
// ctx does not already carry a deadline of its own, so a caller's explicit
// context.WithTimeout/WithDeadline always takes precedence over the
// Client-level default. Every Collection method calls this once before
// building and running its operation.
func (c *Client) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); ok || c.opts.Timeout <= 0 {
		return ctx, func() {}
	}
	return csot.MakeTimeoutContext(ctx, c.opts.Timeout)
}
