// Package topology owns the single writer over a description.Topology: it
// starts one Monitor per seed/discovered server, serializes every
// description.Apply call, and wakes blocked server-selection callers when
// the topology changes (§4.5-§4.7). description itself holds no goroutines
// or locks; this package is where they live.
package topology

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/sealdb/driver/address"
	"github.com/sealdb/driver/connection"
	"github.com/sealdb/driver/description"
	"github.com/sealdb/driver/event"
	"github.com/sealdb/driver/internal/csot"
)

// Options configures a Topology.
type Options struct {
	Seeds                  []address.Address
	SetName                string
	ServerSelectionTimeout time.Duration
	ConnOptions            []connection.Option
	PoolOptions            connection.PoolOptions
	Monitor                *event.Registry
}

const defaultServerSelectionTimeout = 30 * time.Second

// Topology is the single writer over one description.Topology snapshot. All
// description.Apply calls are funneled through its update channel so no two
// goroutines ever race to produce the "next" snapshot.
type Topology struct {
	opts Options

	mu   sync.Mutex
	desc *description.Topology

	servers map[address.Address]*Server

	updates chan description.Server

	lastWaiterID int64
	waiterLock   sync.Mutex
	waiters      map[int64]chan struct{}

	rnd *rand.Rand

	closed chan struct{}
	once   sync.Once
}

// New starts monitors for every seed and returns a Topology ready to serve
// SelectServer calls.
func New(opts Options) (*Topology, error) {
	if len(opts.Seeds) == 0 {
		return nil, errors.New("topology: at least one seed address is required")
	}
	if opts.ServerSelectionTimeout == 0 {
		opts.ServerSelectionTimeout = defaultServerSelectionTimeout
	}

	t := &Topology{
		opts:    opts,
		desc:    description.NewTopology(opts.Seeds, opts.SetName),
		servers: make(map[address.Address]*Server),
		updates: make(chan description.Server, 16),
		waiters: make(map[int64]chan struct{}),
		rnd:     rand.New(rand.NewSource(seedFromAddresses(opts.Seeds))),
		closed:  make(chan struct{}),
	}

	for _, addr := range opts.Seeds {
		t.startMonitor(addr)
	}

	go t.run()
	return t, nil
}

func seedFromAddresses(addrs []address.Address) int64 {
	var h int64 = 1469598103934665603
	for _, a := range addrs {
		for _, b := range []byte(a) {
			h ^= int64(b)
			h *= 1099511628211
		}
	}
	if h < 0 {
		h = -h
	}
	return h
}

func (t *Topology) startMonitor(addr address.Address) {
	t.mu.Lock()
	if _, ok := t.servers[addr]; ok {
		t.mu.Unlock()
		return
	}
	mon := newMonitor(addr, t.opts.ConnOptions, t.updates)
	poolOpts := t.opts.PoolOptions
	poolOpts.Monitor = t.opts.Monitor
	t.servers[addr] = &Server{
		addr:    addr,
		monitor: mon,
		pool:    connection.NewPool(addr, poolOpts),
	}
	t.mu.Unlock()
	mon.start()
}

func (t *Topology) stopMonitor(addr address.Address) {
	t.mu.Lock()
	s, ok := t.servers[addr]
	if ok {
		delete(t.servers, addr)
	}
	t.mu.Unlock()
	if ok {
		s.monitor.stop()
		s.pool.Close()
	}
}

// run is the single writer goroutine: it's the only place that calls
// description.Apply or mutates t.desc.
func (t *Topology) run() {
	for {
		select {
		case incoming := <-t.updates:
			t.apply(incoming)
		case <-t.closed:
			return
		}
	}
}

func (t *Topology) apply(incoming description.Server) {
	t.mu.Lock()
	prev := t.desc
	next := description.Apply(prev, incoming)
	t.desc = next
	previousServer := prev.Servers[incoming.Address]

	// Reconcile monitors: start one for every newly discovered member,
	// stop the ones no longer present (§4.6's host-list pruning).
	var toStart, toStop []address.Address
	for addr := range next.Servers {
		if _, ok := t.servers[addr]; !ok {
			toStart = append(toStart, addr)
		}
	}
	for addr := range t.servers {
		if _, ok := next.Servers[addr]; !ok {
			toStop = append(toStop, addr)
		}
	}
	t.mu.Unlock()

	t.opts.Monitor.Publish(event.TopicTopology, &event.ServerDescriptionChangedEvent{
		Address:  incoming.Address,
		Previous: previousServer,
		NewDesc:  incoming,
	})
	t.opts.Monitor.Publish(event.TopicTopology, &event.TopologyDescriptionChangedEvent{
		Previous: prev,
		NewDesc:  next,
	})

	for _, addr := range toStart {
		t.startMonitor(addr)
	}
	for _, addr := range toStop {
		t.stopMonitor(addr)
	}

	t.notifyWaiters()
}

func (t *Topology) notifyWaiters() {
	t.waiterLock.Lock()
	for _, ch := range t.waiters {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
	t.waiterLock.Unlock()
}

func (t *Topology) awaitUpdates() (<-chan struct{}, int64) {
	id := atomic.AddInt64(&t.lastWaiterID, 1)
	ch := make(chan struct{}, 1)
	t.waiterLock.Lock()
	t.waiters[id] = ch
	t.waiterLock.Unlock()
	return ch, id
}

func (t *Topology) removeWaiter(id int64) {
	t.waiterLock.Lock()
	delete(t.waiters, id)
	t.waiterLock.Unlock()
}

// Description returns the current topology snapshot.
func (t *Topology) Description() *description.Topology {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.desc
}

// SelectServer blocks until a server description matching intent is
// available (or ctx/ServerSelectionTimeout expires), then returns it as a
// SelectedServer to check connections out of, implementing §4.7 step 6's wait loop. This mirrors the
// teacher's cluster.Cluster.SelectServer almost exactly: a deadline bounded
// by the lesser of ctx's own deadline and the selection timeout (§5's
// client-side operation timeout composing with the static default), a
// per-call waiter channel woken by every topology update, and a
// uniform-random pick among the finalists.
func (t *Topology) SelectServer(ctx context.Context, intent description.SelectionIntent) (*SelectedServer, error) {
	ctx, cancel := csot.WithServerSelectionTimeout(ctx, t.opts.ServerSelectionTimeout)
	defer cancel()
	updated, id := t.awaitUpdates()
	defer t.removeWaiter(id)

	for {
		desc := t.Description()
		finalists, err := description.SelectServers(desc, intent)
		if err != nil {
			return nil, err
		}

		if len(finalists) > 0 {
			picked := finalists[t.rnd.Intn(len(finalists))]
			t.mu.Lock()
			srv, ok := t.servers[picked.Address]
			t.mu.Unlock()
			if ok {
				return &SelectedServer{Server: picked, server: srv}, nil
			}
			// Picked a server that's since been removed; retry immediately.
			continue
		}

		t.opts.Monitor.Publish(event.TopicServerSelection, &event.ServerSelectionEmptyEvent{Intent: intent, Topology: desc})
		t.requestImmediateChecks()

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("topology: server selection timed out after %s: %w", t.opts.ServerSelectionTimeout, ctx.Err())
		case <-updated:
		}
	}
}

func (t *Topology) requestImmediateChecks() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, s := range t.servers {
		s.monitor.requestImmediateCheck()
	}
}

// Close stops every monitor and the writer goroutine. §5 requires the
// topology manager to drain monitors before exiting but puts no ordering
// requirement across addresses, so every server's monitor/pool pair is
// stopped concurrently rather than one at a time.
func (t *Topology) Close() {
	t.once.Do(func() {
		close(t.closed)
		t.mu.Lock()
		servers := make([]*Server, 0, len(t.servers))
		for _, s := range t.servers {
			servers = append(servers, s)
		}
		t.mu.Unlock()

		var g errgroup.Group
		for _, s := range servers {
			s := s
			g.Go(func() error {
				s.monitor.stop()
				s.pool.Close()
				return nil
			})
		}
		_ = g.Wait()
	})
}

// Server pairs a monitor with its connection pool.
type Server struct {
	addr    address.Address
	monitor *monitor
	pool    *connection.Pool
}

// Checkout gets a connection to this server from its pool.
func (s *Server) Checkout(ctx context.Context) (connection.Connection, error) {
	return s.pool.Checkout(ctx)
}

// Checkin returns a connection to this server's pool.
func (s *Server) Checkin(conn connection.Connection) {
	s.pool.Checkin(conn)
}

// SelectedServer is the result of a successful SelectServer call: the
// description snapshot used to pick it, plus the live Server to check
// connections out of.
type SelectedServer struct {
	description.Server
	server *Server
}

// Checkout gets a connection from the selected server's pool.
func (s *SelectedServer) Checkout(ctx context.Context) (connection.Connection, error) {
	return s.server.Checkout(ctx)
}

// Checkin returns a connection to the selected server's pool.
func (s *SelectedServer) Checkin(conn connection.Connection) {
	s.server.Checkin(conn)
}
