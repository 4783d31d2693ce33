package connection

import (
	"context"
	"fmt"
	"sync"

	"github.com/sealdb/driver/address"
	"github.com/sealdb/driver/event"
)

// poolState tracks whether a Pool is accepting new checkouts.
type poolState int

const (
	poolReady poolState = iota
	poolPaused
	poolClosed
)

// PoolOptions configures a Pool (§4.4).
type PoolOptions struct {
	MinPoolSize uint64
	MaxPoolSize uint64
	ConnOptions []Option
	Monitor     *event.Registry
}

// pooledConnection wraps a Connection with the pool generation it was
// created under, so a stale generation can be detected lazily at checkin
// time without walking every live connection (§4.4's clear-bumps-generation
// invalidation pattern).
type pooledConnection struct {
	Connection
	generation uint64
}

// Pool hands out connections to one server address, reusing idle ones and
// dialing new ones up to MaxPoolSize. Rather than eagerly closing
// in-use connections when told to invalidate (e.g. after a network error
// or a topology change), it bumps a generation counter; stale connections
// are discarded the next time they're returned, matching §4.4.
type Pool struct {
	addr address.Address
	opts PoolOptions

	mu         sync.Mutex
	generation uint64
	state      poolState
	idle       []*pooledConnection
	totalConns uint64
	waiters    []chan struct{}
}

// NewPool constructs an empty, ready Pool for addr.
func NewPool(addr address.Address, opts PoolOptions) *Pool {
	return &Pool{addr: addr, opts: opts, state: poolReady}
}

// Clear invalidates every connection currently checked out or idle by
// bumping the generation counter (and drops idle connections immediately,
// since those are cheap to close right away).
func (p *Pool) Clear() {
	p.mu.Lock()
	p.generation++
	for _, c := range p.idle {
		c.Close()
	}
	p.idle = p.idle[:0]
	p.mu.Unlock()
	p.opts.Monitor.Publish(event.TopicPool, &event.PoolClearedEvent{Address: p.addr})
}

// Pause stops the pool from establishing new connections (used while a
// server is believed unreachable); Ready resumes it.
func (p *Pool) Pause() {
	p.mu.Lock()
	p.state = poolPaused
	p.mu.Unlock()
}

func (p *Pool) Ready() {
	p.mu.Lock()
	p.state = poolReady
	p.mu.Unlock()
}

// Close closes every idle connection and marks the pool unusable.
func (p *Pool) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.state = poolClosed
	for _, c := range p.idle {
		c.Close()
	}
	p.idle = nil
}

// Checkout returns an existing idle, non-expired, non-stale connection if
// one is available, otherwise dials a fresh one (blocking on MaxPoolSize
// via ctx if the pool is already at capacity).
func (p *Pool) Checkout(ctx context.Context) (Connection, error) {
	for {
		p.mu.Lock()
		if p.state == poolClosed {
			p.mu.Unlock()
			return nil, fmt.Errorf("connection pool for %s is closed", p.addr)
		}
		if p.state == poolPaused {
			p.mu.Unlock()
			return nil, fmt.Errorf("connection pool for %s is paused", p.addr)
		}

		for len(p.idle) > 0 {
			c := p.idle[len(p.idle)-1]
			p.idle = p.idle[:len(p.idle)-1]
			if c.generation != p.generation || c.Expired() {
				c.Close()
				p.totalConns--
				continue
			}
			p.mu.Unlock()
			p.opts.Monitor.Publish(event.TopicPool, &event.PoolCheckedOutEvent{Address: p.addr, ConnectionID: c.ID()})
			return c, nil
		}

		if p.opts.MaxPoolSize == 0 || p.totalConns < p.opts.MaxPoolSize {
			p.totalConns++
			generation := p.generation
			p.mu.Unlock()

			conn, err := New(ctx, p.addr, p.opts.ConnOptions...)
			if err != nil {
				p.mu.Lock()
				p.totalConns--
				p.mu.Unlock()
				return nil, err
			}
			pc := &pooledConnection{Connection: conn, generation: generation}
			p.opts.Monitor.Publish(event.TopicPool, &event.PoolCheckedOutEvent{Address: p.addr, ConnectionID: pc.ID()})
			return pc, nil
		}

		wait := make(chan struct{})
		p.waiters = append(p.waiters, wait)
		p.mu.Unlock()

		select {
		case <-wait:
		case <-ctx.Done():
			p.removeWaiterLocked(wait)
			return nil, ctx.Err()
		}
	}
}

// removeWaiterLocked drops wait from the waiter queue after a cancelled
// checkout stops listening on it, so a later checkin's notifyWaiterLocked
// doesn't waste the freed slot waking a waiter nobody is receiving for
// anymore (§5: cancelling a checkout releases the slot).
func (p *Pool) removeWaiterLocked(wait chan struct{}) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i, w := range p.waiters {
		if w == wait {
			p.waiters = append(p.waiters[:i], p.waiters[i+1:]...)
			return
		}
	}
}

// Checkin returns a connection to the pool for reuse, or closes it outright
// if it's stale, expired, or dead.
func (p *Pool) Checkin(conn Connection) {
	pc, ok := conn.(*pooledConnection)
	if !ok {
		pc = &pooledConnection{Connection: conn}
	}

	p.mu.Lock()

	if p.state == poolClosed || pc.generation != p.generation || !pc.Alive() || pc.Expired() {
		pc.Close()
		if p.totalConns > 0 {
			p.totalConns--
		}
		p.notifyWaiterLocked()
		p.mu.Unlock()
		return
	}

	p.idle = append(p.idle, pc)
	p.notifyWaiterLocked()
	p.mu.Unlock()
	p.opts.Monitor.Publish(event.TopicPool, &event.PoolCheckedInEvent{Address: p.addr, ConnectionID: pc.ID()})
}

func (p *Pool) notifyWaiterLocked() {
	if len(p.waiters) == 0 {
		return
	}
	w := p.waiters[0]
	p.waiters = p.waiters[1:]
	close(w)
}

// Stats reports point-in-time pool occupancy.
type Stats struct {
	TotalConnections uint64
	IdleConnections  int
}

func (p *Pool) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return Stats{TotalConnections: p.totalConns, IdleConnections: len(p.idle)}
}
