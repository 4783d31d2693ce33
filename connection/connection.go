// Package connection speaks the MongoDB wire protocol over one TCP (or unix
// socket) connection: dialing, an optional TLS upgrade, an optional
// handshake callback, idle/lifetime expiry tracking, and per-call command
// compression (§4.2, §4.4).
package connection

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync/atomic"
	"time"

	"github.com/sealdb/driver/address"
	"github.com/sealdb/driver/bsoncore"
	"github.com/sealdb/driver/description"
	"github.com/sealdb/driver/wiremessage"
)

// DisconnectError wraps a transport-level failure (dial, TLS handshake,
// socket write/read, frame decode) so callers above this package — the
// retry engine's error classifier (§4.9) in particular — can recognize a
// connection-layer failure without depending on net.Error's more specific
// (and not always implemented) Timeout()/Temporary() methods.
type DisconnectError struct {
	Addr address.Address
	Err  error
}

func (e *DisconnectError) Error() string {
	return fmt.Sprintf("connection to %s: %s", e.Addr, e.Err)
}

func (e *DisconnectError) Unwrap() error { return e.Err }

// Disconnected always reports true; it exists so DisconnectError satisfies
// the driver package's unexported networkError interface without that
// package importing this one.
func (e *DisconnectError) Disconnected() bool { return true }

var globalConnectionID uint64

func nextConnectionID() uint64 { return atomic.AddUint64(&globalConnectionID, 1) }

var globalRequestID int32

func nextRequestID() int32 { return atomic.AddInt32(&globalRequestID, 1) }

// Connection reads and writes wire protocol messages over one network
// socket. It purposefully hides the raw net.Conn, matching the teacher's
// core/connection.Connection shape.
type Connection interface {
	// WriteWireMessage writes one already-framed message body. cmdName is
	// the top-level command's first key (e.g. "find", "insert"); it gates
	// whether the body is eligible for compression, whatever the op-code.
	WriteWireMessage(ctx context.Context, requestID, responseTo int32, op wiremessage.OpCode, body []byte, cmdName string) error
	ReadWireMessage(ctx context.Context) (wiremessage.Header, []byte, error)
	// RunCommand sends cmd as an OP_MSG against db and returns the server's
	// reply body document. It satisfies auth.RunCommander so the auth
	// package can drive a login conversation directly over a Connection.
	RunCommand(ctx context.Context, db string, cmd bsoncore.Document) (bsoncore.Document, error)
	Close() error
	Expired() bool
	Alive() bool
	ID() string
	Address() address.Address
	Description() description.Server
	SetDescription(description.Server)
}

// Dialer makes network connections; satisfied by *net.Dialer.
type Dialer interface {
	DialContext(ctx context.Context, network, address string) (net.Conn, error)
}

// DialerFunc adapts an ordinary function to a Dialer.
type DialerFunc func(ctx context.Context, network, address string) (net.Conn, error)

// DialContext implements Dialer.
func (f DialerFunc) DialContext(ctx context.Context, network, addr string) (net.Conn, error) {
	return f(ctx, network, addr)
}

// DefaultDialer is used when no Dialer option is supplied.
var DefaultDialer Dialer = &net.Dialer{}

// Handshaker performs the initial hello/isMaster + auth exchange over a
// freshly dialed connection and reports back what it learned.
type Handshaker interface {
	Handshake(ctx context.Context, addr address.Address, conn Connection) (description.Server, error)
}

// HandshakerFunc adapts an ordinary function to a Handshaker.
type HandshakerFunc func(ctx context.Context, addr address.Address, conn Connection) (description.Server, error)

// Handshake implements Handshaker.
func (f HandshakerFunc) Handshake(ctx context.Context, addr address.Address, conn Connection) (description.Server, error) {
	return f(ctx, addr, conn)
}

type connection struct {
	id   string
	addr address.Address
	nc   net.Conn

	desc description.Server

	compressor    wiremessage.Compressor
	compressorMap map[wiremessage.CompressorID]wiremessage.Compressor

	dead             bool
	idleTimeout      time.Duration
	idleDeadline     time.Time
	lifetimeDeadline time.Time
	readTimeout      time.Duration
	writeTimeout     time.Duration
}

// New dials addr and, if a Handshaker is configured, runs it; the returned
// connection's Description() is the zero value when no Handshaker was given.
func New(ctx context.Context, addr address.Address, opts ...Option) (Connection, error) {
	cfg, err := newConfig(opts...)
	if err != nil {
		return nil, err
	}

	nc, err := cfg.dialer.DialContext(ctx, addr.Network(), addr.String())
	if err != nil {
		return nil, &DisconnectError{Addr: addr, Err: fmt.Errorf("dial: %w", err)}
	}

	if cfg.tlsConfig != nil {
		nc, err = configureTLS(ctx, nc, addr, cfg.tlsConfig.Clone())
		if err != nil {
			return nil, &DisconnectError{Addr: addr, Err: fmt.Errorf("tls handshake: %w", err)}
		}
	}

	var lifetimeDeadline time.Time
	if cfg.maxLifetime > 0 {
		lifetimeDeadline = time.Now().Add(cfg.maxLifetime)
	}

	compressorMap := make(map[wiremessage.CompressorID]wiremessage.Compressor, len(cfg.compressors))
	for _, c := range cfg.compressors {
		compressorMap[c.ID()] = c
	}

	c := &connection{
		id:               fmt.Sprintf("%s[%d]", addr, nextConnectionID()),
		addr:             addr,
		nc:               nc,
		compressorMap:    compressorMap,
		idleTimeout:      cfg.idleTimeout,
		lifetimeDeadline: lifetimeDeadline,
		readTimeout:      cfg.readTimeout,
		writeTimeout:     cfg.writeTimeout,
	}
	c.bumpIdleDeadline()

	if cfg.handshaker != nil {
		desc, err := cfg.handshaker.Handshake(ctx, addr, c)
		if err != nil {
			nc.Close()
			return nil, err
		}
		c.desc = desc
		c.pickCompressor(cfg.compressors)
	}

	return c, nil
}

func (c *connection) pickCompressor(offered []wiremessage.Compressor) {
	for _, name := range c.desc.Compressors {
		for _, comp := range offered {
			if comp.Name() == name {
				c.compressor = comp
				return
			}
		}
	}
}

func configureTLS(ctx context.Context, nc net.Conn, addr address.Address, cfg *tls.Config) (net.Conn, error) {
	if cfg.ServerName == "" {
		hostname := addr.String()
		if idx := strings.LastIndex(hostname, ":"); idx != -1 {
			hostname = hostname[:idx]
		}
		cfg.ServerName = hostname
	}

	client := tls.Client(nc, cfg)
	errCh := make(chan error, 1)
	go func() { errCh <- client.HandshakeContext(ctx) }()

	select {
	case err := <-errCh:
		if err != nil {
			return nil, err
		}
	case <-ctx.Done():
		return nil, &DisconnectError{Addr: addr, Err: errors.New("context cancelled during TLS handshake")}
	}
	return client, nil
}

func (c *connection) bumpIdleDeadline() {
	if c.idleTimeout > 0 {
		c.idleDeadline = time.Now().Add(c.idleTimeout)
	}
}

func (c *connection) ID() string                          { return c.id }
func (c *connection) Address() address.Address             { return c.addr }
func (c *connection) Description() description.Server      { return c.desc }
func (c *connection) SetDescription(d description.Server)  { c.desc = d }
func (c *connection) Alive() bool                           { return !c.dead }

// Expired reports whether this connection has crossed its idle or lifetime
// deadline and should be closed rather than reused (§4.4).
func (c *connection) Expired() bool {
	now := time.Now()
	if !c.idleDeadline.IsZero() && now.After(c.idleDeadline) {
		return true
	}
	if !c.lifetimeDeadline.IsZero() && now.After(c.lifetimeDeadline) {
		return true
	}
	return c.dead
}

func (c *connection) Close() error {
	c.dead = true
	return c.nc.Close()
}

// commandsNeverCompressed lists commands that must travel uncompressed
// because compressing them would defeat their own purpose (handshake and
// auth commands run before a compressor is even negotiated).
var commandsNeverCompressed = map[string]bool{
	"isMaster": true, "hello": true,
	"saslStart": true, "saslContinue": true, "getnonce": true, "authenticate": true,
	"createUser": true, "updateUser": true,
}

// WriteWireMessage writes one already-framed OP_MSG/OP_QUERY body, wrapping
// it in OP_COMPRESSED first when a compressor has been negotiated and the
// leading command name allows it.
func (c *connection) WriteWireMessage(ctx context.Context, requestID, responseTo int32, op wiremessage.OpCode, body []byte, cmdName string) error {
	if c.dead {
		return &DisconnectError{Addr: c.addr, Err: errors.New("write on dead connection")}
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	deadline := time.Time{}
	if c.writeTimeout != 0 {
		deadline = time.Now().Add(c.writeTimeout)
	}
	if dl, ok := ctx.Deadline(); ok && (deadline.IsZero() || dl.Before(deadline)) {
		deadline = dl
	}
	if err := c.nc.SetWriteDeadline(deadline); err != nil {
		return &DisconnectError{Addr: c.addr, Err: fmt.Errorf("set write deadline: %w", err)}
	}

	finalOp, finalBody := op, body
	if c.compressor != nil && !commandsNeverCompressed[cmdName] {
		wrapOp, compressed, ok, err := wiremessage.CompressMessage(op, body, c.compressor)
		if err != nil {
			return fmt.Errorf("connection %s: compress message: %w", c.id, err)
		}
		if ok {
			finalOp, finalBody = wrapOp, compressed
		}
	}

	if err := wiremessage.WriteMessage(c.nc, requestID, responseTo, finalOp, finalBody); err != nil {
		c.Close()
		return &DisconnectError{Addr: c.addr, Err: fmt.Errorf("write: %w", err)}
	}
	c.bumpIdleDeadline()
	return nil
}

// ReadWireMessage reads and, if necessary, decompresses one full message.
func (c *connection) ReadWireMessage(ctx context.Context) (wiremessage.Header, []byte, error) {
	if c.dead {
		return wiremessage.Header{}, nil, &DisconnectError{Addr: c.addr, Err: errors.New("read on dead connection")}
	}

	deadline := time.Time{}
	if c.readTimeout != 0 {
		deadline = time.Now().Add(c.readTimeout)
	}
	if dl, ok := ctx.Deadline(); ok && (deadline.IsZero() || dl.Before(deadline)) {
		deadline = dl
	}
	if err := c.nc.SetReadDeadline(deadline); err != nil {
		return wiremessage.Header{}, nil, &DisconnectError{Addr: c.addr, Err: fmt.Errorf("set read deadline: %w", err)}
	}

	header, body, err := wiremessage.ReadMessage(c.nc)
	if err != nil {
		c.Close()
		return wiremessage.Header{}, nil, &DisconnectError{Addr: c.addr, Err: fmt.Errorf("read: %w", err)}
	}
	c.bumpIdleDeadline()

	if header.OpCode == wiremessage.OpCompressed {
		op, decompressed, derr := wiremessage.DecompressMessage(body, c.compressorMap)
		if derr != nil {
			return wiremessage.Header{}, nil, &DisconnectError{Addr: c.addr, Err: fmt.Errorf("decompress: %w", derr)}
		}
		header.OpCode = op
		body = decompressed
	}

	return header, body, nil
}

// RunCommand implements the auth.RunCommander capability: frame cmd as an
// OP_MSG section-0 body, send it, and decode the reply's section-0 body.
func (c *connection) RunCommand(ctx context.Context, db string, cmd bsoncore.Document) (bsoncore.Document, error) {
	elems, err := cmd.Elements()
	if err != nil || len(elems) == 0 {
		return nil, fmt.Errorf("connection %s: empty command document", c.id)
	}
	cmdName := elems[0].Key()

	fullCmd := bsoncore.BuildDocument(nil, func(dst []byte) []byte {
		for _, e := range elems {
			dst = append(dst, e...)
		}
		return bsoncore.AppendStringElement(dst, "$db", db)
	})

	body := wiremessage.EncodeMsg(wiremessage.Msg{BodyDoc: fullCmd}, false)

	requestID := nextRequestID()
	if err := c.WriteWireMessage(ctx, requestID, 0, wiremessage.OpMsg, body, cmdName); err != nil {
		return nil, err
	}

	header, replyBody, err := c.ReadWireMessage(ctx)
	if err != nil {
		return nil, err
	}
	if header.OpCode != wiremessage.OpMsg {
		return nil, fmt.Errorf("connection %s: unexpected reply op-code %s", c.id, header.OpCode)
	}

	msg, err := wiremessage.DecodeMsg(replyBody)
	if err != nil {
		return nil, fmt.Errorf("connection %s: decode reply: %w", c.id, err)
	}
	return msg.BodyDoc, nil
}
