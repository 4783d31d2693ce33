// Package session implements the logical-session lifecycle from §4.8:
// server-side ServerSession identities (UUID + monotonic txnNum), a LIFO
// pool that hands them out and reclaims them, and the ClusterClock gossip
// value threaded onto every outgoing command.
package session

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/sealdb/driver/bsoncore"
)

// binarySubtypeUUID is the BSON binary subtype for a UUID payload (the
// driver always writes the "new" UUID subtype, 0x04, never the legacy 0x03).
const binarySubtypeUUID = 0x04

// ServerSession is one server-side logical session identity (§3). It is
// created lazily, handed to exactly one operation at a time, and re-pooled
// on completion.
type ServerSession struct {
	id     [16]byte
	txnNum int64 // accessed only via atomic.Add/Load; starts at 0, only increases

	mu      sync.Mutex
	lastUse time.Time
}

func newServerSession() *ServerSession {
	id, err := uuid.NewRandom()
	if err != nil {
		// uuid.NewRandom only fails if the system's random source is
		// unavailable; there is no sane fallback identity to hand back.
		panic("session: failed to generate a session id: " + err.Error())
	}
	s := &ServerSession{id: [16]byte(id)}
	s.touch()
	return s
}

// ID returns the session id as a BSON document suitable for the "lsid"
// command field: {id: Binary(subtype=4, <16 bytes>)}.
func (s *ServerSession) ID() bsoncore.Document {
	return bsoncore.BuildDocument(nil, func(dst []byte) []byte {
		return bsoncore.AppendBinaryElement(dst, "id", binarySubtypeUUID, s.id[:])
	})
}

// NextTxnNumber returns the next transaction number for a retryable write,
// incrementing the session's counter. txnNum assigned to an operation is
// never reused across logically distinct operations on the same session.
func (s *ServerSession) NextTxnNumber() int64 {
	return atomic.AddInt64(&s.txnNum, 1)
}

// TxnNumber returns the current (most recently issued) transaction number,
// used to replay a retry with the byte-identical txnNumber field.
func (s *ServerSession) TxnNumber() int64 {
	return atomic.LoadInt64(&s.txnNum)
}

func (s *ServerSession) touch() {
	s.mu.Lock()
	s.lastUse = time.Now()
	s.mu.Unlock()
}

func (s *ServerSession) lastUsed() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastUse
}

// expired reports whether s has been idle longer than
// logicalSessionTimeoutMinutes - 1 minute (§4.8), the one-minute margin
// guarding against clock skew with the server's own expiry sweep.
func (s *ServerSession) expired(logicalSessionTimeoutMinutes int32) bool {
	timeout := time.Duration(logicalSessionTimeoutMinutes)*time.Minute - time.Minute
	if timeout <= 0 {
		return true
	}
	return time.Since(s.lastUsed()) >= timeout
}

// ClusterClock tracks the highest $clusterTime document observed from any
// server reply (SPEC_FULL addition to §3's data model) and is attached to
// every outgoing command, advanced only forward.
type ClusterClock struct {
	mu      sync.Mutex
	highest bsoncore.Document
}

// AdvanceClusterTime merges candidate into the clock if its embedded
// clusterTime timestamp is strictly newer than what's currently held.
func (c *ClusterClock) AdvanceClusterTime(candidate bsoncore.Document) {
	if candidate == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if clusterTimeNewer(candidate, c.highest) {
		c.highest = candidate
	}
}

// GossipDocument returns the current highest clusterTime document, or nil
// if none has been observed yet.
func (c *ClusterClock) GossipDocument() bsoncore.Document {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.highest
}

func clusterTimeNewer(candidate, current bsoncore.Document) bool {
	if current == nil {
		return candidate != nil
	}
	if candidate == nil {
		return false
	}
	ct, ok := candidateTimestamp(candidate)
	if !ok {
		return false
	}
	cur, ok := candidateTimestamp(current)
	if !ok {
		return true
	}
	if ct.t != cur.t {
		return ct.t > cur.t
	}
	return ct.i > cur.i
}

type timestampPair struct{ t, i uint32 }

func candidateTimestamp(doc bsoncore.Document) (timestampPair, bool) {
	v, ok := doc.Lookup("clusterTime")
	if !ok {
		return timestampPair{}, false
	}
	t, i, ok := v.TimestampOK()
	if !ok {
		return timestampPair{}, false
	}
	return timestampPair{t: t, i: i}, true
}
