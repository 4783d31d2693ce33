package session

import (
	"container/list"
	"context"
	"strconv"
	"sync"

	"github.com/sealdb/driver/bsoncore"
)

// CommandRunner is the minimal capability the pool needs to send the
// best-effort endSessions admin command on shutdown.
type CommandRunner interface {
	RunCommand(ctx context.Context, db string, cmd bsoncore.Document) (bsoncore.Document, error)
}

// maxEndSessionsBatch is the largest number of session ids batched into a
// single endSessions command (§4.8).
const maxEndSessionsBatch = 10000

// Pool is a lazy LIFO cache of ServerSessions (§4.8) with no size cap.
// checkout pops the most recently returned session (front of the list);
// checkin pushes back to the front; expired sessions are discarded rather
// than reused.
type Pool struct {
	mu   sync.Mutex
	list *list.List // of *ServerSession, front = most recently returned

	logicalSessionTimeoutMinutes int32
}

// NewPool returns an empty session pool. logicalSessionTimeoutMinutes comes
// from the topology's current TopologyDescription and should be updated via
// SetLogicalSessionTimeoutMinutes as the topology changes.
func NewPool(logicalSessionTimeoutMinutes int32) *Pool {
	return &Pool{
		list:                         list.New(),
		logicalSessionTimeoutMinutes: logicalSessionTimeoutMinutes,
	}
}

// SetLogicalSessionTimeoutMinutes updates the timeout used to judge
// expiration, tracking TopologyDescription.logical_session_timeout_minutes.
func (p *Pool) SetLogicalSessionTimeoutMinutes(minutes int32) {
	p.mu.Lock()
	p.logicalSessionTimeoutMinutes = minutes
	p.mu.Unlock()
}

// Checkout pops the front of the pool if it isn't expired, discarding
// expired sessions along the way, or allocates a fresh one if the pool runs
// dry.
func (p *Pool) Checkout() *ServerSession {
	p.mu.Lock()
	timeout := p.logicalSessionTimeoutMinutes
	for e := p.list.Front(); e != nil; e = p.list.Front() {
		p.list.Remove(e)
		sess := e.Value.(*ServerSession)
		if !sess.expired(timeout) {
			p.mu.Unlock()
			sess.touch()
			return sess
		}
	}
	p.mu.Unlock()
	return newServerSession()
}

// Checkin returns sess to the front of the pool, unless it has already
// expired (in which case it's simply dropped).
func (p *Pool) Checkin(sess *ServerSession) {
	if sess == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if sess.expired(p.logicalSessionTimeoutMinutes) {
		return
	}
	p.list.PushFront(sess)
}

// EndSessions drains the pool and sends batched endSessions admin commands
// (up to maxEndSessionsBatch ids per batch) via runner. Best-effort: it
// stops at the first error or at ctx's cancellation rather than blocking
// shutdown indefinitely (§5's shutdown contract).
func (p *Pool) EndSessions(ctx context.Context, runner CommandRunner) error {
	p.mu.Lock()
	var ids [][16]byte
	for e := p.list.Front(); e != nil; e = p.list.Front() {
		p.list.Remove(e)
		ids = append(ids, e.Value.(*ServerSession).id)
	}
	p.mu.Unlock()

	for len(ids) > 0 {
		n := len(ids)
		if n > maxEndSessionsBatch {
			n = maxEndSessionsBatch
		}
		batch := ids[:n]
		ids = ids[n:]

		cmd := bsoncore.BuildDocument(nil, func(dst []byte) []byte {
			idArray := bsoncore.BuildDocument(nil, func(arr []byte) []byte {
				for i, id := range batch {
					idDoc := bsoncore.BuildDocument(nil, func(d []byte) []byte {
						return bsoncore.AppendBinaryElement(d, "id", binarySubtypeUUID, id[:])
					})
					arr = bsoncore.AppendDocumentElement(arr, strconv.Itoa(i), idDoc)
				}
				return arr
			})
			return bsoncore.AppendArrayElement(dst, "endSessions", idArray)
		})

		if _, err := runner.RunCommand(ctx, "admin", cmd); err != nil {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
	}
	return nil
}
