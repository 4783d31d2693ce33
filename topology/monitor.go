package topology

import (
	"context"
	"sync"
	"time"

	"github.com/sealdb/driver/address"
	"github.com/sealdb/driver/connection"
	"github.com/sealdb/driver/description"
)

// monitor runs the heartbeat loop for one server address: dial, run hello
// on a fixed cadence (faster when asked to check immediately), and publish
// every observed description.Server onto the shared updates channel
// (§4.5). RTT is EWMA-smoothed via description.UpdateRTT.
type monitor struct {
	addr        address.Address
	connOptions []connection.Option
	updates     chan<- description.Server

	heartbeatInterval time.Duration
	minHeartbeatInterval time.Duration

	checkNow chan struct{}
	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	mu         sync.Mutex
	lastRTT    time.Duration
	lastRTTSet bool
}

func newMonitor(addr address.Address, connOptions []connection.Option, updates chan<- description.Server) *monitor {
	return &monitor{
		addr:                  addr,
		connOptions:           connOptions,
		updates:               updates,
		heartbeatInterval:     description.DefaultHeartbeatFrequency,
		minHeartbeatInterval:  500 * time.Millisecond,
		checkNow:              make(chan struct{}, 1),
		stopCh:                make(chan struct{}),
	}
}

func (m *monitor) start() {
	m.wg.Add(1)
	go m.run()
}

func (m *monitor) stop() {
	m.stopOnce.Do(func() { close(m.stopCh) })
	m.wg.Wait()
}

func (m *monitor) requestImmediateCheck() {
	select {
	case m.checkNow <- struct{}{}:
	default:
	}
}

func (m *monitor) run() {
	defer m.wg.Done()

	m.publish(m.heartbeat())

	timer := time.NewTimer(m.heartbeatInterval)
	defer timer.Stop()

	for {
		select {
		case <-m.stopCh:
			return
		case <-m.checkNow:
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
			m.publish(m.heartbeat())
			timer.Reset(m.heartbeatInterval)
		case <-timer.C:
			m.publish(m.heartbeat())
			timer.Reset(m.heartbeatInterval)
		}
	}
}

func (m *monitor) publish(desc description.Server) {
	select {
	case m.updates <- desc:
	case <-m.stopCh:
	}
}

// heartbeat dials a fresh monitoring connection (closed afterwards), runs hello,
// and folds the round-trip time into the EWMA average (§4.5). Any failure
// collapses the server to Unknown with the error attached, matching the
// SDAM rule that a failed check demotes a server rather than leaving its
// previous description in place.
func (m *monitor) heartbeat() description.Server {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	start := time.Now()
	conn, err := connection.New(ctx, m.addr, m.connOptions...)
	if err != nil {
		return description.Server{Address: m.addr, Kind: description.Unknown, Error: err, LastUpdateTime: time.Now()}
	}
	defer conn.Close()

	reply, err := conn.RunCommand(ctx, "admin", helloCommand())
	rtt := time.Since(start)
	if err != nil {
		return description.Server{Address: m.addr, Kind: description.Unknown, Error: err, LastUpdateTime: time.Now()}
	}

	desc, err := parseHelloReply(m.addr, reply)
	if err != nil {
		return description.Server{Address: m.addr, Kind: description.Unknown, Error: err, LastUpdateTime: time.Now()}
	}

	m.mu.Lock()
	desc.RoundTripTime = description.UpdateRTT(m.lastRTT, m.lastRTTSet, rtt)
	desc.AverageRTTSet = true
	m.lastRTT = desc.RoundTripTime
	m.lastRTTSet = true
	m.mu.Unlock()

	desc.LastUpdateTime = time.Now()
	return desc
}
