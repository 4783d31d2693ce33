// Package description holds the SDAM data model (§3): ServerDescription and
// TopologyDescription, plus the pure functions that derive one topology
// snapshot from another (§4.6) and filter servers for selection (§4.7). It
// intentionally holds no goroutines or locks — those live in the topology
// package, which owns the single writer.
package description

import (
	"time"

	"github.com/sealdb/driver/address"
)

// ServerKind enumerates what role a server is playing, as observed via its
// last successful hello/isMaster reply.
type ServerKind string

// Server kinds (§3).
const (
	Unknown         ServerKind = "Unknown"
	Standalone      ServerKind = "Standalone"
	Mongos          ServerKind = "Mongos"
	RSPrimary       ServerKind = "RSPrimary"
	RSSecondary     ServerKind = "RSSecondary"
	RSArbiter       ServerKind = "RSArbiter"
	RSOther         ServerKind = "RSOther"
	RSGhost         ServerKind = "RSGhost"
	PossiblePrimary ServerKind = "PossiblePrimary"
)

// TagSet is a set of tag -> value pairs attached to a replica set member.
type TagSet map[string]string

// MatchesAny reports whether t satisfies every key/value pair in any of the
// given candidate tag sets (an empty candidate list matches everything, and
// an empty tag set within it matches everything).
func MatchesAny(t TagSet, candidates []TagSet) bool {
	if len(candidates) == 0 {
		return true
	}
	for _, want := range candidates {
		if matchesOne(t, want) {
			return true
		}
	}
	return false
}

func matchesOne(have, want TagSet) bool {
	for k, v := range want {
		if have[k] != v {
			return false
		}
	}
	return true
}

// Server is the per-address record described in §3. It is immutable once
// constructed — monitors build a fresh Server for every heartbeat rather
// than mutating a shared one, so topology snapshots never race with an
// in-flight probe.
type Server struct {
	Address Address

	Kind ServerKind

	// RoundTripTime is the EWMA-smoothed observed latency of the hello
	// probe (§4.5). Zero until the first successful probe.
	RoundTripTime time.Duration
	AverageRTTSet bool

	MinWireVersion int32
	MaxWireVersion int32

	MaxMessageSizeBytes int32
	MaxWriteBatchSize   int32
	MaxBSONObjectSize   int32

	SetName    string
	SetVersion uint64
	HasSetVersion bool
	ElectionID    ObjectID
	HasElectionID bool

	LastWriteDate time.Time
	OpTime        OpTime

	TagSet TagSet

	Hosts    []Address
	Passives []Address
	Arbiters []Address

	Primary Address
	Me      Address

	LastUpdateTime time.Time

	Error error

	LogicalSessionTimeoutMinutes int32
	HasLogicalSessionTimeout     bool

	TopologyVersion *TopologyVersion

	Compressors []string
}

// Address is re-exported for convenience so callers of this package rarely
// need to import address directly.
type Address = address.Address

// ObjectID is a 12-byte identifier, used here only for electionId
// comparison (§3's "never go backward" invariant), not general BSON use.
type ObjectID [12]byte

// Compare orders two ObjectIDs byte-wise; this matches how election ids
// (which are just ObjectIDs) are compared to detect staleness.
func (o ObjectID) Compare(other ObjectID) int {
	for i := range o {
		if o[i] != other[i] {
			if o[i] < other[i] {
				return -1
			}
			return 1
		}
	}
	return 0
}

// OpTime is a replica set operation time (seconds + per-second ordinal).
type OpTime struct {
	T int64
	I int64
}

// Compare orders two OpTimes.
func (o OpTime) Compare(other OpTime) int {
	if o.T != other.T {
		if o.T < other.T {
			return -1
		}
		return 1
	}
	if o.I != other.I {
		if o.I < other.I {
			return -1
		}
		return 1
	}
	return 0
}

// TopologyVersion tracks the server's own notion of "has anything about my
// description changed", used to gate streaming isMaster/hello (§4.5).
type TopologyVersion struct {
	ProcessID ObjectID
	Counter   int64
}

// Newer reports whether v represents a strictly newer version than other.
func (v *TopologyVersion) Newer(other *TopologyVersion) bool {
	if v == nil {
		return false
	}
	if other == nil {
		return true
	}
	if v.ProcessID != other.ProcessID {
		return true
	}
	return v.Counter > other.Counter
}

// DataBearing reports whether this kind of server holds application data
// (used to compute logical_session_timeout_minutes, which is a min over
// only the data-bearing servers per §3).
func (k ServerKind) DataBearing() bool {
	switch k {
	case Standalone, RSPrimary, RSSecondary, Mongos:
		return true
	default:
		return false
	}
}

// UpdateRTT applies the EWMA smoothing rule from §4.5 (alpha=0.2, first
// sample seeds the average outright) and returns the new smoothed value.
func UpdateRTT(previous time.Duration, previousSet bool, sample time.Duration) time.Duration {
	const alpha = 0.2
	if !previousSet {
		return sample
	}
	return time.Duration(alpha*float64(sample) + (1-alpha)*float64(previous))
}
