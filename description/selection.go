package description

import "time"

// SelectionMode is the read-preference-like mode of a SelectionIntent.
type SelectionMode int

// Modes from §4.7.
const (
	ModePrimary SelectionMode = iota
	ModePrimaryPreferred
	ModeSecondary
	ModeSecondaryPreferred
	ModeNearest
)

// SelectionIntent describes what an operation needs from a server (§4.7).
type SelectionIntent struct {
	Mode               SelectionMode
	TagSets            []TagSet
	MaxStalenessSeconds int32
	IsWrite            bool
}

// ErrIncompatible is returned by SelectServers when the topology itself is
// marked incompatible (§4.7 step 1).
type ErrIncompatible struct {
	Reason error
}

func (e *ErrIncompatible) Error() string {
	return "incompatible wire protocol: " + e.Reason.Error()
}

// SelectServers runs the §4.7 algorithm (everything except the final random
// pick and the wait-for-change loop, which are the caller's job since they
// need a channel/deadline) against one topology snapshot, returning the
// finalist set.
func SelectServers(t *Topology, intent SelectionIntent) ([]Server, error) {
	if !t.Compatible {
		return nil, &ErrIncompatible{Reason: t.CompatibilityError}
	}

	candidates := filterByTopologyKind(t, intent)
	candidates = filterByTagSets(candidates, intent.TagSets)
	candidates = filterByStaleness(t, candidates, intent)
	candidates = filterByLatency(candidates, t.LocalThreshold)

	return candidates, nil
}

func filterByTopologyKind(t *Topology, intent SelectionIntent) []Server {
	var out []Server
	switch t.Kind {
	case TopologySingle:
		for _, s := range t.Servers {
			out = append(out, s)
		}
		return out
	case TopologySharded:
		for _, s := range t.Servers {
			if s.Kind == Mongos {
				out = append(out, s)
			}
		}
		return out
	case TopologyReplicaSetWithPrimary, TopologyReplicaSetNoPrimary:
		if intent.IsWrite {
			for _, s := range t.Servers {
				if s.Kind == RSPrimary {
					out = append(out, s)
				}
			}
			return out
		}
		return filterByReadMode(t, intent.Mode)
	default:
		return nil
	}
}

func filterByReadMode(t *Topology, mode SelectionMode) []Server {
	var primaries, secondaries []Server
	for _, s := range t.Servers {
		switch s.Kind {
		case RSPrimary:
			primaries = append(primaries, s)
		case RSSecondary:
			secondaries = append(secondaries, s)
		}
	}

	switch mode {
	case ModePrimary:
		return primaries
	case ModeSecondary:
		return secondaries
	case ModePrimaryPreferred:
		if len(primaries) > 0 {
			return primaries
		}
		return secondaries
	case ModeSecondaryPreferred:
		if len(secondaries) > 0 {
			return secondaries
		}
		return primaries
	case ModeNearest:
		return append(append([]Server{}, primaries...), secondaries...)
	default:
		return nil
	}
}

func filterByTagSets(candidates []Server, tagSets []TagSet) []Server {
	if len(tagSets) == 0 {
		return candidates
	}
	for _, want := range tagSets {
		var matched []Server
		for _, s := range candidates {
			if matchesOne(s.TagSet, want) {
				matched = append(matched, s)
			}
		}
		if len(matched) > 0 {
			return matched
		}
	}
	return nil
}

// filterByStaleness applies the max-staleness filter (§4.7 step 4) using
// each secondary's lag behind the freshest known write time, approximated
// (as the spec's reference algorithm does) via last_write_date plus one
// heartbeat interval of slack.
func filterByStaleness(t *Topology, candidates []Server, intent SelectionIntent) []Server {
	if intent.MaxStalenessSeconds <= 0 || t.Kind != TopologyReplicaSetWithPrimary && t.Kind != TopologyReplicaSetNoPrimary {
		return candidates
	}

	var freshest time.Time
	for _, s := range t.Servers {
		if s.Kind == RSPrimary || s.Kind == RSSecondary {
			if s.LastWriteDate.After(freshest) {
				freshest = s.LastWriteDate
			}
		}
	}
	if freshest.IsZero() {
		return candidates
	}

	maxStaleness := time.Duration(intent.MaxStalenessSeconds) * time.Second
	var out []Server
	for _, s := range candidates {
		if s.Kind != RSSecondary {
			out = append(out, s)
			continue
		}
		staleness := freshest.Sub(s.LastWriteDate) + t.HeartbeatFrequency
		if staleness <= maxStaleness {
			out = append(out, s)
		}
	}
	return out
}

// filterByLatency applies §4.7 step 5.
func filterByLatency(candidates []Server, localThreshold time.Duration) []Server {
	if len(candidates) == 0 {
		return nil
	}
	minRTT := candidates[0].RoundTripTime
	for _, s := range candidates[1:] {
		if s.RoundTripTime < minRTT {
			minRTT = s.RoundTripTime
		}
	}

	var out []Server
	for _, s := range candidates {
		if s.RoundTripTime <= minRTT+localThreshold {
			out = append(out, s)
		}
	}
	return out
}
