package description

import "fmt"

// DriverMinWireVersion and DriverMaxWireVersion bound the wire protocol
// versions this driver can speak; a server outside this range makes the
// topology Compatible=false (§3's compatibility invariant).
const (
	DriverMinWireVersion = 0
	DriverMaxWireVersion = 21
)

// Apply derives the next TopologyDescription from the previous one plus one
// freshly observed Server, following the SDAM transition table in §4.6. It
// is a pure function: the caller (topology.Topology, the single writer) is
// responsible for serializing calls and publishing the result.
func Apply(prev *Topology, incoming Server) *Topology {
	next := prev.Clone()

	if _, tracked := next.Servers[incoming.Address]; !tracked {
		// A server we're no longer watching (e.g. already removed) reported
		// in late; ignore it.
		return next
	}

	checkCompatibility(next, incoming)
	if !next.Compatible {
		next.Servers[incoming.Address] = incoming
		return next
	}

	switch next.Kind {
	case TopologyUnknown:
		applyToUnknown(next, incoming)
	case TopologySharded:
		applyToSharded(next, incoming)
	case TopologyReplicaSetNoPrimary, TopologyReplicaSetWithPrimary, TopologyReplicaSetGhost:
		applyToReplicaSet(next, incoming)
	case TopologySingle:
		// A Single topology's one server is always kept verbatim; its kind
		// does not influence the topology kind (§4.7 rule 2).
		next.Servers[incoming.Address] = incoming
	}

	next.RecomputeLogicalSessionTimeout()
	return next
}

func checkCompatibility(t *Topology, s Server) {
	if s.Kind == Unknown || s.Error != nil {
		return
	}
	if s.MinWireVersion > DriverMaxWireVersion {
		t.Compatible = false
		t.CompatibilityError = fmt.Errorf(
			"server at %s requires wire version %d, but this driver only supports up to %d; "+
				"server is too new", s.Address, s.MinWireVersion, DriverMaxWireVersion)
		return
	}
	if s.MaxWireVersion < DriverMinWireVersion {
		t.Compatible = false
		t.CompatibilityError = fmt.Errorf(
			"server at %s only supports wire version %d, but this driver requires at least %d; "+
				"server is too old", s.Address, s.MaxWireVersion, DriverMinWireVersion)
		return
	}
	t.Compatible = true
	t.CompatibilityError = nil
}

func applyToUnknown(t *Topology, s Server) {
	switch s.Kind {
	case Unknown:
		t.Servers[s.Address] = s
	case Standalone:
		if len(t.Servers) == 1 {
			t.Kind = TopologySingle
			t.Servers[s.Address] = s
			return
		}
		// A standalone that turns up alongside other seeds doesn't belong;
		// drop it from the topology entirely.
		delete(t.Servers, s.Address)
	case Mongos:
		t.Kind = TopologySharded
		t.Servers[s.Address] = s
	case RSPrimary, RSSecondary, RSOther, RSArbiter, RSGhost, PossiblePrimary:
		t.SetName = s.SetName
		t.Servers[s.Address] = s
		updateRSFromPrimaryOrMember(t, s)
	default:
		t.Servers[s.Address] = s
	}
}

func applyToSharded(t *Topology, s Server) {
	switch s.Kind {
	case Mongos, Unknown:
		t.Servers[s.Address] = s
	default:
		delete(t.Servers, s.Address)
	}
}

func applyToReplicaSet(t *Topology, s Server) {
	switch s.Kind {
	case Unknown, RSGhost:
		t.Servers[s.Address] = s
		demoteIfWasPrimary(t, s.Address)
		recomputeReplicaSetKind(t)
	case RSPrimary:
		applyIncomingPrimary(t, s)
	case RSSecondary, RSOther, RSArbiter, PossiblePrimary:
		if s.SetName != "" && t.SetName != "" && s.SetName != t.SetName {
			delete(t.Servers, s.Address)
			recomputeReplicaSetKind(t)
			return
		}
		t.Servers[s.Address] = s
		addMissingMembers(t, s)
		recomputeReplicaSetKind(t)
	default:
		delete(t.Servers, s.Address)
		recomputeReplicaSetKind(t)
	}
}

// applyIncomingPrimary implements the election_id/set_version monotonicity
// invariant from §3 and the primary-demotion rules from §4.6.
func applyIncomingPrimary(t *Topology, s Server) {
	if t.SetName == "" {
		t.SetName = s.SetName
	} else if s.SetName != t.SetName {
		// Belongs to a different set entirely; ignore.
		return
	}

	if isStalePrimary(t, s) {
		s.Kind = Unknown
		s.Error = fmt.Errorf("stale primary: (setVersion=%v, electionId=%x) does not dominate "+
			"previously seen (setVersion=%v, electionId=%x)", s.SetVersion, s.ElectionID,
			t.MaxSetVersion, t.MaxElectionID)
		t.Servers[s.Address] = s
		recomputeReplicaSetKind(t)
		return
	}

	if s.HasSetVersion {
		t.MaxSetVersion = s.SetVersion
		t.HasSetVersion = true
	}
	if s.HasElectionID {
		t.MaxElectionID = s.ElectionID
		t.HasElectionID = true
	}

	// Demote any other server currently believed primary.
	for addr, other := range t.Servers {
		if addr != s.Address && other.Kind == RSPrimary {
			other.Kind = Unknown
			t.Servers[addr] = other
		}
	}

	t.Servers[s.Address] = s
	addMissingMembers(t, s)
	// Drop members the new primary's host list no longer names.
	pruneToPrimaryView(t, s)

	recomputeReplicaSetKind(t)
}

// isStalePrimary reports whether s's (setVersion, electionId) pair fails to
// dominate the highest pair seen so far (§3 invariant).
func isStalePrimary(t *Topology, s Server) bool {
	if t.HasSetVersion && s.HasSetVersion {
		if s.SetVersion < t.MaxSetVersion {
			return true
		}
		if s.SetVersion == t.MaxSetVersion && t.HasElectionID && s.HasElectionID {
			return s.ElectionID.Compare(t.MaxElectionID) < 0
		}
	}
	return false
}

func demoteIfWasPrimary(t *Topology, addr Address) {
	// No-op placeholder kept for symmetry with applyIncomingPrimary's
	// demotion step; an Unknown/RSGhost report about a non-primary address
	// never demotes anything by itself.
	_ = addr
	_ = t
}

func addMissingMembers(t *Topology, s Server) {
	for _, addr := range append(append([]Address{}, s.Hosts...), append(s.Passives, s.Arbiters...)...) {
		if _, ok := t.Servers[addr]; !ok {
			t.Servers[addr] = Server{Address: addr, Kind: Unknown}
		}
	}
}

// pruneToPrimaryView removes servers the primary's own host/passive/arbiter
// lists no longer mention, matching "replace hosts with its view" (§4.6).
func pruneToPrimaryView(t *Topology, primary Server) {
	known := make(map[Address]struct{}, len(primary.Hosts)+len(primary.Passives)+len(primary.Arbiters)+1)
	known[primary.Address] = struct{}{}
	for _, a := range primary.Hosts {
		known[a] = struct{}{}
	}
	for _, a := range primary.Passives {
		known[a] = struct{}{}
	}
	for _, a := range primary.Arbiters {
		known[a] = struct{}{}
	}
	for addr := range t.Servers {
		if _, ok := known[addr]; !ok {
			delete(t.Servers, addr)
		}
	}
}

func updateRSFromPrimaryOrMember(t *Topology, s Server) {
	addMissingMembers(t, s)
	if s.Kind == RSPrimary {
		pruneToPrimaryView(t, s)
	}
	recomputeReplicaSetKind(t)
}

// recomputeReplicaSetKind derives ReplicaSetWithPrimary vs
// ReplicaSetNoPrimary from the current server map, implementing the
// invariant in §3: with-primary iff exactly one member is RSPrimary.
func recomputeReplicaSetKind(t *Topology) {
	for _, s := range t.Servers {
		if s.Kind == RSPrimary {
			t.Kind = TopologyReplicaSetWithPrimary
			return
		}
	}
	t.Kind = TopologyReplicaSetNoPrimary
}
