package description

import (
	"math/rand"
	"sort"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func addr(s string) Address { return Address(s) }

// TestSeededSingleNode covers §8 scenario 1.
func TestSeededSingleNode(t *testing.T) {
	topo := NewTopology([]Address{addr("127.0.0.1:27017")}, "")

	incoming := Server{
		Address:        addr("127.0.0.1:27017"),
		Kind:           Standalone,
		MinWireVersion: 0,
		MaxWireVersion: 17,
	}
	topo = Apply(topo, incoming)

	if topo.Kind != TopologySingle {
		t.Fatalf("expected Single, got %v", topo.Kind)
	}
	if topo.Servers[addr("127.0.0.1:27017")].Kind != Standalone {
		t.Fatalf("expected Standalone server")
	}

	servers, err := SelectServers(topo, SelectionIntent{Mode: ModePrimary, IsWrite: true})
	if err != nil {
		t.Fatalf("SelectServers failed: %v", err)
	}
	if len(servers) != 1 || servers[0].Address != addr("127.0.0.1:27017") {
		t.Fatalf("expected the sole seed to be selected, got %+v", servers)
	}
}

// TestReplicaSetDiscovery covers §8 scenario 2.
func TestReplicaSetDiscovery(t *testing.T) {
	topo := NewTopology([]Address{addr("a:27018")}, "replset1")

	incoming := Server{
		Address:        addr("a:27018"),
		Kind:           RSPrimary,
		SetName:        "replset1",
		SetVersion:     3,
		HasSetVersion:  true,
		Hosts:          []Address{addr("a:27018"), addr("b:27019"), addr("c:27020")},
		MinWireVersion: 0,
		MaxWireVersion: 17,
	}
	topo = Apply(topo, incoming)

	if topo.Kind != TopologyReplicaSetWithPrimary {
		t.Fatalf("expected ReplicaSetWithPrimary, got %v", topo.Kind)
	}
	if len(topo.Servers) != 3 {
		t.Fatalf("expected 3 servers, got %d: %+v", len(topo.Servers), topo.Servers)
	}
	if topo.Servers[addr("a:27018")].Kind != RSPrimary {
		t.Fatalf("expected a:27018 to be primary")
	}
	for _, other := range []Address{addr("b:27019"), addr("c:27020")} {
		if topo.Servers[other].Kind == RSPrimary {
			t.Fatalf("%s should not be primary", other)
		}
	}

	var got []Address
	for a := range topo.Servers {
		got = append(got, a)
	}
	sort.Slice(got, func(i, j int) bool { return got[i] < got[j] })
	want := []Address{addr("a:27018"), addr("b:27019"), addr("c:27020")}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("discovered member set mismatch (-want +got):\n%s", diff)
	}
}

// TestPrimaryStepDown covers §8 scenario 3's topology-transition half (the
// retry-engine half is exercised in the driver package).
func TestPrimaryStepDown(t *testing.T) {
	topo := NewTopology([]Address{addr("a:27018")}, "replset1")
	topo = Apply(topo, Server{
		Address: addr("a:27018"), Kind: RSPrimary, SetName: "replset1",
		SetVersion: 3, HasSetVersion: true,
		Hosts: []Address{addr("a:27018"), addr("b:27019"), addr("c:27020")},
	})

	// "a" steps down.
	topo = Apply(topo, Server{Address: addr("a:27018"), Kind: Unknown})
	if topo.Kind != TopologyReplicaSetNoPrimary {
		t.Fatalf("expected ReplicaSetNoPrimary after stepdown, got %v", topo.Kind)
	}

	// "b" is elected with a newer set version.
	topo = Apply(topo, Server{
		Address: addr("b:27019"), Kind: RSPrimary, SetName: "replset1",
		SetVersion: 4, HasSetVersion: true,
		Hosts: []Address{addr("a:27018"), addr("b:27019"), addr("c:27020")},
	})
	if topo.Kind != TopologyReplicaSetWithPrimary {
		t.Fatalf("expected ReplicaSetWithPrimary after election, got %v", topo.Kind)
	}
	if topo.Servers[addr("b:27019")].Kind != RSPrimary {
		t.Fatalf("expected b:27019 to be the new primary")
	}
}

func TestStalePrimaryDemotedToUnknown(t *testing.T) {
	topo := NewTopology([]Address{addr("a:27018")}, "replset1")
	topo = Apply(topo, Server{
		Address: addr("a:27018"), Kind: RSPrimary, SetName: "replset1",
		SetVersion: 4, HasSetVersion: true,
		Hosts: []Address{addr("a:27018"), addr("b:27019")},
	})

	// A stale primary report (older setVersion) must not be accepted.
	topo = Apply(topo, Server{
		Address: addr("b:27019"), Kind: RSPrimary, SetName: "replset1",
		SetVersion: 3, HasSetVersion: true,
		Hosts: []Address{addr("a:27018"), addr("b:27019")},
	})

	if topo.Servers[addr("b:27019")].Kind != Unknown {
		t.Fatalf("expected stale primary to be demoted to Unknown, got %v", topo.Servers[addr("b:27019")].Kind)
	}
	if topo.Servers[addr("a:27018")].Kind != RSPrimary {
		t.Fatalf("expected original primary a:27018 to remain primary")
	}
}

func TestIncompatibleWireVersionFailsFast(t *testing.T) {
	topo := NewTopology([]Address{addr("a:27017")}, "")
	topo = Apply(topo, Server{
		Address: addr("a:27017"), Kind: Standalone,
		MinWireVersion: DriverMaxWireVersion + 1,
		MaxWireVersion: DriverMaxWireVersion + 5,
	})

	if topo.Compatible {
		t.Fatalf("expected topology to be marked incompatible")
	}
	if _, err := SelectServers(topo, SelectionIntent{Mode: ModePrimary, IsWrite: true}); err == nil {
		t.Fatalf("expected SelectServers to fail fast on incompatible topology")
	}
}

// TestLocalThresholdNearest covers §8 scenario 4.
func TestLocalThresholdNearest(t *testing.T) {
	topo := NewTopology(nil, "replset1")
	topo.Kind = TopologyReplicaSetNoPrimary
	topo.LocalThreshold = 15 * time.Millisecond
	topo.Servers = map[Address]Server{
		addr("s:1"): {Address: addr("s:1"), Kind: RSSecondary, RoundTripTime: 10 * time.Millisecond},
		addr("s:2"): {Address: addr("s:2"), Kind: RSSecondary, RoundTripTime: 20 * time.Millisecond},
		addr("s:3"): {Address: addr("s:3"), Kind: RSSecondary, RoundTripTime: 120 * time.Millisecond},
	}

	servers, err := SelectServers(topo, SelectionIntent{Mode: ModeNearest})
	if err != nil {
		t.Fatalf("SelectServers failed: %v", err)
	}
	if len(servers) != 2 {
		t.Fatalf("expected 2 finalists within local threshold, got %d: %+v", len(servers), servers)
	}

	counts := map[Address]int{}
	rng := rand.New(rand.NewSource(1))
	const trials = 10000
	for i := 0; i < trials; i++ {
		finalists, err := SelectServers(topo, SelectionIntent{Mode: ModeNearest})
		if err != nil {
			t.Fatalf("SelectServers failed: %v", err)
		}
		counts[finalists[rng.Intn(len(finalists))].Address]++
	}

	for _, a := range []Address{addr("s:1"), addr("s:2")} {
		frac := float64(counts[a]) / float64(trials)
		if frac < 0.48 || frac > 0.52 {
			t.Errorf("expected ~50%% selection rate for %s, got %.3f", a, frac)
		}
	}
	if counts[addr("s:3")] != 0 {
		t.Errorf("expected s:3 (RTT 120ms) to never be selected, got %d", counts[addr("s:3")])
	}
}
