package description

import (
	"testing"
	"time"

	"github.com/davecgh/go-spew/spew"
)

func TestFilterByTagSetsFirstMatchWins(t *testing.T) {
	candidates := []Server{
		{Address: addr("s:1"), TagSet: TagSet{"region": "east", "rack": "1"}},
		{Address: addr("s:2"), TagSet: TagSet{"region": "west"}},
	}
	tagSets := []TagSet{
		{"region": "central"}, // matches nothing
		{"region": "west"},    // matches s:2
	}

	out := filterByTagSets(candidates, tagSets)
	if len(out) != 1 || out[0].Address != addr("s:2") {
		t.Fatalf("expected only s:2 to match, got %+v", out)
	}
}

func TestFilterByTagSetsEmptyMatchesAll(t *testing.T) {
	candidates := []Server{{Address: addr("s:1")}, {Address: addr("s:2")}}
	out := filterByTagSets(candidates, nil)
	if len(out) != 2 {
		t.Fatalf("expected empty tag set filter to pass everything through, got %+v", out)
	}
}

func TestFilterByStalenessExcludesLaggingSecondary(t *testing.T) {
	now := time.Now()
	topo := NewTopology(nil, "replset1")
	topo.Kind = TopologyReplicaSetWithPrimary
	topo.HeartbeatFrequency = 10 * time.Second
	topo.Servers = map[Address]Server{
		addr("p:1"): {Address: addr("p:1"), Kind: RSPrimary, LastWriteDate: now},
		addr("s:1"): {Address: addr("s:1"), Kind: RSSecondary, LastWriteDate: now},
		addr("s:2"): {Address: addr("s:2"), Kind: RSSecondary, LastWriteDate: now.Add(-2 * time.Minute)},
	}

	candidates := []Server{topo.Servers[addr("p:1")], topo.Servers[addr("s:1")], topo.Servers[addr("s:2")]}
	out := filterByStaleness(topo, candidates, SelectionIntent{MaxStalenessSeconds: 90})

	var addrs []Address
	for _, s := range out {
		addrs = append(addrs, s.Address)
	}
	if len(out) != 2 {
		t.Fatalf("expected the lagging secondary to be filtered out, got %+v\ncandidates: %s", addrs, spew.Sdump(candidates))
	}
	for _, s := range out {
		if s.Address == addr("s:2") {
			t.Fatalf("expected s:2 to be excluded as too stale")
		}
	}
}

func TestSelectServersPrimaryPreferredFallsBackToSecondary(t *testing.T) {
	topo := NewTopology(nil, "replset1")
	topo.Kind = TopologyReplicaSetNoPrimary
	topo.Servers = map[Address]Server{
		addr("s:1"): {Address: addr("s:1"), Kind: RSSecondary, RoundTripTime: 5 * time.Millisecond},
	}

	out, err := SelectServers(topo, SelectionIntent{Mode: ModePrimaryPreferred})
	if err != nil {
		t.Fatalf("SelectServers failed: %v", err)
	}
	if len(out) != 1 || out[0].Address != addr("s:1") {
		t.Fatalf("expected fallback to the lone secondary, got %+v", out)
	}
}

func TestSelectServersWriteRequiresPrimary(t *testing.T) {
	topo := NewTopology(nil, "replset1")
	topo.Kind = TopologyReplicaSetNoPrimary
	topo.Servers = map[Address]Server{
		addr("s:1"): {Address: addr("s:1"), Kind: RSSecondary},
	}

	out, err := SelectServers(topo, SelectionIntent{IsWrite: true})
	if err != nil {
		t.Fatalf("SelectServers failed: %v", err)
	}
	if len(out) != 0 {
		t.Fatalf("expected no write targets without a primary, got %+v", out)
	}
}
