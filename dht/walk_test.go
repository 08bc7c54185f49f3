package dht

import (
	"context"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"github.com/matei-oltean/magnetpeers/bencode"
	"github.com/matei-oltean/magnetpeers/identity"
)

// mockNode simulates one DHT node's get_peers behaviour: it always
// replies with either a fixed peer list or a list of closer nodes to
// recurse into, and counts how many queries it received.
type mockNode struct {
	addr   *net.UDPAddr
	id     identity.ID
	hits   atomic.Int32
	peers  []CompactPeer
	closer []CompactNodeInfo
}

func startMockNode(t *testing.T, id identity.ID, peers []CompactPeer, closer []CompactNodeInfo) *mockNode {
	t.Helper()
	conn, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	t.Cleanup(func() { conn.Close() })

	m := &mockNode{addr: conn.LocalAddr().(*net.UDPAddr), id: id, peers: peers, closer: closer}

	go func() {
		buf := make([]byte, 2048)
		for {
			n, from, err := conn.ReadFromUDP(buf)
			if err != nil {
				return
			}
			m.hits.Add(1)
			query, err := bencode.Parse(buf[:n])
			if err != nil {
				continue
			}
			r := map[string]bencode.Value{"id": bencode.Bytes(id[:])}
			if len(m.peers) > 0 {
				values := make([]bencode.Value, len(m.peers))
				for i, p := range m.peers {
					b, _ := EncodeCompactPeer(p)
					values[i] = bencode.Bytes(b)
				}
				r["values"] = bencode.List(values...)
			}
			if len(m.closer) > 0 {
				var nodesBuf []byte
				for _, n := range m.closer {
					b, _ := EncodeCompactNodeInfo(n)
					nodesBuf = append(nodesBuf, b...)
				}
				r["nodes"] = bencode.Bytes(nodesBuf)
			}
			reply := bencode.Serialize(bencode.Dict(map[string]bencode.Value{
				"t": bencode.String(echoTxID(query)),
				"y": bencode.String(TypeResponse),
				"r": bencode.Dict(r),
			}))
			conn.WriteToUDP(reply, from)
		}
	}()

	return m
}

func TestWalkConvergesOnPeers(t *testing.T) {
	var targetHash identity.ID
	copy(targetHash[:], "target-infohash-2020")

	var leafID identity.ID
	copy(leafID[:], "leaf-node-id-00000001")
	leafPeer := CompactPeer{Addr: &net.UDPAddr{IP: net.IPv4(9, 9, 9, 9), Port: 12345}}
	leaf := startMockNode(t, leafID, []CompactPeer{leafPeer}, nil)

	var rootID identity.ID
	copy(rootID[:], "root-node-id-000000001")
	root := startMockNode(t, rootID, nil, []CompactNodeInfo{{ID: leafID, Addr: leaf.addr}})

	client, err := NewClient()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	cfg := DefaultWalkConfig()
	cfg.BootstrapAddrs = []string{root.addr.String()}
	cfg.Pace = time.Millisecond
	cfg.PeerQuota = 1
	walker := NewWalker(client, cfg)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	peers, err := walker.Walk(ctx, targetHash)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(peers) != 1 || peers[0].Addr.Port != 12345 {
		t.Fatalf("expected to discover the leaf peer, got %v", peers)
	}
	if root.hits.Load() != 1 {
		t.Errorf("root should be queried exactly once, got %d", root.hits.Load())
	}
	if leaf.hits.Load() != 1 {
		t.Errorf("leaf should be queried exactly once, got %d", leaf.hits.Load())
	}
}

func TestWalkVisitsEachAddressOnce(t *testing.T) {
	var targetHash identity.ID
	copy(targetHash[:], "target-infohash-2020")

	var nodeID identity.ID
	copy(nodeID[:], "self-referencing-node1")
	var self *mockNode
	self = startMockNode(t, nodeID, nil, nil)
	// Make the node point back at itself, to verify the walk does not
	// query an already-visited address a second time.
	self.closer = []CompactNodeInfo{{ID: nodeID, Addr: self.addr}}

	client, _ := NewClient()
	cfg := DefaultWalkConfig()
	cfg.BootstrapAddrs = []string{self.addr.String()}
	cfg.Pace = time.Millisecond
	cfg.MaxSteps = 10
	walker := NewWalker(client, cfg)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, err := walker.Walk(ctx, targetHash)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if self.hits.Load() != 1 {
		t.Errorf("expected exactly one query to the self-referencing node, got %d", self.hits.Load())
	}
}

func TestWalkRespectsCancellation(t *testing.T) {
	var nodeID identity.ID
	node := startMockNode(t, nodeID, nil, nil)

	client, _ := NewClient()
	cfg := DefaultWalkConfig()
	cfg.BootstrapAddrs = []string{node.addr.String()}
	cfg.Pace = time.Hour // never fires within the test
	walker := NewWalker(client, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	peers, err := walker.Walk(ctx, identity.ID{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(peers) != 0 {
		t.Errorf("expected no peers after immediate cancellation, got %v", peers)
	}
}
