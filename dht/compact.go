// Package dht implements the peer-discovery half of the BitTorrent
// Mainline DHT (BEP 5): issuing get_peers/find_node KRPC queries and
// driving the iterative, XOR-distance-guided search for peers of a
// given infohash. It never listens for inbound queries — this core is
// a client walking the DHT, not a participating node.
package dht

import (
	"encoding/binary"
	"fmt"
	"net"

	"github.com/matei-oltean/magnetpeers/identity"
)

// CompactNodeInfoSize is the wire width of one CompactNodeInfo entry:
// 20-byte node id + 4-byte IPv4 + 2-byte port.
const CompactNodeInfoSize = identity.Size + 6

// CompactPeerSize is the wire width of one CompactPeer entry.
const CompactPeerSize = 6

// CompactNodeInfo is a DHT node's id and IPv4 address, as carried in
// nodes replies.
type CompactNodeInfo struct {
	ID   identity.ID
	Addr *net.UDPAddr
}

// CompactPeer is a torrent peer's IPv4 address, as carried in values
// replies and tracker announces.
type CompactPeer struct {
	Addr *net.UDPAddr
}

// String renders the peer's address for logging/display.
func (p CompactPeer) String() string {
	return p.Addr.String()
}

// EncodeCompactNodeInfo packs a node into its 26-byte wire form.
func EncodeCompactNodeInfo(n CompactNodeInfo) ([]byte, error) {
	ip4 := n.Addr.IP.To4()
	if ip4 == nil {
		return nil, fmt.Errorf("dht: not an IPv4 address: %s", n.Addr.IP)
	}
	buf := make([]byte, CompactNodeInfoSize)
	copy(buf[:identity.Size], n.ID[:])
	copy(buf[identity.Size:identity.Size+4], ip4)
	binary.BigEndian.PutUint16(buf[identity.Size+4:], uint16(n.Addr.Port))
	return buf, nil
}

// DecodeCompactNodeInfos parses a concatenated list of 26-byte entries.
func DecodeCompactNodeInfos(data []byte) ([]CompactNodeInfo, error) {
	if len(data)%CompactNodeInfoSize != 0 {
		return nil, fmt.Errorf("dht: compact nodes length %d not a multiple of %d", len(data), CompactNodeInfoSize)
	}
	nodes := make([]CompactNodeInfo, len(data)/CompactNodeInfoSize)
	for i := range nodes {
		chunk := data[i*CompactNodeInfoSize : (i+1)*CompactNodeInfoSize]
		var id identity.ID
		copy(id[:], chunk[:identity.Size])
		ip := net.IP(append([]byte{}, chunk[identity.Size:identity.Size+4]...))
		port := binary.BigEndian.Uint16(chunk[identity.Size+4:])
		nodes[i] = CompactNodeInfo{ID: id, Addr: &net.UDPAddr{IP: ip, Port: int(port)}}
	}
	return nodes, nil
}

// DecodeCompactPeers parses a concatenated list of 6-byte entries.
func DecodeCompactPeers(data []byte) ([]CompactPeer, error) {
	if len(data)%CompactPeerSize != 0 {
		return nil, fmt.Errorf("dht: compact peers length %d not a multiple of %d", len(data), CompactPeerSize)
	}
	peers := make([]CompactPeer, len(data)/CompactPeerSize)
	for i := range peers {
		chunk := data[i*CompactPeerSize : (i+1)*CompactPeerSize]
		ip := net.IP(append([]byte{}, chunk[:4]...))
		port := binary.BigEndian.Uint16(chunk[4:6])
		peers[i] = CompactPeer{Addr: &net.UDPAddr{IP: ip, Port: int(port)}}
	}
	return peers, nil
}

// EncodeCompactPeer packs a peer into its 6-byte wire form.
func EncodeCompactPeer(p CompactPeer) ([]byte, error) {
	ip4 := p.Addr.IP.To4()
	if ip4 == nil {
		return nil, fmt.Errorf("dht: not an IPv4 address: %s", p.Addr.IP)
	}
	buf := make([]byte, CompactPeerSize)
	copy(buf[:4], ip4)
	binary.BigEndian.PutUint16(buf[4:], uint16(p.Addr.Port))
	return buf, nil
}
