package dht

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/anacrolix/log"
	"github.com/matei-oltean/magnetpeers/identity"
	"github.com/matei-oltean/magnetpeers/netio"
)

// Recommended per-query timeouts (spec §4.4).
const (
	FindNodeTimeout = 3 * time.Second
	GetPeersTimeout = 5 * time.Second
)

// Client issues single DHT queries. It holds no routing table and never
// listens for inbound traffic: it is a client of the Mainline DHT, not
// a participating node.
type Client struct {
	Self   identity.ID
	Logger log.Logger
}

// NewClient builds a Client with a freshly generated node id.
func NewClient() (*Client, error) {
	self, err := identity.Generate()
	if err != nil {
		return nil, fmt.Errorf("dht: generating node id: %w", err)
	}
	return &Client{Self: self, Logger: log.Default}, nil
}

// matchesTransaction builds a netio.SendAndReceiveMatching predicate
// that accepts only a datagram echoing want as its "t" field. Anything
// else — a stray reply to an earlier query on this ephemeral port, a
// malformed datagram — is silently discarded; the query keeps waiting
// for the real reply until its timeout (spec invariant 4).
func matchesTransaction(want string) func([]byte) bool {
	return func(data []byte) bool {
		got, ok := transactionIDOf(data)
		return ok && got == want
	}
}

// FindNode asks addr for the nodes closest to target.
func (c *Client) FindNode(ctx context.Context, addr *net.UDPAddr, target identity.ID) ([]CompactNodeInfo, error) {
	txID, err := newTransactionID()
	if err != nil {
		return nil, err
	}
	query := encodeFindNode(txID, c.Self, target)

	raw, err := netio.SendAndReceiveMatching(ctx, addr, query, FindNodeTimeout, matchesTransaction(txID))
	if err != nil {
		return nil, fmt.Errorf("dht: find_node to %s: %w", addr, err)
	}
	r, err := decodeReply(raw, txID)
	if err != nil {
		return nil, fmt.Errorf("dht: find_node reply from %s: %w", addr, err)
	}
	reply, err := parseFindNodeReply(r)
	if err != nil {
		return nil, fmt.Errorf("dht: find_node reply from %s: %w", addr, err)
	}
	return reply.Nodes, nil
}

// GetPeersResult is the outcome of a successful get_peers query: peers
// for the infohash, if known, and/or closer nodes to continue with.
type GetPeersResult struct {
	ResponderID identity.ID
	Token       string
	Peers       []CompactPeer
	Nodes       []CompactNodeInfo
}

// GetPeers asks addr for peers of infoHash, or failing that, nodes
// closer to it.
func (c *Client) GetPeers(ctx context.Context, addr *net.UDPAddr, infoHash identity.ID) (*GetPeersResult, error) {
	txID, err := newTransactionID()
	if err != nil {
		return nil, err
	}
	query := encodeGetPeers(txID, c.Self, infoHash)

	raw, err := netio.SendAndReceiveMatching(ctx, addr, query, GetPeersTimeout, matchesTransaction(txID))
	if err != nil {
		return nil, fmt.Errorf("dht: get_peers to %s: %w", addr, err)
	}
	r, err := decodeReply(raw, txID)
	if err != nil {
		return nil, fmt.Errorf("dht: get_peers reply from %s: %w", addr, err)
	}
	reply, err := parseGetPeersReply(r)
	if err != nil {
		return nil, fmt.Errorf("dht: get_peers reply from %s: %w", addr, err)
	}
	return &GetPeersResult{
		ResponderID: reply.ID,
		Token:       reply.Token,
		Peers:       reply.Values,
		Nodes:       reply.Nodes,
	}, nil
}
