package dht

import (
	"crypto/rand"
	"fmt"

	"github.com/matei-oltean/magnetpeers/bencode"
	"github.com/matei-oltean/magnetpeers/identity"
)

// KRPC message type discriminants ("y").
const (
	TypeQuery    = "q"
	TypeResponse = "r"
	TypeError    = "e"
)

// KRPC query method names ("q").
const (
	MethodFindNode = "find_node"
	MethodGetPeers = "get_peers"
)

// KRPC error codes, per BEP 5.
const (
	ErrorCodeGeneric       = 201
	ErrorCodeServer        = 202
	ErrorCodeProtocol      = 203
	ErrorCodeMethodUnknown = 204
)

// KRPCError is the decoded "e" envelope: [code, message].
type KRPCError struct {
	Code    int64
	Message string
}

func (e *KRPCError) Error() string {
	return fmt.Sprintf("dht: krpc error %d: %s", e.Code, e.Message)
}

// ProtocolError means a reply's "y" byte was neither "r" nor "e", or
// its shape didn't match what the query expects.
type ProtocolError struct {
	Reason string
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("dht: protocol error: %s", e.Reason)
}

// TransactionMismatchError means a reply's echoed "t" did not match
// the transaction id of the outstanding query; per the spec such
// replies are discarded rather than acted on.
type TransactionMismatchError struct {
	Want, Got string
}

func (e *TransactionMismatchError) Error() string {
	return fmt.Sprintf("dht: transaction id mismatch: sent %x, received %x", e.Want, e.Got)
}

// newTransactionID returns a fresh random 2-byte transaction id. A
// per-query random id (rather than a shared counter) needs no locking
// across the bounded fan-out the walk driver performs.
func newTransactionID() (string, error) {
	buf := make([]byte, 2)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("dht: generating transaction id: %w", err)
	}
	return string(buf), nil
}

// encodeFindNode builds a find_node query message.
func encodeFindNode(txID string, self, target identity.ID) []byte {
	return bencode.Serialize(bencode.Dict(map[string]bencode.Value{
		"t": bencode.String(txID),
		"y": bencode.String(TypeQuery),
		"q": bencode.String(MethodFindNode),
		"a": bencode.Dict(map[string]bencode.Value{
			"id":     bencode.Bytes(self[:]),
			"target": bencode.Bytes(target[:]),
		}),
	}))
}

// encodeGetPeers builds a get_peers query message.
func encodeGetPeers(txID string, self, infoHash identity.ID) []byte {
	return bencode.Serialize(bencode.Dict(map[string]bencode.Value{
		"t": bencode.String(txID),
		"y": bencode.String(TypeQuery),
		"q": bencode.String(MethodGetPeers),
		"a": bencode.Dict(map[string]bencode.Value{
			"id":        bencode.Bytes(self[:]),
			"info_hash": bencode.Bytes(infoHash[:]),
		}),
	}))
}

// findNodeReply is the decoded r-dict of a find_node response.
type findNodeReply struct {
	ID    identity.ID
	Nodes []CompactNodeInfo
}

// getPeersReply is the decoded r-dict of a get_peers response: either
// Values (direct peers) or Nodes (closer nodes to recurse into), per
// the spec's note that both MAY be present and both are consumed.
type getPeersReply struct {
	ID     identity.ID
	Token  string
	Values []CompactPeer
	Nodes  []CompactNodeInfo
}

// transactionIDOf extracts the "t" field of a raw KRPC datagram,
// without validating the rest of its shape. Used to filter incoming
// datagrams against an outstanding query before decoding them in full;
// a malformed or tag-less datagram reports ok=false, which callers
// treat the same as a mismatch (discard and keep listening).
func transactionIDOf(data []byte) (string, bool) {
	v, err := bencode.Parse(data)
	if err != nil {
		return "", false
	}
	tVal, ok := v.Get("t")
	if !ok {
		return "", false
	}
	txID, ok := tVal.Str()
	return txID, ok
}

// decodeReply parses a raw KRPC datagram, verifies the echoed
// transaction id, and returns the raw "r" dict for type-specific
// extraction. A "y"=="e" message is returned as a *KRPCError; any other
// shape is a *ProtocolError. Callers that must tolerate stray replies
// on the socket (the DHT client) filter on transactionIDOf before ever
// reaching this function, so the mismatch case here only guards direct
// callers that skip that filter.
func decodeReply(data []byte, wantTxID string) (bencode.Value, error) {
	v, err := bencode.Parse(data)
	if err != nil {
		return bencode.Value{}, fmt.Errorf("dht: decoding reply: %w", err)
	}
	tVal, ok := v.Get("t")
	if !ok {
		return bencode.Value{}, &ProtocolError{Reason: "missing transaction id"}
	}
	gotTxID, _ := tVal.Str()
	if gotTxID != wantTxID {
		return bencode.Value{}, &TransactionMismatchError{Want: wantTxID, Got: gotTxID}
	}

	yVal, ok := v.Get("y")
	if !ok {
		return bencode.Value{}, &ProtocolError{Reason: "missing message type"}
	}
	y, _ := yVal.Str()

	switch y {
	case TypeResponse:
		r, ok := v.Get("r")
		if !ok {
			return bencode.Value{}, &ProtocolError{Reason: "response missing r dict"}
		}
		return r, nil
	case TypeError:
		eVal, ok := v.Get("e")
		if !ok {
			return bencode.Value{}, &ProtocolError{Reason: "error message missing e list"}
		}
		items, _ := eVal.Items()
		if len(items) != 2 {
			return bencode.Value{}, &ProtocolError{Reason: "error list must have 2 elements"}
		}
		code, _ := items[0].Int()
		msg, _ := items[1].Str()
		return bencode.Value{}, &KRPCError{Code: code, Message: msg}
	default:
		return bencode.Value{}, &ProtocolError{Reason: fmt.Sprintf("unknown message type %q", y)}
	}
}

func extractID(r bencode.Value) (identity.ID, error) {
	var id identity.ID
	idVal, ok := r.Get("id")
	if !ok {
		return id, &ProtocolError{Reason: "reply missing id"}
	}
	raw, ok := idVal.RawBytes()
	if !ok || len(raw) != identity.Size {
		return id, &ProtocolError{Reason: "reply id has the wrong length"}
	}
	copy(id[:], raw)
	return id, nil
}

func parseFindNodeReply(r bencode.Value) (*findNodeReply, error) {
	id, err := extractID(r)
	if err != nil {
		return nil, err
	}
	reply := &findNodeReply{ID: id}
	if nodesVal, ok := r.Get("nodes"); ok {
		raw, ok := nodesVal.RawBytes()
		if !ok {
			return nil, &ProtocolError{Reason: "nodes field is not a byte string"}
		}
		nodes, err := DecodeCompactNodeInfos(raw)
		if err != nil {
			return nil, fmt.Errorf("dht: decoding nodes: %w", err)
		}
		reply.Nodes = nodes
	}
	return reply, nil
}

func parseGetPeersReply(r bencode.Value) (*getPeersReply, error) {
	id, err := extractID(r)
	if err != nil {
		return nil, err
	}
	reply := &getPeersReply{ID: id}

	if tokenVal, ok := r.Get("token"); ok {
		reply.Token, _ = tokenVal.Str()
	}

	if valuesVal, ok := r.Get("values"); ok {
		items, ok := valuesVal.Items()
		if !ok {
			return nil, &ProtocolError{Reason: "values field is not a list"}
		}
		for _, item := range items {
			raw, ok := item.RawBytes()
			if !ok || len(raw) != CompactPeerSize {
				return nil, &ProtocolError{Reason: "values entry is not a 6-byte peer"}
			}
			peers, err := DecodeCompactPeers(raw)
			if err != nil {
				return nil, err
			}
			reply.Values = append(reply.Values, peers...)
		}
	}

	if nodesVal, ok := r.Get("nodes"); ok {
		raw, ok := nodesVal.RawBytes()
		if !ok {
			return nil, &ProtocolError{Reason: "nodes field is not a byte string"}
		}
		nodes, err := DecodeCompactNodeInfos(raw)
		if err != nil {
			return nil, fmt.Errorf("dht: decoding nodes: %w", err)
		}
		reply.Nodes = nodes
	}

	return reply, nil
}
