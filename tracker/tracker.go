// Package tracker implements the BitTorrent UDP tracker protocol
// (BEP 15): a two-phase connect/announce exchange that hands back a
// compact peer list for an infohash, independent of the DHT.
package tracker

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"net"
	"time"

	"github.com/anacrolix/log"
	"github.com/matei-oltean/magnetpeers/dht"
	"github.com/matei-oltean/magnetpeers/identity"
	"github.com/matei-oltean/magnetpeers/netio"
)

// protocolID is the BEP 15 magic constant identifying a connect request.
const protocolID uint64 = 0x41727101980

// Wire actions.
const (
	actionConnect  uint32 = 0
	actionAnnounce uint32 = 1
)

const (
	connectRequestSize   = 16
	connectReplySize     = 16
	announceRequestSize  = 98
	announceReplyMinSize = 20
)

// Config tunes a Client's protocol timings. The zero value is not
// usable; build one with DefaultConfig.
type Config struct {
	// ConnectTimeout bounds a single connect exchange.
	ConnectTimeout time.Duration
	// AnnounceTimeout bounds a single announce exchange.
	AnnounceTimeout time.Duration
	// ConnectionLifetime is how long a connection_id remains valid
	// before it must be refreshed with a fresh connect (spec
	// invariant 5).
	ConnectionLifetime time.Duration
}

// DefaultConfig returns the BEP 15 recommended timings.
func DefaultConfig() Config {
	return Config{
		ConnectTimeout:     dht.FindNodeTimeout,
		AnnounceTimeout:    dht.GetPeersTimeout,
		ConnectionLifetime: 60 * time.Second,
	}
}

// Event mirrors the BEP 15 announce event field.
type Event uint32

const (
	EventNone      Event = 0
	EventCompleted Event = 1
	EventStarted   Event = 2
	EventStopped   Event = 3
)

// InvalidResponseError means a reply was too short or otherwise
// malformed for its expected shape.
type InvalidResponseError struct {
	Reason string
}

func (e *InvalidResponseError) Error() string {
	return fmt.Sprintf("tracker: invalid response: %s", e.Reason)
}

// TransactionMismatchError means a reply's transaction_id did not
// match the outstanding request.
type TransactionMismatchError struct {
	Want, Got uint32
}

func (e *TransactionMismatchError) Error() string {
	return fmt.Sprintf("tracker: transaction id mismatch: sent %d, received %d", e.Want, e.Got)
}

// ErrNotConnected is returned if Announce is called while the client is
// Disconnected: before any successful Connect, or after a failed
// announce exchange dropped the connection.
var ErrNotConnected = fmt.Errorf("tracker: not connected")

// connection holds the state of a successful connect().
type connection struct {
	id         uint64
	obtainedAt time.Time
	lifetime   time.Duration
}

func (c *connection) expired() bool {
	return c == nil || time.Since(c.obtainedAt) > c.lifetime
}

// Client is a UDP tracker session. It follows the
// Disconnected -> Connected -> Disconnected state machine of BEP 15,
// lazily reconnecting when the connection_id has expired.
type Client struct {
	Addr   *net.UDPAddr
	PeerID identity.ID
	Key    uint32
	Logger log.Logger
	Config Config

	conn *connection
}

// NewClient builds a tracker client for addr using peerID as the
// announced peer id (by convention, the session's DHT node id), with
// DefaultConfig timings.
func NewClient(addr *net.UDPAddr, peerID identity.ID) *Client {
	var keyBuf [4]byte
	rand.Read(keyBuf[:])
	return &Client{
		Addr:   addr,
		PeerID: peerID,
		Key:    binary.BigEndian.Uint32(keyBuf[:]),
		Logger: log.Default,
		Config: DefaultConfig(),
	}
}

// Connected reports whether the client currently holds an
// unexpired connection_id.
func (c *Client) Connected() bool {
	return !c.conn.expired()
}

func randomTransactionID() (uint32, error) {
	var buf [4]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return 0, fmt.Errorf("tracker: generating transaction id: %w", err)
	}
	return binary.BigEndian.Uint32(buf[:]), nil
}

// Connect performs the connect handshake, establishing a connection_id
// usable by Announce for up to one minute.
func (c *Client) Connect(ctx context.Context) error {
	txID, err := randomTransactionID()
	if err != nil {
		return err
	}

	req := make([]byte, connectRequestSize)
	binary.BigEndian.PutUint64(req[0:8], protocolID)
	binary.BigEndian.PutUint32(req[8:12], actionConnect)
	binary.BigEndian.PutUint32(req[12:16], txID)

	reply, err := netio.SendAndReceive(ctx, c.Addr, req, c.Config.ConnectTimeout)
	if err != nil {
		return fmt.Errorf("tracker: connect to %s: %w", c.Addr, err)
	}
	if len(reply) < connectReplySize {
		return &InvalidResponseError{Reason: fmt.Sprintf("connect reply too short: %d bytes", len(reply))}
	}
	gotAction := binary.BigEndian.Uint32(reply[0:4])
	gotTxID := binary.BigEndian.Uint32(reply[4:8])
	if gotTxID != txID {
		return &TransactionMismatchError{Want: txID, Got: gotTxID}
	}
	if gotAction != actionConnect {
		return &InvalidResponseError{Reason: fmt.Sprintf("unexpected action %d in connect reply", gotAction)}
	}

	c.conn = &connection{
		id:         binary.BigEndian.Uint64(reply[8:16]),
		obtainedAt: time.Now(),
		lifetime:   c.Config.ConnectionLifetime,
	}
	return nil
}

// AnnounceParams supplies the session-specific fields of an announce
// request; callers that have no piece-download state yet may leave
// Downloaded/Left/Uploaded zero.
type AnnounceParams struct {
	Downloaded int64
	Left       int64
	Uploaded   int64
	Event      Event
	Port       uint16
	NumWant    int32
}

// AnnounceResult is the decoded reply of a successful announce.
type AnnounceResult struct {
	Interval  int32
	Leechers  int32
	Seeders   int32
	Peers     []dht.CompactPeer
}

// Announce requests peers for infoHash. It returns ErrNotConnected if the
// client is Disconnected, and transparently reconnects first if its
// connection_id has expired.
func (c *Client) Announce(ctx context.Context, infoHash identity.ID, params AnnounceParams) (*AnnounceResult, error) {
	if c.conn == nil {
		return nil, ErrNotConnected
	}
	if c.conn.expired() {
		if err := c.Connect(ctx); err != nil {
			return nil, err
		}
	}

	txID, err := randomTransactionID()
	if err != nil {
		return nil, err
	}

	numWant := params.NumWant
	if numWant == 0 {
		numWant = -1
	}

	req := make([]byte, announceRequestSize)
	binary.BigEndian.PutUint64(req[0:8], c.conn.id)
	binary.BigEndian.PutUint32(req[8:12], actionAnnounce)
	binary.BigEndian.PutUint32(req[12:16], txID)
	copy(req[16:36], infoHash[:])
	copy(req[36:56], c.PeerID[:])
	binary.BigEndian.PutUint64(req[56:64], uint64(params.Downloaded))
	binary.BigEndian.PutUint64(req[64:72], uint64(params.Left))
	binary.BigEndian.PutUint64(req[72:80], uint64(params.Uploaded))
	binary.BigEndian.PutUint32(req[80:84], uint32(params.Event))
	// req[84:88] ip_address left zero: reply to sender.
	binary.BigEndian.PutUint32(req[88:92], c.Key)
	binary.BigEndian.PutUint32(req[92:96], uint32(numWant))
	binary.BigEndian.PutUint16(req[96:98], params.Port)

	reply, err := netio.SendAndReceive(ctx, c.Addr, req, c.Config.AnnounceTimeout)
	if err != nil {
		c.conn = nil
		return nil, fmt.Errorf("tracker: announce to %s: %w", c.Addr, err)
	}
	if len(reply) < announceReplyMinSize {
		return nil, &InvalidResponseError{Reason: fmt.Sprintf("announce reply too short: %d bytes", len(reply))}
	}
	gotAction := binary.BigEndian.Uint32(reply[0:4])
	gotTxID := binary.BigEndian.Uint32(reply[4:8])
	if gotTxID != txID {
		return nil, &TransactionMismatchError{Want: txID, Got: gotTxID}
	}
	if gotAction != actionAnnounce {
		return nil, &InvalidResponseError{Reason: fmt.Sprintf("unexpected action %d in announce reply", gotAction)}
	}

	result := &AnnounceResult{
		Interval: int32(binary.BigEndian.Uint32(reply[8:12])),
		Leechers: int32(binary.BigEndian.Uint32(reply[12:16])),
		Seeders:  int32(binary.BigEndian.Uint32(reply[16:20])),
	}

	peerBytes := reply[20:]
	usable := len(peerBytes) - len(peerBytes)%dht.CompactPeerSize
	peers, err := dht.DecodeCompactPeers(peerBytes[:usable])
	if err != nil {
		return nil, fmt.Errorf("tracker: decoding peer list: %w", err)
	}
	result.Peers = peers
	return result, nil
}
