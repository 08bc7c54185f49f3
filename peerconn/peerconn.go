// Package peerconn opens a TCP connection to a discovered peer and
// performs the BitTorrent handshake. Only the handshake framing and
// the single post-handshake "interested" message are in scope; piece
// exchange belongs to a higher layer.
package peerconn

import (
	"bytes"
	"context"
	"fmt"
	"net"
	"time"

	"github.com/anacrolix/log"
	"github.com/matei-oltean/magnetpeers/identity"
)

// Protocol is the fixed protocol name advertised in every handshake.
const Protocol = "BitTorrent protocol"

// HandshakeSize is the wire width of a handshake message.
const HandshakeSize = 1 + len(Protocol) + 8 + identity.Size + identity.Size

// Extension bits within the 8 reserved handshake bytes. The core
// leaves these zero on send; a later metadata-extension layer can set
// them without changing this handshake contract.
const (
	ExtensionDHT      byte = 0x01 // reserved[7] bit 0, BEP 5
	ExtensionExtended byte = 0x10 // reserved[5] bit 4, BEP 10
)

// connectTimeout bounds the initial TCP dial.
const connectTimeout = 3 * time.Second

// ProtocolMismatchError means the peer's handshake did not echo the
// expected protocol string.
type ProtocolMismatchError struct {
	Got string
}

func (e *ProtocolMismatchError) Error() string {
	return fmt.Sprintf("peerconn: unexpected protocol string %q", e.Got)
}

// InfoHashMismatchError means the peer's handshake carried a different
// infohash than the one we sent.
type InfoHashMismatchError struct {
	Want, Got identity.ID
}

func (e *InfoHashMismatchError) Error() string {
	return fmt.Sprintf("peerconn: infohash mismatch: sent %s, received %s", e.Want, e.Got)
}

// Handshake is the parsed 68-byte handshake message.
type Handshake struct {
	Reserved [8]byte
	InfoHash identity.ID
	PeerID   identity.ID
}

// Encode serialises h to its 68-byte wire form.
func (h Handshake) Encode() []byte {
	buf := make([]byte, HandshakeSize)
	buf[0] = byte(len(Protocol))
	copy(buf[1:], Protocol)
	copy(buf[1+len(Protocol):], h.Reserved[:])
	copy(buf[1+len(Protocol)+8:], h.InfoHash[:])
	copy(buf[1+len(Protocol)+8+identity.Size:], h.PeerID[:])
	return buf
}

// decodeHandshake parses a 68-byte handshake message.
func decodeHandshake(buf []byte) (Handshake, error) {
	var h Handshake
	if len(buf) != HandshakeSize {
		return h, fmt.Errorf("peerconn: handshake has length %d, want %d", len(buf), HandshakeSize)
	}
	protocolLen := int(buf[0])
	if protocolLen != len(Protocol) || string(buf[1:1+protocolLen]) != Protocol {
		return h, &ProtocolMismatchError{Got: string(buf[1 : 1+min(protocolLen, len(buf)-1)])}
	}
	copy(h.Reserved[:], buf[1+protocolLen:1+protocolLen+8])
	copy(h.InfoHash[:], buf[1+protocolLen+8:1+protocolLen+8+identity.Size])
	copy(h.PeerID[:], buf[1+protocolLen+8+identity.Size:])
	return h, nil
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}

// Conn is an established, handshaken peer connection.
type Conn struct {
	net.Conn
	PeerHandshake Handshake
}

// Dialer opens handshaken peer connections. Logger is overridable the
// way dht.Client and tracker.Client are, for callers that want the
// handshake traffic of a single walk grouped under one logger; use
// DefaultDialer or set Logger explicitly rather than the zero value.
type Dialer struct {
	Logger log.Logger
}

// DefaultDialer is used by the package-level Dial function.
var DefaultDialer = Dialer{Logger: log.Default}

// Dial opens a TCP connection to addr, sends a handshake for infoHash
// under ourID, and validates the peer's reciprocal handshake, logging
// through DefaultDialer. See Dialer.Dial.
func Dial(ctx context.Context, addr string, ourID, infoHash identity.ID) (*Conn, error) {
	return DefaultDialer.Dial(ctx, addr, ourID, infoHash)
}

// Dial opens a TCP connection to addr, sends a handshake for infoHash
// under ourID, and validates the peer's reciprocal handshake. The
// connection is closed and an error returned if fewer than
// HandshakeSize bytes come back, the protocol string differs, or the
// returned infohash does not match; each such failure is logged at
// Warning before the error is returned, mirroring how dht and tracker
// treat an unresponsive or misbehaving remote as routine, not fatal.
func (d Dialer) Dial(ctx context.Context, addr string, ourID, infoHash identity.ID) (*Conn, error) {
	logger := d.Logger

	dialer := net.Dialer{Timeout: connectTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		logger.Levelf(log.Warning, "peerconn: dial %s: %v", addr, err)
		return nil, fmt.Errorf("peerconn: dial %s: %w", addr, err)
	}

	ours := Handshake{InfoHash: infoHash, PeerID: ourID}
	if _, err := conn.Write(ours.Encode()); err != nil {
		conn.Close()
		logger.Levelf(log.Warning, "peerconn: writing handshake to %s: %v", addr, err)
		return nil, fmt.Errorf("peerconn: writing handshake to %s: %w", addr, err)
	}

	received := make([]byte, HandshakeSize)
	if deadline, ok := ctx.Deadline(); ok {
		conn.SetReadDeadline(deadline)
	}
	if _, err := readFull(conn, received); err != nil {
		conn.Close()
		logger.Levelf(log.Warning, "peerconn: reading handshake from %s: %v", addr, err)
		return nil, fmt.Errorf("peerconn: reading handshake from %s: %w", addr, err)
	}
	conn.SetReadDeadline(time.Time{})

	theirs, err := decodeHandshake(received)
	if err != nil {
		conn.Close()
		logger.Levelf(log.Warning, "peerconn: handshake from %s: %v", addr, err)
		return nil, err
	}
	if !bytes.Equal(theirs.InfoHash[:], infoHash[:]) {
		conn.Close()
		logger.Levelf(log.Warning, "peerconn: handshake from %s: infohash mismatch", addr)
		return nil, &InfoHashMismatchError{Want: infoHash, Got: theirs.InfoHash}
	}

	return &Conn{Conn: conn, PeerHandshake: theirs}, nil
}

func readFull(conn net.Conn, buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := conn.Read(buf[total:])
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// interestedMessage is the 5-byte wire form of the one post-handshake
// message this core may send: length-prefix 0x00000001, id 0x01.
var interestedMessage = []byte{0x00, 0x00, 0x00, 0x01, 0x01}

// SendInterested writes the "interested" message. Subsequent piece
// exchange is out of scope for this connection type.
func (c *Conn) SendInterested() error {
	_, err := c.Write(interestedMessage)
	return err
}
