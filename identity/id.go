// Package identity provides the 160-bit identifier space shared by DHT
// node ids and torrent infohashes, plus the XOR-distance metric used to
// order a Kademlia search.
package identity

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
)

// Size is the width in bytes of the identifier space (160 bits).
const Size = 20

// ID is an opaque 160-bit identifier: a DHT node id or a torrent
// infohash. Both live in the same space and are compared the same way.
type ID [Size]byte

// Generate returns a random ID, suitable as a process's own node id.
func Generate() (ID, error) {
	var id ID
	_, err := rand.Read(id[:])
	return id, err
}

// ParseHex decodes a 40-character hex string into an ID.
func ParseHex(s string) (ID, error) {
	var id ID
	if len(s) != Size*2 {
		return id, fmt.Errorf("identity: hex id must be %d characters, got %d", Size*2, len(s))
	}
	decoded, err := hex.DecodeString(s)
	if err != nil {
		return id, fmt.Errorf("identity: invalid hex id: %w", err)
	}
	copy(id[:], decoded)
	return id, nil
}

// String returns the lowercase hex representation of the id.
func (id ID) String() string {
	return hex.EncodeToString(id[:])
}

// Distance returns the Kademlia XOR distance between two ids, itself an
// ID so it can be compared with Less.
func Distance(a, b ID) ID {
	var d ID
	for i := range a {
		d[i] = a[i] ^ b[i]
	}
	return d
}

// Less reports whether a represents a smaller 160-bit unsigned integer
// than b, comparing the full width (not a truncated prefix).
func (a ID) Less(b ID) bool {
	for i := range a {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return false
}

// IsZero reports whether id is the all-zero identifier.
func (id ID) IsZero() bool {
	return id == ID{}
}
