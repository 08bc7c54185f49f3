// Package magnet parses BEP 9 magnet URIs into the infohash, display
// name, tracker list, and any inline peer addresses a CLI needs to
// start a session. It is a thin convenience layer, not a core
// component: the DHT walk and tracker announce only need the infohash.
package magnet

import (
	"encoding/base32"
	"encoding/hex"
	"fmt"
	"net/url"
	"strings"

	"github.com/matei-oltean/magnetpeers/identity"
)

// Magnet is the parsed form of a "magnet:?xt=urn:btih:..." URI.
// Only Hash is guaranteed to be populated.
type Magnet struct {
	Hash          identity.ID
	Name          string
	TrackersURL   []*url.URL
	PeerAddresses []string
}

// Parse parses a magnet URI per BEP 9.
func Parse(raw string) (*Magnet, error) {
	link, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("magnet: %w", err)
	}
	if link.Scheme != "magnet" {
		return nil, fmt.Errorf("magnet: %q is not a magnet URI", raw)
	}

	query := link.Query()
	xts, ok := query["xt"]
	if !ok || len(xts) == 0 {
		return nil, fmt.Errorf("magnet: %q is missing parameter \"xt\"", raw)
	}
	parts := strings.SplitN(xts[0], "urn:btih:", 2)
	if len(parts) != 2 {
		return nil, fmt.Errorf("magnet: %q is missing \"urn:btih:\"", raw)
	}

	hash, err := decodeHash(parts[1])
	if err != nil {
		return nil, fmt.Errorf("magnet: %q: %w", raw, err)
	}

	var name string
	if n, ok := query["dn"]; ok && len(n) > 0 {
		name = n[0]
	}

	var trackers []*url.URL
	for _, t := range query["tr"] {
		u, err := url.Parse(t)
		if err == nil {
			trackers = append(trackers, u)
		}
	}

	return &Magnet{
		Hash:          hash,
		Name:          name,
		TrackersURL:   trackers,
		PeerAddresses: query["x.pe"],
	}, nil
}

func decodeHash(encoded string) (identity.ID, error) {
	var id identity.ID
	switch len(encoded) {
	case identity.Size * 2:
		decoded, err := hex.DecodeString(encoded)
		if err != nil {
			return id, err
		}
		copy(id[:], decoded)
	case 32:
		decoded, err := base32.StdEncoding.DecodeString(strings.ToUpper(encoded))
		if err != nil {
			return id, err
		}
		copy(id[:], decoded)
	default:
		return id, fmt.Errorf("hash %q has unexpected length %d (want 32 or 40)", encoded, len(encoded))
	}
	return id, nil
}

// HasPeers reports whether the magnet URI carried any x.pe peer hints.
func (m *Magnet) HasPeers() bool {
	return len(m.PeerAddresses) > 0
}

// HasTrackers reports whether the magnet URI carried any tr trackers.
func (m *Magnet) HasTrackers() bool {
	return len(m.TrackersURL) > 0
}

// DisplayName returns Name, falling back to a truncated infohash when
// the magnet carried no dn parameter.
func (m *Magnet) DisplayName() string {
	if m.Name != "" {
		return m.Name
	}
	hex := m.Hash.String()
	return hex[:16] + "..."
}

// InfoHashHex returns the lowercase hex infohash.
func (m *Magnet) InfoHashHex() string {
	return m.Hash.String()
}
