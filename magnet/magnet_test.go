package magnet

import "testing"

const sampleMagnet = "magnet:?xt=urn:btih:dd8255ecdc7ca55fb0bbf81323d87062db1f6d1c&dn=Big+Buck+Bunny" +
	"&tr=udp%3A%2F%2Fexplodie.org%3A6969&tr=udp%3A%2F%2Ftracker.opentrackr.org%3A1337" +
	"&x.pe=1.2.3.4%3A6881"

func TestParseHex(t *testing.T) {
	m, err := Parse("magnet:?xt=urn:btih:dd8255ecdc7ca55fb0bbf81323d87062db1f6d1c")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	expected := [20]byte{0xdd, 0x82, 0x55, 0xec, 0xdc, 0x7c, 0xa5, 0x5f, 0xb0, 0xbb,
		0xf8, 0x13, 0x23, 0xd8, 0x70, 0x62, 0xdb, 0x1f, 0x6d, 0x1c}
	if m.Hash != expected {
		t.Errorf("hash mismatch: got %x, want %x", m.Hash, expected)
	}
}

func TestParseBase32CaseInsensitive(t *testing.T) {
	upper, err := Parse("magnet:?xt=urn:btih:AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !upper.Hash.IsZero() {
		t.Errorf("expected all-zero hash, got %x", upper.Hash)
	}

	lower, err := Parse("magnet:?xt=urn:btih:aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if upper.Hash != lower.Hash {
		t.Error("case-insensitive base32 should produce the same hash")
	}
}

func TestParseWithTrackersAndPeers(t *testing.T) {
	m, err := Parse(sampleMagnet)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if m.Name != "Big Buck Bunny" {
		t.Errorf("name = %q, want %q", m.Name, "Big Buck Bunny")
	}
	if !m.HasTrackers() || len(m.TrackersURL) != 2 {
		t.Fatalf("expected two trackers, got %v", m.TrackersURL)
	}
	if !m.HasPeers() || m.PeerAddresses[0] != "1.2.3.4:6881" {
		t.Fatalf("expected one peer hint, got %v", m.PeerAddresses)
	}
}

func TestParseInvalid(t *testing.T) {
	tests := []struct {
		name string
		uri  string
	}{
		{"no scheme", "xt=urn:btih:abc123"},
		{"missing xt", "magnet:?dn=test"},
		{"invalid xt format", "magnet:?xt=invalid"},
		{"wrong hash length", "magnet:?xt=urn:btih:abc123"},
		{"invalid hex", "magnet:?xt=urn:btih:zzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzz"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Parse(tt.uri); err == nil {
				t.Error("expected an error, got nil")
			}
		})
	}
}

func TestMagnetHelpers(t *testing.T) {
	m := &Magnet{
		Hash: [20]byte{0xdd, 0x82, 0x55, 0xec, 0xdc, 0x7c, 0xa5, 0x5f, 0xb0, 0xbb,
			0xf8, 0x13, 0x23, 0xd8, 0x70, 0x62, 0xdb, 0x1f, 0x6d, 0x1c},
		Name:          "Test",
		PeerAddresses: []string{"1.2.3.4:6881"},
	}

	if !m.HasPeers() {
		t.Error("expected HasPeers() to be true")
	}
	if m.HasTrackers() {
		t.Error("expected HasTrackers() to be false")
	}
	if m.DisplayName() != "Test" {
		t.Errorf("expected DisplayName() 'Test', got %q", m.DisplayName())
	}
	if m.InfoHashHex() != "dd8255ecdc7ca55fb0bbf81323d87062db1f6d1c" {
		t.Errorf("unexpected InfoHashHex: %s", m.InfoHashHex())
	}

	m.Name = ""
	if m.DisplayName() != "dd8255ecdc7ca55f..." {
		t.Errorf("expected fallback display name, got %q", m.DisplayName())
	}
}
