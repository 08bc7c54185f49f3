package bencode

import (
	"bytes"
	"errors"
	"testing"
)

func TestParseInteger(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    int64
		wantErr bool
	}{
		{"positive", "i42e", 42, false},
		{"negative", "i-7e", -7, false},
		{"zero", "i0e", 0, false},
		{"negative zero", "i-0e", 0, true},
		{"leading zero", "i042e", 0, true},
		{"empty", "ie", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, err := Parse([]byte(tt.input))
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error, got value %v", v)
				}
				var badInt *BadIntegerError
				if !errors.As(err, &badInt) {
					t.Errorf("expected BadIntegerError, got %T: %v", err, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			got, ok := v.Int()
			if !ok || got != tt.want {
				t.Errorf("got %v, want Integer(%d)", v, tt.want)
			}
		})
	}
}

func TestParseBytes(t *testing.T) {
	v, err := Parse([]byte("4:spam"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	s, ok := v.Str()
	if !ok || s != "spam" {
		t.Errorf("got %v, want Bytes(spam)", v)
	}

	_, err = Parse([]byte("5:spam"))
	var trunc *TruncatedError
	if !errors.As(err, &trunc) {
		t.Errorf("expected TruncatedError, got %T: %v", err, err)
	}
}

func TestParseUnexpectedByte(t *testing.T) {
	_, err := Parse([]byte("x"))
	var unexpected *UnexpectedByteError
	if !errors.As(err, &unexpected) {
		t.Errorf("expected UnexpectedByteError, got %T: %v", err, err)
	}
}

func TestParseDictDuplicateKey(t *testing.T) {
	_, err := Parse([]byte("d1:ai1e1:ai2ee"))
	var dup *DuplicateKeyError
	if !errors.As(err, &dup) {
		t.Errorf("expected DuplicateKeyError, got %T: %v", err, err)
	}
}

func TestParseDictOutOfOrderKeysTolerated(t *testing.T) {
	v, err := Parse([]byte("d1:bi1e1:ai2ee"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	entries, ok := v.Entries()
	if !ok || len(entries) != 2 {
		t.Fatalf("expected a 2-entry dict, got %v", v)
	}
}

func TestSerializeDictCanonicalSort(t *testing.T) {
	v := Dict(map[string]Value{
		"b": Integer(1),
		"a": Integer(2),
	})
	got := Serialize(v)
	want := []byte("d1:ai2e1:bi1ee")
	if !bytes.Equal(got, want) {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestRoundTripValue(t *testing.T) {
	v := Dict(map[string]Value{
		"t": String("aa"),
		"y": String("q"),
		"a": Dict(map[string]Value{
			"id":   Bytes([]byte("abcdefghij0123456789")),
			"port": Integer(6881),
		}),
		"l": List(Integer(1), Integer(2), String("x")),
	})
	encoded := Serialize(v)
	decoded, err := Parse(encoded)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !decoded.Equal(v) {
		t.Errorf("round-trip mismatch: got %v, want %v", decoded, v)
	}
}

func TestCanonicalRoundTripBytes(t *testing.T) {
	canonical := []byte("d3:bar4:spam3:fooi42ee")
	v, err := Parse(canonical)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got := Serialize(v)
	if !bytes.Equal(got, canonical) {
		t.Errorf("got %q, want %q", got, canonical)
	}
}

func TestParsePrefixLeavesRemainder(t *testing.T) {
	v, rest, err := ParsePrefix([]byte("i1eTRAILING"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	n, _ := v.Int()
	if n != 1 {
		t.Errorf("got %d, want 1", n)
	}
	if string(rest) != "TRAILING" {
		t.Errorf("got remainder %q, want %q", rest, "TRAILING")
	}
}
