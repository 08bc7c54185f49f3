// Package bencode implements the bencode encoding used by BitTorrent's
// control-plane messages: DHT KRPC queries/replies and tracker metadata.
package bencode

import "fmt"

// Kind identifies which alternative of the bencode grammar a Value holds.
type Kind int

const (
	KindInteger Kind = iota
	KindBytes
	KindList
	KindDict
)

// Value is a tagged sum over the four bencode grammar productions.
// Dict keys are raw byte strings, not text; callers that know their keys
// are ASCII may still use Go string literals to build/read them.
type Value struct {
	kind    Kind
	integer int64
	bytes   []byte
	list    []Value
	dict    map[string]Value
}

// Integer constructs an integer Value.
func Integer(v int64) Value {
	return Value{kind: KindInteger, integer: v}
}

// Bytes constructs a byte-string Value. The slice is not copied.
func Bytes(v []byte) Value {
	return Value{kind: KindBytes, bytes: v}
}

// String constructs a byte-string Value from a Go string.
func String(v string) Value {
	return Value{kind: KindBytes, bytes: []byte(v)}
}

// List constructs a list Value.
func List(v ...Value) Value {
	return Value{kind: KindList, list: v}
}

// Dict constructs a dict Value from a key/value map.
func Dict(v map[string]Value) Value {
	return Value{kind: KindDict, dict: v}
}

// Kind reports which grammar production this Value holds.
func (v Value) Kind() Kind { return v.kind }

// Int returns the integer payload and whether v is a KindInteger.
func (v Value) Int() (int64, bool) {
	if v.kind != KindInteger {
		return 0, false
	}
	return v.integer, true
}

// RawBytes returns the byte-string payload and whether v is KindBytes.
func (v Value) RawBytes() ([]byte, bool) {
	if v.kind != KindBytes {
		return nil, false
	}
	return v.bytes, true
}

// Str returns the byte-string payload decoded as a Go string.
func (v Value) Str() (string, bool) {
	b, ok := v.RawBytes()
	if !ok {
		return "", false
	}
	return string(b), true
}

// Items returns the list payload and whether v is KindList.
func (v Value) Items() ([]Value, bool) {
	if v.kind != KindList {
		return nil, false
	}
	return v.list, true
}

// Entries returns the dict payload and whether v is KindDict.
func (v Value) Entries() (map[string]Value, bool) {
	if v.kind != KindDict {
		return nil, false
	}
	return v.dict, true
}

// Get looks up a key in a dict Value. Returns ok=false if v is not a
// dict or the key is absent.
func (v Value) Get(key string) (Value, bool) {
	d, ok := v.Entries()
	if !ok {
		return Value{}, false
	}
	val, ok := d[key]
	return val, ok
}

// Equal reports whether two Values represent the same bencode term.
func (v Value) Equal(other Value) bool {
	if v.kind != other.kind {
		return false
	}
	switch v.kind {
	case KindInteger:
		return v.integer == other.integer
	case KindBytes:
		if len(v.bytes) != len(other.bytes) {
			return false
		}
		for i := range v.bytes {
			if v.bytes[i] != other.bytes[i] {
				return false
			}
		}
		return true
	case KindList:
		if len(v.list) != len(other.list) {
			return false
		}
		for i := range v.list {
			if !v.list[i].Equal(other.list[i]) {
				return false
			}
		}
		return true
	case KindDict:
		if len(v.dict) != len(other.dict) {
			return false
		}
		for k, val := range v.dict {
			ov, ok := other.dict[k]
			if !ok || !val.Equal(ov) {
				return false
			}
		}
		return true
	}
	return false
}

func (v Value) String() string {
	switch v.kind {
	case KindInteger:
		return fmt.Sprintf("Integer(%d)", v.integer)
	case KindBytes:
		return fmt.Sprintf("Bytes(%q)", v.bytes)
	case KindList:
		return fmt.Sprintf("List(%v)", v.list)
	case KindDict:
		return fmt.Sprintf("Dict(%v)", v.dict)
	}
	return "<invalid>"
}
