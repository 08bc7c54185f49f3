package bencode

import "fmt"

// UnexpectedByteError is returned when the parser encounters a byte that
// cannot start any grammar production at the current cursor position.
type UnexpectedByteError struct {
	Pos  int
	Byte byte
}

func (e *UnexpectedByteError) Error() string {
	return fmt.Sprintf("bencode: unexpected byte %q at position %d", e.Byte, e.Pos)
}

// TruncatedError is returned when the input ends before a production
// that was already committed to (a declared byte-string length, an
// unterminated integer or container) can be completed.
type TruncatedError struct {
	Pos int
}

func (e *TruncatedError) Error() string {
	return fmt.Sprintf("bencode: truncated input at position %d", e.Pos)
}

// BadIntegerError is returned for a malformed integer literal: a leading
// zero other than the literal "0", a bare "-0", or non-digit content.
type BadIntegerError struct {
	Pos int
}

func (e *BadIntegerError) Error() string {
	return fmt.Sprintf("bencode: malformed integer at position %d", e.Pos)
}

// BadLengthError is returned for a malformed or overflowing byte-string
// length prefix.
type BadLengthError struct {
	Pos int
}

func (e *BadLengthError) Error() string {
	return fmt.Sprintf("bencode: malformed length at position %d", e.Pos)
}

// DuplicateKeyError is returned when a dict repeats a key.
type DuplicateKeyError struct {
	Pos int
	Key string
}

func (e *DuplicateKeyError) Error() string {
	return fmt.Sprintf("bencode: duplicate dict key %q at position %d", e.Key, e.Pos)
}
