// Package netio provides the UDP request/reply primitives shared by
// the DHT and tracker clients: acquire an ephemeral socket, send one
// datagram, wait for a reply, release the socket. SendAndReceive waits
// for exactly one datagram; SendAndReceiveMatching keeps reading past
// ones its caller rejects, for protocols that must discard stray or
// mismatched replies rather than fail on them.
package netio

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"
)

// maxDatagramSize bounds the reply buffer; DHT/tracker replies are well
// under the Ethernet-era UDP practical ceiling.
const maxDatagramSize = 64 * 1024

// ErrTimeout is returned when no reply arrives within the given timeout.
var ErrTimeout = errors.New("netio: timeout waiting for reply")

// SendAndReceive binds an ephemeral UDP endpoint, connects it to addr,
// writes payload as a single datagram, and waits for exactly one reply
// datagram or ctx cancellation or timeout, whichever comes first. It
// never retries; retry policy belongs to the caller.
func SendAndReceive(ctx context.Context, addr *net.UDPAddr, payload []byte, timeout time.Duration) ([]byte, error) {
	conn, err := net.DialUDP("udp4", nil, addr)
	if err != nil {
		return nil, fmt.Errorf("netio: dial %s: %w", addr, err)
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok && deadline.Before(time.Now().Add(timeout)) {
		conn.SetDeadline(deadline)
	} else {
		conn.SetDeadline(time.Now().Add(timeout))
	}

	if _, err := conn.Write(payload); err != nil {
		return nil, fmt.Errorf("netio: write to %s: %w", addr, err)
	}

	// Close the connection if ctx is cancelled while we're blocked
	// reading, so the read returns promptly instead of riding out the
	// deadline.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	buf := make([]byte, maxDatagramSize)
	n, err := conn.Read(buf)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return nil, ErrTimeout
		}
		return nil, fmt.Errorf("netio: read from %s: %w", addr, err)
	}
	return buf[:n], nil
}

// SendAndReceiveMatching is SendAndReceive for callers that must tolerate
// stray or mismatched replies arriving on the same socket: it sends payload
// once, then keeps reading datagrams — discarding any for which accept
// returns false — until one is accepted or the deadline (ctx or timeout,
// whichever is sooner) elapses. It never resends; a query that never sees
// an accepted reply simply times out.
func SendAndReceiveMatching(ctx context.Context, addr *net.UDPAddr, payload []byte, timeout time.Duration, accept func([]byte) bool) ([]byte, error) {
	conn, err := net.DialUDP("udp4", nil, addr)
	if err != nil {
		return nil, fmt.Errorf("netio: dial %s: %w", addr, err)
	}
	defer conn.Close()

	var deadline time.Time
	if d, ok := ctx.Deadline(); ok && d.Before(time.Now().Add(timeout)) {
		deadline = d
	} else {
		deadline = time.Now().Add(timeout)
	}
	conn.SetDeadline(deadline)

	if _, err := conn.Write(payload); err != nil {
		return nil, fmt.Errorf("netio: write to %s: %w", addr, err)
	}

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	buf := make([]byte, maxDatagramSize)
	for {
		n, err := conn.Read(buf)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				return nil, ErrTimeout
			}
			return nil, fmt.Errorf("netio: read from %s: %w", addr, err)
		}
		reply := buf[:n]
		if accept(reply) {
			out := make([]byte, n)
			copy(out, reply)
			return out, nil
		}
		// Discard and keep listening for the real reply until the
		// deadline set above fires on the next Read.
	}
}
