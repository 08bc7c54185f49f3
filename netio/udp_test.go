package netio

import (
	"context"
	"net"
	"testing"
	"time"
)

// echoServer listens on loopback and, once, echoes back whatever it
// receives with a fixed suffix appended.
func echoServer(t *testing.T) *net.UDPAddr {
	t.Helper()
	conn, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	t.Cleanup(func() { conn.Close() })

	go func() {
		buf := make([]byte, 1024)
		n, from, err := conn.ReadFromUDP(buf)
		if err != nil {
			return
		}
		reply := append(append([]byte{}, buf[:n]...), "-ack"...)
		conn.WriteToUDP(reply, from)
	}()

	return conn.LocalAddr().(*net.UDPAddr)
}

func TestSendAndReceive(t *testing.T) {
	addr := echoServer(t)

	reply, err := SendAndReceive(context.Background(), addr, []byte("ping"), time.Second)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(reply) != "ping-ack" {
		t.Errorf("got %q, want %q", reply, "ping-ack")
	}
}

func TestSendAndReceiveTimeout(t *testing.T) {
	// A listener that never replies.
	conn, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer conn.Close()
	addr := conn.LocalAddr().(*net.UDPAddr)

	_, err = SendAndReceive(context.Background(), addr, []byte("ping"), 50*time.Millisecond)
	if err != ErrTimeout {
		t.Errorf("got %v, want ErrTimeout", err)
	}
}

func TestSendAndReceiveContextCancel(t *testing.T) {
	conn, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer conn.Close()
	addr := conn.LocalAddr().(*net.UDPAddr)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	_, err = SendAndReceive(ctx, addr, []byte("ping"), 5*time.Second)
	if err == nil {
		t.Fatal("expected an error after cancellation")
	}
}
