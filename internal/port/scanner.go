// Package port implements port availability probing via the OS network
// stack.
package port

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/mmr-tortoise/portreaper/internal/model"
)

// pollInterval is how often WaitUntilFree re-probes the port while
// waiting for the kernel to release it after the occupant exits.
const pollInterval = 100 * time.Millisecond

// Scanner checks whether specific ports are available on the host machine.
//
// It uses the operating system's network stack (net.Listen / net.ListenPacket)
// to determine if a port is free. This is the most reliable method because it
// asks the OS directly, rather than parsing /proc/net/* or relying on external
// commands like `lsof` or `ss` which may require elevated permissions.
//
// The struct is currently stateless, but is defined as a struct (rather than
// bare functions) so that future options (e.g., bind address) can be added
// without breaking the API. It also makes the Scanner injectable as a
// dependency, which improves testability of the Reaper.
type Scanner struct{}

// NewScanner creates a new Scanner instance.
// Currently no configuration is needed, but this constructor follows Go
// convention and allows future expansion (e.g., custom bind address).
func NewScanner() *Scanner {
	return &Scanner{}
}

// IsPortAvailable checks whether a single port is free on the host machine.
//
// For TCP, it attempts net.Listen("tcp", ":port"). For UDP, it attempts
// net.ListenPacket("udp", ":port"). If the listen/bind succeeds, the port
// is available — the listener is immediately closed via defer.
//
// We bind to all interfaces (":port" rather than "127.0.0.1:port") because
// occupants typically bind 0.0.0.0 or ::, so we need to check the same
// address space to avoid false positives.
//
// Returns true if the port is free, false if it is already in use or the
// protocol is not recognized.
func (s *Scanner) IsPortAvailable(port int, protocol model.Protocol) bool {
	addr := fmt.Sprintf(":%d", port)

	switch protocol {
	case model.ProtocolTCP:
		// net.Listen opens a TCP listener. If the port is already bound by
		// another process, this returns an error (typically "address already in use").
		listener, err := net.Listen("tcp", addr)
		if err != nil {
			return false
		}
		// We close immediately because we only needed to test availability,
		// not actually accept connections.
		defer func() { _ = listener.Close() }()
		return true

	case model.ProtocolUDP:
		// net.ListenPacket is the UDP equivalent. UDP is connectionless, so we
		// use ListenPacket (which returns a PacketConn) instead of Listen.
		conn, err := net.ListenPacket("udp", addr)
		if err != nil {
			return false
		}
		defer func() { _ = conn.Close() }()
		return true

	default:
		// Unknown protocol — treat as unavailable to fail safe.
		return false
	}
}

// WaitUntilFree polls the port until it becomes available, the timeout
// elapses, or the context is cancelled.
//
// After a process is killed, the kernel may take a short moment to tear
// down the socket, and a SIGTERM'd server may spend time in its shutdown
// handler before releasing the listener. Polling bridges that gap so the
// reap outcome reflects the state the user cares about: can something new
// bind this port now?
//
// Returns true as soon as the port probes free. Returns false when the
// timeout elapses or the context is cancelled with the port still bound.
func (s *Scanner) WaitUntilFree(ctx context.Context, port int, protocol model.Protocol, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)

	for {
		if s.IsPortAvailable(port, protocol) {
			return true
		}
		if time.Now().After(deadline) {
			return false
		}

		select {
		case <-ctx.Done():
			return false
		case <-time.After(pollInterval):
		}
	}
}
