package port

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmr-tortoise/portreaper/internal/model"
)

// TestIsPortAvailable_FreePort verifies that IsPortAvailable returns true
// for a port that no process is currently using. We let the OS assign a
// port, close the listener, and probe the now-free port immediately.
func TestIsPortAvailable_FreePort(t *testing.T) {
	// Bind ":0" to get a port the OS considered free, then release it.
	listener, err := net.Listen("tcp", ":0")
	require.NoError(t, err, "failed to start probe listener")

	tcpAddr, ok := listener.Addr().(*net.TCPAddr)
	require.True(t, ok)
	freePort := tcpAddr.Port
	require.NoError(t, listener.Close())

	scanner := NewScanner()
	assert.True(t, scanner.IsPortAvailable(freePort, model.ProtocolTCP),
		"port %d should be available after the listener closed", freePort)
}

// TestIsPortAvailable_UsedPort verifies that IsPortAvailable returns false
// when a port is already bound by another listener.
//
// The test starts its own TCP listener, then checks the same port.
// This simulates the state a reap sees before the occupant is killed.
func TestIsPortAvailable_UsedPort(t *testing.T) {
	// ":0" lets the OS pick a free port, avoiding flakiness from
	// hardcoded port numbers on busy CI machines.
	listener, err := net.Listen("tcp", ":0")
	require.NoError(t, err, "failed to start test listener")
	defer func() { _ = listener.Close() }()

	tcpAddr, ok := listener.Addr().(*net.TCPAddr)
	require.True(t, ok)
	port := tcpAddr.Port

	scanner := NewScanner()
	assert.False(t, scanner.IsPortAvailable(port, model.ProtocolTCP),
		"port %d should be in use (we have a listener on it)", port)
}

// TestIsPortAvailable_UDP verifies UDP port probing works correctly.
// We start a UDP listener and confirm IsPortAvailable reports it as used.
func TestIsPortAvailable_UDP(t *testing.T) {
	conn, err := net.ListenPacket("udp", ":0")
	require.NoError(t, err, "failed to start test UDP listener")
	defer func() { _ = conn.Close() }()

	udpAddr, ok := conn.LocalAddr().(*net.UDPAddr)
	require.True(t, ok)
	port := udpAddr.Port

	scanner := NewScanner()
	assert.False(t, scanner.IsPortAvailable(port, model.ProtocolUDP),
		"UDP port %d should be in use", port)
}

// TestIsPortAvailable_UnknownProtocol verifies that an unrecognized protocol
// value causes IsPortAvailable to return false (fail-safe behavior).
func TestIsPortAvailable_UnknownProtocol(t *testing.T) {
	scanner := NewScanner()
	assert.False(t, scanner.IsPortAvailable(50000, model.Protocol("sctp")),
		"unknown protocol should return false (fail-safe)")
}

// TestWaitUntilFree_AlreadyFree verifies that WaitUntilFree returns
// immediately when the port is not bound at all.
func TestWaitUntilFree_AlreadyFree(t *testing.T) {
	listener, err := net.Listen("tcp", ":0")
	require.NoError(t, err)
	tcpAddr := listener.Addr().(*net.TCPAddr)
	port := tcpAddr.Port
	require.NoError(t, listener.Close())

	scanner := NewScanner()
	start := time.Now()
	freed := scanner.WaitUntilFree(context.Background(), port, model.ProtocolTCP, 2*time.Second)
	assert.True(t, freed)
	assert.Less(t, time.Since(start), time.Second, "free port should not require polling")
}

// TestWaitUntilFree_FreedDuringWait verifies that WaitUntilFree notices
// when the occupant releases the port partway through the wait window.
func TestWaitUntilFree_FreedDuringWait(t *testing.T) {
	listener, err := net.Listen("tcp", ":0")
	require.NoError(t, err)
	tcpAddr := listener.Addr().(*net.TCPAddr)
	port := tcpAddr.Port

	// Release the port shortly after WaitUntilFree starts polling.
	go func() {
		time.Sleep(250 * time.Millisecond)
		_ = listener.Close()
	}()

	scanner := NewScanner()
	freed := scanner.WaitUntilFree(context.Background(), port, model.ProtocolTCP, 3*time.Second)
	assert.True(t, freed, "port should be detected as free after the listener closes")
}

// TestWaitUntilFree_Timeout verifies that WaitUntilFree gives up when the
// port stays bound for the whole timeout.
func TestWaitUntilFree_Timeout(t *testing.T) {
	listener, err := net.Listen("tcp", ":0")
	require.NoError(t, err)
	defer func() { _ = listener.Close() }()
	tcpAddr := listener.Addr().(*net.TCPAddr)
	port := tcpAddr.Port

	scanner := NewScanner()
	freed := scanner.WaitUntilFree(context.Background(), port, model.ProtocolTCP, 300*time.Millisecond)
	assert.False(t, freed, "port is still bound, WaitUntilFree should time out")
}

// TestWaitUntilFree_ContextCancelled verifies that cancelling the context
// aborts the wait before the timeout.
func TestWaitUntilFree_ContextCancelled(t *testing.T) {
	listener, err := net.Listen("tcp", ":0")
	require.NoError(t, err)
	defer func() { _ = listener.Close() }()
	tcpAddr := listener.Addr().(*net.TCPAddr)
	port := tcpAddr.Port

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(150 * time.Millisecond)
		cancel()
	}()

	scanner := NewScanner()
	start := time.Now()
	freed := scanner.WaitUntilFree(ctx, port, model.ProtocolTCP, 10*time.Second)
	assert.False(t, freed)
	assert.Less(t, time.Since(start), 5*time.Second, "cancellation should cut the wait short")
}
