// Package occupant resolves which processes are bound to a port.
package occupant

import (
	"context"
	"fmt"
	"runtime"

	gnet "github.com/shirou/gopsutil/v4/net"
	"github.com/shirou/gopsutil/v4/process"

	"github.com/mmr-tortoise/portreaper/internal/model"
)

// listenState is the TCP socket state string gopsutil reports for
// listening sockets.
const listenState = "LISTEN"

// Resolver discovers the processes bound to a port. The reaper depends
// on this interface rather than on the system implementation so tests
// can substitute a fixed occupant set.
type Resolver interface {
	// ResolvePort returns every process bound to the given port, one
	// Occupant per PID. An empty slice with a nil error means the port
	// is unoccupied — that is a normal outcome, not an error.
	ResolvePort(ctx context.Context, targetPort int, protocol model.Protocol) ([]model.Occupant, error)
}

// SystemResolver resolves occupants against the live OS socket table
// via gopsutil, with an lsof fallback on Unix systems.
type SystemResolver struct {
	// disableLsofFallback turns off the lsof fallback. Set in tests to
	// keep resolution fully in-process.
	disableLsofFallback bool
}

// NewSystemResolver creates a resolver backed by the OS socket table.
func NewSystemResolver() *SystemResolver {
	return &SystemResolver{}
}

// ResolvePort returns every process bound to targetPort.
//
// For TCP only sockets in LISTEN state count: a connected client socket
// whose ephemeral port happens to equal the target must not be killed.
// UDP has no LISTEN state, so any bound UDP socket counts.
//
// Sockets are deduplicated by PID — a process listening on both the
// IPv4 and IPv6 wildcard appears once. When the socket table shows a
// bound socket whose PID could not be attributed (gopsutil reports
// PID 0 for sockets owned by other users on macOS), the resolver falls
// back to lsof before giving up.
func (r *SystemResolver) ResolvePort(ctx context.Context, targetPort int, protocol model.Protocol) ([]model.Occupant, error) {
	conns, err := gnet.ConnectionsWithContext(ctx, protocol.String())
	if err != nil {
		// The socket table itself could not be read. On Unix, lsof may
		// still succeed (it has its own privilege model).
		if occ, lsofErr := r.lsofFallback(ctx, targetPort, protocol); lsofErr == nil {
			return occ, nil
		}
		return nil, fmt.Errorf("failed to query socket table: %w", err)
	}

	seen := make(map[int32]bool)
	unattributed := false
	var occupants []model.Occupant

	for _, c := range conns {
		if int(c.Laddr.Port) != targetPort {
			continue
		}
		if protocol == model.ProtocolTCP && c.Status != listenState {
			continue
		}
		if c.Pid <= 0 {
			// Socket is bound but the owner is not visible to us.
			unattributed = true
			continue
		}
		if seen[c.Pid] {
			continue
		}
		seen[c.Pid] = true

		occupants = append(occupants, r.describe(ctx, c.Pid, targetPort, protocol, c.Laddr.IP))
	}

	if len(occupants) == 0 && unattributed {
		// We know something holds the port but not what. lsof usually
		// can tell even when /proc attribution failed.
		if occ, lsofErr := r.lsofFallback(ctx, targetPort, protocol); lsofErr == nil && len(occ) > 0 {
			return occ, nil
		}
		return nil, fmt.Errorf(
			"port %d is bound but the owning process could not be identified (try re-running with elevated privileges)",
			targetPort)
	}

	return occupants, nil
}

// ListListeners returns every listening TCP socket on the host, one
// Occupant per (PID, port) pair. Used by the `list` command; callers
// group by PID for display.
func (r *SystemResolver) ListListeners(ctx context.Context) ([]model.Occupant, error) {
	conns, err := gnet.ConnectionsWithContext(ctx, "tcp")
	if err != nil {
		return nil, fmt.Errorf("failed to query socket table: %w", err)
	}

	// Deduplicate (pid, port) pairs: the same listener shows up once per
	// address family when bound to both wildcards.
	type key struct {
		pid  int32
		port uint32
	}
	seen := make(map[key]bool)
	var occupants []model.Occupant

	for _, c := range conns {
		if c.Status != listenState || c.Pid <= 0 {
			continue
		}
		k := key{pid: c.Pid, port: c.Laddr.Port}
		if seen[k] {
			continue
		}
		seen[k] = true

		occupants = append(occupants, r.describe(ctx, c.Pid, int(c.Laddr.Port), model.ProtocolTCP, c.Laddr.IP))
	}

	return occupants, nil
}

// describe builds an Occupant for a PID, enriching it with process
// metadata. Every metadata lookup is best-effort: the process may be
// owned by another user or may have exited since the socket table was
// read, and a reap must still be able to target the bare PID.
func (r *SystemResolver) describe(ctx context.Context, pid int32, targetPort int, protocol model.Protocol, addr string) model.Occupant {
	occ := model.Occupant{
		PID:      int(pid),
		Port:     targetPort,
		Protocol: protocol,
		Addr:     addr,
	}

	proc, err := process.NewProcessWithContext(ctx, pid)
	if err != nil {
		return occ
	}

	if name, err := proc.NameWithContext(ctx); err == nil {
		occ.Name = name
	}
	if user, err := proc.UsernameWithContext(ctx); err == nil {
		occ.User = user
	}
	if cmdline, err := proc.CmdlineWithContext(ctx); err == nil {
		occ.Cmdline = cmdline
	}

	return occ
}

// lsofFallback shells out to lsof on Unix systems. On Windows (or when
// disabled for tests) it reports that no fallback is available.
func (r *SystemResolver) lsofFallback(ctx context.Context, targetPort int, protocol model.Protocol) ([]model.Occupant, error) {
	if r.disableLsofFallback || runtime.GOOS == "windows" {
		return nil, fmt.Errorf("no fallback resolver available")
	}
	return resolveWithLsof(ctx, targetPort, protocol)
}
