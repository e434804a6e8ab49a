// Package occupant resolves which processes are bound to a port.
//
// Resolution is two-layered:
//
//   - The primary path queries the OS socket table through gopsutil
//     (net.Connections), which reads /proc/net/* on Linux and the
//     equivalent native interfaces on macOS and Windows, then attributes
//     each matching socket to its owning PID and enriches it with
//     process metadata (name, user, command line).
//   - When gopsutil finds matching sockets but cannot attribute a PID
//     (typically a permission limitation on macOS for processes owned
//     by other users), the resolver falls back to parsing `lsof` output
//     on Unix systems.
//
// The resolver reports the complete occupant set for the port: multiple
// simultaneous occupants (SO_REUSEPORT, forked workers) are all returned,
// deduplicated by PID.
package occupant
