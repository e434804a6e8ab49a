// Package docker implements container-aware reaping.
//
// On a Docker host, a published container port is held by the daemon's
// userland proxy (docker-proxy), not by the workload itself. Killing
// the proxy is futile — the daemon restarts it — and SIGKILLing daemon
// infrastructure is the wrong tool anyway. When the occupant of a port
// is recognized as a container port proxy, this package locates the
// running container publishing that port through the Docker API and
// stops the container, which releases the port durably.
//
// The Client wrapper handles Docker socket autodetection across Linux,
// macOS, and Windows, and daemon liveness checks (Ping).
package docker
