// container.go implements the container side of container-aware reaping:
// recognizing port-proxy occupants, locating the running container that
// publishes a port, and stopping it.
package docker

import (
	"context"
	"fmt"
	"strings"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"

	"github.com/mmr-tortoise/portreaper/internal/model"
)

// proxyProcessNames are the process names of userland port proxies that
// hold published container ports on behalf of the daemon. Signalling
// these directly does not free the port durably.
var proxyProcessNames = map[string]bool{
	"docker-proxy":       true,
	"com.docker.backend": true, // Docker Desktop on macOS
	"rootlessport":       true, // rootless Docker / Podman port forwarder
}

// IsPortProxy reports whether a process name identifies a container
// port proxy.
func IsPortProxy(processName string) bool {
	return proxyProcessNames[processName]
}

// ContainerInfo identifies the container found to be publishing a port.
type ContainerInfo struct {
	// ID is the full container identifier.
	ID string

	// Name is the container name without the API's leading "/".
	Name string

	// Image is the image the container was created from.
	Image string
}

// ShortID returns the 12-character ID prefix used in CLI output,
// matching what `docker ps` displays.
func (c *ContainerInfo) ShortID() string {
	if len(c.ID) > 12 {
		return c.ID[:12]
	}
	return c.ID
}

// FindContainerPublishingPort returns the running container that
// publishes the given host port, or nil when no running container does.
//
// Only running containers are listed: a stopped container does not hold
// its published ports, so it cannot be the occupant being traced.
func FindContainerPublishingPort(ctx context.Context, cli *Client, hostPort int) (*ContainerInfo, error) {
	containers, err := cli.Inner().ContainerList(ctx, container.ListOptions{})
	if err != nil {
		return nil, model.WrapCLIError(
			model.ExitDockerNotRunning,
			"failed to list Docker containers",
			err,
		)
	}

	for _, c := range containers {
		if publishesPort(c, hostPort) {
			info := containerToInfo(c)
			return &info, nil
		}
	}

	return nil, nil
}

// StopContainer stops a running container by its ID. The daemon sends
// the container's configured stop signal (SIGTERM by default), waits its
// default timeout (typically 10 seconds), then kills the container. This
// mirrors the reaper's own graceful-then-forceful strategy, delegated to
// the daemon which owns the container lifecycle.
func StopContainer(ctx context.Context, cli *Client, containerID string) error {
	// StopOptions with nil Timeout uses Docker's default stop timeout.
	err := cli.Inner().ContainerStop(ctx, containerID, container.StopOptions{})
	if err != nil {
		return fmt.Errorf("failed to stop container %q: %w", containerID, err)
	}
	return nil
}

// publishesPort reports whether a container publishes the given host
// port on any interface. This is a pure mapping function over the API's
// port list, kept separate so it can be tested without a daemon.
func publishesPort(c types.Container, hostPort int) bool {
	for _, p := range c.Ports {
		if int(p.PublicPort) == hostPort {
			return true
		}
	}
	return false
}

// containerToInfo converts a Docker API container summary to
// ContainerInfo. The API returns names with a leading "/" that is an
// artifact of the API, not meaningful to users.
func containerToInfo(c types.Container) ContainerInfo {
	name := ""
	if len(c.Names) > 0 {
		name = strings.TrimPrefix(c.Names[0], "/")
	}
	return ContainerInfo{
		ID:    c.ID,
		Name:  name,
		Image: c.Image,
	}
}

// PublisherStopper adapts the Docker client to the reaper's
// ContainerReaper interface.
type PublisherStopper struct {
	cli *Client

	// log receives verbose progress messages. May be nil.
	log func(format string, args ...interface{})
}

// NewPublisherStopper creates a PublisherStopper around a connected
// Docker client. logf may be nil.
func NewPublisherStopper(cli *Client, logf func(format string, args ...interface{})) *PublisherStopper {
	return &PublisherStopper{cli: cli, log: logf}
}

// logf forwards to the configured verbose logger, if any.
func (s *PublisherStopper) logf(format string, args ...interface{}) {
	if s.log != nil {
		s.log(format, args...)
	}
}

// StopPublisher stops the container publishing the occupant's port.
//
// handled is false when the occupant is not a port proxy, or when no
// running container publishes the port (a proxy can outlive its
// container briefly during teardown) — in both cases the caller falls
// back to ordinary signal delivery.
func (s *PublisherStopper) StopPublisher(ctx context.Context, occ model.Occupant) (string, bool, error) {
	if !IsPortProxy(occ.Name) {
		return "", false, nil
	}

	info, err := FindContainerPublishingPort(ctx, s.cli, occ.Port)
	if err != nil {
		return "", true, err
	}
	if info == nil {
		s.logf("Occupant %s looks like a port proxy but no running container publishes port %d", occ.String(), occ.Port)
		return "", false, nil
	}

	s.logf("Port %d is published by container %s (%s), stopping it", occ.Port, info.Name, info.ShortID())
	if err := StopContainer(ctx, s.cli, info.ID); err != nil {
		return info.ID, true, err
	}

	return info.ID, true, nil
}
