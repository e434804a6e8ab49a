// Package reaper implements the lookup-and-kill core of portreaper.
package reaper

import (
	"context"
	"fmt"
	"time"

	"github.com/shirou/gopsutil/v4/process"

	"github.com/mmr-tortoise/portreaper/internal/model"
	"github.com/mmr-tortoise/portreaper/internal/occupant"
	"github.com/mmr-tortoise/portreaper/internal/port"
)

const (
	// DefaultGracePeriod is how long an occupant gets to exit after the
	// graceful signal before the reaper escalates to a forceful kill.
	DefaultGracePeriod = 5 * time.Second

	// livenessPollInterval is how often the reaper re-checks whether a
	// signalled occupant has exited during the grace period.
	livenessPollInterval = 100 * time.Millisecond

	// freedVerifyTimeout bounds the post-kill wait for the kernel to
	// release the port. A SIGTERM'd server may spend a moment in its
	// shutdown handler before the listener actually closes.
	freedVerifyTimeout = 2 * time.Second
)

// ContainerReaper stops the container behind a port occupant when the
// occupant is a container port proxy (docker-proxy). Killing the proxy
// process directly does not free the port durably — the daemon restarts
// it — so the container itself must be stopped.
//
// Implemented by the docker package; nil disables container awareness.
type ContainerReaper interface {
	// StopPublisher stops the container publishing the occupant's port.
	// handled is false when the occupant is not a container proxy (or no
	// publishing container was found), in which case the reaper falls
	// back to ordinary signal delivery.
	StopPublisher(ctx context.Context, occ model.Occupant) (containerID string, handled bool, err error)
}

// Options configures a single reap run.
type Options struct {
	// GracePeriod is the time an occupant gets between the graceful
	// signal and forceful escalation. Zero means DefaultGracePeriod.
	GracePeriod time.Duration

	// Force skips the graceful signal and sends the unconditional kill
	// immediately.
	Force bool

	// DryRun resolves and reports occupants without signalling anything.
	DryRun bool

	// Protocol selects the socket table to query. Zero value means TCP.
	Protocol model.Protocol

	// ProtectedPorts are refused before any lookup or signal. Guards
	// against reaping sshd out from under yourself.
	ProtectedPorts []int

	// Containers enables container-aware reaping when non-nil.
	Containers ContainerReaper

	// Log receives verbose progress messages. May be nil.
	Log func(format string, args ...interface{})
}

// Reaper executes reap operations against a resolver and a port scanner.
//
// The signal primitives are fields so tests can substitute failing or
// recording implementations; callers outside tests use New, which wires
// the platform implementations.
type Reaper struct {
	resolver occupant.Resolver
	scanner  *port.Scanner
	opts     Options

	terminate func(pid int) error
	kill      func(pid int) error
	alive     func(pid int) bool
}

// New creates a Reaper with platform signal primitives.
// The resolver and scanner must not be nil.
func New(resolver occupant.Resolver, scanner *port.Scanner, opts Options) *Reaper {
	if opts.Protocol == "" {
		opts.Protocol = model.ProtocolTCP
	}
	if opts.GracePeriod <= 0 {
		opts.GracePeriod = DefaultGracePeriod
	}

	return &Reaper{
		resolver:  resolver,
		scanner:   scanner,
		opts:      opts,
		terminate: terminateProcess,
		kill:      killProcess,
		alive:     processAlive,
	}
}

// logf forwards to the configured verbose logger, if any.
func (r *Reaper) logf(format string, args ...interface{}) {
	if r.opts.Log != nil {
		r.opts.Log(format, args...)
	}
}

// Reap discovers and terminates every process bound to targetPort.
//
// The returned report is non-nil whenever resolution succeeded, even
// when the error is non-nil — partial outcomes (two occupants killed,
// one delivery failed) are reported alongside the error so the CLI can
// print what actually happened.
//
// Error classification:
//   - invalid port          → ExitInvalidPort
//   - protected port        → ExitProtectedPort (refused before lookup)
//   - socket query failed   → ExitResolveFailed
//   - any delivery failed   → ExitSignalFailed (batch still completed)
//   - port still bound      → ExitPortStillBound
//
// An empty occupant set returns a report with no actions and a nil
// error: absence of an occupant is a normal outcome.
func (r *Reaper) Reap(ctx context.Context, targetPort int) (*model.ReapReport, error) {
	if err := model.ValidatePort(targetPort); err != nil {
		return nil, model.WrapCLIError(model.ExitInvalidPort, "invalid port", err)
	}

	for _, protected := range r.opts.ProtectedPorts {
		if targetPort == protected {
			return nil, model.NewCLIError(model.ExitProtectedPort,
				fmt.Sprintf("port %d is protected by configuration, refusing to reap", targetPort))
		}
	}

	r.logf("Resolving occupants of port %d/%s", targetPort, r.opts.Protocol)
	occupants, err := r.resolver.ResolvePort(ctx, targetPort, r.opts.Protocol)
	if err != nil {
		return nil, model.WrapCLIError(model.ExitResolveFailed,
			fmt.Sprintf("failed to resolve occupants of port %d", targetPort), err)
	}

	report := &model.ReapReport{
		Port:     targetPort,
		Protocol: r.opts.Protocol,
		DryRun:   r.opts.DryRun,
	}

	if len(occupants) == 0 {
		r.logf("No process found occupying port %d", targetPort)
		report.Freed = true
		return report, nil
	}

	if r.opts.DryRun {
		for _, occ := range occupants {
			report.Actions = append(report.Actions, model.ReapAction{
				Occupant: occ,
				Kind:     model.ActionSkipped,
			})
		}
		return report, nil
	}

	// Batch semantics: every occupant is attempted regardless of
	// earlier failures in the set.
	for _, occ := range occupants {
		report.Actions = append(report.Actions, r.reapOne(ctx, occ))
	}

	report.Freed = r.scanner.WaitUntilFree(ctx, targetPort, r.opts.Protocol, freedVerifyTimeout)

	if failed := report.FailedActions(); len(failed) > 0 {
		return report, model.NewCLIError(model.ExitSignalFailed,
			fmt.Sprintf("failed to terminate %d of %d occupant(s) of port %d",
				len(failed), len(report.Actions), targetPort))
	}
	if !report.Freed {
		return report, model.NewCLIError(model.ExitPortStillBound,
			fmt.Sprintf("port %d is still bound after signalling all occupants", targetPort))
	}

	return report, nil
}

// reapOne terminates a single occupant and classifies the outcome.
func (r *Reaper) reapOne(ctx context.Context, occ model.Occupant) model.ReapAction {
	action := model.ReapAction{Occupant: occ}

	// Container proxies are handled through the container runtime when
	// enabled: the daemon would just respawn a killed docker-proxy.
	if r.opts.Containers != nil {
		containerID, handled, err := r.opts.Containers.StopPublisher(ctx, occ)
		if handled && err == nil {
			action.Occupant.ContainerID = containerID
			action.Kind = model.ActionContainerStopped
			r.logf("Stopped container %s publishing port %d", containerID, occ.Port)
			return action
		}
		if handled && err != nil {
			// The container was identified but could not be stopped.
			// Fall back to signalling the proxy process itself.
			r.logf("Container stop failed for %s, falling back to process signal: %v", occ.String(), err)
		}
	}

	if r.opts.Force {
		return r.forceKill(action, occ)
	}

	r.logf("Sending graceful termination to %s", occ.String())
	if err := r.terminate(occ.PID); err != nil {
		if !r.alive(occ.PID) {
			// The occupant exited between discovery and delivery.
			action.Kind = model.ActionAlreadyGone
			return action
		}
		action.Kind = model.ActionFailed
		action.Error = err.Error()
		return action
	}

	if r.waitForExit(ctx, occ.PID) {
		action.Kind = model.ActionTerminated
		return action
	}

	// Grace period expired with the occupant still running: escalate.
	r.logf("Grace period expired for %s, escalating to kill", occ.String())
	action.Escalated = true
	return r.forceKill(action, occ)
}

// forceKill delivers the unconditional kill signal and classifies the
// result. A "no such process" failure counts as success — the port is
// what matters, and its previous owner is gone either way.
func (r *Reaper) forceKill(action model.ReapAction, occ model.Occupant) model.ReapAction {
	if err := r.kill(occ.PID); err != nil {
		if !r.alive(occ.PID) {
			if action.Escalated {
				// Exited after SIGTERM, just slower than our last poll.
				action.Kind = model.ActionTerminated
			} else {
				action.Kind = model.ActionAlreadyGone
			}
			return action
		}
		action.Kind = model.ActionFailed
		action.Error = err.Error()
		return action
	}
	action.Kind = model.ActionKilled
	return action
}

// waitForExit polls the occupant's liveness for the grace period.
// Returns true if the process exited before the period (or the context)
// ran out.
func (r *Reaper) waitForExit(ctx context.Context, pid int) bool {
	deadline := time.Now().Add(r.opts.GracePeriod)

	for {
		if !r.alive(pid) {
			return true
		}
		if time.Now().After(deadline) {
			return false
		}

		select {
		case <-ctx.Done():
			return false
		case <-time.After(livenessPollInterval):
		}
	}
}

// processAlive reports whether a PID currently names a running process.
// gopsutil's PidExists handles the per-platform probing (signal 0 on
// Unix, handle lookup on Windows).
func processAlive(pid int) bool {
	exists, err := process.PidExists(int32(pid))
	if err != nil {
		// When in doubt, assume alive: the caller escalates or reports
		// a failure, both safer than declaring a live process gone.
		return true
	}
	return exists
}
