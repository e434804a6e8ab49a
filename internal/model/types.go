// Package model defines the domain types for the portreaper CLI.
//
// All values in this package are transient: occupants are discovered by
// querying the OS socket table at invocation time, consumed once, and
// discarded when the process exits. There is no persistent state between
// invocations.
package model

import (
	"fmt"
	"strings"
)

// Protocol identifies the transport protocol of a bound socket.
type Protocol string

const (
	// ProtocolTCP targets TCP listeners. This is the default for every
	// command, matching the overwhelmingly common case of freeing a
	// port held by a web server or database.
	ProtocolTCP Protocol = "tcp"

	// ProtocolUDP targets UDP sockets. UDP has no LISTEN state, so any
	// socket bound to the port counts as an occupant.
	ProtocolUDP Protocol = "udp"
)

// String returns the string representation of Protocol.
// This method satisfies the fmt.Stringer interface, enabling
// human-readable output in CLI commands and logging.
func (p Protocol) String() string {
	return string(p)
}

// IsValid checks whether the Protocol value is one of the
// predefined valid protocols.
func (p Protocol) IsValid() bool {
	switch p {
	case ProtocolTCP, ProtocolUDP:
		return true
	default:
		return false
	}
}

// ParseProtocol converts a string to a Protocol.
// Returns an error if the string does not match any valid protocol.
func ParseProtocol(s string) (Protocol, error) {
	proto := Protocol(strings.ToLower(s))
	if !proto.IsValid() {
		return "", fmt.Errorf("invalid protocol: %q (valid: tcp, udp)", s)
	}
	return proto, nil
}

// ValidatePort checks that a port number is within the valid TCP/UDP
// range. The CLI validates at the flag/argument boundary so that
// out-of-range values are rejected before any OS query is issued.
func ValidatePort(port int) error {
	if port < 1 || port > 65535 {
		return fmt.Errorf("port %d out of range (1-65535)", port)
	}
	return nil
}

// Occupant describes one process currently bound to the target port.
// It is reconstructed from the OS socket table and process metadata at
// the moment of invocation; any field other than PID and Port may be
// empty when the querying user lacks permission to inspect the process.
type Occupant struct {
	// PID is the OS-assigned identifier of the bound process.
	PID int `json:"pid"`

	// Port is the port the occupant was found on.
	Port int `json:"port"`

	// Protocol is the transport protocol of the bound socket.
	Protocol Protocol `json:"protocol"`

	// Name is the short process name (e.g., "node", "docker-proxy").
	Name string `json:"name,omitempty"`

	// User is the username the process runs as.
	User string `json:"user,omitempty"`

	// Cmdline is the full command line of the process.
	Cmdline string `json:"cmdline,omitempty"`

	// Addr is the local address the socket is bound to
	// (e.g., "127.0.0.1", "::", "*").
	Addr string `json:"addr,omitempty"`

	// ContainerID is set when the occupant was traced to a Docker
	// container publishing the port (the occupant process itself is
	// typically docker-proxy). Empty for ordinary processes.
	ContainerID string `json:"containerId,omitempty"`
}

// String returns a human-readable representation of the occupant.
// Format: "PID 4321 (python3) on port 8000/tcp"
func (o *Occupant) String() string {
	name := o.Name
	if name == "" {
		name = "unknown"
	}
	proto := o.Protocol
	if proto == "" {
		proto = ProtocolTCP
	}
	return fmt.Sprintf("PID %d (%s) on port %d/%s", o.PID, name, o.Port, proto)
}

// ActionKind describes what the reaper did to a single occupant.
type ActionKind string

const (
	// ActionTerminated means the occupant exited after the graceful
	// termination signal, within the grace period.
	ActionTerminated ActionKind = "terminated"

	// ActionKilled means the occupant was forcefully killed, either
	// immediately (--force) or after the grace period expired.
	ActionKilled ActionKind = "killed"

	// ActionContainerStopped means the occupant was a container port
	// proxy and the publishing container was stopped instead.
	ActionContainerStopped ActionKind = "container-stopped"

	// ActionAlreadyGone means the occupant exited between discovery and
	// signal delivery. Counted as success: the goal is a free port.
	ActionAlreadyGone ActionKind = "already-gone"

	// ActionSkipped means no signal was sent (dry-run).
	ActionSkipped ActionKind = "skipped"

	// ActionFailed means signal delivery failed and the occupant is
	// still alive (e.g., insufficient privilege).
	ActionFailed ActionKind = "failed"
)

// String returns the string representation of ActionKind.
func (a ActionKind) String() string {
	return string(a)
}

// ReapAction records the outcome for a single occupant within a reap.
type ReapAction struct {
	// Occupant is the process this action targeted.
	Occupant Occupant `json:"occupant"`

	// Kind is what happened to the occupant.
	Kind ActionKind `json:"kind"`

	// Escalated is true when the graceful signal was not enough and
	// the reaper escalated to a forceful kill.
	Escalated bool `json:"escalated,omitempty"`

	// Error holds the delivery failure message when Kind is ActionFailed.
	// Stored as a string so the report marshals cleanly to JSON.
	Error string `json:"error,omitempty"`
}

// Failed reports whether this action ended in a delivery failure.
func (a *ReapAction) Failed() bool {
	return a.Kind == ActionFailed
}

// ReapReport is the complete outcome of one reap operation against one
// port. It is the value marshalled for --json output.
type ReapReport struct {
	// Port is the target port.
	Port int `json:"port"`

	// Protocol is the transport protocol that was queried.
	Protocol Protocol `json:"protocol"`

	// Actions lists the per-occupant outcomes, one entry per PID found.
	// Empty when no process occupied the port.
	Actions []ReapAction `json:"actions"`

	// Freed is true when the port was verified free after the reap
	// (or was already free to begin with).
	Freed bool `json:"freed"`

	// DryRun is true when occupants were resolved but not signalled.
	DryRun bool `json:"dryRun,omitempty"`
}

// NoOccupant reports whether the lookup found nothing bound to the port.
// Absence of an occupant is a normal outcome, not an error.
func (r *ReapReport) NoOccupant() bool {
	return len(r.Actions) == 0
}

// FailedActions returns the subset of actions that ended in a signal
// delivery failure. A non-empty result maps to ExitSignalFailed.
func (r *ReapReport) FailedActions() []ReapAction {
	var failed []ReapAction
	for _, a := range r.Actions {
		if a.Failed() {
			failed = append(failed, a)
		}
	}
	return failed
}

// ExitCode defines the CLI exit codes. These codes allow scripts and CI
// systems to programmatically distinguish "port was/is free" from the
// ways a reap can fail.
type ExitCode int

const (
	// ExitSuccess indicates the command completed successfully.
	// Finding no occupant on the target port is success.
	ExitSuccess ExitCode = 0

	// ExitGeneralError indicates an unspecified error occurred.
	ExitGeneralError ExitCode = 1

	// ExitInvalidPort indicates the port argument was not a valid
	// port number.
	ExitInvalidPort ExitCode = 2

	// ExitDockerNotRunning indicates container-aware reaping was
	// requested but the Docker daemon is not accessible.
	ExitDockerNotRunning ExitCode = 3

	// ExitResolveFailed indicates the OS socket table could not be
	// queried for the port's occupants.
	ExitResolveFailed ExitCode = 4

	// ExitSignalFailed indicates signal delivery failed for at least
	// one occupant. The remaining occupants were still attempted.
	ExitSignalFailed ExitCode = 5

	// ExitPortStillBound indicates every signal was delivered but the
	// port was still occupied when the reaper re-checked it.
	ExitPortStillBound ExitCode = 6

	// ExitProtectedPort indicates the target port is on the configured
	// protected list and the reap was refused before any signal.
	ExitProtectedPort ExitCode = 7
)

// CLIError is a custom error type that carries an exit code.
// This allows the CLI layer to translate domain errors into
// appropriate process exit codes.
type CLIError struct {
	// Code is the exit code to return to the OS.
	Code ExitCode

	// Message is the human-readable error description.
	Message string

	// Err is the underlying error, if any.
	Err error
}

// Error satisfies the error interface. It returns the human-readable
// error message, optionally including the underlying error.
func (e *CLIError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the underlying error for use with errors.Is/errors.As.
func (e *CLIError) Unwrap() error {
	return e.Err
}

// NewCLIError creates a new CLIError with the given exit code and message.
func NewCLIError(code ExitCode, message string) *CLIError {
	return &CLIError{Code: code, Message: message}
}

// WrapCLIError creates a new CLIError that wraps an existing error.
func WrapCLIError(code ExitCode, message string, err error) *CLIError {
	return &CLIError{Code: code, Message: message, Err: err}
}
