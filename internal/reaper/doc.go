// Package reaper implements the reap operation: terminate every process
// bound to a port and verify the port came free.
//
// The default termination strategy is graceful-then-forceful. Each
// occupant first receives SIGTERM so it can run its shutdown handlers;
// the reaper polls for exit during a grace period and escalates to
// SIGKILL only if the process persists. The --force path skips straight
// to SIGKILL, reproducing the unconditional-kill behavior of the
// original utility.
//
// Failure semantics: the occupant set is processed as a batch. A
// delivery failure for one PID never aborts the batch — the remaining
// occupants are still signalled, and the failure is carried in the
// report and in the exit code. A PID that turns out to have exited
// between discovery and delivery counts as success, because the goal is
// a free port, not a delivered signal.
//
// A race window exists between the socket-table query and signal
// delivery: an unrelated process may rebind the port in between and be
// missed (or, for PID reuse, hit). The window is inherent to one-shot
// lookup-and-kill tools and is not mitigated.
package reaper
