// lsof.go implements the fallback occupant resolver that parses lsof
// output. It is used when gopsutil cannot attribute a bound socket to a
// PID, which happens on macOS for processes owned by other users.
//
// lsof is invoked per target port:
//
//	lsof -iTCP:8000 -sTCP:LISTEN -n -P
//
// -n and -P disable hostname and port-name resolution so the NAME
// column stays in "addr:port" form. lsof exits with status 1 when it
// finds nothing, which is a normal "no occupant" outcome, not an error.
package occupant

import (
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"

	"github.com/mmr-tortoise/portreaper/internal/model"
)

// lsofArgs builds the lsof argument list for one port.
// UDP sockets have no LISTEN state, so the -s filter is TCP-only.
func lsofArgs(targetPort int, protocol model.Protocol) []string {
	if protocol == model.ProtocolUDP {
		return []string{fmt.Sprintf("-iUDP:%d", targetPort), "-n", "-P"}
	}
	return []string{fmt.Sprintf("-iTCP:%d", targetPort), "-sTCP:LISTEN", "-n", "-P"}
}

// resolveWithLsof runs lsof and parses its output into occupants.
func resolveWithLsof(ctx context.Context, targetPort int, protocol model.Protocol) ([]model.Occupant, error) {
	cmd := exec.CommandContext(ctx, "lsof", lsofArgs(targetPort, protocol)...)
	output, err := cmd.Output()
	if err != nil {
		// lsof returns exit code 1 when no matching files are found.
		// That means the port is unoccupied, which is not an error.
		if exitErr, ok := err.(*exec.ExitError); ok && exitErr.ExitCode() == 1 {
			return nil, nil
		}
		return nil, fmt.Errorf("lsof failed: %w", err)
	}

	return parseLsofOutput(string(output), targetPort, protocol, lookupCmdline), nil
}

// parseLsofOutput parses lsof table output into one Occupant per PID.
//
// Expected column layout:
//
//	COMMAND PID USER FD TYPE DEVICE SIZE/OFF NODE NAME
//	node    123 user 22u IPv4 ...    0t0      TCP  *:3000 (LISTEN)
//
// The port in the NAME column is checked against targetPort even though
// lsof was already invoked with a port filter — lsof matches source and
// destination ports of established connections in some configurations,
// and a stray match must not widen the kill set.
//
// cmdlineLookup fetches the full command line for a PID; it is a
// parameter so tests can substitute a fixed table.
func parseLsofOutput(output string, targetPort int, protocol model.Protocol, cmdlineLookup func(pid int) string) []model.Occupant {
	lines := strings.Split(output, "\n")
	seen := make(map[int]bool)
	var occupants []model.Occupant

	for i, line := range lines {
		// Skip the header line and blanks.
		if i == 0 || strings.TrimSpace(line) == "" {
			continue
		}

		fields := strings.Fields(line)
		if len(fields) < 9 {
			continue
		}

		name := fields[0]
		pidStr := fields[1]
		user := fields[2]
		nameField := fields[len(fields)-1]

		// The trailing "(LISTEN)" state marker is its own field.
		if strings.HasPrefix(nameField, "(") && len(fields) >= 10 {
			nameField = fields[len(fields)-2]
		}

		pid, err := strconv.Atoi(pidStr)
		if err != nil || pid <= 0 {
			continue
		}

		addr, portNum := splitAddrPort(nameField)
		if portNum != targetPort {
			continue
		}

		// One occupant per PID: a process bound on multiple interfaces
		// produces one lsof row per socket.
		if seen[pid] {
			continue
		}
		seen[pid] = true

		occ := model.Occupant{
			PID:      pid,
			Port:     targetPort,
			Protocol: protocol,
			Name:     name,
			User:     user,
			Addr:     addr,
		}
		if cmdlineLookup != nil {
			occ.Cmdline = cmdlineLookup(pid)
		}
		occupants = append(occupants, occ)
	}

	return occupants
}

// splitAddrPort splits a lsof NAME field into address and port.
// Handles "*:8000", "127.0.0.1:8000", and "[::1]:8000".
func splitAddrPort(nameField string) (string, int) {
	idx := strings.LastIndex(nameField, ":")
	if idx < 0 || idx == len(nameField)-1 {
		return "", 0
	}

	port, err := strconv.Atoi(nameField[idx+1:])
	if err != nil {
		return "", 0
	}

	addr := nameField[:idx]
	// Strip IPv6 brackets: "[::1]" → "::1".
	addr = strings.TrimPrefix(addr, "[")
	addr = strings.TrimSuffix(addr, "]")

	return addr, port
}

// lookupCmdline fetches the full command line of a PID via ps.
// Returns "" when the process is gone or ps is unavailable.
func lookupCmdline(pid int) string {
	out, err := exec.Command("ps", "-p", strconv.Itoa(pid), "-o", "command=").Output()
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(out))
}
