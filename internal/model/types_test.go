package model

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestProtocol_String verifies that Protocol values produce the expected
// string representations for CLI output and JSON serialization.
func TestProtocol_String(t *testing.T) {
	assert.Equal(t, "tcp", ProtocolTCP.String())
	assert.Equal(t, "udp", ProtocolUDP.String())
}

// TestProtocol_IsValid checks that only defined protocol values pass validation.
func TestProtocol_IsValid(t *testing.T) {
	assert.True(t, ProtocolTCP.IsValid())
	assert.True(t, ProtocolUDP.IsValid())
	assert.False(t, Protocol("sctp").IsValid())
	assert.False(t, Protocol("").IsValid())
}

// TestParseProtocol verifies string-to-protocol conversion,
// including case normalization and error cases.
func TestParseProtocol(t *testing.T) {
	tests := []struct {
		input   string
		want    Protocol
		wantErr bool
	}{
		{"tcp", ProtocolTCP, false},
		{"TCP", ProtocolTCP, false},
		{"udp", ProtocolUDP, false},
		{"Udp", ProtocolUDP, false},
		{"icmp", "", true},
		{"", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseProtocol(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

// TestValidatePort verifies the port range check at the CLI boundary.
// The original utility passed out-of-range values straight through to
// the OS query; validation here is the redesigned behavior since the
// port is now user input.
func TestValidatePort(t *testing.T) {
	assert.NoError(t, ValidatePort(1))
	assert.NoError(t, ValidatePort(8000))
	assert.NoError(t, ValidatePort(65535))
	assert.Error(t, ValidatePort(0))
	assert.Error(t, ValidatePort(-1))
	assert.Error(t, ValidatePort(65536))
}

// TestOccupant_String verifies the human-readable occupant format used
// in reap output, including the fallbacks for missing metadata.
func TestOccupant_String(t *testing.T) {
	o := &Occupant{PID: 4321, Port: 8000, Protocol: ProtocolTCP, Name: "python3"}
	assert.Equal(t, "PID 4321 (python3) on port 8000/tcp", o.String())

	// Name may be unavailable when the process is owned by another user.
	anon := &Occupant{PID: 99, Port: 443}
	assert.Equal(t, "PID 99 (unknown) on port 443/tcp", anon.String())
}

// TestReapReport_NoOccupant verifies that an empty action list is
// reported as "no occupant" — the normal outcome for a free port.
func TestReapReport_NoOccupant(t *testing.T) {
	report := &ReapReport{Port: 8000, Protocol: ProtocolTCP, Freed: true}
	assert.True(t, report.NoOccupant())

	report.Actions = append(report.Actions, ReapAction{
		Occupant: Occupant{PID: 4321, Port: 8000},
		Kind:     ActionKilled,
	})
	assert.False(t, report.NoOccupant())
}

// TestReapReport_FailedActions verifies that failed deliveries are
// extracted from a mixed batch while successful ones are excluded.
func TestReapReport_FailedActions(t *testing.T) {
	report := &ReapReport{
		Port:     8000,
		Protocol: ProtocolTCP,
		Actions: []ReapAction{
			{Occupant: Occupant{PID: 100}, Kind: ActionTerminated},
			{Occupant: Occupant{PID: 200}, Kind: ActionFailed, Error: "operation not permitted"},
			{Occupant: Occupant{PID: 300}, Kind: ActionKilled, Escalated: true},
		},
	}

	failed := report.FailedActions()
	require.Len(t, failed, 1)
	assert.Equal(t, 200, failed[0].Occupant.PID)
	assert.Equal(t, "operation not permitted", failed[0].Error)
}

// TestReapReport_JSONShape verifies the JSON field names consumed by
// scripts that parse --json output.
func TestReapReport_JSONShape(t *testing.T) {
	report := &ReapReport{
		Port:     8000,
		Protocol: ProtocolTCP,
		Actions: []ReapAction{
			{Occupant: Occupant{PID: 4321, Port: 8000, Protocol: ProtocolTCP}, Kind: ActionKilled},
		},
		Freed: true,
	}

	data, err := json.Marshal(report)
	require.NoError(t, err)

	assert.Contains(t, string(data), `"port":8000`)
	assert.Contains(t, string(data), `"protocol":"tcp"`)
	assert.Contains(t, string(data), `"kind":"killed"`)
	assert.Contains(t, string(data), `"freed":true`)
	// Zero-value optional fields stay out of the output.
	assert.NotContains(t, string(data), "containerId")
	assert.NotContains(t, string(data), "dryRun")
}

// TestCLIError verifies the error message formatting and that Unwrap
// exposes the underlying error to errors.Is.
func TestCLIError(t *testing.T) {
	plain := NewCLIError(ExitProtectedPort, "port 22 is protected")
	assert.Equal(t, "port 22 is protected", plain.Error())
	assert.Equal(t, ExitProtectedPort, plain.Code)

	underlying := errors.New("operation not permitted")
	wrapped := WrapCLIError(ExitSignalFailed, "failed to signal PID 4321", underlying)
	assert.Equal(t, "failed to signal PID 4321: operation not permitted", wrapped.Error())
	assert.True(t, errors.Is(wrapped, underlying), "Unwrap should expose the underlying error")
}

// TestExitCodes pins the numeric exit code values. Scripts depend on
// these numbers, so changing them is a breaking change.
func TestExitCodes(t *testing.T) {
	assert.Equal(t, 0, int(ExitSuccess))
	assert.Equal(t, 1, int(ExitGeneralError))
	assert.Equal(t, 2, int(ExitInvalidPort))
	assert.Equal(t, 3, int(ExitDockerNotRunning))
	assert.Equal(t, 4, int(ExitResolveFailed))
	assert.Equal(t, 5, int(ExitSignalFailed))
	assert.Equal(t, 6, int(ExitPortStillBound))
	assert.Equal(t, 7, int(ExitProtectedPort))
}
