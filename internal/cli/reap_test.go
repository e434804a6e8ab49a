package cli

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmr-tortoise/portreaper/internal/model"
)

func sampleOccupant() model.Occupant {
	return model.Occupant{
		PID:      4321,
		Port:     8000,
		Protocol: model.ProtocolTCP,
		Name:     "python3",
	}
}

func TestFormatAction(t *testing.T) {
	tests := []struct {
		name   string
		action model.ReapAction
		want   string
	}{
		{
			name:   "terminated gracefully",
			action: model.ReapAction{Occupant: sampleOccupant(), Kind: model.ActionTerminated},
			want:   "Terminated PID 4321 (python3) on port 8000/tcp gracefully.",
		},
		{
			name:   "killed immediately",
			action: model.ReapAction{Occupant: sampleOccupant(), Kind: model.ActionKilled},
			want:   "Killed PID 4321 (python3) on port 8000/tcp.",
		},
		{
			name:   "killed after escalation",
			action: model.ReapAction{Occupant: sampleOccupant(), Kind: model.ActionKilled, Escalated: true},
			want:   "Killed PID 4321 (python3) on port 8000/tcp after the grace period expired.",
		},
		{
			name: "container stopped",
			action: model.ReapAction{
				Occupant: model.Occupant{
					PID: 999, Port: 8000, Protocol: model.ProtocolTCP,
					Name:        "docker-proxy",
					ContainerID: "0123456789abcdef0123456789abcdef",
				},
				Kind: model.ActionContainerStopped,
			},
			want: "Stopped container 0123456789ab publishing port 8000.",
		},
		{
			name:   "already gone",
			action: model.ReapAction{Occupant: sampleOccupant(), Kind: model.ActionAlreadyGone},
			want:   "PID 4321 (python3) on port 8000/tcp had already exited.",
		},
		{
			name:   "dry run",
			action: model.ReapAction{Occupant: sampleOccupant(), Kind: model.ActionSkipped},
			want:   "Would terminate PID 4321 (python3) on port 8000/tcp (dry run).",
		},
		{
			name:   "failed",
			action: model.ReapAction{Occupant: sampleOccupant(), Kind: model.ActionFailed, Error: "operation not permitted"},
			want:   "Failed to terminate PID 4321 (python3) on port 8000/tcp: operation not permitted",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FormatAction(tt.action))
		})
	}
}

func TestShortContainerID(t *testing.T) {
	assert.Equal(t, "0123456789ab", shortContainerID("0123456789abcdef"))
	assert.Equal(t, "abc", shortContainerID("abc"))
	assert.Equal(t, "", shortContainerID(""))
}

func TestParsePortArgs(t *testing.T) {
	t.Run("no args uses default", func(t *testing.T) {
		ports, err := parsePortArgs(nil, 8000)
		require.NoError(t, err)
		assert.Equal(t, []int{8000}, ports)
	})

	t.Run("multiple ports", func(t *testing.T) {
		ports, err := parsePortArgs([]string{"3000", "5432"}, 8000)
		require.NoError(t, err)
		assert.Equal(t, []int{3000, 5432}, ports)
	})

	t.Run("not a number", func(t *testing.T) {
		_, err := parsePortArgs([]string{"http"}, 8000)
		require.Error(t, err)

		var cliErr *model.CLIError
		require.True(t, errors.As(err, &cliErr))
		assert.Equal(t, model.ExitInvalidPort, cliErr.Code)
	})

	t.Run("out of range", func(t *testing.T) {
		for _, arg := range []string{"0", "-1", "65536"} {
			_, err := parsePortArgs([]string{arg}, 8000)
			require.Error(t, err, "port %s", arg)

			var cliErr *model.CLIError
			require.True(t, errors.As(err, &cliErr))
			assert.Equal(t, model.ExitInvalidPort, cliErr.Code)
		}
	})

	t.Run("one bad port fails the whole list", func(t *testing.T) {
		_, err := parsePortArgs([]string{"3000", "oops"}, 8000)
		assert.Error(t, err)
	})
}
