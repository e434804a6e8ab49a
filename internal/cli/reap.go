// Package cli — reap.go implements the "portreaper reap" command.
//
// The reap command resolves every process bound to the target port(s),
// sends each one a graceful termination signal, waits out the grace
// period, and escalates to a forceful kill for any occupant that is
// still alive. With --docker, occupants that are container port proxies
// are handled by stopping the publishing container instead, since the
// daemon respawns a killed proxy.
//
// Finding no occupant exits 0: the goal is a free port, and a port that
// was never occupied is already free. Failures are distinguished by
// exit code so scripts can tell "nothing to do" from "could not kill".
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/mmr-tortoise/portreaper/internal/config"
	"github.com/mmr-tortoise/portreaper/internal/docker"
	"github.com/mmr-tortoise/portreaper/internal/model"
	"github.com/mmr-tortoise/portreaper/internal/occupant"
	"github.com/mmr-tortoise/portreaper/internal/port"
	"github.com/mmr-tortoise/portreaper/internal/reaper"
)

// reapFlags holds the flag values for the reap command.
// These are bound to cobra flags in NewReapCommand.
type reapFlags struct {
	// grace is the period between the graceful signal and escalation.
	grace time.Duration

	// force skips the graceful signal and kills immediately.
	force bool

	// dryRun resolves and reports occupants without signalling them.
	dryRun bool

	// udp targets UDP sockets instead of TCP listeners.
	udp bool

	// dockerAware stops publishing containers behind docker-proxy
	// occupants instead of killing the proxy process.
	dockerAware bool
}

// NewReapCommand creates the "reap" cobra command.
// It is called from NewRootCommand to register as a subcommand.
func NewReapCommand() *cobra.Command {
	flags := &reapFlags{}

	cmd := &cobra.Command{
		Use:   "reap [port...]",
		Short: "Terminate the process(es) occupying the given port(s)",
		Long: `Terminate every process bound to the given port(s).

Each occupant first receives a graceful termination signal and is given
the grace period to exit; occupants still alive afterwards are killed
forcefully. Without arguments the configured default port (8000) is
reaped.

Examples:
  portreaper reap
  portreaper reap 3000
  portreaper reap 3000 5432 --grace 10s
  portreaper reap 8080 --force
  portreaper reap 8080 --docker
  portreaper reap 8080 --dry-run --json`,

		// Ports are positional; zero arguments falls back to the
		// configured default port.
		Args: cobra.ArbitraryArgs,

		// RunE returns an error to the root command's error handler.
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReap(cmd.Context(), cmd, flags, args)
		},
	}

	cmd.Flags().DurationVar(&flags.grace, "grace", config.DefaultGracePeriod.Std(),
		"Grace period before escalating to a forceful kill")
	cmd.Flags().BoolVarP(&flags.force, "force", "f", false,
		"Skip the graceful signal and kill immediately")
	cmd.Flags().BoolVar(&flags.dryRun, "dry-run", false,
		"Report occupants without signalling them")
	cmd.Flags().BoolVar(&flags.udp, "udp", false,
		"Target UDP sockets instead of TCP listeners")
	cmd.Flags().BoolVar(&flags.dockerAware, "docker", false,
		"Stop the publishing container when the occupant is a container port proxy")

	return cmd
}

// runReap is the main logic function for the reap command.
// It loads configuration, resolves the target port list, and reaps each
// port in sequence, reporting per-port outcomes.
func runReap(ctx context.Context, cmd *cobra.Command, flags *reapFlags, args []string) error {
	// Step 1: Load configuration. Flags override config values.
	cfg, err := config.Load(configPath)
	if err != nil {
		return model.WrapCLIError(model.ExitGeneralError, "failed to load configuration", err)
	}

	// Step 2: Resolve the target port list. No arguments means the
	// configured default port.
	ports, err := parsePortArgs(args, cfg.DefaultPort)
	if err != nil {
		return err // parsePortArgs already returns CLIError with ExitInvalidPort
	}

	// Step 3: Compute effective options from flags and config.
	protocol := model.Protocol(cfg.Protocol)
	if flags.udp {
		protocol = model.ProtocolUDP
	}
	grace := cfg.GracePeriod.Std()
	if cmd.Flags().Changed("grace") {
		grace = flags.grace
	}

	opts := reaper.Options{
		GracePeriod:    grace,
		Force:          flags.force || cfg.Force,
		DryRun:         flags.dryRun,
		Protocol:       protocol,
		ProtectedPorts: cfg.ProtectedPorts,
		Log:            VerboseLog,
	}

	// Step 4: Connect to Docker when container-aware reaping is on.
	// The connection is established up front so a missing daemon fails
	// fast, before any signal is sent.
	if flags.dockerAware || cfg.Docker {
		cli, err := docker.NewClient()
		if err != nil {
			return err // NewClient already returns CLIError with ExitDockerNotRunning
		}
		// defer ensures the Docker client is closed when this function
		// returns, releasing the underlying HTTP connection.
		defer func() { _ = cli.Close() }()

		if err := cli.Ping(ctx); err != nil {
			return err
		}
		VerboseLog("Connected to Docker daemon")

		opts.Containers = docker.NewPublisherStopper(cli, VerboseLog)
	}

	r := reaper.New(occupant.NewSystemResolver(), port.NewScanner(), opts)

	// Step 5: Reap each port in sequence. A failure on one port does
	// not stop the batch; the first error is kept for the exit code.
	var (
		reports  []*model.ReapReport
		firstErr error
	)
	for _, p := range ports {
		report, err := r.Reap(ctx, p)
		if report != nil {
			reports = append(reports, report)
		}
		if err != nil && firstErr == nil {
			firstErr = err
		}
		if err != nil && report == nil && !IsJSONOutput() {
			// Resolution-stage failures produce no report; surface them
			// inline so a multi-port run shows which port failed.
			fmt.Printf("Port %d: %v\n", p, err)
		}
	}

	// Step 6: Output results in the appropriate format.
	printReapResult(reports)

	return firstErr
}

// parsePortArgs converts positional port arguments into validated port
// numbers. An empty argument list yields the single default port.
func parsePortArgs(args []string, defaultPort int) ([]int, error) {
	if len(args) == 0 {
		return []int{defaultPort}, nil
	}

	ports := make([]int, 0, len(args))
	for _, arg := range args {
		p, err := strconv.Atoi(arg)
		if err != nil {
			return nil, model.NewCLIError(model.ExitInvalidPort,
				fmt.Sprintf("invalid port %q: must be a number between 1 and 65535", arg))
		}
		if err := model.ValidatePort(p); err != nil {
			return nil, model.WrapCLIError(model.ExitInvalidPort, "invalid port", err)
		}
		ports = append(ports, p)
	}
	return ports, nil
}

// printReapResult outputs the reap reports in text or JSON format,
// depending on the global --json flag.
func printReapResult(reports []*model.ReapReport) {
	if IsJSONOutput() {
		printReapResultJSON(reports)
	} else {
		printReapResultText(reports)
	}
}

// printReapResultJSON outputs the reports as structured JSON.
// The top-level key is "reports" containing one object per target port.
func printReapResultJSON(reports []*model.ReapReport) {
	type resultJSON struct {
		Reports []*model.ReapReport `json:"reports"`
	}

	result := resultJSON{
		// Use an empty slice instead of nil to ensure JSON output shows []
		// instead of null when every port failed before resolution.
		Reports: make([]*model.ReapReport, 0, len(reports)),
	}
	result.Reports = append(result.Reports, reports...)

	// MarshalIndent produces human-readable JSON with 2-space indentation.
	data, _ := json.MarshalIndent(result, "", "  ")
	fmt.Println(string(data))
}

// printReapResultText outputs the reports as human-readable text, one
// line per occupant action plus a closing line per port.
func printReapResultText(reports []*model.ReapReport) {
	for _, report := range reports {
		if report.NoOccupant() && !report.DryRun {
			fmt.Printf("No process found occupying port %d/%s.\n", report.Port, report.Protocol)
			continue
		}

		for _, action := range report.Actions {
			fmt.Println(FormatAction(action))
		}

		if report.DryRun {
			continue
		}
		if report.Freed {
			fmt.Printf("Port %d/%s is free.\n", report.Port, report.Protocol)
		} else {
			fmt.Printf("Port %d/%s is still bound.\n", report.Port, report.Protocol)
		}
	}
}

// FormatAction renders a single occupant outcome as one line of text.
//
// This function is exported for testing purposes (tested in reap_test.go).
//
// Example:
//
//	{Kind: terminated}             → "Terminated PID 4321 (python3) on port 8000/tcp gracefully."
//	{Kind: killed, Escalated}      → "Killed PID 4321 (python3) on port 8000/tcp after the grace period expired."
func FormatAction(action model.ReapAction) string {
	occ := action.Occupant

	switch action.Kind {
	case model.ActionTerminated:
		return fmt.Sprintf("Terminated %s gracefully.", occ.String())
	case model.ActionKilled:
		if action.Escalated {
			return fmt.Sprintf("Killed %s after the grace period expired.", occ.String())
		}
		return fmt.Sprintf("Killed %s.", occ.String())
	case model.ActionContainerStopped:
		return fmt.Sprintf("Stopped container %s publishing port %d.", shortContainerID(occ.ContainerID), occ.Port)
	case model.ActionAlreadyGone:
		return fmt.Sprintf("%s had already exited.", occ.String())
	case model.ActionSkipped:
		return fmt.Sprintf("Would terminate %s (dry run).", occ.String())
	case model.ActionFailed:
		return fmt.Sprintf("Failed to terminate %s: %s", occ.String(), action.Error)
	default:
		return occ.String()
	}
}

// shortContainerID abbreviates a container ID to the 12-character form
// Docker itself displays. Short inputs pass through unchanged.
func shortContainerID(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}
