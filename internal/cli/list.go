// Package cli — list.go implements the "portreaper list" command.
//
// The list command displays every listening socket on the machine with
// its owning process, as a text table or JSON array depending on the
// --json flag. It answers the question that usually precedes a reap:
// "what is squatting on my ports?"
//
// System ports (below 1024) are hidden by default to keep the output
// focused on development servers; --system includes them. An optional
// positional filter narrows the listing by port number or by process
// name substring.
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mmr-tortoise/portreaper/internal/model"
	"github.com/mmr-tortoise/portreaper/internal/occupant"
)

// systemPortMax is the highest well-known port number. Listeners at or
// below it are hidden unless --system is set.
const systemPortMax = 1023

// listFlags holds the flag values for the list command.
// These are bound to cobra flags in NewListCommand.
type listFlags struct {
	// system includes listeners on well-known ports (below 1024),
	// which are hidden by default.
	system bool
}

// NewListCommand creates the "list" cobra command.
// It is called from NewRootCommand to register as a subcommand.
func NewListCommand() *cobra.Command {
	flags := &listFlags{}

	cmd := &cobra.Command{
		Use:   "list [filter]",
		Short: "List listening sockets and their owning processes",
		Long: `List every listening TCP socket with its owning process.

The optional filter argument narrows the listing: a number matches the
port exactly, anything else matches process names as a case-insensitive
substring. Listeners on system ports (below 1024) are hidden unless
--system is given.

Examples:
  portreaper list
  portreaper list node
  portreaper list 8000
  portreaper list --system
  portreaper list --json`,

		// At most one positional argument (the port or name filter).
		Args: cobra.MaximumNArgs(1),

		// RunE returns an error to the root command's error handler.
		RunE: func(cmd *cobra.Command, args []string) error {
			filter := ""
			if len(args) == 1 {
				filter = args[0]
			}
			return runList(cmd.Context(), flags, filter)
		},
	}

	cmd.Flags().BoolVar(&flags.system, "system", false,
		"Include listeners on system ports (below 1024)")

	return cmd
}

// runList is the main logic function for the list command.
// It queries the OS socket table, applies the filters, and outputs the
// listeners in the appropriate format.
func runList(ctx context.Context, flags *listFlags, filter string) error {
	resolver := occupant.NewSystemResolver()

	VerboseLog("Querying listening sockets")
	listeners, err := resolver.ListListeners(ctx)
	if err != nil {
		return model.WrapCLIError(model.ExitResolveFailed, "failed to query listening sockets", err)
	}
	VerboseLog("Found %d listeners", len(listeners))

	listeners = FilterListeners(listeners, filter, flags.system)

	// Sort by port, then PID, for stable output across invocations.
	sort.Slice(listeners, func(i, j int) bool {
		if listeners[i].Port != listeners[j].Port {
			return listeners[i].Port < listeners[j].Port
		}
		return listeners[i].PID < listeners[j].PID
	})

	printListResult(listeners)
	return nil
}

// FilterListeners applies the filter and the system port cutoff to a
// listener set. A numeric filter matches the port exactly; anything else
// matches as a case-insensitive process name substring.
//
// This function is exported for testing purposes (tested in list_test.go).
func FilterListeners(listeners []model.Occupant, filter string, includeSystem bool) []model.Occupant {
	filterPort, filterIsPort := 0, false
	if p, err := strconv.Atoi(filter); err == nil {
		filterPort, filterIsPort = p, true
	}
	filter = strings.ToLower(filter)

	filtered := make([]model.Occupant, 0, len(listeners))
	for _, l := range listeners {
		if !includeSystem && l.Port <= systemPortMax {
			continue
		}
		if filterIsPort {
			if l.Port != filterPort {
				continue
			}
		} else if filter != "" && !strings.Contains(strings.ToLower(l.Name), filter) {
			continue
		}
		filtered = append(filtered, l)
	}
	return filtered
}

// printListResult outputs the listeners in text or JSON format,
// depending on the global --json flag.
func printListResult(listeners []model.Occupant) {
	if IsJSONOutput() {
		printListResultJSON(listeners)
	} else {
		printListResultText(listeners)
	}
}

// printListResultJSON outputs the listener list as structured JSON.
// The top-level key is "listeners" containing an array of occupant objects.
func printListResultJSON(listeners []model.Occupant) {
	type resultJSON struct {
		Listeners []model.Occupant `json:"listeners"`
	}

	result := resultJSON{
		// Use an empty slice instead of nil to ensure JSON output shows []
		// instead of null when no listeners match.
		Listeners: make([]model.Occupant, 0, len(listeners)),
	}
	result.Listeners = append(result.Listeners, listeners...)

	// MarshalIndent produces human-readable JSON with 2-space indentation.
	data, _ := json.MarshalIndent(result, "", "  ")
	fmt.Println(string(data))
}

// printListResultText outputs the listener list as a human-readable
// text table with aligned columns.
//
// The table format is:
//
//	PORT   PID     NAME            USER       ADDR
//	3000   4321    node            dev        127.0.0.1
//	5432   889     postgres        postgres   *
func printListResultText(listeners []model.Occupant) {
	if len(listeners) == 0 {
		fmt.Println("No listening sockets found.")
		return
	}

	// Print header row.
	fmt.Printf("%-6s %-7s %-20s %-12s %s\n",
		"PORT", "PID", "NAME", "USER", "ADDR")

	for _, l := range listeners {
		name := l.Name
		if name == "" {
			name = "-"
		}
		user := l.User
		if user == "" {
			user = "-"
		}
		addr := l.Addr
		if addr == "" {
			addr = "-"
		}

		// Print one row per listener with fixed-width columns.
		fmt.Printf("%-6d %-7d %-20s %-12s %s\n",
			l.Port, l.PID, name, user, addr)
	}
}
