// Package model defines the domain types and value objects for the
// portreaper CLI.
//
// This package contains pure data structures with no external dependencies.
// All entities (Occupant, ReapAction, ReapReport) are transient
// representations of the OS socket and process tables at the moment of
// invocation — there are no persistent state files.
//
// The package also defines exit codes (ExitCode) and a custom error type
// (CLIError) that carries exit codes for proper OS process exit handling.
package model
