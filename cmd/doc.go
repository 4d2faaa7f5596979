// Package cmd implements the command-line interface for followmail.
//
// This package provides the following commands:
//   - serve: Start the HTTP API server
//   - version: Display version information
//
// The serve command is the default command when no subcommand is specified.
// Every serve flag has an environment variable fallback so the server can be
// configured entirely from a container environment.
package cmd
