// Package cli wires the arena commands: start runs the API server plus the
// trading scheduler, reconcile runs a single venue sync and exits.
package cli

import (
	"errors"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "arena",
	Short: "Multi-agent LLM crypto futures trading arena",
	Long: `Arena pits a set of LLM-backed trading agents against one shared
futures venue. Every cycle each agent sees the same market snapshot, makes
its own call and trades its own isolated account; the HTTP API exposes the
resulting accounts, positions, trades and leaderboard.`,
	SilenceUsage: true,
}

// Execute runs the CLI and returns the process exit code: 0 on success,
// 1 on configuration or usage errors, 2 on unrecoverable runtime errors.
func Execute() int {
	if err := rootCmd.Execute(); err != nil {
		var xe *exitError
		if errors.As(err, &xe) {
			return xe.code
		}
		return 1
	}
	return 0
}

// exitError pins a process exit code onto a command error.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }
func (e *exitError) Unwrap() error { return e.err }

func configErr(err error) error  { return &exitError{code: 1, err: err} }
func runtimeErr(err error) error { return &exitError{code: 2, err: err} }
